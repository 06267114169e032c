package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/najirlabs/najir/internal/ai"
	"github.com/najirlabs/najir/internal/chat"
	"github.com/najirlabs/najir/internal/session"
	"github.com/najirlabs/najir/internal/store"
)

// ErrNothingToSubmit is returned when a widget has no selected cases.
var ErrNothingToSubmit = errors.New("no cases selected")

// ErrEmptyMessage is returned for blank user input.
var ErrEmptyMessage = errors.New("message is empty")

// ErrInactiveWidget is returned when submitting from a search widget that no
// longer accepts selections.
var ErrInactiveWidget = errors.New("search results are no longer active")

// ErrUnknownMessage is returned when the submitted message does not exist.
var ErrUnknownMessage = errors.New("message not found")

const maxTitleLen = 60

// Responder produces the agent's reply to one user message.
type Responder interface {
	Handle(ctx context.Context, req ai.Request) (ai.Reply, error)
}

// Handler runs the send pipeline: append the user message, ask the agent,
// append and classify the reply, persist.
type Handler struct {
	sessions *session.Manager
	store    store.Store
	agent    Responder
	log      *zap.Logger

	now   func() time.Time
	newID func() string
}

func NewHandler(sessions *session.Manager, s store.Store, agent Responder, log *zap.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		store:    s,
		agent:    agent,
		log:      log,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// HandleMessage sends a typed user message and returns the messages it added.
func (h *Handler) HandleMessage(ctx context.Context, conversationID, text string) ([]chat.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	return h.send(ctx, conversationID, func(*chat.Conversation) (string, []string, error) {
		return text, nil, nil
	})
}

// SubmitSelection turns the selection of one active search widget into a
// follow-up question and sends it like a typed message, with the selected
// case ids attached for the agent.
func (h *Handler) SubmitSelection(ctx context.Context, conversationID, messageID string) ([]chat.Message, error) {
	return h.send(ctx, conversationID, func(c *chat.Conversation) (string, []string, error) {
		if _, ok := c.Message(messageID); !ok {
			return "", nil, ErrUnknownMessage
		}
		if !c.Active().Has(messageID) {
			return "", nil, ErrInactiveWidget
		}
		return selectionQuery(c.Selection(messageID))
	})
}

// SubmitActiveSelection sends the combined selection of every active widget
// as one follow-up question.
func (h *Handler) SubmitActiveSelection(ctx context.Context, conversationID string) ([]chat.Message, error) {
	return h.send(ctx, conversationID, func(c *chat.Conversation) (string, []string, error) {
		return selectionQuery(c.ActiveSelection())
	})
}

func selectionQuery(selected []chat.Case) (string, []string, error) {
	query := chat.FormatQuery(selected)
	if query == "" {
		return "", nil, ErrNothingToSubmit
	}
	ids := make([]string, len(selected))
	for i, cs := range selected {
		ids[i] = cs.ID
	}
	return query, ids, nil
}

// send runs the pipeline under the conversation lock. compose builds the
// outgoing text and selected ids from the locked conversation.
func (h *Handler) send(ctx context.Context, conversationID string, compose func(c *chat.Conversation) (string, []string, error)) ([]chat.Message, error) {
	var added []chat.Message
	err := h.sessions.WithLock(conversationID, func(c *chat.Conversation) error {
		text, selectedIDs, err := compose(c)
		if err != nil {
			return err
		}

		history := c.Messages()
		user := c.Append(chat.Message{
			ID:        h.newID(),
			Sender:    chat.SenderUser,
			Text:      text,
			Timestamp: h.now(),
		})

		reply, err := h.agent.Handle(ctx, ai.Request{
			ConversationID:  conversationID,
			Text:            text,
			SelectedCaseIDs: selectedIDs,
			History:         history,
		})
		replyText := reply.Text
		if err != nil {
			ae := ai.ClassifyError(err)
			h.log.Error("agent error",
				zap.String("conversation", conversationID),
				zap.String("type", string(ae.Type)),
				zap.Error(err))
			replyText = ae.Message
		}

		bot := c.Append(chat.Message{
			ID:        h.newID(),
			Sender:    chat.SenderBot,
			Text:      replyText,
			Timestamp: h.now(),
		})
		added = []chat.Message{user, bot}

		if err := h.sessions.Persist(c); err != nil {
			return err
		}
		h.ensureTitle(conversationID, text)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// ensureTitle names an untitled conversation after its first message.
func (h *Handler) ensureTitle(conversationID, text string) {
	conv, err := h.store.GetConversation(conversationID)
	if err != nil || conv == nil || conv.Title != "" {
		return
	}
	conv.Title = titleFrom(text)
	conv.UpdatedAt = h.now()
	if err := h.store.SaveConversation(*conv); err != nil {
		h.log.Warn("saving conversation title", zap.String("conversation", conversationID), zap.Error(err))
	}
}

func titleFrom(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= maxTitleLen {
		return text
	}
	return fmt.Sprintf("%s…", strings.TrimSpace(string(r[:maxTitleLen])))
}
