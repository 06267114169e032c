package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/najirlabs/najir/internal/bot"
	"github.com/najirlabs/najir/internal/chat"
	"github.com/najirlabs/najir/internal/search"
	"github.com/najirlabs/najir/internal/session"
	"github.com/najirlabs/najir/internal/store"
)

// Forgetter releases per-conversation state held outside the session manager.
type Forgetter interface {
	Forget(conversationID string)
}

type Handler struct {
	store    store.Store
	sessions *session.Manager
	bot      *bot.Handler
	search   search.Backend
	agent    Forgetter
	log      *zap.Logger
}

func NewHandler(s store.Store, sessions *session.Manager, b *bot.Handler, searcher search.Backend, agent Forgetter, log *zap.Logger) *Handler {
	return &Handler{store: s, sessions: sessions, bot: b, search: searcher, agent: agent, log: log}
}

// Routes mounts the JSON API.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/search", h.HandleSearch)
	r.Post("/case-details", h.HandleCaseDetails)

	r.Route("/conversations", func(r chi.Router) {
		r.Get("/", h.HandleListConversations)
		r.Post("/", h.HandleCreateConversation)

		r.Route("/{conversationID}", func(r chi.Router) {
			r.Get("/", h.HandleGetConversation)
			r.Patch("/", h.HandleRenameConversation)
			r.Delete("/", h.HandleDeleteConversation)
			r.Post("/reload", h.HandleReloadConversation)
			r.Post("/submit", h.HandleSubmitActive)
			r.Post("/messages", h.HandleSendMessage)
			r.Post("/messages/{messageID}/toggle", h.HandleToggle)
			r.Get("/messages/{messageID}/selection", h.HandleGetSelection)
			r.Post("/messages/{messageID}/submit", h.HandleSubmit)
		})
	})
}

type searchRequest struct {
	Query     string `json:"query"`
	PageToken string `json:"page_token"`
}

func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	page, err := h.search.Search(r.Context(), req.Query, req.PageToken)
	if err != nil {
		h.log.Error("search failed", zap.String("query", req.Query), zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to search cases")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type caseDetailsRequest struct {
	CaseIDs  []string `json:"case_ids"`
	Question string   `json:"question"`
}

// HandleCaseDetails looks up cases by number. Without explicit ids the case
// numbers are taken from the question.
func (h *Handler) HandleCaseDetails(w http.ResponseWriter, r *http.Request) {
	var req caseDetailsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ids := req.CaseIDs
	if len(ids) == 0 {
		ids = chat.ExtractCaseIDs(req.Question)
	}
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, "no case ids given or found in the question")
		return
	}
	details := search.FetchDetails(r.Context(), h.search, ids, req.Question)
	h.log.Info("case details", zap.Int("requested", len(ids)), zap.Int("returned", len(details)))
	writeJSON(w, http.StatusOK, map[string]any{"case_details": details})
}

func (h *Handler) HandleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.store.ListConversations()
	if err != nil {
		h.internalError(w, "list conversations", err)
		return
	}
	if convs == nil {
		convs = []store.Conversation{}
	}
	writeJSON(w, http.StatusOK, convs)
}

type conversationRequest struct {
	Title string `json:"title"`
}

func (h *Handler) HandleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req conversationRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	now := time.Now()
	conv := store.Conversation{
		ID:        uuid.NewString(),
		Title:     strings.TrimSpace(req.Title),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.store.SaveConversation(conv); err != nil {
		h.internalError(w, "create conversation", err)
		return
	}
	h.log.Info("conversation created", zap.String("conversation", conv.ID))
	writeJSON(w, http.StatusCreated, conv)
}

func (h *Handler) HandleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	c, err := h.sessions.Get(id)
	if err != nil {
		h.conversationError(w, err)
		return
	}
	h.writeConversation(w, id, c)
}

func (h *Handler) HandleReloadConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	c, err := h.sessions.Reload(id)
	if err != nil {
		h.conversationError(w, err)
		return
	}
	h.writeConversation(w, id, c)
}

func (h *Handler) HandleRenameConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	var req conversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	conv, err := h.store.GetConversation(id)
	if err != nil {
		h.internalError(w, "load conversation", err)
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	conv.Title = title
	conv.UpdatedAt = time.Now()
	if err := h.store.SaveConversation(*conv); err != nil {
		h.internalError(w, "rename conversation", err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *Handler) HandleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	if err := h.store.DeleteConversation(id); err != nil {
		h.internalError(w, "delete conversation", err)
		return
	}
	h.sessions.Forget(id)
	if h.agent != nil {
		h.agent.Forget(id)
	}
	w.WriteHeader(http.StatusNoContent)
}

type messageRequest struct {
	Text string `json:"text"`
}

func (h *Handler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	added, err := h.bot.HandleMessage(r.Context(), id, req.Text)
	if err != nil {
		h.conversationError(w, err)
		return
	}
	h.writeAdded(w, id, added)
}

type toggleRequest struct {
	CaseID string `json:"caseId"`
}

type selectionResponse struct {
	MessageID string      `json:"messageId"`
	Outcome   string      `json:"outcome,omitempty"`
	Active    bool        `json:"active"`
	Selected  []chat.Case `json:"selected"`
	Query     string      `json:"query"`
}

func (h *Handler) HandleToggle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	messageID := chi.URLParam(r, "messageID")
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CaseID == "" {
		writeError(w, http.StatusBadRequest, "caseId is required")
		return
	}
	selected, outcome, err := h.sessions.Toggle(id, messageID, chat.Case{ID: req.CaseID})
	if err != nil {
		h.conversationError(w, err)
		return
	}
	c, err := h.sessions.Get(id)
	if err != nil {
		h.conversationError(w, err)
		return
	}
	if outcome == chat.OutcomeUnknownMessage {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}
	writeJSON(w, http.StatusOK, selectionResponse{
		MessageID: messageID,
		Outcome:   string(outcome),
		Active:    c.Active().Has(messageID),
		Selected:  nonNil(selected),
		Query:     chat.FormatQuery(selected),
	})
}

func (h *Handler) HandleGetSelection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	messageID := chi.URLParam(r, "messageID")
	c, err := h.sessions.Get(id)
	if err != nil {
		h.conversationError(w, err)
		return
	}
	if _, ok := c.Message(messageID); !ok {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}
	selected := c.Selection(messageID)
	writeJSON(w, http.StatusOK, selectionResponse{
		MessageID: messageID,
		Active:    c.Active().Has(messageID),
		Selected:  nonNil(selected),
		Query:     chat.FormatQuery(selected),
	})
}

func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	messageID := chi.URLParam(r, "messageID")
	added, err := h.bot.SubmitSelection(r.Context(), id, messageID)
	if err != nil {
		h.conversationError(w, err)
		return
	}
	h.writeAdded(w, id, added)
}

// HandleSubmitActive submits the combined selection of all active widgets.
func (h *Handler) HandleSubmitActive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	added, err := h.bot.SubmitActiveSelection(r.Context(), id)
	if err != nil {
		h.conversationError(w, err)
		return
	}
	h.writeAdded(w, id, added)
}

func (h *Handler) writeConversation(w http.ResponseWriter, id string, c *chat.Conversation) {
	conv, err := h.store.GetConversation(id)
	if err != nil {
		h.internalError(w, "load conversation", err)
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, conversationView{
		Conversation: *conv,
		Messages:     renderMessages(c.Messages(), c.Active()),
	})
}

func (h *Handler) writeAdded(w http.ResponseWriter, id string, added []chat.Message) {
	c, err := h.sessions.Get(id)
	if err != nil {
		h.conversationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages": renderMessages(added, c.Active()),
		"active":   activeIDs(c.Active()),
	})
}

func (h *Handler) conversationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrConversationNotFound):
		writeError(w, http.StatusNotFound, "conversation not found")
	case errors.Is(err, bot.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, bot.ErrUnknownMessage):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, bot.ErrInactiveWidget):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, bot.ErrNothingToSubmit):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.internalError(w, "conversation", err)
	}
}

func (h *Handler) internalError(w http.ResponseWriter, op string, err error) {
	h.log.Error(op, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func nonNil(cases []chat.Case) []chat.Case {
	if cases == nil {
		return []chat.Case{}
	}
	return cases
}
