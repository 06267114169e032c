package bot

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/najirlabs/najir/internal/ai"
	"github.com/najirlabs/najir/internal/chat"
	"github.com/najirlabs/najir/internal/session"
	"github.com/najirlabs/najir/internal/store"
)

type fakeAgent struct {
	reply    string
	err      error
	requests []ai.Request
}

func (f *fakeAgent) Handle(_ context.Context, req ai.Request) (ai.Reply, error) {
	f.requests = append(f.requests, req)
	return ai.Reply{Text: f.reply}, f.err
}

func newTestHandler(t *testing.T, agent Responder) (*Handler, *session.Manager, *store.BoltStore) {
	t.Helper()
	s, err := store.NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.SaveConversation(store.Conversation{ID: "c1"}))

	sessions := session.NewManager(s, chat.NewClassifier(time.Minute), zap.NewNop())
	h := NewHandler(sessions, s, agent, zap.NewNop())
	n := 0
	h.newID = func() string {
		n++
		return fmt.Sprintf("m%d", n)
	}
	return h, sessions, s
}

func TestHandleMessageEndToEnd(t *testing.T) {
	agent := &fakeAgent{reply: `{"type":"CASE_SEARCH_RESULTS","text":"Here are results","data":{"cases":[{"id":"100","title":"Case A"}]}}`}
	h, sessions, s := newTestHandler(t, agent)
	ctx := context.Background()

	added, err := h.HandleMessage(ctx, "c1", "  find land cases ")
	require.NoError(t, err)
	require.Len(t, added, 2)
	assert.Equal(t, "find land cases", added[0].Text)
	assert.True(t, added[1].IsCaseSearch())
	assert.Equal(t, "Here are results", added[1].Intro)

	_, outcome, err := sessions.Toggle("c1", added[1].ID, added[1].Cases[0])
	require.NoError(t, err)
	require.Equal(t, chat.OutcomeAdded, outcome)

	agent.reply = "Case 100 concerns a land dispute."
	followUp, err := h.SubmitSelection(ctx, "c1", added[1].ID)
	require.NoError(t, err)

	assert.Equal(t, "Tell me more about case number 100", followUp[0].Text)
	assert.Equal(t, chat.SenderUser, followUp[0].Sender)
	assert.Equal(t, chat.KindText, followUp[1].Kind)
	require.Len(t, agent.requests, 2)
	assert.Equal(t, []string{"100"}, agent.requests[1].SelectedCaseIDs)
	assert.Len(t, agent.requests[1].History, 2)

	stored, err := s.GetMessages("c1")
	require.NoError(t, err)
	assert.Len(t, stored, 4)

	conv, err := s.GetConversation("c1")
	require.NoError(t, err)
	assert.Equal(t, "find land cases", conv.Title)
}

func TestSubmitSelectionWithoutSelection(t *testing.T) {
	agent := &fakeAgent{reply: `{"type":"CASE_SEARCH_RESULTS","data":{"cases":[{"id":"100"}]}}`}
	h, _, _ := newTestHandler(t, agent)

	added, err := h.HandleMessage(context.Background(), "c1", "find")
	require.NoError(t, err)

	_, err = h.SubmitSelection(context.Background(), "c1", added[1].ID)
	assert.ErrorIs(t, err, ErrNothingToSubmit)
	assert.Len(t, agent.requests, 1)
}

func TestSubmitSelectionRejectsInactiveWidget(t *testing.T) {
	agent := &fakeAgent{reply: `{"type":"CASE_SEARCH_RESULTS","data":{"cases":[{"id":"100"}]}}`}
	h, sessions, _ := newTestHandler(t, agent)
	ctx := context.Background()

	first, err := h.HandleMessage(ctx, "c1", "land cases")
	require.NoError(t, err)
	_, outcome, err := sessions.Toggle("c1", first[1].ID, chat.Case{ID: "100"})
	require.NoError(t, err)
	require.Equal(t, chat.OutcomeAdded, outcome)

	agent.reply = "plain answer"
	for i := 0; i < chat.ActiveWindow/2; i++ {
		_, err := h.HandleMessage(ctx, "c1", "more")
		require.NoError(t, err)
	}
	agent.reply = `{"type":"CASE_SEARCH_RESULTS","data":{"cases":[{"id":"200"}]}}`
	_, err = h.HandleMessage(ctx, "c1", "tenancy cases")
	require.NoError(t, err)
	sent := len(agent.requests)

	_, err = h.SubmitSelection(ctx, "c1", first[1].ID)
	assert.ErrorIs(t, err, ErrInactiveWidget)
	assert.Len(t, agent.requests, sent)

	_, err = h.SubmitSelection(ctx, "c1", "missing")
	assert.ErrorIs(t, err, ErrUnknownMessage)
}

func TestSubmitActiveSelection(t *testing.T) {
	agent := &fakeAgent{reply: `{"type":"CASE_SEARCH_RESULTS","data":{"cases":[{"id":"100"},{"id":"101"}]}}`}
	h, sessions, _ := newTestHandler(t, agent)
	ctx := context.Background()

	a, err := h.HandleMessage(ctx, "c1", "land")
	require.NoError(t, err)
	agent.reply = `{"type":"CASE_SEARCH_RESULTS","data":{"cases":[{"id":"101"},{"id":"200"}]}}`
	b, err := h.HandleMessage(ctx, "c1", "tenancy")
	require.NoError(t, err)

	for _, sel := range []struct{ msg, id string }{{a[1].ID, "100"}, {a[1].ID, "101"}, {b[1].ID, "101"}, {b[1].ID, "200"}} {
		_, _, err := sessions.Toggle("c1", sel.msg, chat.Case{ID: sel.id})
		require.NoError(t, err)
	}

	agent.reply = "answer"
	added, err := h.SubmitActiveSelection(ctx, "c1")
	require.NoError(t, err)

	assert.Equal(t, "Tell me more about these cases: 100, 101, 200", added[0].Text)
	assert.Equal(t, []string{"100", "101", "200"}, agent.requests[len(agent.requests)-1].SelectedCaseIDs)
}

func TestHandleMessageAgentFailureBecomesBotText(t *testing.T) {
	agent := &fakeAgent{err: errors.New("gemini: generate: Error 429")}
	h, _, _ := newTestHandler(t, agent)

	added, err := h.HandleMessage(context.Background(), "c1", "hello")
	require.NoError(t, err)

	assert.Equal(t, chat.KindText, added[1].Kind)
	assert.Equal(t, ai.ClassifyError(agent.err).Message, added[1].Text)
}

func TestHandleMessageValidation(t *testing.T) {
	h, _, _ := newTestHandler(t, &fakeAgent{})

	_, err := h.HandleMessage(context.Background(), "c1", "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = h.HandleMessage(context.Background(), "missing", "hi")
	assert.ErrorIs(t, err, session.ErrConversationNotFound)
}

func TestTitleFrom(t *testing.T) {
	assert.Equal(t, "find land cases", titleFrom("find\n land   cases"))

	long := titleFrom(strings.Repeat("a", 100))
	assert.Equal(t, maxTitleLen+1, len([]rune(long)))
	assert.True(t, strings.HasSuffix(long, "…"))
}
