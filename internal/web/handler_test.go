package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/najirlabs/najir/internal/ai"
	"github.com/najirlabs/najir/internal/bot"
	"github.com/najirlabs/najir/internal/chat"
	"github.com/najirlabs/najir/internal/search"
	"github.com/najirlabs/najir/internal/session"
	"github.com/najirlabs/najir/internal/store"
)

const payload = `{"type":"CASE_SEARCH_RESULTS","text":"Found","data":{"cases":[{"id":"100","title":"Case A"},{"id":"101","title":"Case B"}]}}`

type fakeAgent struct {
	reply     string
	forgotten []string
}

func (f *fakeAgent) Handle(context.Context, ai.Request) (ai.Reply, error) {
	return ai.Reply{Text: f.reply}, nil
}

func (f *fakeAgent) Forget(id string) { f.forgotten = append(f.forgotten, id) }

type fakeSearcher struct{}

func (fakeSearcher) Search(_ context.Context, query, _ string) (*search.Page, error) {
	return &search.Page{Cases: []chat.Case{{ID: "9", Title: query}}, TotalCount: 1}, nil
}

func (fakeSearcher) CaseDetail(_ context.Context, caseID, question string) (*search.CaseDetail, error) {
	if caseID == "404" {
		return nil, errors.New("case_details status 404")
	}
	return &search.CaseDetail{CaseID: caseID, Title: "Title " + caseID, Details: question}, nil
}

func newTestServer(t *testing.T, agent *fakeAgent) *httptest.Server {
	t.Helper()
	s, err := store.NewBoltStore(filepath.Join(t.TempDir(), "web.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	sessions := session.NewManager(s, chat.NewClassifier(time.Minute), zap.NewNop())
	h := NewHandler(s, sessions, bot.NewHandler(sessions, s, agent, zap.NewNop()), fakeSearcher{}, agent, zap.NewNop())

	r := chi.NewRouter()
	r.Route("/api", h.Routes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type addedResponse struct {
	Messages []messageView `json:"messages"`
	Active   []string      `json:"active"`
}

func TestConversationFlow(t *testing.T) {
	agent := &fakeAgent{reply: payload}
	srv := newTestServer(t, agent)

	var conv store.Conversation
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/api/conversations", `{}`, &conv))
	require.NotEmpty(t, conv.ID)
	base := "/api/conversations/" + conv.ID

	var added addedResponse
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, base+"/messages", `{"text":"land cases"}`, &added))
	require.Len(t, added.Messages, 2)
	widget := added.Messages[1]
	assert.Equal(t, chat.KindCaseSearch, widget.Kind)
	assert.True(t, widget.Widget)
	assert.True(t, widget.Active)
	assert.Equal(t, "Found", widget.Intro)
	assert.Equal(t, []string{widget.ID}, added.Active)

	var sel selectionResponse
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, base+"/messages/"+widget.ID+"/toggle", `{"caseId":"101"}`, &sel))
	assert.Equal(t, string(chat.OutcomeAdded), sel.Outcome)
	assert.Equal(t, "Tell me more about case number 101", sel.Query)

	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, base+"/messages/"+widget.ID+"/toggle", `{"caseId":"999"}`, &sel))
	assert.Equal(t, string(chat.OutcomeUnknownCase), sel.Outcome)
	assert.Len(t, sel.Selected, 1)

	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, base+"/messages/"+widget.ID+"/selection", "", &sel))
	assert.True(t, sel.Active)
	require.Len(t, sel.Selected, 1)
	assert.Equal(t, "Case B", sel.Selected[0].Title)

	agent.reply = "Case 101 concerns a boundary dispute."
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, base+"/messages/"+widget.ID+"/submit", "", &added))
	assert.Equal(t, "Tell me more about case number 101", added.Messages[0].Text)
	assert.Equal(t, chat.KindText, added.Messages[1].Kind)

	var view conversationView
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, base, "", &view))
	assert.Equal(t, "land cases", view.Title)
	require.Len(t, view.Messages, 4)
	assert.Empty(t, view.Messages[1].Text)
	assert.Len(t, view.Messages[1].SelectedCases, 1)
}

func TestSubmitWithoutSelection(t *testing.T) {
	srv := newTestServer(t, &fakeAgent{reply: payload})

	var conv store.Conversation
	do(t, srv, http.MethodPost, "/api/conversations", "", &conv)
	base := "/api/conversations/" + conv.ID

	var added addedResponse
	do(t, srv, http.MethodPost, base+"/messages", `{"text":"find"}`, &added)

	var errBody map[string]string
	assert.Equal(t, http.StatusUnprocessableEntity, do(t, srv, http.MethodPost, base+"/messages/"+added.Messages[1].ID+"/submit", "", &errBody))
	assert.Equal(t, bot.ErrNothingToSubmit.Error(), errBody["error"])
}

func TestEmptySearchResultIsNotAWidget(t *testing.T) {
	srv := newTestServer(t, &fakeAgent{reply: `{"type":"CASE_SEARCH_RESULTS","data":{"cases":[]}}`})

	var conv store.Conversation
	do(t, srv, http.MethodPost, "/api/conversations", "", &conv)
	base := "/api/conversations/" + conv.ID

	var added addedResponse
	do(t, srv, http.MethodPost, base+"/messages", `{"text":"zzz"}`, &added)
	m := added.Messages[1]
	assert.Equal(t, chat.KindCaseSearch, m.Kind)
	require.NotNil(t, m.Cases)
	assert.Empty(t, *m.Cases)
	assert.False(t, m.Widget)
	assert.Empty(t, added.Active)

	var sel selectionResponse
	do(t, srv, http.MethodPost, base+"/messages/"+m.ID+"/toggle", `{"caseId":"1"}`, &sel)
	assert.Equal(t, string(chat.OutcomeInactive), sel.Outcome)
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t, &fakeAgent{reply: "hi"})

	var errBody map[string]string
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/api/conversations/missing", "", &errBody))
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodPost, "/api/conversations/missing/messages", `{"text":"hi"}`, &errBody))

	var conv store.Conversation
	do(t, srv, http.MethodPost, "/api/conversations", "", &conv)
	base := "/api/conversations/" + conv.ID

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, base+"/messages", `{"text":"  "}`, &errBody))
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, base+"/messages", `not json`, &errBody))
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodPost, base+"/messages/nope/toggle", `{"caseId":"1"}`, &errBody))
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, base+"/messages/nope/toggle", `{}`, &errBody))
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, base+"/messages/nope/selection", "", &errBody))
}

func TestRenameListDelete(t *testing.T) {
	agent := &fakeAgent{reply: "hi"}
	srv := newTestServer(t, agent)

	var conv store.Conversation
	do(t, srv, http.MethodPost, "/api/conversations", `{"title":"first"}`, &conv)
	assert.Equal(t, "first", conv.Title)

	var renamed store.Conversation
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPatch, "/api/conversations/"+conv.ID, `{"title":"Land law"}`, &renamed))
	assert.Equal(t, "Land law", renamed.Title)

	var list []store.Conversation
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/conversations", "", &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Land law", list[0].Title)

	assert.Equal(t, http.StatusNoContent, do(t, srv, http.MethodDelete, "/api/conversations/"+conv.ID, "", nil))
	assert.Equal(t, []string{conv.ID}, agent.forgotten)

	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/conversations", "", &list))
	assert.Empty(t, list)
}

func TestSearch(t *testing.T) {
	srv := newTestServer(t, &fakeAgent{})

	var page search.Page
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/api/search", `{"query":"tenancy"}`, &page))
	require.Len(t, page.Cases, 1)
	assert.Equal(t, "tenancy", page.Cases[0].Title)

	var errBody map[string]string
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/api/search", `{"query":" "}`, &errBody))
}

func TestSubmitInactiveWidgetConflicts(t *testing.T) {
	agent := &fakeAgent{reply: payload}
	srv := newTestServer(t, agent)

	var conv store.Conversation
	do(t, srv, http.MethodPost, "/api/conversations", "", &conv)
	base := "/api/conversations/" + conv.ID

	var first addedResponse
	do(t, srv, http.MethodPost, base+"/messages", `{"text":"land"}`, &first)
	old := first.Messages[1].ID
	var sel selectionResponse
	do(t, srv, http.MethodPost, base+"/messages/"+old+"/toggle", `{"caseId":"100"}`, &sel)
	require.Equal(t, string(chat.OutcomeAdded), sel.Outcome)

	agent.reply = "plain"
	var added addedResponse
	for i := 0; i < chat.ActiveWindow/2; i++ {
		do(t, srv, http.MethodPost, base+"/messages", `{"text":"more"}`, &added)
	}
	agent.reply = payload
	do(t, srv, http.MethodPost, base+"/messages", `{"text":"again"}`, &added)
	assert.NotContains(t, added.Active, old)

	var errBody map[string]string
	assert.Equal(t, http.StatusConflict, do(t, srv, http.MethodPost, base+"/messages/"+old+"/submit", "", &errBody))
	assert.Equal(t, bot.ErrInactiveWidget.Error(), errBody["error"])
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodPost, base+"/messages/nope/submit", "", &errBody))
}

func TestSubmitActiveSelection(t *testing.T) {
	agent := &fakeAgent{reply: payload}
	srv := newTestServer(t, agent)

	var conv store.Conversation
	do(t, srv, http.MethodPost, "/api/conversations", "", &conv)
	base := "/api/conversations/" + conv.ID

	var errBody map[string]string
	assert.Equal(t, http.StatusUnprocessableEntity, do(t, srv, http.MethodPost, base+"/submit", "", &errBody))

	var added addedResponse
	do(t, srv, http.MethodPost, base+"/messages", `{"text":"land"}`, &added)
	widget := added.Messages[1].ID
	var sel selectionResponse
	do(t, srv, http.MethodPost, base+"/messages/"+widget+"/toggle", `{"caseId":"100"}`, &sel)
	do(t, srv, http.MethodPost, base+"/messages/"+widget+"/toggle", `{"caseId":"101"}`, &sel)

	agent.reply = "details"
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, base+"/submit", "", &added))
	assert.Equal(t, "Tell me more about these cases: 100, 101", added.Messages[0].Text)
}

func TestCaseDetails(t *testing.T) {
	srv := newTestServer(t, &fakeAgent{})

	var resp struct {
		CaseDetails []search.CaseDetail `json:"case_details"`
	}
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/api/case-details",
		`{"case_ids":["7821","404"],"question":"what was held?"}`, &resp))
	require.Len(t, resp.CaseDetails, 2)
	assert.Equal(t, search.CaseDetail{CaseID: "7821", Title: "Title 7821", Details: "what was held?"}, resp.CaseDetails[0])
	assert.Equal(t, "Case 404", resp.CaseDetails[1].Title)
	assert.NotEmpty(t, resp.CaseDetails[1].Error)

	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/api/case-details",
		`{"question":"Compare 076-WO-0945 and 7821"}`, &resp))
	require.Len(t, resp.CaseDetails, 2)
	assert.Equal(t, "076-WO-0945", resp.CaseDetails[0].CaseID)

	var errBody map[string]string
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/api/case-details", `{"question":"anything?"}`, &errBody))
}

func TestRenderMessagesUsesClassifiedMentions(t *testing.T) {
	listing := "1. Case No. 7821: Ram v. Nepal"
	msgs := []chat.Message{
		{ID: "b1", Sender: chat.SenderBot, Kind: chat.KindText, Text: listing},
		{ID: "b2", Sender: chat.SenderBot, Kind: chat.KindText, Text: listing,
			Mentions: []chat.Case{{ID: "7821", Title: "Ram v. Nepal"}}},
	}

	views := renderMessages(msgs, chat.ActiveSet{})

	assert.Empty(t, views[0].Mentions)
	assert.Equal(t, msgs[1].Mentions, views[1].Mentions)
}
