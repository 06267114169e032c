package ai

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/najirlabs/najir/internal/chat"
	"github.com/najirlabs/najir/internal/metrics"
	"github.com/najirlabs/najir/internal/search"
)

const (
	// maxHistoryTurns bounds how much prior conversation reaches the model.
	maxHistoryTurns = 20
	// maxSelectedCases bounds how many selected cases one answer covers.
	maxSelectedCases = 5
	requestTimeout   = 60 * time.Second
)

// Routes the router may pick.
const (
	RouteRoot     = "root_agent"
	RouteExpert   = "najir_expert_agent"
	RouteGreeting = "greeting_agent"
	RouteFarewell = "farewell_agent"
	RouteSearch   = "case_search_agent"
	RouteSelected = "selected_cases"
)

const (
	rateLimitedReply = "You are sending messages too quickly. Please wait a minute and try again."
	troubleReply     = "I apologize, but I'm having trouble processing your request. Please try again."
	greetingFallback = "Hello! How can I help you today?"
	farewellFallback = "Goodbye! Have a great day!"
)

var routeTagRE = regexp.MustCompile(`^\s*\[(.*?)\]`)

// Request is one outgoing user message plus its context.
type Request struct {
	ConversationID  string
	Text            string
	SelectedCaseIDs []string
	History         []chat.Message
}

// Reply is the agent's raw answer; Text may be a structured case-search payload.
type Reply struct {
	Text  string
	Route string
}

type Agent struct {
	gen    Generator
	search search.Backend
	log    *zap.Logger

	ratePerMinute int
	mu            sync.Mutex
	limiters      map[string]*rate.Limiter
}

func NewAgent(gen Generator, s search.Backend, ratePerMinute int, log *zap.Logger) *Agent {
	if ratePerMinute <= 0 {
		ratePerMinute = 10
	}
	return &Agent{
		gen:           gen,
		search:        s,
		log:           log,
		ratePerMinute: ratePerMinute,
		limiters:      make(map[string]*rate.Limiter),
	}
}

// Handle answers one user message. Messages carrying selected case ids go
// straight to the selected-cases expert; everything else is routed first.
func (a *Agent) Handle(ctx context.Context, req Request) (Reply, error) {
	if !a.allowRequest(req.ConversationID) {
		metrics.AgentRequests.WithLabelValues("none", "rate_limited").Inc()
		return Reply{Text: rateLimitedReply, Route: "none"}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	if len(req.SelectedCaseIDs) > 0 {
		text, err := a.answerSelected(ctx, req)
		return a.finish(RouteSelected, text, err)
	}

	decision, err := a.gen.Generate(ctx, routerPrompt, []Turn{{Role: RoleUser, Text: req.Text}})
	if err != nil {
		return a.finish(RouteRoot, "", fmt.Errorf("routing: %w", err))
	}
	m := routeTagRE.FindStringSubmatch(decision)
	if m == nil {
		a.log.Warn("router reply without agent tag", zap.String("decision", truncate(decision, 100)))
		if strings.TrimSpace(decision) == "" {
			return a.finish(RouteRoot, troubleReply, nil)
		}
		return a.finish(RouteRoot, decision, nil)
	}
	route := strings.TrimSpace(m[1])
	a.log.Info("routed", zap.String("conversation", req.ConversationID), zap.String("route", route))

	var text string
	switch route {
	case RouteSearch:
		text, err = a.searchCases(ctx, req.Text)
	case RouteGreeting:
		text = a.generateOr(ctx, greetingPrompt, req, greetingFallback)
	case RouteFarewell:
		text = a.generateOr(ctx, farewellPrompt, req, farewellFallback)
	case RouteExpert:
		text, err = a.answerExpert(ctx, req)
	case RouteRoot:
		text, err = a.generate(ctx, rootPrompt, req)
	default:
		a.log.Warn("router picked unknown agent", zap.String("route", route))
		text = troubleReply
	}
	return a.finish(route, text, err)
}

func (a *Agent) finish(route, text string, err error) (Reply, error) {
	if err != nil {
		metrics.AgentRequests.WithLabelValues(route, "error").Inc()
		return Reply{Route: route}, err
	}
	metrics.AgentRequests.WithLabelValues(route, "ok").Inc()
	return Reply{Text: text, Route: route}, nil
}

func (a *Agent) searchCases(ctx context.Context, query string) (string, error) {
	page, err := a.search.Search(ctx, query, "")
	if err != nil {
		return "", fmt.Errorf("case search: %w", err)
	}
	a.log.Info("case search", zap.String("query", query), zap.Int("results", len(page.Cases)))
	return CaseSearchReply(query, page)
}

func (a *Agent) answerSelected(ctx context.Context, req Request) (string, error) {
	ids := req.SelectedCaseIDs
	if len(ids) > maxSelectedCases {
		a.log.Info("selected cases truncated", zap.Int("selected", len(ids)), zap.Int("max", maxSelectedCases))
		ids = ids[:maxSelectedCases]
	}
	details := a.lookupCases(ctx, ids, req.Text)
	return a.generate(ctx, BuildSelectedCasesPrompt(details), req)
}

// answerExpert grounds the expert on the records of case numbers named in
// the message, when there are any.
func (a *Agent) answerExpert(ctx context.Context, req Request) (string, error) {
	ids := chat.ExtractCaseIDs(req.Text)
	if len(ids) > maxSelectedCases {
		ids = ids[:maxSelectedCases]
	}
	var details []search.CaseDetail
	if len(ids) > 0 {
		details = a.lookupCases(ctx, ids, req.Text)
	}
	return a.generate(ctx, BuildExpertPrompt(details), req)
}

func (a *Agent) lookupCases(ctx context.Context, ids []string, question string) []search.CaseDetail {
	details := search.FetchDetails(ctx, a.search, ids, question)
	for _, d := range details {
		if d.Error != "" {
			a.log.Warn("case lookup failed", zap.String("case", d.CaseID), zap.String("error", d.Error))
		}
	}
	return details
}

func (a *Agent) generate(ctx context.Context, system string, req Request) (string, error) {
	turns := append(historyTurns(req.History), Turn{Role: RoleUser, Text: req.Text})
	text, err := a.gen.Generate(ctx, system, turns)
	if err != nil {
		return "", err
	}
	// Strip a leaked routing tag.
	text = strings.TrimSpace(routeTagRE.ReplaceAllString(text, ""))
	if text == "" {
		return troubleReply, nil
	}
	return text, nil
}

func (a *Agent) generateOr(ctx context.Context, system string, req Request, fallback string) string {
	text, err := a.generate(ctx, system, req)
	if err != nil || text == troubleReply {
		if err != nil {
			a.log.Warn("generation failed, using fallback", zap.Error(err))
		}
		return fallback
	}
	return text
}

// historyTurns converts the tail of a conversation into model turns.
// Case-search payloads are summarised instead of replayed verbatim.
func historyTurns(history []chat.Message) []Turn {
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	turns := make([]Turn, 0, len(history))
	for _, m := range history {
		switch {
		case m.Sender == chat.SenderUser:
			turns = append(turns, Turn{Role: RoleUser, Text: m.Text})
		case m.IsCaseSearch():
			ids := make([]string, len(m.Cases))
			for i, c := range m.Cases {
				ids[i] = c.ID
			}
			turns = append(turns, Turn{Role: RoleModel, Text: fmt.Sprintf("[showed case search results: %s]", strings.Join(ids, ", "))})
		default:
			turns = append(turns, Turn{Role: RoleModel, Text: m.Text})
		}
	}
	return turns
}

func (a *Agent) allowRequest(conversationID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	l, ok := a.limiters[conversationID]
	if !ok {
		l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(a.ratePerMinute)), a.ratePerMinute)
		a.limiters[conversationID] = l
	}
	return l.Allow()
}

// Forget drops the rate limiter of a deleted conversation.
func (a *Agent) Forget(conversationID string) {
	a.mu.Lock()
	delete(a.limiters, conversationID)
	a.mu.Unlock()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
