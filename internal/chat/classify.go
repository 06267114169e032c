package chat

import (
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/najirlabs/najir/internal/metrics"
)

// DefaultIntro is used when a case-search payload carries no text.
const DefaultIntro = "Here are the cases I found:"

// Result is the classifier's verdict for one message text.
type Result struct {
	IsCaseSearch  bool
	Cases         []Case
	IntroText     string
	Query         string
	TotalCount    int
	NextPageToken string

	// Mentions holds cases recognised in a plain-text listing. It never
	// turns a message into a case-search message.
	Mentions []Case
}

// Classify decides whether text encodes structured case-search results.
// Every extraction failure falls through to the next strategy; the final
// fallback is plain text.
func Classify(text string) Result {
	for _, extract := range Extractors {
		p, ok := extract(text)
		if !ok {
			continue
		}
		r := Result{
			IsCaseSearch: true,
			Cases:        p.Data.Cases,
			IntroText:    firstLine(p.Text),
			Query:        p.Data.Query,
			TotalCount:   p.Data.TotalCount,
		}
		if r.IntroText == "" {
			r.IntroText = DefaultIntro
		}
		if p.Data.NextPageToken != nil {
			r.NextPageToken = *p.Data.NextPageToken
		}
		return r
	}
	return Result{Mentions: ParseCaseListing(text)}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// Classifier memoises Classify per message id so re-renders never re-parse.
type Classifier struct {
	cache *cache.Cache
}

func NewClassifier(ttl time.Duration) *Classifier {
	return &Classifier{cache: cache.New(ttl, ttl/6)}
}

// Classify returns the cached result for m.ID, computing it on first use.
func (c *Classifier) Classify(m Message) Result {
	if x, found := c.cache.Get(m.ID); found {
		metrics.Classifications.WithLabelValues("cached").Inc()
		return x.(Result)
	}
	r := Classify(m.Text)
	outcome := "text"
	if r.IsCaseSearch {
		outcome = "case_search"
	}
	metrics.Classifications.WithLabelValues(outcome).Inc()
	c.cache.Set(m.ID, r, cache.DefaultExpiration)
	return r
}

// Forget drops the memoised results for the given message ids.
func (c *Classifier) Forget(ids ...string) {
	for _, id := range ids {
		c.cache.Delete(id)
	}
}
