package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/najirlabs/najir/internal/chat"
	"github.com/najirlabs/najir/internal/metrics"
)

// PageSize is how many cases the backend returns per page.
const PageSize = 10

// Page is one page of case-search results.
type Page struct {
	Cases         []chat.Case `json:"cases"`
	TotalCount    int         `json:"totalCount"`
	NextPageToken *string     `json:"nextPageToken"`
}

type searchRequest struct {
	Query     string `json:"query"`
	PageToken string `json:"page_token,omitempty"`
	PageSize  int    `json:"page_size"`
}

type detailRequest struct {
	CaseID   string `json:"case_id"`
	Question string `json:"question,omitempty"`
}

// Searcher runs paginated case searches.
type Searcher interface {
	Search(ctx context.Context, query, pageToken string) (*Page, error)
}

// Backend is what the agent and the HTTP layer need from the search service.
type Backend interface {
	Searcher
	DetailFetcher
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Search runs a paginated case search.
// POST {base}/case-search {"query", "page_token"} -> {"cases", "totalCount", "nextPageToken"}
func (c *Client) Search(ctx context.Context, query, pageToken string) (*Page, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("search: query is required")
	}

	var page Page
	req := searchRequest{Query: query, PageToken: pageToken, PageSize: PageSize}
	if err := c.post(ctx, "search", "/case-search", req, &page); err != nil {
		return nil, err
	}
	if page.Cases == nil {
		page.Cases = []chat.Case{}
	}
	if page.TotalCount < len(page.Cases) {
		page.TotalCount = len(page.Cases)
	}
	return &page, nil
}

// CaseDetail looks up one case by number.
// POST {base}/case-details {"case_id", "question"} -> {"case_id", "title", "details"}
func (c *Client) CaseDetail(ctx context.Context, caseID, question string) (*CaseDetail, error) {
	if strings.TrimSpace(caseID) == "" {
		return nil, fmt.Errorf("case details: case id is required")
	}

	var d CaseDetail
	if err := c.post(ctx, "case_details", "/case-details", detailRequest{CaseID: caseID, Question: question}, &d); err != nil {
		return nil, err
	}
	if d.CaseID == "" {
		d.CaseID = caseID
	}
	return &d, nil
}

func (c *Client) post(ctx context.Context, op, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.SearchLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%s request: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s status %d: %s", op, resp.StatusCode, b)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", op, err)
	}
	return nil
}
