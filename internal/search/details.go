package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// MaxDetailCases bounds one details request.
	MaxDetailCases = 10
	detailWorkers  = 3
	detailTimeout  = 15 * time.Second
)

// CaseDetail is the looked-up record of one case. Error is set when the
// lookup failed; Title and Details then hold placeholders.
type CaseDetail struct {
	CaseID  string `json:"case_id"`
	Title   string `json:"title"`
	Details string `json:"details"`
	Error   string `json:"error,omitempty"`
}

// DetailFetcher looks up a single case.
type DetailFetcher interface {
	CaseDetail(ctx context.Context, caseID, question string) (*CaseDetail, error)
}

// FetchDetails looks up caseIDs with at most three lookups in flight. Results
// keep the order of caseIDs and a failed lookup never fails the batch.
func FetchDetails(ctx context.Context, f DetailFetcher, caseIDs []string, question string) []CaseDetail {
	if len(caseIDs) > MaxDetailCases {
		caseIDs = caseIDs[:MaxDetailCases]
	}
	out := make([]CaseDetail, len(caseIDs))

	var g errgroup.Group
	g.SetLimit(detailWorkers)
	for i, id := range caseIDs {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, detailTimeout)
			defer cancel()

			d, err := f.CaseDetail(cctx, id, question)
			if err != nil {
				out[i] = failedDetail(id, err)
				return nil
			}
			out[i] = normalizeDetail(id, d)
			return nil
		})
	}
	g.Wait()
	return out
}

func normalizeDetail(id string, d *CaseDetail) CaseDetail {
	if d == nil {
		return CaseDetail{CaseID: id, Title: "Case " + id, Details: fmt.Sprintf("Information for case %s not available", id)}
	}
	out := *d
	out.CaseID = id
	if out.Title == "" {
		out.Title = "Case " + id
	}
	if out.Details == "" {
		out.Details = fmt.Sprintf("Information for case %s not available", id)
	}
	return out
}

func failedDetail(id string, err error) CaseDetail {
	d := CaseDetail{CaseID: id, Title: "Case " + id, Error: err.Error()}
	if errors.Is(err, context.DeadlineExceeded) {
		d.Details = "Timed out while retrieving information. This case may be unavailable."
	} else {
		d.Details = "Information for this case could not be retrieved."
	}
	return d
}
