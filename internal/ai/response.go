package ai

import (
	"encoding/json"
	"fmt"

	"github.com/najirlabs/najir/internal/chat"
	"github.com/najirlabs/najir/internal/search"
)

// CaseSearchReply renders a search page as the structured message the chat
// client turns into a selectable case list.
func CaseSearchReply(query string, page *search.Page) (string, error) {
	p := chat.Payload{Type: chat.CaseSearchType}
	p.Data.Query = query
	p.Data.Cases = page.Cases
	if p.Data.Cases == nil {
		p.Data.Cases = []chat.Case{}
	}
	p.Data.TotalCount = page.TotalCount
	p.Data.NextPageToken = page.NextPageToken

	switch n := len(p.Data.Cases); {
	case n == 0:
		p.Text = fmt.Sprintf("I couldn't find any cases related to %q. Try different keywords.", query)
	case page.TotalCount > n:
		p.Text = fmt.Sprintf("Here are the top %d of %d cases related to %q. Select the ones you want to know more about.", n, page.TotalCount, query)
	default:
		p.Text = fmt.Sprintf("Here are %d cases related to %q. Select the ones you want to know more about.", n, query)
	}

	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encoding case search reply: %w", err)
	}
	return string(data), nil
}
