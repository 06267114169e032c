package chat

import (
	"fmt"
	"strings"
)

// FormatQuery turns a selection into the follow-up question sent back to the
// agent. An empty result means there is nothing to submit.
func FormatQuery(cases []Case) string {
	switch len(cases) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("Tell me more about case number %s", cases[0].ID)
	}
	ids := make([]string, len(cases))
	for i, c := range cases {
		ids[i] = c.ID
	}
	return "Tell me more about these cases: " + strings.Join(ids, ", ")
}
