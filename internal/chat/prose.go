package chat

import (
	"regexp"
	"strings"
)

// Listing lines the agent used to emit before structured payloads existed:
//
//	1. Case No. 7821: Ram Bahadur v. Government of Nepal
//	- **Case 7821** - Ram Bahadur v. Government of Nepal
//	Case Number: 7821, Title: Ram Bahadur v. Government of Nepal
//
// The id must look like a case number: 076-WO-0945 or a token with a digit.
var (
	numberedCaseRE = regexp.MustCompile(`(?im)^\s*(?:\d+[.)]|[-*•])?\s*\**\s*case\b\s*(?:no\.?|number|#)?\s*:?\s*(` + caseNumberPattern + `)\**\s*[:\-–]\s*\**(.+?)\**\s*$`)
	keyedCaseRE    = regexp.MustCompile(`(?im)\bcase\s+number\s*:\s*(` + caseNumberPattern + `)\s*,?\s*title\s*:\s*(.+?)\s*$`)
)

const caseNumberPattern = `\d{3}-[A-Za-z]{2}-\d{4}|[A-Za-z]*\d[\w/-]*`

// ParseCaseListing recovers cases from a human-readable listing. It is best
// effort and returns nil when nothing looks like a listing.
func ParseCaseListing(text string) []Case {
	var out []Case
	seen := make(map[string]bool)
	add := func(id, title string) {
		id = strings.TrimSpace(id)
		title = strings.Trim(strings.TrimSpace(title), "*")
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, Case{ID: id, Title: strings.TrimSpace(title)})
	}
	for _, m := range keyedCaseRE.FindAllStringSubmatch(text, -1) {
		add(m[1], m[2])
	}
	if len(out) > 0 {
		return out
	}
	for _, m := range numberedCaseRE.FindAllStringSubmatch(text, -1) {
		add(m[1], m[2])
	}
	return out
}
