package chat

import "regexp"

var (
	// 076-WO-0945: fiscal year, case type, serial.
	nepaliCaseIDRE     = regexp.MustCompile(`\b\d{3}-[A-Z]{2}-\d{4}\b`)
	numericCaseIDRE    = regexp.MustCompile(`\b\d{3,}\b`)
	devanagariCaseIDRE = regexp.MustCompile(`[०-९]{3,}`)
)

// ExtractCaseIDs finds case numbers in free text: registration numbers like
// 076-WO-0945, then runs of three or more Arabic or Devanagari digits.
// Order of first appearance per kind is kept and duplicates dropped.
func ExtractCaseIDs(text string) []string {
	var ids []string
	seen := make(map[string]bool)
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	for _, id := range nepaliCaseIDRE.FindAllString(text, -1) {
		add(id)
	}
	rest := nepaliCaseIDRE.ReplaceAllString(text, " ")
	for _, id := range numericCaseIDRE.FindAllString(rest, -1) {
		add(id)
	}
	for _, id := range devanagariCaseIDRE.FindAllString(rest, -1) {
		add(id)
	}
	return ids
}
