package chat

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// CaseSearchType is the sentinel "type" of a structured case-search payload.
const CaseSearchType = "CASE_SEARCH_RESULTS"

// Payload is the structured case-search message produced by the agent.
type Payload struct {
	Type string      `json:"type"`
	Text string      `json:"text,omitempty"`
	Data PayloadData `json:"data"`
}

type PayloadData struct {
	Cases         []Case  `json:"cases"`
	Query         string  `json:"query,omitempty"`
	TotalCount    int     `json:"totalCount,omitempty"`
	NextPageToken *string `json:"nextPageToken"`
}

// Extractor tries to recover a case-search payload from raw message text.
type Extractor func(text string) (*Payload, bool)

// Extractors is the ordered chain Classify walks; the first hit wins.
var Extractors = []Extractor{
	extractDirect,
	extractFenced,
	extractEscaped,
	extractEmbedded,
}

var fencedBlockRE = regexp.MustCompile("(?s)```(?:json|JSON)?[ \\t]*\\r?\\n?(.*?)```")

// wirePayload is the loose decoding target: cases may carry non-string ids
// or missing fields, and "cases" must be checked to actually be an array.
type wirePayload struct {
	Type string `json:"type"`
	Text any    `json:"text"`
	Data *struct {
		Cases         json.RawMessage `json:"cases"`
		Query         any             `json:"query"`
		TotalCount    any             `json:"totalCount"`
		NextPageToken any             `json:"nextPageToken"`
	} `json:"data"`
}

// extractDirect parses text as a payload object.
func extractDirect(text string) (*Payload, bool) {
	var w wirePayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &w); err != nil {
		return nil, false
	}
	if w.Type != CaseSearchType || w.Data == nil {
		return nil, false
	}
	raw := bytes.TrimSpace(w.Data.Cases)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, false
	}
	var entries []any
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, false
	}

	p := &Payload{Type: w.Type, Text: stringify(w.Text)}
	p.Data.Cases = make([]Case, 0, len(entries))
	for _, e := range entries {
		fields, _ := e.(map[string]any)
		p.Data.Cases = append(p.Data.Cases, Case{
			ID:      stringify(fields["id"]),
			Title:   stringify(fields["title"]),
			Summary: stringify(fields["summary"]),
		})
	}
	p.Data.Query = stringify(w.Data.Query)
	if n, ok := w.Data.TotalCount.(float64); ok {
		p.Data.TotalCount = int(n)
	}
	if tok, ok := w.Data.NextPageToken.(string); ok {
		p.Data.NextPageToken = &tok
	}
	return p, true
}

// extractFenced looks inside markdown code fences, optionally tagged json.
func extractFenced(text string) (*Payload, bool) {
	for _, m := range fencedBlockRE.FindAllStringSubmatch(text, -1) {
		if p, ok := extractDirect(m[1]); ok {
			return p, true
		}
	}
	return nil, false
}

// extractEscaped handles a payload that was serialised a second time as a
// JSON string literal.
func extractEscaped(text string) (*Payload, bool) {
	t := strings.TrimSpace(text)
	if len(t) < 2 || t[0] != '"' || t[len(t)-1] != '"' {
		return nil, false
	}
	var inner string
	if err := json.Unmarshal([]byte(t), &inner); err != nil {
		inner = strings.ReplaceAll(t[1:len(t)-1], `\"`, `"`)
	}
	if p, ok := extractDirect(inner); ok {
		return p, true
	}
	return extractFenced(inner)
}

// extractEmbedded scans for the smallest balanced {...} spans that mention
// "type" and tries each in order of appearance.
func extractEmbedded(text string) (*Payload, bool) {
	if !strings.Contains(text, `"type"`) {
		return nil, false
	}
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := matchBrace(text, start); end > start {
			candidate := text[start : end+1]
			if strings.Contains(candidate, `"type"`) {
				if p, ok := extractDirect(candidate); ok {
					return p, true
				}
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, false
}

// matchBrace returns the index of the brace closing the one at start,
// ignoring braces inside JSON strings, or -1.
func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
