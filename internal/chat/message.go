package chat

import "time"

type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Kind records the classifier's verdict for a message. User messages and
// bot messages that were never classified carry KindUnknown.
type Kind string

const (
	KindUnknown    Kind = ""
	KindText       Kind = "text"
	KindCaseSearch Kind = "case_search"
)

// Case is a single legal case returned by search. Identity is ID.
type Case struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// Message is one entry of a conversation history. Values are treated as
// immutable: mutations produce a new Message that replaces the old one.
type Message struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`

	Kind          Kind   `json:"kind,omitempty"`
	Intro         string `json:"intro,omitempty"`
	Cases         []Case `json:"cases,omitempty"`
	SelectedCases []Case `json:"selectedCases,omitempty"`

	// Mentions are cases recognised in a plain-text bot reply.
	Mentions []Case `json:"mentions,omitempty"`
}

// IsCaseSearch reports whether the message was classified as a case-search result.
func (m Message) IsCaseSearch() bool {
	return m.Kind == KindCaseSearch
}

// IsWidget reports whether the message renders a selectable case list.
// Case-search messages with zero results render an empty list and never
// accept selections.
func (m Message) IsWidget() bool {
	return m.Sender == SenderBot && m.Kind == KindCaseSearch && len(m.Cases) > 0
}

// HasCase reports whether id is one of the message's cases.
func (m Message) HasCase(id string) bool {
	return indexOf(m.Cases, id) >= 0
}

// IsSelected reports whether id is currently selected on the message.
func (m Message) IsSelected(id string) bool {
	return indexOf(m.SelectedCases, id) >= 0
}

func (m Message) withClassification(r Result) Message {
	out := m
	out.Kind = KindText
	out.Intro = ""
	out.Cases = nil
	out.SelectedCases = nil
	out.Mentions = cloneCases(r.Mentions)
	if r.IsCaseSearch {
		out.Kind = KindCaseSearch
		out.Intro = r.IntroText
		out.Cases = cloneCases(r.Cases)
		if out.Cases == nil {
			out.Cases = []Case{}
		}
		// Keep whatever selection survived a reload, restricted to the cases.
		for _, c := range m.SelectedCases {
			if i := indexOf(out.Cases, c.ID); i >= 0 && !out.IsSelected(c.ID) {
				out.SelectedCases = append(out.SelectedCases, out.Cases[i])
			}
		}
	}
	return out
}

func (m Message) withSelection(selected []Case) Message {
	out := m
	out.SelectedCases = cloneCases(selected)
	return out
}

func indexOf(cases []Case, id string) int {
	for i, c := range cases {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func cloneCases(cases []Case) []Case {
	if cases == nil {
		return nil
	}
	out := make([]Case, len(cases))
	copy(out, cases)
	return out
}

func cloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
