package web

import (
	"sort"
	"time"

	"github.com/najirlabs/najir/internal/chat"
	"github.com/najirlabs/najir/internal/store"
)

// messageView is the wire shape of a rendered message. Cases is present for
// every case-search message, empty or not; Active only for widgets.
type messageView struct {
	ID            string       `json:"id"`
	Sender        chat.Sender  `json:"sender"`
	Text          string       `json:"text"`
	Timestamp     time.Time    `json:"timestamp"`
	Kind          chat.Kind    `json:"kind"`
	Intro         string       `json:"intro,omitempty"`
	Cases         *[]chat.Case `json:"cases,omitempty"`
	SelectedCases []chat.Case  `json:"selectedCases,omitempty"`
	Widget        bool         `json:"widget"`
	Active        bool         `json:"active"`
	Mentions      []chat.Case  `json:"mentions,omitempty"`
}

type conversationView struct {
	store.Conversation
	Messages []messageView `json:"messages"`
}

func renderMessages(msgs []chat.Message, active chat.ActiveSet) []messageView {
	out := make([]messageView, len(msgs))
	for i, m := range msgs {
		v := messageView{
			ID:            m.ID,
			Sender:        m.Sender,
			Text:          m.Text,
			Timestamp:     m.Timestamp,
			Kind:          m.Kind,
			Intro:         m.Intro,
			SelectedCases: m.SelectedCases,
			Widget:        m.IsWidget(),
			Active:        active.Has(m.ID),
		}
		if m.IsCaseSearch() {
			cases := nonNil(m.Cases)
			v.Cases = &cases
			v.Text = ""
		} else {
			v.Mentions = m.Mentions
		}
		out[i] = v
	}
	return out
}

func activeIDs(active chat.ActiveSet) []string {
	ids := make([]string, 0, len(active))
	for id := range active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
