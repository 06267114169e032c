package chat

import (
	"sync"

	"go.uber.org/zap"

	"github.com/najirlabs/najir/internal/metrics"
)

// MaxSelection caps how many cases one widget can have selected.
const MaxSelection = 10

// SelectionFunc is notified after every successful toggle.
type SelectionFunc func(messageID string, selected []Case)

// Outcome describes what a toggle did.
type Outcome string

const (
	OutcomeAdded          Outcome = "added"
	OutcomeRemoved        Outcome = "removed"
	OutcomeRejectedCap    Outcome = "rejected_cap"
	OutcomeInactive       Outcome = "inactive"
	OutcomeUnknownMessage Outcome = "unknown_message"
	OutcomeUnknownCase    Outcome = "unknown_case"
)

// Changed reports whether the selection was modified.
func (o Outcome) Changed() bool {
	return o == OutcomeAdded || o == OutcomeRemoved
}

// Conversation owns an ordered message history. All access is serialised by
// one lock; messages are replaced by value, never mutated in place.
type Conversation struct {
	ID string

	mu         sync.Mutex
	messages   []Message
	classifier *Classifier
	onSelect   SelectionFunc
	log        *zap.Logger
}

func NewConversation(id string, classifier *Classifier, onSelect SelectionFunc, log *zap.Logger) *Conversation {
	if log == nil {
		log = zap.NewNop()
	}
	return &Conversation{
		ID:         id,
		classifier: classifier,
		onSelect:   onSelect,
		log:        log,
	}
}

func (c *Conversation) classify(m Message) Message {
	if m.Sender != SenderBot || m.Kind != KindUnknown {
		return m
	}
	var r Result
	if c.classifier != nil {
		r = c.classifier.Classify(m)
	} else {
		r = Classify(m.Text)
	}
	return m.withClassification(r)
}

// Append classifies bot messages and adds m to the end of the history.
func (c *Conversation) Append(m Message) Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	m = c.classify(m)
	c.messages = append(c.messages, m)
	return m
}

// Replace swaps the whole history, as on reload.
func (c *Conversation) Replace(history []Message) {
	msgs := make([]Message, len(history))
	for i, m := range history {
		if m.Sender == SenderBot {
			m.Kind = KindUnknown
		}
		msgs[i] = c.classify(m)
	}
	c.mu.Lock()
	c.messages = msgs
	c.mu.Unlock()
}

// Messages returns a snapshot of the history.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneMessages(c.messages)
}

// Message returns the message with the given id.
func (c *Conversation) Message(id string) (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.find(id); i >= 0 {
		return c.messages[i], true
	}
	return Message{}, false
}

// Active resolves the active widgets over the current history.
func (c *Conversation) Active() ActiveSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ResolveActive(c.messages)
}

// Selection returns the cases selected on a message, in selection order.
func (c *Conversation) Selection(messageID string) []Case {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.find(messageID); i >= 0 {
		return cloneCases(c.messages[i].SelectedCases)
	}
	return nil
}

// ActiveSelection returns the union of the selections of all active widgets,
// oldest widget first, without duplicates and capped at MaxSelection.
func (c *Conversation) ActiveSelection() []Case {
	c.mu.Lock()
	defer c.mu.Unlock()
	active := ResolveActive(c.messages)
	var out []Case
	for _, m := range c.messages {
		if !active.Has(m.ID) {
			continue
		}
		for _, sc := range m.SelectedCases {
			if len(out) == MaxSelection {
				return out
			}
			if indexOf(out, sc.ID) < 0 {
				out = append(out, sc)
			}
		}
	}
	return out
}

// Toggle flips cs in the selection of messageID. Inactive widgets, unknown
// cases and additions past MaxSelection leave the selection unchanged.
func (c *Conversation) Toggle(messageID string, cs Case) ([]Case, Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.find(messageID)
	if i < 0 {
		return nil, c.record(OutcomeUnknownMessage, messageID, cs)
	}
	m := c.messages[i]
	current := cloneCases(m.SelectedCases)

	if !ResolveActive(c.messages).Has(messageID) {
		return current, c.record(OutcomeInactive, messageID, cs)
	}
	ci := indexOf(m.Cases, cs.ID)
	if ci < 0 {
		return current, c.record(OutcomeUnknownCase, messageID, cs)
	}

	var (
		next    []Case
		outcome Outcome
	)
	if j := indexOf(current, cs.ID); j >= 0 {
		next = append(current[:j:j], current[j+1:]...)
		outcome = OutcomeRemoved
	} else {
		if len(current) >= MaxSelection {
			return current, c.record(OutcomeRejectedCap, messageID, cs)
		}
		next = append(current, m.Cases[ci])
		outcome = OutcomeAdded
	}

	c.messages[i] = m.withSelection(next)
	c.record(outcome, messageID, cs)
	if c.onSelect != nil {
		c.onSelect(messageID, cloneCases(next))
	}
	return cloneCases(next), outcome
}

func (c *Conversation) record(o Outcome, messageID string, cs Case) Outcome {
	metrics.Toggles.WithLabelValues(string(o)).Inc()
	if !o.Changed() {
		c.log.Info("toggle ignored",
			zap.String("conversation", c.ID),
			zap.String("message", messageID),
			zap.String("case", cs.ID),
			zap.String("outcome", string(o)))
	}
	return o
}

func (c *Conversation) find(id string) int {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].ID == id {
			return i
		}
	}
	return -1
}
