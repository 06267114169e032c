package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/najirlabs/najir/internal/chat"
	"github.com/najirlabs/najir/internal/store"
)

var ErrConversationNotFound = errors.New("conversation not found")

// Manager keeps live conversations loaded from the store and serializes the
// send pipeline per conversation. Different conversations run in parallel.
type Manager struct {
	store      store.Store
	classifier *chat.Classifier
	log        *zap.Logger

	mu    sync.Mutex
	convs map[string]*entry
}

type entry struct {
	mu       sync.Mutex
	conv     *chat.Conversation
	lastUsed time.Time
}

func NewManager(s store.Store, classifier *chat.Classifier, log *zap.Logger) *Manager {
	return &Manager{
		store:      s,
		classifier: classifier,
		log:        log,
		convs:      make(map[string]*entry),
	}
}

// Get returns the live conversation, loading its history on first use.
func (m *Manager) Get(id string) (*chat.Conversation, error) {
	e, err := m.entry(id)
	if err != nil {
		return nil, err
	}
	return e.conv, nil
}

// WithLock executes fn while holding the conversation's send lock.
func (m *Manager) WithLock(id string, fn func(c *chat.Conversation) error) error {
	e, err := m.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.conv)
}

// Toggle flips a case selection under the conversation's lock, so the
// write-through save never races a Persist of an older snapshot.
func (m *Manager) Toggle(id, messageID string, cs chat.Case) ([]chat.Case, chat.Outcome, error) {
	var (
		selected []chat.Case
		outcome  chat.Outcome
	)
	err := m.WithLock(id, func(c *chat.Conversation) error {
		selected, outcome = c.Toggle(messageID, cs)
		return nil
	})
	return selected, outcome, err
}

// Persist writes the conversation's current history to the store.
func (m *Manager) Persist(c *chat.Conversation) error {
	if err := m.store.SaveMessages(c.ID, c.Messages()); err != nil {
		return fmt.Errorf("saving messages for %s: %w", c.ID, err)
	}
	return nil
}

// Reload replaces the live history with what the store holds.
func (m *Manager) Reload(id string) (*chat.Conversation, error) {
	e, err := m.entry(id)
	if err != nil {
		return nil, err
	}
	msgs, err := m.store.GetMessages(id)
	if err != nil {
		return nil, fmt.Errorf("loading messages for %s: %w", id, err)
	}
	e.conv.Replace(msgs)
	return e.conv, nil
}

// Forget drops a live conversation, e.g. after deletion.
func (m *Manager) Forget(id string) {
	m.mu.Lock()
	e, ok := m.convs[id]
	delete(m.convs, id)
	m.mu.Unlock()
	if ok {
		m.forgetClassifications(e.conv)
	}
}

// Cleanup evicts conversations not used within maxAge.
func (m *Manager) Cleanup(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for id, e := range m.convs {
		if now.Sub(e.lastUsed) > maxAge {
			delete(m.convs, id)
		}
	}
}

func (m *Manager) entry(id string) (*entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.convs[id]; ok {
		e.lastUsed = time.Now()
		return e, nil
	}

	meta, err := m.store.GetConversation(id)
	if err != nil {
		return nil, fmt.Errorf("loading conversation %s: %w", id, err)
	}
	if meta == nil {
		return nil, ErrConversationNotFound
	}
	msgs, err := m.store.GetMessages(id)
	if err != nil {
		return nil, fmt.Errorf("loading messages for %s: %w", id, err)
	}

	e := &entry{lastUsed: time.Now()}
	e.conv = chat.NewConversation(id, m.classifier, m.persistSelection(id), m.log.Named("conversation"))
	e.conv.Replace(msgs)
	m.convs[id] = e
	return e, nil
}

// persistSelection writes each toggle through to the store. It runs while the
// conversation holds its lock, so it patches the stored copy instead of
// reading the conversation.
func (m *Manager) persistSelection(id string) chat.SelectionFunc {
	return func(messageID string, selected []chat.Case) {
		msgs, err := m.store.GetMessages(id)
		if err != nil {
			m.log.Error("load history for selection", zap.String("conversation", id), zap.Error(err))
			return
		}
		for i := range msgs {
			if msgs[i].ID == messageID {
				msgs[i].SelectedCases = selected
				break
			}
		}
		if err := m.store.SaveMessages(id, msgs); err != nil {
			m.log.Error("save selection", zap.String("conversation", id), zap.Error(err))
		}
	}
}

func (m *Manager) forgetClassifications(c *chat.Conversation) {
	msgs := c.Messages()
	ids := make([]string, len(msgs))
	for i, msg := range msgs {
		ids[i] = msg.ID
	}
	m.classifier.Forget(ids...)
}
