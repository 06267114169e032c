package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/najirlabs/najir/internal/chat"
)

var (
	conversationsBucket = []byte("conversations")
	messagesBucket      = []byte("messages")
)

// Conversation is the metadata of one chat thread.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Store interface {
	SaveConversation(c Conversation) error
	GetConversation(id string) (*Conversation, error)
	ListConversations() ([]Conversation, error)
	DeleteConversation(id string) error
	GetMessages(conversationID string) ([]chat.Message, error)
	SaveMessages(conversationID string, msgs []chat.Message) error
	Close() error
}

type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(conversationsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(messagesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) SaveConversation(c Conversation) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(c)
		if err != nil {
			return err
		}
		return tx.Bucket(conversationsBucket).Put([]byte(c.ID), data)
	})
}

// GetConversation returns nil without error when the conversation does not exist.
func (s *BoltStore) GetConversation(id string) (*Conversation, error) {
	var c Conversation
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(conversationsBucket).Get([]byte(id))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &c)
	})
	if err != nil {
		return nil, err
	}
	if c.ID == "" {
		return nil, nil
	}
	return &c, nil
}

// ListConversations returns all conversations, most recently updated first.
func (s *BoltStore) ListConversations() ([]Conversation, error) {
	var out []Conversation
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(conversationsBucket).ForEach(func(_, v []byte) error {
			var c Conversation
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			out = append(out, c)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *BoltStore) DeleteConversation(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(messagesBucket).Delete([]byte(id)); err != nil {
			return err
		}
		return tx.Bucket(conversationsBucket).Delete([]byte(id))
	})
}

func (s *BoltStore) GetMessages(conversationID string) ([]chat.Message, error) {
	var msgs []chat.Message
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(messagesBucket).Get([]byte(conversationID))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &msgs)
	})
	return msgs, err
}

// SaveMessages replaces the stored history and bumps the conversation's UpdatedAt.
func (s *BoltStore) SaveMessages(conversationID string, msgs []chat.Message) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(msgs)
		if err != nil {
			return err
		}
		if err := tx.Bucket(messagesBucket).Put([]byte(conversationID), data); err != nil {
			return err
		}

		convs := tx.Bucket(conversationsBucket)
		v := convs.Get([]byte(conversationID))
		if v == nil {
			return nil
		}
		var c Conversation
		if err := json.Unmarshal(v, &c); err != nil {
			return err
		}
		c.UpdatedAt = time.Now()
		meta, err := json.Marshal(c)
		if err != nil {
			return err
		}
		return convs.Put([]byte(conversationID), meta)
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
