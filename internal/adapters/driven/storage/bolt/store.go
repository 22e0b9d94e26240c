// Package bolt keeps session history in a single bbolt file.
//
// Every session is a nested bucket under "sessions". Keys are big-endian
// ordinals so a cursor walks turns oldest first; values are JSON.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
)

// FileName is the database file created inside the data directory.
const FileName = "conversations.bolt"

var sessionsBucket = []byte("sessions")

// Ensure ConversationStore implements the interface.
var _ driven.ConversationStore = (*ConversationStore)(nil)

// ConversationStore is a bbolt-backed driven.ConversationStore.
type ConversationStore struct {
	db *bolt.DB
}

type turnRecord struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"ts"`
}

// NewConversationStore opens (or creates) the database in dataDir.
func NewConversationStore(dataDir string) (*ConversationStore, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: creating data directory: %w", domain.ErrStorage, err)
	}

	db, err := bolt.Open(filepath.Join(dataDir, FileName), 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: opening bolt database: %w", domain.ErrStorage, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionsBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: creating sessions bucket: %w", domain.ErrStorage, err)
	}

	return &ConversationStore{db: db}, nil
}

// Append records turns, all in one transaction.
func (s *ConversationStore) Append(_ context.Context, turns ...domain.ConversationTurn) error {
	if len(turns) == 0 {
		return nil
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(sessionsBucket)
		for _, t := range turns {
			b, err := root.CreateBucketIfNotExists([]byte(t.SessionID))
			if err != nil {
				return err
			}
			enc, err := json.Marshal(turnRecord{Role: string(t.Role), Text: t.Text, Timestamp: t.Timestamp})
			if err != nil {
				return err
			}
			if err := b.Put(ordinalKey(t.Ordinal), enc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: saving turns: %w", domain.ErrStorage, err)
	}
	return nil
}

// Load returns a session's turns, oldest first.
func (s *ConversationStore) Load(_ context.Context, sessionID string) ([]domain.ConversationTurn, error) {
	var turns []domain.ConversationTurn
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionsBucket).Bucket([]byte(sessionID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var rec turnRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decoding turn %d: %w", binary.BigEndian.Uint64(k), err)
			}
			turns = append(turns, domain.ConversationTurn{
				SessionID: sessionID,
				Role:      domain.Role(rec.Role),
				Text:      rec.Text,
				Timestamp: rec.Timestamp,
				Ordinal:   int64(binary.BigEndian.Uint64(k)),
			})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: loading turns: %w", domain.ErrStorage, err)
	}
	return turns, nil
}

// DeleteBefore removes a session's turns with an ordinal below the given one.
func (s *ConversationStore) DeleteBefore(_ context.Context, sessionID string, ordinal int64) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionsBucket).Bucket([]byte(sessionID))
		if b == nil {
			return nil
		}
		limit := ordinalKey(ordinal)
		c := b.Cursor()
		// Deleting through the cursor keeps its position valid.
		for k, _ := c.First(); k != nil && string(k) < string(limit); k, _ = c.First() {
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: deleting turns: %w", domain.ErrStorage, err)
	}
	return nil
}

// Sessions lists the ids of stored sessions, sorted.
func (s *ConversationStore) Sessions(_ context.Context) ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).ForEachBucket(func(k []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: listing sessions: %w", domain.ErrStorage, err)
	}
	return ids, nil
}

// Close closes the database file.
func (s *ConversationStore) Close() error {
	return s.db.Close()
}

func ordinalKey(ordinal int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(ordinal))
	return key
}
