package boltstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/suPer8Hu/gemini-chat/internal/chat"
	bolt "go.etcd.io/bbolt"
)

var chatsBucket = []byte("chats")

var _ chat.HistoryStore = (*Store)(nil)

// Store keeps one JSON document per identity in a bbolt file. bbolt runs a
// single writer at a time, so each append is atomic.
type Store struct {
	db *bolt.DB
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(chatsBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) AppendTurns(ctx context.Context, identity string, turns []chat.Turn) error {
	if identity == "" {
		return chat.ErrNoIdentity
	}
	if len(turns) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(chatsBucket)
		now := time.Now().UTC()

		doc := chat.Document{UserEmail: identity, CreatedAt: now}
		if v := b.Get([]byte(identity)); v != nil {
			if err := json.Unmarshal(v, &doc); err != nil {
				return err
			}
		}
		doc.Messages = append(doc.Messages, turns...)
		doc.UpdatedAt = now

		out, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		return b.Put([]byte(identity), out)
	})
}

func (s *Store) LoadHistory(ctx context.Context, identity string) ([]chat.Turn, error) {
	doc, err := s.GetDocument(ctx, identity)
	if err != nil {
		return nil, err
	}
	return doc.Messages, nil
}

func (s *Store) GetDocument(ctx context.Context, identity string) (*chat.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc := &chat.Document{UserEmail: identity}
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(chatsBucket).Get([]byte(identity))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, doc)
	})
	if err != nil {
		return nil, err
	}
	if doc.Messages == nil {
		doc.Messages = []chat.Turn{}
	}
	return doc, nil
}
