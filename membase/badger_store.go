package membase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/NethermindEth/eternalgov/storage"
	"github.com/google/uuid"
)

// BadgerStore persists collections in BadgerDB under keys "mb:<collection>:<seq>"
type BadgerStore struct {
	db storage.Storage
}

func NewBadgerStore(db storage.Storage) *BadgerStore {
	return &BadgerStore{db: db}
}

func collectionPrefix(collection string) string {
	return fmt.Sprintf("mb:%s:", collection)
}

func (s *BadgerStore) Write(ctx context.Context, collection string, rec Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	rec = rec.clone()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	seq, err := s.db.NextSequence("mb:" + collection)
	if err != nil {
		return "", err
	}
	rec.Seq = seq + 1
	rec.Collection = collection

	// zero-padded so key order matches write order
	key := fmt.Sprintf("%s%020d", collectionPrefix(collection), rec.Seq)
	if err := s.db.PutObject(key, rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

func (s *BadgerStore) List(ctx context.Context, collection string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []Record
	err := s.db.Scan(collectionPrefix(collection), func(_ string, value []byte) error {
		var rec Record
		if err := json.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("failed to decode record: %w", err)
		}
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) Search(ctx context.Context, collection, query string, k int) ([]Hit, error) {
	records, err := s.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	return Rank(records, query, k), nil
}

func (s *BadgerStore) Count(ctx context.Context, collection string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	n := 0
	err := s.db.Scan(collectionPrefix(collection), func(string, []byte) error {
		n++
		return nil
	})
	return n, err
}
