package membase

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a local in-process Store
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]Record
	seq         uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string][]Record)}
}

func (s *MemoryStore) Write(ctx context.Context, collection string, rec Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec = rec.clone()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.seq++
	rec.Seq = s.seq
	rec.Collection = collection
	s.collections[collection] = append(s.collections[collection], rec)
	return rec.ID, nil
}

func (s *MemoryStore) List(ctx context.Context, collection string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.collections[collection]
	out := make([]Record, len(src))
	for i, r := range src {
		out[i] = r.clone()
	}
	return out, nil
}

func (s *MemoryStore) Search(ctx context.Context, collection, query string, k int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return Rank(s.collections[collection], query, k), nil
}

func (s *MemoryStore) Count(ctx context.Context, collection string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.collections[collection]), nil
}
