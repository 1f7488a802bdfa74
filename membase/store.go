package membase

import (
	"context"
	"encoding/json"
	"time"
)

// Record is one entry of a knowledge-store collection
type Record struct {
	ID         string            `json:"id"`
	Collection string            `json:"collection"`
	Seq        uint64            `json:"seq"`
	Content    string            `json:"content"`
	Data       json.RawMessage   `json:"data"`
	Tags       map[string]string `json:"tags,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Hit is a search result with its relevance score in [0, 1]
type Hit struct {
	Record
	Score float64 `json:"score"`
}

// Store is the knowledge-store capability the memory layers are built on.
// Collections are append-only; List returns records in write order.
type Store interface {
	Write(ctx context.Context, collection string, rec Record) (string, error)
	Search(ctx context.Context, collection, query string, k int) ([]Hit, error)
	List(ctx context.Context, collection string) ([]Record, error)
	Count(ctx context.Context, collection string) (int, error)
}

// NewRecord builds a record from a JSON-serialisable payload
func NewRecord(content string, payload interface{}, tags map[string]string) (Record, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Record{}, err
	}
	return Record{Content: content, Data: data, Tags: tags}, nil
}

// Decode unmarshals the record payload into v
func (r Record) Decode(v interface{}) error {
	return json.Unmarshal(r.Data, v)
}

func (r Record) clone() Record {
	out := r
	if r.Data != nil {
		out.Data = append(json.RawMessage(nil), r.Data...)
	}
	if r.Tags != nil {
		out.Tags = make(map[string]string, len(r.Tags))
		for k, v := range r.Tags {
			out.Tags[k] = v
		}
	}
	return out
}
