package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/NethermindEth/eternalgov/membase"
)

// Knowledge-store collections backing each layer
const (
	CollectionProposals   = "proposals"
	CollectionSentiment   = "sentiment"
	CollectionPreferences = "preferences"
	CollectionOutcomes    = "outcomes"
)

// DefaultBlendAlpha is the weight given to a new preference signal
const DefaultBlendAlpha = 0.3

// Layers groups the four memory layers over one knowledge store
type Layers struct {
	Proposals   *ProposalMemory
	Sentiment   *SentimentMemory
	Preferences *PreferenceMemory
	Outcomes    *OutcomeMemory
}

// New wires every layer to the same store
func New(store membase.Store, alpha float64) *Layers {
	proposals := NewProposalMemory(store)
	return &Layers{
		Proposals:   proposals,
		Sentiment:   NewSentimentMemory(store, proposals),
		Preferences: NewPreferenceMemory(store, alpha),
		Outcomes:    NewOutcomeMemory(store, proposals),
	}
}

// Counts returns the number of records per layer
type Counts struct {
	Proposals   int `json:"proposals"`
	Sentiment   int `json:"sentiment"`
	Preferences int `json:"preferences"`
	Outcomes    int `json:"outcomes"`
}

func (l *Layers) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	var err error
	if c.Proposals, err = l.Proposals.Count(ctx); err != nil {
		return c, err
	}
	if c.Sentiment, err = l.Sentiment.Count(ctx); err != nil {
		return c, err
	}
	if c.Preferences, err = l.Preferences.Count(ctx); err != nil {
		return c, err
	}
	if c.Outcomes, err = l.Outcomes.Count(ctx); err != nil {
		return c, err
	}
	return c, nil
}

type versioned[T any] struct {
	value T
	seq   uint64
}

func loadAll[T any](ctx context.Context, store membase.Store, collection string) ([]versioned[T], error) {
	recs, err := store.List(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	out := make([]versioned[T], 0, len(recs))
	for _, r := range recs {
		var v T
		if err := r.Decode(&v); err != nil {
			return nil, fmt.Errorf("failed to decode %s record %s: %w", collection, r.ID, err)
		}
		out = append(out, versioned[T]{value: v, seq: r.Seq})
	}
	return out, nil
}

// latestBy keeps the last written version for each key
func latestBy[T any](items []versioned[T], key func(T) string) []versioned[T] {
	idx := make(map[string]int)
	var out []versioned[T]
	for _, it := range items {
		k := key(it.value)
		if i, ok := idx[k]; ok {
			if it.seq > out[i].seq {
				out[i] = it
			}
			continue
		}
		idx[k] = len(out)
		out = append(out, it)
	}
	return out
}

// newestFirst orders by timestamp, then by write order, both descending
func newestFirst[T any](items []versioned[T], at func(T) time.Time) []T {
	sort.SliceStable(items, func(i, j int) bool {
		ti, tj := at(items[i].value), at(items[j].value)
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return items[i].seq > items[j].seq
	})
	out := make([]T, len(items))
	for i, it := range items {
		out[i] = it.value
	}
	return out
}

func write(ctx context.Context, store membase.Store, collection, id, content string, payload interface{}, tags map[string]string) (string, error) {
	rec, err := membase.NewRecord(content, payload, tags)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s record: %w", collection, err)
	}
	rec.ID = id
	id, err = store.Write(ctx, collection, rec)
	if err != nil {
		return "", fmt.Errorf("failed to write %s record: %w", collection, err)
	}
	return id, nil
}
