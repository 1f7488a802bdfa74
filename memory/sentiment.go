package memory

import (
	"context"
	"iter"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/NethermindEth/eternalgov/core"
	"github.com/NethermindEth/eternalgov/membase"
	"github.com/google/uuid"
)

// SentimentFilter selects sentiment samples; zero fields match everything
type SentimentFilter struct {
	DAO        string
	ProposalID string
	Source     string
}

func (f SentimentFilter) match(r core.SentimentRecord) bool {
	if f.DAO != "" && !strings.EqualFold(f.DAO, r.DAO) {
		return false
	}
	if f.ProposalID != "" && f.ProposalID != r.ProposalID {
		return false
	}
	if f.Source != "" && !strings.EqualFold(f.Source, r.Source) {
		return false
	}
	return true
}

// TopicCount is how often a topic was mentioned across samples
type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// SentimentMemory stores community opinion samples per proposal
type SentimentMemory struct {
	store     membase.Store
	proposals *ProposalMemory
}

func NewSentimentMemory(store membase.Store, proposals *ProposalMemory) *SentimentMemory {
	return &SentimentMemory{store: store, proposals: proposals}
}

// Store appends a sentiment sample for an existing proposal
func (m *SentimentMemory) Store(ctx context.Context, r core.SentimentRecord) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	ok, err := m.proposals.Exists(ctx, r.DAO, r.ProposalID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", core.NewValidationError("sentiment", "proposal_id", "references an unknown proposal "+core.ProposalKey(r.DAO, r.ProposalID))
	}
	if r.CollectedAt.IsZero() {
		r.CollectedAt = time.Now().UTC()
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	return write(ctx, m.store, CollectionSentiment, r.ID, strings.Join(r.Topics, " "), r, map[string]string{
		"dao":      strings.ToLower(r.DAO),
		"proposal": r.ProposalID,
		"source":   r.Source,
	})
}

func (m *SentimentMemory) list(ctx context.Context, filter SentimentFilter) ([]core.SentimentRecord, error) {
	all, err := loadAll[core.SentimentRecord](ctx, m.store, CollectionSentiment)
	if err != nil {
		return nil, err
	}
	matched := all[:0]
	for _, it := range all {
		if filter.match(it.value) {
			matched = append(matched, it)
		}
	}
	return newestFirst(matched, func(r core.SentimentRecord) time.Time { return r.CollectedAt }), nil
}

// Query returns matching samples, newest first. The collection is read
// and filtered before Query returns; the sequence walks that snapshot.
func (m *SentimentMemory) Query(ctx context.Context, filter SentimentFilter) (iter.Seq[core.SentimentRecord], error) {
	records, err := m.list(ctx, filter)
	if err != nil {
		return nil, err
	}
	return slices.Values(records), nil
}

// Consensus aggregates the volume-weighted polarity of a proposal.
// Samples is zero when nothing has been recorded.
func (m *SentimentMemory) Consensus(ctx context.Context, dao, proposalID string) (core.SentimentConsensus, error) {
	records, err := m.list(ctx, SentimentFilter{DAO: dao, ProposalID: proposalID})
	if err != nil {
		return core.SentimentConsensus{}, err
	}
	return Aggregate(proposalID, records), nil
}

// Aggregate folds samples into a consensus. Samples without volume count once.
func Aggregate(proposalID string, records []core.SentimentRecord) core.SentimentConsensus {
	c := core.SentimentConsensus{ProposalID: proposalID, BySource: []core.SourceSentiment{}}
	if len(records) == 0 {
		return c
	}

	type acc struct {
		core.SourceSentiment
		weighted float64
		weight   float64
	}
	bySource := make(map[string]*acc)
	var weighted, weight float64
	for _, r := range records {
		w := float64(r.Volume)
		if w <= 0 {
			w = 1
		}
		weighted += r.Polarity * w
		weight += w
		c.Volume += r.Volume
		c.Samples++
		if r.CollectedAt.After(c.LastUpdated) {
			c.LastUpdated = r.CollectedAt
		}

		a, ok := bySource[r.Source]
		if !ok {
			a = &acc{SourceSentiment: core.SourceSentiment{Source: r.Source}}
			bySource[r.Source] = a
		}
		a.weighted += r.Polarity * w
		a.weight += w
		a.Volume += r.Volume
		a.Support += r.Support
		a.Opposition += r.Opposition
		a.Samples++
	}
	c.Score = core.Clamp(weighted/weight, -1, 1)

	for _, a := range bySource {
		a.Polarity = core.Clamp(a.weighted/a.weight, -1, 1)
		c.BySource = append(c.BySource, a.SourceSentiment)
	}
	sort.Slice(c.BySource, func(i, j int) bool { return c.BySource[i].Source < c.BySource[j].Source })
	return c
}

// TopTopics returns the most mentioned topics for a proposal
func (m *SentimentMemory) TopTopics(ctx context.Context, dao, proposalID string, k int) ([]TopicCount, error) {
	records, err := m.list(ctx, SentimentFilter{DAO: dao, ProposalID: proposalID})
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, r := range records {
		for _, t := range r.Topics {
			t = strings.ToLower(strings.TrimSpace(t))
			if t != "" {
				counts[t]++
			}
		}
	}
	out := make([]TopicCount, 0, len(counts))
	for t, n := range counts {
		out = append(out, TopicCount{Topic: t, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Topic < out[j].Topic
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// Trend returns polarity values in collection order, oldest first
func (m *SentimentMemory) Trend(ctx context.Context, dao, proposalID string) ([]float64, error) {
	records, err := m.list(ctx, SentimentFilter{DAO: dao, ProposalID: proposalID})
	if err != nil {
		return nil, err
	}
	trend := make([]float64, len(records))
	for i, r := range records {
		trend[len(records)-1-i] = r.Polarity
	}
	return trend, nil
}

func (m *SentimentMemory) Count(ctx context.Context) (int, error) {
	return m.store.Count(ctx, CollectionSentiment)
}
