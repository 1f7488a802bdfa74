package memory

import (
	"context"
	"iter"
	"slices"
	"strings"
	"time"

	"github.com/NethermindEth/eternalgov/core"
	"github.com/NethermindEth/eternalgov/membase"
	"github.com/google/uuid"
)

// OutcomeFilter selects outcomes; zero fields match everything
type OutcomeFilter struct {
	DAO        string
	ProposalID string
}

func (f OutcomeFilter) match(o core.OutcomeRecord) bool {
	if f.DAO != "" && !strings.EqualFold(f.DAO, o.DAO) {
		return false
	}
	if f.ProposalID != "" && f.ProposalID != o.ProposalID {
		return false
	}
	return true
}

// OutcomeMemory is the append-only log of predictions against real results
type OutcomeMemory struct {
	store     membase.Store
	proposals *ProposalMemory
}

func NewOutcomeMemory(store membase.Store, proposals *ProposalMemory) *OutcomeMemory {
	return &OutcomeMemory{store: store, proposals: proposals}
}

// Store appends an outcome; Correct is derived from the predicted and actual choice
func (m *OutcomeMemory) Store(ctx context.Context, o core.OutcomeRecord) (string, error) {
	if err := o.Validate(); err != nil {
		return "", err
	}
	ok, err := m.proposals.Exists(ctx, o.DAO, o.ProposalID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", core.NewValidationError("outcome", "proposal_id", "references an unknown proposal "+core.ProposalKey(o.DAO, o.ProposalID))
	}
	o.Correct = core.SameChoice(o.PredictedChoice, o.ActualChoice)
	if o.RecordedAt.IsZero() {
		o.RecordedAt = time.Now().UTC()
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return write(ctx, m.store, CollectionOutcomes, o.ID, o.ProposalID+" "+o.ActualChoice, o, map[string]string{
		"dao":      strings.ToLower(o.DAO),
		"proposal": o.ProposalID,
	})
}

func (m *OutcomeMemory) list(ctx context.Context, filter OutcomeFilter) ([]core.OutcomeRecord, error) {
	all, err := loadAll[core.OutcomeRecord](ctx, m.store, CollectionOutcomes)
	if err != nil {
		return nil, err
	}
	matched := all[:0]
	for _, it := range all {
		if filter.match(it.value) {
			matched = append(matched, it)
		}
	}
	return newestFirst(matched, func(o core.OutcomeRecord) time.Time { return o.RecordedAt }), nil
}

// Query returns matching outcomes, newest first. The collection is read
// and filtered before Query returns; the sequence walks that snapshot.
func (m *OutcomeMemory) Query(ctx context.Context, filter OutcomeFilter) (iter.Seq[core.OutcomeRecord], error) {
	records, err := m.list(ctx, filter)
	if err != nil {
		return nil, err
	}
	return slices.Values(records), nil
}

// Accuracy is recomputed from the most recent window outcomes of a DAO.
// window <= 0 uses every outcome; an empty dao spans all DAOs.
func (m *OutcomeMemory) Accuracy(ctx context.Context, dao string, window int) (core.Accuracy, error) {
	records, err := m.list(ctx, OutcomeFilter{DAO: dao})
	if err != nil {
		return core.Accuracy{}, err
	}
	if window > 0 && len(records) > window {
		records = records[:window]
	}
	acc := core.Accuracy{Samples: len(records)}
	if acc.Samples == 0 {
		return acc, nil
	}
	for _, r := range records {
		if r.Correct {
			acc.Correct++
		}
	}
	acc.Value = float64(acc.Correct) / float64(acc.Samples)
	return acc, nil
}

// PassRate is the share of recorded proposals that passed; 0.5 with no history
func (m *OutcomeMemory) PassRate(ctx context.Context, dao string) (float64, int, error) {
	records, err := m.list(ctx, OutcomeFilter{DAO: dao})
	if err != nil {
		return 0, 0, err
	}
	if len(records) == 0 {
		return 0.5, 0, nil
	}
	passed := 0
	for _, r := range records {
		if r.Passed {
			passed++
		}
	}
	return float64(passed) / float64(len(records)), len(records), nil
}

// ParticipationAverage is the mean participation rate; 0 with no history
func (m *OutcomeMemory) ParticipationAverage(ctx context.Context, dao string) (float64, error) {
	records, err := m.list(ctx, OutcomeFilter{DAO: dao})
	if err != nil || len(records) == 0 {
		return 0, err
	}
	var sum float64
	for _, r := range records {
		sum += r.ParticipationRate
	}
	return sum / float64(len(records)), nil
}

func (m *OutcomeMemory) Count(ctx context.Context) (int, error) {
	return m.store.Count(ctx, CollectionOutcomes)
}
