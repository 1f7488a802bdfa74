package memory

import (
	"context"
	"iter"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/NethermindEth/eternalgov/core"
	"github.com/NethermindEth/eternalgov/membase"
	"github.com/google/uuid"
)

// PreferenceFilter selects preference profiles; zero fields match everything
type PreferenceFilter struct {
	DAO   string
	Value string
}

func (f PreferenceFilter) match(p core.PreferenceProfile) bool {
	if f.DAO != "" && !strings.EqualFold(f.DAO, p.DAO) {
		return false
	}
	if f.Value != "" && !strings.EqualFold(f.Value, p.Value) {
		return false
	}
	return true
}

func profileKey(p core.PreferenceProfile) string {
	return strings.ToLower(p.DAO) + "/" + strings.ToLower(p.Value)
}

// CategoryValue is the preference value tracking how a proposal category fares
func CategoryValue(category string) string {
	return "category:" + strings.ToLower(strings.TrimSpace(category))
}

// PreferenceMemory stores learned community values. Every update appends a new version.
type PreferenceMemory struct {
	store membase.Store
	alpha float64
	mu    sync.Mutex
	now   func() time.Time
}

func NewPreferenceMemory(store membase.Store, alpha float64) *PreferenceMemory {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultBlendAlpha
	}
	return &PreferenceMemory{store: store, alpha: alpha, now: func() time.Time { return time.Now().UTC() }}
}

// Store appends a profile version as given
func (m *PreferenceMemory) Store(ctx context.Context, p core.PreferenceProfile) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	if p.LastUpdated.IsZero() {
		p.LastUpdated = m.now()
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return write(ctx, m.store, CollectionPreferences, p.ID, p.Value, p, map[string]string{
		"dao":   strings.ToLower(p.DAO),
		"value": strings.ToLower(p.Value),
	})
}

// Update blends a new signal into the profile for (dao, value). The first signal
// for a value is taken as is.
func (m *PreferenceMemory) Update(ctx context.Context, dao, value string, signal, confidence float64) (core.PreferenceProfile, error) {
	if math.IsNaN(signal) || signal < -1 || signal > 1 {
		return core.PreferenceProfile{}, core.NewValidationError("preference", "signal", "must be within [-1, 1]")
	}
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return core.PreferenceProfile{}, core.NewValidationError("preference", "confidence", "must be within [0, 1]")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, found, err := m.current(ctx, dao, value)
	if err != nil {
		return core.PreferenceProfile{}, err
	}

	now := m.now()
	var next core.PreferenceProfile
	if found {
		next = current.Blend(signal, confidence, m.alpha, now)
	} else {
		next = core.PreferenceProfile{DAO: dao, Value: value, Weight: signal, Confidence: confidence, Updates: 1, LastUpdated: now}
	}
	next.ID = ""
	id, err := m.Store(ctx, next)
	if err != nil {
		return core.PreferenceProfile{}, err
	}
	next.ID = id
	return next, nil
}

func (m *PreferenceMemory) current(ctx context.Context, dao, value string) (core.PreferenceProfile, bool, error) {
	profiles, err := m.latest(ctx, PreferenceFilter{DAO: dao, Value: value})
	if err != nil || len(profiles) == 0 {
		return core.PreferenceProfile{}, false, err
	}
	return profiles[0], true, nil
}

func (m *PreferenceMemory) latest(ctx context.Context, filter PreferenceFilter) ([]core.PreferenceProfile, error) {
	all, err := loadAll[core.PreferenceProfile](ctx, m.store, CollectionPreferences)
	if err != nil {
		return nil, err
	}
	current := latestBy(all, profileKey)
	out := make([]core.PreferenceProfile, 0, len(current))
	for _, it := range current {
		if filter.match(it.value) {
			out = append(out, it.value)
		}
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Value) < strings.ToLower(out[j].Value) })
	return out, nil
}

// Profiles returns the latest version of each value for a DAO, ordered by value
func (m *PreferenceMemory) Profiles(ctx context.Context, dao string) ([]core.PreferenceProfile, error) {
	return m.latest(ctx, PreferenceFilter{DAO: dao})
}

// Query returns every matching profile version, newest first. The collection is read
// and filtered before Query returns; the sequence walks that snapshot.
func (m *PreferenceMemory) Query(ctx context.Context, filter PreferenceFilter) (iter.Seq[core.PreferenceProfile], error) {
	all, err := loadAll[core.PreferenceProfile](ctx, m.store, CollectionPreferences)
	if err != nil {
		return nil, err
	}
	matched := all[:0]
	for _, it := range all {
		if filter.match(it.value) {
			matched = append(matched, it)
		}
	}
	return slices.Values(newestFirst(matched, func(p core.PreferenceProfile) time.Time { return p.LastUpdated })), nil
}

// PredictPreference sums weight*confidence over the profiles whose value appears
// in the proposal terms. Unmatched profiles contribute nothing.
func (m *PreferenceMemory) PredictPreference(ctx context.Context, p core.Proposal) (core.PreferencePrediction, error) {
	profiles, err := m.Profiles(ctx, p.DAO)
	if err != nil {
		return core.PreferencePrediction{}, err
	}

	pred := core.PreferencePrediction{Profiles: len(profiles), Terms: map[string]float64{}}
	terms := make(map[string]bool)
	for _, t := range p.Terms() {
		terms[t] = true
	}

	var sum float64
	for _, prof := range profiles {
		v := strings.ToLower(prof.Value)
		if !terms[v] {
			continue
		}
		contribution := prof.Weight * prof.Confidence
		pred.Terms[v] = contribution
		pred.Matched++
		sum += contribution
	}
	pred.Score = core.Clamp(sum, -1, 1)
	return pred, nil
}

// LearnFromOutcome moves the category profile toward +1 when a proposal of that
// category passed and toward -1 when it failed
func (m *PreferenceMemory) LearnFromOutcome(ctx context.Context, dao, category string, passed bool) (core.PreferenceProfile, bool, error) {
	if strings.TrimSpace(category) == "" {
		return core.PreferenceProfile{}, false, nil
	}
	signal := -1.0
	if passed {
		signal = 1.0
	}
	prof, err := m.Update(ctx, dao, CategoryValue(category), signal, 1.0)
	if err != nil {
		return core.PreferenceProfile{}, false, err
	}
	return prof, true, nil
}

// CategorySuccessRate maps the category profile weight onto [0, 1]; 0.5 when unknown
func (m *PreferenceMemory) CategorySuccessRate(ctx context.Context, dao, category string) (float64, error) {
	prof, found, err := m.current(ctx, dao, CategoryValue(category))
	if err != nil || !found {
		return 0.5, err
	}
	return (prof.Weight + 1) / 2, nil
}

// Count returns the number of distinct values learned across DAOs
func (m *PreferenceMemory) Count(ctx context.Context) (int, error) {
	profiles, err := m.latest(ctx, PreferenceFilter{})
	if err != nil {
		return 0, err
	}
	return len(profiles), nil
}
