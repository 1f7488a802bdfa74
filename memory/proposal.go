package memory

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/NethermindEth/eternalgov/core"
	"github.com/NethermindEth/eternalgov/membase"
)

// ProposalFilter selects proposals; zero fields match everything
type ProposalFilter struct {
	DAO      string
	Status   core.ProposalStatus
	Category string
}

func (f ProposalFilter) match(p core.Proposal) bool {
	if f.DAO != "" && !strings.EqualFold(f.DAO, p.DAO) {
		return false
	}
	if f.Status != "" && f.Status != p.Status {
		return false
	}
	if f.Category != "" && !strings.EqualFold(f.Category, p.Metadata.Category) {
		return false
	}
	return true
}

// ProposalMemory stores governance proposals. Status changes append a new version.
type ProposalMemory struct {
	store membase.Store
	mu    sync.Mutex
}

func NewProposalMemory(store membase.Store) *ProposalMemory {
	return &ProposalMemory{store: store}
}

// Store validates and appends a new proposal, returning its DAO-scoped key
func (m *ProposalMemory) Store(ctx context.Context, p core.Proposal) (string, error) {
	if p.Status == "" {
		p.Status = core.StatusActive
	}
	if err := p.Validate(); err != nil {
		return "", err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	_, found, err := m.lookup(ctx, p.DAO, p.ID)
	if err != nil {
		return "", err
	}
	if found {
		return "", core.NewValidationError("proposal", "id", fmt.Sprintf("%s already exists", p.Key()))
	}
	if _, err := m.write(ctx, p); err != nil {
		return "", err
	}
	return p.Key(), nil
}

func (m *ProposalMemory) write(ctx context.Context, p core.Proposal) (string, error) {
	content := strings.Join(append([]string{p.Title, p.Body, p.Metadata.Category}, p.Metadata.Keywords...), " ")
	return write(ctx, m.store, CollectionProposals, "", content, p, map[string]string{
		"dao": strings.ToLower(p.DAO),
		"key": p.Key(),
	})
}

func (m *ProposalMemory) latest(ctx context.Context) ([]versioned[core.Proposal], error) {
	all, err := loadAll[core.Proposal](ctx, m.store, CollectionProposals)
	if err != nil {
		return nil, err
	}
	return latestBy(all, core.Proposal.Key), nil
}

func (m *ProposalMemory) lookup(ctx context.Context, dao, id string) (core.Proposal, bool, error) {
	items, err := m.latest(ctx)
	if err != nil {
		return core.Proposal{}, false, err
	}
	key := core.ProposalKey(dao, id)
	for _, it := range items {
		if it.value.Key() == key {
			return it.value, true, nil
		}
	}
	return core.Proposal{}, false, nil
}

// Get returns the current version of a proposal
func (m *ProposalMemory) Get(ctx context.Context, dao, id string) (core.Proposal, error) {
	p, found, err := m.lookup(ctx, dao, id)
	if err != nil {
		return core.Proposal{}, err
	}
	if !found {
		return core.Proposal{}, fmt.Errorf("proposal %s: %w", core.ProposalKey(dao, id), core.ErrNotFound)
	}
	return p, nil
}

// Exists reports whether the proposal has been stored
func (m *ProposalMemory) Exists(ctx context.Context, dao, id string) (bool, error) {
	_, found, err := m.lookup(ctx, dao, id)
	return found, err
}

// UpdateStatus moves a proposal to a new status. Only active -> closed is allowed.
func (m *ProposalMemory) UpdateStatus(ctx context.Context, dao, id string, status core.ProposalStatus) (core.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, found, err := m.lookup(ctx, dao, id)
	if err != nil {
		return core.Proposal{}, err
	}
	if !found {
		return core.Proposal{}, fmt.Errorf("proposal %s: %w", core.ProposalKey(dao, id), core.ErrNotFound)
	}
	if !p.CanTransition(status) {
		return p, core.NewValidationError("proposal", "status", fmt.Sprintf("cannot move from %s to %s", p.Status, status))
	}
	if p.Status == status {
		return p, nil
	}
	p.Status = status
	if _, err := m.write(ctx, p); err != nil {
		return core.Proposal{}, err
	}
	return p, nil
}

// Query returns the current version of matching proposals, newest first. The collection is read
// and filtered before Query returns; the sequence walks that snapshot.
func (m *ProposalMemory) Query(ctx context.Context, filter ProposalFilter) (iter.Seq[core.Proposal], error) {
	items, err := m.latest(ctx)
	if err != nil {
		return nil, err
	}
	matched := items[:0]
	for _, it := range items {
		if filter.match(it.value) {
			matched = append(matched, it)
		}
	}
	return slices.Values(newestFirst(matched, func(p core.Proposal) time.Time { return p.CreatedAt })), nil
}

// Search returns up to k proposals most relevant to the text
func (m *ProposalMemory) Search(ctx context.Context, text string, k int) ([]core.Proposal, error) {
	hits, err := m.store.Search(ctx, CollectionProposals, text, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to search proposals: %w", err)
	}
	current, err := m.latest(ctx)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]core.Proposal, len(current))
	for _, it := range current {
		byKey[it.value.Key()] = it.value
	}

	seen := make(map[string]bool)
	var out []core.Proposal
	for _, h := range hits {
		key := h.Tags["key"]
		if seen[key] {
			continue
		}
		p, ok := byKey[key]
		if !ok {
			continue
		}
		seen[key] = true
		out = append(out, p)
		if k > 0 && len(out) == k {
			break
		}
	}
	return out, nil
}

// Count returns the number of distinct proposals
func (m *ProposalMemory) Count(ctx context.Context) (int, error) {
	items, err := m.latest(ctx)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}
