package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/NethermindEth/eternalgov/core"
)

// VoteRepository persists vote receipts so a restarted delegate never casts twice
type VoteRepository struct {
	db Storage
}

func NewVoteRepository(db Storage) *VoteRepository {
	return &VoteRepository{db: db}
}

func voteKey(dao, proposalID string) string {
	return fmt.Sprintf("vote:%s:%s", strings.ToLower(dao), proposalID)
}

func (r *VoteRepository) SaveReceipt(receipt core.VoteReceipt) error {
	return r.db.PutObject(voteKey(receipt.DAO, receipt.ProposalID), receipt)
}

// GetReceipt returns the stored receipt, or ok=false when no vote was cast
func (r *VoteRepository) GetReceipt(dao, proposalID string) (core.VoteReceipt, bool, error) {
	var receipt core.VoteReceipt
	err := r.db.GetObject(voteKey(dao, proposalID), &receipt)
	if errors.Is(err, ErrKeyNotFound) {
		return receipt, false, nil
	}
	if err != nil {
		return receipt, false, err
	}
	return receipt, true, nil
}

// GetReceipts lists the stored receipts of a DAO, or of every DAO when dao is
// empty, newest first
func (r *VoteRepository) GetReceipts(dao string) ([]core.VoteReceipt, error) {
	prefix := "vote:"
	if dao != "" {
		prefix = fmt.Sprintf("vote:%s:", strings.ToLower(dao))
	}
	data, err := r.db.GetByPrefix(prefix)
	if err != nil {
		return nil, err
	}

	receipts := make([]core.VoteReceipt, 0, len(data))
	for _, v := range data {
		var receipt core.VoteReceipt
		if err := json.Unmarshal(v, &receipt); err != nil {
			continue // Skip invalid entries
		}
		receipts = append(receipts, receipt)
	}
	sort.Slice(receipts, func(i, j int) bool { return receipts[i].CastAt.After(receipts[j].CastAt) })
	return receipts, nil
}
