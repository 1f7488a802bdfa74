package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/NethermindEth/eternalgov/chain"
	"github.com/NethermindEth/eternalgov/communication"
	"github.com/NethermindEth/eternalgov/core"
	"github.com/NethermindEth/eternalgov/crypto"
	"github.com/NethermindEth/eternalgov/memory"
	"go.uber.org/zap"
)

// CastVote submits the recommended choice on chain. It fails closed unless
// autonomous voting is enabled and returns the first receipt on repeat calls.
func (o *Orchestrator) CastVote(ctx context.Context, dao, proposalID string) (core.VoteReceipt, error) {
	label := strings.ToLower(dao)
	if !o.opts.Voting.Autonomous {
		o.opts.Metrics.ObserveVote(label, "disabled")
		return core.VoteReceipt{}, core.ErrVotingDisabled
	}

	o.voteMu.Lock()
	defer o.voteMu.Unlock()

	receipt, ok, err := o.receipt(dao, proposalID)
	if err != nil {
		return core.VoteReceipt{}, err
	}
	if ok {
		return receipt, nil
	}

	if err := o.begin(StateVoting, StateReady); err != nil {
		return core.VoteReceipt{}, err
	}
	receipt, err = o.castVote(ctx, dao, proposalID)
	o.end(ctx, "", err)
	if err != nil {
		return core.VoteReceipt{}, err
	}
	return receipt, nil
}

func (o *Orchestrator) castVote(ctx context.Context, dao, proposalID string) (core.VoteReceipt, error) {
	label := strings.ToLower(dao)

	a, err := o.Recommendation(ctx, dao, proposalID)
	if err != nil {
		return core.VoteReceipt{}, err
	}
	p, err := o.layers.Proposals.Get(ctx, dao, proposalID)
	if err != nil {
		return core.VoteReceipt{}, storeError("get_proposal", err)
	}
	if p.Status != core.StatusActive {
		return core.VoteReceipt{}, core.NewValidationError("vote", "proposal", p.Key()+" is closed")
	}
	rec := a.Recommendation
	if rec.Confidence < o.opts.Voting.ConfidenceThreshold {
		o.opts.Metrics.ObserveVote(label, "below_threshold")
		return core.VoteReceipt{}, fmt.Errorf("%w: %.2f < %.2f", ErrBelowThreshold, rec.Confidence, o.opts.Voting.ConfidenceThreshold)
	}

	o.idMu.Lock()
	agent, registered, key := o.opts.Agent, o.registered, o.opts.PrivateKey
	o.idMu.Unlock()
	if !registered {
		return core.VoteReceipt{}, ErrIdentityRequired
	}

	proof, err := crypto.SignMessage(key, chain.BallotMessage(p.DAO, p.ID, rec.RecommendedChoice))
	if err != nil {
		return core.VoteReceipt{}, fmt.Errorf("failed to sign vote: %w", err)
	}
	txHash, err := o.chain.CastVote(ctx, chain.Ballot{
		AgentID:    agent.ID,
		DAO:        p.DAO,
		ProposalID: p.ID,
		Choice:     rec.RecommendedChoice,
		Proof:      proof,
	})
	if err != nil {
		o.opts.Metrics.ObserveVote(label, "failed")
		if errors.Is(err, chain.ErrAlreadyVoted) || errors.Is(err, chain.ErrInvalidProof) || errors.Is(err, chain.ErrNotRegistered) {
			return core.VoteReceipt{}, fmt.Errorf("vote rejected: %w", err)
		}
		return core.VoteReceipt{}, chainError("cast_vote", err)
	}

	receipt := core.VoteReceipt{
		ProposalID: p.ID,
		DAO:        p.DAO,
		Choice:     rec.RecommendedChoice,
		TxHash:     txHash,
		Proof:      proof,
		CastAt:     o.now(),
	}
	o.receipts[p.Key()] = receipt
	if o.opts.Receipts != nil {
		if err := o.opts.Receipts.SaveReceipt(receipt); err != nil {
			o.logger.Warn("failed to persist vote receipt", zap.String("key", p.Key()), zap.Error(err))
		}
	}
	o.mu.Lock()
	o.votesCast++
	o.mu.Unlock()

	o.logger.Info("vote cast",
		zap.String("key", p.Key()),
		zap.String("choice", receipt.Choice),
		zap.String("tx", txHash))
	o.opts.Metrics.ObserveVote(label, "cast")
	o.emit(core.SubjectVote, communication.EventVoteCast, receipt)
	return receipt, nil
}

// receipt looks up a vote already cast; callers hold voteMu
func (o *Orchestrator) receipt(dao, proposalID string) (core.VoteReceipt, bool, error) {
	key := core.ProposalKey(dao, proposalID)
	if r, ok := o.receipts[key]; ok {
		return r, true, nil
	}
	if o.opts.Receipts == nil {
		return core.VoteReceipt{}, false, nil
	}
	r, ok, err := o.opts.Receipts.GetReceipt(dao, proposalID)
	if err != nil {
		return core.VoteReceipt{}, false, fmt.Errorf("failed to load vote receipt: %w", err)
	}
	if ok {
		o.receipts[key] = r
	}
	return r, ok, nil
}

// Receipts lists the votes this delegate cast, newest first. An empty dao
// lists every DAO.
func (o *Orchestrator) Receipts(dao string) ([]core.VoteReceipt, error) {
	if o.opts.Receipts != nil {
		receipts, err := o.opts.Receipts.GetReceipts(dao)
		if err != nil {
			return nil, fmt.Errorf("failed to list vote receipts: %w", err)
		}
		return receipts, nil
	}

	o.voteMu.Lock()
	receipts := make([]core.VoteReceipt, 0, len(o.receipts))
	for _, r := range o.receipts {
		if dao == "" || strings.EqualFold(r.DAO, dao) {
			receipts = append(receipts, r)
		}
	}
	o.voteMu.Unlock()
	slices.SortFunc(receipts, func(a, b core.VoteReceipt) int { return b.CastAt.Compare(a.CastAt) })
	return receipts, nil
}

// Outcome is the real result of a proposal vote
type Outcome struct {
	ActualChoice      string  `json:"actual_choice"`
	Passed            bool    `json:"passed"`
	ParticipationRate float64 `json:"participation_rate,omitempty"`
}

// RecordOutcome closes the proposal, stores the real result against the latest
// prediction and feeds it back into the preference layer. Nothing is written
// unless the outcome is valid for the proposal.
func (o *Orchestrator) RecordOutcome(ctx context.Context, dao, proposalID string, result Outcome) (core.OutcomeRecord, error) {
	if err := o.begin(StateAnalyzing, StateReady); err != nil {
		return core.OutcomeRecord{}, err
	}
	out, err := o.recordOutcome(ctx, dao, proposalID, result)
	o.end(ctx, "", err)
	return out, err
}

func (o *Orchestrator) recordOutcome(ctx context.Context, dao, proposalID string, result Outcome) (core.OutcomeRecord, error) {
	p, err := o.layers.Proposals.Get(ctx, dao, proposalID)
	if err != nil {
		return core.OutcomeRecord{}, storeError("get_proposal", err)
	}
	a, err := o.Recommendation(ctx, p.DAO, p.ID)
	if err != nil {
		return core.OutcomeRecord{}, err
	}

	existing, err := o.layers.Outcomes.Query(ctx, memory.OutcomeFilter{DAO: p.DAO, ProposalID: p.ID})
	if err != nil {
		return core.OutcomeRecord{}, storeError("list_outcomes", err)
	}
	for range existing {
		return core.OutcomeRecord{}, core.NewValidationError("outcome", "proposal_id", "outcome for "+p.Key()+" already recorded")
	}

	out := core.OutcomeRecord{
		ProposalID:          p.ID,
		DAO:                 p.DAO,
		PredictedChoice:     a.Recommendation.RecommendedChoice,
		ActualChoice:        result.ActualChoice,
		PredictedConfidence: a.Recommendation.Confidence,
		Passed:              result.Passed,
		ParticipationRate:   result.ParticipationRate,
		RecordedAt:          o.now(),
	}
	if err := out.Validate(); err != nil {
		return core.OutcomeRecord{}, err
	}
	i := slices.IndexFunc(p.Choices, func(c string) bool { return core.SameChoice(c, result.ActualChoice) })
	if i < 0 {
		return core.OutcomeRecord{}, core.NewValidationError("outcome", "actual_choice", fmt.Sprintf("%q is not a choice of %s", result.ActualChoice, p.Key()))
	}
	out.ActualChoice = p.Choices[i]

	if p.Status == core.StatusActive {
		if _, err := o.layers.Proposals.UpdateStatus(ctx, p.DAO, p.ID, core.StatusClosed); err != nil {
			return core.OutcomeRecord{}, storeError("close_proposal", err)
		}
	}

	id, err := o.layers.Outcomes.Store(ctx, out)
	if err != nil {
		return core.OutcomeRecord{}, storeError("store_outcome", err)
	}
	out.ID = id
	out.Correct = core.SameChoice(out.PredictedChoice, out.ActualChoice)

	if _, learned, err := o.layers.Preferences.LearnFromOutcome(ctx, p.DAO, p.Metadata.Category, result.Passed); err != nil {
		return out, storeError("learn_preference", err)
	} else if learned {
		o.logger.Debug("preference updated from outcome",
			zap.String("dao", p.DAO), zap.String("category", p.Metadata.Category), zap.Bool("passed", result.Passed))
	}

	o.logger.Info("outcome recorded",
		zap.String("key", p.Key()), zap.String("actual", out.ActualChoice), zap.Bool("correct", out.Correct))
	o.emit(core.SubjectOutcome, communication.EventOutcomeRecorded, out)
	return out, nil
}
