package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/NethermindEth/eternalgov/communication"
	"github.com/NethermindEth/eternalgov/core"
	"github.com/NethermindEth/eternalgov/membase"
	"github.com/NethermindEth/eternalgov/reasoning"
	"github.com/NethermindEth/eternalgov/report"
	"go.uber.org/zap"
)

// CollectionRecommendations holds every analysis with its report
const CollectionRecommendations = "recommendations"

// Analysis is a recommendation together with its report and the signals it was built from
type Analysis struct {
	Recommendation core.VoteRecommendation   `json:"recommendation"`
	Report         report.Report             `json:"report"`
	Consensus      core.SentimentConsensus   `json:"consensus"`
	Preference     core.PreferencePrediction `json:"preference"`
	Accuracy       core.Accuracy             `json:"accuracy"`
}

// Analyze reads memory for the proposal, scores it and stores the recommendation and report
func (o *Orchestrator) Analyze(ctx context.Context, dao, proposalID string) (Analysis, error) {
	if err := o.begin(StateAnalyzing, StateReady); err != nil {
		return Analysis{}, err
	}
	a, err := o.analyze(ctx, dao, proposalID)
	o.end(ctx, "", err)
	return a, err
}

func (o *Orchestrator) analyze(ctx context.Context, dao, proposalID string) (Analysis, error) {
	p, err := o.layers.Proposals.Get(ctx, dao, proposalID)
	if err != nil {
		return Analysis{}, storeError("get_proposal", err)
	}
	consensus, err := o.layers.Sentiment.Consensus(ctx, p.DAO, p.ID)
	if err != nil {
		return Analysis{}, storeError("sentiment_consensus", err)
	}
	pred, err := o.layers.Preferences.PredictPreference(ctx, p)
	if err != nil {
		return Analysis{}, storeError("predict_preference", err)
	}
	acc, err := o.layers.Outcomes.Accuracy(ctx, p.DAO, o.opts.AccuracyWindow)
	if err != nil {
		return Analysis{}, storeError("accuracy", err)
	}

	rec, factors, err := o.engine.Analyze(ctx, reasoning.Input{
		Proposal:   p,
		Sentiment:  &consensus,
		Preference: &pred,
		Accuracy:   &acc,
	})
	if err != nil {
		return Analysis{}, err
	}

	a := Analysis{
		Recommendation: rec,
		Report:         report.Build(rec, p, factors),
		Consensus:      consensus,
		Preference:     pred,
		Accuracy:       acc,
	}
	record, err := membase.NewRecord(a.Report.Title+" "+a.Report.Summary, a, map[string]string{
		"dao":      strings.ToLower(p.DAO),
		"proposal": p.ID,
		"key":      p.Key(),
		"choice":   rec.RecommendedChoice,
	})
	if err != nil {
		return Analysis{}, fmt.Errorf("failed to encode recommendation: %w", err)
	}
	if _, err := o.store.Write(ctx, CollectionRecommendations, record); err != nil {
		return Analysis{}, storeError("store_recommendation", err)
	}

	o.recMu.Lock()
	o.recommendations[p.Key()] = a
	o.recMu.Unlock()

	o.logger.Info("recommendation produced",
		zap.String("key", p.Key()),
		zap.String("choice", rec.RecommendedChoice),
		zap.Float64("confidence", rec.Confidence),
		zap.String("risk", a.Report.RiskLevel))
	o.opts.Metrics.ObserveRecommendation(strings.ToLower(p.DAO), a.Report.RiskLevel, rec.Confidence)
	o.emit(core.SubjectRecommendation, communication.EventRecommendation, a.Report)
	return a, nil
}

// Recommendation returns the latest analysis of a proposal, falling back to the knowledge store
func (o *Orchestrator) Recommendation(ctx context.Context, dao, proposalID string) (Analysis, error) {
	key := core.ProposalKey(dao, proposalID)

	o.recMu.RLock()
	a, ok := o.recommendations[key]
	o.recMu.RUnlock()
	if ok {
		return a, nil
	}

	records, err := o.store.List(ctx, CollectionRecommendations)
	if err != nil {
		return Analysis{}, storeError("list_recommendations", err)
	}
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Tags["key"] != key {
			continue
		}
		if err := records[i].Decode(&a); err != nil {
			return Analysis{}, fmt.Errorf("failed to decode recommendation %s: %w", key, err)
		}
		o.recMu.Lock()
		o.recommendations[key] = a
		o.recMu.Unlock()
		return a, nil
	}
	return Analysis{}, fmt.Errorf("recommendation for %s: %w", key, core.ErrNotFound)
}

// Patterns summarises the recommendations produced since start
func (o *Orchestrator) Patterns() reasoning.Patterns {
	return o.engine.Patterns()
}
