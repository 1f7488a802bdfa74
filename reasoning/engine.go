package reasoning

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/NethermindEth/eternalgov/core"
	"go.uber.org/zap"
)

// Factor names
const (
	FactorSentiment  = "sentiment"
	FactorPreference = "preference"
	FactorHistory    = "history"
	FactorModel      = "model"
)

// Weights are the base factor weights before redistribution
type Weights struct {
	Sentiment  float64 `mapstructure:"sentiment" json:"sentiment"`
	Preference float64 `mapstructure:"preference" json:"preference"`
	History    float64 `mapstructure:"history" json:"history"`
	Model      float64 `mapstructure:"model" json:"model"`
}

// Config tunes the scoring
type Config struct {
	Weights       Weights
	MinConfidence float64
	MaxConfidence float64
	AccuracyPrior float64
	TieEpsilon    float64
	HistoryLimit  int
	Policies      map[string]DAOPolicy
}

func DefaultConfig() Config {
	return Config{
		Weights:       Weights{Sentiment: 0.5, Preference: 0.3, History: 0.2},
		MinConfidence: 0.05,
		MaxConfidence: 0.95,
		AccuracyPrior: 0.5,
		TieEpsilon:    1e-9,
		HistoryLimit:  256,
	}
}

// Input is everything the engine knows about one proposal. Nil or empty
// signals are treated as missing.
type Input struct {
	Proposal   core.Proposal
	Sentiment  *core.SentimentConsensus
	Preference *core.PreferencePrediction
	Accuracy   *core.Accuracy
}

// Factor is one scored signal with its per-choice contributions
type Factor struct {
	Name          string             `json:"name"`
	BaseWeight    float64            `json:"base_weight"`
	Weight        float64            `json:"weight"`
	Signal        float64            `json:"signal"`
	Contributions map[string]float64 `json:"contributions"`
	Detail        string             `json:"detail,omitempty"`
}

// Engine turns memory signals into a deterministic vote recommendation
type Engine struct {
	cfg     Config
	advisor Advisor
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.RWMutex
	history []core.VoteRecommendation
	head    int
}

func NewEngine(cfg Config, advisor Advisor, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxConfidence <= 0 || cfg.MaxConfidence > 1 {
		cfg.MaxConfidence = 0.95
	}
	if cfg.MinConfidence < 0 || cfg.MinConfidence > cfg.MaxConfidence {
		cfg.MinConfidence = 0.05
	}
	if cfg.AccuracyPrior <= 0 || cfg.AccuracyPrior > 1 {
		cfg.AccuracyPrior = 0.5
	}
	if cfg.TieEpsilon <= 0 {
		cfg.TieEpsilon = 1e-9
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 256
	}
	return &Engine{cfg: cfg, advisor: advisor, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Policy returns the policy configured for a DAO
func (e *Engine) Policy(dao string) DAOPolicy {
	for name, p := range e.cfg.Policies {
		if strings.EqualFold(name, dao) {
			return p
		}
	}
	return DAOPolicy{}
}

// Analyze scores every choice of the proposal and recommends the best one
func (e *Engine) Analyze(ctx context.Context, in Input) (core.VoteRecommendation, []Factor, error) {
	p := in.Proposal
	if len(p.Choices) == 0 {
		return core.VoteRecommendation{}, nil, &core.ReasoningInputError{ProposalID: p.ID, Reason: "proposal has no choices"}
	}

	policy := e.Policy(p.DAO)
	statusQuo := policy.statusQuo(p.Choices)
	factors := e.collect(ctx, in, policy, statusQuo)

	var total float64
	for _, f := range factors {
		total += f.BaseWeight
	}
	scores := make(map[string]float64, len(p.Choices))
	for _, c := range p.Choices {
		scores[c] = 0
	}
	for i := range factors {
		f := &factors[i]
		f.Weight = f.BaseWeight / total
		for c, v := range f.Contributions {
			f.Contributions[c] = f.Weight * v
			scores[c] += f.Contributions[c]
		}
	}

	winner, tied := e.pick(p.Choices, scores, statusQuo)
	accuracy := e.cfg.AccuracyPrior
	if in.Accuracy != nil && in.Accuracy.Known() {
		accuracy = in.Accuracy.Value
	}
	confidence := e.confidence(margin(p.Choices, scores, winner, factors), accuracy)

	rec := core.VoteRecommendation{
		ProposalID:        p.ID,
		DAO:               p.DAO,
		RecommendedChoice: winner,
		Confidence:        confidence,
		ChoiceScores:      scores,
		TieBroken:         tied,
		GeneratedAt:       e.now(),
		Rationale:         make([]core.FactorWeight, 0, len(factors)),
	}
	for _, f := range factors {
		rec.Rationale = append(rec.Rationale, e.explain(f, winner))
	}

	e.remember(rec)

	e.logger.Info("recommendation generated",
		zap.String("dao", p.DAO),
		zap.String("proposal", p.ID),
		zap.String("choice", winner),
		zap.Float64("confidence", confidence),
		zap.Int("factors", len(factors)))
	return rec, factors, nil
}

// collect builds the raw (unweighted) contributions of every available factor
func (e *Engine) collect(ctx context.Context, in Input, policy DAOPolicy, statusQuo string) []Factor {
	w := e.cfg.Weights
	choices := in.Proposal.Choices
	var factors []Factor

	if w.Sentiment > 0 && in.Sentiment != nil && in.Sentiment.Samples > 0 {
		f := Factor{
			Name: FactorSentiment, BaseWeight: w.Sentiment, Signal: in.Sentiment.Score,
			Contributions: make(map[string]float64, len(choices)),
			Detail:        fmt.Sprintf("%s across %d samples (volume %d)", in.Sentiment.Label(), in.Sentiment.Samples, in.Sentiment.Volume),
		}
		for _, c := range choices {
			f.Contributions[c] = in.Sentiment.Score * float64(policy.stance(c))
		}
		factors = append(factors, f)
	}

	if w.Preference > 0 && in.Preference != nil && in.Preference.Profiles > 0 {
		f := Factor{
			Name: FactorPreference, BaseWeight: w.Preference, Signal: in.Preference.Score,
			Contributions: make(map[string]float64, len(choices)),
			Detail:        fmt.Sprintf("%s, %d of %d community values matched", in.Preference.Label(), in.Preference.Matched, in.Preference.Profiles),
		}
		for _, c := range choices {
			f.Contributions[c] = in.Preference.Score * float64(policy.stance(c))
		}
		factors = append(factors, f)
	}

	if w.History > 0 && in.Accuracy != nil && in.Accuracy.Known() && statusQuo != "" {
		signal := 1 - in.Accuracy.Value
		f := Factor{
			Name: FactorHistory, BaseWeight: w.History, Signal: signal,
			Contributions: make(map[string]float64, len(choices)),
			Detail:        fmt.Sprintf("%.0f%% accuracy over %d outcomes leans toward %q", in.Accuracy.Value*100, in.Accuracy.Samples, statusQuo),
		}
		for _, c := range choices {
			f.Contributions[c] = 0
		}
		f.Contributions[statusQuo] = signal
		factors = append(factors, f)
	}

	if w.Model > 0 && e.advisor != nil {
		scores, err := e.advisor.ScoreChoices(ctx, in.Proposal)
		if err != nil {
			e.logger.Warn("advisor unavailable, dropping model factor", zap.String("proposal", in.Proposal.ID), zap.Error(err))
		} else {
			f := Factor{
				Name: FactorModel, BaseWeight: w.Model,
				Contributions: make(map[string]float64, len(choices)),
				Detail:        "language model assessment",
			}
			for _, c := range choices {
				f.Contributions[c] = core.Clamp(lookupChoice(scores, c), -1, 1)
			}
			factors = append(factors, f)
		}
	}
	return factors
}

func lookupChoice(scores map[string]float64, choice string) float64 {
	if v, ok := scores[choice]; ok {
		return v
	}
	for k, v := range scores {
		if strings.EqualFold(strings.TrimSpace(k), strings.TrimSpace(choice)) {
			return v
		}
	}
	return 0
}

// pick returns the highest scoring choice. Ties go to the status quo, then to the earlier choice.
func (e *Engine) pick(choices []string, scores map[string]float64, statusQuo string) (string, bool) {
	best := math.Inf(-1)
	for _, c := range choices {
		best = math.Max(best, scores[c])
	}
	var tied []string
	for _, c := range choices {
		if best-scores[c] <= e.cfg.TieEpsilon {
			tied = append(tied, c)
		}
	}
	if len(tied) > 1 {
		for _, c := range tied {
			if c == statusQuo {
				return c, true
			}
		}
	}
	return tied[0], len(tied) > 1
}

// lead is how far the winner is ahead of the best other choice
func lead(choices []string, scores map[string]float64, winner string) float64 {
	second := math.Inf(-1)
	for _, c := range choices {
		if c != winner {
			second = math.Max(second, lookupChoice(scores, c))
		}
	}
	return lookupChoice(scores, winner) - second
}

// margin is the winner's lead relative to the lead the same factors would
// give at full signal strength, in [0, 1]. A single choice has margin 1.
func margin(choices []string, scores map[string]float64, winner string, factors []Factor) float64 {
	if len(choices) < 2 {
		return 1
	}
	var span float64
	for _, f := range factors {
		var peak float64
		for _, v := range f.Contributions {
			peak = math.Max(peak, math.Abs(v))
		}
		if peak == 0 {
			continue
		}
		full := make(map[string]float64, len(f.Contributions))
		best, top := "", math.Inf(-1)
		for _, c := range choices {
			full[c] = f.Contributions[c] / peak * f.Weight
			if full[c] > top {
				best, top = c, full[c]
			}
		}
		span += lead(choices, full, best)
	}
	if span <= 0 {
		return 0
	}
	return core.Clamp(lead(choices, scores, winner)/span, 0, 1)
}

// confidence discounts the margin by the historical accuracy
func (e *Engine) confidence(margin, accuracy float64) float64 {
	c := 0.5 + (margin-0.5)*core.Clamp(accuracy, 0, 1)
	return core.Clamp(c, e.cfg.MinConfidence, e.cfg.MaxConfidence)
}

// explain reduces a factor to its effect on the recommended choice
func (e *Engine) explain(f Factor, winner string) core.FactorWeight {
	own := f.Contributions[winner]
	rival := math.Inf(-1)
	for c, v := range f.Contributions {
		if c != winner {
			rival = math.Max(rival, v)
		}
	}
	direction := core.DirectionNeutral
	switch {
	case math.IsInf(rival, -1):
		if own > e.cfg.TieEpsilon {
			direction = core.DirectionSupports
		} else if own < -e.cfg.TieEpsilon {
			direction = core.DirectionOpposes
		}
	case own-rival > e.cfg.TieEpsilon:
		direction = core.DirectionSupports
	case rival-own > e.cfg.TieEpsilon:
		direction = core.DirectionOpposes
	}

	signal := f.Signal
	if f.Name == FactorModel && f.Weight > 0 {
		signal = own / f.Weight
	}
	return core.FactorWeight{
		Factor:       f.Name,
		Weight:       f.Weight,
		Signal:       signal,
		Contribution: own,
		Direction:    direction,
		Detail:       f.Detail,
	}
}

func (e *Engine) remember(rec core.VoteRecommendation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.history) < e.cfg.HistoryLimit {
		e.history = append(e.history, rec)
		return
	}
	e.history[e.head] = rec
	e.head = (e.head + 1) % len(e.history)
}

// History returns the most recent recommendations, oldest first. Only the
// last HistoryLimit decisions are kept.
func (e *Engine) History() []core.VoteRecommendation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]core.VoteRecommendation, 0, len(e.history))
	out = append(out, e.history[e.head:]...)
	return append(out, e.history[:e.head]...)
}

// Patterns summarises the decision history
type Patterns struct {
	Decisions         int            `json:"decisions"`
	AverageConfidence float64        `json:"average_confidence"`
	MostCommonChoice  string         `json:"most_common_choice,omitempty"`
	RiskDistribution  map[string]int `json:"risk_distribution"`
}

func (e *Engine) Patterns() Patterns {
	history := e.History()
	p := Patterns{Decisions: len(history), RiskDistribution: map[string]int{}}
	if len(history) == 0 {
		return p
	}

	counts := make(map[string]int)
	var sum float64
	for _, r := range history {
		sum += r.Confidence
		counts[r.RecommendedChoice]++
		p.RiskDistribution[core.RiskLevel(r.Confidence)]++
	}
	p.AverageConfidence = sum / float64(len(history))
	for _, r := range history {
		c := r.RecommendedChoice
		if counts[c] > counts[p.MostCommonChoice] {
			p.MostCommonChoice = c
		}
	}
	return p
}
