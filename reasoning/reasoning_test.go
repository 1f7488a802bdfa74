package reasoning

import (
	"context"
	"errors"
	"testing"

	"github.com/NethermindEth/eternalgov/ai"
	"github.com/NethermindEth/eternalgov/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func proposal(choices ...string) core.Proposal {
	return core.Proposal{ID: "UNI-1", DAO: "uniswap", Title: "Activate fee switch", Status: core.StatusActive, Choices: choices}
}

func newEngine(advisor Advisor) *Engine {
	return NewEngine(DefaultConfig(), advisor, zap.NewNop())
}

func factorNames(rec core.VoteRecommendation) []string {
	var names []string
	for _, f := range rec.Rationale {
		names = append(names, f.Factor)
	}
	return names
}

func TestStanceOf(t *testing.T) {
	assert.Equal(t, 1, StanceOf("For"))
	assert.Equal(t, 1, StanceOf("Yes, enable"))
	assert.Equal(t, 1, StanceOf("In favor"))
	assert.Equal(t, -1, StanceOf("Against"))
	assert.Equal(t, -1, StanceOf("NAY"))
	assert.Equal(t, 0, StanceOf("Abstain"))
	assert.Equal(t, 0, StanceOf("Option B"))
}

func TestAnalyzeRequiresChoices(t *testing.T) {
	_, _, err := newEngine(nil).Analyze(context.Background(), Input{Proposal: proposal()})
	var rie *core.ReasoningInputError
	require.True(t, errors.As(err, &rie))
	assert.Equal(t, "UNI-1", rie.ProposalID)
}

func TestPositiveSentimentRecommendsFor(t *testing.T) {
	rec, factors, err := newEngine(nil).Analyze(context.Background(), Input{
		Proposal:  proposal("For", "Against", "Abstain"),
		Sentiment: &core.SentimentConsensus{Score: 0.8, Samples: 3, Volume: 100},
	})
	require.NoError(t, err)
	assert.Equal(t, "For", rec.RecommendedChoice)
	require.Len(t, factors, 1)
	assert.InDelta(t, 1.0, factors[0].Weight, 1e-9)
	assert.InDelta(t, 0.8, rec.ChoiceScores["For"], 1e-9)
	assert.InDelta(t, -0.8, rec.ChoiceScores["Against"], 1e-9)
	assert.Equal(t, []string{FactorSentiment}, factorNames(rec))
	assert.Equal(t, core.DirectionSupports, rec.Rationale[0].Direction)
	assert.GreaterOrEqual(t, rec.Confidence, 0.05)
	assert.LessOrEqual(t, rec.Confidence, 0.95)
}

func TestNegativeSentimentRecommendsAgainst(t *testing.T) {
	rec, _, err := newEngine(nil).Analyze(context.Background(), Input{
		Proposal:  proposal("For", "Against"),
		Sentiment: &core.SentimentConsensus{Score: -0.5, Samples: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, "Against", rec.RecommendedChoice)
}

func TestMissingFactorsAreRedistributed(t *testing.T) {
	_, factors, err := newEngine(nil).Analyze(context.Background(), Input{
		Proposal:   proposal("For", "Against"),
		Sentiment:  &core.SentimentConsensus{Score: 0.4, Samples: 1},
		Preference: &core.PreferencePrediction{Score: 0.2, Profiles: 2, Matched: 1},
		Accuracy:   &core.Accuracy{},
	})
	require.NoError(t, err)
	require.Len(t, factors, 2)
	assert.InDelta(t, 0.5/0.8, factors[0].Weight, 1e-9)
	assert.InDelta(t, 0.3/0.8, factors[1].Weight, 1e-9)

	var sum float64
	for _, f := range factors {
		sum += f.Weight
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestHistoryFavoursStatusQuo(t *testing.T) {
	rec, factors, err := newEngine(nil).Analyze(context.Background(), Input{
		Proposal: proposal("For", "Against"),
		Accuracy: &core.Accuracy{Value: 0.25, Samples: 4, Correct: 1},
	})
	require.NoError(t, err)
	require.Len(t, factors, 1)
	assert.Equal(t, "Against", rec.RecommendedChoice)
	assert.InDelta(t, 0.75, rec.ChoiceScores["Against"], 1e-9)
	assert.Zero(t, rec.ChoiceScores["For"])
}

func TestTieBreakPrefersStatusQuo(t *testing.T) {
	e := newEngine(nil)
	rec, _, err := e.Analyze(context.Background(), Input{Proposal: proposal("For", "Against", "Abstain")})
	require.NoError(t, err)
	assert.Equal(t, "Against", rec.RecommendedChoice)
	assert.True(t, rec.TieBroken)
	assert.Empty(t, rec.Rationale)

	cfg := DefaultConfig()
	cfg.Policies = map[string]DAOPolicy{"Uniswap": {StatusQuo: "Abstain"}}
	rec, _, err = NewEngine(cfg, nil, nil).Analyze(context.Background(), Input{Proposal: proposal("For", "Against", "Abstain")})
	require.NoError(t, err)
	assert.Equal(t, "Abstain", rec.RecommendedChoice)
}

func TestTieBreakFallsBackToEarlierChoice(t *testing.T) {
	rec, _, err := newEngine(nil).Analyze(context.Background(), Input{Proposal: proposal("Option A", "Option B")})
	require.NoError(t, err)
	assert.Equal(t, "Option A", rec.RecommendedChoice)
	assert.True(t, rec.TieBroken)
}

func TestStanceOverrides(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policies = map[string]DAOPolicy{"uniswap": {Stances: map[string]int{"Option B": 1}}}
	rec, _, err := NewEngine(cfg, nil, nil).Analyze(context.Background(), Input{
		Proposal:  proposal("Option A", "Option B"),
		Sentiment: &core.SentimentConsensus{Score: 0.6, Samples: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, "Option B", rec.RecommendedChoice)
}

func TestConfidenceFollowsAccuracy(t *testing.T) {
	in := func(acc core.Accuracy) Input {
		return Input{
			Proposal:  proposal("For", "Against"),
			Sentiment: &core.SentimentConsensus{Score: 0.9, Samples: 5},
			Accuracy:  &acc,
		}
	}
	cfg := DefaultConfig()
	cfg.Weights.History = 0
	e := NewEngine(cfg, nil, nil)

	perfect, _, err := e.Analyze(context.Background(), in(core.Accuracy{Value: 1, Samples: 10, Correct: 10}))
	require.NoError(t, err)
	assert.InDelta(t, 0.9, perfect.Confidence, 1e-9)

	coinflip, _, err := e.Analyze(context.Background(), in(core.Accuracy{Value: 0, Samples: 10}))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, coinflip.Confidence, 1e-9)

	prior, _, err := e.Analyze(context.Background(), in(core.Accuracy{}))
	require.NoError(t, err)
	assert.InDelta(t, 0.7, prior.Confidence, 1e-9)
}

func TestConfidenceScalesWithSignalStrength(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights.History = 0
	e := NewEngine(cfg, nil, nil)

	analyze := func(score float64, acc *core.Accuracy, choices ...string) core.VoteRecommendation {
		rec, _, err := e.Analyze(context.Background(), Input{
			Proposal:  proposal(choices...),
			Sentiment: &core.SentimentConsensus{Score: score, Samples: 5},
			Accuracy:  acc,
		})
		require.NoError(t, err)
		return rec
	}

	accurate := &core.Accuracy{Value: 0.9, Samples: 10, Correct: 9}
	weak := analyze(0.01, accurate, "For", "Against")
	strong := analyze(0.9, accurate, "For", "Against")
	assert.Equal(t, "For", weak.RecommendedChoice)
	assert.Less(t, weak.Confidence, 0.5)
	assert.Greater(t, strong.Confidence, 0.8)
	assert.Less(t, weak.Confidence, strong.Confidence)

	weak = analyze(0.01, nil, "For", "Against", "Abstain")
	strong = analyze(0.9, nil, "For", "Against", "Abstain")
	assert.InDelta(t, 0.255, weak.Confidence, 1e-9)
	assert.InDelta(t, 0.7, strong.Confidence, 1e-9)
}

func TestDisagreeingFactorsLowerConfidence(t *testing.T) {
	e := newEngine(nil)
	in := Input{
		Proposal:  proposal("For", "Against"),
		Sentiment: &core.SentimentConsensus{Score: 0.8, Samples: 3},
	}
	agree, _, err := e.Analyze(context.Background(), in)
	require.NoError(t, err)

	in.Preference = &core.PreferencePrediction{Score: -0.8, Profiles: 2, Matched: 2}
	split, _, err := e.Analyze(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "For", split.RecommendedChoice)
	assert.Less(t, split.Confidence, agree.Confidence)
}

func TestSingleChoiceConfidence(t *testing.T) {
	rec, _, err := newEngine(nil).Analyze(context.Background(), Input{Proposal: proposal("Ratify")})
	require.NoError(t, err)
	assert.Equal(t, "Ratify", rec.RecommendedChoice)
	assert.False(t, rec.TieBroken)
	assert.InDelta(t, 0.75, rec.Confidence, 1e-9)
}

type stubAdvisor struct {
	scores map[string]float64
	err    error
}

func (s stubAdvisor) ScoreChoices(context.Context, core.Proposal) (map[string]float64, error) {
	return s.scores, s.err
}

func TestModelFactor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights.Model = 0.5
	e := NewEngine(cfg, stubAdvisor{scores: map[string]float64{"against": 0.9, "For": -0.2}}, zap.NewNop())

	rec, factors, err := e.Analyze(context.Background(), Input{
		Proposal:  proposal("For", "Against"),
		Sentiment: &core.SentimentConsensus{Score: 0.1, Samples: 1},
	})
	require.NoError(t, err)
	require.Len(t, factors, 2)
	assert.Equal(t, "Against", rec.RecommendedChoice)
	assert.Equal(t, []string{FactorSentiment, FactorModel}, factorNames(rec))
	assert.Equal(t, core.DirectionOpposes, rec.Rationale[0].Direction)
	assert.Equal(t, core.DirectionSupports, rec.Rationale[1].Direction)
	assert.InDelta(t, 0.9, rec.Rationale[1].Signal, 1e-9)

	failing := NewEngine(cfg, stubAdvisor{err: errors.New("timeout")}, zap.NewNop())
	_, factors, err = failing.Analyze(context.Background(), Input{
		Proposal:  proposal("For", "Against"),
		Sentiment: &core.SentimentConsensus{Score: 0.1, Samples: 1},
	})
	require.NoError(t, err)
	require.Len(t, factors, 1)
	assert.InDelta(t, 1.0, factors[0].Weight, 1e-9)
}

func TestLLMAdvisor(t *testing.T) {
	mock := &ai.MockCompleter{Reply: `{"scores":{"for":0.7,"Against":-0.4},"summary":"fees fund the treasury"}`}
	adv := NewLLMAdvisor(mock, nil)

	scores, err := adv.ScoreChoices(context.Background(), proposal("For", "Against", "Abstain"))
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"For": 0.7, "Against": -0.4, "Abstain": 0}, scores)
	require.Len(t, mock.Prompts, 1)
	assert.Contains(t, mock.Prompts[0], `"For", "Against", "Abstain"`)

	mock.Reply = `{"scores":{"Maybe":0.1}}`
	_, err = adv.ScoreChoices(context.Background(), proposal("For", "Against"))
	assert.Error(t, err)

	mock.Reply = `{"scores":{"For":7}}`
	_, err = adv.ScoreChoices(context.Background(), proposal("For", "Against"))
	assert.Error(t, err)
}

func TestHistoryAndPatterns(t *testing.T) {
	e := newEngine(nil)
	assert.Equal(t, 0, e.Patterns().Decisions)

	for _, score := range []float64{0.8, 0.7, -0.6} {
		_, _, err := e.Analyze(context.Background(), Input{
			Proposal:  proposal("For", "Against"),
			Sentiment: &core.SentimentConsensus{Score: score, Samples: 1},
		})
		require.NoError(t, err)
	}
	assert.Len(t, e.History(), 3)

	p := e.Patterns()
	assert.Equal(t, 3, p.Decisions)
	assert.Equal(t, "For", p.MostCommonChoice)
	assert.InDelta(t, 0.6, p.AverageConfidence, 1e-9)
	assert.Equal(t, 3, p.RiskDistribution[core.RiskMedium])
}

func TestHistoryIsBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistoryLimit = 3
	e := NewEngine(cfg, nil, nil)

	for _, id := range []string{"P-1", "P-2", "P-3", "P-4", "P-5"} {
		p := proposal("For", "Against")
		p.ID = id
		_, _, err := e.Analyze(context.Background(), Input{Proposal: p})
		require.NoError(t, err)
	}

	var ids []string
	for _, rec := range e.History() {
		ids = append(ids, rec.ProposalID)
	}
	assert.Equal(t, []string{"P-3", "P-4", "P-5"}, ids)
	assert.Equal(t, 3, e.Patterns().Decisions)
}
