package core

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProposalValidate(t *testing.T) {
	p := Proposal{ID: "UNI-1", DAO: "uniswap", Title: "Raise incentives", Status: StatusActive, Choices: []string{"For", "Against"}}
	require.NoError(t, p.Validate())

	missing := p
	missing.DAO = ""
	err := missing.Validate()
	require.Error(t, err)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "dao", ve.Field)

	dup := p
	dup.Choices = []string{"For", "for"}
	assert.True(t, IsValidation(dup.Validate()))

	bad := p
	bad.Status = "pending"
	assert.True(t, IsValidation(bad.Validate()))
}

func TestProposalTransitions(t *testing.T) {
	p := Proposal{Status: StatusActive}
	assert.True(t, p.CanTransition(StatusClosed))
	p.Status = StatusClosed
	assert.False(t, p.CanTransition(StatusActive))
	assert.True(t, p.CanTransition(StatusClosed))
}

func TestProposalTerms(t *testing.T) {
	p := Proposal{
		Title:    "Increase Treasury Grants",
		Metadata: ProposalMetadata{Category: "treasury", Keywords: []string{"Grants", "ecosystem"}},
	}
	terms := p.Terms()
	assert.Contains(t, terms, "grants")
	assert.Contains(t, terms, "ecosystem")
	assert.Contains(t, terms, "treasury")
	assert.Contains(t, terms, "category:treasury")
	assert.Contains(t, terms, "increase")

	seen := map[string]int{}
	for _, term := range terms {
		seen[term]++
	}
	for term, n := range seen {
		assert.Equal(t, 1, n, term)
	}
}

func TestPreferenceBlend(t *testing.T) {
	now := time.Now()
	p := PreferenceProfile{DAO: "aave", Value: "security", Weight: 0, Confidence: 0.5}
	next := p.Blend(1, 1, 0.3, now)

	assert.InDelta(t, 0.3, next.Weight, 1e-9)
	assert.InDelta(t, 0.65, next.Confidence, 1e-9)
	assert.Equal(t, 1, next.Updates)
	assert.Equal(t, now, next.LastUpdated)

	// repeated signals converge without overshooting
	for i := 0; i < 50; i++ {
		next = next.Blend(1, 1, 0.3, now)
	}
	assert.LessOrEqual(t, next.Weight, 1.0)
	assert.InDelta(t, 1.0, next.Weight, 1e-6)
}

func TestSentimentValidate(t *testing.T) {
	r := SentimentRecord{ProposalID: "p", DAO: "d", Source: "forum", Polarity: 0.4, Volume: 10}
	require.NoError(t, r.Validate())

	r.Polarity = 1.2
	assert.True(t, IsValidation(r.Validate()))

	r.Polarity = 0
	r.Volume = -1
	assert.True(t, IsValidation(r.Validate()))
}

func TestConsensusLabel(t *testing.T) {
	cases := map[float64]string{
		0.8:  ConsensusStrongSupport,
		0.3:  ConsensusModerateSupport,
		0.0:  ConsensusNeutral,
		-0.4: ConsensusConcern,
		-0.9: ConsensusStrongOpposition,
	}
	for score, want := range cases {
		assert.Equal(t, want, SentimentConsensus{Score: score, Samples: 1}.Label(), "score %v", score)
	}
	assert.Equal(t, ConsensusNeutral, SentimentConsensus{Score: 0.9}.Label())
}

func TestOutcomeValidate(t *testing.T) {
	o := OutcomeRecord{ProposalID: "p", DAO: "d", PredictedChoice: "For", ActualChoice: "Against", PredictedConfidence: 0.7}
	require.NoError(t, o.Validate())
	o.PredictedConfidence = 1.5
	assert.True(t, IsValidation(o.Validate()))
	o.PredictedConfidence = 0.7
	o.ParticipationRate = math.NaN()
	assert.True(t, IsValidation(o.Validate()))
	assert.True(t, SameChoice(" for", "FOR"))
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &SourceError{Source: "forum", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "forum")

	ext := &ExternalServiceError{Service: "membase", Op: "write", Attempts: 3, Err: cause}
	assert.ErrorIs(t, ext, cause)
	assert.Contains(t, ext.Error(), "3 attempts")
}
