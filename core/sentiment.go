package core

import (
	"math"
	"time"
)

// SentimentRecord is one community opinion sample for a proposal from a single source
type SentimentRecord struct {
	ID          string    `json:"id"`
	ProposalID  string    `json:"proposal_id"`
	DAO         string    `json:"dao"`
	Source      string    `json:"source"`
	Polarity    float64   `json:"polarity"` // -1.0 to 1.0
	Volume      int       `json:"volume"`
	Support     int       `json:"support,omitempty"`
	Opposition  int       `json:"opposition,omitempty"`
	Neutral     int       `json:"neutral,omitempty"`
	Topics      []string  `json:"topics,omitempty"`
	CollectedAt time.Time `json:"collected_at"`
}

// Validate checks required fields and bounds
func (r SentimentRecord) Validate() error {
	if r.ProposalID == "" {
		return NewValidationError("sentiment", "proposal_id", "is required")
	}
	if r.DAO == "" {
		return NewValidationError("sentiment", "dao", "is required")
	}
	if r.Source == "" {
		return NewValidationError("sentiment", "source", "is required")
	}
	if math.IsNaN(r.Polarity) || r.Polarity < -1 || r.Polarity > 1 {
		return NewValidationError("sentiment", "polarity", "must be within [-1, 1]")
	}
	if r.Volume < 0 || r.Support < 0 || r.Opposition < 0 || r.Neutral < 0 {
		return NewValidationError("sentiment", "volume", "must not be negative")
	}
	return nil
}

// SourceSentiment summarises the samples of one source
type SourceSentiment struct {
	Source     string  `json:"source"`
	Polarity   float64 `json:"polarity"`
	Volume     int     `json:"volume"`
	Support    int     `json:"support"`
	Opposition int     `json:"opposition"`
	Samples    int     `json:"samples"`
}

// SentimentConsensus is the aggregated community opinion across sources
type SentimentConsensus struct {
	ProposalID  string            `json:"proposal_id"`
	Score       float64           `json:"score"`
	Volume      int               `json:"volume"`
	Samples     int               `json:"samples"`
	BySource    []SourceSentiment `json:"by_source"`
	LastUpdated time.Time         `json:"last_updated,omitempty"`
}

// Consensus labels
const (
	ConsensusStrongSupport    = "strong_support"
	ConsensusModerateSupport  = "moderate_support"
	ConsensusNeutral          = "neutral"
	ConsensusConcern          = "concern"
	ConsensusStrongOpposition = "strong_opposition"
)

// Label maps the consensus score onto a coarse community stance
func (c SentimentConsensus) Label() string {
	if c.Samples == 0 {
		return ConsensusNeutral
	}
	switch {
	case c.Score > 0.6:
		return ConsensusStrongSupport
	case c.Score > 0.2:
		return ConsensusModerateSupport
	case c.Score > -0.2:
		return ConsensusNeutral
	case c.Score > -0.6:
		return ConsensusConcern
	default:
		return ConsensusStrongOpposition
	}
}
