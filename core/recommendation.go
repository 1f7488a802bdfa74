package core

import "time"

// Direction of a factor relative to the recommended choice
const (
	DirectionSupports = "supports"
	DirectionOpposes  = "opposes"
	DirectionNeutral  = "neutral"
)

// FactorWeight records how one factor contributed to a recommendation
type FactorWeight struct {
	Factor       string  `json:"factor"`
	Weight       float64 `json:"weight"`
	Signal       float64 `json:"signal"`
	Contribution float64 `json:"contribution"`
	Direction    string  `json:"direction"`
	Detail       string  `json:"detail,omitempty"`
}

// VoteRecommendation is the scored output of the reasoning engine
type VoteRecommendation struct {
	ProposalID        string             `json:"proposal_id"`
	DAO               string             `json:"dao"`
	RecommendedChoice string             `json:"recommended_choice"`
	Confidence        float64            `json:"confidence"`
	Rationale         []FactorWeight     `json:"rationale"`
	ChoiceScores      map[string]float64 `json:"choice_scores"`
	TieBroken         bool               `json:"tie_broken,omitempty"`
	GeneratedAt       time.Time          `json:"generated_at"`
}

// VoteReceipt is returned by the chain client after a vote was cast
type VoteReceipt struct {
	ProposalID string    `json:"proposal_id"`
	DAO        string    `json:"dao"`
	Choice     string    `json:"choice"`
	TxHash     string    `json:"tx_hash"`
	Proof      string    `json:"proof"`
	CastAt     time.Time `json:"cast_at"`
}

// Risk levels derived from recommendation confidence
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// RiskLevel grades how risky it is to act on a recommendation
func RiskLevel(confidence float64) string {
	switch {
	case confidence >= 0.75:
		return RiskLow
	case confidence >= 0.5:
		return RiskMedium
	default:
		return RiskHigh
	}
}
