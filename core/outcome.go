package core

import (
	"math"
	"strings"
	"time"
)

// OutcomeRecord stores a past recommendation next to the actual vote result
type OutcomeRecord struct {
	ID                  string    `json:"id"`
	ProposalID          string    `json:"proposal_id"`
	DAO                 string    `json:"dao"`
	PredictedChoice     string    `json:"predicted_choice"`
	ActualChoice        string    `json:"actual_choice"`
	PredictedConfidence float64   `json:"predicted_confidence"`
	Correct             bool      `json:"correct"`
	Passed              bool      `json:"passed"`
	ParticipationRate   float64   `json:"participation_rate,omitempty"`
	RecordedAt          time.Time `json:"recorded_at"`
}

// Validate checks required fields and bounds
func (o OutcomeRecord) Validate() error {
	if o.ProposalID == "" {
		return NewValidationError("outcome", "proposal_id", "is required")
	}
	if o.DAO == "" {
		return NewValidationError("outcome", "dao", "is required")
	}
	if strings.TrimSpace(o.PredictedChoice) == "" {
		return NewValidationError("outcome", "predicted_choice", "is required")
	}
	if strings.TrimSpace(o.ActualChoice) == "" {
		return NewValidationError("outcome", "actual_choice", "is required")
	}
	if math.IsNaN(o.PredictedConfidence) || o.PredictedConfidence < 0 || o.PredictedConfidence > 1 {
		return NewValidationError("outcome", "predicted_confidence", "must be within [0, 1]")
	}
	if math.IsNaN(o.ParticipationRate) || o.ParticipationRate < 0 || o.ParticipationRate > 1 {
		return NewValidationError("outcome", "participation_rate", "must be within [0, 1]")
	}
	return nil
}

// Accuracy is the share of correct predictions in a window. Samples == 0 means
// there is no history, which is different from a measured 0% accuracy.
type Accuracy struct {
	Value   float64 `json:"value"`
	Samples int     `json:"samples"`
	Correct int     `json:"correct"`
}

// Known reports whether the accuracy is backed by at least one outcome
func (a Accuracy) Known() bool {
	return a.Samples > 0
}

// SameChoice compares vote choices the way outcomes are judged
func SameChoice(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
