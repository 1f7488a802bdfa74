package core

import (
	"math"
	"strings"
	"time"
)

// PreferenceProfile is a learned DAO-level value weight
type PreferenceProfile struct {
	ID          string    `json:"id"`
	DAO         string    `json:"dao"`
	Value       string    `json:"value"`
	Weight      float64   `json:"weight"`     // -1.0 (community opposes) to 1.0 (community favours)
	Confidence  float64   `json:"confidence"` // 0.0 to 1.0
	Updates     int       `json:"updates"`
	LastUpdated time.Time `json:"last_updated"`
}

// Validate checks required fields and bounds
func (p PreferenceProfile) Validate() error {
	if p.DAO == "" {
		return NewValidationError("preference", "dao", "is required")
	}
	if strings.TrimSpace(p.Value) == "" {
		return NewValidationError("preference", "value", "is required")
	}
	if math.IsNaN(p.Weight) || p.Weight < -1 || p.Weight > 1 {
		return NewValidationError("preference", "weight", "must be within [-1, 1]")
	}
	if math.IsNaN(p.Confidence) || p.Confidence < 0 || p.Confidence > 1 {
		return NewValidationError("preference", "confidence", "must be within [0, 1]")
	}
	return nil
}

// Blend moves the profile toward a new signal instead of overwriting it.
// alpha is the weight given to the new signal.
func (p PreferenceProfile) Blend(signal, confidence, alpha float64, at time.Time) PreferenceProfile {
	alpha = Clamp(alpha, 0, 1)
	next := p
	next.Weight = Clamp((1-alpha)*p.Weight+alpha*signal, -1, 1)
	next.Confidence = Clamp((1-alpha)*p.Confidence+alpha*confidence, 0, 1)
	next.Updates = p.Updates + 1
	next.LastUpdated = at
	return next
}

// PreferencePrediction is the predicted alignment of a proposal with community values
type PreferencePrediction struct {
	Score    float64            `json:"score"` // -1.0 to 1.0
	Matched  int                `json:"matched"`
	Profiles int                `json:"profiles"`
	Terms    map[string]float64 `json:"terms,omitempty"`
}

// Clamp bounds v to [lo, hi]
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

// Preference labels
const (
	PreferenceLikelySupport = "likely_support"
	PreferenceLikelyOppose  = "likely_oppose"
	PreferenceUncertain     = "uncertain"
)

// Label maps the prediction score onto a coarse expectation
func (p PreferencePrediction) Label() string {
	switch {
	case p.Matched == 0:
		return PreferenceUncertain
	case p.Score > 0.3:
		return PreferenceLikelySupport
	case p.Score < -0.3:
		return PreferenceLikelyOppose
	default:
		return PreferenceUncertain
	}
}
