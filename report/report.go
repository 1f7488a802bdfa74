package report

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/NethermindEth/eternalgov/core"
	"github.com/NethermindEth/eternalgov/crypto"
	"github.com/NethermindEth/eternalgov/reasoning"
)

// ChoiceScore is one row of the score table
type ChoiceScore struct {
	Choice      string  `json:"choice"`
	Score       float64 `json:"score"`
	Recommended bool    `json:"recommended"`
}

// Report is the auditable justification of a recommendation
type Report struct {
	ProposalID        string              `json:"proposal_id"`
	DAO               string              `json:"dao"`
	Title             string              `json:"title"`
	RecommendedChoice string              `json:"recommended_choice"`
	Confidence        float64             `json:"confidence"`
	RiskLevel         string              `json:"risk_level"`
	Summary           string              `json:"summary"`
	Factors           []core.FactorWeight `json:"factors"`
	Scores            []ChoiceScore       `json:"scores"`
	DataSources       []string            `json:"data_sources"`
	TieBroken         bool                `json:"tie_broken"`
	ReasoningHash     string              `json:"reasoning_hash"`
	TransparencyScore float64             `json:"transparency_score"`
	GeneratedAt       time.Time           `json:"generated_at"`
}

// knownFactors is the number of distinct factors the engine can use
const knownFactors = 4

// Build assembles the report. Every factor passed in, and every factor of the
// recommendation rationale, appears in the result.
func Build(rec core.VoteRecommendation, p core.Proposal, factors []reasoning.Factor) Report {
	r := Report{
		ProposalID:        rec.ProposalID,
		DAO:               rec.DAO,
		Title:             p.Title,
		RecommendedChoice: rec.RecommendedChoice,
		Confidence:        rec.Confidence,
		RiskLevel:         core.RiskLevel(rec.Confidence),
		TieBroken:         rec.TieBroken,
		DataSources:       append([]string{}, p.Metadata.Sources...),
		GeneratedAt:       rec.GeneratedAt,
		Factors:           make([]core.FactorWeight, 0, len(factors)),
	}

	rationale := make(map[string]core.FactorWeight, len(rec.Rationale))
	for _, fw := range rec.Rationale {
		rationale[fw.Factor] = fw
	}
	seen := make(map[string]bool)
	for _, f := range factors {
		fw, ok := rationale[f.Name]
		if !ok {
			fw = core.FactorWeight{
				Factor:       f.Name,
				Weight:       f.Weight,
				Signal:       f.Signal,
				Contribution: f.Contributions[rec.RecommendedChoice],
				Direction:    core.DirectionNeutral,
				Detail:       f.Detail,
			}
		}
		r.Factors = append(r.Factors, fw)
		seen[f.Name] = true
	}
	for _, fw := range rec.Rationale {
		if !seen[fw.Factor] {
			r.Factors = append(r.Factors, fw)
			seen[fw.Factor] = true
		}
	}

	for _, c := range p.Choices {
		r.Scores = append(r.Scores, ChoiceScore{Choice: c, Score: rec.ChoiceScores[c], Recommended: c == rec.RecommendedChoice})
	}
	if len(r.Scores) == 0 {
		r.Scores = append(r.Scores, ChoiceScore{Choice: rec.RecommendedChoice, Score: rec.ChoiceScores[rec.RecommendedChoice], Recommended: true})
	}

	r.Summary = summarize(r)
	r.ReasoningHash = Hash(r)
	r.TransparencyScore = transparency(r)
	return r
}

func summarize(r Report) string {
	var supports, opposes int
	for _, f := range r.Factors {
		switch f.Direction {
		case core.DirectionSupports:
			supports++
		case core.DirectionOpposes:
			opposes++
		}
	}
	s := fmt.Sprintf("EternalGov recommends voting %s with %.0f%% confidence (%s risk). %d of %d factors support the choice, %d oppose it.",
		r.RecommendedChoice, r.Confidence*100, r.RiskLevel, supports, len(r.Factors), opposes)
	if len(r.Factors) == 0 {
		s = fmt.Sprintf("EternalGov recommends voting %s with %.0f%% confidence (%s risk). No community signal was available, so the status quo was preferred.",
			r.RecommendedChoice, r.Confidence*100, r.RiskLevel)
	}
	return s
}

type canonical struct {
	ProposalID string              `json:"proposal_id"`
	DAO        string              `json:"dao"`
	Choice     string              `json:"choice"`
	Confidence float64             `json:"confidence"`
	Factors    []core.FactorWeight `json:"factors"`
	Scores     []ChoiceScore       `json:"scores"`
}

// Hash is the keccak256 digest of the canonical rationale, suitable for on-chain reference
func Hash(r Report) string {
	data, err := json.Marshal(canonical{
		ProposalID: r.ProposalID,
		DAO:        r.DAO,
		Choice:     r.RecommendedChoice,
		Confidence: math.Round(r.Confidence*1e6) / 1e6,
		Factors:    r.Factors,
		Scores:     r.Scores,
	})
	if err != nil {
		return ""
	}
	return crypto.Keccak256Hex(data)
}

// transparency grades how well the report can be audited, in [0, 1]
func transparency(r Report) float64 {
	score := 0.4 * math.Min(1, float64(len(r.Factors))/knownFactors)

	switch n := len(r.DataSources); {
	case n >= 3:
		score += 0.3
	case n == 2:
		score += 0.2
	case n == 1:
		score += 0.1
	}

	if len(r.Factors) > 0 {
		detailed := 0
		for _, f := range r.Factors {
			if f.Detail != "" {
				detailed++
			}
		}
		score += 0.3 * float64(detailed) / float64(len(r.Factors))
	}
	return core.Clamp(score, 0, 1)
}
