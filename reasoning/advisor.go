package reasoning

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/NethermindEth/eternalgov/ai"
	"github.com/NethermindEth/eternalgov/core"
	"go.uber.org/zap"
)

// Advisor scores each choice of a proposal in [-1, 1]
type Advisor interface {
	ScoreChoices(ctx context.Context, p core.Proposal) (map[string]float64, error)
}

const advisorSystemPrompt = "You are a careful DAO governance analyst. You answer with JSON only."

var advisorSchema = map[string]any{
	"type":     "object",
	"required": []string{"scores"},
	"properties": map[string]any{
		"scores": map[string]any{
			"type":                 "object",
			"minProperties":        1,
			"additionalProperties": map[string]any{"type": "number", "minimum": -1, "maximum": 1},
		},
		"summary": map[string]any{"type": "string"},
	},
}

type advisorReply struct {
	Scores  map[string]float64 `json:"scores"`
	Summary string             `json:"summary"`
}

// LLMAdvisor asks a language model to score the choices
type LLMAdvisor struct {
	llm       ai.Completer
	validator *ai.Validator
	logger    *zap.Logger
}

func NewLLMAdvisor(llm ai.Completer, logger *zap.Logger) *LLMAdvisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMAdvisor{llm: llm, validator: ai.NewValidator(), logger: logger}
}

func (a *LLMAdvisor) ScoreChoices(ctx context.Context, p core.Proposal) (map[string]float64, error) {
	var reply advisorReply
	if err := ai.CompleteJSON(ctx, a.llm, a.validator, advisorSchema, advisorSystemPrompt, buildPrompt(p), &reply); err != nil {
		return nil, fmt.Errorf("failed to score proposal %s: %w", p.ID, err)
	}

	scores := make(map[string]float64, len(p.Choices))
	matched := 0
	for _, c := range p.Choices {
		v, ok := reply.Scores[c]
		if !ok {
			for k, s := range reply.Scores {
				if strings.EqualFold(strings.TrimSpace(k), c) {
					v, ok = s, true
					break
				}
			}
		}
		if ok {
			matched++
		}
		scores[c] = v
	}
	if matched == 0 {
		return nil, errors.New("model reply did not score any of the proposal choices")
	}
	a.logger.Debug("advisor scored proposal", zap.String("proposal", p.ID), zap.String("summary", reply.Summary))
	return scores, nil
}

func buildPrompt(p core.Proposal) string {
	body := p.Body
	if len(body) > 500 {
		body = body[:500]
	}
	quoted := make([]string, len(p.Choices))
	for i, c := range p.Choices {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	return fmt.Sprintf(`Analyze this DAO governance proposal.

Title: %s
DAO: %s
Category: %s

Proposal Details:
%s

Voting Options: %s

Score every voting option from -1 (harmful to the DAO's long-term value) to 1
(clearly beneficial). Return a JSON object:
{
	"scores": {"<option>": number, ...},
	"summary": "one sentence explaining the main consideration"
}`, p.Title, p.DAO, p.Metadata.Category, body, strings.Join(quoted, ", "))
}
