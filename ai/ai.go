package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/NethermindEth/eternalgov/core"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ErrNoAPIKey is returned when no model credentials are configured
var ErrNoAPIKey = errors.New("OPENAI_API_KEY not set")

// Completer produces a model reply for a system and user prompt
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// LLMConfig holds configuration for LLM interactions
type LLMConfig struct {
	Model       string
	MaxTokens   int
	Temperature float32
	StopTokens  []string
	BaseURL     string
	JSONMode    bool
}

// DefaultLLMConfig returns standard LLM configuration
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Model:       openai.GPT4oMini,
		MaxTokens:   1024,
		Temperature: 0.2,
		JSONMode:    true,
	}
}

// Client talks to an OpenAI-compatible chat completion endpoint
type Client struct {
	client *openai.Client
	config LLMConfig
	logger *zap.Logger
}

func NewClient(apiKey string, config LLMConfig, logger *zap.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := openai.DefaultConfig(apiKey)
	if config.BaseURL != "" {
		cfg.BaseURL = config.BaseURL
	}
	return &Client{client: openai.NewClientWithConfig(cfg), config: config, logger: logger}, nil
}

// Complete sends a request to the chat completion API
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
		Stop:        c.config.StopTokens,
	}
	if c.config.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", &core.ExternalServiceError{Service: "llm", Op: "chat_completion", Attempts: 1, Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &core.ExternalServiceError{Service: "llm", Op: "chat_completion", Attempts: 1, Err: errors.New("empty response")}
	}
	c.logger.Debug("llm completion",
		zap.String("model", resp.Model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))
	return resp.Choices[0].Message.Content, nil
}

// CompleteJSON asks for a JSON reply, validates it against schema and decodes it into out
func CompleteJSON(ctx context.Context, c Completer, v *Validator, schema any, system, prompt string, out any) error {
	reply, err := c.Complete(ctx, system, prompt)
	if err != nil {
		return err
	}
	doc := ExtractJSON(reply)
	if v != nil && schema != nil {
		if err := v.Validate(schema, doc); err != nil {
			return err
		}
	}
	if err := json.Unmarshal([]byte(doc), out); err != nil {
		return fmt.Errorf("invalid JSON response: %w", err)
	}
	return nil
}

// ExtractJSON strips markdown code fences and surrounding prose from a model reply
func ExtractJSON(reply string) string {
	s := strings.TrimSpace(reply)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.IndexAny(s, "{[")
	end := strings.LastIndexAny(s, "}]")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
