package ai

import (
	"context"
	"sync"
)

// MockCompleter returns canned replies, used when no API key is configured and in tests
type MockCompleter struct {
	mu      sync.Mutex
	Reply   string
	Err     error
	Prompts []string
}

func (m *MockCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Prompts = append(m.Prompts, prompt)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return m.Reply, m.Err
}
