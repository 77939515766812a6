// Package llmtest provides a function-field implementation of llm.Client for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/jonathan/booksmith/internal/llm"
)

// MockClient implements llm.Client. Nil funcs return zero values.
type MockClient struct {
	GenerateContentFunc func(ctx context.Context, prompt string, tier llm.ModelTier) (string, error)
	GenerateJSONFunc    func(ctx context.Context, prompt string, schema *llm.Schema, tier llm.ModelTier) (string, error)
	GenerateImageFunc   func(ctx context.Context, prompt string, tier llm.ModelTier) (*llm.Image, error)
	GetModelFunc        func(tier llm.ModelTier) string
	CloseFunc           func() error

	mu      sync.Mutex
	prompts []string
}

// Prompts returns every prompt received, in call order.
func (m *MockClient) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

func (m *MockClient) record(prompt string) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
}

func (m *MockClient) GenerateContent(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	m.record(prompt)
	if m.GenerateContentFunc != nil {
		return m.GenerateContentFunc(ctx, prompt, tier)
	}
	return "", nil
}

func (m *MockClient) GenerateJSON(ctx context.Context, prompt string, schema *llm.Schema, tier llm.ModelTier) (string, error) {
	m.record(prompt)
	if m.GenerateJSONFunc != nil {
		return m.GenerateJSONFunc(ctx, prompt, schema, tier)
	}
	return "{}", nil
}

func (m *MockClient) GenerateImage(ctx context.Context, prompt string, tier llm.ModelTier) (*llm.Image, error) {
	m.record(prompt)
	if m.GenerateImageFunc != nil {
		return m.GenerateImageFunc(ctx, prompt, tier)
	}
	return nil, nil
}

func (m *MockClient) GetModel(tier llm.ModelTier) string {
	if m.GetModelFunc != nil {
		return m.GetModelFunc(tier)
	}
	return "mock-model"
}

func (m *MockClient) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

var _ llm.Client = (*MockClient)(nil)
