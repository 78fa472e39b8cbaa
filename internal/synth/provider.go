// Package synth turns a (category, topic) request into an unsaved article
// record using a text-completion provider.
package synth

import (
	"context"
	"fmt"
	"time"
)

// Provider kinds.
const (
	KindOpenAI = "openai"
	KindGemini = "gemini"
)

// Generation defaults.
const (
	DefaultMaxTokens   = 3000
	DefaultTemperature = 0.7
	DefaultTimeout     = 120 * time.Second
)

// Prompt is one completion request.
type Prompt struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// Completion is the provider's answer.
type Completion struct {
	Text       string
	TokensUsed int
}

// Provider is a text-completion backend. Implementations return
// *apperr.GenerationError for every classified failure.
type Provider interface {
	Complete(ctx context.Context, p Prompt) (*Completion, error)
	Verify(ctx context.Context) error
	Name() string
}

// ProviderConfig selects and configures a Provider.
type ProviderConfig struct {
	Kind    string
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// NewProvider builds the provider named by cfg.Kind.
func NewProvider(ctx context.Context, cfg ProviderConfig) (Provider, error) {
	switch cfg.Kind {
	case "", KindOpenAI:
		return NewOpenAI(OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}), nil
	case KindGemini:
		return NewGemini(ctx, GeminiConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
	default:
		return nil, fmt.Errorf("synth: unknown provider kind %q", cfg.Kind)
	}
}
