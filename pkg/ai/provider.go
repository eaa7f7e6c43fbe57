package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Provider identifies a model vendor
type Provider string

const (
	ProviderGemini    Provider = "gemini"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// ProviderConfig carries what a completer needs to reach its API
type ProviderConfig struct {
	Model   string
	APIKey  string
	BaseURL string

	// HTTPClient overrides the transport, mainly for tests
	HTTPClient *http.Client
}

// ProviderFor picks the vendor from the model name:
//   - claude-* use Anthropic
//   - gpt-*, o1*, o3*, o4* use OpenAI
//   - everything else, gemini-* included, uses Gemini
func ProviderFor(model string) Provider {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "claude-"):
		return ProviderAnthropic
	case strings.HasPrefix(m, "gpt-"), strings.HasPrefix(m, "o1"),
		strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4"):
		return ProviderOpenAI
	default:
		return ProviderGemini
	}
}

// NewCompleter builds the Completer for cfg.Model
func NewCompleter(ctx context.Context, cfg ProviderConfig) (Completer, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("no API key for model %s", cfg.Model)
	}

	switch ProviderFor(cfg.Model) {
	case ProviderAnthropic:
		return NewAnthropic(cfg), nil
	case ProviderOpenAI:
		return NewOpenAI(cfg), nil
	default:
		return NewGemini(ctx, cfg)
	}
}
