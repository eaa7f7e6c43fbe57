package ai

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

// geminiCompleter calls the Gemini API through the genai SDK
type geminiCompleter struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Completer for a gemini-* model
func NewGemini(ctx context.Context, cfg ProviderConfig) (Completer, error) {
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	if cc.HTTPClient == nil {
		cc.HTTPClient = http.DefaultClient
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &geminiCompleter{client: client, model: cfg.Model}, nil
}

func (g *geminiCompleter) Name() string { return "gemini:" + g.model }

func (g *geminiCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Text(), nil
}
