package ai

import "context"

// Metadata describes the repository being reviewed
type Metadata struct {
	FullName    string `json:"full_name"`
	Description string `json:"description,omitempty"`
}

// Suggestion is the outcome of one generation.
// When Fallback is set, Text holds FallbackText and Err the cause.
type Suggestion struct {
	Text     string `json:"text"`
	Fallback bool   `json:"fallback"`
	Err      error  `json:"-"`
}

// Completer sends a single prompt to a model and returns its text answer
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Name() string
}
