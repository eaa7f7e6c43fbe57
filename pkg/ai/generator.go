package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/saint0x/repochecker/pkg/log"
	"github.com/saint0x/repochecker/pkg/sampler"
)

// FallbackText replaces the suggestions when the model call fails
const FallbackText = "Could not generate suggestions due to an error. Please check the logs."

// DefaultTimeout bounds a single completion call
const DefaultTimeout = 2 * time.Minute

// ErrEmptyResponse is returned by completers when the model produced no text
var ErrEmptyResponse = errors.New("model returned an empty response")

// Generator turns sampled files into review suggestions
type Generator struct {
	logger    *log.Logger
	completer Completer
	prompt    PromptConfig
	maxChars  int
	timeout   time.Duration
}

// Option configures a Generator
type Option func(*Generator)

// WithPromptConfig replaces the built-in instruction text
func WithPromptConfig(cfg PromptConfig) Option {
	return func(g *Generator) { g.prompt = cfg }
}

// WithMaxContentChars sets the per-file truncation limit
func WithMaxContentChars(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxChars = n
		}
	}
}

// WithTimeout bounds each completion call
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) { g.timeout = d }
}

// New creates a new Generator instance
func New(logger *log.Logger, completer Completer, opts ...Option) *Generator {
	g := &Generator{
		logger:    logger,
		completer: completer,
		prompt:    DefaultPromptConfig(),
		maxChars:  DefaultMaxContentChars,
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Prompt renders the prompt Generate would send for files and meta
func (g *Generator) Prompt(files []sampler.File, meta Metadata) string {
	return BuildPrompt(g.prompt, NewOverview(meta.FullName, meta.Description, files, g.maxChars))
}

// Generate makes exactly one completion call. Failures never surface as
// errors: they produce a fallback Suggestion carrying the cause.
func (g *Generator) Generate(ctx context.Context, files []sampler.File, meta Metadata) Suggestion {
	prompt := g.Prompt(files, meta)
	g.logger.Debug("Sending %d files (%d bytes) to %s", len(files), len(prompt), g.completer.Name())

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	text, err := g.completer.Complete(ctx, prompt)
	if err == nil && strings.TrimSpace(text) == "" {
		err = ErrEmptyResponse
	}
	if err != nil {
		return Suggestion{
			Text:     FallbackText,
			Fallback: true,
			Err:      fmt.Errorf("%s completion failed: %w", g.completer.Name(), err),
		}
	}
	return Suggestion{Text: text}
}
