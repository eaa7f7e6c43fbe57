package ai

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/saint0x/repochecker/pkg/log"
	"github.com/saint0x/repochecker/pkg/sampler"
)

// mockCompleter implements Completer for testing
type mockCompleter struct {
	response string
	err      error
	delay    time.Duration

	calls   int
	prompts []string
}

func (m *mockCompleter) Name() string { return "mock" }

func (m *mockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	m.calls++
	m.prompts = append(m.prompts, prompt)
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func testLogger() *log.Logger {
	return log.NewWithWriter(io.Discard, true)
}

func TestGenerate(t *testing.T) {
	mock := &mockCompleter{response: "1. Add a README\n2. Split main.go"}
	gen := New(testLogger(), mock)

	files := []sampler.File{
		{Path: "main.go", Size: 12, Content: "package main"},
	}
	got := gen.Generate(context.Background(), files, Metadata{FullName: "octo/demo", Description: "A demo"})

	if got.Fallback {
		t.Fatalf("unexpected fallback: %v", got.Err)
	}
	if got.Text != mock.response {
		t.Errorf("Text = %q, want %q", got.Text, mock.response)
	}
	if mock.calls != 1 {
		t.Errorf("completer called %d times, want 1", mock.calls)
	}
	for _, want := range []string{"- Name: octo/demo", "- Description: A demo", "File path: main.go", "package main"} {
		if !strings.Contains(mock.prompts[0], want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestGenerate_EmptyFilesStillCallsModel(t *testing.T) {
	mock := &mockCompleter{response: "Add some code"}
	gen := New(testLogger(), mock)

	got := gen.Generate(context.Background(), nil, Metadata{FullName: "octo/empty"})
	if got.Fallback {
		t.Fatalf("unexpected fallback: %v", got.Err)
	}
	if mock.calls != 1 {
		t.Fatalf("completer called %d times, want 1", mock.calls)
	}
	if !strings.Contains(mock.prompts[0], "- Description: "+NoDescription) {
		t.Errorf("prompt should carry the default description:\n%s", mock.prompts[0])
	}
	if strings.Contains(mock.prompts[0], "File path:") {
		t.Error("prompt should have an empty files section")
	}
}

func TestGenerate_Fallback(t *testing.T) {
	tests := []struct {
		name    string
		mock    *mockCompleter
		timeout time.Duration
		wantErr error
	}{
		{
			name:    "transport error",
			mock:    &mockCompleter{err: io.ErrUnexpectedEOF},
			wantErr: io.ErrUnexpectedEOF,
		},
		{
			name:    "empty response",
			mock:    &mockCompleter{response: "  \n"},
			wantErr: ErrEmptyResponse,
		},
		{
			name:    "timeout",
			mock:    &mockCompleter{response: "late", delay: time.Second},
			timeout: 10 * time.Millisecond,
			wantErr: context.DeadlineExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []Option
			if tt.timeout > 0 {
				opts = append(opts, WithTimeout(tt.timeout))
			}
			gen := New(testLogger(), tt.mock, opts...)

			got := gen.Generate(context.Background(), []sampler.File{{Path: "a.go", Content: "x"}}, Metadata{FullName: "octo/demo"})
			if !got.Fallback {
				t.Fatal("expected fallback")
			}
			if got.Text != FallbackText {
				t.Errorf("Text = %q, want fallback text", got.Text)
			}
			if !errors.Is(got.Err, tt.wantErr) {
				t.Errorf("Err = %v, want %v", got.Err, tt.wantErr)
			}
			if tt.mock.calls != 1 {
				t.Errorf("completer called %d times, want exactly 1", tt.mock.calls)
			}
		})
	}
}

func TestGenerate_TruncatesContent(t *testing.T) {
	mock := &mockCompleter{response: "ok"}
	gen := New(testLogger(), mock, WithMaxContentChars(5))

	gen.Generate(context.Background(), []sampler.File{
		{Path: "long.txt", Content: "abcdefghij"},
		{Path: "short.txt", Content: "abc"},
	}, Metadata{FullName: "octo/demo"})

	prompt := mock.prompts[0]
	if !strings.Contains(prompt, "```\nabcde...\n```") {
		t.Errorf("long file not truncated:\n%s", prompt)
	}
	if strings.Contains(prompt, "abcdef") {
		t.Error("prompt contains content beyond the limit")
	}
	if !strings.Contains(prompt, "```\nabc\n```") {
		t.Errorf("short file not verbatim:\n%s", prompt)
	}
}

func TestGenerate_PromptConfig(t *testing.T) {
	mock := &mockCompleter{response: "ok"}
	gen := New(testLogger(), mock, WithPromptConfig(PromptConfig{Preamble: "Review briefly.", Closing: "Thanks."}))

	gen.Generate(context.Background(), nil, Metadata{FullName: "octo/demo"})
	if !strings.HasPrefix(mock.prompts[0], "\nReview briefly.") || !strings.HasSuffix(mock.prompts[0], "Thanks.\n") {
		t.Errorf("custom prompt not applied:\n%s", mock.prompts[0])
	}
}
