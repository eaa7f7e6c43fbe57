package ai

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/saint0x/repochecker/pkg/sampler"
)

const (
	// DefaultMaxContentChars bounds each file's content in the prompt
	DefaultMaxContentChars = 5000

	// NoDescription stands in for an empty repository description
	NoDescription = "No description provided"

	truncationMarker = "..."
)

// FileView is a file as it appears in the prompt
type FileView struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Overview is the repository summary sent to the model
type Overview struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Files       []FileView `json:"files"`
}

// NewOverview builds the prompt view of a repository, truncating each file to maxChars
func NewOverview(name, description string, files []sampler.File, maxChars int) Overview {
	if description == "" {
		description = NoDescription
	}
	views := make([]FileView, 0, len(files))
	for _, f := range files {
		views = append(views, FileView{Path: f.Path, Content: Truncate(f.Content, maxChars)})
	}
	return Overview{Name: name, Description: description, Files: views}
}

// Truncate returns the first max characters of s followed by "..." when s is longer.
// Characters are Unicode code points; a multi-byte sequence is never split.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i] + truncationMarker
		}
		n++
	}
	return s
}

// PromptConfig holds the fixed instruction text around the repository data
type PromptConfig struct {
	Preamble string `yaml:"preamble"`
	Closing  string `yaml:"closing"`
}

// DefaultPromptConfig returns the built-in review instructions
func DefaultPromptConfig() PromptConfig {
	return PromptConfig{
		Preamble: "You are an expert code reviewer and software architect. " +
			"Analyze the repository files and provide helpful, actionable suggestions for improvement.\n" +
			"Focus on architecture, best practices, security issues, and code organization. " +
			"Provide specific examples where possible.",
		Closing: "Please provide a comprehensive analysis with specific improvement suggestions.",
	}
}

// LoadPromptConfig reads prompt overrides from a YAML file.
// Fields left empty keep their default text.
func LoadPromptConfig(path string) (PromptConfig, error) {
	cfg := DefaultPromptConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read prompt file: %w", err)
	}

	var override PromptConfig
	if err := yaml.Unmarshal(data, &override); err != nil {
		return cfg, fmt.Errorf("failed to parse prompt file: %w", err)
	}
	if s := strings.TrimSpace(override.Preamble); s != "" {
		cfg.Preamble = s
	}
	if s := strings.TrimSpace(override.Closing); s != "" {
		cfg.Closing = s
	}
	return cfg, nil
}

// BuildPrompt renders the single review prompt for o
func BuildPrompt(cfg PromptConfig, o Overview) string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(cfg.Preamble)
	b.WriteString("\n\nRepository information:\n")
	fmt.Fprintf(&b, "- Name: %s\n", o.Name)
	fmt.Fprintf(&b, "- Description: %s\n", o.Description)
	b.WriteString("\nFiles to analyze:\n")
	for i, f := range o.Files {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "\nFile path: %s\nContent:\n```\n%s\n```\n", f.Path, f.Content)
	}
	b.WriteString("\n\n")
	b.WriteString(cfg.Closing)
	b.WriteString("\n")
	return b.String()
}
