// Package issue formats review suggestions and files them as a GitHub issue.
package issue

import (
	"context"
	"fmt"

	"github.com/google/go-github/v57/github"
)

// Title is the fixed title of every suggestions issue
const Title = "AI-powered Repository Suggestions"

// DefaultProjectURL is linked from the issue footer
const DefaultProjectURL = "https://github.com/saint0x/repochecker"

// DefaultLabels are applied to every suggestions issue
var DefaultLabels = []string{"enhancement", "ai-suggestion"}

// IssueCreator is the write capability the publisher needs
type IssueCreator interface {
	CreateIssue(ctx context.Context, owner, repo string, req *github.IssueRequest) (*github.Issue, error)
}

// Issue is the issue about to be filed
type Issue struct {
	Title  string
	Body   string
	Labels []string
}

// Publisher turns suggestion text into an issue
type Publisher struct {
	labels     []string
	projectURL string
}

// NewPublisher creates a Publisher; empty arguments select the defaults
func NewPublisher(labels []string, projectURL string) *Publisher {
	if len(labels) == 0 {
		labels = DefaultLabels
	}
	if projectURL == "" {
		projectURL = DefaultProjectURL
	}
	return &Publisher{labels: append([]string(nil), labels...), projectURL: projectURL}
}

// Format builds the issue for text without creating it
func (p *Publisher) Format(text string) Issue {
	return Issue{
		Title:  Title,
		Body:   FormatBody(text, p.projectURL),
		Labels: append([]string(nil), p.labels...),
	}
}

// FormatBody wraps the suggestions in the issue template
func FormatBody(text, projectURL string) string {
	return fmt.Sprintf(`# Repository Analysis Suggestions

Our AI assistant has analyzed your repository and came up with these suggestions:

%s

---
*This issue was automatically created by RepoChecker, an AI-powered GitHub App.*
*If you found this helpful, consider starring the [RepoChecker](%s) repository.*`, text, projectURL)
}

// Publish creates the issue. Failures are returned to the caller
// unlogged and are not retried.
func (p *Publisher) Publish(ctx context.Context, c IssueCreator, owner, repo, text string) (*github.Issue, error) {
	iss := p.Format(text)
	created, err := c.CreateIssue(ctx, owner, repo, &github.IssueRequest{
		Title:  github.String(iss.Title),
		Body:   github.String(iss.Body),
		Labels: &iss.Labels,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to publish suggestions to %s/%s: %w", owner, repo, err)
	}
	return created, nil
}
