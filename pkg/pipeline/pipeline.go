// Package pipeline runs one repository analysis: sample files, generate
// suggestions, publish them as an issue.
//
// A run moves Idle -> Sampling -> Generating -> Publishing -> Done, or ends in
// Failed with the stage that failed. Run never panics and never returns an
// error; everything the caller needs is in the Outcome.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-github/v57/github"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/saint0x/repochecker/pkg/ai"
	"github.com/saint0x/repochecker/pkg/issue"
	"github.com/saint0x/repochecker/pkg/log"
	"github.com/saint0x/repochecker/pkg/sampler"
)

const tracerName = "github.com/saint0x/repochecker/pkg/pipeline"

// Triggers
const (
	TriggerRepositoryCreated = "repository.created"
	TriggerPush              = "push"
	TriggerManual            = "manual"
)

// Stage is a pipeline state
type Stage int

const (
	Idle Stage = iota
	Sampling
	Generating
	Publishing
	Done
	Failed
)

func (s Stage) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sampling:
		return "sampling"
	case Generating:
		return "generating"
	case Publishing:
		return "publishing"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Repository identifies the repository under analysis
type Repository struct {
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	Description   string `json:"description,omitempty"`
	DefaultBranch string `json:"default_branch"`
}

// Target is one unit of work
type Target struct {
	Repo           Repository `json:"repository"`
	InstallationID int64      `json:"installation_id,omitempty"`
	Trigger        string     `json:"trigger"`
	DeliveryID     string     `json:"delivery_id,omitempty"`
}

// Outcome reports how a run ended
type Outcome struct {
	State       Stage
	FailedStage Stage
	Err         error

	Files       int
	Omitted     int
	Fallback    bool
	IssueNumber int
	IssueURL    string
}

// RepoClient is everything a run needs from GitHub
type RepoClient interface {
	sampler.RepoReader
	issue.IssueCreator
}

// ClientResolver returns an authenticated client for an installation
type ClientResolver func(ctx context.Context, installationID int64) (RepoClient, error)

// Pipeline wires the three stages together
type Pipeline struct {
	logger    *log.Logger
	resolve   ClientResolver
	sampler   *sampler.Sampler
	generator *ai.Generator
	publisher *issue.Publisher
}

// New creates a new Pipeline
func New(logger *log.Logger, resolve ClientResolver, s *sampler.Sampler, g *ai.Generator, p *issue.Publisher) *Pipeline {
	return &Pipeline{
		logger:    logger,
		resolve:   resolve,
		sampler:   s,
		generator: g,
		publisher: p,
	}
}

// Run executes one analysis of t.Repo
func (p *Pipeline) Run(ctx context.Context, t Target) (out Outcome) {
	logger := p.logger.With("repository", t.Repo.FullName, "trigger", t.Trigger)
	if t.DeliveryID != "" {
		logger = logger.With("delivery", t.DeliveryID)
	}
	ctx = logger.Context(ctx)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "repochecker.run", trace.WithAttributes(
		attribute.String("repository", t.Repo.FullName),
		attribute.String("trigger", t.Trigger),
		attribute.Int64("installation_id", t.InstallationID),
	))
	defer span.End()

	runsCounter.WithLabelValues(t.Trigger).Inc()
	logger.Repo("Analyzing repository: %s", t.Repo.FullName)

	current := Idle
	defer func() {
		if r := recover(); r != nil {
			out.State = Failed
			out.FailedStage = current
			out.Err = fmt.Errorf("panic during %s: %v", current, r)
		}
		p.finish(logger, span, t, out)
	}()

	// Sampling
	current = Sampling
	client, sample, err := p.sample(ctx, t)
	if err != nil {
		return Outcome{State: Failed, FailedStage: Sampling, Err: err}
	}
	out.Files = len(sample.Files)
	out.Omitted = len(sample.Omitted)

	// Generating
	current = Generating
	suggestion := p.generate(ctx, t, sample.Files)
	out.Fallback = suggestion.Fallback

	// Publishing
	current = Publishing
	created, err := p.publish(ctx, client, t, suggestion.Text)
	if err != nil {
		out.State = Failed
		out.FailedStage = Publishing
		out.Err = err
		return out
	}

	out.State = Done
	out.IssueNumber = created.GetNumber()
	out.IssueURL = created.GetHTMLURL()
	return out
}

// startStage opens a span and returns a func that closes it and records the duration
func startStage(ctx context.Context, s Stage) (context.Context, trace.Span, func()) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "repochecker."+s.String())
	return ctx, span, func() {
		stageDuration.WithLabelValues(s.String()).Observe(time.Since(start).Seconds())
		span.End()
	}
}

func (p *Pipeline) sample(ctx context.Context, t Target) (RepoClient, *sampler.Sample, error) {
	ctx, span, end := startStage(ctx, Sampling)
	defer end()
	logger := log.FromContext(ctx)

	client, err := p.resolve(ctx, t.InstallationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, fmt.Errorf("failed to get client: %w", err)
	}

	sample, err := p.sampler.Sample(ctx, client, t.Repo.Owner, t.Repo.Name, t.Repo.DefaultBranch)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}

	for _, o := range sample.Omitted {
		omittedCounter.WithLabelValues(string(o.Reason)).Inc()
		if o.Err == nil {
			logger.Debug("Skipping %s: %s", o.Path, o.Reason)
		}
	}
	for _, o := range sample.Failures() {
		logger.Warning("Could not get content for %s: %v", o.Path, o.Err)
	}
	if sample.Truncated {
		logger.Warning("File tree of %s was truncated by the API; sampling from the returned entries", t.Repo.FullName)
	}
	sampledCounter.Add(float64(len(sample.Files)))
	span.SetAttributes(
		attribute.Int("files.sampled", len(sample.Files)),
		attribute.Int("files.omitted", len(sample.Omitted)),
		attribute.Bool("tree.truncated", sample.Truncated),
	)
	logger.Step("Sampled %d of %d candidate files", len(sample.Files), sample.Considered)
	return client, sample, nil
}

func (p *Pipeline) generate(ctx context.Context, t Target, files []sampler.File) ai.Suggestion {
	ctx, span, end := startStage(ctx, Generating)
	defer end()
	logger := log.FromContext(ctx)

	logger.Step("Generating suggestions for repository: %s", t.Repo.FullName)
	suggestion := p.generator.Generate(ctx, files, ai.Metadata{
		FullName:    t.Repo.FullName,
		Description: t.Repo.Description,
	})
	if suggestion.Fallback {
		fallbackCounter.Inc()
		span.RecordError(suggestion.Err)
		span.SetStatus(codes.Error, suggestion.Err.Error())
		logger.Error("Error generating suggestions: %v", suggestion.Err)
	}
	return suggestion
}

func (p *Pipeline) publish(ctx context.Context, client RepoClient, t Target, text string) (*github.Issue, error) {
	ctx, span, end := startStage(ctx, Publishing)
	defer end()

	created, err := p.publisher.Publish(ctx, client, t.Repo.Owner, t.Repo.Name, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return created, nil
}

// finish logs the outcome once and records it
func (p *Pipeline) finish(logger *log.Logger, span trace.Span, t Target, out Outcome) {
	stage := ""
	if out.State == Failed {
		stage = out.FailedStage.String()
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, out.Err.Error())
		logger.Error("Error analyzing repository %s during %s: %v", t.Repo.FullName, out.FailedStage, out.Err)
	} else {
		logger.Success("Successfully created issue #%d in %s: %s", out.IssueNumber, t.Repo.FullName, out.IssueURL)
	}
	outcomeCounter.WithLabelValues(out.State.String(), stage).Inc()
}
