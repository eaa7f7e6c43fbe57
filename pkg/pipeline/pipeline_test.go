package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-github/v57/github"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saint0x/repochecker/pkg/ai"
	"github.com/saint0x/repochecker/pkg/issue"
	"github.com/saint0x/repochecker/pkg/log"
	"github.com/saint0x/repochecker/pkg/sampler"
)

// mockClient implements RepoClient for testing
type mockClient struct {
	mu sync.Mutex

	entries   []*github.TreeEntry
	contents  map[string]string
	treeErr   error
	fetchErrs map[string]error
	createErr error
	panicOn   string
	panicPath string
	truncated bool

	issues []*github.IssueRequest
}

func (m *mockClient) GetTree(_ context.Context, _, _, _ string, _ bool) (*github.Tree, error) {
	if m.panicOn == "tree" {
		panic("tree exploded")
	}
	if m.treeErr != nil {
		return nil, m.treeErr
	}
	return &github.Tree{Entries: m.entries, Truncated: github.Bool(m.truncated)}, nil
}

func (m *mockClient) GetContent(_ context.Context, _, _, path, _ string) (*github.RepositoryContent, error) {
	if path == m.panicPath {
		panic("content exploded")
	}
	if err := m.fetchErrs[path]; err != nil {
		return nil, err
	}
	return &github.RepositoryContent{
		Encoding: github.String("base64"),
		Content:  github.String(base64.StdEncoding.EncodeToString([]byte(m.contents[path]))),
	}, nil
}

func (m *mockClient) CreateIssue(_ context.Context, owner, repo string, req *github.IssueRequest) (*github.Issue, error) {
	if m.panicOn == "issue" {
		panic("issue exploded")
	}
	m.mu.Lock()
	m.issues = append(m.issues, req)
	m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &github.Issue{
		Number:  github.Int(42),
		HTMLURL: github.String("https://github.com/" + owner + "/" + repo + "/issues/42"),
	}, nil
}

// mockCompleter implements ai.Completer for testing
type mockCompleter struct {
	text string
	err  error
}

func (m *mockCompleter) Name() string { return "mock" }

func (m *mockCompleter) Complete(context.Context, string) (string, error) {
	return m.text, m.err
}

func newTestPipeline(t *testing.T, client *mockClient, completer ai.Completer) (*Pipeline, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := log.NewWithWriter(&buf, false)

	resolve := func(context.Context, int64) (RepoClient, error) {
		return client, nil
	}
	p := New(logger, resolve,
		sampler.New(sampler.Options{}),
		ai.New(logger, completer),
		issue.NewPublisher(nil, ""),
	)
	return p, &buf
}

func blob(path string) *github.TreeEntry {
	return &github.TreeEntry{Path: github.String(path), Type: github.String("blob"), Size: github.Int(10)}
}

func target() Target {
	return Target{
		Repo: Repository{
			Owner:         "octo",
			Name:          "demo",
			FullName:      "octo/demo",
			DefaultBranch: "main",
		},
		InstallationID: 99,
		Trigger:        TriggerPush,
	}
}

func countLines(buf *bytes.Buffer, substr string) int {
	n := 0
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.Contains(line, substr) {
			n++
		}
	}
	return n
}

func TestRun(t *testing.T) {
	client := &mockClient{
		entries:  []*github.TreeEntry{blob("main.go"), blob("logo.png")},
		contents: map[string]string{"main.go": "package main"},
	}
	p, buf := newTestPipeline(t, client, &mockCompleter{text: "Add tests."})

	before := testutil.ToFloat64(outcomeCounter.WithLabelValues("done", ""))
	out := p.Run(context.Background(), target())

	require.Equal(t, Done, out.State, "err: %v", out.Err)
	assert.NoError(t, out.Err)
	assert.Equal(t, 1, out.Files)
	assert.Equal(t, 1, out.Omitted)
	assert.False(t, out.Fallback)
	assert.Equal(t, 42, out.IssueNumber)
	assert.Equal(t, "https://github.com/octo/demo/issues/42", out.IssueURL)

	require.Len(t, client.issues, 1)
	req := client.issues[0]
	assert.Equal(t, "AI-powered Repository Suggestions", req.GetTitle())
	assert.ElementsMatch(t, []string{"enhancement", "ai-suggestion"}, req.GetLabels())
	assert.Contains(t, req.GetBody(), "Add tests.")

	assert.Equal(t, before+1, testutil.ToFloat64(outcomeCounter.WithLabelValues("done", "")))
	assert.Equal(t, 1, countLines(buf, "Successfully created issue #42"))
}

func TestRun_PublishFailureLoggedOnce(t *testing.T) {
	client := &mockClient{
		entries:   []*github.TreeEntry{blob("main.go")},
		contents:  map[string]string{"main.go": "package main"},
		createErr: errors.New("403 Resource not accessible by integration"),
	}
	p, buf := newTestPipeline(t, client, &mockCompleter{text: "Add tests."})

	var out Outcome
	require.NotPanics(t, func() { out = p.Run(context.Background(), target()) })

	assert.Equal(t, Failed, out.State)
	assert.Equal(t, Publishing, out.FailedStage)
	assert.ErrorIs(t, out.Err, client.createErr)
	assert.Len(t, client.issues, 1, "publishing must not retry")
	assert.Equal(t, 1, countLines(buf, "Resource not accessible"), "log output:\n%s", buf.String())
	assert.Zero(t, countLines(buf, "Successfully created issue"))
}

func TestRun_TreeFailure(t *testing.T) {
	client := &mockClient{treeErr: errors.New("404 Not Found")}
	p, buf := newTestPipeline(t, client, &mockCompleter{text: "unused"})

	out := p.Run(context.Background(), target())

	assert.Equal(t, Failed, out.State)
	assert.Equal(t, Sampling, out.FailedStage)
	assert.ErrorIs(t, out.Err, client.treeErr)
	assert.Empty(t, client.issues)
	assert.Equal(t, 1, countLines(buf, "Error analyzing repository octo/demo"))
}

func TestRun_ClientResolutionFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithWriter(&buf, false)
	resolveErr := errors.New("event has no app installation")
	p := New(logger,
		func(context.Context, int64) (RepoClient, error) { return nil, resolveErr },
		sampler.New(sampler.Options{}),
		ai.New(logger, &mockCompleter{text: "unused"}),
		issue.NewPublisher(nil, ""),
	)

	out := p.Run(context.Background(), target())
	assert.Equal(t, Failed, out.State)
	assert.Equal(t, Sampling, out.FailedStage)
	assert.ErrorIs(t, out.Err, resolveErr)
}

func TestRun_FallbackStillPublishes(t *testing.T) {
	client := &mockClient{
		entries:  []*github.TreeEntry{blob("main.go")},
		contents: map[string]string{"main.go": "package main"},
	}
	p, buf := newTestPipeline(t, client, &mockCompleter{err: errors.New("quota exceeded")})

	before := testutil.ToFloat64(fallbackCounter)
	out := p.Run(context.Background(), target())

	require.Equal(t, Done, out.State)
	assert.True(t, out.Fallback)
	require.Len(t, client.issues, 1)
	assert.Contains(t, client.issues[0].GetBody(), ai.FallbackText)
	assert.Equal(t, before+1, testutil.ToFloat64(fallbackCounter))
	assert.Equal(t, 1, countLines(buf, "quota exceeded"))
}

func TestRun_FetchFailuresWarned(t *testing.T) {
	client := &mockClient{
		entries:   []*github.TreeEntry{blob("a.go"), blob("b.go")},
		contents:  map[string]string{"a.go": "package a"},
		fetchErrs: map[string]error{"b.go": errors.New("502 Bad Gateway")},
	}
	p, buf := newTestPipeline(t, client, &mockCompleter{text: "ok"})

	out := p.Run(context.Background(), target())

	require.Equal(t, Done, out.State)
	assert.Equal(t, 1, out.Files)
	assert.Equal(t, 1, countLines(buf, "Could not get content for b.go"))
	assert.Contains(t, buf.String(), "level=WARN")
}

func TestRun_FetchPanicOmitsFile(t *testing.T) {
	client := &mockClient{
		entries:   []*github.TreeEntry{blob("a.go"), blob("b.go"), blob("c.go")},
		contents:  map[string]string{"a.go": "package a", "c.go": "package c"},
		panicPath: "b.go",
	}
	p, buf := newTestPipeline(t, client, &mockCompleter{text: "ok"})

	var out Outcome
	require.NotPanics(t, func() { out = p.Run(context.Background(), target()) })
	require.Equal(t, Done, out.State, "err: %v", out.Err)
	assert.Equal(t, 2, out.Files)
	assert.Equal(t, 1, out.Omitted)
	assert.Equal(t, 1, countLines(buf, "Could not get content for b.go"))
	assert.Contains(t, buf.String(), "content exploded")
	require.Len(t, client.issues, 1)
}

func TestRun_TruncatedTreeWarned(t *testing.T) {
	client := &mockClient{
		entries:   []*github.TreeEntry{blob("a.go")},
		contents:  map[string]string{"a.go": "package a"},
		truncated: true,
	}
	p, buf := newTestPipeline(t, client, &mockCompleter{text: "ok"})

	out := p.Run(context.Background(), target())

	require.Equal(t, Done, out.State)
	assert.Equal(t, 1, countLines(buf, "was truncated by the API"))
}

func TestRun_EmptyRepository(t *testing.T) {
	client := &mockClient{}
	p, _ := newTestPipeline(t, client, &mockCompleter{text: "Add some files."})

	out := p.Run(context.Background(), target())

	require.Equal(t, Done, out.State)
	assert.Zero(t, out.Files)
	require.Len(t, client.issues, 1)
}

func TestRun_RecoversPanics(t *testing.T) {
	tests := []struct {
		name    string
		panicOn string
		want    Stage
	}{
		{"sampling", "tree", Sampling},
		{"publishing", "issue", Publishing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockClient{
				entries:  []*github.TreeEntry{blob("main.go")},
				contents: map[string]string{"main.go": "package main"},
				panicOn:  tt.panicOn,
			}
			p, buf := newTestPipeline(t, client, &mockCompleter{text: "ok"})

			var out Outcome
			require.NotPanics(t, func() { out = p.Run(context.Background(), target()) })
			assert.Equal(t, Failed, out.State)
			assert.Equal(t, tt.want, out.FailedStage)
			assert.ErrorContains(t, out.Err, "exploded")
			assert.Equal(t, 1, countLines(buf, "exploded"))
		})
	}
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "publishing", Publishing.String())
	assert.Equal(t, "stage(42)", Stage(42).String())
}
