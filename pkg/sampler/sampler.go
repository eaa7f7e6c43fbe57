// Package sampler selects a bounded, filtered set of repository files and
// fetches their text content for review.
//
// Selection is literal: the first MaxFiles blobs of the recursive tree, in
// tree order, minus oversized and binary paths. Per-file failures never fail
// the sample; they are reported in Sample.Omitted.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/sync/errgroup"

	gh "github.com/saint0x/repochecker/pkg/github"
)

// Default sampling policy
const (
	DefaultMaxFiles    = 10
	DefaultMaxFileSize = 100000
	DefaultConcurrency = 4
)

// DefaultBinaryExtensions are skipped by path suffix, case-insensitively.
var DefaultBinaryExtensions = []string{".jpg", ".png", ".gif", ".mp4", ".zip", ".pdf"}

// RepoReader is the read capability the sampler needs from GitHub
type RepoReader interface {
	GetTree(ctx context.Context, owner, repo, ref string, recursive bool) (*github.Tree, error)
	GetContent(ctx context.Context, owner, repo, path, ref string) (*github.RepositoryContent, error)
}

// File is a sampled repository file with decoded text content
type File struct {
	Path    string `json:"path"`
	Size    int    `json:"size"`
	Content string `json:"content"`
}

// Reason explains why a candidate did not make it into the sample
type Reason string

const (
	ReasonTooLarge    Reason = "too-large"
	ReasonBinary      Reason = "binary"
	ReasonFetchFailed Reason = "fetch-failed"
	ReasonNotAFile    Reason = "not-a-file"
	ReasonEncoding    Reason = "unsupported-encoding"
	ReasonDecode      Reason = "decode-failed"
)

// Omission records a candidate left out of the sample
type Omission struct {
	Path   string
	Reason Reason
	Err    error
}

// Sample is the result of one sampling run
type Sample struct {
	Files      []File
	Omitted    []Omission
	Considered int
	Truncated  bool
}

// Failures returns the omissions caused by fetch or decode errors.
func (s *Sample) Failures() []Omission {
	var out []Omission
	for _, o := range s.Omitted {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// Options configures a Sampler
type Options struct {
	MaxFiles         int
	MaxFileSize      int
	BinaryExtensions []string
	Concurrency      int
}

// Sampler applies the sampling policy
type Sampler struct {
	opts Options
}

// New creates a Sampler; zero option values fall back to the defaults
func New(opts Options) *Sampler {
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = DefaultMaxFiles
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if len(opts.BinaryExtensions) == 0 {
		opts.BinaryExtensions = DefaultBinaryExtensions
	}
	exts := make([]string, 0, len(opts.BinaryExtensions))
	for _, ext := range opts.BinaryExtensions {
		if ext = strings.ToLower(strings.TrimSpace(ext)); ext != "" {
			exts = append(exts, ext)
		}
	}
	opts.BinaryExtensions = exts
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Sampler{opts: opts}
}

// IsBinaryPath reports whether path ends in a denylisted extension
func (s *Sampler) IsBinaryPath(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range s.opts.BinaryExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// slot holds the outcome for one candidate so results keep tree order
type slot struct {
	file     *File
	omission *Omission
}

// Sample lists the tree at ref and fetches the selected files.
// Only a tree listing failure is returned as an error.
func (s *Sampler) Sample(ctx context.Context, r RepoReader, owner, repo, ref string) (*Sample, error) {
	tree, err := r.GetTree(ctx, owner, repo, ref, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	var candidates []*github.TreeEntry
	for _, entry := range tree.Entries {
		if entry.GetType() != "blob" {
			continue
		}
		candidates = append(candidates, entry)
		if len(candidates) == s.opts.MaxFiles {
			break
		}
	}

	slots := make([]slot, len(candidates))
	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)

	for i, entry := range candidates {
		path, size := entry.GetPath(), entry.GetSize()
		switch {
		case size > s.opts.MaxFileSize:
			slots[i].omission = &Omission{Path: path, Reason: ReasonTooLarge}
			continue
		case s.IsBinaryPath(path):
			slots[i].omission = &Omission{Path: path, Reason: ReasonBinary}
			continue
		}

		g.Go(func() error {
			slots[i] = s.fetch(ctx, r, owner, repo, ref, path, size)
			return nil
		})
	}
	_ = g.Wait()

	sample := &Sample{
		Files:      make([]File, 0, len(slots)),
		Considered: len(candidates),
		Truncated:  tree.GetTruncated(),
	}
	for _, sl := range slots {
		switch {
		case sl.file != nil:
			sample.Files = append(sample.Files, *sl.file)
		case sl.omission != nil:
			sample.Omitted = append(sample.Omitted, *sl.omission)
		}
	}
	return sample, nil
}

// fetch downloads and decodes a single candidate. It runs on its own
// goroutine, so a panicking reader is turned into an omission here.
func (s *Sampler) fetch(ctx context.Context, r RepoReader, owner, repo, ref, path string, size int) (sl slot) {
	defer func() {
		if rec := recover(); rec != nil {
			sl = slot{omission: &Omission{Path: path, Reason: ReasonFetchFailed, Err: fmt.Errorf("panic fetching %s: %v", path, rec)}}
		}
	}()

	content, err := r.GetContent(ctx, owner, repo, path, ref)
	switch {
	case errors.Is(err, gh.ErrNotAFile):
		return slot{omission: &Omission{Path: path, Reason: ReasonNotAFile, Err: err}}
	case err != nil:
		return slot{omission: &Omission{Path: path, Reason: ReasonFetchFailed, Err: err}}
	}
	if content == nil {
		return slot{omission: &Omission{Path: path, Reason: ReasonNotAFile, Err: fmt.Errorf("no file content for %s", path)}}
	}
	if enc := content.GetEncoding(); enc != "base64" {
		return slot{omission: &Omission{Path: path, Reason: ReasonEncoding}}
	}

	text, err := content.GetContent()
	if err != nil {
		return slot{omission: &Omission{Path: path, Reason: ReasonDecode, Err: err}}
	}

	return slot{file: &File{
		Path:    path,
		Size:    size,
		Content: strings.ToValidUTF8(text, "�"),
	}}
}
