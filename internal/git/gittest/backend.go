// Package gittest provides an in-memory git.Backend for tests.
package gittest

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/bartekus/commitgate/internal/git"
)

// FakeCommit is the stored state of one commit.
type FakeCommit struct {
	Parents   []string
	Author    string // "Name <email> timestamp +0000"
	Committer string
	Message   string
	Files     []git.FileChange
	Blobs     map[string]string
}

// Backend serves commits from memory.
type Backend struct {
	Commits map[string]FakeCommit

	// New maps a tip id to the ids rev-list would report as new for
	// it, oldest first.
	New map[string][]string
}

func NewBackend() *Backend {
	return &Backend{
		Commits: map[string]FakeCommit{},
		New:     map[string][]string{},
	}
}

// Add stores a commit and returns its id for chaining.
func (b *Backend) Add(id string, commit FakeCommit) string {
	b.Commits[id] = commit
	return id
}

func (b *Backend) NewCommitIDs(_ context.Context, tip string) ([]string, error) {
	return b.New[tip], nil
}

func (b *Backend) CommitContent(_ context.Context, id string) ([]byte, error) {
	commit, ok := b.Commits[id]
	if !ok {
		return nil, fmt.Errorf("unknown commit %s", id)
	}
	var sb strings.Builder
	sb.WriteString("tree 0000000000000000000000000000000000000001\n")
	for _, parent := range commit.Parents {
		fmt.Fprintf(&sb, "parent %s\n", parent)
	}
	fmt.Fprintf(&sb, "author %s\n", commit.Author)
	fmt.Fprintf(&sb, "committer %s\n", commit.Committer)
	sb.WriteString("\n")
	sb.WriteString(commit.Message)
	sb.WriteString("\n")
	return []byte(sb.String()), nil
}

func (b *Backend) ChangedFiles(_ context.Context, id string) ([]git.FileChange, error) {
	commit, ok := b.Commits[id]
	if !ok {
		return nil, fmt.Errorf("unknown commit %s", id)
	}
	return commit.Files, nil
}

func (b *Backend) BlobContent(_ context.Context, id, path string) ([]byte, error) {
	commit, ok := b.Commits[id]
	if !ok {
		return nil, fmt.Errorf("unknown commit %s", id)
	}
	content, ok := commit.Blobs[path]
	if !ok {
		return nil, fmt.Errorf("no blob %s at %s", path, id)
	}
	return []byte(content), nil
}

func (b *Backend) BlobExists(_ context.Context, id, path string) (bool, error) {
	commit, ok := b.Commits[id]
	if !ok {
		return false, fmt.Errorf("unknown commit %s", id)
	}
	_, exists := commit.Blobs[path]
	return exists, nil
}

func (b *Backend) BlobStream(ctx context.Context, id, path string) (*git.BlobStream, error) {
	content, err := b.BlobContent(ctx, id, path)
	if err != nil {
		return nil, err
	}
	return git.NewBlobStream(io.NopCloser(strings.NewReader(string(content))), nil), nil
}

// Ident formats a contributor line with a fixed timezone.
func Ident(name, email string, timestamp int64) string {
	return fmt.Sprintf("%s <%s> %d +0000", name, email, timestamp)
}
