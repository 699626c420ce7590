package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"syscall"
)

// FileChange is one added or modified path reported for a commit, with
// the six-digit file mode git prints for it.
type FileChange struct {
	Path string
	Mode string
}

// Backend is the surface of the Git repository the gate reads. The
// production implementation shells out to git; tests substitute a fake.
type Backend interface {
	// NewCommitIDs lists commits reachable from tip but from no
	// existing ref, oldest first.
	NewCommitIDs(ctx context.Context, tip string) ([]string, error)

	// CommitContent returns the raw commit object, headers and message.
	CommitContent(ctx context.Context, id string) ([]byte, error)

	// ChangedFiles lists the paths added or modified by the commit.
	ChangedFiles(ctx context.Context, id string) ([]FileChange, error)

	// BlobContent returns the content of path at the commit.
	BlobContent(ctx context.Context, id, path string) ([]byte, error)

	// BlobExists reports whether path exists at the commit.
	BlobExists(ctx context.Context, id, path string) (bool, error)

	// BlobStream starts a producer emitting the content of path at the
	// commit, for wiring into another process's standard input.
	BlobStream(ctx context.Context, id, path string) (*BlobStream, error)
}

// BlobStream is a running content producer. Out is the reading side of
// its output: hand it to the consumer process and close it right after
// the consumer started, so an early consumer exit breaks the producer's
// pipe instead of blocking it forever.
type BlobStream struct {
	Out  io.ReadCloser
	wait func() error
}

// NewBlobStream wraps an already-open output and an optional wait
// function. Production streams come from Exec.BlobStream.
func NewBlobStream(out io.ReadCloser, wait func() error) *BlobStream {
	return &BlobStream{Out: out, wait: wait}
}

// Wait verifies the producer's exit status independently of whoever
// consumed its output. A producer killed by a broken pipe is fine; that
// is the designed outcome when the consumer stops reading early. Any
// other failure indicates backend misbehavior and is returned.
func (s *BlobStream) Wait() error {
	if s.wait == nil {
		return nil
	}
	return s.wait()
}

// Exec implements Backend with git subprocesses.
type Exec struct {
	gitPath string

	// Dir runs git in the given directory. Empty means the process
	// working directory, which is the repository for a pre-receive
	// hook.
	Dir string
}

// NewExec resolves the git executable on the search path.
func NewExec() (*Exec, error) {
	path, err := exec.LookPath("git")
	if err != nil {
		return nil, fmt.Errorf("git not found on PATH: %w", err)
	}
	return &Exec{gitPath: path}, nil
}

func (e *Exec) output(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, e.gitPath, args...)
	cmd.Dir = e.Dir
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("git %s: %w", args[0], err)
	}
	return out, nil
}

func (e *Exec) NewCommitIDs(ctx context.Context, tip string) ([]string, error) {
	out, err := e.output(ctx, "rev-list", tip, "--not", "--all", "--reverse")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

func (e *Exec) CommitContent(ctx context.Context, id string) ([]byte, error) {
	return e.output(ctx, "cat-file", "-p", id)
}

func (e *Exec) ChangedFiles(ctx context.Context, id string) ([]FileChange, error) {
	out, err := e.output(ctx,
		"diff-tree",
		"-r",
		"--root",           // report the initial commit as additions
		"--no-commit-id",   // the caller already knows the commit id
		"--break-rewrites", // report rewrites as additions
		"--no-renames",     // report renames as additions
		"--diff-filter=AM", // only additions and modifications
		id,
	)
	if err != nil {
		return nil, err
	}

	var changes []FileChange
	for _, line := range splitLines(out) {
		meta, path, found := strings.Cut(line, "\t")
		fields := strings.Fields(meta)
		if !found || len(fields) != 5 || !strings.HasPrefix(fields[0], ":") {
			return nil, fmt.Errorf("unexpected diff-tree line %q", line)
		}
		changes = append(changes, FileChange{Path: path, Mode: fields[1]})
	}
	return changes, nil
}

func (e *Exec) BlobContent(ctx context.Context, id, path string) ([]byte, error) {
	return e.output(ctx, "show", id+":"+path)
}

func (e *Exec) BlobExists(ctx context.Context, id, path string) (bool, error) {
	out, err := e.output(ctx, "ls-tree", "--name-only", "-r", id, path)
	if err != nil {
		return false, err
	}
	return len(out) > 0, nil
}

func (e *Exec) BlobStream(ctx context.Context, id, path string) (*BlobStream, error) {
	cmd := exec.CommandContext(ctx, e.gitPath, "show", id+":"+path)
	cmd.Dir = e.Dir
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("git show %s:%s: %w", id, path, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("git show %s:%s: %w", id, path, err)
	}
	wait := func() error {
		err := cmd.Wait()
		if err == nil || killedByBrokenPipe(err) {
			return nil
		}
		return fmt.Errorf("git show %s:%s: %w", id, path, err)
	}
	return NewBlobStream(out, wait), nil
}

func killedByBrokenPipe(err error) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	return ok && status.Signaled() && status.Signal() == syscall.SIGPIPE
}

func splitLines(out []byte) []string {
	text := strings.TrimRight(string(out), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
