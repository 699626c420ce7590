// Package gate expands the check templates over the refs received by a
// push and reports their problems.
package gate

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/bartekus/commitgate/internal/check"
	"github.com/bartekus/commitgate/internal/git"
)

// RefUpdate is one line of pre-receive input: the old and new commit
// identifiers and the full ref path.
type RefUpdate struct {
	Old string
	New string
	Ref string
}

// ParseRefLine splits a pre-receive input line.
func ParseRefLine(line string) (RefUpdate, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return RefUpdate{}, fmt.Errorf("malformed ref update line %q", line)
	}
	return RefUpdate{Old: fields[0], New: fields[1], Ref: fields[2]}, nil
}

// Options tunes a Gate. Zero values pick sensible defaults.
type Options struct {
	// Window bounds how many checks run concurrently.
	Window int

	// IgnorePaths excludes changed files from file-stage checks, as
	// doublestar glob patterns.
	IgnorePaths []string

	// Output receives the problem reports.
	Output io.Writer

	Logger *slog.Logger
}

// Gate runs the checks over everything a push brings in.
type Gate struct {
	backend     git.Backend
	templates   []check.Check
	window      int
	ignorePaths []string
	out         io.Writer
	log         *slog.Logger

	// seen holds the commits already expanded, so commits reachable
	// from several pushed refs are checked once.
	seen map[string]bool
}

func New(backend git.Backend, templates []check.Check, opts Options) *Gate {
	g := &Gate{
		backend:     backend,
		templates:   templates,
		window:      opts.Window,
		ignorePaths: opts.IgnorePaths,
		out:         opts.Output,
		log:         opts.Logger,
		seen:        map[string]bool{},
	}
	if g.window <= 0 {
		g.window = 16
	}
	if g.out == nil {
		g.out = os.Stdout
	}
	if g.log == nil {
		g.log = slog.Default()
	}
	return g
}

// Run reads ref update lines from input, expands the checks over them,
// and reports every problem to the output. The returned state is the
// worst state any check ended in.
func (g *Gate) Run(ctx context.Context, input io.Reader) (check.State, error) {
	state := check.StateNew
	for c, err := range check.Buffered(g.expand(ctx, input), g.window) {
		if err != nil {
			return state, err
		}
		if err := check.Report(ctx, g.out, c); err != nil {
			return state, err
		}
		if c.State() > state {
			state = c.State()
		}
	}
	return state, nil
}

// expand yields the ready check instances for all pushed refs. A nil
// check with a nil error marks an instance that is not ready yet; the
// buffering in Run turns those markers into waiting.
func (g *Gate) expand(ctx context.Context, input io.Reader) iter.Seq2[check.Check, error] {
	return func(yield func(check.Check, error) bool) {
		scanner := bufio.NewScanner(input)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			update, err := ParseRefLine(line)
			if err != nil {
				yield(nil, err)
				return
			}
			list, err := g.commitList(ctx, update)
			if err != nil {
				yield(nil, err)
				return
			}
			if list == nil {
				g.log.Debug("skipping ref", "ref", update.Ref)
				continue
			}
			if !g.expandList(ctx, list, yield) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(nil, fmt.Errorf("reading ref updates: %w", err))
		}
	}
}

// commitList resolves one ref update to the commits to check. It
// returns nil for deletions and for refs outside heads and tags.
func (g *Gate) commitList(ctx context.Context, update RefUpdate) (*git.CommitList, error) {
	tip := git.NewCommit(g.backend, update.New)
	if tip.Zero() {
		return nil, nil
	}

	parts := strings.SplitN(update.Ref, "/", 3)
	if len(parts) != 3 || parts[0] != "refs" {
		return nil, nil
	}

	var list *git.CommitList
	switch parts[1] {
	case "heads":
		ids, err := g.backend.NewCommitIDs(ctx, update.New)
		if err != nil {
			return nil, err
		}
		commits := make([]*git.Commit, 0, len(ids))
		for _, id := range ids {
			commits = append(commits, git.NewCommit(g.backend, id))
		}
		list = git.NewCommitList(update.Ref, commits)
	case "tags":
		list = git.NewCommitList(update.Ref, nil)
	default:
		return nil, nil
	}

	// The pushed tip belongs on the list even when the repository
	// already knows it, as with a tag on an old commit.
	if !list.Contains(tip) {
		list.Append(tip)
	}
	return list, nil
}

func (g *Gate) expandList(ctx context.Context, list *git.CommitList, yield func(check.Check, error) bool) bool {
	var commitChecks []check.Check
	ready, err := check.PrepareAll(ctx, g.templates, list, &commitChecks)
	if err != nil {
		yield(nil, err)
		return false
	}
	for _, c := range ready {
		if !yield(c, nil) {
			return false
		}
	}

	// Checks on the same path are serialized per list so a file broken
	// in one commit is not complained about again on every following
	// commit that touches it.
	pathChecks := map[string][]check.Check{}
	for _, commit := range list.Commits {
		if g.seen[commit.ID] {
			continue
		}
		if !g.expandCommit(ctx, commit, commitChecks, pathChecks, yield) {
			return false
		}
		g.seen[commit.ID] = true
	}
	return true
}

func (g *Gate) expandCommit(ctx context.Context, commit *git.Commit, templates []check.Check, pathChecks map[string][]check.Check, yield func(check.Check, error) bool) bool {
	var fileChecks []check.Check
	ready, err := check.PrepareAll(ctx, templates, commit, &fileChecks)
	if err != nil {
		yield(nil, err)
		return false
	}
	for _, c := range ready {
		if !yield(c, nil) {
			return false
		}
	}

	files, err := commit.ChangedFiles(ctx)
	if err != nil {
		yield(nil, err)
		return false
	}
	for _, file := range files {
		if g.ignored(file.Path) {
			g.log.Debug("skipping ignored path", "path", file.Path, "commit", commit.ID)
			continue
		}
		if !g.expandFile(ctx, file, fileChecks, pathChecks, yield) {
			return false
		}
	}
	return true
}

func (g *Gate) expandFile(ctx context.Context, file *git.CommittedFile, templates []check.Check, pathChecks map[string][]check.Check, yield func(check.Check, error) bool) bool {
	for _, prev := range pathChecks[file.Path] {
		// A check leaves the buffering window only after it is
		// reported, so waiting here cannot stall the pipeline.
		for prev.State() < check.StateDone {
			if !yield(nil, nil) {
				return false
			}
		}
		if prev.State() >= check.StateFailed {
			g.log.Debug("skipping file after earlier failure", "path", file.Path)
			return true
		}
	}

	ready, err := check.PrepareAll(ctx, templates, file, nil)
	if err != nil {
		yield(nil, err)
		return false
	}
	for _, c := range ready {
		pathChecks[file.Path] = append(pathChecks[file.Path], c)
		if !yield(c, nil) {
			return false
		}
	}
	return true
}

func (g *Gate) ignored(path string) bool {
	for _, pattern := range g.ignorePaths {
		if ok, err := doublestar.Match(pattern, path); err == nil && ok {
			return true
		}
	}
	return false
}
