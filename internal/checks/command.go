package checks

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/bartekus/commitgate/internal/check"
	"github.com/bartekus/commitgate/internal/git"
)

// trackedConfig follows one configuration file across the commits of a
// push. Clones of a template share the pointer, so the commit the file
// was last materialized from is remembered across instances.
type trackedConfig struct {
	path   string
	commit *git.Commit
}

// CheckCommand runs an external command over the content of a committed
// file and turns its output lines into problems.
type CheckCommand struct {
	check.Base

	// Args is the command line; Args[0] is resolved on the search path.
	Args []string

	// Extension selects the files to check; ExePattern additionally
	// accepts extensionless files whose shebang executable matches.
	Extension  string
	ExePattern *regexp.Regexp

	// Header and Footer are output lines to skip, for tools that print
	// banners or summaries.
	Header int
	Footer int

	// ConfigRequired filters the check when none of the configuration
	// files exists at the commit.
	ConfigRequired bool

	// BogusExit marks tools whose exit status carries no meaning, such
	// as ones returning nonzero whenever they printed anything.
	BogusExit bool

	// AppendFilePath adds the checked file's repository path to the
	// command line. The content still arrives on stdin; tools like
	// rubocop use the path only for exclusion rules.
	AppendFilePath bool

	configFiles []*trackedConfig
	exePath     string
	exeResolved bool

	file *git.CommittedFile
	proc *exec.Cmd
	out  *bufio.Scanner
	blob *git.BlobStream
}

// NewCheckCommand builds a template tracking the given configuration
// file paths.
func NewCheckCommand(args []string, configPaths ...string) *CheckCommand {
	c := &CheckCommand{Args: args}
	for _, path := range configPaths {
		c.configFiles = append(c.configFiles, &trackedConfig{path: path})
	}
	return c
}

func (c *CheckCommand) String() string {
	if c.file == nil {
		return fmt.Sprintf("CheckCommand %q", c.Args[0])
	}
	return fmt.Sprintf("CheckCommand %q on %s", c.Args[0], c.file)
}

// resolveExe finds the backing executable once per template. A missing
// executable makes the check inapplicable, never scheduled.
func (c *CheckCommand) resolveExe() string {
	if !c.exeResolved {
		c.exePath, _ = exec.LookPath(c.Args[0])
		c.exeResolved = true
	}
	return c.exePath
}

func (c *CheckCommand) Prepare(ctx context.Context, scope any) (check.Check, error) {
	suppressed, err := c.suppressed(ctx, scope)
	if err != nil {
		return nil, err
	}
	if suppressed || c.resolveExe() == "" {
		return nil, nil
	}

	switch obj := scope.(type) {
	case *git.Commit:
		exists, err := c.materializeConfigs(ctx, obj)
		if err != nil {
			return nil, err
		}
		if !exists && c.ConfigRequired {
			return nil, nil
		}
		return c, nil
	case *git.CommittedFile:
		matches, err := c.matchesFile(ctx, obj)
		if err != nil {
			return nil, err
		}
		if !matches {
			return nil, nil
		}
		clone := *c
		clone.file = obj
		clone.SetState(check.StateReady)
		if err := clone.start(ctx); err != nil {
			return nil, err
		}
		return &clone, nil
	default:
		return c, nil
	}
}

// suppressed reports whether a preferred check accepts the scope. A
// preferred command is probed without preparing it, because preparing a
// command at file scope spawns its process.
func (c *CheckCommand) suppressed(ctx context.Context, scope any) (bool, error) {
	file, fileScope := scope.(*git.CommittedFile)
	if !fileScope {
		return c.SuppressedBy(ctx, scope)
	}
	for _, preferred := range c.Preferred {
		cmd, isCommand := preferred.(*CheckCommand)
		if !isCommand {
			prepared, err := preferred.Prepare(ctx, scope)
			if err != nil {
				return false, err
			}
			if prepared != nil {
				return true, nil
			}
			continue
		}
		if cmd.resolveExe() == "" {
			continue
		}
		matches, err := cmd.matchesFile(ctx, file)
		if err != nil {
			return false, err
		}
		if matches {
			return true, nil
		}
	}
	return false, nil
}

func (c *CheckCommand) matchesFile(ctx context.Context, file *git.CommittedFile) (bool, error) {
	// Templated content cannot be trusted to be its file type, and
	// symlink content is a target path, not source.
	if underTemplates(file.Path) || file.Symlink() {
		return false, nil
	}
	if file.Extension() == c.Extension {
		return true, nil
	}
	if c.ExePattern == nil {
		return false, nil
	}
	exe, err := file.ShebangExe(ctx)
	if err != nil {
		return false, err
	}
	return exe != "" && c.ExePattern.MatchString(exe), nil
}

// materializeConfigs writes the tracked configuration files as they are
// at the commit into the working directory, so the external tool finds
// them on a bare repository. Unchanged files are not rewritten; files
// gone at the commit are removed. It reports whether any exists.
func (c *CheckCommand) materializeConfigs(ctx context.Context, commit *git.Commit) (bool, error) {
	anyExists := false
	for _, tracked := range c.configFiles {
		previous := tracked.commit
		tracked.commit = commit

		file := git.NewCommittedFile(commit, tracked.path, "")
		exists, err := file.Exists(ctx)
		if err != nil {
			return false, err
		}
		if !exists {
			if _, statErr := os.Stat(tracked.path); statErr == nil {
				if err := os.Remove(tracked.path); err != nil {
					return false, err
				}
			}
			continue
		}
		anyExists = true

		if previous != nil && previous.ID != commit.ID {
			changed, err := file.Changed(ctx)
			if err != nil {
				return false, err
			}
			if !changed {
				continue
			}
		} else if previous != nil {
			continue
		}
		if err := file.Materialize(ctx); err != nil {
			return false, err
		}
	}
	return anyExists, nil
}

// maxOutputLine bounds one checker output line. Minified sources can
// make a tool echo the whole offending line back.
const maxOutputLine = 1 << 20

// start wires the file's content producer into the command and spawns
// it. The producer's output handle is closed on our side right after
// the command started, so an early command exit breaks the producer's
// pipe instead of leaving it blocked on a full pipe forever.
func (c *CheckCommand) start(ctx context.Context) error {
	blob, err := c.file.Stream(ctx)
	if err != nil {
		return err
	}
	args := c.Args[1:]
	if c.AppendFilePath {
		args = append(append([]string{}, args...), c.file.Path)
	}
	proc := exec.CommandContext(ctx, c.exePath, args...)
	proc.Stdin = blob.Out
	out, err := proc.StdoutPipe()
	if err != nil {
		blob.Out.Close()
		return fmt.Errorf("%s: %w", c.Args[0], err)
	}
	proc.Stderr = proc.Stdout
	if err := proc.Start(); err != nil {
		blob.Out.Close()
		return fmt.Errorf("%s: %w", c.Args[0], err)
	}
	blob.Out.Close()

	c.blob = blob
	c.proc = proc
	c.out = bufio.NewScanner(out)
	c.out.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), maxOutputLine)
	return nil
}

// Problems streams the command's output lines as problems, skipping
// the configured header and footer lines.
func (c *CheckCommand) Problems(_ context.Context) iter.Seq2[check.Problem, error] {
	return func(yield func(check.Problem, error) bool) {
		lineNumber := 0
		var tail []string
		for c.out.Scan() {
			lineNumber++
			if lineNumber <= c.Header {
				continue
			}
			tail = append(tail, c.out.Text())
			if len(tail) <= c.Footer {
				continue
			}
			line := tail[0]
			tail = tail[1:]
			if !yield(c.formatProblem(line), nil) {
				return
			}
		}
		if err := c.out.Err(); err != nil {
			yield(check.Problem{}, fmt.Errorf("%s: %w", c.Args[0], err))
		}
	}
}

// Evaluate drains the problems and settles both processes. A nonzero
// command exit fails the check unless the commit's tags grant the
// soft-fail allowance or the exit status is declared meaningless;
// severity promotion per line applies either way.
func (c *CheckCommand) Evaluate(ctx context.Context) iter.Seq2[check.Problem, error] {
	return func(yield func(check.Problem, error) bool) {
		for problem, err := range check.Promote(c, c.Problems(ctx)) {
			if !yield(problem, err) || err != nil {
				return
			}
		}

		procErr := c.proc.Wait()
		if err := c.blob.Wait(); err != nil {
			yield(check.Problem{}, err)
			return
		}
		if procErr == nil || c.BogusExit {
			return
		}
		var exitErr *exec.ExitError
		if !errors.As(procErr, &exitErr) {
			yield(check.Problem{}, fmt.Errorf("%s: %w", c.Args[0], procErr))
			return
		}
		softFail, err := c.file.Commit.CanSoftFail(ctx)
		if err != nil {
			yield(check.Problem{}, err)
			return
		}
		if !softFail {
			c.SetState(check.StateFailed)
		}
	}
}

var lineColPattern = regexp.MustCompile(`^\d+$`)

// formatProblem rewrites one output line: the synthetic stdin filename
// the tool saw is stripped, any line:col position is pulled into a
// prefix, and a leading severity keyword is extracted.
func (c *CheckCommand) formatProblem(line string) check.Problem {
	prefix := ""
	rest := strings.TrimSpace(line)

	parts := strings.SplitN(rest, ":", 4)
	if len(parts) == 4 &&
		len(parts[0]) >= len("stdin") &&
		lineColPattern.MatchString(parts[1]) &&
		lineColPattern.MatchString(parts[2]) {
		prefix = fmt.Sprintf("line %s: col %s: ", parts[1], parts[2])
		rest = strings.TrimSpace(parts[3])
	} else {
		if len(parts) >= 2 && strings.Contains(strings.ToLower(parts[0]), "stdin") {
			rest = strings.TrimSpace(strings.Join(parts[1:], ":"))
		}
		rest, prefix = extractPosition(rest, prefix, "line ")
		rest, prefix = extractPosition(rest, prefix, "col ")
	}

	severity, rest := check.ParseSeverity(rest)
	return check.Problem{Severity: severity, Message: prefix + rest}
}

func extractPosition(rest, prefix, keyword string) (string, string) {
	if !strings.HasPrefix(rest, keyword) {
		return rest, prefix
	}
	parts := strings.SplitN(rest, " ", 3)
	if len(parts) < 2 {
		return rest, prefix
	}
	number := strings.Trim(parts[1], ":,")
	if !lineColPattern.MatchString(number) {
		return rest, prefix
	}
	prefix += keyword + number + ": "
	if len(parts) < 3 {
		return "", prefix
	}
	return strings.Trim(parts[2], ":,"), prefix
}
