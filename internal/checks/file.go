package checks

import (
	"context"
	"fmt"
	"iter"
	"regexp"
	"slices"
	"strings"

	"github.com/bartekus/commitgate/internal/check"
	"github.com/bartekus/commitgate/internal/git"
)

// CheckExecutable checks the executable bits git stores against the
// shebang in the file content.
type CheckExecutable struct {
	check.Base

	// ExePatterns maps a file extension to the pattern its shebang
	// executable must match.
	ExePatterns map[string]*regexp.Regexp

	// GeneralNames are executable names generic enough to keep a file
	// extension.
	GeneralNames []string

	file *git.CommittedFile
}

func (c *CheckExecutable) String() string {
	return scopedName("CheckExecutable", c.file)
}

func (c *CheckExecutable) Prepare(_ context.Context, scope any) (check.Check, error) {
	file, ok := scope.(*git.CommittedFile)
	if !ok {
		return c, nil
	}
	clone := *c
	clone.file = file
	clone.SetState(check.StateReady)
	return &clone, nil
}

func (c *CheckExecutable) Problems(ctx context.Context) iter.Seq2[check.Problem, error] {
	return func(yield func(check.Problem, error) bool) {
		if !c.file.OwnerCanExecute() {
			// Reading the content is expensive, so only look for a
			// stray shebang on extensions we know.
			extension := c.file.Extension()
			if extension != "" && c.ExePatterns[extension] == nil {
				return
			}
			shebang, err := c.file.Shebang(ctx)
			if err != nil {
				yield(check.Problem{}, err)
				return
			}
			if shebang != "" {
				yield(check.Problem{
					Severity: check.SeverityWarning,
					Message:  "non-executable file with shebang",
				}, nil)
			}
			return
		}

		shebang, err := c.file.Shebang(ctx)
		if err != nil {
			yield(check.Problem{}, err)
			return
		}
		if shebang == "" {
			yield(check.Problem{
				Severity: check.SeverityError,
				Message:  "executable file without shebang",
			}, nil)
			return
		}
		for _, problem := range c.shebangProblems(shebang) {
			if !yield(problem, nil) {
				return
			}
		}
		problems, err := c.exeProblems(ctx)
		if err != nil {
			yield(check.Problem{}, err)
			return
		}
		for _, problem := range problems {
			if !yield(problem, nil) {
				return
			}
		}
	}
}

func (c *CheckExecutable) shebangProblems(shebang string) []check.Problem {
	if !strings.HasPrefix(shebang, "/") {
		return []check.Problem{{
			Severity: check.SeverityError,
			Message:  fmt.Sprintf("shebang executable %s is not full path", shebang),
		}}
	}
	if strings.HasPrefix(shebang, "/usr") && shebang != "/usr/bin/env" {
		return []check.Problem{{
			Severity: check.SeverityWarning,
			Message:  "shebang is not portable (use /usr/bin/env)",
		}}
	}
	return nil
}

func (c *CheckExecutable) exeProblems(ctx context.Context) ([]check.Problem, error) {
	extension := c.file.Extension()
	if extension == "" {
		var problems []check.Problem
		name := c.file.Filename()
		if c.ExePatterns[name] != nil {
			problems = append(problems, check.Problem{
				Severity: check.SeverityError,
				Message:  "file extension without a name",
			})
		}
		if slices.Contains(c.GeneralNames, name) {
			problems = append(problems, check.Problem{
				Severity: check.SeverityWarning,
				Message:  "general executable name",
			})
		}
		return problems, nil
	}

	exe, err := c.file.ShebangExe(ctx)
	if err != nil {
		return nil, err
	}
	var problems []check.Problem
	if exe == "" {
		problems = append(problems, check.Problem{
			Severity: check.SeverityError,
			Message:  "no shebang executable",
		})
	}
	pattern, known := c.ExePatterns[extension]
	if !known {
		return problems, nil
	}
	if !pattern.MatchString(exe) {
		return append(problems, check.Problem{
			Severity: check.SeverityError,
			Message:  fmt.Sprintf("shebang executable %q doesn't match pattern %q", exe, pattern),
		}), nil
	}

	// General names are allowed to keep the extension for clarity.
	name := strings.TrimSuffix(c.file.Filename(), "."+extension)
	if !slices.Contains(c.GeneralNames, name) {
		problems = append(problems, check.Problem{
			Severity: check.SeverityWarning,
			Message:  "redundant file extension",
		})
	}
	return problems, nil
}

// CheckSymlink flags symlinks whose target does not exist in the
// repository at the same commit.
type CheckSymlink struct {
	check.Base
	file *git.CommittedFile
}

func (c *CheckSymlink) String() string {
	return scopedName("CheckSymlink", c.file)
}

func (c *CheckSymlink) Prepare(_ context.Context, scope any) (check.Check, error) {
	file, ok := scope.(*git.CommittedFile)
	if !ok {
		return c, nil
	}
	if !file.Symlink() {
		return nil, nil
	}
	clone := *c
	clone.file = file
	clone.SetState(check.StateReady)
	return &clone, nil
}

func (c *CheckSymlink) Problems(ctx context.Context) iter.Seq2[check.Problem, error] {
	return func(yield func(check.Problem, error) bool) {
		target, err := c.file.SymlinkTarget(ctx)
		if err != nil {
			yield(check.Problem{}, err)
			return
		}
		exists, err := target.Exists(ctx)
		if err != nil {
			yield(check.Problem{}, err)
			return
		}
		if !exists {
			yield(check.Problem{
				Severity: check.SeverityWarning,
				Message:  fmt.Sprintf("symlink target %s doesn't exist on repository", target.Path),
			}, nil)
		}
	}
}

// CheckSyntax parses the file content with a format loader and reports
// parse failures.
type CheckSyntax struct {
	check.Base

	Extension string
	Load      func([]byte) error

	file *git.CommittedFile
}

func (c *CheckSyntax) String() string {
	if c.file == nil {
		return fmt.Sprintf("CheckSyntax %q", c.Extension)
	}
	return fmt.Sprintf("CheckSyntax %q on %s", c.Extension, c.file)
}

func (c *CheckSyntax) Prepare(_ context.Context, scope any) (check.Check, error) {
	file, ok := scope.(*git.CommittedFile)
	if !ok {
		return c, nil
	}
	if file.Extension() != c.Extension || file.Symlink() || underTemplates(file.Path) {
		return nil, nil
	}
	clone := *c
	clone.file = file
	clone.SetState(check.StateReady)
	return &clone, nil
}

func (c *CheckSyntax) Problems(ctx context.Context) iter.Seq2[check.Problem, error] {
	return func(yield func(check.Problem, error) bool) {
		content, err := c.file.Content(ctx)
		if err != nil {
			yield(check.Problem{}, err)
			return
		}
		if err := c.Load(content); err != nil {
			yield(check.Problem{
				Severity: check.SeverityError,
				Message:  err.Error(),
			}, nil)
		}
	}
}

// underTemplates reports whether the path is templated content whose
// file type cannot be trusted.
func underTemplates(path string) bool {
	return strings.Contains(path, "templates/")
}
