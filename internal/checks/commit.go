package checks

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/bartekus/commitgate/internal/check"
	"github.com/bartekus/commitgate/internal/git"
)

// CheckCommitMessage checks the commit message body: a single-line
// summary, no stray whitespace, and a line length limit. Indented and
// quoted lines are exempt, they usually carry code or pasted output.
type CheckCommitMessage struct {
	check.Base

	// Length is the maximum message line length in runes.
	Length int

	commit *git.Commit
}

func (c *CheckCommitMessage) String() string {
	return scopedName("CheckCommitMessage", c.commit)
}

func (c *CheckCommitMessage) Prepare(_ context.Context, scope any) (check.Check, error) {
	commit, ok := scope.(*git.Commit)
	if !ok {
		return c, nil
	}
	clone := *c
	clone.commit = commit
	clone.SetState(check.StateReady)
	return &clone, nil
}

func (c *CheckCommitMessage) Problems(ctx context.Context) iter.Seq2[check.Problem, error] {
	return func(yield func(check.Problem, error) bool) {
		lines, err := c.commit.MessageLines(ctx)
		if err != nil {
			yield(check.Problem{}, err)
			return
		}
		for index, line := range lines {
			switch {
			case index == 0:
				continue
			case index == 1:
				if strings.TrimSpace(line) != "" {
					if !yield(check.Problem{
						Severity: check.SeverityError,
						Message:  "no single line commit summary",
					}, nil) {
						return
					}
				}
			default:
				if strings.HasPrefix(line, "    ") || strings.HasPrefix(line, ">") {
					continue
				}
			}
			if line == "" {
				continue
			}
			for _, problem := range c.lineProblems(index+1, line) {
				if !yield(problem, nil) {
					return
				}
			}
		}
	}
}

func (c *CheckCommitMessage) lineProblems(lineNumber int, line string) []check.Problem {
	var problems []check.Problem
	if trimmed := strings.TrimRight(line, " \t"); trimmed != line {
		line = trimmed
		problems = append(problems, check.Problem{
			Severity: check.SeverityError,
			Message:  fmt.Sprintf("line %d: trailing space", lineNumber),
		})
	}
	if trimmed := strings.TrimLeft(line, " \t"); trimmed != line {
		line = trimmed
		problems = append(problems, check.Problem{
			Severity: check.SeverityWarning,
			Message:  fmt.Sprintf("line %d: leading space", lineNumber),
		})
	}
	if utf8.RuneCountInString(line) > c.Length {
		problems = append(problems, check.Problem{
			Severity: check.SeverityWarning,
			Message:  fmt.Sprintf("line %d: longer than %d", lineNumber, c.Length),
		})
	}
	return problems
}

// commitTags are the summary tags accepted in square brackets.
var commitTags = map[string]bool{
	"BREAKING":    true,
	"BUGFIX":      true,
	"CLEANUP":     true,
	"FEATURE":     true,
	"HOTFIX":      true,
	"MESS":        true,
	"MIGRATE":     true,
	"REFACTORING": true,
	"REVIEW":      true,
	"SECURITY":    true,
	"STYLE":       true,
	"TASK":        true,
	"TEMP":        true,
	"WIP":         true,
	"!!":          true,
}

// CheckCommitSummary checks the summary line: tag formatting, length
// limits, the optional "category: " prefix, and the title itself.
type CheckCommitSummary struct {
	check.Base

	// SoftLength warns, HardLength errors. Zero or negative disables
	// the limit.
	SoftLength int
	HardLength int

	commit *git.Commit
}

func (c *CheckCommitSummary) String() string {
	return scopedName("CheckCommitSummary", c.commit)
}

func (c *CheckCommitSummary) Prepare(_ context.Context, scope any) (check.Check, error) {
	commit, ok := scope.(*git.Commit)
	if !ok {
		return c, nil
	}
	clone := *c
	clone.commit = commit
	clone.SetState(check.StateReady)
	return &clone, nil
}

func (c *CheckCommitSummary) Problems(ctx context.Context) iter.Seq2[check.Problem, error] {
	return func(yield func(check.Problem, error) bool) {
		tags, rest, err := c.commit.ParseTags(ctx)
		if err != nil {
			yield(check.Problem{}, err)
			return
		}
		var problems []check.Problem
		if strings.HasPrefix(rest, "[") {
			problems = append(problems, check.Problem{
				Severity: check.SeverityWarning,
				Message:  "not terminated commit tags",
			})
		}
		if len(tags) > 0 {
			problems = append(problems, c.tagProblems(tags, rest)...)
			if rest != "" {
				rest = rest[1:]
			}
		}
		if strings.HasPrefix(rest, "Revert") {
			problems = append(problems, c.revertProblems(rest)...)
		} else {
			problems = append(problems, c.summaryProblems(rest)...)
		}
		for _, problem := range problems {
			if !yield(problem, nil) {
				return
			}
		}
	}
}

func (c *CheckCommitSummary) tagProblems(tags []string, rest string) []check.Problem {
	var problems []check.Problem
	used := map[string]bool{}
	for _, tag := range tags {
		upper := strings.ToUpper(tag)
		if tag != upper {
			problems = append(problems, check.Problem{
				Severity: check.SeverityError,
				Message:  fmt.Sprintf("commit tag [%s] not upper-case", tag),
			})
		}
		if !commitTags[upper] {
			problems = append(problems, check.Problem{
				Severity: check.SeverityWarning,
				Message:  fmt.Sprintf("commit tag [%s] not on the list of known tags", tag),
			})
		}
		if used[upper] {
			problems = append(problems, check.Problem{
				Severity: check.SeverityError,
				Message:  fmt.Sprintf("duplicate commit tag [%s]", tag),
			})
		}
		used[upper] = true
	}
	if !strings.HasPrefix(rest, " ") {
		problems = append(problems, check.Problem{
			Severity: check.SeverityWarning,
			Message:  "commit tags not separated with space",
		})
	}
	return problems
}

func (c *CheckCommitSummary) revertProblems(rest string) []check.Problem {
	rest = rest[len("Revert"):]
	if !strings.HasPrefix(rest, " \"") || !strings.HasSuffix(rest, "\"") {
		return []check.Problem{{
			Severity: check.SeverityWarning,
			Message:  "ill-formatted revert commit message",
		}}
	}
	return nil
}

func (c *CheckCommitSummary) summaryProblems(rest string) []check.Problem {
	if rest == "" {
		return []check.Problem{{
			Severity: check.SeverityError,
			Message:  "no commit summary",
		}}
	}

	var problems []check.Problem
	length := utf8.RuneCountInString(rest)
	switch {
	case c.HardLength > 0 && length > c.HardLength:
		severity := check.SeverityError
		if strings.HasPrefix(rest, "Merge branch ") {
			severity = check.SeverityWarning
		}
		problems = append(problems, check.Problem{
			Severity: severity,
			Message:  fmt.Sprintf("commit summary longer than %d characters", c.HardLength),
		})
	case c.SoftLength > 0 && length > c.SoftLength:
		problems = append(problems, check.Problem{
			Severity: check.SeverityWarning,
			Message:  fmt.Sprintf("commit summary longer than %d characters", c.SoftLength),
		})
	}

	if strings.Contains(rest, "  ") {
		problems = append(problems, check.Problem{
			Severity: check.SeverityWarning,
			Message:  "multiple spaces",
		})
	}

	// A category is a short "word: " prefix near the start.
	head := rest
	if len(head) > 24 {
		head = head[:24]
	}
	if index := strings.Index(head, ": "); index >= 0 && len(rest) > index+2 {
		problems = append(problems, c.categoryProblems(rest[:index])...)
		rest = rest[index+2:]
	}

	return append(problems, c.titleProblems(rest)...)
}

func (c *CheckCommitSummary) categoryProblems(category string) []check.Problem {
	var problems []check.Problem
	first, _ := utf8.DecodeRuneInString(category)
	if !unicode.IsLetter(first) {
		problems = append(problems, check.Problem{
			Severity: check.SeverityWarning,
			Message:  "commit category starts with non-letter",
		})
	}
	if strings.ToLower(category) != category {
		problems = append(problems, check.Problem{
			Severity: check.SeverityWarning,
			Message:  "commit category has upper-case letter",
		})
	}
	if strings.TrimRight(category, " ") != category {
		problems = append(problems, check.Problem{
			Severity: check.SeverityWarning,
			Message:  "commit category with trailing space",
		})
	}
	return problems
}

func (c *CheckCommitSummary) titleProblems(title string) []check.Problem {
	if title == "" {
		return []check.Problem{{
			Severity: check.SeverityError,
			Message:  "no commit title",
		}}
	}

	var problems []check.Problem
	first, _ := utf8.DecodeRuneInString(title)
	if !unicode.IsLetter(first) {
		problems = append(problems, check.Problem{
			Severity: check.SeverityWarning,
			Message:  "commit title starts with non-letter",
		})
	} else if unicode.ToUpper(first) != first {
		problems = append(problems, check.Problem{
			Severity: check.SeverityWarning,
			Message:  "commit title not capitalized",
		})
	}
	if strings.HasSuffix(title, ".") {
		problems = append(problems, check.Problem{
			Severity: check.SeverityWarning,
			Message:  "commit title ends with a dot",
		})
	}

	firstWord, _, _ := strings.Cut(title, " ")
	if strings.HasSuffix(firstWord, "ed") {
		problems = append(problems, check.Problem{
			Severity: check.SeverityWarning,
			Message:  "past tense used on commit title",
		})
	}
	if strings.HasSuffix(firstWord, "ing") {
		problems = append(problems, check.Problem{
			Severity: check.SeverityWarning,
			Message:  "continuous tense used on commit title",
		})
	}
	return problems
}

// CheckChangedFilePaths flags upper-case letters in paths of files with
// extensions that conventionally stay lower-case.
type CheckChangedFilePaths struct {
	check.Base

	// Extensions lists the lower-case file extensions the rule covers.
	Extensions []string

	commit *git.Commit
}

func (c *CheckChangedFilePaths) String() string {
	return scopedName("CheckChangedFilePaths", c.commit)
}

func (c *CheckChangedFilePaths) Prepare(_ context.Context, scope any) (check.Check, error) {
	commit, ok := scope.(*git.Commit)
	if !ok {
		return c, nil
	}
	clone := *c
	clone.commit = commit
	clone.SetState(check.StateReady)
	return &clone, nil
}

func (c *CheckChangedFilePaths) Problems(ctx context.Context) iter.Seq2[check.Problem, error] {
	return func(yield func(check.Problem, error) bool) {
		files, err := c.commit.ChangedFiles(ctx)
		if err != nil {
			yield(check.Problem{}, err)
			return
		}
		for _, file := range files {
			extension := strings.ToLower(file.Extension())
			if extension == "" || !slices.Contains(c.Extensions, extension) {
				continue
			}
			if file.Path != strings.ToLower(file.Path) {
				if !yield(check.Problem{
					Severity: check.SeverityError,
					Message:  fmt.Sprintf("%s has upper case", file),
				}, nil) {
					return
				}
			}
		}
	}
}
