// Package checks contains the concrete check templates the gate runs.
package checks

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"strings"
	"time"

	"github.com/bartekus/commitgate/internal/check"
	"github.com/bartekus/commitgate/internal/git"
)

// CheckDuplicateSummaries flags runs of commit summaries where one is a
// prefix of the next, like "Fix bug" followed by "Fix bug really".
type CheckDuplicateSummaries struct {
	check.Base
	list *git.CommitList
}

func (c *CheckDuplicateSummaries) String() string {
	return scopedName("CheckDuplicateSummaries", c.list)
}

func (c *CheckDuplicateSummaries) Prepare(_ context.Context, scope any) (check.Check, error) {
	list, ok := scope.(*git.CommitList)
	if !ok {
		return c, nil
	}
	if len(list.Commits) <= 1 {
		return nil, nil
	}
	clone := *c
	clone.list = list
	clone.SetState(check.StateReady)
	return &clone, nil
}

func (c *CheckDuplicateSummaries) Problems(ctx context.Context) iter.Seq2[check.Problem, error] {
	return func(yield func(check.Problem, error) bool) {
		summaries := make([]string, 0, len(c.list.Commits))
		for _, commit := range c.list.Commits {
			summary, err := commit.Summary(ctx)
			if err != nil {
				yield(check.Problem{}, err)
				return
			}
			summaries = append(summaries, summary)
		}
		sort.Strings(summaries)

		flush := func(run []string) bool {
			if len(run) <= 1 {
				return true
			}
			return yield(check.Problem{
				Severity: check.SeverityError,
				Message:  fmt.Sprintf("summary %q duplicated %d times", run[0], len(run)),
			}, nil)
		}

		var run []string
		for _, summary := range summaries {
			if len(run) > 0 && strings.HasPrefix(summary, run[0]) {
				run = append(run, summary)
				continue
			}
			if !flush(run) {
				return
			}
			run = []string{summary}
		}
		flush(run)
	}
}

// CheckMisleadingMerge flags merge summaries that merge the branch into
// itself or merge from a protected branch.
type CheckMisleadingMerge struct {
	check.Base

	// Protected lists branch names merges from which are flagged.
	Protected []string

	list *git.CommitList
}

func (c *CheckMisleadingMerge) String() string {
	return scopedName("CheckMisleadingMerge", c.list)
}

func (c *CheckMisleadingMerge) Prepare(_ context.Context, scope any) (check.Check, error) {
	list, ok := scope.(*git.CommitList)
	if !ok {
		return c, nil
	}
	clone := *c
	clone.list = list
	clone.SetState(check.StateReady)
	return &clone, nil
}

func (c *CheckMisleadingMerge) Problems(ctx context.Context) iter.Seq2[check.Problem, error] {
	return func(yield func(check.Problem, error) bool) {
		branch := c.list.BranchName()
		for _, commit := range c.list.Commits {
			summary, err := commit.Summary(ctx)
			if err != nil {
				yield(check.Problem{}, err)
				return
			}
			if strings.HasPrefix(summary, mergePrefix(branch)) {
				if !yield(check.Problem{
					Severity: check.SeverityWarning,
					Message:  fmt.Sprintf("commit %s merges the branch into itself", commit),
				}, nil) {
					return
				}
				continue
			}
			for _, protected := range c.Protected {
				if protected == branch {
					continue
				}
				if strings.HasPrefix(summary, mergePrefix(protected)) {
					if !yield(check.Problem{
						Severity: check.SeverityWarning,
						Message:  fmt.Sprintf("commit %s merges from %q", commit, protected),
					}, nil) {
						return
					}
					break
				}
			}
		}
	}
}

func mergePrefix(branch string) string {
	return fmt.Sprintf("Merge branch '%s'", branch)
}

// CheckTimestamps verifies author and committer timestamps: neither may
// be in the future, the author may not be after the committer, and both
// must be non-decreasing along the list. The committer axis is the
// trusted clock, so its violations are errors; the author axis only
// gets a notice.
type CheckTimestamps struct {
	check.Base
	now  time.Time
	list *git.CommitList
}

// NewCheckTimestamps captures the reference clock once, at template
// configuration.
func NewCheckTimestamps(now time.Time) *CheckTimestamps {
	return &CheckTimestamps{now: now}
}

func (c *CheckTimestamps) String() string {
	return scopedName("CheckTimestamps", c.list)
}

func (c *CheckTimestamps) Prepare(_ context.Context, scope any) (check.Check, error) {
	list, ok := scope.(*git.CommitList)
	if !ok {
		return c, nil
	}
	clone := *c
	clone.list = list
	clone.SetState(check.StateReady)
	return &clone, nil
}

func (c *CheckTimestamps) Problems(ctx context.Context) iter.Seq2[check.Problem, error] {
	return func(yield func(check.Problem, error) bool) {
		// Tolerance for commit clocks slightly ahead of ours.
		horizon := c.now.Unix() + 2

		var previousAuthor, previousCommitter int64
		for _, commit := range c.list.Commits {
			author, err := commit.Author(ctx)
			if err != nil {
				yield(check.Problem{}, err)
				return
			}
			committer, err := commit.Committer(ctx)
			if err != nil {
				yield(check.Problem{}, err)
				return
			}

			var problems []check.Problem
			if author.Timestamp > horizon {
				problems = append(problems, check.Problem{
					Severity: check.SeverityError,
					Message:  fmt.Sprintf("author timestamp of commit %s in future", commit),
				})
			}
			if committer.Timestamp > horizon {
				problems = append(problems, check.Problem{
					Severity: check.SeverityError,
					Message:  fmt.Sprintf("committer timestamp of commit %s in future", commit),
				})
			}
			if author.Timestamp > committer.Timestamp {
				problems = append(problems, check.Problem{
					Severity: check.SeverityError,
					Message:  fmt.Sprintf("author timestamp of commit %s after committer", commit),
				})
			}
			if previousAuthor > author.Timestamp {
				problems = append(problems, check.Problem{
					Severity: check.SeverityNotice,
					Message:  fmt.Sprintf("author timestamp of commit %s before previous commit", commit),
				})
			}
			if previousCommitter > committer.Timestamp {
				problems = append(problems, check.Problem{
					Severity: check.SeverityError,
					Message:  fmt.Sprintf("committer timestamp of commit %s before previous commit", commit),
				})
			}
			for _, problem := range problems {
				if !yield(problem, nil) {
					return
				}
			}
			previousAuthor = author.Timestamp
			previousCommitter = committer.Timestamp
		}
	}
}

// scopedName names a check instance after its bound scope object, or
// just the check when it is still an unbound template.
func scopedName[T any](name string, scope *T) string {
	if scope == nil {
		return name
	}
	return fmt.Sprintf("%s on %v", name, scope)
}
