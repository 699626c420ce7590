package check

import (
	"context"
	"fmt"
	"io"
	"iter"
)

// State is the lifecycle of a check. It only ever increases: NEW is the
// state of an unbound template, READY of an instance bound to a scope
// object, DONE and FAILED are terminal.
type State int

const (
	StateNew State = iota
	StateReady
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateReady:
		return "ready"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Problem is a single finding reported by a check.
type Problem struct {
	Severity Severity
	Message  string
}

// Check is either a template or an instance bound to one scope object.
// Templates specialize themselves by cloning: Prepare offered a scope
// object returns a READY clone when the object is what the check works
// on, the check itself when it needs a narrower scope, or nil when the
// check does not apply at all.
type Check interface {
	fmt.Stringer

	State() State
	SetState(State)

	// Prepare narrows the check to the scope object. The scope is one
	// of *git.CommitList, *git.Commit, *git.CommittedFile, or nil for
	// the push itself.
	Prepare(ctx context.Context, scope any) (Check, error)

	// Problems streams the findings of a READY instance. It must be
	// drained at most once.
	Problems(ctx context.Context) iter.Seq2[Problem, error]
}

// Evaluator is implemented by checks that need their own completion
// policy on top of the problem stream, such as external commands that
// fail on exit status.
type Evaluator interface {
	Evaluate(ctx context.Context) iter.Seq2[Problem, error]
}

// Base carries the state machine and the preferred-check list shared by
// all checks. Embed it by value so clones get their own state.
type Base struct {
	state State

	// Preferred lists checks that make this one redundant: if any of
	// them accepts the same scope object, this check yields nothing.
	Preferred []Check
}

func (b *Base) State() State { return b.state }

// SetState raises the state. Lowering is ignored, so FAILED sticks even
// when DONE is set afterwards.
func (b *Base) SetState(s State) {
	if s > b.state {
		b.state = s
	}
}

// SuppressedBy reports whether any preferred check accepts the scope.
func (b *Base) SuppressedBy(ctx context.Context, scope any) (bool, error) {
	for _, preferred := range b.Preferred {
		prepared, err := preferred.Prepare(ctx, scope)
		if err != nil {
			return false, err
		}
		if prepared != nil {
			return true, nil
		}
	}
	return false, nil
}

// Evaluate drains the problems of a READY instance, promoting it to
// FAILED when any problem is at ERROR severity or worse.
func Evaluate(ctx context.Context, c Check) iter.Seq2[Problem, error] {
	if evaluator, ok := c.(Evaluator); ok {
		return evaluator.Evaluate(ctx)
	}
	return Promote(c, c.Problems(ctx))
}

// Promote applies the severity-driven FAILED promotion to a problem
// stream.
func Promote(c Check, src iter.Seq2[Problem, error]) iter.Seq2[Problem, error] {
	return func(yield func(Problem, error) bool) {
		for problem, err := range src {
			if err != nil {
				yield(Problem{}, err)
				return
			}
			if problem.Severity <= SeverityError {
				c.SetState(StateFailed)
			}
			if !yield(problem, nil) {
				return
			}
		}
	}
}

// Report evaluates an instance and prints its problems: a header naming
// the check and its scope, one line per problem, and a trailing blank
// line. Checks without problems print nothing. The instance ends up
// DONE, or FAILED when the evaluation decided so.
func Report(ctx context.Context, w io.Writer, c Check) error {
	headerPrinted := false
	for problem, err := range Evaluate(ctx, c) {
		if err != nil {
			return fmt.Errorf("%s: %w", c, err)
		}
		if !headerPrinted {
			fmt.Fprintf(w, "=== %s ===\n", c)
			headerPrinted = true
		}
		fmt.Fprintf(w, "%s: %s\n", problem.Severity, problem.Message)
	}
	if headerPrinted {
		fmt.Fprintln(w)
	}
	c.SetState(StateDone)
	return nil
}

// PrepareAll offers the scope object to every check. Instances that
// became READY are returned; checks that still need a narrower scope
// are appended to next. A nil next means there is no narrower scope
// left, so a deferring check is a configuration defect.
func PrepareAll(ctx context.Context, checks []Check, scope any, next *[]Check) ([]Check, error) {
	var ready []Check
	for _, c := range checks {
		prepared, err := c.Prepare(ctx, scope)
		if err != nil {
			return nil, err
		}
		if prepared == nil {
			continue
		}
		if prepared.State() >= StateReady {
			ready = append(ready, prepared)
			continue
		}
		if next == nil {
			return nil, fmt.Errorf("check %s has no narrower scope left to specialize to", prepared)
		}
		*next = append(*next, prepared)
	}
	return ready, nil
}
