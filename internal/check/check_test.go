package check

import (
	"bytes"
	"context"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubCheck becomes ready as soon as the scope reaches the configured
// stage, counted from however many Prepare calls it has seen.
type stubCheck struct {
	Base
	name     string
	skip     bool
	deferred bool
	problems []Problem
	err      error
}

func (c *stubCheck) String() string { return c.name }

func (c *stubCheck) Prepare(ctx context.Context, scope any) (Check, error) {
	if c.skip {
		return nil, nil
	}
	if c.deferred {
		return c, nil
	}
	clone := *c
	clone.SetState(StateReady)
	return &clone, nil
}

func (c *stubCheck) Problems(ctx context.Context) iter.Seq2[Problem, error] {
	return func(yield func(Problem, error) bool) {
		for _, p := range c.problems {
			if !yield(p, nil) {
				return
			}
		}
		if c.err != nil {
			yield(Problem{}, c.err)
		}
	}
}

func TestSetStateOnlyRaises(t *testing.T) {
	c := &stubCheck{name: "stub"}
	assert.Equal(t, StateNew, c.State())

	c.SetState(StateReady)
	assert.Equal(t, StateReady, c.State())

	c.SetState(StateNew)
	assert.Equal(t, StateReady, c.State())

	c.SetState(StateFailed)
	c.SetState(StateDone)
	assert.Equal(t, StateFailed, c.State())
}

func TestReportFormatsProblems(t *testing.T) {
	c := &stubCheck{
		name: "CheckStub on abc1234",
		problems: []Problem{
			{Severity: SeverityWarning, Message: "line too long"},
			{Severity: SeverityNotice, Message: "new domain"},
		},
	}
	c.SetState(StateReady)

	var buf bytes.Buffer
	require.NoError(t, Report(context.Background(), &buf, c))

	expected := "=== CheckStub on abc1234 ===\n" +
		"WARNING: line too long\n" +
		"NOTICE: new domain\n" +
		"\n"
	assert.Equal(t, expected, buf.String())
	assert.Equal(t, StateDone, c.State())
}

func TestReportWithoutProblemsPrintsNothing(t *testing.T) {
	c := &stubCheck{name: "quiet"}
	c.SetState(StateReady)

	var buf bytes.Buffer
	require.NoError(t, Report(context.Background(), &buf, c))
	assert.Empty(t, buf.String())
	assert.Equal(t, StateDone, c.State())
}

func TestReportPromotesErrorsToFailed(t *testing.T) {
	c := &stubCheck{
		name:     "failing",
		problems: []Problem{{Severity: SeverityError, Message: "broken"}},
	}
	c.SetState(StateReady)

	var buf bytes.Buffer
	require.NoError(t, Report(context.Background(), &buf, c))
	assert.Equal(t, StateFailed, c.State())
	assert.Contains(t, buf.String(), "ERROR: broken")
}

func TestReportWrapsEvaluationErrors(t *testing.T) {
	c := &stubCheck{name: "erroring", err: assert.AnError}
	c.SetState(StateReady)

	var buf bytes.Buffer
	err := Report(context.Background(), &buf, c)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "erroring")
}

func TestPrepareAll(t *testing.T) {
	ready := &stubCheck{name: "ready"}
	skipped := &stubCheck{name: "skipped", skip: true}
	deferred := &stubCheck{name: "deferred", deferred: true}

	var next []Check
	prepared, err := PrepareAll(context.Background(), []Check{ready, skipped, deferred}, "scope", &next)
	require.NoError(t, err)

	require.Len(t, prepared, 1)
	assert.Equal(t, "ready", prepared[0].String())
	assert.Equal(t, StateReady, prepared[0].State())
	// The template itself stays NEW; only the clone became ready.
	assert.Equal(t, StateNew, ready.State())

	require.Len(t, next, 1)
	assert.Equal(t, "deferred", next[0].String())
}

func TestPrepareAllRejectsDeferralAtNarrowestScope(t *testing.T) {
	deferred := &stubCheck{name: "deferred", deferred: true}
	_, err := PrepareAll(context.Background(), []Check{deferred}, "scope", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deferred")
}

func TestSuppressedBy(t *testing.T) {
	preferred := &stubCheck{name: "preferred"}
	suppressedCheck := &stubCheck{name: "fallback"}
	suppressedCheck.Preferred = []Check{preferred}

	suppressed, err := suppressedCheck.SuppressedBy(context.Background(), "scope")
	require.NoError(t, err)
	assert.True(t, suppressed)

	preferred.skip = true
	suppressed, err = suppressedCheck.SuppressedBy(context.Background(), "scope")
	require.NoError(t, err)
	assert.False(t, suppressed)
}
