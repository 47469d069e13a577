package harness

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/cepsnap/internal/model"
	"github.com/roach88/cepsnap/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string         // Assertion type for categorization
	Expected string         // Human-readable expected outcome
	Actual   string         // Human-readable actual outcome
	Trace    []store.Firing // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for i, f := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %v @%s (%s)\n",
			i+1, f.Rule, f.FactIDs, model.FormatTimestamp(time.UnixMilli(f.ClockTime)), f.SessionID)
	}
	return buf.String()
}

// assertFiredCount checks the tally for an exact count.
func assertFiredCount(result *Result, assertion Assertion) error {
	want := *assertion.Count
	got := result.Counts[assertion.Rule]
	if got == want {
		return nil
	}
	return &AssertionError{
		Type:     AssertFiredCount,
		Expected: fmt.Sprintf("%s fired %d times", assertion.Rule, want),
		Actual:   fmt.Sprintf("fired %d times", got),
		Trace:    result.Trace,
	}
}

// assertFiredFor checks the journal for a firing of the rule whose tuple
// contains the event.
func assertFiredFor(ctx context.Context, st *store.Store, result *Result, assertion Assertion) error {
	n, err := st.FiredFor(ctx, assertion.Rule, assertion.Event)
	if err != nil {
		return fmt.Errorf("fired_for %s: %w", assertion.Rule, err)
	}
	if n > 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertFiredFor,
		Expected: fmt.Sprintf("%s fired for event %q", assertion.Rule, assertion.Event),
		Actual:   "no such firing in trace",
		Trace:    result.Trace,
	}
}

// assertFiredOrder checks that the first firing of each rule appears in the
// given order. Firings need not be consecutive.
func assertFiredOrder(result *Result, assertion Assertion) error {
	positions := make(map[string]int)
	for i, f := range result.Trace {
		if _, ok := positions[f.Rule]; !ok {
			positions[f.Rule] = i
		}
	}

	for _, rule := range assertion.Rules {
		if _, ok := positions[rule]; !ok {
			return &AssertionError{
				Type:     AssertFiredOrder,
				Expected: fmt.Sprintf("order %v", assertion.Rules),
				Actual:   fmt.Sprintf("%s never fired", rule),
				Trace:    result.Trace,
			}
		}
	}

	for i := 1; i < len(assertion.Rules); i++ {
		prev, cur := assertion.Rules[i-1], assertion.Rules[i]
		if positions[cur] < positions[prev] {
			return &AssertionError{
				Type:     AssertFiredOrder,
				Expected: fmt.Sprintf("order %v", assertion.Rules),
				Actual:   fmt.Sprintf("%s first fired before %s", cur, prev),
				Trace:    result.Trace,
			}
		}
	}
	return nil
}

// assertClockAtLeast checks the final clock position.
func assertClockAtLeast(result *Result, assertion Assertion) error {
	ts, err := model.ParseTimestamp(assertion.Timestamp)
	if err != nil {
		return fmt.Errorf("clock_at_least: %w", err)
	}
	if result.FinalClock >= ts.UnixMilli() {
		return nil
	}
	return &AssertionError{
		Type:     AssertClockAtLeast,
		Expected: fmt.Sprintf("clock >= %s", assertion.Timestamp),
		Actual:   fmt.Sprintf("clock at %s", model.FormatTimestamp(time.UnixMilli(result.FinalClock))),
		Trace:    result.Trace,
	}
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides journal access for fired_for assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertFiredCount:
			if assertion.Count == nil {
				err = fmt.Errorf("assertion[%d]: fired_count requires count", i)
			} else {
				err = assertFiredCount(result, assertion)
			}
		case AssertFiredFor:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: fired_for requires journal context", i)
			} else {
				err = assertFiredFor(actx.Ctx, actx.Store, result, assertion)
			}
		case AssertFiredOrder:
			err = assertFiredOrder(result, assertion)
		case AssertClockAtLeast:
			err = assertClockAtLeast(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}
