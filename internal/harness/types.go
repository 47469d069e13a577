package harness

import "github.com/roach88/cepsnap/internal/store"

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Counts is the fire tally across both sessions, keyed by
	// "package-rule".
	Counts map[string]int `json:"counts"`

	// Trace is every firing in journal order.
	Trace []store.Firing `json:"trace"`

	// FinalClock is the restored session's clock before it was disposed.
	FinalClock int64 `json:"final_clock"`

	// Errors holds assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Counts: map[string]int{},
		Trace:  []store.Firing{},
		Errors: []string{},
	}
}

// AddError records an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
