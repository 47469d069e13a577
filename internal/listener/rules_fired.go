// Package listener provides agenda listeners for fire accounting.
package listener

import (
	"maps"
	"slices"
	"sync"

	"github.com/roach88/cepsnap/internal/engine"
)

// RulesFired tallies firings per package-qualified rule name.
//
// One instance may be attached to several sessions; the tally is the sum
// over all of them. Safe for concurrent use.
type RulesFired struct {
	mu     sync.Mutex
	counts map[string]int
	order  []string
}

// NewRulesFired creates an empty tally.
func NewRulesFired() *RulesFired {
	return &RulesFired{counts: make(map[string]int)}
}

// AfterMatchFired implements engine.AgendaEventListener.
func (r *RulesFired) AfterMatchFired(m engine.Match) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[m.Rule]++
	r.order = append(r.order, m.Rule)
}

// Observed returns how often ruleKey fired. Unseen rules return 0.
func (r *RulesFired) Observed(ruleKey string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[ruleKey]
}

// Counts returns a copy of the tally.
func (r *RulesFired) Counts() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.counts)
}

// Order returns the rule keys in firing order.
func (r *RulesFired) Order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.order)
}

// Total returns the number of firings observed.
func (r *RulesFired) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}
