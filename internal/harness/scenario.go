package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cepsnap/internal/model"
)

// Scenario defines a snapshot scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden trace file
	// and prefixes session identifiers.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Rules is the rules directory. LoadScenario resolves it relative to the
	// scenario file.
	Rules string `yaml:"rules"`

	// RuleBase is the kbase the first session is built on. Empty means the
	// container's default kbase.
	RuleBase string `yaml:"rule_base,omitempty"`

	// RestoreRuleBase is the kbase the snapshot is restored against. Empty
	// means the rule base embedded in the snapshot.
	RestoreRuleBase string `yaml:"restore_rule_base,omitempty"`

	// BeforeSnapshot is fed to the first session.
	BeforeSnapshot []EventStep `yaml:"before_snapshot"`

	// AfterSnapshot is fed to the restored session.
	AfterSnapshot []EventStep `yaml:"after_snapshot,omitempty"`

	// Assertions are evaluated after the restored session is disposed.
	// Supported types: fired_count, fired_for, fired_order, clock_at_least
	Assertions []Assertion `yaml:"assertions"`
}

// EventStep is one event to feed.
type EventStep struct {
	ID string `yaml:"id"`

	// Timestamp is yyyyMMdd:HHmmssSSS in UTC.
	Timestamp string `yaml:"timestamp"`
}

// Event builds the SimpleEvent this step describes.
func (e EventStep) Event() (*model.SimpleEvent, error) {
	ts, err := model.ParseTimestamp(e.Timestamp)
	if err != nil {
		return nil, err
	}
	return model.NewSimpleEventWithID(e.ID, ts), nil
}

// Assertion checks the combined firing record of a run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "fired_count": Rule fired exactly Count times
	// - "fired_for": Rule fired for a tuple containing Event
	// - "fired_order": first firings of Rules appear in this order
	// - "clock_at_least": final clock >= Timestamp
	Type string `yaml:"type"`

	// Rule is the package-qualified rule name (fired_count, fired_for).
	Rule string `yaml:"rule,omitempty"`

	// Count is the expected number of firings (fired_count).
	Count *int `yaml:"count,omitempty"`

	// Event is an event id (fired_for).
	Event string `yaml:"event,omitempty"`

	// Rules is the expected order (fired_order).
	Rules []string `yaml:"rules,omitempty"`

	// Timestamp is yyyyMMdd:HHmmssSSS (clock_at_least).
	Timestamp string `yaml:"timestamp,omitempty"`
}

// Assertion type constants.
const (
	AssertFiredCount   = "fired_count"
	AssertFiredFor     = "fired_for"
	AssertFiredOrder   = "fired_order"
	AssertClockAtLeast = "clock_at_least"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve the rules directory before validation checks that it exists.
	if scenario.Rules != "" && !filepath.IsAbs(scenario.Rules) {
		scenario.Rules = filepath.Join(filepath.Dir(path), scenario.Rules)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Rules == "" {
		return fmt.Errorf("rules is required")
	}
	if info, err := os.Stat(s.Rules); err != nil || !info.IsDir() {
		return fmt.Errorf("rules directory not found: %s", s.Rules)
	}
	if len(s.BeforeSnapshot) == 0 {
		return fmt.Errorf("before_snapshot list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	seen := make(map[string]bool)
	var last time.Time
	check := func(section string, steps []EventStep) error {
		for i, step := range steps {
			if step.ID == "" {
				return fmt.Errorf("%s[%d]: id is required", section, i)
			}
			if seen[step.ID] {
				return fmt.Errorf("%s[%d]: duplicate event id %q", section, i, step.ID)
			}
			seen[step.ID] = true
			ts, err := model.ParseTimestamp(step.Timestamp)
			if err != nil {
				return fmt.Errorf("%s[%d]: %w", section, i, err)
			}
			if ts.Before(last) {
				return fmt.Errorf("%s[%d]: timestamp %s is earlier than the previous event", section, i, step.Timestamp)
			}
			last = ts
		}
		return nil
	}
	if err := check("before_snapshot", s.BeforeSnapshot); err != nil {
		return err
	}
	if err := check("after_snapshot", s.AfterSnapshot); err != nil {
		return err
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], seen); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, events map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFiredCount:
		if a.Rule == "" {
			return fmt.Errorf("assertions[%d]: rule is required for fired_count", index)
		}
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: count is required for fired_count", index)
		}
		if *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for fired_count", index)
		}
	case AssertFiredFor:
		if a.Rule == "" {
			return fmt.Errorf("assertions[%d]: rule is required for fired_for", index)
		}
		if !events[a.Event] {
			return fmt.Errorf("assertions[%d]: fired_for references unknown event %q", index, a.Event)
		}
	case AssertFiredOrder:
		if len(a.Rules) == 0 {
			return fmt.Errorf("assertions[%d]: rules list is required for fired_order", index)
		}
	case AssertClockAtLeast:
		if _, err := model.ParseTimestamp(a.Timestamp); err != nil {
			return fmt.Errorf("assertions[%d]: clock_at_least: %w", index, err)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
