package engine

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/cepsnap/internal/ir"
)

const (
	testPkg   = "org.example.cep"
	eventType = "test.Event"
	factType  = "test.Fact"
	ruleOne   = testPkg + "-Rule-One"
	ruleTwo   = testPkg + "-Rule-Two"
	ruleThree = testPkg + "-Rule-Three"
)

var t0 = time.Date(2015, 2, 23, 9, 0, 0, 0, time.UTC)

type testEvent struct {
	id string
	ts time.Time
}

func (e *testEvent) FactType() string     { return eventType }
func (e *testEvent) Timestamp() time.Time { return e.ts }

type testFact struct {
	name string
}

func (f *testFact) FactType() string { return factType }

func ev(id string, offset time.Duration) *testEvent {
	return &testEvent{id: id, ts: t0.Add(offset)}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleDef(withThree bool) ir.RuleBase {
	def := ir.RuleBase{
		Name: "rules",
		Types: []ir.TypeDecl{
			{Name: eventType, Role: ir.RoleEvent},
			{Name: factType, Role: ir.RoleFact},
		},
		Rules: []ir.Rule{
			{
				Package: testPkg,
				Name:    "Rule-One",
				When:    []ir.Pattern{{Bind: "e", Type: eventType}},
			},
			{
				Package: testPkg,
				Name:    "Rule-Two",
				When: []ir.Pattern{
					{Bind: "e1", Type: eventType},
					{Type: eventType, Not: true, After: &ir.Temporal{Of: "e1", MinMS: 0, MaxMS: 10_000}},
				},
			},
		},
		Session: ir.SessionSpec{Name: "ksession-rules", Clock: ir.ClockPseudo, EventMode: ir.EventModeStream},
	}
	if withThree {
		def.Name = "newRules"
		def.Rules = append(def.Rules, ir.Rule{
			Package: testPkg,
			Name:    "Rule-Three",
			When:    []ir.Pattern{{Bind: "e", Type: eventType}},
		})
	}
	return def
}

func mustRuleBase(t *testing.T, def ir.RuleBase) *RuleBase {
	t.Helper()
	rb, err := NewRuleBase(def)
	require.NoError(t, err)
	return rb
}

func newTestSession(t *testing.T, rb *RuleBase) *Session {
	t.Helper()
	s, err := NewSession(rb, rb.DefaultSessionConfig(), WithLogger(discardLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Dispose() })
	return s
}

// counter tallies firings per rule key.
type counter map[string]int

func (c counter) AfterMatchFired(m Match) { c[m.Rule]++ }

func attach(t *testing.T, s *Session, l AgendaEventListener) {
	t.Helper()
	_, err := s.AddEventListener(l)
	require.NoError(t, err)
}

// feed inserts an event, moves the clock up to its timestamp and fires.
func feed(t *testing.T, s *Session, e *testEvent) {
	t.Helper()
	_, err := s.Insert(e)
	require.NoError(t, err)
	s.Clock().Advance(e.ts.UnixMilli() - s.Clock().Current())
	_, err = s.FireAllRules()
	require.NoError(t, err)
}
