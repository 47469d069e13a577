package marshal_test

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cepsnap/internal/engine"
	"github.com/roach88/cepsnap/internal/ir"
	"github.com/roach88/cepsnap/internal/marshal"
	"github.com/roach88/cepsnap/internal/model"
)

const pkg = "org.jboss.ddoyle.drools.cep.sample"

var base = time.Date(2015, 2, 23, 9, 0, 0, 0, time.UTC)

func ruleBase(t *testing.T) *engine.RuleBase {
	t.Helper()
	rb, err := engine.NewRuleBase(ir.RuleBase{
		Name:  "rules",
		Types: []ir.TypeDecl{{Name: model.SimpleEventType, Role: ir.RoleEvent}},
		Rules: []ir.Rule{
			{Package: pkg, Name: "SimpleTestRule-One", When: []ir.Pattern{{Bind: "e", Type: model.SimpleEventType}}},
			{Package: pkg, Name: "SimpleTestRule-Two", When: []ir.Pattern{
				{Bind: "e1", Type: model.SimpleEventType},
				{Type: model.SimpleEventType, Not: true, After: &ir.Temporal{Of: "e1", MaxMS: 10_000}},
			}},
		},
		Session: ir.SessionSpec{Name: "ksession-rules", Clock: ir.ClockPseudo, EventMode: ir.EventModeStream},
	})
	require.NoError(t, err)
	return rb
}

func populated(t *testing.T, rb *engine.RuleBase) *engine.Session {
	t.Helper()
	s, err := engine.NewSession(rb, rb.DefaultSessionConfig(), engine.WithSessionID("test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Dispose() })

	for _, e := range []*model.SimpleEvent{
		model.NewSimpleEventWithID("1", base),
		model.NewSimpleEventWithID("2", base.Add(5*time.Second)),
	} {
		_, err := s.Insert(e)
		require.NoError(t, err)
		s.Clock().Advance(e.Timestamp().UnixMilli() - s.Clock().Current())
		_, err = s.FireAllRules()
		require.NoError(t, err)
	}
	return s
}

func TestMarshaller_RoundTrip(t *testing.T) {
	rb := ruleBase(t)
	s := populated(t, rb)
	m := marshal.NewMarshaller(rb)

	var buf bytes.Buffer
	require.NoError(t, m.Marshal(&buf, s))

	restored, err := m.Unmarshal(&buf, s.Configuration())
	require.NoError(t, err)
	defer restored.Dispose()

	facts := restored.Facts()
	require.Len(t, facts, 2)
	ev, ok := facts[1].Fact().(*model.SimpleEvent)
	require.True(t, ok)
	assert.Equal(t, "2", ev.ID())
	assert.Equal(t, base.Add(5*time.Second), ev.Timestamp())
	assert.Equal(t, 2, restored.PendingTimers())
}

func TestMarshaller_OutputIsCanonical(t *testing.T) {
	rb := ruleBase(t)
	s := populated(t, rb)

	var a, b bytes.Buffer
	require.NoError(t, marshal.NewMarshaller(rb).Marshal(&a, s))
	require.NoError(t, marshal.NewMarshaller(rb).Marshal(&b, s))
	assert.Equal(t, a.String(), b.String())

	var wm map[string]any
	require.NoError(t, json.Unmarshal(a.Bytes(), &wm))
	assert.Equal(t, "working_memory", wm["kind"])
	assert.Equal(t, rb.Fingerprint(), wm["rule_base"])
	facts := wm["facts"].([]any)
	assert.Equal(t, "serialize", facts[0].(map[string]any)["strategy"])
}

func TestMarshaller_NoAcceptingStrategy(t *testing.T) {
	rb := ruleBase(t)
	s := populated(t, rb)
	m := marshal.NewMarshaller(rb, marshal.NewSerializeStrategy(marshal.NewClassFilterAcceptor("other.*")))

	err := m.Marshal(&bytes.Buffer{}, s)
	require.Error(t, err)
	assert.True(t, engine.IsSchemaError(err))
}

func TestMarshaller_UnmarshalErrors(t *testing.T) {
	rb := ruleBase(t)
	s := populated(t, rb)
	var buf bytes.Buffer
	require.NoError(t, marshal.NewMarshaller(rb).Marshal(&buf, s))
	good := buf.String()
	secondTS := `"strategy":"serialize","timestamp":` + strconv.FormatInt(base.Add(5*time.Second).UnixMilli(), 10)
	require.Contains(t, good, secondTS)

	tests := []struct {
		name  string
		input string
		check func(error) bool
	}{
		{"empty", "", engine.IsEncodingError},
		{"truncated", good[:len(good)/2], engine.IsEncodingError},
		{"wrong kind", strings.Replace(good, `"kind":"working_memory"`, `"kind":"session_config"`, 1), engine.IsEncodingError},
		{"wrong version", strings.Replace(good, `"version":"1"`, `"version":"9"`, 1), engine.IsEncodingError},
		{"trailing data", good + `{}`, engine.IsEncodingError},
		{"unknown field", strings.Replace(good, `"kind"`, `"extra":1,"kind"`, 1), engine.IsEncodingError},
		{"unknown strategy", strings.ReplaceAll(good, `"strategy":"serialize"`, `"strategy":"identity"`), engine.IsSchemaError},
		{"unregistered type", strings.ReplaceAll(good, `"type":"model.SimpleEvent"`, `"type":"model.Other"`), engine.IsSchemaError},
		{"timestamp mismatch", strings.Replace(good, secondTS, `"strategy":"serialize","timestamp":1424682099000`, 1), engine.IsEncodingError},
		{"bad payload", strings.Replace(good, `"id":"1"`, `"id":1`, 1), engine.IsEncodingError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := marshal.NewMarshaller(rb).Unmarshal(strings.NewReader(tt.input), s.Configuration())
			require.Error(t, err)
			assert.True(t, tt.check(err), "got %v", err)
		})
	}
}
