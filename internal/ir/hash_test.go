package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRuleBase() RuleBase {
	return RuleBase{
		Name:  "rules",
		Types: []TypeDecl{{Name: "model.SimpleEvent", Role: RoleEvent}},
		Rules: []Rule{{
			Package: "org.example",
			Name:    "Rule-One",
			When:    []Pattern{{Bind: "e", Type: "model.SimpleEvent"}},
		}},
		Session: SessionSpec{Name: "ksession", Clock: ClockPseudo, EventMode: EventModeStream},
	}
}

func TestFingerprint_Stable(t *testing.T) {
	a, err := Fingerprint(sampleRuleBase())
	require.NoError(t, err)
	b, err := Fingerprint(sampleRuleBase())
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestFingerprint_ChangesWithRules(t *testing.T) {
	base := sampleRuleBase()
	extended := sampleRuleBase()
	extended.Rules = append(extended.Rules, Rule{
		Package: "org.example",
		Name:    "Rule-Three",
		When:    []Pattern{{Bind: "e", Type: "model.SimpleEvent"}},
	})

	a, err := Fingerprint(base)
	require.NoError(t, err)
	b, err := Fingerprint(extended)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestRuleKey(t *testing.T) {
	r := Rule{Package: "org.jboss.ddoyle.drools.cep.sample", Name: "SimpleTestRule-One"}
	assert.Equal(t, "org.jboss.ddoyle.drools.cep.sample-SimpleTestRule-One", r.Key())
}

func TestDefaultSessionConfig_FillsDefaults(t *testing.T) {
	cfg := DefaultSessionConfig(SessionSpec{Name: "s"})
	assert.Equal(t, ClockPseudo, cfg.ClockType)
	assert.Equal(t, EventModeStream, cfg.EventMode)
	assert.Equal(t, int64(0), cfg.ClockTime)
}
