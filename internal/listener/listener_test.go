package listener

import (
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cepsnap/internal/engine"
)

func match(rule string) engine.Match {
	return engine.Match{Rule: rule}
}

func TestRulesFired_Tally(t *testing.T) {
	r := NewRulesFired()
	r.AfterMatchFired(match("p-One"))
	r.AfterMatchFired(match("p-Two"))
	r.AfterMatchFired(match("p-One"))

	assert.Equal(t, 2, r.Observed("p-One"))
	assert.Equal(t, 1, r.Observed("p-Two"))
	assert.Zero(t, r.Observed("p-Three"))
	assert.Equal(t, 3, r.Total())
	assert.Equal(t, []string{"p-One", "p-Two", "p-One"}, r.Order())

	counts := r.Counts()
	counts["p-One"] = 99
	assert.Equal(t, 2, r.Observed("p-One"), "Counts returns a copy")
}

func TestRulesFired_Concurrent(t *testing.T) {
	r := NewRulesFired()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				r.AfterMatchFired(match("p-One"))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1000, r.Observed("p-One"))
}

func TestMetrics_CountsByRule(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	m.AfterMatchFired(match("p-One"))
	m.AfterMatchFired(match("p-One"))
	m.AfterMatchFired(match("p-Two"))

	expected := `
# HELP cepsnap_rules_fired_total Total number of rule firings by package-qualified rule name.
# TYPE cepsnap_rules_fired_total counter
cepsnap_rules_fired_total{rule="p-One"} 2
cepsnap_rules_fired_total{rule="p-Two"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "cepsnap_rules_fired_total"))

	_, err = NewMetrics(reg)
	assert.Error(t, err, "second registration on the same registry")
}
