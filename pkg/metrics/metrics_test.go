package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectors_MustRegister(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	c := New("")
	assert.NotPanics(t, func() { c.MustRegister(reg) })
	assert.Panics(t, func() { c.MustRegister(reg) }, "duplicate registration")
}

func TestCollectors_ObserveKeyFetch(t *testing.T) {
	t.Parallel()
	c := New("test")

	c.ObserveKeyFetch(true, 3)
	c.ObserveKeyFetch(false, 0)
	c.ObserveKeyFetch(false, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.keyFetches.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.keyFetches.WithLabelValues("failure")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.keyringKeys), "failures leave the gauge alone")
}

func TestCollectors_ObserveLogin(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	c := New("test")
	c.MustRegister(reg)

	c.ObserveLogin("federated", "authenticated", 40*time.Millisecond)
	c.ObserveLogin("legacy", "disconnected", 2*time.Millisecond)
	c.ObserveLogin("federated", "authenticated", 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.loginOutcomes.WithLabelValues("federated", "authenticated")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.verifyLatency))

	expected := `
# HELP test_login_outcomes_total Completed login attempts by flow and result
# TYPE test_login_outcomes_total counter
test_login_outcomes_total{flow="federated",result="authenticated"} 2
test_login_outcomes_total{flow="legacy",result="disconnected"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "test_login_outcomes_total"))
}

func TestCollectors_SetPolicyEntries(t *testing.T) {
	t.Parallel()
	c := New("test")
	c.SetPolicyEntries(4, 1, 9)
	assert.Equal(t, 4.0, testutil.ToFloat64(c.policyEntries.WithLabelValues("name_bans")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.policyEntries.WithLabelValues("ip_bans")))
	assert.Equal(t, 9.0, testutil.ToFloat64(c.policyEntries.WithLabelValues("whitelist")))
}

func TestCollectors_NilIsNoop(t *testing.T) {
	t.Parallel()
	var c *Collectors
	assert.NotPanics(t, func() {
		c.ObserveKeyFetch(true, 1)
		c.ObserveLogin("legacy", "authenticated", time.Second)
		c.SetPolicyEntries(1, 1, 1)
	})
}
