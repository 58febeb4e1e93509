// Package metrics exposes Prometheus collectors for key fetches, login
// outcomes and access-list sizes.
//
// Collectors are created unregistered; call [Collectors.MustRegister] with
// the registry the process serves.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "bedrock_auth"

// Collectors holds the service's metrics. A nil *Collectors is valid and
// records nothing.
type Collectors struct {
	keyFetches    *prometheus.CounterVec
	keyringKeys   prometheus.Gauge
	loginOutcomes *prometheus.CounterVec
	verifyLatency *prometheus.HistogramVec
	policyEntries *prometheus.GaugeVec
}

// New creates collectors under namespace, or [DefaultNamespace] if empty.
func New(namespace string) *Collectors {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Collectors{
		keyFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "key_fetch_total",
				Help:      "Identity provider key-set fetches by result",
			},
			[]string{"result"},
		),
		keyringKeys: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "keyring_keys",
				Help:      "Signing keys in the current key ring",
			},
		),
		loginOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "login_outcomes_total",
				Help:      "Completed login attempts by flow and result",
			},
			[]string{"flow", "result"},
		),
		verifyLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "login_verification_seconds",
				Help:      "Time from login receipt to verification outcome",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
			},
			[]string{"flow"},
		),
		policyEntries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "policy_entries",
				Help:      "Entries in each access list",
			},
			[]string{"list"},
		),
	}
}

// MustRegister registers every collector with reg. It panics on conflict.
func (c *Collectors) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(c.keyFetches, c.keyringKeys, c.loginOutcomes, c.verifyLatency, c.policyEntries)
}

// ObserveKeyFetch records a completed key-set fetch. keys is the size of
// the resulting ring and is ignored on failure.
func (c *Collectors) ObserveKeyFetch(success bool, keys int) {
	if c == nil {
		return
	}
	if !success {
		c.keyFetches.WithLabelValues("failure").Inc()
		return
	}
	c.keyFetches.WithLabelValues("success").Inc()
	c.keyringKeys.Set(float64(keys))
}

// ObserveLogin records a finished login attempt.
func (c *Collectors) ObserveLogin(flow, result string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.loginOutcomes.WithLabelValues(flow, result).Inc()
	c.verifyLatency.WithLabelValues(flow).Observe(elapsed.Seconds())
}

// SetPolicyEntries records access-list sizes after a reload.
func (c *Collectors) SetPolicyEntries(nameBans, ipBans, whitelist int) {
	if c == nil {
		return
	}
	c.policyEntries.WithLabelValues("name_bans").Set(float64(nameBans))
	c.policyEntries.WithLabelValues("ip_bans").Set(float64(ipBans))
	c.policyEntries.WithLabelValues("whitelist").Set(float64(whitelist))
}
