// Package metrics exposes Prometheus instrumentation for clients and the
// directory server. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "soroban"

type Metrics struct {
	pollAttempts   prometheus.Counter
	claims         prometheus.Counter
	claimExtras    prometheus.Counter
	pollTimeouts   prometheus.Counter
	removeFailures prometheus.Counter
	rpcCalls       *prometheus.CounterVec
	rpcLatency     *prometheus.HistogramVec
	sessions       *prometheus.CounterVec
	rounds         *prometheus.CounterVec
	serverRequests *prometheus.CounterVec
	entries        prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is convenient in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		pollAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_attempts_total",
			Help:      "Number of directory list calls made while polling",
		}),
		claims: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_total",
			Help:      "Number of entries claimed from the directory",
		}),
		claimExtras: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claim_extra_entries_total",
			Help:      "Number of entries left behind because a name held more than one",
		}),
		pollTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_timeouts_total",
			Help:      "Number of polls that exhausted their budget",
		}),
		removeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remove_failures_total",
			Help:      "Number of best-effort removals that failed",
		}),
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_calls_total",
			Help:      "Number of directory RPC calls",
		}, []string{"method", "outcome"}),
		rpcLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_call_duration_seconds",
			Help:      "Latency of directory RPC calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Number of finished rendezvous sessions",
		}, []string{"role", "outcome"}),
		rounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_total",
			Help:      "Number of completed exchange rounds",
		}, []string{"role"}),
		serverRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "server_requests_total",
			Help:      "Number of JSON-RPC requests served by the directory",
		}, []string{"method", "status"}),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "directory_entries",
			Help:      "Number of live entries held by the directory",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.pollAttempts, m.claims, m.claimExtras, m.pollTimeouts, m.removeFailures,
			m.rpcCalls, m.rpcLatency, m.sessions, m.rounds, m.serverRequests, m.entries,
		)
	}
	return m
}

func (m *Metrics) PollAttempt() {
	if m == nil {
		return
	}
	m.pollAttempts.Inc()
}

// Claimed records a successful claim. extra is the number of entries that
// were listed alongside the claimed one.
func (m *Metrics) Claimed(extra int) {
	if m == nil {
		return
	}
	m.claims.Inc()
	if extra > 0 {
		m.claimExtras.Add(float64(extra))
	}
}

func (m *Metrics) PollTimeout() {
	if m == nil {
		return
	}
	m.pollTimeouts.Inc()
}

func (m *Metrics) RemoveFailed() {
	if m == nil {
		return
	}
	m.removeFailures.Inc()
}

// RPCCall records one client call and its latency.
func (m *Metrics) RPCCall(method string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.rpcCalls.WithLabelValues(method, outcome).Inc()
	m.rpcLatency.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) Session(role string, err error) {
	if m == nil {
		return
	}
	outcome := "done"
	if err != nil {
		outcome = "failed"
	}
	m.sessions.WithLabelValues(role, outcome).Inc()
}

func (m *Metrics) Round(role string) {
	if m == nil {
		return
	}
	m.rounds.WithLabelValues(role).Inc()
}

func (m *Metrics) ServerRequest(method, status string) {
	if m == nil {
		return
	}
	m.serverRequests.WithLabelValues(method, status).Inc()
}

// SetEntries reports the directory's live entry count.
func (m *Metrics) SetEntries(n int) {
	if m == nil {
		return
	}
	m.entries.Set(float64(n))
}
