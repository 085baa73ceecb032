// Package metrics exposes Prometheus instruments for the proxy engine.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ProxyMetrics counts outbound calls, replies, failures and reward bonds.
// All methods are safe on a nil receiver.
type ProxyMetrics struct {
	dispatched *prometheus.CounterVec
	replies    *prometheus.CounterVec
	failures   *prometheus.CounterVec
	bonds      *prometheus.CounterVec
	pending    prometheus.Gauge
}

var (
	proxyOnce     sync.Once
	proxyRegistry *ProxyMetrics
)

// Proxy returns the process-wide metrics, registering them with the default
// Prometheus registry on first use.
func Proxy() *ProxyMetrics {
	proxyOnce.Do(func() {
		proxyRegistry = &ProxyMetrics{
			dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "poolproxy_dispatched_total",
				Help: "Outbound calls returned for dispatch by call type.",
			}, []string{"call"}),
			replies: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "poolproxy_replies_total",
				Help: "Replies processed by outcome.",
			}, []string{"outcome"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "poolproxy_failures_total",
				Help: "Failed invocations by error code.",
			}, []string{"code"}),
			bonds: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "poolproxy_reward_bonds_total",
				Help: "Reward bonds appended by deposit path.",
			}, []string{"path"}),
			pending: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "poolproxy_pending_continuations",
				Help: "Continuations waiting for a reply.",
			}),
		}
		prometheus.MustRegister(
			proxyRegistry.dispatched,
			proxyRegistry.replies,
			proxyRegistry.failures,
			proxyRegistry.bonds,
			proxyRegistry.pending,
		)
	})
	return proxyRegistry
}

// ObserveDispatch counts an outbound call handed to the dispatcher.
func (m *ProxyMetrics) ObserveDispatch(call string) {
	if m == nil {
		return
	}
	if call == "" {
		call = "unknown"
	}
	m.dispatched.WithLabelValues(call).Inc()
}

// ObserveReply counts a processed reply by its outcome (ok or error).
func (m *ProxyMetrics) ObserveReply(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.replies.WithLabelValues(outcome).Inc()
}

// ObserveFailure counts a failed invocation. Errors without a code are
// counted as internal.
func (m *ProxyMetrics) ObserveFailure(code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "internal"
	}
	m.failures.WithLabelValues(code).Inc()
}

// ObserveBond counts a reward bond appended on the pair or native path.
func (m *ProxyMetrics) ObserveBond(paired bool) {
	if m == nil {
		return
	}
	path := "native"
	if paired {
		path = "pair"
	}
	m.bonds.WithLabelValues(path).Inc()
}

// SetPending records the number of continuations waiting for a reply.
func (m *ProxyMetrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}
