// Package metrics holds the Prometheus collectors for ensure runs and MCP tool calls.
package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level collectors. They are registered via Register.
var (
	regOK atomic.Bool

	ensureRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "browseros",
			Subsystem: "ensure",
			Name:      "runs_total",
			Help:      "Number of ensure runs by outcome.",
		}, []string{"outcome"},
	)
	ensureDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "browseros",
			Subsystem: "ensure",
			Name:      "duration_seconds",
			Help:      "Time from the first probe (or launch, when launching) to the outcome.",
			Buckets:   []float64{0.05, 0.25, 1, 2, 5, 10, 20, 30, 45},
		}, []string{"outcome"},
	)
	toolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "browseros",
			Subsystem: "mcp",
			Name:      "tool_calls_total",
			Help:      "Number of MCP tool invocations by tool and result.",
		}, []string{"tool", "result"},
	)
)

// Register registers all metrics with the provided registerer.
// Calls after a successful one are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	for _, c := range []prometheus.Collector{ensureRuns, ensureDuration, toolCalls} {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves the default gatherer.
func Handler() http.Handler { return promhttp.Handler() }

// The helpers below no-op until Register has succeeded.

func ObserveEnsure(outcome string, seconds float64) {
	if regOK.Load() {
		ensureRuns.WithLabelValues(outcome).Inc()
		ensureDuration.WithLabelValues(outcome).Observe(seconds)
	}
}

func IncToolCall(tool string, ok bool) {
	if !regOK.Load() {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	toolCalls.WithLabelValues(tool, result).Inc()
}
