// Package metrics tracks remediation outcomes with Prometheus counters.
// The CLI does not serve a scrape endpoint; counters exist so long-running
// callers embedding the engine can export them, and so tests can assert on
// outcomes directly.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all remediation metrics.
type Registry struct {
	// QuarantinesTotal counts finished remediations by terminal outcome
	// (done, config_error, connect_error, block_failed, unblock_failed).
	QuarantinesTotal *prometheus.CounterVec

	// CommandsTotal counts device commands by verdict (ok, rejected).
	CommandsTotal *prometheus.CounterVec

	// HoldSeconds observes the effective hold interval of completed
	// quarantines.
	HoldSeconds prometheus.Histogram

	prom *prometheus.Registry
}

// Get returns the global metrics registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = New()
	})
	return registry
}

// New creates an isolated registry. Tests use this to avoid cross-test
// counter bleed.
func New() *Registry {
	prom := prometheus.NewRegistry()
	factory := promauto.With(prom)

	return &Registry{
		QuarantinesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "icebox_quarantines_total",
			Help: "Finished remediation runs by instance and terminal outcome",
		}, []string{"instance", "outcome"}),

		CommandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "icebox_commands_total",
			Help: "Device commands issued by command name and verdict",
		}, []string{"command", "result"}),

		HoldSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "icebox_hold_seconds",
			Help:    "Effective quarantine hold duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),

		prom: prom,
	}
}

// Gatherer exposes the underlying registry for embedding callers.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.prom
}
