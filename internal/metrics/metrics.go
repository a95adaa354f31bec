// Package metrics exposes the Coordinator's Prometheus instrumentation.
// This is an ambient observability concern alongside logging; spec.md's
// Non-goals exclude authentication, encryption, cross-arena
// federation, bracket history, and replay, but not metrics, so the
// referee HTTP server also mounts /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Coordinator bundles the counters and gauges the scoring algorithm
// and liveness model update.
type Coordinator struct {
	HitsAccepted  prometheus.Counter
	HitsDropped   *prometheus.CounterVec
	AwardsApplied prometheus.Counter
	RosterSize    prometheus.Gauge
	MatchPhase    prometheus.Gauge
}

// NewCoordinator registers and returns a fresh set of collectors on
// registry.
func NewCoordinator(registry prometheus.Registerer) *Coordinator {
	c := &Coordinator{
		HitsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lasertag_hits_accepted_total",
			Help: "Hits recorded into the current match's hit_log.",
		}),
		HitsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lasertag_hits_dropped_total",
			Help: "Hits dropped by the scoring algorithm, labeled by reason.",
		}, []string{"reason"}),
		AwardsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lasertag_awards_applied_total",
			Help: "Referee bonus awards applied via POST /award.",
		}),
		RosterSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lasertag_roster_size",
			Help: "Number of teams known to the Coordinator.",
		}),
		MatchPhase: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lasertag_match_phase",
			Help: "Current Match.phase as an integer (Idle=0 Armed=1 Running=2 Ended=3).",
		}),
	}
	registry.MustRegister(c.HitsAccepted, c.HitsDropped, c.AwardsApplied, c.RosterSize, c.MatchPhase)
	return c
}
