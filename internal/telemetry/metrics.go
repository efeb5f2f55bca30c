package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the Prometheus surface for the VS controller process. It wraps
// a dedicated registry (never the global default) the same way the
// teacher's Prometheus provider does, so multiple Metrics instances never
// collide in tests.
type Metrics struct {
	reg *prometheus.Registry

	ControllerState    *prometheus.GaugeVec
	CommandDepth       prometheus.Gauge
	Ticks              prometheus.Counter
	BackseatLatency    *prometheus.HistogramVec
	BackseatFailures   *prometheus.CounterVec
	NavigationFrames   prometheus.Counter
	NavigationHeartbeats prometheus.Counter

	handler http.Handler
}

// NewMetrics constructs and registers the full VS metrics surface.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		reg: reg,
		ControllerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "vslope",
			Subsystem: "controller",
			Name:      "state",
			Help:      "1 for the currently active safety state, 0 otherwise, labeled by state name.",
		}, []string{"state"}),
		CommandDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vslope",
			Subsystem: "controller",
			Name:      "command_depth_meters",
			Help:      "Last depth setpoint emitted by the controller.",
		}),
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vslope",
			Subsystem: "controller",
			Name:      "ticks_total",
			Help:      "Number of controller update() calls processed.",
		}),
		BackseatLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vslope",
			Subsystem: "backseat",
			Name:      "request_duration_seconds",
			Help:      "Backseat HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		BackseatFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vslope",
			Subsystem: "backseat",
			Name:      "failures_total",
			Help:      "Backseat requests that failed or were rejected.",
		}, []string{"operation", "reason"}),
		NavigationFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vslope",
			Subsystem: "navigation",
			Name:      "frames_total",
			Help:      "NAVIGATION telegrams published to the snapshot store.",
		}),
		NavigationHeartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vslope",
			Subsystem: "navigation",
			Name:      "heartbeats_sent_total",
			Help:      "Heartbeat messages sent to the DesBridge peer.",
		}),
	}

	reg.MustRegister(
		m.ControllerState,
		m.CommandDepth,
		m.Ticks,
		m.BackseatLatency,
		m.BackseatFailures,
		m.NavigationFrames,
		m.NavigationHeartbeats,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return m
}

// Handler returns the HTTP handler serving this Metrics instance's registry.
func (m *Metrics) Handler() http.Handler { return m.handler }

// SetState zeroes every known state gauge and sets the active one to 1,
// keeping the metric exhaustive for dashboards/alerting without requiring a
// separate "current state" info series.
func (m *Metrics) SetState(states []string, active string) {
	for _, s := range states {
		if s == active {
			m.ControllerState.WithLabelValues(s).Set(1)
		} else {
			m.ControllerState.WithLabelValues(s).Set(0)
		}
	}
}
