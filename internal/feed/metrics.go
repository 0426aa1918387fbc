package feed

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/osadchyi/cansat-ground/internal/session"
	"github.com/osadchyi/cansat-ground/internal/telemetry"
)

// Metrics exposes station counters and session gauges on /metrics.
// It implements session.Observer for the counters; the gauges read the
// session directly at scrape time.
type Metrics struct {
	registry *prometheus.Registry

	samplesTotal  prometheus.Counter
	loggedTotal   prometheus.Counter
	connectsTotal prometheus.Counter

	lastState atomic.Int32
}

var _ session.Observer = (*Metrics)(nil)

func NewMetrics(s *session.Session) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	factory := promauto.With(registry)
	m := Metrics{
		registry: registry,
		samplesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "cansat_samples_received_total",
			Help: "Samples accepted into the session.",
		}),
		loggedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "cansat_samples_logged_total",
			Help: "Samples appended to the session log.",
		}),
		connectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "cansat_connects_total",
			Help: "Transport connections established.",
		}),
	}

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "cansat_session_state",
		Help: "Session connection state (0 disconnected, 1 connecting, 2 connected).",
	}, func() float64 {
		return float64(s.State())
	})
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "cansat_logging_active",
		Help: "Whether samples are being appended to the log.",
	}, func() float64 {
		if s.LoggingActive() {
			return 1
		}
		return 0
	})
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "cansat_log_samples",
		Help: "Samples currently held in the session log.",
	}, func() float64 {
		return float64(s.LogLen())
	})
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "cansat_transport_received",
		Help: "Samples delivered by the active transport.",
	}, func() float64 {
		return float64(s.Stats().Received)
	})
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "cansat_transport_dropped",
		Help: "Frames dropped by the active transport.",
	}, func() float64 {
		return float64(s.Stats().Dropped)
	})

	return &m
}

// Handler serves the scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) OnSample(_ telemetry.Sample, logged bool) {
	m.samplesTotal.Inc()
	if logged {
		m.loggedTotal.Inc()
	}
}

// OnStatus counts transitions into Connected, one per established
// connection regardless of how many status events follow.
func (m *Metrics) OnStatus(status session.Status) {
	previous := session.State(m.lastState.Swap(int32(status.State)))
	if status.State == session.StateConnected && previous != session.StateConnected {
		m.connectsTotal.Inc()
	}
}
