package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeSuccess  = "success"
	outcomeError    = "error"
	outcomeCacheHit = "cache_hit"
)

// Metrics holds the Prometheus collectors of the weather backend.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	FetchTotal     *prometheus.CounterVec
	FetchDuration  prometheus.Histogram
	ViewEvents     *prometheus.CounterVec
	ActiveSessions prometheus.Gauge
	LookupsSaved   *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FetchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weather_fetch_total",
				Help: "Weather lookups by outcome.",
			},
			[]string{"outcome"},
		),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "weather_fetch_duration_seconds",
			Help:    "Latency of upstream weather requests.",
			Buckets: prometheus.DefBuckets,
		}),
		ViewEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weather_view_events_total",
				Help: "View state transitions by event.",
			},
			[]string{"event"},
		),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "weather_active_sessions",
			Help: "Open view sessions.",
		}),
		LookupsSaved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weather_lookups_saved_total",
				Help: "Lookup log writes by outcome.",
			},
			[]string{"outcome"},
		),
	}
	reg.MustRegister(m.FetchTotal, m.FetchDuration, m.ViewEvents, m.ActiveSessions, m.LookupsSaved)
	return m
}

func (m *Metrics) observeFetch(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchTotal.WithLabelValues(outcome).Inc()
	if outcome != outcomeCacheHit {
		m.FetchDuration.Observe(d.Seconds())
	}
}

// ObserveEvent counts one applied view event
func (m *Metrics) ObserveEvent(name string) {
	if m == nil {
		return
	}
	m.ViewEvents.WithLabelValues(name).Inc()
}

// SessionOpened and SessionClosed track the active session gauge
func (m *Metrics) SessionOpened() {
	if m != nil {
		m.ActiveSessions.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.ActiveSessions.Dec()
	}
}

func (m *Metrics) observeLookupSave(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.LookupsSaved.WithLabelValues(outcomeError).Inc()
		return
	}
	m.LookupsSaved.WithLabelValues(outcomeSuccess).Inc()
}
