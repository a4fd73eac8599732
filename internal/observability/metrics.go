// Package observability bundles the engine's Prometheus metrics.
package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EngineCollector holds the engine metrics. A nil collector is valid and
// records nothing, so callers never branch on whether metrics are enabled.
type EngineCollector struct {
	gatherer prometheus.Gatherer

	Events  *prometheus.CounterVec
	Rejects *prometheus.CounterVec

	FlagsActive   prometheus.Gauge
	PlayersOnline prometheus.Gauge

	SweepDuration prometheus.Histogram
}

// NewEngineCollector registers the engine metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewEngineCollector(reg prometheus.Registerer) (*EngineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wardstone_events_total",
		Help: "Accepted mutations broadcast on the event bus, labeled by event type.",
	}, []string{"type"})
	events, err := registerCounterVec(reg, events, "wardstone_events_total")
	if err != nil {
		return nil, err
	}

	rejects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wardstone_rejects_total",
		Help: "Rejected requests, labeled by rule code.",
	}, []string{"reason"})
	rejects, err = registerCounterVec(reg, rejects, "wardstone_rejects_total")
	if err != nil {
		return nil, err
	}

	flagsActive, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wardstone_flags_active",
		Help: "Flags currently active (not abandoned).",
	}), "wardstone_flags_active")
	if err != nil {
		return nil, err
	}

	playersOnline, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wardstone_players_online",
		Help: "Players currently in the live directory table.",
	}), "wardstone_players_online")
	if err != nil {
		return nil, err
	}

	sweepDuration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wardstone_sweep_duration_seconds",
		Help:    "Abandonment sweep duration in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}), "wardstone_sweep_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &EngineCollector{
		gatherer:      gatherer,
		Events:        events,
		Rejects:       rejects,
		FlagsActive:   flagsActive,
		PlayersOnline: playersOnline,
		SweepDuration: sweepDuration,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *EngineCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// RecordEvent counts one broadcast event of the given type.
func (c *EngineCollector) RecordEvent(eventType string) {
	if c == nil || c.Events == nil {
		return
	}
	c.Events.WithLabelValues(eventType).Inc()
}

// RecordReject counts one rejected request by rule code.
func (c *EngineCollector) RecordReject(reason string) {
	if c == nil || c.Rejects == nil {
		return
	}
	c.Rejects.WithLabelValues(reason).Inc()
}

// SetFlagsActive updates the active-flag gauge.
func (c *EngineCollector) SetFlagsActive(n int) {
	if c == nil || c.FlagsActive == nil {
		return
	}
	c.FlagsActive.Set(float64(n))
}

// SetPlayersOnline updates the online-player gauge.
func (c *EngineCollector) SetPlayersOnline(n int) {
	if c == nil || c.PlayersOnline == nil {
		return
	}
	c.PlayersOnline.Set(float64(n))
}

// ObserveSweep records one abandonment sweep duration.
func (c *EngineCollector) ObserveSweep(d time.Duration) {
	if c == nil || c.SweepDuration == nil {
		return
	}
	c.SweepDuration.Observe(d.Seconds())
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}
