package telemetry

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exports sweep progress to Prometheus. It implements Reporter.
type Metrics struct {
	gatherer prometheus.Gatherer

	Points         prometheus.Counter
	Faults         *prometheus.CounterVec
	Sweeps         *prometheus.CounterVec
	MoveDuration   prometheus.Histogram
	SampleDuration prometheus.Histogram
	PowerMean      prometheus.Gauge
	Progress       prometheus.Gauge
}

// NewMetrics registers the collectors against reg, defaulting to the global
// registry when nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	m := &Metrics{gatherer: gatherer}
	var err error
	if m.Points, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "noisemap_points_total",
		Help: "Grid points measured successfully.",
	})); err != nil {
		return nil, err
	}
	if m.Faults, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "noisemap_faults_total",
		Help: "Failed attempts, labeled by fault source.",
	}, []string{"fault"})); err != nil {
		return nil, err
	}
	if m.Sweeps, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "noisemap_sweeps_total",
		Help: "Finished sweeps, labeled by final state.",
	}, []string{"state"})); err != nil {
		return nil, err
	}
	if m.MoveDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "noisemap_rotator_move_seconds",
		Help:    "Time until the rotator readback converged.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	})); err != nil {
		return nil, err
	}
	if m.SampleDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "noisemap_sample_seconds",
		Help:    "Time to obtain a fresh PSD sample, including warm-up.",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 15},
	})); err != nil {
		return nil, err
	}
	if m.PowerMean, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "noisemap_power_mean_db",
		Help: "Mean PSD level of the most recent point.",
	})); err != nil {
		return nil, err
	}
	if m.Progress, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "noisemap_sweep_progress_ratio",
		Help: "Completed fraction of the running sweep.",
	})); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg, reusing an identical collector that is already registered.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, fmt.Errorf("register metric: %w", err)
	}
	return c, nil
}

func (m *Metrics) Report(e Event) {
	if m == nil {
		return
	}
	switch e.Kind {
	case EventPoint:
		m.Points.Inc()
		m.PowerMean.Set(e.PowerMean)
		if e.MoveSeconds > 0 {
			m.MoveDuration.Observe(e.MoveSeconds)
		}
		if e.SampleSeconds > 0 {
			m.SampleDuration.Observe(e.SampleSeconds)
		}
		if e.Total > 0 {
			m.Progress.Set(float64(e.Index+1) / float64(e.Total))
		}
	case EventTrack:
		if e.MoveSeconds > 0 {
			m.MoveDuration.Observe(e.MoveSeconds)
		}
	case EventFault:
		m.Faults.WithLabelValues(e.Fault).Inc()
	case EventState:
		switch e.State {
		case "completed", "aborted":
			m.Sweeps.WithLabelValues(e.State).Inc()
		case "measuring":
			m.Progress.Set(0)
		}
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
