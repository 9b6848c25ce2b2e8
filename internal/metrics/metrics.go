// Package metrics exposes calibration statistics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Calibration holds the calibration collectors.
// A nil *Calibration is valid and records nothing.
type Calibration struct {
	reg *prometheus.Registry

	sessionsStarted  prometheus.Counter
	sessionsFinished *prometheus.CounterVec
	deviceTests      *prometheus.CounterVec
	testDuration     prometheus.Histogram
	muteHolders      prometheus.Gauge
}

// New creates collectors on a fresh registry
func New() *Calibration {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())

	return &Calibration{
		reg: reg,

		sessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "miccal_sessions_started_total",
			Help: "Calibration sessions that acquired the mute flag",
		}),
		sessionsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "miccal_sessions_finished_total",
			Help: "Calibration sessions that reached a terminal state",
		}, []string{"state", "reason"}),
		deviceTests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "miccal_device_tests_total",
			Help: "Device tests by outcome",
		}, []string{"outcome"}),
		testDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "miccal_device_test_duration_seconds",
			Help:    "Wall time of a single device test",
			Buckets: []float64{0.25, 0.5, 1, 2, 3, 4, 5, 7.5, 10},
		}),
		muteHolders: f.NewGauge(prometheus.GaugeOpts{
			Name: "miccal_mute_holders",
			Help: "Current holders of the speech suspended flag",
		}),
	}
}

// SessionStarted counts a started session
func (c *Calibration) SessionStarted() {
	if c == nil {
		return
	}
	c.sessionsStarted.Inc()
}

// SessionFinished counts a session reaching state with reason
func (c *Calibration) SessionFinished(state, reason string) {
	if c == nil {
		return
	}
	c.sessionsFinished.With(prometheus.Labels{"state": state, "reason": reason}).Inc()
}

// DeviceTested records one device test. outcome is "ok" or a failure reason.
func (c *Calibration) DeviceTested(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.deviceTests.With(prometheus.Labels{"outcome": outcome}).Inc()
	c.testDuration.Observe(d.Seconds())
}

// MuteHolders sets the holder gauge
func (c *Calibration) MuteHolders(n int) {
	if c == nil {
		return
	}
	c.muteHolders.Set(float64(n))
}

// Registry returns the underlying registry
func (c *Calibration) Registry() *prometheus.Registry {
	return c.reg
}

// Handler serves the registry in the Prometheus exposition format
func (c *Calibration) Handler() http.Handler {
	return promhttp.InstrumentMetricHandler(
		c.reg, promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}),
	)
}
