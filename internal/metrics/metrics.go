// Package metrics exposes Prometheus counters and histograms for the
// ingestion, finalization and distribution paths.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives events from the service layers.
type Recorder interface {
	ObservePhase(phase string, ok bool, d time.Duration)
	ObserveFinalize(outcome string)
	ObserveDistribution(endpoint string, found bool)
	ObserveSweep(removed int)
}

// Prometheus records into a dedicated registry so that tests can build
// as many recorders as they like.
type Prometheus struct {
	registry     *prometheus.Registry
	phaseTotal   *prometheus.CounterVec
	phaseSeconds *prometheus.HistogramVec
	finalize     *prometheus.CounterVec
	distribution *prometheus.CounterVec
	swept        prometheus.Counter
}

// NewPrometheus creates a recorder with its own registry.
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		phaseTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "publisher",
			Name:      "upload_phase_total",
			Help:      "Upload phases run, by phase and result.",
		}, []string{"phase", "result"}),
		phaseSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "publisher",
			Name:      "upload_phase_duration_seconds",
			Help:      "Time spent in each upload phase.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase"}),
		finalize: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "publisher",
			Name:      "finalize_total",
			Help:      "Finalize attempts, by outcome code.",
		}, []string{"outcome"}),
		distribution: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "publisher",
			Name:      "distribution_requests_total",
			Help:      "Public distribution requests, by endpoint and whether a release was found.",
		}, []string{"endpoint", "found"}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "publisher",
			Name:      "upload_sessions_swept_total",
			Help:      "Upload workspaces removed by the sweeper.",
		}),
	}
	p.registry.MustRegister(p.phaseTotal, p.phaseSeconds, p.finalize, p.distribution, p.swept)
	return p
}

func (p *Prometheus) ObservePhase(phase string, ok bool, d time.Duration) {
	p.phaseTotal.WithLabelValues(phase, result(ok)).Inc()
	p.phaseSeconds.WithLabelValues(phase).Observe(d.Seconds())
}

func (p *Prometheus) ObserveFinalize(outcome string) {
	p.finalize.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) ObserveDistribution(endpoint string, found bool) {
	f := "false"
	if found {
		f = "true"
	}
	p.distribution.WithLabelValues(endpoint, f).Inc()
}

func (p *Prometheus) ObserveSweep(removed int) {
	p.swept.Add(float64(removed))
}

// Registry exposes the underlying registry, mostly for tests.
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

// Handler serves the registry in the Prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// Nop discards everything.
type Nop struct{}

func (Nop) ObservePhase(string, bool, time.Duration) {}
func (Nop) ObserveFinalize(string)                   {}
func (Nop) ObserveDistribution(string, bool)         {}
func (Nop) ObserveSweep(int)                         {}
