// Package metrics exposes render pipeline counters and histograms in
// Prometheus format. A nil *Recorder is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeTimeout = "timeout"
)

// Recorder holds the service metrics.
type Recorder struct {
	reg            *prom.Registry
	requests       *prom.CounterVec
	renderAttempts *prom.CounterVec
	renderDuration *prom.HistogramVec
	pdfBytes       prom.Histogram
	cacheLookups   *prom.CounterVec
}

// NewRecorder registers the service metrics plus the Go and process
// collectors on reg, or on a fresh registry when reg is nil.
func NewRecorder(reg *prom.Registry) *Recorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	r := &Recorder{
		reg: reg,
		requests: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "resumepdf",
			Name:      "generate_requests_total",
			Help:      "PDF generation requests by response status class",
		}, []string{"status"}),
		renderAttempts: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "resumepdf",
			Name:      "render_attempts_total",
			Help:      "Render attempts by tier and outcome",
		}, []string{"tier", "outcome"}),
		renderDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "resumepdf",
			Name:      "render_duration_seconds",
			Help:      "Duration of individual render attempts",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		}, []string{"tier"}),
		pdfBytes: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "resumepdf",
			Name:      "pdf_size_bytes",
			Help:      "Size of generated PDFs",
			Buckets:   prom.ExponentialBuckets(16*1024, 2, 10),
		}),
		cacheLookups: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "resumepdf",
			Name:      "pdf_cache_lookups_total",
			Help:      "PDF cache lookups by result",
		}, []string{"result"}),
	}
	reg.MustRegister(r.requests, r.renderAttempts, r.renderDuration, r.pdfBytes, r.cacheLookups)
	reg.MustRegister(promcollect.NewGoCollector(), promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}))
	return r
}

// Registry returns the registry the recorder writes to.
func (r *Recorder) Registry() *prom.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (r *Recorder) IncRequest(status int) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(statusClass(status)).Inc()
}

func (r *Recorder) ObserveRenderAttempt(tier, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.renderAttempts.WithLabelValues(tier, outcome).Inc()
	r.renderDuration.WithLabelValues(tier).Observe(d.Seconds())
}

func (r *Recorder) ObservePDFSize(n int) {
	if r == nil {
		return
	}
	r.pdfBytes.Observe(float64(n))
}

func (r *Recorder) IncCacheLookup(hit bool) {
	if r == nil {
		return
	}
	res := "miss"
	if hit {
		res = "hit"
	}
	r.cacheLookups.WithLabelValues(res).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
