// Package metrics exposes pipeline counters and histograms to Prometheus.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sweep names.
const (
	SweepProcess  = "process"
	SweepFinalize = "finalize"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
	OutcomeRetry   = "retry"
)

type Metrics struct {
	registry *prometheus.Registry

	documentsStored *prometheus.CounterVec
	sweepDocuments  *prometheus.CounterVec
	llmRequests     *prometheus.CounterVec
	ocrPageSeconds  prometheus.Histogram
}

// New registers the pipeline collectors on a fresh registry, together with
// the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		documentsStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_documents_stored_total",
			Help: "Documents received by the content store.",
		}, []string{"duplicate"}),
		sweepDocuments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_sweep_documents_total",
			Help: "Documents handled by batch sweeps.",
		}, []string{"sweep", "outcome"}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_llm_requests_total",
			Help: "LLM chat completion attempts.",
		}, []string{"outcome"}),
		ocrPageSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ingest_ocr_page_seconds",
			Help:    "Time spent recognizing one page.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
		}),
	}
	reg.MustRegister(
		m.documentsStored,
		m.sweepDocuments,
		m.llmRequests,
		m.ocrPageSeconds,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) DocumentStored(duplicate bool) {
	if m == nil {
		return
	}
	m.documentsStored.WithLabelValues(strconv.FormatBool(duplicate)).Inc()
}

func (m *Metrics) SweepDocument(sweep, outcome string) {
	if m == nil {
		return
	}
	m.sweepDocuments.WithLabelValues(sweep, outcome).Inc()
}

func (m *Metrics) LLMRequest(outcome string) {
	if m == nil {
		return
	}
	m.llmRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) OCRPage(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ocrPageSeconds.Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
