// Package metrics exposes audit counters to prometheus and summarizes
// stored audits for operators.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/aeo-cli/internal/model"
	"github.com/sells-group/aeo-cli/internal/resilience"
)

const namespace = "aeo"

// Metrics holds the prometheus collectors for the audit service.
type Metrics struct {
	registry *prometheus.Registry

	audits        *prometheus.CounterVec
	auditDuration prometheus.Histogram
	fallbacks     *prometheus.CounterVec
	scrapes       *prometheus.CounterVec
	tokens        *prometheus.CounterVec
	circuitState  *prometheus.GaugeVec
}

// New registers all collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		audits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audits_total",
			Help:      "Audits finished, by terminal status.",
		}, []string{"status"}),
		auditDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "audit_duration_seconds",
			Help:      "Wall time of an audit from scrape to persisted report.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
		fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_fallbacks_total",
			Help:      "Report fields filled with synthesized values, by field path.",
		}, []string{"path"}),
		scrapes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrapes_total",
			Help:      "Pages scraped, by the scraper that produced them.",
		}, []string{"source"}),
		tokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_tokens_total",
			Help:      "Model tokens consumed, by direction.",
		}, []string{"direction"}),
		circuitState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_state",
			Help:      "Circuit breaker state per upstream (0 closed, 1 open, 2 half-open).",
		}, []string{"service"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveAudit records one finished audit. A nil report is allowed for
// failed audits.
func (m *Metrics) ObserveAudit(status model.AuditStatus, elapsed time.Duration, report *model.Report) {
	if m == nil {
		return
	}
	m.audits.WithLabelValues(string(status)).Inc()
	m.auditDuration.Observe(elapsed.Seconds())
	m.ObserveReport(report)
}

// ObserveReport counts each synthesized field path in the report.
func (m *Metrics) ObserveReport(report *model.Report) {
	if m == nil || report == nil {
		return
	}
	for _, path := range report.Fallbacks {
		m.fallbacks.WithLabelValues(path).Inc()
	}
}

// ObserveScrape counts a page produced by source.
func (m *Metrics) ObserveScrape(source string) {
	if m == nil {
		return
	}
	m.scrapes.WithLabelValues(source).Inc()
}

// ObserveTokens adds model token usage.
func (m *Metrics) ObserveTokens(input, output int64) {
	if m == nil {
		return
	}
	m.tokens.WithLabelValues("input").Add(float64(input))
	m.tokens.WithLabelValues("output").Add(float64(output))
}

// CircuitStateChanged matches the resilience.ServiceBreakers callback.
func (m *Metrics) CircuitStateChanged(service string, _, to resilience.CircuitState) {
	if m == nil {
		return
	}
	m.circuitState.WithLabelValues(service).Set(float64(to))
}
