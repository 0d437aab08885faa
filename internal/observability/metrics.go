package observability

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MetricsRegistry holds counters, gauges and histograms and renders them in
// the Prometheus text exposition format.
type MetricsRegistry struct {
	mu       sync.RWMutex
	counters map[string]*Counter
	gauges   map[string]*Gauge
	histos   map[string]*Histogram
}

// Counter is a monotonically increasing metric.
type Counter struct {
	name  string
	help  string
	mu    sync.Mutex
	value float64
}

// Gauge is a metric that can go up or down.
type Gauge struct {
	name  string
	help  string
	mu    sync.Mutex
	value float64
}

// Histogram tracks distribution of values.
type Histogram struct {
	name    string
	help    string
	buckets []float64
	mu      sync.Mutex
	counts  []uint64
	sum     float64
	count   uint64
}

// NewMetricsRegistry creates a new metrics registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		counters: make(map[string]*Counter),
		gauges:   make(map[string]*Gauge),
		histos:   make(map[string]*Histogram),
	}
}

// NewCounter creates and registers a counter.
func (r *MetricsRegistry) NewCounter(name, help string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := &Counter{name: name, help: help}
	r.counters[name] = c
	return c
}

// NewGauge creates and registers a gauge.
func (r *MetricsRegistry) NewGauge(name, help string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := &Gauge{name: name, help: help}
	r.gauges[name] = g
	return g
}

// NewHistogram creates and registers a histogram. Nil buckets means
// LatencyBuckets.
func (r *MetricsRegistry) NewHistogram(name, help string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	if buckets == nil {
		buckets = LatencyBuckets()
	}
	h := &Histogram{name: name, help: help, buckets: buckets, counts: make([]uint64, len(buckets))}
	r.histos[name] = h
	return h
}

// LatencyBuckets covers model calls, which take from a fraction of a second
// to several minutes.
func LatencyBuckets() []float64 {
	return []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}
}

func (c *Counter) Inc() { c.Add(1) }

func (c *Counter) Add(v float64) {
	c.mu.Lock()
	c.value += v
	c.mu.Unlock()
}

func (c *Counter) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

func (g *Gauge) Set(v float64) {
	g.mu.Lock()
	g.value = v
	g.mu.Unlock()
}

func (g *Gauge) Inc() { g.Add(1) }
func (g *Gauge) Dec() { g.Add(-1) }

func (g *Gauge) Add(v float64) {
	g.mu.Lock()
	g.value += v
	g.mu.Unlock()
}

func (g *Gauge) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

// Observe records a value in the histogram.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.count++
	for i, bound := range h.buckets {
		if v <= bound {
			h.counts[i]++
		}
	}
}

// Count returns the number of observations.
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Handler returns an HTTP handler for Prometheus scraping.
func (r *MetricsRegistry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		r.WritePrometheus(w)
	})
}

// WritePrometheus writes every metric, sorted by name.
func (r *MetricsRegistry) WritePrometheus(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range sortedKeys(r.counters) {
		c := r.counters[name]
		writeMetric(w, c.name, "counter", c.help, c.Value())
	}
	for _, name := range sortedKeys(r.gauges) {
		g := r.gauges[name]
		writeMetric(w, g.name, "gauge", g.help, g.Value())
	}
	for _, name := range sortedKeys(r.histos) {
		writeHistogram(w, r.histos[name])
	}
}

func writeMetric(w io.Writer, name, metricType, help string, value float64) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %s\n", name, help, name, metricType, name, formatFloat(value))
}

func writeHistogram(w io.Writer, h *Histogram) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name)
	for i, bound := range h.buckets {
		fmt.Fprintf(w, "%s_bucket{le=\"%s\"} %d\n", h.name, formatFloat(bound), h.counts[i])
	}
	fmt.Fprintf(w, "%s_bucket{le=\"+Inf\"} %d\n", h.name, h.count)
	fmt.Fprintf(w, "%s_sum %s\n%s_count %d\n", h.name, formatFloat(h.sum), h.name, h.count)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SiftMetrics contains the process-wide answering metrics.
type SiftMetrics struct {
	Registry *MetricsRegistry

	LLMRequestsTotal   *Counter
	LLMRequestDuration *Histogram
	LLMTokensTotal     *Counter
	LLMErrorsTotal     *Counter

	AnswersTotal        *Counter
	AnswersFoundTotal   *Counter
	AnswerErrorsTotal   *Counter
	BudgetExceededTotal *Counter
	AnswerDuration      *Histogram

	ActiveRuns *Gauge
}

// NewSiftMetrics creates the answering metrics on a fresh registry.
func NewSiftMetrics() *SiftMetrics {
	r := NewMetricsRegistry()
	return &SiftMetrics{
		Registry: r,

		LLMRequestsTotal:   r.NewCounter("sift_llm_requests_total", "Total completion calls"),
		LLMRequestDuration: r.NewHistogram("sift_llm_request_duration_seconds", "Completion call duration", nil),
		LLMTokensTotal:     r.NewCounter("sift_llm_tokens_total", "Estimated prompt and response tokens"),
		LLMErrorsTotal:     r.NewCounter("sift_llm_errors_total", "Failed completion calls"),

		AnswersTotal:        r.NewCounter("sift_answers_total", "Questions answered"),
		AnswersFoundTotal:   r.NewCounter("sift_answers_found_total", "Questions the corpus answered"),
		AnswerErrorsTotal:   r.NewCounter("sift_answer_errors_total", "Questions that failed"),
		BudgetExceededTotal: r.NewCounter("sift_budget_exceeded_total", "Map-reduce runs rejected by the findings cap"),
		AnswerDuration:      r.NewHistogram("sift_answer_duration_seconds", "End-to-end answer duration", nil),

		ActiveRuns: r.NewGauge("sift_active_runs", "Questions currently being answered"),
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *SiftMetrics) Handler() http.Handler {
	return m.Registry.Handler()
}

// RecordLLMRequest records one completion call.
func (m *SiftMetrics) RecordLLMRequest(duration time.Duration, tokens int, err error) {
	m.LLMRequestsTotal.Inc()
	m.LLMRequestDuration.Observe(duration.Seconds())
	m.LLMTokensTotal.Add(float64(tokens))
	if err != nil {
		m.LLMErrorsTotal.Inc()
	}
}

// RecordAnswer records one finished question. budget marks a findings-cap
// rejection.
func (m *SiftMetrics) RecordAnswer(duration time.Duration, found, budget bool, err error) {
	m.AnswersTotal.Inc()
	m.AnswerDuration.Observe(duration.Seconds())
	switch {
	case budget:
		m.BudgetExceededTotal.Inc()
		m.AnswerErrorsTotal.Inc()
	case err != nil:
		m.AnswerErrorsTotal.Inc()
	case found:
		m.AnswersFoundTotal.Inc()
	}
}

var (
	globalMetrics *SiftMetrics
	metricsOnce   sync.Once
)

// Metrics returns the process-wide metrics instance.
func Metrics() *SiftMetrics {
	metricsOnce.Do(func() {
		globalMetrics = NewSiftMetrics()
	})
	return globalMetrics
}

// MetricNames lists the registered metric names, sorted.
func (m *SiftMetrics) MetricNames() []string {
	r := m.Registry
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := append(sortedKeys(r.counters), sortedKeys(r.gauges)...)
	names = append(names, sortedKeys(r.histos)...)
	sort.Strings(names)
	return names
}

