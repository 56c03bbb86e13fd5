package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Clone pipeline metrics
	ClonesTotal   *prometheus.CounterVec
	CloneDuration prometheus.Histogram
	StageDuration *prometheus.HistogramVec

	// Admission gate metrics
	GateInFlight   *prometheus.GaugeVec
	GateWaiting    *prometheus.GaugeVec
	GateRejections *prometheus.CounterVec

	// Circuit breaker metrics
	BreakerTransitions *prometheus.CounterVec

	// Render metrics
	RenderBytes       prometheus.Histogram
	RenderTruncations prometheus.Counter
	RenderRetries     prometheus.Counter
	Screenshots       *prometheus.CounterVec

	// Prompt / provider metrics
	PromptTokens      *prometheus.HistogramVec
	PromptReductions  *prometheus.CounterVec
	ProviderCalls     *prometheus.CounterVec
	ProviderRetries   *prometheus.CounterVec
	ExtractedBlocks   prometheus.Histogram
	SanitizerRemovals *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
	stop      chan struct{}
}

// All Record/Set/Inc methods are no-ops on a nil *Metrics so components
// can run without a collector.

// NewMetrics creates a metrics collector on the default registry.
// Call it once per process; use NewMetricsWith in tests.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates a metrics collector registered on reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),
		stop:      make(chan struct{}),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webclone_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webclone_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.005, .01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60, 120, 180},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webclone_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webclone_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		// Clone pipeline metrics
		ClonesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webclone_clones_total",
				Help: "Clone results by outcome kind (ok or error kind)",
			},
			[]string{"provider", "result"},
		),
		CloneDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "webclone_clone_duration_seconds",
				Help:    "End-to-end clone duration in seconds",
				Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 90, 120, 180},
			},
		),
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webclone_stage_duration_seconds",
				Help:    "Duration of each clone pipeline stage in seconds",
				Buckets: []float64{.001, .01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		),

		// Admission gate metrics
		GateInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "webclone_gate_in_flight",
				Help: "Calls currently holding a gate slot",
			},
			[]string{"gate"},
		),
		GateWaiting: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "webclone_gate_waiting",
				Help: "Calls queued for a gate slot",
			},
			[]string{"gate"},
		),
		GateRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webclone_gate_rejections_total",
				Help: "Calls rejected because the gate queue was full",
			},
			[]string{"gate"},
		),

		// Circuit breaker metrics
		BreakerTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webclone_breaker_transitions_total",
				Help: "Circuit breaker state changes",
			},
			[]string{"breaker", "to"},
		),

		// Render metrics
		RenderBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "webclone_render_bytes",
				Help:    "Size of rendered snapshots in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
			},
		),
		RenderTruncations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "webclone_render_truncations_total",
				Help: "Snapshots truncated at the size ceiling",
			},
		),
		RenderRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "webclone_render_retries_total",
				Help: "Render attempts retried after a transient failure",
			},
		),
		Screenshots: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webclone_render_screenshots_total",
				Help: "Screenshot captures by outcome",
			},
			[]string{"outcome"},
		),

		// Prompt / provider metrics
		PromptTokens: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webclone_prompt_tokens",
				Help:    "Estimated prompt tokens per request",
				Buckets: prometheus.ExponentialBuckets(256, 2, 10),
			},
			[]string{"provider"},
		),
		PromptReductions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webclone_prompt_reductions_total",
				Help: "Budget reduction steps applied to prompts",
			},
			[]string{"step"},
		),
		ProviderCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webclone_provider_calls_total",
				Help: "Provider generate calls by outcome",
			},
			[]string{"provider", "result"},
		),
		ProviderRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webclone_provider_retries_total",
				Help: "Provider HTTP attempts retried",
			},
			[]string{"provider"},
		),
		ExtractedBlocks: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "webclone_extracted_blocks",
				Help:    "Blocks retained in the page model",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
		SanitizerRemovals: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webclone_sanitizer_removals_total",
				Help: "Elements and attributes removed from generated markup",
			},
			[]string{"what"},
		),

		// WebSocket metrics
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "webclone_ws_connections",
				Help: "Number of active clone stream connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webclone_ws_messages_total",
				Help: "Total number of clone stream messages",
			},
			[]string{"direction", "type"},
		),

		// System metrics
		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "webclone_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
	}

	// Start uptime updater
	go m.updateUptime()

	return m
}

// updateUptime continuously updates the uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Uptime.Set(time.Since(m.startTime).Seconds())
		case <-m.stop:
			return
		}
	}
}

// Close stops the uptime updater
func (m *Metrics) Close() {
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))
}

// RecordClone records a finished clone. result is "ok" or the error kind.
func (m *Metrics) RecordClone(provider, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ClonesTotal.WithLabelValues(provider, result).Inc()
	m.CloneDuration.Observe(duration.Seconds())
}

// RecordStage records the duration of one pipeline stage
func (m *Metrics) RecordStage(stage string, duration time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// SetGate publishes the current occupancy of an admission gate
func (m *Metrics) SetGate(gate string, inFlight, waiting int64) {
	if m == nil {
		return
	}
	m.GateInFlight.WithLabelValues(gate).Set(float64(inFlight))
	m.GateWaiting.WithLabelValues(gate).Set(float64(waiting))
}

// IncGateRejection counts a call turned away by a full gate
func (m *Metrics) IncGateRejection(gate string) {
	if m == nil {
		return
	}
	m.GateRejections.WithLabelValues(gate).Inc()
}

// RecordBreakerTransition counts a circuit breaker state change
func (m *Metrics) RecordBreakerTransition(breaker, to string) {
	if m == nil {
		return
	}
	m.BreakerTransitions.WithLabelValues(breaker, to).Inc()
}

// RecordRender records the size of a rendered snapshot
func (m *Metrics) RecordRender(bytes int, truncated bool) {
	if m == nil {
		return
	}
	m.RenderBytes.Observe(float64(bytes))
	if truncated {
		m.RenderTruncations.Inc()
	}
}

// IncRenderRetry counts a retried render attempt
func (m *Metrics) IncRenderRetry() {
	if m == nil {
		return
	}
	m.RenderRetries.Inc()
}

// RecordScreenshot counts a screenshot capture ("ok" or "failed")
func (m *Metrics) RecordScreenshot(outcome string) {
	if m == nil {
		return
	}
	m.Screenshots.WithLabelValues(outcome).Inc()
}

// RecordPrompt records the estimated prompt size for a provider
func (m *Metrics) RecordPrompt(provider string, tokens int) {
	if m == nil {
		return
	}
	m.PromptTokens.WithLabelValues(provider).Observe(float64(tokens))
}

// IncPromptReduction counts one budget reduction step
func (m *Metrics) IncPromptReduction(step string) {
	if m == nil {
		return
	}
	m.PromptReductions.WithLabelValues(step).Inc()
}

// RecordProviderCall records a generate call outcome
func (m *Metrics) RecordProviderCall(provider, result string) {
	if m == nil {
		return
	}
	m.ProviderCalls.WithLabelValues(provider, result).Inc()
}

// IncProviderRetry counts a retried provider HTTP attempt
func (m *Metrics) IncProviderRetry(provider string) {
	if m == nil {
		return
	}
	m.ProviderRetries.WithLabelValues(provider).Inc()
}

// RecordExtraction records the number of blocks kept in a page model
func (m *Metrics) RecordExtraction(blocks int) {
	if m == nil {
		return
	}
	m.ExtractedBlocks.Observe(float64(blocks))
}

// AddSanitizerRemovals counts removed elements or attributes
func (m *Metrics) AddSanitizerRemovals(what string, n int) {
	if m == nil {
		return
	}
	if n > 0 {
		m.SanitizerRemovals.WithLabelValues(what).Add(float64(n))
	}
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}
