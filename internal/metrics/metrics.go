package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the security header service.
type Metrics struct {
	// Header application metrics
	HeadersAppliedTotal *prometheus.CounterVec
	HeadersSkippedTotal *prometheus.CounterVec
	ResponsesBypassed   *prometheus.CounterVec
	ApplyDuration       prometheus.Histogram

	// Settings metrics
	SettingsLookupErrors *prometheus.CounterVec
	SettingsCacheTotal   *prometheus.CounterVec
	SettingsOpDuration   *prometheus.HistogramVec
	SettingsOpErrors     *prometheus.CounterVec
	BreakerStateChanges  *prometheus.CounterVec

	// Admin API metrics
	SettingsChangesTotal *prometheus.CounterVec
	RateLimitHitsTotal   *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		HeadersAppliedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secheaders_headers_applied_total",
				Help: "Total number of security headers written to responses",
			},
			[]string{"header"},
		),
		HeadersSkippedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secheaders_headers_skipped_total",
				Help: "Total number of security headers skipped, by reason",
			},
			[]string{"key", "reason"},
		),
		ResponsesBypassed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secheaders_responses_bypassed_total",
				Help: "Responses left untouched by the header engine",
			},
			[]string{"reason"},
		),
		ApplyDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "secheaders_apply_duration_seconds",
				Help:    "Time spent computing and writing security headers for one response",
				Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
			},
		),

		SettingsLookupErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secheaders_settings_lookup_errors_total",
				Help: "Enablement lookups that failed and fell back to the default",
			},
			[]string{"key"},
		),
		SettingsCacheTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secheaders_settings_cache_total",
				Help: "Settings cache lookups, by result",
			},
			[]string{"result"},
		),
		SettingsOpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "secheaders_settings_op_duration_seconds",
				Help:    "Settings store operation duration",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"operation", "backend"},
		),
		SettingsOpErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secheaders_settings_op_errors_total",
				Help: "Settings store operations that returned an error",
			},
			[]string{"operation", "backend", "error_type"},
		),
		BreakerStateChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secheaders_breaker_state_changes_total",
				Help: "Circuit breaker state transitions",
			},
			[]string{"service", "to"},
		),

		SettingsChangesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secheaders_settings_changes_total",
				Help: "Settings changes made through the admin API or lifecycle hooks",
			},
			[]string{"action"},
		),
		RateLimitHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secheaders_rate_limit_hits_total",
				Help: "Total number of rate limit hits",
			},
			[]string{"limit_type"},
		),
	}
}

// ObserveApplied records one header written to a response.
func (m *Metrics) ObserveApplied(header string) {
	m.HeadersAppliedTotal.WithLabelValues(header).Inc()
}

// ObserveSkipped records one header left out of a response.
func (m *Metrics) ObserveSkipped(key, reason string) {
	m.HeadersSkippedTotal.WithLabelValues(key, reason).Inc()
}

// ObserveBypass records a response the engine did not touch.
func (m *Metrics) ObserveBypass(reason string) {
	m.ResponsesBypassed.WithLabelValues(reason).Inc()
}

// ObserveApply records the duration of one application pass.
func (m *Metrics) ObserveApply(duration time.Duration) {
	m.ApplyDuration.Observe(duration.Seconds())
}

// ObserveLookupError records a failed enablement lookup.
func (m *Metrics) ObserveLookupError(key string) {
	m.SettingsLookupErrors.WithLabelValues(key).Inc()
}

// ObserveCache records a settings cache hit or miss.
func (m *Metrics) ObserveCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.SettingsCacheTotal.WithLabelValues(result).Inc()
}

// ObserveSettingsOp records a settings store operation.
func (m *Metrics) ObserveSettingsOp(operation, backend string, duration time.Duration, err error) {
	m.SettingsOpDuration.WithLabelValues(operation, backend).Observe(duration.Seconds())

	if err != nil {
		m.SettingsOpErrors.WithLabelValues(operation, backend, classifyError(err)).Inc()
	}
}

// ObserveBreakerState records a circuit breaker transition.
func (m *Metrics) ObserveBreakerState(service, to string) {
	m.BreakerStateChanges.WithLabelValues(service, to).Inc()
}

// ObserveSettingsChange records a write to the settings store.
func (m *Metrics) ObserveSettingsChange(action string) {
	m.SettingsChangesTotal.WithLabelValues(action).Inc()
}

// ObserveRateLimit records a rate limit hit.
func (m *Metrics) ObserveRateLimit(limitType string) {
	m.RateLimitHitsTotal.WithLabelValues(limitType).Inc()
}

// classifyError buckets store errors into a small label set.
func classifyError(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return "timeout"
	case strings.Contains(msg, "circuit breaker"):
		return "breaker_open"
	case strings.Contains(msg, "connection"), strings.Contains(msg, "connect"):
		return "connection"
	default:
		return "other"
	}
}
