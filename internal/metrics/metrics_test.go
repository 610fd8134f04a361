package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsInitialization(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	if m == nil {
		t.Fatal("metrics collector should not be nil")
	}
	if m.HeadersAppliedTotal == nil {
		t.Error("HeadersAppliedTotal should be initialized")
	}
	if m.HeadersSkippedTotal == nil {
		t.Error("HeadersSkippedTotal should be initialized")
	}
	if m.SettingsOpDuration == nil {
		t.Error("SettingsOpDuration should be initialized")
	}
	if m.RateLimitHitsTotal == nil {
		t.Error("RateLimitHitsTotal should be initialized")
	}
}

func TestObserveApplied(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.ObserveApplied("X-Frame-Options")
	m.ObserveApplied("X-Frame-Options")
	m.ObserveApplied("Referrer-Policy")

	if got := promtest.ToFloat64(m.HeadersAppliedTotal.WithLabelValues("X-Frame-Options")); got != 2 {
		t.Errorf("expected 2 X-Frame-Options applications, got %.0f", got)
	}
	if got := promtest.ToFloat64(m.HeadersAppliedTotal.WithLabelValues("Referrer-Policy")); got != 1 {
		t.Errorf("expected 1 Referrer-Policy application, got %.0f", got)
	}
}

func TestObserveSkippedAndBypass(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.ObserveSkipped("security_header_hsts", "precondition")
	m.ObserveBypass("internal")
	m.ObserveBypass("headers_sent")
	m.ObserveBypass("internal")

	if got := promtest.ToFloat64(m.HeadersSkippedTotal.WithLabelValues("security_header_hsts", "precondition")); got != 1 {
		t.Errorf("expected 1 skipped hsts, got %.0f", got)
	}
	if got := promtest.ToFloat64(m.ResponsesBypassed.WithLabelValues("internal")); got != 2 {
		t.Errorf("expected 2 internal bypasses, got %.0f", got)
	}
}

func TestObserveCache(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.ObserveCache(true)
	m.ObserveCache(false)
	m.ObserveCache(true)

	if got := promtest.ToFloat64(m.SettingsCacheTotal.WithLabelValues("hit")); got != 2 {
		t.Errorf("expected 2 hits, got %.0f", got)
	}
	if got := promtest.ToFloat64(m.SettingsCacheTotal.WithLabelValues("miss")); got != 1 {
		t.Errorf("expected 1 miss, got %.0f", got)
	}
}

func TestObserveSettingsOp(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		errorType string
		want      float64
	}{
		{name: "success", err: nil, errorType: "other", want: 0},
		{name: "timeout", err: errors.New("context deadline exceeded"), errorType: "timeout", want: 1},
		{name: "connection", err: errors.New("dial tcp: connection refused"), errorType: "connection", want: 1},
		{name: "breaker", err: errors.New("circuit breaker is open"), errorType: "breaker_open", want: 1},
		{name: "other", err: errors.New("boom"), errorType: "other", want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := prometheus.NewRegistry()
			m := New(registry)

			m.ObserveSettingsOp("get", "postgres", 5*time.Millisecond, tt.err)

			got := promtest.ToFloat64(m.SettingsOpErrors.WithLabelValues("get", "postgres", tt.errorType))
			if got != tt.want {
				t.Errorf("expected %.0f errors of type %s, got %.0f", tt.want, tt.errorType, got)
			}
		})
	}
}

func TestMeasureSettingsOp(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	done := MeasureSettingsOp(m, "set", "redis")
	done(errors.New("connection reset"))

	if got := promtest.ToFloat64(m.SettingsOpErrors.WithLabelValues("set", "redis", "connection")); got != 1 {
		t.Errorf("expected 1 connection error, got %.0f", got)
	}
}

func TestMeasureSettingsOpNilMetrics(t *testing.T) {
	done := MeasureSettingsOp(nil, "get", "memory")
	done(nil)
	RecordSettingsOp(nil, "get", "memory", time.Millisecond, nil)
}

func TestObserveRateLimit(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.ObserveRateLimit("admin")

	if got := promtest.ToFloat64(m.RateLimitHitsTotal.WithLabelValues("admin")); got != 1 {
		t.Errorf("expected 1 rate limit hit, got %.0f", got)
	}
}
