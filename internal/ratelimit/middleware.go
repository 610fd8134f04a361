package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	apierrors "github.com/CedrosPay/secheaders/internal/errors"
	"github.com/CedrosPay/secheaders/internal/metrics"
	"github.com/go-chi/httprate"
)

// Config holds rate limiting configuration for the admin API.
type Config struct {
	Enabled bool
	Limit   int           // requests per window, per client IP
	Window  time.Duration // time window

	// Metrics collector (optional)
	Metrics *metrics.Metrics
}

// DefaultConfig returns the default admin limit: 60 requests per minute per IP.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Limit:   60,
		Window:  1 * time.Minute,
	}
}

// limitHandler writes the standard error envelope with a Retry-After hint.
func limitHandler(limitType string, window time.Duration, m *metrics.Metrics) http.HandlerFunc {
	seconds := int(window.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if m != nil {
			m.ObserveRateLimit(limitType)
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		apierrors.WriteErrorWithDetail(w, apierrors.ErrCodeRateLimited,
			"Rate limit exceeded. Please try again later.", "retry_after_seconds", seconds)
	}
}

// AdminLimiter limits admin API calls per client IP.
func AdminLimiter(cfg Config) func(http.Handler) http.Handler {
	if !cfg.Enabled || cfg.Limit <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return httprate.Limit(
		cfg.Limit,
		cfg.Window,
		httprate.WithKeyByIP(),
		httprate.WithLimitHandler(limitHandler("admin", cfg.Window, cfg.Metrics)),
	)
}
