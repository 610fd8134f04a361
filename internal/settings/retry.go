package settings

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// retryConfig defines retry behaviour for opening a networked backend.
type retryConfig struct {
	maxRetries int
	baseDelay  time.Duration
}

func defaultRetryConfig() retryConfig {
	return retryConfig{
		maxRetries: 4,
		baseDelay:  250 * time.Millisecond,
	}
}

// withRetry runs operation with exponential backoff while it fails with a
// transient connection error.
func withRetry[T any](ctx context.Context, cfg retryConfig, log zerolog.Logger, operation func() (T, error)) (T, error) {
	var result T
	var err error

	for attempt := 0; attempt <= cfg.maxRetries; attempt++ {
		result, err = operation()
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil || !isTransientError(err) || attempt == cfg.maxRetries {
			return result, err
		}

		// 250ms, 500ms, 1s, 2s
		delay := cfg.baseDelay * time.Duration(1<<uint(attempt))
		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", cfg.maxRetries+1).
			Dur("retry_delay", delay).
			Msg("settings.open_retry")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, ctx.Err()
		case <-timer.C:
		}
	}

	return result, err
}

// isTransientError reports whether err looks like a dial or network failure.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "i/o timeout") ||
		strings.Contains(msg, "server selection timeout") ||
		strings.Contains(msg, "the database system is starting up")
}
