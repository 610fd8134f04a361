package metrics

import (
	"time"
)

// MeasureSettingsOp times a settings store operation.
// Usage:
//
//	done := metrics.MeasureSettingsOp(m, "get", "postgres")
//	v, err := lookup()
//	done(err)
func MeasureSettingsOp(m *Metrics, operation, backend string) func(error) {
	if m == nil {
		return func(error) {}
	}
	start := time.Now()
	return func(err error) {
		m.ObserveSettingsOp(operation, backend, time.Since(start), err)
	}
}

// RecordSettingsOp records an operation whose duration was captured by the caller.
func RecordSettingsOp(m *Metrics, operation, backend string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.ObserveSettingsOp(operation, backend, duration, err)
}
