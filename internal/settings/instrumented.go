package settings

import (
	"context"

	"github.com/CedrosPay/secheaders/internal/metrics"
)

// InstrumentedStore records latency and errors for every backend call.
type InstrumentedStore struct {
	next    Store
	backend string
	metrics *metrics.Metrics
}

// NewInstrumentedStore wraps next, labelling observations with backend.
func NewInstrumentedStore(next Store, backend string, m *metrics.Metrics) *InstrumentedStore {
	return &InstrumentedStore{next: next, backend: backend, metrics: m}
}

func (s *InstrumentedStore) GetBool(ctx context.Context, key string, def bool) (bool, error) {
	done := metrics.MeasureSettingsOp(s.metrics, "get", s.backend)
	v, err := s.next.GetBool(ctx, key, def)
	done(err)
	return v, err
}

func (s *InstrumentedStore) SetBool(ctx context.Context, key string, v bool) error {
	done := metrics.MeasureSettingsOp(s.metrics, "set", s.backend)
	err := s.next.SetBool(ctx, key, v)
	done(err)
	return err
}

func (s *InstrumentedStore) AddBool(ctx context.Context, key string, v bool) (bool, error) {
	done := metrics.MeasureSettingsOp(s.metrics, "add", s.backend)
	added, err := s.next.AddBool(ctx, key, v)
	done(err)
	return added, err
}

func (s *InstrumentedStore) Delete(ctx context.Context, keys ...string) error {
	done := metrics.MeasureSettingsOp(s.metrics, "delete", s.backend)
	err := s.next.Delete(ctx, keys...)
	done(err)
	return err
}

func (s *InstrumentedStore) Keys(ctx context.Context) ([]string, error) {
	done := metrics.MeasureSettingsOp(s.metrics, "keys", s.backend)
	keys, err := s.next.Keys(ctx)
	done(err)
	return keys, err
}

func (s *InstrumentedStore) Close() error { return s.next.Close() }
