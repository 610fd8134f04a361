package settings

import (
	"context"

	"github.com/CedrosPay/secheaders/internal/circuitbreaker"
)

// BreakerStore routes every call through the settings circuit breaker.
// While the breaker is open calls fail fast and the engine falls back to
// definition defaults.
type BreakerStore struct {
	next Store
	cb   *circuitbreaker.Manager
}

// NewBreakerStore wraps next.
func NewBreakerStore(next Store, cb *circuitbreaker.Manager) *BreakerStore {
	return &BreakerStore{next: next, cb: cb}
}

func (b *BreakerStore) GetBool(ctx context.Context, key string, def bool) (bool, error) {
	v, err := b.cb.Execute(circuitbreaker.ServiceSettings, func() (interface{}, error) {
		return b.next.GetBool(ctx, key, def)
	})
	if err != nil {
		return def, err
	}
	return v.(bool), nil
}

func (b *BreakerStore) SetBool(ctx context.Context, key string, v bool) error {
	_, err := b.cb.Execute(circuitbreaker.ServiceSettings, func() (interface{}, error) {
		return nil, b.next.SetBool(ctx, key, v)
	})
	return err
}

func (b *BreakerStore) AddBool(ctx context.Context, key string, v bool) (bool, error) {
	added, err := b.cb.Execute(circuitbreaker.ServiceSettings, func() (interface{}, error) {
		return b.next.AddBool(ctx, key, v)
	})
	if err != nil {
		return false, err
	}
	return added.(bool), nil
}

func (b *BreakerStore) Delete(ctx context.Context, keys ...string) error {
	_, err := b.cb.Execute(circuitbreaker.ServiceSettings, func() (interface{}, error) {
		return nil, b.next.Delete(ctx, keys...)
	})
	return err
}

func (b *BreakerStore) Keys(ctx context.Context) ([]string, error) {
	keys, err := b.cb.Execute(circuitbreaker.ServiceSettings, func() (interface{}, error) {
		return b.next.Keys(ctx)
	})
	if err != nil {
		return nil, err
	}
	return keys.([]string), nil
}

func (b *BreakerStore) Close() error { return b.next.Close() }
