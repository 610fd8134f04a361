// Package settings persists per-key enablement flags for the header engine.
package settings

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Store persists boolean settings by key.
type Store interface {
	// GetBool returns the stored value, or def when the key is absent.
	GetBool(ctx context.Context, key string, def bool) (bool, error)
	// SetBool upserts a value.
	SetBool(ctx context.Context, key string, v bool) error
	// AddBool stores v only if key is absent and reports whether it wrote.
	AddBool(ctx context.Context, key string, v bool) (bool, error)
	// Delete removes keys. Absent keys are ignored.
	Delete(ctx context.Context, keys ...string) error
	// Keys lists every stored key in ascending order.
	Keys(ctx context.Context) ([]string, error)
	Close() error
}

// ErrEmptyKey is returned when a caller passes an empty key.
var ErrEmptyKey = errors.New("settings: key is empty")

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("settings: store is closed")

const defaultQueryTimeout = 5 * time.Second

// withQueryTimeout bounds remote calls when the caller set no deadline.
func withQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, defaultQueryTimeout)
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// validateIdentifier guards table and collection names that are
// interpolated into queries.
func validateIdentifier(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("settings: invalid identifier %q", name)
	}
	return nil
}

func checkKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	return nil
}
