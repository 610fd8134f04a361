package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/CedrosPay/secheaders/internal/logger"
	"github.com/CedrosPay/secheaders/internal/metrics"
	"github.com/rs/zerolog"
)

// Accessor reads per-key enablement flags. def is returned when the key
// has no stored value.
type Accessor interface {
	GetBool(ctx context.Context, key string, def bool) (bool, error)
}

// Writer is the settings surface used by the lifecycle hooks.
type Writer interface {
	Accessor
	SetBool(ctx context.Context, key string, v bool) error
	AddBool(ctx context.Context, key string, v bool) (bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// Sink receives header lines for one response.
type Sink interface {
	Set(name, value string)
	HeadersSent() bool
}

// Skip reasons reported in Outcome and metrics.
const (
	SkipDisabled     = "disabled"
	SkipPrecondition = "precondition"
)

// Bypass reasons reported in Outcome and metrics.
const (
	BypassInternal    = "internal"
	BypassHeadersSent = "headers_sent"
)

// Skipped records a definition that produced no header.
type Skipped struct {
	Key    string
	Reason string
}

// Outcome summarises one Apply call.
type Outcome struct {
	Applied     []string // header names in emission order
	Skipped     []Skipped
	Bypassed    string // non-empty when the response was left untouched
	LookupFails int
}

// Engine emits the enabled security headers for a response.
type Engine struct {
	table           *Table
	accessor        Accessor
	log             zerolog.Logger
	metrics         *metrics.Metrics
	excludeInternal bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the fallback logger used when the request context
// carries none.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithExcludeInternal controls whether internal requests are left untouched.
// Enabled by default.
func WithExcludeInternal(exclude bool) Option {
	return func(e *Engine) { e.excludeInternal = exclude }
}

// NewEngine builds an engine over table. A nil accessor means every
// definition uses its default.
func NewEngine(table *Table, accessor Accessor, opts ...Option) (*Engine, error) {
	if table == nil {
		return nil, fmt.Errorf("policy: table is required")
	}
	e := &Engine{
		table:           table,
		accessor:        accessor,
		log:             zerolog.Nop(),
		excludeInternal: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Table returns the engine's definition table.
func (e *Engine) Table() *Table { return e.table }

// Apply writes every enabled, applicable header to sink in table order.
// It never fails: lookup errors degrade to the definition default.
func (e *Engine) Apply(ctx context.Context, req Request, sink Sink) Outcome {
	var out Outcome

	if req.Internal && e.excludeInternal {
		out.Bypassed = BypassInternal
		e.observeBypass(out.Bypassed)
		return out
	}
	if sink.HeadersSent() {
		out.Bypassed = BypassHeadersSent
		e.observeBypass(out.Bypassed)
		return out
	}

	start := time.Now()
	log := logger.FromContextOr(ctx, e.log)

	for _, def := range e.table.defs {
		enabled, err := e.enabled(ctx, def)
		if err != nil {
			out.LookupFails++
			log.Warn().
				Err(err).
				Str("key", def.Key).
				Bool("default", def.DefaultEnabled).
				Msg("headers.lookup_failed")
			if e.metrics != nil {
				e.metrics.ObserveLookupError(def.Key)
			}
		}

		if !enabled {
			out.Skipped = append(out.Skipped, Skipped{Key: def.Key, Reason: SkipDisabled})
			e.observeSkip(def.Key, SkipDisabled)
			continue
		}
		if !def.applies(req) {
			out.Skipped = append(out.Skipped, Skipped{Key: def.Key, Reason: SkipPrecondition})
			e.observeSkip(def.Key, SkipPrecondition)
			continue
		}

		sink.Set(def.Header, def.Value(req))
		out.Applied = append(out.Applied, def.Header)
		if e.metrics != nil {
			e.metrics.ObserveApplied(def.Header)
		}
	}

	if e.metrics != nil {
		e.metrics.ObserveApply(time.Since(start))
	}
	log.Debug().
		Strs("applied", out.Applied).
		Str("connection", req.Connection.String()).
		Msg("headers.applied")

	return out
}

// enabled resolves one flag. A failing or panicking accessor yields the
// default together with an error.
func (e *Engine) enabled(ctx context.Context, def Definition) (v bool, err error) {
	if e.accessor == nil {
		return def.DefaultEnabled, nil
	}
	defer func() {
		if r := recover(); r != nil {
			v, err = def.DefaultEnabled, fmt.Errorf("accessor panic: %v", r)
		}
	}()
	v, err = e.accessor.GetBool(ctx, def.Key, def.DefaultEnabled)
	if err != nil {
		return def.DefaultEnabled, err
	}
	return v, nil
}

func (e *Engine) observeSkip(key, reason string) {
	if e.metrics != nil {
		e.metrics.ObserveSkipped(key, reason)
	}
}

func (e *Engine) observeBypass(reason string) {
	if e.metrics != nil {
		e.metrics.ObserveBypass(reason)
	}
}

// Activate seeds each table key with its default where no value exists.
// Existing values are preserved.
func (e *Engine) Activate(ctx context.Context, w Writer) error {
	seeded := 0
	for _, def := range e.table.defs {
		added, err := w.AddBool(ctx, def.Key, def.DefaultEnabled)
		if err != nil {
			return fmt.Errorf("seed %q: %w", def.Key, err)
		}
		if added {
			seeded++
		}
	}
	if e.metrics != nil && seeded > 0 {
		e.metrics.ObserveSettingsChange("activate")
	}
	log := logger.FromContextOr(ctx, e.log)
	log.Info().
		Int("seeded", seeded).
		Int("total", e.table.Len()).
		Msg("headers.activated")
	return nil
}

// Deactivate removes the table's keys and nothing else.
func (e *Engine) Deactivate(ctx context.Context, w Writer) error {
	if err := w.Delete(ctx, e.table.Keys()...); err != nil {
		return fmt.Errorf("remove settings: %w", err)
	}
	if e.metrics != nil {
		e.metrics.ObserveSettingsChange("deactivate")
	}
	log := logger.FromContextOr(ctx, e.log)
	log.Info().
		Int("removed", e.table.Len()).
		Msg("headers.deactivated")
	return nil
}

// Reset overwrites every key with its default.
func (e *Engine) Reset(ctx context.Context, w Writer) error {
	for _, def := range e.table.defs {
		if err := w.SetBool(ctx, def.Key, def.DefaultEnabled); err != nil {
			return fmt.Errorf("reset %q: %w", def.Key, err)
		}
	}
	if e.metrics != nil {
		e.metrics.ObserveSettingsChange("reset")
	}
	log := logger.FromContextOr(ctx, e.log)
	log.Info().Msg("headers.reset")
	return nil
}

// Status is the admin view of one definition.
type Status struct {
	Key            string `json:"key"`
	Header         string `json:"header"`
	Label          string `json:"label"`
	Description    string `json:"description"`
	Enabled        bool   `json:"enabled"`
	DefaultEnabled bool   `json:"default_enabled"`
	Value          string `json:"value"`
	TLSOnly        bool   `json:"tls_only"`
}

// Describe reports the current state of every definition in table order.
// Values are rendered for a TLS request so conditional headers show their
// effective value.
func (e *Engine) Describe(ctx context.Context) []Status {
	sample := Request{Connection: ConnTLS}
	out := make([]Status, 0, e.table.Len())
	for _, def := range e.table.defs {
		enabled, _ := e.enabled(ctx, def)
		out = append(out, Status{
			Key:            def.Key,
			Header:         def.Header,
			Label:          def.Label,
			Description:    def.Description,
			Enabled:        enabled,
			DefaultEnabled: def.DefaultEnabled,
			Value:          def.Value(sample),
			TLSOnly:        def.Precondition != nil && !def.Precondition(Request{Connection: ConnPlain}),
		})
	}
	return out
}
