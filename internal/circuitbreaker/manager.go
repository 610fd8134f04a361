package circuitbreaker

import (
	"time"

	"github.com/CedrosPay/secheaders/internal/config"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// ServiceType identifies a protected dependency.
type ServiceType string

const (
	ServiceSettings ServiceType = "settings_store"
)

// StateListener is notified on every breaker transition.
type StateListener func(service ServiceType, from, to gobreaker.State)

// Manager owns one circuit breaker per protected dependency.
type Manager struct {
	breakers map[ServiceType]*gobreaker.CircuitBreaker
	config   Config
}

// Config holds circuit breaker configuration.
type Config struct {
	Enabled  bool
	Settings BreakerConfig

	// Log receives state transitions. Zero value discards them.
	Log zerolog.Logger
	// OnStateChange is an optional extra listener (metrics).
	OnStateChange StateListener
}

// BreakerConfig configures a single circuit breaker.
type BreakerConfig struct {
	// MaxRequests is the maximum number of requests allowed to pass through
	// when the circuit breaker is half-open.
	MaxRequests uint32

	// Interval is the cyclic period in closed state to clear the internal counts.
	// If 0, never clears.
	Interval time.Duration

	// Timeout is the period of the open state after which the state becomes half-open.
	Timeout time.Duration

	// Trip thresholds: consecutive failures, or failure ratio once
	// MinRequests have been seen.
	ConsecutiveFailures uint32
	FailureRatio        float64
	MinRequests         uint32
}

// NewManagerFromConfig creates a circuit breaker manager from application config.
func NewManagerFromConfig(cfg config.CircuitBreakerConfig, log zerolog.Logger, listener StateListener) *Manager {
	return NewManager(Config{
		Enabled: cfg.Enabled,
		Settings: BreakerConfig{
			MaxRequests:         cfg.Settings.MaxRequests,
			Interval:            cfg.Settings.Interval.Duration,
			Timeout:             cfg.Settings.Timeout.Duration,
			ConsecutiveFailures: cfg.Settings.ConsecutiveFailures,
			FailureRatio:        cfg.Settings.FailureRatio,
			MinRequests:         cfg.Settings.MinRequests,
		},
		Log:           log,
		OnStateChange: listener,
	})
}

// NewManager creates a circuit breaker manager with the given configuration.
func NewManager(cfg Config) *Manager {
	m := &Manager{
		breakers: make(map[ServiceType]*gobreaker.CircuitBreaker),
		config:   cfg,
	}

	if !cfg.Enabled {
		// Pass-through manager
		return m
	}

	m.breakers[ServiceSettings] = gobreaker.NewCircuitBreaker(toGobreakerSettings(ServiceSettings, cfg.Settings, cfg))

	return m
}

// Execute wraps a function call with circuit breaker protection.
// If circuit breaker is disabled or not configured for the service, executes directly.
func (m *Manager) Execute(service ServiceType, fn func() (interface{}, error)) (interface{}, error) {
	if !m.config.Enabled {
		return fn()
	}

	breaker, ok := m.breakers[service]
	if !ok {
		return fn()
	}

	return breaker.Execute(fn)
}

// State returns the current state of a circuit breaker.
// Returns "disabled" if circuit breakers are not enabled or service not found.
func (m *Manager) State(service ServiceType) string {
	if !m.config.Enabled {
		return "disabled"
	}

	breaker, ok := m.breakers[service]
	if !ok {
		return "not_configured"
	}

	return breaker.State().String()
}

// Counts returns the current counts for a circuit breaker.
func (m *Manager) Counts(service ServiceType) Counts {
	breaker, ok := m.breakers[service]
	if !m.config.Enabled || !ok {
		return Counts{}
	}

	c := breaker.Counts()
	return Counts{
		Requests:             c.Requests,
		TotalSuccesses:       c.TotalSuccesses,
		TotalFailures:        c.TotalFailures,
		ConsecutiveSuccesses: c.ConsecutiveSuccesses,
		ConsecutiveFailures:  c.ConsecutiveFailures,
	}
}

// Counts represents circuit breaker statistics.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// toGobreakerSettings converts our config to gobreaker.Settings.
func toGobreakerSettings(service ServiceType, cfg BreakerConfig, mgr Config) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        string(service),
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if cfg.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= cfg.ConsecutiveFailures {
				return true
			}

			if cfg.FailureRatio > 0 && cfg.MinRequests > 0 && counts.Requests >= cfg.MinRequests {
				failureRate := float64(counts.TotalFailures) / float64(counts.Requests)
				if failureRate >= cfg.FailureRatio {
					return true
				}
			}

			return false
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			mgr.Log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit_breaker.state_changed")
			if mgr.OnStateChange != nil {
				mgr.OnStateChange(service, from, to)
			}
		},
	}
}

// DefaultConfig returns sensible defaults for circuit breaker configuration.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Settings: BreakerConfig{
			MaxRequests:         3,
			Interval:            60 * time.Second,
			Timeout:             30 * time.Second,
			ConsecutiveFailures: 5,
			FailureRatio:        0.5,
			MinRequests:         10,
		},
	}
}
