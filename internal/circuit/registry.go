package circuit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"wyckoff-trading-bot/config"
)

// ErrOpen is returned when a symbol's breaker is open and the call was
// short-circuited. Callers treat it as degraded health, not a fault.
var ErrOpen = errors.New("circuit breaker open")

// Registry maintains one circuit breaker per symbol so a consistently
// failing symbol cannot consume pipeline throughput meant for healthy
// ones. Breakers are created lazily; the map lock is held only for
// lookup, never across a guarded call.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*gobreaker.CircuitBreaker
	cfg      config.BreakerConfig
	logger   zerolog.Logger
}

// NewRegistry creates a breaker registry.
func NewRegistry(cfg config.BreakerConfig, logger zerolog.Logger) *Registry {
	return &Registry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		cfg:      cfg,
		logger:   logger.With().Str("component", "circuit").Logger(),
	}
}

// Execute runs fn under the symbol's breaker. After the configured
// consecutive failures the breaker opens for the cooldown, then allows
// one half-open trial: success closes it, failure re-opens it.
func (r *Registry) Execute(symbol string, fn func() (any, error)) (any, error) {
	out, err := r.breakerFor(symbol).Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w for %s", ErrOpen, symbol)
	}
	return out, err
}

// State reports the breaker state for a symbol; symbols never executed
// report closed.
func (r *Registry) State(symbol string) gobreaker.State {
	r.mu.RLock()
	cb, ok := r.breakers[symbol]
	r.mu.RUnlock()
	if !ok {
		return gobreaker.StateClosed
	}
	return cb.State()
}

// States snapshots every known symbol's breaker state.
func (r *Registry) States() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.breakers))
	for symbol, cb := range r.breakers {
		out[symbol] = cb.State().String()
	}
	return out
}

// Degraded reports whether any breaker is currently open.
func (r *Registry) Degraded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, cb := range r.breakers {
		if cb.State() == gobreaker.StateOpen {
			return true
		}
	}
	return false
}

func (r *Registry) breakerFor(symbol string) *gobreaker.CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[symbol]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[symbol]; ok {
		return cb
	}

	threshold := r.cfg.FailureThreshold
	settings := gobreaker.Settings{
		Name:        symbol,
		MaxRequests: 1, // single half-open trial
		Timeout:     time.Duration(r.cfg.CooldownSec) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Warn().
				Str("symbol", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	}

	cb = gobreaker.NewCircuitBreaker(settings)
	r.breakers[symbol] = cb
	return cb
}
