// Package circuitbreaker guards provider adapters with per-provider circuit
// breakers built on github.com/sony/gobreaker.
package circuitbreaker

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	common "github.com/ajayykmr/sms-gateway/internal/adapters/common"
	"github.com/ajayykmr/sms-gateway/internal/errs"
	"github.com/ajayykmr/sms-gateway/internal/message"
	"github.com/ajayykmr/sms-gateway/internal/observability/metrics"
)

// Config holds the configuration for a circuit breaker.
type Config struct {
	// Name is the circuit breaker name for logging and metrics
	Name string

	// MaxRequests is the maximum number of requests allowed in half-open state
	MaxRequests uint32

	// Interval is the cyclic period of the closed state to clear counts
	Interval time.Duration

	// Timeout is how long to wait in open state before trying again
	Timeout time.Duration

	// FailureThreshold is the failure ratio that trips the circuit
	FailureThreshold float64

	// MinRequests is the minimum number of requests before the ratio counts
	MinRequests uint32
}

// DefaultConfig returns the provider breaker defaults.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		MaxRequests:      3,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

// CircuitBreaker wraps gobreaker.CircuitBreaker.
type CircuitBreaker struct {
	breaker *gobreaker.CircuitBreaker
	name    string
}

// New creates a circuit breaker. Only provider and network failures count
// against the circuit; a malformed message says nothing about provider
// health.
func New(cfg Config, logger zerolog.Logger) *CircuitBreaker {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errs.Retryable(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			metrics.SetBreakerState(name, stateValue(to))
			logger.Warn().
				Str("circuit", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	}
	metrics.SetBreakerState(cfg.Name, stateValue(gobreaker.StateClosed))

	return &CircuitBreaker{
		breaker: gobreaker.NewCircuitBreaker(settings),
		name:    cfg.Name,
	}
}

// Execute runs fn through the breaker. An open circuit returns
// gobreaker.ErrOpenState without calling fn.
func (cb *CircuitBreaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	return cb.breaker.Execute(fn)
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() gobreaker.State {
	return cb.breaker.State()
}

// Name returns the name of the circuit breaker.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// IsOpen returns true if the circuit breaker is in the open state.
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.breaker.State() == gobreaker.StateOpen
}

func stateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Set holds one breaker per provider, created on first use. It is safe for
// concurrent use and meant to be shared process wide.
type Set struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	config   func(name string) Config
	logger   zerolog.Logger
}

// NewSet returns an empty set. A nil config function uses DefaultConfig.
func NewSet(logger zerolog.Logger, config func(name string) Config) *Set {
	if config == nil {
		config = DefaultConfig
	}
	return &Set{
		breakers: make(map[string]*CircuitBreaker),
		config:   config,
		logger:   logger,
	}
}

// Get returns the breaker for provider.
func (s *Set) Get(provider string) *CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	cb, ok := s.breakers[provider]
	if !ok {
		cfg := s.config(provider)
		cfg.Name = provider
		cb = New(cfg, s.logger)
		s.breakers[provider] = cb
	}
	return cb
}

// Wrap returns adapter guarded by the breaker of its provider.
func (s *Set) Wrap(adapter common.Adapter) common.Adapter {
	return &guarded{Adapter: adapter, breaker: s.Get(adapter.Name())}
}

type guarded struct {
	common.Adapter
	breaker *CircuitBreaker
}

// Send runs the wrapped Send through the breaker. A rejected call becomes a
// temporary ProviderError so deferred jobs retry it later.
func (g *guarded) Send(ctx context.Context, msg *message.Message) (*common.SendResult, error) {
	var result *common.SendResult
	_, err := g.breaker.Execute(func() (interface{}, error) {
		res, err := g.Adapter.Send(ctx, msg)
		result = res
		return nil, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return common.NewSendResult(g.Adapter.Name()), &errs.ProviderError{
			Provider:  g.Adapter.Name(),
			Message:   "circuit breaker open",
			Temporary: true,
			Err:       err,
		}
	}
	return result, err
}
