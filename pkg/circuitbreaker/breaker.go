// Package circuitbreaker wraps sony/gobreaker for calls to upstream services
// (CRM, e-prescribing). A tripped breaker fails the batch item fast instead of
// hammering a degraded upstream for the rest of the run.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrOpen is returned when the circuit is open and the call was not attempted.
var ErrOpen = errors.New("circuitbreaker: circuit open")

// Config holds circuit breaker configuration.
type Config struct {
	// Name identifies the upstream service.
	Name string
	// MaxRequests is max requests allowed in half-open state.
	MaxRequests uint32
	// Interval is the cyclic period for clearing counts in closed state.
	Interval time.Duration
	// Timeout is how long to wait before transitioning from open to half-open.
	Timeout time.Duration
	// ConsecutiveFailures trips the breaker when reached.
	ConsecutiveFailures uint32
}

// DefaultConfig returns defaults suitable for the CRM and e-prescribing APIs.
func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		MaxRequests:         2,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// CircuitBreaker guards calls to one upstream service.
type CircuitBreaker struct {
	cb     *gobreaker.CircuitBreaker
	name   string
	logger *zap.Logger
	tracer trace.Tracer
}

// New creates a circuit breaker for one upstream.
func New(cfg Config, logger *zap.Logger) *CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &CircuitBreaker{
		name:   cfg.Name,
		logger: logger,
		tracer: otel.Tracer("circuit-breaker"),
	}

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return b
}

// Execute runs fn through the breaker. Returns ErrOpen without calling fn
// when the circuit is open.
func (b *CircuitBreaker) Execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	_, span := b.tracer.Start(ctx, "circuit_breaker_execute",
		trace.WithAttributes(attribute.String("breaker_name", b.name)))
	defer span.End()

	result, err := b.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			span.SetAttributes(attribute.Bool("circuit_open", true))
			return nil, ErrOpen
		}
		span.RecordError(err)
		return nil, err
	}
	return result, nil
}

// Counts exposes the underlying request counts.
func (b *CircuitBreaker) Counts() gobreaker.Counts {
	return b.cb.Counts()
}

// Manager holds one breaker per upstream name.
type Manager struct {
	breakers map[string]*CircuitBreaker
	mu       sync.Mutex
	logger   *zap.Logger
}

// NewManager creates a breaker manager.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		breakers: make(map[string]*CircuitBreaker),
		logger:   logger,
	}
}

// GetOrCreate returns the breaker for an upstream, creating it on first use.
func (m *Manager) GetOrCreate(name string) *CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.breakers[name]; ok {
		return b
	}
	b := New(DefaultConfig(name), m.logger)
	m.breakers[name] = b
	return b
}
