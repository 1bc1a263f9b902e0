package vaultkeyring

import (
	"fmt"
	"time"

	"github.com/hengadev/vaultkeyring/internal/monitoring"
	"github.com/hengadev/vaultkeyring/internal/reliability"
	"github.com/hengadev/vaultkeyring/internal/store"
)

// Logger receives the keyring's diagnostic messages.
type Logger = monitoring.Logger

// MetricsCollector receives cache and request metrics.
type MetricsCollector = monitoring.MetricsCollector

// Transport performs the HTTP exchanges with Vault. The default is built from
// the credentials on top of the official Vault API client.
type Transport = store.Transport

// Transport request and response types, for custom Transport implementations.
type (
	TransportRequest  = store.Request
	TransportResponse = store.Response
)

// Option configures a Keyring.
type Option func(*settings) error

type settings struct {
	logger     Logger
	metrics    MetricsCollector
	transport  Transport
	maxRetries int
	breaker    *reliability.CircuitBreakerConfig
}

func defaultSettings() *settings {
	return &settings{
		logger:  monitoring.NopLogger{},
		metrics: &monitoring.NoOpMetricsCollector{},
	}
}

func WithLogger(logger Logger) Option {
	return func(s *settings) error {
		if logger == nil {
			return fmt.Errorf("%w: logger is nil", ErrInvalidConfiguration)
		}
		s.logger = logger
		return nil
	}
}

func WithMetricsCollector(metrics MetricsCollector) Option {
	return func(s *settings) error {
		if metrics == nil {
			return fmt.Errorf("%w: metrics collector is nil", ErrInvalidConfiguration)
		}
		s.metrics = metrics
		return nil
	}
}

// WithTransport replaces the Vault API client transport. The credentials'
// URL, CA and token are then the transport's business.
func WithTransport(transport Transport) Option {
	return func(s *settings) error {
		if transport == nil {
			return fmt.Errorf("%w: transport is nil", ErrInvalidConfiguration)
		}
		s.transport = transport
		return nil
	}
}

// WithMaxRetries sets how many times the default transport retries requests
// failing with 5xx or 429. Zero, the default, disables retries.
func WithMaxRetries(n int) Option {
	return func(s *settings) error {
		if n < 0 {
			return fmt.Errorf("%w: max retries must not be negative, got %d", ErrInvalidConfiguration, n)
		}
		s.maxRetries = n
		return nil
	}
}

// WithCircuitBreaker stops sending requests to Vault after failureThreshold
// consecutive transport failures or 5xx answers. Calls fail fast with a
// TransportError until cooldown has elapsed; then one trial request is let
// through.
func WithCircuitBreaker(failureThreshold int, cooldown time.Duration) Option {
	return func(s *settings) error {
		if failureThreshold <= 0 {
			return fmt.Errorf("%w: circuit breaker failure threshold must be positive, got %d", ErrInvalidConfiguration, failureThreshold)
		}
		if cooldown <= 0 {
			return fmt.Errorf("%w: circuit breaker cooldown must be positive, got %s", ErrInvalidConfiguration, cooldown)
		}
		s.breaker = &reliability.CircuitBreakerConfig{
			FailureThreshold: failureThreshold,
			Cooldown:         cooldown,
		}
		return nil
	}
}
