package vaultkeyring

import (
	"context"
	"net/http"

	"github.com/hengadev/vaultkeyring/internal/health"
)

// HealthReport is the outcome of every keyring health check.
type HealthReport = health.HealthReport

// HealthStatus values.
const (
	StatusHealthy   = health.StatusHealthy
	StatusDegraded  = health.StatusDegraded
	StatusUnhealthy = health.StatusUnhealthy
	StatusUnknown   = health.StatusUnknown
)

// Health checks that Vault is unsealed and active and that the keys under
// the mount point can still be listed. When a circuit breaker is configured
// its state is reported too. Listing refreshes the key index like List.
func (k *Keyring) Health(ctx context.Context) *HealthReport {
	return k.healthChecker().CheckHealth(ctx)
}

// HealthHandler serves the health report on /health, a liveness probe on
// /health/live and a readiness probe on /health/ready.
func (k *Keyring) HealthHandler() http.Handler {
	return health.NewHealthEndpoint(k.healthChecker())
}

func (k *Keyring) healthChecker() *health.HealthChecker {
	checks := []*health.HealthCheck{
		health.VaultHealthCheck(k.transport),
		health.KeyListCheck(func(ctx context.Context) (int, error) {
			keys, err := k.List(ctx)
			return len(keys), err
		}),
	}
	if k.breaker != nil {
		checks = append(checks, health.CircuitBreakerHealthCheck(k.breaker))
	}
	return newHealthChecker(k.metrics, k.logger, checks...)
}

// newHealthChecker registers checks, logging the ones that are rejected.
func newHealthChecker(metrics MetricsCollector, logger Logger, checks ...*health.HealthCheck) *health.HealthChecker {
	checker := health.NewHealthChecker("keyring-vault", Version, metrics)
	for i, check := range checks {
		if err := checker.RegisterCheck(check); err != nil {
			logger.Error("Health check #%d not registered: %v", i, err)
		}
	}
	return checker
}
