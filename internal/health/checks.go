package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/buger/jsonparser"

	"github.com/hengadev/vaultkeyring/internal/reliability"
	"github.com/hengadev/vaultkeyring/internal/store"
)

// Vault sys/health status codes other than 200.
const (
	statusStandby        = http.StatusTooManyRequests
	statusDRSecondary    = 472
	statusPerfStandby    = 473
	statusNotInitialized = http.StatusNotImplemented
	statusSealed         = http.StatusServiceUnavailable
)

// VaultHealthCheck asks Vault's sys/health endpoint whether the server is
// initialized, unsealed and active. Standby nodes are reported as degraded.
func VaultHealthCheck(transport store.Transport) *HealthCheck {
	return &HealthCheck{
		Name:        "vault",
		Description: "Vault server is initialized, unsealed and active",
		Critical:    true,
		Timeout:     5 * time.Second,
		CheckFunc: func(ctx context.Context) (HealthStatus, string, error) {
			resp, err := transport.Do(ctx, store.Request{Method: http.MethodGet, Path: "sys/health"})
			if err != nil {
				return StatusUnhealthy, "", err
			}

			message := describeServer(resp.Body)
			switch resp.StatusCode {
			case http.StatusOK:
				return StatusHealthy, message, nil
			case statusStandby, statusPerfStandby, statusDRSecondary:
				return StatusDegraded, "standby node: " + message, nil
			case statusSealed:
				return StatusUnhealthy, message, fmt.Errorf("vault is sealed")
			case statusNotInitialized:
				return StatusUnhealthy, message, fmt.Errorf("vault is not initialized")
			default:
				return StatusUnknown, message, fmt.Errorf("unexpected sys/health status %d", resp.StatusCode)
			}
		},
	}
}

func describeServer(body []byte) string {
	version, err := jsonparser.GetString(body, "version")
	if err != nil {
		return ""
	}
	if cluster, err := jsonparser.GetString(body, "cluster_name"); err == nil && cluster != "" {
		return fmt.Sprintf("vault %s (%s)", version, cluster)
	}
	return "vault " + version
}

// KeyListCheck verifies that the keys under the mount point can be listed
// with the configured token.
func KeyListCheck(list func(context.Context) (int, error)) *HealthCheck {
	return &HealthCheck{
		Name:        "keys",
		Description: "Keys under the mount point can be listed",
		Critical:    true,
		Timeout:     10 * time.Second,
		CheckFunc: func(ctx context.Context) (HealthStatus, string, error) {
			n, err := list(ctx)
			if err != nil {
				return StatusUnhealthy, "", err
			}
			return StatusHealthy, fmt.Sprintf("%d keys", n), nil
		},
	}
}

// CircuitBreakerHealthCheck reports an open breaker as degraded.
func CircuitBreakerHealthCheck(breaker *reliability.CircuitBreaker) *HealthCheck {
	return &HealthCheck{
		Name:        "circuit_breaker",
		Description: "Requests to Vault are not being short-circuited",
		Critical:    false,
		Timeout:     time.Second,
		CheckFunc: func(ctx context.Context) (HealthStatus, string, error) {
			stats := breaker.Stats()
			switch stats.State {
			case reliability.StateClosed.String():
				return StatusHealthy, stats.State, nil
			case reliability.StateHalfOpen.String():
				return StatusDegraded, stats.State, nil
			default:
				return StatusDegraded, stats.State, fmt.Errorf("circuit breaker is open (failures: %d)", stats.FailureCount)
			}
		},
	}
}
