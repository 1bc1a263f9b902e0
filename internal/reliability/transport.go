package reliability

import (
	"context"
	"net/http"

	"github.com/hengadev/vaultkeyring/internal/monitoring"
	"github.com/hengadev/vaultkeyring/internal/store"
)

// Transport guards another store.Transport with a circuit breaker. Transport
// errors and 5xx responses count as failures; 4xx responses mean Vault is
// up and answering, so they count as successes.
type Transport struct {
	next    store.Transport
	breaker *CircuitBreaker
}

// NewTransport wraps next. State changes are logged and counted under
// "transport.circuit" tagged with the new state.
func NewTransport(next store.Transport, config CircuitBreakerConfig, logger monitoring.Logger, metrics monitoring.MetricsCollector) *Transport {
	if logger == nil {
		logger = monitoring.NopLogger{}
	}
	if metrics == nil {
		metrics = &monitoring.NoOpMetricsCollector{}
	}
	notify := config.OnStateChange
	config.OnStateChange = func(from, to CircuitState) {
		if to == StateOpen {
			logger.Warn("Vault circuit breaker %s -> %s, requests fail fast until the cooldown ends", from, to)
		} else {
			logger.Info("Vault circuit breaker %s -> %s", from, to)
		}
		metrics.IncrementCounter(monitoring.MetricCircuitState, map[string]string{"state": to.String()})
		if notify != nil {
			notify(from, to)
		}
	}
	return &Transport{next: next, breaker: NewCircuitBreaker(config)}
}

// Do implements store.Transport.
func (t *Transport) Do(ctx context.Context, req store.Request) (*store.Response, error) {
	var resp *store.Response
	err := t.breaker.Execute(ctx, func(ctx context.Context) (bool, error) {
		var err error
		resp, err = t.next.Do(ctx, req)
		if err != nil {
			return true, err
		}
		return resp.StatusCode >= http.StatusInternalServerError, nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Breaker returns the breaker guarding t.
func (t *Transport) Breaker() *CircuitBreaker {
	return t.breaker
}
