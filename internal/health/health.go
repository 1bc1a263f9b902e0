package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hengadev/vaultkeyring/internal/monitoring"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	// StatusHealthy indicates the component is healthy
	StatusHealthy HealthStatus = "healthy"
	// StatusUnhealthy indicates the component is unhealthy
	StatusUnhealthy HealthStatus = "unhealthy"
	// StatusDegraded indicates the component is partially healthy
	StatusDegraded HealthStatus = "degraded"
	// StatusUnknown indicates the component status is unknown
	StatusUnknown HealthStatus = "unknown"
)

// HealthCheck represents a health check for a component
type HealthCheck struct {
	Name        string                                              `json:"name"`
	Description string                                              `json:"description"`
	CheckFunc   func(context.Context) (HealthStatus, string, error) `json:"-"`
	Timeout     time.Duration                                       `json:"timeout"`
	Critical    bool                                                `json:"critical"`
}

// HealthResult represents the result of a health check
type HealthResult struct {
	Name      string        `json:"name"`
	Status    HealthStatus  `json:"status"`
	Message   string        `json:"message,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
	Critical  bool          `json:"critical"`
}

// HealthReport represents the overall health of the keyring
type HealthReport struct {
	Status      HealthStatus             `json:"status"`
	Timestamp   time.Time                `json:"timestamp"`
	Duration    time.Duration            `json:"duration"`
	Version     string                   `json:"version,omitempty"`
	ServiceName string                   `json:"service_name,omitempty"`
	Results     map[string]*HealthResult `json:"results"`
	Summary     *HealthSummary           `json:"summary"`
}

// HealthSummary provides a summary of health check results
type HealthSummary struct {
	Total          int `json:"total"`
	Healthy        int `json:"healthy"`
	Unhealthy      int `json:"unhealthy"`
	Degraded       int `json:"degraded"`
	Unknown        int `json:"unknown"`
	CriticalFailed int `json:"critical_failed"`
}

// HealthChecker manages and executes health checks
type HealthChecker struct {
	checks      map[string]*HealthCheck
	mutex       sync.RWMutex
	version     string
	serviceName string
	timeout     time.Duration
	metrics     monitoring.MetricsCollector
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(serviceName, version string, metrics monitoring.MetricsCollector) *HealthChecker {
	if metrics == nil {
		metrics = &monitoring.NoOpMetricsCollector{}
	}
	return &HealthChecker{
		checks:      make(map[string]*HealthCheck),
		serviceName: serviceName,
		version:     version,
		timeout:     10 * time.Second,
		metrics:     metrics,
	}
}

// RegisterCheck registers a health check
func (hc *HealthChecker) RegisterCheck(check *HealthCheck) error {
	if check == nil {
		return fmt.Errorf("health check cannot be nil")
	}
	if check.Name == "" {
		return fmt.Errorf("health check name cannot be empty")
	}
	if check.CheckFunc == nil {
		return fmt.Errorf("health check function cannot be nil")
	}

	if check.Timeout == 0 {
		check.Timeout = hc.timeout
	}

	hc.mutex.Lock()
	defer hc.mutex.Unlock()

	hc.checks[check.Name] = check
	return nil
}

// CheckHealth executes all registered health checks concurrently
func (hc *HealthChecker) CheckHealth(ctx context.Context) *HealthReport {
	startTime := time.Now()

	hc.mutex.RLock()
	checks := make(map[string]*HealthCheck, len(hc.checks))
	for name, check := range hc.checks {
		checks[name] = check
	}
	hc.mutex.RUnlock()

	results := make(map[string]*HealthResult, len(checks))
	var wg sync.WaitGroup
	resultMutex := sync.Mutex{}

	for name, check := range checks {
		wg.Add(1)
		go func(name string, check *HealthCheck) {
			defer wg.Done()
			result := hc.executeCheck(ctx, name, check)

			resultMutex.Lock()
			results[name] = result
			resultMutex.Unlock()
		}(name, check)
	}

	wg.Wait()

	return &HealthReport{
		Status:      overallStatus(results),
		Timestamp:   time.Now(),
		Duration:    time.Since(startTime),
		Version:     hc.version,
		ServiceName: hc.serviceName,
		Results:     results,
		Summary:     summarize(results),
	}
}

func (hc *HealthChecker) executeCheck(ctx context.Context, name string, check *HealthCheck) *HealthResult {
	startTime := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, check.Timeout)
	defer cancel()

	result := &HealthResult{
		Name:      name,
		Timestamp: startTime,
		Critical:  check.Critical,
	}

	status, message, err := check.CheckFunc(checkCtx)
	result.Duration = time.Since(startTime)
	result.Status = status
	result.Message = message

	if err != nil {
		result.Error = err.Error()
		if result.Status == StatusHealthy {
			result.Status = StatusUnhealthy
		}
	}

	hc.metrics.IncrementCounter(monitoring.MetricHealthCheck, map[string]string{
		"check":  name,
		"status": string(result.Status),
	})
	return result
}

func summarize(results map[string]*HealthResult) *HealthSummary {
	summary := &HealthSummary{}

	for _, result := range results {
		summary.Total++
		switch result.Status {
		case StatusHealthy:
			summary.Healthy++
		case StatusUnhealthy:
			summary.Unhealthy++
			if result.Critical {
				summary.CriticalFailed++
			}
		case StatusDegraded:
			summary.Degraded++
		case StatusUnknown:
			summary.Unknown++
		}
	}

	return summary
}

// overallStatus is unhealthy when a critical check failed, degraded when any
// other check is not healthy.
func overallStatus(results map[string]*HealthResult) HealthStatus {
	if len(results) == 0 {
		return StatusUnknown
	}

	hasUnhealthy := false
	hasDegraded := false
	hasCriticalFailures := false

	for _, result := range results {
		switch result.Status {
		case StatusUnhealthy:
			hasUnhealthy = true
			if result.Critical {
				hasCriticalFailures = true
			}
		case StatusDegraded:
			hasDegraded = true
		case StatusUnknown:
			if result.Critical {
				hasCriticalFailures = true
			}
		}
	}

	if hasCriticalFailures {
		return StatusUnhealthy
	}
	if hasUnhealthy || hasDegraded {
		return StatusDegraded
	}
	return StatusHealthy
}

// HealthEndpoint serves health reports over HTTP
type HealthEndpoint struct {
	checker *HealthChecker
	mux     *http.ServeMux
}

// NewHealthEndpoint creates a new health endpoint with /health, /health/live
// and /health/ready routes
func NewHealthEndpoint(checker *HealthChecker) *HealthEndpoint {
	endpoint := &HealthEndpoint{
		checker: checker,
		mux:     http.NewServeMux(),
	}
	endpoint.mux.HandleFunc("/health", endpoint.handleHealth)
	endpoint.mux.HandleFunc("/health/live", endpoint.handleLiveness)
	endpoint.mux.HandleFunc("/health/ready", endpoint.handleReadiness)
	return endpoint
}

// ServeHTTP implements http.Handler
func (he *HealthEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	he.mux.ServeHTTP(w, r)
}

func (he *HealthEndpoint) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	report := he.checker.CheckHealth(r.Context())
	status := http.StatusOK
	if report.Status == StatusUnhealthy || report.Status == StatusUnknown {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (he *HealthEndpoint) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    StatusHealthy,
		"timestamp": time.Now(),
	})
}

// handleReadiness reports ready only when every critical check is healthy
func (he *HealthEndpoint) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	report := he.checker.CheckHealth(r.Context())
	var failing []string
	for name, result := range report.Results {
		if result.Critical && result.Status != StatusHealthy {
			failing = append(failing, name)
		}
	}

	response := map[string]any{
		"timestamp": time.Now(),
		"status":    "ready",
	}
	status := http.StatusOK
	if len(failing) > 0 {
		response["status"] = "not_ready"
		response["failing"] = strings.Join(failing, ",")
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
