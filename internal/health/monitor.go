// Package health runs the background health checks against backend
// services. Probe outcomes feed the same circuit breaker recording path as
// live dispatches, so an idle backend can still recover its breaker.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"harbormaster/internal/breaker"
	"harbormaster/internal/registry"
	"harbormaster/pkg/logging"
	"harbormaster/pkg/monitoring"
)

const probeTimeout = 5 * time.Second

// Result is the last probe outcome for one backend.
type Result struct {
	Status       string        `json:"status"`
	Available    bool          `json:"available"`
	ResponseTime time.Duration `json:"response_time_ms"`
	CheckedAt    time.Time     `json:"checked_at"`
}

// Monitor probes every registered backend on a fixed interval.
type Monitor struct {
	registry *registry.Registry
	breakers *breaker.Set
	client   *http.Client
	interval time.Duration
	logger   logging.Logger

	mu      sync.RWMutex
	results map[string]Result
}

// NewMonitor creates a monitor. interval <= 0 defaults to 30s.
func NewMonitor(reg *registry.Registry, breakers *breaker.Set, interval time.Duration, logger logging.Logger) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		registry: reg,
		breakers: breakers,
		client:   &http.Client{Timeout: probeTimeout},
		interval: interval,
		logger:   logger,
		results:  make(map[string]Result),
	}
}

// Start runs the probe loop until ctx is cancelled. An immediate sweep runs
// before the first tick so results are available shortly after boot.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		m.checkAll(ctx)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.checkAll(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (m *Monitor) checkAll(ctx context.Context) {
	var wg sync.WaitGroup
	for name, svc := range m.registry.All() {
		wg.Add(1)
		go func(name string, svc *registry.ServiceConfig) {
			defer wg.Done()
			result := m.probe(ctx, svc)

			m.mu.Lock()
			m.results[name] = result
			m.mu.Unlock()

			b := m.breakers.Get(name)
			if result.Available {
				b.RecordSuccess()
			} else {
				b.RecordFailure()
				if m.logger != nil {
					m.logger.WithFields(logging.Fields{
						"service": name,
						"status":  result.Status,
					}).Warn("Backend health check failed")
				}
			}
		}(name, svc)
	}
	wg.Wait()
}

func (m *Monitor) probe(ctx context.Context, svc *registry.ServiceConfig) Result {
	start := time.Now()

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, svc.BaseURL+svc.HealthPath, nil)
	if err != nil {
		return Result{Status: monitoring.StatusUnhealthy, CheckedAt: start}
	}

	resp, err := m.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return Result{
			Status:       monitoring.StatusUnhealthy,
			ResponseTime: elapsed,
			CheckedAt:    start,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return Result{
			Status:       monitoring.StatusUnhealthy,
			ResponseTime: elapsed,
			CheckedAt:    start,
		}
	}

	return Result{
		Status:       monitoring.StatusHealthy,
		Available:    true,
		ResponseTime: elapsed,
		CheckedAt:    start,
	}
}

// Results returns the last probe outcome per service.
func (m *Monitor) Results() map[string]Result {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Result, len(m.results))
	for name, r := range m.results {
		out[name] = r
	}
	return out
}
