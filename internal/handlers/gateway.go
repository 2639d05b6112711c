// Package handlers serves the gateway's own management endpoints: backend
// health, tier catalog, aggregate metrics, redacted config, and circuit
// breaker resets.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"harbormaster/internal/breaker"
	"harbormaster/internal/health"
	"harbormaster/internal/metrics"
	"harbormaster/internal/ratelimit"
	"harbormaster/internal/registry"
	"harbormaster/internal/tiers"
	"harbormaster/pkg/logging"
	"harbormaster/pkg/monitoring"
	"harbormaster/pkg/version"
)

// Handlers exposes the management API.
type Handlers struct {
	registry *registry.Registry
	policy   *tiers.Policy
	limiter  *ratelimit.Limiter
	breakers *breaker.Set
	recorder *metrics.Recorder
	monitor  *health.Monitor
	logger   logging.Logger
}

// New creates the management handlers.
func New(reg *registry.Registry, policy *tiers.Policy, limiter *ratelimit.Limiter,
	breakers *breaker.Set, recorder *metrics.Recorder, monitor *health.Monitor,
	logger logging.Logger) *Handlers {
	return &Handlers{
		registry: reg,
		policy:   policy,
		limiter:  limiter,
		breakers: breakers,
		recorder: recorder,
		monitor:  monitor,
		logger:   logger,
	}
}

// Register mounts the management routes on the router. The /gateway group
// carries the per-IP guard; /health/services sits next to the liveness probe.
func (h *Handlers) Register(router *gin.Engine, guard gin.HandlerFunc) {
	router.GET("/health/services", h.ServicesHealth)

	gw := router.Group("/gateway")
	if guard != nil {
		gw.Use(guard)
	}
	gw.GET("/tiers", h.ListTiers)
	gw.GET("/tier/:name", h.GetTier)
	gw.GET("/metrics", h.Metrics)
	gw.GET("/config", h.Config)
	gw.POST("/circuit-breaker/:service/reset", h.ResetBreaker)
}

// ServicesHealth reports the last probe result and live breaker state per
// backend. Overall status degrades as soon as any backend is unavailable.
func (h *Handlers) ServicesHealth(c *gin.Context) {
	results := h.monitor.Results()
	states := h.breakers.States()

	overall := monitoring.StatusHealthy
	services := make(map[string]gin.H, len(results))
	for name, r := range results {
		state, ok := states[name]
		if !ok {
			state = breaker.StateClosed
		}
		if !r.Available {
			overall = monitoring.StatusDegraded
		}
		services[name] = gin.H{
			"status":           r.Status,
			"available":        r.Available,
			"response_time_ms": r.ResponseTime.Milliseconds(),
			"checked_at":       r.CheckedAt.UTC().Format(time.RFC3339),
			"circuit_state":    state.String(),
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    overall,
		"services":  services,
		"timestamp": time.Now().Unix(),
	})
}

// ListTiers returns the tier catalog, cheapest first.
func (h *Handlers) ListTiers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tiers": h.policy.List()})
}

// GetTier returns one tier by ID.
func (h *Handlers) GetTier(c *gin.Context) {
	name := c.Param("name")
	tier, ok := h.policy.Get(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "tier_not_found",
			"message": "no such tier",
			"tier":    name,
		})
		return
	}
	c.JSON(http.StatusOK, tier)
}

// Metrics returns the aggregate dispatch counters plus breaker states.
func (h *Handlers) Metrics(c *gin.Context) {
	states := h.breakers.States()
	circuits := make(map[string]string, len(states))
	for name, state := range states {
		circuits[name] = state.String()
	}

	c.JSON(http.StatusOK, gin.H{
		"metrics":          h.recorder.Snapshot(),
		"circuit_breakers": circuits,
		"timestamp":        time.Now().Unix(),
	})
}

// Config returns the routing and limit tables with secrets omitted.
func (h *Handlers) Config(c *gin.Context) {
	services := make(map[string]gin.H)
	for name, svc := range h.registry.All() {
		services[name] = gin.H{
			"route_prefixes":  svc.RoutePrefixes,
			"public_prefixes": svc.PublicPrefixes,
			"timeout":         svc.Timeout.String(),
			"multi_tenant":    svc.MultiTenant,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"version":     version.GetInfo(),
		"services":    services,
		"tiers":       h.policy.List(),
		"rate_limits": h.limiter.Budgets(),
	})
}

// ResetBreaker forces a service's breaker back to closed.
func (h *Handlers) ResetBreaker(c *gin.Context) {
	name := c.Param("service")
	if _, ok := h.registry.Get(name); !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "service_not_found",
			"message": "no such service",
			"service": name,
		})
		return
	}

	h.breakers.Reset(name)
	h.logger.WithFields(logging.Fields{
		"service":   name,
		"client_ip": c.ClientIP(),
	}).Info("Circuit breaker reset via management API")

	c.JSON(http.StatusOK, gin.H{
		"service":       name,
		"circuit_state": breaker.StateClosed.String(),
	})
}
