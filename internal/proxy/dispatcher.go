// Package proxy implements the request dispatch pipeline: resolve the
// target service, apply rate limits and tier policy, gate on the circuit
// breaker, and forward the request with the gateway identity headers.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"harbormaster/internal/breaker"
	"harbormaster/internal/gwerrors"
	"harbormaster/internal/metrics"
	"harbormaster/internal/ratelimit"
	"harbormaster/internal/registry"
	"harbormaster/internal/tenant"
	"harbormaster/internal/tiers"
	"harbormaster/pkg/auth"
	"harbormaster/pkg/clients"
	"harbormaster/pkg/logging"
	"harbormaster/pkg/version"
)

// ServiceName identifies the gateway in service-to-service tokens.
const ServiceName = "harbormaster"

// statusClientClosed is recorded when the caller went away mid-dispatch.
// Nginx convention; never actually written to the wire.
const statusClientClosed = 499

// Paths reserved for the gateway's own endpoints; never dispatched.
var reservedPrefixes = []string{"/health", "/metrics", "/gateway"}

// Config holds dispatcher wiring.
type Config struct {
	ServiceAuthSecret []byte
	ServiceTokenTTL   time.Duration
}

// Dispatcher forwards inbound requests to backend services.
type Dispatcher struct {
	registry *registry.Registry
	policy   *tiers.Policy
	limiter  *ratelimit.Limiter
	breakers *breaker.Set
	recorder *metrics.Recorder
	client   *http.Client
	cfg      Config
	logger   logging.Logger
}

// New creates a dispatcher. The shared HTTP client carries the capped
// transport; per-request deadlines come from each service's timeout.
func New(reg *registry.Registry, policy *tiers.Policy, limiter *ratelimit.Limiter,
	breakers *breaker.Set, recorder *metrics.Recorder, cfg Config, logger logging.Logger) *Dispatcher {
	if cfg.ServiceTokenTTL <= 0 {
		cfg.ServiceTokenTTL = time.Minute
	}
	return &Dispatcher{
		registry: reg,
		policy:   policy,
		limiter:  limiter,
		breakers: breakers,
		recorder: recorder,
		client:   &http.Client{Transport: clients.DefaultTransport()},
		cfg:      cfg,
		logger:   logger,
	}
}

// Handler returns the gin handler for dynamic dispatch, mounted as the
// NoRoute fallback behind the gateway's own endpoints.
func (d *Dispatcher) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		d.dispatch(c)
	}
}

func (d *Dispatcher) dispatch(c *gin.Context) {
	start := time.Now()
	tctx := tenant.FromGin(c)

	reqPath := normalizePath(c.Request.URL.Path)
	if isReservedPath(reqPath) {
		gwerrors.RouteNotFound(reqPath).Write(c)
		return
	}

	svc, ok := d.registry.Resolve(reqPath)
	if !ok {
		gwerrors.RouteNotFound(reqPath).Write(c)
		return
	}

	decision := d.limiter.Allow(c.Request.Context(), d.limitClass(svc, reqPath, tctx.Tier), d.clientKey(c, tctx))
	c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
	if !decision.Allowed {
		retryAfter := int(decision.RetryAfter.Seconds()) + 1
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		gwerrors.RateLimited(retryAfter).Write(c)
		d.record(svc.Name, http.StatusTooManyRequests, start, tctx)
		return
	}

	if !svc.IsPublicPath(reqPath) && !tctx.Authenticated {
		gwerrors.AuthenticationRequired().Write(c)
		d.record(svc.Name, http.StatusUnauthorized, start, tctx)
		return
	}

	if denial := d.policy.Authorize(tctx.Tier, svc.Name, reqPath); denial != nil {
		gwerrors.TierDenied(denial).Write(c)
		d.record(svc.Name, http.StatusForbidden, start, tctx)
		return
	}

	br := d.breakers.Get(svc.Name)
	if br.State() == breaker.StateOpen {
		gwerrors.CircuitOpen(svc.Name).Write(c)
		d.record(svc.Name, http.StatusServiceUnavailable, start, tctx)
		return
	}

	d.forward(c, svc, br, tctx, reqPath, start)
}

func (d *Dispatcher) forward(c *gin.Context, svc *registry.ServiceConfig, br *breaker.Breaker,
	tctx tenant.Context, reqPath string, start time.Time) {

	upstreamCtx, cancel := context.WithTimeout(c.Request.Context(), svc.Timeout)
	defer cancel()

	req, err := d.buildUpstreamRequest(upstreamCtx, c, svc, tctx, reqPath)
	if err != nil {
		d.logger.WithError(err).WithField("service", svc.Name).Error("Failed to build upstream request")
		gwerrors.BackendUnreachable(svc.Name).Write(c)
		d.record(svc.Name, http.StatusServiceUnavailable, start, tctx)
		return
	}

	resp, err := d.client.Do(req)
	if err != nil {
		// A vanished client is a non-event: cancel silently and do not
		// penalize the backend's breaker for it.
		if c.Request.Context().Err() != nil {
			d.logger.WithFields(logging.Fields{
				"service": svc.Name,
				"path":    reqPath,
			}).Debug("Client disconnected during dispatch")
			c.Abort()
			d.record(svc.Name, statusClientClosed, start, tctx)
			return
		}

		br.RecordFailure()
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			gwerrors.BackendTimeout(svc.Name).Write(c)
			d.record(svc.Name, http.StatusGatewayTimeout, start, tctx)
			return
		}
		d.logger.WithError(err).WithField("service", svc.Name).Warn("Backend unreachable")
		gwerrors.BackendUnreachable(svc.Name).Write(c)
		d.record(svc.Name, http.StatusServiceUnavailable, start, tctx)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		br.RecordFailure()
	} else {
		br.RecordSuccess()
	}

	d.writeResponse(c, svc, resp, start)
	d.record(svc.Name, resp.StatusCode, start, tctx)
}

func (d *Dispatcher) buildUpstreamRequest(ctx context.Context, c *gin.Context,
	svc *registry.ServiceConfig, tctx tenant.Context, reqPath string) (*http.Request, error) {

	target := svc.BaseURL + reqPath
	req, err := http.NewRequestWithContext(ctx, c.Request.Method, target, c.Request.Body)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", svc.Name, err)
	}
	req.URL.RawQuery = c.Request.URL.RawQuery
	req.ContentLength = c.Request.ContentLength

	for key, values := range c.Request.Header {
		if isHopByHopHeader(key) {
			continue
		}
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	req.Header.Set("X-Request-ID", tctx.RequestID)
	req.Header.Set("X-Real-IP", c.ClientIP())
	if req.Header.Get("X-Forwarded-For") == "" {
		req.Header.Set("X-Forwarded-For", c.ClientIP())
	}
	if svc.MultiTenant {
		req.Header.Set("X-Tenant-ID", tctx.TenantID)
		req.Header.Set("X-User-Tier", tctx.Tier)
	}

	if len(d.cfg.ServiceAuthSecret) > 0 {
		token, err := auth.GenerateServiceToken(ServiceName, svc.Name, d.cfg.ServiceAuthSecret, d.cfg.ServiceTokenTTL)
		if err != nil {
			return nil, fmt.Errorf("issue service token for %s: %w", svc.Name, err)
		}
		req.Header.Set("x-service-auth", token)
	}

	return req, nil
}

func (d *Dispatcher) writeResponse(c *gin.Context, svc *registry.ServiceConfig, resp *http.Response, start time.Time) {
	for key, values := range resp.Header {
		if isHopByHopHeader(key) {
			continue
		}
		for _, value := range values {
			c.Header(key, value)
		}
	}

	c.Header("x-gateway-service", svc.Name)
	c.Header("x-gateway-timestamp", time.Now().UTC().Format(time.RFC3339))
	c.Header("x-gateway-version", version.Version)
	c.Header("x-response-time", fmt.Sprintf("%dms", time.Since(start).Milliseconds()))

	c.Status(resp.StatusCode)
	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		d.logger.WithError(err).WithField("service", svc.Name).Debug("Failed to copy response body")
	}
}

// limitClass derives the rate-limit class from the matched route: a
// registered path class (auth, webhooks), a per-service override, the
// tier's own budget, or the default.
func (d *Dispatcher) limitClass(svc *registry.ServiceConfig, reqPath, tier string) string {
	segment := topSegment(reqPath)
	switch {
	case segment != "" && d.limiter.HasClass(segment):
		return segment
	case d.limiter.HasClass(svc.Name):
		return svc.Name
	case d.limiter.HasClass("tier:" + tier):
		return "tier:" + tier
	default:
		return ratelimit.DefaultClass
	}
}

// clientKey identifies the caller for rate limiting: the tenant when one
// is known, the source address otherwise.
func (d *Dispatcher) clientKey(c *gin.Context, tctx tenant.Context) string {
	if tctx.TenantID != "" && tctx.TenantID != tenant.DefaultTenant {
		return tctx.TenantID
	}
	return "ip:" + c.ClientIP()
}

func (d *Dispatcher) record(service string, status int, start time.Time, tctx tenant.Context) {
	d.recorder.Record(metrics.Sample{
		Service:    service,
		StatusCode: status,
		Latency:    time.Since(start),
		TenantID:   tctx.TenantID,
		Tier:       tctx.Tier,
	})
}

// topSegment returns the first path segment, "/auth/login" -> "auth".
func topSegment(p string) string {
	p = strings.TrimPrefix(p, "/")
	if idx := strings.IndexByte(p, '/'); idx >= 0 {
		return p[:idx]
	}
	return p
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func isReservedPath(p string) bool {
	for _, prefix := range reservedPrefixes {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}

// isHopByHopHeader checks if a header must not be forwarded end to end.
func isHopByHopHeader(header string) bool {
	switch strings.ToLower(header) {
	case "connection", "keep-alive", "proxy-authenticate", "proxy-authorization",
		"te", "trailers", "transfer-encoding", "upgrade", "host", "content-length":
		return true
	}
	return false
}
