// Package gwerrors defines the gateway's dispatch error taxonomy and its
// JSON rendering. Every dispatch failure is converted to one of these at
// the boundary; nothing escapes to the transport layer unhandled.
package gwerrors

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"harbormaster/internal/tiers"
)

// Error codes in dispatch responses.
const (
	CodeRouteNotFound      = "route_not_found"
	CodeAuthRequired       = "authentication_required"
	CodeTierDenied         = "tier_denied"
	CodeRateLimited        = "rate_limited"
	CodeCircuitOpen        = "circuit_open"
	CodeBackendTimeout     = "backend_timeout"
	CodeBackendUnreachable = "backend_unreachable"
)

// Error is a dispatch failure with its HTTP rendering.
type Error struct {
	Status  int
	Code    string
	Message string
	Details gin.H
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// Write renders the error as the response body.
func (e *Error) Write(c *gin.Context) {
	body := gin.H{
		"error":   e.Code,
		"message": e.Message,
	}
	for k, v := range e.Details {
		body[k] = v
	}
	c.AbortWithStatusJSON(e.Status, body)
}

// RouteNotFound means no service route prefix matched the path.
func RouteNotFound(path string) *Error {
	return &Error{
		Status:  http.StatusNotFound,
		Code:    CodeRouteNotFound,
		Message: "no service is configured for this path",
		Details: gin.H{"path": path},
	}
}

// AuthenticationRequired means the route is not public and the caller has
// no verified identity.
func AuthenticationRequired() *Error {
	return &Error{
		Status:  http.StatusUnauthorized,
		Code:    CodeAuthRequired,
		Message: "this route requires a verified identity",
	}
}

// TierDenied carries the structured denial with the upgrade hint.
func TierDenied(d *tiers.Denial) *Error {
	details := gin.H{
		"tier":    d.Tier,
		"service": d.Service,
	}
	if d.UpgradeTo != "" {
		details["upgrade_to"] = d.UpgradeTo
	}
	return &Error{
		Status:  http.StatusForbidden,
		Code:    CodeTierDenied,
		Message: d.Reason,
		Details: details,
	}
}

// RateLimited carries the retry hint; the Retry-After header is set too.
func RateLimited(retryAfterSeconds int) *Error {
	return &Error{
		Status:  http.StatusTooManyRequests,
		Code:    CodeRateLimited,
		Message: "too many requests, retry after the indicated delay",
		Details: gin.H{"retry_after": retryAfterSeconds},
	}
}

// CircuitOpen means the breaker short-circuited the call.
func CircuitOpen(service string) *Error {
	return &Error{
		Status:  http.StatusServiceUnavailable,
		Code:    CodeCircuitOpen,
		Message: "service is temporarily unavailable, please retry later",
		Details: gin.H{"service": service},
	}
}

// BackendTimeout means the backend exceeded its configured timeout.
func BackendTimeout(service string) *Error {
	return &Error{
		Status:  http.StatusGatewayTimeout,
		Code:    CodeBackendTimeout,
		Message: "the backend service did not respond in time",
		Details: gin.H{"service": service},
	}
}

// BackendUnreachable means the connection itself failed.
func BackendUnreachable(service string) *Error {
	return &Error{
		Status:  http.StatusServiceUnavailable,
		Code:    CodeBackendUnreachable,
		Message: "the backend service could not be reached",
		Details: gin.H{"service": service},
	}
}
