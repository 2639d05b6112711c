// Package ctxkeys defines typed context keys to avoid SA1029 lint warnings
// and prevent key collisions across packages.
package ctxkeys

// Key is a typed context key to prevent collisions.
type Key string

// Tenant context keys
const (
	KeyTenantID      Key = "tenant_id"
	KeyUserTier      Key = "user_tier"
	KeyUserID        Key = "user_id"
	KeyRole          Key = "role"
	KeyAuthenticated Key = "authenticated"
)

// Request context keys
const (
	KeyRequestID Key = "request_id"
)
