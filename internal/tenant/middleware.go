package tenant

import (
	"github.com/gin-gonic/gin"

	"harbormaster/pkg/ctxkeys"
)

// Middleware resolves the tenant context, stores it for downstream
// handlers, and echoes the identity headers on the response so callers can
// correlate requests.
func Middleware(resolver *Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		tctx := resolver.Resolve(c.Request)
		tctx.RequestID = c.GetString(string(ctxkeys.KeyRequestID))

		c.Set(string(ctxkeys.KeyTenantID), tctx.TenantID)
		c.Set(string(ctxkeys.KeyUserTier), tctx.Tier)
		c.Set(string(ctxkeys.KeyUserID), tctx.UserID)
		c.Set(string(ctxkeys.KeyRole), tctx.Role)
		c.Set(string(ctxkeys.KeyAuthenticated), tctx.Authenticated)

		c.Header("X-Tenant-ID", tctx.TenantID)
		c.Header("X-User-Tier", tctx.Tier)
		c.Header("X-Request-ID", tctx.RequestID)

		c.Next()
	}
}

// FromGin reassembles the tenant context stored by Middleware.
func FromGin(c *gin.Context) Context {
	return Context{
		TenantID:      c.GetString(string(ctxkeys.KeyTenantID)),
		Tier:          c.GetString(string(ctxkeys.KeyUserTier)),
		RequestID:     c.GetString(string(ctxkeys.KeyRequestID)),
		UserID:        c.GetString(string(ctxkeys.KeyUserID)),
		Role:          c.GetString(string(ctxkeys.KeyRole)),
		Authenticated: c.GetBool(string(ctxkeys.KeyAuthenticated)),
	}
}
