// Package tenant derives the tenant and subscription tier for each inbound
// request. Resolution never fails: requests without an identifiable tenant
// fall back to the default tenant on the lowest tier so they stay routable.
package tenant

import (
	"net"
	"net/http"
	"strings"

	"harbormaster/internal/tiers"
	"harbormaster/pkg/auth"
	"harbormaster/pkg/logging"
)

// DefaultTenant is used when no resolution source identifies a tenant.
const DefaultTenant = "default"

// Context is the per-request tenant identity. Created once at request
// entry, read-only downstream, never persisted.
type Context struct {
	TenantID      string
	Tier          string
	RequestID     string
	UserID        string
	Role          string
	Authenticated bool
}

// Subdomain labels that never name a tenant.
var reservedSubdomains = map[string]bool{
	"www":       true,
	"api":       true,
	"admin":     true,
	"localhost": true,
}

// Resolver extracts tenant context from requests.
type Resolver struct {
	jwtSecret []byte
	policy    *tiers.Policy
	logger    logging.Logger
}

// NewResolver creates a resolver. jwtSecret is only used to read claims
// from bearer tokens; token issuance lives in the auth service.
func NewResolver(jwtSecret []byte, policy *tiers.Policy, logger logging.Logger) *Resolver {
	return &Resolver{
		jwtSecret: jwtSecret,
		policy:    policy,
		logger:    logger,
	}
}

// Resolve derives the tenant context for a request. Precedence: explicit
// header, host subdomain, verified bearer claims, query parameter, default.
// Tier comes from the token's role claim when present, lowest tier otherwise.
func (r *Resolver) Resolve(req *http.Request) Context {
	tctx := Context{
		TenantID: DefaultTenant,
		Tier:     r.policy.Lowest(),
	}

	// Bearer claims also drive tier and identity, so parse them regardless
	// of which source wins the tenant ID. Parse failures are swallowed;
	// an unverifiable token just means an anonymous caller.
	claims := r.bearerClaims(req)
	if claims != nil {
		tctx.UserID = claims.UserID
		tctx.Role = claims.Role
		tctx.Tier = tiers.RoleToTier(claims.Role)
		tctx.Authenticated = true
	}

	switch {
	case req.Header.Get("X-Tenant-ID") != "":
		tctx.TenantID = req.Header.Get("X-Tenant-ID")
	case subdomainTenant(req.Host) != "":
		tctx.TenantID = subdomainTenant(req.Host)
	case claims != nil && claims.TenantID != "":
		tctx.TenantID = claims.TenantID
	case req.URL.Query().Get("tenant") != "":
		tctx.TenantID = req.URL.Query().Get("tenant")
	}

	return tctx
}

func (r *Resolver) bearerClaims(req *http.Request) *auth.Claims {
	header := req.Header.Get("Authorization")
	if header == "" {
		return nil
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil
	}

	claims, err := auth.ValidateJWT(parts[1], r.jwtSecret)
	if err != nil {
		if r.logger != nil {
			r.logger.WithError(err).Debug("Ignoring unverifiable bearer token")
		}
		return nil
	}
	return claims
}

// subdomainTenant extracts a tenant from the first host label. Hosts with
// fewer than three labels ("example.com", "localhost") have no subdomain.
func subdomainTenant(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	labels := strings.Split(host, ".")
	if len(labels) < 3 {
		return ""
	}
	first := strings.ToLower(labels[0])
	if first == "" || reservedSubdomains[first] {
		return ""
	}
	return first
}
