package tenant

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"harbormaster/internal/tiers"
	"harbormaster/pkg/auth"
)

var testSecret = []byte("test-secret")

func testResolver(t *testing.T) *Resolver {
	t.Helper()
	policy, err := tiers.NewPolicy([]tiers.TierConfig{
		{ID: tiers.TierFree, Price: 0, RateBudget: tiers.RateBudget{Requests: 60, WindowSeconds: 60}},
		{ID: tiers.TierGrowth, Price: 49, RateBudget: tiers.RateBudget{Requests: 300, WindowSeconds: 60}},
		{ID: tiers.TierEnterprise, Price: 199, RateBudget: tiers.RateBudget{Requests: 1200, WindowSeconds: 60}},
	})
	if err != nil {
		t.Fatalf("NewPolicy failed: %v", err)
	}
	return NewResolver(testSecret, policy, nil)
}

func bearerRequest(t *testing.T, tenantID, role string) *http.Request {
	t.Helper()
	token, err := auth.GenerateJWT("user-1", tenantID, "u@example.com", role, testSecret, 15*time.Minute)
	if err != nil {
		t.Fatalf("GenerateJWT failed: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/crm/leads", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestResolveDefault(t *testing.T) {
	r := testResolver(t)
	req := httptest.NewRequest(http.MethodGet, "/cms/pages", nil)

	tctx := r.Resolve(req)
	if tctx.TenantID != DefaultTenant {
		t.Errorf("TenantID = %s, want %s", tctx.TenantID, DefaultTenant)
	}
	if tctx.Tier != tiers.TierFree {
		t.Errorf("Tier = %s, want lowest tier", tctx.Tier)
	}
	if tctx.Authenticated {
		t.Error("anonymous request should not be authenticated")
	}
}

func TestResolveHeaderWinsOverSubdomain(t *testing.T) {
	r := testResolver(t)
	req := httptest.NewRequest(http.MethodGet, "/cms/pages", nil)
	req.Host = "acme.example.com"
	req.Header.Set("X-Tenant-ID", "globex")

	if tctx := r.Resolve(req); tctx.TenantID != "globex" {
		t.Errorf("TenantID = %s, want header value globex", tctx.TenantID)
	}
}

func TestResolveSubdomain(t *testing.T) {
	r := testResolver(t)

	tests := []struct {
		host string
		want string
	}{
		{"acme.example.com", "acme"},
		{"acme.example.com:8080", "acme"},
		{"Acme.example.com", "acme"},
		{"www.example.com", DefaultTenant},
		{"api.example.com", DefaultTenant},
		{"admin.example.com", DefaultTenant},
		{"example.com", DefaultTenant},
		{"localhost:8080", DefaultTenant},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/cms/pages", nil)
		req.Host = tt.host
		if tctx := r.Resolve(req); tctx.TenantID != tt.want {
			t.Errorf("host %q: TenantID = %s, want %s", tt.host, tctx.TenantID, tt.want)
		}
	}
}

func TestResolveBearerClaims(t *testing.T) {
	r := testResolver(t)
	req := bearerRequest(t, "acme", "manager")

	tctx := r.Resolve(req)
	if tctx.TenantID != "acme" {
		t.Errorf("TenantID = %s, want acme", tctx.TenantID)
	}
	if tctx.Tier != tiers.TierGrowth {
		t.Errorf("Tier = %s, want %s for manager role", tctx.Tier, tiers.TierGrowth)
	}
	if tctx.UserID != "user-1" {
		t.Errorf("UserID = %s, want user-1", tctx.UserID)
	}
	if !tctx.Authenticated {
		t.Error("verified bearer should authenticate the caller")
	}
}

func TestResolveBadTokenSwallowed(t *testing.T) {
	r := testResolver(t)
	req := httptest.NewRequest(http.MethodGet, "/cms/pages", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")

	tctx := r.Resolve(req)
	if tctx.Authenticated {
		t.Error("unverifiable token must not authenticate")
	}
	if tctx.TenantID != DefaultTenant {
		t.Errorf("TenantID = %s, want default", tctx.TenantID)
	}
}

func TestResolveClaimsDriveTierEvenWhenHeaderWinsTenant(t *testing.T) {
	r := testResolver(t)
	req := bearerRequest(t, "acme", "super_admin")
	req.Header.Set("X-Tenant-ID", "globex")

	tctx := r.Resolve(req)
	if tctx.TenantID != "globex" {
		t.Errorf("TenantID = %s, want globex", tctx.TenantID)
	}
	if tctx.Tier != tiers.TierEnterprise {
		t.Errorf("Tier = %s, want %s", tctx.Tier, tiers.TierEnterprise)
	}
}

func TestResolveQueryFallback(t *testing.T) {
	r := testResolver(t)
	req := httptest.NewRequest(http.MethodGet, "/cms/pages?tenant=acme", nil)

	if tctx := r.Resolve(req); tctx.TenantID != "acme" {
		t.Errorf("TenantID = %s, want acme from query", tctx.TenantID)
	}
}
