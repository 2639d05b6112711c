package tiers

import "testing"

func testPolicy(t *testing.T) *Policy {
	t.Helper()
	p, err := NewPolicy([]TierConfig{
		{
			ID:              "tier_3",
			DisplayName:     "Enterprise",
			Price:           199,
			AllowedServices: []string{"wagtail-cms", "crm-service", "vault-service"},
			AllowedRoutes:   []string{"*"},
			RateBudget:      RateBudget{Requests: 1200, WindowSeconds: 60},
			Features:        []string{"cms", "crm", "vault"},
		},
		{
			ID:              "tier_1",
			DisplayName:     "Starter",
			Price:           0,
			AllowedServices: []string{"wagtail-cms"},
			AllowedRoutes:   []string{"/cms/*"},
			RateBudget:      RateBudget{Requests: 60, WindowSeconds: 60},
			Features:        []string{"cms"},
		},
		{
			ID:              "tier_2",
			DisplayName:     "Growth",
			Price:           49,
			AllowedServices: []string{"wagtail-cms", "crm-service"},
			AllowedRoutes:   []string{"/cms/*", "/crm/*"},
			RateBudget:      RateBudget{Requests: 300, WindowSeconds: 60},
			Features:        []string{"cms", "crm"},
		},
	})
	if err != nil {
		t.Fatalf("NewPolicy failed: %v", err)
	}
	return p
}

func TestNewPolicyValidation(t *testing.T) {
	if _, err := NewPolicy(nil); err == nil {
		t.Error("expected error for empty tier table")
	}
	if _, err := NewPolicy([]TierConfig{{RateBudget: RateBudget{Requests: 1, WindowSeconds: 1}}}); err == nil {
		t.Error("expected error for missing tier id")
	}
	if _, err := NewPolicy([]TierConfig{{ID: "t"}}); err == nil {
		t.Error("expected error for missing rate budget")
	}
	if _, err := NewPolicy([]TierConfig{
		{ID: "t", RateBudget: RateBudget{Requests: 1, WindowSeconds: 1}},
		{ID: "t", RateBudget: RateBudget{Requests: 1, WindowSeconds: 1}},
	}); err == nil {
		t.Error("expected error for duplicate tier id")
	}
}

func TestPolicyOrdering(t *testing.T) {
	p := testPolicy(t)

	if p.Lowest() != "tier_1" {
		t.Errorf("Lowest() = %s, want tier_1", p.Lowest())
	}

	list := p.List()
	want := []string{"tier_1", "tier_2", "tier_3"}
	for i, id := range want {
		if list[i].ID != id {
			t.Errorf("List()[%d] = %s, want %s", i, list[i].ID, id)
		}
	}
}

func TestAuthorize(t *testing.T) {
	p := testPolicy(t)

	tests := []struct {
		name      string
		tier      string
		service   string
		path      string
		allowed   bool
		upgradeTo string
	}{
		{"starter cms allowed", "tier_1", "wagtail-cms", "/cms/pages", true, ""},
		{"starter crm denied", "tier_1", "crm-service", "/crm/leads", false, "tier_2"},
		{"starter vault denied", "tier_1", "vault-service", "/vault/keys", false, "tier_3"},
		{"growth crm allowed", "tier_2", "crm-service", "/crm/leads", true, ""},
		{"growth vault denied", "tier_2", "vault-service", "/vault/keys", false, "tier_3"},
		{"enterprise wildcard", "tier_3", "vault-service", "/vault/keys", true, ""},
		// Unknown tier gets the default allowance
		{"unknown tier as lowest", "tier_99", "crm-service", "/crm/leads", false, "tier_2"},
		{"unknown tier cms allowed", "tier_99", "wagtail-cms", "/cms/pages", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			denial := p.Authorize(tt.tier, tt.service, tt.path)
			if tt.allowed {
				if denial != nil {
					t.Fatalf("expected allowed, got denial: %+v", denial)
				}
				return
			}
			if denial == nil {
				t.Fatal("expected denial, got nil")
			}
			if denial.UpgradeTo != tt.upgradeTo {
				t.Errorf("UpgradeTo = %q, want %q", denial.UpgradeTo, tt.upgradeTo)
			}
			if denial.Reason == "" {
				t.Error("denial reason is empty")
			}
		})
	}
}

func TestRouteAllowed(t *testing.T) {
	tests := []struct {
		patterns []string
		path     string
		want     bool
	}{
		{[]string{"*"}, "/anything/at/all", true},
		{[]string{"/cms/*"}, "/cms/pages", true},
		{[]string{"/cms/*"}, "/crm/leads", false},
		{[]string{"/auth/"}, "/auth/login", true},
		{[]string{}, "/cms", false},
	}

	for _, tt := range tests {
		if got := routeAllowed(tt.patterns, tt.path); got != tt.want {
			t.Errorf("routeAllowed(%v, %q) = %v, want %v", tt.patterns, tt.path, got, tt.want)
		}
	}
}

func TestHasFeature(t *testing.T) {
	p := testPolicy(t)
	tier, _ := p.Get("tier_2")
	if !tier.HasFeature("crm") {
		t.Error("tier_2 should have crm")
	}
	if tier.HasFeature("vault") {
		t.Error("tier_2 should not have vault")
	}
}

func TestRoleToTier(t *testing.T) {
	tests := []struct {
		role string
		want string
	}{
		{"super_admin", TierEnterprise},
		{"tenant_admin", TierEnterprise},
		{"manager", TierGrowth},
		{"member", TierFree},
		{"", TierFree},
	}

	for _, tt := range tests {
		if got := RoleToTier(tt.role); got != tt.want {
			t.Errorf("RoleToTier(%q) = %s, want %s", tt.role, got, tt.want)
		}
	}
}
