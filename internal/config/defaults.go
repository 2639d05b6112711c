package config

import (
	"time"

	"harbormaster/internal/ratelimit"
	"harbormaster/internal/registry"
	"harbormaster/internal/tiers"
	pkgconfig "harbormaster/pkg/config"
)

// defaultTables is the built-in platform topology, used when no tables
// file is configured. Base URLs stay overridable per service so compose
// and k8s deployments only need environment variables.
func defaultTables() *Tables {
	return &Tables{
		Services: []registry.ServiceConfig{
			{
				Name:           "auth-service",
				BaseURL:        pkgconfig.GetEnv("AUTH_SERVICE_URL", "http://auth-service:8001"),
				HealthPath:     "/health",
				RoutePrefixes:  []string{"/auth"},
				PublicPrefixes: []string{"/auth/login", "/auth/register", "/auth/refresh"},
				Timeout:        10 * time.Second,
				MultiTenant:    true,
			},
			{
				Name:          "wagtail-cms",
				BaseURL:       pkgconfig.GetEnv("CMS_SERVICE_URL", "http://wagtail-cms:8002"),
				HealthPath:    "/health",
				RoutePrefixes: []string{"/cms", "/pages"},
				Timeout:       30 * time.Second,
				MultiTenant:   true,
			},
			{
				Name:          "crm-service",
				BaseURL:       pkgconfig.GetEnv("CRM_SERVICE_URL", "http://crm-service:8003"),
				HealthPath:    "/health",
				RoutePrefixes: []string{"/crm", "/leads"},
				Timeout:       30 * time.Second,
				MultiTenant:   true,
			},
			{
				Name:           "payment-service",
				BaseURL:        pkgconfig.GetEnv("PAYMENT_SERVICE_URL", "http://payment-service:8004"),
				HealthPath:     "/health",
				RoutePrefixes:  []string{"/payments", "/webhooks/payments"},
				PublicPrefixes: []string{"/webhooks/payments"},
				Timeout:        45 * time.Second,
				MultiTenant:    true,
			},
			{
				Name:          "vault-service",
				BaseURL:       pkgconfig.GetEnv("VAULT_SERVICE_URL", "http://vault-service:8005"),
				HealthPath:    "/health",
				RoutePrefixes: []string{"/vault"},
				Timeout:       20 * time.Second,
				MultiTenant:   true,
			},
			{
				Name:          "workflow-service",
				BaseURL:       pkgconfig.GetEnv("WORKFLOW_SERVICE_URL", "http://workflow-service:8006"),
				HealthPath:    "/health",
				RoutePrefixes: []string{"/workflows"},
				Timeout:       60 * time.Second,
				MultiTenant:   true,
			},
			{
				Name:          "agent-service",
				BaseURL:       pkgconfig.GetEnv("AGENT_SERVICE_URL", "http://agent-service:8007"),
				HealthPath:    "/health",
				RoutePrefixes: []string{"/agents", "/analytics"},
				Timeout:       120 * time.Second,
				MultiTenant:   true,
			},
		},
		Tiers: []tiers.TierConfig{
			{
				ID:          tiers.TierFree,
				DisplayName: "Starter",
				Price:       0,
				// payment-service is listed only for its public webhook
				// route; the rest of /payments needs an upgrade.
				AllowedServices: []string{"auth-service", "wagtail-cms", "payment-service"},
				AllowedRoutes:   []string{"/auth/", "/cms/*", "/pages/*", "/webhooks/payments/*"},
				RateBudget:      tiers.RateBudget{Requests: 60, WindowSeconds: 60},
				Features:        []string{"cms"},
			},
			{
				ID:              tiers.TierGrowth,
				DisplayName:     "Growth",
				Price:           49,
				AllowedServices: []string{"auth-service", "wagtail-cms", "crm-service", "payment-service"},
				AllowedRoutes:   []string{"/auth/", "/cms/*", "/pages/*", "/crm/*", "/leads/*", "/payments/*", "/webhooks/payments/*"},
				RateBudget:      tiers.RateBudget{Requests: 300, WindowSeconds: 60},
				Features:        []string{"cms", "crm", "payments"},
			},
			{
				ID:          tiers.TierEnterprise,
				DisplayName: "Enterprise",
				Price:       199,
				AllowedServices: []string{
					"auth-service", "wagtail-cms", "crm-service", "payment-service",
					"vault-service", "workflow-service", "agent-service",
				},
				AllowedRoutes: []string{"*"},
				RateBudget:    tiers.RateBudget{Requests: 1200, WindowSeconds: 60},
				Features:      []string{"cms", "crm", "payments", "vault", "workflows", "agents"},
			},
		},
		RateLimits: map[string]ratelimit.Budget{
			"auth":                 {Requests: 20, WindowSeconds: 60},
			"webhooks":             {Requests: 300, WindowSeconds: 60},
			ratelimit.DefaultClass: {Requests: 100, WindowSeconds: 60},
		},
	}
}
