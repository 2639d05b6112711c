// Package tiers implements subscription-tier authorization: which services
// and route patterns a tier may reach, and the rate budget it is granted.
package tiers

import (
	"fmt"
	"sort"
	"strings"
)

// Wildcard in allowed_routes grants every route of every allowed service.
const Wildcard = "*"

// RateBudget is a requests-per-window quota.
type RateBudget struct {
	Requests      int `yaml:"requests" json:"requests"`
	WindowSeconds int `yaml:"window_seconds" json:"window_seconds"`
}

// TierConfig describes one subscription tier. Immutable after load.
type TierConfig struct {
	ID              string     `yaml:"id" json:"id"`
	DisplayName     string     `yaml:"display_name" json:"display_name"`
	Price           float64    `yaml:"price" json:"price"`
	AllowedServices []string   `yaml:"allowed_services" json:"allowed_services"`
	AllowedRoutes   []string   `yaml:"allowed_routes" json:"allowed_routes"`
	RateBudget      RateBudget `yaml:"rate_budget" json:"rate_budget"`
	Features        []string   `yaml:"features" json:"features"`

	serviceSet map[string]bool
}

// Denial explains why a tier was refused access; it is rendered into the
// 403 body so callers see the upgrade path instead of a bare forbidden.
type Denial struct {
	Tier      string `json:"tier"`
	Service   string `json:"service"`
	Path      string `json:"path"`
	Reason    string `json:"reason"`
	UpgradeTo string `json:"upgrade_to,omitempty"`
}

// Policy holds the tier table, ordered cheapest first.
type Policy struct {
	tiers map[string]*TierConfig
	order []string
}

// NewPolicy validates the tier table. Tiers are ordered by price ascending;
// the first entry is the default for unidentified callers.
func NewPolicy(configs []TierConfig) (*Policy, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("at least one tier is required")
	}

	p := &Policy{tiers: make(map[string]*TierConfig, len(configs))}
	for i := range configs {
		tier := &configs[i]
		if tier.ID == "" {
			return nil, fmt.Errorf("tier %d: id is required", i)
		}
		if _, exists := p.tiers[tier.ID]; exists {
			return nil, fmt.Errorf("duplicate tier id %s", tier.ID)
		}
		if tier.RateBudget.Requests <= 0 || tier.RateBudget.WindowSeconds <= 0 {
			return nil, fmt.Errorf("tier %s: rate budget is required", tier.ID)
		}
		tier.serviceSet = make(map[string]bool, len(tier.AllowedServices))
		for _, svc := range tier.AllowedServices {
			tier.serviceSet[svc] = true
		}
		p.tiers[tier.ID] = tier
		p.order = append(p.order, tier.ID)
	}

	sort.SliceStable(p.order, func(i, j int) bool {
		return p.tiers[p.order[i]].Price < p.tiers[p.order[j]].Price
	})

	return p, nil
}

// Get returns a tier by ID.
func (p *Policy) Get(id string) (*TierConfig, bool) {
	tier, ok := p.tiers[id]
	return tier, ok
}

// List returns all tiers, cheapest first.
func (p *Policy) List() []*TierConfig {
	out := make([]*TierConfig, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.tiers[id])
	}
	return out
}

// Lowest returns the cheapest tier's ID, the default for unknown callers.
func (p *Policy) Lowest() string {
	return p.order[0]
}

// Authorize checks whether tierID may reach (service, path). A nil return
// means allowed; otherwise the Denial carries the reason and upgrade hint.
func (p *Policy) Authorize(tierID, service, path string) *Denial {
	tier, ok := p.tiers[tierID]
	if !ok {
		// Unknown tier gets the default allowance
		tier = p.tiers[p.Lowest()]
		tierID = tier.ID
	}

	if !tier.serviceSet[service] {
		return &Denial{
			Tier:      tierID,
			Service:   service,
			Path:      path,
			Reason:    fmt.Sprintf("service %s is not included in the %s plan", service, tier.DisplayName),
			UpgradeTo: p.upgradeFor(tierID, service, path),
		}
	}

	if routeAllowed(tier.AllowedRoutes, path) {
		return nil
	}

	return &Denial{
		Tier:      tierID,
		Service:   service,
		Path:      path,
		Reason:    fmt.Sprintf("route %s is not included in the %s plan", path, tier.DisplayName),
		UpgradeTo: p.upgradeFor(tierID, service, path),
	}
}

// upgradeFor finds the cheapest tier above current that grants the route.
func (p *Policy) upgradeFor(current, service, path string) string {
	currentPrice := p.tiers[current].Price
	for _, id := range p.order {
		tier := p.tiers[id]
		if tier.Price <= currentPrice {
			continue
		}
		if tier.serviceSet[service] && routeAllowed(tier.AllowedRoutes, path) {
			return id
		}
	}
	return ""
}

// routeAllowed matches path against the route patterns: a lone "*" matches
// everything, a trailing "*" matches by prefix of the stripped pattern, and
// anything else matches by exact prefix. Patterns are never regexes.
func routeAllowed(patterns []string, path string) bool {
	for _, pattern := range patterns {
		if pattern == Wildcard {
			return true
		}
		if strings.HasSuffix(pattern, Wildcard) {
			if strings.HasPrefix(path, strings.TrimSuffix(pattern, Wildcard)) {
				return true
			}
			continue
		}
		if strings.HasPrefix(path, pattern) {
			return true
		}
	}
	return false
}

// HasFeature reports whether the tier's feature list contains name.
func (t *TierConfig) HasFeature(name string) bool {
	for _, f := range t.Features {
		if f == name {
			return true
		}
	}
	return false
}
