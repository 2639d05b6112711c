// Package registry holds the static table of backend services the gateway
// can route to. The table is loaded once at startup and is read-only
// afterwards, so lookups need no locking.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ServiceConfig describes one backend service.
type ServiceConfig struct {
	Name           string        `yaml:"name"`
	BaseURL        string        `yaml:"base_url"`
	HealthPath     string        `yaml:"health_path"`
	RoutePrefixes  []string      `yaml:"route_prefixes"`
	PublicPrefixes []string      `yaml:"public_prefixes"`
	Timeout        time.Duration `yaml:"timeout"`
	MultiTenant    bool          `yaml:"multi_tenant"`
}

// IsPublicPath reports whether the path may be served without a verified
// identity for this service.
func (s *ServiceConfig) IsPublicPath(path string) bool {
	for _, prefix := range s.PublicPrefixes {
		if matchPrefix(path, prefix) {
			return true
		}
	}
	return false
}

type prefixEntry struct {
	prefix  string
	service *ServiceConfig
}

// Registry resolves request paths to backend services.
type Registry struct {
	services map[string]*ServiceConfig
	// prefixes sorted longest-first so Resolve is a longest-prefix match
	prefixes []prefixEntry
}

// New validates the service table and builds the prefix index.
func New(configs []ServiceConfig) (*Registry, error) {
	r := &Registry{
		services: make(map[string]*ServiceConfig, len(configs)),
	}

	for i := range configs {
		svc := &configs[i]
		if svc.Name == "" {
			return nil, fmt.Errorf("service %d: name is required", i)
		}
		if svc.BaseURL == "" {
			return nil, fmt.Errorf("service %s: base_url is required", svc.Name)
		}
		if len(svc.RoutePrefixes) == 0 {
			return nil, fmt.Errorf("service %s: at least one route prefix is required", svc.Name)
		}
		if _, exists := r.services[svc.Name]; exists {
			return nil, fmt.Errorf("duplicate service name %s", svc.Name)
		}
		svc.BaseURL = strings.TrimRight(svc.BaseURL, "/")
		if svc.HealthPath == "" {
			svc.HealthPath = "/health"
		}
		if svc.Timeout <= 0 {
			svc.Timeout = 30 * time.Second
		}
		r.services[svc.Name] = svc

		for _, prefix := range svc.RoutePrefixes {
			if !strings.HasPrefix(prefix, "/") {
				return nil, fmt.Errorf("service %s: route prefix %q must start with /", svc.Name, prefix)
			}
			r.prefixes = append(r.prefixes, prefixEntry{prefix: prefix, service: svc})
		}
	}

	sort.SliceStable(r.prefixes, func(i, j int) bool {
		return len(r.prefixes[i].prefix) > len(r.prefixes[j].prefix)
	})

	return r, nil
}

// Resolve returns the service owning the longest route prefix matching path.
func (r *Registry) Resolve(path string) (*ServiceConfig, bool) {
	for _, entry := range r.prefixes {
		if matchPrefix(path, entry.prefix) {
			return entry.service, true
		}
	}
	return nil, false
}

// Get returns a service by name.
func (r *Registry) Get(name string) (*ServiceConfig, bool) {
	svc, ok := r.services[name]
	return svc, ok
}

// Names returns all configured service names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns the configured services keyed by name.
func (r *Registry) All() map[string]*ServiceConfig {
	out := make(map[string]*ServiceConfig, len(r.services))
	for name, svc := range r.services {
		out[name] = svc
	}
	return out
}

// matchPrefix matches on path-segment boundaries: /cms matches /cms and
// /cms/pages but not /cms-admin.
func matchPrefix(path, prefix string) bool {
	if prefix == "/" {
		return true
	}
	prefix = strings.TrimRight(prefix, "/")
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}
