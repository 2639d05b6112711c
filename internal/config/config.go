package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"harbormaster/internal/ratelimit"
	"harbormaster/internal/registry"
	"harbormaster/internal/tiers"
	pkgconfig "harbormaster/pkg/config"
)

// Config is the gateway's environment-driven configuration.
type Config struct {
	Port                string
	JWTSecret           string
	ServiceAuthSecret   string
	RedisURL            string
	KafkaBrokers        []string
	TablesFile          string
	HealthCheckInterval time.Duration
	ServiceTokenTTL     time.Duration
	ManagementRPS       float64
	ManagementBurst     int
}

// Load reads environment configuration.
func Load() Config {
	var brokers []string
	if raw := pkgconfig.GetEnv("KAFKA_BROKERS", ""); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}

	return Config{
		Port:                pkgconfig.GetEnv("PORT", "18010"),
		JWTSecret:           pkgconfig.GetEnv("JWT_SECRET", "dev-secret-change-me"),
		ServiceAuthSecret:   pkgconfig.GetEnv("SERVICE_AUTH_SECRET", "dev-service-secret"),
		RedisURL:            pkgconfig.GetEnv("REDIS_URL", ""),
		KafkaBrokers:        brokers,
		TablesFile:          pkgconfig.GetEnv("GATEWAY_TABLES_FILE", ""),
		HealthCheckInterval: pkgconfig.GetEnvDuration("HEALTH_CHECK_INTERVAL", 30*time.Second),
		ServiceTokenTTL:     pkgconfig.GetEnvDuration("SERVICE_TOKEN_TTL", time.Minute),
		ManagementRPS:       float64(pkgconfig.GetEnvInt("MANAGEMENT_RPS", 10)),
		ManagementBurst:     pkgconfig.GetEnvInt("MANAGEMENT_BURST", 20),
	}
}

// Tables are the static routing, tier, and rate-limit tables, loaded once
// at startup and immutable afterwards.
type Tables struct {
	Services   []registry.ServiceConfig    `yaml:"services"`
	Tiers      []tiers.TierConfig          `yaml:"tiers"`
	RateLimits map[string]ratelimit.Budget `yaml:"rate_limits"`
}

// LoadTables reads the table file, or returns the compiled-in defaults when
// no file is configured.
func LoadTables(path string) (*Tables, error) {
	if path == "" {
		return defaultTables(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tables file: %w", err)
	}

	var t Tables
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("parse tables file: %w", err)
	}
	if len(t.Services) == 0 {
		return nil, fmt.Errorf("tables file %s defines no services", path)
	}
	if len(t.Tiers) == 0 {
		return nil, fmt.Errorf("tables file %s defines no tiers", path)
	}
	if t.RateLimits == nil {
		t.RateLimits = defaultTables().RateLimits
	}
	return &t, nil
}
