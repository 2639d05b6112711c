package main

import (
	"context"
	"time"

	"harbormaster/internal/breaker"
	"harbormaster/internal/config"
	"harbormaster/internal/handlers"
	"harbormaster/internal/health"
	"harbormaster/internal/metrics"
	"harbormaster/internal/proxy"
	"harbormaster/internal/ratelimit"
	"harbormaster/internal/registry"
	"harbormaster/internal/tenant"
	"harbormaster/internal/tiers"
	pkgconfig "harbormaster/pkg/config"
	"harbormaster/pkg/kafka"
	"harbormaster/pkg/logging"
	"harbormaster/pkg/monitoring"
	pkgredis "harbormaster/pkg/redis"
	"harbormaster/pkg/server"
	"harbormaster/pkg/version"
)

func main() {
	logger := logging.NewLoggerWithService(proxy.ServiceName)
	pkgconfig.LoadEnv(logger)

	cfg := config.Load()

	tables, err := config.LoadTables(cfg.TablesFile)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load gateway tables")
	}

	reg, err := registry.New(tables.Services)
	if err != nil {
		logger.WithError(err).Fatal("Invalid service table")
	}
	policy, err := tiers.NewPolicy(tables.Tiers)
	if err != nil {
		logger.WithError(err).Fatal("Invalid tier table")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Rate-limit windows live in Redis when configured, so several gateway
	// replicas share one budget; otherwise in-process memory.
	var store ratelimit.Store
	var memStore *ratelimit.MemoryStore
	if cfg.RedisURL != "" {
		client, err := pkgredis.NewClientFromURL(ctx, cfg.RedisURL)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer client.Close()
		store = ratelimit.NewRedisStore(client, "")
		logger.Info("Rate limiting backed by Redis")
	} else {
		memStore = ratelimit.NewMemoryStore(time.Minute)
		defer memStore.Stop()
		store = memStore
		logger.Info("Rate limiting backed by in-process memory")
	}

	limiter := ratelimit.New(tables.RateLimits, store, logger)
	for _, tier := range policy.List() {
		limiter.RegisterClass("tier:"+tier.ID, ratelimit.Budget{
			Requests:      tier.RateBudget.Requests,
			WindowSeconds: tier.RateBudget.WindowSeconds,
		})
	}

	breakers := breaker.NewSet(breaker.DefaultConfig(), logger)

	metricsCollector := monitoring.NewMetricsCollector(proxy.ServiceName, version.Version, version.GetShortCommit())

	recorderOpts := []metrics.Option{metrics.WithPrometheus(metricsCollector)}
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, proxy.ServiceName, logger)
		if err != nil {
			logger.WithError(err).Warn("Kafka unavailable, request samples stay local")
		} else {
			defer producer.Close()
			recorderOpts = append(recorderOpts, metrics.WithPublisher(metrics.NewKafkaPublisher(producer)))
			logger.Info("Publishing request samples to Kafka")
		}
	}
	recorder := metrics.NewRecorder(logger, recorderOpts...)
	defer recorder.Stop()

	monitor := health.NewMonitor(reg, breakers, cfg.HealthCheckInterval, logger)
	monitor.Start(ctx)

	resolver := tenant.NewResolver([]byte(cfg.JWTSecret), policy, logger)
	dispatcher := proxy.New(reg, policy, limiter, breakers, recorder, proxy.Config{
		ServiceAuthSecret: []byte(cfg.ServiceAuthSecret),
		ServiceTokenTTL:   cfg.ServiceTokenTTL,
	}, logger)

	router := server.SetupRouter(logger, proxy.ServiceName)
	router.Use(metricsCollector.MetricsMiddleware())
	router.Use(tenant.Middleware(resolver))
	router.GET("/metrics", metricsCollector.Handler())

	mgmt := handlers.New(reg, policy, limiter, breakers, recorder, monitor, logger)
	mgmt.Register(router, ratelimit.NewIPLimiter(cfg.ManagementRPS, cfg.ManagementBurst).Middleware())

	router.NoRoute(dispatcher.Handler())

	logger.WithFields(logging.Fields{
		"version":  version.Version,
		"commit":   version.GetShortCommit(),
		"services": reg.Names(),
	}).Info("Harbormaster gateway starting")

	srvCfg := server.DefaultConfig(proxy.ServiceName, cfg.Port)
	// The write timeout must outlast the slowest backend timeout or the
	// gateway cuts off long dispatches itself.
	srvCfg.WriteTimeout = 3 * time.Minute
	if err := server.Start(srvCfg, router, logger); err != nil {
		logger.WithError(err).Fatal("Server exited with error")
	}
}
