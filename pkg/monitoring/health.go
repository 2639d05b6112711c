package monitoring

// Health status values shared by the liveness endpoint and per-backend probes.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)
