// Package metrics aggregates per-request samples off the hot path. Samples
// are handed to a buffered channel and folded into aggregates by a single
// goroutine; recording never blocks a response, samples are dropped instead.
package metrics

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"harbormaster/pkg/logging"
	"harbormaster/pkg/monitoring"
)

// Sample is one observed dispatch outcome.
type Sample struct {
	Service    string        `json:"service"`
	StatusCode int           `json:"status_code"`
	Latency    time.Duration `json:"latency_ms"`
	TenantID   string        `json:"tenant_id"`
	Tier       string        `json:"tier"`
	Timestamp  time.Time     `json:"timestamp"`
}

// ServiceStats are per-backend aggregates.
type ServiceStats struct {
	Requests         int64   `json:"requests"`
	Errors           int64   `json:"errors"`
	AverageLatencyMs float64 `json:"average_latency_ms"`
}

// Snapshot is the aggregate view served by the metrics endpoint.
type Snapshot struct {
	TotalRequests    int64                   `json:"total_requests"`
	AverageLatencyMs float64                 `json:"average_latency_ms"`
	StatusCodes      map[string]int64        `json:"status_codes"`
	PerTier          map[string]int64        `json:"per_tier"`
	PerTenant        map[string]int64        `json:"per_tenant"`
	PerService       map[string]ServiceStats `json:"per_service"`
	DroppedSamples   int64                   `json:"dropped_samples"`
}

// Publisher ships samples to an external sink (Kafka). Best effort only.
type Publisher interface {
	PublishSample(Sample) error
}

// Recorder aggregates samples asynchronously.
type Recorder struct {
	ch        chan Sample
	stopCh    chan struct{}
	done      chan struct{}
	dropped   atomic.Int64
	logger    logging.Logger
	publisher Publisher

	mu           sync.RWMutex
	total        int64
	latencySum   time.Duration
	statusCodes  map[string]int64
	perTier      map[string]int64
	perTenant    map[string]int64
	svcRequests  map[string]int64
	svcErrors    map[string]int64
	svcLatencies map[string]time.Duration

	proxied *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithPublisher attaches an external sample sink.
func WithPublisher(p Publisher) Option {
	return func(r *Recorder) { r.publisher = p }
}

// WithPrometheus registers proxy counters on the shared collector.
func WithPrometheus(mc *monitoring.MetricsCollector) Option {
	return func(r *Recorder) {
		r.proxied = mc.NewCounter("proxied_requests_total",
			"Requests dispatched to backend services", []string{"service", "status", "tier"})
		r.latency = mc.NewHistogram("proxied_request_duration_seconds",
			"Backend dispatch duration", []string{"service"}, nil)
	}
}

// NewRecorder creates a recorder and starts its aggregation goroutine.
func NewRecorder(logger logging.Logger, opts ...Option) *Recorder {
	r := &Recorder{
		ch:           make(chan Sample, 1024),
		stopCh:       make(chan struct{}),
		done:         make(chan struct{}),
		logger:       logger,
		statusCodes:  make(map[string]int64),
		perTier:      make(map[string]int64),
		perTenant:    make(map[string]int64),
		svcRequests:  make(map[string]int64),
		svcErrors:    make(map[string]int64),
		svcLatencies: make(map[string]time.Duration),
	}
	for _, opt := range opts {
		opt(r)
	}

	go r.loop()
	return r
}

// Record enqueues a sample. Non-blocking: if the aggregator is behind, the
// sample is dropped and counted.
func (r *Recorder) Record(s Sample) {
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	select {
	case r.ch <- s:
	default:
		r.dropped.Add(1)
	}
}

// Stop drains and stops the aggregation goroutine.
func (r *Recorder) Stop() {
	close(r.stopCh)
	<-r.done
}

func (r *Recorder) loop() {
	defer close(r.done)
	for {
		select {
		case s := <-r.ch:
			r.apply(s)
		case <-r.stopCh:
			// Drain whatever is already queued
			for {
				select {
				case s := <-r.ch:
					r.apply(s)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) apply(s Sample) {
	status := strconv.Itoa(s.StatusCode)

	r.mu.Lock()
	r.total++
	r.latencySum += s.Latency
	r.statusCodes[status]++
	if s.Tier != "" {
		r.perTier[s.Tier]++
	}
	if s.TenantID != "" {
		r.perTenant[s.TenantID]++
	}
	if s.Service != "" {
		r.svcRequests[s.Service]++
		r.svcLatencies[s.Service] += s.Latency
		if s.StatusCode >= 500 {
			r.svcErrors[s.Service]++
		}
	}
	r.mu.Unlock()

	if r.proxied != nil && s.Service != "" {
		r.proxied.WithLabelValues(s.Service, status, s.Tier).Inc()
		r.latency.WithLabelValues(s.Service).Observe(s.Latency.Seconds())
	}

	if r.publisher != nil {
		if err := r.publisher.PublishSample(s); err != nil && r.logger != nil {
			r.logger.WithError(err).Debug("Failed to publish request sample")
		}
	}
}

// Snapshot returns the current aggregates.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{
		TotalRequests:  r.total,
		StatusCodes:    make(map[string]int64, len(r.statusCodes)),
		PerTier:        make(map[string]int64, len(r.perTier)),
		PerTenant:      make(map[string]int64, len(r.perTenant)),
		PerService:     make(map[string]ServiceStats, len(r.svcRequests)),
		DroppedSamples: r.dropped.Load(),
	}
	if r.total > 0 {
		snap.AverageLatencyMs = float64(r.latencySum.Milliseconds()) / float64(r.total)
	}
	for k, v := range r.statusCodes {
		snap.StatusCodes[k] = v
	}
	for k, v := range r.perTier {
		snap.PerTier[k] = v
	}
	for k, v := range r.perTenant {
		snap.PerTenant[k] = v
	}
	for svc, reqs := range r.svcRequests {
		stats := ServiceStats{
			Requests: reqs,
			Errors:   r.svcErrors[svc],
		}
		if reqs > 0 {
			stats.AverageLatencyMs = float64(r.svcLatencies[svc].Milliseconds()) / float64(reqs)
		}
		snap.PerService[svc] = stats
	}
	return snap
}
