package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"harbormaster/internal/breaker"
	"harbormaster/internal/health"
	"harbormaster/internal/metrics"
	"harbormaster/internal/ratelimit"
	"harbormaster/internal/registry"
	"harbormaster/internal/tiers"
	"harbormaster/pkg/logging"
)

func testHarness(t *testing.T) (*gin.Engine, *Handlers) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg, err := registry.New([]registry.ServiceConfig{
		{Name: "crm-service", BaseURL: "http://crm:8003", RoutePrefixes: []string{"/crm"}},
		{Name: "wagtail-cms", BaseURL: "http://cms:8002", RoutePrefixes: []string{"/cms"}},
	})
	if err != nil {
		t.Fatalf("registry.New failed: %v", err)
	}

	policy, err := tiers.NewPolicy([]tiers.TierConfig{
		{ID: "tier_1", DisplayName: "Starter", Price: 0, RateBudget: tiers.RateBudget{Requests: 60, WindowSeconds: 60}},
		{ID: "tier_2", DisplayName: "Growth", Price: 49, RateBudget: tiers.RateBudget{Requests: 300, WindowSeconds: 60}},
	})
	if err != nil {
		t.Fatalf("NewPolicy failed: %v", err)
	}

	store := ratelimit.NewMemoryStore(time.Hour)
	t.Cleanup(store.Stop)
	limiter := ratelimit.New(map[string]ratelimit.Budget{
		ratelimit.DefaultClass: {Requests: 100, WindowSeconds: 60},
	}, store, nil)

	breakers := breaker.NewSet(breaker.DefaultConfig(), nil)
	recorder := metrics.NewRecorder(nil)
	t.Cleanup(recorder.Stop)
	monitor := health.NewMonitor(reg, breakers, time.Hour, nil)

	logger := logging.NewLogger()
	logger.SetOutput(io.Discard)

	h := New(reg, policy, limiter, breakers, recorder, monitor, logger)
	router := gin.New()
	h.Register(router, nil)
	return router, h
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestListTiers(t *testing.T) {
	router, _ := testHarness(t)

	w := get(router, "/gateway/tiers")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body struct {
		Tiers []tiers.TierConfig `json:"tiers"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(body.Tiers) != 2 {
		t.Fatalf("got %d tiers, want 2", len(body.Tiers))
	}
	if body.Tiers[0].ID != "tier_1" {
		t.Errorf("tiers not ordered cheapest first: %s", body.Tiers[0].ID)
	}
}

func TestGetTier(t *testing.T) {
	router, _ := testHarness(t)

	w := get(router, "/gateway/tier/tier_2")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Growth") {
		t.Errorf("body = %s, want Growth tier", w.Body.String())
	}

	if w := get(router, "/gateway/tier/tier_99"); w.Code != http.StatusNotFound {
		t.Errorf("unknown tier: status = %d, want 404", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router, h := testHarness(t)

	h.recorder.Record(metrics.Sample{Service: "crm-service", StatusCode: 200, TenantID: "acme", Tier: "tier_2"})
	// Force the breaker into existence so it shows up
	h.breakers.Get("crm-service")

	// The recorder aggregates asynchronously; give it a moment
	deadline := time.Now().Add(time.Second)
	for h.recorder.Snapshot().TotalRequests == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	w := get(router, "/gateway/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "total_requests") {
		t.Errorf("body missing aggregates: %s", body)
	}
	if !strings.Contains(body, "circuit_breakers") {
		t.Errorf("body missing breaker states: %s", body)
	}
}

func TestConfigRedacted(t *testing.T) {
	router, _ := testHarness(t)

	w := get(router, "/gateway/config")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "crm-service") {
		t.Errorf("body missing services: %s", body)
	}
	// Base URLs stay internal
	if strings.Contains(body, "http://crm:8003") {
		t.Error("config endpoint must not expose backend addresses")
	}
}

func TestResetBreaker(t *testing.T) {
	router, h := testHarness(t)

	b := h.breakers.Get("crm-service")
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	if b.State() != breaker.StateOpen {
		t.Fatal("breaker should be open")
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/gateway/circuit-breaker/crm-service/reset", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body.String())
	}
	if b.State() != breaker.StateClosed {
		t.Error("breaker should be closed after reset")
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/gateway/circuit-breaker/nope/reset", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown service: status = %d, want 404", w.Code)
	}
}

func TestServicesHealthEmpty(t *testing.T) {
	router, _ := testHarness(t)

	w := get(router, "/health/services")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "healthy") {
		t.Errorf("body = %s, want overall healthy before any probe", w.Body.String())
	}
}

func TestManagementGuard(t *testing.T) {
	_, h := testHarness(t)

	guarded := gin.New()
	h.Register(guarded, ratelimit.NewIPLimiter(1, 1).Middleware())

	if w := get(guarded, "/gateway/tiers"); w.Code != http.StatusOK {
		t.Fatalf("first call: status = %d, want 200", w.Code)
	}
	if w := get(guarded, "/gateway/tiers"); w.Code != http.StatusTooManyRequests {
		t.Errorf("second immediate call: status = %d, want 429", w.Code)
	}
}
