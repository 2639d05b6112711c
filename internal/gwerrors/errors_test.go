package gwerrors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"harbormaster/internal/tiers"
)

func render(e *Error) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	e.Write(c)
	return w
}

func TestRateLimitedBody(t *testing.T) {
	w := render(RateLimited(7))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}

	var body struct {
		Error      string `json:"error"`
		RetryAfter int    `json:"retry_after"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("retry_after must be a JSON number: %v (body %s)", err, w.Body.String())
	}
	if body.Error != CodeRateLimited {
		t.Errorf("error = %s, want %s", body.Error, CodeRateLimited)
	}
	if body.RetryAfter != 7 {
		t.Errorf("retry_after = %d, want 7", body.RetryAfter)
	}
}

func TestTierDeniedBody(t *testing.T) {
	w := render(TierDenied(&tiers.Denial{
		Tier:      "tier_1",
		Service:   "crm-service",
		Path:      "/crm/leads",
		Reason:    "service crm-service is not included in the Starter plan",
		UpgradeTo: "tier_2",
	}))
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["upgrade_to"] != "tier_2" {
		t.Errorf("upgrade_to = %v, want tier_2", body["upgrade_to"])
	}
	if body["error"] != CodeTierDenied {
		t.Errorf("error = %v, want %s", body["error"], CodeTierDenied)
	}
}
