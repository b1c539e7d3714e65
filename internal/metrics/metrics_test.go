package metrics

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewMetricsWithFreshRegistries(t *testing.T) {
	// Two constructions must not collide when each gets its own registry.
	m1 := NewMetricsWith(prometheus.NewRegistry())
	m2 := NewMetricsWith(prometheus.NewRegistry())
	if m1 == nil || m2 == nil {
		t.Fatal("expected non-nil metrics")
	}
}

func healthzVerdict(t *testing.T, h *HealthStatus) (string, int) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode healthz body: %v", err)
	}
	return body.Status, rec.Code
}

func TestHealthzVerdict(t *testing.T) {
	cases := []struct {
		name       string
		wsExpected bool
		wsUp       bool
		redisUp    bool
		pgExpected bool
		pgUp       bool
		wantStatus string
		wantCode   int
	}{
		{"all deps healthy", true, true, true, true, true, "healthy", 200},
		{"no postgres in this process", true, true, true, false, false, "healthy", 200},
		{"socket down", true, false, true, true, true, "degraded", 503},
		{"socket absent and not expected", false, false, true, true, true, "healthy", 200},
		{"postgres down", false, false, true, true, false, "degraded", 503},
		{"redis down", false, false, false, false, false, "degraded", 503},
		{"both stores down", false, false, false, true, false, "unhealthy", 503},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h := NewHealthStatus()
			h.mu.Lock()
			h.WSExpected = c.wsExpected
			h.WSConnected = c.wsUp
			h.RedisConnected = c.redisUp
			h.PostgresExpected = c.pgExpected
			h.PostgresOK = c.pgUp
			h.mu.Unlock()

			status, code := healthzVerdict(t, h)
			if status != c.wantStatus || code != c.wantCode {
				t.Errorf("got (%s, %d), want (%s, %d)", status, code, c.wantStatus, c.wantCode)
			}
		})
	}
}
