package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/therapy-scheduler/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/therapy-scheduler/internal/http/middleware"
	"github.com/wolfman30/therapy-scheduler/internal/observability/metrics"
	"github.com/wolfman30/therapy-scheduler/internal/scheduling"
	"github.com/wolfman30/therapy-scheduler/pkg/logging"
)

const ruleBody = `{"therapistId":"t-1","dayOfWeek":"monday","startTime":"09:00","endTime":"12:00"}`

func newTestConfig(t *testing.T) *Config {
	t.Helper()
	logger := logging.New("error")
	reg := prometheus.NewRegistry()
	m := metrics.NewSchedulingMetrics(reg)
	store := scheduling.NewMemoryStore()
	opts := scheduling.Options{
		Now:     func() time.Time { return time.Date(2030, time.January, 1, 8, 0, 0, 0, time.UTC) },
		Logger:  logger,
		Metrics: m,
	}
	return &Config{
		Logger: logger,
		Availability: handlers.NewAvailabilityHandler(
			scheduling.NewRuleService(store, opts),
			scheduling.NewDeriver(store, opts),
			logger,
		),
		Appointments:   handlers.NewAppointmentHandler(scheduling.NewReconciler(store, opts), nil, m, logger),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
}

func serve(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := New(newTestConfig(t))

	rr := serve(router, http.MethodGet, "/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Errorf("expected request id header")
	}
}

func TestRouterAvailabilityRoutes(t *testing.T) {
	router := New(newTestConfig(t))

	rr := serve(router, http.MethodPost, "/api/therapist/availability", ruleBody, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var rule scheduling.Rule
	if err := json.NewDecoder(rr.Body).Decode(&rule); err != nil {
		t.Fatalf("decode rule: %v", err)
	}

	rr = serve(router, http.MethodGet, "/api/therapist/availability/manage/t-1", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected manage list, got %d", rr.Code)
	}
	rr = serve(router, http.MethodGet, "/api/therapists/t-1/availability?date=2030-01-07", "", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"09:00:00"`) {
		t.Fatalf("expected slots, got %d: %s", rr.Code, rr.Body.String())
	}
	rr = serve(router, http.MethodDelete, "/api/therapist/availability/"+rule.ID, "", nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router := New(newTestConfig(t))
	serve(router, http.MethodPost, "/api/therapist/availability", ruleBody, nil)

	rr := serve(router, http.MethodGet, "/metrics", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "therapy_availability_rule_mutations_total") {
		t.Fatalf("expected scheduling metrics in exposition")
	}
}

func TestRouterTestRoutesDisabledByDefault(t *testing.T) {
	router := New(newTestConfig(t))

	rr := serve(router, http.MethodPost, "/api/test/book-appointment", "{}", nil)
	if rr.Code != http.StatusNotFound && rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected test route to be absent, got %d", rr.Code)
	}
}

func TestRouterTestRoutesToken(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.EnableTestRoutes = true
	cfg.TestRoutesToken = "e2e"
	router := New(cfg)
	serve(router, http.MethodPost, "/api/therapist/availability", ruleBody, nil)

	body := `{"patientId":"p-1","therapistId":"t-1","scheduledTime":"2030-01-07T09:00:00Z","durationMinutes":60}`
	if rr := serve(router, http.MethodPost, "/api/test/book-appointment", body, nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
	rr := serve(router, http.MethodPost, "/api/test/book-appointment", body, map[string]string{testTokenHeader: "e2e"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 with token, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRouterRequiresTokenWhenAuthEnabled(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.AuthSecret = "secret"
	router := New(cfg)

	if rr := serve(router, http.MethodGet, "/api/therapists/t-1/availability", "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if rr := serve(router, http.MethodGet, "/health", "", nil); rr.Code != http.StatusOK {
		t.Fatalf("expected health to stay public, got %d", rr.Code)
	}

	claims := httpmiddleware.PrincipalClaims{
		Role: "therapist",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "t-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	auth := map[string]string{"Authorization": "Bearer " + token}
	if rr := serve(router, http.MethodPost, "/api/therapist/availability", ruleBody, auth); rr.Code != http.StatusCreated {
		t.Fatalf("expected therapist to manage own rules, got %d", rr.Code)
	}
	other := strings.Replace(ruleBody, "t-1", "t-2", 1)
	if rr := serve(router, http.MethodPost, "/api/therapist/availability", other, auth); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another therapist, got %d", rr.Code)
	}
}

func TestRouterRateLimit(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.RateLimiter = httpmiddleware.NewRateLimiter(0.001, 1)
	t.Cleanup(cfg.RateLimiter.Close)
	router := New(cfg)

	if rr := serve(router, http.MethodGet, "/api/therapists/t-1/availability", "", nil); rr.Code != http.StatusOK {
		t.Fatalf("expected first request allowed, got %d", rr.Code)
	}
	if rr := serve(router, http.MethodGet, "/api/therapists/t-1/availability", "", nil); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr := serve(router, http.MethodGet, "/health", "", nil); rr.Code != http.StatusOK {
		t.Fatalf("expected health outside the limiter, got %d", rr.Code)
	}
}
