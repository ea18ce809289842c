package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evgrid/guardian/internal/config"
	"github.com/evgrid/guardian/internal/guardian"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testConfig returns a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Port:             "0",
		Env:              "development",
		LogLevel:         "error",
		LogFormat:        "text",
		PhysicsTolerance: 0.05,
		EnergyNoiseFloor: 0.01,
		RateLimitRPM:     100000,
	}
}

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	s, err := New(testConfig(), opts...)
	require.NoError(t, err)
	return s
}

// consistentReadings builds physically consistent telemetry rows.
func consistentReadings(id string, n int) []map[string]interface{} {
	rows := make([]map[string]interface{}, 0, n)
	energy := 0.0
	for t := 0; t < n; t++ {
		if t > 0 {
			energy += 230.0 * 10.0 / 1000.0 / 3600.0
		}
		rows = append(rows, map[string]interface{}{
			"time_index": t,
			"session_id": id,
			"voltage":    230.0,
			"current":    10.0,
			"energy_kwh": energy,
		})
	}
	return rows
}

func postJSON(t *testing.T, s *Server, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// Health endpoint tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, false, resp["model_loaded"])
}

func TestLivenessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health/live", nil)
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadinessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health/ready", nil)
	s.router.ServeHTTP(w, req)

	// Server hasn't called Run() so ready is false
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// ---------------------------------------------------------------------------
// Predict endpoint tests
// ---------------------------------------------------------------------------

func TestPredictValidSession(t *testing.T) {
	s := newTestServer(t)

	w := postJSON(t, s, "/v1/predict", map[string]interface{}{
		"session_id": "S001",
		"data":       consistentReadings("S001", 60),
	})

	require.Equal(t, http.StatusOK, w.Code)

	var decision guardian.Decision
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decision))
	assert.Equal(t, "S001", decision.SessionID)
	assert.Equal(t, guardian.StatusValid, decision.Status)
	assert.Equal(t, guardian.MethodRuleBased, decision.Method)
	assert.Equal(t, "session completed normally", decision.Reason)
	assert.Nil(t, decision.Confidence)
}

func TestPredictFraudSession(t *testing.T) {
	s := newTestServer(t)

	rows := consistentReadings("S002", 30)
	rows[12]["voltage"] = 295.0

	w := postJSON(t, s, "/v1/predict", map[string]interface{}{
		"session_id": "S002",
		"data":       rows,
	})

	require.Equal(t, http.StatusOK, w.Code)

	var decision guardian.Decision
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decision))
	assert.Equal(t, guardian.StatusFraud, decision.Status)
	assert.Contains(t, decision.Reason, "Voltage anomaly detected")
}

func TestPredictEmptySession(t *testing.T) {
	s := newTestServer(t)

	w := postJSON(t, s, "/v1/predict", map[string]interface{}{
		"session_id": "S003",
		"data":       []map[string]interface{}{},
	})

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "empty_session")
}

func TestPredictMalformedReading(t *testing.T) {
	s := newTestServer(t)

	rows := consistentReadings("S004", 5)
	rows[2]["time_index"] = -7

	w := postJSON(t, s, "/v1/predict", map[string]interface{}{
		"session_id": "S004",
		"data":       rows,
	})

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "malformed_reading")
	assert.Contains(t, w.Body.String(), "t=-7")
}

func TestPredictMissingSessionID(t *testing.T) {
	s := newTestServer(t)

	w := postJSON(t, s, "/v1/predict", map[string]interface{}{
		"data": consistentReadings("S005", 5),
	})

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "validation_failed")
}

func TestPredictInvalidJSON(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/predict", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ---------------------------------------------------------------------------
// Live session flow tests
// ---------------------------------------------------------------------------

func TestIngestStatusResetFlow(t *testing.T) {
	s := newTestServer(t)

	// Nothing ingested yet
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest("GET", "/v1/status", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "no active session")

	// Feed a consistent session one reading at a time
	energy := 0.0
	for i := 0; i < 20; i++ {
		if i > 0 {
			energy += 230.0 * 10.0 / 1000.0 / 3600.0
		}
		w := postJSON(t, s, "/v1/ingest", map[string]interface{}{
			"time_index": i,
			"session_id": "S010",
			"voltage":    230.0,
			"current":    10.0,
			"energy_kwh": energy,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	// Status evaluates the buffered session
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest("GET", "/v1/status", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var decision guardian.Decision
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decision))
	assert.Equal(t, "S010", decision.SessionID)
	assert.Equal(t, guardian.StatusValid, decision.Status)

	// Current session exposes the raw readings
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest("GET", "/v1/sessions/current", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var current struct {
		SessionID string            `json:"session_id"`
		Readings  []json.RawMessage `json:"readings"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &current))
	assert.Equal(t, "S010", current.SessionID)
	assert.Len(t, current.Readings, 20)

	// Reset clears the buffer
	w = postJSON(t, s, "/v1/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest("GET", "/v1/status", nil))
	assert.Contains(t, w.Body.String(), "no active session")
}

func TestIngestRejectsNonFinite(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	body := `{"time_index":0,"session_id":"S011","voltage":230,"current":10,"energy_kwh":0}`
	// NaN is not valid JSON; a producer sending it gets a parse failure
	bad := strings.Replace(body, "230", "NaN", 1)
	req := httptest.NewRequest("POST", "/v1/ingest", strings.NewReader(bad))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Negative time index is caught by the validators
	w = postJSON(t, s, "/v1/ingest", map[string]interface{}{
		"time_index": -1,
		"session_id": "S011",
		"voltage":    230.0,
		"current":    10.0,
		"energy_kwh": 0.0,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "time_index")
}

func TestIngestDetectsTampering(t *testing.T) {
	s := newTestServer(t)

	// Meter counts up, then rewinds
	for i, energy := range []float64{0, 0.5, 0.3} {
		w := postJSON(t, s, "/v1/ingest", map[string]interface{}{
			"time_index": i,
			"session_id": "S012",
			"voltage":    230.0,
			"current":    10.0,
			"energy_kwh": energy,
		})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest("GET", "/v1/status", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var decision guardian.Decision
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decision))
	assert.Equal(t, guardian.StatusFraud, decision.Status)
	assert.Contains(t, decision.Reason, "Energy decrease detected")
}

// ---------------------------------------------------------------------------
// Route registration and middleware tests
// ---------------------------------------------------------------------------

func TestRoutesRegistered(t *testing.T) {
	s := newTestServer(t)

	wanted := map[string]bool{
		"POST:/v1/predict":          false,
		"POST:/v1/ingest":           false,
		"GET:/v1/status":            false,
		"POST:/v1/reset":            false,
		"GET:/v1/sessions/current":  false,
		"GET:/health":               false,
		"GET:/health/live":          false,
		"GET:/health/ready":         false,
		"GET:/metrics":              false,
	}

	for _, route := range s.router.Routes() {
		key := route.Method + ":" + route.Path
		if _, ok := wanted[key]; ok {
			wanted[key] = true
		}
	}

	for route, found := range wanted {
		if !found {
			t.Errorf("route %s not registered", route)
		}
	}
}

func TestSecurityHeadersApplied(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRequestIDPropagated(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Request-ID", "req-fixed")
	s.router.ServeHTTP(w, req)

	assert.Equal(t, "req-fixed", w.Header().Get("X-Request-ID"))
}

func TestWithEngineOption(t *testing.T) {
	engine := guardian.NewEngine().WithValidator(guardian.NewValidator().WithTolerance(0.5))
	s := newTestServer(t, WithEngine(engine))

	// 20% inflation passes at a 50% tolerance
	rows := consistentReadings("S020", 120)
	for i := range rows {
		rows[i]["energy_kwh"] = rows[i]["energy_kwh"].(float64) * 1.2
	}

	w := postJSON(t, s, "/v1/predict", map[string]interface{}{
		"session_id": "S020",
		"data":       rows,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var decision guardian.Decision
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decision))
	assert.Equal(t, guardian.StatusValid, decision.Status)
}

func TestGenerateRequestID(t *testing.T) {
	a := generateRequestID()
	b := generateRequestID()

	if a == b {
		t.Error("request IDs should be unique")
	}
	if len(a) != 32 {
		t.Errorf("expected 32 hex chars, got %d", len(a))
	}
}

func TestModelLoadFailureDegradesToRuleOnly(t *testing.T) {
	cfg := testConfig()
	cfg.ModelPath = fmt.Sprintf("%s/does-not-exist.json", t.TempDir())

	s, err := New(cfg)
	require.NoError(t, err, "a missing model must not prevent startup")
	assert.False(t, s.engine.ModelLoaded())

	// Rule-only evaluation still works
	w := postJSON(t, s, "/v1/predict", map[string]interface{}{
		"session_id": "S030",
		"data":       consistentReadings("S030", 30),
	})
	assert.Equal(t, http.StatusOK, w.Code)
}
