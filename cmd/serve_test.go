package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/branch-insights/internal/config"
	"github.com/sells-group/branch-insights/internal/engine"
	"github.com/sells-group/branch-insights/internal/model"
	"github.com/sells-group/branch-insights/internal/synth"
	"github.com/sells-group/branch-insights/internal/tables"
)

type failingSource struct{}

func (failingSource) Name() string { return "failing" }

func (failingSource) Load(context.Context) (*model.Tables, error) {
	return nil, eris.New("source offline")
}

// emptyStore never has a snapshot.
type emptyStore struct{}

func (emptyStore) Current() *model.Snapshot { return nil }
func (emptyStore) SourceName() string       { return "empty" }
func (emptyStore) Reload(context.Context) (*model.Snapshot, error) {
	return nil, eris.New("nothing to load")
}

func demoHolder(t *testing.T) *tables.Holder {
	t.Helper()
	opts := synth.DefaultOptions(11)
	opts.Months = 6
	opts.OrdersPerMonth = 30
	h := tables.NewHolder(&tables.DemoSource{Options: opts})
	_, err := h.Reload(context.Background())
	require.NoError(t, err)
	return h
}

func testRouter(t *testing.T, store snapshotStore, sc config.ServerConfig) http.Handler {
	t.Helper()
	reg, err := engine.NewRegistry(config.Defaults(), store)
	require.NoError(t, err)
	return buildRouter(store, reg, sc)
}

func serverConfig() config.ServerConfig {
	return config.Defaults().Server
}

func do(h http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestRouter_Health(t *testing.T) {
	h := demoHolder(t)
	router := testRouter(t, h, serverConfig())

	rr := do(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.NotEmpty(t, rr.Header().Get(requestIDHeader))

	body := decodeBody(t, rr)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, h.Current().Version, body["snapshot"])
}

func TestRouter_RequestIDIsEchoed(t *testing.T) {
	router := testRouter(t, demoHolder(t), serverConfig())

	id := "5f0c3c4e-7f0e-4d8c-9d53-3f0a2a7b1c11"
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, id)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, id, rr.Header().Get(requestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "not-a-uuid")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.NotEqual(t, "not-a-uuid", rr.Header().Get(requestIDHeader))
}

func TestRouter_Snapshot(t *testing.T) {
	h := demoHolder(t)
	router := testRouter(t, h, serverConfig())

	rr := do(router, http.MethodGet, "/v1/snapshot", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	assert.Equal(t, h.Current().Version, body["version"])
	assert.Equal(t, "demo", body["source"])
	rows, ok := body["rows"].(map[string]any)
	require.True(t, ok)
	for _, name := range model.TableNames() {
		assert.Contains(t, rows, name)
	}
	assert.Contains(t, body, "coverage")
}

func TestRouter_NoSnapshot(t *testing.T) {
	router := testRouter(t, emptyStore{}, serverConfig())

	rr := do(router, http.MethodGet, "/v1/snapshot", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = do(router, http.MethodPost, "/v1/growth", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRouter_Reload(t *testing.T) {
	h := demoHolder(t)
	before := h.Current().Version
	router := testRouter(t, h, serverConfig())

	rr := do(router, http.MethodPost, "/v1/reload", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	assert.NotEqual(t, before, body["version"])
	assert.Equal(t, h.Current().Version, body["version"])
}

func TestRouter_ReloadFailureKeepsSnapshot(t *testing.T) {
	router := testRouter(t, tables.NewHolder(failingSource{}), serverConfig())

	rr := do(router, http.MethodPost, "/v1/reload", nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, decodeBody(t, rr)["error"], "previous snapshot kept")
}

func TestRouter_Engines(t *testing.T) {
	router := testRouter(t, demoHolder(t), serverConfig())

	tests := []struct {
		name string
		path string
		body string
		code int
	}{
		{"combo all branches", "/v1/combo", `{}`, http.StatusOK},
		{"combos alias", "/v1/combos", `{"branch":"jnah","top_k":3}`, http.StatusOK},
		{"forecast", "/v1/forecast", `{"branch":"Conut - Tyre","horizon_months":2}`, http.StatusOK},
		{"staffing", "/v1/staffing", `{"branch":"conut","shift":"evening"}`, http.StatusOK},
		{"expansion", "/v1/expansion", ``, http.StatusOK},
		{"growth", "/v1/growth", `{"branch":"all"}`, http.StatusOK},
		{"unknown kind", "/v1/pricing", `{}`, http.StatusBadRequest},
		{"unknown branch", "/v1/combo", `{"branch":"Beirut"}`, http.StatusBadRequest},
		{"forecast needs one branch", "/v1/forecast", `{}`, http.StatusBadRequest},
		{"horizon out of range", "/v1/forecast", `{"branch":"conut","horizon_months":13}`, http.StatusBadRequest},
		{"unknown shift", "/v1/staffing", `{"branch":"conut","shift":"night"}`, http.StatusBadRequest},
		{"malformed body", "/v1/combo", `{"top_k":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(router, http.MethodPost, tt.path, []byte(tt.body))
			assert.Equal(t, tt.code, rr.Code, rr.Body.String())

			body := decodeBody(t, rr)
			if tt.code == http.StatusOK {
				assert.Contains(t, body, "status")
				assert.Contains(t, body, "confidence")
				assert.Contains(t, body, "explanation")
			} else {
				assert.NotEmpty(t, body["error"])
			}
		})
	}
}

func TestRouter_InputErrorCarriesKindAndField(t *testing.T) {
	router := testRouter(t, demoHolder(t), serverConfig())

	rr := do(router, http.MethodPost, "/v1/staffing", []byte(`{"branch":"conut","shift":"night"}`))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	body := decodeBody(t, rr)
	assert.Equal(t, string(model.KindUnknownShift), body["kind"])
	assert.Equal(t, "shift", body["field"])
}

func TestRouter_AllBranches(t *testing.T) {
	router := testRouter(t, demoHolder(t), serverConfig())

	rr := do(router, http.MethodPost, "/v1/forecast?all_branches=true", []byte(`{"horizon_months":1}`))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var body struct {
		Kind     string `json:"kind"`
		Branches []struct {
			Branch string         `json:"branch"`
			Result map[string]any `json:"result"`
		} `json:"branches"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "forecast", body.Kind)
	require.Len(t, body.Branches, len(model.Branches()))
	for i, b := range model.Branches() {
		assert.Equal(t, string(b), body.Branches[i].Branch)
		assert.Contains(t, body.Branches[i].Result, "status")
	}
}

func TestRouter_RateLimit(t *testing.T) {
	sc := serverConfig()
	sc.RateLimit = 0.001
	sc.Burst = 2
	router := testRouter(t, demoHolder(t), sc)

	for range 2 {
		rr := do(router, http.MethodGet, "/v1/snapshot", nil)
		assert.Equal(t, http.StatusOK, rr.Code)
	}
	rr := do(router, http.MethodGet, "/v1/snapshot", nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))

	// Health stays outside the limiter.
	rr = do(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouter_CORS(t *testing.T) {
	sc := serverConfig()
	sc.CORSOrigins = []string{"https://dash.example.com"}
	router := testRouter(t, demoHolder(t), sc)

	req := httptest.NewRequest(http.MethodOptions, "/v1/growth", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, "https://dash.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}
