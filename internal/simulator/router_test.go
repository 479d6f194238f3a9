package simulator_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stationcheck/stationcheck/internal/simulator"
)

func newRouter(reject bool) http.Handler {
	fleet := simulator.NewFleet(simulator.Station{ID: 1, Version: "2.4.1", Interval: 30})
	return simulator.NewRouter(simulator.RouterConfig{
		BasePath:            "/v1/tests",
		Fleet:               fleet,
		RejectUnknownFields: reject,
		Logger:              zerolog.Nop(),
	})
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRouter_Commands(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{"version", "/v1/tests/1", `{"command":"getVersion"}`, http.StatusOK, `{"result":"2.4.1"}`},
		{"interval", "/v1/tests/1", `{"command":"getInterval"}`, http.StatusOK, `{"result":30}`},
		{"set ok", "/v1/tests/1", `{"command":"setValues","payload":1}`, http.StatusOK, `{"result":"OK"}`},
		{"set max", "/v1/tests/1", `{"command":"setValues","payload":2147483647}`, http.StatusOK, `{"result":"OK"}`},
		{"set zero", "/v1/tests/1", `{"command":"setValues","payload":0}`, http.StatusOK, `{"result":"FAILED"}`},
		{"set min int", "/v1/tests/1", `{"command":"setValues","payload":-2147483648}`, http.StatusOK, `{"result":"FAILED"}`},
		{"set overflow", "/v1/tests/1", `{"command":"setValues","payload":2147483648}`, http.StatusOK, `{"result":"FAILED"}`},
		{"set float", "/v1/tests/1", `{"command":"setValues","payload":1.5}`, http.StatusOK, `{"result":"FAILED"}`},
		{"set string", "/v1/tests/1", `{"command":"setValues","payload":"1"}`, http.StatusOK, `{"result":"FAILED"}`},
		{"set bool", "/v1/tests/1", `{"command":"setValues","payload":true}`, http.StatusOK, `{"result":"FAILED"}`},
		{"set absent", "/v1/tests/1", `{"command":"setValues"}`, http.StatusOK, `{"result":"FAILED"}`},
		{"extra field", "/v1/tests/1", `{"command":"setValues","payload":5,"random_frontend_field":"x"}`, http.StatusOK, `{"result":"OK"}`},
		{"unknown version", "/v1/tests/-1", `{"command":"getVersion"}`, http.StatusOK, `{"result":""}`},
		{"unknown interval", "/v1/tests/0", `{"command":"getInterval"}`, http.StatusOK, `{"result":0}`},
		{"unknown set", "/v1/tests/6", `{"command":"setValues","payload":1}`, http.StatusOK, `{"result":null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(t, newRouter(false), tt.path, tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.wantBody, w.Body.String())
		})
	}
}

func TestRouter_RejectsBadCommands(t *testing.T) {
	bodies := []string{
		`{"command":"random_non_existing_command","payload":1}`,
		`{"command":0,"payload":1}`,
		`{"command":1.5,"payload":1}`,
		`{"command":false,"payload":1}`,
		`{"command":null,"payload":1}`,
		`{"command":"","payload":1}`,
		`{"command":" ","payload":1}`,
		`{"command":"GETVERSION"}`,
		`{"payload":1}`,
		`{}`,
		`[]`,
		`not json`,
	}

	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			w := post(t, newRouter(false), "/v1/tests/1", body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestRouter_RejectUnknownFields(t *testing.T) {
	w := post(t, newRouter(true), "/v1/tests/1", `{"command":"setValues","payload":5,"extra":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post(t, newRouter(true), "/v1/tests/1", `{"command":"setValues","payload":5}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_SetThenGet(t *testing.T) {
	h := newRouter(false)

	w := post(t, h, "/v1/tests/1", `{"command":"setValues","payload":42}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = post(t, h, "/v1/tests/1", `{"command":"getInterval"}`)
	assert.JSONEq(t, `{"result":42}`, w.Body.String())
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	h := newRouter(false)

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		req := httptest.NewRequest(method, "/v1/tests/1", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, method)
	}
}

func TestRouter_RequestID(t *testing.T) {
	w := post(t, newRouter(false), "/v1/tests/1", `{"command":"getVersion"}`)
	assert.Contains(t, w.Header().Get("X-Request-Id"), "req_")

	req := httptest.NewRequest(http.MethodPost, "/v1/tests/1", strings.NewReader(`{"command":"getVersion"}`))
	req.Header.Set("X-Request-Id", "existing_request_id")
	rec := httptest.NewRecorder()
	newRouter(false).ServeHTTP(rec, req)
	assert.Equal(t, "existing_request_id", rec.Header().Get("X-Request-Id"))
}

func TestRouter_RateLimit(t *testing.T) {
	h := simulator.NewRouter(simulator.RouterConfig{
		Fleet:     simulator.NewFleet(simulator.Station{ID: 1}),
		RateLimit: &simulator.RateLimitConfig{RequestLimit: 2, WindowLength: time.Minute},
		Logger:    zerolog.Nop(),
	})

	for i := 0; i < 2; i++ {
		w := post(t, h, "/v1/tests/1", `{"command":"getVersion"}`)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := post(t, h, "/v1/tests/1", `{"command":"getVersion"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}

func TestFleet(t *testing.T) {
	fleet := simulator.NewFleetFromIDs(nil)
	fleet.Add(simulator.Station{ID: 3})
	fleet.Add(simulator.Station{ID: 1, Version: "9.9"})

	assert.Equal(t, simulator.DefaultVersion, fleet.Version(3))
	assert.Equal(t, "9.9", fleet.Version(1))
	assert.Equal(t, "", fleet.Version(2))
	assert.False(t, fleet.SetInterval(2, 10))
	assert.True(t, fleet.SetInterval(3, 10))
	assert.Equal(t, int64(10), fleet.Interval(3))
	assert.Len(t, fleet.IDs(), 2)
	assert.EqualValues(t, 1, fleet.IDs()[0])
}
