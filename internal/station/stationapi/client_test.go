package stationapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/stationcheck/stationcheck/internal/resilience"
	"github.com/stationcheck/stationcheck/internal/simulator"
	"github.com/stationcheck/stationcheck/internal/station"
	"github.com/stationcheck/stationcheck/internal/station/stationapi"
)

type captured struct {
	path        string
	method      string
	contentType string
	body        map[string]any
	rawBody     string
}

// fixedServer answers every request with the given status, content type and
// body, and records the last request it saw.
func fixedServer(t *testing.T, status int, contentType, body string) (*httptest.Server, *captured) {
	t.Helper()
	var mu sync.Mutex
	last := &captured{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		last.path = r.URL.Path
		last.method = r.Method
		last.contentType = r.Header.Get("Content-Type")
		last.rawBody = string(data)
		last.body = nil
		_ = json.Unmarshal(data, &last.body)
		mu.Unlock()

		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, last
}

func newClient(t *testing.T, baseURL string, opts ...func(*stationapi.ClientConfig)) *stationapi.Client {
	t.Helper()
	cfg := stationapi.ClientConfig{
		BaseURL:  baseURL,
		BasePath: "/v1/tests",
		Timeout:  2 * time.Second,
		Logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	client, err := stationapi.NewClient(cfg)
	require.NoError(t, err)
	return client
}

func TestNewClient_RequiresAbsoluteURL(t *testing.T) {
	for _, base := range []string{"", "stations.local", "/v1/tests", "://bad"} {
		_, err := stationapi.NewClient(stationapi.ClientConfig{BaseURL: base})
		assert.Error(t, err, "base %q", base)
	}
}

func TestClient_Endpoint(t *testing.T) {
	tests := []struct {
		base, path string
		id         station.StationID
		want       string
	}{
		{"http://stations.test", "/v1/tests", 1, "http://stations.test/v1/tests/1"},
		{"http://stations.test/", "v1/tests/", 0, "http://stations.test/v1/tests/0"},
		{"http://stations.test", "/v1/tests", -1, "http://stations.test/v1/tests/-1"},
		{"http://stations.test/api", "", 9223372036854775807, "http://stations.test/api/9223372036854775807"},
	}

	for _, tt := range tests {
		client, err := stationapi.NewClient(stationapi.ClientConfig{BaseURL: tt.base, BasePath: tt.path})
		require.NoError(t, err)
		got, err := client.Endpoint(tt.id)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestClient_TypedRequests(t *testing.T) {
	server, last := fixedServer(t, http.StatusOK, "application/json", `{"result":"OK"}`)
	client := newClient(t, server.URL)

	resp, err := client.SetValues(context.Background(), 5, 0)
	require.NoError(t, err)
	assert.True(t, resp.Succeeded())

	assert.Equal(t, "/v1/tests/5", last.path)
	assert.Equal(t, http.MethodPost, last.method)
	assert.Equal(t, "application/json", last.contentType)
	assert.JSONEq(t, `{"command":"setValues","payload":0}`, last.rawBody)

	_, err = client.Dispatch(context.Background(), 5, station.NewRequest(station.SetValues))
	require.NoError(t, err)
	assert.JSONEq(t, `{"command":"setValues"}`, last.rawBody)
}

func TestClient_DecodesByOutgoingCommand(t *testing.T) {
	server, _ := fixedServer(t, http.StatusOK, "application/json", `{"result":"1.0.0"}`)
	client := newClient(t, server.URL)

	v, err := client.GetVersion(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", v.Result)

	_, err = client.GetInterval(context.Background(), 1)
	assert.ErrorIs(t, err, station.ErrSchemaViolation, "a string result is not an interval")
}

func TestClient_Envelope(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		wantErr     error
	}{
		{"ok", http.StatusOK, "application/json", `{"result":30}`, nil},
		{"charset parameter", http.StatusOK, "application/json; charset=utf-8", `{"result":30}`, nil},
		{"bad request", http.StatusBadRequest, "application/json", `{"error":"unknown command"}`, station.ErrContractViolation},
		{"not found", http.StatusNotFound, "application/json", `{}`, station.ErrContractViolation},
		{"server error", http.StatusInternalServerError, "application/json", `{"result":30}`, station.ErrContractViolation},
		{"created", http.StatusCreated, "application/json", `{"result":30}`, station.ErrContractViolation},
		{"text body", http.StatusOK, "text/plain", `30`, station.ErrContractViolation},
		{"no content type", http.StatusOK, "", `{"result":30}`, station.ErrContractViolation},
		{"json suffix type", http.StatusOK, "application/problem+json", `{"result":30}`, station.ErrContractViolation},
		{"missing result", http.StatusOK, "application/json", `{}`, station.ErrSchemaViolation},
		{"html body", http.StatusOK, "application/json", `<html></html>`, station.ErrSchemaViolation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := fixedServer(t, tt.status, tt.contentType, tt.body)
			client := newClient(t, server.URL)

			resp, err := client.GetInterval(context.Background(), 1)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, int64(30), resp.Result)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestClient_ContractViolationCarriesReply(t *testing.T) {
	server, _ := fixedServer(t, http.StatusBadRequest, "application/json", `{"error":"unknown command"}`)
	client := newClient(t, server.URL)

	_, err := client.GetVersion(context.Background(), 8)

	var cv *station.ContractViolation
	require.True(t, errors.As(err, &cv))
	assert.Equal(t, station.StationID(8), cv.StationID)
	assert.Equal(t, http.StatusBadRequest, cv.StatusCode)
	assert.Equal(t, "application/json", cv.ContentType)
	assert.JSONEq(t, `{"error":"unknown command"}`, string(cv.Body))
}

func TestClient_TransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	client := newClient(t, baseURL)

	_, err := client.GetVersion(context.Background(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, station.ErrTransport)
	assert.NotErrorIs(t, err, station.ErrContractViolation)

	_, err = client.DispatchRaw(context.Background(), 1, station.MalformedRequest{"command": 0})
	assert.ErrorIs(t, err, station.ErrTransport)
}

func TestClient_DispatchRaw(t *testing.T) {
	server, last := fixedServer(t, http.StatusBadRequest, "application/json", `{"error":"bad"}`)
	client := newClient(t, server.URL)

	raw, err := client.DispatchRaw(context.Background(), 3, station.MalformedRequest{
		"command": "setValues",
		"payload": "1",
	})
	require.NoError(t, err, "raw dispatch never applies the envelope")
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
	assert.Equal(t, "application/json", raw.ContentType)
	assert.JSONEq(t, `{"error":"bad"}`, string(raw.Body))
	assert.Equal(t, "1", last.body["payload"])
}

func TestClient_DispatchMalformedTyped(t *testing.T) {
	server, last := fixedServer(t, http.StatusOK, "application/json", `{"result":"OK"}`)
	client := newClient(t, server.URL)

	resp, err := client.DispatchMalformedTyped(context.Background(), 3, station.SetValues, station.MalformedRequest{
		"command":               "setValues",
		"payload":               1,
		"random_frontend_field": "random_value",
	})
	require.NoError(t, err)
	assert.True(t, resp.(station.SetValuesResponse).Succeeded())
	assert.Equal(t, "random_value", last.body["random_frontend_field"])

	_, err = client.DispatchMalformedTyped(context.Background(), 3, station.CommandKind(0), nil)
	assert.ErrorIs(t, err, station.ErrUnknownCommand)
}

type recorder struct {
	mu       sync.Mutex
	started  []*station.Exchange
	finished []station.Exchange
}

func (r *recorder) ExchangeStarted(ctx context.Context, ex *station.Exchange) context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, ex)
	return ctx
}

func (r *recorder) ExchangeFinished(_ context.Context, ex *station.Exchange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, *ex)
}

func TestClient_Observer(t *testing.T) {
	server, _ := fixedServer(t, http.StatusOK, "application/json", `{"result":"FAILED"}`)
	rec := &recorder{}
	client := newClient(t, server.URL, func(cfg *stationapi.ClientConfig) { cfg.Observer = rec })

	_, err := client.SetValues(context.Background(), 4, -1)
	require.NoError(t, err)
	_, err = client.GetVersion(context.Background(), 4)
	require.Error(t, err)
	_, err = client.DispatchRaw(context.Background(), 4, nil)
	require.NoError(t, err)

	require.Len(t, rec.started, 3)
	require.Len(t, rec.finished, 3)

	set := rec.finished[0]
	assert.NotEmpty(t, set.ID)
	assert.Equal(t, station.StationID(4), set.StationID)
	assert.Equal(t, station.SetValues, set.Command)
	assert.Equal(t, http.MethodPost, set.Method)
	assert.Equal(t, server.URL+"/v1/tests/4", set.URL)
	assert.JSONEq(t, `{"command":"setValues","payload":-1}`, string(set.RequestBody))
	assert.Equal(t, http.StatusOK, set.StatusCode)
	assert.JSONEq(t, `{"result":"FAILED"}`, string(set.ResponseBody))
	assert.Equal(t, station.OutcomeDecoded, set.Outcome)
	assert.NoError(t, set.Err)

	assert.Equal(t, station.OutcomeSchemaViolation, rec.finished[1].Outcome)
	assert.ErrorIs(t, rec.finished[1].Err, station.ErrSchemaViolation)

	assert.Equal(t, station.OutcomeRaw, rec.finished[2].Outcome)
	assert.Equal(t, station.CommandKind(0), rec.finished[2].Command)
	assert.Equal(t, `{}`, string(rec.finished[2].RequestBody))
}

func TestClient_Registry(t *testing.T) {
	server, _ := fixedServer(t, http.StatusOK, "application/json", `{"result":"1.0.0"}`)
	registry := resilience.NewRegistry()
	client := newClient(t, server.URL, func(cfg *stationapi.ClientConfig) { cfg.Registry = registry })

	_, err := client.GetVersion(context.Background(), 1)
	require.NoError(t, err)

	health := registry.Health(stationapi.ClientName)
	require.NotNil(t, health)
	assert.Equal(t, int64(1), health.Successes)
	assert.Equal(t, int64(0), health.Failures)
	assert.True(t, health.IsHealthy())
}

func TestClient_CustomHTTPClientIsRegistered(t *testing.T) {
	server, _ := fixedServer(t, http.StatusOK, "application/json", `{"result":"1.0.0"}`)
	registry := resilience.NewRegistry()
	client := newClient(t, server.URL, func(cfg *stationapi.ClientConfig) {
		cfg.Registry = registry
		cfg.HTTPClient = server.Client()
	})

	_, err := client.GetVersion(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, registry.Health(stationapi.ClientName))
	assert.Equal(t, int64(1), registry.Health(stationapi.ClientName).Successes)
}

func TestClient_Simulator(t *testing.T) {
	fleet := simulator.NewFleet(simulator.Station{ID: 1, Version: "2.0.0", Interval: 15})
	server := httptest.NewServer(simulator.NewRouter(simulator.RouterConfig{Fleet: fleet, Logger: zerolog.Nop()}))
	t.Cleanup(server.Close)

	client := newClient(t, server.URL)
	ctx := context.Background()

	v, err := client.GetVersion(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", v.Result)

	set, err := client.SetValues(ctx, 1, 45)
	require.NoError(t, err)
	assert.True(t, set.Succeeded())

	iv, err := client.GetInterval(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(45), iv.Result)

	set, err = client.SetValues(ctx, 1, 0)
	require.NoError(t, err)
	require.NotNil(t, set.Result)
	assert.Equal(t, station.SetResultFailed, *set.Result)

	set, err = client.SetValues(ctx, -1, 10)
	require.NoError(t, err)
	assert.Nil(t, set.Result)

	v, err = client.GetVersion(ctx, -1)
	require.NoError(t, err)
	assert.Empty(t, v.Result)

	_, err = client.Dispatch(ctx, 1, station.NewRequest(station.SetValues))
	require.NoError(t, err, "missing payload is answered with FAILED")
}

func TestClient_PropagatesTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	headers := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Get("traceparent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":"1.0.0"}`))
	}))
	t.Cleanup(server.Close)

	client, err := stationapi.NewClient(stationapi.ClientConfig{BaseURL: server.URL, BasePath: "/v1/tests", Logger: zerolog.Nop()})
	require.NoError(t, err)

	ctx, span := sdktrace.NewTracerProvider().Tracer("test").Start(context.Background(), "parent")
	defer span.End()

	_, err = client.GetVersion(ctx, 1)
	require.NoError(t, err)

	traceparent := <-headers
	assert.Contains(t, traceparent, span.SpanContext().TraceID().String())
}

func TestClient_ServerErrorsStayContractViolations(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/v1/tests/1" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"result":"1.0.0"}`))
	}))
	t.Cleanup(server.Close)

	registry := resilience.NewRegistry()
	client := newClient(t, server.URL, func(cfg *stationapi.ClientConfig) { cfg.Registry = registry })
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := client.GetVersion(ctx, 1)
		require.ErrorIs(t, err, station.ErrContractViolation, "call %d", i+1)
		assert.NotErrorIs(t, err, station.ErrTransport)
	}
	assert.Equal(t, int32(6), hits.Load(), "every dispatch reaches the server")

	v, err := client.GetVersion(ctx, 2)
	require.NoError(t, err, "a failing station does not affect others")
	assert.Equal(t, "1.0.0", v.Result)
	assert.Equal(t, int32(7), hits.Load())

	health := registry.Health(stationapi.ClientName)
	require.NotNil(t, health)
	assert.Equal(t, int64(6), health.Failures)
	assert.Equal(t, int64(1), health.Successes)
	assert.Contains(t, health.LastError, "Internal Server Error")
	assert.True(t, health.IsHealthy())
}

func TestClient_OptionalCircuitBreakerIgnoresServerErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	cb := resilience.DefaultCircuitBreakerConfig(stationapi.ClientName)
	client := newClient(t, server.URL, func(cfg *stationapi.ClientConfig) { cfg.CircuitBreaker = &cb })

	for i := 0; i < 8; i++ {
		_, err := client.GetVersion(context.Background(), 1)
		require.ErrorIs(t, err, station.ErrContractViolation)
	}
	assert.Equal(t, int32(8), hits.Load())
}
