package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stationcheck/stationcheck/internal/contract"
	"github.com/stationcheck/stationcheck/internal/simulator"
)

func startSimulator(t *testing.T, reject bool) {
	t.Helper()

	fleet := simulator.NewFleet(
		simulator.Station{ID: 1, Version: "2.4.1", Interval: 30},
		simulator.Station{ID: 2, Version: "2.4.1", Interval: 60},
	)
	server := httptest.NewServer(simulator.NewRouter(simulator.RouterConfig{
		Fleet:               fleet,
		RejectUnknownFields: reject,
		Logger:              zerolog.Nop(),
	}))
	t.Cleanup(server.Close)

	t.Setenv("STATION_BASE_URI", server.URL)
	t.Setenv("STATION_FIXTURES", "static")
	t.Setenv("STATION_IDS", "1,2")
	t.Setenv("STATION_LOG_LEVEL", "error")
	t.Setenv("STATION_WAIT_TIMEOUT", "2s")
}

func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Commands(t *testing.T) {
	startSimulator(t, false)

	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantOut  string
	}{
		{"version", []string{"version", "1"}, exitOK, `"result": "2.4.1"`},
		{"interval", []string{"interval", "2"}, exitOK, `"result": 60`},
		{"set ok", []string{"set", "1", "45"}, exitOK, `"result": "OK"`},
		{"set failed", []string{"set", "1", "0"}, exitViolations, `"result": "FAILED"`},
		{"set unknown station", []string{"set", "6", "5"}, exitViolations, `"result": null`},
		{"raw rejected", []string{"raw", "1", `{"command":"reboot"}`}, exitOK, `"status_code": 400`},
		{"health", []string{"health"}, exitOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, out, stderr := execute(t, tt.args...)
			assert.Equal(t, tt.wantCode, code, stderr)
			assert.Contains(t, out, tt.wantOut)
		})
	}
}

func TestRun_UsageErrors(t *testing.T) {
	startSimulator(t, false)

	tests := []struct {
		name string
		args []string
	}{
		{"no command", nil},
		{"unknown command", []string{"reboot"}},
		{"missing station", []string{"version"}},
		{"bad station", []string{"version", "one"}},
		{"payload overflow", []string{"set", "1", "2147483648"}},
		{"raw not json", []string{"raw", "1", "{"}},
		{"bad stations flag", []string{"contract", "-stations", "1,x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := execute(t, tt.args...)
			assert.Equal(t, exitError, code)
			assert.Contains(t, stderr, "usage")
		})
	}
}

func TestRun_Contract(t *testing.T) {
	startSimulator(t, false)

	code, out, stderr := execute(t, "contract", "-wait")
	require.Equal(t, exitOK, code, stderr)

	var rep contract.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.False(t, rep.Failed())
	assert.Positive(t, rep.Summary.Passed)
	assert.Equal(t, 1, rep.Summary.Manual)
}

func TestRun_ContractViolationsExitNonZero(t *testing.T) {
	startSimulator(t, true)

	code, out, _ := execute(t, "contract", "-stations", "1")
	assert.Equal(t, exitViolations, code)

	var rep contract.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.True(t, rep.Failed())
}

func TestRun_BadConfig(t *testing.T) {
	t.Setenv("STATION_BASE_URI", "ftp://stations")
	code, _, stderr := execute(t, "version", "1")
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "http or https")
}
