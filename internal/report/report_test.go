package report_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stationcheck/stationcheck/internal/contract"
	"github.com/stationcheck/stationcheck/internal/report"
	"github.com/stationcheck/stationcheck/internal/station"
)

func sampleReport() *contract.Report {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &contract.Report{
		ID:         "rep-1",
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Second),
		Summary:    contract.Summary{Total: 2, Passed: 1, Failed: 1},
		Results: []contract.Result{
			{Scenario: "version is non-blank for an existing station", StationID: 1, Status: contract.StatusPassed},
			{
				Scenario:  "interval is an integer for an existing station",
				Severity:  contract.SeverityCritical,
				StationID: 2,
				Status:    contract.StatusFailed,
				Outcome:   station.OutcomeSchemaViolation,
				Error:     "getInterval response: field result: missing",
				Err:       errors.New("not serialized"),
			},
		},
	}
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := report.LogPublisher{Logger: zerolog.New(&buf)}

	require.NoError(t, p.Publish(context.Background(), sampleReport()))

	out := buf.String()
	assert.Contains(t, out, `"message":"contract violation"`)
	assert.Contains(t, out, `"station_id":2`)
	assert.Contains(t, out, `"outcome":"schema_violation"`)
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, `"failed":1`)
}

func TestJSONPublisher(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.NewJSONPublisher(&buf).Publish(context.Background(), sampleReport()))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "rep-1", decoded["id"])
	assert.NotContains(t, buf.String(), "not serialized")

	results := decoded["results"].([]any)
	require.Len(t, results, 2)
	failed := results[1].(map[string]any)
	assert.Equal(t, "failed", failed["status"])
	assert.Equal(t, float64(2), failed["station_id"])
}

func TestFilePublisher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	p := report.FilePublisher{Path: path}

	require.NoError(t, p.Publish(context.Background(), sampleReport()))
	require.NoError(t, p.Publish(context.Background(), sampleReport()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded contract.Report
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "rep-1", decoded.ID)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are cleaned up")
}

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(context.Context, *contract.Report) error { return f.err }

func TestMultiPublisher(t *testing.T) {
	var buf bytes.Buffer
	first := errors.New("first")
	second := errors.New("second")

	m := report.MultiPublisher{
		failingPublisher{err: first},
		report.NewJSONPublisher(&buf),
		failingPublisher{err: second},
	}

	err := m.Publish(context.Background(), sampleReport())
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)
	assert.NotEmpty(t, buf.String(), "later publishers still run")

	assert.NoError(t, report.MultiPublisher{}.Publish(context.Background(), sampleReport()))
}
