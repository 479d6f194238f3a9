package contract

import (
	"time"

	"github.com/stationcheck/stationcheck/internal/station"
)

// Status is the result of one scenario against one station.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
	StatusManual  Status = "manual"
)

// Result records one scenario execution.
type Result struct {
	Scenario  string            `json:"scenario"`
	Features  []string          `json:"features"`
	Severity  Severity          `json:"severity"`
	Target    string            `json:"target"`
	StationID station.StationID `json:"station_id"`
	Status    Status            `json:"status"`
	Error     string            `json:"error,omitempty"`
	Outcome   station.Outcome   `json:"outcome,omitempty"`
	Steps     []string          `json:"steps,omitempty"`
	Duration  time.Duration     `json:"duration_ns"`

	Err error `json:"-"`
}

// Summary counts results by status.
type Summary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Manual  int `json:"manual"`
}

// Report is the outcome of one contract run.
type Report struct {
	ID         string    `json:"id"`
	BaseURL    string    `json:"base_url,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Summary    Summary   `json:"summary"`
	Results    []Result  `json:"results"`
}

// Failed reports whether any scenario failed.
func (r *Report) Failed() bool {
	return r.Summary.Failed > 0
}

// Failures returns the failed results in run order.
func (r *Report) Failures() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			out = append(out, res)
		}
	}
	return out
}

func summarize(results []Result) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case StatusPassed:
			s.Passed++
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		case StatusManual:
			s.Manual++
		}
	}
	return s
}
