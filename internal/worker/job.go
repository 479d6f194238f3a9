// Package worker runs contract jobs in the background, triggered by Pub/Sub
// messages or a fixed schedule.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stationcheck/stationcheck/internal/contract"
	"github.com/stationcheck/stationcheck/internal/fixtures"
	"github.com/stationcheck/stationcheck/internal/report"
	"github.com/stationcheck/stationcheck/internal/station"
)

// DefaultJobTimeout bounds a single contract run.
const DefaultJobTimeout = 5 * time.Minute

// ContractJob loads fixtures, runs the contract matrix and publishes the report.
type ContractJob struct {
	runner      *contract.Runner
	client      contract.Client
	source      fixtures.Source
	nonExisting []station.StationID
	publisher   report.Publisher
	timeout     time.Duration
	waitTimeout time.Duration
	logger      zerolog.Logger

	metrics *JobMetrics
}

// JobMetrics tracks contract job statistics.
type JobMetrics struct {
	mu sync.RWMutex

	TotalRuns        int64
	ViolatingRuns    int64
	ErroredRuns      int64
	ScenarioFailures int64

	LastRunAt       time.Time
	LastRunDuration time.Duration
	LastReportID    string
}

// ContractJobConfig holds configuration for creating a ContractJob.
type ContractJobConfig struct {
	Runner      *contract.Runner
	Client      contract.Client
	Source      fixtures.Source
	NonExisting []station.StationID
	Publisher   report.Publisher

	// Timeout bounds each run. Default: 5 minutes
	Timeout time.Duration

	// WaitTimeout bounds the readiness wait of a health check.
	WaitTimeout time.Duration

	Logger zerolog.Logger
}

// NewContractJob creates a new contract job.
func NewContractJob(cfg ContractJobConfig) *ContractJob {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = report.LogPublisher{Logger: cfg.Logger}
	}
	return &ContractJob{
		runner:      cfg.Runner,
		client:      cfg.Client,
		source:      cfg.Source,
		nonExisting: cfg.NonExisting,
		publisher:   publisher,
		timeout:     timeout,
		waitTimeout: cfg.WaitTimeout,
		logger:      cfg.Logger,
		metrics:     &JobMetrics{},
	}
}

// Run executes one contract run. override replaces the fixture source when
// non-empty.
func (j *ContractJob) Run(ctx context.Context, override []station.StationID) (*contract.Report, error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	start := time.Now()
	rep, err := j.run(ctx, override)
	j.updateMetrics(rep, err, start)
	return rep, err
}

func (j *ContractJob) run(ctx context.Context, override []station.StationID) (*contract.Report, error) {
	existing := override
	if len(existing) == 0 {
		ids, err := j.source.StationIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading stations: %w", err)
		}
		existing = ids
	}

	rep, err := j.runner.Run(ctx, contract.Targets{Existing: existing, NonExisting: j.nonExisting})
	if rep == nil {
		return nil, err
	}

	if pubErr := j.publisher.Publish(ctx, rep); pubErr != nil {
		err = errors.Join(err, fmt.Errorf("publishing report: %w", pubErr))
	}
	return rep, err
}

// HealthCheck waits for the first fixture station to answer getVersion.
func (j *ContractJob) HealthCheck(ctx context.Context) error {
	ids, err := j.source.StationIDs(ctx)
	if err != nil {
		return fmt.Errorf("loading stations: %w", err)
	}
	return contract.WaitForService(ctx, j.client, ids[0], j.waitTimeout)
}

func (j *ContractJob) updateMetrics(rep *contract.Report, err error, start time.Time) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	j.metrics.LastRunAt = start
	j.metrics.LastRunDuration = time.Since(start)
	if err != nil {
		j.metrics.ErroredRuns++
	}
	if rep != nil {
		j.metrics.LastReportID = rep.ID
		j.metrics.ScenarioFailures += int64(rep.Summary.Failed)
		if rep.Failed() {
			j.metrics.ViolatingRuns++
		}
	}
}

// GetMetrics returns a copy of the current metrics.
func (j *ContractJob) GetMetrics() JobMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return JobMetrics{
		TotalRuns:        j.metrics.TotalRuns,
		ViolatingRuns:    j.metrics.ViolatingRuns,
		ErroredRuns:      j.metrics.ErroredRuns,
		ScenarioFailures: j.metrics.ScenarioFailures,
		LastRunAt:        j.metrics.LastRunAt,
		LastRunDuration:  j.metrics.LastRunDuration,
		LastReportID:     j.metrics.LastReportID,
	}
}

// MetricsSnapshot returns the current metrics as a map for the health endpoint.
func (j *ContractJob) MetricsSnapshot() map[string]any {
	m := j.GetMetrics()
	return map[string]any{
		"total_runs":        m.TotalRuns,
		"violating_runs":    m.ViolatingRuns,
		"errored_runs":      m.ErroredRuns,
		"scenario_failures": m.ScenarioFailures,
		"last_run_at":       m.LastRunAt,
		"last_run_duration": m.LastRunDuration.String(),
		"last_report_id":    m.LastReportID,
	}
}

// RunEvery runs the job at once and then on every tick until ctx is done.
func (j *ContractJob) RunEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := j.Run(ctx, nil); err != nil && ctx.Err() == nil {
			j.logger.Error().Err(err).Msg("scheduled contract run failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
