package contract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stationcheck/stationcheck/internal/station"
)

// DefaultConcurrency is the number of stations exercised in parallel.
const DefaultConcurrency = 4

// ErrOverlappingTargets is returned when a station id is listed as both
// existing and non-existing.
var ErrOverlappingTargets = errors.New("station listed as both existing and non-existing")

// Targets lists the station ids scenarios run against.
type Targets struct {
	Existing    []station.StationID
	NonExisting []station.StationID
}

func (t Targets) validate() error {
	seen := make(map[station.StationID]struct{}, len(t.Existing))
	for _, id := range t.Existing {
		seen[id] = struct{}{}
	}
	for _, id := range t.NonExisting {
		if _, ok := seen[id]; ok {
			return fmt.Errorf("%w: %s", ErrOverlappingTargets, id)
		}
	}
	return nil
}

// Options tune how the matrix is interpreted.
type Options struct {
	// AssumeUnknownFieldsAccepted runs the scenarios that expect unknown
	// request fields to be tolerated. When false they are skipped.
	AssumeUnknownFieldsAccepted bool
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{AssumeUnknownFieldsAccepted: true}
}

// RunnerConfig holds configuration for a Runner.
type RunnerConfig struct {
	Client Client

	// Scenarios defaults to Matrix().
	Scenarios []Scenario

	Options Options

	// Concurrency bounds how many stations run at once.
	Concurrency int

	// BaseURL is copied into the report.
	BaseURL string

	Logger zerolog.Logger
}

// Runner executes the scenario matrix. Stations run concurrently; scenarios
// for one station run sequentially in matrix order since they share state.
type Runner struct {
	client      Client
	scenarios   []Scenario
	opts        Options
	concurrency int
	baseURL     string
	logger      zerolog.Logger
}

// NewRunner creates a new runner.
func NewRunner(cfg RunnerConfig) *Runner {
	scenarios := cfg.Scenarios
	if scenarios == nil {
		scenarios = Matrix()
	}
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Runner{
		client:      cfg.Client,
		scenarios:   scenarios,
		opts:        cfg.Options,
		concurrency: concurrency,
		baseURL:     cfg.BaseURL,
		logger:      cfg.Logger,
	}
}

type job struct {
	id        station.StationID
	target    Target
	scenarios []Scenario
	results   []Result
}

// Run executes every scenario against its targets and returns the report.
// Results are ordered by target group, then station, then matrix order.
func (r *Runner) Run(ctx context.Context, targets Targets) (*Report, error) {
	if err := targets.validate(); err != nil {
		return nil, err
	}

	report := &Report{
		ID:        uuid.NewString(),
		BaseURL:   r.baseURL,
		StartedAt: time.Now().UTC(),
	}

	jobs := r.plan(targets)

	r.logger.Info().
		Str("report_id", report.ID).
		Int("scenarios", len(r.scenarios)).
		Int("existing", len(targets.Existing)).
		Int("non_existing", len(targets.NonExisting)).
		Msg("starting contract run")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, j := range jobs {
		g.Go(func() error {
			r.runJob(gctx, j)
			return nil
		})
	}
	_ = g.Wait()

	for _, j := range jobs {
		report.Results = append(report.Results, j.results...)
	}
	for _, s := range r.scenarios {
		if s.Target == TargetNone {
			report.Results = append(report.Results, r.unstationed(s))
		}
	}

	report.FinishedAt = time.Now().UTC()
	report.Summary = summarize(report.Results)

	r.logger.Info().
		Str("report_id", report.ID).
		Int("passed", report.Summary.Passed).
		Int("failed", report.Summary.Failed).
		Int("skipped", report.Summary.Skipped).
		Int("manual", report.Summary.Manual).
		Dur("elapsed", report.FinishedAt.Sub(report.StartedAt)).
		Msg("contract run finished")

	return report, ctx.Err()
}

func (r *Runner) plan(targets Targets) []*job {
	var jobs []*job
	add := func(ids []station.StationID, target Target) {
		var scenarios []Scenario
		for _, s := range r.scenarios {
			if s.Target == target {
				scenarios = append(scenarios, s)
			}
		}
		if len(scenarios) == 0 {
			return
		}
		for _, id := range ids {
			jobs = append(jobs, &job{id: id, target: target, scenarios: scenarios})
		}
	}
	add(targets.Existing, TargetExisting)
	add(targets.NonExisting, TargetNonExisting)
	return jobs
}

func (r *Runner) runJob(ctx context.Context, j *job) {
	for _, s := range j.scenarios {
		j.results = append(j.results, r.runOne(ctx, s, j.id))
	}
}

func (r *Runner) runOne(ctx context.Context, s Scenario, id station.StationID) Result {
	res := newResult(s, id)

	switch {
	case s.Manual || s.Run == nil:
		res.Status = StatusManual
		res.Steps = s.Steps
		return res
	case s.Assumption && !r.opts.AssumeUnknownFieldsAccepted:
		res.Status = StatusSkipped
		res.Error = "unknown request fields are not assumed to be accepted"
		return res
	case ctx.Err() != nil:
		res.Status = StatusSkipped
		res.Err = ctx.Err()
		res.Error = ctx.Err().Error()
		return res
	}

	start := time.Now()
	err := s.Run(ctx, r.client, id)
	res.Duration = time.Since(start)

	if err == nil {
		res.Status = StatusPassed
		r.logger.Debug().
			Str("scenario", s.Name).
			Int64("station_id", int64(id)).
			Msg("scenario passed")
		return res
	}

	res.Status = StatusFailed
	res.Err = err
	res.Error = err.Error()
	if !errors.Is(err, ErrExpectation) {
		res.Outcome = station.OutcomeOf(err)
	}
	r.logger.Warn().
		Err(err).
		Str("scenario", s.Name).
		Str("severity", string(s.Severity)).
		Int64("station_id", int64(id)).
		Msg("scenario failed")
	return res
}

func (r *Runner) unstationed(s Scenario) Result {
	res := newResult(s, 0)
	res.Status = StatusManual
	res.Steps = s.Steps
	if !s.Manual && s.Run != nil {
		res.Status = StatusSkipped
		res.Error = "scenario has no station target"
	}
	return res
}

func newResult(s Scenario, id station.StationID) Result {
	return Result{
		Scenario:  s.Name,
		Features:  s.FeatureTokens(),
		Severity:  s.Severity,
		Target:    s.Target.String(),
		StationID: id,
	}
}
