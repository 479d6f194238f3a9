// Package report publishes contract run reports.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/stationcheck/stationcheck/internal/contract"
)

// Publisher delivers a finished report somewhere.
type Publisher interface {
	Publish(ctx context.Context, r *contract.Report) error
}

// LogPublisher writes a summary line and one line per failure.
type LogPublisher struct {
	Logger zerolog.Logger
}

// Publish logs the report.
func (p LogPublisher) Publish(_ context.Context, r *contract.Report) error {
	for _, f := range r.Failures() {
		p.Logger.Error().
			Str("report_id", r.ID).
			Str("scenario", f.Scenario).
			Str("severity", string(f.Severity)).
			Int64("station_id", int64(f.StationID)).
			Str("outcome", string(f.Outcome)).
			Str("error", f.Error).
			Msg("contract violation")
	}

	evt := p.Logger.Info()
	if r.Failed() {
		evt = p.Logger.Warn()
	}
	evt.
		Str("report_id", r.ID).
		Int("total", r.Summary.Total).
		Int("passed", r.Summary.Passed).
		Int("failed", r.Summary.Failed).
		Int("skipped", r.Summary.Skipped).
		Int("manual", r.Summary.Manual).
		Dur("elapsed", r.FinishedAt.Sub(r.StartedAt)).
		Msg("contract report")
	return nil
}

// JSONPublisher writes the report as indented JSON.
type JSONPublisher struct {
	w io.Writer
}

// NewJSONPublisher writes reports to w.
func NewJSONPublisher(w io.Writer) *JSONPublisher {
	return &JSONPublisher{w: w}
}

// Publish encodes the report.
func (p *JSONPublisher) Publish(_ context.Context, r *contract.Report) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return nil
}

// FilePublisher writes each report to a file, replacing it atomically.
type FilePublisher struct {
	Path string
}

// Publish writes the report to Path.
func (p FilePublisher) Publish(ctx context.Context, r *contract.Report) error {
	dir := filepath.Dir(p.Path)
	tmp, err := os.CreateTemp(dir, ".report-*.json")
	if err != nil {
		return fmt.Errorf("creating report file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := NewJSONPublisher(tmp).Publish(ctx, r); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing report file: %w", err)
	}
	if err := os.Rename(tmp.Name(), p.Path); err != nil {
		return fmt.Errorf("writing report file: %w", err)
	}
	return nil
}

// MultiPublisher publishes to every publisher and joins their errors.
type MultiPublisher []Publisher

// Publish calls each publisher in order, even after a failure.
func (m MultiPublisher) Publish(ctx context.Context, r *contract.Report) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
