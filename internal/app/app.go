// Package app builds the components shared by the stationcheck binaries from
// a loaded configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stationcheck/stationcheck/internal/config"
	"github.com/stationcheck/stationcheck/internal/contract"
	"github.com/stationcheck/stationcheck/internal/database"
	"github.com/stationcheck/stationcheck/internal/fixtures"
	"github.com/stationcheck/stationcheck/internal/report"
	"github.com/stationcheck/stationcheck/internal/resilience"
	"github.com/stationcheck/stationcheck/internal/station"
	"github.com/stationcheck/stationcheck/internal/station/stationapi"
	"github.com/stationcheck/stationcheck/internal/telemetry"
)

// NewLogger creates the root logger. An unknown level falls back to info.
func NewLogger(cfg config.LogConfig, w io.Writer, service, version string) zerolog.Logger {
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: w}
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Logger()
}

// App holds the wired components. Close releases them.
type App struct {
	Config    config.Config
	Logger    zerolog.Logger
	Telemetry *telemetry.Provider
	Registry  *resilience.Registry
	Client    *stationapi.Client
	Source    fixtures.Source
	Publisher report.Publisher

	closers []func(context.Context) error
}

// New wires the client, fixture source and report publishers.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger, service, version string) (*App, error) {
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: resilience.NewRegistry(),
	}

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    service,
		ServiceVersion: version,
		Environment:    cfg.Telemetry.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		ExportInterval: cfg.Telemetry.ExportInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}
	a.Telemetry = tp
	a.closers = append(a.closers, tp.Shutdown)

	if err := a.wire(ctx); err != nil {
		_ = a.Close(ctx) //nolint:errcheck // best effort cleanup
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	exchanges, err := telemetry.NewExchangeObserver(a.Telemetry.TracerProviderOrGlobal(), a.Telemetry.MeterProviderOrGlobal())
	if err != nil {
		return fmt.Errorf("creating exchange observer: %w", err)
	}

	var breaker *resilience.CircuitBreakerConfig
	if a.Config.Station.CircuitBreaker {
		cb := resilience.DefaultCircuitBreakerConfig(stationapi.ClientName)
		breaker = &cb
	}

	a.Client, err = stationapi.NewClient(stationapi.ClientConfig{
		BaseURL:        a.Config.Station.BaseURI,
		BasePath:       a.Config.Station.BasePath,
		Timeout:        a.Config.Station.Timeout,
		CircuitBreaker: breaker,
		Registry:       a.Registry,
		Observer: station.Observers{
			exchanges,
			station.LogObserver{Logger: a.Logger.With().Str("component", "exchange").Logger()},
		},
		Logger: a.Logger,
	})
	if err != nil {
		return fmt.Errorf("creating station client: %w", err)
	}

	source, closeSource, err := OpenSource(ctx, a.Config, a.Logger)
	if err != nil {
		return err
	}
	a.Source = source
	a.closers = append(a.closers, func(context.Context) error {
		closeSource()
		return nil
	})

	if a.Publisher, err = a.newPublisher(ctx); err != nil {
		return err
	}
	return nil
}

// OpenSource returns the fixture source the configuration selects. The
// returned func releases any connection it holds.
func OpenSource(ctx context.Context, cfg config.Config, logger zerolog.Logger) (fixtures.Source, func(), error) {
	switch cfg.Fixtures.Source {
	case config.FixturesStatic:
		return fixtures.StaticSource(cfg.Fixtures.Stations), func() {}, nil
	case config.FixturesPostgres:
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to fixtures database: %w", err)
		}
		logger.Info().
			Str("host", cfg.Database.Host).
			Int("port", cfg.Database.Port).
			Str("database", cfg.Database.Database).
			Msg("database connected")
		return fixtures.NewPostgresSource(pool, ""), pool.Close, nil
	default:
		return fixtures.CSVSource{Path: cfg.Fixtures.CSVPath}, func() {}, nil
	}
}

func (a *App) newPublisher(ctx context.Context) (report.Publisher, error) {
	publishers := report.MultiPublisher{report.LogPublisher{Logger: a.Logger}}

	if path := a.Config.Report.JSONPath; path != "" {
		publishers = append(publishers, report.FilePublisher{Path: path})
	}

	if a.Config.Report.PubSubProjectID != "" {
		p, err := report.NewPubSubPublisher(ctx, report.PubSubConfig{
			ProjectID: a.Config.Report.PubSubProjectID,
			TopicID:   a.Config.Report.PubSubTopic,
			Logger:    a.Logger,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return p.Close() })
		publishers = append(publishers, p)
	}
	return publishers, nil
}

// Runner creates a contract runner over the full matrix.
func (a *App) Runner() *contract.Runner {
	return contract.NewRunner(contract.RunnerConfig{
		Client: a.Client,
		Options: contract.Options{
			AssumeUnknownFieldsAccepted: a.Config.Contract.AssumeUnknownFieldsAccepted,
		},
		Concurrency: a.Config.Contract.Concurrency,
		BaseURL:     a.Config.Station.BaseURI,
		Logger:      a.Logger,
	})
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
