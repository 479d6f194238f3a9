// Package main provides the entrypoint for the station simulator, an
// in-memory implementation of the station command API.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stationcheck/stationcheck/internal/app"
	"github.com/stationcheck/stationcheck/internal/config"
	"github.com/stationcheck/stationcheck/internal/simulator"
	"github.com/stationcheck/stationcheck/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "stationsim"

	configPath := flag.String("config", os.Getenv("STATION_CONFIG"), "path to a TOML config file")
	addr := flag.String("addr", ":8080", "listen address")
	strict := flag.Bool("reject-unknown-fields", false, "answer 400 to requests with fields other than command and payload")
	rateLimit := flag.Int("rate-limit", 0, "requests per minute per client IP, 0 disables limiting")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Stderr.WriteString("stationsim: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := app.NewLogger(cfg.Log, os.Stdout, serviceName, Version)
	log.Info().
		Str("build_time", BuildTime).
		Msg("starting station simulator")

	ctx := context.Background()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Telemetry.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		ExportInterval: cfg.Telemetry.ExportInterval,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	instrumentation, err := simulator.NewInstrumentation(tp.TracerProviderOrGlobal(), tp.MeterProviderOrGlobal())
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize instrumentation")
		return
	}

	// The simulated fleet is seeded from the same fixtures a contract run targets.
	source, closeSource, err := app.OpenSource(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to open fixtures")
		return
	}
	ids, err := source.StationIDs(ctx)
	closeSource()
	if err != nil {
		log.Error().Err(err).Msg("failed to load stations")
		return
	}
	log.Info().Int("stations", len(ids)).Msg("fleet loaded")

	routerCfg := simulator.RouterConfig{
		BasePath:            cfg.Station.BasePath,
		Fleet:               simulator.NewFleetFromIDs(ids),
		RejectUnknownFields: *strict,
		Instrumentation:     instrumentation,
		Logger:              log,
	}
	if *rateLimit > 0 {
		routerCfg.RateLimit = &simulator.RateLimitConfig{
			RequestLimit: *rateLimit,
			WindowLength: time.Minute,
		}
	}

	server := &http.Server{
		Addr:         *addr,
		Handler:      simulator.NewRouter(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("base_path", cfg.Station.BasePath).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server stopped")
}
