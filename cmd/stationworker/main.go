// Package main provides the entrypoint for the contract worker. It runs the
// contract matrix on a schedule or on Pub/Sub triggers and exposes a health
// endpoint for Cloud Run.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stationcheck/stationcheck/internal/app"
	"github.com/stationcheck/stationcheck/internal/config"
	"github.com/stationcheck/stationcheck/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "stationworker"

	configPath := flag.String("config", os.Getenv("STATION_CONFIG"), "path to a TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Stderr.WriteString("stationworker: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := app.NewLogger(cfg.Log, os.Stdout, serviceName, Version)
	log.Info().
		Str("build_time", BuildTime).
		Msg("starting contract worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, log, serviceName, Version)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize")
		return
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := a.Close(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to release resources")
		}
	}()

	job := worker.NewContractJob(worker.ContractJobConfig{
		Runner:      a.Runner(),
		Client:      a.Client,
		Source:      a.Source,
		NonExisting: cfg.Contract.NonExisting,
		Publisher:   a.Publisher,
		WaitTimeout: cfg.Contract.WaitTimeout,
		Logger:      log.With().Str("component", "contract_job").Logger(),
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		endpoints := make(map[string]string)
		for _, h := range a.Registry.All() {
			endpoints[h.Name] = h.CircuitState.String()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck // client went away
			"status":    "healthy",
			"version":   Version,
			"endpoints": endpoints,
			"jobs":      job.MetricsSnapshot(),
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Worker.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health check server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	if cfg.Worker.Subscription != "" {
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.Report.PubSubProjectID,
			SubscriptionName: cfg.Worker.Subscription,
			Job:              job,
			Logger:           log,
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to create pubsub handler")
			return
		}
		defer handler.Close()

		go func() {
			if err := handler.Start(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("pubsub handler stopped")
				cancel()
			}
		}()
	} else {
		log.Info().Dur("interval", cfg.Worker.Interval).Msg("running contract on a schedule")
		go job.RunEvery(ctx, cfg.Worker.Interval)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
