// Package main provides stationctl, a command line client for station
// endpoints and the contract validator.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/stationcheck/stationcheck/internal/app"
	"github.com/stationcheck/stationcheck/internal/config"
	"github.com/stationcheck/stationcheck/internal/contract"
	"github.com/stationcheck/stationcheck/internal/station"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "stationctl"

const (
	exitOK         = 0
	exitViolations = 1
	exitError      = 2
)

var errUsage = errors.New("usage")

const usage = `usage: stationctl [-config file] <command> [args]

commands:
  version <station>           read the station version
  interval <station>          read the configured interval
  set <station> <payload>     write a new interval
  raw <station> <json>        post a free-form body and print the reply
  health [station]            wait until the station service answers
  contract [-stations ids]    run the contract matrix and publish the report
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", os.Getenv("STATION_CONFIG"), "path to a TOML config file")
	if err := fs.Parse(args); err != nil {
		return exitError
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return exitError
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "stationctl: %v\n", err)
		return exitError
	}

	log := app.NewLogger(cfg.Log, stderr, serviceName, Version)
	log.Debug().Str("build_time", BuildTime).Msg("starting stationctl")

	a, err := app.New(ctx, cfg, log, serviceName, Version)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize")
		return exitError
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Close(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to release resources")
		}
	}()

	cmd := &command{app: a, out: json.NewEncoder(stdout)}
	cmd.out.SetIndent("", "  ")

	code, err := cmd.dispatch(ctx, fs.Arg(0), fs.Args()[1:])
	switch {
	case errors.Is(err, errUsage):
		fmt.Fprintf(stderr, "stationctl: %v\n\n%s", err, usage)
		return exitError
	case err != nil:
		log.Error().Err(err).Str("command", fs.Arg(0)).Msg("command failed")
		return exitError
	}
	return code
}

type command struct {
	app *app.App
	out *json.Encoder
}

func (c *command) dispatch(ctx context.Context, name string, args []string) (int, error) {
	switch name {
	case "version":
		return c.version(ctx, args)
	case "interval":
		return c.interval(ctx, args)
	case "set":
		return c.set(ctx, args)
	case "raw":
		return c.raw(ctx, args)
	case "health":
		return c.health(ctx, args)
	case "contract":
		return c.contract(ctx, args)
	default:
		return exitError, fmt.Errorf("%w: unknown command %q", errUsage, name)
	}
}

func (c *command) version(ctx context.Context, args []string) (int, error) {
	id, err := stationArg(args, 1)
	if err != nil {
		return exitError, err
	}
	resp, err := c.app.Client.GetVersion(ctx, id)
	if err != nil {
		return exitError, err
	}
	return exitOK, c.out.Encode(resp)
}

func (c *command) interval(ctx context.Context, args []string) (int, error) {
	id, err := stationArg(args, 1)
	if err != nil {
		return exitError, err
	}
	resp, err := c.app.Client.GetInterval(ctx, id)
	if err != nil {
		return exitError, err
	}
	return exitOK, c.out.Encode(resp)
}

func (c *command) set(ctx context.Context, args []string) (int, error) {
	id, err := stationArg(args, 2)
	if err != nil {
		return exitError, err
	}
	payload, err := strconv.ParseInt(args[1], 10, 32)
	if err != nil {
		return exitError, fmt.Errorf("%w: payload must be a 32-bit integer", errUsage)
	}
	resp, err := c.app.Client.SetValues(ctx, id, int32(payload))
	if err != nil {
		return exitError, err
	}
	if err := c.out.Encode(resp); err != nil {
		return exitError, err
	}
	if !resp.Succeeded() {
		return exitViolations, nil
	}
	return exitOK, nil
}

func (c *command) raw(ctx context.Context, args []string) (int, error) {
	id, err := stationArg(args, 2)
	if err != nil {
		return exitError, err
	}
	if !json.Valid([]byte(args[1])) {
		return exitError, fmt.Errorf("%w: body must be valid JSON", errUsage)
	}
	resp, err := c.app.Client.Send(ctx, id, []byte(args[1]))
	if err != nil {
		return exitError, err
	}
	return exitOK, c.out.Encode(struct {
		StatusCode  int             `json:"status_code"`
		ContentType string          `json:"content_type"`
		Body        json.RawMessage `json:"body,omitempty"`
	}{resp.StatusCode, resp.ContentType, rawJSON(resp.Body)})
}

func (c *command) health(ctx context.Context, args []string) (int, error) {
	var id station.StationID
	if len(args) > 0 {
		var err error
		if id, err = stationArg(args, 1); err != nil {
			return exitError, err
		}
	} else {
		ids, err := c.app.Source.StationIDs(ctx)
		if err != nil {
			return exitError, err
		}
		id = ids[0]
	}

	if err := contract.WaitForService(ctx, c.app.Client, id, c.app.Config.Contract.WaitTimeout); err != nil {
		return exitError, err
	}
	c.app.Logger.Info().Int64("station_id", int64(id)).Msg("station service is ready")
	return exitOK, nil
}

func (c *command) contract(ctx context.Context, args []string) (int, error) {
	fs := flag.NewFlagSet("contract", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	stations := fs.String("stations", "", "comma separated station ids, overriding the fixture source")
	wait := fs.Bool("wait", false, "wait for the station service before running")
	if err := fs.Parse(args); err != nil {
		return exitError, fmt.Errorf("%w: %v", errUsage, err)
	}

	existing, err := config.ParseStationIDs(*stations)
	if err != nil {
		return exitError, fmt.Errorf("%w: -stations: %v", errUsage, err)
	}
	if len(existing) == 0 {
		if existing, err = c.app.Source.StationIDs(ctx); err != nil {
			return exitError, err
		}
	}

	if *wait {
		if err := contract.WaitForService(ctx, c.app.Client, existing[0], c.app.Config.Contract.WaitTimeout); err != nil {
			return exitError, err
		}
	}

	rep, err := c.app.Runner().Run(ctx, contract.Targets{
		Existing:    existing,
		NonExisting: c.app.Config.Contract.NonExisting,
	})
	if rep == nil {
		return exitError, err
	}
	if encErr := c.out.Encode(rep); encErr != nil {
		err = errors.Join(err, encErr)
	}
	if pubErr := c.app.Publisher.Publish(ctx, rep); pubErr != nil {
		err = errors.Join(err, pubErr)
	}
	if err != nil {
		return exitError, err
	}
	if rep.Failed() {
		return exitViolations, nil
	}
	return exitOK, nil
}

func stationArg(args []string, want int) (station.StationID, error) {
	if len(args) != want {
		return 0, fmt.Errorf("%w: expected %d argument(s), got %d", errUsage, want, len(args))
	}
	n, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: station id %q is not an integer", errUsage, args[0])
	}
	return station.StationID(n), nil
}

// rawJSON keeps a JSON reply as is and quotes anything else.
func rawJSON(b []byte) json.RawMessage {
	switch {
	case len(b) == 0:
		return nil
	case json.Valid(b):
		return b
	default:
		quoted, _ := json.Marshal(string(b)) //nolint:errcheck // strings always marshal
		return quoted
	}
}
