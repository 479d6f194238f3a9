// Package config loads stationcheck settings from defaults, an optional TOML
// file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/stationcheck/stationcheck/internal/database"
	"github.com/stationcheck/stationcheck/internal/station"
)

// Fixture source kinds.
const (
	FixturesCSV      = "csv"
	FixturesStatic   = "static"
	FixturesPostgres = "postgres"
)

// Config is the complete runtime configuration.
type Config struct {
	Station   StationConfig
	Contract  ContractConfig
	Fixtures  FixturesConfig
	Report    ReportConfig
	Telemetry TelemetryConfig
	Log       LogConfig
	Worker    WorkerConfig
	Database  database.Config
}

// StationConfig locates the station service.
type StationConfig struct {
	BaseURI  string
	BasePath string
	// Timeout bounds each request. Zero keeps the transport defaults.
	Timeout time.Duration
	// CircuitBreaker fails dispatches fast after repeated transport failures.
	CircuitBreaker bool
}

// ContractConfig tunes the contract run.
type ContractConfig struct {
	NonExisting                 []station.StationID
	AssumeUnknownFieldsAccepted bool
	Concurrency                 int
	WaitTimeout                 time.Duration
}

// FixturesConfig selects where existing station ids come from.
type FixturesConfig struct {
	Source   string
	CSVPath  string
	Stations []station.StationID
}

// ReportConfig selects where contract reports are published.
type ReportConfig struct {
	JSONPath        string
	PubSubProjectID string
	PubSubTopic     string
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled        bool
	OTLPEndpoint   string
	Environment    string
	ExportInterval time.Duration
}

// LogConfig configures the root logger.
type LogConfig struct {
	Level  string
	Pretty bool
}

// WorkerConfig drives the background worker. A subscription enables Pub/Sub
// triggers; otherwise runs happen every Interval.
type WorkerConfig struct {
	Port         string
	Interval     time.Duration
	Subscription string
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Station: StationConfig{
			BaseURI:  "http://localhost:8080",
			BasePath: "/v1/tests",
		},
		Contract: ContractConfig{
			NonExisting:                 []station.StationID{-1, 0, 6},
			AssumeUnknownFieldsAccepted: true,
			Concurrency:                 4,
			WaitTimeout:                 30 * time.Second,
		},
		Fixtures: FixturesConfig{
			Source:  FixturesCSV,
			CSVPath: "testdata/available_stations.csv",
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint:   "localhost:4317",
			Environment:    "development",
			ExportInterval: 15 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Worker: WorkerConfig{
			Port:     "8080",
			Interval: 15 * time.Minute,
		},
		Database: database.DefaultConfig(),
	}
}

type fileConfig struct {
	Station struct {
		BaseURI        string `toml:"base_uri"`
		BasePath       string `toml:"base_path"`
		Timeout        string `toml:"timeout"`
		CircuitBreaker bool   `toml:"circuit_breaker"`
	} `toml:"station"`
	Contract struct {
		NonExisting                 []int64 `toml:"non_existing"`
		AssumeUnknownFieldsAccepted bool    `toml:"assume_unknown_fields_accepted"`
		Concurrency                 int     `toml:"concurrency"`
		WaitTimeout                 string  `toml:"wait_timeout"`
	} `toml:"contract"`
	Fixtures struct {
		Source   string  `toml:"source"`
		CSVPath  string  `toml:"csv_path"`
		Stations []int64 `toml:"stations"`
	} `toml:"fixtures"`
	Report struct {
		JSONPath        string `toml:"json_path"`
		PubSubProjectID string `toml:"pubsub_project_id"`
		PubSubTopic     string `toml:"pubsub_topic"`
	} `toml:"report"`
	Telemetry struct {
		Enabled        bool   `toml:"enabled"`
		OTLPEndpoint   string `toml:"otlp_endpoint"`
		Environment    string `toml:"environment"`
		ExportInterval string `toml:"export_interval"`
	} `toml:"telemetry"`
	Log struct {
		Level  string `toml:"level"`
		Pretty bool   `toml:"pretty"`
	} `toml:"log"`
	Worker struct {
		Port         string `toml:"port"`
		Interval     string `toml:"interval"`
		Subscription string `toml:"subscription"`
	} `toml:"worker"`
	Database struct {
		Host     string `toml:"host"`
		Port     int    `toml:"port"`
		User     string `toml:"user"`
		Password string `toml:"password"`
		Name     string `toml:"name"`
		SSLMode  string `toml:"ssl_mode"`
	} `toml:"database"`
}

// Load builds the configuration. An empty path skips the file layer.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config %s: unknown key %s", path, undecoded[0])
	}

	if meta.IsDefined("station", "base_uri") {
		c.Station.BaseURI = strings.TrimSpace(raw.Station.BaseURI)
	}
	if meta.IsDefined("station", "base_path") {
		c.Station.BasePath = strings.TrimSpace(raw.Station.BasePath)
	}
	if meta.IsDefined("station", "timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Station.Timeout))
		if err != nil {
			return fmt.Errorf("parse station.timeout: %w", err)
		}
		c.Station.Timeout = d
	}
	if meta.IsDefined("station", "circuit_breaker") {
		c.Station.CircuitBreaker = raw.Station.CircuitBreaker
	}

	if meta.IsDefined("contract", "non_existing") {
		c.Contract.NonExisting = toStationIDs(raw.Contract.NonExisting)
	}
	if meta.IsDefined("contract", "assume_unknown_fields_accepted") {
		c.Contract.AssumeUnknownFieldsAccepted = raw.Contract.AssumeUnknownFieldsAccepted
	}
	if meta.IsDefined("contract", "concurrency") {
		c.Contract.Concurrency = raw.Contract.Concurrency
	}
	if meta.IsDefined("contract", "wait_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Contract.WaitTimeout))
		if err != nil {
			return fmt.Errorf("parse contract.wait_timeout: %w", err)
		}
		c.Contract.WaitTimeout = d
	}

	if meta.IsDefined("fixtures", "source") {
		c.Fixtures.Source = strings.TrimSpace(raw.Fixtures.Source)
	}
	if meta.IsDefined("fixtures", "csv_path") {
		c.Fixtures.CSVPath = raw.Fixtures.CSVPath
	}
	if meta.IsDefined("fixtures", "stations") {
		c.Fixtures.Stations = toStationIDs(raw.Fixtures.Stations)
	}

	if meta.IsDefined("report", "json_path") {
		c.Report.JSONPath = raw.Report.JSONPath
	}
	if meta.IsDefined("report", "pubsub_project_id") {
		c.Report.PubSubProjectID = raw.Report.PubSubProjectID
	}
	if meta.IsDefined("report", "pubsub_topic") {
		c.Report.PubSubTopic = raw.Report.PubSubTopic
	}

	if meta.IsDefined("telemetry", "enabled") {
		c.Telemetry.Enabled = raw.Telemetry.Enabled
	}
	if meta.IsDefined("telemetry", "otlp_endpoint") {
		c.Telemetry.OTLPEndpoint = raw.Telemetry.OTLPEndpoint
	}
	if meta.IsDefined("telemetry", "environment") {
		c.Telemetry.Environment = raw.Telemetry.Environment
	}
	if meta.IsDefined("telemetry", "export_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Telemetry.ExportInterval))
		if err != nil {
			return fmt.Errorf("parse telemetry.export_interval: %w", err)
		}
		c.Telemetry.ExportInterval = d
	}

	if meta.IsDefined("log", "level") {
		c.Log.Level = raw.Log.Level
	}
	if meta.IsDefined("log", "pretty") {
		c.Log.Pretty = raw.Log.Pretty
	}

	if meta.IsDefined("worker", "port") {
		c.Worker.Port = strings.TrimSpace(raw.Worker.Port)
	}
	if meta.IsDefined("worker", "interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Worker.Interval))
		if err != nil {
			return fmt.Errorf("parse worker.interval: %w", err)
		}
		c.Worker.Interval = d
	}
	if meta.IsDefined("worker", "subscription") {
		c.Worker.Subscription = strings.TrimSpace(raw.Worker.Subscription)
	}

	if meta.IsDefined("database", "host") {
		c.Database.Host = raw.Database.Host
	}
	if meta.IsDefined("database", "port") {
		c.Database.Port = raw.Database.Port
	}
	if meta.IsDefined("database", "user") {
		c.Database.User = raw.Database.User
	}
	if meta.IsDefined("database", "password") {
		c.Database.Password = raw.Database.Password
	}
	if meta.IsDefined("database", "name") {
		c.Database.Database = raw.Database.Name
	}
	if meta.IsDefined("database", "ssl_mode") {
		c.Database.SSLMode = raw.Database.SSLMode
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Station.BaseURI, "STATION_BASE_URI")
	setString(&c.Station.BasePath, "STATION_BASE_PATH")
	setString(&c.Log.Level, "STATION_LOG_LEVEL")
	setString(&c.Fixtures.Source, "STATION_FIXTURES")
	setString(&c.Fixtures.CSVPath, "STATION_FIXTURES_CSV")
	setString(&c.Report.JSONPath, "STATION_REPORT_JSON")
	setString(&c.Report.PubSubProjectID, "PUBSUB_PROJECT_ID")
	setString(&c.Report.PubSubTopic, "PUBSUB_TOPIC")
	setString(&c.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&c.Telemetry.Environment, "APP_ENV")
	setString(&c.Worker.Port, "APP_PORT")
	setString(&c.Worker.Subscription, "PUBSUB_SUBSCRIPTION")

	if err := setDuration(&c.Station.Timeout, "STATION_TIMEOUT"); err != nil {
		return err
	}
	if err := setDuration(&c.Contract.WaitTimeout, "STATION_WAIT_TIMEOUT"); err != nil {
		return err
	}
	if err := setDuration(&c.Worker.Interval, "WORKER_INTERVAL"); err != nil {
		return err
	}
	if err := setDuration(&c.Telemetry.ExportInterval, "OTEL_EXPORT_INTERVAL"); err != nil {
		return err
	}
	if err := setBool(&c.Station.CircuitBreaker, "STATION_CIRCUIT_BREAKER"); err != nil {
		return err
	}
	if err := setBool(&c.Contract.AssumeUnknownFieldsAccepted, "STATION_ASSUME_UNKNOWN_FIELDS"); err != nil {
		return err
	}
	if err := setBool(&c.Telemetry.Enabled, "OTEL_ENABLED"); err != nil {
		return err
	}
	if err := setBool(&c.Log.Pretty, "STATION_LOG_PRETTY"); err != nil {
		return err
	}

	if v, ok := lookup("STATION_CONCURRENCY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse STATION_CONCURRENCY: %w", err)
		}
		c.Contract.Concurrency = n
	}
	if v, ok := lookup("STATION_NON_EXISTING"); ok {
		ids, err := ParseStationIDs(v)
		if err != nil {
			return fmt.Errorf("parse STATION_NON_EXISTING: %w", err)
		}
		c.Contract.NonExisting = ids
	}
	if v, ok := lookup("STATION_IDS"); ok {
		ids, err := ParseStationIDs(v)
		if err != nil {
			return fmt.Errorf("parse STATION_IDS: %w", err)
		}
		c.Fixtures.Stations = ids
	}

	return c.Database.ApplyEnv()
}

// Validate checks the configuration for values no run could succeed with.
func (c Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.Station.BaseURI)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("station base URI: %w", err))
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, fmt.Errorf("station base URI %q must use http or https", c.Station.BaseURI))
	case u.Host == "":
		errs = append(errs, fmt.Errorf("station base URI %q has no host", c.Station.BaseURI))
	}

	if c.Station.Timeout < 0 {
		errs = append(errs, errors.New("station timeout must not be negative"))
	}
	if c.Contract.WaitTimeout <= 0 {
		errs = append(errs, errors.New("contract wait timeout must be positive"))
	}
	if c.Telemetry.ExportInterval <= 0 {
		errs = append(errs, errors.New("telemetry export interval must be positive"))
	}
	if c.Worker.Interval <= 0 {
		errs = append(errs, errors.New("worker interval must be positive"))
	}
	if c.Contract.Concurrency < 1 {
		errs = append(errs, errors.New("contract concurrency must be at least 1"))
	}

	switch c.Fixtures.Source {
	case FixturesCSV:
		if c.Fixtures.CSVPath == "" {
			errs = append(errs, errors.New("fixtures csv path is required for the csv source"))
		}
	case FixturesStatic, FixturesPostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown fixtures source %q", c.Fixtures.Source))
	}

	if (c.Report.PubSubProjectID == "") != (c.Report.PubSubTopic == "") {
		errs = append(errs, errors.New("pubsub project id and topic must be set together"))
	}
	if c.Worker.Subscription != "" && c.Report.PubSubProjectID == "" {
		errs = append(errs, errors.New("worker subscription requires a pubsub project id"))
	}

	return errors.Join(errs...)
}

// ParseStationIDs parses a comma separated list of station ids.
func ParseStationIDs(s string) ([]station.StationID, error) {
	var ids []station.StationID
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, station.StationID(n))
	}
	return ids, nil
}

func toStationIDs(in []int64) []station.StationID {
	out := make([]station.StationID, 0, len(in))
	for _, n := range in {
		out = append(out, station.StationID(n))
	}
	return out
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func setString(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = d
	return nil
}

func setBool(dst *bool, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = b
	return nil
}
