// Package stationapi provides the HTTP client for the station command API.
package stationapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/stationcheck/stationcheck/internal/resilience"
	"github.com/stationcheck/stationcheck/internal/station"
)

const (
	// ClientName identifies this client in the resilience registry.
	ClientName = "station-api"

	contentTypeJSON = "application/json"
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the station API client.
type ClientConfig struct {
	// BaseURL is the service root, e.g. "http://stations.local:8080" (required).
	BaseURL string

	// BasePath is the path prefix for station endpoints, e.g. "/v1/tests".
	BasePath string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a single-attempt resilience client.
	HTTPClient HTTPDoer

	// Timeout bounds each request (optional). Zero keeps the transport
	// defaults.
	Timeout time.Duration

	// CircuitBreaker makes the default transport fail fast after repeated
	// transport failures (optional). HTTP replies of any status never
	// count against it.
	CircuitBreaker *resilience.CircuitBreakerConfig

	// Registry tracks endpoint health (optional).
	Registry *resilience.Registry

	// Observer is notified around every exchange (optional).
	Observer station.Observer

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client sends station commands. It holds only immutable configuration and
// is safe for concurrent use.
type Client struct {
	baseURL    string
	basePath   string
	httpClient HTTPDoer
	registry   *resilience.Registry
	observer   station.Observer
	logger     zerolog.Logger
}

// RawResponse is an undecoded station reply.
type RawResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// NewClient creates a new station API client.
func NewClient(cfg ClientConfig) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ClientName)
		clientCfg.Timeout = cfg.Timeout
		clientCfg.CircuitBreaker = cfg.CircuitBreaker
		clientCfg.Registry = cfg.Registry
		httpClient = resilience.NewClient(clientCfg)
	} else if cfg.Registry != nil {
		cfg.Registry.Register(ClientName, nil)
	}

	observer := cfg.Observer
	if observer == nil {
		observer = station.NopObserver{}
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		basePath:   cfg.BasePath,
		httpClient: httpClient,
		registry:   cfg.Registry,
		observer:   observer,
		logger:     cfg.Logger,
	}, nil
}

// Endpoint returns the URL commands for the station are posted to.
func (c *Client) Endpoint(id station.StationID) (string, error) {
	return url.JoinPath(c.baseURL, c.basePath, id.String())
}

// Dispatch sends a typed request and decodes the reply according to the
// request's command kind.
func (c *Client) Dispatch(ctx context.Context, id station.StationID, req station.Request) (station.Response, error) {
	body, err := station.EncodeRequest(req)
	if err != nil {
		return nil, err
	}
	return c.exchangeTyped(ctx, id, req.Command, body)
}

// DispatchMalformedTyped sends a free-form body but still requires the
// success envelope, decoding the reply as kind.
func (c *Client) DispatchMalformedTyped(ctx context.Context, id station.StationID, kind station.CommandKind, req station.MalformedRequest) (station.Response, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %s", station.ErrUnknownCommand, kind)
	}
	body, err := station.EncodeMalformed(req)
	if err != nil {
		return nil, err
	}
	return c.exchangeTyped(ctx, id, kind, body)
}

// DispatchRaw sends a free-form body and returns the reply without any
// status or shape checks.
func (c *Client) DispatchRaw(ctx context.Context, id station.StationID, req station.MalformedRequest) (*RawResponse, error) {
	body, err := station.EncodeMalformed(req)
	if err != nil {
		return nil, err
	}
	return c.Send(ctx, id, body)
}

// Send posts body to the station endpoint once and returns the raw reply.
func (c *Client) Send(ctx context.Context, id station.StationID, body []byte) (*RawResponse, error) {
	ex := c.newExchange(id, 0, body)
	ctx = c.observer.ExchangeStarted(ctx, ex)

	raw, err := c.send(ctx, ex)
	ex.Outcome = station.OutcomeRaw
	if err != nil {
		ex.Outcome = station.OutcomeTransportError
	}
	c.finish(ctx, ex, err)
	return raw, err
}

// GetVersion reads the station version.
func (c *Client) GetVersion(ctx context.Context, id station.StationID) (station.VersionResponse, error) {
	resp, err := c.Dispatch(ctx, id, station.NewRequest(station.GetVersion))
	if err != nil {
		return station.VersionResponse{}, err
	}
	return resp.(station.VersionResponse), nil
}

// GetInterval reads the configured interval.
func (c *Client) GetInterval(ctx context.Context, id station.StationID) (station.IntervalResponse, error) {
	resp, err := c.Dispatch(ctx, id, station.NewRequest(station.GetInterval))
	if err != nil {
		return station.IntervalResponse{}, err
	}
	return resp.(station.IntervalResponse), nil
}

// SetValues writes a new interval. A FAILED result is returned as data,
// not as an error.
func (c *Client) SetValues(ctx context.Context, id station.StationID, payload int32) (station.SetValuesResponse, error) {
	resp, err := c.Dispatch(ctx, id, station.NewRequest(station.SetValues).WithPayload(payload))
	if err != nil {
		return station.SetValuesResponse{}, err
	}
	return resp.(station.SetValuesResponse), nil
}

func (c *Client) exchangeTyped(ctx context.Context, id station.StationID, kind station.CommandKind, body []byte) (station.Response, error) {
	ex := c.newExchange(id, kind, body)
	ctx = c.observer.ExchangeStarted(ctx, ex)

	raw, err := c.send(ctx, ex)
	if err == nil {
		err = checkEnvelope(id, raw)
	}

	var resp station.Response
	if err == nil {
		resp, err = station.Decode(kind, raw.Body)
	}

	ex.Outcome = station.OutcomeOf(err)
	c.finish(ctx, ex, err)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// send performs the single HTTP attempt and fills the response side of ex.
func (c *Client) send(ctx context.Context, ex *station.Exchange) (*RawResponse, error) {
	endpoint, err := c.Endpoint(ex.StationID)
	if err != nil {
		return nil, &station.TransportError{StationID: ex.StationID, Err: err}
	}
	ex.URL = endpoint

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(ex.RequestBody))
	if err != nil {
		return nil, &station.TransportError{StationID: ex.StationID, Err: err}
	}
	httpReq.Header.Set("Content-Type", contentTypeJSON)
	httpReq.Header.Set("Accept", contentTypeJSON)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	c.logger.Debug().
		Str("exchange_id", ex.ID).
		Int64("station_id", int64(ex.StationID)).
		Str("command", ex.Command.String()).
		Msg("sending station request")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.recordFailure(err)
		return nil, &station.TransportError{StationID: ex.StationID, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.recordFailure(err)
		return nil, &station.TransportError{StationID: ex.StationID, Err: fmt.Errorf("reading response body: %w", err)}
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		c.recordFailure(&resilience.ServerError{StatusCode: resp.StatusCode})
	} else {
		c.recordSuccess()
	}

	raw := &RawResponse{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        respBody,
	}
	ex.StatusCode = raw.StatusCode
	ex.ContentType = raw.ContentType
	ex.ResponseBody = raw.Body

	c.logger.Debug().
		Str("exchange_id", ex.ID).
		Int("status", raw.StatusCode).
		Int("bytes", len(respBody)).
		Msg("received station response")

	return raw, nil
}

func (c *Client) newExchange(id station.StationID, kind station.CommandKind, body []byte) *station.Exchange {
	return &station.Exchange{
		ID:          uuid.NewString(),
		StationID:   id,
		Command:     kind,
		Method:      http.MethodPost,
		RequestBody: body,
		StartedAt:   time.Now(),
	}
}

func (c *Client) finish(ctx context.Context, ex *station.Exchange, err error) {
	ex.Err = err
	ex.Duration = time.Since(ex.StartedAt)
	c.observer.ExchangeFinished(ctx, ex)
}

func (c *Client) recordSuccess() {
	if c.registry != nil {
		c.registry.RecordSuccess(ClientName)
	}
}

func (c *Client) recordFailure(err error) {
	if c.registry != nil {
		c.registry.RecordFailure(ClientName, err)
	}
}

// checkEnvelope enforces status 200 and a JSON media type. Media type
// parameters such as charset are allowed.
func checkEnvelope(id station.StationID, raw *RawResponse) error {
	mediaType, _, err := mime.ParseMediaType(raw.ContentType)
	if raw.StatusCode == http.StatusOK && err == nil && mediaType == contentTypeJSON {
		return nil
	}
	return &station.ContractViolation{
		StationID:   id,
		StatusCode:  raw.StatusCode,
		ContentType: raw.ContentType,
		Body:        raw.Body,
	}
}
