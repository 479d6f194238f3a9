package resilience

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned when the circuit breaker rejects a request.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ClientConfig holds configuration for the HTTP client.
type ClientConfig struct {
	// Name identifies this client in the registry and breaker.
	Name string

	// Timeout bounds each HTTP call. Zero keeps the transport defaults.
	Timeout time.Duration

	// CircuitBreaker enables fail-fast behavior after repeated transport
	// failures. If nil, requests are never short-circuited.
	CircuitBreaker *CircuitBreakerConfig

	// Transport overrides the underlying round tripper (optional).
	Transport http.RoundTripper

	// Registry, when set, registers the client under Name on creation.
	Registry *Registry
}

// DefaultClientConfig returns the configuration used for station endpoints:
// no timeout override and no breaker.
func DefaultClientConfig(name string) ClientConfig {
	return ClientConfig{Name: name}
}

// Client issues exactly one HTTP attempt per call. It never retries; a
// failed request is reported to the caller immediately.
type Client struct {
	name           string
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker[*http.Response]
}

// NewClient creates a new client.
func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		name: cfg.Name,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
	}
	if cfg.CircuitBreaker != nil {
		c.circuitBreaker = NewCircuitBreaker[*http.Response](*cfg.CircuitBreaker) //nolint:bodyclose // type param, not response
	}
	if cfg.Registry != nil {
		cfg.Registry.Register(cfg.Name, c)
	}
	return c
}

// Name returns the client name.
func (c *Client) Name() string {
	return c.name
}

// Do executes the request once. Only transport failures count against the
// breaker; any HTTP reply, 5xx included, is a completed exchange.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.circuitBreaker == nil {
		return c.httpClient.Do(req)
	}

	resp, err := c.circuitBreaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // caller is responsible for closing
		return c.httpClient.Do(req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s: %w", c.name, ErrCircuitOpen)
		}
		return nil, err
	}
	return resp, nil
}

// ServerError describes an HTTP 5xx reply in health records.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return "server error: " + http.StatusText(e.StatusCode)
}

// CircuitBreakerState returns the breaker state, or StateClosed when the
// client has no breaker.
func (c *Client) CircuitBreakerState() gobreaker.State {
	if c.circuitBreaker == nil {
		return gobreaker.StateClosed
	}
	return c.circuitBreaker.State()
}

// CircuitBreakerCounts returns the breaker counters.
func (c *Client) CircuitBreakerCounts() gobreaker.Counts {
	if c.circuitBreaker == nil {
		return gobreaker.Counts{}
	}
	return c.circuitBreaker.Counts()
}
