package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// EndpointHealth is a point-in-time view of a registered endpoint.
type EndpointHealth struct {
	Name          string
	CircuitState  gobreaker.State
	Counts        gobreaker.Counts
	Successes     int64
	Failures      int64
	LastSuccessAt *time.Time
	LastFailureAt *time.Time
	LastError     string
}

// IsHealthy reports whether the breaker is closed.
func (h *EndpointHealth) IsHealthy() bool {
	return h.CircuitState == gobreaker.StateClosed
}

// IsDegraded reports whether the breaker is half-open.
func (h *EndpointHealth) IsDegraded() bool {
	return h.CircuitState == gobreaker.StateHalfOpen
}

// Registry tracks endpoints and the outcome of their exchanges.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	endpoints map[string]*endpoint
}

type endpoint struct {
	client        *Client
	successes     int64
	failures      int64
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{endpoints: make(map[string]*endpoint)}
}

// Register adds or replaces an endpoint.
func (r *Registry) Register(name string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[name] = &endpoint{client: client}
}

// RecordSuccess records a completed exchange.
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.endpoints[name]; ok {
		now := time.Now()
		e.successes++
		e.lastSuccessAt = &now
	}
}

// RecordFailure records a transport failure.
func (r *Registry) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.endpoints[name]; ok {
		now := time.Now()
		e.failures++
		e.lastFailureAt = &now
		if err != nil {
			e.lastError = err.Error()
		}
	}
}

// Health returns the health of one endpoint, or nil if it is unknown.
func (r *Registry) Health(name string) *EndpointHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.endpoints[name]
	if !ok {
		return nil
	}
	return e.health(name)
}

// All returns the health of every endpoint, sorted by name.
func (r *Registry) All() []*EndpointHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*EndpointHealth, 0, len(r.endpoints))
	for name, e := range r.endpoints {
		all = append(all, e.health(name))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}

func (e *endpoint) health(name string) *EndpointHealth {
	h := &EndpointHealth{
		Name:          name,
		CircuitState:  gobreaker.StateClosed,
		Successes:     e.successes,
		Failures:      e.failures,
		LastSuccessAt: e.lastSuccessAt,
		LastFailureAt: e.lastFailureAt,
		LastError:     e.lastError,
	}
	if e.client != nil {
		h.CircuitState = e.client.CircuitBreakerState()
		h.Counts = e.client.CircuitBreakerCounts()
	}
	return h
}
