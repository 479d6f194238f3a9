package simulator

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// DefaultBasePath is the path prefix used when none is configured.
const DefaultBasePath = "/v1/tests"

// RouterConfig holds configuration for the simulator router.
type RouterConfig struct {
	// BasePath is the prefix for station endpoints.
	BasePath string

	// Fleet is the simulated station state (required).
	Fleet *Fleet

	// RejectUnknownFields answers 400 to requests carrying fields other
	// than command and payload.
	RejectUnknownFields bool

	// RateLimit enables per-IP rate limiting when non-nil.
	RateLimit *RateLimitConfig

	// Instrumentation records traces and metrics when non-nil.
	Instrumentation *Instrumentation

	Logger zerolog.Logger
}

// NewRouter creates a chi router serving the station command API.
func NewRouter(cfg RouterConfig) *chi.Mux {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = DefaultBasePath
	}
	basePath = "/" + strings.Trim(basePath, "/")

	fleet := cfg.Fleet
	if fleet == nil {
		fleet = NewFleet()
	}

	r := chi.NewRouter()

	r.Use(RequestID)
	if cfg.Instrumentation != nil {
		r.Use(cfg.Instrumentation.Middleware)
	}
	r.Use(AccessLog(cfg.Logger))
	r.Use(Recovery(cfg.Logger))
	if cfg.RateLimit != nil {
		r.Use(RateLimitByIP(*cfg.RateLimit))
	}

	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})

	h := NewHandler(fleet, cfg.RejectUnknownFields, cfg.Logger)
	r.Post(basePath+"/{stationId}", h.ServeCommand)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "stations": len(fleet.IDs())})
	})

	return r
}
