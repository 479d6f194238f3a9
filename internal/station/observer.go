package station

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Outcome is the terminal state of a single exchange.
type Outcome string

const (
	OutcomeDecoded           Outcome = "decoded"
	OutcomeRaw               Outcome = "raw"
	OutcomeTransportError    Outcome = "transport_error"
	OutcomeContractViolation Outcome = "contract_violation"
	OutcomeSchemaViolation   Outcome = "schema_violation"
)

// OutcomeOf classifies the error returned by a dispatch. A nil error on a
// typed dispatch is OutcomeDecoded.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeDecoded
	case errors.Is(err, ErrTransport):
		return OutcomeTransportError
	case errors.Is(err, ErrContractViolation):
		return OutcomeContractViolation
	default:
		return OutcomeSchemaViolation
	}
}

// Exchange describes one request/response pair as seen by an Observer.
// Response fields are populated before ExchangeFinished is called.
type Exchange struct {
	ID        string
	StationID StationID
	// Command is zero for free-form requests.
	Command     CommandKind
	Method      string
	URL         string
	RequestBody []byte

	StatusCode   int
	ContentType  string
	ResponseBody []byte
	Outcome      Outcome
	Err          error

	StartedAt time.Time
	Duration  time.Duration
}

// Observer is notified around every exchange. Observers must not modify the
// exchange and must not affect its result.
type Observer interface {
	ExchangeStarted(ctx context.Context, ex *Exchange) context.Context
	ExchangeFinished(ctx context.Context, ex *Exchange)
}

// NopObserver ignores all exchanges.
type NopObserver struct{}

func (NopObserver) ExchangeStarted(ctx context.Context, _ *Exchange) context.Context { return ctx }
func (NopObserver) ExchangeFinished(context.Context, *Exchange)                      {}

// Observers fans out to each observer in order.
type Observers []Observer

func (o Observers) ExchangeStarted(ctx context.Context, ex *Exchange) context.Context {
	for _, obs := range o {
		if obs != nil {
			ctx = obs.ExchangeStarted(ctx, ex)
		}
	}
	return ctx
}

func (o Observers) ExchangeFinished(ctx context.Context, ex *Exchange) {
	for i := len(o) - 1; i >= 0; i-- {
		if o[i] != nil {
			o[i].ExchangeFinished(ctx, ex)
		}
	}
}

// LogObserver writes one audit line per finished exchange, including the
// request and response bodies.
type LogObserver struct {
	Logger zerolog.Logger
}

func (l LogObserver) ExchangeStarted(ctx context.Context, _ *Exchange) context.Context {
	return ctx
}

func (l LogObserver) ExchangeFinished(_ context.Context, ex *Exchange) {
	evt := l.Logger.Info()
	if ex.Err != nil {
		evt = l.Logger.Warn().Err(ex.Err)
	}

	command := "raw"
	if ex.Command.Valid() {
		command = ex.Command.Token()
	}

	evt.
		Str("exchange_id", ex.ID).
		Int64("station_id", int64(ex.StationID)).
		Str("command", command).
		Str("method", ex.Method).
		Str("url", ex.URL).
		Bytes("request_body", ex.RequestBody).
		Int("status", ex.StatusCode).
		Str("content_type", ex.ContentType).
		Bytes("response_body", ex.ResponseBody).
		Str("outcome", string(ex.Outcome)).
		Dur("duration", ex.Duration).
		Msg("station exchange")
}
