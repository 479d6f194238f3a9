package telemetry

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/stationcheck/stationcheck/internal/station"
)

const instrumentationName = "github.com/stationcheck/stationcheck/internal/telemetry"

// ExchangeObserver records a client span and metrics for every station exchange.
type ExchangeObserver struct {
	tracer   trace.Tracer
	duration metric.Float64Histogram
	total    metric.Int64Counter
}

// NewExchangeObserver creates an observer using the given providers. Nil
// providers fall back to the global ones.
func NewExchangeObserver(tp trace.TracerProvider, mp metric.MeterProvider) (*ExchangeObserver, error) {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	duration, err := meter.Float64Histogram(
		"station.exchange.duration",
		metric.WithDescription("Duration of station exchanges in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	total, err := meter.Int64Counter(
		"station.exchange.total",
		metric.WithDescription("Total number of station exchanges"),
		metric.WithUnit("{exchange}"),
	)
	if err != nil {
		return nil, err
	}

	return &ExchangeObserver{
		tracer:   tp.Tracer(instrumentationName),
		duration: duration,
		total:    total,
	}, nil
}

// ExchangeStarted opens the client span.
func (o *ExchangeObserver) ExchangeStarted(ctx context.Context, ex *station.Exchange) context.Context {
	command := commandLabel(ex.Command)
	ctx, _ = o.tracer.Start(ctx, "station "+command,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("station.exchange.id", ex.ID),
			attribute.Int64("station.id", int64(ex.StationID)),
			attribute.String("station.command", command),
			attribute.String("http.request.method", ex.Method),
		),
	)
	return ctx
}

// ExchangeFinished closes the span and records metrics.
func (o *ExchangeObserver) ExchangeFinished(ctx context.Context, ex *station.Exchange) {
	attrs := []attribute.KeyValue{
		attribute.String("station.command", commandLabel(ex.Command)),
		attribute.String("station.outcome", string(ex.Outcome)),
	}
	if ex.StatusCode != 0 {
		attrs = append(attrs, attribute.String("http.status_code", strconv.Itoa(ex.StatusCode)))
	}

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("url.full", ex.URL))
	span.SetAttributes(attrs...)
	if ex.Err != nil {
		span.RecordError(ex.Err)
		span.SetStatus(codes.Error, string(ex.Outcome))
	}
	span.End()

	// Metrics are recorded even if ctx was cancelled mid-exchange.
	mctx := context.WithoutCancel(ctx)
	o.duration.Record(mctx, ex.Duration.Seconds(), metric.WithAttributes(attrs...))
	o.total.Add(mctx, 1, metric.WithAttributes(attrs...))
}

func commandLabel(k station.CommandKind) string {
	if k.Valid() {
		return k.Token()
	}
	return "raw"
}
