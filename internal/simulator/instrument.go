package simulator

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/stationcheck/stationcheck/internal/simulator"

// Instrumentation records a server span and request metrics for every
// request the simulator answers.
type Instrumentation struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	duration   metric.Float64Histogram
	total      metric.Int64Counter
	inFlight   metric.Int64UpDownCounter
}

// NewInstrumentation creates the instruments. Nil providers fall back to the
// global ones.
func NewInstrumentation(tp trace.TracerProvider, mp metric.MeterProvider) (*Instrumentation, error) {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	duration, err := meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("Duration of HTTP server requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	total, err := meter.Int64Counter(
		"http.server.request.total",
		metric.WithDescription("Total number of HTTP server requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	inFlight, err := meter.Int64UpDownCounter(
		"http.server.requests_in_flight",
		metric.WithDescription("Number of HTTP requests currently being processed"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &Instrumentation{
		tracer:     tp.Tracer(instrumentationName),
		propagator: otel.GetTextMapPropagator(),
		duration:   duration,
		total:      total,
		inFlight:   inFlight,
	}, nil
}

// Middleware continues any incoming trace and records the request.
func (in *Instrumentation) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := in.propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		ctx, span := in.tracer.Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
				attribute.String("client.address", r.RemoteAddr),
				attribute.String("request.id", GetRequestID(r.Context())),
			),
		)
		defer span.End()

		route := []attribute.KeyValue{attribute.String("http.method", r.Method)}
		in.inFlight.Add(ctx, 1, metric.WithAttributes(route...))
		defer in.inFlight.Add(context.WithoutCancel(ctx), -1, metric.WithAttributes(route...))

		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		span.SetAttributes(
			attribute.Int("http.response.status_code", rec.statusCode),
			attribute.Int64("http.response.body.size", rec.written),
		)
		if rec.statusCode >= 500 {
			span.SetStatus(codes.Error, http.StatusText(rec.statusCode))
		}

		attrs := append(route, attribute.String("http.status_code", strconv.Itoa(rec.statusCode)))
		mctx := context.WithoutCancel(ctx)
		in.duration.Record(mctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
		in.total.Add(mctx, 1, metric.WithAttributes(attrs...))
	})
}
