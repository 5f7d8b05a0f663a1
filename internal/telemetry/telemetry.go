// Package telemetry sets up OpenTelemetry tracing and metric export.
// Both providers write to stdout, which is enough for local inspection and
// log-shipper pickup.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ErrNilSource is returned when an observer is registered without a source.
var ErrNilSource = errors.New("nil metrics source")

// Setup installs global tracer and meter providers exporting to stdout.
// The returned shutdown function flushes both providers and must be called
// before exit.
func Setup(serviceName, version string, metricsInterval time.Duration) (func(context.Context) error, error) {
	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", version),
	)

	traceExporter, err := stdouttrace.New()
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)

	metricExporter, err := stdoutmetric.New()
	if err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracerProvider.Shutdown(shutdownCtx)
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter,
			sdkmetric.WithInterval(metricsInterval))),
	)
	otel.SetMeterProvider(meterProvider)

	shutdown := func(ctx context.Context) error {
		traceErr := tracerProvider.Shutdown(ctx)
		metricErr := meterProvider.Shutdown(ctx)
		return errors.Join(traceErr, metricErr)
	}
	return shutdown, nil
}

// dropSource reports the number of audit records dropped so far.
type dropSource interface {
	DroppedRecords() int64
}

// RegisterAuditObserver exposes audit drop counts through the meter as an
// observable counter. Returns an unregister function.
func RegisterAuditObserver(meter metric.Meter, source dropSource) (func() error, error) {
	if source == nil {
		return nil, ErrNilSource
	}

	dropped, err := meter.Int64ObservableCounter(
		"portalgate_audit_dropped_total",
		metric.WithDescription("Audit records dropped due to channel backpressure."),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}

	registration, err := meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		observer.ObserveInt64(dropped, source.DroppedRecords())
		return nil
	}, dropped)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return registration.Unregister, nil
}
