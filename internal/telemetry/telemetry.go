// Package telemetry sets up OpenTelemetry tracing and metrics. Spans and
// metric snapshots are written as JSON to rotating files.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/soyeahso/parley/internal/config"
	"github.com/soyeahso/parley/internal/logging"
)

// ServiceName identifies this process in exported telemetry.
const ServiceName = "parley"

// MetricInterval is how often metric snapshots are exported.
const MetricInterval = 10 * time.Second

// Telemetry holds the tracer and meter handed to instrumented components.
type Telemetry struct {
	Tracer trace.Tracer
	Meter  metric.Meter

	shutdown []func(context.Context) error
}

// Init configures telemetry. When disabled, the returned tracer and meter
// come from the global providers, which do nothing unless another component
// installs real ones.
func Init(ctx context.Context, cfg config.TelemetryConfig, version string, log *logging.Logger) (*Telemetry, error) {
	if !cfg.Enabled {
		return &Telemetry{
			Tracer: otel.Tracer(ServiceName),
			Meter:  otel.Meter(ServiceName),
		}, nil
	}
	log = log.Sub("telemetry")

	dir := cfg.Dir
	if dir == "" {
		paths, err := config.ResolvePaths()
		if err != nil {
			return nil, err
		}
		dir = paths.Logs
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	traceFile, err := logging.RotatingFile(logging.FileOptions{Path: filepath.Join(dir, "traces.log")})
	if err != nil {
		return nil, err
	}
	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(traceFile))
	if err != nil {
		traceFile.Close()
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)

	metricsFile, err := logging.RotatingFile(logging.FileOptions{Path: filepath.Join(dir, "metrics.log")})
	if err != nil {
		tp.Shutdown(ctx)
		traceFile.Close()
		return nil, err
	}
	metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(metricsFile))
	if err != nil {
		tp.Shutdown(ctx)
		traceFile.Close()
		metricsFile.Close()
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(MetricInterval))),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	log.Info().Str("dir", dir).Msg("telemetry enabled")

	return &Telemetry{
		Tracer: tp.Tracer(ServiceName),
		Meter:  mp.Meter(ServiceName),
		shutdown: []func(context.Context) error{
			tp.Shutdown,
			mp.Shutdown,
			closer(traceFile),
			closer(metricsFile),
		},
	}, nil
}

// Shutdown flushes pending spans and metrics and closes the output files.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range t.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	t.shutdown = nil
	return errors.Join(errs...)
}

func closer(c io.Closer) func(context.Context) error {
	return func(context.Context) error { return c.Close() }
}
