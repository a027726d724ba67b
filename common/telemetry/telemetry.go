// Package telemetry wires the optional OTLP exporters. When OTEL_ENABLED is
// off the gateway runs without any OpenTelemetry machinery.
package telemetry

import (
	"context"
	"time"

	laerrors "github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"github.com/shinmentakezo07/shinway-sub001/common"
	"github.com/shinmentakezo07/shinway-sub001/common/config"
	"github.com/shinmentakezo07/shinway-sub001/common/logger"
)

// ProviderBundle holds the tracer and meter providers so they can be shut
// down gracefully.
type ProviderBundle struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
}

// Init configures global OpenTelemetry providers when enabled. It returns a
// ProviderBundle for graceful shutdown, or nil when telemetry is disabled.
func Init(ctx context.Context) (*ProviderBundle, error) {
	if !config.OpenTelemetryEnabled {
		return nil, nil
	}
	if config.OpenTelemetryEndpoint == "" {
		return nil, laerrors.Errorf("OTEL_EXPORTER_OTLP_ENDPOINT is required when OTEL_ENABLED is true")
	}

	res, err := buildResource(ctx)
	if err != nil {
		return nil, laerrors.Wrap(err, "build OpenTelemetry resource")
	}

	traceExporter, err := otlptracehttp.New(ctx, traceExporterOptions()...)
	if err != nil {
		return nil, laerrors.Wrap(err, "create OTLP trace exporter")
	}
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)

	metricExporter, err := otlpmetrichttp.New(ctx, metricExporterOptions()...)
	if err != nil {
		_ = tracerProvider.Shutdown(ctx)
		return nil, laerrors.Wrap(err, "create OTLP metric exporter")
	}
	reader := sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(15*time.Second))
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Logger.Info("OpenTelemetry initialized",
		zap.String("endpoint", config.OpenTelemetryEndpoint),
		zap.Bool("insecure", config.OpenTelemetryInsecure),
		zap.String("service", config.OpenTelemetryServiceName))

	return &ProviderBundle{
		tracerProvider: tracerProvider,
		meterProvider:  meterProvider,
	}, nil
}

// Shutdown drains telemetry providers so exporters flush pending data. Both
// providers drain concurrently against the same deadline.
func (p *ProviderBundle) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}

	var eg errgroup.Group
	if p.meterProvider != nil {
		eg.Go(func() error {
			return laerrors.Wrap(p.meterProvider.Shutdown(ctx), "shutdown meter provider")
		})
	}
	if p.tracerProvider != nil {
		eg.Go(func() error {
			return laerrors.Wrap(p.tracerProvider.Shutdown(ctx), "shutdown tracer provider")
		})
	}
	if err := eg.Wait(); err != nil {
		return laerrors.Wrap(err, "shutdown OpenTelemetry providers")
	}
	return nil
}

func buildResource(ctx context.Context) (*sdkresource.Resource, error) {
	attrs := []attribute.KeyValue{
		attribute.String("service.name", config.OpenTelemetryServiceName),
		attribute.String("service.version", common.Version),
		attribute.String("deployment.environment", config.GatewayEnv),
	}
	return sdkresource.New(ctx,
		sdkresource.WithFromEnv(),
		sdkresource.WithHost(),
		sdkresource.WithTelemetrySDK(),
		sdkresource.WithProcess(),
		sdkresource.WithAttributes(attrs...),
	)
}

func traceExporterOptions() []otlptracehttp.Option {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(config.OpenTelemetryEndpoint),
		otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
	}
	if config.OpenTelemetryInsecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return opts
}

func metricExporterOptions() []otlpmetrichttp.Option {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.OpenTelemetryEndpoint),
		otlpmetrichttp.WithCompression(otlpmetrichttp.GzipCompression),
	}
	if config.OpenTelemetryInsecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	return opts
}
