// Package metrics provides the MetricRecorder and Tracer backends selected by configuration:
// Prometheus or OpenTelemetry metrics, and OpenTelemetry traces exported over OTLP.
package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"

	config "github.com/tigerroll/customer-batch/pkg/batch/core/config"
	metrics "github.com/tigerroll/customer-batch/pkg/batch/core/metrics"
	logger "github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

func serviceResource(name string) *resource.Resource {
	if name == "" {
		name = "customer-batch"
	}
	return resource.NewSchemaless(attribute.String("service.name", name))
}

// NewMetricRecorder builds the MetricRecorder for surfin.metrics.backend.
// The otel meter provider is flushed and shut down with the application.
func NewMetricRecorder(lc fx.Lifecycle, cfg *config.Config) (metrics.MetricRecorder, error) {
	mc := cfg.Surfin.Metrics
	switch mc.Backend {
	case config.MetricsBackendPrometheus:
		logger.Infof("Metrics: Using Prometheus recorder (path %s).", mc.Path)
		return NewPrometheusRecorder(), nil
	case config.MetricsBackendOTel:
		exporter, err := newMetricExporter(context.Background(), mc)
		if err != nil {
			return nil, err
		}
		interval := time.Duration(mc.ExportIntervalSeconds) * time.Second
		if interval <= 0 {
			interval = 30 * time.Second
		}
		provider := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
			sdkmetric.WithResource(serviceResource(cfg.Surfin.Tracing.ServiceName)),
		)
		lc.Append(fx.Hook{OnStop: provider.Shutdown})
		logger.Infof("Metrics: Using OpenTelemetry recorder (%s %s).", mc.Protocol, mc.Endpoint)
		return NewOpenTelemetryRecorder(provider)
	default:
		logger.Infof("Metrics: Disabled.")
		return metrics.NewNoOpMetricRecorder(), nil
	}
}

func newMetricExporter(ctx context.Context, mc config.MetricsConfig) (sdkmetric.Exporter, error) {
	if mc.Protocol == "http" {
		opts := []otlpmetrichttp.Option{}
		if mc.Endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(mc.Endpoint))
		}
		if mc.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		exp, err := otlpmetrichttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP/HTTP metric exporter: %w", err)
		}
		return exp, nil
	}
	opts := []otlpmetricgrpc.Option{}
	if mc.Endpoint != "" {
		opts = append(opts, otlpmetricgrpc.WithEndpoint(mc.Endpoint))
	}
	if mc.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP/gRPC metric exporter: %w", err)
	}
	return exp, nil
}

// NewTracer builds the Tracer for surfin.tracing.exporter.
func NewTracer(lc fx.Lifecycle, cfg *config.Config) (metrics.Tracer, error) {
	tc := cfg.Surfin.Tracing
	var exporter sdktrace.SpanExporter
	var err error
	ctx := context.Background()

	switch tc.Exporter {
	case config.TraceExporterOTLPGRPC:
		opts := []otlptracegrpc.Option{}
		if tc.Endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(tc.Endpoint))
		}
		if tc.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	case config.TraceExporterOTLPHTTP:
		opts := []otlptracehttp.Option{}
		if tc.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(tc.Endpoint))
		}
		if tc.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	default:
		logger.Infof("Tracing: Disabled.")
		return metrics.NewNoOpTracer(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s trace exporter: %w", tc.Exporter, err)
	}

	ratio := tc.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(serviceResource(tc.ServiceName)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
	lc.Append(fx.Hook{OnStop: provider.Shutdown})
	logger.Infof("Tracing: Exporting spans via %s to %s (sample ratio %.2f).", tc.Exporter, tc.Endpoint, ratio)
	return NewOpenTelemetryTracer(provider), nil
}

// Module provides metrics.MetricRecorder and metrics.Tracer.
var Module = fx.Provide(
	NewMetricRecorder,
	NewTracer,
)
