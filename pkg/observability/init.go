package observability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/ajitpratap0/caar/pkg/config"
	"github.com/ajitpratap0/caar/pkg/logger"
)

// Version is stamped into the tracing resource. The CLI overrides it with
// the build version at startup.
var Version = "dev"

// Span batching limits for the stdout exporter.
const (
	batchTimeout   = 5 * time.Second
	maxExportBatch = 512
	maxQueueSize   = 2048
)

// initTracing initializes the tracing provider
func initTracing(cfg *config.Config) error {
	if !cfg.Observability.EnableTracing {
		// No provider is installed, so spans from the default one are no-ops.
		tracer = otel.Tracer(cfg.Name)
		return nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.Name),
			semconv.ServiceVersionKey.String(Version),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	// Configure sampling
	var sampler sdktrace.Sampler
	rate := cfg.Observability.TracingSampleRate
	if rate <= 0 {
		sampler = sdktrace.NeverSample()
	} else if rate >= 1.0 {
		sampler = sdktrace.AlwaysSample()
	} else {
		sampler = sdktrace.TraceIDRatioBased(rate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(batchTimeout),
			sdktrace.WithMaxExportBatchSize(maxExportBatch),
			sdktrace.WithMaxQueueSize(maxQueueSize),
		),
	)

	otel.SetTracerProvider(tp)
	tracer = tp.Tracer(cfg.Name)

	return nil
}

// initMeter initializes the metrics provider. Throughput and latency
// metrics live in the Prometheus collectors under pkg/metrics, so the
// meter stays on the default provider.
func initMeter(cfg *config.Config) error {
	meter = otel.Meter(cfg.Name)
	return nil
}

// initLogging configures the global logger from the observability section.
func initLogging(cfg *config.Config) error {
	if !cfg.Observability.EnableLogging {
		return nil
	}

	return logger.Init(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Development: cfg.Environment == "development",
		Encoding:    "json",
	})
}

// Shutdown flushes pending spans and syncs the logger.
func Shutdown(ctx context.Context) error {
	var errs []error

	if tp, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); ok {
		if err := tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown tracer: %w", err))
		}
	}

	if err := logger.Sync(); err != nil {
		// Sync on stdout/stderr fails on some platforms and when output is
		// redirected. See: https://github.com/uber-go/zap/issues/328
		errStr := err.Error()
		if !strings.Contains(errStr, "bad file descriptor") &&
			!strings.Contains(errStr, "invalid argument") &&
			!strings.Contains(errStr, "/dev/stdout") &&
			!strings.Contains(errStr, "/dev/stderr") {
			errs = append(errs, fmt.Errorf("failed to sync logger: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	return nil
}
