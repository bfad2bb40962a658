// Package observability wires tracing, metrics, and logging for caar.
//
// Initialize installs a tracer provider driven by the observability section
// of the configuration. Spans are emitted around conversion stages (fetch,
// sniff, detect, parse, records, cache) and exported through a stdout
// exporter when tracing is enabled; with tracing disabled the span helpers
// degrade to no-ops so callers never branch on the setting.
package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/ajitpratap0/caar/pkg/config"
	"github.com/ajitpratap0/caar/pkg/metrics"
)

var (
	// Global tracer instance
	tracer trace.Tracer

	// Global meter instance
	meter metric.Meter

	// Initialization lock
	initOnce sync.Once
)

// Initialize sets up tracing, the meter, and logging from the configuration.
// It is safe to call more than once; only the first call takes effect.
func Initialize(cfg *config.Config) error {
	var err error

	initOnce.Do(func() {
		err = initTracing(cfg)
		if err != nil {
			return
		}

		err = initMeter(cfg)
		if err != nil {
			return
		}

		err = initLogging(cfg)
		if err != nil {
			return
		}

		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
	})

	return err
}

// Tracer returns the global tracer.
func Tracer() trace.Tracer {
	return activeTracer()
}

// activeTracer falls back to the default provider so span helpers work
// before Initialize, as library callers may never call it.
func activeTracer() trace.Tracer {
	if tracer != nil {
		return tracer
	}
	return otel.Tracer("caar")
}

// Meter returns the global meter.
func Meter() metric.Meter {
	return meter
}

// Span wraps a trace span and batches attributes until End.
type Span struct {
	span       trace.Span
	startTime  time.Time
	stage      string
	dataType   string
	attributes []attribute.KeyValue
}

// NewSpan starts a span for an operation outside the staged pipeline.
func NewSpan(ctx context.Context, operationName string) (context.Context, *Span) {
	ctx, span := activeTracer().Start(ctx, operationName)

	return ctx, &Span{
		span:      span,
		startTime: time.Now(),
	}
}

// SetAttribute adds an attribute to the span (batched for performance)
func (s *Span) SetAttribute(key string, value interface{}) {
	var attr attribute.KeyValue

	switch v := value.(type) {
	case string:
		attr = attribute.String(key, v)
	case int:
		attr = attribute.Int(key, v)
	case int64:
		attr = attribute.Int64(key, v)
	case float64:
		attr = attribute.Float64(key, v)
	case bool:
		attr = attribute.Bool(key, v)
	default:
		attr = attribute.String(key, fmt.Sprintf("%v", v))
	}

	s.attributes = append(s.attributes, attr)
}

// AddEvent adds an event to the span
func (s *Span) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetStatus sets the span status
func (s *Span) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}

// End finishes the span. Stage spans also observe their duration in the
// stage latency histogram.
func (s *Span) End() {
	// Batch set attributes for performance
	if len(s.attributes) > 0 {
		s.span.SetAttributes(s.attributes...)
	}

	if s.stage != "" {
		metrics.ObserveStage(s.stage, s.dataType, time.Since(s.startTime))
	}

	s.span.End()
}

// StageTracer emits spans for the stages of a single conversion job.
type StageTracer struct {
	tracer   trace.Tracer
	input    string
	dataType string
}

// NewStageTracer creates a tracer scoped to one input and data type.
func NewStageTracer(input, dataType string) *StageTracer {
	return &StageTracer{
		tracer:   activeTracer(),
		input:    input,
		dataType: dataType,
	}
}

// StartStage starts a span for a pipeline stage.
func (st *StageTracer) StartStage(ctx context.Context, stage string) (context.Context, *Span) {
	ctx, span := st.tracer.Start(ctx, "caar."+stage,
		trace.WithAttributes(
			attribute.String("input", st.input),
			attribute.String("data_type", st.dataType),
			attribute.String("stage", stage),
		),
	)

	return ctx, &Span{
		span:      span,
		startTime: time.Now(),
		stage:     stage,
		dataType:  st.dataType,
	}
}

// TraceStage runs fn inside a stage span, marking the span failed when fn
// returns an error.
func (st *StageTracer) TraceStage(ctx context.Context, stage string, fn func(ctx context.Context) error) error {
	ctx, span := st.StartStage(ctx, stage)
	defer span.End()

	if err := fn(ctx); err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.span.RecordError(err)
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}
