package tracing

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	providerOnce sync.Once
	providerMu   sync.RWMutex
	provider     *sdktrace.TracerProvider
	providerErr  error
)

// ProviderConfig configures the process-wide tracer provider
type ProviderConfig struct {
	ServiceName    string
	ServiceVersion string

	// SampleRatio is the fraction of root traces recorded; <= 0 or > 1 means 1
	SampleRatio float64

	// Logger receives one debug event per finished span
	Logger zerolog.Logger
}

// InitOpenTelemetry installs a tracer provider whose finished spans are
// written to cfg.Logger. Only the first call has an effect.
func InitOpenTelemetry(cfg ProviderConfig) error {
	providerOnce.Do(func() {
		res, err := resource.New(
			context.Background(),
			resource.WithAttributes(
				semconv.ServiceName(cfg.ServiceName),
				semconv.ServiceVersion(cfg.ServiceVersion),
			),
		)
		if err != nil {
			providerErr = err
			return
		}

		ratio := cfg.SampleRatio
		if ratio <= 0 || ratio > 1 {
			ratio = 1
		}

		tp := sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
			sdktrace.WithResource(res),
			sdktrace.WithSpanProcessor(&logSpanProcessor{logger: cfg.Logger.With().Str("component", "tracing").Logger()}),
		)

		providerMu.Lock()
		provider = tp
		providerMu.Unlock()

		otel.SetTracerProvider(tp)
	})

	return providerErr
}

// ShutdownOpenTelemetry flushes and shuts down the global tracer provider.
func ShutdownOpenTelemetry(ctx context.Context) error {
	providerMu.RLock()
	tp := provider
	providerMu.RUnlock()
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}

// StartSpan starts a span and records its trace id in ctx unless one is set.
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))

	if GetTraceID(ctx) == "" {
		if sc := span.SpanContext(); sc.IsValid() {
			ctx = WithTraceID(ctx, sc.TraceID().String())
		}
	}

	return ctx, span
}

// logSpanProcessor writes finished spans as structured log events
type logSpanProcessor struct {
	logger zerolog.Logger
}

func (p *logSpanProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p *logSpanProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	event := p.logger.Debug()
	if s.Status().Code == codes.Error {
		event = p.logger.Warn().Str("error", s.Status().Description)
	}

	event = event.
		Str("span", s.Name()).
		Str("trace_id", s.SpanContext().TraceID().String()).
		Str("span_id", s.SpanContext().SpanID().String()).
		Dur("duration", s.EndTime().Sub(s.StartTime()).Round(time.Microsecond))
	if parent := s.Parent(); parent.IsValid() {
		event = event.Str("parent_id", parent.SpanID().String())
	}
	for _, kv := range s.Attributes() {
		event = event.Str(string(kv.Key), kv.Value.Emit())
	}
	event.Msg("Span finished")
}

func (p *logSpanProcessor) Shutdown(context.Context) error   { return nil }
func (p *logSpanProcessor) ForceFlush(context.Context) error { return nil }
