// Package observability wires the engine's ExecutionObserver interface
// to OpenTelemetry: ComponentEnter/Exit become spans, ComponentEnter
// increments a steps counter, and execution-level failure/completion
// events are logged through otelslog. ResourceLimiter counters are not
// exported.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowlattice/engine/runtime"
)

// Providers bundles the three OTel SDK providers the engine exports to,
// all talking OTLP/gRPC to the same collector endpoint. Shutdown flushes
// and closes all three.
type Providers struct {
	Tracer         trace.Tracer
	Meter          metric.Meter
	Logger         *slog.Logger
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	loggerProvider *sdklog.LoggerProvider
}

// NewProviders dials endpoint (a "host:port" OTLP/gRPC collector
// address) and constructs trace/metric/log providers named
// "flowlattice-engine".
func NewProviders(ctx context.Context, endpoint string) (*Providers, error) {
	res, err := resource.New(ctx, resource.WithAttributes())
	if err != nil {
		return nil, fmt.Errorf("observability: failed to build resource: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("observability: failed to build trace exporter: %w", err)
	}
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)

	metricExporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpoint(endpoint), otlpmetricgrpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("observability: failed to build metric exporter: %w", err)
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(15*time.Second))),
		sdkmetric.WithResource(res),
	)

	logExporter, err := otlploggrpc.New(ctx, otlploggrpc.WithEndpoint(endpoint), otlploggrpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("observability: failed to build log exporter: %w", err)
	}
	loggerProvider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
		sdklog.WithResource(res),
	)

	return &Providers{
		Tracer:         tracerProvider.Tracer("flowlattice-engine"),
		Meter:          meterProvider.Meter("flowlattice-engine"),
		Logger:         slog.New(otelslog.NewHandler("flowlattice-engine", otelslog.WithLoggerProvider(loggerProvider))),
		tracerProvider: tracerProvider,
		meterProvider:  meterProvider,
		loggerProvider: loggerProvider,
	}, nil
}

// Shutdown flushes and closes every provider, in trace/metric/log
// order. All three are attempted even if an earlier one fails.
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	if err := p.tracerProvider.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracer provider: %w", err))
	}
	if err := p.meterProvider.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("meter provider: %w", err))
	}
	if err := p.loggerProvider.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("logger provider: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("observability: shutdown errors: %v", errs)
	}
	return nil
}

// Observer is an runtime.ExecutionObserver that turns ComponentEnter/
// ComponentExit pairs into spans, keyed by execution id and component
// id, and counts steps on flowlattice.engine.steps. The
// flowlattice.engine.audit_entries instrument is registered but nothing
// records to it, and no context-size metric exists.
type Observer struct {
	providers    *Providers
	stepsCounter metric.Int64Counter
	auditGauge   metric.Int64UpDownCounter

	mu    sync.Mutex
	spans map[string]spanEntry // executionId\x00componentId -> open span
}

type spanEntry struct {
	ctx  context.Context
	span trace.Span
}

// NewObserver constructs an Observer over providers, registering its
// engine counters/gauges on providers.Meter.
func NewObserver(providers *Providers) (*Observer, error) {
	stepsCounter, err := providers.Meter.Int64Counter("flowlattice.engine.steps",
		metric.WithDescription("Number of component steps executed"))
	if err != nil {
		return nil, fmt.Errorf("observability: failed to create steps counter: %w", err)
	}
	auditGauge, err := providers.Meter.Int64UpDownCounter("flowlattice.engine.audit_entries",
		metric.WithDescription("Audit trail length of in-flight executions"))
	if err != nil {
		return nil, fmt.Errorf("observability: failed to create audit gauge: %w", err)
	}
	return &Observer{
		providers:    providers,
		stepsCounter: stepsCounter,
		auditGauge:   auditGauge,
		spans:        make(map[string]spanEntry),
	}, nil
}

func spanKey(executionID, componentID string) string { return executionID + "\x00" + componentID }

// OnEvent implements runtime.ExecutionObserver.
func (o *Observer) OnEvent(event runtime.ExecutionEvent) {
	ctx := context.Background()
	switch event.Kind {
	case runtime.EventComponentEnter:
		spanCtx, span := o.providers.Tracer.Start(ctx, fmt.Sprintf("component:%s", event.ComponentID))
		o.mu.Lock()
		o.spans[spanKey(event.ExecutionID, event.ComponentID)] = spanEntry{ctx: spanCtx, span: span}
		o.mu.Unlock()
		o.stepsCounter.Add(ctx, 1)
	case runtime.EventComponentExit:
		o.mu.Lock()
		entry, ok := o.spans[spanKey(event.ExecutionID, event.ComponentID)]
		delete(o.spans, spanKey(event.ExecutionID, event.ComponentID))
		o.mu.Unlock()
		if ok {
			entry.span.End()
		}
	case runtime.EventExecutionFailed:
		o.mu.Lock()
		entry, ok := o.spans[spanKey(event.ExecutionID, event.ComponentID)]
		delete(o.spans, spanKey(event.ExecutionID, event.ComponentID))
		o.mu.Unlock()
		if ok {
			if event.Error != nil {
				entry.span.RecordError(event.Error)
			}
			entry.span.End()
		}
		if event.Error != nil {
			o.providers.Logger.Error("execution failed", "execution_id", event.ExecutionID, "error", event.Error.Error())
		}
	case runtime.EventExecutionCompleted:
		o.providers.Logger.Info("execution completed", "execution_id", event.ExecutionID, "flow_id", event.FlowID)
	}
}
