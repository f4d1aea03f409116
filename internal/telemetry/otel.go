// Package telemetry wires up OpenTelemetry tracing (and, when a collector
// is configured, OTLP/HTTP export) around two spans: report.ingest for each
// decoded data frame and flow.decide for each fired trade-off decision.
package telemetry

import (
	"context"
	"fmt"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"flowctld/internal/config"
)

// Manager owns the process's tracer and meter providers and their
// graceful shutdown. It satisfies internal/demux's Tracer interface by
// structure.
type Manager struct {
	tracer trace.Tracer

	ingestCounter metric.Int64Counter
	decideCounter metric.Int64Counter

	traceProvider *sdktrace.TracerProvider
	meterProvider *sdkmetric.MeterProvider
}

// New builds a Manager from cfg. With an empty OTLPEndpoint, spans are
// still created and sampled but never exported off-box — useful for local
// debugging with a log-based span processor wired in by the caller, or
// simply to keep span/trace IDs available in log correlation. When
// registerer is non-nil, the OTel metric reader publishes its instruments
// through it (sharing internal/metrics' /metrics endpoint rather than
// opening a second one); pass nil to disable OTel metrics entirely.
func New(ctx context.Context, cfg config.Config, registerer promclient.Registerer) (*Manager, error) {
	res, err := sdkresource.New(ctx,
		sdkresource.WithAttributes(
			semconv.ServiceName("flowctld"),
			semconv.ServiceVersion(config.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.TraceSampleRatio)),
	}

	if cfg.OTLPEndpoint != "" {
		exporter, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("build OTLP/HTTP exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	traceProvider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	m := &Manager{
		tracer:        traceProvider.Tracer("flowctld"),
		traceProvider: traceProvider,
	}

	if registerer != nil {
		reader, err := otelprom.New(otelprom.WithRegisterer(registerer))
		if err != nil {
			return nil, fmt.Errorf("build otel prometheus reader: %w", err)
		}
		m.meterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(reader),
		)
		otel.SetMeterProvider(m.meterProvider)

		meter := m.meterProvider.Meter("flowctld")
		m.ingestCounter, err = meter.Int64Counter("flowctld_otel_report_ingest_total",
			metric.WithDescription("Total number of report.ingest spans started."))
		if err != nil {
			return nil, fmt.Errorf("build ingest counter: %w", err)
		}
		m.decideCounter, err = meter.Int64Counter("flowctld_otel_flow_decide_total",
			metric.WithDescription("Total number of flow.decide spans started."))
		if err != nil {
			return nil, fmt.Errorf("build decide counter: %w", err)
		}
	}

	return m, nil
}

// StartReportIngest implements demux.Tracer: one span per decoded data
// frame, covering FlowCtrl.AddData.
func (m *Manager) StartReportIngest(ctx context.Context) (context.Context, func()) {
	ctx, span := m.tracer.Start(ctx, "report.ingest")
	if m.ingestCounter != nil {
		m.ingestCounter.Add(ctx, 1)
	}
	return ctx, func() { span.End() }
}

// StartFlowDecide implements demux.Tracer: one span per fired trade-off
// decision, started after FlowCtrl.Process has reported that a decision
// fired.
func (m *Manager) StartFlowDecide(ctx context.Context) (context.Context, func()) {
	ctx, span := m.tracer.Start(ctx, "flow.decide")
	if m.decideCounter != nil {
		m.decideCounter.Add(ctx, 1)
	}
	return ctx, func() { span.End() }
}

// Shutdown flushes any pending spans/metrics and releases exporter
// resources.
func (m *Manager) Shutdown(ctx context.Context) error {
	if err := m.traceProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown trace provider: %w", err)
	}
	if m.meterProvider != nil {
		if err := m.meterProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown meter provider: %w", err)
		}
	}
	return nil
}
