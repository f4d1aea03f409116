package telemetry

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"flowctld/internal/config"
)

func TestNewWithoutRegistererSkipsMetricsBridge(t *testing.T) {
	cfg := config.Default()
	cfg.TraceSampleRatio = 1.0

	m, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Shutdown(context.Background())

	if m.meterProvider != nil {
		t.Fatal("expected no meter provider when registerer is nil")
	}
	if m.ingestCounter != nil || m.decideCounter != nil {
		t.Fatal("expected no OTel counters when registerer is nil")
	}
}

func TestNewWithRegistererBuildsMetricsBridge(t *testing.T) {
	cfg := config.Default()
	cfg.TraceSampleRatio = 1.0
	reg := prometheus.NewRegistry()

	m, err := New(context.Background(), cfg, reg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Shutdown(context.Background())

	if m.meterProvider == nil {
		t.Fatal("expected a meter provider when a registerer is supplied")
	}
	if m.ingestCounter == nil || m.decideCounter == nil {
		t.Fatal("expected both OTel counters to be built")
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) == 0 {
		t.Fatal("expected the OTel reader to register at least a target info series")
	}
}

func TestStartReportIngestAndFlowDecideProduceSpans(t *testing.T) {
	cfg := config.Default()
	cfg.TraceSampleRatio = 1.0

	m, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Shutdown(context.Background())

	ctx, end := m.StartReportIngest(context.Background())
	if ctx == nil {
		t.Fatal("expected a non-nil context")
	}
	end()

	ctx, end = m.StartFlowDecide(context.Background())
	if ctx == nil {
		t.Fatal("expected a non-nil context")
	}
	end()
}

func TestShutdownWithMetricsBridgeSucceeds(t *testing.T) {
	cfg := config.Default()
	reg := prometheus.NewRegistry()

	m, err := New(context.Background(), cfg, reg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
