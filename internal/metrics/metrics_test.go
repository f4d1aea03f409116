package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDecisionRecordsHistogramAndGauge(t *testing.T) {
	r := New()
	r.Decision(7, 120)
	r.Decision(7, 140)

	if got := r.TradeOffQuantile(50); got <= 0 {
		t.Fatalf("expected a positive median trade-off, got %v", got)
	}
}

func TestQuantileBeforeAnyDecisionIsZero(t *testing.T) {
	r := New()
	if got := r.TradeOffQuantile(99); got != 0 {
		t.Fatalf("got %v, want 0 before any decision", got)
	}
}

func TestHandlerServesPrometheusSeries(t *testing.T) {
	r := New()
	r.FlowConnected(1)
	r.ReportReceived(1, 5)
	r.FrameDropped("unknown_flow")
	r.Decision(1, 100)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		"flowctld_flows_connected_total",
		"flowctld_reports_received_total",
		"flowctld_frames_dropped_total",
		"flowctld_decisions_total",
		"flowctld_current_trade_off",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected /metrics output to contain %q", want)
		}
	}
}

func TestFlowDisconnectedClearsGauge(t *testing.T) {
	r := New()
	r.FlowConnected(3)
	r.Decision(3, 200)
	r.FlowDisconnected(3)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)
	if strings.Contains(rec.Body.String(), `flow_id="3"`) {
		t.Error("expected the per-flow gauge series to be removed on disconnect")
	}
}
