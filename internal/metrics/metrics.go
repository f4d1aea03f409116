// Package metrics exposes flowctld's operational counters/gauges as
// Prometheus series and keeps an HDR histogram of the delta trade-offs the
// service has actually emitted, for precise tail-quantile reporting
// without the coarse bucket boundaries a plain Prometheus histogram would
// need to be configured with up front.
package metrics

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is flowctld's metrics surface. It satisfies internal/demux's
// Metrics interface by structure, without either package importing the
// other.
type Registry struct {
	reg *prometheus.Registry

	flowsConnected    prometheus.Counter
	flowsDisconnected prometheus.Counter
	reportsReceived   prometheus.Counter
	reportElemsTotal  prometheus.Counter
	framesDropped     *prometheus.CounterVec
	decisionsTotal    prometheus.Counter
	currentTradeOff   *prometheus.GaugeVec

	mu           sync.Mutex
	tradeOffHist *hdrhistogram.Histogram
}

// New builds a Registry with its own private Prometheus registry (so tests
// can construct more than one without colliding on the default global
// registry).
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		flowsConnected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowctld_flows_connected_total",
			Help: "Total number of flows for which a Connect control frame was handled.",
		}),
		flowsDisconnected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowctld_flows_disconnected_total",
			Help: "Total number of flows torn down via Disconnect or replacement Connect.",
		}),
		reportsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowctld_reports_received_total",
			Help: "Total number of data frames routed to a flow worker.",
		}),
		reportElemsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowctld_report_elements_total",
			Help: "Total number of ack samples carried across all received data frames.",
		}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowctld_frames_dropped_total",
			Help: "Total number of frames dropped, by reason.",
		}, []string{"reason"}),
		decisionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowctld_decisions_total",
			Help: "Total number of delta trade-off decisions emitted to the agent.",
		}),
		currentTradeOff: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flowctld_current_trade_off",
			Help: "Most recently emitted delta trade-off (delta x 1000) per flow.",
		}, []string{"flow_id"}),
		tradeOffHist: hdrhistogram.New(minTradeOffValue, maxTradeOffValue, 3),
	}

	r.reg.MustRegister(
		r.flowsConnected,
		r.flowsDisconnected,
		r.reportsReceived,
		r.reportElemsTotal,
		r.framesDropped,
		r.decisionsTotal,
		r.currentTradeOff,
	)
	return r
}

// minTradeOffValue/maxTradeOffValue bound the HDR histogram to the valid
// trade-off range.
const (
	minTradeOffValue = 10
	maxTradeOffValue = 500
)

// Handler returns the HTTP handler to mount at the configured metrics
// address's /metrics path.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Registerer exposes the private Prometheus registry so internal/telemetry
// can bridge its OTel-derived instruments onto the same /metrics output,
// rather than standing up a second exporter and endpoint.
func (r *Registry) Registerer() prometheus.Registerer {
	return r.reg
}

// FlowConnected implements demux.Metrics.
func (r *Registry) FlowConnected(uint32) {
	r.flowsConnected.Inc()
}

// FlowDisconnected implements demux.Metrics.
func (r *Registry) FlowDisconnected(flowID uint32) {
	r.flowsDisconnected.Inc()
	r.currentTradeOff.DeleteLabelValues(flowIDLabel(flowID))
}

// ReportReceived implements demux.Metrics.
func (r *Registry) ReportReceived(_ uint32, elems int) {
	r.reportsReceived.Inc()
	r.reportElemsTotal.Add(float64(elems))
}

// Decision implements demux.Metrics.
func (r *Registry) Decision(flowID uint32, tradeOff int) {
	r.decisionsTotal.Inc()
	r.currentTradeOff.WithLabelValues(flowIDLabel(flowID)).Set(float64(tradeOff))

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tradeOffHist.RecordValue(int64(tradeOff))
}

// FrameDropped implements demux.Metrics.
func (r *Registry) FrameDropped(reason string) {
	r.framesDropped.WithLabelValues(reason).Inc()
}

// TradeOffQuantile returns the pth percentile (0-100) across every delta
// trade-off decision recorded so far, or 0 before the first decision.
func (r *Registry) TradeOffQuantile(p float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tradeOffHist.TotalCount() == 0 {
		return 0
	}
	return float64(r.tradeOffHist.ValueAtQuantile(p))
}

func flowIDLabel(flowID uint32) string {
	return strconv.FormatUint(uint64(flowID), 10)
}
