// Package flowctrl implements FlowCtrl, the per-flow signal-processing and
// delta-optimisation state machine that drives Copa's delta parameter from
// ack-stream telemetry.
package flowctrl

import (
	"math"
	"time"

	"go.uber.org/zap"

	"flowctld/internal/changepoint"
	"flowctld/internal/config"
	"flowctld/internal/dsp"
	"flowctld/internal/qoe"
	"flowctld/internal/wire"
)

// Model constants for the delta-optimisation state machine.
const (
	alpha            = 0.6
	stepEps          = 0.24
	lossThreshold    = 5e-3
	initialTradeOff  = 100
	minTradeOff      = 10
	maxTradeOff      = 500
	minRTTWindowSecs = 10.0
	unknownMaxQlen   = 0xFFFFFFF // ~2^28, used when the queue length sample is unknown
)

// infRunLen is the initial run-length sentinel: large enough that the
// double-check heuristic never fires before two real run lengths have been
// observed.
const infRunLen = math.MaxInt32

// FlowCtrl owns one flow's entire state: history buffers, the rate/BDP
// estimator outputs, the change-point detector, and the current delta
// trade-off. It is not safe for concurrent use — the demultiplexer
// guarantees exactly one worker goroutine ever touches a given flow's
// FlowCtrl.
type FlowCtrl struct {
	log *zap.Logger

	flowID    uint32
	flowIDSet bool
	appType   qoe.AppType

	// History buffers. Parallel, equal length.
	historyRTT        []float64 // ms
	historyAckedBytes []float64
	historyLostBytes  []float64
	historyTimestamp  []float64 // seconds

	intervalsLen []int // sample counts per interval, last entry open

	smoothedRate []float64 // Mbps
	smoothedBDP  []float64 // packets
	ewmaRate     float64   // Mbps

	minRTTs          []float64 // ms, sliding 10s window
	minRTTTimestamps []float64 // wall-clock seconds

	historyMaxQlen []float64
	lossRate       float64

	curTradeOff  int
	lastTradeOff int

	cpDetector  *changepoint.Detector
	runLen      int
	lastRunLen  int
	cpDetected  bool

	decideIntervalsCnts int
	enableAdjust        bool

	qoeLambda float64
	qoeBeta   float64

	sampleInterval float64
}

// New returns a FlowCtrl for the given app type with its initial values
// (cur_trade_off=100, sample_interval=0.01, ...).
func New(appType config.AppType, log *zap.Logger) *FlowCtrl {
	if log == nil {
		log = zap.NewNop()
	}
	a := qoe.File
	if appType == config.AppStreaming {
		a = qoe.Streaming
	}
	return &FlowCtrl{
		log:            log,
		appType:        a,
		cpDetector:     changepoint.New(),
		runLen:         infRunLen,
		lastRunLen:     infRunLen,
		curTradeOff:    initialTradeOff,
		lastTradeOff:   initialTradeOff,
		sampleInterval: 0.01,
		intervalsLen:   []int{0},
		qoeLambda:      0.1,
		qoeBeta:        0.1,
	}
}

// FlowID returns the flow id bound on the first sample, or (0, false) if
// no sample has arrived yet.
func (f *FlowCtrl) FlowID() (uint32, bool) {
	return f.flowID, f.flowIDSet
}

// CurTradeOff returns the currently active delta trade-off (delta x 1000).
func (f *FlowCtrl) CurTradeOff() int {
	return f.curTradeOff
}

// EWMARate returns the current smoothed rate estimate in Mbps.
func (f *FlowCtrl) EWMARate() float64 {
	return f.ewmaRate
}

// MinRTTMillis returns the minimum RTT over the current 10s window, or 0
// if no samples have arrived yet.
func (f *FlowCtrl) MinRTTMillis() float64 {
	if len(f.minRTTs) == 0 {
		return 0
	}
	return minOf(f.minRTTs)
}

// LossRate returns the loss rate over the most recent two intervals.
func (f *FlowCtrl) LossRate() float64 {
	return f.lossRate
}

// Snapshot is a point-in-time, read-only copy of a flow's dashboard-facing
// state. It is safe to pass across goroutines; FlowCtrl itself is not.
type Snapshot struct {
	FlowID        uint32
	CurTradeOff   int
	EWMARateMbps  float64
	MinRTTMillis  float64
	LossRate      float64
	SmoothedRates []float64
}

// Snapshot copies the current state for display by internal/dashboard. The
// returned SmoothedRates is a private copy safe to read after the call.
func (f *FlowCtrl) Snapshot() Snapshot {
	rates := make([]float64, len(f.smoothedRate))
	copy(rates, f.smoothedRate)
	return Snapshot{
		FlowID:        f.flowID,
		CurTradeOff:   f.curTradeOff,
		EWMARateMbps:  f.ewmaRate,
		MinRTTMillis:  f.MinRTTMillis(),
		LossRate:      f.lossRate,
		SmoothedRates: rates,
	}
}

// AddData ingests one report frame: it folds new RTT/ack/loss samples into
// history, refreshes the rate/BDP and change-point estimators, and marks
// the flow ready for a decision when the frame closes an interval. A frame
// with chunk_len 0 only binds the flow id and updates intervalsLen: it does
// not mark the flow ready for a decision or advance the decision counter,
// even when it closes an interval.
func (f *FlowCtrl) AddData(entry wire.ReportEntry) {
	if !f.flowIDSet {
		f.flowID = entry.FlowID
		f.flowIDSet = true
	}

	n := len(f.intervalsLen)
	f.intervalsLen[n-1] += int(entry.ChunkLen)
	if entry.EndOfInterval() {
		f.intervalsLen = append(f.intervalsLen, 0)
	}
	if entry.ChunkLen == 0 {
		return
	}

	elems := entry.DataArray
	if int(entry.ChunkLen) < len(elems) {
		elems = elems[:entry.ChunkLen]
	}

	times := make([]float64, len(elems))
	rtts := make([]float64, len(elems))
	bytes := make([]float64, len(elems))
	losts := make([]float64, len(elems))
	for i, e := range elems {
		times[i] = float64(e.Timestamp) / 1_000_000.0
		rtts[i] = float64(e.RTT) / 1000.0
		bytes[i] = float64(e.AckedBytes)
		losts[i] = float64(e.LostBytes)
	}

	if len(f.historyRTT) > 0 {
		wndLen := minOf(f.minRTTs) / 1000.0
		idx := backfillIndex(f.historyTimestamp, wndLen, times[0])
		combinedTimes := append(append([]float64{}, f.historyTimestamp[idx:]...), times...)
		combinedRTTs := append(append([]float64{}, f.historyRTT[idx:]...), rtts...)
		combinedBytes := append(append([]float64{}, f.historyAckedBytes[idx:]...), bytes...)
		f.updateSmoothedData(combinedTimes, combinedBytes, combinedRTTs)
	}

	f.historyRTT = append(f.historyRTT, rtts...)
	f.historyTimestamp = append(f.historyTimestamp, times...)
	f.historyAckedBytes = append(f.historyAckedBytes, bytes...)
	f.historyLostBytes = append(f.historyLostBytes, losts...)

	f.updateMinRTT(minOf(rtts))
	f.updateLoss()
	pref := qoe.Update(f.appType, f.ewmaRate, minOf(f.minRTTs)/1000.0, f.lossRate)
	f.qoeLambda, f.qoeBeta = pref.Lambda, pref.Beta

	f.checkChangePoint()

	if entry.EndOfInterval() {
		f.enableAdjust = true
		f.decideIntervalsCnts++
	}
}

// updateSmoothedData runs the sliding-window rate/BDP estimator over
// timestamps/bytes/rtts (rtts in ms) and folds the result into ewmaRate,
// smoothedRate and smoothedBDP.
func (f *FlowCtrl) updateSmoothedData(timestamps, bytes, rtts []float64) {
	if len(rtts) == 0 {
		return
	}
	rttMinSeconds := minOf(rtts) / 1000.0
	wndLen := rttMinSeconds
	f.sampleInterval = math.Max(0.004, rttMinSeconds/4)
	step := f.sampleInterval

	rawRates := dsp.SlidingWindowRate(timestamps, bytes, rtts, step, wndLen)
	if len(rawRates) == 0 {
		return
	}
	rawRateMbps := make([]float64, len(rawRates))
	for i, r := range rawRates {
		rawRateMbps[i] = dsp.BytesPerSecToMbps(r)
	}

	f.ewmaRate = dsp.UpdateEWMA(f.ewmaRate, rawRateMbps, dsp.DefaultEWMAWindow)
	f.smoothedRate = append(f.smoothedRate, rawRateMbps...)
	for _, r := range rawRates {
		f.smoothedBDP = append(f.smoothedBDP, dsp.RateToBDPPackets(r, rttMinSeconds))
	}
}

// checkChangePoint folds the current EWMA rate into the detector and
// applies a double-check heuristic: a change point only counts when the run
// length has dropped and then grown again, with the new value still below
// the one before the drop and at most 10, which filters out single-sample
// noise spikes.
func (f *FlowCtrl) checkChangePoint() {
	curRunLen := f.cpDetector.AddData(f.ewmaRate)
	if f.runLen < curRunLen && curRunLen < f.lastRunLen && curRunLen <= 10 {
		f.cpDetected = true
		f.log.Debug("change point detected",
			zap.Uint32("flow_id", f.flowID),
			zap.Int("run_len", curRunLen),
			zap.Int("prev_run_len", f.runLen),
			zap.Int("prev_prev_run_len", f.lastRunLen),
		)
	}
	f.lastRunLen = f.runLen
	f.runLen = curRunLen
}

// clearHistory resets the history buffers on a change-point decision:
// everything except minrtts, cp_detector, and cur_trade_off. intervalsLen
// is deliberately left untouched — see DESIGN.md for why its running sum
// is allowed to fall out of step with the freshly-emptied history.
func (f *FlowCtrl) clearHistory() {
	f.historyRTT = nil
	f.historyAckedBytes = nil
	f.historyLostBytes = nil
	f.historyTimestamp = nil
	f.historyMaxQlen = nil
	f.smoothedRate = nil
	f.smoothedBDP = nil
	f.ewmaRate = 0
	f.decideIntervalsCnts = 0
}

// backfillIndex returns the smallest index into timestamps whose value is
// within wndLen seconds of firstNewTime, so the estimator has enough
// trailing context to seed its sliding window across the old/new sample
// boundary.
func backfillIndex(timestamps []float64, wndLen, firstNewTime float64) int {
	n := len(timestamps)
	idx := 0
	for back := 1; back <= n; back++ {
		if timestamps[n-back]+wndLen < firstNewTime {
			break
		}
		idx = back
	}
	return n - idx
}

func minOf(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	m := x[0]
	for _, v := range x[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func meanOf(x []float64) float64 {
	return dsp.Mean(x)
}

// tail returns the last n elements of x, or the whole slice if n <= 0 or
// n >= len(x). n == 0 is deliberately treated as "no limit", yielding the
// entire slice rather than an empty one.
func tail(x []float64, n int) []float64 {
	if n <= 0 || n >= len(x) {
		return x
	}
	return x[len(x)-n:]
}

// wallClockNow is overridable in tests.
var wallClockNow = func() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
