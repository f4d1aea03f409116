package flowctrl

import (
	"math"

	"go.uber.org/zap"

	"flowctld/internal/copamodel"
	"flowctld/internal/dsp"
	"flowctld/internal/wire"
)

// netLambdaBeta holds the finite-difference slope pair computed over the
// most recent four intervals' BDP trace.
type netLambdaBeta struct {
	lambda float64
	beta   float64
}

// getNetLambdaBeta computes (net_lambda, net_beta) by high/low-pass
// splitting the recent BDP trace and finite-differencing the Copa model
// between a "small" and "large" neighbouring delta.
func (f *FlowCtrl) getNetLambdaBeta() netLambdaBeta {
	n := intervalsSum(f.intervalsLen, 4)
	startIdx := len(f.historyTimestamp) - n
	if startIdx < 0 || startIdx >= len(f.historyTimestamp) {
		startIdx = 0
	}

	rttMinMillis := minOf(f.minRTTs)

	bdpCount := int((f.historyTimestamp[len(f.historyTimestamp)-1] - f.historyTimestamp[startIdx]) / f.sampleInterval)
	bdp := tail(f.smoothedBDP, bdpCount)

	bw := f.ewmaRate

	cutoff := math.Floor(1000.0 / (2 * 1.5 * rttMinMillis))
	fs := math.Max(1/f.sampleInterval, 2.01*cutoff)
	const rp = 1.0

	bdpHigh := dsp.HighpassFilter(bdp, cutoff, fs, rp, 4)
	bdpZeroMean := dsp.ZeroMean(bdp)
	bdpLow := dsp.LowpassFilter(bdpZeroMean, cutoff, fs, rp, 2)

	p2pHigh := 2 * dsp.StdDev(bdpHigh)
	p2pLow := 2 * dsp.StdDev(bdpLow)
	peakWidthLow := dsp.AveragePeakWidth(bdpLow) * f.sampleInterval

	deltaLarge := int(math.Min(maxTradeOff, float64(f.curTradeOff)*(1+stepEps)))
	deltaSmall := int(math.Max(float64(f.curTradeOff)/3, float64(f.curTradeOff)*(1-stepEps)))

	rttMinSeconds := rttMinMillis / 1000.0

	tputHigh := copamodel.RelativeThroughputHighFreq(p2pHigh, deltaSmall, rttMinSeconds) -
		copamodel.RelativeThroughputHighFreq(p2pHigh, deltaLarge, rttMinSeconds)
	tputLow := copamodel.RelativeThroughputLowFreq(p2pLow, deltaSmall, rttMinSeconds, peakWidthLow) -
		copamodel.RelativeThroughputLowFreq(p2pLow, deltaLarge, rttMinSeconds, peakWidthLow)
	thr := tputHigh + tputLow

	latMean := copamodel.QueueDelay(deltaSmall, bw, rttMinSeconds, true) -
		copamodel.QueueDelay(deltaLarge, bw, rttMinSeconds, true)

	var lossMean float64
	if len(f.historyMaxQlen) > 0 {
		maxQlen := dsp.Mean(f.historyMaxQlen)
		lossMean = copamodel.Loss(deltaSmall, maxQlen) - copamodel.Loss(deltaLarge, maxQlen)
	}

	var beta float64
	if lossMean > lossThreshold {
		beta = thr / lossMean
	}

	var lambda float64
	if latMean != 0 {
		lambda = thr / latMean
	}

	return netLambdaBeta{lambda: lambda, beta: beta}
}

// fineTune searches the delta range near curTradeOff for the value
// maximising the QoE-weighted Copa score.
func (f *FlowCtrl) fineTune(rttMinMillis float64) float64 {
	n := intervalsSum(f.intervalsLen, 4)
	startIdx := len(f.historyTimestamp) - n
	if startIdx < 0 || startIdx >= len(f.historyTimestamp) {
		startIdx = 0
	}

	bdpCount := int((f.historyTimestamp[len(f.historyTimestamp)-1] - f.historyTimestamp[startIdx]) / f.sampleInterval)
	bdp := tail(f.smoothedBDP, bdpCount)

	cutoff := math.Floor(1000.0 / (2 * 1.5 * rttMinMillis))
	fs := math.Max(1/f.sampleInterval, 2.01*cutoff)
	const rp = 0.8

	bdpHigh := dsp.HighpassFilter(bdp, cutoff, fs, rp, 4)
	bdpZeroMean := dsp.ZeroMean(bdp)
	bdpLow := dsp.LowpassFilter(bdpZeroMean, cutoff, fs, rp, 2)

	p2pHigh := 2 * dsp.StdDev(bdpHigh)
	p2pLow := 2 * dsp.StdDev(bdpLow)
	peakWidthLow := math.Max(dsp.AveragePeakWidth(bdpLow)*f.sampleInterval, 1/cutoff)

	bw := f.ewmaRate
	rttMinSeconds := rttMinMillis / 1000.0

	delayThr := 0.08 * rttMinMillis
	deltaMax := 500
	if delayThr > 0 && bw > 0 {
		deltaMax = int(math.Min(12/delayThr/bw*1000, maxTradeOff))
	}
	deltaMin := int(math.Max(12+100*f.qoeLambda, float64(f.curTradeOff)/2))

	maxQlen := unknownMaxQlen
	haveQlen := len(f.historyMaxQlen) > 0
	var meanQlen float64
	if haveQlen {
		meanQlen = dsp.Mean(f.historyMaxQlen)
	} else {
		meanQlen = float64(maxQlen)
	}

	bestDelta := float64(f.curTradeOff)
	bestScore := math.Inf(-1)
	for d := deltaMin; d <= deltaMax; d += 25 {
		tputHigh := copamodel.RelativeThroughputHighFreq(p2pHigh, d, rttMinSeconds)
		tputLow := copamodel.RelativeThroughputLowFreq(p2pLow, d, rttMinSeconds, peakWidthLow)
		thr := tputHigh + tputLow
		latMean := copamodel.QueueDelay(d, bw, rttMinSeconds, true)
		lossMean := copamodel.Loss(d, meanQlen)

		score := thr - f.qoeLambda*latMean/(1-lossMean) - f.qoeBeta*lossMean
		if score > bestScore {
			bestScore = score
			bestDelta = float64(d)
		}
	}

	optDelta := bestDelta
	if optDelta <= float64(f.curTradeOff) && f.lossRate < lossThreshold {
		optDelta = float64(f.curTradeOff) - float64(f.curTradeOff)*0.1/(0.2+f.qoeLambda+f.qoeBeta)
		optDelta = math.Max(optDelta, float64(deltaMin))
	}
	if f.lossRate > lossThreshold {
		optDelta += float64(f.curTradeOff) * math.Min(0.5, f.qoeBeta*f.lossRate*12)
	}
	return optDelta
}

// coarseAdjust steps curTradeOff multiplicatively by 1±stepEps (halved in
// certain cases). The branch mapping below is deliberate and must not be
// "corrected" by intuition about which case should get the gentler
// half-step: the underprovisioned-and-clean and overprovisioned-and-lossy
// cases get the half step, not the pairing a casual reading might suggest.
func (f *FlowCtrl) coarseAdjust(lambda netLambdaBeta) float64 {
	opt := float64(f.curTradeOff)
	if lambda.lambda < f.qoeLambda {
		if f.lossRate < lossThreshold {
			opt *= 1 + stepEps/2
		} else {
			opt *= 1 + stepEps
		}
	} else {
		if f.lossRate > lossThreshold {
			opt /= 1 + stepEps/2
		} else {
			opt /= 1 + stepEps
		}
	}

	deltaMin := math.Max(10+100*f.qoeLambda, float64(f.curTradeOff)/3)
	rttMinMillis := minOf(f.minRTTs)
	delayThr := 0.1 * rttMinMillis
	deltaMax := float64(maxTradeOff)
	if delayThr > 0 && f.ewmaRate > 0 {
		deltaMax = math.Min(12/delayThr/f.ewmaRate*1000, maxTradeOff)
	}

	opt = math.Max(opt, deltaMin)
	opt = math.Min(opt, deltaMax)
	return opt
}

// probeOptDelta picks the fine or coarse search based on how close net_lambda
// currently tracks qoe_lambda.
func (f *FlowCtrl) probeOptDelta() float64 {
	rttMinMillis := minOf(f.minRTTs)
	netLB := f.getNetLambdaBeta()

	// betaOptD is computed but deliberately never consulted below — neither
	// search path reads it (see DESIGN.md).
	betaOptD := float64(f.curTradeOff)
	if netLB.beta < f.qoeBeta && netLB.beta > 0 {
		betaOptD *= 1 + stepEps
	} else {
		betaOptD = 0
	}
	_ = betaOptD

	var lambdaRatio float64
	if f.qoeLambda > 0 {
		lambdaRatio = netLB.lambda / f.qoeLambda
	}

	if lambdaRatio > 0.5 && lambdaRatio < 2 {
		return f.fineTune(rttMinMillis)
	}
	return f.coarseAdjust(netLB)
}

// Process runs one decision cycle. It returns the command to send to the
// kernel agent and true if a decision fired this call, or (nil, false) if
// no interval boundary is pending or the periodic/change-point gating
// condition isn't met yet.
func (f *FlowCtrl) Process() (*wire.Command, bool) {
	if !f.enableAdjust {
		return nil, false
	}
	defer func() { f.enableAdjust = false }()

	fire := f.decideIntervalsCnts%5 == 0 || (f.decideIntervalsCnts > 10 && f.cpDetected)
	if !fire {
		return nil, false
	}

	f.lastTradeOff = f.curTradeOff
	optDelta := int(f.probeOptDelta())

	if f.cpDetected {
		f.curTradeOff = clampTradeOff(optDelta)
		f.clearHistory()
		f.cpDetected = false
	} else {
		f.curTradeOff = clampTradeOff(int(alpha*float64(optDelta) + (1-alpha)*float64(f.curTradeOff)))
	}

	f.log.Debug("trade-off decision",
		zap.Uint32("flow_id", f.flowID),
		zap.Int("prev_trade_off", f.lastTradeOff),
		zap.Int("cur_trade_off", f.curTradeOff),
		zap.Float64("qoe_lambda", f.qoeLambda),
		zap.Float64("qoe_beta", f.qoeBeta),
		zap.Float64("loss_rate", f.lossRate),
	)

	cmd := wire.NewSkStgMapUpdateCommand(f.flowID, f.curTradeOff)
	return &cmd, true
}

// clampTradeOff enforces the 10 <= cur_trade_off <= 500 bound defensively,
// since the fine/coarse searches keep the value in range only in the
// typical operating regime.
func clampTradeOff(v int) int {
	if v < minTradeOff {
		return minTradeOff
	}
	if v > maxTradeOff {
		return maxTradeOff
	}
	return v
}
