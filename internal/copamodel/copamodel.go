// Package copamodel implements a closed-form Copa performance model:
// relative throughput, queueing delay, and loss as functions of the delta
// trade-off.
package copamodel

import "math"

// MSS is the assumed maximum segment size in bytes.
const MSS = 1448.0

// maxRounds bounds the CWND-ramp simulation in RelativeThroughputLowFreq.
const maxRounds = 6

// delta converts an integer "delta x 1000" into the unitless scalar delta.
func delta(deltaScaled int) float64 {
	return float64(deltaScaled) / 1000.0
}

// RelativeThroughputHighFreq returns the high-frequency component of
// relative throughput (Mbps, negative — a deficit from full utilization)
// given the high-frequency peak-to-peak BDP p2p (packets), the integer
// delta-scaled trade-off, and minRTT in seconds.
func RelativeThroughputHighFreq(p2p float64, deltaScaled int, minRTT float64) float64 {
	d := delta(deltaScaled)
	height := p2p / 2
	extraCwnd := math.Min(height, 1/d)
	relTputPackets := -math.Pow(height-extraCwnd, 2) / (2 * math.Max(2, height) * minRTT)
	return relTputPackets * MSS * 8 / 1024.0 / 1024.0
}

// RelativeThroughputLowFreq returns the low-frequency component of
// relative throughput (Mbps, negative), given the low-frequency
// peak-to-peak BDP, the integer delta-scaled trade-off, minRTT in seconds,
// and the average peak width in seconds.
func RelativeThroughputLowFreq(p2p float64, deltaScaled int, minRTT, avgPeakWidth float64) float64 {
	d := delta(deltaScaled)

	var deltaPackets, curCwnd, curTime float64
	// The bounce mechanism has no drain-queue phase when delta <= 0.1, so
	// the ramp must seed a larger initial window.
	if d <= 0.1 {
		curCwnd += 0.5 / d
	}

	roundCnt := 0
	for curCwnd < p2p && roundCnt < maxRounds && curTime < avgPeakWidth {
		curCwnd += 0.5 / d
		roundCnt++
		curTime += 0.5 * minRTT
		deltaPackets += math.Max(0.5*(p2p-curCwnd), 0)
	}

	deltaP2P := p2p - curCwnd
	if deltaP2P >= 1 && curTime < avgPeakWidth {
		maxConvergeRounds := int((avgPeakWidth - curTime) * 2 / minRTT)
		convergeRounds := math.Min(math.Ceil(math.Log2(2*d*deltaP2P+1)), float64(maxConvergeRounds))
		deltaPackets += convergeRounds*deltaP2P/2 - (math.Pow(2, convergeRounds)-2-convergeRounds)/4/d
	}

	return -(deltaPackets / avgPeakWidth) * 12 / 1000.0
}

// QueueDelay returns the average queueing latency (seconds) for a given
// delta-scaled trade-off, bandwidth (Mbps), and minRTT (seconds). bandwidth
// of 0 is treated as 0.001 to avoid a division by zero. When bounce is true
// and delta <= 0.1, the delay is scaled by 1.3 to reflect the bounce
// mechanism's lack of a drain-queue phase.
func QueueDelay(deltaScaled int, bandwidth, minRTT float64, bounce bool) float64 {
	d := delta(deltaScaled)
	bw := bandwidth
	if bw == 0 {
		bw = 0.001
	}
	delay := 1.25 * 12 / d / bw
	if d <= 0.1 && bounce {
		delay *= 1.3
	}
	return delay
}

// Loss returns the possible loss rate implied by the observed maximum
// queue length (packets) at the given delta-scaled trade-off.
func Loss(deltaScaled int, maxQlen float64) float64 {
	return math.Max(0, 1-maxQlen*delta(deltaScaled))
}
