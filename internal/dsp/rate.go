package dsp

import "math"

// MSS is the assumed maximum segment size in bytes, used to convert rate
// into BDP (packets).
const MSS = 1448.0

// SlidingWindowRate implements a sliding-window byte-rate estimator: window
// length equals the current minimum RTT (seconds), step is
// max(0.004, minRTT/4). times must
// be non-decreasing and the three slices must have equal length. Returns a
// rate sequence in bytes/second with the final (partial) value dropped.
//
// The "application-limited correction" skips idle gaps: when the time
// between consecutive samples exceeds half the window length and the RTT
// barely grew over that gap (no queue built up), both window endpoints are
// advanced by 0.9 of the gap so an idle sender doesn't get scored as if it
// had been rate-limited by the network.
func SlidingWindowRate(times, vals, rtts []float64, step, windowLength float64) []float64 {
	if len(times) == 0 || windowLength <= 0 {
		return nil
	}

	var result []float64
	wndStart := times[0]
	leftIdx, rightIdx := 0, 0

	for rightIdx < len(times) {
		wndStart += step
		wndEnd := wndStart + windowLength

		for leftIdx < len(times) && times[leftIdx] < wndStart {
			leftIdx++
			if leftIdx >= len(times) {
				break
			}
		}

		for rightIdx < len(times) && times[rightIdx] < wndEnd {
			if rightIdx < len(times)-1 {
				dt := times[rightIdx+1] - times[rightIdx]
				if dt > windowLength/2 {
					if (rtts[rightIdx+1]-rtts[rightIdx])/1000.0 < 0.5*dt {
						padding := dt * 0.9
						wndStart += padding
						wndEnd += padding
					}
				}
			}
			rightIdx++
			if rightIdx >= len(times) {
				break
			}
		}

		if leftIdx < rightIdx {
			var sum float64
			for i := leftIdx; i < rightIdx; i++ {
				sum += vals[i]
			}
			result = append(result, sum/windowLength)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result[:len(result)-1]
}

// BytesPerSecToMbps converts a bytes/second rate to megabits/second.
func BytesPerSecToMbps(bytesPerSec float64) float64 {
	return bytesPerSec * 8 / (1024 * 1024)
}

// RateToBDPPackets converts a bytes/second rate into a bandwidth-delay
// product expressed in packets, given minRTT in seconds.
func RateToBDPPackets(bytesPerSec, minRTTSeconds float64) float64 {
	return bytesPerSec * minRTTSeconds / MSS
}

// UpdateEWMA folds up to the most recent maxWindowLen samples of
// newSamples into old with coefficient 0.8^(k-1-i)*0.2 per sample and
// 0.8^k carried over from old. UpdateEWMA(x, nil) returns x unchanged.
func UpdateEWMA(old float64, newSamples []float64, maxWindowLen int) float64 {
	n := len(newSamples)
	if n == 0 {
		return old
	}
	wndLen := n
	if wndLen > maxWindowLen {
		wndLen = maxWindowLen
	}
	tail := newSamples[n-wndLen:]

	var acc float64
	for i, x := range tail {
		k := wndLen - 1 - i
		acc += math.Pow(0.8, float64(k)) * 0.2 * x
	}
	return acc + old*math.Pow(0.8, float64(wndLen))
}

// DefaultEWMAWindow is the max EWMA window length, 20 samples.
const DefaultEWMAWindow = 20
