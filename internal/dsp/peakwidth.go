package dsp

import (
	"math"
	"sort"
)

// peakWidthWidths are the CWT scan widths [0.7, 2.5) step 0.3.
var peakWidthWidths = []float64{0.7, 1.0, 1.3, 1.6, 1.9, 2.2}

// AveragePeakWidth approximates the average peak width of signal via a
// simplified continuous-wavelet-style scan: for each candidate width, it
// smooths the signal with a Ricker-like kernel of that width and collects
// local maxima; widths at half-prominence are measured by walking outward
// from each peak until the signal drops to half its prominence above the
// nearest local minima. Falls back to 1.0 on a too-short signal, no peaks
// found, or any degenerate measurement.
func AveragePeakWidth(signal []float64) float64 {
	if len(signal) < 5 {
		return 1.0
	}

	peakIdx := make(map[int]struct{})
	for _, width := range peakWidthWidths {
		smoothed := rickerSmooth(signal, width)
		for _, idx := range localMaxima(smoothed) {
			peakIdx[idx] = struct{}{}
		}
	}
	if len(peakIdx) == 0 {
		return 1.0
	}

	peaks := make([]int, 0, len(peakIdx))
	for idx := range peakIdx {
		peaks = append(peaks, idx)
	}
	sort.Ints(peaks)

	var widths []float64
	for _, p := range peaks {
		w := peakWidthAtHalfProminence(signal, p)
		if w > 0.1 {
			widths = append(widths, w)
		}
	}
	if len(widths) == 0 {
		return 1.0
	}

	median := medianOf(widths)
	return clip(median, 0.1, float64(len(signal))/3)
}

// rickerSmooth convolves signal with a Ricker (Mexican-hat) wavelet scaled
// by width, the same mother wavelet scipy's find_peaks_cwt uses.
func rickerSmooth(signal []float64, width float64) []float64 {
	halfLen := int(math.Ceil(4 * width))
	if halfLen < 1 {
		halfLen = 1
	}
	kernel := make([]float64, 2*halfLen+1)
	a := 2.0 / (math.Sqrt(3*width) * math.Pow(math.Pi, 0.25))
	for i := -halfLen; i <= halfLen; i++ {
		t := float64(i)
		term := 1 - (t*t)/(width*width)
		kernel[i+halfLen] = a * term * math.Exp(-t*t/(2*width*width))
	}

	out := make([]float64, len(signal))
	for n := range signal {
		var acc float64
		for k, kv := range kernel {
			idx := n + k - halfLen
			if idx < 0 || idx >= len(signal) {
				continue
			}
			acc += signal[idx] * kv
		}
		out[n] = acc
	}
	return out
}

func localMaxima(x []float64) []int {
	var idx []int
	for i := 1; i < len(x)-1; i++ {
		if x[i] > x[i-1] && x[i] > x[i+1] {
			idx = append(idx, i)
		}
	}
	return idx
}

// peakWidthAtHalfProminence walks outward from peakIdx on the raw signal
// until it drops to half the prominence above the higher of its two
// bounding minima, returning the resulting width in samples.
func peakWidthAtHalfProminence(signal []float64, peakIdx int) float64 {
	peakVal := signal[peakIdx]

	leftMin := peakVal
	for i := peakIdx - 1; i >= 0; i-- {
		if signal[i] < leftMin {
			leftMin = signal[i]
		}
		if signal[i] > peakVal {
			break
		}
	}
	rightMin := peakVal
	for i := peakIdx + 1; i < len(signal); i++ {
		if signal[i] < rightMin {
			rightMin = signal[i]
		}
		if signal[i] > peakVal {
			break
		}
	}

	base := math.Max(leftMin, rightMin)
	halfHeight := base + (peakVal-base)/2

	left := float64(peakIdx)
	for i := peakIdx; i >= 0; i-- {
		if signal[i] <= halfHeight {
			left = float64(i)
			break
		}
		left = 0
	}
	right := float64(peakIdx)
	for i := peakIdx; i < len(signal); i++ {
		if signal[i] <= halfHeight {
			right = float64(i)
			break
		}
		right = float64(len(signal) - 1)
	}

	return right - left
}

func medianOf(x []float64) float64 {
	sorted := make([]float64, len(x))
	copy(sorted, x)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
