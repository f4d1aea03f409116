// Package dsp provides the numeric primitives the estimator is built on:
// Chebyshev Type-I low/high-pass filters, a sliding-window rate/BDP
// estimator, a fixed-window EWMA, and an average-peak-width approximation.
package dsp

import "math"

// Biquad is one second-order section of a digital filter in direct-form-II
// transposed form, with implicit a0 = 1.
type Biquad struct {
	B0, B1, B2 float64
	A1, A2     float64

	z1, z2 float64 // transposed direct-form-II state
}

// Process filters one sample through the section, updating its state.
func (s *Biquad) Process(x float64) float64 {
	y := s.B0*x + s.z1
	s.z1 = s.B1*x - s.A1*y + s.z2
	s.z2 = s.B2*x - s.A2*y
	return y
}

// Reset clears the section's internal state.
func (s *Biquad) Reset() {
	s.z1, s.z2 = 0, 0
}

// Cascade is an ordered list of biquad sections applied one after another.
type Cascade []Biquad

// Apply filters an entire sequence through the cascade with zero initial
// state, mirroring scipy.signal.lfilter's default behaviour. The input
// slice is not modified.
func (c Cascade) Apply(x []float64) []float64 {
	sections := make([]Biquad, len(c))
	copy(sections, c)

	y := make([]float64, len(x))
	copy(y, x)
	for i := range sections {
		for n := range y {
			y[n] = sections[i].Process(y[n])
		}
	}
	return y
}

// zpk is a zero/pole/gain representation used internally while designing a
// filter; it never escapes this package.
type zpk struct {
	zeros []complex128
	poles []complex128
	gain  float64
}

// chebyshev1Prototype returns the analog Chebyshev Type-I lowpass prototype
// (cutoff normalised to 1 rad/s, ripple rippleDB decibels) of the given
// order, via the standard closed-form pole placement.
func chebyshev1Prototype(order int, rippleDB float64) zpk {
	eps := math.Sqrt(math.Pow(10, rippleDB/10) - 1)
	mu := math.Asinh(1/eps) / float64(order)

	poles := make([]complex128, order)
	for k := 1; k <= order; k++ {
		theta := math.Pi * float64(2*k-1) / float64(2*order)
		re := -math.Sinh(mu) * math.Sin(theta)
		im := math.Cosh(mu) * math.Cos(theta)
		poles[k-1] = complex(re, im)
	}

	prod := complex(1, 0)
	for _, p := range poles {
		prod *= -p
	}
	gain := real(prod)
	if order%2 == 0 {
		gain /= math.Sqrt(1 + eps*eps)
	}

	return zpk{poles: poles, gain: gain}
}

// lp2lp rescales a lowpass prototype's cutoff from 1 rad/s to wc rad/s.
func lp2lp(z zpk, wc float64) zpk {
	degree := len(z.poles) - len(z.zeros)
	zeros := make([]complex128, len(z.zeros))
	for i, zr := range z.zeros {
		zeros[i] = zr * complex(wc, 0)
	}
	poles := make([]complex128, len(z.poles))
	for i, p := range z.poles {
		poles[i] = p * complex(wc, 0)
	}
	return zpk{zeros: zeros, poles: poles, gain: z.gain * math.Pow(wc, float64(degree))}
}

// lp2hp transforms a lowpass prototype into a highpass filter with cutoff
// wc rad/s via s -> wc/s.
func lp2hp(z zpk, wc float64) zpk {
	degree := len(z.poles) - len(z.zeros)

	zeros := make([]complex128, len(z.zeros))
	prodZ := complex(1, 0)
	for i, zr := range z.zeros {
		zeros[i] = complex(wc, 0) / zr
		prodZ *= -zr
	}
	poles := make([]complex128, len(z.poles))
	prodP := complex(1, 0)
	for i, p := range z.poles {
		poles[i] = complex(wc, 0) / p
		prodP *= -p
	}
	for i := 0; i < degree; i++ {
		zeros = append(zeros, 0)
	}

	gain := z.gain * real(prodZ/prodP)
	return zpk{zeros: zeros, poles: poles, gain: gain}
}

// bilinear maps an analog zpk design to a digital one via the bilinear
// transform at sample rate fs, pre-warped frequencies already baked into
// the analog design.
func bilinear(z zpk, fs float64) zpk {
	fs2 := complex(2*fs, 0)
	degree := len(z.poles) - len(z.zeros)

	zeros := make([]complex128, 0, len(z.poles))
	prodNum := complex(1, 0)
	for _, zr := range z.zeros {
		zeros = append(zeros, (fs2+zr)/(fs2-zr))
		prodNum *= fs2 - zr
	}
	for i := 0; i < degree; i++ {
		zeros = append(zeros, complex(-1, 0))
	}

	poles := make([]complex128, len(z.poles))
	prodDen := complex(1, 0)
	for i, p := range z.poles {
		poles[i] = (fs2 + p) / (fs2 - p)
		prodDen *= fs2 - p
	}

	gain := z.gain * real(prodNum/prodDen)
	return zpk{zeros: zeros, poles: poles, gain: gain}
}

// toCascade converts a digital zpk design (even pole count, conjugate
// pairs in mirrored index positions as produced by chebyshev1Prototype)
// into a cascade of biquads.
func toCascade(z zpk) Cascade {
	n := len(z.poles)
	sections := make(Cascade, 0, (n+1)/2)
	for i := 0; i < n/2; i++ {
		p1, p2 := z.poles[i], z.poles[n-1-i]
		a1 := -real(p1 + p2)
		a2 := real(p1 * p2)

		var b0, b1, b2 float64 = 1, 0, 0
		if 2*i+1 < len(z.zeros) {
			z1, z2 := z.zeros[i], z.zeros[n-1-i]
			b1 = -real(z1 + z2)
			b2 = real(z1 * z2)
		}

		if i == 0 {
			b0 *= z.gain
			b1 *= z.gain
			b2 *= z.gain
		}
		sections = append(sections, Biquad{B0: b0, B1: b1, B2: b2, A1: a1, A2: a2})
	}
	return sections
}

// DesignLowpass builds a Chebyshev Type-I lowpass cascade. cutoff and fs
// are in the same units (e.g. Hz); order is typically 2 or 4 and must be
// even; rippleDB is the passband ripple in decibels.
func DesignLowpass(order int, rippleDB, cutoff, fs float64) Cascade {
	wn := cutoff / (fs / 2)
	wc := 2 * fs * math.Tan(math.Pi*wn/2)
	proto := chebyshev1Prototype(order, rippleDB)
	scaled := lp2lp(proto, wc)
	digital := bilinear(scaled, fs)
	return toCascade(digital)
}

// DesignHighpass builds a Chebyshev Type-I highpass cascade, same
// parameters as DesignLowpass.
func DesignHighpass(order int, rippleDB, cutoff, fs float64) Cascade {
	wn := cutoff / (fs / 2)
	wc := 2 * fs * math.Tan(math.Pi*wn/2)
	proto := chebyshev1Prototype(order, rippleDB)
	scaled := lp2hp(proto, wc)
	digital := bilinear(scaled, fs)
	return toCascade(digital)
}

// LowpassFilter designs and applies a Chebyshev Type-I lowpass filter in
// one call.
func LowpassFilter(data []float64, cutoff, fs, rippleDB float64, order int) []float64 {
	if len(data) == 0 {
		return data
	}
	return DesignLowpass(order, rippleDB, cutoff, fs).Apply(data)
}

// HighpassFilter designs and applies a Chebyshev Type-I highpass filter in
// one call.
func HighpassFilter(data []float64, cutoff, fs, rippleDB float64, order int) []float64 {
	if len(data) == 0 {
		return data
	}
	return DesignHighpass(order, rippleDB, cutoff, fs).Apply(data)
}

// StdDev returns the population standard deviation of x.
func StdDev(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	mean := Mean(x)
	var sumSq float64
	for _, v := range x {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(x)))
}

// Mean returns the arithmetic mean of x, or 0 for an empty slice.
func Mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v
	}
	return sum / float64(len(x))
}

// PeakToPeak approximates peak-to-peak amplitude as 2*stddev.
func PeakToPeak(band []float64) float64 {
	return 2 * StdDev(band)
}

// ZeroMean returns a copy of x with its mean subtracted.
func ZeroMean(x []float64) []float64 {
	m := Mean(x)
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v - m
	}
	return out
}
