// Package qoe implements a per-sample QoE slope model: a piecewise (a,b)
// table keyed on loss, feeding an app-type-specific lambda/beta pair.
package qoe

// AppType selects which QoE preference formula applies.
type AppType int

const (
	// File scores a bulk transfer against a response-size-aware QoE model.
	File AppType = iota
	// Streaming scores a chunk-rate QoE model.
	Streaming
)

// ResponseSize is the constant response size (Mb) used by the FILE model.
const ResponseSize = 4.87

// ChunkSize is the constant playback chunk size (Mb) used by the STREAMING
// model.
const ChunkSize = 2.0

// Preference is the pair of QoE slope coefficients recomputed on every
// sample.
type Preference struct {
	Lambda float64
	Beta   float64
}

// lossCoefficients returns the piecewise (a, b) pair for the given loss
// rate.
func lossCoefficients(loss float64) (a, b float64) {
	switch {
	case loss < 0.05:
		return 0, 0
	case loss < 0.10:
		return 4, -0.2
	case loss < 0.40:
		return 1, 0.1
	default:
		return 0, 0.5
	}
}

// Update recomputes (lambda, beta) from the current throughput (Mbps),
// minRTT (seconds), and loss rate, for the given app type.
//
// The FILE branch divides the incoming delay by a further 1000 before use:
// callers already convert minRTT from milliseconds to seconds before
// calling this function, and the FILE formula re-divides by 1000 again
// internally. This looks like a unit bug, but it is preserved byte-for-byte
// to keep its observed behaviour rather than "fix" it.
func Update(app AppType, tput, minRTTSeconds, loss float64) Preference {
	a, b := lossCoefficients(loss)

	switch app {
	case Streaming:
		lambda := 2.66 * tput * tput * (loss + 2) / (tput + ChunkSize*2.66) / 1000.0
		beta := 2.66 * tput * tput * minRTTSeconds / (tput + ChunkSize*2.66)
		return Preference{Lambda: lambda, Beta: beta}
	default: // File
		delay := minRTTSeconds / 1000.0
		response := ResponseSize
		lambda := (tput * tput) * (loss + 2) / (2 * response) / 1000.0
		denom := 2 * response * (a*loss + b - 1)
		var beta float64
		if denom != 0 {
			beta = -tput * (2*a*(response+tput*delay) - (b-1)*tput*delay) / denom
		}
		return Preference{Lambda: lambda, Beta: beta}
	}
}
