package analysis

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Weave summarizes how much a tracked signal oscillates around its mean.
type Weave struct {
	// Frequency is the dominant oscillation in Hz; zero when flat.
	Frequency float64
	Period    float64
	// Amplitude is the RMS deviation from the mean.
	Amplitude float64
	// Crossings counts sign changes of the signal.
	Crossings int
}

// AnalyzeWeave characterizes a series such as cross-track error or steering
// sampled every dt seconds.
func AnalyzeWeave(data []float64, dt float64) Weave {
	var w Weave
	if len(data) < 2 {
		return w
	}

	w.Frequency, _ = DominantFrequency(data, dt)
	if w.Frequency > 0 {
		w.Period = 1 / w.Frequency
	}

	_, std := stat.PopMeanStdDev(data, nil)
	w.Amplitude = std

	for i := 1; i < len(data); i++ {
		if math.Signbit(data[i]) != math.Signbit(data[i-1]) && data[i] != 0 && data[i-1] != 0 {
			w.Crossings++
		}
	}
	return w
}

// Overshoot is the largest excursion past zero after the signal first
// crosses it, relative to the initial value. It is zero when the signal
// never crosses.
func Overshoot(data []float64) float64 {
	if len(data) < 2 || data[0] == 0 {
		return 0
	}
	sign := math.Copysign(1, data[0])
	for i := 1; i < len(data); i++ {
		if data[i]*sign < 0 {
			rest := make([]float64, len(data)-i)
			for j, v := range data[i:] {
				rest[j] = -v * sign
			}
			return floats.Max(rest) / math.Abs(data[0])
		}
	}
	return 0
}
