package history

import "math"

// Volatility computes the volatility of a sample series as the population
// standard deviation of its log returns, scaled to targetInterval.
//
// samples are ordered oldest first. Log returns are formed for each adjacent
// pair walking backward from the newest sample:
//
//	ln(1 + (newer - older) / older)
//
// Mean and standard deviation divide by N (population, not N-1). The result
// is scaled by sqrt(targetInterval / sampleInterval). With fewer than two
// samples there is no return to measure and the result is NaN.
func Volatility(samples []float64, sampleInterval, targetInterval float64) float64 {
	if len(samples) < 2 {
		return math.NaN()
	}

	logReturns := make([]float64, 0, len(samples)-1)
	for i := 0; i < len(samples)-1; i++ {
		idx := len(samples) - i - 1
		older, newer := samples[idx-1], samples[idx]
		logReturns = append(logReturns, math.Log(1+(newer-older)/older))
	}

	var avg float64
	for _, r := range logReturns {
		avg += r
	}
	avg /= float64(len(logReturns))

	var variance float64
	for _, r := range logReturns {
		variance += (r - avg) * (r - avg)
	}
	std := math.Sqrt(variance / float64(len(logReturns)))

	return std * math.Sqrt(targetInterval/sampleInterval)
}

// VolatilityWindow restricts the computation to the trailing
// windowSeconds/sampleInterval samples before measuring returns. Returns are
// taken entirely within the restricted slice, so the window behaves as if the
// older samples had already been dropped from the buffer. A window longer
// than the series is equivalent to no window.
func VolatilityWindow(samples []float64, sampleInterval, targetInterval, windowSeconds float64) float64 {
	n := int(windowSeconds / sampleInterval)
	if n < len(samples) {
		samples = samples[len(samples)-n:]
	}
	return Volatility(samples, sampleInterval, targetInterval)
}
