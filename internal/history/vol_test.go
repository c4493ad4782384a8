package history

import (
	"math"
	"testing"
)

func TestVolatilityTooFewSamples(t *testing.T) {
	if v := Volatility(nil, 10, 900); !math.IsNaN(v) {
		t.Errorf("Volatility(nil) = %v, want NaN", v)
	}
	if v := Volatility([]float64{100}, 10, 900); !math.IsNaN(v) {
		t.Errorf("Volatility(one sample) = %v, want NaN", v)
	}
}

func TestVolatilityConstantSeries(t *testing.T) {
	samples := []float64{100, 100, 100, 100}
	if v := Volatility(samples, 10, 900); v != 0 {
		t.Errorf("Volatility(constant) = %v, want 0", v)
	}
}

func TestVolatilityScalingLaw(t *testing.T) {
	samples := []float64{100, 101, 99.5, 102, 100.7, 101.3}

	base := Volatility(samples, 10, 10)
	scaled := Volatility(samples, 10, 40)

	// Quadrupling the target interval doubles the result.
	if math.Abs(scaled-2*base) > 1e-12 {
		t.Errorf("scaling law violated: base=%v scaled=%v", base, scaled)
	}
}

func TestVolatilityMatchesHandComputation(t *testing.T) {
	// Two samples, one return: ln(1 + (110-100)/100) = ln(1.1). Population
	// stddev of a single value is 0, so the result is 0 regardless of scale.
	if v := Volatility([]float64{100, 110}, 10, 900); v != 0 {
		t.Errorf("single-return Volatility = %v, want 0", v)
	}

	// Three samples with symmetric returns around zero.
	samples := []float64{100, 110, 100}
	r1 := math.Log(1 + (100.0-110.0)/110.0) // newest pair first
	r2 := math.Log(1 + (110.0-100.0)/100.0)
	mean := (r1 + r2) / 2
	variance := ((r1-mean)*(r1-mean) + (r2-mean)*(r2-mean)) / 2
	want := math.Sqrt(variance) * math.Sqrt(900.0/10.0)

	got := Volatility(samples, 10, 900)
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("Volatility = %v, want %v", got, want)
	}
}

func TestVolatilityWindow(t *testing.T) {
	samples := []float64{500, 100, 101, 100, 101}

	t.Run("window shorter than series trims the front", func(t *testing.T) {
		// 40s window at 10s sampling keeps the trailing 4 samples, so the
		// 500 outlier never contributes a return.
		got := VolatilityWindow(samples, 10, 900, 40)
		want := Volatility(samples[1:], 10, 900)
		if got != want {
			t.Errorf("VolatilityWindow = %v, want %v", got, want)
		}
	})

	t.Run("window longer than series is a no-op", func(t *testing.T) {
		got := VolatilityWindow(samples, 10, 900, 3600)
		want := Volatility(samples, 10, 900)
		if got != want {
			t.Errorf("VolatilityWindow = %v, want %v", got, want)
		}
	})

	t.Run("window too small for two samples", func(t *testing.T) {
		if v := VolatilityWindow(samples, 10, 900, 10); !math.IsNaN(v) {
			t.Errorf("VolatilityWindow = %v, want NaN", v)
		}
	})
}
