// Package indicators provides the moving-average and volatility calculations
// used by the exit rule engine and the built-in scanner. All functions return
// slices aligned to the input length, with NaN for warmup entries.
package indicators

import "math"

// SMA is the simple moving average over the last p points.
func SMA(x []float64, p int) []float64 {
	if p <= 0 {
		return nil
	}
	out := make([]float64, len(x))
	var sum float64
	for i := range x {
		sum += x[i]
		if i < p-1 {
			out[i] = math.NaN()
			continue
		}
		if i >= p {
			sum -= x[i-p]
		}
		out[i] = sum / float64(p)
	}
	return out
}

// EMA is the exponential moving average with smoothing 2/(p+1), seeded with
// the SMA of the first p points.
func EMA(x []float64, p int) []float64 {
	if p <= 0 {
		return nil
	}
	out := make([]float64, len(x))
	if len(x) < p {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}

	k := 2.0 / float64(p+1)
	var seed float64
	for i := 0; i < p; i++ {
		seed += x[i]
		out[i] = math.NaN()
	}
	seed /= float64(p)
	out[p-1] = seed
	for i := p; i < len(x); i++ {
		out[i] = (x[i]-out[i-1])*k + out[i-1]
	}
	return out
}

// ATR is the average true range: a rolling SMA of the true range
// max(high-low, |high-prevClose|, |low-prevClose|).
func ATR(high, low, closes []float64, p int) []float64 {
	n := len(closes)
	if p <= 0 || len(high) != n || len(low) != n {
		return nil
	}
	tr := make([]float64, n)
	for i := 0; i < n; i++ {
		r := high[i] - low[i]
		if i > 0 {
			if hc := math.Abs(high[i] - closes[i-1]); hc > r {
				r = hc
			}
			if lc := math.Abs(low[i] - closes[i-1]); lc > r {
				r = lc
			}
		}
		tr[i] = r
	}
	return SMA(tr, p)
}

// RSI is the relative strength index over period p, using simple rolling
// averages of gains and losses.
func RSI(closes []float64, p int) []float64 {
	n := len(closes)
	if p <= 0 || n == 0 {
		return nil
	}
	out := make([]float64, n)
	out[0] = math.NaN()

	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		diff := closes[i] - closes[i-1]
		if diff > 0 {
			gains[i] = diff
		} else {
			losses[i] = -diff
		}
	}

	avgGain := SMA(gains[1:], p)
	avgLoss := SMA(losses[1:], p)
	for i := 1; i < n; i++ {
		g, l := avgGain[i-1], avgLoss[i-1]
		if math.IsNaN(g) || math.IsNaN(l) {
			out[i] = math.NaN()
			continue
		}
		if l == 0 {
			out[i] = 100
			continue
		}
		rs := g / l
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

// Last returns the final value of an aligned indicator slice, or NaN when the
// slice is empty.
func Last(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return x[len(x)-1]
}

// Highest returns the maximum of the last p values (all values when p exceeds
// the slice length), or NaN for an empty slice.
func Highest(x []float64, p int) float64 {
	if len(x) == 0 || p <= 0 {
		return math.NaN()
	}
	start := len(x) - p
	if start < 0 {
		start = 0
	}
	hi := x[start]
	for _, v := range x[start+1:] {
		if v > hi {
			hi = v
		}
	}
	return hi
}
