// Package indicators computes deterministic technical indicator vectors
// over a closing-price or OHLC series. Every function is pure: same input,
// same output, no I/O. Positions without enough history are NaN, and
// downstream screeners treat NaN as "not met" rather than an error.
package indicators

import "math"

// SMA returns the simple moving average over the trailing n closes,
// NaN before index n-1. Each point is computed from its own window rather
// than a running sum, so a NaN elsewhere in the series (e.g. feeding %K
// into %D) can't contaminate every later value.
func SMA(closes []float64, n int) []float64 {
	out := make([]float64, len(closes))
	for i := range closes {
		if i < n-1 {
			out[i] = math.NaN()
			continue
		}
		var sum float64
		for j := i - n + 1; j <= i; j++ {
			sum += closes[j]
		}
		out[i] = sum / float64(n)
	}
	return out
}

// EMA returns the exponential moving average with span n and no
// adjustment: alpha = 2/(n+1), EMA[0] = closes[0], EMA[i] = alpha*closes[i]
// + (1-alpha)*EMA[i-1]. This is the "span, no adjustment" convention —
// Wilder smoothing or any adjusted-EMA variant is not equivalent and must
// not be substituted.
func EMA(closes []float64, n int) []float64 {
	out := make([]float64, len(closes))
	if len(closes) == 0 {
		return out
	}
	alpha := 2.0 / (float64(n) + 1.0)
	out[0] = closes[0]
	for i := 1; i < len(closes); i++ {
		out[i] = alpha*closes[i] + (1-alpha)*out[i-1]
	}
	return out
}

// StdDev returns the sample standard deviation (divisor n-1) of the
// trailing n values, NaN before index n-1.
func StdDev(closes []float64, n int) []float64 {
	out := make([]float64, len(closes))
	means := SMA(closes, n)
	for i := range closes {
		if i < n-1 {
			out[i] = math.NaN()
			continue
		}
		mean := means[i]
		var sumSq float64
		for j := i - n + 1; j <= i; j++ {
			d := closes[j] - mean
			sumSq += d * d
		}
		if n <= 1 {
			out[i] = math.NaN()
			continue
		}
		out[i] = math.Sqrt(sumSq / float64(n-1))
	}
	return out
}

// BollingerBands holds the mid/upper/lower bands for a close series.
type BollingerBands struct {
	Mid   []float64
	Upper []float64
	Lower []float64
}

// Bollinger computes Bollinger Bands: mid = SMA_n, upper/lower = mid ±
// k*StdDev_n.
func Bollinger(closes []float64, n int, k float64) BollingerBands {
	mid := SMA(closes, n)
	sd := StdDev(closes, n)
	upper := make([]float64, len(closes))
	lower := make([]float64, len(closes))
	for i := range closes {
		upper[i] = mid[i] + k*sd[i]
		lower[i] = mid[i] - k*sd[i]
	}
	return BollingerBands{Mid: mid, Upper: upper, Lower: lower}
}

// BBW returns Bollinger Band Width as a percentage of the mid band:
// (upper-lower)/mid * 100. Zero or NaN mid produces NaN.
func BBW(bb BollingerBands) []float64 {
	out := make([]float64, len(bb.Mid))
	for i := range bb.Mid {
		if bb.Mid[i] == 0 || math.IsNaN(bb.Mid[i]) {
			out[i] = math.NaN()
			continue
		}
		out[i] = (bb.Upper[i] - bb.Lower[i]) / bb.Mid[i] * 100
	}
	return out
}

// TrueRange computes the per-bar true range: max(H-L, |H-Cprev|, |L-Cprev|).
// The first bar has no previous close, so TR[0] = H[0]-L[0].
func TrueRange(highs, lows, closes []float64) []float64 {
	out := make([]float64, len(highs))
	for i := range highs {
		if i == 0 {
			out[i] = highs[i] - lows[i]
			continue
		}
		prevClose := closes[i-1]
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - prevClose)
		lc := math.Abs(lows[i] - prevClose)
		out[i] = math.Max(hl, math.Max(hc, lc))
	}
	return out
}

// ATR is the Average True Range: true range smoothed with the same
// span/no-adjustment EMA construction as EMA().
func ATR(highs, lows, closes []float64, n int) []float64 {
	tr := TrueRange(highs, lows, closes)
	return EMA(tr, n)
}

// Stochastic computes %K and %D over the given lookback k and smoothing d.
// %K[i] = (Close[i] - min(Low, k)) / (max(High, k) - min(Low, k)) * 100,
// NaN before index k-1 and on a zero denominator. %D is the SMA_d of %K.
func Stochastic(highs, lows, closes []float64, k, d int) (pctK, pctD []float64) {
	pctK = make([]float64, len(closes))
	for i := range closes {
		if i < k-1 {
			pctK[i] = math.NaN()
			continue
		}
		lo := lows[i]
		hi := highs[i]
		for j := i - k + 1; j < i; j++ {
			if lows[j] < lo {
				lo = lows[j]
			}
			if highs[j] > hi {
				hi = highs[j]
			}
		}
		denom := hi - lo
		if denom == 0 {
			pctK[i] = math.NaN()
			continue
		}
		pctK[i] = (closes[i] - lo) / denom * 100
	}
	pctD = SMA(pctK, d)
	return pctK, pctD
}
