// Package mathkernel provides the pure numeric primitives the scoring
// engine and backfill reducers are built on: percentile, clamp
// normalization, rolling statistics over sparse series, and percent
// change. Every function here is deterministic given its inputs and
// performs no I/O.
package mathkernel

import (
	"math"
	"sort"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

// rollingWindow is the default lookback (in observations) for the rolling
// log-return standard deviation and the rolling mean.
const rollingWindow = 30

// minNonNullFraction is the 80%-non-null gating rule shared by
// RollingLogReturnStdDev and RollingMean: a window position is only
// computed when at least this fraction of the trailing window's values
// are non-null.
const minNonNullFraction = 0.8

// ClampNormalize maps v into [0, 1] via a linear map against [lo, hi],
// clamped at both ends. When hi == lo (degenerate history) it returns 0.5
// rather than dividing by zero. The scoring engine relies on this fallback
// directly: it does not filter out degenerate normalization parameters
// before calling in (see internal/scoring).
func ClampNormalize(v, lo, hi float64) float64 {
	if hi == lo {
		return 0.5
	}
	n := (v - lo) / (hi - lo)
	if n < 0 {
		return 0
	}
	if n > 1 {
		return 1
	}
	return n
}

// RollingLogReturnStdDev computes, for each position in closes (an
// ordered series of positive daily closes), the sample standard deviation
// (divisor N-1) of the log returns over the trailing window of size N
// (default 30 when window <= 0). Position i is nil when fewer than N
// prior observations exist, or when fewer than 80% of the N trailing log
// returns are non-null (a non-positive close produces a null log return
// at that position).
func RollingLogReturnStdDev(closes []float64, window int) []*float64 {
	if window <= 0 {
		window = rollingWindow
	}
	logReturns := logReturnSeries(closes)
	return rollingStdDev(logReturns, window)
}

// RollingMean computes, for each position in values, the arithmetic mean
// over the trailing window of size N (default 30), gated by the same
// 80%-non-null rule as RollingLogReturnStdDev. values entries may be NaN
// to represent "no observation at this position"; use NaNSlice to build
// such a series from a []*float64.
func RollingMean(values []float64, window int) []*float64 {
	if window <= 0 {
		window = rollingWindow
	}
	out := make([]*float64, len(values))
	for i := range values {
		if i+1 < window {
			continue
		}
		start := i + 1 - window
		win := values[start : i+1]
		nonNull := make([]float64, 0, window)
		for _, v := range win {
			if !math.IsNaN(v) {
				nonNull = append(nonNull, v)
			}
		}
		if float64(len(nonNull)) < minNonNullFraction*float64(window) {
			continue
		}
		m := stat.Mean(nonNull, nil)
		out[i] = &m
	}
	return out
}

// PercentChange computes ((v - ref) / |ref|) * 100. Returns nil if ref is
// zero or nil. The backing transform is talib.Roc's ratio-of-ratios
// arithmetic, which is equivalent to this formula for every ref this
// pipeline ever supplies (reserves levels and FX closes are always
// positive, so ref == |ref|); the abs() is applied explicitly here so the
// formula stays correct if a future metric supplies a negative reference.
func PercentChange(v float64, ref *float64) *float64 {
	if ref == nil || *ref == 0 {
		return nil
	}
	series := []float64{*ref, v}
	roc := talib.Roc(series, 1)
	pct := roc[len(roc)-1] * (*ref) / math.Abs(*ref)
	return &pct
}

// Percentile returns the linear-interpolation percentile (fractional rank
// in [0, len(sorted)-1], p in [0, 1]) of data. data need not be sorted;
// Percentile sorts a copy. Used for p5/p95 normalization bounds.
func Percentile(data []float64, p float64) float64 {
	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)
	rank := p * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// Median returns the median of a non-empty numeric sequence.
func Median(data []float64) float64 {
	return Percentile(data, 0.5)
}

// logReturnSeries computes log(close[k]/close[k-1]) for each k >= 1;
// position 0 and any position where either close is non-positive is NaN.
func logReturnSeries(closes []float64) []float64 {
	out := make([]float64, len(closes))
	out[0] = math.NaN()
	for i := 1; i < len(closes); i++ {
		prev, cur := closes[i-1], closes[i]
		if prev <= 0 || cur <= 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = math.Log(cur / prev)
	}
	return out
}

// rollingStdDev computes the sample standard deviation (divisor N-1) of
// the trailing window of size N ending at each position, gated by the
// 80%-non-null rule. Input NaNs are treated as null.
func rollingStdDev(values []float64, window int) []*float64 {
	out := make([]*float64, len(values))
	for i := range values {
		if i+1 < window {
			continue
		}
		start := i + 1 - window
		win := values[start : i+1]
		nonNull := make([]float64, 0, window)
		for _, v := range win {
			if !math.IsNaN(v) {
				nonNull = append(nonNull, v)
			}
		}
		if float64(len(nonNull)) < minNonNullFraction*float64(window) {
			continue
		}
		if len(nonNull) < 2 {
			continue
		}
		sd := stat.StdDev(nonNull, nil)
		out[i] = &sd
	}
	return out
}

// NaNSlice converts a []*float64 to a []float64 with nil represented as
// NaN, for use with RollingMean.
func NaNSlice(values []*float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if v == nil {
			out[i] = math.NaN()
		} else {
			out[i] = *v
		}
	}
	return out
}
