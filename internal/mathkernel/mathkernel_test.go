package mathkernel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampNormalize(t *testing.T) {
	assert.Equal(t, 0.5, ClampNormalize(10, 5, 5), "degenerate history falls back to 0.5")
	assert.Equal(t, 0.0, ClampNormalize(1, 5, 10), "below lo clamps to 0")
	assert.Equal(t, 1.0, ClampNormalize(20, 5, 10), "above hi clamps to 1")
	assert.InDelta(t, 0.6667, ClampNormalize(0.03, 0.01, 0.04), 1e-3)
}

func TestClampNormalizeMonotoneAndIdempotent(t *testing.T) {
	lo, hi := 0.0, 10.0
	prev := ClampNormalize(-5, lo, hi)
	for v := -5.0; v <= 15; v += 0.5 {
		cur := ClampNormalize(v, lo, hi)
		assert.GreaterOrEqual(t, cur, prev, "must be monotone non-decreasing")
		prev = cur
	}
	// idempotent under the identity (lo, hi) -> applying the normalized
	// value as if it were itself a value clamped to [0,1] is a no-op.
	n := ClampNormalize(7, lo, hi)
	assert.Equal(t, n, ClampNormalize(n, 0, 1))
}

func TestRollingLogReturnStdDevGating(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 + float64(i)*0.1
	}
	out := RollingLogReturnStdDev(closes, 30)
	assert.Len(t, out, 40)
	for i := 0; i < 29; i++ {
		assert.Nil(t, out[i], "insufficient history must be nil at position %d", i)
	}
	assert.NotNil(t, out[29])
	assert.Greater(t, *out[29], 0.0)
}

func TestRollingLogReturnStdDevTooManyNulls(t *testing.T) {
	closes := make([]float64, 35)
	for i := range closes {
		if i%2 == 0 {
			closes[i] = 0 // non-positive close -> null log return at this position
		} else {
			closes[i] = 100
		}
	}
	out := RollingLogReturnStdDev(closes, 30)
	assert.Nil(t, out[34], "more than 20% null log returns in window must gate to nil")
}

func TestPercentChange(t *testing.T) {
	ref := 100.0
	pct := PercentChange(95, &ref)
	assert.NotNil(t, pct)
	assert.InDelta(t, -5.0, *pct, 1e-6)

	assert.Nil(t, PercentChange(10, nil))
	zero := 0.0
	assert.Nil(t, PercentChange(10, &zero))
}

func TestPercentile(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	p5 := Percentile(data, 0.05)
	p95 := Percentile(data, 0.95)
	assert.Less(t, p5, p95)
	assert.InDelta(t, 1.45, p5, 0.05)
	assert.InDelta(t, 9.55, p95, 0.05)
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 3.0, Median([]float64{1, 2, 3, 4, 5}))
	assert.InDelta(t, 2.5, Median([]float64{1, 2, 3, 4}), 1e-9)
}

func TestNaNSliceAndRollingMean(t *testing.T) {
	vals := make([]*float64, 35)
	for i := range vals {
		v := 2.0
		if i%10 == 0 {
			vals[i] = nil
		} else {
			vals[i] = &v
		}
	}
	series := NaNSlice(vals)
	assert.True(t, math.IsNaN(series[0]))
	out := RollingMean(series, 30)
	assert.NotNil(t, out[29])
}
