// Package scoring implements the macro stress score: a weight-redistributed
// weighted sum of clamp-normalized metric components, plus the sibling
// function that exposes per-component scores for UI presentation.
package scoring

import (
	"math"

	"github.com/aristath/macrostress/internal/domain"
	"github.com/aristath/macrostress/internal/mathkernel"
)

// canonicalWeights holds the canonical weight of each metric. They must sum
// to 1.0 (enforced by TestCanonicalWeightsSumToOne).
var canonicalWeights = map[domain.MetricName]float64{
	domain.MetricFXVolatility:          0.25,
	domain.MetricInflationAcceleration: 0.20,
	domain.MetricRiskSpread:            0.20,
	domain.MetricCryptoRatio:           0.10,
	domain.MetricReservesChange:        0.10,
	domain.MetricStablecoinPremium:     0.15,
}

// lowConfidenceThreshold is the availableWeight cutoff below which a
// scored row is flagged low_confidence.
const lowConfidenceThreshold = 0.5

// Result is the outcome of one scoring call.
type Result struct {
	Score         float64 // in [0, 100], one decimal digit
	Partial       bool
	LowConfidence bool
	Missing       []domain.MetricName
	Flags         domain.Flags
}

// Engine scores raw-metric records against per-country normalization
// parameters. It holds no state and is safe for concurrent use.
type Engine struct{}

// NewEngine constructs a scoring Engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Score computes the final stress score for metrics against params. params
// is indexed by metric name. A stale or manually-inserted degenerate row
// (MaxVal <= MinVal) is not rejected here: it is passed straight to
// mathkernel.ClampNormalize, whose documented degenerate-history fallback
// (component = 0.5) is relied on directly rather than special-cased here.
// Returns ok=false when availableWeight is zero (the row cannot be
// scored at all) — no score is produced, which is distinct from a score
// of zero.
func (e *Engine) Score(metrics domain.MetricSet, params map[domain.MetricName]domain.NormalizationParam) (Result, bool) {
	flags := domain.Flags{}
	var missing []domain.MetricName
	availableWeight := 0.0
	weightedSum := 0.0

	for _, name := range domain.AllMetrics {
		weight := canonicalWeights[name]
		raw := metrics.Get(name)

		if raw == nil {
			missing = append(missing, name)
			continue
		}

		param, ok := params[name]
		if !ok {
			missing = append(missing, name)
			flags[string(name)+"_norm_missing"] = true
			continue
		}

		component := mathkernel.ClampNormalize(*raw, param.MinVal, param.MaxVal)
		availableWeight += weight
		weightedSum += weight * component
	}

	if availableWeight == 0 {
		return Result{}, false
	}

	score := round1(100 * weightedSum / availableWeight)

	partial := len(missing) > 0
	lowConfidence := availableWeight < lowConfidenceThreshold

	if partial {
		flags["partial"] = true
		names := make([]string, len(missing))
		for i, m := range missing {
			names[i] = string(m)
		}
		flags["missing"] = names
	}
	if lowConfidence {
		flags["low_confidence"] = true
	}

	return Result{
		Score:         score,
		Partial:       partial,
		LowConfidence: lowConfidence,
		Missing:       missing,
		Flags:         flags,
	}, true
}

// ComponentScores returns, for UI presentation, the per-metric normalized
// score (0-100, one decimal digit) for every metric that has both a raw
// value and a usable normalization parameter. Metrics lacking either are
// still present in the map, with a nil entry (nil, not zero).
func (e *Engine) ComponentScores(metrics domain.MetricSet, params map[domain.MetricName]domain.NormalizationParam) map[domain.MetricName]*float64 {
	out := make(map[domain.MetricName]*float64, len(domain.AllMetrics))
	for _, name := range domain.AllMetrics {
		raw := metrics.Get(name)
		param, ok := params[name]
		if raw == nil || !ok {
			out[name] = nil
			continue
		}
		component := round1(100 * mathkernel.ClampNormalize(*raw, param.MinVal, param.MaxVal))
		out[name] = &component
	}
	return out
}

// Weight returns the canonical weight of a metric, or 0 if unknown.
func Weight(name domain.MetricName) float64 {
	return canonicalWeights[name]
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
