// Package domain holds the persisted and transient types shared across the
// macro stress pipeline: countries, daily observations, normalization
// parameters, run log entries, and the transient raw-metric record fed to
// the scoring engine.
package domain

import "time"

// MetricName identifies one of the canonical scoring metrics.
type MetricName string

// Canonical metric names. These are also the keys used in the
// normalization_params table and in MetricSet.
const (
	MetricFXVolatility         MetricName = "fx_volatility"
	MetricInflationAcceleration MetricName = "inflation_acceleration"
	MetricRiskSpread           MetricName = "risk_spread"
	MetricCryptoRatio          MetricName = "crypto_ratio"
	MetricReservesChange       MetricName = "reserves_change"
	MetricStablecoinPremium    MetricName = "stablecoin_premium"
)

// AllMetrics lists every canonical metric in a stable order, used wherever
// the engine or builder needs to iterate deterministically.
var AllMetrics = []MetricName{
	MetricFXVolatility,
	MetricInflationAcceleration,
	MetricRiskSpread,
	MetricCryptoRatio,
	MetricReservesChange,
	MetricStablecoinPremium,
}

// Country is the stable country registry row. Seeded once; never mutated
// by the pipeline.
type Country struct {
	ID                    int64
	Code2                 string // ISO 3166-1 alpha-2, unique
	Code3                 string // ISO 3166-1 alpha-3, unique
	Name                  string
	Currency              string
	PrimarySourceSeriesID *string // opaque id in the primary macro source; nil => use fallback
}

// ParallelMarketCountry is the single country whose parallel-market gap is
// tracked; a fixed code, not a per-row database flag.
const ParallelMarketCountry = "VE"

// StablecoinPremiumCountry is the single country whose stablecoin premium
// is tracked; a fixed code, not a per-row database flag.
const StablecoinPremiumCountry = "AR"

// HasParallelMarket reports whether code2 is the tracked parallel-market country.
func HasParallelMarket(code2 string) bool { return code2 == ParallelMarketCountry }

// HasStablecoinPremium reports whether code2 is the tracked stablecoin-premium country.
func HasStablecoinPremium(code2 string) bool { return code2 == StablecoinPremiumCountry }

// MetricSet is the raw-metric record fed to the scoring engine. Every field
// is nullable: a nil pointer means "missing", never zero. Never persisted
// as-is.
type MetricSet struct {
	FXVolatility           *float64
	InflationAcceleration  *float64
	RiskSpread             *float64
	CryptoRatio            *float64
	ReservesChange         *float64
	StablecoinPremium      *float64
}

// Get returns the raw value for a metric name, or nil if missing.
func (m MetricSet) Get(name MetricName) *float64 {
	switch name {
	case MetricFXVolatility:
		return m.FXVolatility
	case MetricInflationAcceleration:
		return m.InflationAcceleration
	case MetricRiskSpread:
		return m.RiskSpread
	case MetricCryptoRatio:
		return m.CryptoRatio
	case MetricReservesChange:
		return m.ReservesChange
	case MetricStablecoinPremium:
		return m.StablecoinPremium
	default:
		return nil
	}
}

// Flags is a free-form bag recording forward-fills, fallbacks, partial-data
// markers, and scoring-engine flags on a daily observation.
type Flags map[string]interface{}

// DailyObservation is one row per (country, calendar date). Uniqueness is
// (CountryID, Date). A given row may be re-upserted by later runs; score
// and flags may change, but earlier raw values must never be lost by a
// partial-column upsert.
type DailyObservation struct {
	ID        int64
	CountryID int64
	Date      string // YYYY-MM-DD, UTC calendar date

	FXClose        *float64
	InflationYoY   *float64
	SovereignYield *float64
	USRiskFreeYield *float64 // shared across all countries for a given date
	ReservesLevel  *float64
	ParallelGap    *float64 // populated for one country only

	FXVolatility          *float64
	InflationAcceleration *float64
	RiskSpread            *float64
	CryptoRatio           *float64
	ReservesChange        *float64
	StablecoinPremium     *float64

	StressScore *float64 // invariant: if non-nil, in [0, 100], one decimal digit

	Flags Flags

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Metrics extracts the raw-metric record the scoring engine consumes from
// this observation's derived columns.
func (o DailyObservation) Metrics() MetricSet {
	return MetricSet{
		FXVolatility:          o.FXVolatility,
		InflationAcceleration: o.InflationAcceleration,
		RiskSpread:            o.RiskSpread,
		CryptoRatio:           o.CryptoRatio,
		ReservesChange:        o.ReservesChange,
		StablecoinPremium:     o.StablecoinPremium,
	}
}

// NormalizationMethod tags the method used to compute a normalization
// parameter. Only the p5/p95 clamp method is currently implemented.
const NormalizationMethodP5P95Clamped = "p5_p95_clamped"

// NormalizationParam is one row per (country, metric): the clamp bounds a
// raw value is normalized against. Invariant: MaxVal > MinVal.
type NormalizationParam struct {
	ID          int64
	CountryID   int64
	Metric      MetricName
	MinVal      float64
	MaxVal      float64
	Method      string
	WindowStart string // YYYY-MM-DD
	WindowEnd   string // YYYY-MM-DD
	UpdatedAt   time.Time
}

// Valid reports whether the parameter was produced by a healthy
// normalization build: the upper clamp must exceed the lower clamp. The
// normalization builder refuses to persist a degenerate row (see
// internal/normalization, which applies the same test inline to its
// computed p5/p95). The scoring engine does not call this: it scores a
// degenerate row as-is via mathkernel.ClampNormalize's 0.5 fallback.
func (p NormalizationParam) Valid() bool {
	return p.MaxVal > p.MinVal
}

// RunStatus is the terminal status of one orchestrator execution.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusPartial RunStatus = "partial"
	RunStatusError   RunStatus = "error"
)

// RunLog is one row per orchestrator execution. Append-only.
type RunLog struct {
	ID         int64
	RunDate    string // YYYY-MM-DD
	Status     RunStatus
	Detail     map[string]interface{}
	DurationMS int64
	CreatedAt  time.Time
}
