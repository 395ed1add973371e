// Package normalization computes the per-(country, metric) clamp bounds
// the scoring engine normalizes raw values against: p5 and p95 over a
// declared historical window.
package normalization

import (
	"fmt"
	"time"

	"github.com/aristath/macrostress/internal/domain"
	"github.com/aristath/macrostress/internal/mathkernel"
	"github.com/aristath/macrostress/internal/storage"
	"github.com/rs/zerolog"
)

// minSamples is the smallest history size the builder will trust to
// produce a clamp; fewer samples and the metric is left for a later run.
const minSamples = 10

// anchorDate is the fixed historical start used for every metric except
// the provider-limited crypto series.
const anchorDate = "2015-01-01"

// cryptoWindowDays bounds the crypto ratio's lookback to the provider's
// own history limit.
const cryptoWindowDays = 365

// metricColumn maps a canonical metric name to its daily_observations
// column, the same mapping scanObservation/Upsert use.
var metricColumn = map[domain.MetricName]string{
	domain.MetricFXVolatility:          "fx_vol",
	domain.MetricInflationAcceleration: "inflation",
	domain.MetricRiskSpread:            "risk_spread",
	domain.MetricCryptoRatio:           "crypto_ratio",
	domain.MetricReservesChange:        "reserves_change",
	domain.MetricStablecoinPremium:     "stablecoin_premium",
}

// Builder computes and persists normalization_params rows.
type Builder struct {
	obs    *storage.ObservationRepo
	params *storage.NormParamRepo
	log    zerolog.Logger
}

// NewBuilder constructs a Builder.
func NewBuilder(obs *storage.ObservationRepo, params *storage.NormParamRepo, log zerolog.Logger) *Builder {
	return &Builder{obs: obs, params: params, log: log.With().Str("component", "normalization_builder").Logger()}
}

// Run computes and upserts normalization parameters for every metric of
// every country in countries. A metric with fewer than minSamples of
// history is skipped, not written — a subsequent run can fill it in once
// more history accumulates.
func (b *Builder) Run(countries []domain.Country) error {
	for _, c := range countries {
		for _, metric := range domain.AllMetrics {
			if err := b.buildOne(c, metric); err != nil {
				return fmt.Errorf("failed to build normalization param for country %d metric %s: %w", c.ID, metric, err)
			}
		}
	}
	return nil
}

func (b *Builder) buildOne(c domain.Country, metric domain.MetricName) error {
	column, ok := metricColumn[metric]
	if !ok {
		return fmt.Errorf("no column mapping for metric %s", metric)
	}

	windowStart := anchorDate
	if metric == domain.MetricCryptoRatio {
		windowStart = time.Now().UTC().AddDate(0, 0, -cryptoWindowDays).Format("2006-01-02")
	}

	values, err := b.obs.AllNonNull(c.ID, column, windowStart)
	if err != nil {
		return err
	}
	if len(values) < minSamples {
		b.log.Debug().Str("country", c.Code2).Str("metric", string(metric)).Int("samples", len(values)).
			Msg("insufficient history to build normalization param, skipping")
		return nil
	}

	p5 := mathkernel.Percentile(values, 0.05)
	p95 := mathkernel.Percentile(values, 0.95)
	if p95 <= p5 {
		b.log.Warn().Str("country", c.Code2).Str("metric", string(metric)).
			Msg("degenerate percentile window (p95 <= p5), skipping")
		return nil
	}

	windowEnd := time.Now().UTC().Format("2006-01-02")
	return b.params.Upsert(domain.NormalizationParam{
		CountryID:   c.ID,
		Metric:      metric,
		MinVal:      p5,
		MaxVal:      p95,
		Method:      domain.NormalizationMethodP5P95Clamped,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
	})
}
