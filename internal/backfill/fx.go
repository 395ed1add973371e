package backfill

import (
	"context"

	"github.com/aristath/macrostress/internal/adapters"
	"github.com/aristath/macrostress/internal/domain"
	"github.com/aristath/macrostress/internal/mathkernel"
	"github.com/aristath/macrostress/internal/storage"
	"github.com/rs/zerolog"
)

// FXReducer backfills fx_close and the rolling 30-day log-return std-dev
// (fx_vol) for every country from a long daily history pull.
type FXReducer struct {
	fx   *adapters.FXAdapter
	obs  *storage.ObservationRepo
	log  zerolog.Logger
	days int
}

// NewFXReducer constructs an FXReducer. days bounds the history pull
// (provider-dependent; callers typically pass several years' worth).
func NewFXReducer(fx *adapters.FXAdapter, obs *storage.ObservationRepo, days int, log zerolog.Logger) *FXReducer {
	return &FXReducer{fx: fx, obs: obs, days: days, log: log.With().Str("reducer", "fx").Logger()}
}

// Run backfills every country in countries. For the parallel-market
// country, today's gap (if fetchable) is attached to the latest row only
// — historical parallel-market data is unavailable.
func (r *FXReducer) Run(ctx context.Context, countries []domain.Country) error {
	limiter := newLimiter()

	for _, c := range countries {
		if err := wait(ctx, limiter); err != nil {
			return err
		}

		history := r.fx.History(c.Currency, r.days)
		if len(history) == 0 {
			r.log.Warn().Str("country", c.Code2).Msg("no fx history available, skipping")
			continue
		}

		closes := make([]float64, len(history))
		for i, pt := range history {
			closes[i] = pt.Close
		}
		vols := mathkernel.RollingLogReturnStdDev(closes, 0)

		patches := make([]storage.ObservationPatch, 0, len(history))
		for i, pt := range history {
			closeVal := pt.Close
			patches = append(patches, storage.ObservationPatch{
				CountryID:    c.ID,
				Date:         pt.Date,
				FXClose:      &closeVal,
				FXVolatility: vols[i],
				Flags:        domain.Flags{},
			})
		}

		if domain.HasParallelMarket(c.Code2) && len(patches) > 0 {
			if gap := r.fx.ParallelGap(closes[len(closes)-1]); gap != nil {
				last := &patches[len(patches)-1]
				g := gap.Gap
				last.ParallelGap = &g
			}
		}

		if err := upsertBatches(r.obs, patches); err != nil {
			return err
		}
		r.log.Info().Str("country", c.Code2).Int("rows", len(patches)).Msg("fx backfill complete")
	}
	return nil
}

// upsertBatches writes patches in groups of batchSize, the reference
// batch size every reducer uses.
func upsertBatches(obs *storage.ObservationRepo, patches []storage.ObservationPatch) error {
	for start := 0; start < len(patches); start += batchSize {
		end := start + batchSize
		if end > len(patches) {
			end = len(patches)
		}
		for _, p := range patches[start:end] {
			if err := obs.Upsert(p); err != nil {
				return err
			}
		}
	}
	return nil
}
