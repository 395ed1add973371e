package backfill

import (
	"context"
	"time"

	"github.com/aristath/macrostress/internal/adapters"
	"github.com/aristath/macrostress/internal/domain"
	"github.com/aristath/macrostress/internal/storage"
	"github.com/rs/zerolog"
)

// SovereignReducer forward-fills monthly sovereign yields to daily rows
// and computes risk_spread per day against the daily risk-free series
// (null where the risk-free value for that exact day is unavailable —
// the risk-free side is deliberately never forward-filled).
type SovereignReducer struct {
	sovereign *adapters.SovereignAdapter
	riskFree  *adapters.RiskFreeAdapter
	obs       *storage.ObservationRepo
	log       zerolog.Logger
}

// NewSovereignReducer constructs a SovereignReducer.
func NewSovereignReducer(sovereign *adapters.SovereignAdapter, riskFree *adapters.RiskFreeAdapter, obs *storage.ObservationRepo, log zerolog.Logger) *SovereignReducer {
	return &SovereignReducer{
		sovereign: sovereign,
		riskFree:  riskFree,
		obs:       obs,
		log:       log.With().Str("reducer", "sovereign").Logger(),
	}
}

// Run backfills every country in countries. riskFreeByDate must cover the
// same window as each country's monthly series (typically produced once
// via r.riskFree.Series and shared across all countries in one run).
func (r *SovereignReducer) Run(ctx context.Context, countries []domain.Country, riskFreeByDate map[string]float64) error {
	limiter := newLimiter()

	for _, c := range countries {
		if err := wait(ctx, limiter); err != nil {
			return err
		}

		months := r.sovereign.Series(c.Code2)
		if len(months) == 0 {
			r.log.Debug().Str("country", c.Code2).Msg("no sovereign yield history available, skipping")
			continue
		}

		today := time.Now().UTC().Format("2006-01-02")
		var patches []storage.ObservationPatch
		for i, mv := range months {
			periodEnd := today
			if i+1 < len(months) {
				periodEnd = months[i+1].Date
			}
			for _, date := range datesBetween(mv.Date, periodEnd) {
				yield := mv.Value
				var spread *float64
				if rf, ok := riskFreeByDate[date]; ok {
					s := yield - rf
					spread = &s
				}
				patches = append(patches, storage.ObservationPatch{
					CountryID:      c.ID,
					Date:           date,
					SovereignYield: &yield,
					RiskSpread:     spread,
					Flags:          domain.Flags{"forward_filled": true},
				})
			}
		}

		if err := upsertBatches(r.obs, patches); err != nil {
			return err
		}
		r.log.Info().Str("country", c.Code2).Int("rows", len(patches)).Msg("sovereign backfill complete")
	}
	return nil
}
