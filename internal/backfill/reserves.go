package backfill

import (
	"context"
	"time"

	"github.com/aristath/macrostress/internal/adapters"
	"github.com/aristath/macrostress/internal/domain"
	"github.com/aristath/macrostress/internal/storage"
	"github.com/rs/zerolog"
)

// ReservesReducer forward-fills monthly total-reserves levels to daily
// rows. reserves_change is computed at monthly granularity — percent
// change against the reading three months prior, approximating a 90-day
// window — before the value is replicated across each day.
type ReservesReducer struct {
	reserves *adapters.ReservesAdapter
	obs      *storage.ObservationRepo
	log      zerolog.Logger
}

// NewReservesReducer constructs a ReservesReducer.
func NewReservesReducer(reserves *adapters.ReservesAdapter, obs *storage.ObservationRepo, log zerolog.Logger) *ReservesReducer {
	return &ReservesReducer{reserves: reserves, obs: obs, log: log.With().Str("reducer", "reserves").Logger()}
}

// Run backfills every country in countries.
func (r *ReservesReducer) Run(ctx context.Context, countries []domain.Country) error {
	limiter := newLimiter()

	for _, country := range countries {
		if err := wait(ctx, limiter); err != nil {
			return err
		}

		months := r.reserves.Series(country.Code3)
		if len(months) == 0 {
			r.log.Warn().Str("country", country.Code2).Msg("no reserves history available, skipping")
			continue
		}

		today := time.Now().UTC().Format("2006-01-02")
		var patches []storage.ObservationPatch
		for i, mv := range months {
			var change *float64
			if i >= 3 && months[i-3].Value != 0 {
				pct := (mv.Value - months[i-3].Value) / months[i-3].Value * 100
				change = &pct
			}

			periodEnd := today
			if i+1 < len(months) {
				periodEnd = months[i+1].Date
			}
			for _, date := range datesBetween(mv.Date, periodEnd) {
				level := mv.Value
				var changeCopy *float64
				if change != nil {
					cv := *change
					changeCopy = &cv
				}
				patches = append(patches, storage.ObservationPatch{
					CountryID:      country.ID,
					Date:           date,
					ReservesLevel:  &level,
					ReservesChange: changeCopy,
					Flags:          domain.Flags{"forward_filled": true},
				})
			}
		}

		if err := upsertBatches(r.obs, patches); err != nil {
			return err
		}
		r.log.Info().Str("country", country.Code2).Int("rows", len(patches)).Msg("reserves backfill complete")
	}
	return nil
}
