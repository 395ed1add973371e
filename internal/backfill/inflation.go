package backfill

import (
	"context"
	"time"

	"github.com/aristath/macrostress/internal/adapters"
	"github.com/aristath/macrostress/internal/domain"
	"github.com/aristath/macrostress/internal/storage"
	"github.com/rs/zerolog"
)

// InflationReducer forward-fills annual YoY CPI across every calendar day
// of the year it applies to, and computes acceleration as a two-year
// delta, the same formula the daily pipeline uses for its own monthly
// recompute.
type InflationReducer struct {
	inflation *adapters.InflationAdapter
	obs       *storage.ObservationRepo
	log       zerolog.Logger
}

// NewInflationReducer constructs an InflationReducer.
func NewInflationReducer(inflation *adapters.InflationAdapter, obs *storage.ObservationRepo, log zerolog.Logger) *InflationReducer {
	return &InflationReducer{inflation: inflation, obs: obs, log: log.With().Str("reducer", "inflation").Logger()}
}

// Run backfills every country in countries.
func (r *InflationReducer) Run(ctx context.Context, countries []domain.Country) error {
	limiter := newLimiter()

	for _, c := range countries {
		if err := wait(ctx, limiter); err != nil {
			return err
		}

		series := r.inflation.Series(c.Code3)
		if len(series) == 0 {
			r.log.Warn().Str("country", c.Code2).Msg("no inflation history available, skipping")
			continue
		}

		patches := make([]storage.ObservationPatch, 0, len(series)*365)
		for i, yv := range series {
			var accel *float64
			if i >= 2 {
				delta := yv.Value - series[i-2].Value
				accel = &delta
			}

			for _, date := range datesInYear(yv.Year) {
				yoy := yv.Value
				var a *float64
				if accel != nil {
					av := *accel
					a = &av
				}
				patches = append(patches, storage.ObservationPatch{
					CountryID:             c.ID,
					Date:                  date,
					InflationYoY:          &yoy,
					InflationAcceleration: a,
					Flags:                 domain.Flags{"forward_filled": true},
				})
			}
		}

		if err := upsertBatches(r.obs, patches); err != nil {
			return err
		}
		r.log.Info().Str("country", c.Code2).Int("rows", len(patches)).Msg("inflation backfill complete")
	}
	return nil
}

// datesInYear returns every YYYY-MM-DD calendar date in year, UTC.
func datesInYear(year int) []string {
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year+1, 1, 1, 0, 0, 0, 0, time.UTC)
	var out []string
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format("2006-01-02"))
	}
	return out
}
