package backfill

import (
	"context"

	"github.com/aristath/macrostress/internal/adapters"
	"github.com/aristath/macrostress/internal/domain"
	"github.com/aristath/macrostress/internal/storage"
	"github.com/rs/zerolog"
)

// CryptoReducer backfills the global stablecoin-over-BTC ratio series,
// replicating each day's value across every country's row: crypto_ratio
// is the same value for all countries on a given date.
type CryptoReducer struct {
	crypto *adapters.CryptoAdapter
	obs    *storage.ObservationRepo
	log    zerolog.Logger
	days   int
}

// NewCryptoReducer constructs a CryptoReducer. days bounds the history
// pull (the provider caps this at 365).
func NewCryptoReducer(crypto *adapters.CryptoAdapter, obs *storage.ObservationRepo, days int, log zerolog.Logger) *CryptoReducer {
	return &CryptoReducer{crypto: crypto, obs: obs, days: days, log: log.With().Str("reducer", "crypto").Logger()}
}

// Run fetches the global series once and writes one row per (country, date).
func (r *CryptoReducer) Run(ctx context.Context, countries []domain.Country) error {
	series := r.crypto.History(r.days)
	if len(series) == 0 {
		r.log.Warn().Msg("no crypto ratio history available, skipping")
		return nil
	}

	limiter := newLimiter()
	for _, country := range countries {
		if err := wait(ctx, limiter); err != nil {
			return err
		}

		patches := make([]storage.ObservationPatch, 0, len(series))
		for _, pt := range series {
			ratio := pt.Ratio
			patches = append(patches, storage.ObservationPatch{
				CountryID:   country.ID,
				Date:        pt.Date,
				CryptoRatio: &ratio,
				Flags:       domain.Flags{},
			})
		}

		if err := upsertBatches(r.obs, patches); err != nil {
			return err
		}
		r.log.Info().Str("country", country.Code2).Int("rows", len(patches)).Msg("crypto backfill complete")
	}
	return nil
}
