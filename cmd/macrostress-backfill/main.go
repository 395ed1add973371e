// Command macrostress-backfill runs the one-shot historical reducers
// that populate dense per-day rows from sparse monthly/annual provider
// history, per source family: FX, inflation, sovereign yield, reserves,
// and the global crypto ratio.
package main

import (
	"context"
	"flag"
	"path/filepath"
	"time"

	"github.com/aristath/macrostress/internal/adapters"
	"github.com/aristath/macrostress/internal/backfill"
	"github.com/aristath/macrostress/internal/clientdata"
	"github.com/aristath/macrostress/internal/config"
	"github.com/aristath/macrostress/internal/storage"
	"github.com/aristath/macrostress/pkg/logger"
)

// anchorDate is the fixed historical start backfill reducers pull from,
// matching the normalization builder's window start.
const anchorDate = "2015-01-01"

func main() {
	dataDir := flag.String("data-dir", "", "override DATA_DIR")
	fxDays := flag.Int("fx-days", daysSince(anchorDate), "number of trailing days of FX history to pull")
	cryptoDays := flag.Int("crypto-days", 365, "number of trailing days of crypto ratio history to pull (provider-capped)")
	flag.Parse()

	cfg, err := config.Load(*dataDir)
	log := logger.New(logger.Config{Level: "info", Pretty: true})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := storage.New(storage.Config{Path: filepath.Join(cfg.DataDir, "macrostress.db")})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate store")
	}
	if err := clientdata.Migrate(db.Conn()); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate client data cache")
	}

	countries, err := storage.NewCountryRepo(db).All()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load countries")
	}
	if len(countries) == 0 {
		log.Fatal().Msg("no countries registered; seed the countries table first")
	}

	obs := storage.NewObservationRepo(db)
	cache := clientdata.NewRepository(db.Conn())

	fx := adapters.NewFXAdapter(cfg.FXBaseURL, cfg.FXParallelBaseURL, cache, log)
	crypto := adapters.NewCryptoAdapter(cfg.CryptoBaseURL, cache, log)
	inflation := adapters.NewInflationAdapter(cfg.InflationBaseURL, cache, log)
	reserves := adapters.NewReservesAdapter(cfg.ReservesBaseURL, cache, log)
	sovereign := adapters.NewSovereignAdapter(cfg.SovereignPrimaryURL, cfg.PrimarySourceAPIKey, cfg.SovereignFallbackURL, cache, log)
	riskFree := adapters.NewRiskFreeAdapter(cfg.RiskFreeBaseURL, cache, log)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	log.Info().Int("countries", len(countries)).Msg("starting backfill")

	if err := backfill.NewFXReducer(fx, obs, *fxDays, log).Run(ctx, countries); err != nil {
		log.Error().Err(err).Msg("fx reducer failed")
	}
	if err := backfill.NewCryptoReducer(crypto, obs, *cryptoDays, log).Run(ctx, countries); err != nil {
		log.Error().Err(err).Msg("crypto reducer failed")
	}
	if err := backfill.NewInflationReducer(inflation, obs, log).Run(ctx, countries); err != nil {
		log.Error().Err(err).Msg("inflation reducer failed")
	}
	if err := backfill.NewReservesReducer(reserves, obs, log).Run(ctx, countries); err != nil {
		log.Error().Err(err).Msg("reserves reducer failed")
	}

	riskFreeSeries := riskFree.Series(anchorDate)
	riskFreeByDate := make(map[string]float64, len(riskFreeSeries))
	for _, dv := range riskFreeSeries {
		riskFreeByDate[dv.Date] = dv.Value
	}
	if err := backfill.NewSovereignReducer(sovereign, riskFree, obs, log).Run(ctx, countries, riskFreeByDate); err != nil {
		log.Error().Err(err).Msg("sovereign reducer failed")
	}

	log.Info().Msg("backfill complete")
}

func daysSince(date string) int {
	start, err := time.Parse("2006-01-02", date)
	if err != nil {
		return 365 * 5
	}
	return int(time.Since(start).Hours() / 24)
}
