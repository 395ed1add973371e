// Command macrostress-normalize recomputes normalization_params from the
// current daily_observations history: the p5/p95 clamp bounds the
// scoring engine normalizes raw metric values against. Intended to run
// offline, quarterly, after enough new history has accumulated.
package main

import (
	"flag"
	"path/filepath"

	"github.com/aristath/macrostress/internal/config"
	"github.com/aristath/macrostress/internal/normalization"
	"github.com/aristath/macrostress/internal/storage"
	"github.com/aristath/macrostress/pkg/logger"
)

func main() {
	dataDir := flag.String("data-dir", "", "override DATA_DIR")
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

	countries, err := storage.NewCountryRepo(db).All()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load countries")
	}
	if len(countries) == 0 {
		log.Fatal().Msg("no countries registered; seed the countries table first")
	}

	obs := storage.NewObservationRepo(db)
	params := storage.NewNormParamRepo(db)
	builder := normalization.NewBuilder(obs, params, log)

	log.Info().Int("countries", len(countries)).Msg("starting normalization build")
	if err := builder.Run(countries); err != nil {
		log.Fatal().Err(err).Msg("normalization build failed")
	}
	log.Info().Msg("normalization build complete")
}
