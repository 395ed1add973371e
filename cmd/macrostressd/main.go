// Package main is the entry point for macrostressd, the macro stress
// score pipeline's long-running process: it serves the public read API,
// runs the daily scoring orchestrator on a schedule, and (if configured)
// uploads nightly store snapshots to an S3-compatible bucket.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/macrostress/internal/adapters"
	"github.com/aristath/macrostress/internal/archive"
	"github.com/aristath/macrostress/internal/clientdata"
	"github.com/aristath/macrostress/internal/config"
	"github.com/aristath/macrostress/internal/orchestrator"
	"github.com/aristath/macrostress/internal/readapi"
	"github.com/aristath/macrostress/internal/scheduler"
	"github.com/aristath/macrostress/internal/scoring"
	"github.com/aristath/macrostress/internal/server"
	"github.com/aristath/macrostress/internal/storage"
	"github.com/aristath/macrostress/pkg/logger"
)

// dailyRunJob adapts orchestrator.DailyRun to the scheduler.Job interface.
type dailyRunJob struct {
	orch *orchestrator.Orchestrator
	log  zerolog.Logger
}

func (j *dailyRunJob) Name() string { return "daily_run" }

func (j *dailyRunJob) Run() error {
	result, err := j.orch.DailyRun(context.Background())
	if err != nil {
		return err
	}
	j.log.Info().
		Str("run_id", result.RunID).
		Str("status", string(result.Status)).
		Bool("skipped", result.Skipped).
		Int("countries_updated", result.CountriesUpdated).
		Msg("scheduled daily run finished")
	return nil
}

// snapshotJob adapts archive.Archiver.Snapshot to the scheduler.Job interface.
type snapshotJob struct {
	archiver *archive.Archiver
	db       *storage.DB
	log      zerolog.Logger
}

func (j *snapshotJob) Name() string { return "nightly_snapshot" }

func (j *snapshotJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := j.archiver.Snapshot(ctx, j.db); err != nil {
		return err
	}
	return j.archiver.Rotate(ctx, 30)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	log.Info().Msg("starting macrostressd")

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

	countries := storage.NewCountryRepo(db)
	obs := storage.NewObservationRepo(db)
	params := storage.NewNormParamRepo(db)
	runLog := storage.NewRunLogRepo(db)
	engine := scoring.NewEngine()
	cache := clientdata.NewRepository(db.Conn())

	orch := orchestrator.New(orchestrator.Deps{
		Countries: countries,
		Obs:       obs,
		Params:    params,
		RunLog:    runLog,
		Engine:    engine,

		FX:         adapters.NewFXAdapter(cfg.FXBaseURL, cfg.FXParallelBaseURL, cache, log),
		Crypto:     adapters.NewCryptoAdapter(cfg.CryptoBaseURL, cache, log),
		Inflation:  adapters.NewInflationAdapter(cfg.InflationBaseURL, cache, log),
		Sovereign:  adapters.NewSovereignAdapter(cfg.SovereignPrimaryURL, cfg.PrimarySourceAPIKey, cfg.SovereignFallbackURL, cache, log),
		Reserves:   adapters.NewReservesAdapter(cfg.ReservesBaseURL, cache, log),
		RiskFree:   adapters.NewRiskFreeAdapter(cfg.RiskFreeBaseURL, cache, log),
		Stablecoin: adapters.NewStablecoinAdapter(cfg.StablecoinQuoteURLs, cache, log),

		Log: log,
	})

	composer := readapi.New(countries, obs, params, engine)

	var archiver *archive.Archiver
	if cfg.ArchiveEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		archiver, err = archive.New(ctx, cfg.ArchiveEndpoint, cfg.ArchiveRegion, cfg.ArchiveAccessKeyID, cfg.ArchiveSecretAccessKey, cfg.ArchiveBucket, cfg.DataDir, log)
		cancel()
		if err != nil {
			log.Error().Err(err).Msg("failed to initialize snapshot archiver, nightly archiving disabled")
			archiver = nil
		}
	}

	srv := server.New(server.Config{
		Log:                   log,
		Port:                  cfg.Port,
		DevMode:               cfg.DevMode,
		DB:                    db,
		Composer:              composer,
		Orchestrator:          orch,
		Archiver:              archiver,
		SchedulerSharedSecret: cfg.SchedulerSharedSecret,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	walJob := scheduler.NewCheckWALCheckpointsJob(db)
	walJob.SetLogger(log)
	integrityJob := scheduler.NewCheckCoreDatabasesJob(db)
	integrityJob.SetLogger(log)

	sched := scheduler.New(log)
	if err := sched.AddJob("0 0 9 * * *", &dailyRunJob{orch: orch, log: log}); err != nil {
		log.Fatal().Err(err).Msg("failed to register daily run job")
	}
	if err := sched.AddJob("0 */30 * * * *", walJob); err != nil {
		log.Fatal().Err(err).Msg("failed to register WAL checkpoint job")
	}
	if err := sched.AddJob("0 0 */6 * * *", integrityJob); err != nil {
		log.Fatal().Err(err).Msg("failed to register integrity check job")
	}
	if archiver != nil {
		if err := sched.AddJob("0 0 2 * * *", &snapshotJob{archiver: archiver, db: db, log: log}); err != nil {
			log.Fatal().Err(err).Msg("failed to register snapshot job")
		}
	}
	sched.Start()

	log.Info().Int("port", cfg.Port).Msg("macrostressd started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("stopped")
}
