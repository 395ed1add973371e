package scheduler

import (
	"database/sql"
	"fmt"

	"github.com/aristath/macrostress/internal/scheduler/base"
	"github.com/aristath/macrostress/internal/storage"
	"github.com/rs/zerolog"
)

// CheckCoreDatabasesJob verifies the integrity of the pipeline's single
// SQLite store.
type CheckCoreDatabasesJob struct {
	base.JobBase
	log zerolog.Logger
	db  *storage.DB
}

// NewCheckCoreDatabasesJob creates a new CheckCoreDatabasesJob.
func NewCheckCoreDatabasesJob(db *storage.DB) *CheckCoreDatabasesJob {
	return &CheckCoreDatabasesJob{
		log: zerolog.Nop(),
		db:  db,
	}
}

// SetLogger sets the logger for the job.
func (j *CheckCoreDatabasesJob) SetLogger(log zerolog.Logger) {
	j.log = log
}

// Name returns the job name.
func (j *CheckCoreDatabasesJob) Name() string {
	return "check_core_databases"
}

// Run executes the integrity check.
func (j *CheckCoreDatabasesJob) Run() error {
	if j.db == nil {
		j.log.Warn().Msg("store not initialized, skipping integrity check")
		return nil
	}

	if err := j.checkDatabaseIntegrity(j.db.Conn()); err != nil {
		j.log.Error().Err(err).Msg("store integrity check failed")
		return fmt.Errorf("store is corrupted: %w", err)
	}

	j.log.Info().Msg("store integrity check passed")
	return nil
}

func (j *CheckCoreDatabasesJob) checkDatabaseIntegrity(db *sql.DB) error {
	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check returned: %s", result)
	}
	return nil
}
