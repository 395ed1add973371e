package scheduler

import (
	"github.com/aristath/macrostress/internal/scheduler/base"
	"github.com/aristath/macrostress/internal/storage"
	"github.com/rs/zerolog"
)

// CheckWALCheckpointsJob monitors the store's WAL checkpoint status.
type CheckWALCheckpointsJob struct {
	base.JobBase
	log zerolog.Logger
	db  *storage.DB
}

// NewCheckWALCheckpointsJob creates a new CheckWALCheckpointsJob.
func NewCheckWALCheckpointsJob(db *storage.DB) *CheckWALCheckpointsJob {
	return &CheckWALCheckpointsJob{
		log: zerolog.Nop(),
		db:  db,
	}
}

// SetLogger sets the logger for the job.
func (j *CheckWALCheckpointsJob) SetLogger(log zerolog.Logger) {
	j.log = log
}

// Name returns the job name.
func (j *CheckWALCheckpointsJob) Name() string {
	return "check_wal_checkpoints"
}

// Run executes the WAL checkpoint check.
func (j *CheckWALCheckpointsJob) Run() error {
	if j.db == nil {
		j.log.Warn().Msg("store not initialized, skipping WAL checkpoint check")
		return nil
	}

	var busy, walFrames, checkpointed int
	err := j.db.Conn().QueryRow("PRAGMA wal_checkpoint(PASSIVE)").Scan(&busy, &walFrames, &checkpointed)
	if err != nil {
		j.log.Warn().Err(err).Msg("failed to check WAL checkpoint")
		return nil
	}

	if walFrames > 1000 {
		j.log.Warn().
			Int("wal_frames", walFrames).
			Int("checkpointed", checkpointed).
			Msg("WAL file is large, checkpoint may be needed")
	} else {
		j.log.Debug().Int("wal_frames", walFrames).Msg("WAL checkpoint status OK")
	}

	return nil
}
