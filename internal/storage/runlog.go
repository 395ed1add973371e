package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aristath/macrostress/internal/domain"
)

// RunLogRepo provides append-only access to run_log, and the idempotency
// lookup the orchestrator uses to refuse a second run on the same day.
type RunLogRepo struct {
	db *sql.DB
}

// NewRunLogRepo constructs a RunLogRepo.
func NewRunLogRepo(db *DB) *RunLogRepo {
	return &RunLogRepo{db: db.Conn()}
}

// HasSucceeded reports whether a run_log row for runDate already has
// status success or partial. The orchestrator's idempotency guard: a
// calendar day that already produced scores is not re-run.
func (r *RunLogRepo) HasSucceeded(runDate string) (bool, error) {
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM run_log
		WHERE run_date = ? AND status IN (?, ?)`,
		runDate, string(domain.RunStatusSuccess), string(domain.RunStatusPartial)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check run log for %s: %w", runDate, err)
	}
	return count > 0, nil
}

// Append records the outcome of one orchestrator execution. Never
// updated or deleted afterward.
func (r *RunLogRepo) Append(log domain.RunLog) error {
	detailJSON, err := json.Marshal(log.Detail)
	if err != nil {
		return fmt.Errorf("failed to marshal run log detail: %w", err)
	}
	_, err = r.db.Exec(`
		INSERT INTO run_log (run_date, status, detail, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		log.RunDate, string(log.Status), string(detailJSON), log.DurationMS,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to append run log for %s: %w", log.RunDate, err)
	}
	return nil
}

// Recent returns the most recent limit run_log rows, newest first.
func (r *RunLogRepo) Recent(limit int) ([]domain.RunLog, error) {
	rows, err := r.db.Query(`
		SELECT id, run_date, status, detail, duration_ms, created_at
		FROM run_log ORDER BY run_date DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent run log rows: %w", err)
	}
	defer rows.Close()

	var out []domain.RunLog
	for rows.Next() {
		var l domain.RunLog
		var status, detailJSON, createdAt string
		if err := rows.Scan(&l.ID, &l.RunDate, &status, &detailJSON, &l.DurationMS, &createdAt); err != nil {
			return nil, err
		}
		l.Status = domain.RunStatus(status)
		l.Detail = map[string]interface{}{}
		_ = json.Unmarshal([]byte(detailJSON), &l.Detail)
		l.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, l)
	}
	return out, rows.Err()
}
