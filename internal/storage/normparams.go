package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/macrostress/internal/domain"
)

// NormParamRepo provides read/upsert access to normalization_params.
type NormParamRepo struct {
	db *sql.DB
}

// NewNormParamRepo constructs a NormParamRepo.
func NewNormParamRepo(db *DB) *NormParamRepo {
	return &NormParamRepo{db: db.Conn()}
}

// ByCountry returns every normalization param for countryID, indexed by
// metric name, for the scoring engine to consume directly.
func (r *NormParamRepo) ByCountry(countryID int64) (map[domain.MetricName]domain.NormalizationParam, error) {
	rows, err := r.db.Query(`
		SELECT id, country_id, metric_name, min_val, max_val, method, window_start, window_end, updated_at
		FROM normalization_params WHERE country_id = ?`, countryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query normalization params for country %d: %w", countryID, err)
	}
	defer rows.Close()

	out := make(map[domain.MetricName]domain.NormalizationParam)
	for rows.Next() {
		p, err := scanNormParam(rows)
		if err != nil {
			return nil, err
		}
		out[p.Metric] = p
	}
	return out, rows.Err()
}

// Upsert writes one normalization parameter row, replacing any prior row
// for the same (country, metric).
func (r *NormParamRepo) Upsert(p domain.NormalizationParam) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.Exec(`
		INSERT INTO normalization_params
			(country_id, metric_name, min_val, max_val, method, window_start, window_end, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(country_id, metric_name) DO UPDATE SET
			min_val=excluded.min_val, max_val=excluded.max_val, method=excluded.method,
			window_start=excluded.window_start, window_end=excluded.window_end,
			updated_at=excluded.updated_at`,
		p.CountryID, string(p.Metric), p.MinVal, p.MaxVal, p.Method, p.WindowStart, p.WindowEnd, now)
	if err != nil {
		return fmt.Errorf("failed to upsert normalization param %s for country %d: %w", p.Metric, p.CountryID, err)
	}
	return nil
}

func scanNormParam(row rowScanner) (domain.NormalizationParam, error) {
	var p domain.NormalizationParam
	var metric, updatedAt string
	err := row.Scan(&p.ID, &p.CountryID, &metric, &p.MinVal, &p.MaxVal, &p.Method,
		&p.WindowStart, &p.WindowEnd, &updatedAt)
	if err != nil {
		return p, err
	}
	p.Metric = domain.MetricName(metric)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return p, nil
}
