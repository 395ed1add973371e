package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aristath/macrostress/internal/domain"
)

// ObservationRepo provides upsert and read access to daily_observations.
type ObservationRepo struct {
	db *sql.DB
}

// NewObservationRepo constructs an ObservationRepo.
func NewObservationRepo(db *DB) *ObservationRepo {
	return &ObservationRepo{db: db.Conn()}
}

// ObservationPatch is a partial daily_observations row: every pointer field
// left nil is preserved from the existing stored row (or left null on
// first insert). Flags and UpdatedAt are always overwritten.
type ObservationPatch struct {
	CountryID int64
	Date      string

	FXClose        *float64
	InflationYoY   *float64
	SovereignYield *float64
	USRiskFreeYield *float64
	ReservesLevel  *float64
	ParallelGap    *float64

	FXVolatility          *float64
	InflationAcceleration *float64
	RiskSpread            *float64
	CryptoRatio           *float64
	ReservesChange        *float64
	StablecoinPremium     *float64

	StressScore *float64
	Flags       domain.Flags
}

// Upsert writes p, preserving any column left nil in p against the
// existing stored row. This is the persistence layer's partial-column
// upsert contract: a later run with fewer fetched columns must never
// null out previously written raw values.
func (r *ObservationRepo) Upsert(p ObservationPatch) error {
	flagsJSON, err := json.Marshal(p.Flags)
	if err != nil {
		return fmt.Errorf("failed to marshal flags: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)

	_, err = r.db.Exec(`
		INSERT INTO daily_observations (
			country_id, date, fx_close, inflation_yoy, sovereign_yield, us_10y,
			reserves_level, parallel_gap, fx_vol, inflation, risk_spread,
			crypto_ratio, reserves_change, stablecoin_premium, stress_score,
			data_flags, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(country_id, date) DO UPDATE SET
			fx_close       = COALESCE(excluded.fx_close, daily_observations.fx_close),
			inflation_yoy  = COALESCE(excluded.inflation_yoy, daily_observations.inflation_yoy),
			sovereign_yield= COALESCE(excluded.sovereign_yield, daily_observations.sovereign_yield),
			us_10y         = COALESCE(excluded.us_10y, daily_observations.us_10y),
			reserves_level = COALESCE(excluded.reserves_level, daily_observations.reserves_level),
			parallel_gap   = COALESCE(excluded.parallel_gap, daily_observations.parallel_gap),
			fx_vol         = COALESCE(excluded.fx_vol, daily_observations.fx_vol),
			inflation      = COALESCE(excluded.inflation, daily_observations.inflation),
			risk_spread    = COALESCE(excluded.risk_spread, daily_observations.risk_spread),
			crypto_ratio   = COALESCE(excluded.crypto_ratio, daily_observations.crypto_ratio),
			reserves_change= COALESCE(excluded.reserves_change, daily_observations.reserves_change),
			stablecoin_premium = COALESCE(excluded.stablecoin_premium, daily_observations.stablecoin_premium),
			stress_score   = COALESCE(excluded.stress_score, daily_observations.stress_score),
			data_flags     = excluded.data_flags,
			updated_at     = excluded.updated_at`,
		p.CountryID, p.Date, p.FXClose, p.InflationYoY, p.SovereignYield, p.USRiskFreeYield,
		p.ReservesLevel, p.ParallelGap, p.FXVolatility, p.InflationAcceleration, p.RiskSpread,
		p.CryptoRatio, p.ReservesChange, p.StablecoinPremium, p.StressScore,
		string(flagsJSON), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert observation for country %d date %s: %w", p.CountryID, p.Date, err)
	}
	return nil
}

// LastNonNull returns the most recent row for countryID where column is
// non-null, at or before asOfDate (inclusive). column must be one of the
// daily_observations column names; this is an internal helper so the
// caller set is fixed and trusted, not user input.
func (r *ObservationRepo) LastNonNull(countryID int64, column, asOfDate string) (*domain.DailyObservation, error) {
	query := fmt.Sprintf(`
		SELECT id, country_id, date, fx_close, inflation_yoy, sovereign_yield, us_10y,
		       reserves_level, parallel_gap, fx_vol, inflation, risk_spread,
		       crypto_ratio, reserves_change, stablecoin_premium, stress_score,
		       data_flags, created_at, updated_at
		FROM daily_observations
		WHERE country_id = ? AND date <= ? AND %s IS NOT NULL
		ORDER BY date DESC LIMIT 1`, column)

	row := r.db.QueryRow(query, countryID, asOfDate)
	obs, err := scanObservation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last non-null %s for country %d: %w", column, countryID, err)
	}
	return &obs, nil
}

// LatestScored returns the most recent row for countryID with a non-null
// stress_score, at or before asOfDate if asOfDate is non-empty.
func (r *ObservationRepo) LatestScored(countryID int64, asOfDate string) (*domain.DailyObservation, error) {
	query := `
		SELECT id, country_id, date, fx_close, inflation_yoy, sovereign_yield, us_10y,
		       reserves_level, parallel_gap, fx_vol, inflation, risk_spread,
		       crypto_ratio, reserves_change, stablecoin_premium, stress_score,
		       data_flags, created_at, updated_at
		FROM daily_observations
		WHERE country_id = ? AND stress_score IS NOT NULL`
	args := []interface{}{countryID}
	if asOfDate != "" {
		query += " AND date <= ?"
		args = append(args, asOfDate)
	}
	query += " ORDER BY date DESC LIMIT 1"

	row := r.db.QueryRow(query, args...)
	obs, err := scanObservation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest scored row for country %d: %w", countryID, err)
	}
	return &obs, nil
}

// RecentScored returns up to limit scored rows for countryID, ordered
// ascending by date (oldest first), ending at the most recent.
func (r *ObservationRepo) RecentScored(countryID int64, limit int) ([]domain.DailyObservation, error) {
	rows, err := r.db.Query(`
		SELECT id, country_id, date, fx_close, inflation_yoy, sovereign_yield, us_10y,
		       reserves_level, parallel_gap, fx_vol, inflation, risk_spread,
		       crypto_ratio, reserves_change, stablecoin_premium, stress_score,
		       data_flags, created_at, updated_at
		FROM (
			SELECT * FROM daily_observations
			WHERE country_id = ? AND stress_score IS NOT NULL
			ORDER BY date DESC LIMIT ?
		) ORDER BY date ASC`, countryID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent scored rows for country %d: %w", countryID, err)
	}
	defer rows.Close()

	var out []domain.DailyObservation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, obs)
	}
	return out, rows.Err()
}

// RecentNonNull returns up to limit of the most recent non-null values of
// column for countryID strictly before beforeDate, ordered ascending
// (oldest first). Used to assemble the prior-N-closes window the daily
// orchestrator prepends today's fetch to before computing a rolling
// statistic.
func (r *ObservationRepo) RecentNonNull(countryID int64, column, beforeDate string, limit int) ([]float64, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM (
			SELECT %s AS v, date FROM daily_observations
			WHERE country_id = ? AND date < ? AND %s IS NOT NULL
			ORDER BY date DESC LIMIT ?
		) ORDER BY date ASC`, "v", column, column)

	rows, err := r.db.Query(query, countryID, beforeDate, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent %s for country %d: %w", column, countryID, err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// MostRecentInWindow returns the most recent non-null value of column for
// countryID with date in [startDate, endDate] inclusive, or nil if none
// exists. Used by the monthly reserves refetch to pick the reserves level
// 80-100 days prior for the reserves_change baseline.
func (r *ObservationRepo) MostRecentInWindow(countryID int64, column, startDate, endDate string) (*float64, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM daily_observations
		WHERE country_id = ? AND date BETWEEN ? AND ? AND %s IS NOT NULL
		ORDER BY date DESC LIMIT 1`, column, column)

	var v float64
	err := r.db.QueryRow(query, countryID, startDate, endDate).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query %s in window for country %d: %w", column, countryID, err)
	}
	return &v, nil
}

// AllNonNull returns every historical non-null value of column for
// countryID, at or after sinceDate (inclusive) if sinceDate is non-empty.
// Used by the normalization builder to compute p5/p95 over a metric's
// history.
func (r *ObservationRepo) AllNonNull(countryID int64, column, sinceDate string) ([]float64, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM daily_observations
		WHERE country_id = ? AND %s IS NOT NULL`, column, column)
	args := []interface{}{countryID}
	if sinceDate != "" {
		query += " AND date >= ?"
		args = append(args, sinceDate)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s history for country %d: %w", column, countryID, err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanObservation(row rowScanner) (domain.DailyObservation, error) {
	var o domain.DailyObservation
	var flagsJSON string
	var createdAt, updatedAt string
	err := row.Scan(&o.ID, &o.CountryID, &o.Date, &o.FXClose, &o.InflationYoY, &o.SovereignYield,
		&o.USRiskFreeYield, &o.ReservesLevel, &o.ParallelGap, &o.FXVolatility,
		&o.InflationAcceleration, &o.RiskSpread, &o.CryptoRatio, &o.ReservesChange,
		&o.StablecoinPremium, &o.StressScore, &flagsJSON, &createdAt, &updatedAt)
	if err != nil {
		return o, err
	}
	o.Flags = domain.Flags{}
	_ = json.Unmarshal([]byte(flagsJSON), &o.Flags)
	o.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	o.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return o, nil
}
