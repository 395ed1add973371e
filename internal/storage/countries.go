package storage

import (
	"database/sql"
	"fmt"

	"github.com/aristath/macrostress/internal/domain"
)

// CountryRepo provides read access to the stable country registry.
type CountryRepo struct {
	db *sql.DB
}

// NewCountryRepo constructs a CountryRepo.
func NewCountryRepo(db *DB) *CountryRepo {
	return &CountryRepo{db: db.Conn()}
}

// All returns every registered country, ordered by iso2.
func (r *CountryRepo) All() ([]domain.Country, error) {
	rows, err := r.db.Query(`
		SELECT id, iso2, iso3, name, currency, primary_source_series_id
		FROM countries ORDER BY iso2`)
	if err != nil {
		return nil, fmt.Errorf("failed to query countries: %w", err)
	}
	defer rows.Close()

	var out []domain.Country
	for rows.Next() {
		c, err := scanCountry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ByCode2 looks up one country by its ISO 3166-1 alpha-2 code.
func (r *CountryRepo) ByCode2(code2 string) (*domain.Country, error) {
	row := r.db.QueryRow(`
		SELECT id, iso2, iso3, name, currency, primary_source_series_id
		FROM countries WHERE iso2 = ?`, code2)
	c, err := scanCountry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get country %s: %w", code2, err)
	}
	return &c, nil
}

// Upsert inserts or replaces a country row by iso2.
func (r *CountryRepo) Upsert(c domain.Country) error {
	_, err := r.db.Exec(`
		INSERT INTO countries (iso2, iso3, name, currency, primary_source_series_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(iso2) DO UPDATE SET
			iso3=excluded.iso3, name=excluded.name, currency=excluded.currency,
			primary_source_series_id=excluded.primary_source_series_id`,
		c.Code2, c.Code3, c.Name, c.Currency, c.PrimarySourceSeriesID)
	if err != nil {
		return fmt.Errorf("failed to upsert country %s: %w", c.Code2, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCountry(row rowScanner) (domain.Country, error) {
	var c domain.Country
	err := row.Scan(&c.ID, &c.Code2, &c.Code3, &c.Name, &c.Currency, &c.PrimarySourceSeriesID)
	return c, err
}
