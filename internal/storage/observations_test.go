package storage_test

import (
	"testing"

	"github.com/aristath/macrostress/internal/domain"
	"github.com/aristath/macrostress/internal/storage"
	testutil "github.com/aristath/macrostress/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func setupObsRepo(t *testing.T) (*storage.ObservationRepo, int64) {
	t.Helper()
	db, cleanup := testutil.NewTestDB(t)
	t.Cleanup(cleanup)

	countries := storage.NewCountryRepo(db)
	require.NoError(t, countries.Upsert(domain.Country{Code2: "BR", Code3: "BRA", Name: "Brazil", Currency: "BRL"}))
	c, err := countries.ByCode2("BR")
	require.NoError(t, err)
	require.NotNil(t, c)

	return storage.NewObservationRepo(db), c.ID
}

func TestObservationUpsertPreservesUnsetColumns(t *testing.T) {
	obs, countryID := setupObsRepo(t)

	require.NoError(t, obs.Upsert(storage.ObservationPatch{
		CountryID: countryID,
		Date:      "2026-01-01",
		FXClose:   ptr(5.10),
		Flags:     domain.Flags{},
	}))

	require.NoError(t, obs.Upsert(storage.ObservationPatch{
		CountryID:    countryID,
		Date:         "2026-01-01",
		InflationYoY: ptr(4.2),
		Flags:        domain.Flags{"second_write": true},
	}))

	row, err := obs.LastNonNull(countryID, "fx_close", "2026-01-01")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.InDelta(t, 5.10, *row.FXClose, 1e-9)
	assert.InDelta(t, 4.2, *row.InflationYoY, 1e-9)
	assert.Equal(t, true, row.Flags["second_write"])
}

func TestObservationUpsertOverwritesWhenProvided(t *testing.T) {
	obs, countryID := setupObsRepo(t)

	require.NoError(t, obs.Upsert(storage.ObservationPatch{
		CountryID: countryID, Date: "2026-01-01", FXClose: ptr(5.10), Flags: domain.Flags{},
	}))
	require.NoError(t, obs.Upsert(storage.ObservationPatch{
		CountryID: countryID, Date: "2026-01-01", FXClose: ptr(5.25), Flags: domain.Flags{},
	}))

	row, err := obs.LastNonNull(countryID, "fx_close", "2026-01-01")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.InDelta(t, 5.25, *row.FXClose, 1e-9)
}

func TestLastNonNullIgnoresFutureDates(t *testing.T) {
	obs, countryID := setupObsRepo(t)

	require.NoError(t, obs.Upsert(storage.ObservationPatch{
		CountryID: countryID, Date: "2026-01-10", FXClose: ptr(5.10), Flags: domain.Flags{},
	}))

	row, err := obs.LastNonNull(countryID, "fx_close", "2026-01-05")
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestLatestScoredSkipsUnscoredRows(t *testing.T) {
	obs, countryID := setupObsRepo(t)

	require.NoError(t, obs.Upsert(storage.ObservationPatch{
		CountryID: countryID, Date: "2026-01-01", FXClose: ptr(5.10), Flags: domain.Flags{},
	}))
	require.NoError(t, obs.Upsert(storage.ObservationPatch{
		CountryID: countryID, Date: "2026-01-02", FXClose: ptr(5.20), StressScore: ptr(42.0), Flags: domain.Flags{},
	}))

	row, err := obs.LatestScored(countryID, "")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "2026-01-02", row.Date)
	assert.InDelta(t, 42.0, *row.StressScore, 1e-9)
}

func TestRecentScoredOrdersAscendingAndLimits(t *testing.T) {
	obs, countryID := setupObsRepo(t)

	dates := []string{"2026-01-01", "2026-01-02", "2026-01-03", "2026-01-04"}
	for i, d := range dates {
		require.NoError(t, obs.Upsert(storage.ObservationPatch{
			CountryID: countryID, Date: d, StressScore: ptr(float64(i)), Flags: domain.Flags{},
		}))
	}

	rows, err := obs.RecentScored(countryID, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2026-01-03", rows[0].Date)
	assert.Equal(t, "2026-01-04", rows[1].Date)
}

func TestAllNonNullFiltersByDateAndNullness(t *testing.T) {
	obs, countryID := setupObsRepo(t)

	require.NoError(t, obs.Upsert(storage.ObservationPatch{
		CountryID: countryID, Date: "2026-01-01", FXVolatility: ptr(0.02), Flags: domain.Flags{},
	}))
	require.NoError(t, obs.Upsert(storage.ObservationPatch{
		CountryID: countryID, Date: "2026-01-02", Flags: domain.Flags{},
	}))
	require.NoError(t, obs.Upsert(storage.ObservationPatch{
		CountryID: countryID, Date: "2026-01-03", FXVolatility: ptr(0.05), Flags: domain.Flags{},
	}))

	values, err := obs.AllNonNull(countryID, "fx_vol", "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []float64{0.02, 0.05}, values)

	values, err = obs.AllNonNull(countryID, "fx_vol", "2026-01-02")
	require.NoError(t, err)
	assert.ElementsMatch(t, []float64{0.05}, values)
}
