package normalization

import (
	"fmt"
	"testing"

	"github.com/aristath/macrostress/internal/domain"
	"github.com/aristath/macrostress/internal/storage"
	testutil "github.com/aristath/macrostress/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func setup(t *testing.T) (*Builder, *storage.ObservationRepo, *storage.NormParamRepo, domain.Country) {
	t.Helper()
	db, cleanup := testutil.NewTestDB(t)
	t.Cleanup(cleanup)

	countries := storage.NewCountryRepo(db)
	require.NoError(t, countries.Upsert(domain.Country{Code2: "BR", Code3: "BRA", Name: "Brazil", Currency: "BRL"}))
	c, err := countries.ByCode2("BR")
	require.NoError(t, err)

	obs := storage.NewObservationRepo(db)
	params := storage.NewNormParamRepo(db)
	return NewBuilder(obs, params, zerolog.Nop()), obs, params, *c
}

func TestBuilderSkipsMetricWithTooFewSamples(t *testing.T) {
	b, obs, params, country := setup(t)

	for i := 1; i <= 5; i++ {
		require.NoError(t, obs.Upsert(storage.ObservationPatch{
			CountryID:    country.ID,
			Date:         fmt.Sprintf("2026-01-%02d", i),
			FXVolatility: ptr(0.01 * float64(i)),
			Flags:        domain.Flags{},
		}))
	}

	require.NoError(t, b.Run([]domain.Country{country}))

	got, err := params.ByCountry(country.ID)
	require.NoError(t, err)
	_, ok := got[domain.MetricFXVolatility]
	assert.False(t, ok)
}

func TestBuilderComputesP5P95WithEnoughSamples(t *testing.T) {
	b, obs, params, country := setup(t)

	for i := 1; i <= 20; i++ {
		require.NoError(t, obs.Upsert(storage.ObservationPatch{
			CountryID:    country.ID,
			Date:         fmt.Sprintf("2026-01-%02d", i),
			FXVolatility: ptr(float64(i)),
			Flags:        domain.Flags{},
		}))
	}

	require.NoError(t, b.Run([]domain.Country{country}))

	got, err := params.ByCountry(country.ID)
	require.NoError(t, err)
	p, ok := got[domain.MetricFXVolatility]
	require.True(t, ok)
	assert.True(t, p.MaxVal > p.MinVal)
	assert.Equal(t, domain.NormalizationMethodP5P95Clamped, p.Method)
}

