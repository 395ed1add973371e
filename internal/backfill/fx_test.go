package backfill

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aristath/macrostress/internal/adapters"
	"github.com/aristath/macrostress/internal/domain"
	"github.com/aristath/macrostress/internal/storage"
	testutil "github.com/aristath/macrostress/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFXReducerBackfillsCloseHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"series":[
			{"date":"2026-01-01","close":5.00},
			{"date":"2026-01-02","close":5.05},
			{"date":"2026-01-03","close":5.10}
		]}`)
	}))
	defer server.Close()

	db, cleanup := testutil.NewTestDB(t)
	defer cleanup()

	countries := storage.NewCountryRepo(db)
	require.NoError(t, countries.Upsert(domain.Country{Code2: "BR", Code3: "BRA", Name: "Brazil", Currency: "BRL"}))
	country, err := countries.ByCode2("BR")
	require.NoError(t, err)

	fx := adapters.NewFXAdapter(server.URL, "", nil, zerolog.Nop())
	obs := storage.NewObservationRepo(db)
	reducer := NewFXReducer(fx, obs, 3, zerolog.Nop())

	require.NoError(t, reducer.Run(context.Background(), []domain.Country{*country}))

	row, err := obs.LastNonNull(country.ID, "fx_close", "2026-01-03")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.InDelta(t, 5.10, *row.FXClose, 1e-9)
}

func TestFXReducerSkipsCountryWithNoHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer server.Close()

	db, cleanup := testutil.NewTestDB(t)
	defer cleanup()

	countries := storage.NewCountryRepo(db)
	require.NoError(t, countries.Upsert(domain.Country{Code2: "AR", Code3: "ARG", Name: "Argentina", Currency: "ARS"}))
	country, err := countries.ByCode2("AR")
	require.NoError(t, err)

	fx := adapters.NewFXAdapter(server.URL, "", nil, zerolog.Nop())
	obs := storage.NewObservationRepo(db)
	reducer := NewFXReducer(fx, obs, 30, zerolog.Nop())

	require.NoError(t, reducer.Run(context.Background(), []domain.Country{*country}))

	row, err := obs.LatestScored(country.ID, "")
	require.NoError(t, err)
	assert.Nil(t, row)
}
