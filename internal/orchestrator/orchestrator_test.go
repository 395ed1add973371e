package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aristath/macrostress/internal/adapters"
	"github.com/aristath/macrostress/internal/domain"
	"github.com/aristath/macrostress/internal/scoring"
	"github.com/aristath/macrostress/internal/storage"
	testutil "github.com/aristath/macrostress/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func jsonServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(s.Close)
	return s
}

func notFoundServer(t *testing.T) *httptest.Server {
	t.Helper()
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	t.Cleanup(s.Close)
	return s
}

func newOrchestrator(t *testing.T, db *storage.DB) (*Orchestrator, *storage.ObservationRepo, domain.Country) {
	t.Helper()

	countries := storage.NewCountryRepo(db)
	require.NoError(t, countries.Upsert(domain.Country{Code2: "BR", Code3: "BRA", Name: "Brazil", Currency: "BRL"}))
	country, err := countries.ByCode2("BR")
	require.NoError(t, err)

	fxServer := jsonServer(t, `{"date":"2026-01-30","rates":{"USD":5.50}}`)
	riskFreeServer := jsonServer(t, `{"observations":[{"value":"4.25"}]}`)
	cryptoServer := jsonServer(t, `{"bitcoin":{"usd_market_cap":1000000},"tether":{"usd_market_cap":80000}}`)
	inflationServer := jsonServer(t, `[{"value":4.8},{"value":4.2}]`)
	sovereignFallbackServer := jsonServer(t, `{"series":[{"obs":[[1,9.1],[2,9.4]]}]}`)
	reservesServer := jsonServer(t, `[{"value":350000000000}]`)

	obs := storage.NewObservationRepo(db)
	params := storage.NewNormParamRepo(db)
	runLog := storage.NewRunLogRepo(db)

	o := New(Deps{
		Countries: countries,
		Obs:       obs,
		Params:    params,
		RunLog:    runLog,
		Engine:    scoring.NewEngine(),

		FX:         adapters.NewFXAdapter(fxServer.URL, "", nil, zerolog.Nop()),
		Crypto:     adapters.NewCryptoAdapter(cryptoServer.URL, nil, zerolog.Nop()),
		Inflation:  adapters.NewInflationAdapter(inflationServer.URL, nil, zerolog.Nop()),
		Sovereign:  adapters.NewSovereignAdapter("", "", sovereignFallbackServer.URL, nil, zerolog.Nop()),
		Reserves:   adapters.NewReservesAdapter(reservesServer.URL, nil, zerolog.Nop()),
		RiskFree:   adapters.NewRiskFreeAdapter(riskFreeServer.URL, nil, zerolog.Nop()),
		Stablecoin: adapters.NewStablecoinAdapter(nil, nil, zerolog.Nop()),

		Log: zerolog.Nop(),
	})

	return o, obs, *country
}

func seedNormParams(t *testing.T, params *storage.NormParamRepo, countryID int64) {
	t.Helper()
	for _, m := range domain.AllMetrics {
		require.NoError(t, params.Upsert(domain.NormalizationParam{
			CountryID: countryID, Metric: m, MinVal: 0, MaxVal: 10,
			Method: domain.NormalizationMethodP5P95Clamped,
			WindowStart: "2015-01-01", WindowEnd: "2026-01-01",
		}))
	}
}

func seedFXHistory(t *testing.T, obs *storage.ObservationRepo, countryID int64, days int) {
	t.Helper()
	today := time.Now().UTC()
	for i := days; i >= 1; i-- {
		date := today.AddDate(0, 0, -i).Format("2006-01-02")
		require.NoError(t, obs.Upsert(storage.ObservationPatch{
			CountryID: countryID, Date: date,
			FXClose: ptr(5.0 + 0.01*float64(i)),
			Flags:   domain.Flags{},
		}))
	}
}

func TestDailyRunScoresAndPersistsOneRowPerCountry(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t)
	defer cleanup()

	o, obs, country := newOrchestrator(t, db)
	params := storage.NewNormParamRepo(db)
	seedNormParams(t, params, country.ID)
	seedFXHistory(t, obs, country.ID, 30)

	result, err := o.DailyRun(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Equal(t, 1, result.CountriesTotal)
	assert.Equal(t, 1, result.CountriesUpdated)

	row, err := obs.LatestScored(country.ID, "")
	require.NoError(t, err)
	require.NotNil(t, row)
	require.NotNil(t, row.FXClose)
	assert.InDelta(t, 5.50, *row.FXClose, 1e-9)
	require.NotNil(t, row.StressScore)
	assert.GreaterOrEqual(t, *row.StressScore, 0.0)
	assert.LessOrEqual(t, *row.StressScore, 100.0)
}

func TestDailyRunIsIdempotentForSameCalendarDay(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t)
	defer cleanup()

	o, obs, country := newOrchestrator(t, db)
	params := storage.NewNormParamRepo(db)
	seedNormParams(t, params, country.ID)
	seedFXHistory(t, obs, country.ID, 30)

	_, err := o.DailyRun(context.Background())
	require.NoError(t, err)

	second, err := o.DailyRun(context.Background())
	require.NoError(t, err)
	assert.True(t, second.Skipped)
}

func TestDailyRunFlagsMissingFXWithoutFailingTheCountry(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t)
	defer cleanup()

	countries := storage.NewCountryRepo(db)
	require.NoError(t, countries.Upsert(domain.Country{Code2: "AR", Code3: "ARG", Name: "Argentina", Currency: "ARS"}))
	country, err := countries.ByCode2("AR")
	require.NoError(t, err)

	fxServer := notFoundServer(t)
	riskFreeServer := jsonServer(t, `{"observations":[{"value":"4.25"}]}`)
	cryptoServer := jsonServer(t, `{"bitcoin":{"usd_market_cap":1000000},"tether":{"usd_market_cap":80000}}`)
	inflationServer := jsonServer(t, `[{"value":4.8}]`)
	sovereignFallbackServer := jsonServer(t, `{"series":[{"obs":[[1,9.1]]}]}`)
	reservesServer := jsonServer(t, `[{"value":45000000000}]`)

	obs := storage.NewObservationRepo(db)
	params := storage.NewNormParamRepo(db)
	runLog := storage.NewRunLogRepo(db)
	seedNormParams(t, params, country.ID)

	o := New(Deps{
		Countries:  countries,
		Obs:        obs,
		Params:     params,
		RunLog:     runLog,
		Engine:     scoring.NewEngine(),
		FX:         adapters.NewFXAdapter(fxServer.URL, "", nil, zerolog.Nop()),
		Crypto:     adapters.NewCryptoAdapter(cryptoServer.URL, nil, zerolog.Nop()),
		Inflation:  adapters.NewInflationAdapter(inflationServer.URL, nil, zerolog.Nop()),
		Sovereign:  adapters.NewSovereignAdapter("", "", sovereignFallbackServer.URL, nil, zerolog.Nop()),
		Reserves:   adapters.NewReservesAdapter(reservesServer.URL, nil, zerolog.Nop()),
		RiskFree:   adapters.NewRiskFreeAdapter(riskFreeServer.URL, nil, zerolog.Nop()),
		Stablecoin: adapters.NewStablecoinAdapter(nil, nil, zerolog.Nop()),
		Log:        zerolog.Nop(),
	})

	result, err := o.DailyRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.CountriesUpdated)

	row, err := obs.LastNonNull(country.ID, "stress_score", time.Now().UTC().Format("2006-01-02"))
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Nil(t, row.FXClose)
	assert.Equal(t, true, row.Flags["fx_missing"])
}
