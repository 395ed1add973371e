package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/macrostress/internal/domain"
	"github.com/aristath/macrostress/internal/readapi"
	"github.com/aristath/macrostress/internal/scoring"
	"github.com/aristath/macrostress/internal/storage"
	testutil "github.com/aristath/macrostress/internal/testing"
)

func ptr(v float64) *float64 { return &v }

func newTestServer(t *testing.T) (*Server, *storage.CountryRepo, *storage.ObservationRepo, *storage.NormParamRepo) {
	t.Helper()
	db, cleanup := testutil.NewTestDB(t)
	t.Cleanup(cleanup)

	countries := storage.NewCountryRepo(db)
	obs := storage.NewObservationRepo(db)
	params := storage.NewNormParamRepo(db)
	composer := readapi.New(countries, obs, params, scoring.NewEngine())

	s := New(Config{
		Log:     zerolog.Nop(),
		Port:    0,
		DevMode: true,
		DB:      db,
		Composer: composer,
	})
	return s, countries, obs, params
}

func seedScoredCountry(t *testing.T, countries *storage.CountryRepo, obs *storage.ObservationRepo, params *storage.NormParamRepo, code2, code3, name string, score float64) domain.Country {
	t.Helper()
	require.NoError(t, countries.Upsert(domain.Country{Code2: code2, Code3: code3, Name: name, Currency: code2 + "$"}))
	c, err := countries.ByCode2(code2)
	require.NoError(t, err)
	require.NotNil(t, c)

	for _, m := range domain.AllMetrics {
		require.NoError(t, params.Upsert(domain.NormalizationParam{
			CountryID: c.ID, Metric: m, MinVal: 0, MaxVal: 10,
			Method: domain.NormalizationMethodP5P95Clamped,
			WindowStart: "2015-01-01", WindowEnd: "2026-01-01",
		}))
	}
	require.NoError(t, obs.Upsert(storage.ObservationPatch{
		CountryID:             c.ID,
		Date:                  "2026-07-30",
		FXVolatility:          ptr(5),
		InflationAcceleration: ptr(5),
		RiskSpread:            ptr(5),
		CryptoRatio:           ptr(5),
		ReservesChange:        ptr(5),
		StablecoinPremium:     ptr(5),
		StressScore:           ptr(score),
		Flags:                 domain.Flags{},
	}))
	return *c
}

func TestHandleScoreboardReturnsRankedRows(t *testing.T) {
	s, countries, obs, params := newTestServer(t)
	seedScoredCountry(t, countries, obs, params, "BR", "BRA", "Brazil", 49.1)

	req := httptest.NewRequest(http.MethodGet, "/api/public/stress/", nil)
	rec := httptest.NewRecorder()
	s.handleScoreboard(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, scoreboardCacheControl, rec.Header().Get("Cache-Control"))

	var rows []readapi.ScoreboardRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "BR", rows[0].Code)
	assert.Equal(t, 1, rows[0].Rank)
}

func TestHandleHistoryReturnsRowsForKnownCountry(t *testing.T) {
	s, countries, obs, params := newTestServer(t)
	seedScoredCountry(t, countries, obs, params, "BR", "BRA", "Brazil", 49.1)

	req := httptest.NewRequest(http.MethodGet, "/api/public/stress/BR/history", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("code", "BR")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rec := httptest.NewRecorder()
	s.handleHistory(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var rows []readapi.HistoryRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "2026-07-30", rows[0].Date)
}

func TestHandleHistoryRejectsMalformedCode(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/public/stress/BRA/history", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("code", "BRA")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rec := httptest.NewRecorder()
	s.handleHistory(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleHistoryReturns404ForUnknownCountry(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/public/stress/ZZ/history", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("code", "ZZ")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rec := httptest.NewRecorder()
	s.handleHistory(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
