package adapters

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aristath/macrostress/internal/clientdata"
	"github.com/rs/zerolog"
)

// riskFreeCacheKey is the single shared cache key: the risk-free yield is
// global, not per-country.
const riskFreeCacheKey = "us_10y"

// RiskFreeAdapter fetches the reference long-tenor risk-free yield
// (shared across every country for a given date).
type RiskFreeAdapter struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
	cache   *clientdata.Repository
}

// NewRiskFreeAdapter constructs a RiskFreeAdapter.
func NewRiskFreeAdapter(baseURL string, cache *clientdata.Repository, log zerolog.Logger) *RiskFreeAdapter {
	return &RiskFreeAdapter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultTimeout},
		log:     log.With().Str("adapter", "risk_free").Logger(),
		cache:   cache,
	}
}

type cachedRiskFree struct {
	Yield float64 `msgpack:"yield"`
}

// Latest returns the most recent non-missing daily risk-free yield
// observation (weekend/holiday gaps are skipped by the provider series
// itself).
func (a *RiskFreeAdapter) Latest() *float64 {
	if cached := a.cachedYieldIfFresh(); cached != nil {
		return cached
	}

	url := fmt.Sprintf("%s/series/observations?series_id=DGS10&sort_order=desc&limit=5", a.baseURL)
	resp, err := a.client.Get(url)
	if err != nil {
		a.log.Warn().Err(err).Msg("risk-free yield fetch failed")
		return a.staleFallback()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		a.log.Warn().Int("status", resp.StatusCode).Msg("risk-free yield provider error")
		return a.staleFallback()
	}

	var body struct {
		Observations []struct {
			Value string `json:"value"`
		} `json:"observations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || len(body.Observations) == 0 {
		a.log.Warn().Msg("risk-free yield response unparseable or empty")
		return a.staleFallback()
	}

	var yield float64
	for _, obs := range body.Observations {
		if _, err := fmt.Sscanf(obs.Value, "%f", &yield); err == nil {
			if a.cache != nil {
				if err := a.cache.Store("risk_free_yield", riskFreeCacheKey, cachedRiskFree{Yield: yield}, clientdata.TTLRiskFreeYield); err != nil {
					a.log.Warn().Err(err).Msg("failed to cache risk-free yield")
				}
			}
			return &yield
		}
	}

	a.log.Warn().Msg("risk-free yield series has no parseable recent value")
	return a.staleFallback()
}

// DateValue is one daily observation in a full risk-free yield history
// pull.
type DateValue struct {
	Date  string
	Value float64
}

// Series fetches the full available daily risk-free yield history for
// the sovereign backfill reducer, oldest day first. Weekend/holiday gaps
// in the provider series are skipped, not filled.
func (a *RiskFreeAdapter) Series(startDate string) []DateValue {
	client := &http.Client{Timeout: bulkTimeout}
	url := fmt.Sprintf("%s/series/observations?series_id=DGS10&observation_start=%s&sort_order=asc", a.baseURL, startDate)
	resp, err := client.Get(url)
	if err != nil {
		a.log.Warn().Err(err).Msg("risk-free yield history fetch failed")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		a.log.Warn().Int("status", resp.StatusCode).Msg("risk-free yield history provider error")
		return nil
	}

	var body struct {
		Observations []struct {
			Date  string `json:"date"`
			Value string `json:"value"`
		} `json:"observations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		a.log.Warn().Err(err).Msg("risk-free yield history response unparseable")
		return nil
	}

	out := make([]DateValue, 0, len(body.Observations))
	for _, obs := range body.Observations {
		var v float64
		if _, err := fmt.Sscanf(obs.Value, "%f", &v); err == nil {
			out = append(out, DateValue{Date: obs.Date, Value: v})
		}
	}
	return out
}

// cachedYieldIfFresh returns the cached yield if it hasn't expired yet,
// sparing a provider call within the TTL window.
func (a *RiskFreeAdapter) cachedYieldIfFresh() *float64 {
	if a.cache == nil {
		return nil
	}
	data, err := a.cache.GetIfFresh("risk_free_yield", riskFreeCacheKey)
	if err != nil || data == nil {
		return nil
	}
	var cached cachedRiskFree
	if err := unmarshalMsgpack(data, &cached); err != nil {
		return nil
	}
	return &cached.Yield
}

func (a *RiskFreeAdapter) staleFallback() *float64 {
	if a.cache == nil {
		return nil
	}
	data, err := a.cache.Get("risk_free_yield", riskFreeCacheKey)
	if err != nil || data == nil {
		return nil
	}
	var cached cachedRiskFree
	if err := unmarshalMsgpack(data, &cached); err != nil {
		return nil
	}
	a.log.Info().Float64("yield", cached.Yield).Msg("using stale cached risk-free yield")
	return &cached.Yield
}
