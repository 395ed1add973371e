package adapters

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aristath/macrostress/internal/clientdata"
	"github.com/rs/zerolog"
)

// FXAdapter fetches daily FX closes against USD, and the parallel-market
// quote for the single tracked parallel-market country.
type FXAdapter struct {
	baseURL         string
	parallelBaseURL string
	client          *http.Client
	log             zerolog.Logger
	cache           *clientdata.Repository
}

// NewFXAdapter constructs an FXAdapter. cache is optional; nil disables
// caching.
func NewFXAdapter(baseURL, parallelBaseURL string, cache *clientdata.Repository, log zerolog.Logger) *FXAdapter {
	return &FXAdapter{
		baseURL:         baseURL,
		parallelBaseURL: parallelBaseURL,
		client:          &http.Client{Timeout: defaultTimeout},
		log:             log.With().Str("adapter", "fx").Logger(),
		cache:           cache,
	}
}

type cachedFX struct {
	Close float64 `msgpack:"close"`
	Date  string  `msgpack:"date"`
}

// DailyClose returns currency's most recent daily close against USD, or
// nil if the provider call fails and no cached value exists.
func (a *FXAdapter) DailyClose(currency string) *FXResult {
	if cached := a.cachedCloseIfFresh(currency); cached != nil {
		return cached
	}

	url := fmt.Sprintf("%s/%s", a.baseURL, currency)
	resp, err := a.client.Get(url)
	if err != nil {
		a.log.Warn().Err(err).Str("currency", currency).Msg("fx fetch failed")
		return a.staleFallback(currency)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		a.log.Warn().Int("status", resp.StatusCode).Str("currency", currency).Msg("fx provider error")
		return a.staleFallback(currency)
	}

	var body struct {
		Date  string             `json:"date"`
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		a.log.Warn().Err(err).Str("currency", currency).Msg("fx response unparseable")
		return a.staleFallback(currency)
	}
	close, ok := body.Rates["USD"]
	if !ok || close <= 0 {
		a.log.Warn().Str("currency", currency).Msg("fx response missing USD rate")
		return a.staleFallback(currency)
	}

	result := &FXResult{Close: close, Date: body.Date}
	if a.cache != nil {
		if err := a.cache.Store("fx_rate", currency, cachedFX(*result), clientdata.TTLFXRate); err != nil {
			a.log.Warn().Err(err).Str("currency", currency).Msg("failed to cache fx close")
		}
	}
	return result
}

// cachedCloseIfFresh returns the cached close if it hasn't expired yet,
// sparing a provider call within the TTL window.
func (a *FXAdapter) cachedCloseIfFresh(currency string) *FXResult {
	if a.cache == nil {
		return nil
	}
	data, err := a.cache.GetIfFresh("fx_rate", currency)
	if err != nil || data == nil {
		return nil
	}
	var cached cachedFX
	if err := unmarshalMsgpack(data, &cached); err != nil {
		return nil
	}
	return &FXResult{Close: cached.Close, Date: cached.Date}
}

func (a *FXAdapter) staleFallback(currency string) *FXResult {
	if a.cache == nil {
		return nil
	}
	data, err := a.cache.Get("fx_rate", currency)
	if err != nil || data == nil {
		return nil
	}
	var cached cachedFX
	if err := unmarshalMsgpack(data, &cached); err != nil {
		return nil
	}
	a.log.Info().Str("currency", currency).Msg("using stale cached fx close")
	return &FXResult{Close: cached.Close, Date: cached.Date}
}

type cachedGap struct {
	Gap float64 `msgpack:"gap"`
}

// ParallelGap fetches the parallel-market quote for the single tracked
// country and returns the percent spread against officialRate.
func (a *FXAdapter) ParallelGap(officialRate float64) *ParallelGapResult {
	if cached := a.cachedGapIfFresh(); cached != nil {
		return cached
	}

	resp, err := a.client.Get(a.parallelBaseURL)
	if err != nil {
		a.log.Warn().Err(err).Msg("parallel fx fetch failed")
		return a.staleParallelFallback()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		a.log.Warn().Int("status", resp.StatusCode).Msg("parallel fx provider error")
		return a.staleParallelFallback()
	}

	var body struct {
		Rate float64 `json:"rate"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Rate <= 0 {
		a.log.Warn().Err(err).Msg("parallel fx response unparseable")
		return a.staleParallelFallback()
	}

	gap := (body.Rate - officialRate) / officialRate * 100
	if a.cache != nil {
		if err := a.cache.Store("parallel_fx_rate", "official", cachedGap{Gap: gap}, clientdata.TTLParallelFXRate); err != nil {
			a.log.Warn().Err(err).Msg("failed to cache parallel fx gap")
		}
	}
	return &ParallelGapResult{Gap: gap}
}

// History fetches up to days of daily closes against USD for currency,
// oldest first, for the FX backfill reducer.
func (a *FXAdapter) History(currency string, days int) []FXResult {
	client := &http.Client{Timeout: bulkTimeout}
	url := fmt.Sprintf("%s/%s/history?days=%d", a.baseURL, currency, days)
	resp, err := client.Get(url)
	if err != nil {
		a.log.Warn().Err(err).Str("currency", currency).Msg("fx history fetch failed")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		a.log.Warn().Int("status", resp.StatusCode).Str("currency", currency).Msg("fx history provider error")
		return nil
	}

	var body struct {
		Series []struct {
			Date  string  `json:"date"`
			Close float64 `json:"close"`
		} `json:"series"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		a.log.Warn().Err(err).Str("currency", currency).Msg("fx history response unparseable")
		return nil
	}

	out := make([]FXResult, 0, len(body.Series))
	for _, pt := range body.Series {
		if pt.Close > 0 {
			out = append(out, FXResult{Close: pt.Close, Date: pt.Date})
		}
	}
	return out
}

// cachedGapIfFresh returns the cached parallel-market gap if it hasn't
// expired yet, sparing a provider call within the TTL window.
func (a *FXAdapter) cachedGapIfFresh() *ParallelGapResult {
	if a.cache == nil {
		return nil
	}
	data, err := a.cache.GetIfFresh("parallel_fx_rate", "official")
	if err != nil || data == nil {
		return nil
	}
	var cached cachedGap
	if err := unmarshalMsgpack(data, &cached); err != nil {
		return nil
	}
	return &ParallelGapResult{Gap: cached.Gap}
}

func (a *FXAdapter) staleParallelFallback() *ParallelGapResult {
	if a.cache == nil {
		return nil
	}
	data, err := a.cache.Get("parallel_fx_rate", "official")
	if err != nil || data == nil {
		return nil
	}
	var cached cachedGap
	if err := unmarshalMsgpack(data, &cached); err != nil {
		return nil
	}
	a.log.Info().Float64("gap", cached.Gap).Msg("using stale cached parallel fx gap")
	return &ParallelGapResult{Gap: cached.Gap}
}
