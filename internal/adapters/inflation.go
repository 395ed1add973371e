package adapters

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aristath/macrostress/internal/clientdata"
	"github.com/rs/zerolog"
)

// InflationAdapter fetches annual YoY CPI from an annual-only provider
// (World Bank style indicator series).
type InflationAdapter struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
	cache   *clientdata.Repository
}

// NewInflationAdapter constructs an InflationAdapter.
func NewInflationAdapter(baseURL string, cache *clientdata.Repository, log zerolog.Logger) *InflationAdapter {
	return &InflationAdapter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultTimeout},
		log:     log.With().Str("adapter", "inflation").Logger(),
		cache:   cache,
	}
}

type cachedInflation struct {
	YoY float64 `msgpack:"yoy"`
}

// LatestYoY returns country's latest non-null annual YoY inflation rate.
func (a *InflationAdapter) LatestYoY(countryCode3 string) *float64 {
	if cached := a.cachedYoYIfFresh(countryCode3); cached != nil {
		return cached
	}

	url := fmt.Sprintf("%s/country/%s/indicator/FP.CPI.TOTL.ZG?format=json&per_page=10", a.baseURL, countryCode3)
	resp, err := a.client.Get(url)
	if err != nil {
		a.log.Warn().Err(err).Str("country", countryCode3).Msg("inflation fetch failed")
		return a.staleFallback(countryCode3)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		a.log.Warn().Int("status", resp.StatusCode).Str("country", countryCode3).Msg("inflation provider error")
		return a.staleFallback(countryCode3)
	}

	var page []struct {
		Value *float64 `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		a.log.Warn().Err(err).Str("country", countryCode3).Msg("inflation response unparseable")
		return a.staleFallback(countryCode3)
	}

	for _, entry := range page {
		if entry.Value != nil {
			if a.cache != nil {
				if err := a.cache.Store("inflation_series", countryCode3, cachedInflation{YoY: *entry.Value}, clientdata.TTLInflationSeries); err != nil {
					a.log.Warn().Err(err).Str("country", countryCode3).Msg("failed to cache inflation value")
				}
			}
			return entry.Value
		}
	}

	a.log.Warn().Str("country", countryCode3).Msg("inflation series has no non-null recent value")
	return a.staleFallback(countryCode3)
}

// YearValue is one annual observation in a full inflation history pull.
type YearValue struct {
	Year  int
	Value float64
}

// Series fetches the full available annual YoY history for the inflation
// backfill reducer, oldest year first.
func (a *InflationAdapter) Series(countryCode3 string) []YearValue {
	client := &http.Client{Timeout: bulkTimeout}
	url := fmt.Sprintf("%s/country/%s/indicator/FP.CPI.TOTL.ZG?format=json&per_page=100", a.baseURL, countryCode3)
	resp, err := client.Get(url)
	if err != nil {
		a.log.Warn().Err(err).Str("country", countryCode3).Msg("inflation series fetch failed")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		a.log.Warn().Int("status", resp.StatusCode).Str("country", countryCode3).Msg("inflation series provider error")
		return nil
	}

	var page []struct {
		Date  string   `json:"date"`
		Value *float64 `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		a.log.Warn().Err(err).Str("country", countryCode3).Msg("inflation series response unparseable")
		return nil
	}

	out := make([]YearValue, 0, len(page))
	for _, entry := range page {
		if entry.Value == nil {
			continue
		}
		var year int
		if _, err := fmt.Sscanf(entry.Date, "%d", &year); err != nil {
			continue
		}
		out = append(out, YearValue{Year: year, Value: *entry.Value})
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// cachedYoYIfFresh returns the cached YoY rate if it hasn't expired yet,
// sparing a provider call within the TTL window.
func (a *InflationAdapter) cachedYoYIfFresh(countryCode3 string) *float64 {
	if a.cache == nil {
		return nil
	}
	data, err := a.cache.GetIfFresh("inflation_series", countryCode3)
	if err != nil || data == nil {
		return nil
	}
	var cached cachedInflation
	if err := unmarshalMsgpack(data, &cached); err != nil {
		return nil
	}
	return &cached.YoY
}

func (a *InflationAdapter) staleFallback(countryCode3 string) *float64 {
	if a.cache == nil {
		return nil
	}
	data, err := a.cache.Get("inflation_series", countryCode3)
	if err != nil || data == nil {
		return nil
	}
	var cached cachedInflation
	if err := unmarshalMsgpack(data, &cached); err != nil {
		return nil
	}
	a.log.Info().Str("country", countryCode3).Float64("yoy", cached.YoY).Msg("using stale cached inflation value")
	return &cached.YoY
}
