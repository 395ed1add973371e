package adapters

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aristath/macrostress/internal/clientdata"
	"github.com/rs/zerolog"
)

// ReservesAdapter fetches a country's latest monthly total reserves (USD).
type ReservesAdapter struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
	cache   *clientdata.Repository
}

// NewReservesAdapter constructs a ReservesAdapter.
func NewReservesAdapter(baseURL string, cache *clientdata.Repository, log zerolog.Logger) *ReservesAdapter {
	return &ReservesAdapter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultTimeout},
		log:     log.With().Str("adapter", "reserves").Logger(),
		cache:   cache,
	}
}

type cachedReserves struct {
	Level float64 `msgpack:"level"`
}

// Latest returns country's latest non-null monthly total reserves level.
func (a *ReservesAdapter) Latest(countryCode3 string) *float64 {
	if cached := a.cachedLevelIfFresh(countryCode3); cached != nil {
		return cached
	}

	url := fmt.Sprintf("%s/country/%s/indicator/FI.RES.TOTL.CD?format=json&per_page=6", a.baseURL, countryCode3)
	resp, err := a.client.Get(url)
	if err != nil {
		a.log.Warn().Err(err).Str("country", countryCode3).Msg("reserves fetch failed")
		return a.staleFallback(countryCode3)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		a.log.Warn().Int("status", resp.StatusCode).Str("country", countryCode3).Msg("reserves provider error")
		return a.staleFallback(countryCode3)
	}

	var page []struct {
		Value *float64 `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		a.log.Warn().Err(err).Str("country", countryCode3).Msg("reserves response unparseable")
		return a.staleFallback(countryCode3)
	}

	for _, entry := range page {
		if entry.Value != nil {
			if a.cache != nil {
				if err := a.cache.Store("reserves_level", countryCode3, cachedReserves{Level: *entry.Value}, clientdata.TTLReservesLevel); err != nil {
					a.log.Warn().Err(err).Str("country", countryCode3).Msg("failed to cache reserves level")
				}
			}
			return entry.Value
		}
	}

	a.log.Warn().Str("country", countryCode3).Msg("reserves series has no non-null recent value")
	return a.staleFallback(countryCode3)
}

// MonthValue is one monthly observation in a full reserves history pull.
type MonthValue struct {
	Date  string // YYYY-MM-01 (first day of the month)
	Value float64
}

// Series fetches the full available monthly total-reserves history for
// the reserves backfill reducer, oldest month first.
func (a *ReservesAdapter) Series(countryCode3 string) []MonthValue {
	client := &http.Client{Timeout: bulkTimeout}
	url := fmt.Sprintf("%s/country/%s/indicator/FI.RES.TOTL.CD?format=json&per_page=200", a.baseURL, countryCode3)
	resp, err := client.Get(url)
	if err != nil {
		a.log.Warn().Err(err).Str("country", countryCode3).Msg("reserves series fetch failed")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		a.log.Warn().Int("status", resp.StatusCode).Str("country", countryCode3).Msg("reserves series provider error")
		return nil
	}

	var page []struct {
		Date  string   `json:"date"`
		Value *float64 `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		a.log.Warn().Err(err).Str("country", countryCode3).Msg("reserves series response unparseable")
		return nil
	}

	out := make([]MonthValue, 0, len(page))
	for _, entry := range page {
		if entry.Value != nil {
			out = append(out, MonthValue{Date: entry.Date + "-01", Value: *entry.Value})
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// cachedLevelIfFresh returns the cached reserves level if it hasn't
// expired yet, sparing a provider call within the TTL window.
func (a *ReservesAdapter) cachedLevelIfFresh(countryCode3 string) *float64 {
	if a.cache == nil {
		return nil
	}
	data, err := a.cache.GetIfFresh("reserves_level", countryCode3)
	if err != nil || data == nil {
		return nil
	}
	var cached cachedReserves
	if err := unmarshalMsgpack(data, &cached); err != nil {
		return nil
	}
	return &cached.Level
}

func (a *ReservesAdapter) staleFallback(countryCode3 string) *float64 {
	if a.cache == nil {
		return nil
	}
	data, err := a.cache.Get("reserves_level", countryCode3)
	if err != nil || data == nil {
		return nil
	}
	var cached cachedReserves
	if err := unmarshalMsgpack(data, &cached); err != nil {
		return nil
	}
	a.log.Info().Str("country", countryCode3).Float64("level", cached.Level).Msg("using stale cached reserves level")
	return &cached.Level
}
