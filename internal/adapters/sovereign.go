package adapters

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aristath/macrostress/internal/clientdata"
	"github.com/rs/zerolog"
)

// SovereignAdapter fetches a country's sovereign bond yield, trying the
// primary macro source when a series id is known and falling back to a
// free SDMX-style provider otherwise.
type SovereignAdapter struct {
	primaryBaseURL  string
	primaryAPIKey   string
	fallbackBaseURL string
	client          *http.Client
	log             zerolog.Logger
	cache           *clientdata.Repository
}

// NewSovereignAdapter constructs a SovereignAdapter.
func NewSovereignAdapter(primaryBaseURL, primaryAPIKey, fallbackBaseURL string, cache *clientdata.Repository, log zerolog.Logger) *SovereignAdapter {
	return &SovereignAdapter{
		primaryBaseURL:  primaryBaseURL,
		primaryAPIKey:   primaryAPIKey,
		fallbackBaseURL: fallbackBaseURL,
		client:          &http.Client{Timeout: defaultTimeout},
		log:             log.With().Str("adapter", "sovereign").Logger(),
		cache:           cache,
	}
}

type cachedYield struct {
	Yield float64 `msgpack:"yield"`
}

// Yield returns countryCode2's most recent sovereign yield. If
// primarySeriesID is non-nil, the primary source is tried first; the
// SDMX-style fallback is always attempted on primary failure. A fallback
// miss is common — it returns nil, not an error.
func (a *SovereignAdapter) Yield(countryCode2 string, primarySeriesID *string) *float64 {
	if cached := a.cachedYieldIfFresh(countryCode2); cached != nil {
		return cached
	}

	if primarySeriesID != nil {
		if y := a.fetchPrimary(*primarySeriesID); y != nil {
			a.cacheYield(countryCode2, *y)
			return y
		}
	}
	if y := a.fetchFallback(countryCode2); y != nil {
		a.cacheYield(countryCode2, *y)
		return y
	}
	return a.staleFallback(countryCode2)
}

func (a *SovereignAdapter) cacheYield(countryCode2 string, y float64) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Store("sovereign_yield", countryCode2, cachedYield{Yield: y}, clientdata.TTLSovereignYield); err != nil {
		a.log.Warn().Err(err).Str("country", countryCode2).Msg("failed to cache sovereign yield")
	}
}

func (a *SovereignAdapter) fetchPrimary(seriesID string) *float64 {
	url := fmt.Sprintf("%s/series/%s?api_key=%s", a.primaryBaseURL, seriesID, a.primaryAPIKey)
	resp, err := a.client.Get(url)
	if err != nil {
		a.log.Warn().Err(err).Str("series", seriesID).Msg("primary sovereign yield fetch failed")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		a.log.Warn().Int("status", resp.StatusCode).Str("series", seriesID).Msg("primary sovereign yield provider error")
		return nil
	}

	var body struct {
		Observations []struct {
			Value *float64 `json:"value"`
		} `json:"observations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || len(body.Observations) == 0 {
		a.log.Warn().Str("series", seriesID).Msg("primary sovereign yield response unparseable or empty")
		return nil
	}
	return body.Observations[len(body.Observations)-1].Value
}

func (a *SovereignAdapter) fetchFallback(countryCode2 string) *float64 {
	url := fmt.Sprintf("%s/data/IFS/M.%s.FIGB_PA", a.fallbackBaseURL, countryCode2)
	resp, err := a.client.Get(url)
	if err != nil {
		a.log.Debug().Err(err).Str("country", countryCode2).Msg("fallback sovereign yield unavailable")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		a.log.Debug().Int("status", resp.StatusCode).Str("country", countryCode2).Msg("fallback sovereign yield unavailable")
		return nil
	}

	var body struct {
		Series []struct {
			Observations [][2]float64 `json:"obs"`
		} `json:"series"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || len(body.Series) == 0 || len(body.Series[0].Observations) == 0 {
		a.log.Debug().Str("country", countryCode2).Msg("fallback sovereign yield response empty")
		return nil
	}
	obs := body.Series[0].Observations
	y := obs[len(obs)-1][1]
	return &y
}

// cachedYieldIfFresh returns the cached yield if it hasn't expired yet,
// sparing both provider calls within the TTL window.
func (a *SovereignAdapter) cachedYieldIfFresh(countryCode2 string) *float64 {
	if a.cache == nil {
		return nil
	}
	data, err := a.cache.GetIfFresh("sovereign_yield", countryCode2)
	if err != nil || data == nil {
		return nil
	}
	var cached cachedYield
	if err := unmarshalMsgpack(data, &cached); err != nil {
		return nil
	}
	return &cached.Yield
}

func (a *SovereignAdapter) staleFallback(countryCode2 string) *float64 {
	if a.cache == nil {
		return nil
	}
	data, err := a.cache.Get("sovereign_yield", countryCode2)
	if err != nil || data == nil {
		return nil
	}
	var cached cachedYield
	if err := unmarshalMsgpack(data, &cached); err != nil {
		return nil
	}
	a.log.Info().Str("country", countryCode2).Float64("yield", cached.Yield).Msg("using stale cached sovereign yield")
	return &cached.Yield
}

// YieldMonthValue is one monthly observation in a full sovereign yield history
// pull.
type YieldMonthValue struct {
	Date  string // YYYY-MM-01
	Value float64
}

// Series fetches the full available monthly yield history via the SDMX
// fallback source for the sovereign backfill reducer, oldest month first.
// The primary source is not used here: its per-series history endpoint is
// a paid-tier feature this pipeline does not budget for during backfill.
func (a *SovereignAdapter) Series(countryCode2 string) []YieldMonthValue {
	client := &http.Client{Timeout: bulkTimeout}
	url := fmt.Sprintf("%s/data/IFS/M.%s.FIGB_PA?startPeriod=2015-01", a.fallbackBaseURL, countryCode2)
	resp, err := client.Get(url)
	if err != nil {
		a.log.Debug().Err(err).Str("country", countryCode2).Msg("sovereign yield history unavailable")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		a.log.Debug().Int("status", resp.StatusCode).Str("country", countryCode2).Msg("sovereign yield history unavailable")
		return nil
	}

	var body struct {
		Series []struct {
			Observations [][2]interface{} `json:"obs"` // [date, value]
		} `json:"series"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || len(body.Series) == 0 {
		a.log.Debug().Str("country", countryCode2).Msg("sovereign yield history response empty")
		return nil
	}

	out := make([]YieldMonthValue, 0, len(body.Series[0].Observations))
	for _, obs := range body.Series[0].Observations {
		date, ok1 := obs[0].(string)
		value, ok2 := obs[1].(float64)
		if ok1 && ok2 {
			out = append(out, YieldMonthValue{Date: date, Value: value})
		}
	}
	return out
}
