package adapters

import (
	"encoding/json"
	"net/http"

	"github.com/aristath/macrostress/internal/clientdata"
	"github.com/aristath/macrostress/internal/mathkernel"
	"github.com/rs/zerolog"
)

// StablecoinAdapter fetches a set of peer-to-peer exchange quotes for the
// single tracked stablecoin-premium country and derives the percent
// premium over the official rate.
type StablecoinAdapter struct {
	quoteURLs []string
	client    *http.Client
	log       zerolog.Logger
	cache     *clientdata.Repository
}

// NewStablecoinAdapter constructs a StablecoinAdapter. quoteURLs lists
// the exchange endpoints to poll; at least two must respond for a
// premium to be computed.
func NewStablecoinAdapter(quoteURLs []string, cache *clientdata.Repository, log zerolog.Logger) *StablecoinAdapter {
	return &StablecoinAdapter{
		quoteURLs: quoteURLs,
		client:    &http.Client{Timeout: defaultTimeout},
		log:       log.With().Str("adapter", "stablecoin_premium").Logger(),
		cache:     cache,
	}
}

type cachedPremium struct {
	Premium float64 `msgpack:"premium"`
}

// Premium fetches quotes from every configured exchange, takes the median
// of the "total-ask" field, and returns (median - officialRate) /
// officialRate * 100. Requires at least two exchange responses.
func (a *StablecoinAdapter) Premium(officialRate float64) *float64 {
	if cached := a.cachedPremiumIfFresh(); cached != nil {
		return cached
	}

	var asks []float64
	for _, url := range a.quoteURLs {
		ask, ok := a.fetchAsk(url)
		if ok {
			asks = append(asks, ask)
		}
	}

	if len(asks) < 2 {
		a.log.Warn().Int("responses", len(asks)).Msg("fewer than two stablecoin exchange quotes available")
		return a.staleFallback()
	}

	median := mathkernel.Median(asks)
	premium := (median - officialRate) / officialRate * 100

	if a.cache != nil {
		if err := a.cache.Store("stablecoin_premium", cryptoCacheKey, cachedPremium{Premium: premium}, clientdata.TTLStablecoinPremium); err != nil {
			a.log.Warn().Err(err).Msg("failed to cache stablecoin premium")
		}
	}
	return &premium
}

func (a *StablecoinAdapter) fetchAsk(url string) (float64, bool) {
	resp, err := a.client.Get(url)
	if err != nil {
		a.log.Debug().Err(err).Str("url", url).Msg("stablecoin exchange quote failed")
		return 0, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		a.log.Debug().Int("status", resp.StatusCode).Str("url", url).Msg("stablecoin exchange quote error")
		return 0, false
	}

	var body struct {
		TotalAsk float64 `json:"total-ask"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.TotalAsk <= 0 {
		a.log.Debug().Str("url", url).Msg("stablecoin exchange quote unparseable")
		return 0, false
	}
	return body.TotalAsk, true
}

// cachedPremiumIfFresh returns the cached premium if it hasn't expired
// yet, sparing every exchange call within the TTL window.
func (a *StablecoinAdapter) cachedPremiumIfFresh() *float64 {
	if a.cache == nil {
		return nil
	}
	data, err := a.cache.GetIfFresh("stablecoin_premium", cryptoCacheKey)
	if err != nil || data == nil {
		return nil
	}
	var cached cachedPremium
	if err := unmarshalMsgpack(data, &cached); err != nil {
		return nil
	}
	return &cached.Premium
}

func (a *StablecoinAdapter) staleFallback() *float64 {
	if a.cache == nil {
		return nil
	}
	data, err := a.cache.Get("stablecoin_premium", cryptoCacheKey)
	if err != nil || data == nil {
		return nil
	}
	var cached cachedPremium
	if err := unmarshalMsgpack(data, &cached); err != nil {
		return nil
	}
	a.log.Info().Float64("premium", cached.Premium).Msg("using stale cached stablecoin premium")
	return &cached.Premium
}
