package adapters

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/aristath/macrostress/internal/clientdata"
	"github.com/rs/zerolog"
)

// CryptoAdapter fetches the global stablecoin-over-BTC market-cap ratio,
// shared across every country for a given date.
type CryptoAdapter struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
	cache   *clientdata.Repository
}

// NewCryptoAdapter constructs a CryptoAdapter.
func NewCryptoAdapter(baseURL string, cache *clientdata.Repository, log zerolog.Logger) *CryptoAdapter {
	return &CryptoAdapter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultTimeout},
		log:     log.With().Str("adapter", "crypto").Logger(),
		cache:   cache,
	}
}

type cachedCrypto struct {
	Ratio float64 `msgpack:"ratio"`
	Date  string  `msgpack:"date"`
}

const cryptoCacheKey = "global"

// Ratio fetches current USDT, USDC, and BTC market caps and returns
// (USDT_mcap + USDC_mcap) / BTC_mcap, rounded to 4 decimals. USDT and BTC
// are required; USDC is optional. Returns nil on failure with no cached
// fallback available.
func (a *CryptoAdapter) Ratio(asOfDate string) *CryptoResult {
	if cached := a.cachedIfFresh(); cached != nil {
		return cached
	}

	url := fmt.Sprintf("%s?ids=tether,usd-coin,bitcoin&vs_currencies=usd&include_market_cap=true", a.baseURL)
	resp, err := a.client.Get(url)
	if err != nil {
		a.log.Warn().Err(err).Msg("crypto fetch failed")
		return a.staleFallback()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		a.log.Warn().Int("status", resp.StatusCode).Msg("crypto provider error")
		return a.staleFallback()
	}

	var body map[string]struct {
		MarketCapUSD float64 `json:"usd_market_cap"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		a.log.Warn().Err(err).Msg("crypto response unparseable")
		return a.staleFallback()
	}

	btc, ok := body["bitcoin"]
	usdt, usdtOK := body["tether"]
	if !ok || !usdtOK || btc.MarketCapUSD <= 0 || usdt.MarketCapUSD <= 0 {
		a.log.Warn().Msg("crypto response missing required BTC/USDT market caps")
		return a.staleFallback()
	}
	usdc := body["usd-coin"] // optional; zero value if absent

	ratio := math.Round((usdt.MarketCapUSD+usdc.MarketCapUSD)/btc.MarketCapUSD*10000) / 10000
	result := &CryptoResult{Ratio: ratio, Date: asOfDate}

	if a.cache != nil {
		if err := a.cache.Store("crypto_ratio", cryptoCacheKey, cachedCrypto(*result), clientdata.TTLCryptoRatio); err != nil {
			a.log.Warn().Err(err).Msg("failed to cache crypto ratio")
		}
	}
	return result
}

// cachedIfFresh returns the cached ratio if it hasn't expired yet, sparing
// a provider call within the TTL window.
func (a *CryptoAdapter) cachedIfFresh() *CryptoResult {
	if a.cache == nil {
		return nil
	}
	data, err := a.cache.GetIfFresh("crypto_ratio", cryptoCacheKey)
	if err != nil || data == nil {
		return nil
	}
	var cached cachedCrypto
	if err := unmarshalMsgpack(data, &cached); err != nil {
		return nil
	}
	return &CryptoResult{Ratio: cached.Ratio, Date: cached.Date}
}

func (a *CryptoAdapter) staleFallback() *CryptoResult {
	if a.cache == nil {
		return nil
	}
	data, err := a.cache.Get("crypto_ratio", cryptoCacheKey)
	if err != nil || data == nil {
		return nil
	}
	var cached cachedCrypto
	if err := unmarshalMsgpack(data, &cached); err != nil {
		return nil
	}
	a.log.Info().Float64("ratio", cached.Ratio).Msg("using stale cached crypto ratio")
	return &CryptoResult{Ratio: cached.Ratio, Date: cached.Date}
}

// History fetches up to 365 days (provider limit) of daily BTC-denominated
// stablecoin ratio history for the backfill reducer. Unlike Ratio, a
// failure here is fatal to the backfill run for this source; the reducer
// decides how to handle a nil return.
func (a *CryptoAdapter) History(days int) []CryptoResult {
	client := &http.Client{Timeout: bulkTimeout}
	url := fmt.Sprintf("%s/market_chart/range?vs_currency=usd&days=%d", a.baseURL, days)
	resp, err := client.Get(url)
	if err != nil {
		a.log.Warn().Err(err).Msg("crypto history fetch failed")
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		a.log.Warn().Int("status", resp.StatusCode).Msg("crypto history provider error")
		return nil
	}

	var body struct {
		Ratios [][2]float64 `json:"ratios"` // [unix_ms, ratio]
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		a.log.Warn().Err(err).Msg("crypto history response unparseable")
		return nil
	}

	out := make([]CryptoResult, 0, len(body.Ratios))
	for _, pt := range body.Ratios {
		date := time.UnixMilli(int64(pt[0])).UTC().Format("2006-01-02")
		out = append(out, CryptoResult{Ratio: math.Round(pt[1]*10000) / 10000, Date: date})
	}
	return out
}
