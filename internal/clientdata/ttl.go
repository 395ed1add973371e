package clientdata

import "time"

// TTL constants for each source adapter family. These are added to
// time.Now() when storing to calculate expires_at.
const (
	// FX closes and the parallel-market gap move throughout the trading day.
	TTLFXRate         = time.Hour
	TTLParallelFXRate = time.Hour

	// Crypto ratio tracks a fast-moving market proxy.
	TTLCryptoRatio = time.Hour

	// Macro series (inflation, sovereign and risk-free yields, reserves)
	// are cached for a day.
	TTLInflationSeries = 24 * time.Hour
	TTLSovereignYield  = 24 * time.Hour
	TTLReservesLevel   = 24 * time.Hour
	TTLRiskFreeYield   = 24 * time.Hour

	// Stablecoin premium is the median of exchange ask quotes against the
	// official rate, refreshed hourly.
	TTLStablecoinPremium = time.Hour
)
