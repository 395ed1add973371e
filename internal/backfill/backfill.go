// Package backfill implements the one-shot historical reducers that turn
// sparse monthly/annual provider history into dense per-day rows: one
// reducer per source family, each run offline against the
// full store.
package backfill

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// batchSize is the reference upsert batch size every reducer uses.
const batchSize = 500

// politeDelay is the inter-call sleep reducers apply between outbound
// provider calls during a long historical pull.
const politeDelay = 200 * time.Millisecond

// newLimiter returns a rate.Limiter enforcing one call per politeDelay,
// the shared "documented polite delay" every reducer in this package
// uses when walking a per-country or per-date series.
func newLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(politeDelay), 1)
}

// wait blocks until the limiter permits another call, or ctx is done.
func wait(ctx context.Context, limiter *rate.Limiter) error {
	return limiter.Wait(ctx)
}

// anchorDate is the fixed historical start date. No reducer in this
// package reads it; cmd/macrostress-backfill and internal/normalization
// each declare their own copy of the same value.
const anchorDate = "2015-01-01"

// datesBetween returns every YYYY-MM-DD date from start (inclusive) up to
// end (exclusive), UTC. Reducers use it to forward-fill a monthly or
// annual provider reading across the days it applies to.
func datesBetween(start, end string) []string {
	s, err := time.Parse("2006-01-02", start)
	if err != nil {
		return nil
	}
	e, err := time.Parse("2006-01-02", end)
	if err != nil || !e.After(s) {
		e = s.AddDate(0, 1, 0)
	}
	var out []string
	for d := s; d.Before(e); d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format("2006-01-02"))
	}
	return out
}
