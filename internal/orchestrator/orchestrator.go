// Package orchestrator runs the single daily job that turns external
// provider data into scored daily_observations rows: shared fetches once,
// then a sequential per-country loop that fetches what changes daily,
// carries forward what changes monthly, and scores the result.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/macrostress/internal/adapters"
	"github.com/aristath/macrostress/internal/domain"
	"github.com/aristath/macrostress/internal/mathkernel"
	"github.com/aristath/macrostress/internal/scoring"
	"github.com/aristath/macrostress/internal/storage"
	"github.com/aristath/macrostress/internal/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// fxVolWindow is the trailing window (in trading-day closes) the rolling
// volatility is computed over.
const fxVolWindow = 30

// reservesWindowStartDays and reservesWindowEndDays bound the "about 90 days ago"
// baseline lookup for the monthly reserves_change recompute: the most
// recent reserves_level row 80-100 days before today.
const (
	reservesWindowStartDays = 100
	reservesWindowEndDays   = 80
)

// Orchestrator owns every dependency the daily run touches: the stores,
// the scoring engine, and one adapter per external provider.
type Orchestrator struct {
	countries *storage.CountryRepo
	obs       *storage.ObservationRepo
	params    *storage.NormParamRepo
	runLog    *storage.RunLogRepo
	engine    *scoring.Engine

	fx         *adapters.FXAdapter
	crypto     *adapters.CryptoAdapter
	inflation  *adapters.InflationAdapter
	sovereign  *adapters.SovereignAdapter
	reserves   *adapters.ReservesAdapter
	riskFree   *adapters.RiskFreeAdapter
	stablecoin *adapters.StablecoinAdapter

	log zerolog.Logger
}

// Deps bundles the constructor arguments; named so call sites don't have
// to remember thirteen positional arguments in order.
type Deps struct {
	Countries *storage.CountryRepo
	Obs       *storage.ObservationRepo
	Params    *storage.NormParamRepo
	RunLog    *storage.RunLogRepo
	Engine    *scoring.Engine

	FX         *adapters.FXAdapter
	Crypto     *adapters.CryptoAdapter
	Inflation  *adapters.InflationAdapter
	Sovereign  *adapters.SovereignAdapter
	Reserves   *adapters.ReservesAdapter
	RiskFree   *adapters.RiskFreeAdapter
	Stablecoin *adapters.StablecoinAdapter

	Log zerolog.Logger
}

// New constructs an Orchestrator from d.
func New(d Deps) *Orchestrator {
	return &Orchestrator{
		countries:  d.Countries,
		obs:        d.Obs,
		params:     d.Params,
		runLog:     d.RunLog,
		engine:     d.Engine,
		fx:         d.FX,
		crypto:     d.Crypto,
		inflation:  d.Inflation,
		sovereign:  d.Sovereign,
		reserves:   d.Reserves,
		riskFree:   d.RiskFree,
		stablecoin: d.Stablecoin,
		log:        d.Log.With().Str("component", "orchestrator").Logger(),
	}
}

// Result summarizes one DailyRun call for the HTTP trigger handler.
type Result struct {
	RunID            string
	RunDate          string
	Skipped          bool
	Status           domain.RunStatus
	CountriesTotal   int
	CountriesUpdated int
	Errors           []string
}

// DailyRun executes the full daily pipeline for today (UTC calendar
// date): idempotency guard, shared fetches, then a sequential per-country
// loop that fetches, scores, and persists one row per country. It never
// panics on a single country's or provider's failure; those are recorded
// as flags and run_log detail instead.
func (o *Orchestrator) DailyRun(ctx context.Context) (Result, error) {
	runDate := time.Now().UTC().Format("2006-01-02")
	runID := uuid.NewString()
	timer := utils.NewTimer("daily_run", o.log)
	o.log.Info().Str("run_id", runID).Str("run_date", runDate).Msg("daily run starting")

	already, err := o.runLog.HasSucceeded(runDate)
	if err != nil {
		return Result{RunID: runID, RunDate: runDate}, fmt.Errorf("failed to check idempotency guard for %s: %w", runDate, err)
	}
	if already {
		o.log.Info().Str("run_date", runDate).Msg("daily run already succeeded today, skipping")
		return Result{RunID: runID, RunDate: runDate, Skipped: true, Status: domain.RunStatusSuccess}, nil
	}

	countries, err := o.countries.All()
	if err != nil {
		o.recordFatal(runDate, timer, err)
		return Result{RunID: runID, RunDate: runDate, Status: domain.RunStatusError}, fmt.Errorf("failed to load countries: %w", err)
	}

	var cryptoResult *adapters.CryptoResult
	var riskFree *float64
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		cryptoResult = o.crypto.Ratio(runDate)
		return nil
	})
	g.Go(func() error {
		riskFree = o.riskFree.Latest()
		return nil
	})
	_ = g.Wait()

	isMonthly := time.Now().UTC().Day() == 1

	var countryErrs []string
	updated := 0
	for _, country := range countries {
		if ctx.Err() != nil {
			countryErrs = append(countryErrs, fmt.Sprintf("%s: run cancelled before processing", country.Code2))
			break
		}

		if err := o.runCountry(ctx, country, runDate, isMonthly, cryptoResult, riskFree); err != nil {
			countryErrs = append(countryErrs, fmt.Sprintf("%s: %v", country.Code2, err))
			continue
		}
		updated++
	}

	status := domain.RunStatusSuccess
	if len(countryErrs) > 0 {
		status = domain.RunStatusPartial
		if updated == 0 {
			status = domain.RunStatusError
		}
	}

	duration := timer.StopWithContext(map[string]interface{}{
		"status":            string(status),
		"countries_total":   len(countries),
		"countries_updated": updated,
	})

	logErr := o.runLog.Append(domain.RunLog{
		RunDate:    runDate,
		Status:     status,
		DurationMS: duration.Milliseconds(),
		Detail: map[string]interface{}{
			"countries_total":   len(countries),
			"countries_updated": updated,
			"errors":            countryErrs,
		},
	})
	if logErr != nil {
		o.log.Error().Err(logErr).Str("run_date", runDate).Msg("failed to append run log")
	}

	return Result{
		RunID:            runID,
		RunDate:          runDate,
		Status:           status,
		CountriesTotal:   len(countries),
		CountriesUpdated: updated,
		Errors:           countryErrs,
	}, nil
}

// recordFatal writes a best-effort error run_log entry for a failure that
// aborted the run before any country was processed.
func (o *Orchestrator) recordFatal(runDate string, timer *utils.Timer, cause error) {
	duration := timer.Stop()
	if err := o.runLog.Append(domain.RunLog{
		RunDate:    runDate,
		Status:     domain.RunStatusError,
		DurationMS: duration.Milliseconds(),
		Detail:     map[string]interface{}{"fatal": cause.Error()},
	}); err != nil {
		o.log.Error().Err(err).Str("run_date", runDate).Msg("failed to append fatal run log entry")
	}
}

// runCountry fetches, scores, and persists one country's row for
// runDate. A returned error means the country's step failed outright
// (normalization params or a stored-history read failed, or the upsert
// itself failed); individual provider failures inside the step are recorded as
// flags on the row instead of surfacing here.
func (o *Orchestrator) runCountry(ctx context.Context, country domain.Country, runDate string, isMonthly bool, crypto *adapters.CryptoResult, riskFree *float64) error {
	flags := domain.Flags{}

	params, err := o.params.ByCountry(country.ID)
	if err != nil {
		return fmt.Errorf("failed to load normalization params: %w", err)
	}

	fx := o.fx.DailyClose(country.Currency)

	var fxClose, fxVol *float64
	if fx != nil {
		todayClose := fx.Close
		fxClose = &todayClose

		prior, err := o.obs.RecentNonNull(country.ID, "fx_close", runDate, fxVolWindow)
		if err != nil {
			return fmt.Errorf("failed to load prior fx closes: %w", err)
		}
		combined := append(append([]float64{}, prior...), fx.Close)
		vols := mathkernel.RollingLogReturnStdDev(combined, fxVolWindow)
		if last := vols[len(vols)-1]; last != nil {
			fxVol = last
		}
	} else {
		flags["fx_missing"] = true
	}

	var parallelGap *float64
	if domain.HasParallelMarket(country.Code2) && fxClose != nil {
		if gap := o.fx.ParallelGap(*fxClose); gap != nil {
			v := gap.Gap
			parallelGap = &v
		} else {
			flags["parallel_gap_missing"] = true
		}
	}

	lastInflationYoY, lastSovereignYield, lastReservesLevel, lastStablecoinPremium, err := o.readLastKnown(country.ID, runDate)
	if err != nil {
		return fmt.Errorf("failed to read last known values: %w", err)
	}
	lastAcceleration, lastRiskSpread, lastReservesChange, err := o.readLastKnownDerived(country.ID, runDate)
	if err != nil {
		return fmt.Errorf("failed to read last known derived values: %w", err)
	}

	inflationYoY := lastInflationYoY
	sovereignYield := lastSovereignYield
	reservesLevel := lastReservesLevel
	stablecoinPremium := lastStablecoinPremium

	var inflationAcceleration, riskSpread, reservesChange *float64
	var inflationFetched, sovereignFetched, reservesFetched bool

	if domain.HasStablecoinPremium(country.Code2) {
		if fxClose != nil {
			if fresh := o.stablecoin.Premium(*fxClose); fresh != nil {
				stablecoinPremium = fresh
			} else if lastStablecoinPremium != nil {
				stablecoinPremium = lastStablecoinPremium
				flags["stablecoin_premium_forward_filled"] = true
			} else {
				flags["stablecoin_premium_missing"] = true
			}
		} else if lastStablecoinPremium != nil {
			flags["stablecoin_premium_forward_filled"] = true
		} else {
			flags["stablecoin_premium_missing"] = true
		}
	}

	if isMonthly {
		if fresh := o.inflation.LatestYoY(country.Code3); fresh != nil {
			twoYearsAgo := addYears(runDate, -2)
			if row, e := o.obs.LastNonNull(country.ID, "inflation_yoy", twoYearsAgo); e != nil {
				return fmt.Errorf("failed to read inflation_yoy two years prior: %w", e)
			} else if row != nil && row.InflationYoY != nil {
				v := *fresh - *row.InflationYoY
				inflationAcceleration = &v
			}
			inflationYoY = fresh
			inflationFetched = true
		} else {
			flags["inflation_fetch_failed"] = true
		}

		if fresh := o.sovereign.Yield(country.Code2, country.PrimarySourceSeriesID); fresh != nil {
			sovereignYield = fresh
			sovereignFetched = true
			if riskFree != nil {
				v := *fresh - *riskFree
				riskSpread = &v
			}
		} else {
			flags["sovereign_yield_fetch_failed"] = true
		}

		if fresh := o.reserves.Latest(country.Code3); fresh != nil {
			reservesLevel = fresh
			reservesFetched = true
			baseline, err := o.obs.MostRecentInWindow(country.ID, "reserves_level",
				addDays(runDate, -reservesWindowStartDays), addDays(runDate, -reservesWindowEndDays))
			if err != nil {
				return fmt.Errorf("failed to load reserves baseline: %w", err)
			}
			if baseline != nil && *baseline != 0 {
				v := (*fresh - *baseline) / *baseline * 100
				reservesChange = &v
			}
		} else {
			flags["reserves_fetch_failed"] = true
		}
	} else {
		inflationAcceleration = lastAcceleration
		riskSpread = lastRiskSpread
		reservesChange = lastReservesChange
	}

	// Scoring uses whatever derived value is currently known, whether
	// freshly recomputed this run or carried over from the last monthly
	// recompute; only the write below is restricted to what changed.
	scoreMetrics := domain.MetricSet{
		FXVolatility:          fxVol,
		InflationAcceleration: valueOr(inflationAcceleration, lastAcceleration),
		RiskSpread:            valueOr(riskSpread, lastRiskSpread),
		CryptoRatio:           cryptoRatio(crypto),
		ReservesChange:        valueOr(reservesChange, lastReservesChange),
		StablecoinPremium:     stablecoinPremium,
	}

	result, ok := o.engine.Score(scoreMetrics, params)
	var stressScore *float64
	if ok {
		s := result.Score
		stressScore = &s
		for k, v := range result.Flags {
			flags[k] = v
		}
	} else {
		flags["unscored"] = true
	}

	patch := storage.ObservationPatch{
		CountryID:             country.ID,
		Date:                  runDate,
		FXClose:               fxClose,
		InflationYoY:          onlyIfFetched(inflationFetched, inflationYoY),
		SovereignYield:        onlyIfFetched(sovereignFetched, sovereignYield),
		USRiskFreeYield:       riskFree,
		ReservesLevel:         onlyIfFetched(reservesFetched, reservesLevel),
		ParallelGap:           parallelGap,
		FXVolatility:          fxVol,
		InflationAcceleration: inflationAcceleration,
		RiskSpread:            riskSpread,
		CryptoRatio:           cryptoRatio(crypto),
		ReservesChange:        reservesChange,
		StablecoinPremium:     stablecoinPremium,
		StressScore:           stressScore,
		Flags:                 flags,
	}

	if err := o.obs.Upsert(patch); err != nil {
		return fmt.Errorf("failed to upsert observation: %w", err)
	}
	return nil
}

// readLastKnown runs the four named point queries concurrently: the
// most recent non-null inflation_yoy, sovereign_yield, reserves_level,
// and stablecoin_premium at or before asOfDate.
func (o *Orchestrator) readLastKnown(countryID int64, asOfDate string) (inflationYoY, sovereignYield, reservesLevel, stablecoinPremium *float64, err error) {
	var g errgroup.Group
	g.Go(func() error {
		row, e := o.obs.LastNonNull(countryID, "inflation_yoy", asOfDate)
		if e != nil {
			return e
		}
		if row != nil {
			inflationYoY = row.InflationYoY
		}
		return nil
	})
	g.Go(func() error {
		row, e := o.obs.LastNonNull(countryID, "sovereign_yield", asOfDate)
		if e != nil {
			return e
		}
		if row != nil {
			sovereignYield = row.SovereignYield
		}
		return nil
	})
	g.Go(func() error {
		row, e := o.obs.LastNonNull(countryID, "reserves_level", asOfDate)
		if e != nil {
			return e
		}
		if row != nil {
			reservesLevel = row.ReservesLevel
		}
		return nil
	})
	g.Go(func() error {
		row, e := o.obs.LastNonNull(countryID, "stablecoin_premium", asOfDate)
		if e != nil {
			return e
		}
		if row != nil {
			stablecoinPremium = row.StablecoinPremium
		}
		return nil
	})
	err = g.Wait()
	return
}

// readLastKnownDerived reads the last known inflation_acceleration,
// risk_spread, and reserves_change, so a non-monthly day's score still
// has a value for metrics only recomputed once a month.
func (o *Orchestrator) readLastKnownDerived(countryID int64, asOfDate string) (acceleration, riskSpread, reservesChange *float64, err error) {
	row, err := o.obs.LastNonNull(countryID, "inflation", asOfDate)
	if err != nil {
		return nil, nil, nil, err
	}
	if row != nil {
		acceleration = row.InflationAcceleration
	}
	row, err = o.obs.LastNonNull(countryID, "risk_spread", asOfDate)
	if err != nil {
		return nil, nil, nil, err
	}
	if row != nil {
		riskSpread = row.RiskSpread
	}
	row, err = o.obs.LastNonNull(countryID, "reserves_change", asOfDate)
	if err != nil {
		return nil, nil, nil, err
	}
	if row != nil {
		reservesChange = row.ReservesChange
	}
	return acceleration, riskSpread, reservesChange, nil
}

func cryptoRatio(r *adapters.CryptoResult) *float64 {
	if r == nil {
		return nil
	}
	v := r.Ratio
	return &v
}

// valueOr returns fresh if non-nil, else fallback. Used so scoring always
// sees the best known value for a metric, whether recomputed this run or
// carried over.
func valueOr(fresh, fallback *float64) *float64 {
	if fresh != nil {
		return fresh
	}
	return fallback
}

// onlyIfFetched returns v when a genuine new fetch happened this run,
// else nil so the partial-column upsert preserves the stored value
// instead of rewriting it with the same last-known reading every day.
func onlyIfFetched(fetched bool, v *float64) *float64 {
	if !fetched {
		return nil
	}
	return v
}

func addDays(date string, days int) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.AddDate(0, 0, days).Format("2006-01-02")
}

func addYears(date string, years int) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.AddDate(years, 0, 0).Format("2006-01-02")
}
