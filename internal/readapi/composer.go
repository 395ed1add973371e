// Package readapi assembles the two public read surfaces from stored
// observations: the current cross-country scoreboard and a single
// country's recent score history. Neither surface writes anything; both
// recompute component scores against the current normalization
// parameters rather than trusting whatever was stored at score time.
package readapi

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/aristath/macrostress/internal/domain"
	"github.com/aristath/macrostress/internal/scoring"
	"github.com/aristath/macrostress/internal/storage"
)

const (
	historyLimit = 30
	deltaShort   = 7
	deltaLong    = 30
)

// Composer builds scoreboard and history views from stored observations.
type Composer struct {
	countries *storage.CountryRepo
	obs       *storage.ObservationRepo
	params    *storage.NormParamRepo
	engine    *scoring.Engine
}

// New constructs a Composer.
func New(countries *storage.CountryRepo, obs *storage.ObservationRepo, params *storage.NormParamRepo, engine *scoring.Engine) *Composer {
	return &Composer{countries: countries, obs: obs, params: params, engine: engine}
}

// ScoreboardRow is one country's entry in the current stress scoreboard.
type ScoreboardRow struct {
	CountryName   string                         `json:"country_name"`
	Code          string                         `json:"code"`
	Date          string                         `json:"date"`
	Score         float64                        `json:"score"`
	Rank          int                            `json:"rank"`
	Delta7D       *float64                       `json:"delta_7d"`
	Delta30D      *float64                       `json:"delta_30d"`
	Components    map[domain.MetricName]*float64 `json:"components"`
	Partial       bool                           `json:"partial"`
	Missing       []domain.MetricName             `json:"missing,omitempty"`
	LowConfidence bool                           `json:"low_confidence"`

	countryID int64
}

// Scoreboard builds the current scoreboard: one row per country with a
// scored observation, ranked by stress score descending with ties broken
// stably by country id. Countries with no scored row yet are omitted.
func (c *Composer) Scoreboard() ([]ScoreboardRow, error) {
	countries, err := c.countries.All()
	if err != nil {
		return nil, fmt.Errorf("failed to load countries: %w", err)
	}

	rows := make([]ScoreboardRow, 0, len(countries))
	for _, country := range countries {
		row, err := c.scoreboardRow(country)
		if err != nil {
			return nil, err
		}
		if row == nil {
			continue
		}
		rows = append(rows, *row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		return rows[i].countryID < rows[j].countryID
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows, nil
}

func (c *Composer) scoreboardRow(country domain.Country) (*ScoreboardRow, error) {
	latest, err := c.obs.LatestScored(country.ID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load latest scored row for %s: %w", country.Code2, err)
	}
	if latest == nil || latest.StressScore == nil {
		return nil, nil
	}

	params, err := c.params.ByCountry(country.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load normalization params for %s: %w", country.Code2, err)
	}

	delta7, err := c.delta(country.ID, latest.Date, *latest.StressScore, deltaShort)
	if err != nil {
		return nil, err
	}
	delta30, err := c.delta(country.ID, latest.Date, *latest.StressScore, deltaLong)
	if err != nil {
		return nil, err
	}

	components := c.engine.ComponentScores(latest.Metrics(), params)

	var missing []domain.MetricName
	if raw, ok := latest.Flags["missing"]; ok {
		if names, ok := raw.([]interface{}); ok {
			for _, n := range names {
				if s, ok := n.(string); ok {
					missing = append(missing, domain.MetricName(s))
				}
			}
		}
	}
	_, partial := latest.Flags["partial"]
	_, lowConfidence := latest.Flags["low_confidence"]

	return &ScoreboardRow{
		CountryName:   country.Name,
		Code:          country.Code2,
		Date:          latest.Date,
		Score:         *latest.StressScore,
		Delta7D:       delta7,
		Delta30D:      delta30,
		Components:    components,
		Partial:       partial,
		Missing:       missing,
		LowConfidence: lowConfidence,
		countryID:     country.ID,
	}, nil
}

// delta returns currentScore minus the newest scored value at or before
// asOfDate - days, rounded to one decimal, or nil if no such row exists.
func (c *Composer) delta(countryID int64, asOfDate string, currentScore float64, days int) (*float64, error) {
	cutoff := addDays(asOfDate, -days)
	prior, err := c.obs.LatestScored(countryID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to load delta baseline for country %d: %w", countryID, err)
	}
	if prior == nil || prior.StressScore == nil {
		return nil, nil
	}
	d := round1(currentScore - *prior.StressScore)
	return &d, nil
}

// HistoryRow is one scored day in a country's recent history.
type HistoryRow struct {
	Date       string                          `json:"date"`
	Score      float64                         `json:"score"`
	Components map[domain.MetricName]*float64  `json:"components"`
}

// History returns up to the last 30 scored rows for code2 in chronological
// order, each with its component scores recomputed against the current
// normalization parameters. Returns (nil, nil) if code2 is not a known
// country; callers translate that into a 404. A known country with no
// scored history yet returns an empty, non-nil slice.
func (c *Composer) History(code2 string) ([]HistoryRow, error) {
	country, err := c.countries.ByCode2(code2)
	if err != nil {
		return nil, fmt.Errorf("failed to look up country %s: %w", code2, err)
	}
	if country == nil {
		return nil, nil
	}

	params, err := c.params.ByCountry(country.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load normalization params for %s: %w", code2, err)
	}

	rows, err := c.obs.RecentScored(country.ID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent scored rows for %s: %w", code2, err)
	}

	out := make([]HistoryRow, 0, len(rows))
	for _, row := range rows {
		if row.StressScore == nil {
			continue
		}
		out = append(out, HistoryRow{
			Date:       row.Date,
			Score:      *row.StressScore,
			Components: c.engine.ComponentScores(row.Metrics(), params),
		})
	}
	return out, nil
}

func addDays(date string, days int) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.AddDate(0, 0, days).Format("2006-01-02")
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
