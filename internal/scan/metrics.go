package scan

import (
	"fmt"
	"slices"

	"github.com/MJE43/baccarat-roads/internal/games"
	"github.com/MJE43/baccarat-roads/internal/roads"
)

// Metric names a per-shoe statistic.
type Metric string

const (
	MetricHands          Metric = "hands"
	MetricBankerWins     Metric = "banker_wins"
	MetricPlayerWins     Metric = "player_wins"
	MetricTies           Metric = "ties"
	MetricPlayerPairs    Metric = "player_pairs"
	MetricBankerPairs    Metric = "banker_pairs"
	MetricNaturals       Metric = "naturals"
	MetricLongestStreak  Metric = "longest_streak"
	MetricBigRoadColumns Metric = "big_road_columns"
	MetricDragonTails    Metric = "dragon_tails"
)

// shoeView is one dealt shoe. The Big Road is built on first use.
type shoeView struct {
	history []games.HandResult
	road    *roads.BigRoadResult
}

func (v *shoeView) bigRoad() *roads.BigRoadResult {
	if v.road == nil {
		v.road = roads.BigRoad(v.history)
	}
	return v.road
}

func (v *shoeView) count(pred func(games.HandResult) bool) float64 {
	n := 0
	for _, h := range v.history {
		if pred(h) {
			n++
		}
	}
	return float64(n)
}

type metricFunc func(*shoeView) float64

func winnerIs(w games.Winner) metricFunc {
	return func(v *shoeView) float64 {
		return v.count(func(h games.HandResult) bool { return h.Winner == w })
	}
}

var metricFuncs = map[Metric]metricFunc{
	MetricHands:      func(v *shoeView) float64 { return float64(len(v.history)) },
	MetricBankerWins: winnerIs(games.Banker),
	MetricPlayerWins: winnerIs(games.Player),
	MetricTies:       winnerIs(games.Tie),
	MetricPlayerPairs: func(v *shoeView) float64 {
		return v.count(func(h games.HandResult) bool { return h.IsPairPlayer })
	},
	MetricBankerPairs: func(v *shoeView) float64 {
		return v.count(func(h games.HandResult) bool { return h.IsPairBanker })
	},
	MetricNaturals: func(v *shoeView) float64 {
		return v.count(games.HandResult.Natural)
	},
	MetricLongestStreak: func(v *shoeView) float64 {
		longest := 0
		for _, s := range v.bigRoad().Streaks() {
			longest = max(longest, s.Length)
		}
		return float64(longest)
	},
	// Physical columns, dragon tails included.
	MetricBigRoadColumns: func(v *shoeView) float64 {
		return float64(v.bigRoad().Matrix.Width())
	},
	MetricDragonTails: func(v *shoeView) float64 {
		return float64(v.bigRoad().DragonTails())
	},
}

// Metrics lists the supported metric names in sorted order.
func Metrics() []Metric {
	out := make([]Metric, 0, len(metricFuncs))
	for m := range metricFuncs {
		out = append(out, m)
	}
	slices.Sort(out)
	return out
}

// ParseMetric validates a metric name.
func ParseMetric(s string) (Metric, error) {
	m := Metric(s)
	if _, ok := metricFuncs[m]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownMetric, s)
	}
	return m, nil
}

// Measure computes metric over a dealt shoe history.
func Measure(metric Metric, history []games.HandResult) (float64, error) {
	fn, ok := metricFuncs[metric]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
	}
	return fn(&shoeView{history: history}), nil
}
