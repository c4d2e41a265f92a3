// Package analysis derives price statistics, trend and market position from a series.
package analysis

import (
	"fmt"
	"math"
	"sort"

	"github.com/newthinker/cardquant/internal/core"
)

// Compute calculates the metrics of a series. quality is the externally
// supplied data quality score and is folded into the result unchanged.
// The advanced block is attached alongside the scoring inputs and leaves
// them untouched.
func Compute(s core.Series, quality float64, opts ...Option) (core.Metrics, error) {
	o := options{riskFreeRate: DefaultRiskFreeRate}
	for _, opt := range opts {
		opt(&o)
	}

	if len(s.Points) < 2 {
		return core.Metrics{}, core.WrapError(core.ErrInsufficientData,
			fmt.Errorf("%d points for %s", len(s.Points), s.Item.Key()))
	}

	points := make([]core.Observation, len(s.Points))
	copy(points, s.Points)
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Date.Before(points[j].Date)
	})

	prices := make([]float64, len(points))
	for i, p := range points {
		prices[i] = p.Price
	}

	stats := PriceStats(prices)
	return core.Metrics{
		PriceStats:       stats,
		Trend:            TrendOf(prices),
		Position:         Position(CurrentPrice(points), stats),
		Breakdown:        s.Breakdown,
		Coverage:         s.Coverage,
		TotalPoints:      len(points),
		DataQualityScore: quality,
		Advanced:         Advanced(points, o.riskFreeRate),
	}, nil
}

// PriceStats returns average, range and population standard deviation.
func PriceStats(prices []float64) core.PriceStats {
	if len(prices) == 0 {
		return core.PriceStats{}
	}

	stats := core.PriceStats{Minimum: prices[0], Maximum: prices[0]}
	var sum float64
	for _, p := range prices {
		sum += p
		stats.Minimum = min(stats.Minimum, p)
		stats.Maximum = max(stats.Maximum, p)
	}
	stats.Average = sum / float64(len(prices))

	var variance float64
	for _, p := range prices {
		variance += (p - stats.Average) * (p - stats.Average)
	}
	stats.Volatility = math.Sqrt(variance / float64(len(prices)))
	if stats.Average > 0 {
		stats.VolatilityPercent = stats.Volatility / stats.Average * 100
	}
	return stats
}

// TrendOf compares the mean of the first third of chronological prices with
// the mean of the last third. Interior points are ignored.
func TrendOf(prices []float64) core.Trend {
	trend := core.Trend{Direction: core.TrendStable, Sample: len(prices)}

	third := len(prices) / 3
	if third == 0 {
		return trend
	}

	early := mean(prices[:third])
	late := mean(prices[len(prices)-third:])
	switch {
	case late > early:
		trend.Direction = core.TrendRising
	case late < early:
		trend.Direction = core.TrendFalling
	}
	if early > 0 {
		trend.Strength = math.Abs(late-early) / early
	}
	return trend
}

// CurrentPrice is the mean price on the latest date of chronologically
// ordered points.
func CurrentPrice(points []core.Observation) float64 {
	if len(points) == 0 {
		return 0
	}
	latest := points[len(points)-1].Date

	var sum float64
	var n int
	for i := len(points) - 1; i >= 0 && points[i].Date.Equal(latest); i-- {
		sum += points[i].Price
		n++
	}
	return sum / float64(n)
}

// Position expresses the current price as a percentage of the observed
// maximum and minimum.
func Position(current float64, stats core.PriceStats) core.MarketPosition {
	pos := core.MarketPosition{CurrentPrice: current}
	if stats.Maximum > 0 {
		pos.CurrentVsMax = current / stats.Maximum * 100
	}
	if stats.Minimum > 0 {
		pos.CurrentVsMin = current / stats.Minimum * 100
	}
	return pos
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
