package filter

import (
	"context"
	"fmt"

	"github.com/newthinker/cardquant/internal/core"
)

// DefaultIQRMultiplier is the k in [Q1 - k*IQR, Q3 + k*IQR].
const DefaultIQRMultiplier = 1.5

// DefaultMinGroupSize is the smallest group the statistical tier will judge.
const DefaultMinGroupSize = 4

type groupKey struct {
	source    core.Source
	condition core.Condition
}

// StatisticalTier removes IQR outliers within each (source, condition) group.
type StatisticalTier struct {
	multiplier   float64
	minGroupSize int
}

// NewStatisticalTier creates the tier; non-positive arguments select the defaults.
func NewStatisticalTier(multiplier float64, minGroupSize int) *StatisticalTier {
	if multiplier <= 0 {
		multiplier = DefaultIQRMultiplier
	}
	if minGroupSize < DefaultMinGroupSize {
		minGroupSize = DefaultMinGroupSize
	}
	return &StatisticalTier{multiplier: multiplier, minGroupSize: minGroupSize}
}

// Name returns the tier name.
func (t *StatisticalTier) Name() string {
	return TierStatistical
}

// Bounds returns the inclusive keep range for a group of prices.
func (t *StatisticalTier) Bounds(prices []float64) (lower, upper float64) {
	q1, q3 := Quartiles(prices)
	iqr := q3 - q1
	return q1 - t.multiplier*iqr, q3 + t.multiplier*iqr
}

// Filter keeps input order; groups smaller than the minimum size pass untouched.
func (t *StatisticalTier) Filter(ctx context.Context, obs []core.Observation, item core.Item) ([]core.Observation, []core.Removal, error) {
	groups := make(map[groupKey][]float64)
	for _, o := range obs {
		k := groupKey{o.Source, o.Condition}
		groups[k] = append(groups[k], o.Price)
	}

	type bounds struct{ lower, upper float64 }
	limits := make(map[groupKey]bounds, len(groups))
	for k, prices := range groups {
		if len(prices) < t.minGroupSize {
			continue
		}
		lower, upper := t.Bounds(prices)
		limits[k] = bounds{lower, upper}
	}

	kept := make([]core.Observation, 0, len(obs))
	var removed []core.Removal
	for _, o := range obs {
		k := groupKey{o.Source, o.Condition}
		b, judged := limits[k]
		if !judged || (o.Price >= b.lower && o.Price <= b.upper) {
			kept = append(kept, o)
			continue
		}

		kind := "extreme_high"
		if o.Price < b.lower {
			kind = "extreme_low"
		}
		removed = append(removed, core.Removal{
			Observation: o,
			Tier:        TierStatistical,
			Reason: fmt.Sprintf("statistical outlier (%s): $%.2f outside $%.2f-$%.2f for %s/%s",
				kind, o.Price, b.lower, b.upper, o.Source, o.Condition),
		})
	}
	return kept, removed, nil
}
