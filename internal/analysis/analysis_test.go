package analysis

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/newthinker/cardquant/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seriesOf(prices ...float64) core.Series {
	s := core.Series{Item: core.Item{Type: core.ItemSealed, ID: "3", Name: "Brilliant Stars Booster Box"}}
	for i, p := range prices {
		s.Points = append(s.Points, core.Observation{
			Date:      time.Date(2024, 2, i+1, 0, 0, 0, 0, time.UTC),
			Price:     p,
			Source:    core.SourceMarketplaceSold,
			Condition: core.ConditionSealed,
		})
	}
	s.Coverage = core.DateRange{Start: s.Points[0].Date, End: s.Points[len(s.Points)-1].Date}
	return s
}

func TestTrendOf(t *testing.T) {
	tests := []struct {
		name      string
		prices    []float64
		direction core.TrendDirection
		strength  float64
	}{
		{"rising thirds", []float64{10, 10, 10, 20, 20, 20}, core.TrendRising, 1.0},
		{"falling", []float64{20, 18, 16, 14, 12, 10}, core.TrendFalling, (19.0 - 11.0) / 19.0},
		{"flat ends with noisy middle", []float64{10, 50, 1, 10}, core.TrendStable, 0},
		{"two points", []float64{10, 30}, core.TrendStable, 0},
		{"three points", []float64{10, 99, 12}, core.TrendRising, 0.2},
		{"seven points use two per third", []float64{10, 10, 0, 0, 0, 15, 15}, core.TrendRising, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trend := TrendOf(tt.prices)
			assert.Equal(t, tt.direction, trend.Direction)
			assert.InDelta(t, tt.strength, trend.Strength, 1e-9)
			assert.Equal(t, len(tt.prices), trend.Sample)
		})
	}
}

func TestPriceStats(t *testing.T) {
	stats := PriceStats([]float64{2, 4, 4, 4, 5, 5, 7, 9})

	assert.Equal(t, 5.0, stats.Average)
	assert.Equal(t, 2.0, stats.Minimum)
	assert.Equal(t, 9.0, stats.Maximum)
	assert.InDelta(t, 2.0, stats.Volatility, 1e-9)
	assert.InDelta(t, 40.0, stats.VolatilityPercent, 1e-9)
}

func TestCompute(t *testing.T) {
	s := seriesOf(100, 120, 80, 90)
	s.Breakdown = map[core.Source]core.SourceStats{core.SourceMarketplaceSold: {Count: 4}}

	m, err := Compute(s, 0.45)
	require.NoError(t, err)

	assert.Equal(t, 97.5, m.PriceStats.Average)
	assert.Equal(t, 4, m.TotalPoints)
	assert.Equal(t, 0.45, m.DataQualityScore)
	assert.Equal(t, 90.0, m.Position.CurrentPrice)
	assert.InDelta(t, 75.0, m.Position.CurrentVsMax, 1e-9)
	assert.InDelta(t, 112.5, m.Position.CurrentVsMin, 1e-9)
	assert.Equal(t, s.Coverage, m.Coverage)
	assert.Equal(t, 1, m.SourceCount())
	assert.Equal(t, core.TrendFalling, m.Trend.Direction)
}

func TestCompute_TwoPoints(t *testing.T) {
	m, err := Compute(seriesOf(100, 102), 0.2)
	require.NoError(t, err)

	assert.Equal(t, core.TrendStable, m.Trend.Direction)
	assert.Zero(t, m.Trend.Strength)
	assert.InDelta(t, 1.0, m.PriceStats.Volatility, 1e-9)
	assert.False(t, math.IsNaN(m.PriceStats.VolatilityPercent))
}

func TestCompute_SameDayCurrentPrice(t *testing.T) {
	s := seriesOf(100, 110, 130)
	s.Points[2].Date = s.Points[1].Date
	s.Points[2].Source = core.SourcePriceIndex

	m, err := Compute(s, 1)
	require.NoError(t, err)
	assert.Equal(t, 120.0, m.Position.CurrentPrice)
}

func TestCompute_InsufficientData(t *testing.T) {
	_, err := Compute(seriesOf(100), 1)
	assert.True(t, errors.Is(err, core.ErrInsufficientData))
}
