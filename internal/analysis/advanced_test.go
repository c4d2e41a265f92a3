package analysis

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/newthinker/cardquant/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pricesFrom(start float64, n int) []float64 {
	prices := make([]float64, n)
	for i := range prices {
		prices[i] = start + float64(i)
	}
	return prices
}

func TestAdvanced_SteadyClimb(t *testing.T) {
	m, err := Compute(seriesOf(pricesFrom(100, 30)...), 0.8)
	require.NoError(t, err)
	adv := m.Advanced
	require.NotNil(t, adv)

	assert.Equal(t, 29.0, adv.Returns.TotalReturn)
	assert.Equal(t, 29, adv.Returns.DaysHeld)
	assert.Equal(t, 100.0, adv.Performance.WinRate)
	assert.Equal(t, float64(noLossProfitFactor), adv.Performance.ProfitFactor)
	assert.Equal(t, 0.0, adv.Risk.MaxDrawdown)
	assert.Nil(t, adv.Risk.RecoveryDays)
	assert.Greater(t, adv.Risk.SharpeRatio, 1.5)

	tech := adv.Technical
	require.NotNil(t, tech)
	assert.Equal(t, 119.5, tech.SMA20)
	assert.Equal(t, 124.5, tech.SMA10)
	assert.Equal(t, core.SignalBullish, tech.SMA20Signal)
	assert.Equal(t, core.SignalBullish, tech.EMA20Signal)
	assert.Equal(t, 100.0, tech.RSI)
	assert.Equal(t, core.SignalOverbought, tech.RSISignal)
	assert.Equal(t, 0.901, tech.BollingerPosition)
	assert.Equal(t, core.SignalOverbought, tech.BollingerSignal)
	assert.Equal(t, 7.5, tech.Momentum10)
	assert.Equal(t, 17.27, tech.Momentum20)
	assert.Equal(t, core.SignalStrong, tech.TrendStrength)

	timing := adv.Timing
	require.NotNil(t, timing)
	assert.Equal(t, 107.25, timing.Support)
	assert.Equal(t, 121.75, timing.Resistance)
	assert.Equal(t, 1.0, timing.Position90)
	assert.Equal(t, core.SignalSell, timing.EntrySignal)
	assert.Equal(t, 0.0, timing.TimingScore)

	require.NotNil(t, adv.VaR)
	assert.Greater(t, adv.VaR.Historical95, 0.0, "a series without losses has a positive tail")

	// CAGR, Sharpe and win rate at 25 each plus two bullish crossovers
	assert.Equal(t, 90, adv.Grade.Score)
	assert.Equal(t, "A+", adv.Grade.Grade)
	assert.Equal(t, core.ActionBuy, adv.Grade.Suggestion)
	assert.Contains(t, adv.Grade.Reasoning, "Mixed technical indicators")
}

func TestAdvanced_Drawdown(t *testing.T) {
	m, err := Compute(seriesOf(100, 120, 90, 130), 0.5)
	require.NoError(t, err)
	adv := m.Advanced
	require.NotNil(t, adv)

	assert.Equal(t, -25.0, adv.Risk.MaxDrawdown)
	assert.Equal(t, 1, adv.Risk.DrawdownDays)
	require.NotNil(t, adv.Risk.RecoveryDays)
	assert.Equal(t, 1, *adv.Risk.RecoveryDays)
	assert.Greater(t, adv.Risk.CalmarRatio, 0.0)

	assert.Equal(t, 66.67, adv.Performance.WinRate)
	assert.Equal(t, 32.22, adv.Performance.AverageWin)
	assert.Equal(t, -25.0, adv.Performance.AverageLoss)
	assert.Equal(t, 2.58, adv.Performance.ProfitFactor)
	assert.Equal(t, 3, adv.Performance.Periods)
	assert.Equal(t, 44.44, adv.Returns.BestPeriod)
	assert.Equal(t, -25.0, adv.Returns.WorstPeriod)

	assert.Nil(t, adv.Technical)
	assert.Nil(t, adv.Timing)
	assert.Nil(t, adv.VaR)
}

func TestAdvanced_ConstantGrowth(t *testing.T) {
	m, err := Compute(seriesOf(100, 110, 121), 0.5)
	require.NoError(t, err)
	adv := m.Advanced
	require.NotNil(t, adv)

	assert.Equal(t, 21.0, adv.Returns.TotalReturn)
	assert.Equal(t, 0.0, adv.Returns.AnnualizedVolatility)
	assert.Equal(t, 0.0, adv.Risk.SharpeRatio, "zero volatility has no defined Sharpe ratio")
	assert.Equal(t, 0.0, adv.Risk.SortinoRatio)
	assert.Equal(t, 100.0, adv.Performance.WinRate)
	assert.Equal(t, float64(noLossProfitFactor), adv.Performance.ProfitFactor)

	// Only the RSI component counts when technical data is missing.
	assert.Equal(t, 25+0+25+5, adv.Grade.Score)
	assert.Equal(t, "C+", adv.Grade.Grade)
	assert.Equal(t, core.ActionHold, adv.Grade.Suggestion)
}

func TestAdvanced_SameDayPointsAveraged(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }
	points := []core.Observation{
		{Date: day(1), Price: 90},
		{Date: day(1), Price: 110},
		{Date: day(2), Price: 120},
	}

	adv := Advanced(points, DefaultRiskFreeRate)
	require.NotNil(t, adv)
	assert.Equal(t, 20.0, adv.Returns.TotalReturn)
	assert.Equal(t, 1, adv.Performance.Periods)
}

func TestAdvanced_SingleDate(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	adv := Advanced([]core.Observation{{Date: day, Price: 90}, {Date: day, Price: 95}}, DefaultRiskFreeRate)
	assert.Nil(t, adv)

	grade := Grade(adv)
	assert.Equal(t, "F", grade.Grade)
	assert.Equal(t, core.ActionAvoid, grade.Suggestion)
}

func TestAdvanced_RiskFreeRate(t *testing.T) {
	s := seriesOf(100, 120, 90, 130, 125, 140)

	base, err := Compute(s, 0.5)
	require.NoError(t, err)
	high, err := Compute(s, 0.5, WithRiskFreeRate(0.5))
	require.NoError(t, err)

	assert.Less(t, high.Advanced.Risk.SharpeRatio, base.Advanced.Risk.SharpeRatio)
	assert.Equal(t, base.PriceStats, high.PriceStats, "scoring inputs ignore the rate")
	assert.Equal(t, base.Trend, high.Trend)
}

func TestAdvanced_EncodesExtremeGrowth(t *testing.T) {
	// a tenfold jump in one day annualizes beyond float64 range
	m, err := Compute(seriesOf(1, 10), 0.5)
	require.NoError(t, err)

	_, err = json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, 900.0, m.Advanced.Returns.TotalReturn)
}

func TestLetterGrade(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{100, "A+"}, {85, "A+"}, {84, "A"}, {75, "A-"}, {70, "B+"},
		{60, "B-"}, {50, "C"}, {45, "C-"}, {30, "D-"}, {29, "F"}, {0, "F"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, letterGrade(tt.score), "score %d", tt.score)
	}
}

func TestQuantile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5}
	assert.Equal(t, 2.0, quantile(sorted, 0.25))
	assert.Equal(t, 4.0, quantile(sorted, 0.75))
	assert.InDelta(t, 1.04, quantile(sorted, 0.01), 1e-9)
	assert.Equal(t, 0.0, quantile(nil, 0.5))
}
