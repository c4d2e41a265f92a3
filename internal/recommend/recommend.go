// Package recommend scores metrics into an action, confidence, risk tier and
// target price band.
package recommend

import (
	"fmt"

	"github.com/newthinker/cardquant/internal/core"
	"github.com/shopspring/decimal"
)

// BaseScore is the starting score before any factor is applied.
const BaseScore = 50.0

// Band maps a score range to an action. A band matches scores at or above
// MinScore that no earlier band matched.
type Band struct {
	MinScore   float64
	Action     core.Action
	Risk       func(volatilityPercent float64) core.RiskLevel
	Confidence func(base float64) float64
}

func fixedRisk(r core.RiskLevel) func(float64) core.RiskLevel {
	return func(float64) core.RiskLevel { return r }
}

func unchanged(base float64) float64 { return base }

// DecisionTable is ordered from the highest band down.
var DecisionTable = []Band{
	{
		MinScore: 70,
		Action:   core.ActionBuy,
		Risk: func(vp float64) core.RiskLevel {
			if vp < 25 {
				return core.RiskLow
			}
			return core.RiskMedium
		},
		Confidence: func(base float64) float64 { return min(0.95, base+0.1) },
	},
	{MinScore: 50, Action: core.ActionHold, Risk: fixedRisk(core.RiskMedium), Confidence: unchanged},
	{MinScore: 25, Action: core.ActionHold, Risk: fixedRisk(core.RiskHigh), Confidence: unchanged},
	{
		MinScore:   0,
		Action:     core.ActionAvoid,
		Risk:       fixedRisk(core.RiskHigh),
		Confidence: func(base float64) float64 { return max(0.3, base-0.1) },
	},
}

// Lookup returns the band for a clamped score.
func Lookup(score float64) Band {
	for _, b := range DecisionTable {
		if score >= b.MinScore {
			return b
		}
	}
	return DecisionTable[len(DecisionTable)-1]
}

// Recommend scores the metrics. It is a pure function of its input.
func Recommend(m core.Metrics) core.Recommendation {
	score := BaseScore
	var reasoning []string
	note := func(delta float64, format string, args ...any) {
		score += delta
		reasoning = append(reasoning, fmt.Sprintf(format, args...))
	}

	quality := m.DataQualityScore
	switch {
	case quality >= 0.8:
		note(15, "High-quality data (score: %.2f) increases confidence", quality)
	case quality < 0.5:
		note(-10, "Limited data quality (score: %.2f) reduces confidence", quality)
	}

	vp := m.PriceStats.VolatilityPercent
	switch {
	case vp < 20:
		note(15, "Low volatility (%.1f%%) indicates stable pricing", vp)
	case vp > 40:
		note(-15, "High volatility (%.1f%%) indicates risky investment", vp)
	}

	switch {
	case m.Trend.Direction == core.TrendRising && m.Trend.Strength > 0.10:
		note(15, "Strong upward trend (+%.1f%%)", m.Trend.Strength*100)
	case m.Trend.Direction == core.TrendFalling && m.Trend.Strength > 0.10:
		note(-15, "Downward trend (-%.1f%%)", m.Trend.Strength*100)
	}

	vsMax := m.Position.CurrentVsMax
	switch {
	case vsMax < 80:
		note(10, "Currently %.0f%% below peak price", 100-vsMax)
	case vsMax >= 95:
		note(-5, "Currently near peak price (%.1f%% of maximum)", vsMax)
	}

	switch n := m.SourceCount(); {
	case n > 1:
		note(10, "Data validated across %d sources", n)
	case n == 1:
		note(0, "Single data source - limited validation")
	}

	score = min(100, max(0, score))
	base := BaseConfidence(quality)
	band := Lookup(score)
	buy, sell := TargetBand(m.PriceStats.Average, vp)

	return core.Recommendation{
		Action:          band.Action,
		Confidence:      band.Confidence(base),
		Risk:            band.Risk(vp),
		Score:           score,
		Reasoning:       reasoning,
		TargetBuyPrice:  buy,
		TargetSellPrice: sell,
	}
}

// BaseConfidence never drops below 0.3 on data quality alone.
func BaseConfidence(quality float64) float64 {
	return quality*0.7 + 0.3
}

// TargetBand returns buy and sell targets equidistant from the average,
// rounded to cents.
func TargetBand(average, volatilityPercent float64) (buy, sell float64) {
	avg := decimal.NewFromFloat(average)
	margin := decimal.NewFromFloat(0.1).Add(decimal.NewFromFloat(volatilityPercent).Div(decimal.NewFromInt(200)))
	one := decimal.NewFromInt(1)

	buy = avg.Mul(one.Sub(margin)).Round(2).InexactFloat64()
	sell = avg.Mul(one.Add(margin)).Round(2).InexactFloat64()
	return buy, sell
}
