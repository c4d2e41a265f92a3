package analysis

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/newthinker/cardquant/internal/core"
	"github.com/newthinker/cardquant/internal/indicator"
	"github.com/shopspring/decimal"
)

const (
	// DefaultRiskFreeRate is the annual rate used for Sharpe and Sortino.
	DefaultRiskFreeRate = 0.045

	daysPerYear = 365.25

	// z-scores of the 5th and 1st percentiles of the standard normal
	z95 = -1.6448536269514722
	z99 = -2.3263478740408408

	technicalMinPoints = 20
	varMinReturns      = 10
	noLossProfitFactor = 999
)

// Option configures Compute.
type Option func(*options)

type options struct {
	riskFreeRate float64
}

// WithRiskFreeRate sets the annual risk free rate used by the advanced block.
func WithRiskFreeRate(rate float64) Option {
	return func(o *options) {
		o.riskFreeRate = rate
	}
}

// Advanced computes return, risk, technical and timing figures over the
// daily mean price line of chronologically ordered points. Periodic returns
// run between consecutive dates, so n dates yield n-1 returns.
func Advanced(points []core.Observation, riskFreeRate float64) *core.AdvancedMetrics {
	dates, prices := dailyLine(points)
	if len(prices) < 2 || prices[0] <= 0 {
		return nil
	}

	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] <= 0 {
			return nil
		}
		returns = append(returns, prices[i]/prices[i-1]-1)
	}

	adv := &core.AdvancedMetrics{}
	cagr := returnMetrics(adv, dates, prices, returns)
	riskMetrics(adv, dates, prices, returns, cagr, riskFreeRate)
	performanceMetrics(adv, prices, returns)
	if len(prices) >= technicalMinPoints {
		adv.Technical = technicalIndicators(prices)
		adv.Timing = marketTiming(prices)
	}
	if len(returns) >= varMinReturns {
		adv.VaR = valueAtRisk(prices, returns)
	}
	adv.Grade = Grade(adv)
	return adv
}

// dailyLine collapses points sharing a date into their mean price.
func dailyLine(points []core.Observation) ([]time.Time, []float64) {
	var dates []time.Time
	var prices []float64
	var sum float64
	var n int
	for i, p := range points {
		if i > 0 && !p.Date.Equal(points[i-1].Date) {
			prices = append(prices, sum/float64(n))
			sum, n = 0, 0
		}
		if n == 0 {
			dates = append(dates, p.Date)
		}
		sum += p.Price
		n++
	}
	if n > 0 {
		prices = append(prices, sum/float64(n))
	}
	return dates, prices
}

func returnMetrics(adv *core.AdvancedMetrics, dates []time.Time, prices, returns []float64) float64 {
	first, last := prices[0], prices[len(prices)-1]
	days := int(dates[len(dates)-1].Sub(dates[0]).Hours() / 24)
	years := max(float64(days)/daysPerYear, 1/daysPerYear)
	cagr := math.Pow(last/first, 1/years) - 1

	best, worst := returns[0], returns[0]
	for _, r := range returns {
		best = max(best, r)
		worst = min(worst, r)
	}

	adv.Returns = core.ReturnMetrics{
		TotalReturn:          pct(last/first-1, 2),
		CAGR:                 pct(cagr, 2),
		AnnualizedVolatility: pct(sampleStd(returns)*math.Sqrt(daysPerYear), 2),
		DailyReturnAvg:       pct(mean(returns), 4),
		BestPeriod:           pct(best, 2),
		WorstPeriod:          pct(worst, 2),
		DaysHeld:             days,
		YearsHeld:            round(years, 2),
	}
	return cagr
}

func riskMetrics(adv *core.AdvancedMetrics, dates []time.Time, prices, returns []float64, cagr, rf float64) {
	var risk core.RiskMetrics

	avg, sd := mean(returns), sampleStd(returns)
	if sd > 0 {
		risk.SharpeRatio = round((avg-rf/daysPerYear)/sd*math.Sqrt(daysPerYear), 3)
	}

	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if dd := sampleStd(downside) * math.Sqrt(daysPerYear); dd > 0 {
		risk.SortinoRatio = round((avg*daysPerYear-rf)/dd, 3)
	}

	peak, peakAt := prices[0], 0
	maxDD, ddStart, ddEnd := 0.0, 0, 0
	for i, p := range prices {
		if p > peak {
			peak, peakAt = p, i
		}
		if dd := (p - peak) / peak; dd < maxDD {
			maxDD, ddStart, ddEnd = dd, peakAt, i
		}
	}
	risk.MaxDrawdown = pct(maxDD, 2)
	if maxDD < 0 {
		risk.DrawdownDays = daysBetween(dates[ddStart], dates[ddEnd])
		risk.CalmarRatio = round(cagr/math.Abs(maxDD), 3)
		for i := ddEnd + 1; i < len(prices); i++ {
			if prices[i] >= prices[ddStart] {
				d := daysBetween(dates[ddEnd], dates[i])
				risk.RecoveryDays = &d
				break
			}
		}
	}
	adv.Risk = risk
}

func performanceMetrics(adv *core.AdvancedMetrics, prices, returns []float64) {
	var wins, losses []float64
	for _, r := range returns {
		switch {
		case r > 0:
			wins = append(wins, r)
		case r < 0:
			losses = append(losses, r)
		}
	}

	perf := core.PerformanceMetrics{
		WinRate: round(float64(len(wins))/float64(len(returns))*100, 2),
		Periods: len(returns),
	}
	if len(wins) > 0 {
		perf.AverageWin = pct(mean(wins), 2)
	}
	if len(losses) > 0 {
		perf.AverageLoss = pct(mean(losses), 2)
		perf.ProfitFactor = round(math.Abs(sum(wins)/sum(losses)), 2)
	} else {
		perf.ProfitFactor = noLossProfitFactor
	}
	if m := mean(prices); m > 0 {
		perf.PriceStability = round(1-sampleStd(prices)/m, 3)
	}
	adv.Performance = perf
}

func technicalIndicators(prices []float64) *core.TechnicalIndicators {
	current := prices[len(prices)-1]
	sma10, _ := indicator.Last(indicator.SMA(prices, 10))
	sma20, _ := indicator.Last(indicator.SMA(prices, 20))
	ema10, _ := indicator.Last(indicator.EMA(prices, 10))
	ema20, _ := indicator.Last(indicator.EMA(prices, 20))

	tech := &core.TechnicalIndicators{
		SMA10:           round(sma10, 2),
		SMA20:           round(sma20, 2),
		EMA10:           round(ema10, 2),
		EMA20:           round(ema20, 2),
		SMA20Signal:     crossSignal(current, sma20),
		EMA20Signal:     crossSignal(current, ema20),
		BollingerSignal: core.SignalNeutral,
		RSI:             50,
		RSISignal:       core.SignalNeutral,
	}

	if band, ok := indicator.Bollinger(prices, 20, 2); ok {
		pos := band.Position(current)
		tech.BollingerPosition = round(pos, 3)
		tech.BollingerSignal = levelSignal(pos, 0.8, 0.2)
	}
	if rsi, ok := indicator.RSI(prices, 14); ok {
		tech.RSI = round(rsi, 2)
		tech.RSISignal = levelSignal(rsi, 70, 30)
	}

	m10, _ := indicator.Momentum(prices, 10)
	m20, _ := indicator.Momentum(prices, 20)
	tech.Momentum10 = round(m10, 2)
	tech.Momentum20 = round(m20, 2)
	switch abs := math.Abs(m20); {
	case abs > 10:
		tech.TrendStrength = core.SignalStrong
	case abs > 5:
		tech.TrendStrength = core.SignalModerate
	default:
		tech.TrendStrength = core.SignalWeak
	}
	return tech
}

func valueAtRisk(prices, returns []float64) *core.ValueAtRisk {
	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	var95, var99 := quantile(sorted, 0.05), quantile(sorted, 0.01)
	avg, sd := mean(returns), sampleStd(returns)
	current := prices[len(prices)-1]

	return &core.ValueAtRisk{
		Historical95:        pct(var95, 2),
		Historical99:        pct(var99, 2),
		Parametric95:        pct(avg+z95*sd, 2),
		Parametric99:        pct(avg+z99*sd, 2),
		ExpectedShortfall95: pct(tailMean(sorted, var95), 2),
		ExpectedShortfall99: pct(tailMean(sorted, var99), 2),
		DollarVaR95:         round(current*var95, 2),
		DollarVaR99:         round(current*var99, 2),
	}
}

func marketTiming(prices []float64) *core.MarketTiming {
	current := prices[len(prices)-1]
	recent90 := tail(prices, 90)

	sorted := make([]float64, len(recent90))
	copy(sorted, recent90)
	sort.Float64s(sorted)
	support, resistance := quantile(sorted, 0.25), quantile(sorted, 0.75)

	pos90 := rangePosition(current, recent90)
	timing := &core.MarketTiming{
		Position30:  round(rangePosition(current, tail(prices, 30)), 3),
		Position90:  round(pos90, 3),
		Support:     round(support, 2),
		Resistance:  round(resistance, 2),
		EntrySignal: core.SignalHold,
		TimingScore: round(1-pos90, 2),
	}
	if support > 0 {
		timing.DistanceToSupport = round((current-support)/support*100, 2)
	}
	if current > 0 {
		timing.DistanceToResistance = round((resistance-current)/current*100, 2)
	}
	switch {
	case pos90 < 0.3:
		timing.EntrySignal = core.SignalBuy
	case pos90 > 0.7:
		timing.EntrySignal = core.SignalSell
	}
	return timing
}

// Grade scores CAGR, Sharpe, win rate and technical agreement at up to 25
// points each. Missing technical data still counts RSI as not overbought.
func Grade(adv *core.AdvancedMetrics) core.InvestmentGrade {
	if adv == nil {
		return core.InvestmentGrade{Grade: "F", Reasoning: []string{"Insufficient data for analysis"}, Suggestion: core.ActionAvoid}
	}

	var g core.InvestmentGrade
	score := func(v float64, label, unit string, tiers ...float64) {
		points := []int{25, 20, 10}
		words := []string{"Excellent", "Good", "Moderate"}
		for i, threshold := range tiers {
			if v > threshold {
				g.Score += points[i]
				g.Reasoning = append(g.Reasoning, fmt.Sprintf("%s %s of %s", words[i], label, formatFigure(v, unit)))
				return
			}
		}
		g.Reasoning = append(g.Reasoning, fmt.Sprintf("Poor %s of %s", label, formatFigure(v, unit)))
	}
	score(adv.Returns.CAGR, "CAGR", "%", 15, 8, 0)
	score(adv.Risk.SharpeRatio, "Sharpe ratio", "", 1.5, 1.0, 0.5)
	score(adv.Performance.WinRate, "win rate", "%", 70, 60, 50)

	bullish := 0
	if t := adv.Technical; t != nil {
		if t.SMA20Signal == core.SignalBullish {
			bullish++
		}
		if t.EMA20Signal == core.SignalBullish {
			bullish++
		}
	}
	if adv.Technical == nil || adv.Technical.RSISignal != core.SignalOverbought {
		bullish++
	}
	if adv.Timing != nil && adv.Timing.EntrySignal == core.SignalBuy {
		bullish++
	}
	switch {
	case bullish >= 3:
		g.Score += 25
		g.Reasoning = append(g.Reasoning, "Strong technical indicators")
	case bullish == 2:
		g.Score += 15
		g.Reasoning = append(g.Reasoning, "Mixed technical indicators")
	case bullish == 1:
		g.Score += 5
		g.Reasoning = append(g.Reasoning, "Weak technical indicators")
	default:
		g.Reasoning = append(g.Reasoning, "Bearish technical indicators")
	}

	g.Grade = letterGrade(g.Score)
	switch {
	case g.Score >= 70:
		g.Suggestion = core.ActionBuy
	case g.Score >= 50:
		g.Suggestion = core.ActionHold
	default:
		g.Suggestion = core.ActionAvoid
	}
	return g
}

var gradeBands = []struct {
	min   int
	grade string
}{
	{85, "A+"}, {80, "A"}, {75, "A-"},
	{70, "B+"}, {65, "B"}, {60, "B-"},
	{55, "C+"}, {50, "C"}, {45, "C-"},
	{40, "D+"}, {35, "D"}, {30, "D-"},
}

func letterGrade(score int) string {
	for _, b := range gradeBands {
		if score >= b.min {
			return b.grade
		}
	}
	return "F"
}

func formatFigure(v float64, unit string) string {
	if unit == "%" {
		return fmt.Sprintf("%.1f%%", v)
	}
	return fmt.Sprintf("%.2f", v)
}

func crossSignal(price, average float64) core.Signal {
	if price > average {
		return core.SignalBullish
	}
	return core.SignalBearish
}

func levelSignal(v, high, low float64) core.Signal {
	switch {
	case v > high:
		return core.SignalOverbought
	case v < low:
		return core.SignalOversold
	}
	return core.SignalNeutral
}

func rangePosition(price float64, window []float64) float64 {
	lo, hi := window[0], window[0]
	for _, p := range window {
		lo = min(lo, p)
		hi = max(hi, p)
	}
	if hi == lo {
		return 0.5
	}
	return (price - lo) / (hi - lo)
}

// quantile interpolates linearly between the closest ranks of sorted values.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

func tailMean(sorted []float64, cutoff float64) float64 {
	var s float64
	var n int
	for _, v := range sorted {
		if v > cutoff {
			break
		}
		s += v
		n++
	}
	if n == 0 {
		return 0
	}
	return s / float64(n)
}

func tail(values []float64, n int) []float64 {
	if len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}

func sampleStd(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var ss float64
	for _, v := range values {
		ss += (v - m) * (v - m)
	}
	return math.Sqrt(ss / float64(len(values)-1))
}

func sum(values []float64) float64 {
	var s float64
	for _, v := range values {
		s += v
	}
	return s
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

func pct(fraction float64, places int32) float64 {
	return round(fraction*100, places)
}

// round rounds half away from zero. Non-finite inputs collapse to 0 so the
// block stays JSON encodable.
func round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
