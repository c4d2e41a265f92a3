// Package indicator implements moving-window technical indicators over price slices.
package indicator

import "math"

// SMA calculates Simple Moving Average
// Returns slice of length: len(prices) - period + 1
func SMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return []float64{}
	}

	result := make([]float64, 0, len(prices)-period+1)

	var sum float64
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	result = append(result, sum/float64(period))

	for i := period; i < len(prices); i++ {
		sum = sum - prices[i-period] + prices[i]
		result = append(result, sum/float64(period))
	}

	return result
}

// EMA calculates Exponential Moving Average seeded with the SMA of the first
// period prices.
func EMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return []float64{}
	}

	result := make([]float64, 0, len(prices)-period+1)
	multiplier := 2.0 / float64(period+1)

	var sum float64
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	ema := sum / float64(period)
	result = append(result, ema)

	for i := period; i < len(prices); i++ {
		ema = (prices[i]-ema)*multiplier + ema
		result = append(result, ema)
	}

	return result
}

// Last returns the final value of an indicator series.
func Last(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	return values[len(values)-1], true
}

// RSI returns the relative strength index over the last period price changes,
// using plain averages of gains and losses. It needs period+1 prices.
// A window with neither gains nor losses is neutral (50).
func RSI(prices []float64, period int) (float64, bool) {
	if period <= 0 || len(prices) < period+1 {
		return 0, false
	}

	var gain, loss float64
	for i := len(prices) - period; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gain += change
		} else {
			loss -= change
		}
	}
	gain /= float64(period)
	loss /= float64(period)

	switch {
	case gain == 0 && loss == 0:
		return 50, true
	case loss == 0:
		return 100, true
	}
	return 100 - 100/(1+gain/loss), true
}

// Band is a Bollinger band around a simple moving average.
type Band struct {
	Middle float64
	Upper  float64
	Lower  float64
}

// Position places price within the band: 0 at the lower edge, 1 at the upper.
// A zero-width band places every price in the middle.
func (b Band) Position(price float64) float64 {
	if b.Upper == b.Lower {
		return 0.5
	}
	return (price - b.Lower) / (b.Upper - b.Lower)
}

// Bollinger returns the band over the last period prices, k sample standard
// deviations wide on each side.
func Bollinger(prices []float64, period int, k float64) (Band, bool) {
	if period < 2 || len(prices) < period {
		return Band{}, false
	}

	window := prices[len(prices)-period:]
	var sum float64
	for _, p := range window {
		sum += p
	}
	mid := sum / float64(period)

	var ss float64
	for _, p := range window {
		ss += (p - mid) * (p - mid)
	}
	sd := math.Sqrt(ss / float64(period-1))

	return Band{Middle: mid, Upper: mid + k*sd, Lower: mid - k*sd}, true
}

// Momentum returns the percentage change from the price lookback positions
// before the end of the slice to the last price.
func Momentum(prices []float64, lookback int) (float64, bool) {
	if lookback <= 0 || len(prices) < lookback {
		return 0, false
	}
	base := prices[len(prices)-lookback]
	if base == 0 {
		return 0, false
	}
	return (prices[len(prices)-1]/base - 1) * 100, true
}
