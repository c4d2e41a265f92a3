package filter

import "sort"

// Quartiles returns Q1 and Q3 of values using the exclusive method
// (linear interpolation over n+1 positions). values needs at least two elements.
func Quartiles(values []float64) (q1, q3 float64) {
	data := make([]float64, len(values))
	copy(data, values)
	sort.Float64s(data)
	return exclusiveQuantile(data, 1), exclusiveQuantile(data, 3)
}

// exclusiveQuantile returns the i-th of the 4-quantiles of sorted data.
func exclusiveQuantile(data []float64, i int) float64 {
	n := len(data)
	m := n + 1
	j := i * m / 4
	if j < 1 {
		j = 1
	}
	if j > n-1 {
		j = n - 1
	}
	delta := float64(i*m - j*4)
	return (data[j-1]*(4-delta) + data[j]*delta) / 4
}
