package series

import "github.com/newthinker/cardquant/internal/core"

// QualityScore rates a series from 0 to 1 on volume, source diversity and
// date coverage.
func QualityScore(s core.Series) float64 {
	var points int

	switch n := len(s.Points); {
	case n >= 100:
		points += 40
	case n >= 50:
		points += 30
	case n >= 20:
		points += 20
	case n >= 10:
		points += 10
	}

	switch n := len(s.Breakdown); {
	case n >= 2:
		points += 30
	case n == 1:
		points += 15
	}

	switch days := s.Coverage.Days(); {
	case days >= 365:
		points += 30
	case days >= 180:
		points += 20
	case days >= 90:
		points += 15
	case days >= 30:
		points += 10
	}

	return min(1.0, float64(points)/100)
}
