// Package series merges filtered observations into one ordered price series per item.
package series

import (
	"fmt"
	"sort"

	"github.com/newthinker/cardquant/internal/core"
)

// MinPoints is the smallest series the metrics calculator accepts.
const MinPoints = 2

type bucket struct {
	obs   core.Observation
	sum   float64
	count int
}

// Aggregate merges observations colliding on (date, source, condition) into
// one point with the mean price and the lowest confidence. Points are ordered
// by date, then source and condition.
func Aggregate(item core.Item, obs []core.Observation) (core.Series, error) {
	buckets := make(map[core.SeriesKey]*bucket, len(obs))
	var order []core.SeriesKey

	for _, o := range obs {
		key := o.Key()
		b, ok := buckets[key]
		if !ok {
			buckets[key] = &bucket{obs: o, sum: o.Price, count: 1}
			order = append(order, key)
			continue
		}
		b.sum += o.Price
		b.count++
		b.obs.Confidence = min(b.obs.Confidence, o.Confidence)
		if b.obs.Title == "" {
			b.obs.Title = o.Title
		}
	}

	if len(order) < MinPoints {
		return core.Series{}, core.WrapError(core.ErrInsufficientData,
			fmt.Errorf("%d clean observations for %s, need %d", len(order), item.Key(), MinPoints))
	}

	points := make([]core.Observation, 0, len(order))
	for _, key := range order {
		b := buckets[key]
		b.obs.Price = b.sum / float64(b.count)
		points = append(points, b.obs)
	}
	sort.SliceStable(points, func(i, j int) bool {
		if !points[i].Date.Equal(points[j].Date) {
			return points[i].Date.Before(points[j].Date)
		}
		if points[i].Source != points[j].Source {
			return points[i].Source < points[j].Source
		}
		return points[i].Condition < points[j].Condition
	})

	breakdown := Breakdown(points)
	return core.Series{
		Item:      item,
		Points:    points,
		Sources:   sources(breakdown),
		Coverage:  core.DateRange{Start: points[0].Date, End: points[len(points)-1].Date},
		Breakdown: breakdown,
	}, nil
}

// Breakdown summarizes points per source.
func Breakdown(points []core.Observation) map[core.Source]core.SourceStats {
	stats := make(map[core.Source]core.SourceStats)
	for _, p := range points {
		s, ok := stats[p.Source]
		if !ok {
			s = core.SourceStats{Min: p.Price, Max: p.Price}
		}
		s.Count++
		s.Average += p.Price // running sum until the pass below
		s.Min = min(s.Min, p.Price)
		s.Max = max(s.Max, p.Price)
		stats[p.Source] = s
	}
	for src, s := range stats {
		s.Average /= float64(s.Count)
		stats[src] = s
	}
	return stats
}

// sources lists the contributing sources, known sources first.
func sources(breakdown map[core.Source]core.SourceStats) []core.Source {
	var out []core.Source
	for _, src := range core.AllSources {
		if _, ok := breakdown[src]; ok {
			out = append(out, src)
		}
	}
	var extra []core.Source
	for src := range breakdown {
		known := false
		for _, k := range core.AllSources {
			if k == src {
				known = true
				break
			}
		}
		if !known {
			extra = append(extra, src)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(out, extra...)
}
