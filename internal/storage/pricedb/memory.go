package pricedb

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/newthinker/cardquant/internal/core"
)

type seriesRow struct {
	obs         core.Observation
	samples     int
	collectedAt time.Time
}

// MemoryStore is an in-memory Store used by tests and one-shot runs.
type MemoryStore struct {
	mu       sync.RWMutex
	items    map[string]core.Item
	series   map[string]map[core.SeriesKey]*seriesRow
	analyses map[string][]core.AnalysisResult
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:    make(map[string]core.Item),
		series:   make(map[string]map[core.SeriesKey]*seriesRow),
		analyses: make(map[string][]core.AnalysisResult),
	}
}

// FindItems returns items whose name contains query, case-insensitively.
func (m *MemoryStore) FindItems(ctx context.Context, query string, itemType core.ItemType) ([]core.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(query))
	var result []core.Item
	for _, item := range m.items {
		if itemType != "" && item.Type != itemType {
			continue
		}
		if strings.Contains(strings.ToLower(item.Name), needle) {
			result = append(result, item)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Type != result[j].Type {
			return result[i].Type == core.ItemCard
		}
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// UpsertItem stores the item under its key.
func (m *MemoryStore) UpsertItem(ctx context.Context, item core.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[item.Key()] = item
	return nil
}

// UpsertObservations merges observations into the item's series.
func (m *MemoryStore) UpsertObservations(ctx context.Context, itemKey string, obs []core.Observation, collectedAt time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, ok := m.series[itemKey]
	if !ok {
		rows = make(map[core.SeriesKey]*seriesRow)
		m.series[itemKey] = rows
	}

	for _, o := range obs {
		key := o.Key()
		row, exists := rows[key]
		if !exists {
			rows[key] = &seriesRow{obs: o, samples: 1, collectedAt: collectedAt}
			continue
		}
		n := float64(row.samples)
		row.obs.Price = (row.obs.Price*n + o.Price) / (n + 1)
		row.obs.Confidence = min(row.obs.Confidence, o.Confidence)
		if row.obs.Title == "" {
			row.obs.Title = o.Title
		}
		row.samples++
		row.collectedAt = collectedAt
	}
	return len(obs), nil
}

// Observations returns the item's observations ordered by date, source and condition.
func (m *MemoryStore) Observations(ctx context.Context, itemKey string, filter ObservationFilter) ([]core.Observation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []core.Observation
	for _, row := range m.series[itemKey] {
		if filter.matches(row.obs) {
			result = append(result, row.obs)
		}
	}
	sortObservations(result)
	return result, nil
}

// LastCollected returns the latest collection time per source.
func (m *MemoryStore) LastCollected(ctx context.Context, itemKey string) (map[core.Source]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	last := make(map[core.Source]time.Time)
	for _, row := range m.series[itemKey] {
		if row.collectedAt.After(last[row.obs.Source]) {
			last[row.obs.Source] = row.collectedAt
		}
	}
	return last, nil
}

// SaveAnalysis appends a result to the item's history.
func (m *MemoryStore) SaveAnalysis(ctx context.Context, result core.AnalysisResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := result.Item.Key()
	m.analyses[key] = append(m.analyses[key], result)
	return nil
}

// LatestAnalysis returns the newest result by computed time.
func (m *MemoryStore) LatestAnalysis(ctx context.Context, itemKey string) (*core.AnalysisResult, error) {
	list, _ := m.ListAnalyses(ctx, itemKey, 1)
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

// ListAnalyses returns up to limit results, newest first. A non-positive limit returns all.
func (m *MemoryStore) ListAnalyses(ctx context.Context, itemKey string, limit int) ([]core.AnalysisResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.analyses[itemKey]
	result := make([]core.AnalysisResult, len(history))
	copy(result, history)

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].ComputedAt.After(result[j].ComputedAt)
	})
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

func sortObservations(obs []core.Observation) {
	sort.Slice(obs, func(i, j int) bool {
		if !obs[i].Date.Equal(obs[j].Date) {
			return obs[i].Date.Before(obs[j].Date)
		}
		if obs[i].Source != obs[j].Source {
			return obs[i].Source < obs[j].Source
		}
		return obs[i].Condition < obs[j].Condition
	})
}
