// Package pricedb persists catalogued items, collected price observations and analysis results.
package pricedb

import (
	"context"
	"fmt"
	"time"

	"github.com/newthinker/cardquant/internal/core"
)

// Store defines the persistence layer consumed by the pipeline.
// Implementations must support concurrent reads and writes for distinct items.
type Store interface {
	// FindItems returns items whose name contains query, cards first.
	// An empty itemType matches both cards and sealed products.
	FindItems(ctx context.Context, query string, itemType core.ItemType) ([]core.Item, error)

	// UpsertItem inserts or renames an item keyed by (type, id).
	UpsertItem(ctx context.Context, item core.Item) error

	// UpsertObservations writes observations keyed by (item, date, source, condition).
	// Colliding observations are averaged and keep the lowest confidence.
	UpsertObservations(ctx context.Context, itemKey string, obs []core.Observation, collectedAt time.Time) (int, error)

	// Observations returns stored observations for an item ordered by date.
	Observations(ctx context.Context, itemKey string, filter ObservationFilter) ([]core.Observation, error)

	// LastCollected returns the most recent collection time per source.
	LastCollected(ctx context.Context, itemKey string) (map[core.Source]time.Time, error)

	// SaveAnalysis persists an analysis result.
	SaveAnalysis(ctx context.Context, result core.AnalysisResult) error

	// LatestAnalysis returns the newest analysis for an item, or nil.
	LatestAnalysis(ctx context.Context, itemKey string) (*core.AnalysisResult, error)

	// ListAnalyses returns analyses newest first.
	ListAnalyses(ctx context.Context, itemKey string, limit int) ([]core.AnalysisResult, error)

	Close() error
}

// ObservationFilter narrows an observation read. Zero values are unbounded.
type ObservationFilter struct {
	From    time.Time
	To      time.Time
	Sources []core.Source
}

func (f ObservationFilter) matches(o core.Observation) bool {
	if !f.From.IsZero() && o.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && o.Date.After(f.To) {
		return false
	}
	if len(f.Sources) == 0 {
		return true
	}
	for _, s := range f.Sources {
		if s == o.Source {
			return true
		}
	}
	return false
}

// Open creates a store for the configured driver.
func Open(driver, dsn string) (Store, error) {
	switch driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		s, err := NewSQLiteStore(dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}
