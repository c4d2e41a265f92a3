// Package freshness decides whether stored price data is recent enough to skip collection.
package freshness

import (
	"context"
	"fmt"
	"time"

	"github.com/newthinker/cardquant/internal/core"
	"github.com/newthinker/cardquant/internal/storage/pricedb"
	"go.uber.org/zap"
)

// Action is the collection decision.
type Action string

const (
	ActionUseCache        Action = "use_cache"
	ActionScrapeEbayOnly  Action = "scrape_ebay_only"
	ActionScrapeIndexOnly Action = "scrape_pricecharting_only"
	ActionScrapeBoth      Action = "scrape_both"
)

// Result describes the freshness of an item's stored data.
type Result struct {
	IsFresh           bool                      `json:"is_fresh"`
	DaysOld           *int                      `json:"days_old"`
	RecommendedAction Action                    `json:"recommended_action"`
	LastCollected     map[core.Source]time.Time `json:"last_collected,omitempty"`
	Stale             []core.Source             `json:"stale_sources,omitempty"`
}

// Sources returns the sources that must be collected for this result.
func (r Result) Sources() []core.Source {
	switch r.RecommendedAction {
	case ActionScrapeEbayOnly:
		return []core.Source{core.SourceMarketplaceSold}
	case ActionScrapeIndexOnly:
		return []core.Source{core.SourcePriceIndex}
	case ActionScrapeBoth:
		return core.AllSources
	default:
		return nil
	}
}

// Evaluator reads collection timestamps from the store. It never writes.
type Evaluator struct {
	store  pricedb.Store
	now    func() time.Time
	logger *zap.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

// New creates an evaluator over the store.
func New(store pricedb.Store, logger *zap.Logger, opts ...Option) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Evaluator{store: store, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate reports whether the item's stored data is within maxAgeDays for every source.
func (e *Evaluator) Evaluate(ctx context.Context, item core.Item, maxAgeDays int) (Result, error) {
	last, err := e.store.LastCollected(ctx, item.Key())
	if err != nil {
		return Result{}, fmt.Errorf("reading collection times: %w", err)
	}

	result := Decide(last, e.now(), maxAgeDays)
	e.logger.Debug("freshness evaluated",
		zap.String("item", item.Key()),
		zap.String("action", string(result.RecommendedAction)),
		zap.Any("stale", result.Stale),
	)
	return result, nil
}

// Decide applies the freshness policy to per-source collection times.
func Decide(last map[core.Source]time.Time, now time.Time, maxAgeDays int) Result {
	result := Result{RecommendedAction: ActionScrapeBoth, LastCollected: last}
	if len(last) == 0 {
		result.Stale = core.AllSources
		return result
	}

	var newest time.Time
	for _, t := range last {
		if t.After(newest) {
			newest = t
		}
	}
	days := daysBetween(newest, now)
	result.DaysOld = &days

	for _, src := range core.AllSources {
		t, ok := last[src]
		if !ok || daysBetween(t, now) > maxAgeDays {
			result.Stale = append(result.Stale, src)
		}
	}

	switch len(result.Stale) {
	case 0:
		result.IsFresh = true
		result.RecommendedAction = ActionUseCache
	case 1:
		if result.Stale[0] == core.SourceMarketplaceSold {
			result.RecommendedAction = ActionScrapeEbayOnly
		} else {
			result.RecommendedAction = ActionScrapeIndexOnly
		}
	}
	return result
}

// daysBetween counts whole elapsed days; future timestamps count as zero.
func daysBetween(from, to time.Time) int {
	d := to.Sub(from)
	if d < 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}
