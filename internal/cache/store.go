package cache

import (
	"context"

	"github.com/newthinker/cardquant/internal/core"
	"github.com/newthinker/cardquant/internal/storage/pricedb"
)

// StoreBackend keeps results in the analyses table of the price store.
type StoreBackend struct {
	store pricedb.Store
}

// NewStoreBackend wraps a price store.
func NewStoreBackend(store pricedb.Store) *StoreBackend {
	return &StoreBackend{store: store}
}

// Latest returns the store's newest analysis.
func (b *StoreBackend) Latest(ctx context.Context, itemKey string) (*core.AnalysisResult, error) {
	return b.store.LatestAnalysis(ctx, itemKey)
}

// Put appends the result to the item's history.
func (b *StoreBackend) Put(ctx context.Context, result core.AnalysisResult) error {
	return b.store.SaveAnalysis(ctx, result)
}
