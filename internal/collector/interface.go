package collector

import (
	"context"

	"github.com/newthinker/cardquant/internal/core"
	"github.com/newthinker/cardquant/internal/ingest"
)

// Config holds collector configuration
type Config struct {
	Enabled bool
	Path    string
	Extra   map[string]any
}

// Collector supplies raw listings for one price source. An empty result is
// not an error.
type Collector interface {
	// Metadata
	Name() string
	Source() core.Source

	// Lifecycle
	Init(cfg Config) error

	// Data fetching
	Fetch(ctx context.Context, item core.Item) ([]ingest.RawListing, error)
}
