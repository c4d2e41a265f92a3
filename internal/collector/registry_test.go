package collector

import (
	"context"
	"testing"

	"github.com/newthinker/cardquant/internal/core"
	"github.com/newthinker/cardquant/internal/ingest"
)

// mockCollector for testing
type mockCollector struct {
	name   string
	source core.Source
}

func (m *mockCollector) Name() string          { return m.name }
func (m *mockCollector) Source() core.Source   { return m.source }
func (m *mockCollector) Init(cfg Config) error { return nil }
func (m *mockCollector) Fetch(ctx context.Context, item core.Item) ([]ingest.RawListing, error) {
	return []ingest.RawListing{{Date: "2024-03-01", Price: "10", Source: string(m.source)}}, nil
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	mock := &mockCollector{name: "mock", source: core.SourceMarketplaceSold}
	r.Register(mock)

	c, ok := r.Get("mock")
	if !ok {
		t.Fatal("expected to find registered collector")
	}

	if c.Name() != "mock" {
		t.Errorf("expected name 'mock', got '%s'", c.Name())
	}

	if _, ok := r.Get("missing"); ok {
		t.Error("expected missing collector to be absent")
	}
}

func TestRegistry_GetAll(t *testing.T) {
	r := NewRegistry()
	r.Register(&mockCollector{name: "b", source: core.SourcePriceIndex})
	r.Register(&mockCollector{name: "a", source: core.SourceMarketplaceSold})

	all := r.GetAll()
	if len(all) != 2 {
		t.Fatalf("expected 2 collectors, got %d", len(all))
	}
	if all[0].Name() != "a" {
		t.Errorf("expected collectors ordered by name, got %s first", all[0].Name())
	}
}

func TestRegistry_ForSource(t *testing.T) {
	r := NewRegistry()
	r.Register(&mockCollector{name: "sold-a", source: core.SourceMarketplaceSold})
	r.Register(&mockCollector{name: "sold-b", source: core.SourceMarketplaceSold})
	r.Register(&mockCollector{name: "index", source: core.SourcePriceIndex})

	if got := len(r.ForSource(core.SourceMarketplaceSold)); got != 2 {
		t.Errorf("expected 2 sold collectors, got %d", got)
	}
	if got := len(r.ForSource(core.SourcePriceIndex)); got != 1 {
		t.Errorf("expected 1 index collector, got %d", got)
	}
}
