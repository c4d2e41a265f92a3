package jsonfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/newthinker/cardquant/internal/collector"
	"github.com/newthinker/cardquant/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var box = core.Item{Type: core.ItemSealed, ID: "77", Name: "Lost Origin Booster Box"}

func TestJSONFile_ImplementsCollector(t *testing.T) {
	var _ collector.Collector = (*JSONFile)(nil)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestJSONFile_Fetch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "marketplace_sold", "sealed-77.json"), `[
		{"date": "2024-03-01", "price": "$129.99", "title": "Lost Origin Booster Box sealed"},
		{"date": "2024-03-02", "price": 131.5, "source": "marketplace_sold", "confidence": 0.8}
	]`)

	c := New("sold", core.SourceMarketplaceSold)
	require.NoError(t, c.Init(collector.Config{Enabled: true, Path: dir}))

	listings, err := c.Fetch(context.Background(), box)
	require.NoError(t, err)
	require.Len(t, listings, 2)
	assert.Equal(t, "marketplace_sold", listings[0].Source)
	assert.Equal(t, "Lost Origin Booster Box sealed", listings[0].Title)
	require.NotNil(t, listings[1].Confidence)
	assert.Equal(t, 0.8, *listings[1].Confidence)
}

func TestJSONFile_MissingFileIsEmpty(t *testing.T) {
	c := New("index", core.SourcePriceIndex)
	require.NoError(t, c.Init(collector.Config{Path: t.TempDir()}))

	listings, err := c.Fetch(context.Background(), box)
	require.NoError(t, err)
	assert.Empty(t, listings)
}

func TestJSONFile_Errors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "price_index", "sealed-77.json"), `{"not": "a list"}`)

	c := New("index", core.SourcePriceIndex)
	assert.Error(t, c.Init(collector.Config{}))
	require.NoError(t, c.Init(collector.Config{Path: dir}))

	_, err := c.Fetch(context.Background(), box)
	assert.Error(t, err)

	_, err = c.Fetch(context.Background(), core.Item{Type: core.ItemSealed, ID: "../../etc/passwd"})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Fetch(ctx, box)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "items.json")
	writeFile(t, good, `[
		{"type": "sealed", "id": "77", "name": "Lost Origin Booster Box"},
		{"type": "card", "id": "swsh11-186", "name": "Giratina V", "set_name": "Lost Origin"}
	]`)

	items, err := LoadCatalog(good)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "card:swsh11-186", items[1].Key())

	bad := filepath.Join(dir, "bad.json")
	writeFile(t, bad, `[{"type": "binder", "id": "1", "name": "Binder"}]`)
	_, err = LoadCatalog(bad)
	assert.Error(t, err)

	_, err = LoadCatalog(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
