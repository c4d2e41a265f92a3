// Package jsonfile reads exported listing records from a directory tree.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/newthinker/cardquant/internal/collector"
	"github.com/newthinker/cardquant/internal/core"
	"github.com/newthinker/cardquant/internal/ingest"
)

var validID = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// JSONFile serves listings for one source from <path>/<source>/<type>-<id>.json.
type JSONFile struct {
	name   string
	source core.Source
	config collector.Config
}

// New creates a collector for source.
func New(name string, source core.Source) *JSONFile {
	return &JSONFile{name: name, source: source}
}

func (j *JSONFile) Name() string {
	return j.name
}

func (j *JSONFile) Source() core.Source {
	return j.source
}

func (j *JSONFile) Init(cfg collector.Config) error {
	if cfg.Path == "" {
		return fmt.Errorf("%s: path is required", j.name)
	}
	j.config = cfg
	return nil
}

// ItemPath returns the file holding an item's listings.
func (j *JSONFile) ItemPath(item core.Item) (string, error) {
	if !validID.MatchString(item.ID) {
		return "", fmt.Errorf("invalid item id: %q", item.ID)
	}
	return filepath.Join(j.config.Path, string(j.source), fmt.Sprintf("%s-%s.json", item.Type, item.ID)), nil
}

// Fetch reads the item's listings. A missing file yields no listings.
func (j *JSONFile) Fetch(ctx context.Context, item core.Item) ([]ingest.RawListing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := j.ItemPath(item)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var listings []ingest.RawListing
	if err := json.Unmarshal(data, &listings); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	// records without a source belong to this collector
	for i := range listings {
		if listings[i].Source == "" {
			listings[i].Source = string(j.source)
		}
	}
	return listings, nil
}

// LoadCatalog reads a JSON list of items.
func LoadCatalog(path string) ([]core.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}

	var items []core.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}
	for _, item := range items {
		if item.Type != core.ItemCard && item.Type != core.ItemSealed {
			return nil, fmt.Errorf("catalog item %q: unknown type %q", item.ID, item.Type)
		}
		if item.ID == "" || item.Name == "" {
			return nil, fmt.Errorf("catalog item %q: id and name are required", item.ID)
		}
	}
	return items, nil
}
