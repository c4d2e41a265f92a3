package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/newthinker/cardquant/internal/core"
)

const analysesRoot = "analyses"

// AnalysisPath returns the archive path of a result: analyses/<type>/<id>/<computed_at>.json.
func AnalysisPath(result core.AnalysisResult) string {
	stamp := result.ComputedAt.UTC().Format("20060102T150405.000000000Z")
	return path.Join(itemPrefix(result.Item.Key()), stamp+".json")
}

func itemPrefix(itemKey string) string {
	return path.Join(analysesRoot, strings.ReplaceAll(itemKey, ":", "/"))
}

// Analyses stores analysis results as JSON documents in a Storage backend.
type Analyses struct {
	storage Storage
}

// NewAnalyses wraps a storage backend.
func NewAnalyses(storage Storage) *Analyses {
	return &Analyses{storage: storage}
}

// Put writes one result.
func (a *Analyses) Put(ctx context.Context, result core.AnalysisResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}
	return a.storage.Write(ctx, AnalysisPath(result), data)
}

// List returns an item's archived results, newest first.
func (a *Analyses) List(ctx context.Context, itemKey string, limit int) ([]core.AnalysisResult, error) {
	paths, err := a.storage.List(ctx, itemPrefix(itemKey))
	if err != nil {
		return nil, err
	}
	// timestamps sort lexically
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))
	if limit > 0 && limit < len(paths) {
		paths = paths[:limit]
	}

	results := make([]core.AnalysisResult, 0, len(paths))
	for _, p := range paths {
		data, err := a.storage.Read(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		var r core.AnalysisResult
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", p, err)
		}
		results = append(results, r)
	}
	return results, nil
}
