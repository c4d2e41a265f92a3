package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/newthinker/cardquant/internal/core"
	"github.com/newthinker/cardquant/internal/storage/archive"
	"github.com/newthinker/cardquant/internal/storage/pricedb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	item    = core.Item{Type: core.ItemSealed, ID: "5", Name: "Silver Tempest Booster Box"}
	started = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func sampleResult(at time.Time) core.AnalysisResult {
	return core.AnalysisResult{
		ID:   "run-1",
		Item: item,
		Metrics: core.Metrics{
			PriceStats:  core.PriceStats{Average: 120, Minimum: 100, Maximum: 140},
			TotalPoints: 12,
			Breakdown:   map[core.Source]core.SourceStats{core.SourceMarketplaceSold: {Count: 12, Average: 120, Min: 100, Max: 140}},
		},
		Recommendation:  core.Recommendation{Action: core.ActionHold, Risk: core.RiskMedium, Reasoning: []string{"Data validated across 2 sources"}},
		ConfidenceScore: 0.72,
		ComputedAt:      at,
	}
}

func TestCache_RoundTrip(t *testing.T) {
	clk := &clock{t: started}
	c := New(NewStoreBackend(pricedb.NewMemoryStore()), nil, WithClock(clk.now))
	ctx := context.Background()

	miss, err := c.Get(ctx, item.Key(), 24*time.Hour)
	require.NoError(t, err)
	assert.Nil(t, miss)

	stored := sampleResult(started)
	require.NoError(t, c.Put(ctx, stored))

	clk.t = started.Add(23 * time.Hour)
	hit, err := c.Get(ctx, item.Key(), 24*time.Hour)
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, stored, *hit)

	clk.t = started.Add(24 * time.Hour)
	expired, err := c.Get(ctx, item.Key(), 24*time.Hour)
	require.NoError(t, err)
	assert.Nil(t, expired, "an entry exactly ttl old is stale")
}

func TestCache_PutKeysByItem(t *testing.T) {
	c := New(NewStoreBackend(pricedb.NewMemoryStore()), nil, WithClock(func() time.Time { return started }))
	ctx := context.Background()

	stored := sampleResult(started)
	recovery := 3
	stored.Metrics.Advanced = &core.AdvancedMetrics{
		Risk:  core.RiskMetrics{MaxDrawdown: -12.5, RecoveryDays: &recovery},
		Grade: core.InvestmentGrade{Grade: "B", Score: 65, Suggestion: core.ActionHold},
	}
	require.NoError(t, c.Put(ctx, stored))

	other := core.Item{Type: core.ItemCard, ID: "5", Name: "Lugia V"}
	miss, err := c.Get(ctx, other.Key(), time.Hour)
	require.NoError(t, err)
	assert.Nil(t, miss, "same id under another type is a different key")

	hit, err := c.Get(ctx, stored.Item.Key(), time.Hour)
	require.NoError(t, err)
	require.NotNil(t, hit)
	require.NotNil(t, hit.Metrics.Advanced)
	assert.Equal(t, "B", hit.Metrics.Advanced.Grade.Grade)
	assert.Equal(t, 3, *hit.Metrics.Advanced.Risk.RecoveryDays)
}

func TestCache_ZeroTTLAlwaysMisses(t *testing.T) {
	c := New(NewStoreBackend(pricedb.NewMemoryStore()), nil, WithClock(func() time.Time { return started }))
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, sampleResult(started)))

	got, err := c.Get(ctx, item.Key(), 0)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCache_NewestResultWins(t *testing.T) {
	clk := &clock{t: started.Add(2 * time.Hour)}
	c := New(NewStoreBackend(pricedb.NewMemoryStore()), nil, WithClock(clk.now))
	ctx := context.Background()

	older := sampleResult(started)
	newer := sampleResult(started.Add(time.Hour))
	newer.ID = "run-2"
	require.NoError(t, c.Put(ctx, older))
	require.NoError(t, c.Put(ctx, newer))

	got, err := c.Get(ctx, item.Key(), 24*time.Hour)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "run-2", got.ID)
}

type failingBackend struct{}

func (failingBackend) Latest(context.Context, string) (*core.AnalysisResult, error) {
	return nil, errors.New("connection refused")
}

func (failingBackend) Put(context.Context, core.AnalysisResult) error {
	return errors.New("connection refused")
}

type recordingMirror struct {
	results []core.AnalysisResult
	err     error
}

func (m *recordingMirror) Put(_ context.Context, r core.AnalysisResult) error {
	m.results = append(m.results, r)
	return m.err
}

func TestCache_PutFailure(t *testing.T) {
	mirror := &recordingMirror{}
	c := New(failingBackend{}, nil, WithMirror(mirror))

	err := c.Put(context.Background(), sampleResult(started))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrCacheWriteFailed))
	assert.Len(t, mirror.results, 1, "mirrors are written even when the backend fails")

	_, err = c.Get(context.Background(), item.Key(), time.Hour)
	assert.Error(t, err)
}

func TestCache_MirrorFailureIsNotFatal(t *testing.T) {
	store := pricedb.NewMemoryStore()
	c := New(NewStoreBackend(store), nil, WithMirror(&recordingMirror{err: errors.New("bucket gone")}), WithMirror(nil))

	require.NoError(t, c.Put(context.Background(), sampleResult(started)))

	history, err := store.ListAnalyses(context.Background(), item.Key(), 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestCache_ArchiveMirror(t *testing.T) {
	fs, err := archive.NewLocalFS(t.TempDir())
	require.NoError(t, err)
	analyses := archive.NewAnalyses(fs)

	c := New(NewStoreBackend(pricedb.NewMemoryStore()), nil, WithMirror(analyses))
	require.NoError(t, c.Put(context.Background(), sampleResult(started)))

	archived, err := analyses.List(context.Background(), item.Key(), 0)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, "run-1", archived[0].ID)
}
