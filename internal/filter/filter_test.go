package filter

import (
	"context"
	"testing"

	"github.com/newthinker/cardquant/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChain(provider *mockProvider) *Chain {
	var semantic Tier
	if provider != nil {
		semantic = NewSemanticTier(provider, SemanticConfig{}, nil)
	}
	return NewChain(semantic, NewRuleTier(), NewStatisticalTier(0, 0), nil)
}

func chainInput() []core.Observation {
	obs := observations(core.SourceMarketplaceSold, 100, 102, 98, 101, 99, 103, 97, 250)
	obs[0].Title = "Evolving Skies Booster Box Japanese"
	obs[1].Title = "EMPTY Evolving Skies booster box"
	return obs
}

func TestChain_AllTiers(t *testing.T) {
	chain := newTestChain(&mockProvider{})
	require.True(t, chain.HasSemantic())

	result, err := chain.Filter(context.Background(), chainInput(), boosterBox, true)
	require.NoError(t, err)

	counts := result.RemovedBy()
	assert.Equal(t, 1, counts[TierSemantic])
	assert.Equal(t, 1, counts[TierRules])
	assert.Equal(t, 1, counts[TierStatistical])
	assert.Len(t, result.Kept, 5)

	require.Len(t, result.Tiers, 3)
	assert.Equal(t, TierReport{Tier: TierSemantic, Input: 8, Kept: 7, Removed: 1}, withoutDuration(result.Tiers[0]))
	assert.Equal(t, TierReport{Tier: TierRules, Input: 7, Kept: 6, Removed: 1}, withoutDuration(result.Tiers[1]))
	assert.Equal(t, TierReport{Tier: TierStatistical, Input: 6, Kept: 5, Removed: 1}, withoutDuration(result.Tiers[2]))
}

func TestChain_SemanticFailureFallsBack(t *testing.T) {
	chain := newTestChain(&mockProvider{raw: "not json at all"})

	result, err := chain.Filter(context.Background(), chainInput(), boosterBox, true)
	require.NoError(t, err)

	require.Len(t, result.Tiers, 3)
	semantic := result.Tiers[0]
	assert.Contains(t, semantic.Error, "CLASSIFICATION_UNAVAILABLE")
	assert.Equal(t, 8, semantic.Kept)
	assert.Zero(t, semantic.Removed)

	assert.Equal(t, 8, result.Tiers[1].Input, "rules see the untouched batch")
	assert.Zero(t, result.RemovedBy()[TierSemantic])
	assert.Equal(t, 1, result.RemovedBy()[TierRules])
}

func TestChain_SemanticNotRequested(t *testing.T) {
	provider := &mockProvider{}
	chain := newTestChain(provider)

	result, err := chain.Filter(context.Background(), chainInput(), boosterBox, false)
	require.NoError(t, err)

	assert.True(t, result.Tiers[0].Skipped)
	assert.Zero(t, provider.calls)
	assert.Len(t, result.Kept, 6)
}

func TestChain_WithoutSemantic(t *testing.T) {
	chain := newTestChain(nil)
	assert.False(t, chain.HasSemantic())

	result, err := chain.Filter(context.Background(), chainInput(), boosterBox, true)
	require.NoError(t, err)
	require.Len(t, result.Tiers, 2)
	assert.Equal(t, TierRules, result.Tiers[0].Tier)
}

func TestChain_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestChain(&mockProvider{}).Filter(ctx, chainInput(), boosterBox, true)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChain_EmptyInput(t *testing.T) {
	result, err := newTestChain(&mockProvider{}).Filter(context.Background(), nil, boosterBox, true)
	require.NoError(t, err)
	assert.Empty(t, result.Kept)
	assert.Empty(t, result.Removed)
}

func withoutDuration(r TierReport) TierReport {
	r.Duration = 0
	return r
}
