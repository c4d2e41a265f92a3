package filter

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/newthinker/cardquant/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var boosterBox = core.Item{Type: core.ItemSealed, ID: "1", Name: "Evolving Skies Booster Box"}

func observations(source core.Source, prices ...float64) []core.Observation {
	obs := make([]core.Observation, len(prices))
	for i, p := range prices {
		obs[i] = core.Observation{
			Date:       time.Date(2024, 3, i+1, 0, 0, 0, 0, time.UTC),
			Price:      p,
			Source:     source,
			Condition:  core.ConditionSealed,
			Confidence: 1,
		}
	}
	return obs
}

func TestStatisticalTier_FourObservationGroup(t *testing.T) {
	tier := NewStatisticalTier(0, 0)
	obs := observations(core.SourceMarketplaceSold, 10, 12, 14, 100)

	lower, upper := tier.Bounds([]float64{10, 12, 14, 100})
	assert.InDelta(t, 10.5-1.5*68, lower, 1e-9)
	assert.InDelta(t, 78.5+1.5*68, upper, 1e-9)

	kept, removed, err := tier.Filter(context.Background(), obs, boosterBox)
	require.NoError(t, err)
	assert.Len(t, kept, 4)
	assert.Empty(t, removed)
}

func TestStatisticalTier_SmallGroupsExempt(t *testing.T) {
	tier := NewStatisticalTier(1.5, 4)
	obs := observations(core.SourceMarketplaceSold, 100, 101, 5000)

	kept, removed, err := tier.Filter(context.Background(), obs, boosterBox)
	require.NoError(t, err)
	assert.Len(t, kept, 3)
	assert.Empty(t, removed)
}

func TestStatisticalTier_RemovesOutliers(t *testing.T) {
	tier := NewStatisticalTier(1.5, 4)
	obs := observations(core.SourceMarketplaceSold, 100, 102, 98, 101, 99, 103, 97, 250)

	kept, removed, err := tier.Filter(context.Background(), obs, boosterBox)
	require.NoError(t, err)
	assert.Len(t, kept, 7)
	require.Len(t, removed, 1)
	assert.Equal(t, 250.0, removed[0].Observation.Price)
	assert.Equal(t, TierStatistical, removed[0].Tier)
	assert.Equal(t,
		"statistical outlier (extreme_high): $250.00 outside $91.50-$109.50 for marketplace_sold/sealed",
		removed[0].Reason)
}

func TestStatisticalTier_ExtremeLow(t *testing.T) {
	tier := NewStatisticalTier(1.5, 4)
	obs := observations(core.SourceMarketplaceSold, 100, 102, 98, 101, 99, 103, 97, 20)

	_, removed, err := tier.Filter(context.Background(), obs, boosterBox)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.True(t, strings.HasPrefix(removed[0].Reason, "statistical outlier (extreme_low)"))
}

func TestStatisticalTier_GroupsNeverPool(t *testing.T) {
	tier := NewStatisticalTier(1.5, 4)

	// A price-index group around 200 would flag the marketplace group if pooled.
	obs := append(
		observations(core.SourceMarketplaceSold, 100, 101, 99, 102, 98),
		observations(core.SourcePriceIndex, 200, 201, 199, 202, 198)...,
	)

	kept, removed, err := tier.Filter(context.Background(), obs, boosterBox)
	require.NoError(t, err)
	assert.Len(t, kept, 10)
	assert.Empty(t, removed)
}

func TestStatisticalTier_KeepsInputOrder(t *testing.T) {
	tier := NewStatisticalTier(1.5, 4)
	obs := observations(core.SourceMarketplaceSold, 103, 100, 250, 98, 101, 99, 102, 97)

	kept, _, err := tier.Filter(context.Background(), obs, boosterBox)
	require.NoError(t, err)
	require.Len(t, kept, 7)
	assert.Equal(t, 103.0, kept[0].Price)
	assert.Equal(t, 98.0, kept[2].Price)
}
