package filter

import (
	"context"
	"testing"

	"github.com/newthinker/cardquant/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryFor(t *testing.T) {
	tests := []struct {
		name      string
		item      core.Item
		condition core.Condition
		want      Category
	}{
		{"booster box", core.Item{Type: core.ItemSealed, Name: "Evolving Skies Booster Box"}, core.ConditionSealed, CategoryBoosterBoxInclusive},
		{"etb long", core.Item{Type: core.ItemSealed, Name: "Obsidian Flames Elite Trainer Box"}, core.ConditionSealed, CategoryEliteTrainerBox},
		{"etb short", core.Item{Type: core.ItemSealed, Name: "151 ETB"}, core.ConditionSealed, CategoryEliteTrainerBox},
		{"theme deck", core.Item{Type: core.ItemSealed, Name: "Base Set Theme Deck Overgrowth"}, core.ConditionSealed, CategoryThemeDeck},
		{"tin", core.Item{Type: core.ItemSealed, Name: "Crown Zenith Tin"}, core.ConditionSealed, CategoryTin},
		{"tin is a word", core.Item{Type: core.ItemSealed, Name: "Destined Rivals Booster Bundle"}, core.ConditionSealed, CategoryBoosterBoxInclusive},
		{"collection", core.Item{Type: core.ItemSealed, Name: "Charizard ex Premium Collection"}, core.ConditionSealed, CategoryCollectionBox},
		{"single pack", core.Item{Type: core.ItemSealed, Name: "Paldean Fates Booster Pack"}, core.ConditionSealed, CategorySinglePack},
		{"sealed default", core.Item{Type: core.ItemSealed, Name: "Hidden Fates"}, core.ConditionSealed, CategoryBoosterBoxInclusive},
		{"raw card", core.Item{Type: core.ItemCard, Name: "Umbreon VMAX"}, core.ConditionRaw, CategoryCard},
		{"graded card", core.Item{Type: core.ItemCard, Name: "Umbreon VMAX"}, core.ConditionGraded, CategoryGradedCard},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CategoryFor(tt.item, tt.condition))
		})
	}
}

func TestRuleTier_Check(t *testing.T) {
	etb := core.Item{Type: core.ItemSealed, Name: "Obsidian Flames Elite Trainer Box"}
	card := core.Item{Type: core.ItemCard, Name: "Charizard ex"}

	tests := []struct {
		name   string
		item   core.Item
		obs    core.Observation
		reason string
	}{
		{"plausible box", boosterBox, core.Observation{Price: 150, Condition: core.ConditionSealed, Title: "Evolving Skies Booster Box 36 Packs Factory Sealed"}, ""},
		{"index point without title", boosterBox, core.Observation{Price: 150, Condition: core.ConditionSealed}, ""},
		{"too cheap", boosterBox, core.Observation{Price: 12, Condition: core.ConditionSealed}, "price $12.00 outside valid range $25.00-$1000.00 for booster_box_inclusive"},
		{"too expensive", boosterBox, core.Observation{Price: 1500, Condition: core.ConditionSealed}, "price $1500.00 outside valid range $25.00-$1000.00 for booster_box_inclusive"},
		{"opened", boosterBox, core.Observation{Price: 150, Condition: core.ConditionSealed, Title: "Evolving Skies Booster Box OPENED"}, "suspicious title pattern (opened)"},
		{"pack count", boosterBox, core.Observation{Price: 40, Condition: core.ConditionSealed, Title: "Evolving Skies Booster Box - 4 Packs"}, "suspicious title pattern (pack count)"},
		{"full box count is fine", boosterBox, core.Observation{Price: 150, Condition: core.ConditionSealed, Title: "Evolving Skies Booster Box 36 packs"}, ""},
		{"display case", boosterBox, core.Observation{Price: 60, Condition: core.ConditionSealed, Title: "Evolving Skies booster display case only"}, "suspicious title pattern (display case only)"},
		{"etb missing keyword", etb, core.Observation{Price: 50, Condition: core.ConditionSealed, Title: "Obsidian Flames ETB sealed"}, `title missing required keyword "elite" for elite_trainer_box`},
		{"etb ok", etb, core.Observation{Price: 50, Condition: core.ConditionSealed, Title: "Obsidian Flames Elite Trainer Box sealed"}, ""},
		{"card proxy", card, core.Observation{Price: 20, Condition: core.ConditionRaw, Title: "Charizard ex proxy card"}, "suspicious title pattern (proxy)"},
		{"card cheap but valid", card, core.Observation{Price: 0.5, Condition: core.ConditionRaw}, ""},
		{"graded below band", card, core.Observation{Price: 3, Condition: core.ConditionGraded}, "price $3.00 outside valid range $5.00-$25000.00 for graded_card"},
	}

	tier := NewRuleTier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.reason, tier.Check(tt.obs, tt.item))
		})
	}
}

func TestRuleTier_Filter(t *testing.T) {
	obs := observations(core.SourceMarketplaceSold, 150, 10, 160)
	obs[2].Title = "empty booster box"

	kept, removed, err := NewRuleTier().Filter(context.Background(), obs, boosterBox)
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.Equal(t, 150.0, kept[0].Price)
	require.Len(t, removed, 2)
	for _, r := range removed {
		assert.Equal(t, TierRules, r.Tier)
		assert.NotEmpty(t, r.Reason)
	}
}
