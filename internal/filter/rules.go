package filter

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/newthinker/cardquant/internal/core"
)

// Category is the product category that selects rule thresholds and red flags.
type Category string

const (
	CategoryBoosterBoxInclusive Category = "booster_box_inclusive"
	CategoryEliteTrainerBox     Category = "elite_trainer_box"
	CategoryThemeDeck           Category = "theme_deck"
	CategorySinglePack          Category = "single_pack"
	CategoryTin                 Category = "tin"
	CategoryCollectionBox       Category = "collection_box"
	CategoryCard                Category = "card"
	CategoryGradedCard          Category = "graded_card"
)

// PriceRange is an inclusive plausible price band.
type PriceRange struct {
	Min float64
	Max float64
}

// Contains reports whether price lies within the band.
func (r PriceRange) Contains(price float64) bool {
	return price >= r.Min && price <= r.Max
}

// Thresholds is the plausible price band per category.
var Thresholds = map[Category]PriceRange{
	CategoryBoosterBoxInclusive: {25, 1000}, // admits elite trainer boxes listed under a box search
	CategoryEliteTrainerBox:     {25, 200},
	CategoryThemeDeck:           {8, 50},
	CategorySinglePack:          {2, 25},
	CategoryTin:                 {10, 100},
	CategoryCollectionBox:       {15, 300},
	CategoryCard:                {0.25, 10000},
	CategoryGradedCard:          {5, 25000},
}

type redFlag struct {
	label   string
	pattern *regexp.Regexp
}

func flag(label, expr string) redFlag {
	return redFlag{label: label, pattern: regexp.MustCompile(expr)}
}

// sealedFlags apply to every sealed category.
var sealedFlags = []redFlag{
	flag("empty", `\bempty\b`),
	flag("box only", `\bbox\s+only\b`),
	flag("no cards", `\bno\s+cards?\b`),
	flag("no packs", `\bno\s+packs?\b`),
	flag("just box", `\bjust\s+(?:the\s+)?box\b`),
	flag("display case only", `\bdisplay\s+(?:case\s+)?only\b`),
	flag("damaged", `\bdamaged\b`),
	flag("torn", `\btorn\b`),
	flag("opened", `\bopened\b`),
	flag("resealed", `\bresealed\b`),
	flag("missing", `\bmissing\b`),
}

var cardFlags = []redFlag{
	flag("empty", `\bempty\b`),
	flag("damaged", `\bdamaged\b`),
	flag("torn", `\btorn\b`),
	flag("proxy", `\bproxy\b`),
	flag("fake", `\bfake\b`),
	flag("custom", `\bcustom\b`),
}

var redFlags = map[Category][]redFlag{
	CategoryBoosterBoxInclusive: {
		flag("blister", `\bblister\b`),
		flag("pack count", `\b[1-6]\s*packs?\b`),
		flag("single", `\bsingle\b`),
	},
	CategoryCard:       cardFlags,
	CategoryGradedCard: cardFlags,
}

// requiredKeywords must all appear in a title for the category.
var requiredKeywords = map[Category][]string{
	CategoryEliteTrainerBox: {"elite", "trainer", "box"},
	CategoryThemeDeck:       {"theme", "deck"},
}

// CategoryFor classifies an observation of item for rule lookup.
func CategoryFor(item core.Item, condition core.Condition) Category {
	name := strings.ToLower(item.Name)
	switch {
	case item.Type == core.ItemCard && condition == core.ConditionGraded:
		return CategoryGradedCard
	case item.Type == core.ItemCard:
		return CategoryCard
	case strings.Contains(name, "booster box"):
		return CategoryBoosterBoxInclusive
	case strings.Contains(name, "elite trainer box"), containsWord(name, "etb"):
		return CategoryEliteTrainerBox
	case strings.Contains(name, "theme deck"):
		return CategoryThemeDeck
	case containsWord(name, "tin"):
		return CategoryTin
	case strings.Contains(name, "collection"):
		return CategoryCollectionBox
	case containsWord(name, "pack"):
		return CategorySinglePack
	default:
		return CategoryBoosterBoxInclusive
	}
}

func containsWord(s, word string) bool {
	for _, f := range strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		if f == word {
			return true
		}
	}
	return false
}

// RuleTier removes observations with implausible prices or red-flag titles.
type RuleTier struct{}

// NewRuleTier creates the rule tier.
func NewRuleTier() *RuleTier {
	return &RuleTier{}
}

// Name returns the tier name.
func (t *RuleTier) Name() string {
	return TierRules
}

// Filter checks every observation against its category's price band and title rules.
func (t *RuleTier) Filter(ctx context.Context, obs []core.Observation, item core.Item) ([]core.Observation, []core.Removal, error) {
	kept := make([]core.Observation, 0, len(obs))
	var removed []core.Removal
	for _, o := range obs {
		if reason := t.Check(o, item); reason != "" {
			removed = append(removed, core.Removal{Observation: o, Tier: TierRules, Reason: reason})
			continue
		}
		kept = append(kept, o)
	}
	return kept, removed, nil
}

// Check returns the removal reason for o, or "" when it passes.
func (t *RuleTier) Check(o core.Observation, item core.Item) string {
	category := CategoryFor(item, o.Condition)

	band := Thresholds[category]
	if !band.Contains(o.Price) {
		return fmt.Sprintf("price $%.2f outside valid range $%.2f-$%.2f for %s", o.Price, band.Min, band.Max, category)
	}

	if o.Title == "" {
		return ""
	}
	title := strings.ToLower(o.Title)

	flags := redFlags[category]
	if item.Type == core.ItemSealed {
		flags = append(append([]redFlag{}, sealedFlags...), flags...)
	}
	for _, f := range flags {
		if f.pattern.MatchString(title) {
			return fmt.Sprintf("suspicious title pattern (%s)", f.label)
		}
	}

	for _, kw := range requiredKeywords[category] {
		if !strings.Contains(title, kw) {
			return fmt.Sprintf("title missing required keyword %q for %s", kw, category)
		}
	}
	return ""
}
