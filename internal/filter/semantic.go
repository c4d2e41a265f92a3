package filter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/newthinker/cardquant/internal/core"
	"github.com/newthinker/cardquant/internal/llm"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Classification is the classifier's verdict on one listing.
type Classification struct {
	Index           int     `json:"index"`
	Action          string  `json:"action"` // keep, remove or flag
	Confidence      float64 `json:"confidence"`
	Language        string  `json:"language"`
	ProductType     string  `json:"product_type"`
	Condition       string  `json:"condition"`
	IsAuthentic     bool    `json:"is_authentic"`
	PriceReasonable bool    `json:"price_reasonable"`
	Reasoning       string  `json:"reasoning"`
}

type classificationBatch struct {
	Results []Classification `json:"results"`
}

// typicalRanges are the usual market prices the classifier is told to expect.
var typicalRanges = map[string]PriceRange{
	"booster_box":       {90, 200},
	"elite_trainer_box": {35, 60},
	"booster_pack":      {3, 8},
	"theme_deck":        {10, 20},
	"tin":               {15, 35},
	"collection_box":    {25, 100},
	"single_card":       {1, 50},
}

// expectedProductType maps a rule category to the classifier's vocabulary.
func expectedProductType(c Category) string {
	switch c {
	case CategoryBoosterBoxInclusive:
		return "booster_box"
	case CategorySinglePack:
		return "booster_pack"
	case CategoryCard, CategoryGradedCard:
		return "single_card"
	default:
		return string(c)
	}
}

const classifierSystemPrompt = `You are an expert Pokemon TCG product classifier filtering marketplace listings for price analysis.

For each listing decide:
1. Whether it matches the expected product type
2. Language/region of the product
3. Condition and authenticity
4. Whether the price seems reasonable

Key product types:
- Booster Box: 36 packs, factory sealed
- Elite Trainer Box (ETB): 8-11 packs plus accessories
- Booster Pack: a single pack
- Bundle/Multi-pack: several packs, not a full box
- Theme/Battle Deck: pre-constructed deck
- Tin: metal container with packs
- Collection Box: special box with packs and promos

Red flags:
- Japanese or other foreign-language product in an English search
- "empty box", "box only", "damaged", "opened", "resealed"
- Individual packs or bundles listed as a booster box
- Extreme prices, too high or too low
- Reproduction, proxy or fake indicators

"4 Booster Packs" is NOT a "Booster Box" even if the title says "box".

Respond with JSON only:
{"results": [{"index": 0, "action": "keep|remove|flag", "confidence": 0.85,
  "language": "english|japanese|korean|mixed|unknown",
  "product_type": "booster_box|elite_trainer_box|booster_pack|bundle|...",
  "condition": "new|used|damaged|opened|unknown",
  "is_authentic": true, "price_reasonable": true,
  "reasoning": "brief explanation"}]}
Return one result per listing, using the listing's index.`

// SemanticConfig configures the semantic tier.
type SemanticConfig struct {
	Threshold     float64
	BatchSize     int
	Concurrency   int
	RatePerSecond float64
}

// SemanticTier delegates title classification to an LLM. Listings without a
// title are kept unclassified.
type SemanticTier struct {
	provider    llm.Provider
	threshold   float64
	batchSize   int
	concurrency int
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// NewSemanticTier creates the tier. A zero RatePerSecond disables rate limiting.
func NewSemanticTier(provider llm.Provider, cfg SemanticConfig, logger *zap.Logger) *SemanticTier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.5
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 3
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Concurrency)
	}

	return &SemanticTier{
		provider:    provider,
		threshold:   cfg.Threshold,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
		limiter:     limiter,
		logger:      logger,
	}
}

// Name returns the tier name.
func (t *SemanticTier) Name() string {
	return TierSemantic
}

// Filter classifies titled observations in concurrent batches. Any failed or
// malformed batch fails the whole tier.
func (t *SemanticTier) Filter(ctx context.Context, obs []core.Observation, item core.Item) ([]core.Observation, []core.Removal, error) {
	var titled []int
	for i, o := range obs {
		if o.Title != "" {
			titled = append(titled, i)
		}
	}

	verdicts := make(map[int]Classification, len(titled))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.concurrency)
	for start := 0; start < len(titled); start += t.batchSize {
		batch := titled[start:min(start+t.batchSize, len(titled))]
		g.Go(func() error {
			if err := t.limiter.Wait(gctx); err != nil {
				return err
			}
			results, err := t.classify(gctx, obs, batch, item)
			if err != nil {
				return err
			}
			mu.Lock()
			for idx, c := range results {
				verdicts[idx] = c
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	kept := make([]core.Observation, 0, len(obs))
	var removed []core.Removal
	for i, o := range obs {
		c, ok := verdicts[i]
		if ok && c.Action == "remove" && c.Confidence > t.threshold {
			removed = append(removed, core.Removal{
				Observation: o,
				Tier:        TierSemantic,
				Reason:      fmt.Sprintf("classifier: %s (confidence %.2f)", c.Reasoning, c.Confidence),
			})
			continue
		}
		kept = append(kept, o)
	}
	return kept, removed, nil
}

// classify sends one batch and returns verdicts keyed by observation index.
func (t *SemanticTier) classify(ctx context.Context, obs []core.Observation, batch []int, item core.Item) (map[int]Classification, error) {
	expected := expectedProductType(CategoryFor(item, obs[batch[0]].Condition))

	var b strings.Builder
	fmt.Fprintf(&b, "EXPECTED PRODUCT: %s\nEXPECTED PRODUCT TYPE: %s\n", item.DisplayName(), expected)
	if r, ok := typicalRanges[expected]; ok {
		fmt.Fprintf(&b, "TYPICAL PRICE RANGE: $%.0f - $%.0f\n", r.Min, r.Max)
	}
	b.WriteString("\nLISTINGS:\n")
	for pos, idx := range batch {
		o := obs[idx]
		fmt.Fprintf(&b, "[%d] TITLE: %s | PRICE: $%.2f | SOURCE: %s\n", pos, o.Title, o.Price, o.Source)
	}

	resp, err := t.provider.Chat(ctx, llm.ChatRequest{
		SystemPrompt: classifierSystemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: b.String()}},
		MaxTokens:    256 * len(batch),
		Temperature:  0.1,
		JSONMode:     true,
	})
	if err != nil {
		return nil, err
	}

	raw, err := llm.ExtractJSON(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("malformed classifier response: %w", err)
	}
	var parsed classificationBatch
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("malformed classifier response: %w", err)
	}

	out := make(map[int]Classification, len(parsed.Results))
	for _, c := range parsed.Results {
		if c.Index < 0 || c.Index >= len(batch) {
			return nil, fmt.Errorf("classifier returned index %d for batch of %d", c.Index, len(batch))
		}
		out[batch[c.Index]] = c
	}

	t.logger.Debug("batch classified",
		zap.String("item", item.Key()),
		zap.Int("listings", len(batch)),
		zap.Int("verdicts", len(out)),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
	)
	return out, nil
}
