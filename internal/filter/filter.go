// Package filter removes untrustworthy price observations in tiers.
package filter

import (
	"context"
	"errors"
	"time"

	"github.com/newthinker/cardquant/internal/core"
	"go.uber.org/zap"
)

// Tier names
const (
	TierSemantic    = "semantic"
	TierRules       = "rules"
	TierStatistical = "statistical"
)

// Tier is one stage of the filtering chain. Every tier has the same contract so
// any of them can be dropped or replaced.
type Tier interface {
	Name() string
	Filter(ctx context.Context, obs []core.Observation, item core.Item) (kept []core.Observation, removed []core.Removal, err error)
}

// TierReport summarizes one tier's run for the stage trail.
type TierReport struct {
	Tier     string        `json:"tier"`
	Input    int           `json:"input"`
	Kept     int           `json:"kept"`
	Removed  int           `json:"removed"`
	Skipped  bool          `json:"skipped,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Result is the chain output.
type Result struct {
	Kept    []core.Observation `json:"-"`
	Removed []core.Removal     `json:"removed"`
	Tiers   []TierReport       `json:"tiers"`
}

// Chain runs semantic, rule and statistical tiers in sequence.
type Chain struct {
	semantic    Tier
	rules       Tier
	statistical Tier
	logger      *zap.Logger
}

// NewChain builds a chain. semantic may be nil when no classifier is configured.
func NewChain(semantic, rules, statistical Tier, logger *zap.Logger) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{
		semantic:    semantic,
		rules:       rules,
		statistical: statistical,
		logger:      logger,
	}
}

// HasSemantic reports whether a semantic tier is configured.
func (c *Chain) HasSemantic() bool {
	return c.semantic != nil
}

// Filter runs the tiers. A semantic failure falls back to the rule tier with the
// untouched batch; only cancellation of ctx fails the chain.
func (c *Chain) Filter(ctx context.Context, obs []core.Observation, item core.Item, useSemantic bool) (*Result, error) {
	result := &Result{}
	current := obs

	if c.semantic != nil {
		if !useSemantic {
			result.Tiers = append(result.Tiers, TierReport{Tier: c.semantic.Name(), Input: len(current), Kept: len(current), Skipped: true})
		} else {
			kept, removed, report, err := c.run(ctx, c.semantic, current, item)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				c.logger.Warn("semantic tier unavailable, falling back to rules",
					zap.String("item", item.Key()),
					zap.Error(err),
				)
				report.Error = core.WrapError(core.ErrClassificationUnavailable, err).Error()
				report.Kept, report.Removed = len(current), 0
			} else {
				current = kept
				result.Removed = append(result.Removed, removed...)
			}
			result.Tiers = append(result.Tiers, report)
		}
	}

	for _, tier := range []Tier{c.rules, c.statistical} {
		if tier == nil {
			continue
		}
		kept, removed, report, err := c.run(ctx, tier, current, item)
		if err != nil {
			return nil, err
		}
		current = kept
		result.Removed = append(result.Removed, removed...)
		result.Tiers = append(result.Tiers, report)
	}

	result.Kept = current
	c.logger.Debug("filter chain complete",
		zap.String("item", item.Key()),
		zap.Int("input", len(obs)),
		zap.Int("kept", len(current)),
		zap.Int("removed", len(result.Removed)),
	)
	return result, nil
}

func (c *Chain) run(ctx context.Context, tier Tier, obs []core.Observation, item core.Item) ([]core.Observation, []core.Removal, TierReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, TierReport{Tier: tier.Name()}, err
	}

	start := time.Now()
	kept, removed, err := tier.Filter(ctx, obs, item)
	report := TierReport{
		Tier:     tier.Name(),
		Input:    len(obs),
		Kept:     len(kept),
		Removed:  len(removed),
		Duration: time.Since(start),
	}
	if err != nil {
		return nil, nil, report, err
	}
	if len(kept)+len(removed) != len(obs) {
		return nil, nil, report, errors.New(tier.Name() + ": kept and removed do not partition the input")
	}
	return kept, removed, report, nil
}

// RemovedBy counts removals per tier.
func (r *Result) RemovedBy() map[string]int {
	counts := make(map[string]int)
	for _, rm := range r.Removed {
		counts[rm.Tier]++
	}
	return counts
}
