package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/cardquant/internal/analysis"
	"github.com/newthinker/cardquant/internal/core"
	"github.com/newthinker/cardquant/internal/freshness"
	"github.com/newthinker/cardquant/internal/recommend"
	"github.com/newthinker/cardquant/internal/series"
	"github.com/newthinker/cardquant/internal/storage/pricedb"
	"go.uber.org/zap"
)

const maxReportedMatches = 5

func (p *Pipeline) identifyItem(ctx context.Context, r *run, stage *StageReport) (Event, error) {
	item, matches, err := p.lookup(ctx, r.req.Product)
	if errors.Is(err, core.ErrItemNotFound) {
		stage.set("match_count", 0)
		return EventNotFound, err
	}
	if err != nil {
		return EventError, err
	}

	keys := make([]string, 0, min(len(matches), maxReportedMatches))
	for _, m := range matches[:min(len(matches), maxReportedMatches)] {
		keys = append(keys, m.Key())
	}
	stage.set("match_count", len(matches))
	stage.set("matches", keys)
	stage.set("item", item.Key())

	r.item = item
	return EventOK, nil
}

func (p *Pipeline) checkCache(ctx context.Context, r *run, stage *StageReport) (Event, error) {
	if r.req.ForceAnalysis {
		stage.set("forced", true)
		p.metrics.RecordCacheLookup("skipped")
		return EventCacheMiss, nil
	}

	ttl := time.Duration(r.req.CacheHours) * time.Hour
	cached, err := p.cache.Get(ctx, r.item.Key(), ttl)
	if err != nil {
		if ctx.Err() != nil {
			return EventError, ctx.Err()
		}
		p.logger.Warn("analysis cache unavailable, recomputing",
			zap.String("item", r.item.Key()),
			zap.Error(err),
		)
		stage.degrade(err)
		p.metrics.RecordCacheLookup("error")
		return EventCacheMiss, nil
	}
	if cached == nil {
		p.metrics.RecordCacheLookup("miss")
		return EventCacheMiss, nil
	}

	stage.set("computed_at", cached.ComputedAt)
	stage.set("analysis_id", cached.ID)
	p.metrics.RecordCacheLookup("hit")
	r.cached = cached
	return EventCacheHit, nil
}

func (p *Pipeline) checkFreshness(ctx context.Context, r *run, stage *StageReport) (Event, error) {
	result, err := p.freshness.Evaluate(ctx, r.item, r.req.MaxAgeDays)
	if err != nil {
		if ctx.Err() != nil {
			return EventError, ctx.Err()
		}
		// unknown freshness means collect everything
		stage.degrade(err)
		result = freshness.Result{RecommendedAction: freshness.ActionScrapeBoth, Stale: core.AllSources}
	}
	if r.req.ForceRefresh {
		stage.set("forced", true)
		result.IsFresh = false
		result.RecommendedAction = freshness.ActionScrapeBoth
	}

	r.fresh = result
	stage.set("is_fresh", result.IsFresh)
	stage.set("days_old", result.DaysOld)
	stage.set("recommended_action", result.RecommendedAction)

	if result.RecommendedAction == freshness.ActionUseCache {
		return EventFresh, nil
	}
	return EventStale, nil
}

// collectRecord summarizes one collector fetch for the trail.
type collectRecord struct {
	Collector string      `json:"collector"`
	Source    core.Source `json:"source"`
	Fetched   int         `json:"fetched"`
	Accepted  int         `json:"accepted"`
	Rejected  int         `json:"rejected"`
	Error     string      `json:"error,omitempty"`
}

func (p *Pipeline) collectIfStale(ctx context.Context, r *run, stage *StageReport) (Event, error) {
	var records []collectRecord

	for _, src := range r.fresh.Sources() {
		collectors := p.collectors.ForSource(src)
		if len(collectors) == 0 {
			stage.degrade(core.WrapError(core.ErrCollectionFailed, errors.New("no collector for "+string(src))))
			p.metrics.RecordDegradation("collection_failed")
			continue
		}

		for _, c := range collectors {
			rec := collectRecord{Collector: c.Name(), Source: src}
			raws, err := c.Fetch(ctx, r.item)
			if err != nil {
				if ctx.Err() != nil {
					return EventError, ctx.Err()
				}
				wrapped := core.WrapError(core.ErrCollectionFailed, err)
				p.logger.Warn("collection failed",
					zap.String("item", r.item.Key()),
					zap.String("collector", c.Name()),
					zap.Error(err),
				)
				rec.Error = wrapped.Error()
				stage.degrade(wrapped)
				p.metrics.RecordDegradation("collection_failed")
				p.metrics.RecordFetch(c.Name(), "error")
				records = append(records, rec)
				continue
			}
			p.metrics.RecordFetch(c.Name(), "ok")

			obs, rejected := p.normalizer.NormalizeAll(raws, r.item)
			rec.Fetched, rec.Accepted, rec.Rejected = len(raws), len(obs), len(rejected)
			for _, rejErr := range rejected {
				p.logger.Debug("listing rejected", zap.String("collector", c.Name()), zap.Error(rejErr))
			}

			r.collected = append(r.collected, obs...)
			records = append(records, rec)
		}
	}

	stage.set("collectors", records)
	return EventOK, nil
}

// prepareSeries filters the listings collected by this run one by one, stores
// the survivors and aggregates them with the item's stored series.
func (p *Pipeline) prepareSeries(ctx context.Context, r *run, stage *StageReport) (Event, error) {
	stage.set("input", len(r.collected))

	var pending []core.Observation
	if len(r.collected) > 0 {
		useSemantic := r.req.UseLLM && p.chain.HasSemantic()
		filtered, err := p.chain.Filter(ctx, r.collected, r.item, useSemantic)
		if err != nil {
			return EventError, err
		}
		stage.set("tiers", filtered.Tiers)
		stage.set("removed", filtered.Removed)
		for _, t := range filtered.Tiers {
			if t.Error != "" {
				stage.Degraded = append(stage.Degraded, t.Error)
				p.metrics.RecordDegradation("classification_unavailable")
			}
		}
		for tier, n := range filtered.RemovedBy() {
			p.metrics.RecordRemoved(tier, n)
		}

		if len(filtered.Kept) > 0 {
			stored, err := p.store.UpsertObservations(ctx, r.item.Key(), filtered.Kept, p.now())
			if err != nil {
				if ctx.Err() != nil {
					return EventError, ctx.Err()
				}
				// keep the clean batch for this run even though it was not persisted
				p.logger.Warn("storing observations failed",
					zap.String("item", r.item.Key()),
					zap.Error(err),
				)
				stage.degrade(err)
				pending = filtered.Kept
			}
			stage.set("stored", stored)
		}
	}

	obs, err := p.store.Observations(ctx, r.item.Key(), pricedb.ObservationFilter{})
	if err != nil {
		return EventError, err
	}
	obs = append(obs, pending...)

	s, err := series.Aggregate(r.item, obs)
	if err != nil {
		if errors.Is(err, core.ErrInsufficientData) {
			return EventInsufficientData, err
		}
		return EventError, err
	}

	r.series = s
	r.quality = series.QualityScore(s)
	stage.set("points", len(s.Points))
	stage.set("sources", s.Sources)
	stage.set("data_quality_score", r.quality)
	return EventOK, nil
}

func (p *Pipeline) computeMetrics(ctx context.Context, r *run, stage *StageReport) (Event, error) {
	m, err := analysis.Compute(r.series, r.quality, analysis.WithRiskFreeRate(p.riskFreeRate))
	if err != nil {
		if errors.Is(err, core.ErrInsufficientData) {
			return EventInsufficientData, err
		}
		return EventError, err
	}

	r.metrics = m
	stage.set("average", m.PriceStats.Average)
	stage.set("volatility_percent", m.PriceStats.VolatilityPercent)
	stage.set("trend", m.Trend.Direction)
	return EventOK, nil
}

func (p *Pipeline) recommendStage(ctx context.Context, r *run, stage *StageReport) (Event, error) {
	r.recommend = recommend.Recommend(r.metrics)
	stage.set("action", r.recommend.Action)
	stage.set("score", r.recommend.Score)
	return EventOK, nil
}

func (p *Pipeline) storeResult(ctx context.Context, r *run, stage *StageReport) (Event, error) {
	r.result = &core.AnalysisResult{
		ID:              uuid.NewString(),
		Item:            r.item,
		Metrics:         r.metrics,
		Recommendation:  r.recommend,
		ConfidenceScore: r.recommend.Confidence,
		ComputedAt:      p.now().UTC(),
	}
	stage.set("analysis_id", r.result.ID)

	// a cancelled run must not leave a cached result behind
	if err := ctx.Err(); err != nil {
		return EventError, err
	}
	if err := p.cache.Put(ctx, *r.result); err != nil {
		p.logger.Warn("caching analysis failed",
			zap.String("item", r.item.Key()),
			zap.Error(err),
		)
		stage.degrade(err)
		p.metrics.RecordDegradation("cache_write_failed")
	}
	return EventOK, nil
}
