// Package pipeline sequences the analysis stages for one product request.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/cardquant/internal/analysis"
	"github.com/newthinker/cardquant/internal/cache"
	"github.com/newthinker/cardquant/internal/collector"
	"github.com/newthinker/cardquant/internal/core"
	"github.com/newthinker/cardquant/internal/filter"
	"github.com/newthinker/cardquant/internal/freshness"
	"github.com/newthinker/cardquant/internal/ingest"
	"github.com/newthinker/cardquant/internal/metrics"
	"github.com/newthinker/cardquant/internal/storage/pricedb"
	"go.uber.org/zap"
)

// Deps are the collaborators of a Pipeline. Only Store is required.
type Deps struct {
	Store      pricedb.Store
	Collectors *collector.Registry
	Chain      *filter.Chain
	Cache      *cache.Cache
	Metrics    *metrics.Registry
	Logger     *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock overrides the time source of the pipeline and its defaults.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithTimeout bounds every run. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.timeout = d }
}

// WithRiskFreeRate sets the annual rate behind the advanced return figures.
func WithRiskFreeRate(rate float64) Option {
	return func(p *Pipeline) { p.riskFreeRate = rate }
}

// Pipeline runs analysis requests. Runs share no state besides the store and
// may execute concurrently.
type Pipeline struct {
	store      pricedb.Store
	collectors *collector.Registry
	normalizer *ingest.Normalizer
	freshness  *freshness.Evaluator
	chain      *filter.Chain
	cache      *cache.Cache
	metrics    *metrics.Registry
	logger     *zap.Logger
	now        func() time.Time
	timeout    time.Duration

	riskFreeRate float64

	handlers map[State]stageFunc
}

type stageFunc func(ctx context.Context, r *run, stage *StageReport) (Event, error)

// run is the state carried between the stages of one request.
type run struct {
	req       Request
	item      core.Item
	cached    *core.AnalysisResult
	fresh     freshness.Result
	collected []core.Observation
	series    core.Series
	quality   float64
	metrics   core.Metrics
	recommend core.Recommendation
	result    *core.AnalysisResult
}

// New creates a pipeline.
func New(deps Deps, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:      deps.Store,
		collectors: deps.Collectors,
		normalizer: ingest.NewNormalizer(),
		chain:      deps.Chain,
		cache:      deps.Cache,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		now:        time.Now,

		riskFreeRate: analysis.DefaultRiskFreeRate,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.collectors == nil {
		p.collectors = collector.NewRegistry()
	}
	if p.chain == nil {
		p.chain = filter.NewChain(nil, filter.NewRuleTier(), filter.NewStatisticalTier(0, 0), p.logger)
	}
	if p.cache == nil {
		p.cache = cache.New(cache.NewStoreBackend(p.store), p.logger, cache.WithClock(p.now))
	}
	p.freshness = freshness.New(p.store, p.logger, freshness.WithClock(p.now))

	p.handlers = map[State]stageFunc{
		StateIdentifyItem:   p.identifyItem,
		StateCheckCache:     p.checkCache,
		StateCheckFreshness: p.checkFreshness,
		StateCollectIfStale: p.collectIfStale,
		StatePrepareSeries:  p.prepareSeries,
		StateComputeMetrics: p.computeMetrics,
		StateRecommend:      p.recommendStage,
		StateStoreResult:    p.storeResult,
	}
	return p
}

// Analyze runs one request to a terminal state. The report is always returned;
// the error is non-nil when the run did not reach StateDone.
func (p *Pipeline) Analyze(ctx context.Context, req Request) (*Report, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	started := time.Now()
	report := &Report{RunID: uuid.NewString(), Product: req.Product}
	r := &run{req: req}
	log := p.logger.With(zap.String("run_id", report.RunID), zap.String("product", req.Product))

	state := StateIdentifyItem
	var runErr error
	for !state.Terminal() {
		stage := StageReport{Stage: state}
		stageStart := time.Now()

		var event Event
		if err := ctx.Err(); err != nil {
			event, runErr = EventError, err
		} else {
			event, runErr = p.handlers[state](ctx, r, &stage)
			if runErr != nil && event != EventNotFound && event != EventInsufficientData {
				event = EventError
			}
		}

		stage.Event = event
		stage.Duration = time.Since(stageStart)
		if runErr != nil {
			stage.Error = runErr.Error()
		}
		report.Stages = append(report.Stages, stage)
		p.metrics.RecordStage(string(state), stage.Duration.Seconds())

		log.Debug("stage complete",
			zap.String("stage", string(state)),
			zap.String("event", string(event)),
			zap.Duration("duration", stage.Duration),
		)

		next, err := Next(state, event)
		if err != nil && runErr == nil {
			runErr = err
		}
		state = next
	}

	report.FinalState = state
	report.Success = state == StateDone
	if r.item.ID != "" {
		item := r.item
		report.Item = &item
	}
	if report.Success {
		report.UsedCache = r.cached != nil
		report.Result = r.result
		if report.UsedCache {
			report.Result = r.cached
		}
	} else {
		if runErr == nil {
			runErr = fmt.Errorf("run ended in %s", state)
		}
		report.Error = runErr.Error()
	}

	p.metrics.RecordAnalysis(outcome(state, report.UsedCache), time.Since(started).Seconds())
	if report.Success {
		log.Info("analysis complete",
			zap.String("item", r.item.Key()),
			zap.Bool("used_cache", report.UsedCache),
			zap.String("action", string(report.Result.Recommendation.Action)),
		)
		return report, nil
	}

	log.Warn("analysis failed", zap.String("state", string(state)), zap.Error(runErr))
	return report, runErr
}

// History returns stored results for the product's item, newest first.
func (p *Pipeline) History(ctx context.Context, product string, limit int) (core.Item, []core.AnalysisResult, error) {
	item, _, err := p.lookup(ctx, product)
	if err != nil {
		return core.Item{}, nil, err
	}
	results, err := p.store.ListAnalyses(ctx, item.Key(), limit)
	if err != nil {
		return item, nil, err
	}
	return item, results, nil
}

// lookup resolves a product name to the first matching item, cards first.
func (p *Pipeline) lookup(ctx context.Context, product string) (core.Item, []core.Item, error) {
	query := strings.TrimSpace(product)
	if query == "" {
		return core.Item{}, nil, core.WrapError(core.ErrItemNotFound, errors.New("empty product name"))
	}

	matches, err := p.store.FindItems(ctx, query, "")
	if err != nil {
		return core.Item{}, nil, err
	}
	if len(matches) == 0 {
		return core.Item{}, nil, core.WrapError(core.ErrItemNotFound, fmt.Errorf("no item matches %q", query))
	}
	return matches[0], matches, nil
}
