package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/newthinker/cardquant/internal/config"
	"github.com/newthinker/cardquant/internal/metrics"
	"github.com/newthinker/cardquant/internal/notifier"
	"github.com/newthinker/cardquant/internal/pipeline"
	"github.com/newthinker/cardquant/internal/router"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSchedule re-analyzes the watchlist every six hours.
const DefaultSchedule = "0 0 */6 * * *"

// alertTimeout bounds delivery of a cycle's alerts. Delivery ignores
// cancellation of the cycle itself.
const alertTimeout = 30 * time.Second

// Analyzer runs one analysis request.
type Analyzer interface {
	Analyze(ctx context.Context, req pipeline.Request) (*pipeline.Report, error)
}

// RunResult summarizes the analysis of one watchlist product in a cycle.
type RunResult struct {
	Product   string
	Item      string
	Action    string
	UsedCache bool
	Alerted   bool
	Err       error
}

// App re-analyzes the watchlist on a cron schedule
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	analyzer Analyzer
	metrics  *metrics.Registry
	router   *router.Router

	watchlistItems []string
	watchlistSet   map[string]struct{}
	schedule       string

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	lastRun  time.Time
	cycles   int
	failures int
}

// New creates a new App instance
func New(cfg *config.Config, analyzer Analyzer, m *metrics.Registry, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = config.Defaults()
	}

	a := &App{
		cfg:          cfg,
		logger:       logger,
		analyzer:     analyzer,
		metrics:      m,
		watchlistSet: make(map[string]struct{}),
		schedule:     cfg.Scheduler.Schedule,
	}
	if a.schedule == "" {
		a.schedule = DefaultSchedule
	}
	a.SetWatchlist(cfg.Watchlist)
	return a
}

// SetWatchlist replaces the products to monitor
func (a *App) SetWatchlist(products []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.watchlistItems = make([]string, 0, len(products))
	a.watchlistSet = make(map[string]struct{}, len(products))
	for _, p := range products {
		a.addLocked(p)
	}
	a.metrics.SetWatchlistSize(len(a.watchlistItems))
}

// SetRouter enables alerts for analyzed products. A nil router disables them.
func (a *App) SetRouter(r *router.Router) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.router = r
}

// SetSchedule sets the cron spec used by the next Start
func (a *App) SetSchedule(spec string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.schedule = spec
}

// Start runs one cycle immediately and then on every schedule tick until ctx
// is cancelled or Stop is called.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(a.schedule, func() { a.runCycle(ctx) }); err != nil {
		a.mu.Unlock()
		cancel()
		return fmt.Errorf("invalid schedule %q: %w", a.schedule, err)
	}
	a.running = true
	a.cancel = cancel
	schedule := a.schedule
	a.mu.Unlock()

	a.logger.Info("watch mode starting",
		zap.Int("watchlist_count", len(a.GetWatchlist())),
		zap.String("schedule", schedule),
	)

	// Initial run
	a.runCycle(ctx)

	c.Start()
	<-ctx.Done()

	a.logger.Info("watch mode shutting down")
	<-c.Stop().Done()

	a.mu.Lock()
	a.running = false
	a.cancel = nil
	a.mu.Unlock()
	return ctx.Err()
}

// Stop stops the monitoring loop
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
}

// RunOnce performs a single analysis cycle over the watchlist.
func (a *App) RunOnce(ctx context.Context) []RunResult {
	return a.runCycle(ctx)
}

func (a *App) runCycle(ctx context.Context) []RunResult {
	products := a.GetWatchlist()
	if len(products) == 0 {
		a.logger.Debug("no products in watchlist")
		return nil
	}

	a.logger.Debug("starting analysis cycle", zap.Int("products", len(products)))

	a.mu.RLock()
	r := a.router
	a.mu.RUnlock()

	results := make([]RunResult, 0, len(products))
	var alerts []notifier.Alert
	failed := 0
	for _, product := range products {
		if ctx.Err() != nil {
			break
		}
		res, alert := a.analyzeProduct(ctx, product, r)
		if res.Err != nil {
			failed++
		}
		if alert != nil {
			alerts = append(alerts, *alert)
		}
		results = append(results, res)
	}

	if len(alerts) > 0 {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTimeout)
		r.Dispatch(sendCtx, alerts)
		cancel()
	}

	status := "ok"
	switch {
	case ctx.Err() != nil:
		status = "cancelled"
	case failed > 0:
		status = "partial"
	}
	a.metrics.RecordScheduledRun(status)

	a.mu.Lock()
	a.lastRun = time.Now()
	a.cycles++
	a.failures += failed
	a.mu.Unlock()

	a.logger.Info("analysis cycle complete",
		zap.Int("products", len(results)),
		zap.Int("failed", failed),
		zap.String("status", status),
	)
	return results
}

// analyzeProduct runs the pipeline for one watchlist entry with the configured
// defaults. It returns the alert the router admitted, if any, for the cycle to send.
func (a *App) analyzeProduct(ctx context.Context, product string, r *router.Router) (RunResult, *notifier.Alert) {
	res := RunResult{Product: product}
	if a.analyzer == nil {
		res.Err = fmt.Errorf("no analyzer configured")
		return res, nil
	}

	report, err := a.analyzer.Analyze(ctx, pipeline.Request{
		Product:    product,
		MaxAgeDays: a.cfg.Analysis.MaxAgeDays,
		CacheHours: a.cfg.Analysis.CacheHours,
		UseLLM:     a.cfg.Analysis.UseLLM,
	})
	if err != nil {
		a.logger.Warn("scheduled analysis failed",
			zap.String("product", product),
			zap.Error(err),
		)
		res.Err = err
		return res, nil
	}

	var admitted *notifier.Alert
	res.UsedCache = report.UsedCache
	if report.Result != nil {
		res.Item = report.Result.Item.Key()
		res.Action = string(report.Result.Recommendation.Action)

		if r != nil {
			if alert, ok := r.Admit(notifier.NewAlert(product, *report.Result)); ok {
				admitted = &alert
				res.Alerted = true
			}
		}
	}
	a.logger.Info("product analyzed",
		zap.String("product", product),
		zap.String("item", res.Item),
		zap.String("action", res.Action),
		zap.Bool("used_cache", res.UsedCache),
		zap.Bool("alerted", res.Alerted),
	)
	return res, admitted
}

// GetStats returns application statistics
func (a *App) GetStats() map[string]any {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := map[string]any{
		"running":   a.running,
		"watchlist": len(a.watchlistItems),
		"schedule":  a.schedule,
		"cycles":    a.cycles,
		"failures":  a.failures,
		"last_run":  a.lastRun,
	}
	if a.router != nil {
		stats["router"] = a.router.GetStats()
	}
	return stats
}

// GetWatchlist returns the current watchlist products.
func (a *App) GetWatchlist() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	result := make([]string, len(a.watchlistItems))
	copy(result, a.watchlistItems)
	return result
}

// AddToWatchlist adds a product to the watchlist. It reports false for blanks and duplicates.
func (a *App) AddToWatchlist(product string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	added := a.addLocked(product)
	a.metrics.SetWatchlistSize(len(a.watchlistItems))
	return added
}

func (a *App) addLocked(product string) bool {
	product = strings.TrimSpace(product)
	key := strings.ToLower(product)
	if product == "" {
		return false
	}
	if _, exists := a.watchlistSet[key]; exists {
		return false
	}
	a.watchlistSet[key] = struct{}{}
	a.watchlistItems = append(a.watchlistItems, product)
	return true
}

// RemoveFromWatchlist removes a product from the watchlist.
func (a *App) RemoveFromWatchlist(product string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := strings.ToLower(strings.TrimSpace(product))
	if _, exists := a.watchlistSet[key]; !exists {
		return false
	}
	delete(a.watchlistSet, key)
	for i, item := range a.watchlistItems {
		if strings.ToLower(item) == key {
			a.watchlistItems = append(a.watchlistItems[:i], a.watchlistItems[i+1:]...)
			break
		}
	}
	a.metrics.SetWatchlistSize(len(a.watchlistItems))
	return true
}
