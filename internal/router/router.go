package router

import (
	"context"
	"sync"
	"time"

	"github.com/newthinker/cardquant/internal/core"
	"github.com/newthinker/cardquant/internal/notifier"
	"go.uber.org/zap"
)

// Config holds router configuration
type Config struct {
	MinConfidence    float64       `mapstructure:"min_confidence"`
	CooldownDuration time.Duration `mapstructure:"cooldown_duration"`
	EnabledActions   []core.Action `mapstructure:"enabled_actions"`
	OnlyChanges      bool          `mapstructure:"only_changes"`
}

// DefaultConfig returns default router configuration
func DefaultConfig() Config {
	return Config{
		MinConfidence:    0.5,
		CooldownDuration: 6 * time.Hour,
		EnabledActions:   []core.Action{core.ActionBuy, core.ActionAvoid},
		OnlyChanges:      true,
	}
}

// Option configures a Router.
type Option func(*Router)

// WithClock overrides the time source used for cooldowns.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// Router forwards recommendation alerts to notifiers with filtering
type Router struct {
	cfg        Config
	registry   *notifier.Registry
	logger     *zap.Logger
	now        func() time.Time
	cooldowns  map[string]time.Time // item key -> last alert time
	lastAction map[string]core.Action
	mu         sync.Mutex
}

// New creates a new alert router
func New(cfg Config, registry *notifier.Registry, logger *zap.Logger, opts ...Option) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		cfg:        cfg,
		registry:   registry,
		logger:     logger,
		now:        time.Now,
		cooldowns:  make(map[string]time.Time),
		lastAction: make(map[string]core.Action),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Admit records the alert's action for its item and applies the filters
// without sending anything. The returned alert carries the previous action.
func (r *Router) Admit(alert notifier.Alert) (notifier.Alert, bool) {
	key := alert.Item.Key()

	r.mu.Lock()
	alert.PreviousAction = r.lastAction[key]
	r.lastAction[key] = alert.Action
	pass := r.passesFilters(key, alert)
	if pass {
		r.cooldowns[key] = r.now()
	}
	r.mu.Unlock()

	if !pass {
		r.logger.Debug("alert filtered out",
			zap.String("item", key),
			zap.String("action", string(alert.Action)),
			zap.Float64("confidence", alert.Confidence),
		)
	}
	return alert, pass
}

// Route admits one alert and, when it passes the filters, sends it to every
// notifier. It reports whether it was sent.
func (r *Router) Route(ctx context.Context, alert notifier.Alert) bool {
	alert, ok := r.Admit(alert)
	if !ok {
		return false
	}
	r.Dispatch(ctx, []notifier.Alert{alert})
	return true
}

// Dispatch sends admitted alerts. A single alert goes out on its own, several
// go out as one batch per notifier.
func (r *Router) Dispatch(ctx context.Context, alerts []notifier.Alert) {
	// nil registry is allowed
	if len(alerts) == 0 || r.registry == nil {
		return
	}

	var errors map[string]error
	if len(alerts) == 1 {
		errors = r.registry.NotifyAll(ctx, alerts[0])
	} else {
		errors = r.registry.NotifyAllBatch(ctx, alerts)
	}
	for name, err := range errors {
		r.logger.Error("notifier failed",
			zap.String("notifier", name),
			zap.Int("alerts", len(alerts)),
			zap.Error(err),
		)
	}

	for _, alert := range alerts {
		r.logger.Info("alert routed",
			zap.String("item", alert.Item.Key()),
			zap.String("action", string(alert.Action)),
			zap.String("previous_action", string(alert.PreviousAction)),
			zap.Float64("confidence", alert.Confidence),
		)
	}
	r.logger.Debug("alerts dispatched",
		zap.Int("alerts", len(alerts)),
		zap.Int("notifiers", len(r.registry.GetAll())),
		zap.Int("errors", len(errors)),
	)
}

// passesFilters must be called with r.mu held.
func (r *Router) passesFilters(key string, alert notifier.Alert) bool {
	if alert.Confidence < r.cfg.MinConfidence {
		return false
	}

	if len(r.cfg.EnabledActions) > 0 {
		allowed := false
		for _, a := range r.cfg.EnabledActions {
			if alert.Action == a {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	if r.cfg.OnlyChanges && alert.PreviousAction == alert.Action {
		return false
	}

	last, exists := r.cooldowns[key]
	if exists && r.now().Sub(last) < r.cfg.CooldownDuration {
		return false
	}
	return true
}

// ClearCooldown removes the cooldown for one item
func (r *Router) ClearCooldown(itemKey string) {
	r.mu.Lock()
	delete(r.cooldowns, itemKey)
	r.mu.Unlock()
}

// GetStats returns router statistics
func (r *Router) GetStats() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()

	return map[string]any{
		"cooldowns_active": len(r.cooldowns),
		"tracked_items":    len(r.lastAction),
		"min_confidence":   r.cfg.MinConfidence,
		"cooldown_seconds": r.cfg.CooldownDuration.Seconds(),
		"enabled_actions":  r.cfg.EnabledActions,
		"only_changes":     r.cfg.OnlyChanges,
	}
}
