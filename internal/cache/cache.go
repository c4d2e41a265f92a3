// Package cache serves recent analysis results so repeated requests skip the pipeline.
package cache

import (
	"context"
	"time"

	"github.com/newthinker/cardquant/internal/core"
	"go.uber.org/zap"
)

// Backend holds the newest analysis result per item.
type Backend interface {
	// Latest returns the newest result for the item, or nil when none exists.
	Latest(ctx context.Context, itemKey string) (*core.AnalysisResult, error)
	Put(ctx context.Context, result core.AnalysisResult) error
}

// Mirror receives a copy of every stored result. Mirror failures are logged only.
type Mirror interface {
	Put(ctx context.Context, result core.AnalysisResult) error
}

// Cache applies a time-to-live on top of a Backend.
type Cache struct {
	backend Backend
	mirrors []Mirror
	now     func() time.Time
	logger  *zap.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the clock used for expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithMirror adds a best-effort copy target.
func WithMirror(m Mirror) Option {
	return func(c *Cache) {
		if m != nil {
			c.mirrors = append(c.mirrors, m)
		}
	}
}

// New creates a cache over backend.
func New(backend Backend, logger *zap.Logger, opts ...Option) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cache{backend: backend, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the item's newest result if it was computed less than ttl ago.
// A miss returns nil without error.
func (c *Cache) Get(ctx context.Context, itemKey string, ttl time.Duration) (*core.AnalysisResult, error) {
	if ttl <= 0 {
		return nil, nil
	}

	result, err := c.backend.Latest(ctx, itemKey)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	if age := c.now().Sub(result.ComputedAt); age >= ttl {
		c.logger.Debug("cached analysis expired",
			zap.String("item", itemKey),
			zap.Duration("age", age),
			zap.Duration("ttl", ttl),
		)
		return nil, nil
	}
	return result, nil
}

// Put stores a result under result.Item.Key(), the key Get looks it up by.
// A backend failure is returned as ErrCacheWriteFailed; mirrors are written
// regardless.
func (c *Cache) Put(ctx context.Context, result core.AnalysisResult) error {
	var putErr error
	if err := c.backend.Put(ctx, result); err != nil {
		putErr = core.WrapError(core.ErrCacheWriteFailed, err)
	}

	for _, m := range c.mirrors {
		if err := m.Put(ctx, result); err != nil {
			c.logger.Warn("analysis mirror write failed",
				zap.String("item", result.Item.Key()),
				zap.String("analysis_id", result.ID),
				zap.Error(err),
			)
		}
	}
	return putErr
}
