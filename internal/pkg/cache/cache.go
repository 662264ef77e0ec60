// Package cache holds the diagnostics feed shared by every device in a poll cycle.
package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/anicoll/vrm-integration/internal/pkg/model"
)

const (
	DefaultTTL = 30 * time.Second
	MinTTL     = 1 * time.Second
	MaxTTL     = 999 * time.Second
)

type fetcher interface {
	Diagnostics(ctx context.Context, installationID int64) (*model.DiagnosticsBatch, error)
}

// Observer is told about every cache lookup and upstream fetch.
type Observer interface {
	Hit()
	Miss()
	Fetched(elapsed time.Duration, records int)
	FetchFailed(err error)
}

type entry struct {
	batch     *model.DiagnosticsBatch
	expiresAt time.Time
}

// Diagnostics caches one diagnostics batch per installation for a fixed TTL.
// Concurrent misses share a single upstream fetch.
type Diagnostics struct {
	fetcher  fetcher
	logger   *zap.Logger
	observer Observer
	now      func() time.Time
	group    singleflight.Group

	mu         sync.Mutex
	ttl        time.Duration
	entries    map[int64]entry
	generation uint64
}

type Option func(*Diagnostics)

func WithClock(now func() time.Time) Option {
	return func(c *Diagnostics) {
		c.now = now
	}
}

func WithObserver(o Observer) Option {
	return func(c *Diagnostics) {
		c.observer = o
	}
}

func New(f fetcher, ttl time.Duration, opts ...Option) *Diagnostics {
	c := &Diagnostics{
		fetcher: f,
		logger:  zap.L(),
		now:     time.Now,
		ttl:     clamp(ttl),
		entries: map[int64]entry{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func clamp(ttl time.Duration) time.Duration {
	switch {
	case ttl < MinTTL:
		return MinTTL
	case ttl > MaxTTL:
		return MaxTTL
	}
	return ttl
}

// Get returns the cached batch for the installation, fetching it when the
// cache is empty or expired. A failed fetch leaves the cache empty.
func (c *Diagnostics) Get(ctx context.Context, installationID int64) (*model.DiagnosticsBatch, error) {
	if batch, ok := c.lookup(installationID); ok {
		c.hit()
		return batch, nil
	}
	c.miss()

	v, err, shared := c.group.Do(strconv.FormatInt(installationID, 10), func() (any, error) {
		// a flight that finished between lookup and Do already filled the entry
		if batch, ok := c.lookup(installationID); ok {
			return batch, nil
		}
		return c.fill(ctx, installationID)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("joined in-flight diagnostics fetch", zap.Int64("installation", installationID))
	}
	return v.(*model.DiagnosticsBatch), nil
}

func (c *Diagnostics) fill(ctx context.Context, installationID int64) (*model.DiagnosticsBatch, error) {
	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()

	start := c.now()
	batch, err := c.fetcher.Diagnostics(ctx, installationID)
	if err != nil {
		c.logger.Warn("diagnostics fetch failed", zap.Int64("installation", installationID), zap.Error(err))
		if c.observer != nil {
			c.observer.FetchFailed(err)
		}
		return nil, err
	}
	if batch == nil {
		batch = &model.DiagnosticsBatch{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if batch.CapturedAt.IsZero() {
		batch.CapturedAt = now
	}
	// an Invalidate during the fetch discards the result for later callers
	if c.generation == gen {
		c.entries[installationID] = entry{batch: batch, expiresAt: now.Add(c.ttl)}
	}
	if c.observer != nil {
		c.observer.Fetched(now.Sub(start), batch.Len())
	}
	c.logger.Debug("diagnostics cache refilled",
		zap.Int64("installation", installationID),
		zap.Int("records", batch.Len()),
		zap.Duration("ttl", c.ttl))
	return batch, nil
}

func (c *Diagnostics) lookup(installationID int64) (*model.DiagnosticsBatch, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[installationID]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, installationID)
		return nil, false
	}
	return e.batch, true
}

// Remaining is the time until the installation's entry expires, zero when empty.
func (c *Diagnostics) Remaining(installationID int64) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[installationID]
	if !ok {
		return 0
	}
	left := e.expiresAt.Sub(c.now())
	if left < 0 {
		return 0
	}
	return left
}

// Invalidate empties the cache. Fetches already in flight are not stored.
func (c *Diagnostics) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[int64]entry{}
	c.generation++
	c.logger.Info("diagnostics cache invalidated")
}

func (c *Diagnostics) TTL() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttl
}

func (c *Diagnostics) hit() {
	if c.observer != nil {
		c.observer.Hit()
	}
}

func (c *Diagnostics) miss() {
	if c.observer != nil {
		c.observer.Miss()
	}
}
