package history

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Cleaner periodically drops history records older than a maximum age
type Cleaner struct {
	store    *Store
	maxAge   time.Duration
	interval time.Duration
	logger   *slog.Logger
	wg       sync.WaitGroup
	done     chan struct{}
}

// NewCleaner creates a new cleaner. It does nothing unless both maxAge and
// interval are positive.
func NewCleaner(store *Store, maxAge, interval time.Duration, logger *slog.Logger) *Cleaner {
	return &Cleaner{
		store:    store,
		maxAge:   maxAge,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start starts the cleanup goroutine
func (c *Cleaner) Start(ctx context.Context) {
	if c.maxAge <= 0 || c.interval <= 0 {
		return
	}

	c.wg.Add(1)
	go c.loop(ctx)

	c.logger.Info("history cleaner started",
		"max_age", c.maxAge,
		"interval", c.interval,
	)
}

// Stop stops the cleaner and waits for the goroutine to finish
func (c *Cleaner) Stop() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	c.wg.Wait()
}

func (c *Cleaner) loop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Run cleanup immediately on start
	c.run(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.run(ctx)
		}
	}
}

func (c *Cleaner) run(ctx context.Context) {
	deleted, err := c.store.DeleteOlderThan(ctx, c.maxAge)
	if err != nil {
		c.logger.Error("failed to clean up send history", "error", err)
		return
	}

	if deleted > 0 {
		c.logger.Info("cleaned up send history", "deleted", deleted)
	}
}
