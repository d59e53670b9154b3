// Package gc runs the background sweep that keeps the disk cache inside its
// configured byte budgets.
package gc

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"remux/internal/cache"
	"remux/internal/config"
	"remux/internal/logging"
	"remux/internal/metrics"
)

// Collector periodically evicts least-recently-used cache entries once a
// budget is exceeded. Pinned entries are never touched; when only pinned
// entries remain, usage staying above the budget is reported, not an error.
type Collector struct {
	cache        *cache.Cache
	logger       *slog.Logger
	interval     time.Duration
	sourceBudget int64
	outputBudget int64

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a collector from the cache configuration.
func New(cfg *config.Config, store *cache.Cache, logger *slog.Logger) *Collector {
	return &Collector{
		cache:        store,
		logger:       logging.NewComponentLogger(logger, "gc"),
		interval:     cfg.GCInterval(),
		sourceBudget: cfg.SourceBudgetBytes(),
		outputBudget: cfg.OutputBudgetBytes(),
	}
}

// Start launches the sweep loop. It is a no-op when already running.
func (c *Collector) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				c.Sweep(runCtx)
			}
		}
	}()
	c.logger.Info("garbage collector started",
		logging.Duration("interval", c.interval),
		logging.Int64("source_budget_bytes", c.sourceBudget),
		logging.Int64("output_budget_bytes", c.outputBudget))
}

// Stop halts the sweep loop and waits for an in-flight sweep to finish.
func (c *Collector) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	cancel := c.cancel
	c.mu.Unlock()

	cancel()
	c.wg.Wait()
}

// Sweep runs one collection pass over both budgets independently.
func (c *Collector) Sweep(ctx context.Context) {
	c.sweepKind(ctx, cache.KindSource, c.sourceBudget)
	c.sweepKind(ctx, cache.KindOutput, c.outputBudget)
}

func (c *Collector) sweepKind(ctx context.Context, kind cache.Kind, budget int64) {
	usage, err := c.cache.Usage(ctx, kind)
	if err != nil {
		c.logger.WarnContext(ctx, "usage query failed, skipping sweep",
			logging.String("kind", string(kind)),
			logging.Error(err))
		return
	}
	metrics.CacheUsageBytes.WithLabelValues(string(kind)).Set(float64(usage))
	if usage <= budget {
		return
	}

	result, err := c.cache.EvictLRU(ctx, kind, budget)
	if err != nil {
		c.logger.WarnContext(ctx, "eviction sweep failed",
			logging.String("kind", string(kind)),
			logging.Error(err))
		return
	}
	metrics.CacheEvictionsTotal.WithLabelValues(string(kind)).Add(float64(result.Evicted))
	metrics.CacheUsageBytes.WithLabelValues(string(kind)).Set(float64(result.UsageAfter))

	if result.UsageAfter > budget {
		// Every remaining entry is pinned by an in-flight job.
		c.logger.InfoContext(ctx, "cache over budget with only pinned entries remaining",
			logging.String("kind", string(kind)),
			logging.Int64("usage_bytes", result.UsageAfter),
			logging.Int64("budget_bytes", budget))
		return
	}
	if result.Evicted > 0 {
		c.logger.InfoContext(ctx, "cache sweep reclaimed space",
			logging.String("kind", string(kind)),
			logging.Int("evicted", result.Evicted),
			logging.Int64("freed_bytes", result.FreedBytes),
			logging.Int64("usage_bytes", result.UsageAfter))
	}
}
