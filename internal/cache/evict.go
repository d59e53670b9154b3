package cache

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"remux/internal/logging"
)

// EvictionResult summarizes one LRU sweep over a single cache population.
type EvictionResult struct {
	Kind       Kind
	Examined   int
	Evicted    int
	FreedBytes int64
	UsageAfter int64
}

// EvictLRU removes unpinned entries of the given kind, oldest last-access
// first, until usage drops to the budget or no unpinned entries remain.
// Pinned entries are never touched. A candidate whose file cannot be removed
// is skipped rather than failing the sweep.
func (c *Cache) EvictLRU(ctx context.Context, kind Kind, budget int64) (EvictionResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := EvictionResult{Kind: kind}

	rows, err := c.db.QueryContext(ctx,
		`SELECT key, path, size_bytes FROM entries WHERE kind = ? ORDER BY last_access ASC`,
		string(kind),
	)
	if err != nil {
		return result, fmt.Errorf("cache: eviction scan: %w", err)
	}

	type candidate struct {
		key  string
		path string
		size int64
	}
	var (
		candidates []candidate
		usage      int64
	)
	for rows.Next() {
		var entry candidate
		if err := rows.Scan(&entry.key, &entry.path, &entry.size); err != nil {
			_ = rows.Close()
			return result, fmt.Errorf("cache: eviction scan row: %w", err)
		}
		candidates = append(candidates, entry)
		usage += entry.size
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return result, fmt.Errorf("cache: eviction scan rows: %w", err)
	}
	_ = rows.Close()

	for _, entry := range candidates {
		if usage <= budget {
			break
		}
		result.Examined++
		if c.pins[entry.key] > 0 {
			continue
		}
		if err := os.Remove(entry.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.logger.WarnContext(ctx, "cache eviction could not remove file, skipping candidate",
				logging.String(logging.FieldCacheKey, entry.key),
				logging.String("path", entry.path),
				logging.Error(err))
			continue
		}
		if _, err := c.db.ExecContext(ctx, `DELETE FROM entries WHERE key = ?`, entry.key); err != nil {
			c.logger.WarnContext(ctx, "cache eviction could not delete index row",
				logging.String(logging.FieldCacheKey, entry.key),
				logging.Error(err))
			continue
		}
		usage -= entry.size
		result.Evicted++
		result.FreedBytes += entry.size
		c.logger.DebugContext(ctx, "evicted cache entry",
			logging.String(logging.FieldCacheKey, entry.key),
			logging.Int64("size_bytes", entry.size))
	}

	result.UsageAfter = usage
	return result, nil
}

// Stats describes current cache usage.
type Stats struct {
	Entries      int    `json:"entries"`
	SourceBytes  int64  `json:"source_bytes"`
	OutputBytes  int64  `json:"output_bytes"`
	PinnedKeys   int    `json:"pinned_keys"`
	FreeBytes    uint64 `json:"free_bytes"`
	TotalFSBytes uint64 `json:"total_fs_bytes"`
}

// statfsFunc allows tests to stub filesystem stats.
type statfsFunc func(path string) (total uint64, free uint64, err error)

var statfs statfsFunc = realStatfs

// Stats returns entry counts, per-population usage, and filesystem headroom.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	var stats Stats

	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&stats.Entries); err != nil {
		return stats, fmt.Errorf("cache: stats count: %w", err)
	}
	var err error
	if stats.SourceBytes, err = c.Usage(ctx, KindSource); err != nil {
		return stats, err
	}
	if stats.OutputBytes, err = c.Usage(ctx, KindOutput); err != nil {
		return stats, err
	}

	c.mu.Lock()
	stats.PinnedKeys = len(c.pins)
	c.mu.Unlock()

	total, free, err := statfs(c.root)
	if err != nil {
		c.logger.WarnContext(ctx, "cache statfs failed",
			logging.String("path", c.root),
			logging.Error(err))
		return stats, nil
	}
	stats.TotalFSBytes = total
	stats.FreeBytes = free
	return stats, nil
}

func realStatfs(path string) (uint64, uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	return total, free, nil
}
