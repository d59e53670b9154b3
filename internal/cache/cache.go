package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"remux/internal/config"
	"remux/internal/logging"
	"remux/internal/metrics"
)

// Kind separates the two independently budgeted cache populations.
type Kind string

const (
	// KindSource holds downloaded source objects.
	KindSource Kind = "source"
	// KindOutput holds transcoded outputs.
	KindOutput Kind = "output"
)

// Cache maps content keys to local files. The index lives in SQLite under the
// cache root; pin counts and in-flight fills are process state and reset on
// restart, matching the on-disk entries which simply become unpinned.
type Cache struct {
	db     *sql.DB
	root   string
	logger *slog.Logger

	mu       sync.Mutex
	pins     map[string]int
	inflight map[string]*fillState

	now func() time.Time
}

// Handle is a pinned reference to a cache entry. The entry cannot be evicted
// until every outstanding handle is released.
type Handle struct {
	cache *Cache
	key   string

	Path string
	Size int64

	once sync.Once
}

// Key returns the cache key the handle pins.
func (h *Handle) Key() string { return h.key }

// Release unpins the entry. Safe to call more than once.
func (h *Handle) Release() {
	if h == nil || h.cache == nil {
		return
	}
	h.once.Do(func() { h.cache.unpin(h.key) })
}

type fillState struct {
	done chan struct{}
	err  error
}

// Open initializes the cache directory and its SQLite index.
func Open(cfg *config.Config, logger *slog.Logger) (*Cache, error) {
	root := strings.TrimSpace(cfg.Paths.CacheDir)
	if root == "" {
		return nil, errors.New("cache: cache_dir not configured")
	}
	if err := os.MkdirAll(filepath.Join(root, "objects"), 0o755); err != nil {
		return nil, fmt.Errorf("cache: create cache root: %w", err)
	}

	dbPath := filepath.Join(root, "index.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("cache: open index db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("cache: apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache: apply schema: %w", err)
	}

	return &Cache{
		db:       db,
		root:     root,
		logger:   logging.NewComponentLogger(logger, "cache"),
		pins:     make(map[string]int),
		inflight: make(map[string]*fillState),
		now:      time.Now,
	}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS entries (
    key TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    path TEXT NOT NULL,
    size_bytes INTEGER NOT NULL,
    last_access TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_kind_access ON entries (kind, last_access);
`

// Close closes the underlying index database.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Root returns the cache root directory.
func (c *Cache) Root() string { return c.root }

// Acquire returns a pinned handle for an existing entry, refreshing its
// last-access time, or (nil, false) on a miss. A row whose file has vanished
// is dropped from the index and reported as a clean miss.
func (c *Cache) Acquire(ctx context.Context, key string) (*Handle, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acquireLocked(ctx, key)
}

func (c *Cache) acquireLocked(ctx context.Context, key string) (*Handle, bool, error) {
	var (
		path string
		size int64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT path, size_bytes FROM entries WHERE key = ?`, key,
	).Scan(&path, &size)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		// Index trouble degrades to a miss; the caller re-produces the entry.
		c.logger.WarnContext(ctx, "cache index read failed, treating as miss",
			logging.String(logging.FieldCacheKey, key),
			logging.Error(err))
		return nil, false, nil
	}

	if _, statErr := os.Stat(path); statErr != nil {
		c.logger.WarnContext(ctx, "cache entry file missing, dropping index row",
			logging.String(logging.FieldCacheKey, key),
			logging.String("path", path),
			logging.Error(statErr))
		_, _ = c.db.ExecContext(ctx, `DELETE FROM entries WHERE key = ?`, key)
		return nil, false, nil
	}

	timestamp := c.now().UTC().Format(time.RFC3339Nano)
	if _, err := c.db.ExecContext(ctx,
		`UPDATE entries SET last_access = ? WHERE key = ?`, timestamp, key,
	); err != nil {
		c.logger.WarnContext(ctx, "cache last_access refresh failed",
			logging.String(logging.FieldCacheKey, key),
			logging.Error(err))
	}

	c.pins[key]++
	return &Handle{cache: c, key: key, Path: path, Size: size}, true, nil
}

// Insert registers a freshly produced file under key and returns a pinned
// handle. The file is moved into the cache object directory so the index row
// and the on-disk entry appear together.
func (c *Cache) Insert(ctx context.Context, key string, kind Kind, producedPath string) (*Handle, error) {
	info, err := os.Stat(producedPath)
	if err != nil {
		return nil, fmt.Errorf("cache: inspect produced file: %w", err)
	}
	size := info.Size()
	dest := c.objectPath(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := moveFile(producedPath, dest); err != nil {
		return nil, fmt.Errorf("cache: move produced file into cache: %w", err)
	}

	timestamp := c.now().UTC().Format(time.RFC3339Nano)
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO entries (key, kind, path, size_bytes, last_access)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(key) DO UPDATE SET
             kind = excluded.kind,
             path = excluded.path,
             size_bytes = excluded.size_bytes,
             last_access = excluded.last_access`,
		key, string(kind), dest, size, timestamp,
	)
	if err != nil {
		_ = os.Remove(dest)
		return nil, fmt.Errorf("cache: index insert: %w", err)
	}

	c.pins[key]++
	return &Handle{cache: c, key: key, Path: dest, Size: size}, nil
}

// GetOrFill returns a pinned handle for key, producing the entry at most once
// across concurrent callers. On a miss, exactly one caller runs fill; it must
// return the path of the produced file, which is then moved into the cache.
// Every caller, leader or follower, ends up with its own pin.
func (c *Cache) GetOrFill(ctx context.Context, key string, kind Kind, fill func(ctx context.Context) (string, error)) (*Handle, error) {
	for {
		if handle, ok, err := c.Acquire(ctx, key); err != nil {
			return nil, err
		} else if ok {
			metrics.CacheRequestsTotal.WithLabelValues(string(kind), "hit").Inc()
			return handle, nil
		}

		if fillHook != nil {
			fillHook(key)
		}

		c.mu.Lock()
		if st, waiting := c.inflight[key]; waiting {
			c.mu.Unlock()
			select {
			case <-st.done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if st.err != nil {
				return nil, st.err
			}
			// The leader inserted while holding its own pin; re-acquire.
			continue
		}
		// A competing caller may have filled and inserted between the miss
		// above and taking the mutex; re-check the index before leading a
		// fill that would overwrite its object file.
		if handle, ok, err := c.acquireLocked(ctx, key); err != nil {
			c.mu.Unlock()
			return nil, err
		} else if ok {
			c.mu.Unlock()
			metrics.CacheRequestsTotal.WithLabelValues(string(kind), "hit").Inc()
			return handle, nil
		}
		st := &fillState{done: make(chan struct{})}
		c.inflight[key] = st
		c.mu.Unlock()
		metrics.CacheRequestsTotal.WithLabelValues(string(kind), "miss").Inc()

		handle, err := c.runFill(ctx, key, kind, fill)

		c.mu.Lock()
		delete(c.inflight, key)
		c.mu.Unlock()
		st.err = err
		close(st.done)

		return handle, err
	}
}

func (c *Cache) runFill(ctx context.Context, key string, kind Kind, fill func(ctx context.Context) (string, error)) (*Handle, error) {
	produced, err := fill(ctx)
	if err != nil {
		return nil, err
	}
	handle, err := c.Insert(ctx, key, kind, produced)
	if err != nil {
		return nil, err
	}
	return handle, nil
}

func (c *Cache) unpin(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if count, ok := c.pins[key]; ok {
		if count <= 1 {
			delete(c.pins, key)
		} else {
			c.pins[key] = count - 1
		}
	}
}

// PinCount reports the number of outstanding pins for key.
func (c *Cache) PinCount(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pins[key]
}

// Usage returns the total indexed bytes for one cache population.
func (c *Cache) Usage(ctx context.Context, kind Kind) (int64, error) {
	var total sql.NullInt64
	err := c.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(size_bytes), 0) FROM entries WHERE kind = ?`, string(kind),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("cache: usage query: %w", err)
	}
	return total.Int64, nil
}

func (c *Cache) objectPath(key string) string {
	return filepath.Join(c.root, "objects", sanitizeKey(key))
}

func sanitizeKey(key string) string {
	replacer := strings.NewReplacer(":", "-", "/", "-", "\\", "-")
	return replacer.Replace(key)
}

// moveFile renames src into place, falling back to copy+remove across devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
