package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"remux/internal/config"
	"remux/internal/logging"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.CacheDir = t.TempDir()
	c, err := Open(&cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func writeScratch(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "produced.bin")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write scratch: %v", err)
	}
	return path
}

func TestAcquireMissThenInsertHit(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if _, ok, err := c.Acquire(ctx, "src:abc"); err != nil || ok {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}

	handle, err := c.Insert(ctx, "src:abc", KindSource, writeScratch(t, "source-bytes"))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if handle.Size != int64(len("source-bytes")) {
		t.Fatalf("unexpected size: %d", handle.Size)
	}
	if c.PinCount("src:abc") != 1 {
		t.Fatalf("expected pin count 1, got %d", c.PinCount("src:abc"))
	}

	again, ok, err := c.Acquire(ctx, "src:abc")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	data, err := os.ReadFile(again.Path)
	if err != nil {
		t.Fatalf("read cached file: %v", err)
	}
	if string(data) != "source-bytes" {
		t.Fatalf("unexpected cached content: %q", data)
	}
	if c.PinCount("src:abc") != 2 {
		t.Fatalf("expected pin count 2, got %d", c.PinCount("src:abc"))
	}

	handle.Release()
	again.Release()
	again.Release() // double release is a no-op
	if c.PinCount("src:abc") != 0 {
		t.Fatalf("expected pin count 0, got %d", c.PinCount("src:abc"))
	}
}

func TestAcquireSelfHealsMissingFile(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	handle, err := c.Insert(ctx, "src:gone", KindSource, writeScratch(t, "x"))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	handle.Release()

	if err := os.Remove(handle.Path); err != nil {
		t.Fatalf("remove cached file: %v", err)
	}
	if _, ok, err := c.Acquire(ctx, "src:gone"); err != nil || ok {
		t.Fatalf("expected clean miss after file loss, got ok=%v err=%v", ok, err)
	}
}

func TestGetOrFillDeduplicatesConcurrentCallers(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	gate := make(chan struct{})
	var fills atomic.Int32
	fill := func(context.Context) (string, error) {
		fills.Add(1)
		<-gate // hold the fill open until every caller has joined
		path := filepath.Join(t.TempDir(), "out.bin")
		if err := os.WriteFile(path, []byte("encoded"), 0o644); err != nil {
			return "", err
		}
		return path, nil
	}

	const callers = 8
	var wg sync.WaitGroup
	handles := make([]*Handle, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i], errs[i] = c.GetOrFill(ctx, "out:key", KindOutput, fill)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	if got := fills.Load(); got != 1 {
		t.Fatalf("expected exactly one fill, got %d", got)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		data, err := os.ReadFile(handles[i].Path)
		if err != nil || string(data) != "encoded" {
			t.Fatalf("caller %d: bad content %q err=%v", i, data, err)
		}
	}
	if c.PinCount("out:key") != callers {
		t.Fatalf("expected %d pins, got %d", callers, c.PinCount("out:key"))
	}
	for _, h := range handles {
		h.Release()
	}
}

func TestGetOrFillRechecksIndexAfterMiss(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	// A competing caller completes a full fill-and-insert inside the window
	// between this caller's miss and its in-flight registration.
	var interleaved bool
	fillHook = func(key string) {
		if interleaved {
			return
		}
		interleaved = true
		handle, err := c.GetOrFill(ctx, key, KindOutput, func(context.Context) (string, error) {
			return writeScratch(t, "first writer"), nil
		})
		if err != nil {
			t.Errorf("competing fill: %v", err)
			return
		}
		handle.Release()
	}
	defer func() { fillHook = nil }()

	var lateFills atomic.Int32
	handle, err := c.GetOrFill(ctx, "out:raced", KindOutput, func(context.Context) (string, error) {
		lateFills.Add(1)
		return writeScratch(t, "late writer"), nil
	})
	if err != nil {
		t.Fatalf("GetOrFill: %v", err)
	}
	defer handle.Release()

	if got := lateFills.Load(); got != 0 {
		t.Fatalf("late caller re-ran fill %d times over an existing entry", got)
	}
	data, err := os.ReadFile(handle.Path)
	if err != nil || string(data) != "first writer" {
		t.Fatalf("expected the competing writer's object to survive, got %q err=%v", data, err)
	}
	if c.PinCount("out:raced") != 1 {
		t.Fatalf("expected one outstanding pin, got %d", c.PinCount("out:raced"))
	}
}

func TestGetOrFillPropagatesFillError(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	boom := errors.New("portal unreachable")
	gate := make(chan struct{})
	var fills atomic.Int32
	fill := func(context.Context) (string, error) {
		fills.Add(1)
		<-gate
		return "", boom
	}

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.GetOrFill(ctx, "out:fail", KindOutput, fill)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	if got := fills.Load(); got != 1 {
		t.Fatalf("expected one fill attempt, got %d", got)
	}
	for i, err := range errs {
		if !errors.Is(err, boom) {
			t.Fatalf("caller %d: expected fill error, got %v", i, err)
		}
	}
	// A later caller retries the fill from scratch.
	if _, err := c.GetOrFill(ctx, "out:fail", KindOutput, fill); !errors.Is(err, boom) {
		t.Fatalf("expected retry to run fill again, got %v", err)
	}
	if got := fills.Load(); got != 2 {
		t.Fatalf("expected second fill attempt, got %d", got)
	}
}

func TestEvictLRUSkipsPinnedAndOrdersByAccess(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	clock := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	insert := func(key string, size int) *Handle {
		t.Helper()
		path := filepath.Join(t.TempDir(), "f.bin")
		if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		h, err := c.Insert(ctx, key, KindOutput, path)
		if err != nil {
			t.Fatalf("Insert %s: %v", key, err)
		}
		clock = clock.Add(time.Second)
		return h
	}

	oldest := insert("out:a", 100)
	middle := insert("out:b", 100)
	newest := insert("out:c", 100)
	oldest.Release()
	newest.Release()
	// out:b stays pinned.

	result, err := c.EvictLRU(ctx, KindOutput, 150)
	if err != nil {
		t.Fatalf("EvictLRU: %v", err)
	}
	if result.Evicted != 2 {
		t.Fatalf("expected 2 evictions, got %+v", result)
	}

	// Pinned entry survives even though usage stays above budget.
	if _, ok, _ := c.Acquire(ctx, "out:b"); !ok {
		t.Fatal("pinned entry must survive eviction")
	}
	if _, ok, _ := c.Acquire(ctx, "out:a"); ok {
		t.Fatal("oldest unpinned entry should be evicted")
	}
	if _, ok, _ := c.Acquire(ctx, "out:c"); ok {
		t.Fatal("second-oldest unpinned entry should be evicted to reach budget")
	}
	middle.Release()
}

func TestEvictLRUKeepsMostRecentlyUsed(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	clock := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	for _, key := range []string{"out:1", "out:2", "out:3"} {
		path := filepath.Join(t.TempDir(), "f.bin")
		if err := os.WriteFile(path, make([]byte, 100), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		h, err := c.Insert(ctx, key, KindOutput, path)
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		h.Release()
		clock = clock.Add(time.Second)
	}

	// Touch the oldest entry so it becomes the most recent.
	h, ok, err := c.Acquire(ctx, "out:1")
	if err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}
	h.Release()
	clock = clock.Add(time.Second)

	result, err := c.EvictLRU(ctx, KindOutput, 100)
	if err != nil {
		t.Fatalf("EvictLRU: %v", err)
	}
	if result.UsageAfter > 100 {
		t.Fatalf("expected usage at or below budget, got %d", result.UsageAfter)
	}
	if _, ok, _ := c.Acquire(ctx, "out:1"); !ok {
		t.Fatal("most recently accessed entry must survive")
	}
}

func TestUsagePerKind(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	h1, err := c.Insert(ctx, "src:a", KindSource, writeScratch(t, "12345"))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	h2, err := c.Insert(ctx, "out:a", KindOutput, writeScratch(t, "123"))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	defer h1.Release()
	defer h2.Release()

	if usage, _ := c.Usage(ctx, KindSource); usage != 5 {
		t.Fatalf("source usage = %d, want 5", usage)
	}
	if usage, _ := c.Usage(ctx, KindOutput); usage != 3 {
		t.Fatalf("output usage = %d, want 3", usage)
	}
}

func TestEvictLRUAllPinnedReportsOverBudget(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	h, err := c.Insert(ctx, "out:pinned", KindOutput, writeScratch(t, "retained"))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	defer h.Release()

	result, err := c.EvictLRU(ctx, KindOutput, 1)
	if err != nil {
		t.Fatalf("EvictLRU must not error when nothing is evictable: %v", err)
	}
	if result.Evicted != 0 {
		t.Fatalf("expected no evictions, got %+v", result)
	}
	if result.UsageAfter <= 1 {
		t.Fatalf("usage should legitimately stay above budget, got %d", result.UsageAfter)
	}
}
