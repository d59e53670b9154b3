// Package daemon coordinates the long-running services: the job
// orchestrator, the cache garbage collector, and the HTTP ingress. It also
// enforces single-instance execution through a lock file.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"log/slog"

	"github.com/gofrs/flock"

	"remux/internal/cache"
	"remux/internal/config"
	"remux/internal/deps"
	"remux/internal/encoder"
	"remux/internal/gc"
	"remux/internal/logging"
	"remux/internal/notifications"
	"remux/internal/orchestrator"
	"remux/internal/registry"
	"remux/internal/storage"
)

// Components holds the collaborators the daemon drives. Tests inject fakes
// here; production wiring comes from Build.
type Components struct {
	Cache    *cache.Cache
	Store    storage.Client
	Engine   encoder.Engine
	Notifier notifications.Service
}

// Daemon owns the service lifecycle.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	cache    *cache.Cache
	store    storage.Client
	engine   encoder.Engine
	notifier notifications.Service
	orch     *orchestrator.Orchestrator
	gc       *gc.Collector
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Build constructs a daemon with production components.
func Build(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	store, err := cache.Open(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	comps := Components{
		Cache:    store,
		Store:    storage.NewStore(cfg),
		Engine:   encoder.New(cfg, logger),
		Notifier: notifications.NewService(cfg),
	}
	return New(cfg, comps, logger)
}

// New constructs a daemon around the given components.
func New(cfg *config.Config, comps Components, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || comps.Cache == nil || comps.Store == nil || comps.Engine == nil {
		return nil, errors.New("daemon requires config, cache, store, and engine")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if comps.Notifier == nil {
		comps.Notifier = notifications.NewService(cfg)
	}

	reg := registry.New()
	orch := orchestrator.New(cfg, reg, comps.Cache, comps.Store, comps.Engine, comps.Notifier, logger)

	lockPath := filepath.Join(cfg.Paths.DataDir, "remuxd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		cache:    comps.Cache,
		store:    comps.Store,
		engine:   comps.Engine,
		notifier: comps.Notifier,
		orch:     orch,
		gc:       gc.New(cfg, comps.Cache, logger),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the instance lock and launches the orchestrator, the
// garbage collector, and the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another remuxd instance is already running")
	}

	for _, name := range deps.MissingRequired(deps.CheckBinaries(deps.Requirements(d.cfg))) {
		d.logger.Warn("required binary unavailable", logging.String("dependency", name))
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.orch.Start(runCtx)
	d.gc.Start(runCtx)
	if d.api != nil {
		if err := d.api.start(runCtx); err != nil {
			d.gc.Stop()
			d.orch.Stop()
			cancel()
			_ = d.lock.Unlock()
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("remuxd started", logging.String("lock", d.lockPath))
	return nil
}

// Stop shuts everything down and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.api != nil {
		d.api.stop()
	}
	d.gc.Stop()
	d.orch.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("remuxd stopped")
}

// Close stops the daemon and closes the cache index.
func (d *Daemon) Close() error {
	d.Stop()
	if d.cache != nil {
		return d.cache.Close()
	}
	return nil
}

// Running reports whether Start succeeded and Stop has not been called.
func (d *Daemon) Running() bool { return d.running.Load() }

// Submit forwards a submission to the orchestrator.
func (d *Daemon) Submit(ctx context.Context, req orchestrator.SubmitRequest) (string, error) {
	return d.orch.Submit(ctx, req)
}

// JobStatus resolves a task ID or source CID.
func (d *Daemon) JobStatus(id string) (registry.View, error) {
	return d.orch.Status(id)
}

// Jobs lists every known job, newest first.
func (d *Daemon) Jobs() []registry.View {
	return d.orch.Jobs()
}

// CacheStats reports cache population and filesystem headroom.
func (d *Daemon) CacheStats(ctx context.Context) (cache.Stats, error) {
	return d.cache.Stats(ctx)
}

// Status summarizes daemon runtime state.
type Status struct {
	Running   bool
	PID       int
	APIBind   string
	CacheRoot string
	LockPath  string
	JobCounts map[string]int
}

// Status reports runtime information for the control surfaces.
func (d *Daemon) Status() Status {
	counts := make(map[string]int, 4)
	for _, view := range d.orch.Jobs() {
		counts[string(view.Status)]++
	}
	return Status{
		Running:   d.running.Load(),
		PID:       os.Getpid(),
		APIBind:   d.cfg.Paths.APIBind,
		CacheRoot: d.cache.Root(),
		LockPath:  d.lockPath,
		JobCounts: counts,
	}
}

// APIAddr returns the bound HTTP address, empty until Start.
func (d *Daemon) APIAddr() string {
	if d.api == nil {
		return ""
	}
	return d.api.addr()
}

// TestNotification pushes a test message through the notifier.
func (d *Daemon) TestNotification(ctx context.Context) error {
	return d.notifier.TestNotification(ctx)
}
