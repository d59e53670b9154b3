// Package orchestrator drives a transcode job from submission to terminal
// state: fetch the source once, encode every requested format, upload each
// output, and record per-format outcomes on the job.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"remux/internal/cache"
	"remux/internal/config"
	"remux/internal/encoder"
	"remux/internal/logging"
	"remux/internal/media"
	"remux/internal/metrics"
	"remux/internal/notifications"
	"remux/internal/registry"
	"remux/internal/services"
	"remux/internal/storage"
)

// SubmitRequest carries one transcode submission.
type SubmitRequest struct {
	SourceCID string
	// FormatsJSON is the raw media_formats payload. When empty the
	// configured default formats file is used instead.
	FormatsJSON string
	Encrypted   bool
	GPU         bool
}

// Orchestrator owns the job lifecycle. Submissions return immediately with a
// task ID; the work runs on background goroutines bounded by encode slots.
type Orchestrator struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *registry.Registry
	cache    *cache.Cache
	store    storage.Client
	engine   encoder.Engine
	notifier notifications.Service

	// uploads collapses concurrent uploads of the same output object so
	// two jobs that produce the same encode share one storage transfer.
	uploads singleflight.Group

	cpuSlots *semaphore.Weighted
	gpuSlots *semaphore.Weighted
	fanout   int

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New wires the orchestrator. Jobs started later are bound to the context of
// Start, not of the submission request.
func New(
	cfg *config.Config,
	reg *registry.Registry,
	store *cache.Cache,
	backend storage.Client,
	engine encoder.Engine,
	notifier notifications.Service,
	logger *slog.Logger,
) *Orchestrator {
	cpu := int64(cfg.Encoder.CPUSlots)
	if cpu < 1 {
		cpu = 1
	}
	gpu := int64(cfg.Encoder.GPUSlots)
	if gpu < 1 {
		gpu = 1
	}
	return &Orchestrator{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "orchestrator"),
		registry: reg,
		cache:    store,
		store:    backend,
		engine:   engine,
		notifier: notifier,
		cpuSlots: semaphore.NewWeighted(cpu),
		gpuSlots: semaphore.NewWeighted(gpu),
		fanout:   int(cpu + gpu),
	}
}

// Start binds background jobs to ctx. Must be called before Submit.
func (o *Orchestrator) Start(ctx context.Context) {
	o.baseCtx, o.cancel = context.WithCancel(ctx)
}

// Stop cancels running jobs and waits for them to unwind.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
}

// Submit validates a request, registers a job, and schedules it. The
// returned task ID is immediately resolvable through Status.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	sourceCID := strings.TrimSpace(req.SourceCID)
	if sourceCID == "" {
		return "", services.Wrap(services.ErrInvalidRequest, "orchestrator", "submit", "source_cid is required", nil)
	}

	formats, err := o.resolveFormats(req.FormatsJSON)
	if err != nil {
		return "", err
	}

	flags := media.Flags{Encrypted: req.Encrypted, GPU: req.GPU}
	job := o.registry.Create(sourceCID, formats, flags)
	metrics.JobsSubmittedTotal.Inc()

	o.logger.Info("job submitted",
		logging.String(logging.FieldTaskID, job.TaskID),
		logging.String(logging.FieldSourceCID, sourceCID),
		logging.Int("formats", len(formats)),
		logging.Bool("encrypted", req.Encrypted),
		logging.Bool("gpu", req.GPU),
	)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(job)
	}()
	return job.TaskID, nil
}

// Status resolves a task ID, falling back to source-CID lookup.
func (o *Orchestrator) Status(id string) (registry.View, error) {
	view, ok := o.registry.Lookup(strings.TrimSpace(id))
	if !ok {
		return registry.View{}, services.Wrap(services.ErrNotFound, "orchestrator", "status", id, nil)
	}
	return view, nil
}

// Jobs lists every known job, newest first.
func (o *Orchestrator) Jobs() []registry.View {
	return o.registry.List()
}

func (o *Orchestrator) resolveFormats(payload string) ([]media.FormatSpec, error) {
	if strings.TrimSpace(payload) == "" {
		return media.LoadDefaultList(o.cfg.Encoder.DefaultFormatsFile)
	}
	formats, err := media.ParseList(payload)
	if err != nil {
		return nil, err
	}
	if err := media.ValidateList(formats); err != nil {
		return nil, err
	}
	return formats, nil
}

func (o *Orchestrator) run(job *registry.Job) {
	ctx := o.baseCtx
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	logger := o.logger.With(
		logging.String(logging.FieldTaskID, job.TaskID),
		logging.String(logging.FieldSourceCID, job.SourceID),
	)

	job.SetRunning()

	source, err := o.fetchSource(ctx, job, logger)
	if err != nil {
		kind := services.Kind(err)
		logger.Error("source fetch failed", logging.Error(err), logging.String(logging.FieldErrorHint, kind))
		job.Fail(kind)
		metrics.JobsCompletedTotal.WithLabelValues(string(registry.StatusFailed)).Inc()
		_ = o.notifier.NotifyJobFailed(ctx, job.TaskID, job.SourceID, kind)
		return
	}
	defer source.Release()

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.fanout)
	for _, format := range job.Formats {
		format := format
		group.Go(func() error {
			o.processFormat(groupCtx, job, source.Path, format, logger)
			return nil
		})
	}
	_ = group.Wait()

	view := job.Snapshot()
	succeeded, failed := 0, 0
	for _, result := range view.Results {
		if result.Failed() {
			failed++
		} else {
			succeeded++
		}
	}
	metrics.JobsCompletedTotal.WithLabelValues(string(view.Status)).Inc()
	logger.Info("job finished",
		logging.String("status", string(view.Status)),
		logging.Int("succeeded", succeeded),
		logging.Int("failed", failed),
		logging.Duration("elapsed", time.Since(start)),
	)
	if view.Status == registry.StatusFailed {
		_ = o.notifier.NotifyJobFailed(ctx, job.TaskID, job.SourceID, view.FailureReason)
		return
	}
	_ = o.notifier.NotifyJobCompleted(ctx, job.TaskID, job.SourceID, succeeded, failed, time.Since(start))
}

// fetchSource materializes the job's source in the cache. Concurrent jobs on
// the same source share one download; each holds its own pin until done.
func (o *Orchestrator) fetchSource(ctx context.Context, job *registry.Job, logger *slog.Logger) (*cache.Handle, error) {
	key := media.SourceKey(job.SourceID, job.Flags.Encrypted)
	return o.cache.GetOrFill(ctx, key, cache.KindSource, func(fillCtx context.Context) (string, error) {
		logger.Info("fetching source", logging.String(logging.FieldCacheKey, key))
		dest := filepath.Join(o.cache.Root(), "incoming", sanitizeFilename(key))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return "", services.Wrap(services.ErrFetch, "orchestrator", "fetch", "create staging dir", err)
		}
		if err := o.store.Fetch(fillCtx, job.SourceID, dest, job.Flags.Encrypted); err != nil {
			return "", err
		}
		return dest, nil
	})
}

func (o *Orchestrator) processFormat(ctx context.Context, job *registry.Job, sourcePath string, format media.FormatSpec, logger *slog.Logger) {
	start := time.Now()
	formatLogger := logger.With(logging.Int(logging.FieldFormatID, int(format.ID)))

	uri, err := o.produceAndUpload(ctx, job, sourcePath, format, formatLogger)
	result := registry.FormatResult{
		FormatID: format.ID,
		Elapsed:  time.Since(start),
	}
	if err != nil {
		result.ErrKind = services.Kind(err)
		formatLogger.Error("format failed", logging.Error(err), logging.String(logging.FieldErrorHint, result.ErrKind))
		metrics.FormatsProcessedTotal.WithLabelValues("failed").Inc()
	} else {
		result.StorageURI = uri
		formatLogger.Info("format complete",
			logging.String("storage_uri", uri),
			logging.Duration("elapsed", result.Elapsed),
		)
		metrics.FormatsProcessedTotal.WithLabelValues("succeeded").Inc()
	}
	job.RecordResult(result)
}

func (o *Orchestrator) produceAndUpload(ctx context.Context, job *registry.Job, sourcePath string, format media.FormatSpec, logger *slog.Logger) (string, error) {
	outputKey := media.OutputKey(job.SourceID, format, job.Flags)

	output, err := o.cache.GetOrFill(ctx, outputKey, cache.KindOutput, func(fillCtx context.Context) (string, error) {
		return o.encodeFormat(fillCtx, job, sourcePath, format, outputKey, logger)
	})
	if err != nil {
		return "", err
	}
	defer output.Release()

	backend := format.Destination()
	uri, err, _ := o.uploads.Do(outputKey+"|"+string(backend), func() (any, error) {
		cid, putErr := o.store.Put(ctx, output.Path, backend)
		if putErr != nil {
			return "", putErr
		}
		return storage.URI(backend, cid), nil
	})
	if err != nil {
		return "", err
	}
	return uri.(string), nil
}

// encodeFormat runs one encode under the matching slot semaphore.
func (o *Orchestrator) encodeFormat(ctx context.Context, job *registry.Job, sourcePath string, format media.FormatSpec, outputKey string, logger *slog.Logger) (string, error) {
	slots := o.cpuSlots
	if format.UseGPU(job.Flags) {
		slots = o.gpuSlots
	}
	if err := slots.Acquire(ctx, 1); err != nil {
		return "", services.Wrap(services.ErrEncode, "orchestrator", "encode", "acquire slot", err)
	}
	defer slots.Release(1)

	dest := filepath.Join(o.cache.Root(), "scratch", fmt.Sprintf("%s.%s", sanitizeFilename(outputKey), format.Ext))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", services.Wrap(services.ErrEncode, "orchestrator", "encode", "create scratch dir", err)
	}
	logger.Info("encoding format", logging.String(logging.FieldCacheKey, outputKey))
	if err := o.engine.Encode(ctx, sourcePath, dest, format, job.Flags); err != nil {
		_ = os.Remove(dest)
		return "", err
	}
	return dest, nil
}

func sanitizeFilename(key string) string {
	replacer := strings.NewReplacer("/", "_", ":", "_", "\\", "_")
	return replacer.Replace(key)
}
