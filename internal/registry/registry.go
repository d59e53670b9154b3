// Package registry holds the in-process job table that status queries read.
//
// Jobs live for the lifetime of the process and are never deleted; the
// registry is the single source of truth for job state. Each job carries its
// own lock so status polls never block on unrelated encode work.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"remux/internal/media"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// FormatResult records the outcome of one requested format. Results are
// write-once: the orchestrator records each format exactly once.
type FormatResult struct {
	FormatID   uint32        `json:"format_id"`
	StorageURI string        `json:"storage_uri,omitempty"`
	Elapsed    time.Duration `json:"elapsed"`
	ErrKind    string        `json:"error,omitempty"`
}

// Failed reports whether the format carries an error.
func (r FormatResult) Failed() bool { return r.ErrKind != "" }

// Job is one submitted transcode request. The identity fields are immutable;
// everything else is guarded by mu and must be read through Snapshot.
type Job struct {
	TaskID    string
	SourceID  string
	Formats   []media.FormatSpec
	Flags     media.Flags
	CreatedAt time.Time

	mu            sync.Mutex
	status        Status
	failureReason string
	progress      int
	results       map[uint32]FormatResult
}

// View is a read-only snapshot of job state.
type View struct {
	TaskID        string
	SourceID      string
	Status        Status
	FailureReason string
	Progress      int
	Formats       []media.FormatSpec
	Results       []FormatResult
	CreatedAt     time.Time
}

// Registry maps task identifiers to jobs. It additionally indexes the most
// recent job per source CID so source-keyed status lookups keep working.
type Registry struct {
	mu       sync.RWMutex
	byTask   map[string]*Job
	bySource map[string]*Job
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{
		byTask:   make(map[string]*Job),
		bySource: make(map[string]*Job),
	}
}

// Create registers a new pending job and returns it. Task identifiers are
// generated, opaque, and independent of the source CID.
func (r *Registry) Create(sourceID string, formats []media.FormatSpec, flags media.Flags) *Job {
	job := &Job{
		TaskID:    uuid.NewString(),
		SourceID:  sourceID,
		Formats:   formats,
		Flags:     flags,
		CreatedAt: time.Now().UTC(),
		status:    StatusPending,
		results:   make(map[uint32]FormatResult, len(formats)),
	}

	r.mu.Lock()
	r.byTask[job.TaskID] = job
	r.bySource[sourceID] = job
	r.mu.Unlock()
	return job
}

// Get returns a snapshot of the job with the given task ID.
func (r *Registry) Get(taskID string) (View, bool) {
	r.mu.RLock()
	job, ok := r.byTask[taskID]
	r.mu.RUnlock()
	if !ok {
		return View{}, false
	}
	return job.Snapshot(), true
}

// BySource returns a snapshot of the most recent job for a source CID.
func (r *Registry) BySource(sourceID string) (View, bool) {
	r.mu.RLock()
	job, ok := r.bySource[sourceID]
	r.mu.RUnlock()
	if !ok {
		return View{}, false
	}
	return job.Snapshot(), true
}

// Lookup resolves an identifier first as a task ID, then as a source CID.
func (r *Registry) Lookup(id string) (View, bool) {
	if view, ok := r.Get(id); ok {
		return view, true
	}
	return r.BySource(id)
}

// List returns snapshots of all jobs, newest first.
func (r *Registry) List() []View {
	r.mu.RLock()
	jobs := make([]*Job, 0, len(r.byTask))
	for _, job := range r.byTask {
		jobs = append(jobs, job)
	}
	r.mu.RUnlock()

	views := make([]View, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, job.Snapshot())
	}
	sort.Slice(views, func(i, j int) bool {
		return views[i].CreatedAt.After(views[j].CreatedAt)
	})
	return views
}

// SetRunning transitions a pending job to running.
func (j *Job) SetRunning() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status == StatusPending {
		j.status = StatusRunning
	}
}

// Fail moves the job to the failed terminal state. Used for job-fatal errors
// such as a source fetch failure; per-format errors go through RecordResult.
// Progress keeps its computed value so a job that never produced results stays
// distinguishable from one that finished every format.
func (j *Job) Fail(reason string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return
	}
	j.status = StatusFailed
	j.failureReason = reason
}

// RecordResult stores the outcome for one format and advances progress.
// Failed formats advance progress too; the error is preserved in the result.
// The first write for a format wins, later writes are ignored.
func (j *Job) RecordResult(result FormatResult) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return
	}
	if _, exists := j.results[result.FormatID]; exists {
		return
	}
	j.results[result.FormatID] = result

	if next := 100 * len(j.results) / len(j.Formats); next > j.progress {
		j.progress = next
	}

	if len(j.results) == len(j.Formats) {
		j.finishLocked()
	}
}

// finishLocked applies the terminal-status policy once every format has a
// result: at least one success completes the job, all failures fail it.
func (j *Job) finishLocked() {
	succeeded := 0
	for _, result := range j.results {
		if !result.Failed() {
			succeeded++
		}
	}
	j.progress = 100
	if succeeded > 0 {
		j.status = StatusCompleted
	} else {
		j.status = StatusFailed
		j.failureReason = "all formats failed"
	}
}

// Snapshot returns a consistent copy of the job's mutable state. Results are
// ordered by the requested format order.
func (j *Job) Snapshot() View {
	j.mu.Lock()
	defer j.mu.Unlock()

	results := make([]FormatResult, 0, len(j.results))
	for _, format := range j.Formats {
		if result, ok := j.results[format.ID]; ok {
			results = append(results, result)
		}
	}

	return View{
		TaskID:        j.TaskID,
		SourceID:      j.SourceID,
		Status:        j.status,
		FailureReason: j.failureReason,
		Progress:      j.progress,
		Formats:       j.Formats,
		Results:       results,
		CreatedAt:     j.CreatedAt,
	}
}
