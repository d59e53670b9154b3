package ipc

import "time"

// PingRequest checks daemon liveness.
type PingRequest struct{}

// PingResponse reports liveness.
type PingResponse struct {
	Running bool `json:"running"`
	PID     int  `json:"pid"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents daemon runtime information.
type StatusResponse struct {
	Running   bool           `json:"running"`
	PID       int            `json:"pid"`
	APIBind   string         `json:"api_bind"`
	CacheRoot string         `json:"cache_root"`
	LockPath  string         `json:"lock_path"`
	JobCounts map[string]int `json:"job_counts"`
}

// SubmitRequest queues a transcode job.
type SubmitRequest struct {
	SourceCID   string `json:"source_cid"`
	FormatsJSON string `json:"media_formats"`
	Encrypted   bool   `json:"is_encrypted"`
	GPU         bool   `json:"is_gpu"`
}

// SubmitResponse carries the assigned task ID.
type SubmitResponse struct {
	TaskID string `json:"task_id"`
}

// JobRequest fetches one job by task ID or source CID.
type JobRequest struct {
	ID string `json:"id"`
}

// FormatOutcome is the per-format job result on the IPC wire.
type FormatOutcome struct {
	FormatID   uint32 `json:"format_id"`
	StorageURI string `json:"storage_uri,omitempty"`
	ErrKind    string `json:"error,omitempty"`
	ElapsedMS  int64  `json:"elapsed_ms"`
}

// JobSummary describes one job.
type JobSummary struct {
	TaskID        string          `json:"task_id"`
	SourceCID     string          `json:"source_cid"`
	Status        string          `json:"status"`
	Progress      int             `json:"progress"`
	FailureReason string          `json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	Results       []FormatOutcome `json:"results,omitempty"`
}

// JobResponse contains a single job summary.
type JobResponse struct {
	Job JobSummary `json:"job"`
}

// JobListRequest lists known jobs.
type JobListRequest struct{}

// JobListResponse contains job summaries, newest first.
type JobListResponse struct {
	Jobs []JobSummary `json:"jobs"`
}

// CacheStatsRequest fetches cache usage.
type CacheStatsRequest struct{}

// CacheStatsResponse reports cache population and filesystem headroom.
type CacheStatsResponse struct {
	Entries      int    `json:"entries"`
	SourceBytes  int64  `json:"source_bytes"`
	OutputBytes  int64  `json:"output_bytes"`
	PinnedKeys   int    `json:"pinned_keys"`
	FreeBytes    uint64 `json:"free_bytes"`
	TotalFSBytes uint64 `json:"total_fs_bytes"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports the test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
