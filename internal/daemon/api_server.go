package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"remux/internal/config"
	"remux/internal/logging"
	"remux/internal/orchestrator"
	"remux/internal/registry"
	"remux/internal/services"
)

// TranscodeResponse is the submission envelope. Field names match the
// portal's original REST contract.
type TranscodeResponse struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	TaskID     string `json:"task_id"`
}

// GetTranscodedResponse reports job progress. Metadata is populated only once
// every requested format has a result; a job-fatal failure keeps its computed
// progress and carries the failure reason in Error instead.
type GetTranscodedResponse struct {
	StatusCode int             `json:"status_code"`
	Progress   int             `json:"progress"`
	Error      string          `json:"error,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// JobSummary is the operational job view served under /api.
type JobSummary struct {
	TaskID        string                  `json:"task_id"`
	SourceCID     string                  `json:"source_cid"`
	Status        string                  `json:"status"`
	Progress      int                     `json:"progress"`
	FailureReason string                  `json:"failure_reason,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
	Results       []registry.FormatResult `json:"results,omitempty"`
}

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}

	router := mux.NewRouter()
	router.HandleFunc("/transcode", srv.handleTranscode).Methods(http.MethodGet, http.MethodPost)
	router.HandleFunc("/get_transcoded/{id}", srv.handleGetTranscoded).Methods(http.MethodGet)
	router.HandleFunc("/api/status", srv.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/api/jobs", srv.handleJobs).Methods(http.MethodGet)
	router.HandleFunc("/api/jobs/{task_id}", srv.handleJob).Methods(http.MethodGet)
	router.HandleFunc("/api/cache", srv.handleCache).Methods(http.MethodGet)
	router.HandleFunc("/healthz", srv.handleHealthz).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	srv.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleTranscode(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := orchestrator.SubmitRequest{
		SourceCID:   query.Get("source_cid"),
		FormatsJSON: query.Get("media_formats"),
		Encrypted:   parseBool(query.Get("is_encrypted")),
		GPU:         parseBool(query.Get("is_gpu")),
	}

	taskID, err := s.daemon.Submit(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrInvalidRequest) {
			status = http.StatusBadRequest
		}
		s.writeJSON(w, status, TranscodeResponse{
			StatusCode: status,
			Message:    err.Error(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, TranscodeResponse{
		StatusCode: http.StatusOK,
		Message:    "Transcoding task queued",
		TaskID:     taskID,
	})
}

func (s *apiServer) handleGetTranscoded(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	view, err := s.daemon.JobStatus(id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("CID not found for source_cid: %s", id))
		return
	}

	resp := GetTranscodedResponse{
		StatusCode: http.StatusOK,
		Progress:   view.Progress,
	}
	if view.Status == registry.StatusFailed {
		resp.Error = view.FailureReason
	}
	if view.Progress == 100 {
		metadata, err := buildMetadata(view)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Metadata = metadata
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// buildMetadata renders the requested format objects augmented with the
// outcome: src holds the storage URI, error carries the failure kind.
func buildMetadata(view registry.View) (json.RawMessage, error) {
	results := make(map[uint32]registry.FormatResult, len(view.Results))
	for _, result := range view.Results {
		results[result.FormatID] = result
	}

	entries := make([]map[string]any, 0, len(view.Formats))
	for _, format := range view.Formats {
		raw, err := json.Marshal(format)
		if err != nil {
			return nil, fmt.Errorf("marshal format %d: %w", format.ID, err)
		}
		entry := make(map[string]any)
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("reshape format %d: %w", format.ID, err)
		}
		result, ok := results[format.ID]
		switch {
		case !ok:
			continue
		case result.Failed():
			entry["error"] = result.ErrKind
		default:
			entry["src"] = result.StorageURI
		}
		entries = append(entries, entry)
	}
	return json.Marshal(entries)
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"running":    status.Running,
		"pid":        status.PID,
		"api_bind":   status.APIBind,
		"cache_root": status.CacheRoot,
		"lock_path":  status.LockPath,
		"job_counts": status.JobCounts,
	})
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	views := s.daemon.Jobs()
	jobs := make([]JobSummary, 0, len(views))
	for _, view := range views {
		jobs = append(jobs, summarize(view))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	view, err := s.daemon.JobStatus(mux.Vars(r)["task_id"])
	if err != nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, summarize(view))
}

func (s *apiServer) handleCache(w http.ResponseWriter, r *http.Request) {
	stats, err := s.daemon.CacheStats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"entries":        stats.Entries,
		"source_bytes":   stats.SourceBytes,
		"output_bytes":   stats.OutputBytes,
		"pinned_keys":    stats.PinnedKeys,
		"free_bytes":     stats.FreeBytes,
		"total_fs_bytes": stats.TotalFSBytes,
	})
}

func (s *apiServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if !s.daemon.Running() {
		s.writeError(w, http.StatusServiceUnavailable, "daemon not running")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func summarize(view registry.View) JobSummary {
	return JobSummary{
		TaskID:        view.TaskID,
		SourceCID:     view.SourceID,
		Status:        string(view.Status),
		Progress:      view.Progress,
		FailureReason: view.FailureReason,
		CreatedAt:     view.CreatedAt,
		Results:       view.Results,
	}
}

func parseBool(value string) bool {
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	return err == nil && parsed
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return logging.NewComponentLogger(s.logger, "api-server")
	}
	return logging.NewNop()
}
