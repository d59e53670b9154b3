package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"log/slog"

	"remux/internal/daemon"
	"remux/internal/logging"
	"remux/internal/orchestrator"
	"remux/internal/registry"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Remux", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return logging.NewComponentLogger(s.logger, "ipc")
}

func (s *service) Ping(_ PingRequest, resp *PingResponse) error {
	status := s.daemon.Status()
	resp.Running = status.Running
	resp.PID = status.PID
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status()
	resp.Running = status.Running
	resp.PID = status.PID
	resp.APIBind = status.APIBind
	resp.CacheRoot = status.CacheRoot
	resp.LockPath = status.LockPath
	resp.JobCounts = status.JobCounts
	return nil
}

func (s *service) Submit(req SubmitRequest, resp *SubmitResponse) error {
	taskID, err := s.daemon.Submit(s.ctx, orchestrator.SubmitRequest{
		SourceCID:   req.SourceCID,
		FormatsJSON: req.FormatsJSON,
		Encrypted:   req.Encrypted,
		GPU:         req.GPU,
	})
	if err != nil {
		return err
	}
	resp.TaskID = taskID
	s.log().Info("job submitted via IPC",
		logging.String(logging.FieldTaskID, taskID),
		logging.String(logging.FieldSourceCID, req.SourceCID))
	return nil
}

func (s *service) Job(req JobRequest, resp *JobResponse) error {
	view, err := s.daemon.JobStatus(req.ID)
	if err != nil {
		return err
	}
	resp.Job = summarize(view)
	return nil
}

func (s *service) Jobs(_ JobListRequest, resp *JobListResponse) error {
	views := s.daemon.Jobs()
	resp.Jobs = make([]JobSummary, 0, len(views))
	for _, view := range views {
		resp.Jobs = append(resp.Jobs, summarize(view))
	}
	return nil
}

func (s *service) CacheStats(_ CacheStatsRequest, resp *CacheStatsResponse) error {
	stats, err := s.daemon.CacheStats(s.ctx)
	if err != nil {
		return err
	}
	resp.Entries = stats.Entries
	resp.SourceBytes = stats.SourceBytes
	resp.OutputBytes = stats.OutputBytes
	resp.PinnedKeys = stats.PinnedKeys
	resp.FreeBytes = stats.FreeBytes
	resp.TotalFSBytes = stats.TotalFSBytes
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	if err := s.daemon.TestNotification(s.ctx); err != nil {
		resp.Sent = false
		resp.Message = err.Error()
		return nil
	}
	resp.Sent = true
	resp.Message = "notification sent"
	return nil
}

func summarize(view registry.View) JobSummary {
	summary := JobSummary{
		TaskID:        view.TaskID,
		SourceCID:     view.SourceID,
		Status:        string(view.Status),
		Progress:      view.Progress,
		FailureReason: view.FailureReason,
		CreatedAt:     view.CreatedAt,
	}
	for _, result := range view.Results {
		summary.Results = append(summary.Results, FormatOutcome{
			FormatID:   result.FormatID,
			StorageURI: result.StorageURI,
			ErrKind:    result.ErrKind,
			ElapsedMS:  result.Elapsed.Milliseconds(),
		})
	}
	return summary
}
