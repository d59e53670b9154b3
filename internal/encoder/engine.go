// Package encoder runs the external codec engine. It plans the argument list
// for each requested format and supervises the subprocess under a deadline.
package encoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"remux/internal/config"
	"remux/internal/logging"
	"remux/internal/media"
	"remux/internal/metrics"
	"remux/internal/services"
)

var commandContext = exec.CommandContext

// Engine defines codec engine behaviour.
type Engine interface {
	// Encode transcodes input into output according to the format. It
	// blocks until the engine exits or ctx is done.
	Encode(ctx context.Context, input, output string, format media.FormatSpec, flags media.Flags) error
}

// Option configures the ffmpeg engine.
type Option func(*FFmpeg)

// WithBinary overrides the default binary name.
func WithBinary(binary string) Option {
	return func(e *FFmpeg) {
		if binary != "" {
			e.binary = binary
		}
	}
}

// WithTimeout caps each encode run. Zero disables the cap.
func WithTimeout(timeout time.Duration) Option {
	return func(e *FFmpeg) {
		e.timeout = timeout
	}
}

// FFmpeg wraps the ffmpeg command-line encoder.
type FFmpeg struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

// New constructs an engine from configuration.
func New(cfg *config.Config, logger *slog.Logger) *FFmpeg {
	return NewFFmpeg(logger, WithBinary(cfg.Encoder.Binary), WithTimeout(cfg.EncodeTimeout()))
}

// NewFFmpeg constructs an engine using defaults.
func NewFFmpeg(logger *slog.Logger, opts ...Option) *FFmpeg {
	engine := &FFmpeg{binary: "ffmpeg", logger: logging.NewComponentLogger(logger, "encoder")}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// Encode runs one ffmpeg pass. The deadline turns into ErrTimeout so callers
// can tell a slow encode apart from a broken one.
func (e *FFmpeg) Encode(ctx context.Context, input, output string, format media.FormatSpec, flags media.Flags) error {
	if input == "" {
		return services.Wrap(services.ErrInvalidRequest, "encoder", "encode", "input path required", nil)
	}
	if output == "" {
		return services.Wrap(services.ErrInvalidRequest, "encoder", "encode", "output path required", nil)
	}

	args, err := BuildArgs(input, output, format, flags)
	if err != nil {
		return err
	}

	runCtx := ctx
	cancel := func() {}
	if e.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
	}
	defer cancel()

	e.logger.Info("launching encode",
		logging.Int("format_id", int(format.ID)),
		logging.String("command", e.binary+" "+strings.Join(args, " ")),
	)

	start := time.Now()
	cmd := commandContext(runCtx, e.binary, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	metrics.EncodeDuration.WithLabelValues(e.binary).Observe(time.Since(start).Seconds())

	if runErr == nil {
		return nil
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "encoder", "encode",
			fmt.Sprintf("format %d exceeded %s", format.ID, e.timeout), runErr)
	}
	detail := strings.TrimSpace(tail(stderr.String(), 512))
	if detail != "" {
		runErr = fmt.Errorf("%w: %s", runErr, detail)
	}
	return services.Wrap(services.ErrEncode, "encoder", "encode",
		fmt.Sprintf("format %d", format.ID), runErr)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

var _ Engine = (*FFmpeg)(nil)
