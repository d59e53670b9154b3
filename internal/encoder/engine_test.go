package encoder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"

	"remux/internal/logging"
	"remux/internal/media"
	"remux/internal/services"
)

func TestNewFFmpegWithBinary(t *testing.T) {
	engine := NewFFmpeg(logging.NewNop(), WithBinary("/opt/ffmpeg"))
	if engine.binary != "/opt/ffmpeg" {
		t.Fatalf("expected binary override to be applied, got %q", engine.binary)
	}
}

func TestEncodeRequiresInput(t *testing.T) {
	engine := NewFFmpeg(logging.NewNop())
	err := engine.Encode(context.Background(), "", "/tmp/out.mp4", videoFormat(), media.Flags{})
	if !errors.Is(err, services.ErrInvalidRequest) {
		t.Fatalf("error = %v, want ErrInvalidRequest", err)
	}
}

func TestEncodeRequiresOutput(t *testing.T) {
	engine := NewFFmpeg(logging.NewNop())
	err := engine.Encode(context.Background(), "/tmp/in.mkv", "", videoFormat(), media.Flags{})
	if !errors.Is(err, services.ErrInvalidRequest) {
		t.Fatalf("error = %v, want ErrInvalidRequest", err)
	}
}

func TestEncodeRunsPlannedArguments(t *testing.T) {
	var capturedArgs []string
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		capturedArgs = append([]string(nil), args...)
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "FFMPEG_HELPER_MODE=success")
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})

	engine := NewFFmpeg(logging.NewNop())
	if err := engine.Encode(context.Background(), "/tmp/in.mkv", "/tmp/out.mp4", videoFormat(), media.Flags{}); err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}

	if len(capturedArgs) == 0 {
		t.Fatal("expected command arguments to be captured")
	}
	if capturedArgs[len(capturedArgs)-1] != "/tmp/out.mp4" {
		t.Fatalf("expected output path last, got %v", capturedArgs)
	}
}

func TestEncodeFailureClassifiesAsEncodeError(t *testing.T) {
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "FFMPEG_HELPER_MODE=fail")
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})

	engine := NewFFmpeg(logging.NewNop())
	err := engine.Encode(context.Background(), "/tmp/in.mkv", "/tmp/out.mp4", videoFormat(), media.Flags{})
	if !errors.Is(err, services.ErrEncode) {
		t.Fatalf("error = %v, want ErrEncode", err)
	}
}

func TestEncodeTimeoutClassifiesAsTimeout(t *testing.T) {
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "FFMPEG_HELPER_MODE=hang")
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})

	engine := NewFFmpeg(logging.NewNop(), WithTimeout(100*time.Millisecond))
	err := engine.Encode(context.Background(), "/tmp/in.mkv", "/tmp/out.mp4", videoFormat(), media.Flags{})
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
	if services.Kind(err) != "timeout" {
		t.Fatalf("Kind = %q, want timeout", services.Kind(err))
	}
}

func videoFormat() media.FormatSpec {
	vcodec := "libsvtav1"
	return media.FormatSpec{ID: 34, Ext: "mp4", VideoCodec: &vcodec}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	switch os.Getenv("FFMPEG_HELPER_MODE") {
	case "success":
		os.Exit(0)
	case "fail":
		fmt.Fprintln(os.Stderr, "Conversion failed!")
		os.Exit(1)
	case "hang":
		time.Sleep(10 * time.Second)
		os.Exit(0)
	default:
		os.Exit(0)
	}
}
