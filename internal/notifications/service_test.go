package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"remux/internal/config"
	"remux/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyJobFailed(context.Background(), "task", "bafysrc", "boom"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func newCapturingServer(t *testing.T) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		captured.count++
		captured.title = r.Header.Get("Title")
		captured.tags = r.Header.Get("Tags")
		captured.priority = r.Header.Get("Priority")
		captured.body = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server, captured
}

type capturedRequest struct {
	count    int
	title    string
	tags     string
	priority string
	body     string
}

func newService(topic string, jobs, errs bool) notifications.Service {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = topic
	cfg.Notifications.Jobs = jobs
	cfg.Notifications.Errors = errs
	return notifications.NewService(&cfg)
}

func TestNotifyJobCompleted(t *testing.T) {
	server, captured := newCapturingServer(t)
	svc := newService(server.URL, true, true)

	err := svc.NotifyJobCompleted(context.Background(), "task-1", "bafysrc", 3, 0, 90*time.Second)
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if captured.title != "Remux - Job Complete" {
		t.Fatalf("title = %q", captured.title)
	}
	if captured.tags != "remux,job,completed" {
		t.Fatalf("tags = %q", captured.tags)
	}
}

func TestNotifyJobCompletedWithFailures(t *testing.T) {
	server, captured := newCapturingServer(t)
	svc := newService(server.URL, true, true)

	if err := svc.NotifyJobCompleted(context.Background(), "task-1", "bafysrc", 2, 1, time.Minute); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if captured.title != "Remux - Job Complete (with errors)" {
		t.Fatalf("title = %q", captured.title)
	}
}

func TestNotifyJobFailedHighPriority(t *testing.T) {
	server, captured := newCapturingServer(t)
	svc := newService(server.URL, true, true)

	if err := svc.NotifyJobFailed(context.Background(), "task-1", "bafysrc", "fetch_error"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if captured.priority != "high" {
		t.Fatalf("priority = %q, want high", captured.priority)
	}
}

func TestJobEventsDisabledSkipsSend(t *testing.T) {
	server, captured := newCapturingServer(t)
	svc := newService(server.URL, false, true)

	if err := svc.NotifyJobCompleted(context.Background(), "task-1", "bafysrc", 1, 0, time.Second); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if captured.count != 0 {
		t.Fatalf("expected no request when job events disabled, got %d", captured.count)
	}

	if err := svc.NotifyError(context.Background(), errors.New("boom"), "gc"); err != nil {
		t.Fatalf("notify error: %v", err)
	}
	if captured.count != 1 {
		t.Fatalf("expected error alert to still send, got %d requests", captured.count)
	}
}

func TestSendSurfacesServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic over quota", http.StatusTooManyRequests)
	}))
	defer server.Close()

	svc := newService(server.URL, true, true)
	if err := svc.TestNotification(context.Background()); err == nil {
		t.Fatal("expected error from non-2xx response")
	}
}
