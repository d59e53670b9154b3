// Package services defines the error taxonomy shared by the orchestration core
// and its external collaborators.
package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrFetch marks failures retrieving a source object from a storage backend.
	ErrFetch = errors.New("fetch error")
	// ErrEncode marks codec engine failures.
	ErrEncode = errors.New("encode error")
	// ErrUpload marks failures uploading an output to a storage backend.
	ErrUpload = errors.New("upload error")
	// ErrNotFound marks lookups for unknown task identifiers or missing content.
	ErrNotFound = errors.New("not found")
	// ErrInvalidRequest marks requests rejected at submission time.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrTimeout marks external invocations that exceeded their deadline.
	ErrTimeout = errors.New("timeout")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrFetch
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind returns the wire name for the sentinel an error is tagged with.
// Untagged errors classify as "internal".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrFetch):
		return "fetch_error"
	case errors.Is(err, ErrEncode):
		return "encode_error"
	case errors.Is(err, ErrUpload):
		return "upload_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return "internal"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
