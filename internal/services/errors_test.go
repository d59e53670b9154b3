package services

import (
	"errors"
	"testing"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("connection refused")
	err := Wrap(ErrUpload, "storage", "put", "s5 portal", base)
	if !errors.Is(err, ErrUpload) {
		t.Fatalf("expected ErrUpload tag, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped cause to survive, got %v", err)
	}
}

func TestWrapWithoutCause(t *testing.T) {
	err := Wrap(ErrInvalidRequest, "orchestrator", "submit", "empty format list", nil)
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest tag, got %v", err)
	}
}

func TestKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{Wrap(ErrFetch, "storage", "fetch", "", errors.New("boom")), "fetch_error"},
		{Wrap(ErrEncode, "encoder", "run", "", nil), "encode_error"},
		{Wrap(ErrEncode, "encoder", "run", "", ErrTimeout), "timeout"},
		{Wrap(ErrUpload, "storage", "put", "", nil), "upload_error"},
		{ErrNotFound, "not_found"},
		{ErrInvalidRequest, "invalid_request"},
		{errors.New("anything else"), "internal"},
	}
	for _, tc := range cases {
		if got := Kind(tc.err); got != tc.want {
			t.Errorf("Kind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
