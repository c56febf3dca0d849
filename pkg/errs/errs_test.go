package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	e := E(Validation, "add-goal", "room", "u1", "missing text", nil)
	if KindOf(e) != Validation {
		t.Fatalf("kind = %q", KindOf(e))
	}
	wrapped := fmt.Errorf("handling failed: %w", e)
	if KindOf(wrapped) != Validation {
		t.Fatalf("wrapped kind = %q", KindOf(wrapped))
	}
	if KindOf(errors.New("plain")) != "" {
		t.Fatalf("plain error produced a kind")
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	e := E(Persistence, "add-chat", "room", "u1", "create failed", cause)
	if !errors.Is(e, cause) {
		t.Fatalf("cause not reachable through Unwrap")
	}
}

func TestPublicHidesStorageInternals(t *testing.T) {
	e := E(Persistence, "add-chat", "room", "u1", "pebble: write stall at /data/huddle", nil)
	if got := Public(e); got != "storage operation failed" {
		t.Fatalf("public = %q", got)
	}
	v := E(Validation, "add-goal", "room", "u1", "required field missing: text", nil)
	if got := Public(v); got != "required field missing: text" {
		t.Fatalf("public = %q", got)
	}
	if got := Public(errors.New("plain")); got != "internal error" {
		t.Fatalf("public = %q", got)
	}
}
