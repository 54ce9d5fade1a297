package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorCarriesKindAndCode(t *testing.T) {
	cause := errors.New("boom")
	err := Conflict("status.update", "stale_version", cause)

	if err.Kind() != KindConflict {
		t.Fatalf("unexpected kind: %s", err.Kind())
	}
	if err.Code() != "status.update.stale_version" {
		t.Fatalf("unexpected code: %s", err.Code())
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable via errors.Is")
	}
}

func TestKindOfUnwrapsThroughWrapping(t *testing.T) {
	inner := AccessDenied("project.invite", "not_owner", nil)
	wrapped := fmt.Errorf("handling request: %w", inner)

	if KindOf(wrapped) != KindAccessDenied {
		t.Fatalf("unexpected kind: %s", KindOf(wrapped))
	}
	if !IsKind(wrapped, KindAccessDenied) {
		t.Fatalf("IsKind should match through wrapping")
	}
}

func TestKindOfDefaultsToInternal(t *testing.T) {
	if KindOf(errors.New("plain")) != KindInternal {
		t.Fatalf("foreign errors should classify as internal")
	}
	if IsKind(nil, KindInternal) {
		t.Fatalf("nil error should never match a kind")
	}
}

func TestKindsAreDistinguishable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
	}{
		{name: "bad-request", err: BadRequest("op", "r", nil), kind: KindBadRequest},
		{name: "conflict", err: Conflict("op", "r", nil), kind: KindConflict},
		{name: "not-found", err: NotFound("op", "r", nil), kind: KindNotFound},
		{name: "access-denied", err: AccessDenied("op", "r", nil), kind: KindAccessDenied},
		{name: "internal", err: Internal("op", "r", nil), kind: KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if KindOf(tt.err) != tt.kind {
				t.Fatalf("want %s got %s", tt.kind, KindOf(tt.err))
			}
		})
	}
}
