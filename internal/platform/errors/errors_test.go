package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	t.Parallel()

	base := New(CodeCapacityExceeded, "team is full")
	wrapped := fmt.Errorf("accept invitation: %w", base)

	if !stderrors.Is(wrapped, New(CodeCapacityExceeded, "other message")) {
		t.Fatal("expected code-based Is match through wrapping")
	}
	if stderrors.Is(wrapped, New(CodeNotFound, "team is full")) {
		t.Fatal("did not expect match on a different code")
	}
}

func TestGetCodeFallsBackToUnknown(t *testing.T) {
	t.Parallel()

	if got := GetCode(stderrors.New("plain")); got != CodeUnknown {
		t.Fatalf("expected CodeUnknown, got %q", got)
	}
	if got := GetCode(Wrap(CodeForbidden, "nope", stderrors.New("cause"))); got != CodeForbidden {
		t.Fatalf("expected CodeForbidden, got %q", got)
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	t.Parallel()

	cause := stderrors.New("disk error")
	err := Wrap(CodeUnavailable, "store unavailable", cause)
	if !stderrors.Is(err, cause) {
		t.Fatal("expected cause to be reachable via Unwrap")
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code Code
		want int
	}{
		{CodeUnauthorized, http.StatusUnauthorized},
		{CodeForbidden, http.StatusForbidden},
		{CodeNotFound, http.StatusNotFound},
		{CodeAlreadyActioned, http.StatusConflict},
		{CodeCapacityExceeded, http.StatusConflict},
		{CodeDuplicateRequest, http.StatusConflict},
		{CodeAlreadyMember, http.StatusConflict},
		{CodeCannotRemoveLeader, http.StatusForbidden},
		{CodeTeamNameEmpty, http.StatusBadRequest},
		{CodeUnavailable, http.StatusServiceUnavailable},
		{CodeTimeout, http.StatusGatewayTimeout},
		{CodeUnknown, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := tc.code.HTTPStatus(); got != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.code, tc.want, got)
		}
	}

	if got := HTTPStatusFor(nil); got != http.StatusOK {
		t.Fatalf("expected 200 for nil error, got %d", got)
	}
	if got := HTTPStatusFor(stderrors.New("plain")); got != http.StatusInternalServerError {
		t.Fatalf("expected 500 for unknown error, got %d", got)
	}
}
