package errors_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	appErr "arena-service/pkg/errors"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{appErr.NotFound("station", "p-9"), http.StatusNotFound},
		{appErr.Conflict("slot taken"), http.StatusConflict},
		{appErr.InvalidState("entry is %s", "promoted"), http.StatusConflict},
		{fmt.Errorf("join: %w", appErr.ErrFull), http.StatusConflict},
		{appErr.ErrAlreadyJoined, http.StatusConflict},
		{appErr.InvalidArgument("bad date"), http.StatusBadRequest},
		{appErr.ErrUnauthorized, http.StatusUnauthorized},
		{appErr.ErrForbidden, http.StatusForbidden},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := appErr.HTTPStatus(tc.err); got != tc.want {
			t.Fatalf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestNotFoundWrapsSentinel(t *testing.T) {
	err := appErr.NotFound("reservation", "abc")
	if !errors.Is(err, appErr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound in chain, got %v", err)
	}
	if err.Error() != `not found: reservation "abc"` {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
