package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf_TaggedErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"validation", Validationf("text is required"), KindValidation},
		{"not_found", NotFoundf("message %d not found", 7), KindNotFound},
		{"unauthorized", Unauthorizedf("not the author"), KindUnauthorized},
		{"service", ServiceError("store unavailable", errors.New("dial tcp")), KindService},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKindOf_UntaggedErrorIsService(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != KindService {
		t.Errorf("KindOf(plain error) = %v, want KindService", got)
	}
}

func TestKindOf_WrappedError(t *testing.T) {
	err := fmt.Errorf("handler: %w", NotFoundf("message 3 not found"))
	if !IsKind(err, KindNotFound) {
		t.Error("expected wrapped not-found error to keep its kind")
	}
}

func TestServiceError_UnwrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := ServiceError("failed to insert message", cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
	if got := err.Error(); got != "failed to insert message: connection refused" {
		t.Errorf("unexpected error string: %q", got)
	}
}

func TestIsKind_NilError(t *testing.T) {
	if IsKind(nil, KindService) {
		t.Error("IsKind(nil) should be false")
	}
}
