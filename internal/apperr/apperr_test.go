package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfUnwrapsWrappedErrors(t *testing.T) {
	err := fmt.Errorf("create service: %w", Conflict("service name already in use"))
	if got := KindOf(err); got != KindConflict {
		t.Fatalf("expected conflict kind, got %q", got)
	}
	if got := KindOf(errors.New("boom")); got != KindInternal {
		t.Fatalf("expected internal kind for foreign error, got %q", got)
	}
	if got := KindOf(nil); got != "" {
		t.Fatalf("expected empty kind for nil, got %q", got)
	}
}

func TestInvalidCarriesField(t *testing.T) {
	appErr, ok := As(Invalid("title", "title is required"))
	if !ok {
		t.Fatalf("expected *Error")
	}
	if appErr.Field != "title" || appErr.Kind != KindInvalidInput {
		t.Fatalf("unexpected error %+v", appErr)
	}
}

func TestInternalKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Internal(cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected internal error to wrap cause")
	}
	if Internal(nil) != nil {
		t.Fatalf("expected nil for nil cause")
	}
}
