package repos

import (
	"errors"
	"fmt"
	"testing"
)

func TestTypedErrorsMatchWithAs(t *testing.T) {
	var nf NotFoundError
	if !errors.As(NotFoundf("case %s not found", "abc"), &nf) {
		t.Fatalf("NotFoundf should match NotFoundError")
	}
	if nf.Message != "case abc not found" {
		t.Fatalf("unexpected message: %q", nf.Message)
	}

	var ve ValidationError
	if !errors.As(Validationf("bad input"), &ve) {
		t.Fatalf("Validationf should match ValidationError")
	}

	var fe ForbiddenError
	if !errors.As(Forbiddenf("not yours"), &fe) {
		t.Fatalf("Forbiddenf should match ForbiddenError")
	}

	var ce ConflictError
	if !errors.As(Conflictf("revision mismatch"), &ce) {
		t.Fatalf("Conflictf should match ConflictError")
	}
}

func TestTypedErrorsMatchWhenWrapped(t *testing.T) {
	wrapped := fmt.Errorf("processing event: %w", Validationf("invalid event type"))
	var ve ValidationError
	if !errors.As(wrapped, &ve) {
		t.Fatalf("wrapped ValidationError should still match")
	}

	var nf NotFoundError
	if errors.As(wrapped, &nf) {
		t.Fatalf("ValidationError must not match NotFoundError")
	}
}

func TestWIPLimitErrorMessage(t *testing.T) {
	err := WIPLimitError{Current: 2, Limit: 1}
	want := "WIP limit exceeded: you have 2 case(s) in progress (limit: 1)"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}

	var wip WIPLimitError
	if !errors.As(error(err), &wip) {
		t.Fatalf("WIPLimitError should match itself via As")
	}
	if wip.Current != 2 || wip.Limit != 1 {
		t.Fatalf("unexpected fields: %+v", wip)
	}
}
