package receipts

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	base := NewError(KindRateLimited, "extract", "slow down", nil)
	wrapped := fmt.Errorf("pipeline: %w", base)

	if KindOf(wrapped) != KindRateLimited {
		t.Fatalf("KindOf(wrapped) = %q", KindOf(wrapped))
	}
	if !IsRetryable(wrapped) {
		t.Fatalf("rate limited should be retryable")
	}
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatalf("untyped errors should be internal")
	}
	if KindOf(nil) != "" {
		t.Fatalf("KindOf(nil) should be empty")
	}
	if IsRetryable(NewError(KindMalformedResponse, "extract", "", nil)) {
		t.Fatalf("malformed response must not be retryable")
	}
}

func TestWrapKeepsExistingKind(t *testing.T) {
	inner := NewError(KindProductNotFound, "reconcile", "product missing", nil)
	got := Wrap(KindInternal, "confirm", inner)
	if !IsKind(got, KindProductNotFound) {
		t.Fatalf("Wrap overwrote kind: %v", got)
	}
	if Wrap(KindInternal, "x", nil) != nil {
		t.Fatalf("Wrap(nil) should be nil")
	}
	cause := errors.New("dial tcp: refused")
	w := Wrap(KindTransport, "embed", cause)
	if !errors.Is(w, cause) || !IsKind(w, KindTransport) {
		t.Fatalf("Wrap should keep cause: %v", w)
	}
}

func TestErrorMessage(t *testing.T) {
	e := NewError(KindNoItemsExtracted, "run", "no items extracted", nil)
	if e.Error() != "run: no items extracted" {
		t.Fatalf("Error() = %q", e.Error())
	}
	e2 := NewError(KindTransport, "", "", errors.New("eof"))
	if e2.Error() != "transport: eof" {
		t.Fatalf("Error() = %q", e2.Error())
	}
}
