package errs

import (
	"errors"
	"testing"
)

func TestWrapPreservesChain(t *testing.T) {
	base := errors.New("boom")
	wrapped := Wrapf(Wrap(base, "inner"), "outer %d", 2)

	if !errors.Is(wrapped, base) {
		t.Fatal("Expected wrapped error to match base")
	}
	if wrapped.Error() != "outer 2: inner: boom" {
		t.Errorf("Unexpected message: %s", wrapped.Error())
	}
	if Wrap(nil, "x") != nil || Wrapf(nil, "x") != nil {
		t.Error("Expected nil for nil error")
	}
}

func TestKindOf(t *testing.T) {
	err := Wrap(E(KindBusy, "System busy, please try again", errors.New("502")), "stage")

	if KindOf(err) != KindBusy {
		t.Errorf("Expected busy, got %s", KindOf(err))
	}
	if Message(err) != "System busy, please try again" {
		t.Errorf("Unexpected message: %s", Message(err))
	}
	if KindOf(errors.New("plain")) != KindInternal {
		t.Error("Expected plain errors to be internal")
	}
	if Message(errors.New("plain")) != "plain" {
		t.Error("Expected plain message passthrough")
	}
}
