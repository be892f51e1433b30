package common

import (
	"errors"
	"testing"
)

func TestGuard(t *testing.T) {
	pauses := NewPauseSet(" Offers ", "")
	if err := Guard(pauses, "offers"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(pauses, "escrow"); err != nil {
		t.Fatalf("escrow should not be paused: %v", err)
	}
	if err := Guard(nil, "offers"); err != nil {
		t.Fatalf("nil view should never pause: %v", err)
	}
	if len(pauses) != 1 {
		t.Fatalf("empty module name was recorded: %v", pauses)
	}
}
