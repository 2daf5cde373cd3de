package operations

import (
	"errors"
	"testing"

	"github.com/skysurety/service_layer/internal/app/domain/ledger"
)

func TestService_OperationalFlag(t *testing.T) {
	svc := New("operator", nil)

	if !svc.IsOperational() {
		t.Fatalf("service should start operational")
	}
	if err := svc.Require(); err != nil {
		t.Fatalf("require while operational: %v", err)
	}

	if err := svc.SetOperational("operator", false); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if svc.IsOperational() {
		t.Fatalf("flag should be off")
	}
	if err := svc.Require(); !errors.Is(err, ledger.ErrNotOperational) {
		t.Fatalf("expected not operational error, got %v", err)
	}

	if err := svc.SetOperational("operator", true); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !svc.IsOperational() {
		t.Fatalf("flag should be back on")
	}
}

func TestService_OnlyOperatorMayToggle(t *testing.T) {
	svc := New("operator", nil)

	if err := svc.SetOperational("airline-1", false); !errors.Is(err, ledger.ErrUnauthorized) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
	if !svc.IsOperational() {
		t.Fatalf("unauthorized call must not change the flag")
	}
}
