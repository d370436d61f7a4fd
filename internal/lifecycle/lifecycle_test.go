package lifecycle

import "testing"

func TestCurrentPhase_DefaultStarting(t *testing.T) {
	if got := Phase(0); got != Starting {
		t.Errorf("zero Phase = %v, want %v", got, Starting)
	}
}

func TestSetShuttingDown_True(t *testing.T) {
	SetShuttingDown(true)
	defer SetPhase(Starting)
	if !IsShuttingDown() {
		t.Error("IsShuttingDown() = false after SetShuttingDown(true), want true")
	}
	if got := CurrentPhase().String(); got != "shutting-down" {
		t.Errorf("CurrentPhase().String() = %q, want shutting-down", got)
	}
}

func TestSetShuttingDown_False(t *testing.T) {
	SetShuttingDown(true)
	SetShuttingDown(false)
	defer SetPhase(Starting)
	if IsShuttingDown() {
		t.Error("IsShuttingDown() = true after SetShuttingDown(false), want false")
	}
	if CurrentPhase() != Serving {
		t.Errorf("CurrentPhase() = %v, want %v", CurrentPhase(), Serving)
	}
}

func TestPhase_String(t *testing.T) {
	tests := []struct {
		p    Phase
		want string
	}{
		{Starting, "starting"},
		{Serving, "ok"},
		{Draining, "shutting-down"},
		{Phase(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.p.String(); got != tt.want {
			t.Errorf("Phase(%d).String() = %q, want %q", tt.p, got, tt.want)
		}
	}
}
