// Package lifecycle holds the process serving phase read by the health handler.
package lifecycle

import "sync/atomic"

// Phase is the serving phase of the API process.
type Phase int32

const (
	// Starting: indexes and collaborators are being prepared.
	Starting Phase = iota
	// Serving: accepting dashboard traffic.
	Serving
	// Draining: SIGTERM/SIGINT received, finishing in-flight requests.
	Draining
)

func (p Phase) String() string {
	switch p {
	case Starting:
		return "starting"
	case Serving:
		return "ok"
	case Draining:
		return "shutting-down"
	default:
		return "unknown"
	}
}

var phase atomic.Int32

// SetPhase records the current phase.
func SetPhase(p Phase) {
	phase.Store(int32(p))
}

// CurrentPhase returns the recorded phase. The zero value is Starting.
func CurrentPhase() Phase {
	return Phase(phase.Load())
}

// SetShuttingDown moves to Draining, or back to Serving when v is false.
// Health returns 503 with status shutting-down while draining.
func SetShuttingDown(v bool) {
	if v {
		SetPhase(Draining)
		return
	}
	SetPhase(Serving)
}

// IsShuttingDown returns true if the process is draining and should not receive new traffic.
func IsShuttingDown() bool {
	return CurrentPhase() == Draining
}
