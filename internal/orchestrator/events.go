package orchestrator

import (
	"time"

	"github.com/ShayCichocki/reqflow/internal/pipeline"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventPhaseStarted indicates a phase has begun.
	EventPhaseStarted EventType = "phase_started"
	// EventPhaseFinished indicates a phase returned, whatever its status.
	EventPhaseFinished EventType = "phase_finished"
	// EventRunDone indicates the whole run is over.
	EventRunDone EventType = "run_done"
)

// OrchestratorEvent represents an event emitted by the orchestrator.
type OrchestratorEvent struct {
	Type EventType
	// Phase is the phase name; empty for run events.
	Phase string
	// Stats is set on EventPhaseFinished.
	Stats pipeline.Stats
	// Error is the phase or run failure, if any.
	Error     error
	Timestamp time.Time
	// Calls is the running count of model requests.
	Calls int
}
