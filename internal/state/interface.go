package state

import "io"

// RunStore records runs and their phases.
type RunStore interface {
	StartRun(r *Run) error
	RecordPhase(runID string, p PhaseRecord) error
	FinishRun(r *Run) error
}

// RunReader answers status queries.
type RunReader interface {
	GetRun(id string) (*Run, error)
	ListRuns(limit int) ([]Run, error)
	LastCompleted(system, fingerprint, model string) (*Run, error)
	PhaseStats(runID string) ([]PhaseRecord, error)
}

// Ledger is the full ledger backend used by the orchestrator and the CLI.
type Ledger interface {
	io.Closer
	RunStore
	RunReader
}

var (
	_ Ledger    = (*DB)(nil)
	_ RunStore  = (*DB)(nil)
	_ RunReader = (*DB)(nil)
)
