package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Outcome is how a run ended.
type Outcome string

const (
	OutcomeRunning   Outcome = "running"
	OutcomeCompleted Outcome = "completed"
	OutcomeHalted    Outcome = "halted"
	OutcomeCanceled  Outcome = "canceled"
)

// Run is one pipeline invocation.
type Run struct {
	ID            string     `json:"id"`
	System        string     `json:"system"`
	Model         string     `json:"model"`
	Fingerprint   string     `json:"fingerprint"`
	PersonaDigest string     `json:"persona_digest"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at"`
	Outcome       Outcome    `json:"outcome"`
	Calls         int        `json:"llm_calls"`
	InputTokens   int64      `json:"input_tokens"`
	OutputTokens  int64      `json:"output_tokens"`
	Cost          float64    `json:"cost"`
}

// PhaseRecord is the ledger row for one phase of a run.
type PhaseRecord struct {
	Seq          int           `json:"seq"`
	Phase        string        `json:"phase"`
	Status       string        `json:"status"`
	Attempted    int           `json:"attempted"`
	Produced     int           `json:"produced"`
	Skipped      int           `json:"skipped"`
	Deduplicated int           `json:"deduplicated"`
	Failed       int           `json:"failed"`
	Elapsed      time.Duration `json:"elapsed"`
	Message      string        `json:"message"`
}

// StartRun inserts r with outcome running. An empty ID is filled in.
func (db *DB) StartRun(r *Run) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	r.Outcome = OutcomeRunning
	_, err := db.Exec(`
		INSERT INTO runs (id, system, model, fingerprint, persona_digest, started_at, outcome)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.System, r.Model, r.Fingerprint, r.PersonaDigest, formatTime(r.StartedAt), string(r.Outcome))
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// RecordPhase appends a phase row to a run.
func (db *DB) RecordPhase(runID string, p PhaseRecord) error {
	_, err := db.Exec(`
		INSERT INTO phase_stats (run_id, seq, phase, status, attempted, produced, skipped, deduplicated, failed, elapsed_ms, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, runID, p.Seq, p.Phase, p.Status, p.Attempted, p.Produced, p.Skipped, p.Deduplicated, p.Failed, p.Elapsed.Milliseconds(), p.Message)
	if err != nil {
		return fmt.Errorf("record phase %s: %w", p.Phase, err)
	}
	return nil
}

// FinishRun stores the end time, outcome, and usage of r.
func (db *DB) FinishRun(r *Run) error {
	var ended any
	if r.EndedAt != nil {
		ended = formatTime(*r.EndedAt)
	}
	res, err := db.Exec(`
		UPDATE runs SET persona_digest = ?, ended_at = ?, outcome = ?, llm_calls = ?, input_tokens = ?, output_tokens = ?, cost = ?
		WHERE id = ?
	`, r.PersonaDigest, ended, string(r.Outcome), r.Calls, r.InputTokens, r.OutputTokens, r.Cost, r.ID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run: unknown run %s", r.ID)
	}
	return nil
}

const runColumns = `id, system, model, fingerprint, persona_digest, started_at, ended_at, outcome, llm_calls, input_tokens, output_tokens, cost`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var started string
	var ended sql.NullString
	if err := row.Scan(&r.ID, &r.System, &r.Model, &r.Fingerprint, &r.PersonaDigest, &started, &ended,
		&r.Outcome, &r.Calls, &r.InputTokens, &r.OutputTokens, &r.Cost); err != nil {
		return nil, err
	}
	r.StartedAt, _ = parseTime(started)
	r.EndedAt = parseNullableTime(ended)
	return &r, nil
}

// GetRun retrieves a run by ID. A missing run is (nil, nil).
func (db *DB) GetRun(id string) (*Run, error) {
	r, err := scanRun(db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns the most recent runs first. limit <= 0 means all.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// LastCompleted returns the latest completed run for a result root, or nil.
func (db *DB) LastCompleted(system, fingerprint, model string) (*Run, error) {
	r, err := scanRun(db.QueryRow(`
		SELECT `+runColumns+` FROM runs
		WHERE system = ? AND fingerprint = ? AND model = ? AND outcome = ?
		ORDER BY started_at DESC LIMIT 1
	`, system, fingerprint, model, string(OutcomeCompleted)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last completed run: %w", err)
	}
	return r, nil
}

// PhaseStats lists the phase rows of a run in execution order.
func (db *DB) PhaseStats(runID string) ([]PhaseRecord, error) {
	rows, err := db.Query(`
		SELECT seq, phase, status, attempted, produced, skipped, deduplicated, failed, elapsed_ms, message
		FROM phase_stats WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("phase stats: %w", err)
	}
	defer rows.Close()

	var out []PhaseRecord
	for rows.Next() {
		var p PhaseRecord
		var ms int64
		if err := rows.Scan(&p.Seq, &p.Phase, &p.Status, &p.Attempted, &p.Produced, &p.Skipped, &p.Deduplicated, &p.Failed, &ms, &p.Message); err != nil {
			return nil, fmt.Errorf("scan phase: %w", err)
		}
		p.Elapsed = time.Duration(ms) * time.Millisecond
		out = append(out, p)
	}
	return out, rows.Err()
}
