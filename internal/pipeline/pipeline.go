// Package pipeline defines the configuration value threaded through every
// phase and the per-phase outcome record.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/reqflow/internal/api"
	"github.com/ShayCichocki/reqflow/internal/docs"
	"github.com/ShayCichocki/reqflow/internal/prompt"
	"github.com/ShayCichocki/reqflow/internal/store"
	"github.com/ShayCichocki/reqflow/pkg/models"
)

// ErrMissingPrerequisite aborts a phase whose inputs do not exist yet.
var ErrMissingPrerequisite = errors.New("missing prerequisite")

// Missing builds an ErrMissingPrerequisite for what.
func Missing(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMissingPrerequisite, fmt.Sprintf(format, args...))
}

// Context is everything a phase needs. It replaces process-wide settings: the
// orchestrator builds one per run and passes it to each phase in turn.
type Context struct {
	Store   *store.Store
	LLM     api.Asker
	Prompts *prompt.Builder
	Docs    *docs.Bundle
	Log     *zap.Logger

	SystemName  string
	Model       string
	Fingerprint string
	Seed        int64

	// DedupMaxRemovalRatio caps how many of a persona's tasks dedup may drop.
	DedupMaxRemovalRatio float64
	// IncludeUnclustered lets "(Unclustered)" functional stories form conflict pairs.
	IncludeUnclustered bool

	// Personas is the registered persona set, sorted by ID, each with its
	// user group. Set by the persona phase.
	Personas []models.Persona
	// Unclassified counts persona files the persona phase could not assign
	// a user group this run.
	Unclassified int

	Now func() time.Time
}

// SetPersonas stores the registry result sorted by ID.
func (c *Context) SetPersonas(ps []models.Persona) {
	sorted := append([]models.Persona(nil), ps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	c.Personas = sorted
}

// Persona looks up a registered persona.
func (c *Context) Persona(id string) (models.Persona, bool) {
	i := sort.Search(len(c.Personas), func(i int) bool { return c.Personas[i].ID >= id })
	if i < len(c.Personas) && c.Personas[i].ID == id {
		return c.Personas[i], true
	}
	return models.Persona{}, false
}

// RequirePersonas fails when the persona phase has not produced a registry.
func (c *Context) RequirePersonas() error {
	if len(c.Personas) == 0 {
		return Missing("no registered personas")
	}
	return nil
}

// Clock returns the configured time source.
func (c *Context) Clock() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Logger returns the phase logger, never nil.
func (c *Context) Logger() *zap.Logger {
	if c.Log == nil {
		return zap.NewNop()
	}
	return c.Log
}

// Status is a phase outcome.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusNoOp      Status = "no-op"
	StatusPartial   Status = "partial"
	StatusAborted   Status = "aborted"
)

// Stats counts what a phase did.
type Stats struct {
	Phase        string        `json:"phase"`
	Status       Status        `json:"status"`
	Attempted    int           `json:"attempted"`
	Produced     int           `json:"produced"`
	Skipped      int           `json:"skipped"`
	Deduplicated int           `json:"deduplicated"`
	Failed       int           `json:"failed"`
	Elapsed      time.Duration `json:"elapsed"`
	Message      string        `json:"message,omitempty"`
}

// Finish derives the status from the counters.
func (s *Stats) Finish() {
	if s.Status == StatusAborted {
		return
	}
	switch {
	case s.Attempted == 0:
		s.Status = StatusNoOp
	case s.Failed > 0:
		s.Status = StatusPartial
	default:
		s.Status = StatusCompleted
	}
}

// Add merges counters from a sub-step.
func (s *Stats) Add(o Stats) {
	s.Attempted += o.Attempted
	s.Produced += o.Produced
	s.Skipped += o.Skipped
	s.Deduplicated += o.Deduplicated
	s.Failed += o.Failed
}

// Fields renders the counters as log fields.
func (s Stats) Fields() []zap.Field {
	return []zap.Field{
		zap.String("phase", s.Phase),
		zap.String("status", string(s.Status)),
		zap.Int("attempted", s.Attempted),
		zap.Int("produced", s.Produced),
		zap.Int("skipped", s.Skipped),
		zap.Int("deduplicated", s.Deduplicated),
		zap.Int("failed", s.Failed),
		zap.Duration("elapsed", s.Elapsed),
	}
}

// Phase is one step of the pipeline. Run processes only the items whose
// outputs are missing from the store.
type Phase interface {
	Name() string
	Run(ctx context.Context, pc *Context) (Stats, error)
}

// Ask sends a prompt through the gateway and logs per-item transport failures.
// Fatal errors are returned unchanged so the caller can halt.
func (c *Context) Ask(ctx context.Context, text string) (string, error) {
	if c.LLM == nil {
		return "", api.ErrNoCredential
	}
	return c.LLM.Ask(ctx, text)
}

// ItemError decides what a per-item failure means for the phase: fatal and
// cancellation errors stop the phase, anything else is logged and counted.
func (c *Context) ItemError(stats *Stats, err error, fields ...zap.Field) error {
	if api.IsFatal(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var corrupt *store.CorruptError
	if !errors.As(err, &corrupt) && !isTransportOrParse(err) {
		return err
	}
	stats.Failed++
	c.Logger().Warn("item skipped", append(fields, zap.Error(err))...)
	return nil
}

// ParseError reports a model reply that did not satisfy its contract.
type ParseError struct {
	What   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unusable reply for %s: %s", e.What, e.Reason)
}

func isTransportOrParse(err error) bool {
	var te *api.TransportError
	var pe *ParseError
	return errors.As(err, &te) || errors.As(err, &pe)
}

// ReadItem decodes key into v. A missing or corrupt artifact yields false;
// corruption is logged. Only I/O failures are returned.
func (c *Context) ReadItem(key string, v any) (bool, error) {
	err := c.Store.ReadJSON(key, v)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	var corrupt *store.CorruptError
	if errors.As(err, &corrupt) {
		c.Logger().Warn("artifact does not parse", zap.String("key", key), zap.Error(err))
		return false, nil
	}
	return false, err
}
