package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/reqflow/internal/analysis"
	"github.com/ShayCichocki/reqflow/internal/api"
	"github.com/ShayCichocki/reqflow/internal/cluster"
	"github.com/ShayCichocki/reqflow/internal/conflict"
	"github.com/ShayCichocki/reqflow/internal/decompose"
	"github.com/ShayCichocki/reqflow/internal/docs"
	"github.com/ShayCichocki/reqflow/internal/persona"
	"github.com/ShayCichocki/reqflow/internal/pipeline"
	"github.com/ShayCichocki/reqflow/internal/prompt"
	"github.com/ShayCichocki/reqflow/internal/state"
	"github.com/ShayCichocki/reqflow/internal/store"
	"github.com/ShayCichocki/reqflow/internal/story"
	"github.com/ShayCichocki/reqflow/internal/task"
	"github.com/ShayCichocki/reqflow/internal/usecase"
	"github.com/ShayCichocki/reqflow/pkg/models"
)

// MetricsFile is the textfile-collector output beside the ledger.
const MetricsFile = "metrics.prom"

// Phases returns the pipeline in execution order.
func Phases(personasDir string) []pipeline.Phase {
	phases := []pipeline.Phase{
		&persona.Registry{Dir: personasDir},
		usecase.Allocator{},
		usecase.Content{},
		usecase.Scenario{},
		task.Extractor{},
		task.Deduplicator{},
		story.Synthesizer{},
		story.Typer{},
		cluster.NonFunctional{},
		cluster.FunctionalSet{},
		cluster.Functional{},
		decompose.Decomposer{},
	}
	for _, f := range models.Families {
		phases = append(phases,
			&conflict.Identifier{Family: f},
			&conflict.Verifier{Family: f},
			&conflict.Resolver{Family: f},
		)
	}
	return append(phases, analysis.Exporter{})
}

// Report summarizes a run.
type Report struct {
	RunID        string
	Root         string
	Fingerprint  string
	Phases       []pipeline.Stats
	Outcome      state.Outcome
	Calls        int
	InputTokens  int64
	OutputTokens int64
	Cost         float64
	// Truncated counts replies that stopped at the token cap.
	Truncated int
	Elapsed   time.Duration
}

// Runner executes the pipeline once per Run call.
type Runner struct {
	opts    Options
	gateway *api.Gateway
	log     *zap.Logger
}

// New validates opts and prepares the model gateway. No model connection is
// made until a phase needs one.
func New(opts Options) (*Runner, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	var gwOpts []api.GatewayOption
	if opts.RequestsPerMinute > 0 {
		gwOpts = append(gwOpts, api.WithRequestsPerMinute(opts.RequestsPerMinute))
	}
	var gw *api.Gateway
	if opts.Asker != nil {
		gw = api.NewGateway(opts.Asker, gwOpts...)
	} else {
		cc := opts.Client
		gw = api.NewLazyGateway(func() (api.Asker, error) { return api.NewClient(cc) }, gwOpts...)
	}
	return &Runner{opts: opts, gateway: gw, log: log}, nil
}

func (r *Runner) now() time.Time {
	if r.opts.Now != nil {
		return r.opts.Now()
	}
	return time.Now()
}

// context builds the shared phase context for this run.
func (r *Runner) context() (*pipeline.Context, string, error) {
	fingerprint, err := store.Fingerprint(r.opts.PersonasDir)
	if err != nil {
		return nil, "", err
	}
	bundle, err := docs.Load(r.opts.DocsDir)
	if err != nil {
		return nil, "", err
	}
	prompts := prompt.New(bundle)
	if r.opts.LanguageHint != "" {
		prompts = prompts.WithLanguageHint(r.opts.LanguageHint)
	}
	root := store.ResultRoot(r.opts.ResultsDir, r.opts.SystemName, fingerprint, r.opts.Model)
	return &pipeline.Context{
		Store:                store.New(root),
		LLM:                  r.gateway,
		Prompts:              prompts,
		Docs:                 bundle,
		Log:                  r.log,
		SystemName:           r.opts.SystemName,
		Model:                r.opts.Model,
		Fingerprint:          fingerprint,
		Seed:                 r.opts.Seed,
		DedupMaxRemovalRatio: r.opts.DedupMaxRemovalRatio,
		IncludeUnclustered:   r.opts.IncludeUnclustered,
		Now:                  r.opts.Now,
	}, root, nil
}

// Run executes every phase in order. A missing prerequisite aborts only
// its phase. A credential failure, a store failure, or cancellation halts
// the run and is returned; the report is filled in either way.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	start := r.now()
	report := &Report{Outcome: state.OutcomeRunning}

	pc, root, err := r.context()
	if err != nil {
		report.Outcome = state.OutcomeHalted
		return report, err
	}
	report.Root = root
	report.Fingerprint = pc.Fingerprint
	log := r.log.With(zap.String("root", root))
	log.Info("pipeline started", zap.String("system", r.opts.SystemName), zap.String("model", r.opts.Model))

	ledger, run := r.openLedger(pc, start, log)
	if ledger != nil {
		defer ledger.Close()
		report.RunID = run.ID
	}

	var runErr error
	for i, ph := range Phases(r.opts.PersonasDir) {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		r.opts.Events.Emit(OrchestratorEvent{Type: EventPhaseStarted, Phase: ph.Name(), Timestamp: r.now(), Calls: r.gateway.Calls()})

		began := r.now()
		stats, err := ph.Run(ctx, pc)
		stats.Phase = ph.Name()
		stats.Elapsed = r.now().Sub(began)
		switch {
		case err == nil:
			stats.Finish()
			log.Info("phase finished", stats.Fields()...)
		case errors.Is(err, pipeline.ErrMissingPrerequisite):
			stats.Status = pipeline.StatusAborted
			stats.Message = err.Error()
			log.Warn("phase skipped", zap.String("phase", stats.Phase), zap.Error(err))
		default:
			stats.Status = pipeline.StatusAborted
			stats.Message = err.Error()
			runErr = fmt.Errorf("%s: %w", stats.Phase, err)
			log.Error("phase failed", zap.String("phase", stats.Phase), zap.Error(err))
		}
		report.Phases = append(report.Phases, stats)
		if ledger != nil {
			r.recordPhase(ledger, run.ID, i, stats, log)
		}
		r.opts.Events.Emit(OrchestratorEvent{Type: EventPhaseFinished, Phase: stats.Phase, Stats: stats, Error: err, Timestamp: r.now(), Calls: r.gateway.Calls()})
		if runErr != nil {
			break
		}
	}

	switch {
	case runErr == nil:
		report.Outcome = state.OutcomeCompleted
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		report.Outcome = state.OutcomeCanceled
	default:
		report.Outcome = state.OutcomeHalted
	}
	report.Calls = r.gateway.Calls()
	if t := r.gateway.Tracker(); t != nil {
		report.InputTokens, report.OutputTokens = t.Total()
		report.Cost = t.Cost()
		report.Truncated = t.Truncated()
	}
	if report.Truncated > 0 {
		log.Warn("replies hit the token cap; raise anthropic.max_tokens if parses fail",
			zap.Int("truncated", report.Truncated))
	}
	report.Elapsed = r.now().Sub(start)

	if ledger != nil {
		r.finishLedger(ledger, run, pc, report, log)
	}
	r.writeMetrics(report, log)
	r.opts.Events.Emit(OrchestratorEvent{Type: EventRunDone, Error: runErr, Timestamp: r.now(), Calls: report.Calls})
	log.Info("pipeline finished",
		zap.String("outcome", string(report.Outcome)),
		zap.Duration("elapsed", report.Elapsed),
		zap.Int("llm_calls", report.Calls))
	return report, runErr
}

// openLedger starts the ledger row. Ledger trouble is logged and never
// stops the pipeline.
func (r *Runner) openLedger(pc *pipeline.Context, start time.Time, log *zap.Logger) (state.Ledger, *state.Run) {
	if r.opts.NoLedger {
		return nil, nil
	}
	db, err := state.OpenLedger(r.opts.ResultsDir)
	if err != nil {
		log.Warn("run ledger unavailable", zap.Error(err))
		return nil, nil
	}
	run := &state.Run{System: r.opts.SystemName, Model: r.opts.Model, Fingerprint: pc.Fingerprint, StartedAt: start}
	if err := db.StartRun(run); err != nil {
		log.Warn("run ledger unavailable", zap.Error(err))
		db.Close()
		return nil, nil
	}
	return db, run
}

func (r *Runner) recordPhase(db state.RunStore, runID string, seq int, s pipeline.Stats, log *zap.Logger) {
	err := db.RecordPhase(runID, state.PhaseRecord{
		Seq:          seq,
		Phase:        s.Phase,
		Status:       string(s.Status),
		Attempted:    s.Attempted,
		Produced:     s.Produced,
		Skipped:      s.Skipped,
		Deduplicated: s.Deduplicated,
		Failed:       s.Failed,
		Elapsed:      s.Elapsed,
		Message:      s.Message,
	})
	if err != nil {
		log.Warn("ledger write failed", zap.Error(err))
	}
}

func (r *Runner) finishLedger(db state.RunStore, run *state.Run, pc *pipeline.Context, report *Report, log *zap.Logger) {
	if len(pc.Personas) > 0 {
		digest, err := store.PersonaDigest(pc.Personas)
		if err != nil {
			log.Warn("persona digest failed", zap.Error(err))
		}
		run.PersonaDigest = digest
	}
	end := r.now()
	run.EndedAt = &end
	run.Outcome = report.Outcome
	run.Calls = report.Calls
	run.InputTokens = report.InputTokens
	run.OutputTokens = report.OutputTokens
	run.Cost = report.Cost
	if err := db.FinishRun(run); err != nil {
		log.Warn("ledger write failed", zap.Error(err))
	}
}

// writeMetrics refreshes the textfile whether or not the ledger is enabled.
func (r *Runner) writeMetrics(report *Report, log *zap.Logger) {
	metrics := filepath.Join(state.LedgerDir(r.opts.ResultsDir), MetricsFile)
	err := analysis.WriteMetrics(metrics, analysis.RunMetrics{
		System:       r.opts.SystemName,
		Model:        r.opts.Model,
		Outcome:      string(report.Outcome),
		Phases:       report.Phases,
		Calls:        report.Calls,
		InputTokens:  report.InputTokens,
		OutputTokens: report.OutputTokens,
		Cost:         report.Cost,
	})
	if err != nil {
		log.Warn("metrics write failed", zap.Error(err))
	}
}
