package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/reqflow/internal/orchestrator"
	"github.com/ShayCichocki/reqflow/internal/pipeline"
	"github.com/ShayCichocki/reqflow/internal/state"
)

var runFlags pipelineFlags

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once",
	Long: `Run every phase in order: personas, use cases, tasks, user stories,
typing, clustering, decomposition, then conflict identification,
verification and resolution for each conflict family, and finally the
analysis export.

Finished work is never redone. A phase whose inputs are missing is skipped
and the run continues. A missing credential, a storage failure, or Ctrl-C
stops the run; the exit status is non-zero in those cases.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runOnce(ctx, cmd.OutOrStdout(), runFlags.options())
	},
}

// runOnce runs the pipeline, printing each phase as it finishes and the
// totals at the end.
func runOnce(ctx context.Context, w io.Writer, opts orchestrator.Options) error {
	events := orchestrator.NewEventEmitter()
	opts.Events = events
	phases := events.Subscribe(64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range phases {
			if ev.Type == orchestrator.EventPhaseFinished {
				printPhase(w, ev.Stats)
			}
		}
	}()

	runner, err := orchestrator.New(opts)
	if err != nil {
		events.Close()
		<-done
		return err
	}
	report, err := runner.Run(ctx)
	events.Close()
	<-done
	printSummary(w, report)
	return err
}

func init() {
	runFlags.bind(runCmd)
}

// printPhase prints one finished phase.
func printPhase(w io.Writer, s pipeline.Stats) {
	fmt.Fprintf(w, "%s %-24s attempted=%d produced=%d skipped=%d failed=%d",
		statusMark(s.Status), s.Phase, s.Attempted, s.Produced, s.Skipped, s.Failed)
	if s.Deduplicated > 0 {
		fmt.Fprintf(w, " deduplicated=%d", s.Deduplicated)
	}
	if s.Message != "" {
		fmt.Fprintf(w, " (%s)", s.Message)
	}
	fmt.Fprintln(w)
}

// printSummary prints the run totals.
func printSummary(w io.Writer, r *orchestrator.Report) {
	if r == nil {
		return
	}
	fmt.Fprintln(w)
	color.New(color.Bold).Fprint(w, "Outcome: ")
	fmt.Fprintln(w, outcomeColor(r.Outcome).Sprint(r.Outcome))
	fmt.Fprintf(w, "Results: %s\n", r.Root)
	fmt.Fprintf(w, "LLM calls: %d\n", r.Calls)
	if r.InputTokens > 0 || r.OutputTokens > 0 {
		fmt.Fprintf(w, "Tokens: %d in / %d out (~$%.4f)\n", r.InputTokens, r.OutputTokens, r.Cost)
	}
	if r.Truncated > 0 {
		fmt.Fprintln(w, color.YellowString("%d replies hit the token cap", r.Truncated))
	}
	fmt.Fprintf(w, "Elapsed: %s\n", r.Elapsed.Round(time.Millisecond))
}

func statusMark(s pipeline.Status) string {
	switch s {
	case pipeline.StatusCompleted:
		return color.GreenString("✓")
	case pipeline.StatusPartial:
		return color.YellowString("◐")
	case pipeline.StatusAborted:
		return color.RedString("✗")
	default:
		return color.New(color.Faint).Sprint("·")
	}
}

func outcomeColor(o state.Outcome) *color.Color {
	switch o {
	case state.OutcomeCompleted:
		return color.New(color.FgGreen)
	case state.OutcomeCanceled:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}
