package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ShayCichocki/reqflow/internal/orchestrator"
	"github.com/ShayCichocki/reqflow/internal/persona"
	"github.com/ShayCichocki/reqflow/internal/state"
	"github.com/ShayCichocki/reqflow/internal/store"
)

var (
	statusFlags pipelineFlags
	statusRuns  int
	statusPurge time.Duration
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline progress and recent runs",
	Long: `Display what the result directory already holds for the current
persona set and model, and the most recent runs from the ledger.

A warning is shown when the persona files changed since the last run.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := statusFlags.options()
		out := cmd.OutOrStdout()

		fingerprint, err := store.Fingerprint(opts.PersonasDir)
		if err != nil {
			return err
		}
		root := store.ResultRoot(opts.ResultsDir, opts.SystemName, fingerprint, opts.Model)
		progress, err := orchestrator.ReadProgress(store.New(root))
		if err != nil {
			return err
		}
		fmt.Fprintln(out, titleStyle.Render("Artifacts")+" "+root)
		fmt.Fprintln(out, progressTable(progress))

		if _, err := os.Stat(state.DBPath(opts.ResultsDir)); os.IsNotExist(err) {
			fmt.Fprintln(out, "No runs recorded yet. Run 'reqflow run' to start.")
			return nil
		}
		db, err := state.OpenLedger(opts.ResultsDir)
		if err != nil {
			return fmt.Errorf("open ledger: %w", err)
		}
		defer db.Close()
		if statusPurge > 0 {
			n, err := db.PurgeOldRuns(time.Now(), statusPurge)
			if err != nil {
				return fmt.Errorf("purge runs: %w", err)
			}
			fmt.Fprintf(out, "Purged %d run(s) older than %s\n", n, statusPurge)
		}
		return displayRuns(out, db, opts, fingerprint)
	},
}

func init() {
	statusFlags.bind(statusCmd)
	statusCmd.Flags().IntVar(&statusRuns, "runs", 5, "Number of recent runs to show")
	statusCmd.Flags().DurationVar(&statusPurge, "purge", 0, "Delete ledger runs older than this age (e.g. 720h)")
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func progressTable(p *orchestrator.Progress) *table.Table {
	n := strconv.Itoa
	t := newTable("Artifact", "Count", "Detail")
	t.Row("use cases", n(p.UseCases), n(p.Scenarios)+" with scenario")
	t.Row("task extractions", n(p.Extractions), n(p.PersonaTasks)+" persona task files")
	t.Row("user stories", n(p.Stories), fmt.Sprintf("%d typed, %d clustered, %d discarded", p.Typed, p.Clustered, p.Discarded))
	t.Row("decompositions", n(p.Decomposed), "")
	t.Row("functional clusters", n(p.FunctionalClusters), "")
	for _, f := range p.Families {
		t.Row("conflicts "+f.Family.Prefix, n(f.Conflicts),
			fmt.Sprintf("%d groups, %d verified, %d resolved, %d invalid", f.Groups, f.Verified, f.Resolved, f.Invalid))
	}
	t.Row("analysis files", n(p.AnalysisFiles), "")
	return t
}

func displayRuns(out io.Writer, db state.RunReader, opts orchestrator.Options, fingerprint string) error {
	runs, err := db.ListRuns(statusRuns)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet.")
		return nil
	}
	t := newTable("Run", "Started", "Model", "Outcome", "Calls", "Cost")
	for _, r := range runs {
		t.Row(r.ID[:8], r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Model, string(r.Outcome),
			strconv.Itoa(r.Calls), fmt.Sprintf("$%.4f", r.Cost))
	}
	fmt.Fprintln(out, titleStyle.Render("Recent runs"))
	fmt.Fprintln(out, t)

	last, err := db.LastCompleted(opts.SystemName, fingerprint, opts.Model)
	if err != nil || last == nil || last.PersonaDigest == "" {
		return err
	}
	personas, err := persona.Load(opts.PersonasDir, zap.NewNop())
	if err != nil {
		return nil
	}
	digest, err := store.PersonaDigest(personas)
	if err == nil && digest != last.PersonaDigest {
		fmt.Fprintln(out, warnStyle.Render("Persona files changed since the last completed run."))
	}
	return nil
}
