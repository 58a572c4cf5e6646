package main

import (
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/reqflow/internal/orchestrator"
)

// DefaultModel is used when --model is not given.
const DefaultModel = "claude-sonnet-4-20250514"

// pipelineFlags override configuration for one invocation.
type pipelineFlags struct {
	model    string
	system   string
	personas string
	docs     string
	results  string
	noLedger bool
}

func (f *pipelineFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.model, "model", DefaultModel, "Model name; also names the result directory")
	cmd.Flags().StringVar(&f.system, "system", "", "System name (overrides pipeline.system_name)")
	cmd.Flags().StringVar(&f.personas, "personas", "", "Persona directory (overrides pipeline.personas_dir)")
	cmd.Flags().StringVar(&f.docs, "docs", "", "Documentation bundle directory (overrides pipeline.docs_dir)")
	cmd.Flags().StringVar(&f.results, "results", "", "Results directory (overrides pipeline.results_dir)")
	cmd.Flags().BoolVar(&f.noLedger, "no-ledger", false, "Do not record the run in the ledger (metrics are still written)")
}

// options merges configuration and flags.
func (f *pipelineFlags) options() orchestrator.Options {
	opts := orchestrator.OptionsFromConfig(cfg, f.model)
	if f.system != "" {
		opts.SystemName = f.system
	}
	if f.personas != "" {
		opts.PersonasDir = f.personas
	}
	if f.docs != "" {
		opts.DocsDir = f.docs
	}
	if f.results != "" {
		opts.ResultsDir = f.results
	}
	opts.NoLedger = f.noLedger
	opts.Logger = logger
	return opts
}
