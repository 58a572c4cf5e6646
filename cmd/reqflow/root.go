package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ShayCichocki/reqflow/internal/config"
	"github.com/ShayCichocki/reqflow/internal/orchestrator"
)

var (
	verbose bool

	cfg      *config.Config
	logger   = zap.NewNop()
	closeLog = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "reqflow",
	Short: "Requirements engineering pipeline",
	Long: `reqflow turns personas and a system documentation bundle into user
stories, clusters them, and finds, verifies and resolves conflicts between
them.

Every phase persists its artifacts under the results directory and only
does the work that is still missing, so an interrupted run simply continues
where it stopped.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		var err error
		if cfg, err = config.Load(); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger, closeLog, err = orchestrator.NewLogger(orchestrator.LogOptions{
			Level:   cfg.Logging.Level,
			Verbose: verbose,
			File:    cfg.Logging.File,
		})
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLog()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
