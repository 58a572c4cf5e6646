package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ShayCichocki/reqflow/internal/api"
	"github.com/ShayCichocki/reqflow/internal/orchestrator"
)

var (
	watchFlags    pipelineFlags
	watchDebounce time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run the pipeline when personas or docs change",
	Long: `Run the pipeline once, then watch the persona and documentation
directories and run again after each burst of changes. Runs never overlap.
Only the work invalidated or added by the change is done.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		opts := watchFlags.options()
		out := cmd.OutOrStdout()
		once := func(ctx context.Context) error {
			return runOnce(ctx, out, opts)
		}
		if err := once(ctx); err != nil {
			if api.IsFatal(err) || ctx.Err() != nil {
				return err
			}
			logger.Error("initial run failed", zap.Error(err))
		}

		w, err := orchestrator.NewWatcher([]string{opts.PersonasDir, opts.DocsDir}, watchDebounce, logger, once)
		if err != nil {
			return err
		}
		logger.Info("watching for changes", zap.String("personas", opts.PersonasDir), zap.String("docs", opts.DocsDir))
		return w.Watch(ctx)
	},
}

func init() {
	watchFlags.bind(watchCmd)
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", orchestrator.DefaultDebounce, "Quiet period before a re-run")
}
