package orchestrator

import (
	"errors"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"go.uber.org/zap"

	"github.com/ShayCichocki/reqflow/internal/api"
	"github.com/ShayCichocki/reqflow/internal/config"
)

// Options holds everything a run needs.
type Options struct {
	SystemName  string
	ResultsDir  string
	PersonasDir string
	DocsDir     string
	// Model names the model endpoint and the result-root segment.
	Model string

	Seed                 int64
	DedupMaxRemovalRatio float64
	IncludeUnclustered   bool
	// LanguageHint overrides the documentation bundle's hint when set.
	LanguageHint string

	// Client configures the Anthropic client built on first use.
	Client            api.ClientConfig
	RequestsPerMinute int
	// Asker replaces the Anthropic client; tests script it.
	Asker api.Asker

	Logger *zap.Logger
	// Events, when set, receives phase progress.
	Events *EventEmitter
	// NoLedger skips the SQLite ledger. The metrics textfile is still written.
	NoLedger bool
	Now      func() time.Time
}

// OptionsFromConfig maps loaded configuration onto run options.
func OptionsFromConfig(cfg *config.Config, model string) Options {
	cred, _ := config.ResolveCredential(cfg)
	return Options{
		SystemName:           cfg.Pipeline.SystemName,
		ResultsDir:           cfg.Pipeline.ResultsDir,
		PersonasDir:          cfg.Pipeline.PersonasDir,
		DocsDir:              cfg.Pipeline.DocsDir,
		Model:                model,
		Seed:                 cfg.Pipeline.Seed,
		DedupMaxRemovalRatio: cfg.Pipeline.TaskDedupMaxRemovalRatio,
		IncludeUnclustered:   cfg.Pipeline.IncludeUnclustered,
		LanguageHint:         cfg.Pipeline.LanguageHint,
		Client: api.ClientConfig{
			Model:         anthropic.Model(model),
			APIKey:        cred.Key,
			MaxTokens:     cfg.Anthropic.MaxTokens,
			UseAWSBedrock: cfg.Anthropic.UseBedrock,
			AWSRegion:     cfg.Anthropic.AWSRegion,
			AWSProfile:    cfg.Anthropic.AWSProfile,
		},
		RequestsPerMinute: cfg.Anthropic.RequestsPerMinute,
	}
}

func (o Options) validate() error {
	switch {
	case o.SystemName == "":
		return errors.New("system name is required")
	case o.ResultsDir == "":
		return errors.New("results dir is required")
	case o.PersonasDir == "":
		return errors.New("personas dir is required")
	case o.DocsDir == "":
		return errors.New("docs dir is required")
	case o.Model == "":
		return errors.New("model is required")
	case o.DedupMaxRemovalRatio < 0 || o.DedupMaxRemovalRatio > 1:
		return errors.New("dedup max removal ratio must be within [0, 1]")
	}
	return nil
}
