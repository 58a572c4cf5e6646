package usecase

import (
	"context"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/ShayCichocki/reqflow/internal/pipeline"
	"github.com/ShayCichocki/reqflow/internal/prompt"
	"github.com/ShayCichocki/reqflow/internal/reply"
	"github.com/ShayCichocki/reqflow/internal/store"
	"github.com/ShayCichocki/reqflow/pkg/models"
)

// LoadAll reads every use case in ID order. Unreadable files are logged and
// left out.
func LoadAll(pc *pipeline.Context) ([]models.UseCase, error) {
	keys, err := pc.Store.List(store.UseCasesDir)
	if err != nil {
		return nil, err
	}
	var out []models.UseCase
	for _, key := range keys {
		if path.Dir(key) != store.UseCasesDir || path.Ext(key) != ".json" {
			continue
		}
		var uc models.UseCase
		ok, err := pc.ReadItem(key, &uc)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, uc)
		}
	}
	return out, nil
}

// involved resolves a use case's personas; ok is false when any of them is
// no longer registered.
func involved(pc *pipeline.Context, uc models.UseCase) ([]models.Persona, bool) {
	out := make([]models.Persona, 0, len(uc.Personas))
	for _, id := range uc.Personas {
		p, ok := pc.Persona(id)
		if !ok {
			return nil, false
		}
		out = append(out, p)
	}
	return out, len(out) > 0
}

type content struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Content fills the name and description of skeletons.
type Content struct{}

// Name implements pipeline.Phase.
func (Content) Name() string { return "use-case-content" }

// Run implements pipeline.Phase.
func (c Content) Run(ctx context.Context, pc *pipeline.Context) (pipeline.Stats, error) {
	stats := pipeline.Stats{Phase: c.Name()}
	if err := pc.RequirePersonas(); err != nil {
		return stats, err
	}
	ucs, err := LoadAll(pc)
	if err != nil {
		return stats, err
	}
	if len(ucs) == 0 {
		return stats, pipeline.Missing("no use case skeletons")
	}
	log := pc.Logger().With(zap.String("phase", c.Name()))

	for _, uc := range ucs {
		if uc.HasContent() {
			stats.Skipped++
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		personas, ok := involved(pc, uc)
		if !ok {
			log.Warn("use case references an unregistered persona", zap.String("use_case", uc.ID), zap.Strings("personas", uc.Personas))
			stats.Skipped++
			continue
		}

		stats.Attempted++
		text, err := pc.Ask(ctx, pc.Prompts.UseCaseContent(uc, personas))
		if err == nil {
			r := reply.Decode[content](text, prompt.UseCaseContentSchema)
			if !r.OK() {
				err = &pipeline.ParseError{What: uc.ID, Reason: r.Reason}
			} else {
				uc.Name = strings.TrimSpace(r.Value.Name)
				uc.Description = strings.TrimSpace(r.Value.Description)
			}
		}
		if err != nil {
			if err := pc.ItemError(&stats, err, zap.String("use_case", uc.ID)); err != nil {
				return stats, err
			}
			continue
		}
		if err := pc.Store.WriteJSON(store.UseCaseKey(uc.ID), uc); err != nil {
			return stats, err
		}
		stats.Produced++
	}
	return stats, nil
}

// Scenario writes the narrative scenario of each named use case.
type Scenario struct{}

// Name implements pipeline.Phase.
func (Scenario) Name() string { return "use-case-scenario" }

// Run implements pipeline.Phase. Scenarios written earlier, in this run or
// before, are summarized into each prompt.
func (s Scenario) Run(ctx context.Context, pc *pipeline.Context) (pipeline.Stats, error) {
	stats := pipeline.Stats{Phase: s.Name()}
	if err := pc.RequirePersonas(); err != nil {
		return stats, err
	}
	ucs, err := LoadAll(pc)
	if err != nil {
		return stats, err
	}
	if len(ucs) == 0 {
		return stats, pipeline.Missing("no use cases")
	}
	log := pc.Logger().With(zap.String("phase", s.Name()))

	var previous []string
	for _, uc := range ucs {
		if uc.HasScenario() {
			previous = append(previous, recap(uc))
		}
	}

	for _, uc := range ucs {
		if uc.HasScenario() {
			stats.Skipped++
			continue
		}
		if !uc.HasContent() {
			log.Debug("use case has no content yet", zap.String("use_case", uc.ID))
			stats.Skipped++
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		personas, ok := involved(pc, uc)
		if !ok {
			log.Warn("use case references an unregistered persona", zap.String("use_case", uc.ID), zap.Strings("personas", uc.Personas))
			stats.Skipped++
			continue
		}

		stats.Attempted++
		text, err := pc.Ask(ctx, pc.Prompts.UseCaseScenario(uc, personas, previous))
		if err == nil && reply.Clean(text) == "" {
			err = &pipeline.ParseError{What: uc.ID, Reason: "empty scenario"}
		}
		if err != nil {
			if err := pc.ItemError(&stats, err, zap.String("use_case", uc.ID)); err != nil {
				return stats, err
			}
			continue
		}

		uc.Scenario = reply.Clean(text)
		now := pc.Clock().UTC()
		uc.GeneratedAt = &now
		if err := pc.Store.WriteJSON(store.UseCaseKey(uc.ID), uc); err != nil {
			return stats, err
		}
		previous = append(previous, recap(uc))
		stats.Produced++
	}
	return stats, nil
}

func recap(uc models.UseCase) string {
	return fmt.Sprintf("%s %s: %s", uc.ID, uc.Name, uc.Description)
}
