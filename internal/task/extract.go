// Package task extracts persona tasks from use-case scenarios and removes
// duplicates per persona under a removal cap.
package task

import (
	"context"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ShayCichocki/reqflow/internal/pipeline"
	"github.com/ShayCichocki/reqflow/internal/prompt"
	"github.com/ShayCichocki/reqflow/internal/reply"
	"github.com/ShayCichocki/reqflow/internal/store"
	"github.com/ShayCichocki/reqflow/internal/usecase"
	"github.com/ShayCichocki/reqflow/pkg/models"
)

type extraction struct {
	Personas []struct {
		PersonaID string   `json:"personaId"`
		Tasks     []string `json:"tasks"`
	} `json:"personas"`
}

// Extractor asks for the tasks of every persona in each scenario.
type Extractor struct{}

// Name implements pipeline.Phase.
func (Extractor) Name() string { return "task-extraction" }

// Run implements pipeline.Phase.
func (e Extractor) Run(ctx context.Context, pc *pipeline.Context) (pipeline.Stats, error) {
	stats := pipeline.Stats{Phase: e.Name()}
	if err := pc.RequirePersonas(); err != nil {
		return stats, err
	}
	ucs, err := usecase.LoadAll(pc)
	if err != nil {
		return stats, err
	}
	if len(ucs) == 0 {
		return stats, pipeline.Missing("no use cases")
	}
	existing, err := LoadExtractions(pc)
	if err != nil {
		return stats, err
	}
	next := 1
	for _, ex := range existing {
		for _, t := range ex.Tasks {
			if n, ok := models.ParseIDNumber(models.TaskPrefix, t.ID); ok && n >= next {
				next = n + 1
			}
		}
	}
	log := pc.Logger().With(zap.String("phase", e.Name()))

	for _, uc := range ucs {
		if _, done := existing[uc.ID]; done {
			stats.Skipped++
			continue
		}
		if !uc.HasScenario() {
			stats.Skipped++
			continue
		}
		personas, ok := registered(pc, uc)
		if !ok {
			log.Warn("use case references an unregistered persona", zap.String("use_case", uc.ID))
			stats.Skipped++
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		stats.Attempted++
		text, err := pc.Ask(ctx, pc.Prompts.ExtractTasks(uc, personas))
		var tasks []models.Task
		if err == nil {
			r := reply.Decode[extraction](text, prompt.TaskExtractionSchema)
			if !r.OK() {
				err = &pipeline.ParseError{What: uc.ID, Reason: r.Reason}
			} else if tasks = flatten(uc, r.Value, next); len(tasks) == 0 {
				err = &pipeline.ParseError{What: uc.ID, Reason: "no tasks for the involved personas"}
			}
		}
		if err != nil {
			if err := pc.ItemError(&stats, err, zap.String("use_case", uc.ID)); err != nil {
				return stats, err
			}
			continue
		}

		rec := models.UseCaseExtraction{UseCaseID: uc.ID, Tasks: tasks}
		if err := pc.Store.WriteJSON(store.ExtractionKey(uc.ID), rec); err != nil {
			return stats, err
		}
		existing[uc.ID] = rec
		next += len(tasks)
		stats.Produced++
	}
	return stats, nil
}

// flatten keeps tasks of personas the use case involves, numbering them from
// next in persona order then reply order.
func flatten(uc models.UseCase, ex extraction, next int) []models.Task {
	byPersona := map[string][]string{}
	for _, entry := range ex.Personas {
		id := strings.TrimSpace(entry.PersonaID)
		if !uc.Involves(id) {
			continue
		}
		for _, d := range entry.Tasks {
			if d = strings.TrimSpace(d); d != "" {
				byPersona[id] = append(byPersona[id], d)
			}
		}
	}
	var out []models.Task
	for _, pid := range uc.Personas {
		for _, d := range byPersona[pid] {
			out = append(out, models.Task{
				ID:          models.FormatID(models.TaskPrefix, next),
				UseCaseID:   uc.ID,
				PersonaID:   pid,
				Description: d,
			})
			next++
		}
	}
	return out
}

func registered(pc *pipeline.Context, uc models.UseCase) ([]models.Persona, bool) {
	var out []models.Persona
	for _, id := range uc.Personas {
		p, ok := pc.Persona(id)
		if !ok {
			return nil, false
		}
		out = append(out, p)
	}
	return out, len(out) > 0
}

// LoadExtractions reads every per-use-case extraction record keyed by use case.
func LoadExtractions(pc *pipeline.Context) (map[string]models.UseCaseExtraction, error) {
	dir := path.Dir(store.ExtractionKey("x"))
	keys, err := pc.Store.List(dir)
	if err != nil {
		return nil, err
	}
	out := map[string]models.UseCaseExtraction{}
	for _, key := range keys {
		var rec models.UseCaseExtraction
		ok, err := pc.ReadItem(key, &rec)
		if err != nil {
			return nil, err
		}
		if ok && rec.UseCaseID != "" {
			out[rec.UseCaseID] = rec
		}
	}
	return out, nil
}

// LoadPersonaTasks reads the deduplicated tasks of every registered persona
// that has them, keyed by persona.
func LoadPersonaTasks(pc *pipeline.Context) (map[string]models.PersonaTasks, error) {
	out := map[string]models.PersonaTasks{}
	for _, p := range pc.Personas {
		var pt models.PersonaTasks
		ok, err := pc.ReadItem(store.PersonaTasksKey(p.ID), &pt)
		if err != nil {
			return nil, err
		}
		if ok {
			out[p.ID] = pt
		}
	}
	return out, nil
}

func sortTasks(ts []models.Task) {
	sort.SliceStable(ts, func(i, j int) bool {
		a, _ := models.ParseIDNumber(models.TaskPrefix, ts[i].ID)
		b, _ := models.ParseIDNumber(models.TaskPrefix, ts[j].ID)
		return a < b
	})
}
