package task

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/ShayCichocki/reqflow/internal/pipeline"
	"github.com/ShayCichocki/reqflow/internal/reply"
	"github.com/ShayCichocki/reqflow/internal/store"
	"github.com/ShayCichocki/reqflow/internal/usecase"
	"github.com/ShayCichocki/reqflow/pkg/models"
)

// Judge reports whether candidate duplicates kept.
type Judge func(ctx context.Context, kept, candidate models.Task) (bool, error)

// MaxRemovals is the removal cap for n tasks at ratio.
func MaxRemovals(n int, ratio float64) int {
	if ratio <= 0 || n <= 0 {
		return 0
	}
	if ratio > 1 {
		ratio = 1
	}
	return int(math.Floor(ratio*float64(n) + 1e-9))
}

// Dedup walks tasks in order and drops each candidate the judge calls a
// duplicate of an earlier kept task. Once the cap is reached the remaining
// tail is kept verbatim. Judge errors stop the walk.
func Dedup(ctx context.Context, tasks []models.Task, ratio float64, judge Judge) ([]models.Task, error) {
	limit := MaxRemovals(len(tasks), ratio)
	removed := 0
	kept := make([]models.Task, 0, len(tasks))
	for i, cand := range tasks {
		if removed >= limit {
			kept = append(kept, tasks[i:]...)
			break
		}
		dup := false
		for _, k := range kept {
			yes, err := judge(ctx, k, cand)
			if err != nil {
				return nil, err
			}
			if yes {
				dup = true
				break
			}
		}
		if dup {
			removed++
			continue
		}
		kept = append(kept, cand)
	}
	return kept, nil
}

// Deduplicator regroups extracted tasks per persona and removes duplicates.
type Deduplicator struct{}

// Name implements pipeline.Phase.
func (Deduplicator) Name() string { return "task-dedup" }

// Run implements pipeline.Phase. It waits until every use case with
// registered personas has its extraction record.
func (d Deduplicator) Run(ctx context.Context, pc *pipeline.Context) (pipeline.Stats, error) {
	stats := pipeline.Stats{Phase: d.Name()}
	if err := pc.RequirePersonas(); err != nil {
		return stats, err
	}
	log := pc.Logger().With(zap.String("phase", d.Name()))

	extractions, err := LoadExtractions(pc)
	if err != nil {
		return stats, err
	}
	if len(extractions) == 0 {
		return stats, pipeline.Missing("no task extractions")
	}
	if outstanding, err := outstandingExtractions(pc, extractions); err != nil {
		return stats, err
	} else if outstanding > 0 {
		log.Info("waiting for task extraction", zap.Int("outstanding", outstanding))
		stats.Message = "task extraction incomplete"
		return stats, nil
	}

	byPersona := map[string][]models.Task{}
	for _, ex := range extractions {
		for _, t := range ex.Tasks {
			byPersona[t.PersonaID] = append(byPersona[t.PersonaID], t)
		}
	}

	for _, p := range pc.Personas {
		key := store.PersonaTasksKey(p.ID)
		ok, err := pc.Store.Has(key)
		if err != nil {
			return stats, err
		}
		if ok {
			stats.Skipped++
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		tasks := byPersona[p.ID]
		sortTasks(tasks)
		stats.Attempted++

		persona := p
		judge := func(ctx context.Context, kept, cand models.Task) (bool, error) {
			text, err := pc.Ask(ctx, pc.Prompts.DuplicateTask(persona, kept.Description, cand.Description))
			if err != nil {
				return false, err
			}
			return reply.YesNo(text) == reply.AnswerYes, nil
		}
		// A failed check leaves the persona without a task file so the next
		// run repeats its dedup.
		kept, err := Dedup(ctx, tasks, pc.DedupMaxRemovalRatio, judge)
		if err != nil {
			if err := pc.ItemError(&stats, err, zap.String("persona", p.ID)); err != nil {
				return stats, err
			}
			continue
		}

		rec := models.PersonaTasks{PersonaID: p.ID, Before: len(tasks), Tasks: kept}
		if err := pc.Store.WriteJSON(key, rec); err != nil {
			return stats, err
		}
		stats.Produced++
		stats.Deduplicated += len(tasks) - len(kept)
		log.Info("persona tasks", zap.String("persona", p.ID), zap.Int("before", len(tasks)), zap.Int("after", len(kept)))
	}
	return stats, nil
}

func outstandingExtractions(pc *pipeline.Context, have map[string]models.UseCaseExtraction) (int, error) {
	ucs, err := usecase.LoadAll(pc)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, uc := range ucs {
		if _, done := have[uc.ID]; done {
			continue
		}
		if _, ok := registered(pc, uc); ok {
			n++
		}
	}
	return n, nil
}
