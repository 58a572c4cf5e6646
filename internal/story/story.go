// Package story turns deduplicated tasks into user stories and types them.
package story

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ShayCichocki/reqflow/internal/pipeline"
	"github.com/ShayCichocki/reqflow/internal/prompt"
	"github.com/ShayCichocki/reqflow/internal/reply"
	"github.com/ShayCichocki/reqflow/internal/store"
	"github.com/ShayCichocki/reqflow/internal/task"
	"github.com/ShayCichocki/reqflow/internal/usecase"
	"github.com/ShayCichocki/reqflow/pkg/models"
)

// Set is the story files of the registered personas, keyed by persona.
type Set map[string]*models.PersonaStories

// Load reads the story file of every registered persona that has one.
func Load(pc *pipeline.Context) (Set, error) {
	set := Set{}
	for _, p := range pc.Personas {
		ps := &models.PersonaStories{}
		ok, err := pc.ReadItem(store.PersonaStoriesKey(p.ID), ps)
		if err != nil {
			return nil, err
		}
		if ok {
			set[p.ID] = ps
		}
	}
	return set, nil
}

// Save writes one persona's story file.
func Save(pc *pipeline.Context, ps *models.PersonaStories) error {
	return pc.Store.WriteJSON(store.PersonaStoriesKey(ps.PersonaID), ps)
}

// Each visits every story in persona then story order.
func (s Set) Each(pc *pipeline.Context, fn func(ps *models.PersonaStories, st *models.UserStory) error) error {
	for _, p := range pc.Personas {
		ps, ok := s[p.ID]
		if !ok {
			continue
		}
		for i := range ps.Stories {
			if err := fn(ps, &ps.Stories[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

// Find locates a story by id across personas.
func (s Set) Find(id string) (*models.PersonaStories, *models.UserStory, bool) {
	for _, ps := range s {
		if st, ok := ps.Find(id); ok {
			return ps, st, true
		}
	}
	return nil, nil, false
}

type generated struct {
	Title    string `json:"title"`
	Summary  string `json:"summary"`
	Priority int    `json:"priority"`
	Pillar   string `json:"pillar"`
}

// Synthesizer writes a user story for every deduplicated task.
type Synthesizer struct{}

// Name implements pipeline.Phase.
func (Synthesizer) Name() string { return "user-stories" }

// Run implements pipeline.Phase. Stories missing any of title, summary,
// priority, or pillar are (re)generated; the rest are skipped.
func (sy Synthesizer) Run(ctx context.Context, pc *pipeline.Context) (pipeline.Stats, error) {
	stats := pipeline.Stats{Phase: sy.Name()}
	if err := pc.RequirePersonas(); err != nil {
		return stats, err
	}
	tasks, err := task.LoadPersonaTasks(pc)
	if err != nil {
		return stats, err
	}
	if len(tasks) == 0 {
		return stats, pipeline.Missing("no deduplicated tasks")
	}
	ucs, err := usecase.LoadAll(pc)
	if err != nil {
		return stats, err
	}
	byID := map[string]models.UseCase{}
	for _, uc := range ucs {
		byID[uc.ID] = uc
	}
	set, err := Load(pc)
	if err != nil {
		return stats, err
	}
	log := pc.Logger().With(zap.String("phase", sy.Name()))
	pillars := pc.Docs.PillarNames()

	for _, p := range pc.Personas {
		pt, ok := tasks[p.ID]
		if !ok {
			continue
		}
		group, _ := pc.Docs.Group(p.UserGroup)
		ps, ok := set[p.ID]
		if !ok {
			ps = &models.PersonaStories{PersonaID: p.ID, UserGroup: p.UserGroup}
		}

		for _, t := range pt.Tasks {
			id := models.StoryIDForTask(t.ID)
			if id == "" || ps.IsDiscarded(id) {
				continue
			}
			st, exists := ps.Find(id)
			if exists && st.Complete() {
				stats.Skipped++
				continue
			}
			uc, ok := byID[t.UseCaseID]
			if !ok {
				log.Warn("task references a missing use case", zap.String("task", t.ID), zap.String("use_case", t.UseCaseID))
				stats.Skipped++
				continue
			}
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			if !exists {
				ps.Stories = append(ps.Stories, models.UserStory{
					ID: id, PersonaID: p.ID, UserGroup: p.UserGroup, UseCaseID: t.UseCaseID, TaskID: t.ID,
				})
				st = &ps.Stories[len(ps.Stories)-1]
			}

			stats.Attempted++
			text, err := pc.Ask(ctx, pc.Prompts.UserStory(p, group, uc, t))
			if err == nil {
				r := reply.Decode[generated](text, prompt.UserStorySchema)
				pillar, known := reply.Choice(r.Value.Pillar, pillars)
				switch {
				case !r.OK():
					err = &pipeline.ParseError{What: id, Reason: r.Reason}
				case !known:
					err = &pipeline.ParseError{What: id, Reason: "unknown pillar " + r.Value.Pillar}
				default:
					st.Title = strings.TrimSpace(r.Value.Title)
					st.Summary = strings.TrimSpace(r.Value.Summary)
					st.Priority = r.Value.Priority
					st.Pillar = pillar
				}
			}
			if err != nil {
				if err := pc.ItemError(&stats, err, zap.String("story", id)); err != nil {
					return stats, err
				}
			} else {
				stats.Produced++
			}
			// Skeletons are persisted too so the next run finds them.
			if err := Save(pc, ps); err != nil {
				return stats, err
			}
		}
		set[p.ID] = ps
	}
	return stats, nil
}

// Typer labels each complete story Functional or Non-Functional.
type Typer struct{}

// Name implements pipeline.Phase.
func (Typer) Name() string { return "story-typing" }

// Run implements pipeline.Phase. A reply naming neither type records
// Unknown, which is final.
func (ty Typer) Run(ctx context.Context, pc *pipeline.Context) (pipeline.Stats, error) {
	stats := pipeline.Stats{Phase: ty.Name()}
	if err := pc.RequirePersonas(); err != nil {
		return stats, err
	}
	set, err := Load(pc)
	if err != nil {
		return stats, err
	}
	if len(set) == 0 {
		return stats, pipeline.Missing("no user stories")
	}
	log := pc.Logger().With(zap.String("phase", ty.Name()))

	err = set.Each(pc, func(ps *models.PersonaStories, st *models.UserStory) error {
		if st.Type != "" || !st.Complete() {
			stats.Skipped++
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Attempted++
		text, err := pc.Ask(ctx, pc.Prompts.StoryType(*st))
		if err != nil {
			return pc.ItemError(&stats, err, zap.String("story", st.ID))
		}
		typ, ok := models.ParseStoryType(reply.Clean(text))
		if !ok {
			log.Warn("story type not recognized", zap.String("story", st.ID), zap.String("reply", text))
			typ = models.StoryUnknown
		}
		st.Type = typ
		stats.Produced++
		return Save(pc, ps)
	})
	return stats, err
}
