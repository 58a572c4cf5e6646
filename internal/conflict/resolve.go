package conflict

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ShayCichocki/reqflow/internal/decompose"
	"github.com/ShayCichocki/reqflow/internal/pipeline"
	"github.com/ShayCichocki/reqflow/internal/prompt"
	"github.com/ShayCichocki/reqflow/internal/reply"
	"github.com/ShayCichocki/reqflow/internal/store"
	"github.com/ShayCichocki/reqflow/internal/story"
	"github.com/ShayCichocki/reqflow/pkg/models"
)

type resolution struct {
	GeneralResolutionType string   `json:"generalResolutionType"`
	ResolutionDescription string   `json:"resolutionDescription"`
	NewUserStoryASummary  string   `json:"newUserStoryASummary"`
	NewUserStoryBSummary  string   `json:"newUserStoryBSummary"`
	NewDecompositionA     []string `json:"newDecompositionA"`
	NewDecompositionB     []string `json:"newDecompositionB"`
}

// Resolver resolves each verified conflict of a family once and propagates
// the rewritten or discarded stories to the persona files.
type Resolver struct {
	Family models.Family
}

// Name implements pipeline.Phase.
func (r *Resolver) Name() string {
	return "resolve-" + strings.ToLower(r.Family.Prefix)
}

// Run implements pipeline.Phase. A conflict with the generalResolutionType
// key present has been attempted and is never asked again.
func (r *Resolver) Run(ctx context.Context, pc *pipeline.Context) (pipeline.Stats, error) {
	stats := pipeline.Stats{Phase: r.Name()}
	if err := pc.RequirePersonas(); err != nil {
		return stats, err
	}
	files, err := Files(pc, r.Family, false)
	if err != nil {
		return stats, err
	}
	set, err := story.Load(pc)
	if err != nil {
		return stats, err
	}
	nf := r.Family.Kind == models.StoryNonFunctional
	var decs decompose.Decompositions
	if nf {
		if decs, err = decompose.Load(pc); err != nil {
			return stats, err
		}
	}
	log := pc.Logger().With(zap.String("phase", r.Name()))

	for _, file := range files {
		for i := range file.Conflicts {
			c := &file.Conflicts[i]
			if c.ResolutionAttempted() {
				stats.Skipped++
				continue
			}
			if !c.Verified {
				stats.Skipped++
				continue
			}
			if err := ctx.Err(); err != nil {
				return stats, err
			}

			psA, stA, okA := set.Find(c.UserStoryAID)
			psB, stB, okB := set.Find(c.UserStoryBID)
			if !okA || !okB {
				log.Info("conflict refers to a story that no longer exists", zap.String("conflict", c.ID))
				markNone(c)
				stats.Skipped++
				if err := SaveFile(pc, r.Family, file, false); err != nil {
					return stats, err
				}
				continue
			}

			stats.Attempted++
			req := prompt.Resolution{Conflict: *c, Kind: r.Family.Kind, SummaryA: stA.Summary, SummaryB: stB.Summary}
			if nf {
				req.DecompositionA = decs.For(*stA)
				req.DecompositionB = decs.For(*stB)
			}
			text, err := pc.Ask(ctx, pc.Prompts.Resolve(req))
			var res *resolution
			if err == nil && !reply.IsNone(text) {
				res, err = parseResolution(text, c.ID)
			}
			if err != nil {
				if err := pc.ItemError(&stats, err, zap.String("conflict", c.ID)); err != nil {
					return stats, err
				}
				continue
			}

			if res == nil {
				markNone(c)
			} else {
				apply(c, res, nf)
				if err := propagate(pc, c, psA, stA, psB, stB, decs, nf); err != nil {
					return stats, err
				}
			}
			if err := SaveFile(pc, r.Family, file, false); err != nil {
				return stats, err
			}
			stats.Produced++
			log.Info("conflict resolved", zap.String("conflict", c.ID), zap.String("resolution", *c.GeneralResolutionType))
		}
	}
	return stats, nil
}

func parseResolution(text, conflictID string) (*resolution, error) {
	r := reply.Decode[resolution](text, prompt.ResolutionSchema)
	if !r.OK() {
		return nil, &pipeline.ParseError{What: conflictID, Reason: r.Reason}
	}
	typ, ok := models.ParseResolutionType(r.Value.GeneralResolutionType)
	if !ok {
		return nil, &pipeline.ParseError{What: conflictID, Reason: "unknown resolution type " + r.Value.GeneralResolutionType}
	}
	res := r.Value
	res.GeneralResolutionType = string(typ)
	res.NewUserStoryASummary = strings.TrimSpace(res.NewUserStoryASummary)
	res.NewUserStoryBSummary = strings.TrimSpace(res.NewUserStoryBSummary)
	return &res, nil
}

// markNone records that the resolver found nothing left to resolve.
func markNone(c *models.Conflict) {
	none := ""
	c.GeneralResolutionType = &none
	c.ResolutionDescription = ""
	c.NewUserStoryASummary = ""
	c.NewUserStoryBSummary = ""
	c.NewDecompositionA = nil
	c.NewDecompositionB = nil
}

func apply(c *models.Conflict, res *resolution, nf bool) {
	typ := res.GeneralResolutionType
	c.GeneralResolutionType = &typ
	c.ResolutionDescription = strings.TrimSpace(res.ResolutionDescription)
	c.NewUserStoryASummary = res.NewUserStoryASummary
	c.NewUserStoryBSummary = res.NewUserStoryBSummary
	if nf {
		c.NewDecompositionA = clean(res.NewDecompositionA)
		c.NewDecompositionB = clean(res.NewDecompositionB)
	}
}

// propagate rewrites or discards both stories, then updates NF decompositions.
// Story files are written before the conflict record so an interrupted run
// never marks a conflict resolved without its effect.
func propagate(pc *pipeline.Context, c *models.Conflict, psA *models.PersonaStories, stA *models.UserStory, psB *models.PersonaStories, stB *models.UserStory, decs decompose.Decompositions, nf bool) error {
	idA, idB := stA.ID, stB.ID
	decsChanged := false
	sides := []struct {
		ps      *models.PersonaStories
		st      *models.UserStory
		id      string
		summary string
		nfrs    []string
	}{
		{psA, stA, idA, c.NewUserStoryASummary, c.NewDecompositionA},
		{psB, stB, idB, c.NewUserStoryBSummary, c.NewDecompositionB},
	}
	for _, s := range sides {
		if s.summary == "" {
			s.ps.Discard(s.id)
		} else {
			// Find again: a discard on the same persona file may have shifted the slice.
			if st, ok := s.ps.Find(s.id); ok {
				st.Summary = s.summary
			}
			if nf && len(s.nfrs) > 0 {
				decs[s.id] = models.NFDecomposition{Summary: s.summary, Decomposition: s.nfrs}
				decsChanged = true
			}
		}
		if err := story.Save(pc, s.ps); err != nil {
			return err
		}
	}
	if decsChanged {
		return pc.Store.WriteJSON(store.DecompositionKey, decs)
	}
	return nil
}

func clean(items []string) []string {
	var out []string
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}
