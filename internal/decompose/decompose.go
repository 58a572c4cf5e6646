// Package decompose breaks non-functional user stories into atomic NFRs.
package decompose

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ShayCichocki/reqflow/internal/pipeline"
	"github.com/ShayCichocki/reqflow/internal/prompt"
	"github.com/ShayCichocki/reqflow/internal/reply"
	"github.com/ShayCichocki/reqflow/internal/store"
	"github.com/ShayCichocki/reqflow/internal/story"
	"github.com/ShayCichocki/reqflow/pkg/models"
)

// Decompositions maps story id to its NFR list.
type Decompositions map[string]models.NFDecomposition

// Load reads the decomposition file; a missing file is an empty map.
func Load(pc *pipeline.Context) (Decompositions, error) {
	d := Decompositions{}
	if _, err := pc.ReadItem(store.DecompositionKey, &d); err != nil {
		return nil, err
	}
	if d == nil {
		d = Decompositions{}
	}
	return d, nil
}

// For returns the NFRs of a story, falling back to its summary.
func (d Decompositions) For(st models.UserStory) []string {
	if e, ok := d[st.ID]; ok && len(e.Decomposition) > 0 {
		return e.Decomposition
	}
	return []string{st.Summary}
}

// Current reports whether the entry for st was derived from its present summary.
func (d Decompositions) Current(st models.UserStory) bool {
	e, ok := d[st.ID]
	return ok && e.Summary == st.Summary && len(e.Decomposition) > 0
}

type decomposition struct {
	Decomposition []string `json:"decomposition"`
}

// ParseResponse extracts the NFR list from a reply. Any reply that does not
// satisfy the contract yields the single-element fallback.
func ParseResponse(text, fallback string) ([]string, bool) {
	r := reply.Decode[decomposition](text, prompt.DecompositionSchema)
	if r.OK() {
		var out []string
		for _, item := range r.Value.Decomposition {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		if len(out) > 0 {
			return out, true
		}
	}
	return []string{fallback}, false
}

// Decomposer is the phase that keeps every non-functional story's
// decomposition in step with its summary.
type Decomposer struct{}

// Name implements pipeline.Phase.
func (Decomposer) Name() string { return "nf-decomposition" }

// Run implements pipeline.Phase. Stories whose summary changed since their
// decomposition was written are decomposed again.
func (d Decomposer) Run(ctx context.Context, pc *pipeline.Context) (pipeline.Stats, error) {
	stats := pipeline.Stats{Phase: d.Name()}
	if err := pc.RequirePersonas(); err != nil {
		return stats, err
	}
	set, err := story.Load(pc)
	if err != nil {
		return stats, err
	}
	if len(set) == 0 {
		return stats, pipeline.Missing("no user stories")
	}
	decs, err := Load(pc)
	if err != nil {
		return stats, err
	}
	log := pc.Logger().With(zap.String("phase", d.Name()))

	err = set.Each(pc, func(_ *models.PersonaStories, st *models.UserStory) error {
		if st.Type != models.StoryNonFunctional {
			return nil
		}
		if decs.Current(*st) {
			stats.Skipped++
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Attempted++
		text, err := pc.Ask(ctx, pc.Prompts.Decompose(*st))
		if err != nil {
			return pc.ItemError(&stats, err, zap.String("story", st.ID))
		}
		items, ok := ParseResponse(text, st.Summary)
		if !ok {
			log.Warn("decomposition unusable, falling back to the summary", zap.String("story", st.ID))
		}
		decs[st.ID] = models.NFDecomposition{Summary: st.Summary, Decomposition: items}
		stats.Produced++
		return pc.Store.WriteJSON(store.DecompositionKey, decs)
	})
	return stats, err
}
