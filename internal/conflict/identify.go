package conflict

import (
	"context"
	"errors"
	"sort"
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

// finding is the identifier's answer for one pair.
type finding struct {
	ConflictType        string      `json:"conflictType,omitempty"`
	ConflictDescription string      `json:"conflictDescription,omitempty"`
	ConflictingNFRPairs [][2]string `json:"conflictingNfrPairs,omitempty"`
}

// checkpoint records the pairs of one group file already checked. A nil
// finding means no conflict.
type checkpoint struct {
	GroupKey string              `json:"groupKey"`
	Pairs    map[string]*finding `json:"pairs"`
}

// Identifier checks every candidate pair of one conflict family.
type Identifier struct {
	Family models.Family
}

// Name implements pipeline.Phase.
func (id *Identifier) Name() string {
	return "identify-" + strings.ToLower(id.Family.Prefix)
}

// group is one output file and the pairs that feed it.
type group struct {
	key        string
	userGroups []string
	candidates []Candidate
}

// Run implements pipeline.Phase. A group file is written only once all of
// its pairs are checked; conflict ids are allocated at that point so pairs
// without a conflict never consume one.
func (id *Identifier) Run(ctx context.Context, pc *pipeline.Context) (pipeline.Stats, error) {
	stats := pipeline.Stats{Phase: id.Name()}
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
	log := pc.Logger().With(zap.String("phase", id.Name()))

	kind := id.Family.Kind
	var decs decompose.Decompositions
	if kind == models.StoryNonFunctional {
		if decs, err = decompose.Load(pc); err != nil {
			return stats, err
		}
	}
	if n := outstanding(pc, set, kind, decs); n > 0 {
		log.Info("waiting for clustering or decomposition", zap.Int("outstanding", n))
		stats.Message = "stories not ready"
		return stats, nil
	}

	ix := BuildIndex(pc, set, kind, pc.IncludeUnclustered)
	var groups []group
	if id.Family.Scope == models.ScopeAcross {
		for pair, cands := range ix.Across() {
			groups = append(groups, group{key: store.CrossGroupKey(pair[0], pair[1]), userGroups: []string{pair[0], pair[1]}, candidates: cands})
		}
	} else {
		for g, cands := range ix.Within() {
			groups = append(groups, group{key: g, userGroups: []string{g}, candidates: cands})
		}
	}
	sortGroups(groups)

	next, err := NextID(pc, id.Family)
	if err != nil {
		return stats, err
	}

	for _, g := range groups {
		done, err := pc.Store.Has(store.ConflictKey(id.Family, g.key, false))
		if err != nil {
			return stats, err
		}
		if done {
			stats.Skipped += len(g.candidates)
			continue
		}
		complete, err := id.checkGroup(ctx, pc, g, decs, &stats, log)
		if err != nil {
			return stats, err
		}
		if !complete {
			log.Info("group has unchecked pairs", zap.String("group", g.key))
			continue
		}
		cp, err := loadCheckpoint(pc, id.Family, g.key)
		if err != nil {
			return stats, err
		}
		file := &models.ConflictFile{GroupKey: g.key, Conflicts: []models.Conflict{}}
		for _, cand := range g.candidates {
			f := cp.Pairs[cand.Key()]
			if f == nil {
				continue
			}
			file.Conflicts = append(file.Conflicts, models.Conflict{
				ID:                  models.FormatID(id.Family.Prefix, next),
				UserStoryAID:        cand.A.ID,
				UserStoryBID:        cand.B.ID,
				PersonaAID:          cand.A.PersonaID,
				PersonaBID:          cand.B.PersonaID,
				UserGroups:          g.userGroups,
				Cluster:             cand.Cluster,
				UserStoryASummary:   cand.A.Summary,
				UserStoryBSummary:   cand.B.Summary,
				ConflictType:        models.ConflictType(f.ConflictType),
				ConflictDescription: f.ConflictDescription,
				ConflictingNFRPairs: f.ConflictingNFRPairs,
			})
			next++
		}
		if err := SaveFile(pc, id.Family, file, false); err != nil {
			return stats, err
		}
		log.Info("conflicts identified", zap.String("group", g.key), zap.Int("pairs", len(g.candidates)), zap.Int("conflicts", len(file.Conflicts)))
	}
	return stats, nil
}

// checkGroup asks about every pair not yet in the group's checkpoint and
// reports whether all pairs are now checked.
func (id *Identifier) checkGroup(ctx context.Context, pc *pipeline.Context, g group, decs decompose.Decompositions, stats *pipeline.Stats, log *zap.Logger) (bool, error) {
	cp, err := loadCheckpoint(pc, id.Family, g.key)
	if err != nil {
		return false, err
	}
	complete := true
	for _, cand := range g.candidates {
		if _, seen := cp.Pairs[cand.Key()]; seen {
			stats.Skipped++
			continue
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}
		stats.Attempted++
		pair := prompt.StoryPair{A: cand.A, B: cand.B}
		if decs != nil {
			pair.DecompositionA = decs.For(cand.A)
			pair.DecompositionB = decs.For(cand.B)
		}
		text, err := pc.Ask(ctx, pc.Prompts.Identify(id.Family.Kind, pair))
		var f *finding
		if err == nil {
			f, err = id.parse(text, cand)
		}
		if err != nil {
			if err := pc.ItemError(stats, err, zap.String("story_a", cand.A.ID), zap.String("story_b", cand.B.ID)); err != nil {
				return false, err
			}
			complete = false
			continue
		}
		if f != nil {
			stats.Produced++
		} else if text != "" && strings.TrimSpace(text) != "{}" {
			log.Debug("reply carried no usable conflict", zap.String("story_a", cand.A.ID), zap.String("story_b", cand.B.ID))
		}
		cp.Pairs[cand.Key()] = f
		if err := pc.Store.WriteJSON(store.PairCheckpointKey(id.Family, g.key), cp); err != nil {
			return false, err
		}
	}
	return complete, nil
}

// parse turns a reply into a finding; nil means no conflict. A conflict type
// outside the taxonomy, or an NF conflict without NFR pairs, counts as none.
func (id *Identifier) parse(text string, cand Candidate) (*finding, error) {
	schema := prompt.FunctionalConflictSchema
	if id.Family.Kind == models.StoryNonFunctional {
		schema = prompt.NonFunctionalConflictSchema
	}
	r := reply.Decode[finding](text, schema)
	if !r.OK() {
		return nil, &pipeline.ParseError{What: cand.A.ID + "/" + cand.B.ID, Reason: r.Reason}
	}
	f := r.Value
	if f.ConflictType == "" {
		return nil, nil
	}
	typ, ok := models.ParseConflictType(f.ConflictType, id.Family.Kind)
	if !ok {
		return nil, nil
	}
	f.ConflictType = string(typ)
	f.ConflictDescription = strings.TrimSpace(f.ConflictDescription)
	if id.Family.Kind == models.StoryNonFunctional {
		if len(f.ConflictingNFRPairs) == 0 {
			return nil, nil
		}
	} else {
		f.ConflictingNFRPairs = nil
	}
	return &f, nil
}

func loadCheckpoint(pc *pipeline.Context, f models.Family, groupKey string) (*checkpoint, error) {
	cp := &checkpoint{GroupKey: groupKey}
	err := pc.Store.ReadJSON(store.PairCheckpointKey(f, groupKey), cp)
	var corrupt *store.CorruptError
	switch {
	case err == nil, errors.Is(err, store.ErrNotFound):
	case errors.As(err, &corrupt):
		pc.Logger().Warn("pair checkpoint unreadable, starting over", zap.String("group", groupKey), zap.Error(err))
		cp = &checkpoint{GroupKey: groupKey}
	default:
		return nil, err
	}
	if cp.Pairs == nil {
		cp.Pairs = map[string]*finding{}
	}
	return cp, nil
}

// outstanding counts stories of kind not yet ready for identification.
// An unclustered non-functional story whose pillar has no clusters can never
// be clustered and is left out.
func outstanding(pc *pipeline.Context, set story.Set, kind models.StoryType, decs decompose.Decompositions) int {
	n := 0
	_ = set.Each(pc, func(_ *models.PersonaStories, st *models.UserStory) error {
		if st.Type != kind {
			return nil
		}
		switch {
		case st.Cluster == nil:
			if kind != models.StoryNonFunctional || clusterable(pc, st.Pillar) {
				n++
			}
		case decs != nil && !decs.Current(*st):
			n++
		}
		return nil
	})
	return n
}

func clusterable(pc *pipeline.Context, pillar string) bool {
	p, ok := pc.Docs.Pillar(pillar)
	return ok && len(p.Clusters) > 0
}

func sortGroups(gs []group) {
	sort.Slice(gs, func(i, j int) bool { return gs[i].key < gs[j].key })
}
