// Package cluster assigns every typed user story to a cluster. Non-functional
// clusters come from the documentation per pillar; functional clusters are
// derived from the non-functional stories and then merged to a target count.
package cluster

import (
	"context"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/ShayCichocki/reqflow/internal/pipeline"
	"github.com/ShayCichocki/reqflow/internal/prompt"
	"github.com/ShayCichocki/reqflow/internal/reply"
	"github.com/ShayCichocki/reqflow/internal/store"
	"github.com/ShayCichocki/reqflow/internal/story"
	"github.com/ShayCichocki/reqflow/pkg/models"
)

// TargetCount is the functional cluster target: max(1, round(fus/nfus × k)).
// It is zero when there are no non-functional stories to derive from.
func TargetCount(fus, nfus, k int) int {
	if nfus == 0 {
		return 0
	}
	n := int(math.Round(float64(fus) / float64(nfus) * float64(k)))
	if n < 1 {
		return 1
	}
	return n
}

// NonFunctional assigns each non-functional story one of its pillar's clusters.
type NonFunctional struct{}

// Name implements pipeline.Phase.
func (NonFunctional) Name() string { return "nf-clustering" }

// Run implements pipeline.Phase.
func (n NonFunctional) Run(ctx context.Context, pc *pipeline.Context) (pipeline.Stats, error) {
	stats := pipeline.Stats{Phase: n.Name()}
	set, err := loadStories(pc)
	if err != nil {
		return stats, err
	}
	log := pc.Logger().With(zap.String("phase", n.Name()))

	err = set.Each(pc, func(ps *models.PersonaStories, st *models.UserStory) error {
		if st.Type != models.StoryNonFunctional {
			return nil
		}
		if st.Cluster != nil && pc.Docs.IsNFCluster(st.Pillar, *st.Cluster) {
			stats.Skipped++
			return nil
		}
		pillar, ok := pc.Docs.Pillar(st.Pillar)
		if !ok || len(pillar.Clusters) == 0 {
			log.Warn("pillar has no cluster definitions", zap.String("story", st.ID), zap.String("pillar", st.Pillar))
			stats.Skipped++
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		stats.Attempted++
		names := make([]string, len(pillar.Clusters))
		for i, c := range pillar.Clusters {
			names[i] = c.Name
		}
		text, err := pc.Ask(ctx, pc.Prompts.NFCluster(*st, pillar.Clusters))
		if err == nil {
			name, ok := reply.Choice(text, names)
			if !ok {
				err = &pipeline.ParseError{What: st.ID, Reason: "cluster not among " + strings.Join(names, ", ")}
			} else {
				st.SetCluster(name)
			}
		}
		if err != nil {
			return pc.ItemError(&stats, err, zap.String("story", st.ID))
		}
		stats.Produced++
		return story.Save(pc, ps)
	})
	return stats, err
}

type mergedCluster struct {
	ClusterName string `json:"cluster_name"`
}

// FunctionalSet derives the functional cluster names. It runs once every
// complete story is typed and keeps its progress between the two steps.
type FunctionalSet struct{}

// Name implements pipeline.Phase.
func (FunctionalSet) Name() string { return "functional-cluster-set" }

// Run implements pipeline.Phase.
func (f FunctionalSet) Run(ctx context.Context, pc *pipeline.Context) (pipeline.Stats, error) {
	stats := pipeline.Stats{Phase: f.Name()}
	set, err := loadStories(pc)
	if err != nil {
		return stats, err
	}
	log := pc.Logger().With(zap.String("phase", f.Name()))

	var nfus []models.UserStory
	fus, untyped := 0, 0
	_ = set.Each(pc, func(_ *models.PersonaStories, st *models.UserStory) error {
		switch {
		case st.Type == models.StoryNonFunctional:
			nfus = append(nfus, *st)
		case st.Type == models.StoryFunctional:
			fus++
		case st.Type == "":
			untyped++
		}
		return nil
	})
	if untyped > 0 {
		log.Info("waiting for story typing", zap.Int("outstanding", untyped))
		stats.Message = "story typing incomplete"
		return stats, nil
	}

	var cs models.FunctionalClusterSet
	if _, err := pc.ReadItem(store.FunctionalClusterSetKey, &cs); err != nil {
		return stats, err
	}
	if Complete(cs, pc) {
		stats.Skipped++
		return stats, nil
	}

	k := len(pc.Docs.NFClusters())
	cs.TargetCount = TargetCount(fus, len(nfus), k)
	if len(nfus) == 0 {
		log.Info("no non-functional stories, functional stories stay unclustered")
		stats.Attempted++
		stats.Produced++
		cs = models.FunctionalClusterSet{}
		return stats, pc.Store.WriteJSON(store.FunctionalClusterSetKey, cs)
	}

	if len(cs.Initial) == 0 {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Attempted++
		initial, err := derive(ctx, pc, nfus)
		if err != nil {
			return stats, pc.ItemError(&stats, err, zap.String("step", "derive"))
		}
		cs.Initial = initial
		if err := pc.Store.WriteJSON(store.FunctionalClusterSetKey, cs); err != nil {
			return stats, err
		}
		stats.Produced++
	}

	if err := ctx.Err(); err != nil {
		return stats, err
	}
	stats.Attempted++
	names, err := merge(ctx, pc, cs.Initial, cs.TargetCount)
	if err != nil {
		return stats, pc.ItemError(&stats, err, zap.String("step", "merge"))
	}
	cs.Clusters = names
	if err := pc.Store.WriteJSON(store.FunctionalClusterSetKey, cs); err != nil {
		return stats, err
	}
	stats.Produced++
	log.Info("functional clusters", zap.Int("initial", len(cs.Initial)), zap.Int("target", cs.TargetCount), zap.Int("final", len(names)))
	return stats, nil
}

// Complete reports whether the functional cluster set is final.
func Complete(cs models.FunctionalClusterSet, pc *pipeline.Context) bool {
	if len(cs.Clusters) > 0 {
		return true
	}
	ok, _ := pc.Store.Has(store.FunctionalClusterSetKey)
	return ok && len(cs.Initial) == 0 && cs.TargetCount == 0
}

func derive(ctx context.Context, pc *pipeline.Context, nfus []models.UserStory) ([]models.DerivedCluster, error) {
	text, err := pc.Ask(ctx, pc.Prompts.DeriveClusters(nfus))
	if err != nil {
		return nil, err
	}
	r := reply.Decode[[]models.DerivedCluster](text, prompt.DerivedClustersSchema)
	if !r.OK() {
		return nil, &pipeline.ParseError{What: "derived clusters", Reason: r.Reason}
	}
	known := map[string]bool{}
	for _, s := range nfus {
		known[s.ID] = true
	}
	var out []models.DerivedCluster
	for _, d := range r.Value {
		d.ClusterName = strings.TrimSpace(d.ClusterName)
		if known[strings.TrimSpace(d.NFUSID)] && d.ClusterName != "" {
			d.NFUSID = strings.TrimSpace(d.NFUSID)
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		return nil, &pipeline.ParseError{What: "derived clusters", Reason: "no cluster refers to a known story"}
	}
	return out, nil
}

func merge(ctx context.Context, pc *pipeline.Context, initial []models.DerivedCluster, target int) ([]string, error) {
	var names []string
	seen := map[string]bool{}
	for _, d := range initial {
		if !seen[d.ClusterName] {
			seen[d.ClusterName] = true
			names = append(names, d.ClusterName)
		}
	}
	text, err := pc.Ask(ctx, pc.Prompts.MergeClusters(names, target))
	if err != nil {
		return nil, err
	}
	r := reply.Decode[[]mergedCluster](text, prompt.MergedClustersSchema)
	if !r.OK() {
		return nil, &pipeline.ParseError{What: "merged clusters", Reason: r.Reason}
	}
	var out []string
	seen = map[string]bool{}
	for _, m := range r.Value {
		name := strings.TrimSpace(m.ClusterName)
		if name == "" || name == models.Unclustered || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	if len(out) == 0 {
		return nil, &pipeline.ParseError{What: "merged clusters", Reason: "no usable cluster name"}
	}
	return out, nil
}

// Functional assigns each functional story one functional cluster or
// "(Unclustered)".
type Functional struct{}

// Name implements pipeline.Phase.
func (Functional) Name() string { return "functional-clustering" }

// Run implements pipeline.Phase.
func (f Functional) Run(ctx context.Context, pc *pipeline.Context) (pipeline.Stats, error) {
	stats := pipeline.Stats{Phase: f.Name()}
	set, err := loadStories(pc)
	if err != nil {
		return stats, err
	}
	var cs models.FunctionalClusterSet
	if _, err := pc.ReadItem(store.FunctionalClusterSetKey, &cs); err != nil {
		return stats, err
	}
	if !Complete(cs, pc) {
		return stats, pipeline.Missing("functional cluster set is not final")
	}
	options := append(append([]string(nil), cs.Clusters...), models.Unclustered)

	err = set.Each(pc, func(ps *models.PersonaStories, st *models.UserStory) error {
		if st.Type != models.StoryFunctional {
			return nil
		}
		if st.Cluster != nil && (cs.Contains(*st.Cluster) || *st.Cluster == models.Unclustered) {
			stats.Skipped++
			return nil
		}
		stats.Attempted++
		if len(cs.Clusters) == 0 {
			st.SetCluster(models.Unclustered)
			stats.Produced++
			return story.Save(pc, ps)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		text, err := pc.Ask(ctx, pc.Prompts.FunctionalCluster(*st, cs.Clusters))
		if err == nil {
			name, ok := reply.Choice(text, options)
			if !ok {
				err = &pipeline.ParseError{What: st.ID, Reason: "unknown functional cluster"}
			} else {
				st.SetCluster(name)
			}
		}
		if err != nil {
			return pc.ItemError(&stats, err, zap.String("story", st.ID))
		}
		stats.Produced++
		return story.Save(pc, ps)
	})
	return stats, err
}

func loadStories(pc *pipeline.Context) (story.Set, error) {
	if err := pc.RequirePersonas(); err != nil {
		return nil, err
	}
	set, err := story.Load(pc)
	if err != nil {
		return nil, err
	}
	if len(set) == 0 {
		return nil, pipeline.Missing("no user stories")
	}
	return set, nil
}
