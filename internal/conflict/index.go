// Package conflict identifies, verifies, and resolves conflicts between user
// stories of different personas, within one user group and across two.
package conflict

import (
	"sort"

	"github.com/ShayCichocki/reqflow/internal/pipeline"
	"github.com/ShayCichocki/reqflow/internal/story"
	"github.com/ShayCichocki/reqflow/pkg/models"
)

// Index groups the clustered stories of one type by cluster, user group, and
// persona. It is built once per phase.
type Index struct {
	entries map[string]map[string]map[string][]models.UserStory
}

// BuildIndex indexes the stories of kind. "(Unclustered)" stories are left
// out unless includeUnclustered is set.
func BuildIndex(pc *pipeline.Context, set story.Set, kind models.StoryType, includeUnclustered bool) *Index {
	ix := &Index{entries: map[string]map[string]map[string][]models.UserStory{}}
	_ = set.Each(pc, func(_ *models.PersonaStories, st *models.UserStory) error {
		if st.Type != kind || st.Cluster == nil {
			return nil
		}
		c := *st.Cluster
		if c == models.Unclustered && !includeUnclustered {
			return nil
		}
		groups, ok := ix.entries[c]
		if !ok {
			groups = map[string]map[string][]models.UserStory{}
			ix.entries[c] = groups
		}
		personas, ok := groups[st.UserGroup]
		if !ok {
			personas = map[string][]models.UserStory{}
			groups[st.UserGroup] = personas
		}
		personas[st.PersonaID] = append(personas[st.PersonaID], *st)
		return nil
	})
	return ix
}

// Clusters lists the indexed clusters in lexicographic order.
func (ix *Index) Clusters() []string {
	return sortedKeys(ix.entries)
}

// Groups lists the user groups present in a cluster.
func (ix *Index) Groups(cluster string) []string {
	return sortedKeys(ix.entries[cluster])
}

// Personas lists the personas of a group present in a cluster.
func (ix *Index) Personas(cluster, group string) []string {
	return sortedKeys(ix.entries[cluster][group])
}

// Stories returns one persona's stories in a cluster, in story order.
func (ix *Index) Stories(cluster, group, persona string) []models.UserStory {
	return ix.entries[cluster][group][persona]
}

// Candidate is one story pair to check.
type Candidate struct {
	Cluster string
	A, B    models.UserStory
}

// Key identifies the pair within its group file.
func (c Candidate) Key() string {
	return c.Cluster + "|" + c.A.ID + "|" + c.B.ID
}

// Within enumerates, per user group, every story pair of two different
// personas of that group sharing a cluster.
func (ix *Index) Within() map[string][]Candidate {
	out := map[string][]Candidate{}
	for _, c := range ix.Clusters() {
		for _, g := range ix.Groups(c) {
			personas := ix.Personas(c, g)
			for i := 0; i < len(personas); i++ {
				for j := i + 1; j < len(personas); j++ {
					out[g] = append(out[g], product(c, ix.Stories(c, g, personas[i]), ix.Stories(c, g, personas[j]))...)
				}
			}
		}
	}
	return out
}

// Across enumerates, per pair of user groups, every story pair of personas in
// the two groups sharing a cluster. Keys come from store.CrossGroupKey order:
// the lexicographically smaller group is side A.
func (ix *Index) Across() map[[2]string][]Candidate {
	out := map[[2]string][]Candidate{}
	for _, c := range ix.Clusters() {
		groups := ix.Groups(c)
		for i := 0; i < len(groups); i++ {
			for j := i + 1; j < len(groups); j++ {
				ga, gb := groups[i], groups[j]
				for _, pa := range ix.Personas(c, ga) {
					for _, pb := range ix.Personas(c, gb) {
						key := [2]string{ga, gb}
						out[key] = append(out[key], product(c, ix.Stories(c, ga, pa), ix.Stories(c, gb, pb))...)
					}
				}
			}
		}
	}
	return out
}

func product(cluster string, as, bs []models.UserStory) []Candidate {
	out := make([]Candidate, 0, len(as)*len(bs))
	for _, a := range as {
		for _, b := range bs {
			out = append(out, Candidate{Cluster: cluster, A: a, B: b})
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
