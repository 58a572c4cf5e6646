// Package analysis renders review-friendly views of the pipeline artifacts:
// CSV exports inside the result root and a metrics textfile beside it.
package analysis

import (
	"bytes"
	"context"
	"encoding/csv"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ShayCichocki/reqflow/internal/conflict"
	"github.com/ShayCichocki/reqflow/internal/pipeline"
	"github.com/ShayCichocki/reqflow/internal/store"
	"github.com/ShayCichocki/reqflow/internal/story"
	"github.com/ShayCichocki/reqflow/pkg/models"
)

// CSV file names under the analysis directory.
const (
	StoriesFile   = "user_stories.csv"
	ConflictsFile = "conflicts.csv"
	ClustersFile  = "clusters.csv"
)

// Exporter rebuilds the analysis CSVs from the current artifacts. Output is a
// pure function of the artifacts, so an unchanged store leaves the files
// untouched.
type Exporter struct{}

// Name implements pipeline.Phase.
func (Exporter) Name() string { return "analysis" }

// Run implements pipeline.Phase.
func (e Exporter) Run(ctx context.Context, pc *pipeline.Context) (pipeline.Stats, error) {
	stats := pipeline.Stats{Phase: e.Name()}
	if err := pc.RequirePersonas(); err != nil {
		return stats, err
	}
	set, err := story.Load(pc)
	if err != nil {
		return stats, err
	}

	views := []struct {
		name  string
		build func() ([][]string, error)
	}{
		{StoriesFile, func() ([][]string, error) { return storyRows(pc, set), nil }},
		{ConflictsFile, func() ([][]string, error) { return conflictRows(pc) }},
		{ClustersFile, func() ([][]string, error) { return clusterRows(pc, set) }},
	}
	for _, v := range views {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Attempted++
		rows, err := v.build()
		if err != nil {
			return stats, err
		}
		payload, err := encode(rows)
		if err != nil {
			return stats, err
		}
		if err := pc.Store.Write(store.AnalysisKey(v.name), payload); err != nil {
			return stats, err
		}
		stats.Produced++
		pc.Logger().Debug("analysis written", zap.String("file", v.name), zap.Int("rows", len(rows)-1))
	}
	return stats, nil
}

func encode(rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func storyRows(pc *pipeline.Context, set story.Set) [][]string {
	rows := [][]string{{"id", "persona", "user_group", "use_case", "task", "title", "summary", "priority", "pillar", "type", "cluster"}}
	_ = set.Each(pc, func(_ *models.PersonaStories, st *models.UserStory) error {
		priority := ""
		if st.Priority > 0 {
			priority = strconv.Itoa(st.Priority)
		}
		rows = append(rows, []string{
			st.ID, st.PersonaID, st.UserGroup, st.UseCaseID, st.TaskID,
			st.Title, st.Summary, priority, st.Pillar, string(st.Type), st.ClusterName(),
		})
		return nil
	})
	return rows
}

func conflictRows(pc *pipeline.Context) ([][]string, error) {
	rows := [][]string{{
		"family", "partition", "group_key", "id", "cluster", "user_groups",
		"story_a", "persona_a", "summary_a", "story_b", "persona_b", "summary_b",
		"conflict_type", "description", "nfr_pairs", "verified",
		"resolution_type", "resolution_description", "new_summary_a", "new_summary_b",
	}}
	for _, f := range models.Families {
		for _, invalid := range []bool{false, true} {
			partition := "valid"
			if invalid {
				partition = "invalid"
			}
			files, err := conflict.Files(pc, f, invalid)
			if err != nil {
				return nil, err
			}
			for _, file := range files {
				for _, c := range file.Conflicts {
					resolution := ""
					if c.GeneralResolutionType != nil {
						resolution = *c.GeneralResolutionType
						if resolution == "" {
							resolution = "None"
						}
					}
					rows = append(rows, []string{
						f.Prefix, partition, file.GroupKey, c.ID, c.Cluster, strings.Join(c.UserGroups, ";"),
						c.UserStoryAID, c.PersonaAID, c.UserStoryASummary,
						c.UserStoryBID, c.PersonaBID, c.UserStoryBSummary,
						string(c.ConflictType), c.ConflictDescription, nfrPairs(c.ConflictingNFRPairs),
						strconv.FormatBool(c.Verified),
						resolution, c.ResolutionDescription, c.NewUserStoryASummary, c.NewUserStoryBSummary,
					})
				}
			}
		}
	}
	return rows, nil
}

func nfrPairs(pairs [][2]string) string {
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p[0] + " <> " + p[1]
	}
	return strings.Join(out, "; ")
}

// clusterRows lists every defined NF cluster and every functional cluster
// with the number of stories assigned to it.
func clusterRows(pc *pipeline.Context, set story.Set) ([][]string, error) {
	counts := map[models.StoryType]map[string]int{
		models.StoryFunctional:    {},
		models.StoryNonFunctional: {},
	}
	_ = set.Each(pc, func(_ *models.PersonaStories, st *models.UserStory) error {
		if m, ok := counts[st.Type]; ok && st.Cluster != nil {
			m[*st.Cluster]++
		}
		return nil
	})

	rows := [][]string{{"type", "pillar", "cluster", "description", "stories"}}
	for _, p := range pc.Docs.Pillars {
		for _, c := range p.Clusters {
			rows = append(rows, []string{
				string(models.StoryNonFunctional), p.Name, c.Name, c.Description,
				strconv.Itoa(counts[models.StoryNonFunctional][c.Name]),
			})
		}
	}

	var cs models.FunctionalClusterSet
	ok, err := pc.ReadItem(store.FunctionalClusterSetKey, &cs)
	if err != nil {
		return nil, err
	}
	if ok {
		for _, name := range cs.Clusters {
			rows = append(rows, []string{string(models.StoryFunctional), "", name, "", strconv.Itoa(counts[models.StoryFunctional][name])})
		}
	}
	if n := counts[models.StoryFunctional][models.Unclustered]; n > 0 {
		rows = append(rows, []string{string(models.StoryFunctional), "", models.Unclustered, "", strconv.Itoa(n)})
	}
	return rows, nil
}
