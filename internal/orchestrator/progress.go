package orchestrator

import (
	"errors"
	"path"
	"strings"

	"github.com/ShayCichocki/reqflow/internal/store"
	"github.com/ShayCichocki/reqflow/pkg/models"
)

// Progress counts the artifacts present under one result root.
type Progress struct {
	UseCases     int
	Scenarios    int
	Extractions  int
	PersonaTasks int

	Stories    int
	Discarded  int
	Typed      int
	Clustered  int
	Decomposed int

	FunctionalClusters int
	Families           []FamilyProgress
	AnalysisFiles      int
}

// FamilyProgress counts one conflict family.
type FamilyProgress struct {
	Family    models.Family
	Groups    int
	Conflicts int
	Verified  int
	Resolved  int
	Invalid   int
}

// ReadProgress scans st. A root with no artifacts yields zero counts.
func ReadProgress(st *store.Store) (*Progress, error) {
	p := &Progress{}

	keys, err := st.List(store.UseCasesDir)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		var uc models.UseCase
		if err := st.ReadJSON(k, &uc); err != nil {
			return nil, err
		}
		p.UseCases++
		if uc.HasScenario() {
			p.Scenarios++
		}
	}

	if keys, err = st.List(store.TaskExtractionDir); err != nil {
		return nil, err
	}
	for _, k := range keys {
		if strings.HasPrefix(path.Base(k), "Extracted_tasks_for_") {
			p.PersonaTasks++
		} else {
			p.Extractions++
		}
	}

	if keys, err = st.List(store.UserStoriesDir); err != nil {
		return nil, err
	}
	for _, k := range keys {
		var ps models.PersonaStories
		if err := st.ReadJSON(k, &ps); err != nil {
			return nil, err
		}
		p.Discarded += len(ps.Discarded)
		for _, s := range ps.Stories {
			p.Stories++
			if s.Type != "" {
				p.Typed++
			}
			if s.Cluster != nil {
				p.Clustered++
			}
		}
	}

	decs := map[string]models.NFDecomposition{}
	if err := readOptional(st, store.DecompositionKey, &decs); err != nil {
		return nil, err
	}
	p.Decomposed = len(decs)

	var cs models.FunctionalClusterSet
	if err := readOptional(st, store.FunctionalClusterSetKey, &cs); err != nil {
		return nil, err
	}
	p.FunctionalClusters = len(cs.Clusters)

	for _, f := range models.Families {
		fp := FamilyProgress{Family: f}
		files, err := readConflictFiles(st, store.ConflictDir(f, false))
		if err != nil {
			return nil, err
		}
		fp.Groups = len(files)
		for _, file := range files {
			for _, c := range file.Conflicts {
				fp.Conflicts++
				if c.Verified {
					fp.Verified++
				}
				if c.ResolutionAttempted() {
					fp.Resolved++
				}
			}
		}
		invalid, err := readConflictFiles(st, store.ConflictDir(f, true))
		if err != nil {
			return nil, err
		}
		for _, file := range invalid {
			fp.Invalid += len(file.Conflicts)
		}
		p.Families = append(p.Families, fp)
	}

	if keys, err = st.List(store.AnalysisDir); err != nil {
		return nil, err
	}
	p.AnalysisFiles = len(keys)
	return p, nil
}

func readOptional(st *store.Store, key string, v any) error {
	if err := st.ReadJSON(key, v); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

func readConflictFiles(st *store.Store, dir string) ([]models.ConflictFile, error) {
	keys, err := st.List(dir)
	if err != nil {
		return nil, err
	}
	out := make([]models.ConflictFile, 0, len(keys))
	for _, k := range keys {
		var f models.ConflictFile
		if err := st.ReadJSON(k, &f); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}
