// Package persona loads persona files and assigns each persona one user group.
package persona

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ShayCichocki/reqflow/internal/pipeline"
	"github.com/ShayCichocki/reqflow/internal/reply"
	"github.com/ShayCichocki/reqflow/internal/store"
	"github.com/ShayCichocki/reqflow/pkg/models"
)

// Load reads every *.json persona in dir, sorted by ID. Files without a valid
// Id or Name are skipped with a warning; a duplicate Id keeps the first file.
func Load(dir string, log *zap.Logger) ([]models.Persona, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, pipeline.Missing("persona directory %s does not exist", dir)
		}
		return nil, fmt.Errorf("persona: read %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	seen := map[string]string{}
	var personas []models.Persona
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("persona: read %s: %w", name, err)
		}
		var p models.Persona
		if err := json.Unmarshal(raw, &p); err != nil {
			log.Warn("persona file skipped", zap.String("file", name), zap.Error(err))
			continue
		}
		if err := p.Validate(); err != nil {
			log.Warn("persona file skipped", zap.String("file", name), zap.Error(err))
			continue
		}
		if first, dup := seen[p.ID]; dup {
			log.Warn("duplicate persona id", zap.String("persona", p.ID), zap.String("file", name), zap.String("kept", first))
			continue
		}
		seen[p.ID] = name
		personas = append(personas, p)
	}
	sort.Slice(personas, func(i, j int) bool { return personas[i].ID < personas[j].ID })
	return personas, nil
}

// Registry is the persona phase: it loads personas and classifies each into
// a user group, persisting the assignment so reruns do not ask again.
type Registry struct {
	Dir string
}

// Name implements pipeline.Phase.
func (r *Registry) Name() string { return "personas" }

// Run implements pipeline.Phase.
func (r *Registry) Run(ctx context.Context, pc *pipeline.Context) (pipeline.Stats, error) {
	stats := pipeline.Stats{Phase: r.Name()}
	log := pc.Logger().With(zap.String("phase", r.Name()))

	personas, err := Load(r.Dir, log)
	if err != nil {
		return stats, err
	}
	if len(personas) == 0 {
		return stats, pipeline.Missing("no valid persona files in %s", r.Dir)
	}

	assigned := map[string]string{}
	if err := pc.Store.ReadJSON(store.PersonaGroupsKey, &assigned); err != nil && !errors.Is(err, store.ErrNotFound) {
		return stats, err
	}

	groups := pc.Docs.GroupNames()
	for i := range personas {
		p := &personas[i]
		if key, ok := assigned[p.ID]; ok {
			if _, known := pc.Docs.Group(key); known {
				p.UserGroup = key
				stats.Skipped++
				continue
			}
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		stats.Attempted++
		text, err := pc.Ask(ctx, pc.Prompts.ClassifyPersona(*p))
		if err != nil {
			if err := pc.ItemError(&stats, err, zap.String("persona", p.ID)); err != nil {
				return stats, err
			}
			continue
		}

		fallback := pc.Docs.UserGroups[0]
		group := fallback
		if name, ok := reply.Choice(text, groups); ok {
			group, _ = pc.Docs.GroupByName(name)
		} else {
			log.Warn("unrecognized user group, using first configured group",
				zap.String("persona", p.ID), zap.String("reply", text), zap.String("group", fallback.Key))
		}
		p.UserGroup = group.Key
		assigned[p.ID] = group.Key
		if err := pc.Store.WriteJSON(store.PersonaGroupsKey, assigned); err != nil {
			return stats, err
		}
		stats.Produced++
	}

	var registered []models.Persona
	for _, p := range personas {
		if p.UserGroup != "" {
			registered = append(registered, p)
		}
	}
	pc.SetPersonas(registered)
	pc.Unclassified = len(personas) - len(registered)
	if len(registered) == 0 {
		return stats, pipeline.Missing("no persona could be classified")
	}
	log.Info("personas registered", zap.Int("count", len(registered)), zap.Int("files", len(personas)))
	return stats, nil
}
