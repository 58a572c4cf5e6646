// Package usecase synthesizes use cases in three steps: seeded skeleton
// allocation, name and description, then scenario enrichment.
package usecase

import (
	"context"
	"hash/fnv"
	"math/rand/v2"
	"sort"

	"go.uber.org/zap"

	"github.com/ShayCichocki/reqflow/internal/docs"
	"github.com/ShayCichocki/reqflow/internal/pipeline"
	"github.com/ShayCichocki/reqflow/internal/store"
	"github.com/ShayCichocki/reqflow/pkg/models"
)

// Allocator writes one skeleton per use case the type table asks for.
type Allocator struct{}

// Name implements pipeline.Phase.
func (Allocator) Name() string { return "use-case-allocation" }

// Run implements pipeline.Phase. Only skeletons whose files are missing are
// written; existing use cases are never touched. Nothing is allocated while
// any persona is still unclassified, since the draw depends on the full set.
func (a Allocator) Run(ctx context.Context, pc *pipeline.Context) (pipeline.Stats, error) {
	stats := pipeline.Stats{Phase: a.Name()}
	if err := pc.RequirePersonas(); err != nil {
		return stats, err
	}
	log := pc.Logger().With(zap.String("phase", a.Name()))
	if pc.Unclassified > 0 {
		log.Warn("skipping allocation until every persona is classified", zap.Int("unclassified", pc.Unclassified))
		stats.Message = "persona classification incomplete"
		return stats, nil
	}

	skeletons, unmet := Allocate(pc.Docs, pc.Personas, NewRand(pc.Seed, pc.Fingerprint, pc.Model))
	for _, name := range unmet {
		log.Warn("use case type cannot be satisfied by the persona set", zap.String("type", name))
	}

	for _, uc := range skeletons {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		key := store.UseCaseKey(uc.ID)
		ok, err := pc.Store.Has(key)
		if err != nil {
			return stats, err
		}
		if ok {
			stats.Skipped++
			continue
		}
		stats.Attempted++
		if err := pc.Store.WriteJSON(key, uc); err != nil {
			return stats, err
		}
		stats.Produced++
	}
	log.Info("use case skeletons", zap.Int("total", len(skeletons)), zap.Int("new", stats.Produced))
	return stats, nil
}

// NewRand returns the allocation randomizer for a seed, persona set, and model.
func NewRand(seed int64, fingerprint, model string) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(fingerprint))
	h.Write([]byte{0})
	h.Write([]byte(model))
	return rand.New(rand.NewPCG(uint64(seed), h.Sum64()))
}

// Allocate assigns personas and pillars to every requested use case, in
// type-name order. It returns the skeletons and the names of types whose
// persona constraint could not be met for at least one row.
func Allocate(b *docs.Bundle, personas []models.Persona, rng *rand.Rand) ([]models.UseCase, []string) {
	byGroup := map[string][]models.Persona{}
	for _, p := range personas {
		byGroup[p.UserGroup] = append(byGroup[p.UserGroup], p)
	}
	var groupKeys []string
	for _, g := range b.UserGroups {
		if len(byGroup[g.Key]) > 0 {
			groupKeys = append(groupKeys, g.Key)
		}
	}

	var out []models.UseCase
	var unmet []string
	n := 0
	for _, t := range b.UseCaseTypes {
		failed := false
		for i := 0; i < t.Count; i++ {
			chosen := pickPersonas(t.Personas, personas, byGroup, groupKeys, rng)
			if chosen == nil {
				failed = true
				continue
			}
			n++
			out = append(out, models.UseCase{
				ID:       models.FormatID(models.UseCasePrefix, n),
				Type:     t.Name,
				Pillars:  pickPillars(t.Pillars, b.PillarNames(), rng),
				Personas: chosen,
			})
		}
		if failed {
			unmet = append(unmet, t.Name)
		}
	}
	return out, unmet
}

func pickPersonas(c docs.PersonaConstraint, all []models.Persona, byGroup map[string][]models.Persona, groupKeys []string, rng *rand.Rand) []string {
	k := c.Count
	var chosen []models.Persona
	switch c.Groups {
	case docs.GroupsSame:
		var eligible []string
		for _, g := range groupKeys {
			if len(byGroup[g]) >= k {
				eligible = append(eligible, g)
			}
		}
		if len(eligible) == 0 {
			return nil
		}
		chosen = sample(byGroup[eligible[rng.IntN(len(eligible))]], k, rng)
	case docs.GroupsDifferent:
		if len(groupKeys) < k {
			return nil
		}
		for _, g := range sampleStrings(groupKeys, k, rng) {
			members := byGroup[g]
			chosen = append(chosen, members[rng.IntN(len(members))])
		}
	default:
		if len(all) < k {
			return nil
		}
		chosen = sample(all, k, rng)
	}

	ids := make([]string, len(chosen))
	for i, p := range chosen {
		ids[i] = p.ID
	}
	sort.Strings(ids)
	return ids
}

func pickPillars(c docs.PillarConstraint, all []string, rng *rand.Rand) []string {
	pool := c.Pillars
	if len(pool) == 0 {
		pool = all
	}
	m := c.Count
	if m <= 0 {
		m = 1
	}
	if m > len(pool) {
		m = len(pool)
	}
	picked := sampleStrings(pool, m, rng)
	sort.Strings(picked)
	return picked
}

func sample(xs []models.Persona, k int, rng *rand.Rand) []models.Persona {
	idx := rng.Perm(len(xs))[:k]
	out := make([]models.Persona, k)
	for i, j := range idx {
		out[i] = xs[j]
	}
	return out
}

func sampleStrings(xs []string, k int, rng *rand.Rand) []string {
	idx := rng.Perm(len(xs))[:k]
	out := make([]string, k)
	for i, j := range idx {
		out[i] = xs[j]
	}
	return out
}
