package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/reqflow/internal/api/apitest"
	"github.com/ShayCichocki/reqflow/internal/docs"
	"github.com/ShayCichocki/reqflow/internal/pipeline"
	"github.com/ShayCichocki/reqflow/internal/pipeline/pipelinetest"
	"github.com/ShayCichocki/reqflow/internal/prompt"
	"github.com/ShayCichocki/reqflow/internal/store"
	"github.com/ShayCichocki/reqflow/pkg/models"
)

func bundle() *docs.Bundle {
	return &docs.Bundle{
		UserGroups: []models.UserGroup{{Key: "a", Name: "A"}, {Key: "b", Name: "B"}},
		Pillars:    []models.Pillar{{Name: "P1"}, {Name: "P2"}, {Name: "P3"}},
		UseCaseTypes: []docs.UseCaseType{
			{Name: "cross", Count: 3, Personas: docs.PersonaConstraint{Count: 2, Groups: docs.GroupsDifferent}, Pillars: docs.PillarConstraint{Count: 2}},
			{Name: "same", Count: 2, Personas: docs.PersonaConstraint{Count: 2, Groups: docs.GroupsSame}, Pillars: docs.PillarConstraint{Count: 1, Pillars: []string{"P3"}}},
			{Name: "solo", Count: 2, Personas: docs.PersonaConstraint{Count: 1}, Pillars: docs.PillarConstraint{Count: 1}},
		},
	}
}

func personas() []models.Persona {
	return []models.Persona{
		pipelinetest.Persona("P-001", "Ana", "a"),
		pipelinetest.Persona("P-002", "Bo", "a"),
		pipelinetest.Persona("P-003", "Cy", "b"),
	}
}

func TestAllocate_HonorsConstraints(t *testing.T) {
	ucs, unmet := Allocate(bundle(), personas(), NewRand(42, "fp", "model"))
	require.Empty(t, unmet)
	require.Len(t, ucs, 7)

	groupOf := map[string]string{"P-001": "a", "P-002": "a", "P-003": "b"}
	for i, uc := range ucs {
		assert.Equal(t, models.FormatID(models.UseCasePrefix, i+1), uc.ID)
		switch uc.Type {
		case "cross":
			require.Len(t, uc.Personas, 2)
			assert.NotEqual(t, groupOf[uc.Personas[0]], groupOf[uc.Personas[1]])
			assert.Len(t, uc.Pillars, 2)
		case "same":
			require.Len(t, uc.Personas, 2)
			assert.Equal(t, []string{"P-001", "P-002"}, uc.Personas)
			assert.Equal(t, []string{"P3"}, uc.Pillars)
		case "solo":
			assert.Len(t, uc.Personas, 1)
			assert.Len(t, uc.Pillars, 1)
		}
	}
}

func TestAllocate_Reproducible(t *testing.T) {
	a, _ := Allocate(bundle(), personas(), NewRand(42, "fp", "model"))
	b, _ := Allocate(bundle(), personas(), NewRand(42, "fp", "model"))
	assert.Equal(t, a, b)
}

func TestAllocate_UnmetConstraint(t *testing.T) {
	only := []models.Persona{pipelinetest.Persona("P-001", "Ana", "a")}
	ucs, unmet := Allocate(bundle(), only, NewRand(1, "fp", "m"))
	assert.Equal(t, []string{"cross", "same"}, unmet)
	require.Len(t, ucs, 2)
	assert.Equal(t, "UC-001", ucs[0].ID)
	assert.Equal(t, "solo", ucs[0].Type)
}

func TestAllocator_WritesOnlyMissing(t *testing.T) {
	pc := pipelinetest.New(t, apitest.New())
	pc.SetPersonas([]models.Persona{
		pipelinetest.Persona("P-001", "Ana", "end_users"),
		pipelinetest.Persona("P-002", "Bo", "end_users"),
	})

	stats, err := Allocator{}.Run(context.Background(), pc)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Produced)

	var uc models.UseCase
	pipelinetest.MustRead(t, pc, store.UseCaseKey("UC-001"), &uc)
	assert.Equal(t, []string{"P-001", "P-002"}, uc.Personas)
	assert.Equal(t, []string{"Performance"}, uc.Pillars)

	uc.Name = "kept"
	pipelinetest.MustWrite(t, pc, store.UseCaseKey("UC-001"), uc)
	stats, err = Allocator{}.Run(context.Background(), pc)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Produced)
	assert.Equal(t, 1, stats.Skipped)
	pipelinetest.MustRead(t, pc, store.UseCaseKey("UC-001"), &uc)
	assert.Equal(t, "kept", uc.Name)
}

func TestAllocator_WaitsForUnclassifiedPersonas(t *testing.T) {
	pc := pipelinetest.New(t, apitest.New())
	pc.SetPersonas([]models.Persona{
		pipelinetest.Persona("P-001", "Ana", "end_users"),
		pipelinetest.Persona("P-002", "Bo", "end_users"),
	})
	pc.Unclassified = 1

	stats, err := Allocator{}.Run(context.Background(), pc)
	require.NoError(t, err)
	assert.Equal(t, "persona classification incomplete", stats.Message)
	assert.Zero(t, stats.Attempted)
	ok, err := pc.Store.Has(store.UseCaseKey("UC-001"))
	require.NoError(t, err)
	assert.False(t, ok)

	pc.Unclassified = 0
	stats, err = Allocator{}.Run(context.Background(), pc)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Produced)
}

func TestAllocator_RequiresPersonas(t *testing.T) {
	pc := pipelinetest.New(t, apitest.New())
	_, err := Allocator{}.Run(context.Background(), pc)
	assert.ErrorIs(t, err, pipeline.ErrMissingPrerequisite)
}

func seeded(t *testing.T, fake *apitest.Fake) *pipeline.Context {
	pc := pipelinetest.New(t, fake)
	pc.SetPersonas([]models.Persona{
		pipelinetest.Persona("P-001", "Ana", "end_users"),
		pipelinetest.Persona("P-002", "Bo", "end_users"),
	})
	pipelinetest.MustWrite(t, pc, store.UseCaseKey("UC-001"), models.UseCase{
		ID: "UC-001", Type: "t", Pillars: []string{"Performance"}, Personas: []string{"P-001", "P-002"},
	})
	pipelinetest.MustWrite(t, pc, store.UseCaseKey("UC-002"), models.UseCase{
		ID: "UC-002", Type: "t", Pillars: []string{"Performance"}, Personas: []string{"P-001"},
	})
	return pc
}

func TestContent_ParseFailureLeavesSkeleton(t *testing.T) {
	fake := apitest.New().On(prompt.MarkerUseCase,
		"```json\n{\"name\": \"Shared booking\", \"description\": \"Two nurses share a slot.\"}\n```",
		"I think the use case is nice",
	)
	pc := seeded(t, fake)

	stats, err := Content{}.Run(context.Background(), pc)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Attempted)
	assert.Equal(t, 1, stats.Produced)
	assert.Equal(t, 1, stats.Failed)

	var uc models.UseCase
	pipelinetest.MustRead(t, pc, store.UseCaseKey("UC-001"), &uc)
	assert.Equal(t, "Shared booking", uc.Name)
	pipelinetest.MustRead(t, pc, store.UseCaseKey("UC-002"), &uc)
	assert.False(t, uc.HasContent())

	fake.On(prompt.MarkerUseCase, `{"name": "Solo", "description": "d"}`)
	stats, err = Content{}.Run(context.Background(), pc)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, stats.Produced)
}

func TestScenario_UsesPreviousScenarios(t *testing.T) {
	fake := apitest.New().On(prompt.MarkerScenario, "Ana opens the app. Bo confirms the slot. They both leave happy. The clinic runs on time.")
	pc := seeded(t, fake)
	for _, id := range []string{"UC-001", "UC-002"} {
		var uc models.UseCase
		pipelinetest.MustRead(t, pc, store.UseCaseKey(id), &uc)
		uc.Name, uc.Description = "Name "+id, "Desc "+id
		pipelinetest.MustWrite(t, pc, store.UseCaseKey(id), uc)
	}

	stats, err := Scenario{}.Run(context.Background(), pc)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Produced)

	prompts := fake.Prompts()
	require.Len(t, prompts, 2)
	assert.NotContains(t, prompts[0], "Scenarios already written")
	assert.Contains(t, prompts[1], "UC-001 Name UC-001: Desc UC-001")

	var uc models.UseCase
	pipelinetest.MustRead(t, pc, store.UseCaseKey("UC-002"), &uc)
	assert.True(t, uc.HasScenario())
	require.NotNil(t, uc.GeneratedAt)
	assert.True(t, uc.GeneratedAt.Equal(pipelinetest.Epoch))
}

func TestScenario_EmptyReplyRetriesLater(t *testing.T) {
	fake := apitest.New().On(prompt.MarkerScenario, "   ")
	pc := seeded(t, fake)
	var uc models.UseCase
	pipelinetest.MustRead(t, pc, store.UseCaseKey("UC-002"), &uc)
	uc.Name, uc.Description = "n", "d"
	pipelinetest.MustWrite(t, pc, store.UseCaseKey("UC-002"), uc)

	stats, err := Scenario{}.Run(context.Background(), pc)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Skipped, "UC-001 has no content")
}

func TestContent_SkipsUnregisteredPersona(t *testing.T) {
	fake := apitest.New().On(prompt.MarkerUseCase, `{"name": "n", "description": "d"}`)
	pc := seeded(t, fake)
	pc.SetPersonas([]models.Persona{pipelinetest.Persona("P-001", "Ana", "end_users")})

	stats, err := Content{}.Run(context.Background(), pc)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Produced)
	assert.Equal(t, 1, stats.Skipped)
}
