package story

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/reqflow/internal/api/apitest"
	"github.com/ShayCichocki/reqflow/internal/pipeline"
	"github.com/ShayCichocki/reqflow/internal/pipeline/pipelinetest"
	"github.com/ShayCichocki/reqflow/internal/prompt"
	"github.com/ShayCichocki/reqflow/internal/store"
	"github.com/ShayCichocki/reqflow/pkg/models"
)

func seeded(t *testing.T, fake *apitest.Fake) *pipeline.Context {
	pc := pipelinetest.New(t, fake)
	pc.SetPersonas([]models.Persona{
		pipelinetest.Persona("P-001", "Ana", "end_users"),
		pipelinetest.Persona("P-002", "Bo", "operators"),
	})
	pipelinetest.MustWrite(t, pc, store.UseCaseKey("UC-001"), models.UseCase{
		ID: "UC-001", Personas: []string{"P-001", "P-002"}, Name: "n", Description: "d", Scenario: "s",
	})
	pipelinetest.MustWrite(t, pc, store.PersonaTasksKey("P-001"), models.PersonaTasks{PersonaID: "P-001", Tasks: []models.Task{
		{ID: "TASK-001", UseCaseID: "UC-001", PersonaID: "P-001", Description: "book quickly"},
		{ID: "TASK-003", UseCaseID: "UC-001", PersonaID: "P-001", Description: "see history"},
	}})
	pipelinetest.MustWrite(t, pc, store.PersonaTasksKey("P-002"), models.PersonaTasks{PersonaID: "P-002", Tasks: []models.Task{
		{ID: "TASK-004", UseCaseID: "UC-001", PersonaID: "P-002", Description: "approve"},
	}})
	return pc
}

const goodStory = `{"title": "Quick booking", "summary": "As a nurse, I want to book quickly, so that I save time.", "priority": 4, "pillar": "Performance"}`

func TestSynthesizer_BuildsStoriesFromTasks(t *testing.T) {
	fake := apitest.New().OnFunc(prompt.MarkerUserStory, func(p string, _ int) string {
		if strings.Contains(p, "see history") {
			return `{"title": "History", "summary": "s", "priority": 9, "pillar": "Usability"}`
		}
		if strings.Contains(p, "approve") {
			return `{"title": "Approve", "summary": "s", "priority": 2, "pillar": "Security"}`
		}
		return goodStory
	})
	pc := seeded(t, fake)

	stats, err := Synthesizer{}.Run(context.Background(), pc)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Attempted)
	assert.Equal(t, 1, stats.Produced)
	assert.Equal(t, 2, stats.Failed)

	var ps models.PersonaStories
	pipelinetest.MustRead(t, pc, store.PersonaStoriesKey("P-001"), &ps)
	assert.Equal(t, "end_users", ps.UserGroup)
	require.Len(t, ps.Stories, 2)
	first := ps.Stories[0]
	assert.Equal(t, "US-001", first.ID)
	assert.Equal(t, "P-001", first.PersonaID)
	assert.Equal(t, "end_users", first.UserGroup)
	assert.Equal(t, "TASK-001", first.TaskID)
	assert.Equal(t, "Performance", first.Pillar)
	assert.True(t, first.Complete())
	assert.Equal(t, "US-003", ps.Stories[1].ID)
	assert.False(t, ps.Stories[1].Complete(), "skeleton kept for retry")

	fake.On(prompt.MarkerUserStory, goodStory)
	stats, err = Synthesizer{}.Run(context.Background(), pc)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 2, stats.Produced)
}

func TestSynthesizer_SkipsDiscarded(t *testing.T) {
	fake := apitest.New().On(prompt.MarkerUserStory, goodStory)
	pc := seeded(t, fake)
	pipelinetest.MustWrite(t, pc, store.PersonaStoriesKey("P-001"), models.PersonaStories{
		PersonaID: "P-001", UserGroup: "end_users", Discarded: []string{"US-001"},
	})

	_, err := Synthesizer{}.Run(context.Background(), pc)
	require.NoError(t, err)
	var ps models.PersonaStories
	pipelinetest.MustRead(t, pc, store.PersonaStoriesKey("P-001"), &ps)
	require.Len(t, ps.Stories, 1)
	assert.Equal(t, "US-003", ps.Stories[0].ID)
}

func TestSynthesizer_RequiresTasks(t *testing.T) {
	pc := pipelinetest.New(t, apitest.New())
	pc.SetPersonas([]models.Persona{pipelinetest.Persona("P-001", "Ana", "end_users")})
	_, err := Synthesizer{}.Run(context.Background(), pc)
	assert.ErrorIs(t, err, pipeline.ErrMissingPrerequisite)
}

func TestTyper(t *testing.T) {
	fake := apitest.New().OnFunc(prompt.MarkerStoryType, func(p string, _ int) string {
		switch {
		case strings.Contains(p, "US-001"):
			return "Non-Functional"
		case strings.Contains(p, "US-002"):
			return " Functional\n"
		default:
			return "Both, really"
		}
	})
	pc := pipelinetest.New(t, fake)
	ana := pipelinetest.Persona("P-001", "Ana", "end_users")
	pc.SetPersonas([]models.Persona{ana})
	complete := func(id string) models.UserStory {
		return models.UserStory{ID: id, Title: "t", Summary: "s", Priority: 3, Pillar: "Performance"}
	}
	ps := pipelinetest.Stories(ana, complete("US-001"), complete("US-002"), complete("US-003"), models.UserStory{ID: "US-004"})
	pipelinetest.MustWrite(t, pc, store.PersonaStoriesKey("P-001"), ps)

	stats, err := Typer{}.Run(context.Background(), pc)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Produced)
	assert.Equal(t, 1, stats.Skipped)

	pipelinetest.MustRead(t, pc, store.PersonaStoriesKey("P-001"), &ps)
	assert.Equal(t, models.StoryNonFunctional, ps.Stories[0].Type)
	assert.Equal(t, models.StoryFunctional, ps.Stories[1].Type)
	assert.Equal(t, models.StoryUnknown, ps.Stories[2].Type)
	assert.Empty(t, ps.Stories[3].Type)

	stats, err = Typer{}.Run(context.Background(), pc)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Attempted, "Unknown is final")
}
