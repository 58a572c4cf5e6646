package decompose

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/reqflow/internal/api/apitest"
	"github.com/ShayCichocki/reqflow/internal/pipeline/pipelinetest"
	"github.com/ShayCichocki/reqflow/internal/prompt"
	"github.com/ShayCichocki/reqflow/internal/store"
	"github.com/ShayCichocki/reqflow/pkg/models"
)

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		want  []string
		valid bool
	}{
		{"plain", `{"decomposition": ["p95 < 200ms", " 99.9% uptime "]}`, []string{"p95 < 200ms", "99.9% uptime"}, true},
		{"fenced", "```json\n{\"decomposition\": [\"a\"]}\n```", []string{"a"}, true},
		{"empty list", `{"decomposition": []}`, []string{"fallback"}, false},
		{"blank items", `{"decomposition": [" "]}`, []string{"fallback"}, false},
		{"prose", "Here are the NFRs: fast", []string{"fallback"}, false},
		{"wrong shape", `["a"]`, []string{"fallback"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseResponse(tt.text, "fallback")
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.valid, ok)
		})
	}
}

func TestDecomposer(t *testing.T) {
	fake := apitest.New().On(prompt.MarkerDecompose, `{"decomposition": ["fast"]}`, "nonsense")
	pc := pipelinetest.New(t, fake)
	ana := pipelinetest.Persona("P-001", "Ana", "end_users")
	pc.SetPersonas([]models.Persona{ana})
	stories := pipelinetest.Stories(ana,
		models.UserStory{ID: "US-001", Summary: "fast pages", Type: models.StoryNonFunctional},
		models.UserStory{ID: "US-002", Summary: "secure data", Type: models.StoryNonFunctional},
		models.UserStory{ID: "US-003", Summary: "book", Type: models.StoryFunctional},
	)
	pipelinetest.MustWrite(t, pc, store.PersonaStoriesKey("P-001"), stories)

	stats, err := Decomposer{}.Run(context.Background(), pc)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Produced)

	decs, err := Load(pc)
	require.NoError(t, err)
	assert.Equal(t, []string{"fast"}, decs["US-001"].Decomposition)
	assert.Equal(t, []string{"secure data"}, decs["US-002"].Decomposition, "fallback to summary")
	_, ok := decs["US-003"]
	assert.False(t, ok)

	stats, err = Decomposer{}.Run(context.Background(), pc)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Attempted)

	stories.Stories[0].Summary = "very fast pages"
	pipelinetest.MustWrite(t, pc, store.PersonaStoriesKey("P-001"), stories)
	stats, err = Decomposer{}.Run(context.Background(), pc)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Attempted, "rewritten summary is decomposed again")
	decs, err = Load(pc)
	require.NoError(t, err)
	assert.Equal(t, "very fast pages", decs["US-001"].Summary)
}

func TestFor(t *testing.T) {
	decs := Decompositions{"US-001": {Summary: "s", Decomposition: []string{"a", "b"}}}
	assert.Equal(t, []string{"a", "b"}, decs.For(models.UserStory{ID: "US-001", Summary: "s"}))
	assert.Equal(t, []string{"other"}, decs.For(models.UserStory{ID: "US-002", Summary: "other"}))
}
