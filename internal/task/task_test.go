package task

import (
	"context"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/reqflow/internal/api/apitest"
	"github.com/ShayCichocki/reqflow/internal/pipeline"
	"github.com/ShayCichocki/reqflow/internal/pipeline/pipelinetest"
	"github.com/ShayCichocki/reqflow/internal/prompt"
	"github.com/ShayCichocki/reqflow/internal/store"
	"github.com/ShayCichocki/reqflow/pkg/models"
)

func tasks(n int) []models.Task {
	out := make([]models.Task, n)
	for i := range out {
		out[i] = models.Task{ID: models.FormatID(models.TaskPrefix, i+1), Description: "task"}
	}
	return out
}

func TestMaxRemovals(t *testing.T) {
	tests := []struct {
		n     int
		ratio float64
		want  int
	}{
		{4, 0.30, 1},
		{10, 0.30, 3},
		{3, 0.30, 0},
		{10, 0, 0},
		{5, 2, 5},
		{0, 0.3, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaxRemovals(tt.n, tt.ratio), "n=%d ratio=%v", tt.n, tt.ratio)
	}
}

func TestDedup_CapKeepsTail(t *testing.T) {
	always := func(context.Context, models.Task, models.Task) (bool, error) { return true, nil }
	kept, err := Dedup(context.Background(), tasks(10), 0.30, always)
	require.NoError(t, err)
	require.Len(t, kept, 7)
	assert.Equal(t, "TASK-001", kept[0].ID)
	assert.Equal(t, "TASK-005", kept[1].ID)
	assert.Equal(t, "TASK-010", kept[6].ID)
}

func TestDedup_CapProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("removals never exceed the cap and order is kept", prop.ForAll(
		func(n int, ratio float64, verdicts []bool) bool {
			i := 0
			judge := func(context.Context, models.Task, models.Task) (bool, error) {
				v := len(verdicts) > 0 && verdicts[i%len(verdicts)]
				i++
				return v, nil
			}
			in := tasks(n)
			kept, err := Dedup(context.Background(), in, ratio, judge)
			if err != nil {
				return false
			}
			if len(in)-len(kept) > MaxRemovals(n, ratio) {
				return false
			}
			last := 0
			for _, k := range kept {
				num, _ := models.ParseIDNumber(models.TaskPrefix, k.ID)
				if num <= last {
					return false
				}
				last = num
			}
			return len(kept) == 0 || kept[0].ID == "TASK-001"
		},
		gen.IntRange(0, 30),
		gen.Float64Range(0, 1),
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}

func scenarioContext(t *testing.T, fake *apitest.Fake) *pipeline.Context {
	pc := pipelinetest.New(t, fake)
	pc.SetPersonas([]models.Persona{
		pipelinetest.Persona("P-001", "Ana", "end_users"),
		pipelinetest.Persona("P-002", "Bo", "end_users"),
	})
	for _, uc := range []models.UseCase{
		{ID: "UC-001", Personas: []string{"P-001", "P-002"}, Name: "n", Description: "d", Scenario: "Ana and Bo work."},
		{ID: "UC-002", Personas: []string{"P-002"}, Name: "n2", Description: "d2", Scenario: "Bo works alone."},
	} {
		pipelinetest.MustWrite(t, pc, store.UseCaseKey(uc.ID), uc)
	}
	return pc
}

func TestExtractor_NumbersAcrossUseCases(t *testing.T) {
	fake := apitest.New().OnFunc(prompt.MarkerExtractTasks, func(p string, _ int) string {
		if strings.Contains(p, "Bo works alone.") {
			return `{"personas": [{"personaId": "P-002", "tasks": ["file report"]}]}`
		}
		return `{"personas": [
			{"personaId": "P-002", "tasks": ["confirm slot"]},
			{"personaId": "P-001", "tasks": ["book slot", " ", "see calendar"]},
			{"personaId": "P-999", "tasks": ["intruder"]}
		]}`
	})
	pc := scenarioContext(t, fake)

	stats, err := Extractor{}.Run(context.Background(), pc)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Produced)

	var rec models.UseCaseExtraction
	pipelinetest.MustRead(t, pc, store.ExtractionKey("UC-001"), &rec)
	require.Len(t, rec.Tasks, 3)
	assert.Equal(t, models.Task{ID: "TASK-001", UseCaseID: "UC-001", PersonaID: "P-001", Description: "book slot"}, rec.Tasks[0])
	assert.Equal(t, "TASK-003", rec.Tasks[2].ID)
	assert.Equal(t, "P-002", rec.Tasks[2].PersonaID)

	pipelinetest.MustRead(t, pc, store.ExtractionKey("UC-002"), &rec)
	assert.Equal(t, "TASK-004", rec.Tasks[0].ID)

	require.NoError(t, pc.Store.Delete(store.ExtractionKey("UC-001")))
	stats, err = Extractor{}.Run(context.Background(), pc)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Produced)
	pipelinetest.MustRead(t, pc, store.ExtractionKey("UC-001"), &rec)
	assert.Equal(t, "TASK-005", rec.Tasks[0].ID, "ids resume after the current maximum")
}

func TestExtractor_NoUsableTasks(t *testing.T) {
	fake := apitest.New().On(prompt.MarkerExtractTasks, `{"personas": [{"personaId": "P-999", "tasks": ["x"]}]}`)
	pc := scenarioContext(t, fake)

	stats, err := Extractor{}.Run(context.Background(), pc)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Failed)
	has, err := pc.Store.Has(store.ExtractionKey("UC-001"))
	require.NoError(t, err)
	assert.False(t, has)
}

func TestDeduplicator_WaitsForExtraction(t *testing.T) {
	pc := scenarioContext(t, apitest.New())
	pipelinetest.MustWrite(t, pc, store.ExtractionKey("UC-001"), models.UseCaseExtraction{
		UseCaseID: "UC-001",
		Tasks:     []models.Task{{ID: "TASK-001", UseCaseID: "UC-001", PersonaID: "P-001", Description: "a"}},
	})

	stats, err := Deduplicator{}.Run(context.Background(), pc)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Attempted)
	has, err := pc.Store.Has(store.PersonaTasksKey("P-001"))
	require.NoError(t, err)
	assert.False(t, has)
}

func TestDeduplicator_RemovesDuplicatesUnderCap(t *testing.T) {
	fake := apitest.New().OnFunc(prompt.MarkerDuplicateTask, func(p string, _ int) string {
		if strings.Contains(p, "Candidate task:\nbook a slot again") || strings.Contains(p, "Candidate task:\nbook once more") {
			return "Yes"
		}
		return "No."
	})
	pc := scenarioContext(t, fake)
	mk := func(n int, uc, persona, d string) models.Task {
		return models.Task{ID: models.FormatID(models.TaskPrefix, n), UseCaseID: uc, PersonaID: persona, Description: d}
	}
	pipelinetest.MustWrite(t, pc, store.ExtractionKey("UC-001"), models.UseCaseExtraction{UseCaseID: "UC-001", Tasks: []models.Task{
		mk(1, "UC-001", "P-001", "book a slot"),
		mk(2, "UC-001", "P-001", "book a slot again"),
		mk(3, "UC-001", "P-001", "book once more"),
		mk(4, "UC-001", "P-001", "see calendar"),
		mk(5, "UC-001", "P-002", "confirm"),
	}})
	pipelinetest.MustWrite(t, pc, store.ExtractionKey("UC-002"), models.UseCaseExtraction{UseCaseID: "UC-002", Tasks: []models.Task{
		mk(6, "UC-002", "P-002", "report"),
	}})

	stats, err := Deduplicator{}.Run(context.Background(), pc)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Produced)
	assert.Equal(t, 1, stats.Deduplicated)

	var pt models.PersonaTasks
	pipelinetest.MustRead(t, pc, store.PersonaTasksKey("P-001"), &pt)
	assert.Equal(t, 4, pt.Before)
	require.Len(t, pt.Tasks, 3)
	assert.Equal(t, []string{"TASK-001", "TASK-003", "TASK-004"}, []string{pt.Tasks[0].ID, pt.Tasks[1].ID, pt.Tasks[2].ID})

	pipelinetest.MustRead(t, pc, store.PersonaTasksKey("P-002"), &pt)
	assert.Len(t, pt.Tasks, 2)

	calls := fake.Count(prompt.MarkerDuplicateTask)
	stats, err = Deduplicator{}.Run(context.Background(), pc)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, calls, fake.Count(prompt.MarkerDuplicateTask))
}

func TestDeduplicator_TransportErrorRetriesPersona(t *testing.T) {
	fake := apitest.New().Fail(prompt.MarkerDuplicateTask, nil)
	pc := scenarioContext(t, fake)
	pipelinetest.MustWrite(t, pc, store.ExtractionKey("UC-001"), models.UseCaseExtraction{UseCaseID: "UC-001", Tasks: []models.Task{
		{ID: "TASK-001", UseCaseID: "UC-001", PersonaID: "P-001", Description: "a"},
		{ID: "TASK-002", UseCaseID: "UC-001", PersonaID: "P-001", Description: "b"},
		{ID: "TASK-003", UseCaseID: "UC-001", PersonaID: "P-001", Description: "c"},
		{ID: "TASK-004", UseCaseID: "UC-001", PersonaID: "P-001", Description: "d"},
	}})
	pipelinetest.MustWrite(t, pc, store.ExtractionKey("UC-002"), models.UseCaseExtraction{UseCaseID: "UC-002"})

	stats, err := Deduplicator{}.Run(context.Background(), pc)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	has, err := pc.Store.Has(store.PersonaTasksKey("P-001"))
	require.NoError(t, err)
	assert.False(t, has, "no task file after a failed check")

	fake.On(prompt.MarkerDuplicateTask, "Yes")
	stats, err = Deduplicator{}.Run(context.Background(), pc)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, 1, stats.Deduplicated)

	var pt models.PersonaTasks
	pipelinetest.MustRead(t, pc, store.PersonaTasksKey("P-001"), &pt)
	assert.Equal(t, 4, pt.Before)
	require.Len(t, pt.Tasks, 3)
	assert.Equal(t, "TASK-001", pt.Tasks[0].ID)
	assert.Equal(t, "TASK-003", pt.Tasks[1].ID)
}
