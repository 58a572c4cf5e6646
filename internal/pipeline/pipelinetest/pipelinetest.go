// Package pipelinetest builds a pipeline.Context backed by a temp store, the
// sample documentation bundle, and a scripted model.
package pipelinetest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/ShayCichocki/reqflow/internal/api"
	"github.com/ShayCichocki/reqflow/internal/api/apitest"
	"github.com/ShayCichocki/reqflow/internal/docs"
	"github.com/ShayCichocki/reqflow/internal/docs/docstest"
	"github.com/ShayCichocki/reqflow/internal/pipeline"
	"github.com/ShayCichocki/reqflow/internal/prompt"
	"github.com/ShayCichocki/reqflow/internal/store"
	"github.com/ShayCichocki/reqflow/pkg/models"
)

// Fixed clock for reproducible artifacts.
var Epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// New returns a context whose model is fake.
func New(t testing.TB, fake *apitest.Fake) *pipeline.Context {
	t.Helper()
	dir := t.TempDir()
	docsDir := filepath.Join(dir, "docs")
	docstest.Write(t, docsDir, nil)
	bundle, err := docs.Load(docsDir)
	if err != nil {
		t.Fatalf("load docs: %v", err)
	}
	return &pipeline.Context{
		Store:                store.New(filepath.Join(dir, "results")),
		LLM:                  api.NewGateway(fake),
		Prompts:              prompt.New(bundle),
		Docs:                 bundle,
		Log:                  zaptest.NewLogger(t),
		SystemName:           "harbor",
		Model:                "test-model",
		Fingerprint:          "personas-00000000",
		Seed:                 42,
		DedupMaxRemovalRatio: 0.30,
		Now:                  func() time.Time { return Epoch },
	}
}

// Persona builds a minimal registered persona.
func Persona(id, name, group string) models.Persona {
	return models.Persona{ID: id, Name: name, Role: name + " role", UserGroup: group}
}

// WritePersonas writes persona files into dir.
func WritePersonas(t testing.TB, dir string, personas ...models.Persona) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, p := range personas {
		raw, err := json.Marshal(p)
		if err != nil {
			t.Fatalf("encode persona: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, p.ID+".json"), raw, 0o644); err != nil {
			t.Fatalf("write persona: %v", err)
		}
	}
}

// Stories builds a persona story file.
func Stories(p models.Persona, stories ...models.UserStory) models.PersonaStories {
	for i := range stories {
		stories[i].PersonaID = p.ID
		stories[i].UserGroup = p.UserGroup
	}
	return models.PersonaStories{PersonaID: p.ID, UserGroup: p.UserGroup, Stories: stories}
}

// MustWrite stores v as JSON under key.
func MustWrite(t testing.TB, pc *pipeline.Context, key string, v any) {
	t.Helper()
	if err := pc.Store.WriteJSON(key, v); err != nil {
		t.Fatalf("write %s: %v", key, err)
	}
}

// MustRead decodes key into v.
func MustRead(t testing.TB, pc *pipeline.Context, key string, v any) {
	t.Helper()
	if err := pc.Store.ReadJSON(key, v); err != nil {
		t.Fatalf("read %s: %v", key, err)
	}
}
