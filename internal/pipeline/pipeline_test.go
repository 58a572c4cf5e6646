package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/reqflow/internal/api"
	"github.com/ShayCichocki/reqflow/internal/store"
	"github.com/ShayCichocki/reqflow/pkg/models"
)

func TestPersonaLookup(t *testing.T) {
	pc := &Context{}
	require.ErrorIs(t, pc.RequirePersonas(), ErrMissingPrerequisite)

	pc.SetPersonas([]models.Persona{{ID: "P-003"}, {ID: "P-001"}, {ID: "P-002"}})
	require.NoError(t, pc.RequirePersonas())
	assert.Equal(t, "P-001", pc.Personas[0].ID)

	p, ok := pc.Persona("P-002")
	assert.True(t, ok)
	assert.Equal(t, "P-002", p.ID)
	_, ok = pc.Persona("P-009")
	assert.False(t, ok)
}

func TestStatsFinish(t *testing.T) {
	tests := []struct {
		name  string
		stats Stats
		want  Status
	}{
		{"nothing to do", Stats{Skipped: 3}, StatusNoOp},
		{"all produced", Stats{Attempted: 2, Produced: 2}, StatusCompleted},
		{"some failed", Stats{Attempted: 2, Produced: 1, Failed: 1}, StatusPartial},
		{"aborted stays", Stats{Attempted: 2, Status: StatusAborted}, StatusAborted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.stats.Finish()
			assert.Equal(t, tt.want, tt.stats.Status)
		})
	}
}

func TestItemError(t *testing.T) {
	pc := &Context{}
	tests := []struct {
		name   string
		err    error
		local  bool
		failed int
	}{
		{"transport", &api.TransportError{Op: "ask", Err: errors.New("reset")}, true, 1},
		{"parse", &ParseError{What: "story", Reason: "invalid JSON"}, true, 1},
		{"corrupt artifact", &store.CorruptError{Key: "k", Err: errors.New("eof")}, true, 1},
		{"credential", fmt.Errorf("wrap: %w", api.ErrNoCredential), false, 0},
		{"cancelled", context.Canceled, false, 0},
		{"io", errors.New("disk full"), false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stats Stats
			err := pc.ItemError(&stats, tt.err)
			if tt.local {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
			assert.Equal(t, tt.failed, stats.Failed)
		})
	}
}

func TestAskWithoutGateway(t *testing.T) {
	_, err := (&Context{}).Ask(context.Background(), "x")
	assert.ErrorIs(t, err, api.ErrNoCredential)
}
