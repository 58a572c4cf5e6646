package orchestrator

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLoggerSinkReceivesLines(t *testing.T) {
	var lines []string
	logger, closeFn, err := NewLogger(LogOptions{Quiet: true, Sink: func(line string) { lines = append(lines, line) }})
	require.NoError(t, err)

	logger.Info("phase finished", zap.String("phase", "personas"))
	logger.Debug("hidden at info")
	require.NoError(t, closeFn())

	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "phase finished")
	assert.Contains(t, lines[0], `"phase": "personas"`)
	assert.NotContains(t, lines[0], "\n")
}

func TestNewLoggerVerboseAndFile(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "run.jsonl")
	logger, closeFn, err := NewLogger(LogOptions{Level: "warn", Verbose: true, Console: &console, File: path})
	require.NoError(t, err)

	logger.Debug("pair checked", zap.String("story_a", "US-001"))
	require.NoError(t, closeFn())

	assert.Contains(t, console.String(), "pair checked")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(raw))), &entry))
	assert.Equal(t, "pair checked", entry["msg"])
	assert.Equal(t, "US-001", entry["story_a"])
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, _, err := NewLogger(LogOptions{Level: "loud", Quiet: true})
	assert.Error(t, err)
}

func TestSinkWriterJoinsPartialWrites(t *testing.T) {
	var lines []string
	w := &sinkWriter{fn: func(l string) { lines = append(lines, l) }}
	_, _ = w.Write([]byte("first li"))
	_, _ = w.Write([]byte("ne\nsecond\nthi"))
	assert.Equal(t, []string{"first line", "second"}, lines)
	_, _ = w.Write([]byte("rd\n"))
	assert.Equal(t, []string{"first line", "second", "third"}, lines)
}
