package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", DEBUG},
		{"DEBUG", DEBUG},
		{" Debug ", DEBUG},
		{"info", INFO},
		{"warning", WARN},
		{"error", ERROR},
		{"fatal", FATAL},
		{"", INFO},
		{"verbose", INFO},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("worker_metadata", INFO, false)
	l.SetOutput(&buf)

	l.Debug("probe detail")
	l.Info("handler invoked")

	out := buf.String()
	assert.NotContains(t, out, "probe detail")
	assert.Contains(t, out, "[worker_metadata][INFO] handler invoked")
	assert.False(t, l.DebugEnabled())
}

func TestJSONFormatWithFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("worker_metadata", DEBUG, true)
	l.SetOutput(&buf)

	l.WithField("job_id", "job-1").Warn("slow probe", Fields{"probe": "location"})

	var entry LogEntry
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "WARN", entry.Level)
	assert.Equal(t, "worker_metadata", entry.Component)
	assert.Equal(t, "slow probe", entry.Message)
	assert.Equal(t, "job-1", entry.Fields["job_id"])
	assert.Equal(t, "location", entry.Fields["probe"])
}

func TestWithFieldSharesOutput(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLogger("worker_metadata", INFO, false)
	child := parent.WithField("job_id", "abc")
	parent.SetOutput(&buf)

	child.Info("from child")
	assert.True(t, strings.Contains(buf.String(), "from child"))
	assert.Contains(t, buf.String(), "job_id:abc")
}

func TestNewFileLogger(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	l, err := NewFileLogger(dir, "worker", INFO, false)
	require.NoError(t, err)

	l.Info("written to file")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(filepath.Join(dir, "worker.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	assert.True(t, FromEnv("worker_metadata").DebugEnabled())

	t.Setenv("LOG_LEVEL", "anything")
	assert.Equal(t, INFO, FromEnv("worker_metadata").Level())
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Error("dropped")
	assert.False(t, l.DebugEnabled())
}

func TestLogrotateConfig(t *testing.T) {
	cfg := LogrotateConfig("/data/logs", "worker")
	assert.Contains(t, cfg, "/data/logs/worker.log {")
	assert.Contains(t, cfg, "copytruncate")

	assert.Contains(t, LogrotateConfig("", "worker"), DefaultLogDir+"/worker.log")
}
