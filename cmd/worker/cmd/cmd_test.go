package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/psantana5/worker-metadata/pkg/models"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("LOCATION_ENABLED", "false")
	t.Setenv("GPU_ENABLED", "false")
	t.Setenv("LOG_LEVEL", "error")
}

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestLoadSettings(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		v := viper.New()
		setDefaults(v)

		s := loadSettings(v)
		assert.Equal(t, "echo", s.Handler)
		assert.Equal(t, "worker_metadata", s.MetadataKey)
		assert.True(t, s.LocationEnabled)
		assert.Equal(t, 5*time.Second, s.LocationTimeout)
		assert.True(t, s.GPUEnabled)
		assert.Equal(t, ":8000", s.Listen)
		assert.False(t, s.TracingEnabled)
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("WORKER_HANDLER", "exec")
		t.Setenv("WORKER_HANDLER_COMMAND", "python3 handler.py")
		t.Setenv("METADATA_KEY", "execution_metadata")
		t.Setenv("LOCATION_TIMEOUT", "2s")
		t.Setenv("GPU_ENABLED", "false")
		t.Setenv("OTEL_ENABLED", "true")

		v := viper.New()
		setDefaults(v)
		bindEnv(v)

		s := loadSettings(v)
		assert.Equal(t, "exec", s.Handler)
		assert.Equal(t, []string{"python3", "handler.py"}, s.HandlerCommand)
		assert.Equal(t, "execution_metadata", s.MetadataKey)
		assert.Equal(t, 2*time.Second, s.LocationTimeout)
		assert.False(t, s.GPUEnabled)
		assert.True(t, s.TracingEnabled)
	})

	t.Run("config file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("handler: http\nhandler_url: http://localhost:8188/run\nlocation:\n  enabled: false\n"), 0644))

		v := viper.New()
		setDefaults(v)
		v.SetConfigFile(path)
		require.NoError(t, v.ReadInConfig())

		s := loadSettings(v)
		assert.Equal(t, "http", s.Handler)
		assert.Equal(t, "http://localhost:8188/run", s.HandlerURL)
		assert.False(t, s.LocationEnabled)
		assert.True(t, s.GPUEnabled)
	})
}

func TestReadJob(t *testing.T) {
	dir := t.TempDir()
	valid := filepath.Join(dir, "job.json")
	require.NoError(t, os.WriteFile(valid, []byte(`{"id":"file-job","input":{}}`), 0644))

	job, err := readJob(nil, valid)
	require.NoError(t, err)
	assert.Equal(t, "file-job", job.ID())

	job, err = readJob(strings.NewReader(`{"id":"stdin-job"}`), "-")
	require.NoError(t, err)
	assert.Equal(t, "stdin-job", job.ID())

	tests := []struct {
		name  string
		stdin string
		path  string
	}{
		{"missing file", "", filepath.Join(dir, "missing.json")},
		{"invalid json", "{", "-"},
		{"null", "null", "-"},
		{"array", "[]", "-"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readJob(strings.NewReader(tt.stdin), tt.path)
			assert.Error(t, err)
		})
	}
}

func TestDescribePlacement(t *testing.T) {
	tests := []struct {
		name     string
		result   models.Result
		expected string
	}{
		{
			name:     "inside output",
			result:   map[string]interface{}{"output": map[string]interface{}{"k": 1}},
			expected: "inside output",
		},
		{
			name:     "top level",
			result:   map[string]interface{}{"output": "done", "k": 1},
			expected: "at top level",
		},
		{
			name:     "failed job",
			result:   map[string]interface{}{"error": "boom", "k": 1},
			expected: "Job failed (boom)",
		},
		{
			name:     "missing",
			result:   map[string]interface{}{"output": "done"},
			expected: "not found",
		},
		{
			name:     "not a map",
			result:   "done",
			expected: "not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, describePlacement(tt.result, "k"), tt.expected)
		})
	}
}

func sampleMetadata() models.ExecutionMetadata {
	util := 87
	city := "Ashburn"
	return models.ExecutionMetadata{
		Location: &models.GeoInfo{City: &city},
		Hardware: models.HardwareInfo{
			GPU: &models.GPUInfo{
				Name:               "NVIDIA H100 80GB HBM3",
				PowerDrawWatts:     312.5,
				UtilizationPercent: &util,
				MemoryUsedMB:       40000,
				MemoryTotalMB:      81559,
				TemperatureCelsius: 61,
			},
			CPU:           models.CPUInfo{Model: "AMD EPYC 9354 32-Core Processor", Cores: 32},
			MemoryTotalGB: 251,
		},
	}
}

func TestRenderMetadata(t *testing.T) {
	meta := sampleMetadata()

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, renderMetadata(&buf, meta, "json"))

		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		hw := decoded["hardware"].(map[string]interface{})
		assert.Equal(t, float64(251), hw["memory_total_gb"])
		assert.Equal(t, "Ashburn", decoded["location"].(map[string]interface{})["city"])
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, renderMetadata(&buf, meta, "yaml"))

		var decoded models.ExecutionMetadata
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, meta.Hardware.GPU.Name, decoded.Hardware.GPU.Name)
		assert.Equal(t, 87, *decoded.Hardware.GPU.UtilizationPercent)
	})

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, renderMetadata(&buf, meta, "table"))

		out := buf.String()
		assert.Contains(t, out, "NVIDIA H100 80GB HBM3")
		assert.Contains(t, out, "87%")
		assert.Contains(t, out, "40000 / 81559 MB")
		assert.Contains(t, out, "251 GB")
	})

	t.Run("table without location or gpu", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, renderMetadata(&buf, models.ExecutionMetadata{Hardware: models.DefaultHardware()}, "table"))

		out := buf.String()
		assert.Contains(t, out, "unavailable")
		assert.Contains(t, out, models.UnknownCPUModel)
	})

	t.Run("unknown format", func(t *testing.T) {
		assert.Error(t, renderMetadata(&bytes.Buffer{}, meta, "xml"))
	})
}

func TestRunCommand(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "test_input.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"id":"self-test","input":{"prompt":"a cat"}}`), 0644))

	stdout, stderr, err := execute(t, "", "run", "--job", path, "--handler", "echo")
	require.NoError(t, err)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &result), stdout)
	output := result["output"].(map[string]interface{})
	assert.Equal(t, "a cat", output["prompt"])

	meta := output["worker_metadata"].(map[string]interface{})
	assert.Nil(t, meta["location"])
	assert.Nil(t, meta["hardware"].(map[string]interface{})["gpu"])
	assert.Contains(t, stderr, "inside output")
}

func TestRunCommandUnavailableHandler(t *testing.T) {
	isolate(t)

	stdout, _, err := execute(t, `{"input":{}}`, "run", "--job", "-", "--handler", "rp_handler")
	require.NoError(t, err)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &result), stdout)
	assert.Contains(t, result["error"], "Base handler unavailable")
}

func TestHandlersCommand(t *testing.T) {
	isolate(t)

	stdout, _, err := execute(t, "", "handlers", "--handler", "exec")
	require.NoError(t, err)
	assert.Equal(t, "  echo\n* exec\n  http\n", stdout)
}

func TestLogrotateCommand(t *testing.T) {
	isolate(t)

	stdout, _, err := execute(t, "", "logrotate", "--log-dir", "/srv/worker/logs")
	require.NoError(t, err)
	assert.Contains(t, stdout, "/srv/worker/logs/worker.log {")
}
