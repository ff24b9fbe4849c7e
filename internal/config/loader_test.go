package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Logging.Redact)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "medical_knowledge", cfg.Knowledge.Collection)
	assert.Equal(t, "chromem", cfg.Knowledge.Backend)
	assert.InDelta(t, 0.7, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, 1024, cfg.LLM.MaxTokens)
	assert.Equal(t, 5, cfg.LLM.MaxToolIterations)
	assert.Equal(t, 50, cfg.Session.MaxTurns)
	assert.Equal(t, 30*time.Minute, cfg.Session.TTL.Duration())
	assert.Equal(t, time.Minute, cfg.Scheduler.Interval.Duration())
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Empty(t, cfg.Notify.NATSURL)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "medassistd.yaml")
	content := `
server:
  port: 9999

llm:
  model: custom-model
  max_tool_iterations: 3

session:
  max_turns: 10
  ttl: 1h
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "custom-model", cfg.LLM.Model)
	assert.Equal(t, 3, cfg.LLM.MaxToolIterations)
	assert.Equal(t, 10, cfg.Session.MaxTurns)
	assert.Equal(t, time.Hour, cfg.Session.TTL.Duration())
	// Untouched keys keep defaults.
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "medassistd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9999\n"), 0600))

	t.Setenv("MEDASSISTD_SERVER_PORT", "7070")
	t.Setenv("MEDASSISTD_LLM_API_KEY", "sk-test-123")
	t.Setenv("MEDASSISTD_SESSION_MAX_TURNS", "12")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "sk-test-123", cfg.LLM.APIKey.Value())
	assert.Equal(t, 12, cfg.Session.MaxTurns)
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoad_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not: a map"), 0600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_OversizedFileRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "huge.yaml")
	big := make([]byte, maxConfigFileSize+1)
	for i := range big {
		big[i] = '#'
	}
	require.NoError(t, os.WriteFile(path, big, 0600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestEnvTransform(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"MEDASSISTD_SERVER_PORT", "server.port"},
		{"MEDASSISTD_LLM_API_KEY", "llm.api_key"},
		{"MEDASSISTD_SESSION_MAX_TURNS", "session.max_turns"},
		{"MEDASSISTD_DATABASE_URL", "database.url"},
		{"MEDASSISTD_NOTIFY_NATS_URL", "notify.nats_url"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, envTransform(tt.in))
		})
	}
}
