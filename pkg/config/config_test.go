package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realtime-ai/realtime-coach/pkg/trace"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 8*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, trace.ExporterNone, cfg.Trace.Exporter)
	assert.NoError(t, cfg.Validate())
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "coachd.yaml", `
llm:
  model: gpt-4.1-mini
  timeout: 3s
  temperature: 0.2
coach:
  system_prompt: "Be brief."
server:
  listen_addr: ":9090"
  stream_url: wss://coach.example.com/media
trace:
  exporter: stdout
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1-mini", cfg.LLM.Model)
	assert.Equal(t, 3*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 0.2, cfg.LLM.Temperature)
	assert.Equal(t, int64(400), cfg.LLM.MaxTokens)
	assert.Equal(t, ":9090", cfg.Server.ListenAddr)
	assert.Equal(t, "stdout", cfg.TracingConfig().ExporterType)

	prompt, err := cfg.SystemPrompt()
	require.NoError(t, err)
	assert.Equal(t, "Be brief.", prompt)
	assert.NoError(t, cfg.RequireServer())
}

func TestLoadRejectsUnknownYAMLKeys(t *testing.T) {
	path := writeFile(t, "coachd.yaml", "llm:\n  modle: typo\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeFile(t, "coachd.yaml", "llm:\n  model: from-file\n")
	t.Setenv("COACH_MODEL", "from-env")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("COACH_LLM_TIMEOUT", "1500ms")
	t.Setenv("TRACE_EXPORTER", "otlp")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.LLM.Model)
	assert.Equal(t, 1500*time.Millisecond, cfg.LLM.Timeout)
	assert.Equal(t, "collector:4317", cfg.Trace.OTLPEndpoint)
	assert.NoError(t, cfg.RequireLLM())
	assert.NoError(t, cfg.Validate())
}

func TestBadEnvironmentValue(t *testing.T) {
	t.Setenv("COACH_LLM_TIMEOUT", "soon")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COACH_LLM_TIMEOUT")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.LLM.Model = ""
	cfg.LLM.Timeout = 0
	cfg.Trace.Exporter = "jaeger"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.model")
	assert.Contains(t, err.Error(), "llm.timeout")
	assert.Contains(t, err.Error(), "trace.exporter")
}

func TestRequireLLM(t *testing.T) {
	cfg := Default()
	assert.ErrorIs(t, cfg.RequireLLM(), ErrMissingAPIKey)
}

func TestRequireServer(t *testing.T) {
	cfg := Default()
	cfg.Server.StreamURL = "https://example.com/media"
	assert.Error(t, cfg.RequireServer())
}

func TestSystemPromptFile(t *testing.T) {
	cfg := Default()
	cfg.Coach.SystemPromptFile = writeFile(t, "prompt.txt", "  Coach the rep.\n")
	prompt, err := cfg.SystemPrompt()
	require.NoError(t, err)
	assert.Equal(t, "Coach the rep.", prompt)
}

func TestIdleTimeout(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, cfg.Coach.IdleTimeout)

	cfg, err = Load(writeFile(t, "coachd.yaml", "coach:\n  idle_timeout: 5m\n"))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.Coach.IdleTimeout)

	t.Setenv("COACH_IDLE_TIMEOUT", "-1m")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.ErrorContains(t, cfg.Validate(), "coach.idle_timeout")

	t.Setenv("COACH_IDLE_TIMEOUT", "soon")
	_, err = Load("")
	assert.ErrorContains(t, err, "COACH_IDLE_TIMEOUT")
}
