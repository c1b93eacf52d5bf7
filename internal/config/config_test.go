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
	chdir(t, t.TempDir())
	t.Setenv("WORKFLOW_URL", "http://workflow.local/hook")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "memory", cfg.LiveBackend)
	assert.Equal(t, "workflow", cfg.InferenceBackend)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
	assert.Equal(t, 50, cfg.HistoryLimit)
}

func TestLoad_RejectsUnknownBackends(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("WORKFLOW_URL", "http://workflow.local/hook")
	t.Setenv("LIVE_BACKEND", "kafka")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LIVE_BACKEND")
}

func TestLoad_WorkflowNeedsURL(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("WORKFLOW_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WORKFLOW_URL")
}

func TestLoad_ReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("INFERENCE_BACKEND=llm\nOPENAI_API_KEY=sk-test\nPORT=9090\n"), 0o600))
	unsetEnv(t, "PORT", "INFERENCE_BACKEND", "OPENAI_API_KEY", "WORKFLOW_URL")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, "llm", cfg.InferenceBackend)
}

func TestLoadClient_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
gateway_url = "http://file.example:8080"
log_level = "debug"
`), 0o600))
	t.Setenv("CHAT_GATEWAY_URL", "http://env.example:8080")

	cfg, err := LoadClient(path)
	require.NoError(t, err)
	assert.Equal(t, "http://env.example:8080", cfg.GatewayURL)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.NotEmpty(t, cfg.TokenFile)
}

func TestLoadClient_MissingFile(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CHAT_GATEWAY_URL", "")

	cfg, err := LoadClient(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", cfg.GatewayURL)
}

// unsetEnv removes keys for the duration of the test; t.Setenv restores them.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestConfig_LLMProvider(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		provider string
		key      string
	}{
		{"base url wins", Config{OpenAIBaseURL: "http://localhost:11434/v1", OpenAIAPIKey: "k", AnthropicAPIKey: "a"}, "compatible", "k"},
		{"default anthropic", Config{DefaultLLM: "anthropic", AnthropicAPIKey: "a", OpenAIAPIKey: "o"}, "anthropic", "a"},
		{"default openai", Config{DefaultLLM: "openai", AnthropicAPIKey: "a", OpenAIAPIKey: "o"}, "openai", "o"},
		{"openai without its key", Config{DefaultLLM: "openai", AnthropicAPIKey: "a"}, "anthropic", "a"},
		{"only openai key", Config{DefaultLLM: "anthropic", OpenAIAPIKey: "o"}, "openai", "o"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, key := tt.cfg.LLMProvider()
			assert.Equal(t, tt.provider, provider)
			assert.Equal(t, tt.key, key)
		})
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (stand-in for testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
