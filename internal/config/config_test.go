package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{"corpus":{"path":"faq.csv"}}`))
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, "info", cfg.LogConfig.Level)
	require.Equal(t, "local", cfg.Embed.Provider)
	require.Equal(t, "hash-256", cfg.Embed.Model)
	require.Equal(t, "file", cfg.Cache.Type)
	require.Equal(t, "local", cfg.Cache.FileStore.Type)
	require.Equal(t, 3, cfg.Retrieval.TopK)
	require.InDelta(t, 0.25, cfg.Retrieval.MinScore, 1e-9)
	require.Equal(t, 2, cfg.Completion.MaxRetries)
	require.Equal(t, DefaultInstructions, cfg.Completion.Instructions)
	require.Equal(t, "", cfg.AI.Provider)
	require.Equal(t, 350, cfg.AI.MaxTokens)
}

func TestLoad_ProviderModelDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{"corpus":{"path":"faq.csv"},"ai":{"provider":"OpenAI"},"embed":{"provider":"gemini"}}`))
	require.NoError(t, err)
	require.Equal(t, "openai", cfg.AI.Provider)
	require.Equal(t, "gpt-4o-mini", cfg.AI.Model)
	require.Equal(t, "gemini-embedding-001", cfg.Embed.Model)
}

func TestLoad_NegativeRetriesDisableRetry(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{"corpus":{"path":"faq.csv"},"completion":{"max_retries":-1}}`))
	require.NoError(t, err)
	require.Equal(t, 0, cfg.Completion.MaxRetries)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing corpus", body: `{}`},
		{name: "bad cache type", body: `{"corpus":{"path":"a.csv"},"cache":{"type":"redis"}}`},
		{name: "postgres without host", body: `{"corpus":{"path":"a.csv"},"cache":{"type":"postgres"}}`},
		{name: "unknown provider without model", body: `{"corpus":{"path":"a.csv"},"ai":{"provider":"custom"}}`},
		{name: "broken json", body: `{"corpus":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}
