package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadUsesDefaultsWhenNothingConfigured(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "anthropic", cfg.LLMProvider)
	require.Equal(t, 10, cfg.BatchSize)
	source, _ := cfg.Source()
	require.Equal(t, SourceDefault, source)
}

func TestLoadPrefersProjectLocalConfig(t *testing.T) {
	xdgDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdgDir)
	t.Setenv("HOME", t.TempDir())

	projectDir := t.TempDir()
	cfgDir := filepath.Join(projectDir, ".genglossary")
	require.NoError(t, os.MkdirAll(cfgDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfgDir, "config.toml"),
		[]byte("[llm]\nprovider = \"ollama\"\nmodel = \"llama3\"\n"), 0o644))

	cfg, err := Load(projectDir)
	require.NoError(t, err)
	require.Equal(t, "ollama", cfg.LLMProvider)
	require.Equal(t, "llama3", cfg.LLMModel)
	source, file := cfg.Source()
	require.Equal(t, SourceConfigFile, source)
	require.Contains(t, file, ".genglossary")
}

func TestLoadEnvVarOverridesConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GENGLOSSARY_LLM_PROVIDER", "openai")

	projectDir := t.TempDir()
	cfgDir := filepath.Join(projectDir, ".genglossary")
	require.NoError(t, os.MkdirAll(cfgDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfgDir, "config.toml"),
		[]byte("[llm]\nprovider = \"ollama\"\n"), 0o644))

	cfg, err := Load(projectDir)
	require.NoError(t, err)
	require.Equal(t, "openai", cfg.LLMProvider)
	source, _ := cfg.Source()
	require.Equal(t, SourceEnvVar, source)
}
