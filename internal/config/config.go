// Package config loads layered TOML configuration (spec §4.13), adapted
// from the teacher's viper precedence chain to TOML and to the handful
// of settings this pipeline actually needs: default LLM provider/model
// and the per-stage batch size.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// Config is the resolved, typed view of settings after precedence
// resolution. Call Load to obtain one.
type Config struct {
	LLMProvider string
	LLMModel    string
	LLMBaseURL  string
	LLMAPIKey   string
	LLMTimeout  time.Duration
	BatchSize   int
	HTTPAddr    string

	source     ConfigSource
	sourceFile string
}

// ConfigSource records where the effective configuration came from.
type ConfigSource string

const (
	SourceDefault    ConfigSource = "default"
	SourceConfigFile ConfigSource = "config_file"
	SourceEnvVar     ConfigSource = "env_var"
)

// Load resolves configuration with precedence (highest first): environment
// (GENGLOSSARY_ prefix, "."/"-" mapped to "_") > config file > defaults.
// Only one config file is read: the first that exists of project
// .genglossary/config.toml, $XDG_CONFIG_HOME/genglossary/config.toml and
// ~/.genglossary/config.toml. projectDir is the directory to search
// upward from for a project-local config file; pass "" to skip it.
func Load(projectDir string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.model", "claude-3-5-haiku-20241022")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("pipeline.batch_size", 10)
	v.SetDefault("http.addr", "127.0.0.1:7777")

	v.SetEnvPrefix("GENGLOSSARY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	cfg := &Config{source: SourceDefault}

	configFile := findConfigFile(projectDir)
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
		cfg.source = SourceConfigFile
		cfg.sourceFile = configFile
	}

	cfg.LLMProvider = v.GetString("llm.provider")
	cfg.LLMModel = v.GetString("llm.model")
	cfg.LLMBaseURL = v.GetString("llm.base_url")
	cfg.LLMAPIKey = v.GetString("llm.api_key")
	cfg.LLMTimeout = v.GetDuration("llm.timeout")
	cfg.BatchSize = v.GetInt("pipeline.batch_size")
	cfg.HTTPAddr = v.GetString("http.addr")

	if anyGenglossaryEnvSet() {
		cfg.source = SourceEnvVar
	}

	return cfg, nil
}

// Source reports where the effective configuration was resolved from,
// for diagnostics (e.g. `genglossary project show` can print it).
func (c *Config) Source() (ConfigSource, string) {
	return c.source, c.sourceFile
}

func anyGenglossaryEnvSet() bool {
	for _, e := range os.Environ() {
		if strings.HasPrefix(e, "GENGLOSSARY_") {
			return true
		}
	}
	return false
}

// fileConfig mirrors the TOML table layout Load reads back with viper;
// kept as a distinct struct (rather than reusing Config) so the written
// file's shape is decoupled from Config's internal bookkeeping fields.
type fileConfig struct {
	LLM struct {
		Provider string `toml:"provider"`
		Model    string `toml:"model"`
		BaseURL  string `toml:"base_url"`
		APIKey   string `toml:"api_key"`
		Timeout  string `toml:"timeout"`
	} `toml:"llm"`
	Pipeline struct {
		BatchSize int `toml:"batch_size"`
	} `toml:"pipeline"`
	HTTP struct {
		Addr string `toml:"addr"`
	} `toml:"http"`
}

// WriteDefault scaffolds a starter .genglossary/config.toml at path with
// llmProvider/llmModel filled in and every other field left at its
// documented default, for `genglossary project create` to hand new users
// an editable file instead of an opaque set of flags. It refuses to
// overwrite an existing file.
func WriteDefault(path, llmProvider, llmModel string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}

	var fc fileConfig
	fc.LLM.Provider = llmProvider
	fc.LLM.Model = llmModel
	fc.LLM.Timeout = "60s"
	fc.Pipeline.BatchSize = 10
	fc.HTTP.Addr = "127.0.0.1:7777"

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(fc)
}

// findConfigFile walks the precedence chain and returns the first config
// file that exists, or "" if none do.
func findConfigFile(projectDir string) string {
	if projectDir != "" {
		for dir := projectDir; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			path := filepath.Join(dir, ".genglossary", "config.toml")
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		path := filepath.Join(xdg, "genglossary", "config.toml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, ".genglossary", "config.toml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}
