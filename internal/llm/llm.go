// Package llm defines the pluggable LLM collaborator interface from spec
// §6 ("Two operations: generate(prompt) → text and generateStructured
// (prompt, schema) → object") and the adapters that implement it against
// Anthropic, Ollama, and any OpenAI-compatible endpoint. Only the
// Anthropic adapter retries with backoff (generalized from the teacher's
// internal/compact.HaikuClient.callWithRetry); the Ollama and
// OpenAI-compatible adapters make a single call.
package llm

import (
	"context"
	"time"

	"github.com/genglossary/genglossary/internal/apperr"
)

// Config is the shared adapter configuration from spec §6.
type Config struct {
	Provider string // "anthropic", "ollama", "openai_compatible"
	Model    string
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
}

// Client is the LLM collaborator interface every adapter implements.
type Client interface {
	// Generate returns the model's raw text completion for prompt.
	Generate(ctx context.Context, prompt string) (string, error)
	// GenerateStructured returns a completion requested in JSON mode; the
	// adapter does not validate it against schema, so callers unmarshal
	// and check the result themselves. schema is a JSON-Schema-shaped map,
	// as produced by the executor stages in internal/executor.
	GenerateStructured(ctx context.Context, prompt string, schema map[string]any) (string, error)
}

// New builds the adapter named by cfg.Provider.
func New(cfg Config) (Client, error) {
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicAdapter(cfg)
	case "ollama":
		return NewOllamaAdapter(cfg)
	case "openai_compatible":
		return NewOpenAICompatAdapter(cfg)
	default:
		return nil, apperr.Validationf("unsupported llm provider %q", cfg.Provider)
	}
}
