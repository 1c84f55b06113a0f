package llm

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/genglossary/genglossary/internal/apperr"
	"github.com/ollama/ollama/api"
)

// OllamaAdapter implements Client against a local Ollama server,
// continuing internal/extractor/ollama.go's client-construction and
// JSON-mode idiom (api.ClientFromEnvironment, Format: "json", response
// fence stripping via cleanJSON).
type OllamaAdapter struct {
	client  *api.Client
	model   string
	timeout time.Duration
}

func NewOllamaAdapter(cfg Config) (*OllamaAdapter, error) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, apperr.LLMUnavailablef("creating ollama client: %v", err)
	}
	model := cfg.Model
	if model == "" {
		model = "llama3.2:3b"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &OllamaAdapter{client: client, model: model, timeout: timeout}, nil
}

func (o *OllamaAdapter) Generate(ctx context.Context, prompt string) (string, error) {
	return o.generate(ctx, prompt, "")
}

func (o *OllamaAdapter) GenerateStructured(ctx context.Context, prompt string, schema map[string]any) (string, error) {
	return o.generate(ctx, prompt, `"json"`)
}

func (o *OllamaAdapter) generate(ctx context.Context, prompt string, format string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	if !o.available(ctx) {
		return "", apperr.LLMUnavailablef("ollama service not reachable")
	}

	req := &api.GenerateRequest{
		Model:  o.model,
		Prompt: prompt,
		Stream: new(bool),
	}
	if format != "" {
		req.Format = json.RawMessage(format)
	}

	var respText string
	err := o.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		respText = resp.Response
		return nil
	})
	if err != nil {
		return "", apperr.LLMUnavailablef("ollama generation failed: %v", err)
	}
	return cleanJSON(respText), nil
}

func (o *OllamaAdapter) available(ctx context.Context) bool {
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := o.client.List(checkCtx)
	return err == nil
}

// cleanJSON strips Markdown code fences an instruction-tuned model
// sometimes wraps its JSON output in, per internal/extractor/ollama.go.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
