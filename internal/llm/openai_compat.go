package llm

import (
	"context"

	"github.com/genglossary/genglossary/internal/apperr"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAICompatAdapter implements Client against any OpenAI-compatible
// chat-completions endpoint (spec §6 "an OpenAI-compatible variant"),
// using the same library other_examples' manifests use for this role.
type OpenAICompatAdapter struct {
	client *openai.Client
	model  string
}

func NewOpenAICompatAdapter(cfg Config) (*OpenAICompatAdapter, error) {
	if cfg.Model == "" {
		return nil, apperr.Validationf("openai-compatible adapter requires a model name")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAICompatAdapter{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}, nil
}

func (o *OpenAICompatAdapter) Generate(ctx context.Context, prompt string) (string, error) {
	return o.chat(ctx, prompt, false)
}

func (o *OpenAICompatAdapter) GenerateStructured(ctx context.Context, prompt string, schema map[string]any) (string, error) {
	return o.chat(ctx, prompt, true)
}

func (o *OpenAICompatAdapter) chat(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", apperr.LLMUnavailablef("openai-compatible call failed: %v", err)
	}
	if len(resp.Choices) == 0 {
		return "", apperr.LLMUnavailablef("openai-compatible response had no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
