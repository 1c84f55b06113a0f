package llm

import (
	"context"
	"errors"
	"math"
	"net"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/genglossary/genglossary/internal/apperr"
)

const (
	anthropicMaxRetries     = 3
	anthropicInitialBackoff = 1 * time.Second
	anthropicMaxTokens      = 4096
)

// AnthropicAdapter implements Client against the Anthropic Messages API,
// carrying over the retry/backoff discipline from
// internal/compact.HaikuClient.callWithRetry: retryable errors (timeouts,
// 429, 5xx) get exponential backoff up to anthropicMaxRetries; everything
// else fails immediately.
type AnthropicAdapter struct {
	client anthropic.Client
	model  anthropic.Model
}

func NewAnthropicAdapter(cfg Config) (*AnthropicAdapter, error) {
	if cfg.APIKey == "" {
		return nil, apperr.Validationf("anthropic adapter requires an API key")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = "claude-3-5-sonnet-20241022"
	}
	return &AnthropicAdapter{
		client: anthropic.NewClient(opts...),
		model:  anthropic.Model(model),
	}, nil
}

func (a *AnthropicAdapter) Generate(ctx context.Context, prompt string) (string, error) {
	return a.callWithRetry(ctx, prompt)
}

// GenerateStructured appends a fixed JSON-only instruction (schema itself
// is not sent); the Anthropic API has no native JSON-schema constraint
// like OpenAI's response_format, so the adapter asks for it in-prompt and
// trusts the executor stage to validate the result.
func (a *AnthropicAdapter) GenerateStructured(ctx context.Context, prompt string, schema map[string]any) (string, error) {
	wrapped := prompt + "\n\nRespond with JSON only, in the shape requested above, no prose, no markdown code fences."
	return a.callWithRetry(ctx, wrapped)
}

func (a *AnthropicAdapter) callWithRetry(ctx context.Context, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: anthropicMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	var lastErr error
	for attempt := 0; attempt <= anthropicMaxRetries; attempt++ {
		if attempt > 0 {
			backoff := anthropicInitialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", apperr.LLMUnavailablef("context cancelled while waiting to retry: %v", ctx.Err())
			}
		}

		message, err := a.client.Messages.New(ctx, params)
		if err == nil {
			if len(message.Content) == 0 {
				return "", apperr.LLMUnavailablef("anthropic response had no content blocks")
			}
			block := message.Content[0]
			if block.Type != "text" {
				return "", apperr.LLMUnavailablef("anthropic response block was not text (type=%s)", block.Type)
			}
			return block.Text, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return "", apperr.LLMUnavailablef("context error: %v", ctx.Err())
		}
		if !isAnthropicRetryable(err) {
			return "", apperr.LLMUnavailablef("anthropic call failed: %v", err)
		}
	}
	return "", apperr.LLMUnavailablef("anthropic call failed after %d attempts: %v", anthropicMaxRetries+1, lastErr)
}

func isAnthropicRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
