package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/atomic"

	"Tale-Weaver/server/internal/config"
	"Tale-Weaver/server/internal/models"
)

const (
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	maxRetries        = 3
	retryDelay        = 1 * time.Second
)

// ModelClient is the chat-completion capability the session depends on.
// A failed call reports ErrUnavailable; the caller substitutes a
// user-visible diagnostic and leaves the history untouched.
type ModelClient interface {
	Complete(ctx context.Context, systemPrompt string, history []models.Turn, prompt string) (string, error)
}

// OpenRouterClient talks to the OpenRouter chat-completions API through
// the OpenAI-compatible client.
type OpenRouterClient struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration

	calls atomic.Int64
}

func NewOpenRouterClient(cfg config.OpenRouterConfig) *OpenRouterClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL
	if clientCfg.BaseURL == "" {
		clientCfg.BaseURL = openRouterBaseURL
	}

	return &OpenRouterClient{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
	}
}

// Calls reports how many upstream requests have been attempted.
func (c *OpenRouterClient) Calls() int64 {
	return c.calls.Load()
}

// Complete sends the system prompt, the (already compacted) history and
// the player prompt upstream and returns the sanitized reply text. The
// call runs under a bounded timeout and retries transient failures.
func (c *OpenRouterClient) Complete(ctx context.Context, systemPrompt string, history []models.Turn, prompt string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	for _, turn := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(turn.Role),
			Content: turn.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%v: %w", ctx.Err(), models.ErrUnavailable)
			case <-time.After(retryDelay * time.Duration(attempt)):
			}
		}

		c.calls.Inc()
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.model,
			Messages:    messages,
			MaxTokens:   c.maxTokens,
			Temperature: c.temperature,
		})
		if err == nil {
			if len(resp.Choices) == 0 {
				return "", fmt.Errorf("no choices returned: %w", models.ErrUnavailable)
			}
			return SanitizeReply(resp.Choices[0].Message.Content), nil
		}

		lastErr = err
		if !isRetryable(err) {
			break
		}
		log.Printf("[ModelClient] attempt %d failed: %v", attempt+1, err)
	}

	return "", fmt.Errorf("chat completion failed: %w: %w", lastErr, models.ErrUnavailable)
}

// isRetryable treats rate limiting and upstream 5xx as transient; auth
// and quota failures are final.
func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500
	}
	// Transport-level failures (timeouts, refused connections).
	return true
}

// Diagnose turns a failed model call into the user-facing text shown in
// place of a reply. The text is never persisted as a turn.
func Diagnose(err error) string {
	status := 0
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		status = apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if status == 0 && errors.As(err, &reqErr) {
		status = reqErr.HTTPStatusCode
	}

	switch status {
	case 402:
		return "💳 **Payment error**: your OpenRouter account is out of credits or over its limit. Top up at https://openrouter.ai/"
	case 401:
		return "🔑 **Authorization error**: check your OpenRouter API key"
	case 0:
		return fmt.Sprintf("Error: %v", err)
	default:
		return fmt.Sprintf("⚠️ **API error**: %d - %v", status, err)
	}
}
