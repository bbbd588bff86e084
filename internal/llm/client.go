// Package llm wraps the chat-completion provider behind a small interface so
// the generator and classifier can be tested with substitute collaborators.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Completer is the single-call, non-streaming completion contract.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// CompletionRequest carries one system instruction and one user instruction.
type CompletionRequest struct {
	System      string
	User        string
	Temperature float32
	MaxTokens   int
}

// Client calls an OpenAI-compatible chat-completions API. DeepSeek exposes the
// same wire format, so the base URL selects the provider.
type Client struct {
	client     *openai.Client
	model      string
	maxRetries int
}

// retryBackoff separates consecutive attempts against the provider.
const retryBackoff = 500 * time.Millisecond

func NewClient(apiKey, model, baseURL string, timeout time.Duration, maxRetries int) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if timeout > 0 {
		config.HTTPClient = &http.Client{Timeout: timeout}
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		client:     openai.NewClientWithConfig(config),
		model:      model,
		maxRetries: maxRetries,
	}
}

func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	messages := []openai.ChatCompletionMessage{}
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.User,
	})

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(retryBackoff):
			}
		}

		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.model,
			Messages:    messages,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		})
		if err != nil {
			lastErr = err
			continue
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("no response choices")
		}
		return resp.Choices[0].Message.Content, nil
	}
	return "", lastErr
}
