package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient answers a single prompt through a streamed chat completion.
// No history is kept between turns.
type OpenAIClient struct {
	client       *openai.Client
	model        string
	systemPrompt string
	logger       *slog.Logger
}

// OpenAIOptions configures NewOpenAIClient. An empty BaseURL keeps the public API.
type OpenAIOptions struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
}

// NewOpenAIClient builds a go-openai backed client.
func NewOpenAIClient(opts OpenAIOptions, logger *slog.Logger) *OpenAIClient {
	cfg := openai.DefaultConfig(opts.APIKey)
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		cfg.BaseURL = strings.TrimRight(base, "/")
	}
	return &OpenAIClient{
		client:       openai.NewClientWithConfig(cfg),
		model:        opts.Model,
		systemPrompt: opts.SystemPrompt,
		logger:       orDiscard(logger),
	}
}

// Reply streams a completion for message and returns the accumulated text.
func (c *OpenAIClient) Reply(ctx context.Context, message string) (string, error) {
	prompt := strings.TrimSpace(message)
	if prompt == "" {
		return "", ErrEmptyMessage
	}

	logger := c.logger.With("turn", newTurnID(), "backend", "openai", "model", c.model)
	started := time.Now()

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if strings.TrimSpace(c.systemPrompt) != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: c.systemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		logger.Error("chat completion failed", "error", err.Error())
		return "", classifyOpenAIError(err)
	}
	defer stream.Close()

	var reply strings.Builder
	chunks := 0
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Error("chat completion stream failed", "chunks", chunks, "error", err.Error())
			return "", classifyOpenAIError(err)
		}
		chunks++
		if len(resp.Choices) > 0 {
			reply.WriteString(resp.Choices[0].Delta.Content)
		}
	}

	logger.Info("chat reply",
		"chunks", chunks,
		"reply_chars", reply.Len(),
		"elapsed_ms", time.Since(started).Milliseconds(),
	)
	return reply.String(), nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ServerError{Status: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ServerError{Status: reqErr.HTTPStatusCode}
	}
	return &TransportError{Err: err}
}
