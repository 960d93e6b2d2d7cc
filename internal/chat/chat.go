// Package chat sends one prompt per turn to the configured chat backend.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rbright/vochat/internal/config"
	"github.com/rbright/vochat/internal/logging"
)

// Replier answers a single prompt.
type Replier interface {
	Reply(ctx context.Context, message string) (string, error)
}

// New selects the backend named by cfg.Backend.
func New(cfg config.ChatConfig, openAIKey string, logger *slog.Logger) (Replier, error) {
	switch cfg.Backend {
	case "http":
		return NewHTTPClient(cfg.Endpoint, time.Duration(cfg.TimeoutMS)*time.Millisecond, logger), nil
	case "openai":
		if openAIKey == "" {
			return nil, fmt.Errorf("chat.backend=openai requires OPENAI_API_KEY")
		}
		return NewOpenAIClient(OpenAIOptions{
			APIKey:       openAIKey,
			BaseURL:      cfg.OpenAIBaseURL,
			Model:        cfg.OpenAIModel,
			SystemPrompt: cfg.SystemPrompt,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unsupported chat backend %q", cfg.Backend)
	}
}

func newTurnID() string {
	return ulid.Make().String()
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return logging.Discard()
	}
	return logger
}
