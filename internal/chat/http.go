package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rbright/vochat/internal/version"
)

type promptRequest struct {
	Prompt string `json:"prompt"`
}

type promptResponse struct {
	Response string `json:"response"`
	Message  string `json:"message"`
}

// HTTPClient posts one prompt per turn to a fixed chat endpoint.
type HTTPClient struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// NewHTTPClient builds a client for endpoint. A zero timeout means none.
func NewHTTPClient(endpoint string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   orDiscard(logger),
	}
}

// Reply sends message and returns the backend's reply text.
func (c *HTTPClient) Reply(ctx context.Context, message string) (string, error) {
	prompt := strings.TrimSpace(message)
	if prompt == "" {
		return "", ErrEmptyMessage
	}

	turn := newTurnID()
	logger := c.logger.With("turn", turn, "backend", "http")
	started := time.Now()

	body, err := json.Marshal(promptRequest{Prompt: prompt})
	if err != nil {
		return "", &TransportError{Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	logger.Debug("chat request", "prompt_chars", len(prompt))
	resp, err := c.client.Do(req)
	if err != nil {
		logger.Error("chat request failed", "error", err.Error())
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	var payload promptResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&payload)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if decodeErr != nil {
			logger.Error("chat error body undecodable", "status", resp.StatusCode, "error", decodeErr.Error())
			return "", &TransportError{Err: fmt.Errorf("decode error body (status %d): %w", resp.StatusCode, decodeErr)}
		}
		logger.Warn("chat backend error", "status", resp.StatusCode, "message", payload.Message)
		return "", &ServerError{Status: resp.StatusCode, Message: payload.Message}
	}
	if decodeErr != nil {
		logger.Error("chat reply undecodable", "status", resp.StatusCode, "error", decodeErr.Error())
		return "", &TransportError{Err: fmt.Errorf("decode reply: %w", decodeErr)}
	}

	logger.Info("chat reply",
		"status", resp.StatusCode,
		"reply_chars", len(payload.Response),
		"elapsed_ms", time.Since(started).Milliseconds(),
	)
	return payload.Response, nil
}
