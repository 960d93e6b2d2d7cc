package chat

import (
	"errors"
	"fmt"
)

// User-facing error texts shown on the widget error line.
const (
	EmptyMessageText = "Please enter or say something before sending."
	FailedText       = "Failed to send message."
	RetryText        = "Failed to send message. Please try again."
)

// ErrEmptyMessage rejects empty or whitespace-only prompts before any network call.
var ErrEmptyMessage = errors.New("empty chat message")

// ServerError is a non-success reply from the chat backend.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("chat backend returned status %d", e.Status)
	}
	return fmt.Sprintf("chat backend returned status %d: %s", e.Status, e.Message)
}

// TransportError covers network failures and undecodable replies.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "chat transport: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DisplayMessage maps a Reply error onto the text shown to the user.
func DisplayMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrEmptyMessage) {
		return EmptyMessageText
	}

	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		if serverErr.Message != "" {
			return serverErr.Message
		}
		return FailedText
	}
	return RetryText
}
