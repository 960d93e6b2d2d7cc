// Package output copies the latest reply to the system clipboard.
package output

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/vochat/internal/config"
)

// ErrNothingToCopy is returned when there is no reply text yet.
var ErrNothingToCopy = errors.New("no reply to copy")

const copyTimeout = 2 * time.Second

// Clipboard pipes text into the configured clipboard command.
type Clipboard struct {
	argv []string
}

// NewClipboard builds a clipboard writer from clipboard_cmd.
func NewClipboard(cmd config.CommandConfig) *Clipboard {
	return &Clipboard{argv: append([]string(nil), cmd.Argv...)}
}

// Copy writes text to the clipboard command's stdin.
func (c *Clipboard) Copy(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrNothingToCopy
	}

	ctx, cancel := context.WithTimeout(ctx, copyTimeout)
	defer cancel()
	if err := runCommandWithInput(ctx, c.argv, text); err != nil {
		return fmt.Errorf("set clipboard: %w", err)
	}
	return nil
}

// runCommandWithInput executes argv with input on stdin.
func runCommandWithInput(ctx context.Context, argv []string, input string) error {
	if len(argv) == 0 {
		return fmt.Errorf("command argv cannot be empty")
	}

	var stderr strings.Builder
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = strings.NewReader(input)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("run %s: %w: %s", argv[0], err, msg)
		}
		return fmt.Errorf("run %s: %w", argv[0], err)
	}
	return nil
}
