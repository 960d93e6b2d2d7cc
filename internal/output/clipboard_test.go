package output

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rbright/vochat/internal/config"
	"github.com/stretchr/testify/require"
)

func TestRunCommandWithInputWritesStdin(t *testing.T) {
	scriptPath := writeStdinCaptureScript(t)
	outputPath := filepath.Join(t.TempDir(), "stdin.txt")

	err := runCommandWithInput(context.Background(), []string{scriptPath, outputPath}, "hello from vochat")
	require.NoError(t, err)

	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	require.Equal(t, "hello from vochat", string(data))
}

func TestRunCommandWithInputRejectsEmptyArgv(t *testing.T) {
	err := runCommandWithInput(context.Background(), nil, "payload")
	require.ErrorContains(t, err, "argv cannot be empty")
}

func TestClipboardCopyWritesReply(t *testing.T) {
	scriptPath := writeStdinCaptureScript(t)
	clipboardPath := filepath.Join(t.TempDir(), "clipboard.txt")

	clip := NewClipboard(config.CommandConfig{Argv: []string{scriptPath, clipboardPath}})
	require.NoError(t, clip.Copy(context.Background(), "Paris is the capital of France."))

	data, err := os.ReadFile(clipboardPath)
	require.NoError(t, err)
	require.Equal(t, "Paris is the capital of France.", string(data))
}

func TestClipboardCopySkipsEmptyReply(t *testing.T) {
	scriptPath := writeStdinCaptureScript(t)
	clipboardPath := filepath.Join(t.TempDir(), "clipboard.txt")

	clip := NewClipboard(config.CommandConfig{Argv: []string{scriptPath, clipboardPath}})
	require.ErrorIs(t, clip.Copy(context.Background(), "  "), ErrNothingToCopy)

	_, statErr := os.Stat(clipboardPath)
	require.True(t, os.IsNotExist(statErr))
}

func TestClipboardCopyReportsCommandFailure(t *testing.T) {
	clip := NewClipboard(config.CommandConfig{Argv: []string{writeFailScript(t, "clipboard failed")}})

	err := clip.Copy(context.Background(), "reply")
	require.ErrorContains(t, err, "set clipboard")
	require.ErrorContains(t, err, "clipboard failed")
}

func writeStdinCaptureScript(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "capture-stdin.sh")
	script := "#!/usr/bin/env bash\nset -euo pipefail\ncat > \"$1\"\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func writeFailScript(t *testing.T, message string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fail.sh")
	script := "#!/usr/bin/env bash\nset -euo pipefail\necho \"" + message + "\" >&2\nexit 1\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}
