package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseArgvClipboardCommands(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr string
	}{
		{name: "blank disables copy", input: "   ", want: nil},
		{name: "xclip", input: "xclip -selection clipboard", want: []string{"xclip", "-selection", "clipboard"}},
		{name: "wrapper script with spaced path", input: `"/opt/my tools/copy" --reply`, want: []string{"/opt/my tools/copy", "--reply"}},
		{name: "sh -c snippet", input: `sh -c 'tee /tmp/vochat-reply | wl-copy'`, want: []string{"sh", "-c", "tee /tmp/vochat-reply | wl-copy"}},
		{name: "escaped space", input: `copy\ reply --quiet`, want: []string{"copy reply", "--quiet"}},
		{name: "commented out", input: `# pbcopy`, want: nil},
		{name: "unterminated quote", input: `xclip "oops`, wantErr: "unterminated quote"},
		{name: "unterminated escape", input: `xclip oops\`, wantErr: "unterminated escape"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseArgv(tc.input)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestDefaultClipboardArgvRoundTrips(t *testing.T) {
	cfg := Default()
	require.Equal(t, "wl-copy --trim-newline", cfg.Clipboard.Raw)

	argv, err := parseArgv(cfg.Clipboard.Raw)
	require.NoError(t, err)
	require.Equal(t, []string{"wl-copy", "--trim-newline"}, argv)
	require.Equal(t, argv, cfg.Clipboard.Argv)
}

func TestClipboardOverrideReplacesDefaultArgv(t *testing.T) {
	cfg, _, err := parseJSONC(`{"clipboard_cmd": "wl-copy --type 'text/plain'"}`, Default())
	require.NoError(t, err)
	require.Equal(t, []string{"wl-copy", "--type", "text/plain"}, cfg.Clipboard.Argv)
}

func TestMustParseArgvPanicsOnInvalidInput(t *testing.T) {
	require.Panics(t, func() {
		_ = mustParseArgv(`wl-copy "unterminated`)
	})
}
