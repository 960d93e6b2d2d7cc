package pipeline

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/rbright/vochat/internal/audio"
	"github.com/rbright/vochat/internal/config"
	"github.com/stretchr/testify/require"
)

func TestDescribeDevice(t *testing.T) {
	require.Equal(t, "Elgato (alsa_input.wave3)", describeDevice(audio.Device{Description: "Elgato", ID: "alsa_input.wave3"}))
	require.Equal(t, "Elgato", describeDevice(audio.Device{Description: "Elgato"}))
	require.Equal(t, "alsa_input.wave3", describeDevice(audio.Device{ID: "alsa_input.wave3"}))
}

func TestResolveStateDir(t *testing.T) {
	xdgStateHome := t.TempDir()
	t.Setenv("XDG_STATE_HOME", xdgStateHome)
	dir, err := resolveStateDir()
	require.NoError(t, err)
	require.Equal(t, xdgStateHome, dir)

	home := t.TempDir()
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("HOME", home)
	dir, err = resolveStateDir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".local", "state"), dir)
}

func TestCreateDebugFileCreatesPrivateFile(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	file, err := createDebugFile("stream", "jsonl")
	require.NoError(t, err)
	path := file.Name()
	require.NoError(t, file.Close())

	sep := string(filepath.Separator)
	require.Contains(t, path, sep+"vochat"+sep+"debug"+sep)
	require.Contains(t, filepath.Base(path), "stream-")
	require.Equal(t, ".jsonl", filepath.Ext(path))

	stat, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), stat.Mode().Perm())
}

func TestWritePCM16WAVHeader(t *testing.T) {
	var buf bytes.Buffer
	pcm := []byte{0x01, 0x00, 0xFF, 0x7F}
	require.NoError(t, writePCM16WAV(&buf, pcm, 16000, 0))

	data := buf.Bytes()
	require.Len(t, data, 44+len(pcm))
	require.Equal(t, "RIFF", string(data[0:4]))
	require.Equal(t, uint32(36+len(pcm)), binary.LittleEndian.Uint32(data[4:8]))
	require.Equal(t, "WAVE", string(data[8:12]))
	require.Equal(t, "fmt ", string(data[12:16]))
	require.Equal(t, uint16(1), binary.LittleEndian.Uint16(data[22:24]))
	require.Equal(t, uint32(16000), binary.LittleEndian.Uint32(data[24:28]))
	require.Equal(t, uint32(32000), binary.LittleEndian.Uint32(data[28:32]))
	require.Equal(t, "data", string(data[36:40]))
	require.Equal(t, uint32(len(pcm)), binary.LittleEndian.Uint32(data[40:44]))
	require.Equal(t, pcm, data[44:])
}

func TestWriteDebugAudioHonorsConfig(t *testing.T) {
	for _, enabled := range []bool{true, false} {
		xdgStateHome := t.TempDir()
		t.Setenv("XDG_STATE_HOME", xdgStateHome)

		cfg := config.Default()
		cfg.Debug.EnableAudioDump = enabled
		NewListener(cfg, nil, nil).writeDebugAudio([]byte{0x01, 0x00, 0x02, 0x00})

		matches, err := filepath.Glob(filepath.Join(xdgStateHome, "vochat", "debug", "audio-*.wav"))
		require.NoError(t, err)
		if enabled {
			require.Len(t, matches, 1)
		} else {
			require.Empty(t, matches)
		}
	}
}
