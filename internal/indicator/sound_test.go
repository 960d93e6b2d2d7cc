package indicator

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rbright/vochat/internal/config"
	"github.com/stretchr/testify/require"
)

func TestCueSamplesPresent(t *testing.T) {
	require.NotEmpty(t, cueSamples(cueStart))
	require.NotEmpty(t, cueSamples(cueStop))
	require.Empty(t, cueSamples(cueKind(99)))
}

func TestSynthesizeToneShape(t *testing.T) {
	got := synthesizeTone(toneSpec{frequencyHz: 440, duration: 100 * time.Millisecond, volume: 0.2})
	require.Len(t, got, samplesForDuration(100*time.Millisecond))
	require.Equal(t, int16(0), got[0])
	require.Equal(t, int16(0), got[len(got)-1])

	peak := 0.0
	for _, s := range got {
		peak = max(peak, math.Abs(float64(s)))
	}
	limit := 0.2 * float64(math.MaxInt16)
	require.LessOrEqual(t, peak, limit+1)
	require.Greater(t, peak, 0.75*limit)
}

func TestSynthesizeToneInvalidSpecReturnsEmpty(t *testing.T) {
	require.Empty(t, synthesizeTone(toneSpec{frequencyHz: 0, duration: 100 * time.Millisecond, volume: 0.2}))
	require.Empty(t, synthesizeTone(toneSpec{frequencyHz: 440, duration: 0, volume: 0.2}))
	require.Empty(t, synthesizeTone(toneSpec{frequencyHz: 440, duration: 100 * time.Millisecond, volume: 0}))
}

func TestSynthesizeCueAddsGaps(t *testing.T) {
	tone := toneSpec{frequencyHz: 440, duration: 50 * time.Millisecond, volume: 0.1}
	got := synthesizeCue([]toneSpec{tone, tone})
	want := 2*samplesForDuration(50*time.Millisecond) + samplesForDuration(22*time.Millisecond)
	require.Len(t, got, want)
	require.Empty(t, synthesizeCue(nil))
}

func TestSamplesForDuration(t *testing.T) {
	require.Equal(t, 0, samplesForDuration(0))
	require.Equal(t, 400, samplesForDuration(25*time.Millisecond))
}

func TestCuePathExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := config.CuesConfig{StartFile: "~/sounds/start.wav", StopFile: " /tmp/stop.wav "}
	require.Equal(t, filepath.Join(home, "sounds", "start.wav"), cuePath(cueStart, cfg))
	require.Equal(t, "/tmp/stop.wav", cuePath(cueStop, cfg))
	require.Equal(t, "", cuePath(cueKind(99), cfg))
	require.Equal(t, home, expandUserPath("~"))
}

func TestPlayCueFileMissing(t *testing.T) {
	err := playCueFile(context.Background(), filepath.Join(t.TempDir(), "missing.wav"))
	require.Error(t, err)
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestEmitCueRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := emitCue(ctx, cueStart, config.CuesConfig{Enable: true})
	require.ErrorIs(t, err, context.Canceled)
}
