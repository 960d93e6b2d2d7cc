package indicator

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rbright/vochat/internal/audio"
	"github.com/rbright/vochat/internal/config"
)

type cueKind int

const (
	cueStart cueKind = iota + 1
	cueStop
)

func (k cueKind) String() string {
	switch k {
	case cueStart:
		return "start"
	case cueStop:
		return "stop"
	default:
		return "unknown"
	}
}

const cueSampleRate = 16000

type toneSpec struct {
	frequencyHz float64
	duration    time.Duration
	volume      float64
}

var (
	startCuePCM = synthesizeCue([]toneSpec{
		{frequencyHz: 660, duration: 60 * time.Millisecond, volume: 0.16},
		{frequencyHz: 990, duration: 80 * time.Millisecond, volume: 0.16},
	})
	stopCuePCM = synthesizeCue([]toneSpec{
		{frequencyHz: 990, duration: 60 * time.Millisecond, volume: 0.16},
		{frequencyHz: 660, duration: 90 * time.Millisecond, volume: 0.16},
	})
)

// emitCue plays the configured cue file, falling back to the synthesized tone.
func emitCue(ctx context.Context, kind cueKind, cfg config.CuesConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if path := cuePath(kind, cfg); path != "" {
		if err := playCueFile(ctx, path); err == nil {
			return nil
		}
	}

	samples := cueSamples(kind)
	if len(samples) == 0 {
		return nil
	}
	return audio.PlaySamples(ctx, samples, audio.Format{SampleRate: cueSampleRate, Channels: 1}, audio.PlayOptions{
		MediaName: "vochat " + kind.String() + " cue",
	})
}

func cuePath(kind cueKind, cfg config.CuesConfig) string {
	switch kind {
	case cueStart:
		return expandUserPath(cfg.StartFile)
	case cueStop:
		return expandUserPath(cfg.StopFile)
	default:
		return ""
	}
}

func expandUserPath(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw != "~" && !strings.HasPrefix(raw, "~/") {
		return raw
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return raw
	}
	return filepath.Join(home, strings.TrimPrefix(raw[1:], "/"))
}

func playCueFile(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("stat cue file %q: %w", path, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 4*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "pw-play", "--media-role", "Notification", path)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("play cue file %q: %w", path, err)
	}
	return nil
}

func cueSamples(kind cueKind) []int16 {
	switch kind {
	case cueStart:
		return startCuePCM
	case cueStop:
		return stopCuePCM
	default:
		return nil
	}
}

// synthesizeCue joins tones with a short silent gap.
func synthesizeCue(parts []toneSpec) []int16 {
	gap := make([]int16, samplesForDuration(22*time.Millisecond))
	var pcm []int16
	for i, part := range parts {
		if i > 0 {
			pcm = append(pcm, gap...)
		}
		pcm = append(pcm, synthesizeTone(part)...)
	}
	return pcm
}

// synthesizeTone renders one sine tone with a linear attack/release ramp of at most 5ms.
func synthesizeTone(spec toneSpec) []int16 {
	n := samplesForDuration(spec.duration)
	if n <= 0 || spec.frequencyHz <= 0 || spec.volume <= 0 {
		return nil
	}

	ramp := min(max(n/10, 1), cueSampleRate/200)

	pcm := make([]int16, n)
	for i := range n {
		envelope := math.Min(1, math.Min(float64(i)/float64(ramp), float64(n-i-1)/float64(ramp)))
		t := float64(i) / cueSampleRate
		sample := math.Sin(2 * math.Pi * spec.frequencyHz * t)
		pcm[i] = int16(math.Round(sample * spec.volume * envelope * math.MaxInt16))
	}
	return pcm
}

func samplesForDuration(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * cueSampleRate))
}
