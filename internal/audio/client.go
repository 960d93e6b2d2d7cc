// Package audio wraps PulseAudio for microphone capture, device selection, and PCM playback.
package audio

import (
	"context"
	"fmt"

	"github.com/jfreymuth/pulse"
)

const applicationName = "vochat"

// role picks the icon PulseAudio mixers show for a vochat stream.
type role string

const (
	roleCapture  role = "audio-input-microphone"
	rolePlayback role = "audio-speakers"
)

func newClient(r role) (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName(applicationName),
		pulse.ClientApplicationIconName(string(r)),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}

// ProbePlayback checks that a PulseAudio server with a default sink is reachable.
func ProbePlayback(_ context.Context) (string, error) {
	client, err := newClient(rolePlayback)
	if err != nil {
		return "", err
	}
	defer client.Close()

	sink, err := client.DefaultSink()
	if err != nil {
		return "", fmt.Errorf("read default sink: %w", err)
	}
	return sink.ID(), nil
}
