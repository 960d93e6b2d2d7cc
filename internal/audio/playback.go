package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/jfreymuth/pulse"
)

// Format describes interleaved signed 16-bit little-endian PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// PlayOptions configures one playback stream.
type PlayOptions struct {
	MediaName string
	// OnStart fires once, when the first samples reach PulseAudio.
	OnStart func()
}

// Play streams s16le PCM from r to the default sink and blocks until it drains.
// Cancelling ctx stops playback early.
func Play(ctx context.Context, r io.Reader, format Format, opts PlayOptions) error {
	if format.Channels != 1 && format.Channels != 2 {
		return fmt.Errorf("unsupported channel count %d", format.Channels)
	}
	if format.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", format.SampleRate)
	}

	client, err := newClient(rolePlayback)
	if err != nil {
		return err
	}
	defer client.Close()

	src := &pcmSource{r: r, onStart: opts.OnStart}
	channels := pulse.PlaybackMono
	if format.Channels == 2 {
		channels = pulse.PlaybackStereo
	}
	name := opts.MediaName
	if name == "" {
		name = applicationName + " playback"
	}

	stream, err := client.NewPlayback(
		pulse.Int16Reader(src.Read),
		channels,
		pulse.PlaybackSampleRate(format.SampleRate),
		pulse.PlaybackLatency(0.05),
		pulse.PlaybackMediaName(name),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			stream.Stop()
		case <-done:
		}
	}()

	stream.Start()
	stream.Drain()
	close(done)

	if err := stream.Error(); err != nil {
		return fmt.Errorf("play stream: %w", err)
	}
	if err := src.Err(); err != nil {
		return fmt.Errorf("read pcm: %w", err)
	}
	return ctx.Err()
}

// PlaySamples plays an in-memory mono or interleaved buffer.
func PlaySamples(ctx context.Context, samples []int16, format Format, opts PlayOptions) error {
	buf := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(s))
	}
	return Play(ctx, bytes.NewReader(buf), format, opts)
}

// pcmSource decodes s16le bytes into samples for pulse.Int16Reader.
type pcmSource struct {
	r       io.Reader
	scratch []byte
	carry   []byte
	onStart func()
	started sync.Once

	mu  sync.Mutex
	err error
}

func (p *pcmSource) Read(buf []int16) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	need := 2 * len(buf)
	if cap(p.scratch) < need {
		p.scratch = make([]byte, need)
	}
	data := p.scratch[:need]

	filled := copy(data, p.carry)
	p.carry = p.carry[:0]

	var readErr error
	for filled < 2 && readErr == nil {
		var n int
		n, readErr = p.r.Read(data[filled:])
		filled += n
	}
	// Keep any odd trailing byte for the next call.
	if filled%2 == 1 {
		p.carry = append(p.carry, data[filled-1])
		filled--
	}

	n := filled / 2
	for i := 0; i < n; i++ {
		buf[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
	}
	if n > 0 && p.onStart != nil {
		p.started.Do(p.onStart)
	}

	switch {
	case readErr == nil:
		return n, nil
	case errors.Is(readErr, io.EOF):
		return n, pulse.EndOfData
	default:
		p.mu.Lock()
		p.err = readErr
		p.mu.Unlock()
		return n, pulse.EndOfData
	}
}

// Err reports a non-EOF read failure seen by Read.
func (p *pcmSource) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
