package audio

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const (
	// CaptureSampleRate is the recognizer input rate.
	CaptureSampleRate = 16000
	chunkSizeBytes    = 640 // 20ms @ 16kHz mono s16
)

// CaptureOptions tunes a capture session.
type CaptureOptions struct {
	// KeepRaw retains every captured byte for RawPCM.
	KeepRaw bool
}

// Capture streams fixed-size PCM chunks from one PulseAudio source.
type Capture struct {
	device  Device
	keepRaw bool

	client *pulse.Client
	stream *pulse.RecordStream

	chunks chan []byte
	stopCh chan struct{}

	mu      sync.Mutex
	pending []byte
	rawPCM  []byte
	stopped bool

	inflight sync.WaitGroup
	bytes    atomic.Int64
}

// StartCapture opens a 16kHz mono s16 record stream on selected.
// The stream stops when ctx ends or Stop is called.
func StartCapture(ctx context.Context, selected Device, opts CaptureOptions) (*Capture, error) {
	client, err := newClient(roleCapture)
	if err != nil {
		return nil, err
	}

	source, err := client.SourceByID(selected.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", selected.ID, err)
	}

	capture := newCapture(selected, opts)
	capture.client = client

	stream, err := client.NewRecord(
		pulse.NewWriter(writerFunc(capture.onPCM), pulseproto.FormatInt16LE),
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(CaptureSampleRate),
		pulse.RecordBufferFragmentSize(chunkSizeBytes),
		pulse.RecordMediaName(applicationName+" voice input"),
	)
	if err != nil {
		capture.Close()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}

	capture.stream = stream
	stream.Start()

	go func() {
		select {
		case <-ctx.Done():
			_ = capture.Stop()
		case <-capture.stopCh:
		}
	}()

	return capture, nil
}

func newCapture(device Device, opts CaptureOptions) *Capture {
	return &Capture{
		device:  device,
		keepRaw: opts.KeepRaw,
		chunks:  make(chan []byte, 128),
		stopCh:  make(chan struct{}),
	}
}

// Device returns the source being captured.
func (c *Capture) Device() Device {
	return c.device
}

// Chunks yields PCM in chunkSizeBytes slices. It closes after Stop.
func (c *Capture) Chunks() <-chan []byte {
	return c.chunks
}

// BytesCaptured reports total bytes accepted from PulseAudio.
func (c *Capture) BytesCaptured() int64 {
	return c.bytes.Load()
}

// RawPCM returns a copy of everything captured. Empty unless KeepRaw was set.
func (c *Capture) RawPCM() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.rawPCM...)
}

// Stop halts the stream, flushes the residual partial chunk, and closes Chunks once.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	close(c.stopCh)
	c.mu.Unlock()

	if c.stream != nil {
		c.stream.Stop()
		c.stream.Close()
	}
	if c.client != nil {
		c.client.Close()
	}

	c.inflight.Wait()

	c.mu.Lock()
	residual := c.pending
	c.pending = nil
	c.mu.Unlock()

	if len(residual) > 0 {
		select {
		case c.chunks <- residual:
		default:
		}
	}

	close(c.chunks)
	return nil
}

// Close stops the capture and discards the error.
func (c *Capture) Close() {
	_ = c.Stop()
}

func (c *Capture) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return 0, io.EOF
	}
	// Add under the same lock that guards stopped, so Stop's Wait cannot race it.
	c.inflight.Add(1)
	defer c.inflight.Done()

	if c.keepRaw {
		c.rawPCM = append(c.rawPCM, buffer...)
	}
	c.pending = append(c.pending, buffer...)
	var ready [][]byte
	for len(c.pending) >= chunkSizeBytes {
		ready = append(ready, append([]byte(nil), c.pending[:chunkSizeBytes]...))
		c.pending = c.pending[chunkSizeBytes:]
	}
	c.mu.Unlock()

	c.bytes.Add(int64(len(buffer)))

	for _, chunk := range ready {
		select {
		case <-c.stopCh:
			return 0, io.EOF
		case c.chunks <- chunk:
		}
	}
	return len(buffer), nil
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
