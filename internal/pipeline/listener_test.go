package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rbright/vochat/internal/audio"
	"github.com/rbright/vochat/internal/config"
	"github.com/stretchr/testify/require"
)

type fakeCapture struct {
	chunks chan []byte
	raw    []byte

	once    sync.Once
	stopped bool
}

func newFakeCapture() *fakeCapture {
	return &fakeCapture{chunks: make(chan []byte, 8)}
}

func (c *fakeCapture) Device() audio.Device  { return audio.Device{ID: "mic-1", Description: "Mic"} }
func (c *fakeCapture) Chunks() <-chan []byte { return c.chunks }
func (c *fakeCapture) BytesCaptured() int64  { return int64(len(c.raw)) }
func (c *fakeCapture) RawPCM() []byte        { return c.raw }

func (c *fakeCapture) Stop() error {
	c.once.Do(func() {
		c.stopped = true
		close(c.chunks)
	})
	return nil
}

type fakeStream struct {
	onResult func(string, bool)
	trailing []string
	sendErr  error

	mu        sync.Mutex
	sent      [][]byte
	err       error
	done      chan struct{}
	doneOnce  sync.Once
	closed    bool
	cancelled bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{done: make(chan struct{})}
}

func (s *fakeStream) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, chunk)
	return nil
}

func (s *fakeStream) Done() <-chan struct{} { return s.done }

func (s *fakeStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeStream) finish(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *fakeStream) Close(context.Context) error {
	for _, text := range s.trailing {
		s.onResult(text, true)
	}
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.finish(nil)
	return nil
}

func (s *fakeStream) Cancel() error {
	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type sinkRecorder struct {
	mu      sync.Mutex
	results []string
	errs    []error
	failed  chan struct{}
}

func newSinkRecorder() *sinkRecorder {
	return &sinkRecorder{failed: make(chan struct{}, 1)}
}

func (r *sinkRecorder) sink() Sink {
	return Sink{
		OnResult: func(text string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.results = append(r.results, text)
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
			r.failed <- struct{}{}
		},
	}
}

func (r *sinkRecorder) snapshot() ([]string, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.results...), append([]error(nil), r.errs...)
}

func newTestListener(stream *fakeStream, capture *fakeCapture) *Listener {
	engine := func(_ context.Context, req EngineRequest) (Stream, error) {
		stream.onResult = req.OnResult
		return stream, nil
	}
	l := NewListener(config.Default(), engine, nil)
	l.capture = func(context.Context) (captureSource, error) { return capture, nil }
	return l
}

func TestListenerForwardsAudioAndResults(t *testing.T) {
	stream := newFakeStream()
	stream.trailing = []string{"trailing final"}
	capture := newFakeCapture()
	rec := newSinkRecorder()

	l := newTestListener(stream, capture)
	require.NoError(t, l.Start(context.Background(), rec.sink()))
	require.True(t, l.Listening())

	// A second Start while active is a no-op.
	require.NoError(t, l.Start(context.Background(), rec.sink()))

	capture.chunks <- []byte{1, 2}
	capture.chunks <- nil
	capture.chunks <- []byte{3, 4}
	require.Eventually(t, func() bool { return stream.sentCount() == 2 }, time.Second, 5*time.Millisecond)

	stream.onResult("hello", true)

	require.NoError(t, l.Stop(context.Background()))
	require.False(t, l.Listening())
	require.True(t, capture.stopped)
	require.True(t, stream.closed)

	results, errs := rec.snapshot()
	require.Equal(t, []string{"hello", "trailing final"}, results)
	require.Empty(t, errs)

	require.NoError(t, l.Stop(context.Background()))
}

func TestListenerReportsRecognizerFailure(t *testing.T) {
	stream := newFakeStream()
	capture := newFakeCapture()
	rec := newSinkRecorder()

	l := newTestListener(stream, capture)
	require.NoError(t, l.Start(context.Background(), rec.sink()))

	stream.finish(errors.New("quota exceeded"))

	select {
	case <-rec.failed:
	case <-time.After(time.Second):
		t.Fatal("sink error not delivered")
	}
	require.False(t, l.Listening())
	require.True(t, capture.stopped)

	_, errs := rec.snapshot()
	require.Len(t, errs, 1)
	require.Contains(t, errs[0].Error(), "quota exceeded")

	// Stop after a failure has nothing left to tear down.
	require.NoError(t, l.Stop(context.Background()))
}

func TestListenerReportsSendFailure(t *testing.T) {
	stream := newFakeStream()
	stream.sendErr = errors.New("broken pipe")
	capture := newFakeCapture()
	rec := newSinkRecorder()

	l := newTestListener(stream, capture)
	require.NoError(t, l.Start(context.Background(), rec.sink()))
	capture.chunks <- []byte{1, 2}

	select {
	case <-rec.failed:
	case <-time.After(time.Second):
		t.Fatal("sink error not delivered")
	}
	_, errs := rec.snapshot()
	require.Contains(t, errs[0].Error(), "send audio")
	require.True(t, stream.cancelled)
	require.False(t, l.Listening())
}

func TestListenerStartFailures(t *testing.T) {
	t.Run("engine", func(t *testing.T) {
		l := NewListener(config.Default(), func(context.Context, EngineRequest) (Stream, error) {
			return nil, errors.New("dial refused")
		}, nil)
		l.capture = func(context.Context) (captureSource, error) {
			t.Fatal("capture must not start when the engine fails")
			return nil, nil
		}
		err := l.Start(context.Background(), Sink{})
		require.ErrorContains(t, err, "open recognizer")
		require.False(t, l.Listening())
	})

	t.Run("capture", func(t *testing.T) {
		stream := newFakeStream()
		l := newTestListener(stream, nil)
		l.capture = func(context.Context) (captureSource, error) {
			return nil, errors.New("no source")
		}
		err := l.Start(context.Background(), Sink{})
		require.ErrorContains(t, err, "start capture")
		require.True(t, stream.cancelled)
		require.False(t, l.Listening())
	})

	t.Run("no engine", func(t *testing.T) {
		err := NewListener(config.Default(), nil, nil).Start(context.Background(), Sink{})
		require.ErrorIs(t, err, ErrUnavailable)
	})
}

func TestNewEngine(t *testing.T) {
	empty := func(string) string { return "" }

	cfg := config.Default()
	cfg.Speech.Backend = "none"
	_, err := NewEngine(cfg, empty)
	require.ErrorIs(t, err, ErrUnavailable)

	cfg.Speech.Backend = "assemblyai"
	_, err = NewEngine(cfg, empty)
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorContains(t, err, "ASSEMBLYAI_API_KEY")

	engine, err := NewEngine(cfg, func(key string) string {
		if key == "ASSEMBLYAI_API_KEY" {
			return "secret"
		}
		return ""
	})
	require.NoError(t, err)
	require.NotNil(t, engine)

	cfg.Speech.Backend = "google"
	cfg.Speech.GooglePlaintext = true
	engine, err = NewEngine(cfg, empty)
	require.NoError(t, err)
	require.NotNil(t, engine)

	cfg.Vocab.GlobalSets = []string{"missing"}
	_, err = NewEngine(cfg, empty)
	require.ErrorContains(t, err, "build speech contexts")

	cfg.Speech.Backend = "whisper"
	_, err = NewEngine(cfg, empty)
	require.ErrorContains(t, err, "unsupported speech.backend")
}

func TestNewEngineGoogleNeedsCredentials(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg := config.Default()

	_, err := NewEngine(cfg, func(key string) string {
		if key == "CLOUDSDK_CONFIG" {
			return filepath.Join(t.TempDir(), "gcloud")
		}
		return ""
	})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestGoogleCredentialsPresent(t *testing.T) {
	dir := t.TempDir()
	keyFile := filepath.Join(dir, "key.json")
	require.NoError(t, os.WriteFile(keyFile, []byte("{}"), 0o600))

	require.True(t, GoogleCredentialsPresent(func(key string) string {
		if key == "GOOGLE_APPLICATION_CREDENTIALS" {
			return keyFile
		}
		return ""
	}))
	require.False(t, GoogleCredentialsPresent(func(key string) string {
		if key == "GOOGLE_APPLICATION_CREDENTIALS" {
			return filepath.Join(dir, "missing.json")
		}
		return ""
	}))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "application_default_credentials.json"), []byte("{}"), 0o600))
	require.True(t, GoogleCredentialsPresent(func(key string) string {
		if key == "CLOUDSDK_CONFIG" {
			return dir
		}
		return ""
	}))
}

func TestStartWritesStreamDebugDump(t *testing.T) {
	xdgStateHome := t.TempDir()
	t.Setenv("XDG_STATE_HOME", xdgStateHome)

	stream := newFakeStream()
	capture := newFakeCapture()
	capture.raw = []byte{1, 0, 2, 0}

	cfg := config.Default()
	cfg.Debug.EnableGRPCDump = true
	cfg.Debug.EnableAudioDump = true

	var gotSink bool
	l := NewListener(cfg, func(_ context.Context, req EngineRequest) (Stream, error) {
		stream.onResult = req.OnResult
		gotSink = req.DebugSink != nil
		return stream, nil
	}, nil)
	l.capture = func(context.Context) (captureSource, error) { return capture, nil }

	require.NoError(t, l.Start(context.Background(), Sink{}))
	require.NoError(t, l.Stop(context.Background()))
	require.True(t, gotSink)

	streams, err := filepath.Glob(filepath.Join(xdgStateHome, "vochat", "debug", "stream-*.jsonl"))
	require.NoError(t, err)
	require.Len(t, streams, 1)
	wavs, err := filepath.Glob(filepath.Join(xdgStateHome, "vochat", "debug", "audio-*.wav"))
	require.NoError(t, err)
	require.Len(t, wavs, 1)
}
