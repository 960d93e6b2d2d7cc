// Package pipeline runs microphone capture into a streaming recognizer for the listen controls.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/rbright/vochat/internal/audio"
	"github.com/rbright/vochat/internal/config"
	"github.com/rbright/vochat/internal/logging"
)

// ErrUnavailable reports that speech recognition cannot run on this system.
var ErrUnavailable = errors.New("speech recognition unavailable")

const stopTimeout = 10 * time.Second

// Sink receives recognition events. Either callback may be nil.
// Callbacks run on pipeline goroutines.
type Sink struct {
	OnResult func(transcript string)
	OnError  func(err error)
}

func (s Sink) result(transcript string) {
	if s.OnResult != nil {
		s.OnResult(transcript)
	}
}

func (s Sink) fail(err error) {
	if s.OnError != nil {
		s.OnError(err)
	}
}

// Stream is one live recognizer session. *gspeech.Stream and *assemblyai.Stream satisfy it.
type Stream interface {
	SendAudio(chunk []byte) error
	Done() <-chan struct{}
	Err() error
	Close(ctx context.Context) error
	Cancel() error
}

// EngineRequest carries per-session hooks into an Engine.
type EngineRequest struct {
	OnResult  func(transcript string, final bool)
	DebugSink io.Writer
}

// Engine opens one recognizer stream.
type Engine func(ctx context.Context, req EngineRequest) (Stream, error)

type captureSource interface {
	Device() audio.Device
	Chunks() <-chan []byte
	BytesCaptured() int64
	RawPCM() []byte
	Stop() error
}

type captureFunc func(ctx context.Context) (captureSource, error)

// Listener owns at most one capture -> recognizer session at a time.
type Listener struct {
	cfg     config.Config
	logger  *slog.Logger
	engine  Engine
	capture captureFunc

	mu     sync.Mutex
	active *session
}

type session struct {
	capture captureSource
	stream  Stream
	sink    Sink
	cancel  context.CancelFunc

	pumpDone  chan struct{}
	debugFile *os.File
	started   time.Time
}

// NewListener builds a listener that captures from the configured PulseAudio source.
func NewListener(cfg config.Config, engine Engine, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = logging.Discard()
	}
	l := &Listener{cfg: cfg, logger: logger, engine: engine}
	l.capture = l.startPulseCapture
	return l
}

func (l *Listener) startPulseCapture(ctx context.Context) (captureSource, error) {
	selection, err := audio.SelectDevice(ctx, l.cfg.Audio.Input, l.cfg.Audio.Fallback)
	if err != nil {
		return nil, err
	}
	if selection.Warning != "" {
		l.logger.Warn(selection.Warning)
	}
	return audio.StartCapture(ctx, selection.Device, audio.CaptureOptions{KeepRaw: l.cfg.Debug.EnableAudioDump})
}

// Available reports whether an engine is configured.
func (l *Listener) Available() bool {
	return l != nil && l.engine != nil
}

// Listening reports whether a session is active.
func (l *Listener) Listening() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active != nil
}

// Start opens a recognizer stream and begins capture. It is a no-op while a session is active.
func (l *Listener) Start(ctx context.Context, sink Sink) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active != nil {
		return nil
	}
	if l.engine == nil {
		return ErrUnavailable
	}

	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &session{sink: sink, cancel: cancel, pumpDone: make(chan struct{}), started: time.Now()}

	var debugSink io.Writer
	if l.cfg.Debug.EnableGRPCDump {
		file, err := createDebugFile("stream", "jsonl")
		if err != nil {
			l.logger.Warn("unable to create stream debug dump", "error", err.Error())
		} else {
			s.debugFile = file
			debugSink = file
		}
	}

	stream, err := l.engine(sessionCtx, EngineRequest{
		OnResult: func(transcript string, final bool) {
			l.logger.Debug("recognition result", "chars", len(transcript), "final", final)
			sink.result(transcript)
		},
		DebugSink: debugSink,
	})
	if err != nil {
		cancel()
		s.closeDebug()
		return fmt.Errorf("open recognizer: %w", err)
	}
	s.stream = stream

	capture, err := l.capture(sessionCtx)
	if err != nil {
		_ = stream.Cancel()
		cancel()
		s.closeDebug()
		return fmt.Errorf("start capture: %w", err)
	}
	s.capture = capture

	l.active = s
	go l.pump(s)

	l.logger.Info("listening started", "device", describeDevice(capture.Device()))
	return nil
}

// Stop ends the active session and waits for trailing results. It is a no-op when idle.
func (l *Listener) Stop(ctx context.Context) error {
	l.mu.Lock()
	s := l.active
	l.active = nil
	l.mu.Unlock()

	if s == nil {
		return nil
	}
	defer s.cancel()
	defer s.closeDebug()

	_ = s.capture.Stop()
	<-s.pumpDone

	closeCtx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()
	err := s.stream.Close(closeCtx)

	l.writeDebugAudio(s.capture.RawPCM())
	l.logger.Info("listening stopped",
		"device", describeDevice(s.capture.Device()),
		"bytes_captured", s.capture.BytesCaptured(),
		"duration_ms", time.Since(s.started).Milliseconds(),
	)
	if err != nil {
		l.logger.Error("recognizer close failed", "error", err.Error())
		return fmt.Errorf("close recognizer: %w", err)
	}
	return nil
}

// pump forwards capture chunks until capture closes or the recognizer ends on its own.
func (l *Listener) pump(s *session) {
	defer close(s.pumpDone)

	chunks := s.capture.Chunks()
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				return
			}
			if len(chunk) == 0 {
				continue
			}
			if err := s.stream.SendAudio(chunk); err != nil {
				go l.abort(s, fmt.Errorf("send audio: %w", err))
				return
			}
		case <-s.stream.Done():
			err := s.stream.Err()
			if err == nil {
				err = errors.New("recognizer ended the session")
			}
			go l.abort(s, err)
			return
		}
	}
}

// abort tears down s after a failure and reports it, unless Stop already claimed s.
func (l *Listener) abort(s *session, cause error) {
	l.mu.Lock()
	if l.active != s {
		l.mu.Unlock()
		return
	}
	l.active = nil
	l.mu.Unlock()

	_ = s.capture.Stop()
	<-s.pumpDone
	_ = s.stream.Cancel()
	s.cancel()
	s.closeDebug()
	l.writeDebugAudio(s.capture.RawPCM())

	l.logger.Error("recognition failed", "error", cause.Error(), "device", describeDevice(s.capture.Device()))
	s.sink.fail(cause)
}

func (s *session) closeDebug() {
	if s.debugFile != nil {
		_ = s.debugFile.Close()
		s.debugFile = nil
	}
}
