// Package tts reads chat replies aloud through a remote synthesis backend and PulseAudio.
package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rbright/vochat/internal/audio"
	"github.com/rbright/vochat/internal/config"
	"github.com/rbright/vochat/internal/logging"
)

// UnsupportedText is shown when no synthesis backend can run.
const UnsupportedText = "Sorry, your system does not support Text-to-Speech."

// ErrUnsupported reports that text-to-speech is unavailable on this system.
var ErrUnsupported = errors.New("text-to-speech unsupported")

// Hooks observe one utterance. OnEnd fires exactly once per Speak call, after playback
// ends or fails. OnStart fires when the first samples reach the sound server.
type Hooks struct {
	OnStart func()
	OnEnd   func()
}

// Audio is a synthesized utterance as s16le PCM.
type Audio struct {
	PCM    io.ReadCloser
	Format audio.Format
}

// Synthesizer turns text into playable PCM.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (Audio, error)
}

type playFunc func(ctx context.Context, r io.Reader, format audio.Format, opts audio.PlayOptions) error

// Speaker plays synthesized replies. Concurrent Speak calls play on separate streams.
type Speaker struct {
	synth   Synthesizer
	play    playFunc
	logger  *slog.Logger
	backend string
}

// Env looks up secrets. os.Getenv satisfies it.
type Env func(key string) string

// New selects the backend named by cfg.Backend. It returns an error wrapping
// ErrUnsupported when the backend is none or its API key is missing.
func New(cfg config.TTSConfig, env Env, logger *slog.Logger) (*Speaker, error) {
	var synth Synthesizer
	switch cfg.Backend {
	case "elevenlabs":
		key := strings.TrimSpace(env("ELEVENLABS_API_KEY"))
		if key == "" {
			return nil, fmt.Errorf("%w: ELEVENLABS_API_KEY is not set", ErrUnsupported)
		}
		synth = NewElevenLabs(ElevenLabsOptions{
			APIKey:  key,
			BaseURL: cfg.ElevenLabsBaseURL,
			Voice:   cfg.Voice,
			Model:   cfg.Model,
		})
	case "openai":
		key := strings.TrimSpace(env("OPENAI_API_KEY"))
		if key == "" {
			return nil, fmt.Errorf("%w: OPENAI_API_KEY is not set", ErrUnsupported)
		}
		synth = NewOpenAI(OpenAIOptions{
			APIKey:  key,
			BaseURL: cfg.OpenAIBaseURL,
			Voice:   cfg.Voice,
			Model:   cfg.Model,
		})
	case "none":
		return nil, fmt.Errorf("%w: tts.backend is none", ErrUnsupported)
	default:
		return nil, fmt.Errorf("unsupported tts.backend %q", cfg.Backend)
	}
	return NewSpeaker(synth, cfg.Backend, logger), nil
}

// NewSpeaker wraps synth with PulseAudio playback.
func NewSpeaker(synth Synthesizer, backend string, logger *slog.Logger) *Speaker {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Speaker{synth: synth, play: audio.Play, logger: logger, backend: backend}
}

// Available reports that a backend is configured.
func (s *Speaker) Available() bool {
	return s != nil && s.synth != nil
}

// Speak synthesizes text and blocks until playback finishes.
func (s *Speaker) Speak(ctx context.Context, text string, hooks Hooks) error {
	if hooks.OnEnd != nil {
		defer hooks.OnEnd()
	}
	if !s.Available() {
		return ErrUnsupported
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	logger := s.logger.With("backend", s.backend, "chars", len(text))
	started := time.Now()

	utterance, err := s.synth.Synthesize(ctx, text)
	if err != nil {
		logger.Error("speech synthesis failed", "error", err.Error())
		return fmt.Errorf("synthesize: %w", err)
	}
	defer utterance.PCM.Close()

	var firstAudioMS atomic.Int64
	err = s.play(ctx, utterance.PCM, utterance.Format, audio.PlayOptions{
		MediaName: "vochat reply",
		OnStart: func() {
			firstAudioMS.Store(time.Since(started).Milliseconds())
			if hooks.OnStart != nil {
				hooks.OnStart()
			}
		},
	})
	if err != nil {
		logger.Error("speech playback failed", "error", err.Error())
		return fmt.Errorf("play: %w", err)
	}

	logger.Info("reply spoken",
		"sample_rate", utterance.Format.SampleRate,
		"first_audio_ms", firstAudioMS.Load(),
		"elapsed_ms", time.Since(started).Milliseconds(),
	)
	return nil
}
