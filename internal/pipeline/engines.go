package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rbright/vochat/internal/assemblyai"
	"github.com/rbright/vochat/internal/audio"
	"github.com/rbright/vochat/internal/config"
	"github.com/rbright/vochat/internal/gspeech"
)

const engineDialTimeout = 5 * time.Second

// Env looks up secrets. os.Getenv satisfies it.
type Env func(key string) string

// New builds a listener for cfg, or returns an error wrapping ErrUnavailable when the backend
// is disabled, its credentials are missing, or no input source can be selected.
func New(ctx context.Context, cfg config.Config, env Env, logger *slog.Logger) (*Listener, error) {
	engine, err := NewEngine(cfg, env)
	if err != nil {
		return nil, err
	}
	if _, err := audio.SelectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return NewListener(cfg, engine, logger), nil
}

// NewEngine resolves speech.backend into an Engine.
func NewEngine(cfg config.Config, env Env) (Engine, error) {
	if env == nil {
		env = os.Getenv
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Speech.Backend)) {
	case "google":
		if !cfg.Speech.GooglePlaintext && !GoogleCredentialsPresent(env) {
			return nil, fmt.Errorf("%w: no Google application default credentials", ErrUnavailable)
		}
		phrases, _, err := config.BuildSpeechPhrases(cfg)
		if err != nil {
			return nil, fmt.Errorf("build speech contexts: %w", err)
		}
		return googleEngine(cfg.Speech, toGooglePhrases(phrases)), nil
	case "assemblyai":
		key := strings.TrimSpace(env("ASSEMBLYAI_API_KEY"))
		if key == "" {
			return nil, fmt.Errorf("%w: ASSEMBLYAI_API_KEY is not set", ErrUnavailable)
		}
		return assemblyAIEngine(cfg.Speech, key), nil
	case "none":
		return nil, fmt.Errorf("%w: speech.backend is none", ErrUnavailable)
	default:
		return nil, fmt.Errorf("unsupported speech.backend %q", cfg.Speech.Backend)
	}
}

// GoogleCredentialsPresent reports whether application default credentials can be found
// through GOOGLE_APPLICATION_CREDENTIALS or the gcloud well-known file.
func GoogleCredentialsPresent(env Env) bool {
	if path := strings.TrimSpace(env("GOOGLE_APPLICATION_CREDENTIALS")); path != "" {
		_, err := os.Stat(path)
		return err == nil
	}
	configDir := strings.TrimSpace(env("CLOUDSDK_CONFIG"))
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return false
		}
		configDir = filepath.Join(home, ".config", "gcloud")
	}
	_, err := os.Stat(filepath.Join(configDir, "application_default_credentials.json"))
	return err == nil
}

func toGooglePhrases(phrases []config.SpeechPhrase) []gspeech.Phrase {
	out := make([]gspeech.Phrase, 0, len(phrases))
	for _, phrase := range phrases {
		out = append(out, gspeech.Phrase{Text: phrase.Phrase, Boost: phrase.Boost})
	}
	return out
}

func googleEngine(speech config.SpeechConfig, phrases []gspeech.Phrase) Engine {
	return func(ctx context.Context, req EngineRequest) (Stream, error) {
		stream, err := gspeech.DialStream(ctx, gspeech.StreamConfig{
			Endpoint:             speech.GoogleEndpoint,
			Plaintext:            speech.GooglePlaintext,
			LanguageCode:         speech.LanguageCode,
			Model:                speech.GoogleModel,
			AutomaticPunctuation: speech.AutomaticPunctuation,
			InterimResults:       speech.InterimResults,
			Phrases:              phrases,
			DialTimeout:          engineDialTimeout,
			DebugSink:            req.DebugSink,
			OnResult:             req.OnResult,
		})
		if err != nil {
			return nil, err
		}
		return stream, nil
	}
}

func assemblyAIEngine(speech config.SpeechConfig, apiKey string) Engine {
	return func(ctx context.Context, req EngineRequest) (Stream, error) {
		stream, err := assemblyai.DialStream(ctx, assemblyai.StreamConfig{
			URL:            speech.AssemblyAIURL,
			APIKey:         apiKey,
			FormatTurns:    speech.AutomaticPunctuation,
			InterimResults: speech.InterimResults,
			DialTimeout:    engineDialTimeout,
			DebugSink:      req.DebugSink,
			OnResult:       req.OnResult,
		})
		if err != nil {
			return nil, err
		}
		return stream, nil
	}
}
