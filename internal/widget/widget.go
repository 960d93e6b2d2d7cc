// Package widget is the interactive voice chat surface: a bubbletea model that ties the
// listener, chat backend, speaker, and waveform together through state.Reduce.
package widget

import (
	"context"

	"github.com/rbright/vochat/internal/pipeline"
	"github.com/rbright/vochat/internal/tts"
)

// Listener is the speech input capability. *pipeline.Listener satisfies it.
type Listener interface {
	Available() bool
	Start(ctx context.Context, sink pipeline.Sink) error
	Stop(ctx context.Context) error
}

// Speaker is the speech output capability. *tts.Speaker satisfies it.
type Speaker interface {
	Available() bool
	Speak(ctx context.Context, text string, hooks tts.Hooks) error
}

// Clipboard receives the reply on ctrl+y. *output.Clipboard satisfies it.
type Clipboard interface {
	Copy(ctx context.Context, text string) error
}

// Cues marks listening transitions audibly. *indicator.Cues satisfies it.
type Cues interface {
	ListenStarted(ctx context.Context)
	ListenStopped(ctx context.Context)
}

// InertListener stands in when speech recognition is unavailable.
type InertListener struct{}

func (InertListener) Available() bool                          { return false }
func (InertListener) Start(context.Context, pipeline.Sink) error { return nil }
func (InertListener) Stop(context.Context) error               { return nil }

// MuteSpeaker stands in when text-to-speech is unavailable.
type MuteSpeaker struct{}

func (MuteSpeaker) Available() bool { return false }

func (MuteSpeaker) Speak(_ context.Context, _ string, hooks tts.Hooks) error {
	if hooks.OnEnd != nil {
		hooks.OnEnd()
	}
	return tts.ErrUnsupported
}

type noCues struct{}

func (noCues) ListenStarted(context.Context) {}
func (noCues) ListenStopped(context.Context) {}
