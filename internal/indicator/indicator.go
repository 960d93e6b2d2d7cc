// Package indicator plays audible cues when listening starts and stops.
package indicator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rbright/vochat/internal/config"
	"github.com/rbright/vochat/internal/logging"
)

// Cues emits listen start/stop tones asynchronously and one at a time.
type Cues struct {
	cfg    config.CuesConfig
	logger *slog.Logger
	emit   func(context.Context, cueKind, config.CuesConfig) error

	soundMu  sync.Mutex
	inflight sync.WaitGroup
}

// New builds cue playback from config. A nil logger discards failures.
func New(cfg config.CuesConfig, logger *slog.Logger) *Cues {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Cues{cfg: cfg, logger: logger, emit: emitCue}
}

// ListenStarted plays the start cue.
func (c *Cues) ListenStarted(ctx context.Context) {
	c.play(ctx, cueStart)
}

// ListenStopped plays the stop cue.
func (c *Cues) ListenStopped(ctx context.Context) {
	c.play(ctx, cueStop)
}

// Wait blocks until queued cues finish.
func (c *Cues) Wait() {
	c.inflight.Wait()
}

func (c *Cues) play(ctx context.Context, kind cueKind) {
	if c == nil || !c.cfg.Enable {
		return
	}
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		c.soundMu.Lock()
		defer c.soundMu.Unlock()
		if err := c.emit(ctx, kind, c.cfg); err != nil {
			c.logger.Debug("audio cue failed", "cue", kind.String(), "error", err.Error())
		}
	}()
}
