package waveform

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Options configures a Renderer. Zero values pick the defaults below.
type Options struct {
	Bars           int
	ListeningColor string
	SpeakingColor  string
	// Rand returns a value in [0, 1). Defaults to math/rand/v2.
	Rand func() float64
}

const (
	DefaultBars           = 5
	DefaultListeningColor = "#4CAF50"
	DefaultSpeakingColor  = "#2196F3"
)

// Renderer draws random-height bars each frame while listening or speaking.
type Renderer struct {
	mu        sync.Mutex
	surface   Surface
	scheduler Scheduler
	opts      Options

	listening bool
	speaking  bool
	frame     FrameID
	scheduled bool
	closed    bool
}

// NewRenderer binds a renderer to surface and scheduler. Nothing is drawn until SetActivity.
func NewRenderer(surface Surface, scheduler Scheduler, opts Options) *Renderer {
	if opts.Bars <= 0 {
		opts.Bars = DefaultBars
	}
	if opts.ListeningColor == "" {
		opts.ListeningColor = DefaultListeningColor
	}
	if opts.SpeakingColor == "" {
		opts.SpeakingColor = DefaultSpeakingColor
	}
	if opts.Rand == nil {
		opts.Rand = rand.Float64
	}
	return &Renderer{surface: surface, scheduler: scheduler, opts: opts}
}

// SetActivity updates the flags, starting or stopping the frame loop as needed.
func (r *Renderer) SetActivity(listening, speaking bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	r.listening = listening
	r.speaking = speaking
	if r.active() {
		if !r.scheduled {
			r.requestLocked()
		}
		return
	}

	r.surface.Clear()
	r.cancelLocked()
}

// Active reports whether the frame loop is running.
func (r *Renderer) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scheduled
}

// Close cancels the pending frame. Later calls are no-ops.
func (r *Renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.cancelLocked()
}

func (r *Renderer) drawFrame(time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.scheduled = false
	if r.closed || !r.active() {
		return
	}

	r.surface.Clear()
	width, height := r.surface.Size()
	barWidth := width / float64(2*r.opts.Bars-1)
	color := r.opts.SpeakingColor
	if r.listening {
		color = r.opts.ListeningColor
	}
	for i := 0; i < r.opts.Bars; i++ {
		barHeight := r.opts.Rand() * height
		x := float64(2*i) * barWidth
		r.surface.FillRect(x, height-barHeight, barWidth, barHeight, color)
	}

	r.requestLocked()
}

func (r *Renderer) active() bool {
	return r.listening || r.speaking
}

func (r *Renderer) requestLocked() {
	r.frame = r.scheduler.RequestFrame(r.drawFrame)
	r.scheduled = true
}

func (r *Renderer) cancelLocked() {
	if !r.scheduled {
		return
	}
	r.scheduler.CancelFrame(r.frame)
	r.scheduled = false
}
