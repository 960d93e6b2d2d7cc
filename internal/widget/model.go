package widget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rbright/vochat/internal/chat"
	"github.com/rbright/vochat/internal/config"
	"github.com/rbright/vochat/internal/ipc"
	"github.com/rbright/vochat/internal/logging"
	"github.com/rbright/vochat/internal/pipeline"
	"github.com/rbright/vochat/internal/state"
	"github.com/rbright/vochat/internal/tts"
	"github.com/rbright/vochat/internal/waveform"
)

// InputPlaceholder is shown in the empty text field.
const InputPlaceholder = "Type your message here..."

const (
	stopTimeout  = 10 * time.Second
	eventBacklog = 64
)

// Options wires capabilities into a Model. Nil capabilities fall back to inert stand-ins.
type Options struct {
	Listener  Listener
	Speaker   Speaker
	Chat      chat.Replier
	Clipboard Clipboard
	Cues      Cues
	Animation config.AnimationConfig
	// Rand feeds bar heights. Nil uses math/rand.
	Rand   func() float64
	Logger *slog.Logger
}

// Model is the bubbletea model for one widget run.
type Model struct {
	ctx       context.Context
	listener  Listener
	speaker   Speaker
	chat      chat.Replier
	clipboard Clipboard
	cues      Cues
	logger    *slog.Logger

	state    state.State
	input    textinput.Model
	spinner  spinner.Model
	notice   string
	width    int
	quitting bool

	frames   *waveform.FrameQueue
	canvas   *waveform.Canvas
	renderer *waveform.Renderer
	fps      int
	ticking  bool

	// listenOp closes when the most recently dispatched listener operation finishes.
	listenOp chan struct{}
	listenMu sync.Mutex

	events    chan tea.Msg
	done      chan struct{}
	closeOnce sync.Once
}

type (
	recognitionResultMsg struct{ text string }
	recognitionErrorMsg  struct{ err error }
	listenStartedMsg     struct{}
	listenFailedMsg      struct{ err error }
	listenStoppedMsg     struct{ err error }
	replyMsg             struct {
		reply string
		err   error
	}
	speechStartMsg struct{}
	speechEndMsg   struct{}
	copiedMsg      struct{ err error }
	frameMsg       time.Time
	remoteMsg      struct {
		req   ipc.Request
		reply chan ipc.Response
	}
)

// New builds a widget model. ctx bounds every background command.
func New(ctx context.Context, opts Options) *Model {
	if opts.Listener == nil {
		opts.Listener = InertListener{}
	}
	if opts.Speaker == nil {
		opts.Speaker = MuteSpeaker{}
	}
	if opts.Cues == nil {
		opts.Cues = noCues{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	anim := opts.Animation
	if anim.FPS <= 0 {
		anim = config.Default().Animation
	}

	input := textinput.New()
	input.Placeholder = InputPlaceholder
	input.Prompt = "> "
	input.CharLimit = 4000
	input.Width = 48
	input.Focus()

	spin := spinner.New(spinner.WithSpinner(spinner.Dot))

	frames := waveform.NewFrameQueue()
	canvas := waveform.NewCanvas(float64(anim.Width), float64(anim.Height), anim.Columns, anim.Rows)
	renderer := waveform.NewRenderer(canvas, frames, waveform.Options{
		Bars:           anim.Bars,
		ListeningColor: anim.ListeningColor,
		SpeakingColor:  anim.SpeakingColor,
		Rand:           opts.Rand,
	})

	return &Model{
		ctx:       ctx,
		listener:  opts.Listener,
		speaker:   opts.Speaker,
		chat:      opts.Chat,
		clipboard: opts.Clipboard,
		cues:      opts.Cues,
		logger:    opts.Logger,
		input:     input,
		spinner:   spin,
		frames:    frames,
		canvas:    canvas,
		renderer:  renderer,
		fps:       anim.FPS,
		events:    make(chan tea.Msg, eventBacklog),
		done:      make(chan struct{}),
	}
}

// State returns the current widget record.
func (m *Model) State() state.State {
	return m.state
}

// Init starts the cursor blink and the event pump.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForEvent())
}

// Update advances the model for one message.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(msg.Width-8, 10)
		return m, nil

	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case recognitionResultMsg:
		return m, tea.Batch(m.apply(state.Event{Kind: state.RecognitionResult, Text: msg.text}), m.waitForEvent())

	case recognitionErrorMsg:
		m.logger.Warn("speech recognition error", "error", msg.err.Error())
		return m, tea.Batch(m.apply(state.Event{Kind: state.RecognitionError}), m.waitForEvent())

	case listenStartedMsg:
		if m.state.Listening {
			m.cues.ListenStarted(m.ctx)
		}
		return m, nil

	case listenFailedMsg:
		m.logger.Warn("start listening failed", "error", msg.err.Error())
		return m, m.apply(state.Event{Kind: state.RecognitionError})

	case listenStoppedMsg:
		if msg.err != nil {
			m.logger.Warn("stop listening failed", "error", msg.err.Error())
		}
		return m, nil

	case replyMsg:
		return m, m.settle(msg)

	case speechStartMsg:
		return m, tea.Batch(m.apply(state.Event{Kind: state.SpeechStart}), m.waitForEvent())

	case speechEndMsg:
		return m, tea.Batch(m.apply(state.Event{Kind: state.SpeechEnd}), m.waitForEvent())

	case copiedMsg:
		switch {
		case msg.err == nil:
			m.notice = "Reply copied to clipboard."
		default:
			m.logger.Warn("copy reply failed", "error", msg.err.Error())
			m.notice = "Copy failed."
		}
		return m, nil

	case remoteMsg:
		resp, cmd := m.handleRemote(msg.req)
		msg.reply <- resp
		return m, tea.Batch(cmd, m.waitForEvent())

	case frameMsg:
		m.frames.Step(time.Time(msg))
		if m.frames.Pending() > 0 {
			return m, m.tick()
		}
		m.ticking = false
		return m, nil

	case spinner.TickMsg:
		if m.state.Pending == 0 {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.quitting = true
		return tea.Quit
	case "ctrl+l":
		return m.startListening()
	case "ctrl+s":
		return m.stopListening()
	case "enter":
		return m.send(m.input.Value())
	case "ctrl+y":
		return m.copyReply()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.input.Value() != m.state.Input {
		return tea.Batch(cmd, m.apply(state.Event{Kind: state.InputChange, Text: m.input.Value()}))
	}
	return cmd
}

// apply reduces one event and derives the side effects of the transition.
func (m *Model) apply(e state.Event) tea.Cmd {
	prev := m.state
	next, err := state.Reduce(prev, e)
	if err != nil {
		m.logger.Error("reduce widget event", "error", err.Error())
		return nil
	}
	m.state = next

	if m.input.Value() != next.Input {
		m.input.SetValue(next.Input)
	}

	var cmds []tea.Cmd
	if prev.Listening != next.Listening || prev.Speaking != next.Speaking {
		m.renderer.SetActivity(next.Listening, next.Speaking)
		cmds = append(cmds, m.ensureTicking())
	}
	if prev.Pending == 0 && next.Pending > 0 {
		cmds = append(cmds, m.spinner.Tick)
	}
	if state.AutoSend(prev, next) {
		cmds = append(cmds, m.send(next.Transcript))
	}
	return tea.Batch(cmds...)
}

func (m *Model) startListening() tea.Cmd {
	if m.state.Listening || !m.listener.Available() {
		return nil
	}
	cmd := m.apply(state.Event{Kind: state.RecognitionStart})

	sink := pipeline.Sink{
		OnResult: func(text string) { m.post(recognitionResultMsg{text: text}) },
		OnError:  func(err error) { m.post(recognitionErrorMsg{err: err}) },
	}
	listener := m.listener
	ctx := m.ctx
	start := m.serialize(func() tea.Msg {
		if err := listener.Start(ctx, sink); err != nil {
			return listenFailedMsg{err: err}
		}
		return listenStartedMsg{}
	})
	return tea.Batch(cmd, start)
}

func (m *Model) stopListening() tea.Cmd {
	if !m.state.Listening {
		return nil
	}
	cmd := m.apply(state.Event{Kind: state.RecognitionStop})
	m.cues.ListenStopped(m.ctx)

	listener := m.listener
	ctx := m.ctx
	stop := m.serialize(func() tea.Msg {
		stopCtx, cancel := context.WithTimeout(ctx, stopTimeout)
		defer cancel()
		return listenStoppedMsg{err: listener.Stop(stopCtx)}
	})
	return tea.Batch(cmd, stop)
}

// serialize chains op behind the previously dispatched listener operation so a restart
// never overtakes the stop before it. Operations still queued after Close are dropped.
func (m *Model) serialize(op func() tea.Msg) tea.Cmd {
	prev := m.listenOp
	next := make(chan struct{})
	m.listenOp = next
	done := m.done
	return func() tea.Msg {
		defer close(next)
		if prev != nil {
			select {
			case <-prev:
			case <-done:
				return nil
			}
		}
		m.listenMu.Lock()
		defer m.listenMu.Unlock()
		select {
		case <-done:
			return nil
		default:
		}
		return op()
	}
}

// send validates text and issues one chat round-trip. Sends may overlap.
func (m *Model) send(text string) tea.Cmd {
	message := strings.TrimSpace(text)
	if message == "" {
		return m.apply(state.Event{Kind: state.ValidationFailure, Text: chat.EmptyMessageText})
	}
	if m.chat == nil {
		return m.apply(state.Event{Kind: state.SendFailure, Text: chat.FailedText})
	}

	cmd := m.apply(state.Event{Kind: state.SendStart})
	replier := m.chat
	ctx := m.ctx
	request := func() tea.Msg {
		reply, err := replier.Reply(ctx, message)
		return replyMsg{reply: reply, err: err}
	}
	return tea.Batch(cmd, request)
}

func (m *Model) settle(msg replyMsg) tea.Cmd {
	if msg.err != nil {
		m.logger.Warn("chat send failed", "error", msg.err.Error())
		return m.apply(state.Event{Kind: state.SendFailure, Text: chat.DisplayMessage(msg.err)})
	}

	cmd := m.apply(state.Event{Kind: state.SendSuccess, Text: msg.reply})
	if !m.speaker.Available() {
		return tea.Batch(cmd, m.apply(state.Event{Kind: state.SpeechUnsupported, Text: tts.UnsupportedText}))
	}
	return tea.Batch(cmd, m.speak(msg.reply))
}

func (m *Model) speak(text string) tea.Cmd {
	speaker := m.speaker
	ctx := m.ctx
	logger := m.logger
	hooks := tts.Hooks{
		OnStart: func() { m.post(speechStartMsg{}) },
		OnEnd:   func() { m.post(speechEndMsg{}) },
	}
	return func() tea.Msg {
		if err := speaker.Speak(ctx, text, hooks); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("speak reply failed", "error", err.Error())
		}
		return nil
	}
}

func (m *Model) copyReply() tea.Cmd {
	if m.clipboard == nil {
		return nil
	}
	clipboard := m.clipboard
	ctx := m.ctx
	reply := m.state.Response
	return func() tea.Msg {
		return copiedMsg{err: clipboard.Copy(ctx, reply)}
	}
}

func (m *Model) handleRemote(req ipc.Request) (ipc.Response, tea.Cmd) {
	switch req.Command {
	case ipc.CommandStatus:
		return ipc.Response{OK: true, State: m.state.Activity()}, nil
	case ipc.CommandStart:
		if !m.listener.Available() {
			return ipc.Response{OK: false, State: m.state.Activity(), Error: "speech recognition unavailable"}, nil
		}
		cmd := m.startListening()
		return ipc.Response{OK: true, State: m.state.Activity()}, cmd
	case ipc.CommandStop:
		cmd := m.stopListening()
		return ipc.Response{OK: true, State: m.state.Activity()}, cmd
	case ipc.CommandSend:
		if strings.TrimSpace(req.Text) == "" {
			cmd := m.send(req.Text)
			return ipc.Response{OK: false, State: m.state.Activity(), Error: chat.EmptyMessageText}, cmd
		}
		cmd := m.send(req.Text)
		return ipc.Response{OK: true, State: m.state.Activity(), Message: "sent"}, cmd
	default:
		return ipc.Response{OK: false, Error: fmt.Sprintf("unknown command %q", req.Command)}, nil
	}
}

// Remote forwards one IPC request into the running model and waits for its answer.
func (m *Model) Remote(ctx context.Context, req ipc.Request) ipc.Response {
	reply := make(chan ipc.Response, 1)
	select {
	case m.events <- remoteMsg{req: req, reply: reply}:
	case <-m.done:
		return ipc.Response{OK: false, Error: "widget is shutting down"}
	case <-ctx.Done():
		return ipc.Response{OK: false, Error: ctx.Err().Error()}
	}
	select {
	case resp := <-reply:
		return resp
	case <-m.done:
		return ipc.Response{OK: false, Error: "widget is shutting down"}
	case <-ctx.Done():
		return ipc.Response{OK: false, Error: ctx.Err().Error()}
	}
}

// post delivers a background event to the update loop unless the model is closed.
func (m *Model) post(msg tea.Msg) {
	select {
	case m.events <- msg:
	case <-m.done:
	}
}

func (m *Model) waitForEvent() tea.Cmd {
	events := m.events
	done := m.done
	return func() tea.Msg {
		select {
		case msg := <-events:
			return msg
		case <-done:
			return nil
		}
	}
}

func (m *Model) ensureTicking() tea.Cmd {
	if m.ticking || m.frames.Pending() == 0 {
		return nil
	}
	m.ticking = true
	return m.tick()
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(time.Second/time.Duration(m.fps), func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

// Close cancels the pending animation frame, stops the listener, and releases background
// commands. It is safe to call more than once.
func (m *Model) Close(ctx context.Context) error {
	var err error
	m.closeOnce.Do(func() {
		m.renderer.Close()
		close(m.done)
		m.listenMu.Lock()
		defer m.listenMu.Unlock()
		stopCtx, cancel := context.WithTimeout(ctx, stopTimeout)
		defer cancel()
		err = m.listener.Stop(stopCtx)
	})
	return err
}
