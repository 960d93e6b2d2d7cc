// Package app composes config, logging, and the vochat capabilities behind each CLI command.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rbright/vochat/internal/audio"
	"github.com/rbright/vochat/internal/chat"
	"github.com/rbright/vochat/internal/cli"
	"github.com/rbright/vochat/internal/config"
	"github.com/rbright/vochat/internal/doctor"
	"github.com/rbright/vochat/internal/indicator"
	"github.com/rbright/vochat/internal/ipc"
	"github.com/rbright/vochat/internal/logging"
	"github.com/rbright/vochat/internal/output"
	"github.com/rbright/vochat/internal/pipeline"
	"github.com/rbright/vochat/internal/tts"
	"github.com/rbright/vochat/internal/version"
	"github.com/rbright/vochat/internal/widget"
)

const (
	statusTimeout  = 500 * time.Millisecond
	forwardTimeout = 2 * time.Second
	probeTimeout   = 180 * time.Millisecond
	acquireRetries = 2
)

// Runner executes one CLI invocation.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	// Logger overrides the JSONL file logger.
	Logger *slog.Logger
	// Env looks up secrets. Nil uses os.Getenv after .env loading.
	Env func(key string) string
	// RunWidget drives the widget until the user quits. Nil runs a bubbletea program.
	RunWidget func(ctx context.Context, model *widget.Model) error
}

// Execute runs args and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText())
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, parsed.Help)
		return 0
	}
	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	if err := loadEnvFile(parsed.EnvFile); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if r.Env == nil {
		r.Env = os.Getenv
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
	}

	logRuntime, err := logging.New(logging.Options{Level: cfgLoaded.Config.Log.Level, Session: uuid.NewString()})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}
	for _, w := range cfgLoaded.Warnings {
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}
	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
		"version", version.Version,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded, doctor.Env(r.Env))
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandListen:
		return r.forwardOrFail(ctx, ipc.Request{Command: ipc.CommandStart})
	case cli.CommandStop:
		return r.forwardOrFail(ctx, ipc.Request{Command: ipc.CommandStop})
	case cli.CommandSend:
		return r.forwardOrFail(ctx, ipc.Request{Command: ipc.CommandSend, Text: parsed.Text})
	case cli.CommandAsk:
		return r.commandAsk(ctx, cfgLoaded.Config, parsed.Text, logger)
	case cli.CommandChat:
		return r.commandChat(ctx, cfgLoaded.Config, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

// loadEnvFile loads an explicit dotenv file, or ./.env when it exists. Variables already in
// the environment win.
func loadEnvFile(path string) error {
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %q: %w", path, err)
	}
	return nil
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio input sources found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		fmt.Fprintf(r.Stdout, "%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark, device.ID, device.Description, device.State, yesNo(device.Available), yesNo(device.Muted))
	}
	return 0
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.Request{Command: ipc.CommandStatus}, statusTimeout)
	if !handled {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.State == "" {
		resp.State = "idle"
	}
	fmt.Fprintln(r.Stdout, resp.State)
	return 0
}

func (r Runner) forwardOrFail(ctx context.Context, req ipc.Request) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, req, forwardTimeout)
	if !handled {
		fmt.Fprintln(r.Stderr, "error: vochat is not running")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	switch {
	case resp.Message != "":
		fmt.Fprintln(r.Stdout, resp.Message)
	case resp.State != "":
		fmt.Fprintln(r.Stdout, resp.State)
	}
	return 0
}

// tryForward sends req to a running widget. handled is false when no widget owns the socket.
func tryForward(ctx context.Context, socketPath string, req ipc.Request, timeout time.Duration) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, req, timeout)
	switch {
	case err == nil && resp.OK:
		return resp, true, nil
	case err == nil:
		return resp, true, errors.New(resp.Error)
	case ipc.NotRunning(err):
		return ipc.Response{}, false, nil
	default:
		return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", req.Command, err)
	}
}

// commandAsk runs one turn without the widget: validate, send, print, speak.
func (r Runner) commandAsk(ctx context.Context, cfg config.Config, text string, logger *slog.Logger) int {
	replier, err := chat.New(cfg.Chat, strings.TrimSpace(r.Env("OPENAI_API_KEY")), logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	reply, err := replier.Reply(ctx, text)
	if err != nil {
		logger.Warn("ask failed", "error", err.Error())
		fmt.Fprintln(r.Stderr, chat.DisplayMessage(err))
		return 1
	}
	fmt.Fprintln(r.Stdout, reply)

	speaker, err := tts.New(cfg.TTS, tts.Env(r.Env), logger)
	if err != nil {
		logger.Info("speech output unavailable", "error", err.Error())
		fmt.Fprintln(r.Stderr, tts.UnsupportedText)
		return 0
	}
	if err := speaker.Speak(ctx, reply, tts.Hooks{}); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("speak reply failed", "error", err.Error())
		fmt.Fprintf(r.Stderr, "warning: speak reply: %v\n", err)
	}
	return 0
}

// commandChat owns the runtime socket and runs the widget until the user quits.
func (r Runner) commandChat(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	replier, err := chat.New(cfg.Chat, strings.TrimSpace(r.Env("OPENAI_API_KEY")), logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	ln, err := ipc.Acquire(ctx, socketPath, probeTimeout, acquireRetries)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = ln.Close()
		_ = os.Remove(socketPath)
	}()

	var listener widget.Listener = widget.InertListener{}
	if l, err := pipeline.New(ctx, cfg, pipeline.Env(r.Env), logger); err != nil {
		logger.Warn("speech input unavailable", "error", err.Error())
	} else {
		listener = l
	}

	var speaker widget.Speaker = widget.MuteSpeaker{}
	if s, err := tts.New(cfg.TTS, tts.Env(r.Env), logger); err != nil {
		logger.Warn("speech output unavailable", "error", err.Error())
	} else {
		speaker = s
	}

	cues := indicator.New(cfg.Cues, logger)
	defer cues.Wait()

	model := widget.New(ctx, widget.Options{
		Listener:  listener,
		Speaker:   speaker,
		Chat:      replier,
		Clipboard: output.NewClipboard(cfg.Clipboard),
		Cues:      cues,
		Animation: cfg.Animation,
		Logger:    logger,
	})

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, ln, ipc.HandlerFunc(model.Remote))
	}()

	logger.Info("widget started",
		"socket", socketPath,
		"speech_input", listener.Available(),
		"speech_output", speaker.Available(),
	)
	started := time.Now()

	run := r.RunWidget
	if run == nil {
		run = r.runProgram
	}
	runErr := run(ctx, model)

	if err := model.Close(context.Background()); err != nil {
		logger.Warn("stop listening on exit", "error", err.Error())
	}
	serverCancel()
	serverErr := <-serverErrCh

	logger.Info("widget stopped",
		"duration_ms", time.Since(started).Milliseconds(),
		"final_state", model.State().Activity(),
	)

	if runErr != nil {
		logger.Error("widget failed", "error", runErr.Error())
		fmt.Fprintf(r.Stderr, "error: %v\n", runErr)
		return 1
	}
	if serverErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", serverErr)
		return 1
	}
	return 0
}

// runProgram runs the widget full-screen. Cancellation of ctx is a clean exit.
func (r Runner) runProgram(ctx context.Context, model *widget.Model) error {
	program := tea.NewProgram(model, tea.WithContext(ctx), tea.WithAltScreen(), tea.WithOutput(r.Stdout))
	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
