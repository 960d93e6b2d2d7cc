// Package doctor runs readiness diagnostics for config, audio, the chat endpoint, and the
// speech and TTS credentials.
package doctor

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/vochat/internal/audio"
	"github.com/rbright/vochat/internal/config"
	"github.com/rbright/vochat/internal/pipeline"
	"github.com/rbright/vochat/internal/tts"
)

const endpointTimeout = 3 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders one [OK] or [FAIL] line per check.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", status, check.Name, check.Message)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Env looks up secrets. os.Getenv satisfies it.
type Env func(key string) string

// probes are the live system touchpoints; tests replace them.
type probes struct {
	selectDevice  func(ctx context.Context, input, fallback string) (audio.Selection, error)
	probePlayback func(ctx context.Context) (string, error)
	lookPath      func(file string) (string, error)
	httpClient    *http.Client
}

func liveProbes() probes {
	return probes{
		selectDevice:  audio.SelectDevice,
		probePlayback: audio.ProbePlayback,
		lookPath:      exec.LookPath,
		httpClient:    &http.Client{Timeout: endpointTimeout},
	}
}

// Run executes every check against a loaded config.
func Run(ctx context.Context, loaded config.Loaded, env Env) Report {
	return run(ctx, loaded, env, liveProbes())
}

func run(ctx context.Context, loaded config.Loaded, env Env, p probes) Report {
	if env == nil {
		env = os.Getenv
	}
	cfg := loaded.Config

	return Report{Checks: []Check{
		checkConfig(loaded),
		p.checkCommand(cfg.Clipboard.Argv, "clipboard_cmd"),
		p.checkAudioInput(ctx, cfg.Audio),
		p.checkPlayback(ctx),
		p.checkChat(ctx, cfg.Chat, env),
		checkSpeech(cfg, env),
		checkTTS(cfg.TTS, env),
	}}
}

func checkConfig(loaded config.Loaded) Check {
	message := fmt.Sprintf("loaded %q", loaded.Path)
	if !loaded.Exists {
		message = fmt.Sprintf("%q not found; using defaults", loaded.Path)
	}
	if n := len(loaded.Warnings); n > 0 && loaded.Exists {
		message = fmt.Sprintf("%s with %d warning(s)", message, n)
	}
	return Check{Name: "config", Pass: true, Message: message}
}

func (p probes) checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	path, err := p.lookPath(argv[0])
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", argv[0])}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("found at %s", path)}
}

func (p probes) checkAudioInput(ctx context.Context, cfg config.AudioConfig) Check {
	selection, err := p.selectDevice(ctx, cfg.Input, cfg.Fallback)
	if err != nil {
		return Check{Name: "audio.input", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message += " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.input", Pass: true, Message: message}
}

func (p probes) checkPlayback(ctx context.Context) Check {
	sink, err := p.probePlayback(ctx)
	if err != nil {
		return Check{Name: "audio.playback", Pass: false, Message: err.Error()}
	}
	return Check{Name: "audio.playback", Pass: true, Message: fmt.Sprintf("default sink %q", sink)}
}

// checkChat treats any HTTP response from the endpoint as reachable.
func (p probes) checkChat(ctx context.Context, cfg config.ChatConfig, env Env) Check {
	const name = "chat.endpoint"
	switch cfg.Backend {
	case "openai":
		if strings.TrimSpace(env("OPENAI_API_KEY")) == "" {
			return Check{Name: name, Pass: false, Message: "chat.backend=openai requires OPENAI_API_KEY"}
		}
		return Check{Name: name, Pass: true, Message: fmt.Sprintf("openai model %q", cfg.OpenAIModel)}
	case "http":
	default:
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("unsupported chat backend %q", cfg.Backend)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, cfg.Endpoint, nil)
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("build request: %v", err)}
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	_ = resp.Body.Close()
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, cfg.Endpoint)}
}

func checkSpeech(cfg config.Config, env Env) Check {
	const name = "speech.credentials"
	if cfg.Speech.Backend == "none" {
		return Check{Name: name, Pass: true, Message: "speech input disabled"}
	}
	if _, err := pipeline.NewEngine(cfg, pipeline.Env(env)); err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("%s backend configured", cfg.Speech.Backend)}
}

func checkTTS(cfg config.TTSConfig, env Env) Check {
	const name = "tts.credentials"
	if cfg.Backend == "none" {
		return Check{Name: name, Pass: true, Message: "speech output disabled"}
	}
	if _, err := tts.New(cfg, tts.Env(env), nil); err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("%s backend configured", cfg.Backend)}
}
