package config

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

var hexColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Validate enforces config constraints and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if err := validateChat(cfg.Chat); err != nil {
		return nil, err
	}
	if err := validateSpeech(cfg.Speech); err != nil {
		return nil, err
	}
	if err := validateTTS(cfg.TTS); err != nil {
		return nil, err
	}
	if err := validateAnimation(cfg.Animation); err != nil {
		return nil, err
	}
	if cfg.Vocab.MaxPhrases <= 0 {
		return nil, fmt.Errorf("vocab.max_phrases must be > 0")
	}
	if len(cfg.Clipboard.Argv) == 0 {
		warnings = append(warnings, Warning{Message: "clipboard_cmd is empty; reply copy is disabled"})
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return nil, fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	_, vocabWarnings, err := BuildSpeechPhrases(cfg)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, vocabWarnings...)

	return warnings, nil
}

func validateChat(chat ChatConfig) error {
	switch chat.Backend {
	case "http":
		if err := requireURL("chat.endpoint", chat.Endpoint, "http", "https"); err != nil {
			return err
		}
	case "openai":
		if strings.TrimSpace(chat.OpenAIModel) == "" {
			return fmt.Errorf("chat.openai_model must not be empty when chat.backend=openai")
		}
	default:
		return fmt.Errorf("chat.backend must be one of: http, openai")
	}
	if chat.TimeoutMS < 0 {
		return fmt.Errorf("chat.timeout_ms must be >= 0")
	}
	if chat.OpenAIBaseURL != "" {
		return requireURL("chat.openai_base_url", chat.OpenAIBaseURL, "http", "https")
	}
	return nil
}

func validateSpeech(speech SpeechConfig) error {
	if strings.TrimSpace(speech.LanguageCode) == "" {
		return fmt.Errorf("speech.language_code must not be empty")
	}
	switch speech.Backend {
	case "none":
	case "google":
		if strings.TrimSpace(speech.GoogleEndpoint) == "" {
			return fmt.Errorf("speech.google_endpoint must not be empty when speech.backend=google")
		}
	case "assemblyai":
		if err := requireURL("speech.assemblyai_url", speech.AssemblyAIURL, "ws", "wss"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("speech.backend must be one of: google, assemblyai, none")
	}
	return nil
}

func validateTTS(tts TTSConfig) error {
	switch tts.Backend {
	case "none":
	case "elevenlabs":
		if err := requireURL("tts.elevenlabs_base_url", tts.ElevenLabsBaseURL, "http", "https"); err != nil {
			return err
		}
	case "openai":
		if tts.OpenAIBaseURL != "" {
			return requireURL("tts.openai_base_url", tts.OpenAIBaseURL, "http", "https")
		}
	default:
		return fmt.Errorf("tts.backend must be one of: elevenlabs, openai, none")
	}
	return nil
}

func validateAnimation(anim AnimationConfig) error {
	if anim.Bars <= 0 {
		return fmt.Errorf("animation.bars must be > 0")
	}
	if anim.FPS <= 0 || anim.FPS > 240 {
		return fmt.Errorf("animation.fps must be within 1..240")
	}
	if anim.Width <= 0 || anim.Height <= 0 {
		return fmt.Errorf("animation.width and animation.height must be > 0")
	}
	if anim.Columns <= 0 || anim.Rows <= 0 {
		return fmt.Errorf("animation.columns and animation.rows must be > 0")
	}
	if !hexColorPattern.MatchString(anim.ListeningColor) {
		return fmt.Errorf("animation.listening_color must be #RRGGBB")
	}
	if !hexColorPattern.MatchString(anim.SpeakingColor) {
		return fmt.Errorf("animation.speaking_color must be #RRGGBB")
	}
	return nil
}

func requireURL(name, raw string, schemes ...string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%s must not be empty", name)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	for _, scheme := range schemes {
		if strings.EqualFold(parsed.Scheme, scheme) && parsed.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s must be a %s URL", name, strings.Join(schemes, "/"))
}

// BuildSpeechPhrases merges enabled vocab sets into deterministic recognizer phrase payloads.
func BuildSpeechPhrases(cfg Config) ([]SpeechPhrase, []Warning, error) {
	enabledSets := cfg.Vocab.GlobalSets
	if len(enabledSets) == 0 {
		return nil, nil, nil
	}

	type candidate struct {
		boost float64
		from  string
	}

	warnings := make([]Warning, 0)
	selected := make(map[string]candidate)

	for _, name := range enabledSets {
		set, ok := cfg.Vocab.Sets[name]
		if !ok {
			return nil, nil, fmt.Errorf("vocab.global references unknown set %q", name)
		}
		for _, phrase := range set.Phrases {
			phrase = strings.TrimSpace(phrase)
			if phrase == "" {
				continue
			}
			existing, exists := selected[phrase]
			if !exists {
				selected[phrase] = candidate{boost: set.Boost, from: name}
				continue
			}
			if set.Boost > existing.boost {
				warnings = append(warnings, Warning{Message: fmt.Sprintf("phrase %q present in %q and %q; using higher boost %.2f", phrase, existing.from, name, set.Boost)})
				selected[phrase] = candidate{boost: set.Boost, from: name}
			}
		}
	}

	if len(selected) > cfg.Vocab.MaxPhrases {
		return nil, nil, fmt.Errorf("vocabulary phrase count %d exceeds vocab.max_phrases=%d", len(selected), cfg.Vocab.MaxPhrases)
	}

	phrases := make([]SpeechPhrase, 0, len(selected))
	for phrase, c := range selected {
		phrases = append(phrases, SpeechPhrase{Phrase: phrase, Boost: float32(c.boost)})
	}
	sort.Slice(phrases, func(i, j int) bool {
		return phrases[i].Phrase < phrases[j].Phrase
	})

	return phrases, warnings, nil
}
