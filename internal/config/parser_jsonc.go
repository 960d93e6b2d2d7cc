package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type jsoncConfig struct {
	Chat      *jsoncChat      `json:"chat"`
	Speech    *jsoncSpeech    `json:"speech"`
	Audio     *jsoncAudio     `json:"audio"`
	TTS       *jsoncTTS       `json:"tts"`
	Animation *jsoncAnimation `json:"animation"`
	Cues      *jsoncCues      `json:"cues"`

	ClipboardCmd *string     `json:"clipboard_cmd"`
	Vocab        *jsoncVocab `json:"vocab"`
	Log          *jsoncLog   `json:"log"`
	Debug        *jsoncDebug `json:"debug"`
}

type jsoncChat struct {
	Backend       *string `json:"backend"`
	Endpoint      *string `json:"endpoint"`
	TimeoutMS     *int    `json:"timeout_ms"`
	OpenAIModel   *string `json:"openai_model"`
	OpenAIBaseURL *string `json:"openai_base_url"`
	SystemPrompt  *string `json:"system_prompt"`
}

type jsoncSpeech struct {
	Backend              *string `json:"backend"`
	LanguageCode         *string `json:"language_code"`
	AutomaticPunctuation *bool   `json:"automatic_punctuation"`
	InterimResults       *bool   `json:"interim_results"`
	GoogleEndpoint       *string `json:"google_endpoint"`
	GooglePlaintext      *bool   `json:"google_plaintext"`
	GoogleModel          *string `json:"google_model"`
	AssemblyAIURL        *string `json:"assemblyai_url"`
}

type jsoncAudio struct {
	Input    *string `json:"input"`
	Fallback *string `json:"fallback"`
}

type jsoncTTS struct {
	Backend           *string `json:"backend"`
	Voice             *string `json:"voice"`
	Model             *string `json:"model"`
	ElevenLabsBaseURL *string `json:"elevenlabs_base_url"`
	OpenAIBaseURL     *string `json:"openai_base_url"`
}

type jsoncAnimation struct {
	Bars           *int    `json:"bars"`
	FPS            *int    `json:"fps"`
	Width          *int    `json:"width"`
	Height         *int    `json:"height"`
	Columns        *int    `json:"columns"`
	Rows           *int    `json:"rows"`
	ListeningColor *string `json:"listening_color"`
	SpeakingColor  *string `json:"speaking_color"`
}

type jsoncCues struct {
	Enable    *bool   `json:"enable"`
	StartFile *string `json:"start_file"`
	StopFile  *string `json:"stop_file"`
}

type jsoncVocab struct {
	Global     *jsoncStringList         `json:"global"`
	MaxPhrases *int                     `json:"max_phrases"`
	Sets       map[string]jsoncVocabSet `json:"sets"`
}

type jsoncVocabSet struct {
	Boost   *float64 `json:"boost"`
	Phrases []string `json:"phrases"`
}

type jsoncLog struct {
	Level *string `json:"level"`
}

type jsoncDebug struct {
	AudioDump *bool `json:"audio_dump"`
	GRPCDump  *bool `json:"grpc_dump"`
}

// jsoncStringList accepts either a JSON string array or one comma-delimited string.
type jsoncStringList []string

func (l *jsoncStringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return fmt.Errorf("expected string array or comma-delimited string")
	}
	out := make([]string, 0)
	for _, part := range strings.Split(single, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*l = out
	return nil
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	warnings, err := payload.applyTo(&cfg)
	if err != nil {
		return Config{}, nil, err
	}

	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	warnings = append(warnings, validatedWarnings...)
	return cfg, warnings, nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func (payload jsoncConfig) applyTo(cfg *Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if c := payload.Chat; c != nil {
		setString(&cfg.Chat.Backend, c.Backend)
		setString(&cfg.Chat.Endpoint, c.Endpoint)
		setInt(&cfg.Chat.TimeoutMS, c.TimeoutMS)
		setString(&cfg.Chat.OpenAIModel, c.OpenAIModel)
		setString(&cfg.Chat.OpenAIBaseURL, c.OpenAIBaseURL)
		if c.SystemPrompt != nil {
			cfg.Chat.SystemPrompt = *c.SystemPrompt
		}
	}

	if s := payload.Speech; s != nil {
		setString(&cfg.Speech.Backend, s.Backend)
		setString(&cfg.Speech.LanguageCode, s.LanguageCode)
		setBool(&cfg.Speech.AutomaticPunctuation, s.AutomaticPunctuation)
		setBool(&cfg.Speech.InterimResults, s.InterimResults)
		setString(&cfg.Speech.GoogleEndpoint, s.GoogleEndpoint)
		setBool(&cfg.Speech.GooglePlaintext, s.GooglePlaintext)
		setString(&cfg.Speech.GoogleModel, s.GoogleModel)
		setString(&cfg.Speech.AssemblyAIURL, s.AssemblyAIURL)
		if cfg.Speech.InterimResults {
			warnings = append(warnings, Warning{Message: "speech.interim_results=true sends every partial transcript while listening"})
		}
	}

	if a := payload.Audio; a != nil {
		setString(&cfg.Audio.Input, a.Input)
		setString(&cfg.Audio.Fallback, a.Fallback)
	}

	if t := payload.TTS; t != nil {
		setString(&cfg.TTS.Backend, t.Backend)
		setString(&cfg.TTS.Voice, t.Voice)
		setString(&cfg.TTS.Model, t.Model)
		setString(&cfg.TTS.ElevenLabsBaseURL, t.ElevenLabsBaseURL)
		setString(&cfg.TTS.OpenAIBaseURL, t.OpenAIBaseURL)
	}

	if a := payload.Animation; a != nil {
		setInt(&cfg.Animation.Bars, a.Bars)
		setInt(&cfg.Animation.FPS, a.FPS)
		setInt(&cfg.Animation.Width, a.Width)
		setInt(&cfg.Animation.Height, a.Height)
		setInt(&cfg.Animation.Columns, a.Columns)
		setInt(&cfg.Animation.Rows, a.Rows)
		setString(&cfg.Animation.ListeningColor, a.ListeningColor)
		setString(&cfg.Animation.SpeakingColor, a.SpeakingColor)
	}

	if c := payload.Cues; c != nil {
		setBool(&cfg.Cues.Enable, c.Enable)
		setString(&cfg.Cues.StartFile, c.StartFile)
		setString(&cfg.Cues.StopFile, c.StopFile)
	}

	if payload.ClipboardCmd != nil {
		raw := *payload.ClipboardCmd
		argv, err := parseArgv(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid clipboard_cmd: %w", err)
		}
		cfg.Clipboard = CommandConfig{Raw: raw, Argv: argv}
	}

	if v := payload.Vocab; v != nil {
		if v.Global != nil {
			cfg.Vocab.GlobalSets = nil
			for _, name := range *v.Global {
				if name = strings.TrimSpace(name); name != "" {
					cfg.Vocab.GlobalSets = append(cfg.Vocab.GlobalSets, name)
				}
			}
		}
		setInt(&cfg.Vocab.MaxPhrases, v.MaxPhrases)
		if len(v.Sets) > 0 && cfg.Vocab.Sets == nil {
			cfg.Vocab.Sets = make(map[string]VocabSet, len(v.Sets))
		}
		for name, set := range v.Sets {
			trimmedName := strings.TrimSpace(name)
			if trimmedName == "" {
				return nil, fmt.Errorf("vocab.sets contains an empty set name")
			}
			entry := VocabSet{Name: trimmedName, Phrases: append([]string(nil), set.Phrases...)}
			if set.Boost != nil {
				entry.Boost = *set.Boost
			}
			cfg.Vocab.Sets[trimmedName] = entry
		}
	}

	if l := payload.Log; l != nil {
		setString(&cfg.Log.Level, l.Level)
	}

	if d := payload.Debug; d != nil {
		setBool(&cfg.Debug.EnableAudioDump, d.AudioDump)
		setBool(&cfg.Debug.EnableGRPCDump, d.GRPCDump)
	}

	return warnings, nil
}

// normalizeJSONC blanks comments and drops trailing commas in a single pass.
//
// Removed bytes are replaced by spaces, so decoder offsets still map onto the original text.
func normalizeJSONC(content string) (string, error) {
	var (
		out       strings.Builder
		held      strings.Builder
		commaHeld bool
	)
	out.Grow(len(content))

	emit := func(s string) {
		if commaHeld {
			held.WriteString(s)
			return
		}
		out.WriteString(s)
	}
	resolveComma := func(next byte) {
		if !commaHeld {
			return
		}
		if next == '}' || next == ']' {
			out.WriteByte(' ')
		} else {
			out.WriteByte(',')
		}
		out.WriteString(held.String())
		held.Reset()
		commaHeld = false
	}

	for i := 0; i < len(content); i++ {
		ch := content[i]
		var next byte
		if i+1 < len(content) {
			next = content[i+1]
		}

		switch {
		case ch == '"':
			resolveComma(ch)
			end := scanJSONString(content, i)
			out.WriteString(content[i : end+1])
			i = end
		case ch == '/' && next == '/':
			end := i + 2
			for end < len(content) && content[end] != '\n' && content[end] != '\r' {
				end++
			}
			emit(blankComment(content[i:end]))
			i = end - 1
		case ch == '/' && next == '*':
			closing := strings.Index(content[i+2:], "*/")
			if closing < 0 {
				return "", fmt.Errorf("unterminated block comment in JSONC")
			}
			end := i + 2 + closing + 2
			emit(blankComment(content[i:end]))
			i = end - 1
		case ch == ',':
			resolveComma(ch)
			commaHeld = true
		case isJSONWhitespace(ch):
			emit(string(ch))
		default:
			resolveComma(ch)
			out.WriteByte(ch)
		}
	}

	if commaHeld {
		out.WriteByte(',')
		out.WriteString(held.String())
	}
	return out.String(), nil
}

// scanJSONString returns the index of the quote closing the string opened at start.
// An unterminated string runs to the end of content and is left for the decoder to reject.
func scanJSONString(content string, start int) int {
	escaped := false
	for i := start + 1; i < len(content); i++ {
		switch {
		case escaped:
			escaped = false
		case content[i] == '\\':
			escaped = true
		case content[i] == '"':
			return i
		}
	}
	return len(content) - 1
}

func blankComment(comment string) string {
	b := []byte(comment)
	for i, ch := range b {
		if ch != '\n' && ch != '\r' && ch != '\t' {
			b[i] = ' '
		}
	}
	return string(b)
}

func isJSONWhitespace(ch byte) bool {
	return ch == ' ' || ch == '\n' || ch == '\r' || ch == '\t'
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra json.RawMessage
	err := decoder.Decode(&extra)
	switch {
	case errors.Is(err, io.EOF):
		return nil
	case err == nil:
		return fmt.Errorf("multiple JSON values are not allowed")
	default:
		return err
	}
}

func wrapJSONDecodeError(content string, err error) error {
	var offset int64 = -1

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		offset = syntaxErr.Offset
	case errors.As(err, &typeErr):
		offset = typeErr.Offset
	}
	if offset < 0 {
		return err
	}

	line, col := offsetToLineCol(content, offset)
	return fmt.Errorf("line %d column %d: %w", line, col, err)
}

// offsetToLineCol maps a 1-based decoder offset to a line and column.
func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}
	limit := min(int(offset), len(content))
	if limit <= 0 {
		return 1, 1
	}

	prefix := content[:limit-1]
	line := strings.Count(prefix, "\n") + 1
	col := len(prefix) - strings.LastIndex(prefix, "\n")
	return line, col
}
