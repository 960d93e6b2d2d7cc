// Package config resolves, parses, validates, and defaults vochat configuration.
package config

// Config is the fully materialized runtime configuration used by vochat.
type Config struct {
	Chat      ChatConfig
	Speech    SpeechConfig
	Audio     AudioConfig
	TTS       TTSConfig
	Animation AnimationConfig
	Cues      CuesConfig
	Clipboard CommandConfig
	Vocab     VocabConfig
	Log       LogConfig
	Debug     DebugConfig
}

// ChatConfig selects the chat backend and its endpoint.
type ChatConfig struct {
	Backend       string
	Endpoint      string
	TimeoutMS     int
	OpenAIModel   string
	OpenAIBaseURL string
	SystemPrompt  string
}

// SpeechConfig controls the recognizer engine behind the listen controls.
type SpeechConfig struct {
	Backend              string
	LanguageCode         string
	AutomaticPunctuation bool
	InterimResults       bool
	GoogleEndpoint       string
	GooglePlaintext      bool
	GoogleModel          string
	AssemblyAIURL        string
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input    string
	Fallback string
}

// TTSConfig selects the speech synthesis backend. Empty Voice or Model picks the backend default.
type TTSConfig struct {
	Backend           string
	Voice             string
	Model             string
	ElevenLabsBaseURL string
	OpenAIBaseURL     string
}

// AnimationConfig sizes the waveform surface and its frame rate.
type AnimationConfig struct {
	Bars           int
	FPS            int
	Width          int
	Height         int
	Columns        int
	Rows           int
	ListeningColor string
	SpeakingColor  string
}

// CuesConfig controls audible listen start/stop cues.
type CuesConfig struct {
	Enable    bool
	StartFile string
	StopFile  string
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// VocabConfig controls enabled speech phrase sets and dedupe limits.
type VocabConfig struct {
	GlobalSets []string
	Sets       map[string]VocabSet
	MaxPhrases int
}

// VocabSet is one named phrase group with a shared boost value.
type VocabSet struct {
	Name    string
	Boost   float64
	Phrases []string
}

// LogConfig controls the JSONL log level.
type LogConfig struct {
	Level string
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	EnableAudioDump bool
	EnableGRPCDump  bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}

// SpeechPhrase is the normalized phrase payload sent to recognizer engines.
type SpeechPhrase struct {
	Phrase string
	Boost  float32
}
