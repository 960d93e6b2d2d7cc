package config

// DefaultChatEndpoint is the chat service every turn is posted to unless chat.endpoint overrides it.
const DefaultChatEndpoint = "https://e4f3-34-83-201-170.ngrok-free.app/chat_d"

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	clipboard := "wl-copy --trim-newline"

	return Config{
		Chat: ChatConfig{
			Backend:     "http",
			Endpoint:    DefaultChatEndpoint,
			OpenAIModel: "gpt-4o-mini",
		},
		Speech: SpeechConfig{
			Backend:              "google",
			LanguageCode:         "en-US",
			AutomaticPunctuation: true,
			GoogleEndpoint:       "speech.googleapis.com:443",
			AssemblyAIURL:        "wss://streaming.assemblyai.com/v3/ws",
		},
		Audio: AudioConfig{
			Input:    "default",
			Fallback: "default",
		},
		TTS: TTSConfig{
			Backend:           "elevenlabs",
			ElevenLabsBaseURL: "https://api.elevenlabs.io",
		},
		Animation: AnimationConfig{
			Bars:           5,
			FPS:            60,
			Width:          300,
			Height:         50,
			Columns:        45,
			Rows:           5,
			ListeningColor: "#4CAF50",
			SpeakingColor:  "#2196F3",
		},
		Cues:      CuesConfig{Enable: true},
		Clipboard: CommandConfig{Raw: clipboard, Argv: mustParseArgv(clipboard)},
		Vocab: VocabConfig{
			GlobalSets: nil,
			Sets:       map[string]VocabSet{},
			MaxPhrases: 1024,
		},
		Log:   LogConfig{Level: "info"},
		Debug: DebugConfig{},
	}
}
