package tts

import (
	"context"
	"strings"

	"github.com/rbright/vochat/internal/audio"
	openai "github.com/sashabaranov/go-openai"
)

// openAIPCMRate is the fixed rate of response_format=pcm.
const openAIPCMRate = 24000

// OpenAIOptions configures NewOpenAI. Empty fields select the API defaults.
type OpenAIOptions struct {
	APIKey  string
	BaseURL string
	Voice   string
	Model   string
}

// OpenAI synthesizes through the audio/speech endpoint as raw 24kHz mono PCM.
type OpenAI struct {
	client *openai.Client
	voice  openai.SpeechVoice
	model  openai.SpeechModel
}

// NewOpenAI builds a go-openai backed synthesizer.
func NewOpenAI(opts OpenAIOptions) *OpenAI {
	cfg := openai.DefaultConfig(opts.APIKey)
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		cfg.BaseURL = strings.TrimRight(base, "/")
	}
	voice := openai.SpeechVoice(strings.TrimSpace(opts.Voice))
	if voice == "" {
		voice = openai.VoiceAlloy
	}
	model := openai.SpeechModel(strings.TrimSpace(opts.Model))
	if model == "" {
		model = openai.TTSModel1
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), voice: voice, model: model}
}

// Synthesize requests PCM for text.
func (o *OpenAI) Synthesize(ctx context.Context, text string) (Audio, error) {
	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          o.model,
		Input:          text,
		Voice:          o.voice,
		ResponseFormat: openai.SpeechResponseFormatPcm,
	})
	if err != nil {
		return Audio{}, err
	}
	return Audio{PCM: resp, Format: audio.Format{SampleRate: openAIPCMRate, Channels: 1}}, nil
}
