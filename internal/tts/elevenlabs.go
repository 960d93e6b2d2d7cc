package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hajimehoshi/go-mp3"
	"github.com/rbright/vochat/internal/audio"
	"github.com/rbright/vochat/internal/version"
)

const (
	defaultElevenLabsBaseURL = "https://api.elevenlabs.io"
	defaultElevenLabsVoice   = "21m00Tcm4TlvDq8ikWAM"
	defaultElevenLabsModel   = "eleven_multilingual_v2"
	elevenLabsOutputFormat   = "mp3_44100_128"
)

// ElevenLabsOptions configures NewElevenLabs. Empty fields select the defaults.
type ElevenLabsOptions struct {
	APIKey  string
	BaseURL string
	Voice   string
	Model   string
	Client  *http.Client
}

// ElevenLabs synthesizes through the streaming with-timestamps endpoint and decodes its MP3.
type ElevenLabs struct {
	apiKey  string
	baseURL string
	voice   string
	model   string
	client  *http.Client
}

type elevenLabsRequest struct {
	Text          string                  `json:"text"`
	ModelID       string                  `json:"model_id"`
	VoiceSettings elevenLabsVoiceSettings `json:"voice_settings"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type elevenLabsChunk struct {
	AudioBase64 string `json:"audio_base64"`
}

type elevenLabsError struct {
	Detail json.RawMessage `json:"detail"`
}

// NewElevenLabs builds an ElevenLabs synthesizer.
func NewElevenLabs(opts ElevenLabsOptions) *ElevenLabs {
	e := &ElevenLabs{
		apiKey:  opts.APIKey,
		baseURL: strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		voice:   strings.TrimSpace(opts.Voice),
		model:   strings.TrimSpace(opts.Model),
		client:  opts.Client,
	}
	if e.baseURL == "" {
		e.baseURL = defaultElevenLabsBaseURL
	}
	if e.voice == "" {
		e.voice = defaultElevenLabsVoice
	}
	if e.model == "" {
		e.model = defaultElevenLabsModel
	}
	if e.client == nil {
		e.client = http.DefaultClient
	}
	return e
}

// Synthesize starts the stream and returns decoded stereo PCM once the first MP3 frame arrives.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string) (Audio, error) {
	mp3Stream, err := e.stream(ctx, text)
	if err != nil {
		return Audio{}, err
	}
	decoder, err := mp3.NewDecoder(mp3Stream)
	if err != nil {
		_ = mp3Stream.Close()
		return Audio{}, fmt.Errorf("decode mp3: %w", err)
	}
	return Audio{
		PCM:    readCloser{Reader: decoder, Closer: mp3Stream},
		Format: audio.Format{SampleRate: decoder.SampleRate(), Channels: 2},
	}, nil
}

// stream posts text and returns the concatenated MP3 bytes of the reply's audio chunks.
func (e *ElevenLabs) stream(ctx context.Context, text string) (io.ReadCloser, error) {
	endpoint, err := url.Parse(fmt.Sprintf("%s/v1/text-to-speech/%s/stream/with-timestamps", e.baseURL, url.PathEscape(e.voice)))
	if err != nil {
		return nil, fmt.Errorf("build elevenlabs url: %w", err)
	}
	q := endpoint.Query()
	q.Set("output_format", elevenLabsOutputFormat)
	endpoint.RawQuery = q.Encode()

	body, err := json.Marshal(elevenLabsRequest{
		Text:          text,
		ModelID:       e.model,
		VoiceSettings: elevenLabsVoiceSettings{Stability: 0.75, SimilarityBoost: 0.7},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal elevenlabs request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build elevenlabs request: %w", err)
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, elevenLabsStatusError(resp)
	}

	pr, pw := io.Pipe()
	go func() {
		defer resp.Body.Close()
		pw.CloseWithError(copyAudioChunks(pw, resp.Body))
	}()
	return pr, nil
}

// copyAudioChunks decodes a stream of JSON objects and writes each audio_base64 payload to w.
func copyAudioChunks(w io.Writer, r io.Reader) error {
	dec := json.NewDecoder(r)
	for {
		var chunk elevenLabsChunk
		if err := dec.Decode(&chunk); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decode elevenlabs chunk: %w", err)
		}
		if chunk.AudioBase64 == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(chunk.AudioBase64)
		if err != nil {
			return fmt.Errorf("decode audio_base64: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
	}
}

func elevenLabsStatusError(resp *http.Response) error {
	var payload elevenLabsError
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(raw, &payload) == nil && len(payload.Detail) > 0 {
		return fmt.Errorf("elevenlabs status %d: %s", resp.StatusCode, detailMessage(payload.Detail))
	}
	return fmt.Errorf("elevenlabs status %d", resp.StatusCode)
}

// detailMessage accepts both the string and {"message": ...} shapes of detail.
func detailMessage(detail json.RawMessage) string {
	var text string
	if json.Unmarshal(detail, &text) == nil {
		return text
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(detail, &obj) == nil && obj.Message != "" {
		return obj.Message
	}
	return string(detail)
}

type readCloser struct {
	io.Reader
	io.Closer
}
