package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenAISynthesizeRequestsPCM(t *testing.T) {
	var request map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/audio/speech", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))
		w.Header().Set("Content-Type", "audio/pcm")
		_, _ = w.Write([]byte{1, 0, 2, 0})
	}))
	defer srv.Close()

	synth := NewOpenAI(OpenAIOptions{APIKey: "test-key", BaseURL: srv.URL + "/"})
	got, err := synth.Synthesize(context.Background(), "hello")
	require.NoError(t, err)
	defer got.PCM.Close()

	data, err := io.ReadAll(got.PCM)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 0, 2, 0}, data)
	require.Equal(t, 24000, got.Format.SampleRate)
	require.Equal(t, 1, got.Format.Channels)

	require.Equal(t, "hello", request["input"])
	require.Equal(t, "pcm", request["response_format"])
	require.Equal(t, "alloy", request["voice"])
	require.Equal(t, "tts-1", request["model"])
}

func TestOpenAISynthesizeSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := NewOpenAI(OpenAIOptions{APIKey: "k", BaseURL: srv.URL}).Synthesize(context.Background(), "hello")
	require.Error(t, err)
}

func elevenLabsChunkLine(payload []byte) string {
	raw, _ := json.Marshal(map[string]any{
		"audio_base64": base64.StdEncoding.EncodeToString(payload),
		"alignment":    map[string]any{"characters": []string{"h"}},
	})
	return string(raw) + "\n"
}

func TestElevenLabsStreamConcatenatesChunks(t *testing.T) {
	var (
		path    string
		query   string
		apiKey  string
		request elevenLabsRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		query = r.URL.RawQuery
		apiKey = r.Header.Get("xi-api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))

		_, _ = fmt.Fprint(w, elevenLabsChunkLine([]byte("ID3")))
		_, _ = fmt.Fprint(w, `{"audio_base64":""}`+"\n")
		_, _ = fmt.Fprint(w, elevenLabsChunkLine([]byte("frames")))
	}))
	defer srv.Close()

	synth := NewElevenLabs(ElevenLabsOptions{APIKey: "xi", BaseURL: srv.URL + "/", Voice: "voice-1"})
	stream, err := synth.stream(context.Background(), "hello there")
	require.NoError(t, err)
	defer stream.Close()

	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	require.Equal(t, "ID3frames", string(data))

	require.Equal(t, "/v1/text-to-speech/voice-1/stream/with-timestamps", path)
	require.Equal(t, "output_format=mp3_44100_128", query)
	require.Equal(t, "xi", apiKey)
	require.Equal(t, "hello there", request.Text)
	require.Equal(t, defaultElevenLabsModel, request.ModelID)
	require.Equal(t, 0.75, request.VoiceSettings.Stability)
	require.Equal(t, 0.7, request.VoiceSettings.SimilarityBoost)
}

func TestElevenLabsStatusErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{name: "string detail", body: `{"detail":"voice not found"}`, want: "status 404: voice not found"},
		{name: "object detail", body: `{"detail":{"status":"x","message":"quota exceeded"}}`, want: "status 404: quota exceeded"},
		{name: "plain body", body: `not json`, want: "elevenlabs status 404"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewElevenLabs(ElevenLabsOptions{APIKey: "xi", BaseURL: srv.URL}).Synthesize(context.Background(), "hi")
			require.ErrorContains(t, err, tc.want)
		})
	}
}

func TestElevenLabsSynthesizeRejectsInvalidMP3(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, elevenLabsChunkLine([]byte("definitely not an mp3 stream")))
	}))
	defer srv.Close()

	_, err := NewElevenLabs(ElevenLabsOptions{APIKey: "xi", BaseURL: srv.URL}).Synthesize(context.Background(), "hi")
	require.ErrorContains(t, err, "decode mp3")
}

func TestCopyAudioChunksRejectsBadPayload(t *testing.T) {
	var out strings.Builder
	err := copyAudioChunks(&out, strings.NewReader(`{"audio_base64":"!!!"}`))
	require.ErrorContains(t, err, "audio_base64")

	err = copyAudioChunks(&out, strings.NewReader(`{"audio_base64":`))
	require.ErrorContains(t, err, "decode elevenlabs chunk")
}

func TestNewElevenLabsDefaults(t *testing.T) {
	synth := NewElevenLabs(ElevenLabsOptions{APIKey: "xi"})
	require.Equal(t, defaultElevenLabsBaseURL, synth.baseURL)
	require.Equal(t, defaultElevenLabsVoice, synth.voice)
	require.Equal(t, defaultElevenLabsModel, synth.model)
	require.Equal(t, http.DefaultClient, synth.client)
}
