// Package gspeech streams microphone audio to Cloud Speech-to-Text v1 StreamingRecognize.
package gspeech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
)

// SampleRate is the LINEAR16 rate declared in the streaming config.
const SampleRate = 16000

// Phrase is one adaptation phrase with its boost.
type Phrase struct {
	Text  string
	Boost float32
}

// ResultFunc receives the top alternative of the first result in each response.
type ResultFunc func(transcript string, final bool)

// StreamConfig controls dialing and recognition behavior.
type StreamConfig struct {
	Endpoint string
	// Plaintext dials Endpoint without TLS or credentials (local emulators and tests).
	Plaintext            bool
	LanguageCode         string
	Model                string
	AutomaticPunctuation bool
	InterimResults       bool
	Phrases              []Phrase
	DialTimeout          time.Duration
	ClientOptions        []option.ClientOption
	// DebugSink receives every response as one protojson line.
	DebugSink io.Writer
	OnResult  ResultFunc
}

// Stream is one active StreamingRecognize call.
type Stream struct {
	rpc       speechpb.Speech_StreamingRecognizeClient
	closeConn func() error
	cancel    context.CancelFunc
	cfg       StreamConfig

	recvDone chan struct{}

	mu         sync.Mutex
	recvErr    error
	closedSend bool
	closed     bool
}

// DialStream connects, sends the streaming config, and starts the receive loop.
func DialStream(ctx context.Context, cfg StreamConfig) (*Stream, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	if cfg.Endpoint == "" {
		return nil, errors.New("speech endpoint is empty")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if strings.TrimSpace(cfg.LanguageCode) == "" {
		cfg.LanguageCode = "en-US"
	}

	streamCtx, cancel := context.WithCancel(ctx)
	rpc, closeConn, err := openRecognize(streamCtx, cfg)
	if err != nil {
		cancel()
		return nil, err
	}

	if err := runWithTimeout(ctx, cfg.DialTimeout, func() error {
		return rpc.Send(configRequest(cfg))
	}); err != nil {
		cancel()
		_ = closeConn()
		return nil, fmt.Errorf("send streaming config: %w", err)
	}

	s := &Stream{
		rpc:       rpc,
		closeConn: closeConn,
		cancel:    cancel,
		cfg:       cfg,
		recvDone:  make(chan struct{}),
	}
	go s.recvLoop()
	return s, nil
}

func openRecognize(ctx context.Context, cfg StreamConfig) (speechpb.Speech_StreamingRecognizeClient, func() error, error) {
	if cfg.Plaintext {
		conn, err := grpc.NewClient(cfg.Endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, nil, fmt.Errorf("dial speech grpc %q: %w", cfg.Endpoint, err)
		}
		readyCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
		conn.Connect()
		if err := waitForReady(readyCtx, conn); err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("wait for speech grpc readiness: %w", err)
		}
		rpc, err := speechpb.NewSpeechClient(conn).StreamingRecognize(ctx)
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("open streaming recognizer: %w", err)
		}
		return rpc, conn.Close, nil
	}

	opts := append([]option.ClientOption{option.WithEndpoint(cfg.Endpoint)}, cfg.ClientOptions...)
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create speech client: %w", err)
	}
	rpc, err := client.StreamingRecognize(ctx)
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("open streaming recognizer: %w", err)
	}
	return rpc, client.Close, nil
}

func configRequest(cfg StreamConfig) *speechpb.StreamingRecognizeRequest {
	recognition := &speechpb.RecognitionConfig{
		Encoding:                   speechpb.RecognitionConfig_LINEAR16,
		SampleRateHertz:            SampleRate,
		AudioChannelCount:          1,
		LanguageCode:               cfg.LanguageCode,
		EnableAutomaticPunctuation: cfg.AutomaticPunctuation,
		Model:                      strings.TrimSpace(cfg.Model),
	}
	for _, phrase := range cfg.Phrases {
		text := strings.TrimSpace(phrase.Text)
		if text == "" {
			continue
		}
		recognition.SpeechContexts = append(recognition.SpeechContexts, &speechpb.SpeechContext{
			Phrases: []string{text},
			Boost:   phrase.Boost,
		})
	}

	return &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config:         recognition,
				InterimResults: cfg.InterimResults,
			},
		},
	}
}

func (s *Stream) recvLoop() {
	defer close(s.recvDone)

	for {
		resp, err := s.rpc.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.fail(err)
			}
			return
		}
		if rpcErr := resp.GetError(); rpcErr != nil && rpcErr.GetCode() != 0 {
			s.fail(fmt.Errorf("recognizer error %d: %s", rpcErr.GetCode(), rpcErr.GetMessage()))
			return
		}
		s.handleResponse(resp)
	}
}

func (s *Stream) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.recvErr = err
}

func (s *Stream) handleResponse(resp *speechpb.StreamingRecognizeResponse) {
	if sink := s.cfg.DebugSink; sink != nil {
		if b, err := protojson.Marshal(resp); err == nil {
			_, _ = sink.Write(append(b, '\n'))
		}
	}

	transcript, final, ok := firstTranscript(resp)
	if !ok || (!final && !s.cfg.InterimResults) {
		return
	}
	if s.cfg.OnResult != nil {
		s.cfg.OnResult(transcript, final)
	}
}

// firstTranscript reads the top alternative of the first result only.
func firstTranscript(resp *speechpb.StreamingRecognizeResponse) (string, bool, bool) {
	results := resp.GetResults()
	if len(results) == 0 {
		return "", false, false
	}
	alternatives := results[0].GetAlternatives()
	if len(alternatives) == 0 {
		return "", false, false
	}
	transcript := strings.TrimSpace(alternatives[0].GetTranscript())
	if transcript == "" {
		return "", false, false
	}
	return transcript, results[0].GetIsFinal(), true
}

// SendAudio sends one PCM chunk.
func (s *Stream) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.mu.Lock()
	closed := s.closedSend
	recvErr := s.recvErr
	s.mu.Unlock()

	if closed {
		return errors.New("stream already closed for sending")
	}
	if recvErr != nil {
		return fmt.Errorf("stream receive loop failed: %w", recvErr)
	}

	return s.rpc.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{AudioContent: chunk},
	})
}

// Done closes when the receive loop exits.
func (s *Stream) Done() <-chan struct{} {
	return s.recvDone
}

// Err reports the receive loop failure, if any.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recvErr
}

// Close half-closes the stream, waits for trailing results, and releases the connection.
func (s *Stream) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closedSend {
		s.closedSend = true
		_ = s.rpc.CloseSend()
	}
	s.mu.Unlock()

	select {
	case <-s.recvDone:
	case <-ctx.Done():
		_ = s.Cancel()
		return ctx.Err()
	}

	err := s.Err()
	s.release()
	return err
}

// Cancel aborts the call without waiting for trailing results.
func (s *Stream) Cancel() error {
	s.mu.Lock()
	s.closedSend = true
	s.mu.Unlock()
	return s.release()
}

func (s *Stream) release() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	return s.closeConn()
}
