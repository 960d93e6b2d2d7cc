// Package assemblyai streams microphone audio to the AssemblyAI v3 realtime websocket.
package assemblyai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// SampleRate is the PCM rate declared on the connection URL.
const SampleRate = 16000

// Dialer opens the websocket. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// ResultFunc receives each turn transcript.
type ResultFunc func(transcript string, final bool)

// StreamConfig controls one realtime session.
type StreamConfig struct {
	URL            string
	APIKey         string
	FormatTurns    bool
	InterimResults bool
	DialTimeout    time.Duration
	Dialer         Dialer
	// DebugSink receives every server message verbatim, one per line.
	DebugSink io.Writer
	OnResult  ResultFunc
}

type envelope struct {
	Type string `json:"type"`
}

type turnMessage struct {
	Type            string `json:"type"`
	TurnOrder       int    `json:"turn_order"`
	Transcript      string `json:"transcript"`
	EndOfTurn       bool   `json:"end_of_turn"`
	TurnIsFormatted bool   `json:"turn_is_formatted"`
}

type terminateMessage struct {
	Type string `json:"type"`
}

// Stream is one live realtime session.
type Stream struct {
	conn *websocket.Conn
	cfg  StreamConfig

	writeMu  sync.Mutex
	recvDone chan struct{}

	mu         sync.Mutex
	recvErr    error
	closedSend bool
	closed     bool
}

// DialStream connects and starts the receive loop.
func DialStream(ctx context.Context, cfg StreamConfig) (*Stream, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("assemblyai api key is empty")
	}
	endpoint, err := sessionURL(cfg.URL, cfg.FormatTurns)
	if err != nil {
		return nil, err
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	header := http.Header{}
	header.Set("Authorization", cfg.APIKey)

	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	conn, resp, err := cfg.Dialer.DialContext(dialCtx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("connect assemblyai (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("connect assemblyai: %w", err)
	}

	s := &Stream{conn: conn, cfg: cfg, recvDone: make(chan struct{})}
	go s.recvLoop()
	return s, nil
}

func sessionURL(raw string, formatTurns bool) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse assemblyai url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("assemblyai url must be ws or wss, got %q", raw)
	}
	q := u.Query()
	q.Set("sample_rate", strconv.Itoa(SampleRate))
	q.Set("encoding", "pcm_s16le")
	q.Set("format_turns", strconv.FormatBool(formatTurns))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Stream) recvLoop() {
	defer close(s.recvDone)

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.fail(err)
			}
			return
		}
		if sink := s.cfg.DebugSink; sink != nil {
			_, _ = sink.Write(append(append([]byte(nil), payload...), '\n'))
		}

		var head envelope
		if err := json.Unmarshal(payload, &head); err != nil {
			s.fail(fmt.Errorf("decode assemblyai message: %w", err))
			return
		}
		switch head.Type {
		case "Turn":
			var turn turnMessage
			if err := json.Unmarshal(payload, &turn); err != nil {
				s.fail(fmt.Errorf("decode turn: %w", err))
				return
			}
			s.handleTurn(turn)
		case "Termination":
			return
		}
	}
}

func (s *Stream) handleTurn(turn turnMessage) {
	transcript := strings.TrimSpace(turn.Transcript)
	if transcript == "" {
		return
	}
	final := turn.EndOfTurn && (turn.TurnIsFormatted || !s.cfg.FormatTurns)
	if !final && !s.cfg.InterimResults {
		return
	}
	if s.cfg.OnResult != nil {
		s.cfg.OnResult(transcript, final)
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

// SendAudio sends one PCM chunk as a binary frame.
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

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, chunk)
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

// Close asks the server to terminate the session, waits for trailing turns, and closes the socket.
func (s *Stream) Close(ctx context.Context) error {
	s.mu.Lock()
	alreadyClosed := s.closedSend
	s.closedSend = true
	s.mu.Unlock()

	if !alreadyClosed {
		s.writeMu.Lock()
		err := s.conn.WriteJSON(terminateMessage{Type: "Terminate"})
		s.writeMu.Unlock()
		if err != nil {
			s.fail(fmt.Errorf("send terminate: %w", err))
		}
	}

	select {
	case <-s.recvDone:
	case <-ctx.Done():
		_ = s.Cancel()
		return ctx.Err()
	}

	err := s.Err()
	_ = s.release()
	return err
}

// Cancel drops the connection without waiting for trailing turns.
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
	return s.conn.Close()
}
