// Package state holds the widget's transient UI record and the pure reducer that advances it.
package state

import "fmt"

// State is the immutable widget record. Reduce returns a new value for every event.
type State struct {
	Transcript string
	Response   string
	Error      string
	Input      string
	Listening  bool
	Speaking   bool
	// Pending counts chat round-trips that have started but not settled.
	Pending int
}

// Kind names one discrete widget event.
type Kind string

const (
	RecognitionStart  Kind = "recognition-start"
	RecognitionStop   Kind = "recognition-stop"
	RecognitionResult Kind = "recognition-result"
	RecognitionError  Kind = "recognition-error"
	InputChange       Kind = "input-change"
	ValidationFailure Kind = "validation-failure"
	SendStart         Kind = "send-start"
	SendSuccess       Kind = "send-success"
	SendFailure       Kind = "send-failure"
	SpeechStart       Kind = "speech-start"
	SpeechEnd         Kind = "speech-end"
	SpeechUnsupported Kind = "speech-unsupported"
)

// Event is one reducer input. Text carries the transcript, reply, input value, or error text.
type Event struct {
	Kind Kind
	Text string
}

// Reduce applies one event to s. Unknown kinds leave s unchanged and return an error.
func Reduce(s State, e Event) (State, error) {
	switch e.Kind {
	case RecognitionStart:
		s.Listening = true
	case RecognitionStop, RecognitionError:
		s.Listening = false
	case RecognitionResult:
		s.Transcript = e.Text
	case InputChange:
		s.Input = e.Text
	case ValidationFailure:
		s.Error = e.Text
		s.Input = ""
	case SendStart:
		s.Pending++
	case SendSuccess:
		s.Pending = settle(s.Pending)
		s.Response = e.Text
		s.Input = ""
	case SendFailure:
		s.Pending = settle(s.Pending)
		s.Error = e.Text
		s.Input = ""
	case SpeechStart:
		s.Speaking = true
	case SpeechEnd:
		s.Speaking = false
	case SpeechUnsupported:
		s.Error = e.Text
	default:
		return s, fmt.Errorf("unknown event %q", e.Kind)
	}
	return s, nil
}

// AutoSend reports whether moving from prev to next must send next.Transcript.
// A send fires once per transcript change, and only while listening.
func AutoSend(prev, next State) bool {
	return next.Listening && next.Transcript != "" && next.Transcript != prev.Transcript
}

// Activity summarizes the flags for status reporting.
func (s State) Activity() string {
	switch {
	case s.Listening && s.Speaking:
		return "listening+speaking"
	case s.Listening:
		return "listening"
	case s.Speaking:
		return "speaking"
	default:
		return "idle"
	}
}

func settle(pending int) int {
	if pending <= 0 {
		return 0
	}
	return pending - 1
}
