// Package ipc is the JSON-lines unix socket that lets CLI commands drive a running widget.
package ipc

// Remote commands understood by a running widget.
const (
	CommandStatus = "status"
	CommandStart  = "start"
	CommandStop   = "stop"
	CommandSend   = "send"
)

// Request is one line sent by a client. Text is only read by CommandSend.
type Request struct {
	Command string `json:"command"`
	Text    string `json:"text,omitempty"`
}

// Response is the single line written back for each Request.
type Response struct {
	OK      bool   `json:"ok"`
	State   string `json:"state,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
