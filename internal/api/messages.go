// Package api defines the JSON-lines envelope a session speaks to its
// transport: shell output travels base64 encoded inside terminal_output
// messages, bracketed by one shell_connected and one shell_closed message.
package api

// Message types written on the output channel.
const (
	TypeShellConnected = "shell_connected"
	TypeTerminalOutput = "terminal_output"
	TypeShellClosed    = "shell_closed"
	TypeError          = "error"
)

// EncodingBase64 marks Data as standard base64.
const EncodingBase64 = "base64"

// Message is one line of the output stream.
type Message struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	PTY       bool   `json:"pty,omitempty"`
	Data      string `json:"data,omitempty"`
	Encoding  string `json:"encoding,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Connected is sent once the shell is running.
func Connected(sessionID string) Message {
	return Message{Type: TypeShellConnected, SessionID: sessionID, PTY: true}
}

// Output carries one chunk of shell output.
func Output(sessionID, data string) Message {
	return Message{
		Type:      TypeTerminalOutput,
		SessionID: sessionID,
		Data:      data,
		Encoding:  EncodingBase64,
	}
}

// Closed is sent once after the session has been cleaned up.
func Closed(sessionID string) Message {
	return Message{Type: TypeShellClosed, SessionID: sessionID}
}

// Error reports a session that could not start.
func Error(sessionID, msg string) Message {
	return Message{Type: TypeError, SessionID: sessionID, Message: msg}
}
