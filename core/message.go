package core

import "time"

// Handshake message types.
const (
	TypeConnectRequest     = "connect_request"
	TypeConnectionAccepted = "connection_accepted"
	TypeConnectionRejected = "connection_rejected"
)

// Chat message types.
const (
	TypeText       = "message"
	TypeDisconnect = "disconnect"
)

// HandshakeMessage is exchanged once per new socket before any chat traffic.
// Username is set on connect_request, From on accepted/rejected replies.
type HandshakeMessage struct {
	Type      string    `json:"type"`
	Username  string    `json:"username,omitempty"`
	From      string    `json:"from,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// ChatMessage is one framed payload exchanged between connected nodes.
type ChatMessage struct {
	Type      string    `json:"type"`
	From      string    `json:"from"`
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewConnectRequest(username string) HandshakeMessage {
	return HandshakeMessage{Type: TypeConnectRequest, Username: username, Timestamp: time.Now()}
}

func NewConnectionAccepted(from string) HandshakeMessage {
	return HandshakeMessage{Type: TypeConnectionAccepted, From: from}
}

func NewConnectionRejected(from string) HandshakeMessage {
	return HandshakeMessage{Type: TypeConnectionRejected, From: from}
}

func NewText(from, content string) ChatMessage {
	return ChatMessage{Type: TypeText, From: from, Content: content, Timestamp: time.Now()}
}

func NewDisconnect(from string) ChatMessage {
	return ChatMessage{Type: TypeDisconnect, From: from, Timestamp: time.Now()}
}
