package net

import (
	"errors"
	"fmt"
	"net"

	"p2p-chat/core"
)

// ErrRejected: the remote peer (or its consent policy) declined the
// connection. Not a failure of the handshake itself.
var ErrRejected = errors.New("connection rejected")

// ConsentFunc decides whether to accept an incoming connect request. It may
// block (interactive approval) and is called once per handshake.
type ConsentFunc func(req core.HandshakeMessage) bool

// Initiate runs the initiator side of the handshake: send connect_request,
// wait for exactly one accepted/rejected reply. Returns the responder's
// username on acceptance. The caller owns closing the socket on error.
func Initiate(conn net.Conn, username string) (string, error) {
	if err := WriteFrame(conn, core.NewConnectRequest(username)); err != nil {
		return "", fmt.Errorf("%w: send connect request: %v", core.ErrHandshakeFailed, err)
	}

	var reply core.HandshakeMessage
	if err := ReadFrame(conn, &reply); err != nil {
		return "", fmt.Errorf("%w: read reply: %v", core.ErrHandshakeFailed, err)
	}

	switch reply.Type {
	case core.TypeConnectionAccepted:
		if reply.From == "" {
			return "", fmt.Errorf("%w: accepted reply missing username", core.ErrHandshakeFailed)
		}
		return reply.From, nil
	case core.TypeConnectionRejected:
		return "", fmt.Errorf("%w by %s", ErrRejected, reply.From)
	default:
		return "", fmt.Errorf("%w: unexpected reply type %q", core.ErrHandshakeFailed, reply.Type)
	}
}

// Respond runs the responder side: read the connect_request, ask decide, and
// answer with exactly one accepted/rejected message. Returns the initiator's
// username on acceptance. The caller owns closing the socket on error.
func Respond(conn net.Conn, username string, decide ConsentFunc) (string, error) {
	var req core.HandshakeMessage
	if err := ReadFrame(conn, &req); err != nil {
		return "", fmt.Errorf("%w: read connect request: %v", core.ErrHandshakeFailed, err)
	}
	if req.Type != core.TypeConnectRequest || req.Username == "" {
		return "", fmt.Errorf("%w: unexpected first message type %q", core.ErrHandshakeFailed, req.Type)
	}

	if !decide(req) {
		// Best effort; the initiator may already be gone.
		_ = WriteFrame(conn, core.NewConnectionRejected(username))
		return "", fmt.Errorf("%w: request from %s", ErrRejected, req.Username)
	}

	if err := WriteFrame(conn, core.NewConnectionAccepted(username)); err != nil {
		return "", fmt.Errorf("%w: send accept: %v", core.ErrHandshakeFailed, err)
	}
	return req.Username, nil
}
