package core

import "errors"

// Error taxonomy shared by the registry and the peer node. Callers match with
// errors.Is; wrapping adds who/what failed.
var (
	// ErrNotFound: registry has no record for the username.
	ErrNotFound = errors.New("peer not found")

	// ErrAlreadyConnected: a live session for that username already exists.
	ErrAlreadyConnected = errors.New("already connected to peer")

	// ErrHandshakeFailed: socket closed or malformed message before the
	// handshake completed.
	ErrHandshakeFailed = errors.New("handshake failed")

	// ErrConnectionLost: connection reset or aborted mid-session.
	ErrConnectionLost = errors.New("connection lost")

	// ErrRegistryUnavailable: transport failure reaching the registry.
	ErrRegistryUnavailable = errors.New("registry unavailable")
)
