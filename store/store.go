// Package store provides the peer record storage used by the registry. Two
// interchangeable backends exist: an in-memory map and Redis. The registry
// works the same on either.
package store

import (
	"context"

	"p2p-chat/core"
)

// Store is the storage capability the registry depends on.
type Store interface {
	// Get returns the record for username or core.ErrNotFound.
	Get(ctx context.Context, username string) (*core.PeerRecord, error)
	// Set writes the full record, creating or overwriting it.
	Set(ctx context.Context, rec *core.PeerRecord) error
	// Delete removes the record entirely. Missing records are not an error.
	Delete(ctx context.Context, username string) error
	// ScanOnline returns all records whose stored status is online.
	ScanOnline(ctx context.Context) ([]*core.PeerRecord, error)
}
