package core

import (
	"fmt"
	"time"
)

// PeerStatus is the liveness status of a registered peer.
type PeerStatus string

const (
	StatusOnline  PeerStatus = "online"
	StatusOffline PeerStatus = "offline"
)

// PeerRecord is one registry entry per known username.
type PeerRecord struct {
	Username     string     `json:"username"`
	IPAddress    string     `json:"ip_address"`
	Port         int        `json:"port"`
	Status       PeerStatus `json:"status"`
	LastSeen     time.Time  `json:"last_seen"`
	RegisteredAt time.Time  `json:"registered_at"`
}

// Addr returns the peer's TCP address as "IP:Port".
func (r *PeerRecord) Addr() string {
	return fmt.Sprintf("%s:%d", r.IPAddress, r.Port)
}

// Clone returns a copy so callers can't mutate stored records.
func (r *PeerRecord) Clone() *PeerRecord {
	c := *r
	return &c
}

// PresenceEvent is pushed by the registry when a peer comes online or goes
// offline (explicit unregister or TTL expiry).
type PresenceEvent struct {
	Event     string    `json:"event"` // "online" or "offline"
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	EventOnline  = "online"
	EventOffline = "offline"
)
