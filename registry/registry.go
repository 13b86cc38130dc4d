// Package registry implements the rendezvous service: a presence store with
// TTL liveness tracking, exposed over HTTP plus a WebSocket presence feed.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"p2p-chat/core"
	"p2p-chat/store"
)

const (
	// DefaultTTL: a record not heartbeaten for this long counts as offline.
	DefaultTTL = 30 * time.Minute
	// DefaultSweepInterval: how often the background sweep rewrites expired
	// records to offline.
	DefaultSweepInterval = 5 * time.Minute
)

// Config tunes the expiry policy. Zero fields take the defaults above.
type Config struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

// Registry owns the presence records and their expiry policy.
type Registry struct {
	store store.Store
	ttl   time.Duration
	sweep time.Duration
	log   *zap.SugaredLogger

	// Clock is replaceable so TTL behavior is testable with a mock clock.
	Clock clock.Clock

	// OnPresence, if set, is called for every online/offline transition.
	OnPresence func(core.PresenceEvent)
}

func New(st store.Store, cfg Config, log *zap.SugaredLogger) *Registry {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	return &Registry{
		store: st,
		ttl:   cfg.TTL,
		sweep: cfg.SweepInterval,
		log:   log,
		Clock: clock.New(),
	}
}

// Register creates or refreshes the record for username. Re-registration
// never fails: it updates the address and marks the peer online again.
// The boolean reports whether the record is new.
func (r *Registry) Register(ctx context.Context, username, ip string, port int) (*core.PeerRecord, bool, error) {
	now := r.Clock.Now()

	rec, err := r.store.Get(ctx, username)
	switch {
	case errors.Is(err, core.ErrNotFound):
		rec = &core.PeerRecord{
			Username:     username,
			IPAddress:    ip,
			Port:         port,
			Status:       core.StatusOnline,
			LastSeen:     now,
			RegisteredAt: now,
		}
		if err := r.store.Set(ctx, rec); err != nil {
			return nil, false, fmt.Errorf("register %s: %w", username, err)
		}
		r.log.Infow("peer registered", "username", username, "addr", rec.Addr())
		r.publish(core.EventOnline, username, now)
		return rec, true, nil
	case err != nil:
		return nil, false, fmt.Errorf("register %s: %w", username, err)
	}

	wasOffline := rec.Status != core.StatusOnline || r.expired(rec)
	rec.IPAddress = ip
	rec.Port = port
	rec.Status = core.StatusOnline
	rec.LastSeen = now
	if err := r.store.Set(ctx, rec); err != nil {
		return nil, false, fmt.Errorf("register %s: %w", username, err)
	}
	r.log.Infow("peer re-registered", "username", username, "addr", rec.Addr())
	if wasOffline {
		r.publish(core.EventOnline, username, now)
	}
	return rec, false, nil
}

// Heartbeat refreshes the liveness timestamp. Unknown usernames are a no-op:
// a heartbeat is a liveness ping, not a registration.
func (r *Registry) Heartbeat(ctx context.Context, username string) error {
	rec, err := r.store.Get(ctx, username)
	if errors.Is(err, core.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("heartbeat %s: %w", username, err)
	}
	rec.Status = core.StatusOnline
	rec.LastSeen = r.Clock.Now()
	if err := r.store.Set(ctx, rec); err != nil {
		return fmt.Errorf("heartbeat %s: %w", username, err)
	}
	return nil
}

// Unregister marks the record offline. History is kept, not deleted.
func (r *Registry) Unregister(ctx context.Context, username string) error {
	rec, err := r.store.Get(ctx, username)
	if errors.Is(err, core.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("unregister %s: %w", username, err)
	}
	rec.Status = core.StatusOffline
	if err := r.store.Set(ctx, rec); err != nil {
		return fmt.Errorf("unregister %s: %w", username, err)
	}
	r.log.Infow("peer unregistered", "username", username)
	r.publish(core.EventOffline, username, r.Clock.Now())
	return nil
}

// ListOnline returns all records currently online. Records past the TTL are
// excluded even if the sweep has not rewritten them yet.
func (r *Registry) ListOnline(ctx context.Context) ([]*core.PeerRecord, error) {
	recs, err := r.store.ScanOnline(ctx)
	if err != nil {
		return nil, fmt.Errorf("list online: %w", err)
	}
	online := recs[:0]
	for _, rec := range recs {
		if !r.expired(rec) {
			online = append(online, rec)
		}
	}
	return online, nil
}

// Lookup returns the record regardless of status; callers filter themselves.
// An expired record is reported offline even if the store still says online.
func (r *Registry) Lookup(ctx context.Context, username string) (*core.PeerRecord, error) {
	rec, err := r.store.Get(ctx, username)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("lookup %s: %w", username, core.ErrNotFound)
		}
		return nil, fmt.Errorf("lookup %s: %w", username, err)
	}
	if rec.Status == core.StatusOnline && r.expired(rec) {
		rec.Status = core.StatusOffline
	}
	return rec, nil
}

// Run performs the periodic expiry sweep until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	ticker := r.Clock.Ticker(r.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.SweepExpired(ctx); err != nil {
				r.log.Warnw("expiry sweep failed", "error", err)
			}
		}
	}
}

// SweepExpired rewrites every online record past the TTL to offline. It only
// touches expired records; concurrent register/heartbeat writes on the same
// key are last-writer-wins on last_seen.
func (r *Registry) SweepExpired(ctx context.Context) error {
	recs, err := r.store.ScanOnline(ctx)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if !r.expired(rec) {
			continue
		}
		rec.Status = core.StatusOffline
		if err := r.store.Set(ctx, rec); err != nil {
			return fmt.Errorf("sweep %s: %w", rec.Username, err)
		}
		r.log.Infow("peer expired", "username", rec.Username, "last_seen", rec.LastSeen)
		r.publish(core.EventOffline, rec.Username, r.Clock.Now())
	}
	return nil
}

func (r *Registry) expired(rec *core.PeerRecord) bool {
	return r.Clock.Now().Sub(rec.LastSeen) > r.ttl
}

func (r *Registry) publish(event, username string, ts time.Time) {
	if r.OnPresence == nil {
		return
	}
	r.OnPresence(core.PresenceEvent{Event: event, Username: username, Timestamp: ts})
}
