package registry

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"p2p-chat/core"
	"p2p-chat/store"
)

func newTestRegistry(t *testing.T) (*Registry, *clock.Mock) {
	t.Helper()
	reg := New(store.NewMemory(), Config{}, zap.NewNop().Sugar())
	mock := clock.NewMock()
	reg.Clock = mock
	return reg, mock
}

func TestRegister_CreatesOnlineRecord(t *testing.T) {
	ctx := context.Background()
	reg, mock := newTestRegistry(t)

	rec, created, err := reg.Register(ctx, "alice", "10.0.0.1", 9000)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, core.StatusOnline, rec.Status)
	require.Equal(t, "10.0.0.1:9000", rec.Addr())
	require.Equal(t, mock.Now(), rec.RegisteredAt)

	online, err := reg.ListOnline(ctx)
	require.NoError(t, err)
	require.Len(t, online, 1)
	require.Equal(t, "alice", online[0].Username)
}

func TestRegister_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	reg, mock := newTestRegistry(t)

	first, _, err := reg.Register(ctx, "alice", "10.0.0.1", 9000)
	require.NoError(t, err)

	mock.Add(time.Minute)
	second, created, err := reg.Register(ctx, "alice", "10.0.0.2", 9001)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, "10.0.0.2:9001", second.Addr())
	require.Equal(t, core.StatusOnline, second.Status)
	// First registration time is preserved, liveness is refreshed.
	require.Equal(t, first.RegisteredAt, second.RegisteredAt)
	require.True(t, second.LastSeen.After(first.LastSeen))
}

func TestHeartbeat_UnknownUsernameIsNoop(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	require.NoError(t, reg.Heartbeat(ctx, "ghost"))
	_, err := reg.Lookup(ctx, "ghost")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestHeartbeat_KeepsRecordAlive(t *testing.T) {
	ctx := context.Background()
	reg, mock := newTestRegistry(t)

	_, _, err := reg.Register(ctx, "alice", "10.0.0.1", 9000)
	require.NoError(t, err)

	// Heartbeat just before expiry, twice over: still online.
	for i := 0; i < 2; i++ {
		mock.Add(DefaultTTL - time.Minute)
		require.NoError(t, reg.Heartbeat(ctx, "alice"))
	}

	online, err := reg.ListOnline(ctx)
	require.NoError(t, err)
	require.Len(t, online, 1)
}

func TestTTL_ExpiredRecordIsOffline(t *testing.T) {
	ctx := context.Background()
	reg, mock := newTestRegistry(t)

	_, _, err := reg.Register(ctx, "alice", "10.0.0.1", 9000)
	require.NoError(t, err)

	mock.Add(DefaultTTL + time.Second)

	// Excluded from the online list without any sweep having run.
	online, err := reg.ListOnline(ctx)
	require.NoError(t, err)
	require.Empty(t, online)

	// Lookup still resolves the record but reports it offline.
	rec, err := reg.Lookup(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, core.StatusOffline, rec.Status)
}

func TestSweepExpired_RewritesAndPublishes(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	reg := New(st, Config{}, zap.NewNop().Sugar())
	mock := clock.NewMock()
	reg.Clock = mock

	var events []core.PresenceEvent
	reg.OnPresence = func(ev core.PresenceEvent) { events = append(events, ev) }

	_, _, err := reg.Register(ctx, "alice", "10.0.0.1", 9000)
	require.NoError(t, err)
	mock.Add(DefaultTTL - time.Minute)
	_, _, err = reg.Register(ctx, "bob", "10.0.0.2", 9001)
	require.NoError(t, err)

	mock.Add(2 * time.Minute) // alice past TTL, bob fresh
	require.NoError(t, reg.SweepExpired(ctx))

	stored, err := st.Get(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, core.StatusOffline, stored.Status)

	stored, err = st.Get(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, core.StatusOnline, stored.Status)

	require.Len(t, events, 3) // alice online, bob online, alice offline
	last := events[len(events)-1]
	require.Equal(t, core.EventOffline, last.Event)
	require.Equal(t, "alice", last.Username)
}

func TestUnregister_MarksOfflineKeepsHistory(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	_, _, err := reg.Register(ctx, "alice", "10.0.0.1", 9000)
	require.NoError(t, err)
	require.NoError(t, reg.Unregister(ctx, "alice"))

	online, err := reg.ListOnline(ctx)
	require.NoError(t, err)
	require.Empty(t, online)

	rec, err := reg.Lookup(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, core.StatusOffline, rec.Status)
	require.False(t, rec.RegisteredAt.IsZero())

	// Unregistering an unknown peer is not an error.
	require.NoError(t, reg.Unregister(ctx, "ghost"))
}

func TestLookup_ReflectsLastWrite(t *testing.T) {
	ctx := context.Background()
	reg, mock := newTestRegistry(t)

	_, _, err := reg.Register(ctx, "alice", "10.0.0.1", 9000)
	require.NoError(t, err)
	require.NoError(t, reg.Unregister(ctx, "alice"))

	mock.Add(time.Minute)
	_, _, err = reg.Register(ctx, "alice", "10.0.0.3", 9002)
	require.NoError(t, err)

	rec, err := reg.Lookup(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, core.StatusOnline, rec.Status)
	require.Equal(t, "10.0.0.3:9002", rec.Addr())
}
