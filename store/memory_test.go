package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"p2p-chat/core"
)

func record(username string, status core.PeerStatus) *core.PeerRecord {
	now := time.Now()
	return &core.PeerRecord{
		Username:     username,
		IPAddress:    "10.0.0.1",
		Port:         9000,
		Status:       status,
		LastSeen:     now,
		RegisteredAt: now,
	}
}

func TestMemory_SetGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Get(ctx, "alice")
	require.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, m.Set(ctx, record("alice", core.StatusOnline)))

	got, err := m.Get(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "alice", got.Username)
	require.Equal(t, core.StatusOnline, got.Status)
	require.Equal(t, "10.0.0.1:9000", got.Addr())
}

func TestMemory_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	first := record("alice", core.StatusOnline)
	require.NoError(t, m.Set(ctx, first))

	second := record("alice", core.StatusOffline)
	second.IPAddress = "10.0.0.2"
	require.NoError(t, m.Set(ctx, second))

	got, err := m.Get(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, core.StatusOffline, got.Status)
	require.Equal(t, "10.0.0.2", got.IPAddress)
}

func TestMemory_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Set(ctx, record("alice", core.StatusOnline)))

	got, err := m.Get(ctx, "alice")
	require.NoError(t, err)
	got.Status = core.StatusOffline

	again, err := m.Get(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, core.StatusOnline, again.Status)
}

func TestMemory_Delete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Set(ctx, record("alice", core.StatusOnline)))
	require.NoError(t, m.Delete(ctx, "alice"))
	require.NoError(t, m.Delete(ctx, "alice")) // missing is not an error

	_, err := m.Get(ctx, "alice")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestMemory_ScanOnline(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Set(ctx, record("alice", core.StatusOnline)))
	require.NoError(t, m.Set(ctx, record("bob", core.StatusOffline)))
	require.NoError(t, m.Set(ctx, record("carol", core.StatusOnline)))

	online, err := m.ScanOnline(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(online))
	for _, rec := range online {
		names = append(names, rec.Username)
	}
	require.ElementsMatch(t, []string{"alice", "carol"}, names)
}

func TestMemory_ConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status := core.StatusOnline
			if i%2 == 0 {
				status = core.StatusOffline
			}
			_ = m.Set(ctx, record("alice", status))
			_, _ = m.Get(ctx, "alice")
			_, _ = m.ScanOnline(ctx)
		}(i)
	}
	wg.Wait()

	// No torn record: whatever won, the record is complete.
	got, err := m.Get(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "alice", got.Username)
	require.Equal(t, 9000, got.Port)
	require.Contains(t, []core.PeerStatus{core.StatusOnline, core.StatusOffline}, got.Status)
}
