package store

import (
	"context"
	"sync"

	"p2p-chat/core"
)

// Memory is an in-memory Store; contents are lost on restart.
type Memory struct {
	mu    sync.RWMutex
	peers map[string]*core.PeerRecord
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		peers: make(map[string]*core.PeerRecord),
	}
}

func (m *Memory) Get(_ context.Context, username string) (*core.PeerRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, exists := m.peers[username]
	if !exists {
		return nil, core.ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *Memory) Set(_ context.Context, rec *core.PeerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peers[rec.Username] = rec.Clone()
	return nil
}

func (m *Memory) Delete(_ context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.peers, username)
	return nil
}

func (m *Memory) ScanOnline(_ context.Context) ([]*core.PeerRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var online []*core.PeerRecord
	for _, rec := range m.peers {
		if rec.Status == core.StatusOnline {
			online = append(online, rec.Clone())
		}
	}
	return online, nil
}
