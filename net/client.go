package net

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"p2p-chat/core"
)

// RegistryClient talks to the rendezvous registry's HTTP surface. Every call
// has a bounded timeout so the node never blocks on the registry.
type RegistryClient struct {
	baseURL string
	http    *http.Client
}

func NewRegistryClient(baseURL string) *RegistryClient {
	return &RegistryClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

type peerResponse struct {
	Message string           `json:"message"`
	Peer    *core.PeerRecord `json:"peer"`
	Error   string           `json:"error"`
}

type peersResponse struct {
	Count int                `json:"count"`
	Peers []*core.PeerRecord `json:"peers"`
	Error string             `json:"error"`
}

// Register announces this node's address. A failure here is startup-blocking
// for the caller.
func (c *RegistryClient) Register(ctx context.Context, username, ip string, port int) (*core.PeerRecord, error) {
	body := map[string]interface{}{
		"username":   username,
		"ip_address": ip,
		"port":       port,
	}
	var resp peerResponse
	if err := c.post(ctx, "/register", body, &resp); err != nil {
		return nil, err
	}
	return resp.Peer, nil
}

// Heartbeat is best-effort; the caller logs and ignores failures.
func (c *RegistryClient) Heartbeat(ctx context.Context, username string) error {
	var resp peerResponse
	return c.post(ctx, "/heartbeat", map[string]interface{}{"username": username}, &resp)
}

// Unregister marks this node offline. Best-effort on shutdown.
func (c *RegistryClient) Unregister(ctx context.Context, username string) error {
	var resp peerResponse
	return c.post(ctx, "/unregister", map[string]interface{}{"username": username}, &resp)
}

// Peers returns all peers the registry currently reports online, including
// the caller; the node layer filters itself out.
func (c *RegistryClient) Peers(ctx context.Context) ([]*core.PeerRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/peers", nil)
	if err != nil {
		return nil, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrRegistryUnavailable, err)
	}
	defer res.Body.Close()

	var resp peersResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode peers response: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry error: %s", resp.Error)
	}
	return resp.Peers, nil
}

// PeerInfo resolves a username to its record. Returns core.ErrNotFound when
// the registry has never seen the username.
func (c *RegistryClient) PeerInfo(ctx context.Context, username string) (*core.PeerRecord, error) {
	u := c.baseURL + "/peerinfo?username=" + url.QueryEscape(username)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrRegistryUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", username, core.ErrNotFound)
	}
	var resp peerResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode peerinfo response: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry error: %s", resp.Error)
	}
	return resp.Peer, nil
}

// WatchPresence subscribes to the registry's WebSocket presence feed and
// calls fn for every event until ctx is cancelled or the feed drops. The
// feed is advisory; chat setup always goes through PeerInfo.
func (c *RegistryClient) WatchPresence(ctx context.Context, fn func(core.PresenceEvent)) error {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("%w: presence feed: %v", core.ErrRegistryUnavailable, err)
	}
	defer conn.Close()

	// The watcher must not outlive this call when the feed drops first.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var ev core.PresenceEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("presence feed closed: %w", err)
		}
		fn(ev)
	}
}

func (c *RegistryClient) post(ctx context.Context, path string, body interface{}, out *peerResponse) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrRegistryUnavailable, err)
	}
	defer res.Body.Close()

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode registry response: %w", err)
	}
	// register answers 200 on update and 201 on create
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusCreated {
		return fmt.Errorf("registry error: %s", out.Error)
	}
	return nil
}
