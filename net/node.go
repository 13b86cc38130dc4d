package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"p2p-chat/core"
)

const (
	// DefaultHeartbeatInterval matches the registry's liveness cadence.
	DefaultHeartbeatInterval = 60 * time.Second
	// DefaultDialTimeout bounds the TCP connect to a peer.
	DefaultDialTimeout = 10 * time.Second

	heartbeatTimeout = 5 * time.Second
)

// Config wires a Node to its collaborators. Consent, NewInput and OnMessage
// are injected so any UI (or a test harness) can drive the node.
type Config struct {
	Username   string
	ListenAddr string // host:port, port 0 for ephemeral
	Registry   *RegistryClient

	// Consent decides incoming connect requests (interactive approval,
	// auto-accept in tests, ...). Required.
	Consent ConsentFunc
	// NewInput builds the outbound input source for a new session. Required.
	NewInput func(remote string) InputSource
	// OnMessage receives every remote text message. Optional.
	OnMessage Sink
	// OnSessionClosed fires after a session left the table. Optional.
	OnSessionClosed func(remote string)

	HeartbeatInterval time.Duration
	DialTimeout       time.Duration
	Log               *zap.SugaredLogger
}

// Node composes the listener, the dialer, the heartbeat sender and the
// session table: one peer process.
type Node struct {
	cfg Config
	log *zap.SugaredLogger

	ln   net.Listener
	ip   string
	port int

	mu       sync.Mutex
	sessions map[string]*Session

	running atomic.Bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

func NewNode(cfg Config) (*Node, error) {
	if cfg.Username == "" {
		return nil, errors.New("username is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("registry client is required")
	}
	if cfg.Consent == nil || cfg.NewInput == nil {
		return nil, errors.New("consent policy and input source are required")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":0"
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop().Sugar()
	}
	return &Node{
		cfg:      cfg,
		log:      cfg.Log,
		sessions: make(map[string]*Session),
		stop:     make(chan struct{}),
	}, nil
}

// Start binds the listener, registers with the rendezvous registry and
// launches the accept and heartbeat loops. Failure to reach the registry is
// fatal: without a registration nobody can find this node.
func (n *Node) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", n.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", n.cfg.ListenAddr, err)
	}
	n.ln = ln

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		ln.Close()
		return fmt.Errorf("parse listen address: %w", err)
	}
	n.port, _ = strconv.Atoi(portStr)
	n.ip = host
	if ip := net.ParseIP(host); ip == nil || ip.IsUnspecified() {
		n.ip = LocalIP()
	}

	if _, err := n.cfg.Registry.Register(ctx, n.cfg.Username, n.ip, n.port); err != nil {
		ln.Close()
		return fmt.Errorf("register %s with registry: %w", n.cfg.Username, err)
	}
	n.log.Infow("node started", "username", n.cfg.Username, "addr", n.Addr())

	n.running.Store(true)
	n.wg.Add(2)
	go n.acceptLoop()
	go n.heartbeatLoop()
	return nil
}

// Addr returns the address advertised to the registry.
func (n *Node) Addr() string {
	return net.JoinHostPort(n.ip, strconv.Itoa(n.port))
}

// Port returns the bound listener port.
func (n *Node) Port() int {
	return n.port
}

// Sessions returns the usernames with a live session, sorted.
func (n *Node) Sessions() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	names := make([]string, 0, len(n.sessions))
	for name, sess := range n.sessions {
		if sess == nil { // slot claimed, handshake still completing
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasSession reports whether a live session exists for remote.
func (n *Node) HasSession(remote string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.sessions[remote]
	return ok
}

// Dial resolves remote through the registry, connects, runs the initiator
// side of the handshake and installs the session. It blocks until the
// handshake succeeds or fails.
func (n *Node) Dial(ctx context.Context, remote string) error {
	if remote == n.cfg.Username {
		return fmt.Errorf("cannot connect to yourself")
	}
	if n.HasSession(remote) {
		return fmt.Errorf("%s: %w", remote, core.ErrAlreadyConnected)
	}

	rec, err := n.cfg.Registry.PeerInfo(ctx, remote)
	if err != nil {
		return err
	}

	d := net.Dialer{Timeout: n.cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", rec.Addr())
	if err != nil {
		return fmt.Errorf("connect to %s at %s: %w", remote, rec.Addr(), err)
	}

	remoteName, err := Initiate(conn, n.cfg.Username)
	if err != nil {
		conn.Close()
		return fmt.Errorf("dial %s: %w", remote, err)
	}

	if err := n.claimSession(remoteName); err != nil {
		conn.Close()
		return fmt.Errorf("%s: %w", remoteName, err)
	}
	sess := NewSession(conn, n.cfg.Username, remoteName, n.cfg.OnMessage, n.cfg.NewInput(remoteName), n.log)
	n.installSession(sess)
	n.log.Infow("session established", "peer", remoteName, "initiator", true)
	return nil
}

// EndSession ends the session for remote, if any: the session's input is
// closed so the outbound flow sends the disconnect message, then the call
// waits for the socket to be released.
func (n *Node) EndSession(remote string) {
	n.mu.Lock()
	sess, ok := n.sessions[remote]
	n.mu.Unlock()
	if !ok || sess == nil {
		return
	}
	sess.End()
	<-sess.Done()
}

// Shutdown stops accepting, closes every session and the listener, and
// unregisters best-effort. Safe to call once; later calls are no-ops.
func (n *Node) Shutdown(ctx context.Context) error {
	if !n.running.CompareAndSwap(true, false) {
		return nil
	}
	close(n.stop)
	n.ln.Close()

	n.mu.Lock()
	open := make([]*Session, 0, len(n.sessions))
	for _, sess := range n.sessions {
		if sess == nil {
			continue
		}
		open = append(open, sess)
	}
	n.mu.Unlock()
	for _, sess := range open {
		sess.Close()
	}
	for _, sess := range open {
		<-sess.Done()
	}
	n.wg.Wait()

	if err := n.cfg.Registry.Unregister(ctx, n.cfg.Username); err != nil {
		// Non-fatal: the TTL will expire the record anyway.
		n.log.Warnw("unregister failed", "username", n.cfg.Username, "error", err)
	}
	n.log.Infow("node stopped", "username", n.cfg.Username)
	return nil
}

// acceptLoop accepts connections until the node stops; each new socket gets
// its own handshake goroutine so a slow consent prompt never blocks accepts.
func (n *Node) acceptLoop() {
	defer n.wg.Done()
	for {
		conn, err := n.ln.Accept()
		if err != nil {
			if n.running.Load() {
				n.log.Warnw("accept failed", "error", err)
			}
			return
		}
		go n.handleIncoming(conn)
	}
}

func (n *Node) handleIncoming(conn net.Conn) {
	remoteAddr := conn.RemoteAddr().String()
	n.log.Infow("incoming connection", "from", remoteAddr)

	remote, err := Respond(conn, n.cfg.Username, n.decide)
	if err != nil {
		conn.Close()
		if errors.Is(err, ErrRejected) {
			n.log.Infow("connection rejected", "from", remoteAddr)
		} else {
			n.log.Warnw("handshake failed", "from", remoteAddr, "error", err)
		}
		return
	}

	if err := n.claimSession(remote); err != nil {
		// Lost a concurrent dial/accept race for the same username after
		// consent was granted; the duplicate must not enter the table.
		conn.Close()
		n.log.Warnw("dropping duplicate session", "peer", remote)
		return
	}
	sess := NewSession(conn, n.cfg.Username, remote, n.cfg.OnMessage, n.cfg.NewInput(remote), n.log)
	n.installSession(sess)
	n.log.Infow("session established", "peer", remote, "initiator", false)
}

// decide applies the duplicate policy before asking the consent policy:
// a second handshake for a username with a live session is rejected.
func (n *Node) decide(req core.HandshakeMessage) bool {
	if req.Username == n.cfg.Username || n.HasSession(req.Username) {
		return false
	}
	return n.cfg.Consent(req)
}

func (n *Node) heartbeatLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), heartbeatTimeout)
			err := n.cfg.Registry.Heartbeat(ctx, n.cfg.Username)
			cancel()
			if err != nil {
				n.log.Warnw("heartbeat failed", "error", err)
			}
		}
	}
}

// claimSession reserves the table slot for remote. The input source and the
// session itself are only created once the slot is held, so the loser of a
// dial/accept race never rebinds the UI's input.
func (n *Node) claimSession(remote string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.sessions[remote]; exists {
		return core.ErrAlreadyConnected
	}
	n.sessions[remote] = nil
	return nil
}

// installSession fills a claimed slot and starts the session's flows.
func (n *Node) installSession(sess *Session) {
	n.mu.Lock()
	n.sessions[sess.Remote()] = sess
	n.mu.Unlock()
	sess.Start(func() {
		n.mu.Lock()
		if n.sessions[sess.Remote()] == sess {
			delete(n.sessions, sess.Remote())
		}
		n.mu.Unlock()
		if n.cfg.OnSessionClosed != nil {
			n.cfg.OnSessionClosed(sess.Remote())
		}
	})
}

// LocalIP discovers the outbound interface address; no packet is actually
// sent on the UDP socket. Falls back to loopback.
func LocalIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}
