package net

import (
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"p2p-chat/core"
)

// SessionState is the lifecycle of one live connection. A session never
// transitions back from closing/closed to active.
type SessionState int32

const (
	StateActive SessionState = iota
	StateClosing
	StateClosed
)

// Sink receives remote text messages in the order they arrived.
type Sink func(msg core.ChatMessage)

// InputSource supplies locally authored messages, one per Next call. Any
// error from Next ends the session's outbound flow; a disconnect message is
// sent before the flow stops. If the source also implements io.Closer it is
// closed when the session terminates, which must unblock a pending Next.
type InputSource interface {
	Next() (string, error)
}

// Session owns one socket after a successful handshake. Nothing else reads
// or writes the socket once the session has it.
type Session struct {
	local  string
	remote string
	conn   net.Conn
	sink   Sink
	input  InputSource
	log    *zap.SugaredLogger

	state     atomic.Int32
	closeOnce sync.Once
	onClosed  func()
	wg        sync.WaitGroup
	done      chan struct{}
	err       error // written by readLoop only, read after done closes
}

func NewSession(conn net.Conn, local, remote string, sink Sink, input InputSource, log *zap.SugaredLogger) *Session {
	return &Session{
		local:  local,
		remote: remote,
		conn:   conn,
		sink:   sink,
		input:  input,
		log:    log,
		done:   make(chan struct{}),
	}
}

// Remote returns the counterpart's username.
func (s *Session) Remote() string {
	return s.remote
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Done is closed once the socket is released and both flows have stopped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err reports why the session ended: nil after a clean disconnect or a local
// close, a core.ErrConnectionLost wrap when the socket dropped mid-session.
// Only valid once Done is closed.
func (s *Session) Err() error {
	return s.err
}

// Start launches the inbound and outbound flows. onClosed runs exactly once
// when the session terminates, before Done is closed; the node uses it to
// drop the session from its table.
func (s *Session) Start(onClosed func()) {
	s.onClosed = onClosed
	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()
	go func() {
		s.wg.Wait()
		s.state.Store(int32(StateClosed))
		close(s.done)
	}()
}

// Close tears the session down: socket closed exactly once, input source
// released, onClosed fired. Safe to call from any goroutine, any number of
// times.
func (s *Session) Close() {
	s.terminate()
}

// End closes the input source so the outbound flow sends the disconnect
// message before tearing down. Falls back to Close when the input cannot be
// closed.
func (s *Session) End() {
	if c, ok := s.input.(io.Closer); ok {
		c.Close()
		return
	}
	s.Close()
}

func (s *Session) terminate() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosing))
		s.conn.Close()
		if c, ok := s.input.(io.Closer); ok {
			c.Close()
		}
		if s.onClosed != nil {
			s.onClosed()
		}
	})
}

// readLoop decodes one chat message at a time and delivers text to the sink
// in receipt order. Disconnect, EOF, reset, or a decode failure ends it.
func (s *Session) readLoop() {
	defer s.wg.Done()
	defer s.terminate()
	for {
		var msg core.ChatMessage
		if err := ReadFrame(s.conn, &msg); err != nil {
			if s.State() == StateActive {
				s.err = fmt.Errorf("%s: %w: %v", s.remote, core.ErrConnectionLost, err)
				s.log.Infow("connection lost", "peer", s.remote, "error", err)
			}
			return
		}
		switch msg.Type {
		case core.TypeText:
			if s.sink != nil {
				s.sink(msg)
			}
		case core.TypeDisconnect:
			s.log.Infow("peer disconnected", "peer", s.remote)
			return
		default:
			s.log.Debugw("ignoring unknown message type", "peer", s.remote, "type", msg.Type)
		}
	}
}

// writeLoop takes one locally authored message at a time and encodes it onto
// the socket. An input error means the user ended the session (or the
// session is terminating); either way a disconnect is sent best-effort.
func (s *Session) writeLoop() {
	defer s.wg.Done()
	defer s.terminate()
	for {
		text, err := s.input.Next()
		if err != nil {
			_ = WriteFrame(s.conn, core.NewDisconnect(s.local))
			return
		}
		if err := WriteFrame(s.conn, core.NewText(s.local, text)); err != nil {
			if s.State() == StateActive {
				s.log.Infow("send failed", "peer", s.remote, "error", err)
			}
			return
		}
	}
}
