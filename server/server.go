// Package server implements the TCP chat server: it accepts connections,
// runs one session goroutine per client through the login handshake, and
// routes authenticated chat traffic between sessions via the registry.
package server

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/go-chat/history"
	"github.com/cyberinferno/go-chat/idgen"
	"github.com/cyberinferno/go-chat/logger"
	"github.com/cyberinferno/go-chat/registry"
)

// ChatServer is a TCP chat server. Each accepted connection is handled by a
// dedicated session goroutine; shared identity and membership state lives in
// the registry, which serializes all mutations. Start binds the listener,
// Run drives the accept loop, and Stop tears everything down.
type ChatServer struct {
	Logger   logger.Logger
	Name     string
	Addr     string
	Listener net.Listener

	registry *registry.Registry
	history  history.Store
	ids      *idgen.Generator
	running  atomic.Bool

	mu       sync.RWMutex
	sessions map[registry.ConnID]*session
	wg       sync.WaitGroup
}

// NewChatServer creates a chat server that will listen on addr.
//
// Parameters:
//   - name: Server name used in logs
//   - addr: TCP listen address (e.g. ":12345")
//   - reg: The shared registry instance
//   - hist: The group history store
//   - log: Logger for server and session events
//
// Returns:
//   - A new ChatServer; call Start and then Run to serve
func NewChatServer(name, addr string, reg *registry.Registry, hist history.Store, log logger.Logger) *ChatServer {
	return &ChatServer{
		Logger:   log,
		Name:     name,
		Addr:     addr,
		registry: reg,
		history:  hist,
		ids:      idgen.NewGenerator(0),
		sessions: make(map[registry.ConnID]*session),
	}
}

// Start binds the listening socket. It is safe to call only when the server
// is not already running; the process cannot continue meaningfully if Start
// fails, so callers should treat the error as fatal.
//
// Returns:
//   - An error if the server is already running or if listening on Addr fails
func (s *ChatServer) Start() error {
	if s.running.Load() {
		s.Logger.Error("server already running")
		return fmt.Errorf("server %s already running", s.Name)
	}

	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		s.Logger.Error("server failed to start", logger.Field{Key: "error", Value: err})
		return fmt.Errorf("server %s failed to start: %w", s.Name, err)
	}

	s.Listener = ln
	s.running.Store(true)

	s.Logger.Info(fmt.Sprintf("%s server started", s.Name), logger.Field{Key: "addr", Value: ln.Addr().String()})
	return nil
}

// Run accepts incoming connections until the server is stopped. For each
// connection it assigns an ID, registers it, and hands it to a session
// goroutine. Run blocks the calling goroutine; accept errors while running
// are logged and the loop continues.
//
// Returns:
//   - nil after Stop closes the listener
func (s *ChatServer) Run() error {
	for {
		conn, err := s.Listener.Accept()
		if err != nil {
			if !s.running.Load() {
				return nil
			}

			s.Logger.Error(fmt.Sprintf("%s server accept error", s.Name), logger.Field{Key: "error", Value: err})
			continue
		}

		id := registry.ConnID(s.ids.Next())
		sess := newSession(id, conn, s)

		s.registry.AddConnection(id)
		s.mu.Lock()
		s.sessions[id] = sess
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			sess.handle()
		}()
	}
}

// Stop stops the server: it closes the listener, tears down all active
// sessions, and waits up to timeout for session goroutines to drain. Safe
// to call when the server is not running.
//
// Parameters:
//   - timeout: Maximum time to wait for sessions to finish
func (s *ChatServer) Stop(timeout time.Duration) {
	if !s.running.CompareAndSwap(true, false) {
		s.Logger.Info(fmt.Sprintf("%s server not running", s.Name))
		return
	}

	if s.Listener != nil {
		_ = s.Listener.Close()
	}

	for _, sess := range s.sessionSnapshot() {
		sess.teardown()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.Logger.Info(fmt.Sprintf("%s server stopped", s.Name))
	case <-time.After(timeout):
		s.Logger.Warn(fmt.Sprintf("%s server stop timed out", s.Name))
	}
}

// ListenAddr returns the bound listener address, useful when Addr was
// specified with port 0.
//
// Returns:
//   - The listener address, or "" if the server has not started
func (s *ChatServer) ListenAddr() string {
	if s.Listener == nil {
		return ""
	}

	return s.Listener.Addr().String()
}

// sessionByID returns the live session for a connection, if any.
func (s *ChatServer) sessionByID(id registry.ConnID) (*session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// removeSession drops a session from the session table.
func (s *ChatServer) removeSession(id registry.ConnID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// sessionSnapshot returns the current sessions without holding the lock
// during iteration by callers.
func (s *ChatServer) sessionSnapshot() []*session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}

	return sessions
}

// deliver writes one line to the given connection. A write failure tears
// down the destination connection only; the caller's delivery loop is not
// interrupted.
//
// Returns:
//   - true if the line was written, false if the session is gone or the
//     write failed
func (s *ChatServer) deliver(id registry.ConnID, line string) bool {
	sess, ok := s.sessionByID(id)
	if !ok {
		return false
	}

	if err := sess.send(line); err != nil {
		s.Logger.Warn("write failed, closing connection",
			logger.Field{Key: "session_id", Value: uint32(id)},
			logger.Field{Key: "error", Value: err})
		sess.teardown()
		return false
	}

	return true
}

// broadcast delivers one line to every registered connection except the
// sender. Individual delivery failures do not abort the loop.
func (s *ChatServer) broadcast(sender registry.ConnID, line string) {
	for _, id := range s.registry.Connections() {
		if id == sender {
			continue
		}

		s.deliver(id, line)
	}
}
