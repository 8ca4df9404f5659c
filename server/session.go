package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cyberinferno/go-chat/logger"
	"github.com/cyberinferno/go-chat/protocol"
	"github.com/cyberinferno/go-chat/registry"
)

// maxLineBytes bounds a single client line; longer input kills the session.
const maxLineBytes = 64 * 1024

// historyTimeout bounds each history store call so a slow backend cannot
// stall a session goroutine.
const historyTimeout = 2 * time.Second

// loginState is the per-connection login phase. No transition ever leaves
// stateAuthenticated.
type loginState int

const (
	stateAwaitingUsername loginState = iota
	stateAwaitingPassword
	stateAuthenticated
)

// session handles one client connection: the login handshake, then command
// routing. All reads happen on the session's own goroutine; writes may come
// from any session goroutine and are serialized by writeMu.
type session struct {
	id   registry.ConnID
	conn net.Conn
	srv  *ChatServer
	log  logger.Logger

	// state and pendingUsername are touched only by the session's own
	// read loop, never concurrently.
	state           loginState
	pendingUsername string

	writeMu sync.Mutex
	once    sync.Once
}

func newSession(id registry.ConnID, conn net.Conn, srv *ChatServer) *session {
	return &session{
		id:   id,
		conn: conn,
		srv:  srv,
		log: srv.Logger.With(
			logger.Field{Key: "session_id", Value: uint32(id)},
			logger.Field{Key: "remote_addr", Value: conn.RemoteAddr().String()},
		),
	}
}

// handle runs the session's read loop until the peer disconnects, a
// read/write fails, or the client sends CLOSE. Teardown always runs exactly
// once, whichever way the loop exits.
func (s *session) handle() {
	defer s.teardown()

	s.log.Info("connection accepted")

	if err := s.send(protocol.ServerMessage("Welcome! Enter your username:")); err != nil {
		return
	}

	scanner := bufio.NewScanner(s.conn)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")

		var ok bool
		if s.state != stateAuthenticated {
			ok = s.handleLogin(line)
		} else {
			ok = s.route(line)
		}

		if !ok {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		s.log.Debug("read failed", logger.Field{Key: "error", Value: err})
	}
}

// handleLogin advances the login state machine by one input line. Protocol
// rejections keep the connection open; only write failures end the session.
func (s *session) handleLogin(line string) bool {
	switch s.state {
	case stateAwaitingUsername:
		if line == "" {
			return s.send(protocol.ErrorMessage("Username cannot be empty. Enter your username:")) == nil
		}

		if s.srv.registry.UsernameTaken(line) {
			return s.send(protocol.ErrorMessage("Username already taken. Enter another username:")) == nil
		}

		s.pendingUsername = line
		s.state = stateAwaitingPassword
		return s.send(protocol.ServerMessage("Enter your password:")) == nil

	case stateAwaitingPassword:
		// Rejection returns the client to the username step so a failed
		// login never holds a name candidate.
		if line == "" {
			s.pendingUsername = ""
			s.state = stateAwaitingUsername
			return s.send(protocol.ErrorMessage("Password cannot be empty. Enter your username:")) == nil
		}

		// The taken-check at the username step is advisory; the claim here
		// is the atomic one and can still lose to a concurrent login.
		if err := s.srv.registry.ClaimUsername(s.id, s.pendingUsername); err != nil {
			s.pendingUsername = ""
			s.state = stateAwaitingUsername
			if errors.Is(err, registry.ErrUsernameTaken) {
				return s.send(protocol.ErrorMessage("Username already taken. Enter another username:")) == nil
			}

			return s.send(protocol.ErrorMessage("Login failed. Enter your username:")) == nil
		}

		username := s.pendingUsername
		s.pendingUsername = ""
		s.state = stateAuthenticated

		s.log.Info("user authenticated", logger.Field{Key: "username", Value: username})

		if err := s.send(protocol.ServerMessage(fmt.Sprintf("Welcome, %s!", username))); err != nil {
			return false
		}

		if err := s.send(protocol.Help()); err != nil {
			return false
		}

		s.srv.broadcast(s.id, protocol.ServerMessage(fmt.Sprintf("%s has joined the chat", username)))
		return true
	}

	return true
}

// route interprets one authenticated input line as a chat or group command
// and dispatches the resulting deliveries.
func (s *session) route(line string) bool {
	username, _ := s.srv.registry.Username(s.id)

	cmd, err := protocol.Parse(line)
	if err != nil {
		var text string
		if errors.Is(err, protocol.ErrMissingArgument) {
			text = "Command is missing an argument."
		} else {
			text = "Unrecognized command."
		}

		if err := s.send(protocol.ErrorMessage(text)); err != nil {
			return false
		}

		return s.send(protocol.Help()) == nil
	}

	switch cmd.Kind {
	case protocol.KindClose:
		_ = s.send(protocol.ServerMessage("Goodbye!"))
		return false

	case protocol.KindDirect:
		target, ok := s.srv.registry.Connection(cmd.Target)
		if !ok {
			return s.send(protocol.ErrorMessage(fmt.Sprintf("User %s not found", cmd.Target))) == nil
		}

		s.srv.deliver(target, protocol.ChatMessage(username, cmd.Body))
		return true

	case protocol.KindBroadcast:
		s.srv.broadcast(s.id, protocol.ChatMessage(username, cmd.Body))
		return true

	case protocol.KindCreateGroup:
		if err := s.srv.registry.CreateGroup(cmd.Target, s.id); err != nil {
			return s.send(protocol.ErrorMessage(fmt.Sprintf("Group %s already exists", cmd.Target))) == nil
		}

		s.log.Info("group created", logger.Field{Key: "group", Value: cmd.Target})
		return s.send(protocol.ServerMessage(fmt.Sprintf("Group %s created", cmd.Target))) == nil

	case protocol.KindJoinGroup:
		if err := s.srv.registry.JoinGroup(cmd.Target, s.id); err != nil {
			return s.send(protocol.ErrorMessage(fmt.Sprintf("Group %s does not exist", cmd.Target))) == nil
		}

		if err := s.send(protocol.ServerMessage(fmt.Sprintf("You joined group %s", cmd.Target))); err != nil {
			return false
		}

		return s.replayHistory(cmd.Target)

	case protocol.KindLeaveGroup:
		if err := s.srv.registry.LeaveGroup(cmd.Target, s.id); err != nil {
			var text string
			if errors.Is(err, registry.ErrUnknownGroup) {
				text = fmt.Sprintf("Group %s does not exist", cmd.Target)
			} else {
				text = fmt.Sprintf("You are not a member of group %s", cmd.Target)
			}

			return s.send(protocol.ErrorMessage(text)) == nil
		}

		return s.send(protocol.ServerMessage(fmt.Sprintf("You left group %s", cmd.Target))) == nil

	case protocol.KindGroupMessage:
		return s.routeGroupMessage(username, cmd)
	}

	return true
}

// routeGroupMessage delivers a group message to every member except the
// sender and records it in the group's history.
func (s *session) routeGroupMessage(username string, cmd protocol.Command) bool {
	if !s.srv.registry.HasGroup(cmd.Target) {
		return s.send(protocol.ErrorMessage(fmt.Sprintf("Group %s does not exist", cmd.Target))) == nil
	}

	if !s.srv.registry.IsMember(cmd.Target, s.id) {
		return s.send(protocol.ErrorMessage(fmt.Sprintf("You are not a member of group %s", cmd.Target))) == nil
	}

	formatted := protocol.GroupMessage(cmd.Target, username, cmd.Body)

	members, _ := s.srv.registry.GroupMembers(cmd.Target)
	for _, member := range members {
		if member == s.id {
			continue
		}

		s.srv.deliver(member, formatted)
	}

	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()

	if err := s.srv.history.Append(ctx, cmd.Target, formatted); err != nil {
		s.log.Warn("failed to record group history",
			logger.Field{Key: "group", Value: cmd.Target},
			logger.Field{Key: "error", Value: err})
	}

	return true
}

// replayHistory sends a joined group's recent messages to this session.
func (s *session) replayHistory(group string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()

	lines, err := s.srv.history.Recent(ctx, group)
	if err != nil {
		s.log.Warn("failed to load group history",
			logger.Field{Key: "group", Value: group},
			logger.Field{Key: "error", Value: err})
		return true
	}

	for _, line := range lines {
		if err := s.send(line); err != nil {
			return false
		}
	}

	return true
}

// send writes one line to the peer, appending the newline delimiter.
// Safe for concurrent use; deliveries from other sessions and the session's
// own responses share writeMu.
func (s *session) send(line string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.conn.Write([]byte(line + "\n"))
	return err
}

// teardown removes the connection from the registry and the session table,
// closes the socket, and announces the departure of an authenticated user.
// Idempotent; the first caller wins no matter which goroutine it runs on.
func (s *session) teardown() {
	s.once.Do(func() {
		username := s.srv.registry.RemoveConnection(s.id)
		s.srv.removeSession(s.id)
		_ = s.conn.Close()

		s.log.Info("connection closed",
			logger.Field{Key: "username", Value: username},
			logger.Field{Key: "open_connections", Value: s.srv.registry.ConnectionCount()})

		if username != "" {
			s.srv.broadcast(s.id, protocol.ServerMessage(fmt.Sprintf("%s has left the chat", username)))
		}
	})
}
