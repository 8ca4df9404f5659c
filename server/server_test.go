package server

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/go-chat/history"
	"github.com/cyberinferno/go-chat/logger"
	"github.com/cyberinferno/go-chat/registry"
)

const testReadTimeout = 3 * time.Second

func newTestServer(t *testing.T) *ChatServer {
	t.Helper()

	log := logger.NewZerologLogger(zerolog.Nop(), "test", zerolog.Disabled)
	srv := NewChatServer("test", "127.0.0.1:0", registry.NewRegistry(),
		history.NewMemoryStore(50, time.Minute), log)

	require.NoError(t, srv.Start())
	go func() {
		_ = srv.Run()
	}()
	t.Cleanup(func() {
		srv.Stop(time.Second)
	})

	return srv
}

type testClient struct {
	conn   net.Conn
	reader *bufio.Reader
}

func dialServer(t *testing.T, srv *ChatServer) *testClient {
	t.Helper()

	conn, err := net.Dial("tcp", srv.ListenAddr())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
	})

	return &testClient{conn: conn, reader: bufio.NewReader(conn)}
}

func (c *testClient) sendLine(t *testing.T, line string) {
	t.Helper()

	require.NoError(t, c.conn.SetWriteDeadline(time.Now().Add(testReadTimeout)))
	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
}

// expectLine reads lines until one contains every given substring, returning
// that line and everything skipped on the way. Fails the test on timeout.
func (c *testClient) expectLine(t *testing.T, substrs ...string) (string, []string) {
	t.Helper()

	var skipped []string
	deadline := time.Now().Add(testReadTimeout)
	for {
		require.NoError(t, c.conn.SetReadDeadline(deadline))
		raw, err := c.reader.ReadString('\n')
		require.NoError(t, err, "waiting for line containing %v, skipped so far: %v", substrs, skipped)

		line := strings.TrimRight(raw, "\r\n")
		matched := true
		for _, sub := range substrs {
			if !strings.Contains(line, sub) {
				matched = false
				break
			}
		}

		if matched {
			return line, skipped
		}

		skipped = append(skipped, line)
	}
}

func login(t *testing.T, c *testClient, username string) {
	t.Helper()

	c.expectLine(t, "Enter your username")
	c.sendLine(t, username)
	c.expectLine(t, "Enter your password")
	c.sendLine(t, "secret")
	c.expectLine(t, "Welcome, "+username)
	// Help text ends with the CLOSE command listing.
	c.expectLine(t, "CLOSE")
}

func assertNoneContain(t *testing.T, lines []string, substr string) {
	t.Helper()

	for _, line := range lines {
		assert.NotContains(t, line, substr)
	}
}

func TestLogin(t *testing.T) {
	t.Run("rejects duplicate username and allows retry", func(t *testing.T) {
		srv := newTestServer(t)

		alice := dialServer(t, srv)
		login(t, alice, "alice")

		second := dialServer(t, srv)
		second.expectLine(t, "Enter your username")
		second.sendLine(t, "alice")
		second.expectLine(t, "already taken")
		second.sendLine(t, "bob")
		second.expectLine(t, "Enter your password")
		second.sendLine(t, "secret")
		second.expectLine(t, "Welcome, bob")
	})

	t.Run("empty password returns to username step", func(t *testing.T) {
		srv := newTestServer(t)

		c := dialServer(t, srv)
		c.expectLine(t, "Enter your username")
		c.sendLine(t, "carol")
		c.expectLine(t, "Enter your password")
		c.sendLine(t, "")
		c.expectLine(t, "Password cannot be empty")

		c.sendLine(t, "carol")
		c.expectLine(t, "Enter your password")
		c.sendLine(t, "hunter2")
		c.expectLine(t, "Welcome, carol")
	})

	t.Run("rejects empty username", func(t *testing.T) {
		srv := newTestServer(t)

		c := dialServer(t, srv)
		c.expectLine(t, "Enter your username")
		c.sendLine(t, "")
		c.expectLine(t, "Username cannot be empty")
		c.sendLine(t, "dave")
		c.expectLine(t, "Enter your password")
	})

	t.Run("commands are refused before authentication", func(t *testing.T) {
		srv := newTestServer(t)

		c := dialServer(t, srv)
		c.expectLine(t, "Enter your username")
		// The broadcast line is consumed as a username candidate, not routed.
		c.sendLine(t, "/broadcast sneaky")
		c.expectLine(t, "Enter your password")
	})
}

func TestDirectMessage(t *testing.T) {
	t.Run("delivers to the target only", func(t *testing.T) {
		srv := newTestServer(t)

		alice := dialServer(t, srv)
		login(t, alice, "alice")
		bob := dialServer(t, srv)
		login(t, bob, "bob")
		charlie := dialServer(t, srv)
		login(t, charlie, "charlie")

		alice.sendLine(t, "/msg bob hello there")
		bob.expectLine(t, "alice", "hello there")

		// Charlie must never see the direct message; the probe bounds the wait.
		alice.sendLine(t, "/msg charlie probe-for-charlie")
		_, skipped := charlie.expectLine(t, "probe-for-charlie")
		assertNoneContain(t, skipped, "hello there")
	})

	t.Run("keeps embedded whitespace verbatim", func(t *testing.T) {
		srv := newTestServer(t)

		alice := dialServer(t, srv)
		login(t, alice, "alice")
		bob := dialServer(t, srv)
		login(t, bob, "bob")

		alice.sendLine(t, "/msg bob spaced   out  message")
		bob.expectLine(t, "spaced   out  message")
	})

	t.Run("reports unknown destination to the sender", func(t *testing.T) {
		srv := newTestServer(t)

		alice := dialServer(t, srv)
		login(t, alice, "alice")

		alice.sendLine(t, "/msg ghost hi")
		alice.expectLine(t, "ghost", "not found")
	})
}

func TestBroadcast(t *testing.T) {
	t.Run("reaches everyone except the sender", func(t *testing.T) {
		srv := newTestServer(t)

		alice := dialServer(t, srv)
		login(t, alice, "alice")
		bob := dialServer(t, srv)
		login(t, bob, "bob")
		charlie := dialServer(t, srv)
		login(t, charlie, "charlie")

		alice.sendLine(t, "/broadcast hi everyone")
		bob.expectLine(t, "alice", "hi everyone")
		charlie.expectLine(t, "alice", "hi everyone")

		// Alice gets an error for the probe but never her own broadcast.
		alice.sendLine(t, "/msg ghost probe")
		_, skipped := alice.expectLine(t, "ghost", "not found")
		assertNoneContain(t, skipped, "hi everyone")
	})
}

func TestGroups(t *testing.T) {
	t.Run("group message reaches members only", func(t *testing.T) {
		srv := newTestServer(t)

		alice := dialServer(t, srv)
		login(t, alice, "alice")
		bob := dialServer(t, srv)
		login(t, bob, "bob")
		charlie := dialServer(t, srv)
		login(t, charlie, "charlie")

		alice.sendLine(t, "/create_group devs")
		alice.expectLine(t, "devs", "created")
		bob.sendLine(t, "/join_group devs")
		bob.expectLine(t, "joined group devs")

		alice.sendLine(t, "/group_msg devs standup time")
		bob.expectLine(t, "alice", "standup time")

		charlie.sendLine(t, "/group_msg devs let me in")
		_, skipped := charlie.expectLine(t, "not a member")
		assertNoneContain(t, skipped, "standup time")
	})

	t.Run("create rejects duplicate group", func(t *testing.T) {
		srv := newTestServer(t)

		alice := dialServer(t, srv)
		login(t, alice, "alice")
		bob := dialServer(t, srv)
		login(t, bob, "bob")

		alice.sendLine(t, "/create_group devs")
		alice.expectLine(t, "devs", "created")
		bob.sendLine(t, "/create_group devs")
		bob.expectLine(t, "devs", "already exists")
	})

	t.Run("join rejects unknown group", func(t *testing.T) {
		srv := newTestServer(t)

		alice := dialServer(t, srv)
		login(t, alice, "alice")

		alice.sendLine(t, "/join_group ghosts")
		alice.expectLine(t, "ghosts", "does not exist")
	})

	t.Run("leaving stops delivery", func(t *testing.T) {
		srv := newTestServer(t)

		alice := dialServer(t, srv)
		login(t, alice, "alice")
		bob := dialServer(t, srv)
		login(t, bob, "bob")

		alice.sendLine(t, "/create_group devs")
		alice.expectLine(t, "devs", "created")
		bob.sendLine(t, "/join_group devs")
		bob.expectLine(t, "joined group devs")
		bob.sendLine(t, "/leave_group devs")
		bob.expectLine(t, "left group devs")

		alice.sendLine(t, "/group_msg devs after the exit")

		bob.sendLine(t, "/msg ghost probe")
		_, skipped := bob.expectLine(t, "ghost", "not found")
		assertNoneContain(t, skipped, "after the exit")
	})

	t.Run("leave reports non-membership", func(t *testing.T) {
		srv := newTestServer(t)

		alice := dialServer(t, srv)
		login(t, alice, "alice")
		bob := dialServer(t, srv)
		login(t, bob, "bob")

		alice.sendLine(t, "/create_group devs")
		alice.expectLine(t, "devs", "created")
		bob.sendLine(t, "/leave_group devs")
		bob.expectLine(t, "not a member")

		bob.sendLine(t, "/leave_group ghosts")
		bob.expectLine(t, "ghosts", "does not exist")
	})

	t.Run("join replays recent group history", func(t *testing.T) {
		srv := newTestServer(t)

		alice := dialServer(t, srv)
		login(t, alice, "alice")

		alice.sendLine(t, "/create_group devs")
		alice.expectLine(t, "devs", "created")
		alice.sendLine(t, "/group_msg devs message from the past")
		// A probe on the same session guarantees the group message has been
		// processed and recorded before anyone joins.
		alice.sendLine(t, "/msg ghost sync")
		alice.expectLine(t, "ghost", "not found")

		bob := dialServer(t, srv)
		login(t, bob, "bob")
		bob.sendLine(t, "/join_group devs")
		bob.expectLine(t, "joined group devs")
		bob.expectLine(t, "alice", "message from the past")
	})
}

func TestClose(t *testing.T) {
	t.Run("CLOSE tears the connection down", func(t *testing.T) {
		srv := newTestServer(t)

		alice := dialServer(t, srv)
		login(t, alice, "alice")
		bob := dialServer(t, srv)
		login(t, bob, "bob")

		bob.sendLine(t, "CLOSE")
		bob.expectLine(t, "Goodbye")

		alice.expectLine(t, "bob", "has left")
		alice.sendLine(t, "/msg bob anyone home")
		alice.expectLine(t, "bob", "not found")
	})

	t.Run("abrupt disconnect cleans up the same way", func(t *testing.T) {
		srv := newTestServer(t)

		alice := dialServer(t, srv)
		login(t, alice, "alice")
		bob := dialServer(t, srv)
		login(t, bob, "bob")

		require.NoError(t, bob.conn.Close())

		alice.expectLine(t, "bob", "has left")
		alice.sendLine(t, "/msg bob anyone home")
		alice.expectLine(t, "bob", "not found")
	})
}

func TestUnknownCommand(t *testing.T) {
	t.Run("echoes an error with the help text", func(t *testing.T) {
		srv := newTestServer(t)

		alice := dialServer(t, srv)
		login(t, alice, "alice")

		alice.sendLine(t, "hello out there")
		alice.expectLine(t, "Unrecognized command")
		alice.expectLine(t, "/broadcast")
	})

	t.Run("reports missing arguments", func(t *testing.T) {
		srv := newTestServer(t)

		alice := dialServer(t, srv)
		login(t, alice, "alice")

		alice.sendLine(t, "/msg bob")
		alice.expectLine(t, "missing an argument")
	})
}
