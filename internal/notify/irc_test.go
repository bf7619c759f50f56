package notify

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIRCTarget(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    IRCTarget
		wantErr string
	}{
		{
			name: "default port",
			in:   "irc.oftc.net#tor-ci",
			want: IRCTarget{Host: "irc.oftc.net", Port: "6667", Channel: "#tor-ci"},
		},
		{
			name: "explicit port",
			in:   "irc.libera.chat:6697#builds",
			want: IRCTarget{Host: "irc.libera.chat", Port: "6697", Channel: "#builds"},
		},
		{name: "missing channel", in: "irc.oftc.net", wantErr: "missing #channel"},
		{name: "empty channel", in: "irc.oftc.net#", wantErr: "missing #channel"},
		{name: "missing server", in: "#tor-ci", wantErr: "missing server"},
		{name: "malformed port", in: "irc.oftc.net:1:2#x", wantErr: "too many colons"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIRCTarget(tt.in)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIRCTargetAddr(t *testing.T) {
	target := IRCTarget{Host: "irc.oftc.net", Port: "6667", Channel: "#tor-ci"}
	assert.Equal(t, "irc.oftc.net:6667", target.Addr())
	assert.Equal(t, "irc.oftc.net:6667#tor-ci", target.String())
}

// fakeIRCServer accepts one connection, completes registration, and
// records every client line until QUIT.
type fakeIRCServer struct {
	listener net.Listener

	// rejectFirstNick answers the first NICK with 433 to exercise the
	// collision retry.
	rejectFirstNick bool

	// pingDuringWelcome interleaves a PING before the 001 reply.
	pingDuringWelcome bool

	mu    sync.Mutex
	lines []string

	done chan struct{}
}

func newFakeIRCServer(t *testing.T) *fakeIRCServer {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	s := &fakeIRCServer{listener: listener, done: make(chan struct{})}
	go s.serve()
	return s
}

func (s *fakeIRCServer) target() IRCTarget {
	host, port, _ := net.SplitHostPort(s.listener.Addr().String())
	return IRCTarget{Host: host, Port: port, Channel: "#ci"}
}

func (s *fakeIRCServer) serve() {
	defer close(s.done)
	conn, err := s.listener.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	write := func(line string) {
		_, _ = conn.Write([]byte(line + "\r\n"))
	}

	reader := bufio.NewReader(conn)
	sawUser := false
	nickRejected := false
	for {
		raw, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line := strings.TrimRight(raw, "\r\n")
		s.mu.Lock()
		s.lines = append(s.lines, line)
		s.mu.Unlock()

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "NICK":
			if s.rejectFirstNick && !nickRejected {
				nickRejected = true
				write(":test.server 433 * " + fields[1] + " :Nickname is already in use")
				continue
			}
			// A retried NICK completes registration once USER arrived.
			if sawUser {
				write(":test.server 001 " + fields[1] + " :Welcome")
			}
		case "USER":
			sawUser = true
			if s.rejectFirstNick {
				continue // welcome follows the retried NICK
			}
			if s.pingDuringWelcome {
				write("PING :test.server")
				continue
			}
			write(":test.server 001 tessera :Welcome")
		case "PONG":
			write(":test.server 001 tessera :Welcome")
		case "QUIT":
			return
		}
	}
}

// recorded waits for the session to finish and returns the client
// lines the server saw.
func (s *fakeIRCServer) recorded(t *testing.T) []string {
	t.Helper()
	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
		t.Fatal("fake irc server did not finish")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func TestIRCMessengerAnnounce(t *testing.T) {
	server := newFakeIRCServer(t)
	m := NewIRCMessenger("tessera")

	err := m.Announce(context.Background(), server.target(), []string{"build ok"}, IRCOptions{})
	require.NoError(t, err)

	lines := server.recorded(t)
	require.GreaterOrEqual(t, len(lines), 5)
	assert.Equal(t, "NICK tessera", lines[0])
	assert.Equal(t, "USER tessera 0 * :tessera", lines[1])
	assert.Equal(t, "JOIN #ci", lines[2])
	assert.Equal(t, "PRIVMSG #ci :build ok", lines[3])
	assert.Equal(t, "QUIT :done", lines[4])
}

func TestIRCMessengerNoticeAndSkipJoin(t *testing.T) {
	server := newFakeIRCServer(t)
	m := NewIRCMessenger("tessera")

	opts := IRCOptions{UseNotice: true, SkipJoin: true}
	err := m.Announce(context.Background(), server.target(), []string{"a", "b"}, opts)
	require.NoError(t, err)

	lines := server.recorded(t)
	joined := strings.Join(lines, "\n")
	assert.NotContains(t, joined, "JOIN")
	assert.NotContains(t, joined, "PRIVMSG")
	assert.Contains(t, lines, "NOTICE #ci :a")
	assert.Contains(t, lines, "NOTICE #ci :b")
}

func TestIRCMessengerAnswersPing(t *testing.T) {
	server := newFakeIRCServer(t)
	server.pingDuringWelcome = true
	m := NewIRCMessenger("tessera")

	err := m.Announce(context.Background(), server.target(), []string{"ok"}, IRCOptions{})
	require.NoError(t, err)

	lines := server.recorded(t)
	assert.Contains(t, lines, "PONG :test.server")
}

func TestIRCMessengerNickCollision(t *testing.T) {
	server := newFakeIRCServer(t)
	server.rejectFirstNick = true
	m := NewIRCMessenger("tessera")

	err := m.Announce(context.Background(), server.target(), []string{"ok"}, IRCOptions{})
	require.NoError(t, err)

	lines := server.recorded(t)
	assert.Contains(t, lines, "NICK tessera")
	assert.Contains(t, lines, "NICK tessera_")
}

func TestIRCMessengerDialFailure(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	target := IRCTarget{Channel: "#ci"}
	target.Host, target.Port, _ = net.SplitHostPort(listener.Addr().String())
	listener.Close() // nothing listening anymore

	m := NewIRCMessenger("tessera")
	m.Timeout = time.Second

	err = m.Announce(context.Background(), target, []string{"x"}, IRCOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "irc dial")
}

func TestTruncateIRCLine(t *testing.T) {
	short := "all good"
	assert.Equal(t, short, truncateIRCLine(short))

	long := strings.Repeat("x", 600)
	got := truncateIRCLine(long)
	assert.Len(t, got, 400)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestParseIRCLine(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantPrefix  string
		wantCommand string
		wantParams  string
	}{
		{
			name:        "numeric with prefix",
			raw:         ":server.example 001 nick :Welcome\r\n",
			wantPrefix:  "server.example",
			wantCommand: "001",
			wantParams:  "nick :Welcome",
		},
		{
			name:        "ping without prefix",
			raw:         "PING :server.example\r\n",
			wantCommand: "PING",
			wantParams:  ":server.example",
		},
		{
			name:        "bare error",
			raw:         "ERROR :Closing Link\r\n",
			wantCommand: "ERROR",
			wantParams:  ":Closing Link",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prefix, command, params := parseIRCLine(tt.raw)
			assert.Equal(t, tt.wantPrefix, prefix)
			assert.Equal(t, tt.wantCommand, command)
			assert.Equal(t, tt.wantParams, params)
		})
	}
}
