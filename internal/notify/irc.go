package notify

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"
)

// IRCTarget is one parsed channel endpoint from the descriptor's
// "host[:port]#channel" form.
type IRCTarget struct {
	Host    string
	Port    string
	Channel string // includes the leading '#'
}

// Addr returns the dialable host:port.
func (t IRCTarget) Addr() string {
	return net.JoinHostPort(t.Host, t.Port)
}

func (t IRCTarget) String() string {
	return t.Host + ":" + t.Port + t.Channel
}

// ParseIRCTarget splits "host[:port]#channel". The port defaults to
// 6667.
func ParseIRCTarget(s string) (IRCTarget, error) {
	hostPart, channel, found := strings.Cut(s, "#")
	if !found || channel == "" {
		return IRCTarget{}, fmt.Errorf("irc target %q: missing #channel", s)
	}
	hostPart = strings.TrimSpace(hostPart)
	if hostPart == "" {
		return IRCTarget{}, fmt.Errorf("irc target %q: missing server", s)
	}

	host, port := hostPart, "6667"
	if strings.Contains(hostPart, ":") {
		var err error
		host, port, err = net.SplitHostPort(hostPart)
		if err != nil {
			return IRCTarget{}, fmt.Errorf("irc target %q: %w", s, err)
		}
	}
	return IRCTarget{Host: host, Port: port, Channel: "#" + channel}, nil
}

// IRCOptions carries the per-descriptor delivery switches.
type IRCOptions struct {
	// UseNotice sends NOTICE instead of PRIVMSG, which most clients
	// render without triggering channel activity alerts.
	UseNotice bool

	// SkipJoin messages the channel without joining first. Requires
	// the channel to accept external messages (mode -n).
	SkipJoin bool
}

// IRCMessenger is a minimal one-shot IRC client: connect, register,
// deliver the rendered lines, quit. It holds no persistent connection
// because a runner sends at most one burst per run.
type IRCMessenger struct {
	// Nick is the nickname to register. Defaults to "tessera".
	Nick string

	// UseTLS wraps the connection in TLS for all targets.
	UseTLS bool

	// Timeout bounds the dial and, absent a context deadline, the
	// whole session.
	Timeout time.Duration
}

// NewIRCMessenger creates a messenger with the given nick.
func NewIRCMessenger(nick string) *IRCMessenger {
	return &IRCMessenger{Nick: nick, Timeout: 30 * time.Second}
}

// Announce delivers lines to one channel target.
func (m *IRCMessenger) Announce(ctx context.Context, target IRCTarget, lines []string, opts IRCOptions) error {
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", target.Addr())
	if err != nil {
		return fmt.Errorf("irc dial %s: %w", target.Addr(), err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(timeout)
	}
	_ = conn.SetDeadline(deadline)

	if m.UseTLS {
		tlsConn := tls.Client(conn, &tls.Config{ServerName: target.Host})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			return fmt.Errorf("irc tls handshake: %w", err)
		}
		conn = tlsConn
	}

	s := &ircSession{conn: conn, reader: bufio.NewReader(conn)}

	nick := m.Nick
	if nick == "" {
		nick = "tessera"
	}
	if err := s.register(nick); err != nil {
		return fmt.Errorf("irc register: %w", err)
	}

	if !opts.SkipJoin {
		s.send("JOIN %s", target.Channel)
	}
	verb := "PRIVMSG"
	if opts.UseNotice {
		verb = "NOTICE"
	}
	for _, line := range lines {
		s.send("%s %s :%s", verb, target.Channel, truncateIRCLine(line))
	}
	s.send("QUIT :done")

	if s.err != nil {
		return fmt.Errorf("irc send: %w", s.err)
	}
	return nil
}

// ircSession wraps a connection with a sticky write error so the send
// sequence reads linearly.
type ircSession struct {
	conn   net.Conn
	reader *bufio.Reader
	err    error
}

func (s *ircSession) send(format string, args ...any) {
	if s.err != nil {
		return
	}
	_, s.err = fmt.Fprintf(s.conn, format+"\r\n", args...)
}

// register performs NICK/USER and waits for the server welcome,
// answering PING and retrying on nickname collisions with appended
// underscores.
func (s *ircSession) register(nick string) error {
	attempt := nick
	s.send("NICK %s", attempt)
	s.send("USER %s 0 * :%s", nick, nick)
	if s.err != nil {
		return s.err
	}

	retries := 0
	for {
		raw, err := s.reader.ReadString('\n')
		if err != nil {
			return err
		}
		prefix, command, params := parseIRCLine(raw)
		_ = prefix

		switch command {
		case "PING":
			s.send("PONG %s", params)
			if s.err != nil {
				return s.err
			}
		case "001":
			return nil
		case "432", "433":
			// Bad or occupied nickname; retry a few suffixed variants.
			if retries >= 3 {
				return fmt.Errorf("nickname %q rejected (%s)", attempt, command)
			}
			retries++
			attempt += "_"
			s.send("NICK %s", attempt)
			if s.err != nil {
				return s.err
			}
		case "ERROR":
			return fmt.Errorf("server error: %s", strings.TrimSpace(params))
		}
	}
}

// parseIRCLine splits an IRC protocol line into prefix, command, and
// the raw parameter tail.
func parseIRCLine(raw string) (prefix, command, params string) {
	line := strings.TrimRight(raw, "\r\n")
	if strings.HasPrefix(line, ":") {
		var rest string
		prefix, rest, _ = strings.Cut(line[1:], " ")
		line = rest
	}
	command, params, _ = strings.Cut(line, " ")
	return prefix, command, params
}

// truncateIRCLine keeps messages inside the 512-byte protocol frame,
// leaving headroom for the command, target, and server-added prefix.
func truncateIRCLine(line string) string {
	const max = 400
	if len(line) <= max {
		return line
	}
	return line[:max-3] + "..."
}
