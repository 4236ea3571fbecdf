package shell_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cachalot1984/acspmon/internal/shell"
)

// testLogger returns a logger that discards everything.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeConn scripts an interactive shell: every Write looks up a reply and
// queues it for the reader.
type fakeConn struct {
	mu      sync.Mutex
	reply   func(cmd string) string
	out     chan []byte
	closed  bool
	written []string
}

func newFakeConn(reply func(cmd string) string) *fakeConn {
	return &fakeConn{reply: reply, out: make(chan []byte, 64)}
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, errors.New("write on closed shell")
	}
	cmd := string(p)
	c.written = append(c.written, cmd)
	if r := c.reply(cmd); r != "" {
		c.out <- []byte(r)
	}
	return len(p), nil
}

func (c *fakeConn) Reader() io.Reader { return chanReader{c.out} }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.out)
	}
	return nil
}

func (c *fakeConn) commands() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.written...)
}

// push queues unsolicited output, like a device banner.
func (c *fakeConn) push(s string) { c.out <- []byte(s) }

// chanReader adapts the output channel to io.Reader.
type chanReader struct{ ch chan []byte }

func (r chanReader) Read(p []byte) (int, error) {
	chunk, ok := <-r.ch
	if !ok {
		return 0, io.EOF
	}
	return copy(p, chunk), nil
}

// fakeDialer hands out a prepared conn.
type fakeDialer struct {
	conn *fakeConn
	err  error
}

func (d *fakeDialer) Dial(_ context.Context, _ string) (shell.Conn, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

// echoReply emulates a device console: echo the command, print a body,
// then the prompt.
func echoReply(body string) func(string) string {
	return func(cmd string) string {
		return strings.TrimRight(cmd, "\n") + "\r\n" + body + "AH-1f2e30#"
	}
}

// fastConfig keeps test settle delays tiny.
func fastConfig() shell.Config {
	return shell.Config{
		Addr:        "192.168.1.10:22",
		LostTimeout: 200 * time.Millisecond,
		SettleDelay: 5 * time.Millisecond,
	}
}

func TestSessionOpenPrimesConsole(t *testing.T) {
	t.Parallel()

	conn := newFakeConn(echoReply(""))
	conn.push("welcome to the AP\r\nAH-1f2e30#")

	s := shell.NewSession(fastConfig(), &fakeDialer{conn: conn}, testLogger())
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	got := conn.commands()
	want := []string{"console timeout 0\n", "console page 0\n"}
	if len(got) != len(want) {
		t.Fatalf("priming commands = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("priming command %d = %q, want %q", i, got[i], want[i])
		}
	}

	if !s.Opened() {
		t.Error("Opened() = false after successful Open")
	}
}

func TestSessionOpenUnreachable(t *testing.T) {
	t.Parallel()

	s := shell.NewSession(fastConfig(), &fakeDialer{err: errors.New("connection refused")}, testLogger())
	err := s.Open(context.Background())
	if !errors.Is(err, shell.ErrUnreachable) {
		t.Fatalf("Open error = %v, want ErrUnreachable", err)
	}
}

func TestSessionCommandLinesStripsEchoAndPrompt(t *testing.T) {
	t.Parallel()

	conn := newFakeConn(echoReply("line one\r\nline two\r\n"))
	conn.push("banner\r\nAH-1f2e30#")

	s := shell.NewSession(fastConfig(), &fakeDialer{conn: conn}, testLogger())
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	lines, err := s.CommandLines(context.Background(), "show acsp\n", 0)
	if err != nil {
		t.Fatalf("CommandLines: %v", err)
	}
	if len(lines) != 2 || lines[0] != "line one" || lines[1] != "line two" {
		t.Errorf("CommandLines = %q, want [line one, line two]", lines)
	}
}

func TestSessionCommandTimeoutMarksLost(t *testing.T) {
	t.Parallel()

	silent := func(cmd string) string {
		if strings.HasPrefix(cmd, "console") {
			return cmd + "AH#"
		}
		return "" // swallow everything else
	}
	conn := newFakeConn(silent)
	conn.push("banner\r\nAH#")

	s := shell.NewSession(fastConfig(), &fakeDialer{conn: conn}, testLogger())
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	_, err := s.Command(context.Background(), "show acsp neighbor\n", 0)
	if !errors.Is(err, shell.ErrSessionLost) {
		t.Fatalf("Command error = %v, want ErrSessionLost", err)
	}
	if s.Opened() {
		t.Error("session still open after timeout")
	}

	// Follow-up commands fail fast until the session is reopened.
	if _, err := s.Command(context.Background(), "show acsp\n", 0); !errors.Is(err, shell.ErrSessionLost) {
		t.Errorf("Command on lost session = %v, want ErrSessionLost", err)
	}
}

func TestSessionDrainsStaleOutput(t *testing.T) {
	t.Parallel()

	conn := newFakeConn(echoReply("fresh\r\n"))
	conn.push("banner\r\nAH#")

	s := shell.NewSession(fastConfig(), &fakeDialer{conn: conn}, testLogger())
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	// Unsolicited output between commands must not leak into the next
	// command's reply.
	conn.push("stale garbage from last time\r\n")
	time.Sleep(10 * time.Millisecond)

	out, err := s.Command(context.Background(), "show acsp\n", 0)
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	if strings.Contains(out, "stale") {
		t.Errorf("stale output leaked into reply: %q", out)
	}
}

func TestSessionCloseIdempotent(t *testing.T) {
	t.Parallel()

	conn := newFakeConn(echoReply(""))
	conn.push("banner\r\nAH#")

	s := shell.NewSession(fastConfig(), &fakeDialer{conn: conn}, testLogger())
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	s.Close()
	s.Close() // must not panic or double-close the transport
	if s.Opened() {
		t.Error("Opened() = true after Close")
	}
}
