package shell

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Session-priming commands issued right after the banner is discarded, so
// the device never pages output or drops an idle console.
var primingCommands = []string{
	"console timeout 0\n",
	"console page 0\n",
}

// readChunkLen is the size of one transport read. Output is accumulated
// chunk by chunk up to the session buffer length.
const readChunkLen = 4096

// Config parameterizes a Session.
type Config struct {
	// Addr is the target "host:port".
	Addr string

	// LostTimeout bounds connection establishment and the wait for the
	// first output byte of a command.
	LostTimeout time.Duration

	// SettleDelay is the default pause between send and read.
	SettleDelay time.Duration

	// BufLen bounds a single command's output.
	BufLen int
}

// withDefaults fills zero fields with the package defaults.
func (c Config) withDefaults() Config {
	if c.LostTimeout <= 0 {
		c.LostTimeout = DefaultLostTimeout
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	if c.BufLen <= 0 {
		c.BufLen = DefaultBufLen
	}
	return c
}

// Session is one interactive shell to an AP. Commands are serialized by an
// internal mutex: at most one command is in flight per session, even when
// the poller and the CLI-injection API race.
type Session struct {
	cfg    Config
	dialer Dialer
	logger *slog.Logger

	mu     sync.Mutex
	conn   Conn
	outCh  chan []byte // filled by the reader goroutine, closed on EOF
	opened bool
}

// NewSession returns an unopened session for the given target.
func NewSession(cfg Config, dialer Dialer, logger *slog.Logger) *Session {
	return &Session{
		cfg:    cfg.withDefaults(),
		dialer: dialer,
		logger: logger.With(slog.String("component", "shell"), slog.String("addr", cfg.Addr)),
	}
}

// Open establishes the interactive shell, discards the login banner, and
// issues the session-priming commands. Returns ErrUnreachable (wrapped)
// when the connection cannot be established within LostTimeout.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opened {
		return nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.LostTimeout)
	defer cancel()

	conn, err := s.dialer.Dial(dialCtx, s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("open shell to %s: %w: %w", s.cfg.Addr, ErrUnreachable, err)
	}

	s.conn = conn
	s.outCh = make(chan []byte, 64)
	s.opened = true
	go pump(conn, s.outCh)

	// Let the device print its banner, then throw it away.
	sleepCtx(ctx, s.cfg.SettleDelay)
	s.drainLocked()

	for _, cmd := range primingCommands {
		if _, err := s.commandLocked(ctx, cmd, s.cfg.SettleDelay); err != nil {
			s.closeLocked()
			return fmt.Errorf("prime shell to %s: %w", s.cfg.Addr, err)
		}
	}

	s.logger.Info("shell session opened")
	return nil
}

// Opened reports whether the session currently holds a live shell.
func (s *Session) Opened() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

// Command sends one command (the caller includes the terminating newline),
// waits settle for the device to produce output, and returns the raw
// output. A zero settle uses the configured default. On timeout or I/O
// failure the session is closed and ErrSessionLost (wrapped) is returned.
func (s *Session) Command(ctx context.Context, cmd string, settle time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commandLocked(ctx, cmd, settle)
}

// CommandLines runs Command and strips the echoed command (first line) and
// the trailing shell prompt (last line), returning the remaining lines
// with carriage returns removed.
func (s *Session) CommandLines(ctx context.Context, cmd string, settle time.Duration) ([]string, error) {
	out, err := s.Command(ctx, cmd, settle)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(out, "\n")
	if len(lines) <= 2 {
		return nil, nil
	}
	lines = lines[1 : len(lines)-1]
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, "\r")
	}
	return lines, nil
}

// commandLocked implements Command with s.mu held.
func (s *Session) commandLocked(ctx context.Context, cmd string, settle time.Duration) (string, error) {
	if !s.opened {
		return "", fmt.Errorf("command on %s: %w", s.cfg.Addr, ErrSessionLost)
	}
	if settle <= 0 {
		settle = s.cfg.SettleDelay
	}

	// Throw away whatever the device printed since the last command.
	s.drainLocked()

	if _, err := s.conn.Write([]byte(cmd)); err != nil {
		s.closeLocked()
		s.logger.Warn("shell send failed", slog.String("cmd", strings.TrimSpace(cmd)), slog.String("error", err.Error()))
		return "", fmt.Errorf("send %q to %s: %w: %w", strings.TrimSpace(cmd), s.cfg.Addr, ErrSessionLost, err)
	}

	sleepCtx(ctx, settle)

	out, err := s.collectLocked()
	if err != nil {
		s.closeLocked()
		s.logger.Warn("shell timeout", slog.String("cmd", strings.TrimSpace(cmd)))
		return "", fmt.Errorf("read reply of %q from %s: %w", strings.TrimSpace(cmd), s.cfg.Addr, err)
	}
	return out, nil
}

// collectLocked waits up to LostTimeout for the first output chunk, then
// keeps appending chunks that are already pending, up to BufLen.
func (s *Session) collectLocked() (string, error) {
	var buf []byte

	timer := time.NewTimer(s.cfg.LostTimeout)
	defer timer.Stop()

	select {
	case chunk, ok := <-s.outCh:
		if !ok {
			return "", ErrSessionLost
		}
		buf = append(buf, chunk...)
	case <-timer.C:
		return "", ErrSessionLost
	}

	for len(buf) < s.cfg.BufLen {
		select {
		case chunk, ok := <-s.outCh:
			if !ok {
				return string(buf), nil
			}
			buf = append(buf, chunk...)
		default:
			return string(buf), nil
		}
	}
	return string(buf[:s.cfg.BufLen]), nil
}

// drainLocked discards pending output without blocking.
func (s *Session) drainLocked() {
	for {
		select {
		case _, ok := <-s.outCh:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// Close tears the session down. It is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Session) closeLocked() {
	if !s.opened {
		return
	}
	s.opened = false
	if err := s.conn.Close(); err != nil {
		s.logger.Debug("shell close", slog.String("error", err.Error()))
	}
	s.conn = nil
	s.logger.Info("shell session closed")
}

// pump copies transport output into ch chunk by chunk and closes ch when
// the transport fails or reaches EOF. When the channel is full the chunk
// is dropped rather than blocking, so pump always notices a closed
// transport; the channel capacity exceeds the session buffer length.
func pump(conn Conn, ch chan<- []byte) {
	defer close(ch)
	r := conn.Reader()
	for {
		chunk := make([]byte, readChunkLen)
		n, err := r.Read(chunk)
		if n > 0 {
			select {
			case ch <- chunk[:n]:
			default:
			}
		}
		if err != nil {
			return
		}
	}
}

// sleepCtx sleeps for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
