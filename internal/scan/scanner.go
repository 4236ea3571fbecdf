package scan

import (
	"context"
	"log/slog"
	"net"
	"net/netip"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cachalot1984/acspmon/internal/model"
)

// Defaults for the discovery loop.
const (
	// DefaultInterval is the pause between probe sweeps.
	DefaultInterval = 3 * time.Second

	// DefaultProbeTimeout bounds one connection probe.
	DefaultProbeTimeout = 3 * time.Second

	// DefaultPort is the shell port probed on every target.
	DefaultPort = 22

	// probeConcurrency bounds simultaneous probes in one sweep.
	probeConcurrency = 64
)

// Metrics is the subset of the fleet collector the scanner reports to.
type Metrics interface {
	ScanProbe()
	NodeDiscovered()
}

// Config parameterizes a Scanner.
type Config struct {
	// Targets are the probe addresses (see ParseTargets).
	Targets []netip.Addr

	// Port is the shell port; zero means DefaultPort.
	Port int

	// Interval is the pause between sweeps; zero means DefaultInterval.
	Interval time.Duration

	// ProbeTimeout bounds one probe; zero means DefaultProbeTimeout.
	ProbeTimeout time.Duration
}

// Scanner probes the target set for hosts accepting shell connections and
// hands unseen responders to the spawn callback. Known addresses are
// skipped, relying on address stability for the run.
type Scanner struct {
	cfg     Config
	store   *model.Store
	metrics Metrics
	spawn   func(ip netip.Addr)
	logger  *slog.Logger
}

// New returns a Scanner. spawn is invoked once per newly discovered node,
// from the scanner goroutine; it must not block.
func New(cfg Config, store *model.Store, metrics Metrics, spawn func(ip netip.Addr), logger *slog.Logger) *Scanner {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	return &Scanner{
		cfg:     cfg,
		store:   store,
		metrics: metrics,
		spawn:   spawn,
		logger:  logger.With(slog.String("component", "scan")),
	}
}

// Run sweeps the target set every interval until ctx is cancelled. The
// first sweep starts immediately.
func (s *Scanner) Run(ctx context.Context) error {
	s.logger.Info("discovery scanner started",
		slog.Int("targets", len(s.cfg.Targets)),
		slog.Duration("interval", s.cfg.Interval),
	)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		s.sweep(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// sweep probes every target concurrently and promotes new responders.
func (s *Scanner) sweep(ctx context.Context) {
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(probeConcurrency)

	for _, ip := range s.cfg.Targets {
		g.Go(func() error {
			if s.probe(gCtx, ip) {
				s.promote(ip)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// probe reports whether ip accepts a shell connection within the timeout.
func (s *Scanner) probe(ctx context.Context, ip netip.Addr) bool {
	s.metrics.ScanProbe()

	dialer := net.Dialer{Timeout: s.cfg.ProbeTimeout}
	addr := net.JoinHostPort(ip.String(), strconv.Itoa(s.cfg.Port))

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// promote registers an unseen responder and spawns its poller.
func (s *Scanner) promote(ip netip.Addr) {
	if !s.store.MarkNode(ip) {
		return
	}

	s.metrics.NodeDiscovered()
	s.logger.Info("node discovered", slog.String("ip", ip.String()))
	s.spawn(ip)
}
