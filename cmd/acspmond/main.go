// Acspmond -- real-time monitor for a fleet of wireless access points
// running automatic channel selection. It discovers APs on a subnet, polls
// each one over an interactive shell, estimates the fleet's relative
// physical layout from received-signal-strength measurements, and serves
// the resulting map to a rendering collaborator.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/cachalot1984/acspmon/internal/config"
	fleetmetrics "github.com/cachalot1984/acspmon/internal/metrics"
	"github.com/cachalot1984/acspmon/internal/model"
	"github.com/cachalot1984/acspmon/internal/poll"
	"github.com/cachalot1984/acspmon/internal/position"
	"github.com/cachalot1984/acspmon/internal/scan"
	"github.com/cachalot1984/acspmon/internal/server"
	"github.com/cachalot1984/acspmon/internal/shell"
	appversion "github.com/cachalot1984/acspmon/internal/version"
)

// Exit codes, matching the established operator contract.
const (
	exitOK          = 0
	exitQuit        = 253 // operator-requested quit
	exitInterrupt   = 254 // SIGINT / SIGTERM
	exitMissingArgs = 255 // missing or malformed required input
)

// shutdownTimeout is the maximum time to wait for the HTTP servers to
// drain active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// 1. Parse flags.
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(appversion.Full("acspmond"))
		return exitOK
	}

	// 2. Load config.
	cfg, err := loadConfig(*configPath)
	if err != nil {
		// Logger is not set up yet; use a temporary stderr logger.
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		if errors.Is(err, config.ErrMissingTarget) {
			return exitMissingArgs
		}
		return 1
	}

	// 3. Set up logger with dynamic level support for SIGHUP reload.
	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("acspmond starting",
		slog.String("version", appversion.Version),
		slog.String("target", cfg.Discovery.Target),
		slog.String("api_addr", cfg.API.Addr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	// 4. Expand the discovery target set.
	targets, err := scan.ParseTargets(cfg.Discovery.Target)
	if err != nil {
		logger.Error("bad discovery target", slog.String("error", err.Error()))
		return exitMissingArgs
	}

	// 5. Shared state, metrics, tunables.
	store := model.NewStore()
	tun := model.NewTunableStore(cfg.Tunables())
	reg := prometheus.NewRegistry()
	collector := fleetmetrics.NewCollector(reg, store)

	// 6. Run everything.
	code, err := runMonitor(cfg, targets, store, tun, collector, reg, *configPath, logLevel, logger)
	if err != nil {
		logger.Error("acspmond exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("acspmond stopped")
	return code
}

// runMonitor wires and supervises every long-running task with an errgroup
// and a signal-aware context, then maps the stop cause to an exit code.
func runMonitor(
	cfg *config.Config,
	targets []netip.Addr,
	store *model.Store,
	tun *model.TunableStore,
	collector *fleetmetrics.Collector,
	reg *prometheus.Registry,
	configPath string,
	logLevel *slog.LevelVar,
	logger *slog.Logger,
) (int, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// exitCode records why the context was cancelled.
	var exitCode atomic.Int32
	exitCode.Store(exitOK)

	// SIGINT / SIGTERM terminate with the interrupt code; the signal
	// handler is detached once shutdown begins.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			exitCode.Store(exitInterrupt)
			cancel()
		case <-ctx.Done():
		}
	}()

	g, gCtx := errgroup.WithContext(ctx)

	// Per-AP pollers, spawned by the discovery scanner.
	fleet := poll.NewFleet(
		poll.Config{
			Interval: cfg.Poll.Interval,
			Settle:   cfg.SSH.CommandDelay,
		},
		sessionFactory(cfg.SSH, logger),
		store, tun, collector, logger,
	)

	scanner := scan.New(scan.Config{
		Targets:      targets,
		Interval:     cfg.Discovery.Interval,
		ProbeTimeout: cfg.Discovery.ProbeTimeout,
	}, store, collector, func(ip netip.Addr) {
		fleet.Spawn(gCtx, ip)
	}, logger)
	g.Go(func() error { return scanner.Run(gCtx) })

	engine := position.NewEngine(store, tun, collector, cfg.Discovery.Interval, logger)
	g.Go(func() error { return engine.Run(gCtx) })

	// UI collaborator API and Prometheus endpoint.
	api := server.New(store, tun, func() {
		exitCode.Store(exitQuit)
		cancel()
	}, logger)
	apiSrv := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsSrv := newMetricsServer(cfg.Metrics, reg)

	startHTTPServers(gCtx, g, cfg, apiSrv, metricsSrv, logger)
	startDaemonGoroutines(gCtx, g, configPath, logLevel, tun, logger)

	notifyReady(logger)

	// Shutdown goroutine: waits for context cancellation.
	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, fleet, logger, apiSrv, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return 1, fmt.Errorf("run monitor: %w", err)
	}
	return int(exitCode.Load()), nil
}

// sessionFactory builds shell sessions for newly discovered nodes.
func sessionFactory(cfg config.SSHConfig, logger *slog.Logger) poll.SessionFactory {
	dialer := &shell.SSHDialer{
		Username: cfg.Username,
		Password: cfg.Password,
		Timeout:  cfg.Timeout,
	}
	return func(ip netip.Addr) poll.Commander {
		return shell.NewSession(shell.Config{
			Addr:        net.JoinHostPort(ip.String(), "22"),
			LostTimeout: cfg.Timeout,
			SettleDelay: cfg.CommandDelay,
		}, dialer, logger)
	}
}

// startHTTPServers registers the API and metrics HTTP server goroutines.
func startHTTPServers(
	ctx context.Context,
	g *errgroup.Group,
	cfg *config.Config,
	apiSrv *http.Server,
	metricsSrv *http.Server,
	logger *slog.Logger,
) {
	lc := net.ListenConfig{}

	g.Go(func() error {
		logger.Info("API server listening", slog.String("addr", cfg.API.Addr))
		return listenAndServe(ctx, &lc, apiSrv, cfg.API.Addr)
	})

	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServe(ctx, &lc, metricsSrv, cfg.Metrics.Addr)
	})
}

// startDaemonGoroutines registers the watchdog and SIGHUP reload goroutines.
func startDaemonGoroutines(
	ctx context.Context,
	g *errgroup.Group,
	configPath string,
	logLevel *slog.LevelVar,
	tun *model.TunableStore,
	logger *slog.Logger,
) {
	g.Go(func() error {
		return runWatchdog(ctx, logger)
	})

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		handleSIGHUP(ctx, sigHUP, configPath, logLevel, tun, logger)
		return nil
	})
}

// -------------------------------------------------------------------------
// Systemd Integration — sd_notify + watchdog
// -------------------------------------------------------------------------

// notifyReady sends READY=1 to systemd, indicating the daemon has
// completed initialization and is ready to serve.
func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness",
			slog.String("error", err.Error()),
		)
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

// notifyStopping sends STOPPING=1 to systemd, indicating the daemon
// is beginning graceful shutdown.
func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping",
			slog.String("error", err.Error()),
		)
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

// runWatchdog sends periodic watchdog keepalives to systemd.
// The interval is WatchdogSec/2 as recommended by the systemd documentation.
// If watchdog is not configured, the goroutine exits immediately.
func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog",
			slog.String("error", err.Error()),
		)
		return nil
	}
	if interval == 0 {
		logger.Debug("systemd watchdog not configured, skipping keepalive")
		return nil
	}

	tickInterval := interval / 2
	logger.Info("systemd watchdog enabled",
		slog.Duration("watchdog_sec", interval),
		slog.Duration("keepalive_interval", tickInterval),
	)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, wdErr := daemon.SdNotify(false, daemon.SdNotifyWatchdog); wdErr != nil {
				logger.Warn("failed to send watchdog keepalive",
					slog.String("error", wdErr.Error()),
				)
			}
		}
	}
}

// -------------------------------------------------------------------------
// SIGHUP Reload — log level + tunables
// -------------------------------------------------------------------------

// handleSIGHUP listens for SIGHUP signals and reloads configuration.
// Blocks until the context is cancelled.
func handleSIGHUP(
	ctx context.Context,
	sigHUP <-chan os.Signal,
	configPath string,
	logLevel *slog.LevelVar,
	tun *model.TunableStore,
	logger *slog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			logger.Info("received SIGHUP, reloading configuration")
			reloadConfig(configPath, logLevel, tun, logger)
		}
	}
}

// reloadConfig loads a fresh configuration from the given path, updates
// the dynamic log level, and swaps in the new tunables snapshot. Errors
// during reload are logged but do not stop the daemon -- the previous
// configuration remains in effect.
func reloadConfig(
	configPath string,
	logLevel *slog.LevelVar,
	tun *model.TunableStore,
	logger *slog.Logger,
) {
	newCfg, err := loadConfig(configPath)
	if err != nil {
		logger.Error("failed to reload configuration, keeping current settings",
			slog.String("error", err.Error()),
		)
		return
	}

	oldLevel := logLevel.Level()
	newLevel := config.ParseLogLevel(newCfg.Log.Level)
	logLevel.Set(newLevel)

	tun.Store(newCfg.Tunables())

	logger.Info("configuration reloaded",
		slog.String("old_log_level", oldLevel.String()),
		slog.String("new_log_level", newLevel.String()),
	)
}

// -------------------------------------------------------------------------
// Graceful Shutdown
// -------------------------------------------------------------------------

// gracefulShutdown performs an orderly shutdown: signals systemd, shuts
// down the HTTP servers, and waits for every poller to close its shell
// session so the monitored APs never see a half-dead console.
//
// The parent context is already cancelled when this function is called.
// A fresh timeout context is created internally for the server drain.
func gracefulShutdown(
	ctx context.Context,
	fleet *poll.Fleet,
	logger *slog.Logger,
	servers ...*http.Server,
) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}

	fleet.Wait()
	logger.Info("all shell sessions closed")

	return shutdownErr
}

// -------------------------------------------------------------------------
// Server Setup
// -------------------------------------------------------------------------

// listenAndServe creates a TCP listener using the ListenConfig and serves
// HTTP requests until the server is shut down.
func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

// newMetricsServer creates an HTTP server for the Prometheus metrics endpoint.
func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// loadConfig loads configuration from a file path, or from defaults plus
// environment overrides when no path is given. Validation runs in both
// cases so a missing discovery target is always fatal.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}

	cfg, err := config.LoadDefaultsWithEnv()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLoggerWithLevel creates a structured logger using a shared LevelVar
// for dynamic log level changes via SIGHUP reload.
func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
