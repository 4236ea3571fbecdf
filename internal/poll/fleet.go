package poll

import (
	"context"
	"log/slog"
	"net/netip"
	"sync"

	"github.com/cachalot1984/acspmon/internal/model"
)

// SessionFactory builds the shell session for a newly discovered node.
type SessionFactory func(ip netip.Addr) Commander

// Fleet spawns one poller goroutine per discovered AP and tracks them so
// shutdown can wait for every session to close.
type Fleet struct {
	cfg     Config
	factory SessionFactory
	store   *model.Store
	tun     *model.TunableStore
	metrics Metrics
	logger  *slog.Logger

	wg sync.WaitGroup
}

// NewFleet returns a Fleet spawning pollers with the given collaborators.
func NewFleet(
	cfg Config,
	factory SessionFactory,
	store *model.Store,
	tun *model.TunableStore,
	metrics Metrics,
	logger *slog.Logger,
) *Fleet {
	return &Fleet{
		cfg:     cfg,
		factory: factory,
		store:   store,
		tun:     tun,
		metrics: metrics,
		logger:  logger,
	}
}

// Spawn starts a poller for ip. The poller runs until ctx is cancelled or
// the host turns out not to be an AP.
func (f *Fleet) Spawn(ctx context.Context, ip netip.Addr) {
	p := NewPoller(ip, f.cfg, f.factory(ip), f.store, f.tun, f.metrics, f.logger)

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		p.Run(ctx)
	}()
}

// Wait blocks until every spawned poller has returned and closed its
// session.
func (f *Fleet) Wait() {
	f.wg.Wait()
}
