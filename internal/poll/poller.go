// Package poll drives the per-AP polling loop: it keeps one interactive
// shell session per AP, issues the fixed command set, parses the output,
// and publishes typed radio and channel-selection records to the shared
// model.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"sort"
	"strings"
	"time"

	"github.com/cachalot1984/acspmon/internal/model"
	"github.com/cachalot1984/acspmon/internal/position"
	"github.com/cachalot1984/acspmon/internal/shell"
)

// ErrNotAnAP indicates a discovered host whose first-interface probe does
// not look like an AP (e.g. an SR-series switch). The host is dropped from
// the known set; the discovery scanner may pick it up again later.
var ErrNotAnAP = errors.New("host is not an access point")

// Poll loop timing.
const (
	// DefaultInterval is the per-iteration sleep.
	DefaultInterval = 500 * time.Millisecond

	// heavySettle is the settle delay for the neighbor dump, which is by
	// far the largest reply.
	heavySettle = 2 * time.Second

	// platformSettle is the settle delay for `show version`.
	platformSettle = 1 * time.Second
)

// switchPlatformPrefix marks SR-series switches, which accept the same
// shell but are not APs.
const switchPlatformPrefix = "SR"

// Commander is the slice of the shell session the poller drives. At most
// one command is in flight per session; the implementation serializes.
type Commander interface {
	Open(ctx context.Context) error
	Opened() bool
	Command(ctx context.Context, cmd string, settle time.Duration) (string, error)
	CommandLines(ctx context.Context, cmd string, settle time.Duration) ([]string, error)
	Close()
}

// Metrics is the subset of the fleet collector the poller reports to.
type Metrics interface {
	PollIteration()
	ParseError()
	SessionOpened()
	SessionLost()
	CLICommand()
	APActive(ip string, active bool)
	APForgotten(ip string)
}

// Config parameterizes a Poller.
type Config struct {
	// Interval is the per-iteration sleep; zero means DefaultInterval.
	Interval time.Duration

	// Settle is the base settle delay for ordinary commands; zero means
	// the session default.
	Settle time.Duration
}

// Poller owns the polling loop of one AP.
type Poller struct {
	ip      netip.Addr
	cfg     Config
	sess    Commander
	store   *model.Store
	tun     *model.TunableStore
	metrics Metrics
	logger  *slog.Logger

	ap *model.AP
}

// NewPoller returns a poller for ip using the given session.
func NewPoller(
	ip netip.Addr,
	cfg Config,
	sess Commander,
	store *model.Store,
	tun *model.TunableStore,
	metrics Metrics,
	logger *slog.Logger,
) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Settle <= 0 {
		cfg.Settle = shell.DefaultSettleDelay
	}
	return &Poller{
		ip:      ip,
		cfg:     cfg,
		sess:    sess,
		store:   store,
		tun:     tun,
		metrics: metrics,
		logger:  logger.With(slog.String("component", "poll"), slog.String("ip", ip.String())),
	}
}

// Run polls the AP until ctx is cancelled. The loop survives session loss
// and parse failures: the AP stays known and the next iteration retries.
// A first-contact failure (unreachable, or not an AP) removes the host
// from the known-node set and ends the loop.
func (p *Poller) Run(ctx context.Context) {
	defer p.sess.Close()

	for {
		if err := p.tick(ctx); err != nil {
			p.logger.Info("poller stopped", slog.String("reason", err.Error()))
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.cfg.Interval):
		}
	}
}

// tick performs one loop iteration. A non-nil return ends the loop.
func (p *Poller) tick(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if !p.sess.Opened() {
		if err := p.sess.Open(ctx); err != nil {
			if p.ap == nil {
				// Never managed a first contact: give the host back
				// to the discovery scanner.
				p.store.ForgetNode(p.ip)
				return fmt.Errorf("first contact: %w", err)
			}
			p.markInactive()
			p.logger.Warn("session reopen failed", slog.String("error", err.Error()))
			return nil
		}
		p.metrics.SessionOpened()
	}

	if p.ap == nil {
		if err := p.firstContact(ctx); err != nil {
			p.store.ForgetNode(p.ip)
			p.metrics.APForgotten(p.ip.String())
			p.sess.Close()
			return fmt.Errorf("first contact: %w", err)
		}
	}

	p.metrics.PollIteration()
	if err := p.pollOnce(ctx); err != nil {
		switch {
		case errors.Is(err, shell.ErrSessionLost):
			p.metrics.SessionLost()
			p.markInactive()
			p.logger.Warn("AP offline", slog.String("error", err.Error()))
		case errors.Is(err, ErrParse):
			p.metrics.ParseError()
			p.logger.Error("parse failure, iteration abandoned", slog.String("error", err.Error()))
		default:
			p.logger.Error("poll iteration failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// -------------------------------------------------------------------------
// First contact — identify the host and set up its radios
// -------------------------------------------------------------------------

// firstContact verifies the host is an AP, reads its identity, creates the
// radio records, and registers the AP in the store.
func (p *Poller) firstContact(ctx context.Context) error {
	settle := p.settle()

	out, err := p.sess.CommandLines(ctx, "show interface | in "+model.IfnameWifi0+"\n", settle)
	if err != nil {
		return err
	}
	if !strings.Contains(strings.Join(out, ""), "Wifi0") {
		return fmt.Errorf("%s has no wifi0 interface: %w", p.ip, ErrNotAnAP)
	}
	wifi0MAC, wifi0State, err := ParseRadioLine(out[0])
	if err != nil {
		return err
	}

	mgt, err := p.sess.CommandLines(ctx, "show interface | in mgt0\n", settle)
	if err != nil {
		return err
	}
	if len(mgt) == 0 {
		return fmt.Errorf("%s: empty mgt0 reply: %w", p.ip, ErrParse)
	}
	mac, hive, err := ParseMgt0Line(mgt[0])
	if err != nil {
		return err
	}

	ver, err := p.sess.CommandLines(ctx, "show version | in Platform\n", platformSettle)
	if err != nil {
		return err
	}
	if len(ver) == 0 {
		return fmt.Errorf("%s: empty platform reply: %w", p.ip, ErrParse)
	}
	name, err := ParsePlatformLine(ver[0])
	if err != nil {
		return err
	}
	if strings.HasPrefix(name, switchPlatformPrefix) {
		return fmt.Errorf("%s platform %s: %w", p.ip, name, ErrNotAnAP)
	}

	ap, existed := p.store.AddAP(model.NewAP(p.ip))

	ap.Lock()
	ap.Name = name
	ap.MAC = mac
	ap.Hive = hive
	ap.Active = true
	if ap.Radios[model.IfnameWifi0] == nil {
		ap.Radios[model.IfnameWifi0] = &model.Radio{Name: model.IfnameWifi0}
	}
	r0 := ap.Radios[model.IfnameWifi0]
	r0.MAC = wifi0MAC
	r0.LinkState = wifi0State
	ap.Unlock()

	// A second radio is optional hardware.
	out, err = p.sess.CommandLines(ctx, "show interface | in "+model.IfnameWifi1+"\n", settle)
	if err != nil {
		return err
	}
	if len(out) > 0 {
		if mac1, state1, rErr := ParseRadioLine(out[0]); rErr == nil {
			ap.Lock()
			if ap.Radios[model.IfnameWifi1] == nil {
				ap.Radios[model.IfnameWifi1] = &model.Radio{Name: model.IfnameWifi1}
			}
			r1 := ap.Radios[model.IfnameWifi1]
			r1.MAC = mac1
			r1.LinkState = state1
			ap.Unlock()
		}
	}

	ap.SetSender(p)
	p.ap = ap
	p.metrics.APActive(p.ip.String(), true)

	if existed {
		p.logger.Info("AP back online", slog.String("name", name))
	} else {
		p.logger.Info("AP added to monitor list",
			slog.String("name", name),
			slog.String("mac", mac),
			slog.String("hive", hive),
		)
	}
	return nil
}

// -------------------------------------------------------------------------
// Poll iteration
// -------------------------------------------------------------------------

// radioStage holds one radio's parsed updates before they are applied.
type radioStage struct {
	name      string
	iface     InterfaceStats
	supported bool
	row       AcspRow
	neighbors []stagedNeighbor
}

// stagedNeighbor pairs a remote radio with its aggregated observation.
type stagedNeighbor struct {
	remote remoteRadio
	obs    NeighborObs
}

// remoteRadio is a minimal snapshot of another AP's radio, gathered before
// the per-AP critical section so no cross-AP locks nest.
type remoteRadio struct {
	ap     netip.Addr
	ifname string
	mac    string
	state  model.ChannelState
	txpwr  int
}

// pollOnce runs one full poll of every radio and applies all updates to
// the AP in a single critical section.
func (p *Poller) pollOnce(ctx context.Context) error {
	tun := p.tun.Load()
	settle := p.cfg.Settle + tun.CmdDelayExtra
	heavy := heavySettle + tun.CmdDelayExtra

	var stages []radioStage
	for _, name := range p.radioNames() {
		st, err := p.stageRadio(ctx, name, settle, heavy)
		if err != nil {
			return err
		}
		stages = append(stages, st)
	}

	p.apply(stages, tun)
	return nil
}

// radioNames lists the AP's radios, wifi0 first.
func (p *Poller) radioNames() []string {
	p.ap.Lock()
	defer p.ap.Unlock()

	var names []string
	for _, n := range []string{model.IfnameWifi0, model.IfnameWifi1} {
		if _, ok := p.ap.Radios[n]; ok {
			names = append(names, n)
		}
	}
	return names
}

// stageRadio issues this radio's command set and parses the replies.
func (p *Poller) stageRadio(ctx context.Context, name string, settle, heavy time.Duration) (radioStage, error) {
	st := radioStage{name: name}

	out, err := p.sess.Command(ctx, "show interface "+name+"\n", settle)
	if err != nil {
		return st, err
	}
	st.iface, err = ParseInterface(out)
	if err != nil {
		return st, fmt.Errorf("%s %s: %w", p.ip, name, err)
	}

	if !model.SupportsAcsp(st.iface.Mode) {
		p.logger.Debug("channel selection not supported",
			slog.String("radio", name),
			slog.String("mode", st.iface.Mode),
		)
		return st, nil
	}
	st.supported = true

	lines, err := p.sess.CommandLines(ctx, "show acsp\n", settle)
	if err != nil {
		return st, err
	}
	st.row, err = ParseAcspTable(lines, name)
	if err != nil {
		return st, fmt.Errorf("%s %s: %w", p.ip, name, err)
	}

	nbrLines, err := p.sess.CommandLines(ctx, "show acsp neighbor\n", heavy)
	if err != nil {
		return st, err
	}

	for _, remote := range p.gatherRemotes() {
		if len(remote.mac) < 2 {
			continue
		}
		obs, oErr := ParseNeighborRows(nbrLines, remote.mac[:len(remote.mac)-1])
		if oErr != nil {
			return st, fmt.Errorf("%s %s neighbor %s: %w", p.ip, name, remote.mac, oErr)
		}
		if obs.Rows == 0 {
			continue
		}
		st.neighbors = append(st.neighbors, stagedNeighbor{remote: remote, obs: obs})
	}
	return st, nil
}

// gatherRemotes snapshots every other AP's radios. Store and per-AP locks
// are taken here, before the poller locks its own AP.
func (p *Poller) gatherRemotes() []remoteRadio {
	var remotes []remoteRadio
	for _, ap := range p.store.APs() {
		if ap.IP == p.ip {
			continue
		}
		ap.Lock()
		for _, r := range ap.Radios {
			remotes = append(remotes, remoteRadio{
				ap:     ap.IP,
				ifname: r.Name,
				mac:    r.MAC,
				state:  r.Acsp.ChannelState,
				txpwr:  r.Acsp.TxPower,
			})
		}
		ap.Unlock()
	}
	return remotes
}

// apply publishes every staged radio update in one critical section so
// readers observe a consistent per-AP snapshot.
func (p *Poller) apply(stages []radioStage, tun model.Tunables) {
	avgNfloor := p.store.AvgNoiseFloor()

	p.ap.Lock()
	defer p.ap.Unlock()

	p.ap.Active = true
	for _, st := range stages {
		r, ok := p.ap.Radios[st.name]
		if !ok {
			continue
		}
		applyStage(r, st, tun, avgNfloor)
	}
	p.metrics.APActive(p.ip.String(), true)
}

// applyStage folds one staged update into the radio record.
func applyStage(r *model.Radio, st radioStage, tun model.Tunables, avgNfloor int) {
	r.Mode = st.iface.Mode
	r.Phymode = st.iface.Phymode
	r.Band = model.BandFromPhymode(st.iface.Phymode)
	r.Nfloor.Push(st.iface.Nfloor, tun.SmoothWindow)
	r.NfloorMean, r.HasNfloor = r.Nfloor.Mean()

	r.Acsp.Supported = st.supported
	if !st.supported {
		return
	}

	// Record the wall clock when channel selection first converges.
	if !r.Acsp.ChannelState.Running() && st.row.ChannelState.Running() {
		r.Acsp.RunSince = time.Now()
	}
	r.Acsp.ChannelState = st.row.ChannelState
	r.Acsp.ChannelDisabledReason = st.row.ChannelDisabledReason
	r.Acsp.Channel = st.row.Channel
	r.Acsp.Width = st.row.Width
	r.Acsp.PowerState = st.row.PowerState
	r.Acsp.PowerDisabledReason = st.row.PowerDisabledReason
	r.Acsp.TxPower = st.row.TxPower

	applyNeighbors(r, st.neighbors, tun.SmoothWindow)

	r.NbrScore = neighborScore(st.neighbors, r.Acsp.Neighbors, avgNfloor)
	r.Scored = true

	r.Coverage = position.CoverageDots(
		st.row.TxPower, st.row.Channel, avgNfloor, tun.NfloorMargin, tun.MetersPerDot)
}

// applyNeighbors rebuilds the neighbor table from this poll's observations,
// carrying each surviving neighbor's smoothing window forward.
func applyNeighbors(r *model.Radio, staged []stagedNeighbor, window int) {
	old := r.Acsp.Neighbors
	next := make(map[string]*model.Neighbor, len(staged))

	for _, sn := range staged {
		nbr := &model.Neighbor{
			AP:     sn.remote.ap,
			Ifname: sn.remote.ifname,
			MAC:    sn.remote.mac,
		}
		if prev, ok := old[sn.remote.mac]; ok {
			nbr.RSSI = prev.RSSI
		}
		nbr.RSSI.Push(sn.obs.RSSI, window)
		nbr.RSSIMean, _ = nbr.RSSI.Mean()
		nbr.StaCount = sn.obs.StaCount
		nbr.CRCErr = sn.obs.CRCErr
		nbr.TotalCU = sn.obs.TotalCU
		next[sn.remote.mac] = nbr
	}

	r.Acsp.Neighbors = next

	// Near-to-far ordering by the path loss proxy txpwr - rssi. A remote
	// that has not reported its power yet is assumed at 20 dBm.
	byDist := make([]*model.Neighbor, 0, len(next))
	txpwr := make(map[string]int, len(staged))
	for _, sn := range staged {
		pw := sn.remote.txpwr
		if pw == 0 {
			pw = 20
		}
		txpwr[sn.remote.mac] = pw
		byDist = append(byDist, next[sn.remote.mac])
	}
	sort.SliceStable(byDist, func(i, j int) bool {
		return txpwr[byDist[i].MAC]-byDist[i].RSSIMean < txpwr[byDist[j].MAC]-byDist[j].RSSIMean
	})
	r.Acsp.ByDistance = byDist
}

// neighborScore sums the per-neighbor contributions: SNR over the fleet
// noise floor, weighted by how mature the neighbor's selection state is.
// A radio with no neighbors scores the minimum, deprioritizing it.
func neighborScore(staged []stagedNeighbor, table map[string]*model.Neighbor, avgNfloor int) float64 {
	if len(staged) == 0 {
		return model.ScoreNoNeighbors
	}

	score := 0.0
	for _, sn := range staged {
		nbr := table[sn.remote.mac]
		snr := float64(nbr.RSSIMean - avgNfloor)
		switch sn.remote.state {
		case model.ChannelDisable, model.ChannelRun:
			score += snr / 2
		case model.ChannelScanning, model.ChannelListening:
			score += snr / 4
		case model.ChannelInit, model.ChannelSchedWaiting:
			score += snr / 6
		default:
			score += snr / 8
		}
	}
	return score
}

// markInactive flags the AP and clears its command forwarder; the render
// views grey it out until the session reopens.
func (p *Poller) markInactive() {
	if p.ap == nil {
		return
	}
	p.ap.Lock()
	p.ap.Active = false
	p.ap.Unlock()
	p.metrics.APActive(p.ip.String(), false)
}

// settle returns the base settle delay plus the tunable extra.
func (p *Poller) settle() time.Duration {
	return p.cfg.Settle + p.tun.Load().CmdDelayExtra
}

// -------------------------------------------------------------------------
// CLI injection — model.CommandSender
// -------------------------------------------------------------------------

// SendCLI forwards one operator CLI line over the AP's live session. The
// session mutex serializes it against the poll loop.
func (p *Poller) SendCLI(ctx context.Context, cli string) ([]string, error) {
	p.metrics.CLICommand()
	out, err := p.sess.CommandLines(ctx, cli+"\n", p.settle())
	if err != nil {
		return nil, fmt.Errorf("cli %q to %s: %w", cli, p.ip, err)
	}
	p.logger.Info("cli issued", slog.String("cli", cli))
	return out, nil
}
