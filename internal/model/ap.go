package model

import (
	"context"
	"net/netip"
	"sync"
)

// CommandSender forwards an operator CLI line to an AP over its live shell
// session. The poller owning the session registers itself as the sender;
// the API layer resolves it through the Store.
type CommandSender interface {
	// SendCLI issues one CLI line (without trailing newline) and returns
	// the device output lines.
	SendCLI(ctx context.Context, cli string) ([]string, error)
}

// AP is one access point in the fleet. APs are identified by IP address,
// created on first successful discovery probe, and never removed for the
// rest of the run; Active toggles as the shell session comes and goes.
//
// The embedded mutex guards every mutable field, including the radio
// records. A poll iteration applies all radio and ACSP updates for the AP
// in a single critical section so that readers always observe a consistent
// per-AP snapshot.
type AP struct {
	sync.Mutex

	// IP is the AP's address, stable for the run.
	IP netip.Addr

	// Name is the platform/model name (e.g. "AP230").
	Name string

	// MAC is the hardware address of the management interface.
	MAC string

	// Hive is the cluster identifier shared by coordinating APs.
	Hive string

	// Radios holds the AP's radios keyed by interface name.
	Radios map[string]*Radio

	// Active reports whether the shell session is currently up.
	Active bool

	// Manual marks the AP as manually placed; the positioning engine
	// skips it while the method is manual.
	Manual bool

	sender CommandSender
}

// NewAP returns an AP record for the given address with no radios yet.
func NewAP(ip netip.Addr) *AP {
	return &AP{
		IP:     ip,
		Radios: make(map[string]*Radio),
	}
}

// SetSender registers the live command forwarder for this AP. A nil sender
// unregisters it (session lost).
func (a *AP) SetSender(s CommandSender) {
	a.Lock()
	a.sender = s
	a.Unlock()
}

// Sender returns the registered command forwarder, or nil when the AP has
// no live session.
func (a *AP) Sender() CommandSender {
	a.Lock()
	defer a.Unlock()
	return a.sender
}

// SetCenter assigns the canvas center to every radio of the AP. Both radios
// of a dual-radio AP always share one location.
//
// The caller must hold the AP lock.
func (a *AP) SetCenter(c Point) {
	for _, r := range a.Radios {
		r.Center = c
	}
}

// Primary returns the wifi0 radio, or nil if it has not been set up yet.
//
// The caller must hold the AP lock.
func (a *AP) Primary() *Radio {
	return a.Radios[IfnameWifi0]
}
