package model

import (
	"net/netip"
	"sync"
	"sync/atomic"
)

// DefaultNoiseFloor is the fleet noise floor assumed before any radio has
// reported a sample, in dBm.
const DefaultNoiseFloor = -90

// Store owns the shared fleet state: the node set used by discovery to
// dedupe probes, and the AP map read by the positioning engine and the API.
//
// Two locks protect the two collections. Individual AP records carry their
// own lock; the Store lock only guards map membership and discovery order.
type Store struct {
	nodesMu sync.Mutex
	nodes   map[netip.Addr]struct{}

	mu    sync.RWMutex
	aps   map[netip.Addr]*AP
	order []netip.Addr

	// avgNfloor is the fleet-wide running mean of smoothed noise floors,
	// recomputed on every positioning sweep.
	avgNfloor atomic.Int64
}

// NewStore returns an empty Store with the default fleet noise floor.
func NewStore() *Store {
	s := &Store{
		nodes: make(map[netip.Addr]struct{}),
		aps:   make(map[netip.Addr]*AP),
	}
	s.avgNfloor.Store(DefaultNoiseFloor)
	return s
}

// -------------------------------------------------------------------------
// Node set — discovery dedupe
// -------------------------------------------------------------------------

// MarkNode records ip as a known node. It returns false when the node was
// already known (the discovery scanner skips it), relying on address
// stability for the run.
func (s *Store) MarkNode(ip netip.Addr) bool {
	s.nodesMu.Lock()
	defer s.nodesMu.Unlock()

	if _, known := s.nodes[ip]; known {
		return false
	}
	s.nodes[ip] = struct{}{}
	return true
}

// ForgetNode removes ip from the node set so a later discovery pass may
// probe it again. Used when a probe or first contact fails, and when a
// host turns out not to be an AP.
func (s *Store) ForgetNode(ip netip.Addr) {
	s.nodesMu.Lock()
	delete(s.nodes, ip)
	s.nodesMu.Unlock()
}

// NodeCount returns the number of known nodes.
func (s *Store) NodeCount() int {
	s.nodesMu.Lock()
	defer s.nodesMu.Unlock()
	return len(s.nodes)
}

// -------------------------------------------------------------------------
// AP map
// -------------------------------------------------------------------------

// AddAP registers ap under its address, preserving discovery order. If an
// AP already exists for the address the existing record is returned with
// existed=true; the caller reactivates it instead of replacing it.
func (s *Store) AddAP(ap *AP) (registered *AP, existed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.aps[ap.IP]; ok {
		return cur, true
	}
	s.aps[ap.IP] = ap
	s.order = append(s.order, ap.IP)
	return ap, false
}

// AP returns the AP registered under ip.
func (s *Store) AP(ip netip.Addr) (*AP, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ap, ok := s.aps[ip]
	return ap, ok
}

// APs returns all registered APs in discovery order.
func (s *Store) APs() []*AP {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*AP, 0, len(s.order))
	for _, ip := range s.order {
		out = append(out, s.aps[ip])
	}
	return out
}

// APCount returns the number of registered APs.
func (s *Store) APCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.aps)
}

// -------------------------------------------------------------------------
// Fleet aggregates
// -------------------------------------------------------------------------

// AvgNoiseFloor returns the fleet-wide mean smoothed noise floor in dBm.
func (s *Store) AvgNoiseFloor() int {
	return int(s.avgNfloor.Load())
}

// SetAvgNoiseFloor records the fleet-wide mean smoothed noise floor.
func (s *Store) SetAvgNoiseFloor(nfloor int) {
	s.avgNfloor.Store(int64(nfloor))
}

// RecomputeNoiseFloor recalculates the fleet mean over every radio that has
// reported a smoothed noise floor and stores it. With no samples the
// previous value is kept. Returns the value in effect afterwards.
func (s *Store) RecomputeNoiseFloor() int {
	total, radios := 0, 0
	for _, ap := range s.APs() {
		ap.Lock()
		for _, r := range ap.Radios {
			if r.HasNfloor {
				total += r.NfloorMean
				radios++
			}
		}
		ap.Unlock()
	}
	if radios > 0 {
		s.SetAvgNoiseFloor(total / radios)
	}
	return s.AvgNoiseFloor()
}
