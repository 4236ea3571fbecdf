package position

import (
	"net/netip"

	"github.com/cachalot1984/acspmon/internal/model"
)

// reference is one already-placed radio usable for trilateration, with the
// path loss and frequency of the direction it was heard in. For forward
// references the remote radio is the transmitter; for reverse references
// the candidate is.
type reference struct {
	ap     netip.Addr
	center model.Point
	radius float64
	fspl   float64
	ghz    float64
}

// candidate is the snapshot of the AP being placed: its primary radio's
// identity and neighbor table, copied under the AP lock.
type candidate struct {
	ip        netip.Addr
	mac       string
	txpwr     int
	chnl      int
	neighbors []model.Neighbor
}

// candidateInfo copies the fields of ap's primary radio that placement
// needs. ok is false when the AP has no primary radio yet.
func (e *Engine) candidateInfo(ap *model.AP) (candidate, bool) {
	ap.Lock()
	defer ap.Unlock()

	r0 := ap.Primary()
	if r0 == nil {
		return candidate{}, false
	}

	c := candidate{
		ip:    ap.IP,
		mac:   r0.MAC,
		txpwr: r0.Acsp.TxPower,
		chnl:  r0.Acsp.Channel,
	}
	for _, n := range r0.Acsp.ByDistance {
		c.neighbors = append(c.neighbors, *n)
	}
	return c, true
}

// poolSet holds the four reference pools. Selection consumes them in the
// order f0, b0, f1, b1: forward primary-interface references first, then
// reverse, then the secondary interface.
type poolSet struct {
	f0, b0, f1, b1 []*reference
}

// order returns the pools in consumption order.
func (p *poolSet) order() []*[]*reference {
	return []*[]*reference{&p.f0, &p.b0, &p.f1, &p.b1}
}

// buildPools collects the reference pools for one candidate.
//
// Forward pools (f0, f1) hold placed radios the candidate heard, in the
// candidate's near-to-far neighbor order; the path loss is the reference's
// transmit power minus the candidate's smoothed RSSI of it. Reverse pools
// (b0, b1) hold placed radios that heard the candidate; the path loss is
// the candidate's transmit power minus the reference's smoothed RSSI.
func (e *Engine) buildPools(cand candidate, placed []*model.AP, placedSet map[netip.Addr]bool) *poolSet {
	pools := &poolSet{}

	for _, n := range cand.neighbors {
		if !placedSet[n.AP] {
			continue
		}
		ref, ok := e.forwardReference(n)
		if !ok {
			continue
		}
		switch n.Ifname {
		case model.IfnameWifi0:
			pools.f0 = append(pools.f0, ref)
		case model.IfnameWifi1:
			pools.f1 = append(pools.f1, ref)
		}
	}

	for _, refAP := range placed {
		if r, ok := e.reverseReference(refAP, model.IfnameWifi0, cand); ok {
			pools.b0 = append(pools.b0, r)
		}
		if r, ok := e.reverseReference(refAP, model.IfnameWifi1, cand); ok {
			pools.b1 = append(pools.b1, r)
		}
	}
	return pools
}

// forwardReference resolves a heard neighbor to a live placed radio.
func (e *Engine) forwardReference(n model.Neighbor) (*reference, bool) {
	ap, ok := e.store.AP(n.AP)
	if !ok {
		return nil, false
	}

	ap.Lock()
	defer ap.Unlock()

	r, ok := ap.Radios[n.Ifname]
	if !ok {
		return nil, false
	}

	txpwr := r.Acsp.TxPower
	if txpwr == 0 {
		txpwr = defaultRefTxPower
	}
	return &reference{
		ap:     n.AP,
		center: r.Center,
		radius: float64(r.Coverage),
		fspl:   float64(txpwr - n.RSSIMean),
		ghz:    model.IEEE2GHz(r.Acsp.Channel),
	}, true
}

// reverseReference checks whether refAP's radio heard the candidate and
// builds the reverse-direction reference if so.
func (e *Engine) reverseReference(refAP *model.AP, ifname string, cand candidate) (*reference, bool) {
	refAP.Lock()
	defer refAP.Unlock()

	r, ok := refAP.Radios[ifname]
	if !ok {
		return nil, false
	}
	nbr, ok := r.Acsp.Neighbors[cand.mac]
	if !ok {
		return nil, false
	}

	return &reference{
		ap:     refAP.IP,
		center: r.Center,
		radius: float64(r.Coverage),
		fspl:   float64(cand.txpwr - nbr.RSSIMean),
		ghz:    model.IEEE2GHz(cand.chnl),
	}, true
}

// uniqueAPs counts the distinct APs contributing to the pools.
func uniqueAPs(pools *poolSet) int {
	seen := make(map[netip.Addr]struct{})
	for _, pool := range pools.order() {
		for _, ref := range *pool {
			seen[ref.ap] = struct{}{}
		}
	}
	return len(seen)
}

// pickReference selects and removes the first reference that does not
// belong to an already-chosen AP and, when needCross is set, whose
// coverage circle overlaps each chosen reference's at a nonzero distance.
// Returns nil when every pool is exhausted.
func pickReference(pools *poolSet, chosen []*reference, needCross bool) *reference {
	for _, pool := range pools.order() {
		for i, ref := range *pool {
			if sameAPAsAny(ref, chosen) {
				continue
			}
			if needCross && !crossesAll(ref, chosen) {
				continue
			}
			*pool = append((*pool)[:i], (*pool)[i+1:]...)
			return ref
		}
	}
	return nil
}

// sameAPAsAny reports whether ref belongs to the AP of any chosen reference.
func sameAPAsAny(ref *reference, chosen []*reference) bool {
	for _, c := range chosen {
		if c != nil && ref.ap == c.ap {
			return true
		}
	}
	return false
}

// crossesAll reports whether ref's coverage circle overlaps every chosen
// reference's at a nonzero center distance.
func crossesAll(ref *reference, chosen []*reference) bool {
	for _, c := range chosen {
		if c == nil {
			continue
		}
		d := ref.center.DistanceTo(c.center)
		if d == 0 || d > ref.radius+c.radius {
			return false
		}
	}
	return true
}
