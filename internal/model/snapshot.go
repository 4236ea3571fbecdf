package model

import "time"

// -------------------------------------------------------------------------
// Snapshots — read-only views for the API and ctl
// -------------------------------------------------------------------------

// NeighborSnapshot is a copy of one neighbor-table entry.
type NeighborSnapshot struct {
	AP       string `json:"ap"`
	Ifname   string `json:"ifname"`
	MAC      string `json:"mac"`
	RSSIMean int    `json:"rssi"`
	StaCount int    `json:"sta_count"`
	CRCErr   int    `json:"crc_err"`
	TotalCU  int    `json:"total_cu"`
}

// RadioSnapshot is a copy of one radio's state at a point in time.
type RadioSnapshot struct {
	Name           string             `json:"name"`
	MAC            string             `json:"mac"`
	LinkState      string             `json:"link_state"`
	Mode           string             `json:"mode"`
	Phymode        string             `json:"phymode"`
	Band           int                `json:"band"`
	NoiseFloor     int                `json:"noise_floor"`
	HasNoiseFloor  bool               `json:"has_noise_floor"`
	AcspSupported  bool               `json:"acsp_supported"`
	ChannelState   ChannelState       `json:"channel_state"`
	DisabledReason string             `json:"disabled_reason,omitempty"`
	RunSince       time.Time          `json:"run_since,omitzero"`
	Channel        int                `json:"channel"`
	Width          int                `json:"width,omitempty"`
	PowerState     string             `json:"power_state"`
	TxPower        int                `json:"tx_power"`
	NbrScore       float64            `json:"neighbor_score"`
	Scored         bool               `json:"scored"`
	Coverage       int                `json:"coverage"`
	Center         Point              `json:"center"`
	Neighbors      []NeighborSnapshot `json:"neighbors,omitempty"`
}

// APSnapshot is a consistent copy of one AP and its radios. All fields are
// copied under the AP lock; no references to mutable state are held.
type APSnapshot struct {
	IP     string          `json:"ip"`
	Name   string          `json:"name"`
	MAC    string          `json:"mac"`
	Hive   string          `json:"hive"`
	Active bool            `json:"active"`
	Radios []RadioSnapshot `json:"radios"`
}

// Snapshot copies the AP's state under its lock. Radios are emitted wifi0
// first for stable output.
func (a *AP) Snapshot() APSnapshot {
	a.Lock()
	defer a.Unlock()

	snap := APSnapshot{
		IP:     a.IP.String(),
		Name:   a.Name,
		MAC:    a.MAC,
		Hive:   a.Hive,
		Active: a.Active,
	}
	for _, name := range []string{IfnameWifi0, IfnameWifi1} {
		r, ok := a.Radios[name]
		if !ok {
			continue
		}
		snap.Radios = append(snap.Radios, snapshotRadio(r))
	}
	return snap
}

// snapshotRadio copies one radio. The caller holds the AP lock.
func snapshotRadio(r *Radio) RadioSnapshot {
	rs := RadioSnapshot{
		Name:           r.Name,
		MAC:            r.MAC,
		LinkState:      r.LinkState,
		Mode:           r.Mode,
		Phymode:        r.Phymode,
		Band:           r.Band,
		NoiseFloor:     r.NfloorMean,
		HasNoiseFloor:  r.HasNfloor,
		AcspSupported:  r.Acsp.Supported,
		ChannelState:   r.Acsp.ChannelState,
		DisabledReason: r.Acsp.ChannelDisabledReason,
		RunSince:       r.Acsp.RunSince,
		Channel:        r.Acsp.Channel,
		Width:          r.Acsp.Width,
		PowerState:     r.Acsp.PowerState,
		TxPower:        r.Acsp.TxPower,
		NbrScore:       r.NbrScore,
		Scored:         r.Scored,
		Coverage:       r.Coverage,
		Center:         r.Center,
	}
	for _, n := range r.Acsp.ByDistance {
		rs.Neighbors = append(rs.Neighbors, NeighborSnapshot{
			AP:       n.AP.String(),
			Ifname:   n.Ifname,
			MAC:      n.MAC,
			RSSIMean: n.RSSIMean,
			StaCount: n.StaCount,
			CRCErr:   n.CRCErr,
			TotalCU:  n.TotalCU,
		})
	}
	return rs
}

// Snapshots returns a snapshot of every AP in discovery order. Each AP is
// copied under its own lock; no cross-AP ordering is implied.
func (s *Store) Snapshots() []APSnapshot {
	aps := s.APs()
	out := make([]APSnapshot, 0, len(aps))
	for _, ap := range aps {
		out = append(out, ap.Snapshot())
	}
	return out
}
