package model

import (
	"net/netip"
	"time"
)

// -------------------------------------------------------------------------
// ACSP Channel State
// -------------------------------------------------------------------------

// ChannelState is the per-radio state of the automatic channel selection
// protocol, as reported by the device in the `show acsp` table. The values
// are the literal state tokens printed by the AP (after whitespace
// normalization of the multi-word tokens).
type ChannelState string

const (
	// ChannelDisable means channel selection is administratively or
	// operationally disabled; a disabled reason usually accompanies it.
	ChannelDisable ChannelState = "Disable"

	// ChannelInit is the initial state before scanning starts.
	ChannelInit ChannelState = "Init"

	// ChannelScanning means the radio is sweeping candidate channels.
	ChannelScanning ChannelState = "Scanning"

	// ChannelReq means the radio has requested a channel from its hive.
	ChannelReq ChannelState = "Channel_Req"

	// ChannelDFSCAC means the radio is performing the DFS channel
	// availability check before using a radar-shared channel.
	ChannelDFSCAC ChannelState = "DFS_CAC"

	// ChannelListening means the radio is listening for hive coordination.
	ChannelListening ChannelState = "Listening"

	// ChannelRun means channel selection converged and the radio is
	// operating (printed as "Enable" by the device).
	ChannelRun ChannelState = "Enable"

	// ChannelSchedWaiting means selection is deferred to a schedule.
	ChannelSchedWaiting ChannelState = "Sched_Waiting"
)

// String returns the device token for the state.
func (s ChannelState) String() string {
	return string(s)
}

// Running reports whether the state is the converged running state.
func (s ChannelState) Running() bool {
	return s == ChannelRun
}

// RunTimestampFormat is the wall-clock layout recorded when a radio's
// channel state transitions into ChannelRun.
const RunTimestampFormat = "01-02_15:04:05"

// -------------------------------------------------------------------------
// ACSP State — per-radio channel selection status
// -------------------------------------------------------------------------

// AcspState holds everything the poller extracts from `show acsp` and
// `show acsp neighbor` for one radio.
type AcspState struct {
	// Supported reports whether the radio's mode participates in channel
	// selection (access, backhaul, or dual).
	Supported bool

	// ChannelState is the current selection state.
	ChannelState ChannelState

	// ChannelDisabledReason is the parenthesized reason attached to a
	// Disable state token, e.g. "(Link-down)". Empty when absent.
	ChannelDisabledReason string

	// RunSince is the wall-clock time of the most recent transition into
	// ChannelRun. Zero if the radio has never been observed entering it.
	RunSince time.Time

	// Channel is the operating IEEE channel number.
	Channel int

	// Width is the channel width in MHz; zero when the device table has
	// no width column.
	Width int

	// PowerState is the power selection state token.
	PowerState string

	// PowerDisabledReason is the parenthesized reason attached to the
	// power state token. Empty when absent.
	PowerDisabledReason string

	// TxPower is the effective transmit power in dBm.
	TxPower int

	// Neighbors holds every neighbor radio heard in the most recent poll,
	// keyed by the neighbor radio's hardware address.
	Neighbors map[string]*Neighbor

	// ByDistance lists the same neighbors ordered near-to-far, using
	// the neighbor's txpwr minus its smoothed RSSI as the path loss proxy.
	ByDistance []*Neighbor
}

// -------------------------------------------------------------------------
// Neighbor — one entry in a radio's ACSP neighbor table
// -------------------------------------------------------------------------

// Neighbor aggregates the neighbor-table rows of a single remote radio as
// heard by one local radio. The remote radio is identified by AP address
// and interface name rather than by pointer; callers resolve the live
// record through the Store.
type Neighbor struct {
	// AP is the address of the AP owning the neighbor radio.
	AP netip.Addr

	// Ifname is the neighbor radio's interface name (wifi0 or wifi1).
	Ifname string

	// MAC is the neighbor radio's hardware address.
	MAC string

	// RSSI is the smoothing window of per-poll mean RSSI samples.
	RSSI Window

	// RSSIMean is the smoothed RSSI in dBm.
	RSSIMean int

	// StaCount is the total stations across the neighbor's virtual APs.
	StaCount int

	// CRCErr is the mean CRC error rate across the neighbor's rows.
	CRCErr int

	// TotalCU is the summed channel utilization across the neighbor's rows.
	TotalCU int
}
