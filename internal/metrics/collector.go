// Package fleetmetrics exposes the monitor's Prometheus metrics.
package fleetmetrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cachalot1984/acspmon/internal/model"
)

const (
	namespace = "acspmon"

	subsystemFleet    = "fleet"
	subsystemScan     = "scan"
	subsystemPoll     = "poll"
	subsystemPosition = "position"
)

// labelAP labels per-AP series with the AP address.
const labelAP = "ap"

// Collector holds all monitor metrics. One instance is shared by the
// discovery scanner, every poller, and the positioning engine.
type Collector struct {
	// APUp tracks per-AP session liveness (1 active, 0 inactive).
	APUp *prometheus.GaugeVec

	// NoiseFloor is the fleet-wide mean smoothed noise floor in dBm.
	NoiseFloor prometheus.Gauge

	// PlacedAPs is the number of APs placed by the last sweep.
	PlacedAPs prometheus.Gauge

	// Probes counts discovery connection probes.
	Probes prometheus.Counter

	// Discovered counts nodes promoted to candidate APs.
	Discovered prometheus.Counter

	// Iterations counts poll loop iterations across the fleet.
	Iterations prometheus.Counter

	// ParseErrors counts abandoned poll iterations due to unexpected
	// device output.
	ParseErrors prometheus.Counter

	// SessionsOpened counts successful shell session opens.
	SessionsOpened prometheus.Counter

	// SessionsLost counts sessions declared lost mid-command.
	SessionsLost prometheus.Counter

	// CLICommands counts operator CLI lines forwarded to APs.
	CLICommands prometheus.Counter

	// Sweeps counts positioning sweeps.
	Sweeps prometheus.Counter

	// Deferrals counts placement deferrals (insufficient references or
	// non-intersecting circles).
	Deferrals prometheus.Counter
}

// NewCollector creates a Collector with every metric registered against
// reg, plus scrape-time fleet size gauges computed from the store. A nil
// reg uses the default registerer.
func NewCollector(reg prometheus.Registerer, store *model.Store) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		APUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystemFleet, Name: "ap_up",
			Help: "Per-AP shell session liveness (1 active, 0 inactive).",
		}, []string{labelAP}),
		NoiseFloor: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystemFleet, Name: "noise_floor_dbm",
			Help: "Fleet-wide mean smoothed noise floor in dBm.",
		}),
		PlacedAPs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystemPosition, Name: "placed",
			Help: "APs placed by the most recent positioning sweep.",
		}),
		Probes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystemScan, Name: "probes_total",
			Help: "Discovery connection probes sent.",
		}),
		Discovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystemScan, Name: "nodes_discovered_total",
			Help: "Nodes promoted to candidate APs.",
		}),
		Iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystemPoll, Name: "iterations_total",
			Help: "Poll loop iterations across the fleet.",
		}),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystemPoll, Name: "parse_errors_total",
			Help: "Poll iterations abandoned due to unexpected device output.",
		}),
		SessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystemPoll, Name: "sessions_opened_total",
			Help: "Shell sessions opened.",
		}),
		SessionsLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystemPoll, Name: "sessions_lost_total",
			Help: "Shell sessions declared lost mid-command.",
		}),
		CLICommands: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystemPoll, Name: "cli_commands_total",
			Help: "Operator CLI lines forwarded to APs.",
		}),
		Sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystemPosition, Name: "sweeps_total",
			Help: "Positioning sweeps completed.",
		}),
		Deferrals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystemPosition, Name: "deferrals_total",
			Help: "Placement deferrals within sweeps.",
		}),
	}

	reg.MustRegister(
		c.APUp, c.NoiseFloor, c.PlacedAPs,
		c.Probes, c.Discovered,
		c.Iterations, c.ParseErrors, c.SessionsOpened, c.SessionsLost, c.CLICommands,
		c.Sweeps, c.Deferrals,
	)

	registerFleetGauges(reg, store)

	return c
}

// registerFleetGauges adds scrape-time gauges for the fleet size.
func registerFleetGauges(reg prometheus.Registerer, store *model.Store) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: subsystemFleet, Name: "aps",
		Help: "APs known to the monitor.",
	}, func() float64 { return float64(store.APCount()) }))

	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: subsystemFleet, Name: "nodes",
		Help: "Hosts currently tracked by discovery.",
	}, func() float64 { return float64(store.NodeCount()) }))

	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: subsystemFleet, Name: "radios",
		Help: "Radios across all known APs.",
	}, func() float64 {
		radios := 0
		for _, ap := range store.APs() {
			ap.Lock()
			radios += len(ap.Radios)
			ap.Unlock()
		}
		return float64(radios)
	}))
}

// -------------------------------------------------------------------------
// Scanner reporting
// -------------------------------------------------------------------------

// ScanProbe counts one discovery probe.
func (c *Collector) ScanProbe() { c.Probes.Inc() }

// NodeDiscovered counts one promoted responder.
func (c *Collector) NodeDiscovered() { c.Discovered.Inc() }

// -------------------------------------------------------------------------
// Poller reporting
// -------------------------------------------------------------------------

// PollIteration counts one poll loop iteration.
func (c *Collector) PollIteration() { c.Iterations.Inc() }

// ParseError counts one abandoned iteration.
func (c *Collector) ParseError() { c.ParseErrors.Inc() }

// SessionOpened counts one successful shell open.
func (c *Collector) SessionOpened() { c.SessionsOpened.Inc() }

// SessionLost counts one lost session.
func (c *Collector) SessionLost() { c.SessionsLost.Inc() }

// CLICommand counts one forwarded operator CLI line.
func (c *Collector) CLICommand() { c.CLICommands.Inc() }

// APActive records per-AP session liveness.
func (c *Collector) APActive(ip string, active bool) {
	v := 0.0
	if active {
		v = 1.0
	}
	c.APUp.WithLabelValues(ip).Set(v)
}

// APForgotten drops the per-AP series of a host removed from the known set.
func (c *Collector) APForgotten(ip string) {
	c.APUp.DeleteLabelValues(ip)
}

// -------------------------------------------------------------------------
// Positioning engine reporting
// -------------------------------------------------------------------------

// Sweep counts one positioning sweep.
func (c *Collector) Sweep() { c.Sweeps.Inc() }

// Deferral counts one placement deferral.
func (c *Collector) Deferral() { c.Deferrals.Inc() }

// Placed records how many APs the last sweep placed.
func (c *Collector) Placed(n int) { c.PlacedAPs.Set(float64(n)) }

// FleetNoiseFloor records the fleet mean noise floor.
func (c *Collector) FleetNoiseFloor(dbm int) { c.NoiseFloor.Set(float64(dbm)) }
