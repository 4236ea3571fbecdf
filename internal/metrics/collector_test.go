package fleetmetrics_test

import (
	"net/netip"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	fleetmetrics "github.com/cachalot1984/acspmon/internal/metrics"
	"github.com/cachalot1984/acspmon/internal/model"
)

// gather returns the metric family by name, or nil.
func gather(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func counterValue(mf *dto.MetricFamily) float64 {
	if mf == nil || len(mf.Metric) == 0 {
		return 0
	}
	return mf.Metric[0].GetCounter().GetValue()
}

func TestCollectorCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	store := model.NewStore()
	c := fleetmetrics.NewCollector(reg, store)

	c.ScanProbe()
	c.ScanProbe()
	c.NodeDiscovered()
	c.PollIteration()
	c.ParseError()
	c.SessionOpened()
	c.SessionLost()
	c.CLICommand()
	c.Sweep()
	c.Deferral()

	tests := []struct {
		name string
		want float64
	}{
		{"acspmon_scan_probes_total", 2},
		{"acspmon_scan_nodes_discovered_total", 1},
		{"acspmon_poll_iterations_total", 1},
		{"acspmon_poll_parse_errors_total", 1},
		{"acspmon_poll_sessions_opened_total", 1},
		{"acspmon_poll_sessions_lost_total", 1},
		{"acspmon_poll_cli_commands_total", 1},
		{"acspmon_position_sweeps_total", 1},
		{"acspmon_position_deferrals_total", 1},
	}
	for _, tt := range tests {
		if got := counterValue(gather(t, reg, tt.name)); got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestCollectorGauges(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	store := model.NewStore()
	c := fleetmetrics.NewCollector(reg, store)

	c.FleetNoiseFloor(-87)
	c.Placed(4)

	if mf := gather(t, reg, "acspmon_fleet_noise_floor_dbm"); mf.Metric[0].GetGauge().GetValue() != -87 {
		t.Errorf("noise floor gauge = %v, want -87", mf.Metric[0].GetGauge().GetValue())
	}
	if mf := gather(t, reg, "acspmon_position_placed"); mf.Metric[0].GetGauge().GetValue() != 4 {
		t.Errorf("placed gauge = %v, want 4", mf.Metric[0].GetGauge().GetValue())
	}
}

func TestCollectorAPLiveness(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	store := model.NewStore()
	c := fleetmetrics.NewCollector(reg, store)

	c.APActive("192.168.1.10", true)
	mf := gather(t, reg, "acspmon_fleet_ap_up")
	if len(mf.Metric) != 1 || mf.Metric[0].GetGauge().GetValue() != 1 {
		t.Fatalf("ap_up after activate = %+v", mf)
	}

	c.APActive("192.168.1.10", false)
	mf = gather(t, reg, "acspmon_fleet_ap_up")
	if mf.Metric[0].GetGauge().GetValue() != 0 {
		t.Errorf("ap_up after deactivate = %v, want 0", mf.Metric[0].GetGauge().GetValue())
	}

	// A forgotten host drops its series entirely.
	c.APForgotten("192.168.1.10")
	mf = gather(t, reg, "acspmon_fleet_ap_up")
	if mf != nil && len(mf.Metric) != 0 {
		t.Errorf("ap_up series survived APForgotten: %+v", mf)
	}
}

func TestCollectorFleetSizeGauges(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	store := model.NewStore()
	fleetmetrics.NewCollector(reg, store)

	ip := netip.MustParseAddr("192.168.1.10")
	store.MarkNode(ip)
	ap := model.NewAP(ip)
	ap.Radios[model.IfnameWifi0] = &model.Radio{Name: model.IfnameWifi0}
	ap.Radios[model.IfnameWifi1] = &model.Radio{Name: model.IfnameWifi1}
	store.AddAP(ap)

	checks := map[string]float64{
		"acspmon_fleet_aps":    1,
		"acspmon_fleet_nodes":  1,
		"acspmon_fleet_radios": 2,
	}
	for name, want := range checks {
		mf := gather(t, reg, name)
		if mf == nil || mf.Metric[0].GetGauge().GetValue() != want {
			t.Errorf("%s = %+v, want %v", name, mf, want)
		}
	}
}
