package model_test

import (
	"math"
	"testing"

	"github.com/cachalot1984/acspmon/internal/model"
)

func TestBandFromPhymode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		phymode string
		want    int
	}{
		{"11b/g", 2},
		{"11ng", 2},
		{"11n", 2},
		{"11a", 5},
		{"11na", 5},
		{"11ac", 5},
	}

	for _, tt := range tests {
		if got := model.BandFromPhymode(tt.phymode); got != tt.want {
			t.Errorf("BandFromPhymode(%q) = %d, want %d", tt.phymode, got, tt.want)
		}
	}
}

func TestIEEE2GHz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		chnl int
		want float64
	}{
		{0, 1.0}, // undetermined channel sentinel
		{1, 2.412},
		{6, 2.437},
		{11, 2.462},
		{14, 2.484},
		{15, 2.512},
		{36, 5.180},
		{165, 5.825},
	}

	for _, tt := range tests {
		if got := model.IEEE2GHz(tt.chnl); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("IEEE2GHz(%d) = %v, want %v", tt.chnl, got, tt.want)
		}
	}
}

func TestSupportsAcsp(t *testing.T) {
	t.Parallel()

	for _, mode := range []string{"access", "backhaul", "dual"} {
		if !model.SupportsAcsp(mode) {
			t.Errorf("SupportsAcsp(%q) = false, want true", mode)
		}
	}
	for _, mode := range []string{"", "sniffer", "monitor"} {
		if model.SupportsAcsp(mode) {
			t.Errorf("SupportsAcsp(%q) = true, want false", mode)
		}
	}
}

func TestPointDistance(t *testing.T) {
	t.Parallel()

	p := model.Point{X: 0, Y: 0}
	q := model.Point{X: 3, Y: 4}
	if d := p.DistanceTo(q); d != 5 {
		t.Errorf("DistanceTo = %v, want 5", d)
	}
}
