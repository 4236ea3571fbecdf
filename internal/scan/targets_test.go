package scan_test

import (
	"errors"
	"testing"

	"github.com/cachalot1984/acspmon/internal/scan"
)

func TestParseTargetsCIDR(t *testing.T) {
	t.Parallel()

	addrs, err := scan.ParseTargets("192.168.1.0/24")
	if err != nil {
		t.Fatalf("ParseTargets: %v", err)
	}
	if len(addrs) != 254 {
		t.Fatalf("got %d addresses, want 254 (network and broadcast skipped)", len(addrs))
	}
	if addrs[0].String() != "192.168.1.1" || addrs[253].String() != "192.168.1.254" {
		t.Errorf("range = %s .. %s, want 192.168.1.1 .. 192.168.1.254",
			addrs[0], addrs[253])
	}
}

func TestParseTargetsBareZeroIsSlash24(t *testing.T) {
	t.Parallel()

	addrs, err := scan.ParseTargets("10.0.5.0")
	if err != nil {
		t.Fatalf("ParseTargets: %v", err)
	}
	if len(addrs) != 254 {
		t.Fatalf("got %d addresses, want 254", len(addrs))
	}
	if addrs[0].String() != "10.0.5.1" {
		t.Errorf("first = %s, want 10.0.5.1", addrs[0])
	}
}

func TestParseTargetsRange(t *testing.T) {
	t.Parallel()

	addrs, err := scan.ParseTargets("192.168.1.10:5")
	if err != nil {
		t.Fatalf("ParseTargets: %v", err)
	}

	want := []string{"192.168.1.10", "192.168.1.11", "192.168.1.12", "192.168.1.13", "192.168.1.14"}
	if len(addrs) != len(want) {
		t.Fatalf("got %d addresses, want %d", len(addrs), len(want))
	}
	for i, w := range want {
		if addrs[i].String() != w {
			t.Errorf("addrs[%d] = %s, want %s", i, addrs[i], w)
		}
	}
}

func TestParseTargetsSingleHost(t *testing.T) {
	t.Parallel()

	addrs, err := scan.ParseTargets("192.168.1.77")
	if err != nil {
		t.Fatalf("ParseTargets: %v", err)
	}
	if len(addrs) != 1 || addrs[0].String() != "192.168.1.77" {
		t.Errorf("got %v, want [192.168.1.77]", addrs)
	}
}

func TestParseTargetsErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		spec    string
		wantErr error
	}{
		{"", scan.ErrEmptyTarget},
		{"   ", scan.ErrEmptyTarget},
		{"192.168.1.10:", scan.ErrBadRange},
		{"192.168.1.10:0", scan.ErrBadRange},
		{"192.168.1.10:x", scan.ErrBadRange},
	}

	for _, tt := range tests {
		_, err := scan.ParseTargets(tt.spec)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("ParseTargets(%q) error = %v, want %v", tt.spec, err, tt.wantErr)
		}
	}

	if _, err := scan.ParseTargets("not-an-address/24"); err == nil {
		t.Error("ParseTargets accepted a malformed prefix")
	}
}
