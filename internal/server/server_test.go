package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"

	"github.com/cachalot1984/acspmon/internal/model"
	"github.com/cachalot1984/acspmon/internal/server"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSender records injected CLI lines.
type fakeSender struct {
	lines []string
	err   error
}

func (f *fakeSender) SendCLI(_ context.Context, cli string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lines = append(f.lines, cli)
	return []string{"done"}, nil
}

// newTestServer builds a server over a one-AP store.
func newTestServer(t *testing.T) (*server.Server, *model.Store, *model.TunableStore, *model.AP) {
	t.Helper()

	store := model.NewStore()
	ap := model.NewAP(netip.MustParseAddr("192.168.1.10"))
	ap.Name = "AP230"
	ap.MAC = "0819:a600:1230"
	ap.Active = true
	ap.Radios[model.IfnameWifi0] = &model.Radio{
		Name: model.IfnameWifi0, MAC: "0819:a600:1234",
		Mode: model.ModeAccess, Phymode: "11ng",
		Acsp: model.AcspState{Supported: true, ChannelState: model.ChannelRun, Channel: 6, PowerState: "Enable", TxPower: 18},
	}
	ap.Radios[model.IfnameWifi1] = &model.Radio{
		Name: model.IfnameWifi1, MAC: "0819:a600:1238",
		Mode: model.ModeAccess, Phymode: "11ac",
		Acsp: model.AcspState{Supported: true, ChannelState: model.ChannelRun, Channel: 36, PowerState: "Enable", TxPower: 14},
	}
	store.AddAP(ap)

	tun := model.NewTunableStore(model.DefaultTunables())
	srv := server.New(store, tun, func() {}, testLogger())
	return srv, store, tun, ap
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestServerListAPs(t *testing.T) {
	t.Parallel()

	srv, _, _, _ := newTestServer(t)
	w := doRequest(t, srv.Handler(), http.MethodGet, "/v1/aps", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var aps []model.APSnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &aps); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(aps) != 1 || aps[0].IP != "192.168.1.10" || len(aps[0].Radios) != 2 {
		t.Errorf("aps = %+v", aps)
	}
}

func TestServerGetAPNotFound(t *testing.T) {
	t.Parallel()

	srv, _, _, _ := newTestServer(t)
	if w := doRequest(t, srv.Handler(), http.MethodGet, "/v1/aps/10.9.9.9", ""); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if w := doRequest(t, srv.Handler(), http.MethodGet, "/v1/aps/not-an-ip", ""); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestServerManualPlacementSharedCenter(t *testing.T) {
	t.Parallel()

	srv, _, _, ap := newTestServer(t)
	w := doRequest(t, srv.Handler(), http.MethodPost, "/v1/aps/192.168.1.10/position", `{"x": 250, "y": 125}`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}

	snap := ap.Snapshot()
	want := model.Point{X: 250, Y: 125}
	for _, r := range snap.Radios {
		if r.Center != want {
			t.Errorf("%s center = %v, want %v (both radios share one location)", r.Name, r.Center, want)
		}
	}
}

func TestServerCLIInjection(t *testing.T) {
	t.Parallel()

	srv, _, _, ap := newTestServer(t)

	// Without a live session the injection is rejected.
	w := doRequest(t, srv.Handler(), http.MethodPost, "/v1/aps/192.168.1.10/cli", `{"command": "reboot no-prompt"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("status without session = %d, want 409", w.Code)
	}

	sender := &fakeSender{}
	ap.SetSender(sender)

	w = doRequest(t, srv.Handler(), http.MethodPost, "/v1/aps/192.168.1.10/cli", `{"command": "reboot no-prompt"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body)
	}
	if len(sender.lines) != 1 || sender.lines[0] != "reboot no-prompt" {
		t.Errorf("forwarded = %v", sender.lines)
	}
}

func TestServerBroadcastCLI(t *testing.T) {
	t.Parallel()

	srv, store, _, ap := newTestServer(t)
	sender := &fakeSender{}
	ap.SetSender(sender)

	other := model.NewAP(netip.MustParseAddr("192.168.1.20"))
	other.SetSender(&fakeSender{err: errors.New("session lost")})
	store.AddAP(other)

	w := doRequest(t, srv.Handler(), http.MethodPost, "/v1/cli", `{"command": "show acsp"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var results []struct {
		AP string `json:"ap"`
		OK bool   `json:"ok"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &results); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if !results[0].OK || results[1].OK {
		t.Errorf("per-AP outcomes = %+v, want first ok, second failed", results)
	}
}

func TestServerTunablesPartialUpdate(t *testing.T) {
	t.Parallel()

	srv, _, tun, _ := newTestServer(t)

	w := doRequest(t, srv.Handler(), http.MethodPut, "/v1/tunables", `{"nfloor_margin": 40}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}

	got := tun.Load()
	if got.NfloorMargin != 40 {
		t.Errorf("NfloorMargin = %d, want 40", got.NfloorMargin)
	}
	// Untouched fields keep their values.
	if got.SmoothWindow != 3 || got.MetersPerDot != 0.1 || got.CoordMethod != model.CoordAuto {
		t.Errorf("partial update clobbered other tunables: %+v", got)
	}
}

func TestServerTunablesRejectsInvalid(t *testing.T) {
	t.Parallel()

	srv, _, tun, _ := newTestServer(t)

	for _, body := range []string{
		`{"smooth_window": 0}`,
		`{"meters_per_dot": -1}`,
		`{"coord_method": "teleport"}`,
		`{"radio_displayed": "2"}`,
	} {
		w := doRequest(t, srv.Handler(), http.MethodPut, "/v1/tunables", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, w.Code)
		}
	}

	if got := tun.Load(); got.SmoothWindow != 3 {
		t.Errorf("rejected update still applied: %+v", got)
	}
}

func TestServerRenderFreeze(t *testing.T) {
	t.Parallel()

	srv, _, tun, ap := newTestServer(t)

	var first struct {
		Frozen  bool                 `json:"frozen"`
		Circles []model.RenderCircle `json:"circles"`
	}
	w := doRequest(t, srv.Handler(), http.MethodGet, "/v1/render", "")
	if err := json.Unmarshal(w.Body.Bytes(), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.Frozen || len(first.Circles) != 2 {
		t.Fatalf("first render = frozen %v, %d circles", first.Frozen, len(first.Circles))
	}

	// Freeze, then move the AP: the served render must not change.
	tun.Update(func(t *model.Tunables) { t.Freeze = true })
	ap.Lock()
	ap.SetCenter(model.Point{X: 999, Y: 999})
	ap.Unlock()

	var frozen struct {
		Frozen  bool                 `json:"frozen"`
		Circles []model.RenderCircle `json:"circles"`
	}
	w = doRequest(t, srv.Handler(), http.MethodGet, "/v1/render", "")
	if err := json.Unmarshal(w.Body.Bytes(), &frozen); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !frozen.Frozen {
		t.Error("frozen flag not reported")
	}
	for _, c := range frozen.Circles {
		if c.Center.X == 999 {
			t.Error("frozen render picked up new coordinates")
		}
	}
}

func TestServerQuit(t *testing.T) {
	t.Parallel()

	store := model.NewStore()
	tun := model.NewTunableStore(model.DefaultTunables())
	quit := make(chan struct{})
	srv := server.New(store, tun, func() { close(quit) }, testLogger())

	w := doRequest(t, srv.Handler(), http.MethodPost, "/v1/quit", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}

	<-quit // the callback must fire
}
