// Package server exposes the monitor's state to the rendering/UI
// collaborator over a JSON HTTP API: read-only fleet snapshots and render
// views, manual coordinate overrides, CLI injection, and live tunables.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/cachalot1984/acspmon/internal/model"
)

// cliTimeout bounds one injected CLI transaction.
const cliTimeout = 30 * time.Second

// errNoSession is returned when CLI injection hits an AP without a live
// shell session.
var errNoSession = errors.New("no live session for AP")

// Server handles the UI collaborator API.
type Server struct {
	store  *model.Store
	tun    *model.TunableStore
	quit   func()
	logger *slog.Logger

	renderMu   sync.Mutex
	lastRender []model.RenderCircle
}

// New returns the API server. quit is invoked on POST /v1/quit and should
// trigger daemon shutdown with the operator-quit exit code.
func New(store *model.Store, tun *model.TunableStore, quit func(), logger *slog.Logger) *Server {
	return &Server{
		store:  store,
		tun:    tun,
		quit:   quit,
		logger: logger.With(slog.String("component", "api")),
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/aps", s.handleListAPs)
	mux.HandleFunc("GET /v1/aps/{ip}", s.handleGetAP)
	mux.HandleFunc("POST /v1/aps/{ip}/cli", s.handleAPCLI)
	mux.HandleFunc("POST /v1/aps/{ip}/position", s.handlePosition)
	mux.HandleFunc("POST /v1/cli", s.handleBroadcastCLI)
	mux.HandleFunc("GET /v1/tunables", s.handleGetTunables)
	mux.HandleFunc("PUT /v1/tunables", s.handlePutTunables)
	mux.HandleFunc("GET /v1/render", s.handleRender)
	mux.HandleFunc("POST /v1/quit", s.handleQuit)
	return mux
}

// -------------------------------------------------------------------------
// Fleet snapshots
// -------------------------------------------------------------------------

func (s *Server) handleListAPs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Snapshots())
}

func (s *Server) handleGetAP(w http.ResponseWriter, r *http.Request) {
	ap, ok := s.lookupAP(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ap.Snapshot())
}

// -------------------------------------------------------------------------
// CLI injection
// -------------------------------------------------------------------------

// cliRequest is the body of the CLI injection endpoints.
type cliRequest struct {
	Command string   `json:"command"`
	Targets []string `json:"targets,omitempty"`
	Delay   string   `json:"delay,omitempty"`
}

// cliResult is one AP's outcome of a CLI injection.
type cliResult struct {
	AP     string   `json:"ap"`
	OK     bool     `json:"ok"`
	Output []string `json:"output,omitempty"`
	Error  string   `json:"error,omitempty"`
}

func (s *Server) handleAPCLI(w http.ResponseWriter, r *http.Request) {
	ap, ok := s.lookupAP(w, r)
	if !ok {
		return
	}

	var req cliRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.Command == "" {
		httpError(w, http.StatusBadRequest, "command must not be empty")
		return
	}

	res := s.sendCLI(r.Context(), ap, req.Command)
	status := http.StatusOK
	if !res.OK {
		status = http.StatusConflict
	}
	writeJSON(w, status, res)
}

func (s *Server) handleBroadcastCLI(w http.ResponseWriter, r *http.Request) {
	var req cliRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.Command == "" {
		httpError(w, http.StatusBadRequest, "command must not be empty")
		return
	}

	var delay time.Duration
	if req.Delay != "" {
		d, err := time.ParseDuration(req.Delay)
		if err != nil {
			httpError(w, http.StatusBadRequest, "malformed delay: "+err.Error())
			return
		}
		delay = d
	}

	targets, err := s.resolveTargets(req.Targets)
	if err != nil {
		httpError(w, http.StatusNotFound, err.Error())
		return
	}

	results := make([]cliResult, 0, len(targets))
	for i, ap := range targets {
		if i > 0 && delay > 0 {
			select {
			case <-r.Context().Done():
				httpError(w, http.StatusRequestTimeout, "cancelled")
				return
			case <-time.After(delay):
			}
		}
		results = append(results, s.sendCLI(r.Context(), ap, req.Command))
	}
	writeJSON(w, http.StatusOK, results)
}

// sendCLI forwards one CLI line to an AP through its registered sender.
func (s *Server) sendCLI(ctx context.Context, ap *model.AP, cli string) cliResult {
	res := cliResult{AP: ap.IP.String()}

	sender := ap.Sender()
	if sender == nil {
		res.Error = errNoSession.Error()
		return res
	}

	cliCtx, cancel := context.WithTimeout(ctx, cliTimeout)
	defer cancel()

	out, err := sender.SendCLI(cliCtx, cli)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.OK = true
	res.Output = out
	return res
}

// resolveTargets maps target addresses to AP records; an empty list means
// the whole fleet in discovery order.
func (s *Server) resolveTargets(targets []string) ([]*model.AP, error) {
	if len(targets) == 0 {
		return s.store.APs(), nil
	}

	out := make([]*model.AP, 0, len(targets))
	for _, t := range targets {
		ip, err := netip.ParseAddr(t)
		if err != nil {
			return nil, errors.New("malformed target address " + t)
		}
		ap, ok := s.store.AP(ip)
		if !ok {
			return nil, errors.New("unknown AP " + t)
		}
		out = append(out, ap)
	}
	return out, nil
}

// -------------------------------------------------------------------------
// Manual placement
// -------------------------------------------------------------------------

// positionRequest is the body of the coordinate override endpoint.
type positionRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	ap, ok := s.lookupAP(w, r)
	if !ok {
		return
	}

	var req positionRequest
	if !readJSON(w, r, &req) {
		return
	}

	ap.Lock()
	ap.SetCenter(model.Point{X: req.X, Y: req.Y})
	ap.Manual = true
	ap.Unlock()

	s.logger.Info("AP manually placed",
		slog.String("ip", ap.IP.String()),
		slog.Float64("x", req.X),
		slog.Float64("y", req.Y),
	)
	w.WriteHeader(http.StatusNoContent)
}

// -------------------------------------------------------------------------
// Tunables
// -------------------------------------------------------------------------

func (s *Server) handleGetTunables(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.tun.Load())
}

// handlePutTunables applies a partial tunables update: absent fields keep
// their current values. Changes take effect at the next poll iteration or
// positioning sweep.
func (s *Server) handlePutTunables(w http.ResponseWriter, r *http.Request) {
	var patch map[string]json.RawMessage
	if !readJSON(w, r, &patch) {
		return
	}

	// Round-trip the current snapshot through JSON, overlay the patch,
	// and decode back so partial updates reuse the struct tags.
	cur := s.tun.Load()
	buf, err := json.Marshal(cur)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(buf, &merged); err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for k, v := range patch {
		merged[k] = v
	}
	buf, err = json.Marshal(merged)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	next := cur
	if err := json.Unmarshal(buf, &next); err != nil {
		httpError(w, http.StatusBadRequest, "malformed tunables: "+err.Error())
		return
	}
	if err := validateTunables(next); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.tun.Store(next)
	s.logger.Info("tunables updated")
	writeJSON(w, http.StatusOK, next)
}

// validateTunables rejects updates that would break the derivations.
func validateTunables(t model.Tunables) error {
	if t.SmoothWindow < 1 {
		return errors.New("smooth_window must be >= 1")
	}
	if t.MetersPerDot <= 0 {
		return errors.New("meters_per_dot must be > 0")
	}
	switch t.CoordMethod {
	case model.CoordAuto, model.CoordManual, model.CoordRandom:
	default:
		return errors.New("coord_method must be auto, manual, or random")
	}
	switch t.RadioDisplayed {
	case model.DisplayWifi0, model.DisplayWifi1, model.DisplayAll:
	default:
		return errors.New(`radio_displayed must be "0", "1", or "all"`)
	}
	return nil
}

// -------------------------------------------------------------------------
// Render views
// -------------------------------------------------------------------------

// renderResponse wraps the draw-ordered circles with the freeze flag.
type renderResponse struct {
	Frozen  bool                 `json:"frozen"`
	Circles []model.RenderCircle `json:"circles"`
}

// handleRender returns the current render views. While the canvas is
// frozen the last unfrozen views are served unchanged.
func (s *Server) handleRender(w http.ResponseWriter, _ *http.Request) {
	tun := s.tun.Load()

	s.renderMu.Lock()
	if !tun.Freeze {
		s.lastRender = model.RenderViews(s.store.Snapshots(), tun)
	}
	resp := renderResponse{Frozen: tun.Freeze, Circles: s.lastRender}
	s.renderMu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

// -------------------------------------------------------------------------
// Quit
// -------------------------------------------------------------------------

func (s *Server) handleQuit(w http.ResponseWriter, _ *http.Request) {
	s.logger.Info("operator requested quit")
	w.WriteHeader(http.StatusNoContent)
	go s.quit()
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

// lookupAP resolves the {ip} path segment to an AP, writing the HTTP error
// itself on failure.
func (s *Server) lookupAP(w http.ResponseWriter, r *http.Request) (*model.AP, bool) {
	ip, err := netip.ParseAddr(r.PathValue("ip"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "malformed AP address")
		return nil, false
	}
	ap, ok := s.store.AP(ip)
	if !ok {
		httpError(w, http.StatusNotFound, "unknown AP")
		return nil, false
	}
	return ap, true
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
