package position

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/netip"
	"sort"
	"time"

	"github.com/cachalot1984/acspmon/internal/model"
)

// DefaultInterval is the pause between positioning sweeps.
const DefaultInterval = 3 * time.Second

// maxReferences is the number of reference radios used once enough APs
// are placed (three-point locating).
const maxReferences = 3

// randomMargin keeps random placements away from the canvas border.
const randomMargin = 50

// defaultRefTxPower is assumed for a reference radio that has not reported
// its transmit power yet.
const defaultRefTxPower = 20

// Metrics is the subset of the fleet collector the engine reports to.
type Metrics interface {
	Sweep()
	Deferral()
	Placed(n int)
	FleetNoiseFloor(dbm int)
}

// Engine runs the periodic positioning sweep: it refreshes the fleet noise
// floor, then solves each candidate AP's canvas coordinates from the
// FSPL-derived distances to already-placed reference radios.
type Engine struct {
	store    *model.Store
	tun      *model.TunableStore
	metrics  Metrics
	interval time.Duration
	rng      *rand.Rand
	logger   *slog.Logger
}

// NewEngine returns an Engine sweeping every interval (DefaultInterval
// when zero).
func NewEngine(store *model.Store, tun *model.TunableStore, metrics Metrics, interval time.Duration, logger *slog.Logger) *Engine {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Engine{
		store:    store,
		tun:      tun,
		metrics:  metrics,
		interval: interval,
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		logger:   logger.With(slog.String("component", "position")),
	}
}

// Run sweeps until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.SweepOnce()
		}
	}
}

// SweepOnce performs one full sweep: fleet noise floor, then coordinates.
func (e *Engine) SweepOnce() {
	e.metrics.Sweep()
	e.metrics.FleetNoiseFloor(e.store.RecomputeNoiseFloor())

	tun := e.tun.Load()
	if tun.CoordMethod == model.CoordManual {
		return
	}

	placed := e.solve(tun)
	if placed > 0 {
		e.metrics.Placed(placed)
	}
}

// -------------------------------------------------------------------------
// Candidate traversal
// -------------------------------------------------------------------------

// solve assigns coordinates to every placeable candidate and returns how
// many APs ended up placed.
func (e *Engine) solve(tun model.Tunables) int {
	queue := e.candidates(tun)

	var placed []*model.AP
	placedSet := make(map[netip.Addr]bool)
	deferred := make(map[netip.Addr]bool)

	// The queue grows as candidates are deferred; each AP is re-appended
	// at most once per sweep.
	for qi := 0; qi < len(queue); qi++ {
		ap := queue[qi]
		if placedSet[ap.IP] {
			continue
		}

		if tun.CoordMethod == model.CoordRandom {
			e.placeRandom(ap, tun)
			continue
		}

		switch e.placeAuto(ap, placed, placedSet, tun) {
		case placeOK:
			placed = append(placed, ap)
			placedSet[ap.IP] = true
		case placeDefer:
			e.metrics.Deferral()
			if !deferred[ap.IP] {
				deferred[ap.IP] = true
				queue = append(queue, ap)
			}
		case placeSkip:
		}
	}
	return len(placed)
}

// candidates lists the APs whose primary radio has a computed neighbor
// score, in discovery order or by descending score.
func (e *Engine) candidates(tun model.Tunables) []*model.AP {
	var out []*model.AP
	score := make(map[netip.Addr]float64)

	for _, ap := range e.store.APs() {
		ap.Lock()
		r0 := ap.Primary()
		if r0 != nil && r0.Scored {
			out = append(out, ap)
			score[ap.IP] = r0.NbrScore
		}
		ap.Unlock()
	}

	if tun.NbrScoreOrder {
		sort.SliceStable(out, func(i, j int) bool {
			return score[out[i].IP] > score[out[j].IP]
		})
	}
	return out
}

// placeRandom assigns a uniform-random center inside the canvas margin.
func (e *Engine) placeRandom(ap *model.AP, tun model.Tunables) {
	w, h := tun.CanvasWidth, tun.CanvasHeight
	c := model.Point{
		X: float64(randomMargin + e.rng.IntN(max(w-2*randomMargin, 1))),
		Y: float64(randomMargin + e.rng.IntN(max(h-2*randomMargin, 1))),
	}
	ap.Lock()
	ap.SetCenter(c)
	ap.Unlock()
}

// placeResult is the outcome of one auto-placement attempt.
type placeResult int

const (
	placeOK placeResult = iota
	placeDefer
	placeSkip
)

// placeAuto runs the trilateration rules for one candidate.
func (e *Engine) placeAuto(ap *model.AP, placed []*model.AP, placedSet map[netip.Addr]bool, tun model.Tunables) placeResult {
	cand, ok := e.candidateInfo(ap)
	if !ok {
		return placeSkip
	}

	req := len(placed)
	if req > maxReferences {
		req = maxReferences
	}

	// The first AP anchors the canvas center.
	if req == 0 {
		e.place(ap, model.Point{X: float64(tun.CanvasWidth) / 2, Y: float64(tun.CanvasHeight) / 2})
		return placeOK
	}

	pools := e.buildPools(cand, placed, placedSet)
	if uniqueAPs(pools) < req {
		e.logger.Debug("placement deferred, not enough reference neighbors",
			slog.String("ip", ap.IP.String()),
			slog.Int("required", req),
		)
		return placeDefer
	}

	ref1 := pickReference(pools, nil, false)
	if ref1 == nil {
		return placeDefer
	}
	d1 := float64(DistanceDots(ref1.fspl, ref1.ghz, tun.MetersPerDot))

	// The second AP goes straight right of its reference.
	if req == 1 {
		e.place(ap, model.Point{X: ref1.center.X + d1, Y: ref1.center.Y})
		return placeOK
	}

	ref2 := pickReference(pools, []*reference{ref1}, false)
	if ref2 == nil {
		return placeDefer
	}
	d2 := float64(DistanceDots(ref2.fspl, ref2.ghz, tun.MetersPerDot))

	pts, _ := Intersections(ref1.center, d1, ref2.center, d2, false)
	if len(pts) == 0 {
		e.logger.Debug("placement deferred, reference circles do not meet",
			slog.String("ip", ap.IP.String()),
		)
		return placeDefer
	}

	// The third AP takes the first of the two cross points.
	if req == 2 {
		e.place(ap, pts[0])
		return placeOK
	}

	ref3 := pickReference(pools, []*reference{ref1, ref2}, false)
	if ref3 == nil {
		return placeDefer
	}
	d3 := float64(DistanceDots(ref3.fspl, ref3.ghz, tun.MetersPerDot))

	e.place(ap, chooseCrossPoint(pts, ref3.center, d3))
	return placeOK
}

// chooseCrossPoint disambiguates the two-circle cross points with a third
// reference: keep the point whose distance to it best matches the FSPL
// estimate d3. With a single point there is nothing to choose.
func chooseCrossPoint(pts []model.Point, ref3 model.Point, d3 float64) model.Point {
	best := pts[0]
	if len(pts) == 2 {
		if math.Abs(d3-pts[1].DistanceTo(ref3)) < math.Abs(d3-pts[0].DistanceTo(ref3)) {
			best = pts[1]
		}
	}
	return best
}

// place writes the center to both radios of the AP.
func (e *Engine) place(ap *model.AP, c model.Point) {
	ap.Lock()
	ap.SetCenter(c)
	ap.Unlock()

	e.logger.Debug("AP placed",
		slog.String("ip", ap.IP.String()),
		slog.Float64("x", c.X),
		slog.Float64("y", c.Y),
	)
}
