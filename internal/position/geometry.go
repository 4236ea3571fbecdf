package position

import (
	"math"

	"github.com/cachalot1984/acspmon/internal/model"
)

// Intersections returns the intersection points of two circles.
//
// Classification by center distance d:
//
//	d == 0                      — none (coincident centers; with equal radii
//	                              the circles overlap everywhere, which is
//	                              useless for trilateration)
//	d > r1+r2 or d < |r1-r2|    — none, unless compensate grows the smaller
//	                              radius until the circles are internally
//	                              tangent, yielding one point
//	d == r1+r2 or d == |r1-r2|  — one point
//	otherwise                   — two points
//
// With two points, the first is the one on the positive side of the
// c1->c2 axis. compensated reports whether the radius grow was applied.
func Intersections(c1 model.Point, r1 float64, c2 model.Point, r2 float64, compensate bool) (pts []model.Point, compensated bool) {
	d := c1.DistanceTo(c2)
	if d == 0 {
		return nil, false
	}

	if d < math.Abs(r1-r2) && compensate {
		if r1 < r2 {
			r1 += r2 - r1 - d
		} else {
			r2 += r1 - r2 - d
		}
		compensated = true
	}

	if d > r1+r2 || d < math.Abs(r1-r2) {
		return nil, compensated
	}

	// Foot of the radical axis along c1->c2, then the half-chord offset.
	a := (d*d + r1*r1 - r2*r2) / (2 * d)
	h2 := r1*r1 - a*a

	ux := (c2.X - c1.X) / d
	uy := (c2.Y - c1.Y) / d
	foot := model.Point{X: c1.X + a*ux, Y: c1.Y + a*uy}

	if h2 <= 0 {
		return []model.Point{foot}, compensated
	}

	h := math.Sqrt(h2)
	p1 := model.Point{X: foot.X - h*uy, Y: foot.Y + h*ux}
	p2 := model.Point{X: foot.X + h*uy, Y: foot.Y - h*ux}
	return []model.Point{p1, p2}, compensated
}
