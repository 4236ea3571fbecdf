package position

import (
	"math"
	"testing"

	"github.com/cachalot1984/acspmon/internal/model"
)

func pt(x, y float64) model.Point { return model.Point{X: x, Y: y} }

func almostEqual(a, b model.Point) bool {
	return math.Abs(a.X-b.X) < 1e-6 && math.Abs(a.Y-b.Y) < 1e-6
}

func TestIntersectionsTwoPoints(t *testing.T) {
	t.Parallel()

	pts, compensated := Intersections(pt(0, 0), 60, pt(100, 0), 60, false)
	if compensated {
		t.Error("unexpected compensation")
	}
	if len(pts) != 2 {
		t.Fatalf("got %d points, want 2", len(pts))
	}

	wantY := math.Sqrt(60*60 - 50*50) // ~33.166
	if !almostEqual(pts[0], pt(50, wantY)) {
		t.Errorf("first point = %v, want (50, %.3f)", pts[0], wantY)
	}
	if !almostEqual(pts[1], pt(50, -wantY)) {
		t.Errorf("second point = %v, want (50, %.3f)", pts[1], -wantY)
	}
}

func TestIntersectionsTangent(t *testing.T) {
	t.Parallel()

	// Externally tangent: one point between the centers.
	pts, _ := Intersections(pt(0, 0), 40, pt(100, 0), 60, false)
	if len(pts) != 1 || !almostEqual(pts[0], pt(40, 0)) {
		t.Errorf("external tangent = %v, want [(40, 0)]", pts)
	}

	// Internally tangent: d == |r1 - r2|.
	pts, _ = Intersections(pt(0, 0), 30, pt(20, 0), 50, false)
	if len(pts) != 1 || !almostEqual(pts[0], pt(-30, 0)) {
		t.Errorf("internal tangent = %v, want [(-30, 0)]", pts)
	}
}

func TestIntersectionsNone(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		c1     model.Point
		r1     float64
		c2     model.Point
		r2     float64
	}{
		{"separate", pt(0, 0), 10, pt(100, 0), 10},
		{"contained", pt(0, 0), 1, pt(3, 0), 10},
		{"coincident equal", pt(5, 5), 7, pt(5, 5), 7},
		{"coincident unequal", pt(5, 5), 7, pt(5, 5), 3},
	}

	for _, tt := range tests {
		if pts, _ := Intersections(tt.c1, tt.r1, tt.c2, tt.r2, false); pts != nil {
			t.Errorf("%s: got %v, want none", tt.name, pts)
		}
	}
}

func TestIntersectionsCompensate(t *testing.T) {
	t.Parallel()

	// Contained circles: compensation grows the smaller radius until the
	// circles are internally tangent, yielding exactly one point on the
	// line through the centers.
	pts, compensated := Intersections(pt(0, 0), 1, pt(3, 0), 10, true)
	if !compensated {
		t.Fatal("compensation not applied")
	}
	if len(pts) != 1 || !almostEqual(pts[0], pt(-7, 0)) {
		t.Errorf("compensated = %v, want [(-7, 0)]", pts)
	}

	// Without compensation the same pair has no intersection.
	if pts, _ := Intersections(pt(0, 0), 1, pt(3, 0), 10, false); pts != nil {
		t.Errorf("uncompensated = %v, want none", pts)
	}

	// Compensation never applies to coincident centers.
	if pts, comp := Intersections(pt(0, 0), 1, pt(0, 0), 10, true); pts != nil || comp {
		t.Errorf("coincident compensated = %v (%v), want none", pts, comp)
	}
}

func TestChooseCrossPoint(t *testing.T) {
	t.Parallel()

	// Placed references at (0,0) and (100,0) with d1 = d2 = 60 cross at
	// (50, +/-33.17). A third reference at (50, 200) with d3 = 170 is
	// ~167 dots from the upper point and ~233 from the lower one.
	pts, _ := Intersections(pt(0, 0), 60, pt(100, 0), 60, false)
	if len(pts) != 2 {
		t.Fatalf("got %d points, want 2", len(pts))
	}

	got := chooseCrossPoint(pts, pt(50, 200), 170)
	if got.Y < 0 {
		t.Errorf("chose %v, want the point nearer the d3 estimate (positive y)", got)
	}

	// With the estimate matching the far point instead, the choice flips.
	got = chooseCrossPoint(pts, pt(50, 200), 233)
	if got.Y > 0 {
		t.Errorf("chose %v, want the far point (negative y)", got)
	}

	// A single point needs no disambiguation.
	single := []model.Point{pt(42, 7)}
	if got := chooseCrossPoint(single, pt(0, 0), 10); got != single[0] {
		t.Errorf("single point choice = %v, want %v", got, single[0])
	}
}
