package model_test

import (
	"testing"

	"github.com/cachalot1984/acspmon/internal/model"
)

func TestWindowBounded(t *testing.T) {
	t.Parallel()

	var w model.Window
	for i := range 10 {
		w.Push(i, 3)
		if w.Len() > 3 {
			t.Fatalf("window length %d after %d pushes, want <= 3", w.Len(), i+1)
		}
	}

	// Oldest samples evicted first: 7, 8, 9 remain.
	if got := w.Samples(); len(got) != 3 || got[0] != 7 || got[2] != 9 {
		t.Errorf("Samples() = %v, want [7 8 9]", got)
	}
}

func TestWindowMean(t *testing.T) {
	t.Parallel()

	var w model.Window

	if _, ok := w.Mean(); ok {
		t.Error("empty window reported a valid mean")
	}

	for _, v := range []int{-95, -93, -91} {
		w.Push(v, 3)
	}
	mean, ok := w.Mean()
	if !ok || mean != -93 {
		t.Errorf("Mean() = %d, %v, want -93, true", mean, ok)
	}
}

func TestWindowMeanIsIntegerMean(t *testing.T) {
	t.Parallel()

	var w model.Window
	w.Push(-90, 3)
	w.Push(-95, 3)

	// (-90 + -95) / 2 truncates toward zero.
	mean, _ := w.Mean()
	if mean != -92 {
		t.Errorf("Mean() = %d, want -92", mean)
	}
}

func TestWindowShrinksWhenCapacityDrops(t *testing.T) {
	t.Parallel()

	var w model.Window
	for _, v := range []int{1, 2, 3, 4, 5} {
		w.Push(v, 5)
	}

	// A smaller capacity on the next push trims the excess.
	w.Push(6, 2)
	if got := w.Samples(); len(got) != 2 || got[0] != 5 || got[1] != 6 {
		t.Errorf("Samples() = %v, want [5 6]", got)
	}
}
