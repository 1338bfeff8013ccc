package geometry

import (
	"errors"
	"math"
	"testing"
)

func TestOpennessRatioOpenEye(t *testing.T) {
	// Width 4, both lid gaps 2: ratio = (2+2)/(2*4) = 0.5.
	eye := EyeContour{
		{0, 0},  // outer corner
		{1, 1},  // upper lid
		{3, 1},  // upper lid
		{4, 0},  // inner corner
		{3, -1}, // lower lid
		{1, -1}, // lower lid
	}

	ratio, err := OpennessRatio(eye)
	if err != nil {
		t.Fatalf("openness ratio: %v", err)
	}
	if math.Abs(ratio-0.5) > 1e-9 {
		t.Fatalf("ratio = %v, want 0.5", ratio)
	}
}

func TestOpennessRatioClosedEye(t *testing.T) {
	// Lids touching: vertical distances are zero.
	eye := EyeContour{
		{0, 0},
		{1, 0},
		{3, 0},
		{4, 0},
		{3, 0},
		{1, 0},
	}

	ratio, err := OpennessRatio(eye)
	if err != nil {
		t.Fatalf("openness ratio: %v", err)
	}
	if ratio != 0 {
		t.Fatalf("ratio = %v, want 0", ratio)
	}
}

func TestOpennessRatioDegenerate(t *testing.T) {
	var eye EyeContour // all points coincide, width is zero
	_, err := OpennessRatio(eye)
	if !errors.Is(err, ErrDegenerateGeometry) {
		t.Fatalf("err = %v, want ErrDegenerateGeometry", err)
	}
}

func TestAverageOpenness(t *testing.T) {
	open := EyeContour{{0, 0}, {1, 1}, {3, 1}, {4, 0}, {3, -1}, {1, -1}}
	closed := EyeContour{{0, 0}, {1, 0}, {3, 0}, {4, 0}, {3, 0}, {1, 0}}

	avg, err := AverageOpenness(open, closed)
	if err != nil {
		t.Fatalf("average openness: %v", err)
	}
	if math.Abs(avg-0.25) > 1e-9 {
		t.Fatalf("avg = %v, want 0.25", avg)
	}

	var degenerate EyeContour
	if _, err := AverageOpenness(open, degenerate); !errors.Is(err, ErrDegenerateGeometry) {
		t.Fatalf("err = %v, want ErrDegenerateGeometry", err)
	}
}
