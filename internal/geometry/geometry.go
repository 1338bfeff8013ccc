// Package geometry computes the eye-openness ratio from a tracked eye contour.
// It is pure: no state, no clock, no storage.
package geometry

import (
	"errors"
	"math"
)

// ErrDegenerateGeometry is returned when the horizontal eye width is zero,
// which would make the openness ratio undefined. Callers must skip the sample.
var ErrDegenerateGeometry = errors.New("geometry: degenerate eye contour (zero width)")

// Point is a 2D landmark coordinate.
type Point struct {
	X float64
	Y float64
}

// EyeContour holds the six landmark points of one eye, ordered so that
// index 0 is the outer corner, 1 and 2 the upper lid, 3 the inner corner,
// and 4 and 5 the lower lid. With that ordering (1,5) and (2,4) are the
// vertical lid distances and (0,3) is the horizontal eye width.
type EyeContour [6]Point

// OpennessRatio returns (|p1-p5| + |p2-p4|) / (2 * |p0-p3|).
// Low values indicate a closed eye.
func OpennessRatio(eye EyeContour) (float64, error) {
	vertical := dist(eye[1], eye[5]) + dist(eye[2], eye[4])
	horizontal := dist(eye[0], eye[3])
	if horizontal == 0 {
		return 0, ErrDegenerateGeometry
	}
	return vertical / (2 * horizontal), nil
}

// AverageOpenness computes the mean openness ratio over both eyes.
// It fails if either contour is degenerate.
func AverageOpenness(left, right EyeContour) (float64, error) {
	l, err := OpennessRatio(left)
	if err != nil {
		return 0, err
	}
	r, err := OpennessRatio(right)
	if err != nil {
		return 0, err
	}
	return (l + r) / 2, nil
}

func dist(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
