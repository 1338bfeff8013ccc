package driver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"blinkwatch/internal/geometry"
)

// ReplaySample is one line of a replay stream: an openness ratio at a
// millisecond offset from the stream start, or a gap where no face was
// tracked.
type ReplaySample struct {
	OffsetMS int64   `json:"offset_ms"`
	Ratio    float64 `json:"ratio"`
	Gap      bool    `json:"gap,omitempty"`
}

// ReplayProvider turns a JSON-lines stream of ratio samples into landmark
// samples, synthesizing eye contours that reproduce each ratio. It stands in
// for a camera-backed landmark provider in tests and demos.
type ReplayProvider struct {
	scanner *bufio.Scanner
	start   time.Time
	line    int
}

// NewReplayProvider reads samples from r, anchoring offsets at start.
func NewReplayProvider(r io.Reader, start time.Time) (*ReplayProvider, error) {
	if r == nil {
		return nil, errors.New("replay: nil reader")
	}
	if start.IsZero() {
		return nil, errors.New("replay: zero start time")
	}
	return &ReplayProvider{scanner: bufio.NewScanner(r), start: start}, nil
}

// Next implements LandmarkProvider.
func (p *ReplayProvider) Next(ctx context.Context) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}

	for {
		if !p.scanner.Scan() {
			if err := p.scanner.Err(); err != nil {
				return Sample{}, fmt.Errorf("replay: read: %w", err)
			}
			return Sample{}, io.EOF
		}
		p.line++
		raw := p.scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var rs ReplaySample
		if err := json.Unmarshal(raw, &rs); err != nil {
			return Sample{}, fmt.Errorf("replay: line %d: %w", p.line, err)
		}

		sample := Sample{At: p.start.Add(time.Duration(rs.OffsetMS) * time.Millisecond)}
		if rs.Gap {
			return sample, nil
		}
		sample.FaceDetected = true
		sample.Left = ContourForRatio(rs.Ratio)
		sample.Right = ContourForRatio(rs.Ratio)
		return sample, nil
	}
}

// ContourForRatio synthesizes an eye contour of unit width whose openness
// ratio equals the given value.
func ContourForRatio(ratio float64) geometry.EyeContour {
	h := ratio / 2
	return geometry.EyeContour{
		{X: 0, Y: 0},
		{X: 0.3, Y: h},
		{X: 0.7, Y: h},
		{X: 1, Y: 0},
		{X: 0.7, Y: -h},
		{X: 0.3, Y: -h},
	}
}
