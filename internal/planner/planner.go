// Package planner computes the ordered grid of pointing positions of a sweep.
package planner

import (
	"fmt"
	"math"

	"github.com/rjboer/noisemap/internal/model"
)

// RangeError reports a generated point that crosses the pole more than once.
type RangeError struct {
	Index     int
	Elevation float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("point %d: elevation %.3f exceeds 180 degrees", e.Index, e.Elevation)
}

// Span is a pair of angular extents in degrees, azimuth first.
type Span struct {
	Azimuth   float64
	Elevation float64
}

// ComputePath returns a serpentine grid of positions centered on target.
//
// The grid has ceil(width/step) columns and rows; any extent beyond width is
// split evenly on both sides. Row 0 is the lowest elevation and runs in
// increasing azimuth, row 1 runs back, and so on. The result is normalized.
func ComputePath(target model.Position, width, step Span) ([]model.Position, error) {
	if step.Azimuth <= 0 || step.Elevation <= 0 {
		return nil, fmt.Errorf("step size must be positive, got %v", step)
	}
	if width.Azimuth < 0 || width.Elevation < 0 {
		return nil, fmt.Errorf("scan width must not be negative, got %v", width)
	}

	cols := axisCount(width.Azimuth, step.Azimuth)
	rows := axisCount(width.Elevation, step.Elevation)
	startAz := target.Azimuth - axisOffset(width.Azimuth, step.Azimuth, cols)
	startEl := target.Elevation - axisOffset(width.Elevation, step.Elevation, rows)

	path := make([]model.Position, 0, cols*rows)
	for row := 0; row < rows; row++ {
		el := startEl + float64(row)*step.Elevation
		for i := 0; i < cols; i++ {
			col := i
			if row%2 == 1 {
				col = cols - 1 - i
			}
			path = append(path, model.Position{
				Azimuth:   startAz + float64(col)*step.Azimuth,
				Elevation: el,
			})
		}
	}
	return Normalize(path)
}

// axisCount is ceil(width/step), at least one so a zero width scans the target.
func axisCount(width, step float64) int {
	n := int(math.Ceil(width/step - 1e-9))
	if n < 1 {
		n = 1
	}
	return n
}

// axisOffset is the distance from the target to the first grid point.
func axisOffset(width, step float64, n int) float64 {
	slack := float64(n)*step - width
	return (width+slack)/2 - step/2
}

// Normalize folds points over the zenith back into 0..90 degrees of
// elevation and wraps azimuth into [0, 360). Order is preserved.
func Normalize(path []model.Position) ([]model.Position, error) {
	out := make([]model.Position, len(path))
	for i, p := range path {
		if p.Elevation > 180 {
			return nil, &RangeError{Index: i, Elevation: p.Elevation}
		}
		if p.Elevation > 90 {
			p.Elevation = 180 - p.Elevation
			p.Azimuth = 180 - p.Azimuth
		}
		p.Azimuth = wrapAzimuth(p.Azimuth)
		out[i] = p
	}
	return out, nil
}

func wrapAzimuth(az float64) float64 {
	az = math.Mod(az, 360)
	if az < 0 {
		az += 360
	}
	return az
}

// HalfBeamStep returns the default step size: half the antenna half-power
// beamwidth on both axes.
func HalfBeamStep(hpbw float64) Span {
	return Span{Azimuth: hpbw / 2, Elevation: hpbw / 2}
}
