package model

import (
	"fmt"
	"math"
)

// Position is an antenna pointing direction in degrees.
type Position struct {
	Azimuth   float64 `json:"azimuth"`
	Elevation float64 `json:"elevation"`
}

// Add returns the component-wise sum.
func (p Position) Add(o Position) Position {
	return Position{Azimuth: p.Azimuth + o.Azimuth, Elevation: p.Elevation + o.Elevation}
}

// Sub returns the component-wise difference.
func (p Position) Sub(o Position) Position {
	return Position{Azimuth: p.Azimuth - o.Azimuth, Elevation: p.Elevation - o.Elevation}
}

// Abs returns the component-wise absolute value.
func (p Position) Abs() Position {
	return Position{Azimuth: math.Abs(p.Azimuth), Elevation: math.Abs(p.Elevation)}
}

// Within reports whether both axes of p are strictly below limit.
// It is meant to be called on a delta such as a.Sub(b).Abs().
func (p Position) Within(limit float64) bool {
	return p.Azimuth < limit && p.Elevation < limit
}

// Unknown is used as a "no previous reading" marker; any delta against it is infinite.
func Unknown() Position {
	return Position{Azimuth: math.Inf(1), Elevation: math.Inf(1)}
}

func (p Position) String() string {
	return fmt.Sprintf("AZ%.2f EL%.2f", p.Azimuth, p.Elevation)
}
