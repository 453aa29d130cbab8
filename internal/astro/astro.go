// Package astro provides the pointing direction of observation targets.
package astro

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rjboer/noisemap/internal/model"
)

// Target yields the direction of an object as seen from the ground station.
type Target interface {
	Name() string
	Position(t time.Time) (model.Position, error)
}

// ErrOutOfRange is returned by a Table queried outside its time span.
var ErrOutOfRange = errors.New("time outside target table")

// Location is the observer on the ground. Latitude and longitude are degrees,
// altitude is meters.
type Location struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
}

// ParseLocation reads "lat, lon" or "lat, lon, alt".
func ParseLocation(s string) (Location, error) {
	parts := strings.Split(s, ",")
	if len(parts) < 2 || len(parts) > 3 {
		return Location{}, fmt.Errorf("location %q: want \"lat, lon[, alt]\"", s)
	}
	vals := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Location{}, fmt.Errorf("location %q: %w", s, err)
		}
		vals[i] = v
	}
	loc := Location{Latitude: vals[0], Longitude: vals[1]}
	if len(vals) == 3 {
		loc.Altitude = vals[2]
	}
	if math.Abs(loc.Latitude) > 90 || math.Abs(loc.Longitude) > 180 {
		return Location{}, fmt.Errorf("location %q out of range", s)
	}
	return loc, nil
}

// Fixed is a target that never moves.
type Fixed struct {
	Label string
	At    model.Position
}

func (f Fixed) Name() string {
	if f.Label == "" {
		return "fixed"
	}
	return f.Label
}

func (f Fixed) Position(time.Time) (model.Position, error) { return f.At, nil }

// For selects a target by name: "sun", "fixed:<az>,<el>", or any other name
// together with a two-line element set for an earth satellite.
func For(name string, loc Location, tle1, tle2 string) (Target, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	switch {
	case lower == "sun":
		return Sun{Observer: loc}, nil
	case strings.HasPrefix(lower, "fixed:"):
		parts := strings.Split(strings.TrimPrefix(lower, "fixed:"), ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("fixed target %q: want fixed:<az>,<el>", name)
		}
		az, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		el, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err := errors.Join(err1, err2); err != nil {
			return nil, fmt.Errorf("fixed target %q: %w", name, err)
		}
		return Fixed{Label: name, At: model.Position{Azimuth: az, Elevation: el}}, nil
	case tle1 != "" || tle2 != "":
		return NewSatellite(name, tle1, tle2, loc)
	default:
		return nil, fmt.Errorf("unknown target %q: use sun, fixed:<az>,<el> or provide a TLE", name)
	}
}

func deg2rad(d float64) float64 { return d * math.Pi / 180 }
func rad2deg(r float64) float64 { return r * 180 / math.Pi }

func wrap360(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}
