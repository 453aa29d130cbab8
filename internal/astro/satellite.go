package astro

import (
	"fmt"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/rjboer/noisemap/internal/model"
)

// Satellite follows an earth satellite described by a two-line element set.
type Satellite struct {
	name     string
	sat      satellite.Satellite
	observer Location
}

// NewSatellite parses the element set. Malformed lines are rejected before
// they reach the SGP4 parser.
func NewSatellite(name, line1, line2 string, observer Location) (s *Satellite, err error) {
	line1, line2 = strings.TrimSpace(line1), strings.TrimSpace(line2)
	if len(line1) != 69 || !strings.HasPrefix(line1, "1 ") {
		return nil, fmt.Errorf("tle line 1 of %q is malformed", name)
	}
	if len(line2) != 69 || !strings.HasPrefix(line2, "2 ") {
		return nil, fmt.Errorf("tle line 2 of %q is malformed", name)
	}
	defer func() {
		if r := recover(); r != nil {
			s, err = nil, fmt.Errorf("parse tle of %q: %v", name, r)
		}
	}()
	return &Satellite{
		name:     name,
		sat:      satellite.TLEToSat(line1, line2, satellite.GravityWGS84),
		observer: observer,
	}, nil
}

func (s *Satellite) Name() string { return s.name }

func (s *Satellite) Position(t time.Time) (model.Position, error) {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	eci, _ := satellite.Propagate(s.sat, year, int(month), day, hour, min, sec)
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	obs := satellite.LatLong{
		Latitude:  deg2rad(s.observer.Latitude),
		Longitude: deg2rad(s.observer.Longitude),
	}
	look := satellite.ECIToLookAngles(eci, obs, s.observer.Altitude/1000, jd)
	return model.Position{
		Azimuth:   wrap360(rad2deg(look.Az)),
		Elevation: rad2deg(look.El),
	}, nil
}
