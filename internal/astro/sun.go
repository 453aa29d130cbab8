package astro

import (
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/rjboer/noisemap/internal/model"
)

// Sun follows the sun with the low-precision almanac formulae, good to about
// 0.01 degrees between 1950 and 2050, well below any radio beamwidth.
type Sun struct {
	Observer Location
}

func (Sun) Name() string { return "sun" }

func (s Sun) Position(t time.Time) (model.Position, error) {
	jd := julianDay(t)
	n := jd - 2451545.0

	meanLon := deg2rad(wrap360(280.460 + 0.9856474*n))
	anomaly := deg2rad(wrap360(357.528 + 0.9856003*n))
	eclLon := meanLon + deg2rad(1.915*math.Sin(anomaly)+0.020*math.Sin(2*anomaly))
	obliquity := deg2rad(23.439 - 0.0000004*n)

	ra := math.Atan2(math.Cos(obliquity)*math.Sin(eclLon), math.Cos(eclLon))
	dec := math.Asin(math.Sin(obliquity) * math.Sin(eclLon))

	return horizontal(ra, dec, jd, s.Observer), nil
}

// julianDay includes the sub-second part that satellite.JDay drops.
func julianDay(t time.Time) float64 {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()
	return satellite.JDay(year, int(month), day, hour, min, sec) + float64(t.Nanosecond())/86400e9
}

// horizontal converts equatorial coordinates (radians) to azimuth from north
// and elevation, in degrees, for an observer at loc.
func horizontal(ra, dec, jd float64, loc Location) model.Position {
	lat := deg2rad(loc.Latitude)
	lst := satellite.ThetaG_JD(jd) + deg2rad(loc.Longitude)
	ha := lst - ra

	el := math.Asin(math.Sin(lat)*math.Sin(dec) + math.Cos(lat)*math.Cos(dec)*math.Cos(ha))
	az := math.Atan2(-math.Sin(ha)*math.Cos(dec), math.Sin(dec)*math.Cos(lat)-math.Cos(dec)*math.Cos(ha)*math.Sin(lat))
	return model.Position{Azimuth: wrap360(rad2deg(az)), Elevation: rad2deg(el)}
}
