package astro

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rjboer/noisemap/internal/model"
)

var berlin = Location{Latitude: 52.5122, Longitude: 13.3270, Altitude: 50}

func TestParseLocation(t *testing.T) {
	loc, err := ParseLocation("52.5122, 13.3270")
	require.NoError(t, err)
	assert.Equal(t, Location{Latitude: 52.5122, Longitude: 13.3270}, loc)

	loc, err = ParseLocation("-33.9,18.4,120")
	require.NoError(t, err)
	assert.Equal(t, 120.0, loc.Altitude)

	for _, bad := range []string{"", "52.5", "north, east", "95, 10"} {
		_, err := ParseLocation(bad)
		assert.Error(t, err, bad)
	}
}

func TestSunAtSolarNoon(t *testing.T) {
	noon := time.Date(2024, 6, 21, 11, 8, 0, 0, time.UTC)
	p, err := Sun{Observer: berlin}.Position(noon)
	require.NoError(t, err)
	assert.InDelta(t, 90-52.5122+23.44, p.Elevation, 0.5)
	assert.InDelta(t, 180, p.Azimuth, 3)
}

func TestSunRisesInTheEast(t *testing.T) {
	morning := time.Date(2024, 3, 20, 5, 15, 0, 0, time.UTC)
	p, err := Sun{Observer: berlin}.Position(morning)
	require.NoError(t, err)
	assert.InDelta(t, 90, p.Azimuth, 8)
	assert.InDelta(t, 0, p.Elevation, 3)

	midnight := time.Date(2024, 3, 20, 23, 0, 0, 0, time.UTC)
	p, err = Sun{Observer: berlin}.Position(midnight)
	require.NoError(t, err)
	assert.Less(t, p.Elevation, 0.0)
}

const (
	issLine1 = "1 25544U 98067A   08264.51782528 -.00002182  00000-0 -11606-4 0  2927"
	issLine2 = "2 25544  51.6416 247.4627 0006703 130.5360 325.0288 15.72125391563537"
)

func TestSatellitePosition(t *testing.T) {
	sat, err := NewSatellite("ISS", issLine1, issLine2, berlin)
	require.NoError(t, err)
	assert.Equal(t, "ISS", sat.Name())

	p, err := sat.Position(time.Date(2008, 9, 20, 12, 25, 40, 0, time.UTC))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, p.Azimuth, 0.0)
	assert.Less(t, p.Azimuth, 360.0)
	assert.GreaterOrEqual(t, p.Elevation, -90.0)
	assert.LessOrEqual(t, p.Elevation, 90.0)
}

func TestSatelliteRejectsMalformedTLE(t *testing.T) {
	_, err := NewSatellite("ISS", issLine1[:40], issLine2, berlin)
	assert.Error(t, err)
	_, err = NewSatellite("ISS", issLine2, issLine1, berlin)
	assert.Error(t, err)
}

func TestTableInterpolates(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	table, err := NewTable("probe", []TablePoint{
		{Time: t0.Add(2 * time.Minute), Position: model.Position{Azimuth: 10, Elevation: 30}},
		{Time: t0, Position: model.Position{Azimuth: 350, Elevation: 10}},
		{Time: t0.Add(time.Minute), Position: model.Position{Azimuth: 0, Elevation: 20}},
	})
	require.NoError(t, err)

	p, err := table.Position(t0.Add(30 * time.Second))
	require.NoError(t, err)
	assert.InDelta(t, 355, p.Azimuth, 1e-9)
	assert.InDelta(t, 15, p.Elevation, 1e-9)

	p, err = table.Position(t0.Add(90 * time.Second))
	require.NoError(t, err)
	assert.InDelta(t, 5, p.Azimuth, 1e-9)
	assert.InDelta(t, 25, p.Elevation, 1e-9)

	p, err = table.Position(t0.Add(2 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, model.Position{Azimuth: 10, Elevation: 30}, p)

	_, err = table.Position(t0.Add(-time.Second))
	assert.True(t, errors.Is(err, ErrOutOfRange))
}

func TestFor(t *testing.T) {
	target, err := For("Sun", berlin, "", "")
	require.NoError(t, err)
	assert.Equal(t, "sun", target.Name())

	target, err = For("fixed:180,45", berlin, "", "")
	require.NoError(t, err)
	p, err := target.Position(time.Now())
	require.NoError(t, err)
	assert.Equal(t, model.Position{Azimuth: 180, Elevation: 45}, p)

	target, err = For("ISS", berlin, issLine1, issLine2)
	require.NoError(t, err)
	assert.Equal(t, "ISS", target.Name())

	_, err = For("moon", berlin, "", "")
	assert.Error(t, err)
	_, err = For("fixed:north", berlin, "", "")
	assert.Error(t, err)
}
