package model

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPositionArithmetic(t *testing.T) {
	a := Position{Azimuth: 10, Elevation: 20}
	b := Position{Azimuth: 12.5, Elevation: 19}

	assert.Equal(t, Position{Azimuth: 22.5, Elevation: 39}, a.Add(b))
	assert.Equal(t, Position{Azimuth: -2.5, Elevation: 1}, a.Sub(b))
	assert.Equal(t, Position{Azimuth: 2.5, Elevation: 1}, a.Sub(b).Abs())
	assert.True(t, a.Sub(b).Abs().Within(3))
	assert.False(t, a.Sub(b).Abs().Within(2.5))
}

func TestUnknownPositionNeverWithin(t *testing.T) {
	d := Unknown().Sub(Position{Azimuth: 1, Elevation: 1}).Abs()
	assert.True(t, math.IsInf(d.Azimuth, 1))
	assert.False(t, d.Within(1e9))
}

func TestPsdDerivedValues(t *testing.T) {
	s := PsdSample{
		FrequencyStart: 1e9,
		FrequencyStop:  1.002e9,
		SampleCount:    4,
		Levels:         []float64{-40, -42, -38, -44},
	}
	assert.InDelta(t, -44, s.Min(), 1e-9)
	assert.InDelta(t, -38, s.Max(), 1e-9)
	assert.InDelta(t, -41, s.Mean(), 1e-9)
	assert.InDelta(t, 1.001e9, s.CenterFrequency(), 1e-3)
	assert.True(t, s.WellFormed())

	var empty PsdSample
	assert.Zero(t, empty.Min())
	assert.Zero(t, empty.Mean())
}

func TestMeasurementCopiesLevels(t *testing.T) {
	levels := []float64{1, 2, 3}
	now := time.Now()
	m := NewMeasurement(Position{Azimuth: 1}, Position{Azimuth: 1.1}, PsdSample{Timestamp: now, FrequencyStep: 500, SampleCount: 3, Levels: levels})
	levels[0] = 99

	assert.Equal(t, 1.0, m.Sample.Levels[0])
	assert.Equal(t, now, m.Timestamp())
	assert.Equal(t, 500.0, m.Bandwidth())
}
