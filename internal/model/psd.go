package model

import (
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// PsdSample is one power-spectral-density line produced by the receiver.
// Derived values are computed on demand and never stored.
type PsdSample struct {
	Timestamp      time.Time `json:"timestamp"`
	FrequencyStart float64   `json:"frequency_start"`
	FrequencyStop  float64   `json:"frequency_stop"`
	FrequencyStep  float64   `json:"frequency_step"`
	SampleCount    int       `json:"sample_count"`
	Levels         []float64 `json:"levels"`
}

// Min returns the lowest power level, or 0 for an empty sample.
func (s PsdSample) Min() float64 {
	if len(s.Levels) == 0 {
		return 0
	}
	return floats.Min(s.Levels)
}

// Max returns the highest power level, or 0 for an empty sample.
func (s PsdSample) Max() float64 {
	if len(s.Levels) == 0 {
		return 0
	}
	return floats.Max(s.Levels)
}

// Mean returns the arithmetic mean of the power levels, or 0 for an empty sample.
func (s PsdSample) Mean() float64 {
	if len(s.Levels) == 0 {
		return 0
	}
	return stat.Mean(s.Levels, nil)
}

// CenterFrequency is the midpoint of the sampled band in Hz.
func (s PsdSample) CenterFrequency() float64 {
	return (s.FrequencyStart + s.FrequencyStop) / 2
}

// WellFormed reports whether the level count matches the declared sample count.
func (s PsdSample) WellFormed() bool {
	return s.SampleCount == len(s.Levels)
}
