package model

import "time"

// Measurement pairs one grid point with the position the rotator reached and
// the PSD sample recorded there. Values are not modified after creation.
type Measurement struct {
	Target   Position  `json:"target"`
	Achieved Position  `json:"achieved"`
	Sample   PsdSample `json:"sample"`
}

// NewMeasurement copies the sample levels so the caller cannot mutate them later.
func NewMeasurement(target, achieved Position, sample PsdSample) Measurement {
	levels := make([]float64, len(sample.Levels))
	copy(levels, sample.Levels)
	sample.Levels = levels
	return Measurement{Target: target, Achieved: achieved, Sample: sample}
}

// Timestamp is the time the PSD sample was produced.
func (m Measurement) Timestamp() time.Time {
	return m.Sample.Timestamp
}

// Bandwidth is the width of one PSD bin in Hz.
func (m Measurement) Bandwidth() float64 {
	return m.Sample.FrequencyStep
}
