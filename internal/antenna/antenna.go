// Package antenna holds the closed-form antenna parameters used to pick
// sweep defaults: center frequency and half-power beamwidth.
package antenna

import (
	"fmt"
	"math"
	"strings"
)

// Antenna describes the receiving antenna of the ground station.
type Antenna struct {
	Name string
	// Gain in dBi.
	Gain float64
	// OpeningAzimuth and OpeningElevation are the HPBW in degrees.
	OpeningAzimuth   float64
	OpeningElevation float64
	FrequencyStart   float64
	FrequencyStop    float64
}

// Parameters is the configuration of an antenna, as read from the config file.
type Parameters struct {
	Name             string
	Type             string // generic or parabolic
	Gain             float64
	OpeningAzimuth   float64
	OpeningElevation float64
	Diameter         float64
	FeedGain         float64
	Efficiency       float64
	OverrideGain     *float64
	FrequencyStart   float64
	FrequencyStop    float64
}

// New builds the antenna described by p.
func New(p Parameters) (Antenna, error) {
	a := Antenna{
		Name:             p.Name,
		Gain:             p.Gain,
		OpeningAzimuth:   orDefault(p.OpeningAzimuth, 180),
		OpeningElevation: orDefault(p.OpeningElevation, 180),
		FrequencyStart:   p.FrequencyStart,
		FrequencyStop:    p.FrequencyStop,
	}
	switch strings.ToLower(p.Type) {
	case "", "generic":
		return a, nil
	case "parabolic":
		diameter := orDefault(p.Diameter, 1)
		center := a.CenterFrequency()
		hpbw, err := OpeningAngle(center, diameter)
		if err != nil {
			return Antenna{}, err
		}
		a.OpeningAzimuth, a.OpeningElevation = hpbw, hpbw
		if p.OverrideGain != nil {
			a.Gain = *p.OverrideGain
		} else {
			a.Gain = p.FeedGain + DishGain(center, diameter, orDefault(p.Efficiency, 1))
		}
		return a, nil
	default:
		return Antenna{}, fmt.Errorf("unknown antenna type %q", p.Type)
	}
}

// CenterFrequency is the middle of the antenna band in Hz.
func (a Antenna) CenterFrequency() float64 {
	return (a.FrequencyStart + a.FrequencyStop) / 2
}

// Bandwidth is the width of the antenna band in Hz.
func (a Antenna) Bandwidth() float64 {
	return math.Abs(a.FrequencyStop - a.FrequencyStart)
}

// Wavelength converts a frequency in Hz into meters. Non-positive
// frequencies have an infinite wavelength.
func Wavelength(frequency float64) float64 {
	if frequency <= 0 {
		return math.Inf(1)
	}
	return 300 / (frequency / 1e6)
}

// OpeningAngle is the HPBW in degrees of a parabolic reflector.
func OpeningAngle(frequency, diameter float64) (float64, error) {
	if diameter <= 0 {
		return 0, fmt.Errorf("reflector diameter must be positive, got %g", diameter)
	}
	return 58.8 * Wavelength(frequency) / diameter, nil
}

// DishGain is the theoretical gain in dB of a parabolic reflector.
func DishGain(frequency, diameter, efficiency float64) float64 {
	linear := math.Pow(math.Pi*diameter/Wavelength(frequency), 2) * efficiency
	return 10 * math.Log10(linear)
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}
