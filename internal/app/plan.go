package app

import (
	"fmt"
	"time"

	"github.com/rjboer/noisemap/internal/antenna"
	"github.com/rjboer/noisemap/internal/astro"
	"github.com/rjboer/noisemap/internal/model"
	"github.com/rjboer/noisemap/internal/planner"
)

// PlanRequest describes the grid of a sweep.
type PlanRequest struct {
	Target astro.Target
	// At is the time the target position is evaluated, normally the sweep start.
	At    time.Time
	Width planner.Span
	// Step defaults per axis to half the antenna beamwidth when zero.
	Step    planner.Span
	Antenna antenna.Antenna
}

// Plan is a computed sweep grid.
type Plan struct {
	Center model.Position
	Step   planner.Span
	Path   []model.Position
}

// NewPlan seeds the grid center from the target and computes the path.
func NewPlan(req PlanRequest) (Plan, error) {
	if req.Target == nil {
		return Plan{}, fmt.Errorf("no target to center the sweep on")
	}
	center, err := req.Target.Position(req.At)
	if err != nil {
		return Plan{}, fmt.Errorf("position of %s: %w", req.Target.Name(), err)
	}
	step := DefaultStep(req.Step, req.Antenna)
	path, err := planner.ComputePath(center, req.Width, step)
	if err != nil {
		return Plan{}, err
	}
	return Plan{Center: center, Step: step, Path: path}, nil
}

// DefaultStep fills zero step axes with half the antenna HPBW on that axis.
func DefaultStep(step planner.Span, a antenna.Antenna) planner.Span {
	if step.Azimuth <= 0 {
		step.Azimuth = planner.HalfBeamStep(a.OpeningAzimuth).Azimuth
	}
	if step.Elevation <= 0 {
		step.Elevation = planner.HalfBeamStep(a.OpeningElevation).Elevation
	}
	return step
}
