package rotator

import (
	"context"
	"time"

	"github.com/rjboer/noisemap/internal/logging"
	"github.com/rjboer/noisemap/internal/model"
)

// converge sets the target on dev and polls until the readback settles within
// tolerance for more than StableCount consecutive polls.
//
// A poll is settled when both axes moved less than MotionNoise since the
// previous poll. Every settled poll that does not converge counts towards
// MaxPolls; a poll that shows motion resets that count.
func converge(ctx context.Context, dev Device, target model.Position, cfg Config, logger logging.Logger) (model.Position, error) {
	if err := dev.SetTarget(ctx, target); err != nil {
		return model.Position{}, err
	}

	last := model.Unknown()
	retries, stable, total := 0, 0, 0
	for {
		current, err := dev.Position(ctx)
		if err != nil {
			return model.Position{}, err
		}
		total++
		step := last.Sub(current).Abs()
		delta := current.Sub(target).Abs()
		last = current

		logger.Debug("rotator poll",
			logging.F("azimuth", current.Azimuth),
			logging.F("elevation", current.Elevation),
			logging.F("target_delta_az", delta.Azimuth),
			logging.F("target_delta_el", delta.Elevation),
			logging.F("retries", retries),
			logging.F("stable", stable))

		if step.Within(cfg.MotionNoise) {
			if delta.Within(cfg.Tolerance) {
				if err := dev.Stop(ctx); err != nil {
					return model.Position{}, err
				}
				stable++
				if stable > cfg.StableCount {
					return current, nil
				}
			} else {
				stable = 0
			}
			retries++
			if retries >= cfg.MaxPolls {
				return model.Position{}, &ConvergenceError{Target: target, Last: current, Polls: retries}
			}
		} else {
			retries, stable = 0, 0
		}

		if cfg.MaxTotalPolls > 0 && total >= cfg.MaxTotalPolls {
			return model.Position{}, &ConvergenceError{Target: target, Last: current, Polls: total}
		}
		if err := sleep(ctx, cfg.PollInterval); err != nil {
			return model.Position{}, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
