package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rjboer/noisemap/internal/astro"
	"github.com/rjboer/noisemap/internal/logging"
	"github.com/rjboer/noisemap/internal/rotator"
	"github.com/rjboer/noisemap/internal/telemetry"
)

// Tracker keeps the antenna pointed at a moving object.
type Tracker struct {
	rotator  rotator.Rotator
	reporter telemetry.Reporter
	logger   logging.Logger
	now      func() time.Time
}

// NewTracker builds a tracker. reporter may be nil.
func NewTracker(rot rotator.Rotator, reporter telemetry.Reporter, logger logging.Logger) *Tracker {
	if logger == nil {
		logger = logging.Default()
	}
	return &Tracker{
		rotator:  rot,
		reporter: reporter,
		logger:   logger.With(logging.F("subsystem", "tracker")),
		now:      time.Now,
	}
}

// Run moves the rotator to the current position of target every interval
// until duration has elapsed or ctx is done. Positions below the horizon are
// skipped. A failed move resets the rotator driver once; a failing reset ends
// the run. It returns the number of completed moves.
func (t *Tracker) Run(ctx context.Context, target astro.Target, duration, interval time.Duration) (int, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("tracking interval must be positive, got %s", interval)
	}
	logger := t.logger.With(logging.F("target", target.Name()))
	deadline := t.now().Add(duration)
	logger.Info("tracking started", logging.F("duration", duration), logging.F("interval", interval))

	moves := 0
	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			return moves, err
		}
		now := t.now()
		if !now.Before(deadline) {
			logger.Info("tracking finished", logging.F("moves", moves))
			return moves, nil
		}

		want, err := target.Position(now)
		switch {
		case errors.Is(err, astro.ErrOutOfRange):
			logger.Info("target table exhausted", logging.F("moves", moves))
			return moves, nil
		case err != nil:
			return moves, fmt.Errorf("target position: %w", err)
		case want.Elevation < 0:
			logger.Warn("target below horizon, not moving",
				logging.F("azimuth", want.Azimuth),
				logging.F("elevation", want.Elevation))
		default:
			start := t.now()
			got, err := t.rotator.MoveTo(ctx, want)
			if err != nil {
				if ctx.Err() != nil {
					return moves, ctx.Err()
				}
				logger.Warn("tracking move failed, resetting rotator driver", logging.Err(err))
				t.report(telemetry.Event{Kind: telemetry.EventFault, Index: index, Target: &want, Fault: telemetry.FaultMeasurement, Error: err.Error()})
				if rerr := t.rotator.ResetDriver(ctx); rerr != nil {
					return moves, fmt.Errorf("reset driver after %v: %w", err, rerr)
				}
				break
			}
			moves++
			logger.Debug("tracking move",
				logging.F("azimuth", got.Azimuth),
				logging.F("elevation", got.Elevation))
			t.report(telemetry.Event{
				Kind:        telemetry.EventTrack,
				Index:       index,
				Target:      &want,
				Achieved:    &got,
				MoveSeconds: t.now().Sub(start).Seconds(),
			})
		}

		if err := sleep(ctx, interval); err != nil {
			return moves, err
		}
	}
}

func (t *Tracker) report(e telemetry.Event) {
	if t.reporter == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = t.now()
	}
	t.reporter.Report(e)
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

// WaitUntil blocks until start, logging the remaining time every minute.
func WaitUntil(ctx context.Context, start time.Time, logger logging.Logger) error {
	if logger == nil {
		logger = logging.Default()
	}
	for {
		remaining := time.Until(start)
		if remaining <= 0 {
			return nil
		}
		logger.Info("waiting for start time",
			logging.F("start", start.UTC().Format(time.RFC3339)),
			logging.F("remaining", remaining.Round(time.Second)))
		if err := sleep(ctx, min(remaining, time.Minute)); err != nil {
			return err
		}
	}
}
