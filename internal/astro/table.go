package astro

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rjboer/noisemap/internal/model"
)

// TablePoint is one precomputed target direction.
type TablePoint struct {
	Time     time.Time
	Position model.Position
}

// Table interpolates linearly between precomputed target directions, taking
// the short way around when azimuth crosses north.
type Table struct {
	name   string
	points []TablePoint
}

// NewTable sorts points by time. At least two points are required.
func NewTable(name string, points []TablePoint) (*Table, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("target table %q needs at least two points", name)
	}
	sorted := append([]TablePoint(nil), points...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })
	return &Table{name: name, points: sorted}, nil
}

func (t *Table) Name() string { return t.name }

func (t *Table) Position(at time.Time) (model.Position, error) {
	first, last := t.points[0], t.points[len(t.points)-1]
	if at.Before(first.Time) || at.After(last.Time) {
		return model.Position{}, fmt.Errorf("%w: %s not in [%s, %s]", ErrOutOfRange,
			at.UTC().Format(time.RFC3339), first.Time.UTC().Format(time.RFC3339), last.Time.UTC().Format(time.RFC3339))
	}
	i := sort.Search(len(t.points), func(i int) bool { return t.points[i].Time.After(at) })
	if i == len(t.points) {
		return last.Position, nil
	}
	past, future := t.points[i-1], t.points[i]
	frac := float64(at.Sub(past.Time)) / float64(future.Time.Sub(past.Time))

	dAz := future.Position.Azimuth - past.Position.Azimuth
	if math.Abs(dAz) > 180 {
		dAz -= math.Copysign(360, dAz)
	}
	return model.Position{
		Azimuth:   wrap360(past.Position.Azimuth + dAz*frac),
		Elevation: past.Position.Elevation + (future.Position.Elevation-past.Position.Elevation)*frac,
	}, nil
}
