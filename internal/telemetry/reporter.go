package telemetry

import (
	"time"

	"github.com/rjboer/noisemap/internal/logging"
	"github.com/rjboer/noisemap/internal/model"
)

// EventKind classifies telemetry events.
type EventKind string

const (
	// EventState marks a sweep state transition.
	EventState EventKind = "state"
	// EventPoint carries one completed measurement.
	EventPoint EventKind = "point"
	// EventFault reports a failed attempt; the sweep may still continue.
	EventFault EventKind = "fault"
	// EventTrack reports a tracking move.
	EventTrack EventKind = "track"
	// EventImage reports a stored camera image.
	EventImage EventKind = "image"
)

// Fault sources carried in Event.Fault.
const (
	FaultMeasurement = "measurement"
	FaultReset       = "reset"
	FaultImage       = "image"
)

// Event is one telemetry record emitted by the sweep or the tracker.
type Event struct {
	Kind      EventKind `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	SweepID   string    `json:"sweepId,omitempty"`
	State     string    `json:"state,omitempty"`
	Index     int       `json:"index"`
	Total     int       `json:"total,omitempty"`

	Target   *model.Position `json:"target,omitempty"`
	Achieved *model.Position `json:"achieved,omitempty"`

	FrequencyHz float64 `json:"frequencyHz,omitempty"`
	PowerMin    float64 `json:"powerMin,omitempty"`
	PowerMax    float64 `json:"powerMax,omitempty"`
	PowerMean   float64 `json:"powerMean,omitempty"`

	MoveSeconds   float64 `json:"moveSeconds,omitempty"`
	SampleSeconds float64 `json:"sampleSeconds,omitempty"`

	Fault string `json:"fault,omitempty"`
	Path  string `json:"path,omitempty"`
	Error string `json:"error,omitempty"`
}

// Reporter captures telemetry events.
type Reporter interface {
	Report(e Event)
}

// MultiReporter fans out telemetry to multiple destinations.
type MultiReporter []Reporter

// Report forwards telemetry to each configured reporter.
func (m MultiReporter) Report(e Event) {
	for _, r := range m {
		if r != nil {
			r.Report(e)
		}
	}
}

// LogReporter writes events to the structured log.
type LogReporter struct {
	logger logging.Logger
}

// NewLogReporter builds a log reporter with the provided logger.
func NewLogReporter(logger logging.Logger) LogReporter {
	if logger == nil {
		logger = logging.Default()
	}
	return LogReporter{logger: logger.With(logging.F("subsystem", "telemetry"))}
}

func (r LogReporter) Report(e Event) {
	fields := []logging.Field{
		{Key: "kind", Value: string(e.Kind)},
		{Key: "index", Value: e.Index},
	}
	if e.SweepID != "" {
		fields = append(fields, logging.Field{Key: "sweep_id", Value: e.SweepID})
	}
	if e.State != "" {
		fields = append(fields, logging.Field{Key: "state", Value: e.State})
	}
	if e.Achieved != nil {
		fields = append(fields,
			logging.Field{Key: "azimuth", Value: e.Achieved.Azimuth},
			logging.Field{Key: "elevation", Value: e.Achieved.Elevation})
	}
	if e.Kind == EventPoint {
		fields = append(fields,
			logging.Field{Key: "frequency_hz", Value: e.FrequencyHz},
			logging.Field{Key: "power_mean", Value: e.PowerMean})
	}
	if e.Fault != "" {
		fields = append(fields, logging.Field{Key: "fault", Value: e.Fault})
	}
	if e.Error != "" {
		fields = append(fields, logging.Field{Key: "error", Value: e.Error})
		r.logger.Warn("telemetry event", fields...)
		return
	}
	r.logger.Debug("telemetry event", fields...)
}

// PointEvent summarizes a measurement for telemetry.
func PointEvent(sweepID string, index, total int, m model.Measurement) Event {
	target, achieved := m.Target, m.Achieved
	return Event{
		Kind:        EventPoint,
		Timestamp:   m.Timestamp(),
		SweepID:     sweepID,
		Index:       index,
		Total:       total,
		Target:      &target,
		Achieved:    &achieved,
		FrequencyHz: m.Sample.CenterFrequency(),
		PowerMin:    m.Sample.Min(),
		PowerMax:    m.Sample.Max(),
		PowerMean:   m.Sample.Mean(),
	}
}
