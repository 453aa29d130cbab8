package rotator

import (
	"errors"
	"fmt"

	"github.com/rjboer/noisemap/internal/model"
)

// ErrConvergenceTimeout matches every ConvergenceError.
var ErrConvergenceTimeout = errors.New("rotator could not reach target position")

// ProtocolError reports a reply the controller protocol does not allow.
type ProtocolError struct {
	Command  string
	Response string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("unexpected reply to %q: %q", e.Command, e.Response)
}

// DeviceError reports an explicit controller failure (RPRT -1) or a link
// I/O failure, in which case Err is set.
type DeviceError struct {
	Command string
	Err     error
}

func (e *DeviceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rotator %q failed: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("rotator rejected %q", e.Command)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// ConvergenceError is returned when the readback never settled on the target.
type ConvergenceError struct {
	Target model.Position
	Last   model.Position
	Polls  int
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("%v: target %s, last reading %s after %d polls", ErrConvergenceTimeout, e.Target, e.Last, e.Polls)
}

func (e *ConvergenceError) Is(target error) bool { return target == ErrConvergenceTimeout }
