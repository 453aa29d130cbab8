package connectionmgr

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// openSerial opens a controller attached to a local serial device, 8N1.
func openSerial(path string, baud int, timeout time.Duration) (Conn, error) {
	if path == "" {
		return nil, fmt.Errorf("serial device path is empty")
	}
	if baud <= 0 {
		baud = 9600
	}
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", path, err)
	}
	if timeout > 0 {
		if err := port.SetReadTimeout(timeout); err != nil {
			_ = port.Close()
			return nil, fmt.Errorf("set serial read timeout: %w", err)
		}
	}
	return port, nil
}
