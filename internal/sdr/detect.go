package sdr

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Device is one receiver reported by the acquisition tool's detection mode.
type Device map[string]string

// Driver returns the SoapySDR driver name.
func (d Device) Driver() string { return d["driver"] }

// Label returns the human readable device name, if reported.
func (d Device) Label() string { return d["label"] }

// Detect lists attached receivers by running "<binary> --detect".
// Audio devices are skipped.
func Detect(ctx context.Context, binary string) ([]Device, error) {
	if binary == "" {
		binary = DefaultConfig().Binary
	}
	out, err := exec.CommandContext(ctx, binary, "--detect").Output()
	if err != nil {
		return nil, fmt.Errorf("detect receivers with %s: %w", binary, err)
	}
	return ParseDetect(strings.NewReader(string(out)))
}

// ParseDetect reads detection output lines of the form "driver=rtlsdr, label=..., serial=...".
func ParseDetect(r io.Reader) ([]Device, error) {
	var devices []Device
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		segments := strings.Split(strings.TrimSpace(scanner.Text()), ",")
		head := strings.ToLower(strings.ReplaceAll(segments[0], " ", ""))
		if !strings.HasPrefix(head, "driver=") || strings.HasSuffix(head, "audio") {
			continue
		}
		dev := Device{}
		for _, seg := range segments {
			key, value, ok := strings.Cut(seg, "=")
			if !ok {
				continue
			}
			dev[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
		devices = append(devices, dev)
	}
	return devices, scanner.Err()
}

// SelectDevice returns the single detected receiver or an error naming how
// many were found.
func SelectDevice(devices []Device) (Device, error) {
	switch len(devices) {
	case 0:
		return nil, fmt.Errorf("could not auto detect a receiver")
	case 1:
		return devices[0], nil
	default:
		drivers := make([]string, len(devices))
		for i, d := range devices {
			drivers[i] = d.Driver()
		}
		return nil, fmt.Errorf("expected one receiver but found %d (%s); set sdr.type", len(devices), strings.Join(drivers, ", "))
	}
}
