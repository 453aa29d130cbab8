//go:build !unix

package sdr

import (
	"context"
	"errors"
	"time"
)

// LocalLauncher needs process groups, which this platform does not provide.
type LocalLauncher struct {
	KillGrace time.Duration
}

func (LocalLauncher) Launch(context.Context, string, []string) (Process, error) {
	return nil, errors.New("local acquisition requires a unix host; configure sdr.ssh instead")
}
