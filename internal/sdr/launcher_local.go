//go:build unix

package sdr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"syscall"
	"time"
)

// LocalLauncher runs the acquisition tool on this host in its own process group.
type LocalLauncher struct {
	// KillGrace is how long Stop waits after SIGTERM before sending SIGKILL.
	KillGrace time.Duration
}

type localProcess struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	grace  time.Duration
}

func (l LocalLauncher) Launch(_ context.Context, binary string, args []string) (Process, error) {
	// The process must outlive the caller's context; Stop ends it.
	cmd := exec.Command(binary, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launch %s: %w", binary, err)
	}
	grace := l.KillGrace
	if grace <= 0 {
		grace = 3 * time.Second
	}
	return &localProcess{cmd: cmd, stdout: stdout, grace: grace}, nil
}

func (p *localProcess) Stdout() io.Reader { return p.stdout }

// Stop signals the whole process group so children spawned by the driver go too.
func (p *localProcess) Stop() error {
	pgid := p.cmd.Process.Pid
	if err := syscall.Kill(-pgid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("terminate process group %d: %w", pgid, err)
	}

	waited := make(chan error, 1)
	go func() { waited <- p.cmd.Wait() }()

	select {
	case <-waited:
		return nil
	case <-time.After(p.grace):
		if err := syscall.Kill(-pgid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
			return fmt.Errorf("kill process group %d: %w", pgid, err)
		}
		<-waited
		return nil
	}
}
