// Package imaging grabs still frames of the antenna from a network camera.
package imaging

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Capturer stores one image at path.
type Capturer interface {
	Capture(ctx context.Context, path string) error
}

// Func adapts a function to Capturer.
type Func func(ctx context.Context, path string) error

func (f Func) Capture(ctx context.Context, path string) error { return f(ctx, path) }

// Nop discards capture requests.
type Nop struct{}

func (Nop) Capture(context.Context, string) error { return nil }

// FFmpeg grabs a single frame from an RTSP stream with the ffmpeg binary.
type FFmpeg struct {
	URL     string
	Binary  string
	Timeout time.Duration
}

// NewFFmpeg returns a capturer for the camera at url.
func NewFFmpeg(url string) *FFmpeg {
	return &FFmpeg{URL: url, Binary: "ffmpeg", Timeout: 15 * time.Second}
}

func (f *FFmpeg) Capture(ctx context.Context, path string) error {
	if f.URL == "" {
		return fmt.Errorf("camera url is empty")
	}
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, f.Binary, f.args(path)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("capture %s: %w: %s", filepath.Base(path), err, lastLine(stderr.String()))
	}
	return nil
}

func (f *FFmpeg) args(path string) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-y"}
	if strings.HasPrefix(f.URL, "rtsp://") {
		args = append(args, "-rtsp_transport", "tcp")
	}
	return append(args, "-i", f.URL, "-frames:v", "1", path)
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// FileName is the image name used for a point measured at ts.
func FileName(ts time.Time) string {
	return fmt.Sprintf("tracking_image_%d.png", ts.Unix())
}
