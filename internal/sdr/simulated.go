package sdr

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/rjboer/noisemap/internal/model"
)

// SimulatedLauncher emulates the acquisition tool in-process. It writes one
// line per Interval in the tool's output format with levels around NoiseFloor.
type SimulatedLauncher struct {
	// Interval overrides the --time argument when set.
	Interval   time.Duration
	NoiseFloor float64
	Seed       int64
}

type simulatedProcess struct {
	r    *io.PipeReader
	w    *io.PipeWriter
	stop chan struct{}
	once sync.Once
	done chan struct{}
}

func (l SimulatedLauncher) Launch(_ context.Context, _ string, args []string) (Process, error) {
	opts := parseArgs(args)
	freq, err := strconv.ParseFloat(opts["--freq"], 64)
	if err != nil {
		return nil, fmt.Errorf("simulated acquisition: bad --freq %q", opts["--freq"])
	}
	rate, _ := strconv.ParseFloat(opts["--rate"], 64)
	bins, _ := strconv.Atoi(opts["--bins"])
	if bins <= 0 {
		bins = 16
	}
	interval := l.Interval
	if interval <= 0 {
		secs, _ := strconv.ParseFloat(opts["--time"], 64)
		interval = time.Duration(secs * float64(time.Second))
	}
	if interval <= 0 {
		interval = time.Second
	}
	floor := l.NoiseFloor
	if floor == 0 {
		floor = -95
	}

	r, w := io.Pipe()
	p := &simulatedProcess{r: r, w: w, stop: make(chan struct{}), done: make(chan struct{})}
	rng := rand.New(rand.NewSource(l.Seed))
	go func() {
		defer close(p.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stop:
				return
			case now := <-ticker.C:
				s := simulatedSample(now, freq, rate, bins, floor, rng)
				if _, err := io.WriteString(w, FormatLine(s)+"\n"); err != nil {
					return
				}
			}
		}
	}()
	return p, nil
}

func simulatedSample(now time.Time, freq, rate float64, bins int, floor float64, rng *rand.Rand) model.PsdSample {
	step := rate / float64(bins)
	levels := make([]float64, bins)
	for i := range levels {
		levels[i] = floor + rng.NormFloat64()
	}
	return model.PsdSample{
		Timestamp:      now,
		FrequencyStart: freq - rate/2,
		FrequencyStop:  freq + rate/2,
		FrequencyStep:  step,
		SampleCount:    bins,
		Levels:         levels,
	}
}

func (p *simulatedProcess) Stdout() io.Reader { return p.r }

func (p *simulatedProcess) Stop() error {
	p.once.Do(func() {
		close(p.stop)
		_ = p.w.Close()
		<-p.done
	})
	return nil
}

// parseArgs maps "--flag value" pairs; flags without a value map to "".
func parseArgs(args []string) map[string]string {
	out := make(map[string]string)
	for i := 0; i < len(args); i++ {
		key := args[i]
		if i+1 < len(args) && len(args[i+1]) > 0 && args[i+1][0] != '-' {
			out[key] = args[i+1]
			i++
			continue
		}
		out[key] = ""
	}
	return out
}
