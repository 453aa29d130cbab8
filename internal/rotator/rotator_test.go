package rotator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rjboer/noisemap/internal/connectionmgr"
	"github.com/rjboer/noisemap/internal/logging"
	"github.com/rjboer/noisemap/internal/model"
)

// fakeController answers rotctld commands on the server end of a pipe.
type fakeController struct {
	mu       sync.Mutex
	commands []string
}

func (f *fakeController) record(cmd string) {
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	f.mu.Unlock()
}

func (f *fakeController) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.commands {
		if c == prefix || strings.HasPrefix(c, prefix+" ") {
			n++
		}
	}
	return n
}

func (f *fakeController) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PollInterval = time.Millisecond
	return cfg
}

// newFakeClient opens a Client whose controller replies through handle.
func newFakeClient(t *testing.T, cfg Config, handle func(cmd string) string) (*Client, *fakeController) {
	t.Helper()
	client, server := net.Pipe()
	fake := &fakeController{}
	go func() {
		r := bufio.NewReader(server)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			cmd := strings.TrimSpace(line)
			fake.record(cmd)
			if _, err := server.Write([]byte(handle(cmd))); err != nil {
				return
			}
		}
	}()

	link := connectionmgr.New("pipe", connectionmgr.TransportTCP)
	link.Timeout = time.Second
	link.SetDialer(func(context.Context) (connectionmgr.Conn, error) { return client, nil })
	c := NewClient(link, cfg, logging.Nop())
	require.NoError(t, c.Open(context.Background()))
	t.Cleanup(func() {
		_ = c.Close()
		_ = server.Close()
	})
	return c, fake
}

func formatReading(p model.Position) string {
	return fmt.Sprintf("%.6f\n%.6f\n", p.Azimuth, p.Elevation)
}

// stationary answers every query with the same reading.
func stationary(reading string) func(string) string {
	return func(cmd string) string {
		if cmd == "p" {
			return reading
		}
		return "RPRT 0\n"
	}
}

func TestMoveToConvergesOverProtocol(t *testing.T) {
	var mu sync.Mutex
	current := model.Position{Azimuth: 0, Elevation: 0}
	target := model.Position{}
	c, fake := newFakeClient(t, testConfig(), func(cmd string) string {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case strings.HasPrefix(cmd, "P "):
			var az, el float64
			_, _ = fmt.Sscanf(cmd, "P %f %f", &az, &el)
			target = model.Position{Azimuth: az, Elevation: el}
			return "RPRT 0\n"
		case cmd == "p":
			rem := target.Sub(current)
			current = current.Add(model.Position{Azimuth: rem.Azimuth / 3, Elevation: rem.Elevation / 3})
			return formatReading(current)
		default:
			return "RPRT 0\n"
		}
	})

	want := model.Position{Azimuth: 120, Elevation: 35}
	got, err := c.MoveTo(context.Background(), want)
	require.NoError(t, err)
	assert.True(t, got.Sub(want).Abs().Within(c.Config().Tolerance), "got %s", got)
	assert.Contains(t, fake.sent(), "P 120.000 35.000")
	assert.GreaterOrEqual(t, fake.count("S"), 3)
	_, pending := c.Pending()
	assert.False(t, pending)
	assert.Equal(t, got, c.LastKnown())
}

func TestMoveToTimesOutAfterMaxSettledPolls(t *testing.T) {
	c, fake := newFakeClient(t, testConfig(), stationary("10.0\n20.0\n"))
	openQueries := fake.count("p")

	_, err := c.MoveTo(context.Background(), model.Position{Azimuth: 50, Elevation: 50})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConvergenceTimeout)

	var ce *ConvergenceError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 20, ce.Polls)
	assert.Equal(t, model.Position{Azimuth: 10, Elevation: 20}, ce.Last)
	// The first poll compares against an unknown position and never qualifies.
	assert.Equal(t, 21, fake.count("p")-openQueries)
	assert.Zero(t, fake.count("S"))
}

func TestMoveToBoundsARotatorThatNeverStops(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTotalPolls = 15
	var mu sync.Mutex
	az := 0.0
	c, _ := newFakeClient(t, cfg, func(cmd string) string {
		if cmd != "p" {
			return "RPRT 0\n"
		}
		mu.Lock()
		defer mu.Unlock()
		az += 5
		return formatReading(model.Position{Azimuth: az})
	})

	_, err := c.MoveTo(context.Background(), model.Position{Azimuth: 359, Elevation: 0})
	var ce *ConvergenceError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, 15, ce.Polls)
}

func TestMoveToHonoursContext(t *testing.T) {
	cfg := testConfig()
	cfg.PollInterval = 50 * time.Millisecond
	c, _ := newFakeClient(t, cfg, stationary("10.0\n20.0\n"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.MoveTo(ctx, model.Position{Azimuth: 50, Elevation: 50})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSetTargetRejected(t *testing.T) {
	c, _ := newFakeClient(t, testConfig(), func(cmd string) string {
		if cmd == "p" {
			return "0\n0\n"
		}
		return "RPRT -1\n"
	})

	_, err := c.MoveTo(context.Background(), model.Position{Azimuth: 10, Elevation: 20})
	var de *DeviceError
	require.True(t, errors.As(err, &de), "got %v", err)
	assert.Equal(t, "P 10.000 20.000", de.Command)
	assert.Nil(t, de.Err)
}

func TestSetTargetUnexpectedReply(t *testing.T) {
	c, _ := newFakeClient(t, testConfig(), func(cmd string) string {
		if cmd == "p" {
			return "0\n0\n"
		}
		return "RPRT 7\n"
	})

	err := c.SetTarget(context.Background(), model.Position{Azimuth: 1, Elevation: 2})
	var pe *ProtocolError
	require.True(t, errors.As(err, &pe), "got %v", err)
	assert.Equal(t, "RPRT 7\n", pe.Response)
}

func TestPositionUnparseable(t *testing.T) {
	calls := 0
	c, _ := newFakeClient(t, testConfig(), func(cmd string) string {
		calls++
		if calls == 1 {
			return "1.5\n2.5\n"
		}
		return "garbage\n"
	})
	assert.Equal(t, model.Position{Azimuth: 1.5, Elevation: 2.5}, c.LastKnown())

	_, err := c.Position(context.Background())
	var pe *ProtocolError
	require.True(t, errors.As(err, &pe), "got %v", err)
	assert.Equal(t, "p", pe.Command)
}

func TestResetDriverStopsFirst(t *testing.T) {
	c, fake := newFakeClient(t, testConfig(), stationary("0\n0\n"))
	require.NoError(t, c.ResetDriver(context.Background()))
	assert.Equal(t, []string{"p", "S", "R 2"}, fake.sent())
}

func TestSocketFailureIsDeviceError(t *testing.T) {
	c, _ := newFakeClient(t, testConfig(), stationary("0\n0\n"))
	require.NoError(t, c.Close())

	_, err := c.Position(context.Background())
	var de *DeviceError
	require.True(t, errors.As(err, &de), "got %v", err)
	assert.ErrorIs(t, err, connectionmgr.ErrNotConnected)
}

func TestTimedOutReplyReconnectsLink(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	var polls, accepted atomic.Int32
	fake := &fakeController{}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			accepted.Add(1)
			go func(conn net.Conn) {
				defer conn.Close()
				r := bufio.NewReader(conn)
				for {
					line, err := r.ReadString('\n')
					if err != nil {
						return
					}
					cmd := strings.TrimSpace(line)
					fake.record(cmd)
					reply := "RPRT 0\n"
					if cmd == "p" {
						// The first poll after opening answers too late.
						if polls.Add(1) == 2 {
							time.Sleep(60 * time.Millisecond)
						}
						reply = "10.0\n20.0\n"
					}
					if _, err := conn.Write([]byte(reply)); err != nil {
						return
					}
				}
			}(conn)
		}
	}()

	link := connectionmgr.New(ln.Addr().String(), connectionmgr.TransportTCP)
	link.Timeout = 30 * time.Millisecond
	link.RetryInterval = time.Millisecond
	c := NewClient(link, testConfig(), logging.Nop())
	require.NoError(t, c.Open(context.Background()))
	t.Cleanup(func() { _ = c.Close() })

	_, err = c.Position(context.Background())
	var de *DeviceError
	require.True(t, errors.As(err, &de), "got %v", err)
	assert.False(t, link.Connected())

	time.Sleep(60 * time.Millisecond)
	require.NoError(t, c.ResetDriver(context.Background()))
	assert.Equal(t, int32(2), accepted.Load())

	pos, err := c.Position(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.Position{Azimuth: 10, Elevation: 20}, pos)
	assert.Equal(t, 1, fake.count("R"))
}

func TestSimulatedConvergesWithinTolerance(t *testing.T) {
	sim := NewSimulated(model.Position{}, testConfig(), 42, logging.Nop())
	sim.Jitter = 0.1
	target := model.Position{Azimuth: 270, Elevation: 60}

	got, err := sim.MoveTo(context.Background(), target)
	require.NoError(t, err)
	assert.True(t, got.Sub(target).Abs().Within(0.5), "got %s", got)
}

func TestSimulatedResetDriver(t *testing.T) {
	sim := NewSimulated(model.Position{}, testConfig(), 1, logging.Nop())
	require.NoError(t, sim.ResetDriver(context.Background()))
	assert.Equal(t, 1, sim.Resets())
	assert.Equal(t, []string{"S", "R"}, sim.Commands())
}

func TestParsePosition(t *testing.T) {
	p, err := parsePosition("180.500000\r\n-2.25\r\n")
	require.NoError(t, err)
	assert.Equal(t, model.Position{Azimuth: 180.5, Elevation: -2.25}, p)

	_, err = parsePosition("180.5\n")
	assert.Error(t, err)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "yaesu"})
	assert.Error(t, err)

	r, err := Open(context.Background(), Options{Driver: "MOCK", Config: testConfig()})
	require.NoError(t, err)
	assert.IsType(t, &Simulated{}, r)
}

func TestResolveAddressAddsDefaultPort(t *testing.T) {
	addr, err := resolveAddress(context.Background(), Options{Address: "10.0.0.5"}, connectionmgr.TransportTCP, logging.Nop())
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5:4533", addr)

	addr, err = resolveAddress(context.Background(), Options{Address: "dish:4000"}, connectionmgr.TransportTCP, logging.Nop())
	require.NoError(t, err)
	assert.Equal(t, "dish:4000", addr)

	addr, err = resolveAddress(context.Background(), Options{Address: "/dev/ttyUSB0"}, connectionmgr.TransportSerial, logging.Nop())
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", addr)
}
