package rotator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rjboer/noisemap/internal/connectionmgr"
	"github.com/rjboer/noisemap/internal/logging"
	"github.com/rjboer/noisemap/internal/model"
)

const (
	replyOK   = "RPRT 0\n"
	replyFail = "RPRT -1\n"
)

// Client speaks the rotctld network protocol over a persistent command link.
// It owns the rotator session: the link, the last known position, the pending
// target and the tolerance used for convergence.
type Client struct {
	cfg    Config
	link   *connectionmgr.Manager
	logger logging.Logger

	mu        sync.Mutex
	lastKnown model.Position
	pending   *model.Position
	// dropped is set when the link closed after an I/O error; the next
	// command reconnects.
	dropped bool
}

// NewClient wraps an existing link. The link may be connected later with Open.
func NewClient(link *connectionmgr.Manager, cfg Config, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.With(logging.F("subsystem", "rotator"))
	link.SetLogger(logger)
	return &Client{
		cfg:       cfg.withDefaults(),
		link:      link,
		logger:    logger,
		lastKnown: model.Unknown(),
	}
}

// Open connects the link and reads the initial position.
func (c *Client) Open(ctx context.Context) error {
	if err := c.link.Connect(ctx); err != nil {
		return &DeviceError{Command: "connect", Err: err}
	}
	pos, err := c.Position(ctx)
	if err != nil {
		return err
	}
	c.logger.Info("rotator session opened",
		logging.F("address", c.link.Address),
		logging.F("azimuth", pos.Azimuth),
		logging.F("elevation", pos.Elevation),
		logging.F("tolerance", c.cfg.Tolerance))
	return nil
}

// Config returns the effective convergence parameters.
func (c *Client) Config() Config { return c.cfg }

// LastKnown returns the most recent position reported by the controller.
func (c *Client) LastKnown() model.Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastKnown
}

// Pending returns the commanded target that has not yet converged.
func (c *Client) Pending() (model.Position, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return model.Position{}, false
	}
	return *c.pending, true
}

// MoveTo commands target and blocks until the readback converges on it.
func (c *Client) MoveTo(ctx context.Context, target model.Position) (model.Position, error) {
	pos, err := converge(ctx, c, target, c.cfg, c.logger)
	if err != nil {
		return model.Position{}, err
	}
	c.mu.Lock()
	c.pending = nil
	c.mu.Unlock()
	return pos, nil
}

// SetTarget sends the set-position command without waiting for motion.
func (c *Client) SetTarget(ctx context.Context, target model.Position) error {
	cmd := fmt.Sprintf("P %.3f %.3f\n", target.Azimuth, target.Elevation)
	reply, err := c.exec(ctx, cmd)
	if err != nil {
		return err
	}
	switch string(reply) {
	case replyOK:
		c.mu.Lock()
		c.pending = &target
		c.mu.Unlock()
		return nil
	case replyFail:
		return &DeviceError{Command: strings.TrimSpace(cmd)}
	default:
		return &ProtocolError{Command: strings.TrimSpace(cmd), Response: string(reply)}
	}
}

// Position queries the current readback.
func (c *Client) Position(ctx context.Context) (model.Position, error) {
	reply, err := c.exec(ctx, "p\n")
	if err != nil {
		return model.Position{}, err
	}
	if string(reply) == replyFail {
		return model.Position{}, &DeviceError{Command: "p"}
	}
	pos, err := parsePosition(string(reply))
	if err != nil {
		return model.Position{}, &ProtocolError{Command: "p", Response: string(reply)}
	}
	c.mu.Lock()
	c.lastKnown = pos
	c.mu.Unlock()
	return pos, nil
}

// Stop halts any motion in progress.
func (c *Client) Stop(ctx context.Context) error {
	return c.simple(ctx, "S\n")
}

// ResetDriver stops the rotator before resetting its motor driver.
func (c *Client) ResetDriver(ctx context.Context) error {
	if err := c.Stop(ctx); err != nil {
		return err
	}
	c.logger.Warn("resetting rotator driver")
	return c.simple(ctx, "R 2\n")
}

// Close ends the session and closes the link.
func (c *Client) Close() error {
	c.setDropped(false)
	return c.link.Close()
}

// simple runs a command whose reply only matters when it reports failure.
func (c *Client) simple(ctx context.Context, cmd string) error {
	reply, err := c.exec(ctx, cmd)
	if err != nil {
		return err
	}
	if string(reply) == replyFail {
		return &DeviceError{Command: strings.TrimSpace(cmd)}
	}
	return nil
}

func (c *Client) exec(ctx context.Context, cmd string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.reconnect(ctx); err != nil {
		return nil, err
	}
	reply, err := c.link.Exec(cmd)
	if err != nil {
		if !errors.Is(err, connectionmgr.ErrNotConnected) && !c.link.Connected() {
			c.setDropped(true)
		}
		return nil, &DeviceError{Command: strings.TrimSpace(cmd), Err: err}
	}
	return reply, nil
}

// reconnect reopens a link that was dropped by a failed exchange. A link
// closed through Close stays closed.
func (c *Client) reconnect(ctx context.Context) error {
	c.mu.Lock()
	dropped := c.dropped
	c.mu.Unlock()
	if !dropped {
		return nil
	}
	c.logger.Warn("reconnecting rotator link", logging.F("address", c.link.Address))
	if err := c.link.Connect(ctx); err != nil {
		return &DeviceError{Command: "connect", Err: err}
	}
	c.setDropped(false)
	return nil
}

func (c *Client) setDropped(v bool) {
	c.mu.Lock()
	c.dropped = v
	c.mu.Unlock()
}

// parsePosition reads "az\nel\n". Serial controllers may add CR.
func parsePosition(reply string) (model.Position, error) {
	fields := strings.FieldsFunc(reply, func(r rune) bool { return r == '\n' || r == '\r' })
	if len(fields) < 2 {
		return model.Position{}, fmt.Errorf("want 2 lines, got %d", len(fields))
	}
	az, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
	if err != nil {
		return model.Position{}, err
	}
	el, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		return model.Position{}, err
	}
	return model.Position{Azimuth: az, Elevation: el}, nil
}
