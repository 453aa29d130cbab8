package connectionmgr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/rjboer/noisemap/internal/logging"
)

// Transport selects the physical link to the controller.
type Transport int

const (
	TransportTCP Transport = iota
	TransportSerial
)

func (t Transport) String() string {
	switch t {
	case TransportTCP:
		return "tcp"
	case TransportSerial:
		return "serial"
	default:
		return "unknown"
	}
}

// ParseTransport converts a config string to a Transport. Empty means TCP.
func ParseTransport(s string) (Transport, error) {
	switch s {
	case "", "tcp":
		return TransportTCP, nil
	case "serial":
		return TransportSerial, nil
	default:
		return TransportTCP, fmt.Errorf("unsupported transport %q", s)
	}
}

// Conn is the minimal byte stream the manager needs.
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
}

// DialFunc opens a Conn to the configured address.
type DialFunc func(ctx context.Context) (Conn, error)

var (
	// ErrNotConnected is returned by I/O helpers before Connect succeeded.
	ErrNotConnected = errors.New("not connected")
	// ErrNoReply is returned when a read completes without data, as serial
	// ports do when their read timeout expires.
	ErrNoReply = errors.New("no reply from controller")
)

// DefaultResponseSize matches the fixed-size reply read of the rotctld protocol.
const DefaultResponseSize = 64

// Manager owns one persistent command connection.
type Manager struct {
	Address   string
	Transport Transport
	BaudRate  int

	// Timeout bounds each dial, write and response read.
	Timeout time.Duration
	// ConnectAttempts bounds Connect retries; zero means a single attempt.
	ConnectAttempts uint64
	// RetryInterval is the first backoff delay between connect attempts.
	RetryInterval time.Duration
	// ResponseSize is the maximum number of bytes read per reply.
	ResponseSize int

	mu     sync.Mutex
	logger logging.Logger
	dial   DialFunc
	conn   Conn
}

// ---------- Construction / lifecycle ----------

func New(addr string, transport Transport) *Manager {
	return &Manager{
		Address:         addr,
		Transport:       transport,
		BaudRate:        9600,
		Timeout:         5 * time.Second,
		ConnectAttempts: 3,
		RetryInterval:   500 * time.Millisecond,
		ResponseSize:    DefaultResponseSize,
	}
}

// SetLogger replaces the manager logger.
func (m *Manager) SetLogger(l logging.Logger) {
	m.logger = l
}

// SetDialer overrides how connections are opened (tests, tunnels).
func (m *Manager) SetDialer(d DialFunc) {
	m.dial = d
}

// SetConn injects an already-open connection.
func (m *Manager) SetConn(conn Conn) {
	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
}

// Connected reports whether a connection is held.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// Connect opens the link, retrying with exponential backoff up to
// ConnectAttempts times. An existing connection is closed first.
func (m *Manager) Connect(ctx context.Context) error {
	_ = m.Close()

	dial := m.dial
	if dial == nil {
		dial = m.defaultDial
	}

	exp := backoff.NewExponentialBackOff()
	if m.RetryInterval > 0 {
		exp.InitialInterval = m.RetryInterval
	}
	var b backoff.BackOff = backoff.WithMaxRetries(exp, m.ConnectAttempts)
	b = backoff.WithContext(b, ctx)

	attempt := 0
	var conn Conn
	err := backoff.Retry(func() error {
		attempt++
		c, err := dial(ctx)
		if err != nil {
			m.log().Warn("connect attempt failed",
				logging.F("address", m.Address),
				logging.F("transport", m.Transport.String()),
				logging.F("attempt", attempt),
				logging.Err(err))
			return err
		}
		conn = c
		return nil
	}, b)
	if err != nil {
		return fmt.Errorf("connect %s %s: %w", m.Transport, m.Address, err)
	}

	m.SetConn(conn)
	m.log().Info("controller connected", logging.F("address", m.Address), logging.F("transport", m.Transport.String()))
	return nil
}

func (m *Manager) defaultDial(ctx context.Context) (Conn, error) {
	switch m.Transport {
	case TransportSerial:
		return openSerial(m.Address, m.BaudRate, m.Timeout)
	default:
		d := net.Dialer{Timeout: m.Timeout}
		return d.DialContext(ctx, "tcp", m.Address)
	}
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	return err
}

// ---------- Logging ----------

func (m *Manager) log() logging.Logger {
	if m.logger == nil {
		return logging.Default().With(logging.F("subsystem", "connectionmgr"))
	}
	return m.logger
}

// ---------- Raw I/O ----------

type deadlineConn interface {
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

type timeoutConn interface {
	SetReadTimeout(t time.Duration) error
}

func (m *Manager) applyReadDeadline(conn Conn) {
	if m.Timeout <= 0 {
		return
	}
	switch c := conn.(type) {
	case deadlineConn:
		_ = c.SetReadDeadline(time.Now().Add(m.Timeout))
	case timeoutConn:
		_ = c.SetReadTimeout(m.Timeout)
	}
}

func (m *Manager) applyWriteDeadline(conn Conn) {
	if c, ok := conn.(deadlineConn); ok && m.Timeout > 0 {
		_ = c.SetWriteDeadline(time.Now().Add(m.Timeout))
	}
}

// writeAll writes the full buffer, handling short writes.
func (m *Manager) writeAll(conn Conn, b []byte) error {
	for len(b) > 0 {
		m.applyWriteDeadline(conn)
		n, err := conn.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// readResponse performs one read of at most ResponseSize bytes.
func (m *Manager) readResponse(conn Conn) ([]byte, error) {
	size := m.ResponseSize
	if size <= 0 {
		size = DefaultResponseSize
	}
	buf := make([]byte, size)
	m.applyReadDeadline(conn)
	n, err := conn.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err == nil {
		err = ErrNoReply
	}
	return nil, err
}
