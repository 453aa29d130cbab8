package connectionmgr

import (
	"fmt"
	"strings"

	"github.com/rjboer/noisemap/internal/logging"
)

// Exec sends a single ASCII command and returns the raw reply.
// A missing trailing newline is added. Exec holds the connection for the
// whole request/response exchange so replies cannot interleave. Any I/O
// error drops the connection: a late reply would otherwise be read as the
// answer to the next command. Connect must be called again afterwards.
func (m *Manager) Exec(cmd string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := strings.TrimSpace(cmd)
	if m.conn == nil {
		return nil, fmt.Errorf("exec %q: %w", name, ErrNotConnected)
	}
	if !hasLineEnding(cmd) {
		cmd += "\n"
	}
	if err := m.writeAll(m.conn, []byte(cmd)); err != nil {
		m.dropLocked(err)
		return nil, fmt.Errorf("write %q: %w", name, err)
	}
	reply, err := m.readResponse(m.conn)
	if err != nil {
		m.dropLocked(err)
		return nil, fmt.Errorf("read reply to %q: %w", name, err)
	}
	m.log().Debug("command exchanged", logging.F("command", name), logging.F("reply", string(reply)))
	return reply, nil
}

// dropLocked closes the connection after a failed exchange. m.mu must be held.
func (m *Manager) dropLocked(cause error) {
	_ = m.conn.Close()
	m.conn = nil
	m.log().Warn("connection dropped", logging.F("address", m.Address), logging.Err(cause))
}

// hasLineEnding checks whether the string already ends with CR or LF.
func hasLineEnding(s string) bool {
	return strings.HasSuffix(s, "\n") || strings.HasSuffix(s, "\r")
}
