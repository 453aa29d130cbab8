package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/rjboer/noisemap/internal/logging"
)

// NATSReporter publishes events as JSON on "<subject>.<kind>".
type NATSReporter struct {
	conn    *nats.Conn
	subject string
	logger  logging.Logger
}

// ConnectNATS dials the server at url. The connection reconnects forever in
// the background; publishes during an outage are buffered by the client.
func ConnectNATS(url, subject string, logger logging.Logger) (*NATSReporter, error) {
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.With(logging.F("subsystem", "nats"))
	opts := []nats.Option{
		nats.Name("noisemap"),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", logging.Err(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", logging.F("url", nc.ConnectedUrl()))
		}),
	}
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	logger.Info("nats connected", logging.F("url", url), logging.F("subject", subject))
	return &NATSReporter{conn: conn, subject: subject, logger: logger}, nil
}

// Subject returns the subject an event is published on.
func (n *NATSReporter) Subject(e Event) string {
	return n.subject + "." + string(e.Kind)
}

func (n *NATSReporter) Report(e Event) {
	if n == nil || n.conn == nil {
		return
	}
	payload, err := json.Marshal(e)
	if err != nil {
		n.logger.Warn("encode event", logging.Err(err))
		return
	}
	if err := n.conn.Publish(n.Subject(e), payload); err != nil {
		n.logger.Warn("publish event", logging.F("subject", n.Subject(e)), logging.Err(err))
	}
}

// Close flushes pending publishes and closes the connection.
func (n *NATSReporter) Close() error {
	if n == nil || n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}
