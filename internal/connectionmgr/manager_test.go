package connectionmgr

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serveOnce answers a single command on the server side of a pipe.
func serveOnce(t *testing.T, server net.Conn, reply string) <-chan string {
	t.Helper()
	got := make(chan string, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := server.Read(buf)
		got <- string(buf[:n])
		if reply != "" {
			_, _ = server.Write([]byte(reply))
		}
	}()
	return got
}

func TestExecAppendsNewlineAndReturnsReply(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	mgr := New("pipe", TransportTCP)
	mgr.SetConn(client)

	received := serveOnce(t, server, "RPRT 0\n")
	reply, err := mgr.Exec("S")
	require.NoError(t, err)
	assert.Equal(t, "RPRT 0\n", string(reply))
	assert.Equal(t, "S\n", <-received)
}

func TestExecNotConnected(t *testing.T) {
	mgr := New("nowhere", TransportTCP)
	_, err := mgr.Exec("p\n")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestExecReadTimeout(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	mgr := New("pipe", TransportTCP)
	mgr.Timeout = 20 * time.Millisecond
	mgr.SetConn(client)

	go func() {
		buf := make([]byte, 64)
		_, _ = server.Read(buf) // swallow command, never answer
	}()

	_, err := mgr.Exec("p\n")
	require.Error(t, err)
	var ne net.Error
	assert.True(t, errors.As(err, &ne) && ne.Timeout(), "expected timeout, got %v", err)
	assert.False(t, mgr.Connected())
}

// slowFirstReply listens on loopback and answers every command with reply,
// except the first command of the first connection, which is answered after
// delay.
func slowFirstReply(t *testing.T, reply string, delay time.Duration) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for first := true; ; first = false {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn, slow bool) {
				defer conn.Close()
				buf := make([]byte, 64)
				for {
					n, err := conn.Read(buf)
					if err != nil {
						return
					}
					answer := reply
					if slow {
						time.Sleep(delay)
						slow = false
					}
					if strings.HasPrefix(string(buf[:n]), "P") {
						answer = "RPRT 0\n"
					}
					if _, err := conn.Write([]byte(answer)); err != nil {
						return
					}
				}
			}(conn, first)
		}
	}()
	return ln
}

func TestExecTimeoutDropsConnection(t *testing.T) {
	ln := slowFirstReply(t, "10.0\n20.0\n", 60*time.Millisecond)

	mgr := New(ln.Addr().String(), TransportTCP)
	mgr.Timeout = 30 * time.Millisecond
	require.NoError(t, mgr.Connect(context.Background()))

	_, err := mgr.Exec("p")
	require.Error(t, err)
	assert.False(t, mgr.Connected())

	_, err = mgr.Exec("P 1.000 2.000")
	assert.ErrorIs(t, err, ErrNotConnected)

	// The late reply to p must not surface after reconnecting.
	require.NoError(t, mgr.Connect(context.Background()))
	time.Sleep(60 * time.Millisecond)
	reply, err := mgr.Exec("P 1.000 2.000")
	require.NoError(t, err)
	assert.Equal(t, "RPRT 0\n", string(reply))
	require.NoError(t, mgr.Close())
}

func TestConnectRetriesThenSucceeds(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	calls := 0
	mgr := New("flaky", TransportTCP)
	mgr.ConnectAttempts = 3
	mgr.RetryInterval = time.Millisecond
	mgr.SetDialer(func(context.Context) (Conn, error) {
		calls++
		if calls < 2 {
			return nil, errors.New("connection refused")
		}
		return client, nil
	})

	require.NoError(t, mgr.Connect(context.Background()))
	assert.Equal(t, 2, calls)
	assert.True(t, mgr.Connected())
	require.NoError(t, mgr.Close())
	assert.False(t, mgr.Connected())
}

func TestConnectGivesUp(t *testing.T) {
	calls := 0
	mgr := New("dead", TransportTCP)
	mgr.ConnectAttempts = 1
	mgr.RetryInterval = time.Millisecond
	mgr.SetDialer(func(context.Context) (Conn, error) {
		calls++
		return nil, errors.New("connection refused")
	})

	err := mgr.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, 2, calls)
}

func TestParseTransport(t *testing.T) {
	tr, err := ParseTransport("")
	require.NoError(t, err)
	assert.Equal(t, TransportTCP, tr)
	tr, err = ParseTransport("serial")
	require.NoError(t, err)
	assert.Equal(t, TransportSerial, tr)
	_, err = ParseTransport("carrier-pigeon")
	assert.Error(t, err)
}
