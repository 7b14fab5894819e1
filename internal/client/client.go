// Package client dials a remote window server and performs the
// handshake-on-connect, exposing a typed send API and an event stream for
// received captures/chat. Grounded on the teacher's RemoteWindowSocket
// constructor-connect behavior, reworked into an explicit Connect.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/limpsquid/go-remote-window/internal/logging"
	"github.com/limpsquid/go-remote-window/internal/session"
	"github.com/limpsquid/go-remote-window/internal/wire"
)

// Client wraps a single client-role session.Connection.
type Client struct {
	conn   *Connection
	logger *slog.Logger
}

// Connection is an alias kept local so callers don't need to import
// internal/session directly for the common path.
type Connection = session.Connection

// Connect dials addr and starts the connection's read loop, which enters
// Joining and sends JoinSession as its first step (spec §4.5: the client
// initiates the handshake on connect, mirroring the teacher's
// connected-callback behavior). It returns right after starting that
// loop; it waits neither for the JoinSession send nor for the server's
// JoinSessionAck.
func Connect(ctx context.Context, addr string) (*Client, error) {
	d := net.Dialer{Timeout: 10 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	sc := session.NewConnection(conn, session.RoleClient)
	logger := logging.L().With("remote", addr)
	go func() {
		if err := sc.Run(ctx); err != nil {
			logger.Debug("client_run_error", "error", err)
		}
	}()
	return &Client{conn: sc, logger: logger}, nil
}

// Events exposes the underlying connection's typed event stream: window
// captures, chat relays, session-state transitions, mouse/key echoes (a
// server never sends these back, but the stream is symmetric), and the
// final Disconnected event.
func (c *Client) Events() <-chan session.Event { return c.conn.Events() }

// State returns the current session handshake state.
func (c *Client) State() session.State { return c.conn.State() }

// Done closes once the underlying connection has fully torn down.
func (c *Client) Done() <-chan struct{} { return c.conn.Done() }

func (c *Client) SendMouseMove(p wire.Point) error { return c.conn.SendMouseMove(p) }

func (c *Client) SendMousePress(ev wire.MouseEvent) error { return c.conn.SendMousePress(ev) }

func (c *Client) SendMouseRelease(ev wire.MouseEvent) error { return c.conn.SendMouseRelease(ev) }

func (c *Client) SendMouseClick(ev wire.MouseEvent) error { return c.conn.SendMouseClick(ev) }

func (c *Client) SendKeyPress(ev wire.KeyEvent) error { return c.conn.SendKeyPress(ev) }

func (c *Client) SendKeyRelease(ev wire.KeyEvent) error { return c.conn.SendKeyRelease(ev) }

// SendChatMessage truncates s per internal/chat before sending.
func (c *Client) SendChatMessage(s string) error { return c.conn.SendChatMessage(s) }

// Close leaves the session (if joined) and closes the underlying
// connection.
func (c *Client) Close() error { return c.conn.Close() }
