// Package session implements the Connection State Machine: the framed
// wire format meets a per-connection SessionState, a bounded receive
// buffer, a bounded message queue, and typed event emission to the
// connection's owner (internal/server or internal/client).
//
// Grounded on the teacher's internal/server/reader.go read loop,
// generalized from a single can.Frame decode into the drain-fully-per-
// readable-event loop spec §4.3 describes, and on the historical
// remotewindowsocket.cpp process() switch, reworked into an explicit Go
// switch over wire.Command.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/limpsquid/go-remote-window/internal/chat"
	"github.com/limpsquid/go-remote-window/internal/logging"
	"github.com/limpsquid/go-remote-window/internal/metrics"
	"github.com/limpsquid/go-remote-window/internal/wire"
)

// QueueMaxSize bounds the decoded-message FIFO (spec §3).
const QueueMaxSize = 25

// eventBufSize bounds the owner-facing event channel. The state loop
// itself makes no blocking calls (spec §5); a full event channel drops
// the event rather than stall the connection's read goroutine.
const eventBufSize = 256

// leaveSessionDrain is how long teardown waits for a best-effort
// LeaveSession write to reach the socket buffer before closing.
const leaveSessionDrain = 200 * time.Millisecond

// readChunkSize is the per-Read() buffer size; frames may span many
// reads and many frames may arrive in one read (P2/P3).
const readChunkSize = 64 * 1024

// Connection owns one net.Conn, one receive buffer, one bounded message
// queue, a SessionState, and emits typed Events to its owner. Exactly one
// goroutine (the one running Run) mutates recvBuf/queue;
// state is additionally read from other goroutines (e.g. hub fan-out
// checking SessionState) so it's kept in an atomic.
type Connection struct {
	conn net.Conn
	role Role
	log  *slog.Logger

	state atomic.Int32 // State

	recvBuf []byte
	queue   []wire.Message

	writeMu sync.Mutex

	events    chan Event
	closeOnce sync.Once
	closed    chan struct{}
}

// NewConnection wraps conn. role determines which side of the handshake
// the Connection plays; RoleClient sends JoinSession as soon as Run
// starts (spec §4.3 transition "transport connected (client role)").
func NewConnection(conn net.Conn, role Role) *Connection {
	c := &Connection{
		conn:   conn,
		role:   role,
		log:    logging.L().With("remote", conn.RemoteAddr().String()),
		events: make(chan Event, eventBufSize),
		closed: make(chan struct{}),
	}
	c.state.Store(int32(NoSession))
	return c
}

// State returns the current SessionState. Safe for concurrent use.
func (c *Connection) State() State { return State(c.state.Load()) }

// Events returns the channel of typed events this Connection emits. It is
// closed after the final Disconnected event.
func (c *Connection) Events() <-chan Event { return c.events }

// RemoteAddr returns the underlying transport's remote address string.
func (c *Connection) RemoteAddr() string { return c.conn.RemoteAddr().String() }

// Run drives the read loop until the transport closes or ctx is
// cancelled. It returns the terminal error, if any (io.EOF is reported as
// nil). Run must be called exactly once.
func (c *Connection) Run(ctx context.Context) error {
	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.conn.Close()
		case <-stopWatch:
		}
	}()

	if c.role == RoleClient {
		c.setState(Joining)
		if err := c.SendJoinSession(); err != nil {
			c.log.Warn("join_session_send_failed", "error", err)
		}
	}

	buf := make([]byte, readChunkSize)
	var runErr error
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.onBytes(buf[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && ctx.Err() == nil {
				wrap := fmt.Errorf("%w: %v", ErrRead, err)
				metrics.IncError(mapErrToMetric(wrap))
				runErr = wrap
			}
			break
		}
	}
	c.teardown(runErr)
	return runErr
}

// onBytes appends newly-read bytes to the receive buffer, drains as many
// complete frames as possible into the message queue (spec §4.1 step 5:
// "continue scanning (frames may be batched in one read)"), then runs the
// ProcessingState loop until the queue is empty.
func (c *Connection) onBytes(b []byte) {
	c.recvBuf = append(c.recvBuf, b...)
	c.drainFrames()
	c.runStateLoop()
}

func (c *Connection) drainFrames() {
	for {
		if len(c.recvBuf) == 0 {
			return
		}
		msg, consumed, action := wire.Decode(c.recvBuf)
		switch action {
		case wire.NeedMoreData:
			if len(c.recvBuf) > wire.BufferMaxSize {
				wrap := fmt.Errorf("%w: %d bytes", ErrOversizeBuffer, len(c.recvBuf))
				metrics.IncError(mapErrToMetric(wrap))
				c.log.Warn("recv_buffer_overflow", "size", len(c.recvBuf))
				c.recvBuf = nil
			}
			return
		case wire.Resync:
			metrics.IncMalformed()
			c.log.Debug("frame_resync")
			c.recvBuf = nil
			return
		case wire.FrameDropped:
			metrics.IncMalformed()
			c.log.Debug("frame_dropped_malformed_command")
			c.recvBuf = c.recvBuf[consumed:]
		case wire.FrameReady:
			c.enqueue(msg)
			c.recvBuf = c.recvBuf[consumed:]
		}
	}
}

// enqueue appends to the bounded message queue, dropping the oldest entry
// on overflow (spec §3 Message Queue, P5).
func (c *Connection) enqueue(msg wire.Message) {
	if len(c.queue) >= QueueMaxSize {
		c.queue = c.queue[1:]
	}
	c.queue = append(c.queue, msg)
}

// runStateLoop implements ReadMessage/ReadCommand/Process<Cmd>/
// ReadCommandDone: dequeue until empty, dispatching each Message through
// process(). It never blocks.
func (c *Connection) runStateLoop() {
	for len(c.queue) > 0 {
		msg := c.queue[0]
		c.queue = c.queue[1:]
		c.process(msg)
	}
}

// process handles one dequeued Message: decode its payload per §4.2,
// emit the corresponding typed event, and apply session transitions per
// the §4.3 table. Unknown commands and payload decode errors are dropped
// without tearing down the connection (§7).
func (c *Connection) process(msg wire.Message) {
	switch msg.Command {
	case wire.CommandJoinSession:
		switch c.State() {
		case NoSession:
			c.setState(Joined)
			metrics.IncHandshake()
			if err := c.sendRaw(wire.CommandJoinSessionAck, nil); err != nil {
				c.log.Warn("join_session_ack_send_failed", "error", err)
			}
		case Joined:
			// Duplicate JoinSession while Joined: ignored, matching the
			// source's own @Todo around a NACK (open question, spec §9).
		default:
			// Joining receiving a peer JoinSession is outside the table;
			// ignore rather than corrupt state.
		}
	case wire.CommandJoinSessionAck:
		if c.State() == Joining {
			c.setState(Joined)
		}
	case wire.CommandLeaveSession:
		if c.State() == Joined {
			c.setState(NoSession)
		}
	case wire.CommandWindowCapture:
		if len(msg.Payload) == 0 {
			return // empty-payload WindowCapture dropped (§7)
		}
		c.emit(WindowCaptureReceived{Data: msg.Payload})
	case wire.CommandMouseMove:
		p, err := wire.DecodePoint(msg.Payload)
		if err != nil {
			c.log.Debug("mouse_move_decode_error", "error", err)
			return
		}
		c.emit(MouseMoveReceived{Point: p})
	case wire.CommandMousePress:
		ev, err := wire.DecodeMouseEvent(msg.Payload)
		if err != nil {
			c.log.Debug("mouse_press_decode_error", "error", err)
			return
		}
		c.emit(MousePressReceived{Button: ev.Button, Point: ev.Point, Modifiers: ev.Modifiers})
	case wire.CommandMouseRelease:
		ev, err := wire.DecodeMouseEvent(msg.Payload)
		if err != nil {
			c.log.Debug("mouse_release_decode_error", "error", err)
			return
		}
		c.emit(MouseReleaseReceived{Button: ev.Button, Point: ev.Point, Modifiers: ev.Modifiers})
	case wire.CommandMouseClick:
		ev, err := wire.DecodeMouseEvent(msg.Payload)
		if err != nil {
			c.log.Debug("mouse_click_decode_error", "error", err)
			return
		}
		c.emit(MouseClickReceived{Button: ev.Button, Point: ev.Point, Modifiers: ev.Modifiers})
	case wire.CommandKeyPress:
		ev, err := wire.DecodeKeyEvent(msg.Payload)
		if err != nil {
			c.log.Debug("key_press_decode_error", "error", err)
			return
		}
		c.emit(KeyPressReceived{Key: ev.Key, Modifiers: ev.Modifiers})
	case wire.CommandKeyRelease:
		ev, err := wire.DecodeKeyEvent(msg.Payload)
		if err != nil {
			c.log.Debug("key_release_decode_error", "error", err)
			return
		}
		c.emit(KeyReleaseReceived{Key: ev.Key, Modifiers: ev.Modifiers})
	case wire.CommandChatMessage:
		s, err := wire.DecodeChatMessage(msg.Payload)
		if err != nil {
			c.log.Debug("chat_message_decode_error", "error", err)
			return
		}
		c.emit(ChatMessageReceived{Text: s})
	default:
		// Unknown command: drop message, continue (§7).
	}
}

// setState transitions State and emits SessionStateChanged iff it
// actually changed.
func (c *Connection) setState(new State) {
	old := State(c.state.Swap(int32(new)))
	if old == new {
		return
	}
	c.log.Debug("session_state_changed", "from", old, "to", new)
	c.emit(SessionStateChanged{State: new})
}

// emit delivers ev to the owner without blocking the read goroutine; a
// full channel drops the event rather than stall processing.
func (c *Connection) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn("event_dropped_channel_full", "event", fmt.Sprintf("%T", ev))
	}
}

// sendRaw writes one frame, serialized against concurrent Send* callers
// (e.g. hub fan-out and a locally-driven send racing on the same conn).
func (c *Connection) sendRaw(cmd wire.Command, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := wire.EncodeTo(c.conn, cmd, payload); err != nil {
		wrap := fmt.Errorf("%w: %v", ErrWrite, err)
		metrics.IncError(mapErrToMetric(wrap))
		return wrap
	}
	metrics.AddFramesTx(1)
	return nil
}

// SendJoinSession is exempt from the Joined-gating invariant; it is how a
// client-role Connection drives NoSession -> Joining.
func (c *Connection) SendJoinSession() error {
	return c.sendRaw(wire.CommandJoinSession, nil)
}

// SendWindowCapture transmits an already JPEG-encoded, compressed capture
// blob. A no-op unless SessionState == Joined (spec §3 invariant, P6).
func (c *Connection) SendWindowCapture(data []byte) error {
	if c.State() != Joined || len(data) == 0 {
		return nil
	}
	return c.sendRaw(wire.CommandWindowCapture, data)
}

func (c *Connection) SendMouseMove(p wire.Point) error {
	if c.State() != Joined {
		return nil
	}
	return c.sendRaw(wire.CommandMouseMove, wire.EncodePoint(p))
}

func (c *Connection) SendMousePress(ev wire.MouseEvent) error {
	if c.State() != Joined {
		return nil
	}
	return c.sendRaw(wire.CommandMousePress, wire.EncodeMouseEvent(ev))
}

func (c *Connection) SendMouseRelease(ev wire.MouseEvent) error {
	if c.State() != Joined {
		return nil
	}
	return c.sendRaw(wire.CommandMouseRelease, wire.EncodeMouseEvent(ev))
}

func (c *Connection) SendMouseClick(ev wire.MouseEvent) error {
	if c.State() != Joined {
		return nil
	}
	return c.sendRaw(wire.CommandMouseClick, wire.EncodeMouseEvent(ev))
}

func (c *Connection) SendKeyPress(ev wire.KeyEvent) error {
	if c.State() != Joined {
		return nil
	}
	return c.sendRaw(wire.CommandKeyPress, wire.EncodeKeyEvent(ev))
}

func (c *Connection) SendKeyRelease(ev wire.KeyEvent) error {
	if c.State() != Joined {
		return nil
	}
	return c.sendRaw(wire.CommandKeyRelease, wire.EncodeKeyEvent(ev))
}

// SendChatMessage truncates s to CHAT_MSG_MAX_SIZE (internal/chat) before
// framing. A no-op unless SessionState == Joined.
func (c *Connection) SendChatMessage(s string) error {
	if c.State() != Joined {
		return nil
	}
	return c.sendRaw(wire.CommandChatMessage, wire.EncodeChatMessage(chat.Truncate(s)))
}

// Close tears down the connection from the owner's side: if Joined, it
// attempts a best-effort LeaveSession send and a bounded drain wait, then
// closes the transport. Idempotent.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		if c.State() == Joined {
			if err := c.sendRaw(wire.CommandLeaveSession, nil); err == nil {
				time.Sleep(leaveSessionDrain)
			}
		}
		_ = c.conn.Close()
	})
	return nil
}

// teardown runs once Run's read loop exits for any reason: it clears
// session/transport state, emits Disconnected, and closes the event
// channel. runErr is nil for a clean peer close (io.EOF).
func (c *Connection) teardown(runErr error) {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
	if c.State() != NoSession {
		c.setState(NoSession)
	}
	c.recvBuf = nil
	c.queue = nil
	c.emit(Disconnected{Err: runErr})
	close(c.events)
	close(c.closed)
	c.log.Info("connection_closed")
}

// Done returns a channel closed once teardown has completed.
func (c *Connection) Done() <-chan struct{} { return c.closed }
