package session

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/limpsquid/go-remote-window/internal/wire"
)

func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not met within %s", d)
	}
}

// TestHandshake exercises P7's end state: a client-role and a server-role
// Connection piped together both reach Joined. The bytes on the wire are
// not inspected.
func TestHandshake(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := NewConnection(clientConn, RoleClient)
	server := NewConnection(serverConn, RoleServer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)
	go server.Run(ctx)

	waitFor(t, time.Second, func() bool {
		return client.State() == Joined && server.State() == Joined
	})
}

// TestSendGatingBeforeJoined covers P6: non-handshake sends before Joined
// must not write anything to the transport.
func TestSendGatingBeforeJoined(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	conn := NewConnection(a, RoleServer) // never receives JoinSession, stays NoSession
	if err := conn.SendMouseMove(wire.Point{X: 1, Y: 2}); err != nil {
		t.Fatalf("SendMouseMove: %v", err)
	}
	if err := conn.SendChatMessage("hello"); err != nil {
		t.Fatalf("SendChatMessage: %v", err)
	}

	_ = b.SetReadDeadline(time.Now().Add(30 * time.Millisecond))
	buf := make([]byte, 16)
	if _, err := b.Read(buf); err == nil {
		t.Fatalf("expected no bytes written while not Joined")
	} else if ne, ok := err.(net.Error); !ok || !ne.Timeout() {
		t.Fatalf("expected a read timeout (no data), got %v", err)
	}
}

// TestQueueCapDropHead covers P5 directly against the unexported queue.
func TestQueueCapDropHead(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	conn := NewConnection(a, RoleServer)

	const extra = 7
	for i := 0; i < QueueMaxSize+extra; i++ {
		conn.enqueue(wire.Message{Command: wire.CommandChatMessage, Payload: []byte{byte(i)}})
	}
	if len(conn.queue) != QueueMaxSize {
		t.Fatalf("queue length = %d, want %d", len(conn.queue), QueueMaxSize)
	}
	for i, msg := range conn.queue {
		want := byte(extra + i)
		if msg.Payload[0] != want {
			t.Fatalf("queue[%d] payload = %d, want %d (drop-head semantics)", i, msg.Payload[0], want)
		}
	}
}

// TestMouseRoundTrip covers scenario 3: a joined client sends MouseClick
// and the server emits a MouseClickReceived with those fields.
func TestMouseRoundTrip(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := NewConnection(clientConn, RoleClient)
	server := NewConnection(serverConn, RoleServer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)
	go server.Run(ctx)

	waitFor(t, time.Second, func() bool { return client.State() == Joined })

	want := wire.MouseEvent{Button: 1, Point: wire.Point{X: 100, Y: 200}, Modifiers: 0}
	if err := client.SendMouseClick(want); err != nil {
		t.Fatalf("SendMouseClick: %v", err)
	}

	var got *MouseClickReceived
	deadline := time.After(time.Second)
	for got == nil {
		select {
		case ev := <-server.Events():
			if mc, ok := ev.(MouseClickReceived); ok {
				mc := mc
				got = &mc
			}
		case <-deadline:
			t.Fatalf("timed out waiting for MouseClickReceived")
		}
	}
	if got.Button != want.Button || got.Point != want.Point || got.Modifiers != want.Modifiers {
		t.Fatalf("got %+v, want %+v", *got, want)
	}
}

// TestChatTruncation covers scenario 4 at the Connection boundary: a
// 2000-character chat message is truncated to CHAT_MSG_MAX_SIZE before
// it ever reaches the wire.
func TestChatTruncation(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := NewConnection(clientConn, RoleClient)
	server := NewConnection(serverConn, RoleServer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)
	go server.Run(ctx)

	waitFor(t, time.Second, func() bool { return client.State() == Joined })

	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'a'
	}
	if err := client.SendChatMessage(string(long)); err != nil {
		t.Fatalf("SendChatMessage: %v", err)
	}

	var got string
	deadline := time.After(time.Second)
loop:
	for {
		select {
		case ev := <-server.Events():
			if cm, ok := ev.(ChatMessageReceived); ok {
				got = cm.Text
				break loop
			}
		case <-deadline:
			t.Fatalf("timed out waiting for ChatMessageReceived")
		}
	}
	if len(got) != 1024 {
		t.Fatalf("got length %d, want 1024", len(got))
	}
	if got[len(got)-3:] != "..." {
		t.Fatalf("expected ellipsis suffix, got %q", got[len(got)-10:])
	}
}

// TestResyncAfterCorruption covers scenario 6: a frame with a flipped END
// byte is discarded and the parser recovers on the next frame.
func TestResyncAfterCorruption(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	server := NewConnection(serverConn, RoleServer)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Run(ctx)

	corrupted := wire.Encode(wire.CommandMouseMove, wire.EncodePoint(wire.Point{X: 1, Y: 1}))
	corrupted[len(corrupted)-1] ^= 0xFF
	good := wire.Encode(wire.CommandMouseMove, wire.EncodePoint(wire.Point{X: 2, Y: 2}))

	go func() {
		_, _ = clientConn.Write(corrupted)
		_, _ = clientConn.Write(good)
	}()

	var got *MouseMoveReceived
	deadline := time.After(time.Second)
	for got == nil {
		select {
		case ev := <-server.Events():
			if mm, ok := ev.(MouseMoveReceived); ok {
				mm := mm
				got = &mm
			}
		case <-deadline:
			t.Fatalf("timed out waiting for MouseMoveReceived")
		}
	}
	if got.Point != (wire.Point{X: 2, Y: 2}) {
		t.Fatalf("got %+v, want (2,2)", got.Point)
	}
}

// TestDisconnectEmitsDisconnectedAndClosesEvents covers the teardown path:
// a peer close yields a Disconnected event and the channel closes after.
func TestDisconnectEmitsDisconnectedAndClosesEvents(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	server := NewConnection(serverConn, RoleServer)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { server.Run(ctx); close(done) }()

	_ = clientConn.Close()

	sawDisconnected := false
	deadline := time.After(time.Second)
	for ev := range server.Events() {
		if _, ok := ev.(Disconnected); ok {
			sawDisconnected = true
		}
	}
	if !sawDisconnected {
		t.Fatalf("expected a Disconnected event before channel close")
	}
	select {
	case <-done:
	case <-deadline:
		t.Fatalf("Run did not return after peer close")
	}
}
