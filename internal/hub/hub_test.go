package hub

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/limpsquid/go-remote-window/internal/session"
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

// newJoinedPair returns a client/server Connection pair already run and
// joined, plus a cancel func that tears both down.
func newJoinedPair(t *testing.T) (client, server *session.Connection, cancel func()) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	client = session.NewConnection(clientConn, session.RoleClient)
	server = session.NewConnection(serverConn, session.RoleServer)
	ctx, cancelFn := context.WithCancel(context.Background())
	go client.Run(ctx)
	go server.Run(ctx)
	waitFor(t, time.Second, func() bool { return client.State() == session.Joined && server.State() == session.Joined })
	return client, server, func() {
		cancelFn()
		clientConn.Close()
		serverConn.Close()
	}
}

func TestAddRemoveCount(t *testing.T) {
	h := New()
	_, server, cancel := newJoinedPair(t)
	defer cancel()

	h.Add(server)
	if h.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", h.Count())
	}
	h.Remove(server)
	if h.Count() != 0 {
		t.Fatalf("Count() = %d, want 0 after Remove", h.Count())
	}
}

func TestBroadcastCaptureOnlyReachesJoined(t *testing.T) {
	h := New()

	clientA, serverA, cancelA := newJoinedPair(t)
	defer cancelA()
	h.Add(serverA)

	// A connection that never completes the handshake: stays NoSession.
	_, serverB := net.Pipe()
	pending := session.NewConnection(serverB, session.RoleServer)
	ctx, cancelPending := context.WithCancel(context.Background())
	defer cancelPending()
	go pending.Run(ctx)
	h.Add(pending)

	h.BroadcastCapture([]byte("JPEGDATA9"))

	var got *session.WindowCaptureReceived
	deadline := time.After(time.Second)
	for got == nil {
		select {
		case ev := <-clientA.Events():
			if wc, ok := ev.(session.WindowCaptureReceived); ok {
				wc := wc
				got = &wc
			}
		case <-deadline:
			t.Fatalf("timed out waiting for WindowCaptureReceived")
		}
	}
	if string(got.Data) != "JPEGDATA9" {
		t.Fatalf("got %q, want %q", got.Data, "JPEGDATA9")
	}
	if h.JoinedCount() != 1 {
		t.Fatalf("JoinedCount() = %d, want 1 (pending connection not Joined)", h.JoinedCount())
	}
}

func TestBroadcastChatReachesJoinedOnly(t *testing.T) {
	h := New()
	clientA, serverA, cancelA := newJoinedPair(t)
	defer cancelA()
	h.Add(serverA)

	// A connection that never completes the handshake: stays NoSession.
	// Nothing reads its pipe, so a send to it would block BroadcastChat.
	_, pendingConn := net.Pipe()
	pending := session.NewConnection(pendingConn, session.RoleServer)
	h.Add(pending)

	h.BroadcastChat("1.2.3.4:5: joined the chat")

	var got string
	deadline := time.After(time.Second)
loop:
	for {
		select {
		case ev := <-clientA.Events():
			if cm, ok := ev.(session.ChatMessageReceived); ok {
				got = cm.Text
				break loop
			}
		case <-deadline:
			t.Fatalf("timed out waiting for ChatMessageReceived")
		}
	}
	if got != "1.2.3.4:5: joined the chat" {
		t.Fatalf("got %q", got)
	}
}

// TestBroadcastFanoutMultiple ensures fan-out reaches multiple joined
// connections independently (spec §4.4 broadcast discipline).
func TestBroadcastFanoutMultiple(t *testing.T) {
	h := New()
	const n = 3
	clients := make([]*session.Connection, n)
	cancels := make([]func(), n)
	for i := 0; i < n; i++ {
		c, s, cancel := newJoinedPair(t)
		clients[i] = c
		cancels[i] = cancel
		h.Add(s)
	}
	defer func() {
		for _, c := range cancels {
			c()
		}
	}()

	h.BroadcastCapture([]byte("JPEGDATA9"))

	for i, c := range clients {
		deadline := time.After(time.Second)
		received := false
		for !received {
			select {
			case ev := <-c.Events():
				if _, ok := ev.(session.WindowCaptureReceived); ok {
					received = true
				}
			case <-deadline:
				t.Fatalf("client %d: timed out waiting for capture", i)
			}
		}
	}
}
