// Package hub tracks the set of live connections and fans captures and
// chat notices out to the joined ones. Grounded directly on the teacher's
// internal/hub/hub.go (Add/Remove/Broadcast/Snapshot/Count), generalized
// from can.Frame payloads to *session.Connection, and gated on
// SessionState == Joined instead of unconditional broadcast (spec §4.4).
package hub

import (
	"sync"

	"github.com/limpsquid/go-remote-window/internal/logging"
	"github.com/limpsquid/go-remote-window/internal/metrics"
	"github.com/limpsquid/go-remote-window/internal/session"
)

// Hub owns a registry of live connections. Unlike the teacher's hub,
// there is no per-client outbound channel/backpressure policy: each
// session.Connection already serializes its own writes and a slow peer
// cannot stall others because Connection.Send* calls never block past a
// single socket Write (spec §4.4 "writes are non-blocking").
type Hub struct {
	mu    sync.RWMutex
	conns map[*session.Connection]struct{}
}

// New creates an empty Hub.
func New() *Hub {
	return &Hub{conns: make(map[*session.Connection]struct{})}
}

// Add registers a connection with the hub.
func (h *Hub) Add(c *session.Connection) {
	h.mu.Lock()
	prev := len(h.conns)
	h.conns[c] = struct{}{}
	cur := len(h.conns)
	h.mu.Unlock()
	metrics.SetHubClients(cur)
	if prev == 0 && cur == 1 {
		logging.L().Info("clients_first_connected")
	}
}

// Remove unregisters a connection; safe to call multiple times.
func (h *Hub) Remove(c *session.Connection) {
	h.mu.Lock()
	_, existed := h.conns[c]
	delete(h.conns, c)
	cur := len(h.conns)
	h.mu.Unlock()
	metrics.SetHubClients(cur)
	if existed && cur == 0 {
		logging.L().Info("clients_last_disconnected")
	}
}

// Count returns the number of registered connections (joined or not),
// used to drive the capture tick's 0->1/1->0 start/stop edges (P8).
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Snapshot returns a slice copy of currently registered connections.
func (h *Hub) Snapshot() []*session.Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*session.Connection, 0, len(h.conns))
	for c := range h.conns {
		out = append(out, c)
	}
	return out
}

// BroadcastCapture sends a compressed JPEG blob to every connection whose
// SessionState is Joined (spec §4.4 capture-tick step 4). Non-joined
// connections are silently skipped rather than queued.
func (h *Hub) BroadcastCapture(data []byte) {
	conns := h.Snapshot()
	fanout := 0
	for _, c := range conns {
		if c.State() != session.Joined {
			continue
		}
		if err := c.SendWindowCapture(data); err != nil {
			metrics.IncHubDrop()
			continue
		}
		fanout++
	}
	metrics.SetBroadcastFanout(fanout)
	if fanout > 0 {
		metrics.IncCapturesBroadcast()
	}
}

// BroadcastChat sends a chat notice to every Joined connection (spec
// §4.4 "Chat on join/leave").
func (h *Hub) BroadcastChat(text string) {
	for _, c := range h.Snapshot() {
		if c.State() != session.Joined {
			continue
		}
		if err := c.SendChatMessage(text); err != nil {
			metrics.IncHubDrop()
		}
	}
}

// JoinedCount returns the number of connections currently Joined, used
// for metrics.SetHubJoined.
func (h *Hub) JoinedCount() int {
	n := 0
	for _, c := range h.Snapshot() {
		if c.State() == session.Joined {
			n++
		}
	}
	return n
}
