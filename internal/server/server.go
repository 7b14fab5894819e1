// Package server accepts TCP connections, spawns one session.Connection
// per client, runs the periodic capture tick, fans captures out via
// internal/hub, and routes received input/chat events to host sinks.
// Grounded on the teacher's internal/server/server.go (NewServer/
// ServerOption functional options, acceptOnce, Shutdown wait-group drain).
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/limpsquid/go-remote-window/internal/chat"
	"github.com/limpsquid/go-remote-window/internal/hub"
	"github.com/limpsquid/go-remote-window/internal/logging"
	"github.com/limpsquid/go-remote-window/internal/metrics"
	"github.com/limpsquid/go-remote-window/internal/session"
	"github.com/limpsquid/go-remote-window/internal/wire"
)

const (
	defaultCaptureInterval = 25 * time.Millisecond
	minCaptureInterval     = 5 * time.Millisecond
	defaultJPEGQuality     = 0.8
)

// Server owns the TCP listener and coordinates connection lifecycle.
type Server struct {
	mu   sync.RWMutex
	addr string

	Hub     *hub.Hub
	Capture CaptureFunc
	Window  WindowHandle
	Sink    InputSink

	captureInterval time.Duration
	jpegQuality     float64
	maxClients      int

	readyOnce sync.Once
	readyCh   chan struct{}
	lastErrMu sync.Mutex
	lastErr   error
	errCh     chan error
	listener  net.Listener

	wg         sync.WaitGroup
	logger     *slog.Logger
	nextConnID uint64

	tickMu      sync.Mutex
	tickCancel  context.CancelFunc
	tickRunning bool

	totalAccepted      atomic.Uint64
	totalConnected     atomic.Uint64
	totalDisconnected  atomic.Uint64
	totalCapturesTicks atomic.Uint64
}

type ServerOption func(*Server)

// NewServer constructs a Server with default capture interval/quality;
// when no Hub is supplied via WithHub, a fresh one is created.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		captureInterval: defaultCaptureInterval,
		jpegQuality:     defaultJPEGQuality,
		Sink:            NopInputSink{},
		readyCh:         make(chan struct{}),
		errCh:           make(chan error, 1),
		logger:          logging.L(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.addr == "" {
		s.addr = ":55555"
	}
	if s.Hub == nil {
		s.Hub = hub.New()
	}
	return s
}

func WithListenAddr(a string) ServerOption { return func(s *Server) { s.addr = a } }
func WithHub(h *hub.Hub) ServerOption      { return func(s *Server) { s.Hub = h } }
func WithCapture(fn CaptureFunc) ServerOption {
	return func(s *Server) { s.Capture = fn }
}
func WithWindow(w WindowHandle) ServerOption { return func(s *Server) { s.Window = w } }
func WithSink(sink InputSink) ServerOption {
	return func(s *Server) {
		if sink != nil {
			s.Sink = sink
		}
	}
}

// WithCaptureInterval sets the capture tick period, floored at 5ms (spec
// §4.4 "default 25 ms, minimum 5 ms").
func WithCaptureInterval(d time.Duration) ServerOption {
	return func(s *Server) {
		if d < minCaptureInterval {
			d = minCaptureInterval
		}
		s.captureInterval = d
	}
}

// WithJPEGQuality sets the capture JPEG quality, clamped to [0,1].
func WithJPEGQuality(q float64) ServerOption {
	return func(s *Server) {
		if q < 0 {
			q = 0
		}
		if q > 1 {
			q = 1
		}
		s.jpegQuality = q
	}
}

func WithMaxClients(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxClients = n
		}
	}
}

func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func (s *Server) Addr() string           { s.mu.RLock(); defer s.mu.RUnlock(); return s.addr }
func (s *Server) setAddr(a string)       { s.mu.Lock(); s.addr = a; s.mu.Unlock() }
func (s *Server) SetListenAddr(a string) { s.setAddr(a) }
func (s *Server) Ready() <-chan struct{} { return s.readyCh }
func (s *Server) Errors() <-chan error   { return s.errCh }

func (s *Server) setError(err error) {
	if err == nil {
		return
	}
	s.lastErrMu.Lock()
	s.lastErr = err
	s.lastErrMu.Unlock()
	select {
	case s.errCh <- err:
	default:
	}
}

func (s *Server) LastError() error {
	s.lastErrMu.Lock()
	defer s.lastErrMu.Unlock()
	return s.lastErr
}

// Serve accepts connections until ctx is cancelled or a fatal listener
// error occurs.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	addr := s.addr
	s.mu.Unlock()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		wrap := fmt.Errorf("%w: %v", ErrListen, err)
		metrics.IncError(mapErrToMetric(wrap))
		s.setError(wrap)
		return wrap
	}
	s.setAddr(ln.Addr().String())

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.readyOnce.Do(func() { close(s.readyCh) })
	s.logger.Info("tcp_listen", "addr", s.Addr())
	metrics.SetReadinessFunc(func() bool { return true })

	go func() { <-ctx.Done(); _ = ln.Close() }()

	for {
		if err := s.acceptOnce(ctx, ln); err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (s *Server) acceptOnce(ctx context.Context, ln net.Listener) error {
	conn, err := ln.Accept()
	if err != nil {
		select {
		case <-ctx.Done():
			return context.Canceled
		default:
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			time.Sleep(200 * time.Millisecond)
			return nil
		}
		wrap := fmt.Errorf("%w: %v", ErrAccept, err)
		metrics.IncError(mapErrToMetric(wrap))
		s.setError(wrap)
		return wrap
	}
	s.totalAccepted.Add(1)
	connID := atomic.AddUint64(&s.nextConnID, 1)
	connLogger := s.logger.With("conn_id", connID, "remote", conn.RemoteAddr().String())

	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
		_ = tcp.SetKeepAlive(true)
		_ = tcp.SetKeepAlivePeriod(30 * time.Second)
	}

	if s.maxClients > 0 && s.Hub.Count() >= s.maxClients {
		metrics.IncHubReject()
		connLogger.Warn("client_reject_max", "max_clients", s.maxClients)
		_ = conn.Close()
		return nil
	}

	sessConn := session.NewConnection(conn, session.RoleServer)
	s.Hub.Add(sessConn)
	s.totalConnected.Add(1)
	connLogger.Info("client_connected")
	s.maybeStartTick(ctx)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.routeEvents(sessConn, connLogger)
	}()
	go func() {
		defer s.wg.Done()
		if err := sessConn.Run(ctx); err != nil {
			wrap := fmt.Errorf("%w: %v", ErrConnRun, err)
			metrics.IncError(mapErrToMetric(wrap))
			s.setError(wrap)
		}
		s.totalDisconnected.Add(1)
		connLogger.Info("client_disconnected")
	}()
	return nil
}

// routeEvents drains one connection's typed events for its lifetime,
// forwarding input events to Sink, announcing chat join/leave on the
// Joined transition and on disconnect, and relaying user chat messages
// to every other joined connection.
func (s *Server) routeEvents(c *session.Connection, logger *slog.Logger) {
	announcedJoin := false
	for ev := range c.Events() {
		switch e := ev.(type) {
		case session.SessionStateChanged:
			metrics.SetHubJoined(s.Hub.JoinedCount())
			if e.State == session.Joined && !announcedJoin {
				announcedJoin = true
				s.Hub.BroadcastChat(chat.JoinNotice(c.RemoteAddr()))
			}
		case session.MouseMoveReceived:
			s.Sink.ApplyMouseMove(e.Point)
		case session.MousePressReceived:
			s.Sink.ApplyMousePress(wire.MouseEvent{Button: e.Button, Point: e.Point, Modifiers: e.Modifiers})
		case session.MouseReleaseReceived:
			s.Sink.ApplyMouseRelease(wire.MouseEvent{Button: e.Button, Point: e.Point, Modifiers: e.Modifiers})
		case session.MouseClickReceived:
			s.Sink.ApplyMouseClick(wire.MouseEvent{Button: e.Button, Point: e.Point, Modifiers: e.Modifiers})
		case session.KeyPressReceived:
			s.Sink.ApplyKeyPress(wire.KeyEvent{Key: e.Key, Modifiers: e.Modifiers})
		case session.KeyReleaseReceived:
			s.Sink.ApplyKeyRelease(wire.KeyEvent{Key: e.Key, Modifiers: e.Modifiers})
		case session.ChatMessageReceived:
			relay := fmt.Sprintf("%s: %s", c.RemoteAddr(), e.Text)
			for _, other := range s.Hub.Snapshot() {
				if other == c || other.State() != session.Joined {
					continue
				}
				if err := other.SendChatMessage(relay); err != nil {
					metrics.IncHubDrop()
				}
			}
		case session.Disconnected:
			if e.Err != nil {
				logger.Debug("connection_run_error", "error", e.Err)
			}
		}
	}
	s.Hub.Remove(c)
	metrics.SetHubJoined(s.Hub.JoinedCount())
	if announcedJoin {
		s.Hub.BroadcastChat(chat.LeaveNotice(c.RemoteAddr()))
	} else {
		metrics.IncHandshakeFailure()
	}
	s.maybeStopTick()
}

// Shutdown gracefully closes the listener, stops the capture tick, closes
// every connection, and waits (bounded by ctx) for all goroutines to
// exit.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}

	s.tickMu.Lock()
	if s.tickRunning {
		s.tickCancel()
		s.tickRunning = false
	}
	s.tickMu.Unlock()

	for _, c := range s.Hub.Snapshot() {
		_ = c.Close()
	}

	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: shutdown timeout: %v", ErrContext, ctx.Err())
	case <-done:
		s.logger.Info("shutdown_summary",
			"accepted", s.totalAccepted.Load(),
			"connected", s.totalConnected.Load(),
			"disconnected", s.totalDisconnected.Load(),
			"capture_ticks", s.totalCapturesTicks.Load(),
		)
		return nil
	}
}
