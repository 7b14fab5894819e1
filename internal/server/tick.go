package server

import (
	"context"
	"time"

	"github.com/limpsquid/go-remote-window/internal/imaging"
	"github.com/limpsquid/go-remote-window/internal/metrics"
)

// maybeStartTick starts the capture tick goroutine the moment the
// connection count transitions 0->1 (spec §4.4, P8). No-op if already
// running or if there are still zero connections.
func (s *Server) maybeStartTick(parent context.Context) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	if s.tickRunning || s.Hub.Count() == 0 {
		return
	}
	tctx, cancel := context.WithCancel(parent)
	s.tickCancel = cancel
	s.tickRunning = true
	s.wg.Add(1)
	go s.runCaptureTick(tctx)
}

// maybeStopTick stops the capture tick the moment the connection count
// transitions 1->0.
func (s *Server) maybeStopTick() {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	if !s.tickRunning || s.Hub.Count() > 0 {
		return
	}
	s.tickCancel()
	s.tickRunning = false
}

// runCaptureTick is a one-shot timer rescheduled after each run, not a
// free-running time.Ticker: capture+encode cost is unbounded relative to
// the configured interval and must never reenter itself (spec §4.4).
func (s *Server) runCaptureTick(ctx context.Context) {
	defer s.wg.Done()
	timer := time.NewTimer(s.captureInterval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		s.runOneCapture(ctx)
		select {
		case <-ctx.Done():
			return
		default:
			timer.Reset(s.captureInterval)
		}
	}
}

// runOneCapture performs the four capture-tick steps from spec §4.4:
// capture, JPEG-encode, generically compress, broadcast to Joined peers.
func (s *Server) runOneCapture(ctx context.Context) {
	s.totalCapturesTicks.Add(1)
	if s.Capture == nil {
		return
	}
	img, err := s.Capture(ctx, s.Window)
	if err != nil {
		metrics.IncError(metrics.ErrCapture)
		s.logger.Debug("capture_error", "error", err)
		return
	}
	if img == nil {
		metrics.IncCaptureTickDropped()
		return // no window installed; nothing to broadcast this tick
	}
	encoded, err := imaging.EncodeJPEG(img, s.jpegQuality)
	if err != nil {
		metrics.IncError(metrics.ErrCompress)
		s.logger.Warn("jpeg_encode_error", "error", err)
		return
	}
	compressed, err := imaging.Compress(encoded)
	if err != nil {
		metrics.IncError(metrics.ErrCompress)
		s.logger.Warn("compress_error", "error", err)
		return
	}
	s.Hub.BroadcastCapture(compressed)
}
