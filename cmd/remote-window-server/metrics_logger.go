package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/limpsquid/go-remote-window/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"frames_rx", snap.FramesRx,
					"frames_tx", snap.FramesTx,
					"captures_broadcast", snap.CapturesBroadcast,
					"ticks_dropped", snap.TicksDropped,
					"hub_drops", snap.HubDrops,
					"hub_rejects", snap.HubRejects,
					"hub_clients", snap.HubClients,
					"hub_joined", snap.HubJoined,
					"fanout", snap.Fanout,
					"malformed", snap.Malformed,
					"handshakes", snap.Handshakes,
					"handshake_failures", snap.HandshakeFailures,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
