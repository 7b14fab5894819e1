// Command remote-window-client is a minimal demo client: it connects to
// a server, prints every received chat message, logs the byte size of
// every received window capture at debug level, and relays stdin lines
// as chat messages.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/limpsquid/go-remote-window/internal/client"
	"github.com/limpsquid/go-remote-window/internal/discovery"
	"github.com/limpsquid/go-remote-window/internal/logging"
	"github.com/limpsquid/go-remote-window/internal/session"
)

func main() {
	addr := flag.String("addr", "", "Server address (host:port); empty triggers mDNS discovery")
	discoverTimeout := flag.Duration("discover-timeout", 3*time.Second, "mDNS discovery timeout when -addr is empty")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	flag.Parse()

	l := logging.New("text", parseLevel(*logLevel), os.Stderr).With("app", "remote-window-client")
	logging.Set(l)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() { <-sigCh; cancel() }()

	target := *addr
	if target == "" {
		found, err := discovery.Browse(ctx, *discoverTimeout)
		if err != nil || len(found) == 0 {
			l.Error("discovery_failed", "error", err)
			os.Exit(1)
		}
		target = found[0]
		l.Info("discovered_server", "addr", target)
	}

	cl, err := client.Connect(ctx, target)
	if err != nil {
		l.Error("connect_failed", "error", err)
		os.Exit(1)
	}
	l.Info("connected", "addr", target)

	go readStdin(ctx, cl, l)

	for {
		select {
		case ev, ok := <-cl.Events():
			if !ok {
				return
			}
			switch e := ev.(type) {
			case session.ChatMessageReceived:
				fmt.Println(e.Text)
			case session.WindowCaptureReceived:
				l.Debug("capture_received", "bytes", len(e.Data))
			case session.Disconnected:
				l.Info("disconnected", "error", e.Err)
				return
			}
		case <-ctx.Done():
			_ = cl.Close()
			return
		}
	}
}

func readStdin(ctx context.Context, cl *client.Client, l *slog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if err := cl.SendChatMessage(scanner.Text()); err != nil {
			l.Warn("send_chat_failed", "error", err)
		}
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
