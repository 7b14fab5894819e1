// Package discovery advertises a running server on the local network via
// mDNS so LAN viewers can find it without being told an address up
// front. Grounded on the teacher's cmd/can-server/mdns.go, lifted out of
// cmd/ into its own package since it is pure domain plumbing rather than
// CLI wiring.
package discovery

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the mDNS service type advertised for a remote window
// server.
const ServiceType = "_remote-window._tcp"

const shutdownDrain = 50 * time.Millisecond

func defaultName() string {
	host, _ := os.Hostname()
	return fmt.Sprintf("remote-window-%s", host)
}

// Options configures the advertised service record.
type Options struct {
	// Name is the mDNS instance name; defaults to "remote-window-<host>".
	Name string
	Port int
	// Meta is advertised as TXT records, e.g. "version=1.2.3".
	Meta []string
}

// Advertise registers instance on the local network and keeps the
// registration alive until ctx is cancelled or the returned cleanup func
// is called, whichever comes first. Safe to call with a zero Port only
// if the caller never intends to advertise it; callers should pass the
// listener's actual bound port.
func Advertise(ctx context.Context, opts Options) (cleanup func(), err error) {
	name := opts.Name
	if name == "" {
		name = defaultName()
	}
	svc, err := zeroconf.Register(name, ServiceType, "local.", opts.Port, opts.Meta, nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		svc.Shutdown()
	}()
	return func() {
		select {
		case <-done:
		default:
			close(done)
		}
		svc.Shutdown()
		time.Sleep(shutdownDrain)
	}, nil
}

// Browse resolves instances of ServiceType on the local network for d,
// returning their advertised host:port endpoints. Used by a viewer that
// wants to find a server without a configured address.
func Browse(ctx context.Context, d time.Duration) ([]string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}
	entries := make(chan *zeroconf.ServiceEntry, 16)
	var found []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range entries {
			if len(e.AddrIPv4) == 0 {
				continue
			}
			found = append(found, fmt.Sprintf("%s:%d", e.AddrIPv4[0], e.Port))
		}
	}()

	bctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	if err := resolver.Browse(bctx, ServiceType, "local.", entries); err != nil {
		return nil, fmt.Errorf("mdns browse: %w", err)
	}
	<-bctx.Done()
	<-done
	return found, nil
}
