package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/limpsquid/go-remote-window/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters
var (
	FramesRx = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_frames_rx_total",
		Help: "Total wire frames decoded from TCP clients.",
	})
	FramesTx = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_frames_tx_total",
		Help: "Total wire frames written to TCP clients.",
	})
	CapturesBroadcast = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_captures_broadcast_total",
		Help: "Total window captures fanned out to joined connections.",
	})
	CaptureTickDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_capture_tick_dropped_total",
		Help: "Total capture ticks whose capture function returned no image.",
	})
	HubDroppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_dropped_frames_total",
		Help: "Total frames dropped by hub fan-out because the send to a client failed.",
	})
	HubRejectedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_rejected_clients_total",
		Help: "Total client connection attempts rejected (e.g., max-clients).",
	})
	HubActiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_active_clients",
		Help: "Current number of connections registered with the hub.",
	})
	HubJoinedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_joined_clients",
		Help: "Current number of connections with SessionState=Joined.",
	})
	HubBroadcastFanout = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_broadcast_fanout",
		Help: "Number of joined connections targeted by the most recent broadcast.",
	})
	HandshakeTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "handshake_total",
		Help: "Total successful JoinSession/JoinSessionAck handshakes.",
	})
	HandshakeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "handshake_failures_total",
		Help: "Total connections that disconnected before reaching Joined.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "malformed_frames_total",
		Help: "Total rejected malformed frames (bad end marker, bad command).",
	})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrTCPRead    = "tcp_read"
	ErrTCPWrite   = "tcp_write"
	ErrHandshake  = "handshake"
	ErrCapture    = "capture"
	ErrInputSink  = "input_sink"
	ErrCompress   = "compress"
	ErrDecompress = "decompress"
	ErrDiscovery  = "discovery"
)

// StartHTTP serves Prometheus metrics at /metrics and readiness at /ready
// on addr, using a mux of its own.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for easy logging (avoid Prometheus scraping in-process)
var (
	localFramesRx    uint64
	localFramesTx    uint64
	localBroadcasts  uint64
	localTickDropped uint64
	localHubDrop     uint64
	localHubReject   uint64
	localErrors      uint64
	localHubClients  uint64
	localHubJoined   uint64
	localFanout      uint64
	localMalformed   uint64
	localHandshakes  uint64
	localHandFailure uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	FramesRx          uint64
	FramesTx          uint64
	CapturesBroadcast uint64
	TicksDropped      uint64
	HubDrops          uint64
	HubRejects        uint64
	Errors            uint64 // sum across error labels
	HubClients        uint64
	HubJoined         uint64
	Fanout            uint64
	Malformed         uint64
	Handshakes        uint64
	HandshakeFailures uint64
}

func Snap() Snapshot {
	return Snapshot{
		FramesRx:          atomic.LoadUint64(&localFramesRx),
		FramesTx:          atomic.LoadUint64(&localFramesTx),
		CapturesBroadcast: atomic.LoadUint64(&localBroadcasts),
		TicksDropped:      atomic.LoadUint64(&localTickDropped),
		HubDrops:          atomic.LoadUint64(&localHubDrop),
		HubRejects:        atomic.LoadUint64(&localHubReject),
		Errors:            atomic.LoadUint64(&localErrors),
		HubClients:        atomic.LoadUint64(&localHubClients),
		HubJoined:         atomic.LoadUint64(&localHubJoined),
		Fanout:            atomic.LoadUint64(&localFanout),
		Malformed:         atomic.LoadUint64(&localMalformed),
		Handshakes:        atomic.LoadUint64(&localHandshakes),
		HandshakeFailures: atomic.LoadUint64(&localHandFailure),
	}
}

// Wrapper helpers to keep call sites simple.
func IncFramesRx() {
	FramesRx.Inc()
	atomic.AddUint64(&localFramesRx, 1)
}

func AddFramesTx(n int) {
	FramesTx.Add(float64(n))
	atomic.AddUint64(&localFramesTx, uint64(n))
}

func IncCapturesBroadcast() {
	CapturesBroadcast.Inc()
	atomic.AddUint64(&localBroadcasts, 1)
}

func IncCaptureTickDropped() {
	CaptureTickDropped.Inc()
	atomic.AddUint64(&localTickDropped, 1)
}

func IncHubDrop() {
	HubDroppedFrames.Inc()
	atomic.AddUint64(&localHubDrop, 1)
}

func IncHubReject() {
	HubRejectedClients.Inc()
	atomic.AddUint64(&localHubReject, 1)
}

func SetHubClients(n int) {
	HubActiveClients.Set(float64(n))
	atomic.StoreUint64(&localHubClients, uint64(n))
}

func SetHubJoined(n int) {
	HubJoinedClients.Set(float64(n))
	atomic.StoreUint64(&localHubJoined, uint64(n))
}

func SetBroadcastFanout(n int) {
	HubBroadcastFanout.Set(float64(n))
	atomic.StoreUint64(&localFanout, uint64(n))
}

func IncHandshake() {
	HandshakeTotal.Inc()
	atomic.AddUint64(&localHandshakes, 1)
}

func IncHandshakeFailure() {
	HandshakeFailures.Inc()
	atomic.AddUint64(&localHandFailure, 1)
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

func IncMalformed() {
	MalformedFrames.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	// Pre-register common error label series so first error does not log a registration latency.
	for _, lbl := range []string{
		ErrTCPRead, ErrTCPWrite, ErrHandshake,
		ErrCapture, ErrInputSink, ErrCompress, ErrDecompress, ErrDiscovery,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil { // if not set yet, treat as ready so metrics endpoint doesn't flap
		return true
	}
	return fn()
}

// Ready is a concise alias used at call sites.
func Ready() bool { return IsReady() }
