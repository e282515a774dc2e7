package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/go-cec/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters
var (
	FramesRx = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cec_frames_rx_total",
		Help: "Total CEC frames received from the link, by frame type.",
	}, []string{"type"})
	FramesTx = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cec_frames_tx_total",
		Help: "Total CEC frames sent to the link, by frame type.",
	}, []string{"type"})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cec_malformed_frames_total",
		Help: "Total frames rejected by the codec (bad ethertype, short frame, oversize payload length).",
	})
	HandshakeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cec_handshake_failures_total",
		Help: "Total client handshakes that exhausted their InitA retries without a reply.",
	})
	ClientsAttached = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cec_clients_attached_total",
		Help: "Total clients successfully attached to a shelf (InitC accepted).",
	})
	ClientsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cec_clients_rejected_total",
		Help: "Total InitC attempts rejected because the shelf had no free client slots.",
	})
	ClientsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cec_clients_active",
		Help: "Current number of attached clients.",
	})
	ClientsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cec_clients_evicted_total",
		Help: "Total clients evicted for exceeding the idle timeout.",
	})
	ShelfAllocations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cec_shelf_allocations_total",
		Help: "Total shelf numbers handed out by the auto-allocator.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrLinkRead    = "link_read"
	ErrLinkWrite   = "link_write"
	ErrHandshake   = "handshake"
	ErrLocalRead   = "local_read"
	ErrLocalWrite  = "local_write"
	ErrAckTimeout  = "ack_timeout"
	ErrRemoteReset = "remote_reset"
)

// StartHTTP serves Prometheus metrics at /metrics on the given addr.
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

// Local mirrored counters for cheap in-process inspection without
// scraping Prometheus (e.g. for a status command).
var (
	localFramesRx         uint64
	localFramesTx         uint64
	localMalformed        uint64
	localHandshakeFail    uint64
	localClientsAttached  uint64
	localClientsRejected  uint64
	localClientsActive    uint64
	localClientsEvicted   uint64
	localShelfAllocations uint64
	localErrors           uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	FramesRx         uint64
	FramesTx         uint64
	Malformed        uint64
	HandshakeFail    uint64
	ClientsAttached  uint64
	ClientsRejected  uint64
	ClientsActive    uint64
	ClientsEvicted   uint64
	ShelfAllocations uint64
	Errors           uint64
}

func Snap() Snapshot {
	return Snapshot{
		FramesRx:         atomic.LoadUint64(&localFramesRx),
		FramesTx:         atomic.LoadUint64(&localFramesTx),
		Malformed:        atomic.LoadUint64(&localMalformed),
		HandshakeFail:    atomic.LoadUint64(&localHandshakeFail),
		ClientsAttached:  atomic.LoadUint64(&localClientsAttached),
		ClientsRejected:  atomic.LoadUint64(&localClientsRejected),
		ClientsActive:    atomic.LoadUint64(&localClientsActive),
		ClientsEvicted:   atomic.LoadUint64(&localClientsEvicted),
		ShelfAllocations: atomic.LoadUint64(&localShelfAllocations),
		Errors:           atomic.LoadUint64(&localErrors),
	}
}

// IncFrameRx records one inbound frame of the given type.
func IncFrameRx(frameType string) {
	FramesRx.WithLabelValues(frameType).Inc()
	atomic.AddUint64(&localFramesRx, 1)
}

// IncFrameTx records one outbound frame of the given type.
func IncFrameTx(frameType string) {
	FramesTx.WithLabelValues(frameType).Inc()
	atomic.AddUint64(&localFramesTx, 1)
}

func IncMalformed() {
	MalformedFrames.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

func IncHandshakeFailure() {
	HandshakeFailures.Inc()
	atomic.AddUint64(&localHandshakeFail, 1)
}

func IncClientAttached() {
	ClientsAttached.Inc()
	atomic.AddUint64(&localClientsAttached, 1)
}

func IncClientRejected() {
	ClientsRejected.Inc()
	atomic.AddUint64(&localClientsRejected, 1)
}

func SetClientsActive(n int) {
	ClientsActive.Set(float64(n))
	atomic.StoreUint64(&localClientsActive, uint64(n))
}

func IncClientEvicted() {
	ClientsEvicted.Inc()
	atomic.AddUint64(&localClientsEvicted, 1)
}

func IncShelfAllocation() {
	ShelfAllocations.Inc()
	atomic.AddUint64(&localShelfAllocations, 1)
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{
		ErrLinkRead, ErrLinkWrite, ErrHandshake,
		ErrLocalRead, ErrLocalWrite, ErrAckTimeout, ErrRemoteReset,
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
	if fn == nil {
		return true
	}
	return fn()
}

// Ready is a concise alias used at call sites.
func Ready() bool { return IsReady() }
