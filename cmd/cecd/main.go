package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/kstaniek/go-cec/internal/discovery"
	"github.com/kstaniek/go-cec/internal/link"
	"github.com/kstaniek/go-cec/internal/localtty"
	"github.com/kstaniek/go-cec/internal/metrics"
	"github.com/kstaniek/go-cec/internal/muxer"
	"github.com/kstaniek/go-cec/internal/shelfalloc"
	"github.com/kstaniek/go-cec/internal/wire"
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("cecd %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(1)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)

	raw, err := link.Open(cfg.iface)
	if err != nil {
		l.Error("link_open_failed", "iface", cfg.iface, "error", err)
		os.Exit(1)
	}
	defer raw.Close()
	var lnk link.LinkIO = raw
	if cfg.debug {
		lnk = link.WithDebugDump(lnk, os.Stderr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shelf, err := allocateShelf(ctx, lnk, cfg, l)
	if err != nil {
		l.Error("shelf_allocation_failed", "error", err)
		os.Exit(1)
	}
	l.Info("shelf_assigned", "shelf", shelf)

	local, err := openLocalSource(cfg)
	if err != nil {
		l.Error("local_source_failed", "error", err)
		os.Exit(1)
	}
	defer local.Close()

	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}

	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logStatsEach, l, &wg)

	active := 0
	detach := func(addr [6]byte, conn uint8) {
		if active > 0 {
			active--
		}
		metrics.SetClientsActive(active)
	}
	hooks := muxer.Hooks{
		OnFrameIn:  func(t wire.Type) { metrics.IncFrameRx(t.String()) },
		OnFrameOut: func(t wire.Type) { metrics.IncFrameTx(t.String()) },
		OnError: func(err error) {
			metrics.IncError(metrics.ErrLinkWrite)
			l.Warn("muxer_error", "error", err)
		},
		OnMalformed: func() { metrics.IncMalformed() },
		OnAttach: func(addr [6]byte, conn uint8) {
			active++
			metrics.IncClientAttached()
			metrics.SetClientsActive(active)
			l.Info("client_attached", "mac", wire.FormatMAC(addr), "conn", conn)
		},
		OnDetach: func(addr [6]byte, conn uint8) {
			detach(addr, conn)
			l.Info("client_detached", "mac", wire.FormatMAC(addr), "conn", conn)
		},
		OnReject: func(addr [6]byte) {
			metrics.IncClientRejected()
			l.Warn("client_rejected", "mac", wire.FormatMAC(addr), "reason", "no free ports")
		},
		OnEvict: func(addr [6]byte, conn uint8) {
			detach(addr, conn)
			metrics.IncClientEvicted()
			l.Info("client_evicted", "mac", wire.FormatMAC(addr), "conn", conn, "reason", "idle timeout")
		},
	}

	m := muxer.New(lnk, local, shelf,
		muxer.WithIdleTimeout(cfg.idleSecs),
		muxer.WithHooks(hooks),
		muxer.WithLogger(l),
		muxer.WithHostInfo(muxer.DefaultHostInfo()),
		muxer.WithAsyncSend(cfg.asyncBuf),
	)

	metrics.SetReadinessFunc(func() bool { return ctx.Err() == nil })

	if cfg.mdnsEnable {
		cleanupMDNS, err := startMDNS(ctx, cfg, shelf)
		if err != nil {
			l.Warn("mdns_start_failed", "error", err)
		} else {
			defer cleanupMDNS()
		}
	}

	sigDone := make(chan os.Signal, 2)
	watchSignals(sigDone, cfg.reportPath, lnk.LocalMAC(), shelf, l)

	runErr := make(chan error, 1)
	go func() { runErr <- m.Run(ctx) }()

	select {
	case s := <-sigDone:
		l.Info("shutdown_signal", "signal", s.String())
		cancel()
		<-runErr
	case err := <-runErr:
		if err != nil && err != context.Canceled {
			l.Error("muxer_exit_error", "error", err)
		}
	}
	wg.Wait()
}

// allocateShelf picks this server's shelf number: the operator's
// explicit choice (rejected if already claimed) or an auto-allocated
// one based on a brief discovery probe of the segment.
func allocateShelf(ctx context.Context, lnk link.LinkIO, cfg *appConfig, l *slog.Logger) (int, error) {
	entries, err := discovery.Probe(ctx, lnk, cfg.waitSecs, discovery.Filter{})
	if err != nil && err != context.Canceled {
		l.Warn("startup_probe_failed", "error", err)
	}

	shelves := make([]int, 0, len(entries))
	for _, e := range entries {
		shelves = append(shelves, e.Shelf)
	}

	if cfg.shelfSet {
		if shelfalloc.InUse(shelves, cfg.shelf) {
			var incumbent string
			for _, e := range entries {
				if e.Shelf == cfg.shelf {
					incumbent = wire.FormatMAC(e.MAC)
					break
				}
			}
			return 0, fmt.Errorf("shelf %d already in use by %s", cfg.shelf, incumbent)
		}
		return cfg.shelf, nil
	}

	shelf := shelfalloc.Allocate(shelves)
	metrics.IncShelfAllocation()
	return shelf, nil
}

// openLocalSource builds the local console source per cfg.localMode.
func openLocalSource(cfg *appConfig) (localtty.Source, error) {
	switch cfg.localMode {
	case "shared":
		f, err := os.OpenFile(cfg.localDevice, os.O_RDWR, 0)
		if err != nil {
			return nil, fmt.Errorf("open shared device %q: %w", cfg.localDevice, err)
		}
		return localtty.NewShared(f), nil
	default:
		return localtty.NewChild(cfg.localCmd, cfg.localArgList(), 24, 80)
	}
}
