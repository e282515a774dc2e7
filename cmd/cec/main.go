package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kstaniek/go-cec/internal/clientsess"
	"github.com/kstaniek/go-cec/internal/discovery"
	"github.com/kstaniek/go-cec/internal/link"
	"github.com/kstaniek/go-cec/internal/metrics"
	"github.com/kstaniek/go-cec/internal/usertty"
	"github.com/kstaniek/go-cec/internal/wire"
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("cec %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(1)
	}
	l := setupLogger(cfg.logLevel, cfg.quiet)

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
	go func() {
		sigs := make(chan os.Signal, 2)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		<-sigs
		cancel()
	}()

	filter := discovery.Filter{}
	if cfg.shelfSet {
		filter.Shelf = &cfg.shelf
	}
	if cfg.macSet {
		filter.MAC = &cfg.mac
	}

	entries, err := discovery.Probe(ctx, lnk, cfg.waitSecs, filter)
	if err != nil {
		l.Error("discovery_failed", "error", err)
		os.Exit(1)
	}

	if cfg.probeOnly {
		rows := discovery.Rows(entries)
		fmt.Print(discovery.FormatTable(rows, true))
		return
	}

	sel, ok := resolveSelection(cfg, entries)
	if !ok {
		in := bufio.NewReader(os.Stdin)
		for {
			s, err := promptSelect(entries, in, os.Stdout)
			if errors.Is(err, errRediscover) {
				entries, err = discovery.Probe(ctx, lnk, cfg.waitSecs, discovery.Filter{})
				if err != nil {
					l.Error("discovery_failed", "error", err)
					os.Exit(1)
				}
				continue
			}
			if errors.Is(err, errQuit) {
				return
			}
			if err != nil {
				l.Error("selection_failed", "error", err)
				os.Exit(1)
			}
			sel = s
			break
		}
	}

	peer, conn, err := resolvePeer(entries, sel)
	if err != nil {
		l.Error("no_such_shelf", "error", err)
		os.Exit(1)
	}

	tty := usertty.Stdio()
	restore, err := tty.EnterRaw()
	if err != nil {
		l.Error("raw_mode_failed", "error", err)
		os.Exit(1)
	}
	defer restore()

	hooks := clientsess.Hooks{
		OnState:           func(st clientsess.State) { l.Debug("session_state", "state", st.String()) },
		OnMalformed:       func() { metrics.IncMalformed() },
		OnHandshakeFailed: func() { metrics.IncHandshakeFailure() },
	}

	sess := clientsess.New(lnk, tty, peer, conn,
		clientsess.WithWaitSecs(cfg.waitSecs),
		clientsess.WithEscape(cfg.escape),
		clientsess.WithHooks(hooks),
		clientsess.WithLogger(l),
	)

	if err := sess.Handshake(ctx); err != nil {
		l.Error("handshake_failed", "error", err)
		os.Exit(1)
	}
	if !cfg.quiet {
		fmt.Fprintf(os.Stderr, "connected to shelf %d (%s)\r\n", sel.shelf, wire.FormatMAC(peer))
	}

	if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		l.Error("session_ended", "error", err)
		os.Exit(1)
	}
}

// resolveSelection short-circuits the interactive prompt when the
// operator supplied -s/-m explicitly on the command line.
func resolveSelection(cfg *appConfig, entries []discovery.Entry) (selection, bool) {
	if !cfg.shelfSet && !cfg.macSet {
		return selection{}, false
	}
	sel := selection{shelf: cfg.shelf}
	if cfg.macSet {
		sel.mac = cfg.mac
		sel.macSet = true
		if !cfg.shelfSet {
			for _, e := range entries {
				if e.MAC == cfg.mac {
					sel.shelf = e.Shelf
					break
				}
			}
		}
	}
	return sel, true
}

// resolvePeer maps a selection down to the single server MAC it
// names, disambiguating by MAC when a shelf is offered by more than
// one server. The connection id is this process's own opaque token,
// echoed back by the server to tell concurrent connections apart.
func resolvePeer(entries []discovery.Entry, sel selection) ([6]byte, uint8, error) {
	for _, e := range entries {
		if e.Shelf != sel.shelf {
			continue
		}
		if sel.macSet && e.MAC != sel.mac {
			continue
		}
		return e.MAC, uint8(os.Getpid()), nil
	}
	return [6]byte{}, 0, fmt.Errorf("shelf %d not offered by any server on this segment", sel.shelf)
}
