package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kstaniek/go-cec/internal/wire"
)

// watchSignals handles SIGUSR1 (write "<shelf> <mac>\n" to reportPath)
// in a background goroutine, and sends the signal on done once on
// SIGINT/SIGTERM for the caller to select on. SIGCHLD needs no explicit
// handling here: the child's PTY read returns io.EOF when it exits, and
// localtty.Child.Close calls cmd.Wait to reap it — Go's exec package
// does the job alarm(2)+waitpid(2) did in the original.
func watchSignals(done chan<- os.Signal, reportPath string, localMAC [6]byte, shelf int, l *slog.Logger) {
	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)
	go func() {
		for s := range sigCh {
			if s == syscall.SIGUSR1 {
				if reportPath == "" {
					continue
				}
				line := fmt.Sprintf("%d %s\n", shelf, wire.FormatMAC(localMAC))
				if err := os.WriteFile(reportPath, []byte(line), 0o644); err != nil {
					l.Error("report_write_failed", "path", reportPath, "error", err)
				}
				continue
			}
			done <- s
			return
		}
	}()
}
