package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/grandcat/zeroconf"
)

// mdnsServiceType is operator tooling only — it never touches the CEC
// wire protocol, which has no IP layer to advertise over. See the
// zeroconf repurposing note in the design ledger.
const mdnsServiceType = "_cecd._tcp"

// startMDNS registers an mDNS service whose instance name defaults to
// cecd-<hostname> and whose TXT records carry the shelf number, version
// and commit. It is a no-op when cfg.mdnsEnable is false.
func startMDNS(ctx context.Context, cfg *appConfig, shelf int) (func(), error) {
	if !cfg.mdnsEnable {
		return func() {}, nil
	}
	instance := cfg.mdnsName
	if instance == "" {
		host, _ := os.Hostname()
		instance = fmt.Sprintf("cecd-%s", host)
	}
	meta := []string{
		fmt.Sprintf("shelf=%d", shelf),
		"version=" + version,
		"commit=" + commit,
	}
	// No TCP/UDP port is actually served by cecd; 0 records a
	// placeholder port, matching the "advertise, don't serve" intent.
	svc, err := zeroconf.Register(instance, mdnsServiceType, "local.", 0, meta, nil)
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
	return func() { close(done); svc.Shutdown(); time.Sleep(50 * time.Millisecond) }, nil
}
