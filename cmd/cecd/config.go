package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type appConfig struct {
	iface        string
	shelf        int
	shelfSet     bool
	waitSecs     time.Duration
	idleSecs     time.Duration
	debug        bool
	logFormat    string
	logLevel     string
	metricsAddr  string
	asyncBuf     int
	localMode    string // "child" or "shared"
	localCmd     string
	localArgs    string
	localDevice  string
	reportPath   string
	mdnsEnable   bool
	mdnsName     string
	logStatsEach time.Duration
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	iface := flag.String("i", "eth0", "interface to bind the raw Ethernet socket to")
	shelf := flag.Int("s", -1, "explicit shelf number to request (-1 = auto-allocate)")
	waitSecs := flag.Duration("w", 2*time.Second, "probe timeout when checking for a shelf collision at startup")
	idleSecs := flag.Duration("idle", 300*time.Second, "idle client eviction threshold")
	debug := flag.Bool("d", false, "hex-dump frames to stderr")
	logFormat := flag.String("log-format", "text", "log format: text|json")
	logLevel := flag.String("log-level", "info", "log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics listen address (e.g. :9100); empty disables")
	asyncBuf := flag.Int("async-buf", 64, "outbound frame queue depth for the async sender (0 disables async sending)")
	localMode := flag.String("local-mode", "child", "local source: child (spawn a PTY-backed program) or shared (attach an existing device)")
	localCmd := flag.String("local-cmd", "/bin/sh", "program to run as the local source in child mode")
	localArgs := flag.String("local-args", "", "space-separated arguments for -local-cmd")
	localDevice := flag.String("local-device", "", "device path to attach in shared mode")
	reportPath := flag.String("report", "", "file to write \"<shelf> <mac>\\n\" to on SIGUSR1; empty disables")
	mdnsEnable := flag.Bool("advertise", false, "publish hostname and shelf over mDNS for operator convenience")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default cecd-<hostname>)")
	logStatsEach := flag.Duration("log-stats-interval", 0, "if >0, periodically log metrics counters")
	showVersion := flag.Bool("v", false, "print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	cfg.iface = *iface
	cfg.shelf = *shelf
	cfg.shelfSet = *shelf >= 0
	cfg.waitSecs = *waitSecs
	cfg.idleSecs = *idleSecs
	cfg.debug = *debug
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.asyncBuf = *asyncBuf
	cfg.localMode = *localMode
	cfg.localCmd = *localCmd
	cfg.localArgs = *localArgs
	cfg.localDevice = *localDevice
	cfg.reportPath = *reportPath
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName
	cfg.logStatsEach = *logStatsEach

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

func (c *appConfig) localArgList() []string {
	if c.localArgs == "" {
		return nil
	}
	return strings.Fields(c.localArgs)
}

// validate performs basic semantic validation of the parsed configuration.
// It does not attempt to open devices or sockets — only checks values/ranges.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	switch c.localMode {
	case "child", "shared":
	default:
		return fmt.Errorf("invalid local-mode: %s", c.localMode)
	}
	if c.localMode == "shared" && c.localDevice == "" {
		return errors.New("local-device is required when local-mode=shared")
	}
	if c.waitSecs <= 0 {
		return errors.New("w must be > 0")
	}
	if c.idleSecs <= 0 {
		return errors.New("idle must be > 0")
	}
	if c.asyncBuf < 0 {
		return errors.New("async-buf must be >= 0")
	}
	return nil
}

// applyEnvOverrides maps CECD_* environment variables to config fields
// unless a corresponding flag was explicitly set. Duration accepts Go
// time.ParseDuration format.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }
	if _, ok := set["i"]; !ok {
		if v, ok := get("CECD_IFACE"); ok && v != "" {
			c.iface = v
		}
	}
	if _, ok := set["s"]; !ok {
		if v, ok := get("CECD_SHELF"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.shelf = n
				c.shelfSet = n >= 0
			} else if firstErr == nil {
				firstErr = fmt.Errorf("invalid CECD_SHELF: %w", err)
			}
		}
	}
	if _, ok := set["w"]; !ok {
		if v, ok := get("CECD_WAIT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.waitSecs = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid CECD_WAIT: %w", err)
			}
		}
	}
	if _, ok := set["idle"]; !ok {
		if v, ok := get("CECD_IDLE"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.idleSecs = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid CECD_IDLE: %w", err)
			}
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("CECD_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("CECD_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("CECD_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["advertise"]; !ok {
		if v, ok := get("CECD_ADVERTISE"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.mdnsEnable = true
			case "0", "false", "no", "off":
				c.mdnsEnable = false
			}
		}
	}
	return firstErr
}
