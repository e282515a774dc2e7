package main

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/kstaniek/go-cec/internal/wire"
)

type appConfig struct {
	iface      string
	shelf      int
	shelfSet   bool
	mac        [6]byte
	macSet     bool
	probeOnly  bool
	quiet      bool
	debug      bool
	escape     byte
	waitSecs   time.Duration
	logLevel   string
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{escape: 0x1d}
	iface := flag.String("i", "eth0", "interface to bind the raw Ethernet socket to")
	shelf := flag.Int("s", -1, "connect to this shelf number only (-1 = show the selection prompt)")
	mac := flag.String("m", "", "connect to the peer with this source MAC only")
	probeOnly := flag.Bool("p", false, "print the discovery table and exit")
	quiet := flag.Bool("q", false, "suppress informational output")
	debug := flag.Bool("d", false, "hex-dump frames to stderr")
	escape := flag.String("e", "]", "escape letter A..Y; session escape is Ctrl-letter (default ])")
	waitSecs := flag.Duration("w", 2*time.Second, "probe/handshake timeout")
	logLevel := flag.String("log-level", "info", "log level: debug|info|warn|error")
	showVersion := flag.Bool("v", false, "print version and exit")
	flag.Parse()

	cfg.iface = *iface
	cfg.shelf = *shelf
	cfg.shelfSet = *shelf >= 0
	cfg.probeOnly = *probeOnly
	cfg.quiet = *quiet
	cfg.debug = *debug
	cfg.waitSecs = *waitSecs
	cfg.logLevel = *logLevel

	if *mac != "" {
		m, err := wire.ParseMAC(*mac)
		if err != nil {
			fmt.Printf("invalid -m MAC address %q: %v\n", *mac, err)
			return nil, *showVersion
		}
		cfg.mac = m
		cfg.macSet = true
	}

	esc, err := parseEscape(*escape)
	if err != nil {
		fmt.Printf("invalid -e escape letter %q: %v\n", *escape, err)
		return nil, *showVersion
	}
	cfg.escape = esc

	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// parseEscape converts a single letter A..Y (case-insensitive) to its
// Ctrl-letter byte value, matching the original escape-char semantics.
// The default "]" maps to Ctrl-] (0x1d).
func parseEscape(s string) (byte, error) {
	if s == "]" {
		return 0x1d, nil
	}
	if len(s) != 1 {
		return 0, errors.New("must be exactly one letter")
	}
	c := s[0]
	if c >= 'a' && c <= 'z' {
		c -= 'a' - 'A'
	}
	if c < 'A' || c > 'Y' {
		return 0, errors.New("must be a letter A..Y")
	}
	return c - 'A' + 1, nil
}

func (c *appConfig) validate() error {
	if c.waitSecs <= 0 {
		return errors.New("w must be > 0")
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	return nil
}
