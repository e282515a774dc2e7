package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kstaniek/go-cec/internal/discovery"
	"github.com/kstaniek/go-cec/internal/wire"
)

// errQuit is returned by promptSelect when the user typed "q".
var errQuit = errors.New("cec: quit at selection prompt")

// selection is the outcome of one trip through the prompt: connect to
// Shelf, optionally narrowed to MAC.
type selection struct {
	shelf  int
	mac    [6]byte
	macSet bool
}

// promptSelect prints the discovery table and reads one reply, asking
// again after an unparsable reply. "q" returns errQuit and "p" returns
// errRediscover, leaving the re-probe to the caller.
func promptSelect(entries []discovery.Entry, in *bufio.Reader, out io.Writer) (selection, error) {
	for {
		rows := discovery.Rows(entries)
		fmt.Fprint(out, discovery.FormatTable(rows, true))
		fmt.Fprint(out, "[#qp]: ")

		line, err := in.ReadString('\n')
		if err != nil && line == "" {
			return selection{}, err
		}
		line = strings.TrimSpace(line)

		switch {
		case line == "q":
			return selection{}, errQuit
		case line == "p":
			return selection{}, errRediscover
		default:
			sel, ok := parseSelection(line)
			if !ok {
				fmt.Fprintln(out, "invalid selection")
				continue
			}
			return sel, nil
		}
	}
}

// errRediscover signals promptSelect's caller to re-probe and show the
// table again.
var errRediscover = errors.New("cec: rediscover requested")

// parseSelection accepts "<shelf>" or "<shelf> <mac>".
func parseSelection(line string) (selection, bool) {
	fields := wire.Tokenize(line)
	if len(fields) == 0 || len(fields) > 2 {
		return selection{}, false
	}
	shelf, err := strconv.Atoi(fields[0])
	if err != nil || shelf < 0 {
		return selection{}, false
	}
	sel := selection{shelf: shelf}
	if len(fields) == 2 {
		mac, err := wire.ParseMAC(fields[1])
		if err != nil {
			return selection{}, false
		}
		sel.mac = mac
		sel.macSet = true
	}
	return sel, true
}
