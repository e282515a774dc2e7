package discovery

import (
	"fmt"
	"strings"

	"github.com/kstaniek/go-cec/internal/wire"
)

// Row is one printable line of the selection-prompt table: a shelf
// number, the comma-joined MACs offering it, and the first MAC's
// description.
type Row struct {
	Shelf int
	MACs  []string
	Desc  string
}

// Rows groups sorted entries sharing a shelf number into single rows,
// mirroring showtable()'s comma-joined display.
func Rows(entries []Entry) []Row {
	var rows []Row
	for _, e := range entries {
		mac := wire.FormatMAC(e.MAC)
		if len(rows) > 0 && rows[len(rows)-1].Shelf == e.Shelf {
			last := &rows[len(rows)-1]
			last.MACs = append(last.MACs, mac)
			continue
		}
		rows = append(rows, Row{Shelf: e.Shelf, MACs: []string{mac}, Desc: e.Desc})
	}
	return rows
}

// FormatTable renders rows as the "SHELF | EA" selection table text,
// one line per row, header optional.
func FormatTable(rows []Row, header bool) string {
	var b strings.Builder
	if header {
		b.WriteString("SHELF | EA            | DESC\n")
	}
	for _, r := range rows {
		fmt.Fprintf(&b, "%-5d   %s    %s\n", r.Shelf, strings.Join(r.MACs, ","), r.Desc)
	}
	return b.String()
}
