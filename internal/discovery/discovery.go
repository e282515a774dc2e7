// Package discovery implements the client-side shelf probe: broadcast a
// Discover frame, collect Offer replies for a bounded wait, and present
// them as a sorted, de-duplicated shelf table.
package discovery

import (
	"context"
	"sort"
	"time"

	"github.com/kstaniek/go-cec/internal/link"
	"github.com/kstaniek/go-cec/internal/wire"
)

// Entry is one discovered shelf/peer pairing.
type Entry struct {
	Shelf int
	MAC   [6]byte
	Desc  string
}

// Filter narrows which Offer replies are kept during a probe.
type Filter struct {
	Shelf *int
	MAC   *[6]byte
}

func (f Filter) matches(shelf int, mac [6]byte) bool {
	if f.Shelf != nil && *f.Shelf != shelf {
		return false
	}
	if f.MAC != nil && *f.MAC != mac {
		return false
	}
	return true
}

// active reports whether the filter constrains the search at all —
// when it does, the first match ends the probe early.
func (f Filter) active() bool { return f.Shelf != nil || f.MAC != nil }

// Probe broadcasts one Discover frame on lnk and collects Offer replies
// until wait elapses, ctx is canceled, or (when filter is active) the
// first matching reply arrives. The returned entries are sorted
// ascending by shelf number; entries sharing a shelf number retain
// their arrival order.
func Probe(ctx context.Context, lnk link.LinkIO, wait time.Duration, filter Filter) ([]Entry, error) {
	req := wire.Frame{Dst: wire.Broadcast, Type: wire.Discover}
	if err := lnk.Send(wire.Encode(&req)); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(wait)
	var entries []Entry

	for {
		select {
		case <-ctx.Done():
			return sortEntries(entries), ctx.Err()
		default:
		}
		if time.Now().After(deadline) {
			break
		}
		raw, err := lnk.Recv(deadline)
		if err == link.ErrTimeout {
			break
		}
		if err != nil {
			return sortEntries(entries), err
		}
		f, err := wire.Decode(raw)
		if err != nil {
			continue
		}
		if f.Type != wire.Offer || f.Len == 0 {
			continue
		}
		if wire.IsBroadcast(f.Dst) {
			continue
		}
		shelfStr, desc := wire.ParseOffer(string(f.Payload()))
		shelf := atoiLoose(shelfStr)
		if !filter.matches(shelf, f.Src) {
			continue
		}
		entries = append(entries, Entry{Shelf: shelf, MAC: f.Src, Desc: desc})
		if filter.active() {
			return entries, nil
		}
	}
	return sortEntries(entries), nil
}

// sortEntries performs a stable ascending sort by shelf number, relying
// on SliceStable to preserve arrival order among entries sharing a shelf.
func sortEntries(entries []Entry) []Entry {
	out := append([]Entry(nil), entries...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Shelf < out[j].Shelf
	})
	return out
}

func atoiLoose(s string) int {
	n := 0
	neg := false
	for i, c := range s {
		if i == 0 && c == '-' {
			neg = true
			continue
		}
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		n = -n
	}
	return n
}
