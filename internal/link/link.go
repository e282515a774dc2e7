// Package link defines LinkIO, the raw-Ethernet transport CEC runs over,
// and the platform backends that implement it.
package link

import (
	"errors"
	"time"
)

// ErrTimeout is returned by Recv when no frame arrives before its deadline.
var ErrTimeout = errors.New("link: read timeout")

// LinkIO is the raw-Ethernet collaborator the client and server session
// engines are built against. Frames passed in and out are complete
// Ethernet frames (destination, source, ethertype, payload) as produced
// by the wire codec — LinkIO never interprets them.
type LinkIO interface {
	// Send transmits one frame. A backend may stamp its own address into
	// the source MAC field first (RawSocket does; Loopback does not).
	Send(frame []byte) error
	// Recv blocks until a frame carrying EtherType arrives or deadline
	// passes (zero deadline means no timeout).
	Recv(deadline time.Time) ([]byte, error)
	// LocalMAC returns the hardware address frames are sent from.
	LocalMAC() [6]byte
	// BringUp ensures the underlying network interface is
	// administratively up and running, mirroring the original's
	// netup() recovery call after a link-down condition. Backends with
	// no interface to administer (loopback, stub) just return nil.
	BringUp() error
	// Close releases the underlying socket.
	Close() error
}
