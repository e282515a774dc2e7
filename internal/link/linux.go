//go:build linux

package link

import (
	"errors"
	"fmt"
	"net"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/kstaniek/go-cec/internal/wire"
)

// IsLinkDown reports whether err indicates the bound interface went
// administratively down (ENETDOWN) — the one condition netrecv() in the
// original special-cases for its re-up-and-continue recovery path,
// distinct from every other recv failure, which is fatal.
func IsLinkDown(err error) bool {
	return errors.Is(err, unix.ENETDOWN)
}

// RawSocket is the Linux LinkIO backend: an AF_PACKET/SOCK_RAW socket bound
// to a single interface and filtered to the CEC ethertype, mirroring the
// raw-Ethernet fd the original client/server opened with PF_PACKET.
type RawSocket struct {
	fd       int
	ifindex  int
	ifname   string
	localMAC [6]byte
}

func htons(v uint16) uint16 { return (v<<8)&0xff00 | v>>8 }

// Open creates and binds a RawSocket on iface, filtered to the CEC
// ethertype so unrelated traffic never reaches Recv.
func Open(iface string) (*RawSocket, error) {
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(wire.EtherType)))
	if err != nil {
		return nil, fmt.Errorf("link: socket(AF_PACKET): %w", err)
	}
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("link: lookup %q: %w", iface, err)
	}
	sll := &unix.SockaddrLinklayer{
		Protocol: htons(wire.EtherType),
		Ifindex:  ifi.Index,
	}
	if err := unix.Bind(fd, sll); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("link: bind %q: %w", iface, err)
	}
	var mac [6]byte
	copy(mac[:], ifi.HardwareAddr)
	return &RawSocket{fd: fd, ifindex: ifi.Index, ifname: iface, localMAC: mac}, nil
}

// Send transmits frame on the bound interface. The source MAC field is
// overwritten with the interface's own hardware address before
// transmission, matching the codec's expectation that callers don't
// have to know their own address.
func (r *RawSocket) Send(frame []byte) error {
	copy(frame[6:12], r.localMAC[:])
	addr := unix.SockaddrLinklayer{
		Protocol: htons(wire.EtherType),
		Ifindex:  r.ifindex,
		Halen:    6,
	}
	copy(addr.Addr[:6], frame[0:6])
	return unix.Sendto(r.fd, frame, 0, &addr)
}

// Recv reads one CEC-ethertype frame, honoring deadline if non-zero.
func (r *RawSocket) Recv(deadline time.Time) ([]byte, error) {
	if !deadline.IsZero() {
		if err := unix.SetsockoptTimeval(r.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, timeval(deadline)); err != nil {
			return nil, fmt.Errorf("link: set recv timeout: %w", err)
		}
	}
	buf := make([]byte, 65535)
	n, _, err := unix.Recvfrom(r.fd, buf, 0)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("link: recvfrom: %w", err)
	}
	return buf[:n], nil
}

func (r *RawSocket) LocalMAC() [6]byte { return r.localMAC }

// ifreqFlags mirrors struct ifreq's name+flags layout (linux/if.h) for the
// SIOCGIFFLAGS/SIOCSIFFLAGS ioctls only.
type ifreqFlags struct {
	name  [unix.IFNAMSIZ]byte
	flags int16
	_     [14]byte // pad to sizeof(struct ifreq) == 32 on linux/amd64
}

func ioctlIfreqFlags(fd int, req uint, ifr *ifreqFlags) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(unsafe.Pointer(ifr)))
	if errno != 0 {
		return errno
	}
	return nil
}

// BringUp re-ups the bound interface, mirroring netup()/_netup(): open a
// throwaway AF_INET/SOCK_DGRAM control socket, read the current flags with
// SIOCGIFFLAGS, and if IFF_UP|IFF_RUNNING isn't already set, set it with
// SIOCSIFFLAGS. Used by the server's link-down recovery path (spec §7) —
// the real receive socket itself is untouched, only the interface state.
func (r *RawSocket) BringUp() error {
	ctlFd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return fmt.Errorf("link: open control socket: %w", err)
	}
	defer unix.Close(ctlFd)

	var req ifreqFlags
	copy(req.name[:], r.ifname)

	if err := ioctlIfreqFlags(ctlFd, unix.SIOCGIFFLAGS, &req); err != nil {
		return fmt.Errorf("link: SIOCGIFFLAGS %q: %w", r.ifname, err)
	}
	want := int16(unix.IFF_UP | unix.IFF_RUNNING)
	if req.flags&want == want {
		return nil
	}
	req.flags |= want
	if err := ioctlIfreqFlags(ctlFd, unix.SIOCSIFFLAGS, &req); err != nil {
		return fmt.Errorf("link: SIOCSIFFLAGS %q: %w", r.ifname, err)
	}
	return nil
}

func (r *RawSocket) Close() error { return unix.Close(r.fd) }

func timeval(deadline time.Time) *unix.Timeval {
	d := time.Until(deadline)
	if d < 0 {
		d = 0
	}
	tv := unix.NsecToTimeval(d.Nanoseconds())
	return &tv
}
