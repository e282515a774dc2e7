//go:build !linux

package link

import (
	"errors"
	"time"
)

// ErrUnsupported is returned on platforms without a raw-Ethernet backend.
var ErrUnsupported = errors.New("link: raw Ethernet sockets are only supported on linux")

// RawSocket is a non-functional placeholder kept so callers building for
// other platforms still compile; every method reports ErrUnsupported.
type RawSocket struct{}

func Open(iface string) (*RawSocket, error) { return nil, ErrUnsupported }

func (r *RawSocket) Send(frame []byte) error                 { return ErrUnsupported }
func (r *RawSocket) Recv(deadline time.Time) ([]byte, error) { return nil, ErrUnsupported }
func (r *RawSocket) LocalMAC() [6]byte                       { return [6]byte{} }
func (r *RawSocket) BringUp() error                          { return ErrUnsupported }
func (r *RawSocket) Close() error                            { return nil }

// IsLinkDown always reports false on platforms with no raw-Ethernet backend.
func IsLinkDown(err error) bool { return false }
