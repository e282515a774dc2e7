// Package wire implements the CEC frame codec: the fixed 18-byte header,
// the 60-byte Ethernet minimum, and the big-endian ethertype CEC runs
// under on the wire.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Type is the CEC frame type, carried in the 1-byte type field.
type Type uint8

const (
	InitA Type = iota
	InitB
	InitC
	Data
	Ack
	Discover
	Offer
	Reset
)

func (t Type) String() string {
	switch t {
	case InitA:
		return "InitA"
	case InitB:
		return "InitB"
	case InitC:
		return "InitC"
	case Data:
		return "Data"
	case Ack:
		return "Ack"
	case Discover:
		return "Discover"
	case Offer:
		return "Offer"
	case Reset:
		return "Reset"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

const (
	// EtherType is the CEC ethertype, fixed at 0xBCBC.
	EtherType = 0xBCBC
	// HeaderSize is the fixed header length: 6+6+2+1+1+1+1.
	HeaderSize = 18
	// MinFrameSize is the Ethernet minimum frame length frames are padded to.
	MinFrameSize = 60
	// MaxPayload is the largest payload a frame's len byte can carry.
	MaxPayload = 255
)

// Broadcast is the all-ones Ethernet broadcast address.
var Broadcast = [6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// Frame is one CEC wire frame: fixed header plus up to MaxPayload bytes
// of payload.
type Frame struct {
	Dst  [6]byte
	Src  [6]byte
	Type Type
	Conn uint8
	Seq  uint8
	Len  uint8
	Data [MaxPayload]byte
}

// Payload returns the valid prefix of Data, sized by Len.
func (f *Frame) Payload() []byte { return f.Data[:f.Len] }

// SetPayload copies p into Data and sets Len; p must be <= MaxPayload bytes.
func (f *Frame) SetPayload(p []byte) error {
	if len(p) > MaxPayload {
		return fmt.Errorf("wire: payload too large (%d > %d)", len(p), MaxPayload)
	}
	f.Len = uint8(len(p))
	copy(f.Data[:f.Len], p)
	return nil
}

// Errors returned by Decode; ProtocolReject conditions (§7 of the spec)
// are expected to be absorbed by callers, not surfaced to the user.
var (
	ErrShortFrame    = errors.New("wire: frame shorter than minimum length")
	ErrBadEtherType  = errors.New("wire: unexpected ethertype")
	ErrPayloadTooBig = errors.New("wire: payload length exceeds maximum")
)

// Encode serializes f into a zero-padded, at-least-60-byte wire frame.
// The source MAC the caller supplies may be overwritten by the link layer
// with its own local address before transmission; Encode does not care.
func Encode(f *Frame) []byte {
	total := HeaderSize + int(f.Len)
	if total < MinFrameSize {
		total = MinFrameSize
	}
	buf := make([]byte, total)
	copy(buf[0:6], f.Dst[:])
	copy(buf[6:12], f.Src[:])
	binary.BigEndian.PutUint16(buf[12:14], EtherType)
	buf[14] = byte(f.Type)
	buf[15] = f.Conn
	buf[16] = f.Seq
	buf[17] = f.Len
	copy(buf[HeaderSize:HeaderSize+int(f.Len)], f.Data[:f.Len])
	return buf
}

// Decode parses a received wire frame, rejecting anything shorter than
// MinFrameSize, carrying the wrong ethertype, or claiming a payload length
// beyond MaxPayload.
func Decode(b []byte) (Frame, error) {
	var f Frame
	if len(b) < MinFrameSize {
		return f, ErrShortFrame
	}
	if binary.BigEndian.Uint16(b[12:14]) != EtherType {
		return f, ErrBadEtherType
	}
	copy(f.Dst[:], b[0:6])
	copy(f.Src[:], b[6:12])
	f.Type = Type(b[14])
	f.Conn = b[15]
	f.Seq = b[16]
	ln := b[17]
	if int(ln) > MaxPayload {
		return f, ErrPayloadTooBig
	}
	f.Len = ln
	avail := len(b) - HeaderSize
	if avail < int(ln) {
		return f, ErrShortFrame
	}
	copy(f.Data[:ln], b[HeaderSize:HeaderSize+int(ln)])
	return f, nil
}

// IsBroadcast reports whether addr is the all-ones broadcast address.
func IsBroadcast(addr [6]byte) bool { return addr == Broadcast }
