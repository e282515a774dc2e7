package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatMAC renders a MAC as colon-separated uppercase hex, e.g. "00:30:48:86:5F:1E".
func FormatMAC(addr [6]byte) string {
	var b strings.Builder
	b.Grow(17)
	for i, o := range addr {
		if i > 0 {
			b.WriteByte(':')
		}
		fmt.Fprintf(&b, "%02X", o)
	}
	return b.String()
}

// ParseMAC parses a colon- or hyphen-separated MAC address. It also
// accepts the compact form of 12 hex digits with no separators, mirroring
// the original parseether's tolerance for compact notation.
func ParseMAC(s string) ([6]byte, error) {
	var addr [6]byte
	s = strings.TrimSpace(s)
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ':' || r == '-' })
	if len(parts) == 6 {
		for i, p := range parts {
			v, err := strconv.ParseUint(p, 16, 8)
			if err != nil {
				return addr, fmt.Errorf("wire: bad mac %q: %w", s, err)
			}
			addr[i] = byte(v)
		}
		return addr, nil
	}
	// Compact form: 12 hex digits, no separators.
	compact := strings.ReplaceAll(s, ":", "")
	compact = strings.ReplaceAll(compact, "-", "")
	if len(compact) != 12 {
		return addr, fmt.Errorf("wire: bad mac %q: want 6 octets", s)
	}
	for i := range addr {
		v, err := strconv.ParseUint(compact[i*2:i*2+2], 16, 8)
		if err != nil {
			return addr, fmt.Errorf("wire: bad mac %q: %w", s, err)
		}
		addr[i] = byte(v)
	}
	return addr, nil
}
