package link

import (
	"fmt"
	"io"
	"time"

	"github.com/kstaniek/go-cec/internal/wire"
)

// debugLink wraps a LinkIO and hex-dumps every frame that passes
// through it, mirroring the "-d" hex-dump-to-stderr flag both the
// original client and server expose.
type debugLink struct {
	LinkIO
	w io.Writer
}

// WithDebugDump wraps lnk so every sent and received frame is
// hex-dumped to w.
func WithDebugDump(lnk LinkIO, w io.Writer) LinkIO {
	return &debugLink{LinkIO: lnk, w: w}
}

func (d *debugLink) Send(frame []byte) error {
	fmt.Fprintln(d.w, "-> tx")
	wire.HexDump(d.w, frame)
	return d.LinkIO.Send(frame)
}

func (d *debugLink) Recv(deadline time.Time) ([]byte, error) {
	frame, err := d.LinkIO.Recv(deadline)
	if err == nil {
		fmt.Fprintln(d.w, "<- rx")
		wire.HexDump(d.w, frame)
	}
	return frame, err
}
