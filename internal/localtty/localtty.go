// Package localtty supplies the "local source" side of a server session:
// the shell or console that client frames get fanned into and whose
// output gets fanned back out to every attached client. The original
// forked one NCA (network console agent) child per attached client
// (ec.c) or shared a single console across all of them (ec-drv.c);
// here a single goroutine-driven io.ReadWriter plays that role and
// Muxer fans frames in and out of it, so the fork-per-client and
// shared-source models collapse onto the same interface.
package localtty

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/creack/pty"
)

// Source is what internal/muxer expects for its local side: readable
// output to fan out to clients, writable input fanned in from them.
type Source interface {
	io.ReadWriter
	Close() error
}

// Child runs command as a child process connected over a PTY, mirroring
// ec.c's per-shelf NCA: command's stdout/stderr become the backscroll
// stream and its stdin receives whatever clients type.
type Child struct {
	cmd  *exec.Cmd
	ptmx *os.File
}

// NewChild starts name with args attached to a new PTY sized rows x
// cols. The child exits (and Read returns io.EOF) when the shell or
// program it runs exits, which Muxer treats as a shutdown signal for
// every attached client.
func NewChild(name string, args []string, rows, cols int) (*Child, error) {
	cmd := exec.Command(name, args...)
	cmd.Env = append(os.Environ(), "TERM=vt100")
	size := &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)}
	ptmx, err := pty.StartWithSize(cmd, size)
	if err != nil {
		return nil, fmt.Errorf("localtty: start %s: %w", name, err)
	}
	return &Child{cmd: cmd, ptmx: ptmx}, nil
}

func (c *Child) Read(p []byte) (int, error)  { return c.ptmx.Read(p) }
func (c *Child) Write(p []byte) (int, error) { return c.ptmx.Write(p) }

// Resize updates the PTY's reported window size, e.g. in response to a
// client's window-size hint.
func (c *Child) Resize(rows, cols int) error {
	return pty.Setsize(c.ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
}

// Close terminates the child process and releases the PTY.
func (c *Child) Close() error {
	_ = c.cmd.Process.Kill()
	err := c.ptmx.Close()
	_ = c.cmd.Wait()
	return err
}

// Shared wraps an already-open console device (e.g. a serial console
// or a bind-mounted tty) that every client shares without a PTY or a
// forked child, mirroring ec-drv.c's "-s" shared-device mode. Close
// calls the unexported closeFn when one is set and f.Close otherwise;
// NewShared leaves closeFn unset.
type Shared struct {
	f       io.ReadWriteCloser
	closeFn func() error
}

// NewShared wraps f as a Source. f is used as-is for Read/Write; Close
// delegates to f.Close.
func NewShared(f io.ReadWriteCloser) *Shared {
	return &Shared{f: f}
}

func (s *Shared) Read(p []byte) (int, error)  { return s.f.Read(p) }
func (s *Shared) Write(p []byte) (int, error) { return s.f.Write(p) }

func (s *Shared) Close() error {
	if s.closeFn != nil {
		return s.closeFn()
	}
	return s.f.Close()
}
