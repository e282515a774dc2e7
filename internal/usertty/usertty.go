// Package usertty implements clientsess.UserTTY against the process's
// real controlling terminal: raw-mode toggling via golang.org/x/term,
// mirroring cec.c's rawon/rawoff pair, and window-size discovery via
// the same unix.IoctlGetWinsize call the hauntty client attach path
// uses before starting a session.
package usertty

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// TTY wraps the process's stdin/stdout as a clientsess.UserTTY.
type TTY struct {
	in  *os.File
	out *os.File
}

// New returns a TTY reading from in and writing to out, both of which
// must refer to the same terminal for EnterRaw to apply.
func New(in, out *os.File) *TTY {
	return &TTY{in: in, out: out}
}

// Stdio returns a TTY wired to os.Stdin and os.Stdout, the normal case
// for cmd/cec.
func Stdio() *TTY {
	return New(os.Stdin, os.Stdout)
}

func (t *TTY) Read(p []byte) (int, error)  { return t.in.Read(p) }
func (t *TTY) Write(p []byte) (int, error) { return t.out.Write(p) }

// EnterRaw puts the terminal into raw mode and returns a function that
// restores the prior state. Every clientsess.Session.Run call defers
// the restore func so a crash or a clean exit both leave the user's
// shell in cooked mode, matching cec.c's exits() guarantee.
func (t *TTY) EnterRaw() (func() error, error) {
	fd := int(t.in.Fd())
	prev, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("usertty: enter raw mode: %w", err)
	}
	return func() error {
		return term.Restore(fd, prev)
	}, nil
}

// WindowSize reports the current terminal size in rows and columns.
// Nothing in this module calls it; the handshake carries no window size.
func (t *TTY) WindowSize() (rows, cols int, err error) {
	ws, err := unix.IoctlGetWinsize(int(t.in.Fd()), unix.TIOCGWINSZ)
	if err != nil {
		return 0, 0, fmt.Errorf("usertty: get window size: %w", err)
	}
	return int(ws.Row), int(ws.Col), nil
}
