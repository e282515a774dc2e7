// Package clientsess implements the client-side session state machine:
// the three-way handshake, the ack-gated connected-mode loop, and the
// escape-key menu.
package clientsess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kstaniek/go-cec/internal/link"
	"github.com/kstaniek/go-cec/internal/wire"
)

// State is the client's place in the handshake/connection lifecycle.
type State int

const (
	Disconnected State = iota
	WaitInitB
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case WaitInitB:
		return "wait_initb"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Errors surfaced to the interactive client loop (spec §7's session-level kinds).
var (
	ErrHandshakeFailed = errors.New("clientsess: connection failed")
	ErrAckTimeout      = errors.New("clientsess: connection timed out")
	ErrRemoteReset     = errors.New("clientsess: remote reset")
)

// UserTTY is the user-facing terminal collaborator: Read delivers raw
// keystrokes, Write echoes remote output, EnterRaw switches to raw mode
// and returns a restore function the caller must call on every exit
// path.
type UserTTY interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	EnterRaw() (restore func() error, err error)
}

// Hooks lets callers observe session activity (metrics, logging) without
// clientsess depending on a concrete metrics package.
type Hooks struct {
	OnFrameIn         func(wire.Type)
	OnFrameOut        func(wire.Type)
	OnState           func(State)
	OnMalformed       func()
	OnHandshakeFailed func()
}

// Session is one client's connection to a single server shelf.
type Session struct {
	link link.LinkIO
	tty  UserTTY

	peer   [6]byte
	conn   uint8
	escape byte // Ctrl-letter value 1..25, or DefaultEscape (Ctrl-])

	waitSecs   time.Duration
	ackTimeout time.Duration
	maxRetries int
	hooks      Hooks
	logger     *slog.Logger

	state  State
	outSeq uint8
}

// Option configures a Session at construction.
type Option func(*Session)

func WithWaitSecs(d time.Duration) Option   { return func(s *Session) { s.waitSecs = d } }
func WithAckTimeout(d time.Duration) Option { return func(s *Session) { s.ackTimeout = d } }
func WithEscape(b byte) Option              { return func(s *Session) { s.escape = b } }
func WithHooks(h Hooks) Option              { return func(s *Session) { s.hooks = h } }
func WithLogger(l *slog.Logger) Option      { return func(s *Session) { s.logger = l } }

// DefaultEscape is Ctrl-] (0x1d), matching the original default.
const DefaultEscape = 0x1d

// New builds a Session that will connect to peer over lnk using tty for
// user I/O, with connection tag conn.
func New(lnk link.LinkIO, tty UserTTY, peer [6]byte, conn uint8, opts ...Option) *Session {
	s := &Session{
		link:       lnk,
		tty:        tty,
		peer:       peer,
		conn:       conn,
		escape:     DefaultEscape,
		waitSecs:   2 * time.Second,
		ackTimeout: ackTimeout,
		maxRetries: maxRetries,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Session) setState(st State) {
	s.state = st
	if s.hooks.OnState != nil {
		s.hooks.OnState(st)
	}
}

func (s *Session) send(f *wire.Frame) error {
	if s.hooks.OnFrameOut != nil {
		s.hooks.OnFrameOut(f.Type)
	}
	return s.link.Send(wire.Encode(f))
}

// Handshake performs the InitA/InitB/InitC exchange, retrying InitA up
// to 3 times total while waiting waitSecs for each reply. On success the
// session is left in the Connected state (InitC already sent).
func (s *Session) Handshake(ctx context.Context) error {
	s.setState(WaitInitB)
	initA := wire.Frame{Dst: s.peer, Type: wire.InitA, Conn: s.conn}

	const maxAttempts = 3
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := s.send(&initA); err != nil {
			return fmt.Errorf("clientsess: send InitA: %w", err)
		}
		deadline := time.Now().Add(s.waitSecs)
		for time.Now().Before(deadline) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			raw, err := s.link.Recv(deadline)
			if err == link.ErrTimeout {
				break
			}
			if err != nil {
				return fmt.Errorf("clientsess: recv: %w", err)
			}
			f, err := wire.Decode(raw)
			if err != nil {
				if s.hooks.OnMalformed != nil {
					s.hooks.OnMalformed()
				}
				continue
			}
			if s.hooks.OnFrameIn != nil {
				s.hooks.OnFrameIn(f.Type)
			}
			if f.Type == wire.InitB && f.Conn == s.conn {
				initC := wire.Frame{Dst: s.peer, Type: wire.InitC, Conn: s.conn}
				if err := s.send(&initC); err != nil {
					return fmt.Errorf("clientsess: send InitC: %w", err)
				}
				s.setState(Connected)
				return nil
			}
		}
	}
	s.setState(Disconnected)
	if s.hooks.OnHandshakeFailed != nil {
		s.hooks.OnHandshakeFailed()
	}
	return ErrHandshakeFailed
}

// resendInitC re-synchronizes with a peer that may have restarted,
// without resetting local session state (spec §4.3: Offer during
// CONNECTED re-sends InitC rather than restarting the whole handshake).
func (s *Session) resendInitC() error {
	initC := wire.Frame{Dst: s.peer, Type: wire.InitC, Conn: s.conn}
	return s.send(&initC)
}
