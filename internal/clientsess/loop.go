package clientsess

import (
	"context"
	"time"

	"github.com/kstaniek/go-cec/internal/link"
	"github.com/kstaniek/go-cec/internal/wire"
)

// Default stop-and-wait tuning, used when a Session is built without
// WithAckTimeout — matches the original 1-second/3-retry behavior.
const (
	ackTimeout = time.Second
	maxRetries = 3
)

// escapeAction is what the escape-key menu decided the connected-mode
// loop should do next.
type escapeAction int

const (
	escapeResume escapeAction = iota
	escapeQuit
	escapePassthrough
)

// Run drives the connected-mode event loop until the remote resets the
// session, the user quits via the escape menu, the ack timer exhausts
// its retries, or ctx is canceled. It always sends one Reset frame and
// restores terminal mode on the way out.
func (s *Session) Run(ctx context.Context) error {
	restore, err := s.tty.EnterRaw()
	if err != nil {
		return err
	}
	defer restore()

	frames := make(chan wire.Frame, 16)
	ferrs := make(chan error, 1)
	go s.readFrames(ctx, frames, ferrs)

	tokens := make(chan struct{}, 1)
	tokens <- struct{}{}
	input := make(chan []byte, 1)
	ierrs := make(chan error, 1)
	go s.readInput(ctx, tokens, input, ierrs)

	var (
		unacked          bool
		lastSent         wire.Frame
		retries          int
		lastDeliveredSeq uint8
		haveDelivered    bool
	)
	var ackTimer *time.Timer
	defer func() {
		if ackTimer != nil {
			ackTimer.Stop()
		}
	}()

	sendOut := func(payload []byte) {
		s.outSeq++
		f := wire.Frame{Dst: s.peer, Type: wire.Data, Conn: s.conn, Seq: s.outSeq}
		_ = f.SetPayload(payload)
		lastSent = f
		unacked = true
		retries = 0
		_ = s.send(&f)
		if ackTimer != nil {
			ackTimer.Stop()
		}
		ackTimer = time.NewTimer(s.ackTimeout)
	}

	finish := func(err error) error {
		reset := wire.Frame{Dst: s.peer, Type: wire.Reset, Conn: s.conn}
		_ = s.send(&reset)
		s.setState(Disconnected)
		return err
	}

	var timerC <-chan time.Time
	for {
		if ackTimer != nil {
			timerC = ackTimer.C
		} else {
			timerC = nil
		}
		select {
		case <-ctx.Done():
			return finish(ctx.Err())
		case err := <-ferrs:
			return finish(err)
		case err := <-ierrs:
			return finish(err)
		case f := <-frames:
			if s.hooks.OnFrameIn != nil {
				s.hooks.OnFrameIn(f.Type)
			}
			switch f.Type {
			case wire.Data:
				if f.Conn != s.conn {
					continue
				}
				if haveDelivered && f.Seq == lastDeliveredSeq {
					continue // duplicate
				}
				_, _ = s.tty.Write(f.Payload())
				lastDeliveredSeq = f.Seq
				haveDelivered = true
				ack := wire.Frame{Dst: f.Src, Type: wire.Ack, Conn: f.Conn, Seq: f.Seq}
				_ = s.send(&ack)
			case wire.Ack:
				if f.Conn != s.conn {
					continue
				}
				if unacked && f.Seq == lastSent.Seq {
					unacked = false
					if ackTimer != nil {
						ackTimer.Stop()
						ackTimer = nil
					}
					select {
					case tokens <- struct{}{}:
					default:
					}
				}
			case wire.Reset:
				if f.Conn != s.conn {
					continue
				}
				return finish(ErrRemoteReset)
			case wire.Offer:
				_ = s.resendInitC()
			}
		case data := <-input:
			if len(data) == 1 && data[0] == s.escape {
				action, err := s.runEscapeMenu()
				if err != nil {
					return finish(err)
				}
				switch action {
				case escapeQuit:
					return finish(nil)
				case escapePassthrough:
					sendOut([]byte{s.escape})
				default:
					select {
					case tokens <- struct{}{}:
					default:
					}
				}
				continue
			}
			sendOut(data)
		case <-timerC:
			if !unacked {
				continue
			}
			retries++
			if retries >= s.maxRetries {
				return finish(ErrAckTimeout)
			}
			_ = s.send(&lastSent)
			ackTimer = time.NewTimer(s.ackTimeout)
		}
	}
}

// readFrames decodes inbound wire frames until ctx is canceled or the
// link reports a non-timeout error.
func (s *Session) readFrames(ctx context.Context, out chan<- wire.Frame, errs chan<- error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		raw, err := s.link.Recv(time.Now().Add(250 * time.Millisecond))
		if err == link.ErrTimeout {
			continue
		}
		if err != nil {
			select {
			case errs <- err:
			default:
			}
			return
		}
		f, err := wire.Decode(raw)
		if err != nil {
			if s.hooks.OnMalformed != nil {
				s.hooks.OnMalformed()
			}
			continue
		}
		select {
		case out <- f:
		case <-ctx.Done():
			return
		}
	}
}

// readInput reads one byte at a time from the user tty, gated by
// tokens: each read must acquire a token, and the event loop only
// returns one once the previous outgoing frame has been acked (or after
// an escape-menu interaction that sends nothing).
func (s *Session) readInput(ctx context.Context, tokens <-chan struct{}, out chan<- []byte, errs chan<- error) {
	buf := make([]byte, 1)
	for {
		select {
		case <-ctx.Done():
			return
		case <-tokens:
		}
		n, err := s.tty.Read(buf)
		if err != nil {
			select {
			case errs <- err:
			default:
			}
			return
		}
		if n == 0 {
			continue
		}
		cp := []byte{buf[0]}
		select {
		case out <- cp:
		case <-ctx.Done():
			return
		}
	}
}

// runEscapeMenu prompts the user for a single-letter command once the
// escape byte has been seen, per spec §4.3.
func (s *Session) runEscapeMenu() (escapeAction, error) {
	_, _ = s.tty.Write([]byte("\r\n>>> "))
	buf := make([]byte, 1)
	for {
		n, err := s.tty.Read(buf)
		if err != nil {
			return escapeResume, err
		}
		if n == 0 {
			continue
		}
		switch buf[0] {
		case 'q', 'Q':
			return escapeQuit, nil
		case 'i', 'I':
			return escapePassthrough, nil
		case '.':
			return escapeResume, nil
		default:
			_, _ = s.tty.Write([]byte("\r\n>>> "))
		}
	}
}
