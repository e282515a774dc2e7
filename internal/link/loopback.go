package link

import (
	"sync"
	"time"
)

// Loopback is an in-process LinkIO used by tests in place of a real raw
// socket: frames sent on one end arrive on the other, mirroring how the
// server and client smoke tests stand in for the teacher's TCP dial/accept
// pair without a real network.
type Loopback struct {
	mac  [6]byte
	peer *Loopback

	mu     sync.Mutex
	queue  [][]byte
	notify chan struct{}
	closed bool
}

// NewLoopbackPair returns two connected Loopback endpoints, a and b, such
// that a.Send delivers to b.Recv and vice versa.
func NewLoopbackPair(macA, macB [6]byte) (a, b *Loopback) {
	a = &Loopback{mac: macA, notify: make(chan struct{}, 1)}
	b = &Loopback{mac: macB, notify: make(chan struct{}, 1)}
	a.peer, b.peer = b, a
	return a, b
}

// Send does not stamp a source MAC onto frame the way the real link
// backend does — tests that need multiple simulated peers on one
// endpoint rely on being able to set Src explicitly per frame.
func (l *Loopback) Send(frame []byte) error {
	cp := append([]byte(nil), frame...)
	peer := l.peer
	peer.mu.Lock()
	if peer.closed {
		peer.mu.Unlock()
		return ErrTimeout
	}
	peer.queue = append(peer.queue, cp)
	peer.mu.Unlock()
	select {
	case peer.notify <- struct{}{}:
	default:
	}
	return nil
}

func (l *Loopback) Recv(deadline time.Time) ([]byte, error) {
	for {
		l.mu.Lock()
		if len(l.queue) > 0 {
			f := l.queue[0]
			l.queue = l.queue[1:]
			l.mu.Unlock()
			return f, nil
		}
		closed := l.closed
		l.mu.Unlock()
		if closed {
			return nil, ErrTimeout
		}

		var timer *time.Timer
		var timeoutCh <-chan time.Time
		if !deadline.IsZero() {
			d := time.Until(deadline)
			if d <= 0 {
				return nil, ErrTimeout
			}
			timer = time.NewTimer(d)
			timeoutCh = timer.C
		}
		select {
		case <-l.notify:
			if timer != nil {
				timer.Stop()
			}
		case <-timeoutCh:
			return nil, ErrTimeout
		}
	}
}

func (l *Loopback) LocalMAC() [6]byte { return l.mac }

// BringUp is a no-op: an in-process Loopback has no interface to re-up.
func (l *Loopback) BringUp() error { return nil }

func (l *Loopback) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	select {
	case l.notify <- struct{}{}:
	default:
	}
	return nil
}
