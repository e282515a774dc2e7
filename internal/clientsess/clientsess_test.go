package clientsess

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/kstaniek/go-cec/internal/link"
	"github.com/kstaniek/go-cec/internal/wire"
)

// fakeTTY is a test double for UserTTY: input is fed through an
// io.Pipe, output is captured in a buffer, and EnterRaw just counts
// calls so tests can assert terminal mode is always restored.
type fakeTTY struct {
	pr *io.PipeReader
	pw *io.PipeWriter

	mu        sync.Mutex
	out       bytes.Buffer
	restored  int
	rawActive int
}

func newFakeTTY() *fakeTTY {
	pr, pw := io.Pipe()
	return &fakeTTY{pr: pr, pw: pw}
}

func (f *fakeTTY) Read(p []byte) (int, error) { return f.pr.Read(p) }

func (f *fakeTTY) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.out.Write(p)
}

func (f *fakeTTY) EnterRaw() (func() error, error) {
	f.mu.Lock()
	f.rawActive++
	f.mu.Unlock()
	return func() error {
		f.mu.Lock()
		f.restored++
		f.mu.Unlock()
		return nil
	}, nil
}

func (f *fakeTTY) Output() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.out.String()
}

func TestHandshake_Success(t *testing.T) {
	clientMAC := [6]byte{1}
	serverMAC := [6]byte{2}
	c, srv := link.NewLoopbackPair(clientMAC, serverMAC)

	go func() {
		raw, err := srv.Recv(time.Now().Add(time.Second))
		if err != nil {
			return
		}
		f, _ := wire.Decode(raw)
		if f.Type != wire.InitA {
			return
		}
		reply := wire.Frame{Dst: f.Src, Type: wire.InitB, Conn: f.Conn}
		srv.Send(wire.Encode(&reply))
	}()

	tty := newFakeTTY()
	s := New(c, tty, serverMAC, 0x42, WithWaitSecs(500*time.Millisecond))
	if err := s.Handshake(context.Background()); err != nil {
		t.Fatalf("handshake: %v", err)
	}
	if s.state != Connected {
		t.Fatalf("state = %v, want Connected", s.state)
	}

	raw, err := srv.Recv(time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("expected InitC at server: %v", err)
	}
	f, _ := wire.Decode(raw)
	if f.Type != wire.InitC {
		t.Fatalf("got %s, want InitC", f.Type)
	}
}

func TestHandshake_TimesOutAfterRetries(t *testing.T) {
	clientMAC := [6]byte{1}
	serverMAC := [6]byte{2}
	c, srv := link.NewLoopbackPair(clientMAC, serverMAC)

	tty := newFakeTTY()
	s := New(c, tty, serverMAC, 0x1, WithWaitSecs(15*time.Millisecond))

	received := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, err := srv.Recv(time.Now().Add(200 * time.Millisecond))
			if err != nil {
				return
			}
			received++
		}
	}()

	err := s.Handshake(context.Background())
	if err != ErrHandshakeFailed {
		t.Fatalf("got %v, want ErrHandshakeFailed", err)
	}
	<-done
	if received != 3 {
		t.Fatalf("expected 3 InitA attempts, server saw %d", received)
	}
}

func TestRun_DeliversDataAndDropsDuplicate(t *testing.T) {
	clientMAC := [6]byte{1}
	serverMAC := [6]byte{2}
	c, srv := link.NewLoopbackPair(clientMAC, serverMAC)
	tty := newFakeTTY()
	s := New(c, tty, serverMAC, 0x5, WithAckTimeout(2*time.Second))
	s.setState(Connected)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	f := wire.Frame{Dst: clientMAC, Src: serverMAC, Type: wire.Data, Conn: 0x5, Seq: 9}
	_ = f.SetPayload([]byte("hello"))
	srv.Send(wire.Encode(&f))
	// Duplicate.
	srv.Send(wire.Encode(&f))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && tty.Output() == "" {
		time.Sleep(time.Millisecond)
	}
	if got := tty.Output(); got != "hello" {
		t.Fatalf("got output %q, want single delivery of %q", got, "hello")
	}

	cancel()
	<-done
	if tty.restored == 0 {
		t.Fatalf("expected terminal mode restored")
	}
}

func TestRun_StopAndWaitRetransmitsThenTimesOut(t *testing.T) {
	clientMAC := [6]byte{1}
	serverMAC := [6]byte{2}
	c, srv := link.NewLoopbackPair(clientMAC, serverMAC)
	tty := newFakeTTY()
	s := New(c, tty, serverMAC, 0x7, WithAckTimeout(20*time.Millisecond))
	s.setState(Connected)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	go func() {
		tty.pw.Write([]byte("x"))
	}()

	count := 0
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		raw, err := srv.Recv(time.Now().Add(50 * time.Millisecond))
		if err != nil {
			continue
		}
		f, derr := wire.Decode(raw)
		if derr == nil && f.Type == wire.Data {
			count++
			if count >= 3 {
				break
			}
		}
	}
	if count < 3 {
		t.Fatalf("expected at least 3 retransmissions, saw %d", count)
	}

	err := <-done
	if err != ErrAckTimeout {
		t.Fatalf("got %v, want ErrAckTimeout", err)
	}
}

func TestRun_RemoteResetEndsSession(t *testing.T) {
	clientMAC := [6]byte{1}
	serverMAC := [6]byte{2}
	c, srv := link.NewLoopbackPair(clientMAC, serverMAC)
	tty := newFakeTTY()
	s := New(c, tty, serverMAC, 0x9)
	s.setState(Connected)

	ctx := context.Background()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	reset := wire.Frame{Dst: clientMAC, Src: serverMAC, Type: wire.Reset, Conn: 0x9}
	srv.Send(wire.Encode(&reset))

	err := <-done
	if err != ErrRemoteReset {
		t.Fatalf("got %v, want ErrRemoteReset", err)
	}
}

func TestEscapeMenu_QuitSendsResetAndEndsSession(t *testing.T) {
	clientMAC := [6]byte{1}
	serverMAC := [6]byte{2}
	c, srv := link.NewLoopbackPair(clientMAC, serverMAC)
	tty := newFakeTTY()
	s := New(c, tty, serverMAC, 0xA, WithEscape(0x1d))
	s.setState(Connected)

	ctx := context.Background()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	go func() {
		tty.pw.Write([]byte{0x1d})
		time.Sleep(10 * time.Millisecond)
		tty.pw.Write([]byte("q"))
	}()

	var sawReset bool
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		raw, err := srv.Recv(time.Now().Add(100 * time.Millisecond))
		if err != nil {
			continue
		}
		f, derr := wire.Decode(raw)
		if derr == nil && f.Type == wire.Reset {
			sawReset = true
			break
		}
	}
	if !sawReset {
		t.Fatalf("expected Reset frame after 'q' in escape menu")
	}
	<-done
}
