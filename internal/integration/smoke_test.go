// Package integration drives a real client session against a real
// server muxer over an in-process loopback link pair, the way the
// teacher's internal/server/smoke_test.go exercises its reader/writer
// pair against a fake backend.
package integration

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kstaniek/go-cec/internal/clientsess"
	"github.com/kstaniek/go-cec/internal/link"
	"github.com/kstaniek/go-cec/internal/muxer"
)

// fakeLocal is the server's local console: writes from the shelf are
// captured, and pushing a line through in simulates local output that
// the muxer should fan out to the attached client.
type fakeLocal struct {
	pr *io.PipeReader
	pw *io.PipeWriter

	mu     sync.Mutex
	writes [][]byte
}

func newFakeLocal() *fakeLocal {
	pr, pw := io.Pipe()
	return &fakeLocal{pr: pr, pw: pw}
}

func (f *fakeLocal) Read(p []byte) (int, error) { return f.pr.Read(p) }

func (f *fakeLocal) Write(p []byte) (int, error) {
	f.mu.Lock()
	f.writes = append(f.writes, append([]byte(nil), p...))
	f.mu.Unlock()
	return len(p), nil
}

func (f *fakeLocal) Close() error { return f.pw.Close() }

func (f *fakeLocal) Writes() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var b strings.Builder
	for _, w := range f.writes {
		b.Write(w)
	}
	return b.String()
}

// fakeTTY is the client's user terminal: input is fed through an
// io.Pipe, remote output lands in a buffer.
type fakeTTY struct {
	pr *io.PipeReader
	pw *io.PipeWriter

	mu  sync.Mutex
	out strings.Builder
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

func (f *fakeTTY) EnterRaw() (func() error, error) { return func() error { return nil }, nil }

func (f *fakeTTY) Output() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.out.String()
}

// TestEndToEnd_HandshakeDataRoundTripAndLocalFanout connects a real
// clientsess.Session to a real muxer.Muxer over a loopback link,
// exchanges a line of keyboard input, then pushes a line through the
// server's local source and confirms the client receives it.
func TestEndToEnd_HandshakeDataRoundTripAndLocalFanout(t *testing.T) {
	clientMAC := [6]byte{0, 1, 2, 3, 4, 5}
	serverMAC := [6]byte{0, 1, 2, 3, 4, 6}
	clientLink, serverLink := link.NewLoopbackPair(clientMAC, serverMAC)

	local := newFakeLocal()
	defer local.Close()
	m := muxer.New(serverLink, local, 3, muxer.WithIdleTimeout(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serverDone := make(chan error, 1)
	go func() { serverDone <- m.Run(ctx) }()

	tty := newFakeTTY()
	sess := clientsess.New(clientLink, tty, serverMAC, 0x11, clientsess.WithWaitSecs(2*time.Second))

	if err := sess.Handshake(ctx); err != nil {
		t.Fatalf("handshake: %v", err)
	}

	clientDone := make(chan error, 1)
	go func() { clientDone <- sess.Run(ctx) }()

	if _, err := tty.pw.Write([]byte("hello\n")); err != nil {
		t.Fatalf("write keystrokes: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(local.Writes(), "hello") {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !strings.Contains(local.Writes(), "hello") {
		t.Fatalf("local source never saw keystrokes, got %q", local.Writes())
	}

	if _, err := local.pw.Write([]byte("shelf output\r\n")); err != nil {
		t.Fatalf("write local output: %v", err)
	}

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(tty.Output(), "shelf output") {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !strings.Contains(tty.Output(), "shelf output") {
		t.Fatalf("client never saw local fan-out, got %q", tty.Output())
	}

	cancel()
	<-clientDone
	<-serverDone
}
