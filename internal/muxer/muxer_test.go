package muxer

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kstaniek/go-cec/internal/link"
	"github.com/kstaniek/go-cec/internal/wire"
)

// fakeLocal is an io.ReadWriter test double for the server's local
// console source: writes from dispatched Data frames are captured, and
// the test drives Read output through the embedded pipe writer.
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

func (f *fakeLocal) Writes() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.writes...)
}

func setup(t *testing.T) (client *link.Loopback, m *Muxer, cancel context.CancelFunc) {
	t.Helper()
	clientMAC := [6]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x01}
	serverMAC := [6]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x02}
	c, s := link.NewLoopbackPair(clientMAC, serverMAC)
	local := newFakeLocal()
	m = New(s, local, 7, WithIdleTimeout(time.Hour), WithHostInfo(HostInfo{Nodename: "host1", Sysname: "linux", Release: "6.0", Machine: "x86_64"}))

	ctx, cancelFn := context.WithCancel(context.Background())
	go m.Run(ctx)
	return c, m, cancelFn
}

func recvFrame(t *testing.T, c *link.Loopback) wire.Frame {
	t.Helper()
	raw, err := c.Recv(time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	f, err := wire.Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return f
}

func sendFrame(t *testing.T, c *link.Loopback, f wire.Frame) {
	t.Helper()
	if err := c.Send(wire.Encode(&f)); err != nil {
		t.Fatalf("send: %v", err)
	}
}

func TestInitA_GetsInitB(t *testing.T) {
	c, _, cancel := setup(t)
	defer cancel()
	sendFrame(t, c, wire.Frame{Type: wire.InitA, Conn: 3})
	got := recvFrame(t, c)
	if got.Type != wire.InitB || got.Conn != 3 {
		t.Fatalf("got %+v", got)
	}
}

func TestInitC_AllocatesSlotAndReplaysBackscroll(t *testing.T) {
	c, m, cancel := setup(t)
	defer cancel()

	m.fanOut([]byte("earlier output"))

	sendFrame(t, c, wire.Frame{Type: wire.InitC, Conn: 5, Seq: 1})
	got := recvFrame(t, c)
	if got.Type != wire.Data {
		t.Fatalf("want Data, got %s", got.Type)
	}
	if !strings.HasPrefix(string(got.Payload()), "[Connected]\r\n") {
		t.Fatalf("missing connected banner: %q", got.Payload())
	}
	if !strings.Contains(string(got.Payload()), "earlier output") {
		t.Fatalf("missing backscroll replay: %q", got.Payload())
	}
}

func TestInitC_AlreadyConnectedReplies(t *testing.T) {
	c, _, cancel := setup(t)
	defer cancel()
	sendFrame(t, c, wire.Frame{Type: wire.InitC, Conn: 1, Seq: 1})
	_ = recvFrame(t, c)
	sendFrame(t, c, wire.Frame{Type: wire.InitC, Conn: 1, Seq: 1})
	got := recvFrame(t, c)
	if got.Type != wire.Data || !strings.Contains(string(got.Payload()), "Connected") {
		t.Fatalf("got %+v", got)
	}
}

func TestInitC_NoFreeSlots(t *testing.T) {
	c, _, cancel := setup(t)
	defer cancel()
	for i := uint8(0); i < MaxClients; i++ {
		sendFrame(t, c, wire.Frame{Type: wire.InitC, Conn: i, Seq: 1})
		_ = recvFrame(t, c)
	}
	sendFrame(t, c, wire.Frame{Type: wire.InitC, Conn: 99, Seq: 1})
	got := recvFrame(t, c)
	if got.Type != wire.Reset || string(got.Payload()) != "no free ports" {
		t.Fatalf("got %+v payload=%q", got, got.Payload())
	}
}

func TestData_WritesLocalAndAcks(t *testing.T) {
	c, m, cancel := setup(t)
	defer cancel()
	sendFrame(t, c, wire.Frame{Type: wire.InitC, Conn: 2, Seq: 1})
	_ = recvFrame(t, c)

	f := wire.Frame{Type: wire.Data, Conn: 2, Seq: 9}
	_ = f.SetPayload([]byte("hi"))
	sendFrame(t, c, f)
	ack := recvFrame(t, c)
	if ack.Type != wire.Ack || ack.Seq != 9 {
		t.Fatalf("got %+v", ack)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(m.local.(*fakeLocal).Writes()) > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	writes := m.local.(*fakeLocal).Writes()
	if len(writes) != 1 || string(writes[0]) != "hi" {
		t.Fatalf("got writes %v", writes)
	}
}

func TestData_UnknownClientGetsReset(t *testing.T) {
	c, _, cancel := setup(t)
	defer cancel()
	f := wire.Frame{Type: wire.Data, Conn: 77, Seq: 1}
	_ = f.SetPayload([]byte("x"))
	sendFrame(t, c, f)
	got := recvFrame(t, c)
	if got.Type != wire.Reset || string(got.Payload()) != "connection closed" {
		t.Fatalf("got %+v", got)
	}
}

func TestDiscover_RepliesOffer(t *testing.T) {
	c, _, cancel := setup(t)
	defer cancel()
	sendFrame(t, c, wire.Frame{Type: wire.Discover})
	got := recvFrame(t, c)
	if got.Type != wire.Offer {
		t.Fatalf("want Offer, got %s", got.Type)
	}
	shelf, desc := wire.ParseOffer(string(got.Payload()))
	if shelf != "7" {
		t.Fatalf("shelf = %q", shelf)
	}
	if !strings.Contains(desc, "host1") {
		t.Fatalf("desc = %q", desc)
	}
}

func TestReset_ClearsSlot(t *testing.T) {
	c, _, cancel := setup(t)
	defer cancel()
	sendFrame(t, c, wire.Frame{Type: wire.InitC, Conn: 4, Seq: 1})
	_ = recvFrame(t, c)
	sendFrame(t, c, wire.Frame{Type: wire.Reset, Conn: 4, Seq: 1})

	// Slot should now be free: a fresh InitC should allocate immediately
	// rather than report "already connected".
	time.Sleep(20 * time.Millisecond)
	sendFrame(t, c, wire.Frame{Type: wire.InitC, Conn: 4, Seq: 2})
	got := recvFrame(t, c)
	if !strings.HasPrefix(string(got.Payload()), "[Connected]\r\n") {
		t.Fatalf("expected fresh connect banner, got %q", got.Payload())
	}
}

func TestFanOut_ReachesAttachedClient(t *testing.T) {
	c, m, cancel := setup(t)
	defer cancel()
	sendFrame(t, c, wire.Frame{Type: wire.InitC, Conn: 6, Seq: 1})
	_ = recvFrame(t, c)

	fl := m.local.(*fakeLocal)
	go fl.pw.Write([]byte("console says hi"))

	got := recvFrame(t, c)
	if got.Type != wire.Data || !bytes.Contains(got.Payload(), []byte("console says hi")) {
		t.Fatalf("got %+v", got)
	}
}

func TestEvictIdle_ResetsStaleClient(t *testing.T) {
	clientMAC := [6]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x01}
	serverMAC := [6]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x02}
	c, s := link.NewLoopbackPair(clientMAC, serverMAC)
	local := newFakeLocal()
	m := New(s, local, 1, WithIdleTimeout(30*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	sendFrame(t, c, wire.Frame{Type: wire.InitC, Conn: 8, Seq: 1})
	_ = recvFrame(t, c)

	got := recvFrame(t, c)
	if got.Type != wire.Reset {
		t.Fatalf("want eviction Reset, got %s", got.Type)
	}
}
