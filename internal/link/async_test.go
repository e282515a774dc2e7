package link

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// recordingLink counts sends and can be made to fail or stall on demand.
type recordingLink struct {
	mu      chan struct{}
	sent    atomic.Int64
	fail    error
	stallMs int
}

func (r *recordingLink) Send(frame []byte) error {
	if r.stallMs > 0 {
		time.Sleep(time.Duration(r.stallMs) * time.Millisecond)
	}
	r.sent.Add(1)
	return r.fail
}
func (r *recordingLink) Recv(time.Time) ([]byte, error) { return nil, ErrTimeout }
func (r *recordingLink) LocalMAC() [6]byte              { return [6]byte{} }
func (r *recordingLink) BringUp() error                 { return nil }
func (r *recordingLink) Close() error                   { return nil }

func TestAsyncSender_DeliversInOrder(t *testing.T) {
	rl := &recordingLink{}
	a := NewAsyncSender(context.Background(), rl, 4, AsyncHooks{})
	defer a.Close()

	for i := 0; i < 3; i++ {
		if err := a.Send([]byte{byte(i)}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) && rl.sent.Load() < 3 {
		time.Sleep(5 * time.Millisecond)
	}
	if rl.sent.Load() != 3 {
		t.Fatalf("got %d sends, want 3", rl.sent.Load())
	}
}

func TestAsyncSender_DropsWhenFull(t *testing.T) {
	rl := &recordingLink{stallMs: 150}
	var drops atomic.Int64
	errOverflow := errors.New("overflow")
	a := NewAsyncSender(context.Background(), rl, 1, AsyncHooks{
		OnDrop: func() error { drops.Add(1); return errOverflow },
	})
	defer a.Close()

	if err := a.Send([]byte("a")); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := a.Send([]byte("b")); !errors.Is(err, errOverflow) {
		t.Fatalf("got %v, want overflow", err)
	}
	if drops.Load() != 1 {
		t.Fatalf("got %d drops, want 1", drops.Load())
	}
}

func TestAsyncSender_OnErrorFires(t *testing.T) {
	sendErr := errors.New("send failed")
	rl := &recordingLink{fail: sendErr}
	var errs atomic.Int64
	a := NewAsyncSender(context.Background(), rl, 2, AsyncHooks{
		OnError: func(error) { errs.Add(1) },
	})
	defer a.Close()

	_ = a.Send([]byte("x"))
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) && errs.Load() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if errs.Load() == 0 {
		t.Fatalf("expected OnError to fire")
	}
}

func TestAsyncSender_SendAfterCloseFails(t *testing.T) {
	rl := &recordingLink{}
	a := NewAsyncSender(context.Background(), rl, 2, AsyncHooks{})
	a.Close()
	if err := a.Send([]byte("x")); !errors.Is(err, ErrAsyncClosed) {
		t.Fatalf("got %v, want ErrAsyncClosed", err)
	}
}
