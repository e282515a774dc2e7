package link

import (
	"testing"
	"time"
)

func TestLoopback_SendRecv(t *testing.T) {
	a, b := NewLoopbackPair([6]byte{1}, [6]byte{2})
	if err := a.Send([]byte("hello")); err != nil {
		t.Fatalf("send: %v", err)
	}
	got, err := b.Recv(time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestLoopback_RecvTimesOutWithNoData(t *testing.T) {
	a, _ := NewLoopbackPair([6]byte{1}, [6]byte{2})
	_, err := a.Recv(time.Now().Add(20 * time.Millisecond))
	if err != ErrTimeout {
		t.Fatalf("want ErrTimeout, got %v", err)
	}
}

func TestLoopback_RecvBlocksUntilDeadlineZero(t *testing.T) {
	a, b := NewLoopbackPair([6]byte{1}, [6]byte{2})
	done := make(chan struct{})
	go func() {
		b.Send([]byte("late"))
		close(done)
	}()
	got, err := a.Recv(time.Time{})
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if string(got) != "late" {
		t.Fatalf("got %q", got)
	}
	<-done
}

func TestLoopback_CloseUnblocksRecv(t *testing.T) {
	a, _ := NewLoopbackPair([6]byte{1}, [6]byte{2})
	go func() {
		time.Sleep(10 * time.Millisecond)
		a.Close()
	}()
	_, err := a.Recv(time.Time{})
	if err != ErrTimeout {
		t.Fatalf("want ErrTimeout after close, got %v", err)
	}
}

func TestLoopback_LocalMAC(t *testing.T) {
	a, b := NewLoopbackPair([6]byte{0xAA}, [6]byte{0xBB})
	if a.LocalMAC() != ([6]byte{0xAA}) {
		t.Fatalf("unexpected mac")
	}
	if b.LocalMAC() != ([6]byte{0xBB}) {
		t.Fatalf("unexpected mac")
	}
}
