package usertty

import (
	"os"
	"testing"
)

// openTestTTY opens the controlling terminal directly, skipping the
// test when none is available (e.g. under a CI runner with no tty).
func openTestTTY(t *testing.T) *os.File {
	t.Helper()
	f, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		t.Skipf("no controlling tty available: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestEnterRaw_RestoresPriorState(t *testing.T) {
	f := openTestTTY(t)
	tt := New(f, f)

	restore, err := tt.EnterRaw()
	if err != nil {
		t.Fatalf("EnterRaw: %v", err)
	}
	if err := restore(); err != nil {
		t.Fatalf("restore: %v", err)
	}
}

func TestWindowSize_ReturnsNonZero(t *testing.T) {
	f := openTestTTY(t)
	tt := New(f, f)

	rows, cols, err := tt.WindowSize()
	if err != nil {
		t.Fatalf("WindowSize: %v", err)
	}
	if rows == 0 || cols == 0 {
		t.Fatalf("got rows=%d cols=%d, want non-zero", rows, cols)
	}
}

func TestWrite_EmptyDoesNotError(t *testing.T) {
	f := openTestTTY(t)
	tt := New(f, f)
	if _, err := tt.Write([]byte("")); err != nil {
		t.Fatalf("write: %v", err)
	}
}
