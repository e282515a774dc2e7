package link

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrAsyncClosed is returned by AsyncSender.Send once Close has run.
var ErrAsyncClosed = errors.New("link: async sender closed")

// AsyncHooks let a caller observe AsyncSender's outcomes without the
// sender itself depending on a metrics package.
type AsyncHooks struct {
	// OnError is called when the underlying LinkIO.Send fails.
	OnError func(error)
	// OnDrop is called when the outbound buffer is full; its returned
	// error becomes Send's return value. A nil hook means drops are
	// silent and Send still returns nil (best effort).
	OnDrop func() error
}

// AsyncSender funnels frame writes through a single goroutine so a
// blocked or slow LinkIO.Send (a full NIC queue, a wedged raw socket)
// never stalls the caller — mirroring how the teacher's serial and
// SocketCAN writers kept a wedged device from blocking the hub.
// Muxer's dispatch loop uses one of these instead of calling
// LinkIO.Send directly from within the event loop.
type AsyncSender struct {
	mu     sync.Mutex
	ch     chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	link   LinkIO
	hooks  AsyncHooks
	closed atomic.Bool
}

// NewAsyncSender starts a worker goroutine draining a buffered channel
// of size buf into lnk.Send.
func NewAsyncSender(parent context.Context, lnk LinkIO, buf int, hooks AsyncHooks) *AsyncSender {
	ctx, cancel := context.WithCancel(parent)
	a := &AsyncSender{
		ch:     make(chan []byte, buf),
		ctx:    ctx,
		cancel: cancel,
		link:   lnk,
		hooks:  hooks,
	}
	a.wg.Add(1)
	go a.loop()
	return a
}

func (a *AsyncSender) loop() {
	defer a.wg.Done()
	for {
		select {
		case frame, ok := <-a.ch:
			if !ok {
				return
			}
			if err := a.link.Send(frame); err != nil && a.hooks.OnError != nil {
				a.hooks.OnError(err)
			}
		case <-a.ctx.Done():
			return
		}
	}
}

// Send enqueues frame for asynchronous transmission. If the buffer is
// full it invokes OnDrop (if set) and returns its error instead of
// blocking.
func (a *AsyncSender) Send(frame []byte) error {
	if a.closed.Load() {
		return ErrAsyncClosed
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed.Load() {
		return ErrAsyncClosed
	}
	select {
	case a.ch <- frame:
		return nil
	default:
		if a.hooks.OnDrop != nil {
			return a.hooks.OnDrop()
		}
		return nil
	}
}

// Close stops the worker and waits for it to drain its current frame.
// Queued-but-undelivered frames are discarded.
func (a *AsyncSender) Close() {
	if a.closed.Swap(true) {
		return
	}
	a.cancel()
	a.mu.Lock()
	close(a.ch)
	a.mu.Unlock()
	a.wg.Wait()
}
