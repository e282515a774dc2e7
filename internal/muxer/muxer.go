// Package muxer implements the server-side session table: per-client
// state, the frame dispatch table, local-source fan-out, and idle
// eviction described for the Ethernet Console server.
package muxer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/kstaniek/go-cec/internal/backscroll"
	"github.com/kstaniek/go-cec/internal/link"
	"github.com/kstaniek/go-cec/internal/wire"
)

// MaxClients bounds the number of simultaneously attached sessions.
const MaxClients = 4

// DefaultIdleTimeout is how long a session may sit without a received
// frame before the server evicts it.
const DefaultIdleTimeout = 300 * time.Second

// readBurst is the chunk size read from the local source per iteration;
// it is capped at the frame payload limit so one read maps to one frame.
const readBurst = wire.MaxPayload

// record is one attached client's session state.
type record struct {
	addr         [6]byte
	conn         uint8
	inSeq        uint8 // last seq delivered from this client (dedupe)
	outSeq       uint8 // seq of the last frame stamped for this client
	lastActivity time.Time
	active       bool
}

// Hooks lets callers observe muxer activity without the muxer importing
// a metrics package directly, mirroring the teacher's AsyncTx Hooks shape.
type Hooks struct {
	OnFrameIn   func(wire.Type)
	OnFrameOut  func(wire.Type)
	OnError     func(error)
	OnMalformed func()
	OnAttach    func(addr [6]byte, conn uint8)
	OnDetach    func(addr [6]byte, conn uint8)
	OnReject    func(addr [6]byte)
	OnEvict     func(addr [6]byte, conn uint8)
}

// HostInfo is the Discover-reply payload content, sourced once at
// startup from uname(2) in the original and from runtime.GOOS/os.Hostname here.
type HostInfo struct {
	Nodename string
	Sysname  string
	Release  string
	Machine  string
}

// Muxer is the server's session multiplexer: one instance owns the link,
// the local source, the client table, and the ring backscroll.
type Muxer struct {
	link  link.LinkIO
	local io.ReadWriter

	shelf       int
	idleTimeout time.Duration
	host        HostInfo
	hooks       Hooks
	logger      *slog.Logger

	mu      sync.Mutex
	clients [MaxClients]record
	ring    backscroll.Ring

	asyncBuf int               // 0 disables async sending
	sender   *link.AsyncSender // set by Run when asyncBuf > 0
}

// Option configures a Muxer at construction, following the teacher's
// functional-options shape.
type Option func(*Muxer)

func WithIdleTimeout(d time.Duration) Option { return func(m *Muxer) { m.idleTimeout = d } }
func WithHooks(h Hooks) Option               { return func(m *Muxer) { m.hooks = h } }
func WithLogger(l *slog.Logger) Option       { return func(m *Muxer) { m.logger = l } }
func WithHostInfo(h HostInfo) Option         { return func(m *Muxer) { m.host = h } }

// WithAsyncSend routes every outgoing frame through a buffered,
// single-goroutine sender instead of calling LinkIO.Send inline from
// the dispatch loop, so a stalled raw socket can't wedge frame
// processing for every client. buf is the number of outstanding
// frames it will queue before dropping.
func WithAsyncSend(buf int) Option { return func(m *Muxer) { m.asyncBuf = buf } }

// New builds a Muxer bound to lnk for the wire and local for the
// byte-oriented local console source, claiming shelf number shelf.
func New(lnk link.LinkIO, local io.ReadWriter, shelf int, opts ...Option) *Muxer {
	m := &Muxer{
		link:        lnk,
		local:       local,
		shelf:       shelf,
		idleTimeout: DefaultIdleTimeout,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Muxer) logf(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Info(msg, args...)
	}
}

func (m *Muxer) onError(err error) {
	if m.hooks.OnError != nil {
		m.hooks.OnError(err)
	}
}

// rawSend transmits an already-encoded frame, via the async sender if
// WithAsyncSend was set, or directly otherwise.
func (m *Muxer) rawSend(encoded []byte) error {
	if m.sender != nil {
		return m.sender.Send(encoded)
	}
	return m.link.Send(encoded)
}

// Run drives the event loop until ctx is canceled or the local source
// reaches EOF, at which point every attached client is sent a shutdown
// notice and reset.
func (m *Muxer) Run(ctx context.Context) error {
	if m.asyncBuf > 0 {
		m.sender = link.NewAsyncSender(ctx, m.link, m.asyncBuf, link.AsyncHooks{
			OnError: func(err error) { m.onError(fmt.Errorf("muxer: async send: %w", err)) },
			OnDrop:  func() error { m.onError(fmt.Errorf("muxer: async send queue full")); return nil },
		})
		defer m.sender.Close()
	}

	frames := make(chan wire.Frame, 16)
	frameErrs := make(chan error, 1)
	go m.readFrames(ctx, frames, frameErrs)

	localOut := make(chan []byte, 16)
	localEOF := make(chan struct{})
	go m.readLocal(ctx, localOut, localEOF)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-frameErrs:
			return err
		case f := <-frames:
			m.dispatch(f)
		case b := <-localOut:
			m.fanOut(b)
		case <-localEOF:
			m.shutdownAll()
			return nil
		case <-ticker.C:
			m.evictIdle()
		}
	}
}

// readFrames decodes inbound wire frames and delivers them to out until
// ctx is canceled. Malformed frames (short reads, ethertype mismatch)
// are dropped after reporting OnMalformed, mirroring net_data()'s
// early-return behavior. A link-down recv error (ENETDOWN) triggers the
// original's re-up-and-continue recovery instead of ending the loop;
// any other recv error is fatal, same as the original's fatal("netrecv").
func (m *Muxer) readFrames(ctx context.Context, out chan<- wire.Frame, errs chan<- error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		raw, err := m.link.Recv(time.Now().Add(250 * time.Millisecond))
		if err == link.ErrTimeout {
			continue
		}
		if err != nil {
			if link.IsLinkDown(err) {
				m.onError(fmt.Errorf("muxer: link down, re-upping: %w", err))
				if upErr := m.link.BringUp(); upErr != nil {
					select {
					case errs <- fmt.Errorf("muxer: link bring-up: %w", upErr):
					default:
					}
					return
				}
				continue
			}
			select {
			case errs <- fmt.Errorf("muxer: link recv: %w", err):
			default:
			}
			return
		}
		f, err := wire.Decode(raw)
		if err != nil {
			if m.hooks.OnMalformed != nil {
				m.hooks.OnMalformed()
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

// readLocal pumps bursts of local-source bytes to out until EOF or ctx
// cancellation, signaling eof on clean EOF.
func (m *Muxer) readLocal(ctx context.Context, out chan<- []byte, eof chan<- struct{}) {
	buf := make([]byte, readBurst)
	for {
		n, err := m.local.Read(buf)
		if n > 0 {
			cp := append([]byte(nil), buf[:n]...)
			select {
			case out <- cp:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if err == io.EOF {
				close(eof)
				return
			}
			m.onError(fmt.Errorf("muxer: local read: %w", err))
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// DefaultHostInfo builds a HostInfo from the running process's
// hostname, for use as a WithHostInfo argument.
func DefaultHostInfo() HostInfo {
	name, _ := os.Hostname()
	return HostInfo{Nodename: name, Sysname: runtime.GOOS, Release: "unknown", Machine: "unknown"}
}
