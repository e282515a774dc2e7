package muxer

import (
	"fmt"
	"time"

	"github.com/kstaniek/go-cec/internal/wire"
)

// dispatch implements the per-frame-type action table.
func (m *Muxer) dispatch(f wire.Frame) {
	if m.hooks.OnFrameIn != nil {
		m.hooks.OnFrameIn(f.Type)
	}
	switch f.Type {
	case wire.InitA:
		m.replyInitB(f)
	case wire.InitC:
		m.handleInitC(f)
	case wire.Data:
		m.handleData(f)
	case wire.Ack:
		m.handleAck(f)
	case wire.Reset:
		m.handleReset(f)
	case wire.Discover:
		m.replyOffer(f)
	}
}

func (m *Muxer) send(f *wire.Frame) {
	if m.hooks.OnFrameOut != nil {
		m.hooks.OnFrameOut(f.Type)
	}
	if err := m.rawSend(wire.Encode(f)); err != nil {
		m.onError(fmt.Errorf("muxer: send %s: %w", f.Type, err))
	}
}

func (m *Muxer) replyInitB(f wire.Frame) {
	reply := wire.Frame{Dst: f.Src, Type: wire.InitB, Conn: f.Conn, Seq: f.Seq}
	m.send(&reply)
}

func (m *Muxer) replyOffer(f wire.Frame) {
	payload := fmt.Sprintf("%d\t%s %s %s %s", m.shelf, m.host.Nodename, m.host.Sysname, m.host.Release, m.host.Machine)
	reply := wire.Frame{Dst: f.Src, Type: wire.Offer, Conn: f.Conn, Seq: f.Seq}
	_ = reply.SetPayload([]byte(payload))
	m.send(&reply)
}

// findLocked returns the index of the client matching (addr, conn), or -1.
func (m *Muxer) findLocked(addr [6]byte, conn uint8) int {
	for i := range m.clients {
		if m.clients[i].active && m.clients[i].addr == addr && m.clients[i].conn == conn {
			return i
		}
	}
	return -1
}

func (m *Muxer) freeSlotLocked() int {
	for i := range m.clients {
		if !m.clients[i].active {
			return i
		}
	}
	return -1
}

func (m *Muxer) handleInitC(f wire.Frame) {
	m.mu.Lock()

	if i := m.findLocked(f.Src, f.Conn); i != -1 {
		m.clients[i].outSeq++
		seq := m.clients[i].outSeq
		m.mu.Unlock()
		reply := wire.Frame{Dst: f.Src, Type: wire.Data, Conn: f.Conn, Seq: seq}
		_ = reply.SetPayload([]byte("[Connected]\n\n"))
		m.send(&reply)
		return
	}

	n := m.freeSlotLocked()
	if n == -1 {
		m.mu.Unlock()
		if m.hooks.OnReject != nil {
			m.hooks.OnReject(f.Src)
		}
		reply := wire.Frame{Dst: f.Src, Type: wire.Reset, Conn: f.Conn, Seq: f.Seq}
		_ = reply.SetPayload([]byte("no free ports"))
		m.send(&reply)
		return
	}

	m.clients[n] = record{
		addr:         f.Src,
		conn:         f.Conn,
		inSeq:        f.Seq,
		outSeq:       f.Seq + 1,
		lastActivity: time.Now(),
		active:       true,
	}

	announce := fmt.Sprintf("\r\n[New console %d attached (%s-%d)]\r\n", n, wire.FormatMAC(f.Src), f.Conn)
	others := m.activeExceptLocked(n)
	backscrollTail := m.ring.Tail(wire.MaxPayload - len("[Connected]\r\n"))
	m.mu.Unlock()

	if m.hooks.OnAttach != nil {
		m.hooks.OnAttach(f.Src, f.Conn)
	}

	for _, o := range others {
		m.sendData(o, []byte(announce))
	}

	payload := append([]byte("[Connected]\r\n"), backscrollTail...)
	if len(payload) > wire.MaxPayload {
		payload = payload[:wire.MaxPayload]
	}
	reply := wire.Frame{Dst: f.Src, Type: wire.Data, Conn: f.Conn, Seq: f.Seq + 1}
	_ = reply.SetPayload(payload)
	m.send(&reply)
}

func (m *Muxer) handleData(f wire.Frame) {
	m.mu.Lock()
	i := m.findLocked(f.Src, f.Conn)
	if i == -1 {
		m.mu.Unlock()
		reply := wire.Frame{Dst: f.Src, Type: wire.Reset, Conn: f.Conn, Seq: f.Seq}
		_ = reply.SetPayload([]byte("connection closed"))
		m.send(&reply)
		return
	}
	m.clients[i].lastActivity = time.Now()
	dup := f.Seq == m.clients[i].inSeq
	m.clients[i].inSeq = f.Seq
	m.mu.Unlock()

	// A repeated seq is a retransmit whose Ack was lost: ack it again
	// without writing the payload a second time.
	if !dup {
		if _, err := m.local.Write(f.Payload()); err != nil {
			m.onError(fmt.Errorf("muxer: local write: %w", err))
		}
	}

	ack := wire.Frame{Dst: f.Src, Type: wire.Ack, Conn: f.Conn, Seq: f.Seq}
	m.send(&ack)
}

func (m *Muxer) handleAck(f wire.Frame) {
	m.mu.Lock()
	if i := m.findLocked(f.Src, f.Conn); i != -1 {
		m.clients[i].lastActivity = time.Now()
	}
	m.mu.Unlock()
}

func (m *Muxer) handleReset(f wire.Frame) {
	m.mu.Lock()
	i := m.findLocked(f.Src, f.Conn)
	if i == -1 {
		m.mu.Unlock()
		return
	}
	m.clients[i] = record{}
	others := m.activeExceptLocked(i)
	m.mu.Unlock()

	if m.hooks.OnDetach != nil {
		m.hooks.OnDetach(f.Src, f.Conn)
	}
	msg := fmt.Sprintf("\r\n[Console (%d) disconnected (%s-%d)]\r\n", i, wire.FormatMAC(f.Src), f.Conn)
	for _, o := range others {
		m.sendData(o, []byte(msg))
	}
}

// activeExceptLocked returns a snapshot of active slot indices other than
// skip, for broadcast fan-out. Caller holds m.mu.
func (m *Muxer) activeExceptLocked(skip int) []int {
	var out []int
	for i := range m.clients {
		if i != skip && m.clients[i].active {
			out = append(out, i)
		}
	}
	return out
}

// sendData stamps and sends a Data frame carrying payload to client slot idx.
func (m *Muxer) sendData(idx int, payload []byte) {
	m.mu.Lock()
	if !m.clients[idx].active {
		m.mu.Unlock()
		return
	}
	m.clients[idx].outSeq++
	f := wire.Frame{Dst: m.clients[idx].addr, Type: wire.Data, Conn: m.clients[idx].conn, Seq: m.clients[idx].outSeq}
	m.mu.Unlock()
	if len(payload) > wire.MaxPayload {
		payload = payload[:wire.MaxPayload]
	}
	_ = f.SetPayload(payload)
	m.send(&f)
}

// fanOut appends b to the ring backscroll and transmits it to every
// active client as a Data frame stamped with that client's own seq.
func (m *Muxer) fanOut(b []byte) {
	m.mu.Lock()
	m.ring.Write(b)
	active := m.activeExceptLocked(-1)
	m.mu.Unlock()

	for _, idx := range active {
		m.sendData(idx, b)
	}
}

// shutdownAll notifies every active client of local-source EOF and
// resets their slots, mirroring the "[System shutdown]" sequence.
func (m *Muxer) shutdownAll() {
	m.mu.Lock()
	active := m.activeExceptLocked(-1)
	m.mu.Unlock()

	for _, idx := range active {
		m.sendData(idx, []byte("[System shutdown]"))
		m.mu.Lock()
		c := m.clients[idx]
		m.clients[idx] = record{}
		m.mu.Unlock()
		reset := wire.Frame{Dst: c.addr, Type: wire.Reset, Conn: c.conn}
		m.send(&reset)
	}
}

// evictIdle resets any client whose last activity predates idleTimeout.
func (m *Muxer) evictIdle() {
	now := time.Now()
	m.mu.Lock()
	var stale []int
	for i := range m.clients {
		if m.clients[i].active && now.Sub(m.clients[i].lastActivity) > m.idleTimeout {
			stale = append(stale, i)
		}
	}
	var snapshots []record
	for _, i := range stale {
		snapshots = append(snapshots, m.clients[i])
		m.clients[i] = record{}
	}
	m.mu.Unlock()

	for _, c := range snapshots {
		if m.hooks.OnEvict != nil {
			m.hooks.OnEvict(c.addr, c.conn)
		}
		reset := wire.Frame{Dst: c.addr, Type: wire.Reset, Conn: c.conn}
		m.send(&reset)
	}
}
