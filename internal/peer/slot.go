// Package peer implements the per-connection state machine: the
// fixed-capacity slot table (spec §3 "Peer Slot") and the layered
// TCP/TLS/HTTP/WS read-write protocol (spec §4.3), grounded on the
// teacher's protocol/connection.go layering and on rs_tcp.c's
// handle_tcp_io/read_tcp/write_tcp for the non-blocking I/O contract.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package peer

import (
	"fmt"

	"github.com/eapache/queue"
	"github.com/momentics/ringsocket/api"
	"github.com/momentics/ringsocket/internal/wire"
)

// Layer is the current protocol at which a peer's bytes are being
// interpreted. Transitions are monotone: TCP -> (TLS ->) HTTP -> WS.
type Layer int

const (
	LayerNone Layer = iota
	LayerTCP
	LayerTLS
	LayerHTTP
	LayerWS
)

func (l Layer) String() string {
	switch l {
	case LayerNone:
		return "NONE"
	case LayerTCP:
		return "TCP"
	case LayerTLS:
		return "TLS"
	case LayerHTTP:
		return "HTTP"
	case LayerWS:
		return "WS"
	default:
		return fmt.Sprintf("Layer(%d)", int(l))
	}
}

// Mortality is a peer's position in its shutdown progression.
// Transitions are monotone: LIVE -> SHUTDOWN_WRITE -> SHUTDOWN_READ -> DEAD.
type Mortality int

const (
	MortalityLive Mortality = iota
	MortalityShutdownWrite
	MortalityShutdownRead
	MortalityDead
)

func (m Mortality) String() string {
	switch m {
	case MortalityLive:
		return "LIVE"
	case MortalityShutdownWrite:
		return "SHUTDOWN_WRITE"
	case MortalityShutdownRead:
		return "SHUTDOWN_READ"
	case MortalityDead:
		return "DEAD"
	default:
		return fmt.Sprintf("Mortality(%d)", int(m))
	}
}

// Slot holds one client connection's complete state. A slot is either
// entirely zeroed (free, Mortality == MortalityLive && Layer ==
// LayerNone && FD == 0) or fully populated (live) — the table never
// hands out a half-initialized slot.
type Slot struct {
	FD          int
	Layer       Layer
	Mortality   Mortality
	IsEncrypted bool
	IsWriting   bool
	OldWsize    int
	AppIndex    uint32

	// PendingWrite holds the original message start pointer a partial
	// write must resume from unchanged (spec §4.3 "the TLS write
	// contract requires identical input across retries" — honored here
	// even on the plain-TCP path, since retries share the same code).
	PendingWrite []byte

	// CloseAfterWrite is set when PendingWrite is the tail of an
	// app-requested close frame: once it finishes draining, the worker
	// begins this peer's shutdown progression using CloseAfterWriteCode
	// instead of waiting for a subsequent read or write-readiness event.
	CloseAfterWrite     bool
	CloseAfterWriteCode api.CloseCode

	// HandshakeBuf accumulates raw HTTP upgrade request bytes at
	// LayerHTTP until a full header block ("\r\n\r\n") has arrived, so
	// the handshake parser can run against a non-blocking bytes.Reader
	// instead of the live, possibly-partial stream.
	HandshakeBuf []byte

	Reassembler *wire.Reassembler

	// TLSSession is an opaque handle owned by the TLS layer (spec §1
	// marks certificate loading and the concrete TLS library as an
	// external collaborator); it is stored here only so layer
	// transitions can carry it along.
	TLSSession any
}

func (s *Slot) free() bool {
	return s.FD == 0 && s.Layer == LayerNone && s.Mortality == MortalityLive
}

func (s *Slot) reset() {
	*s = Slot{}
}

// Table is the fixed-capacity, 32-bit-indexed peer slot table owned by
// one worker. Free indices are served from a FIFO free list, matching
// the teacher's preference for FIFO-ordered reuse over LIFO reuse
// (spreads index reuse across time, easing debugging of stale client
// ids observed in logs).
type Table struct {
	slots []Slot
	free  *queue.Queue
	live  int

	workerIndex uint32
	metrics     PeersRecorder
}

// PeersRecorder receives live-peer-count updates. control's
// MetricsRegistry.RecordPeersLive satisfies this; tests and other
// callers that don't care about metrics simply never call SetMetrics.
type PeersRecorder interface {
	RecordPeersLive(workerIndex uint32, n int)
}

// NewTable creates a Table with the given fixed capacity.
func NewTable(capacity int) *Table {
	t := &Table{
		slots: make([]Slot, capacity),
		free:  queue.New(),
	}
	for i := capacity - 1; i >= 0; i-- {
		t.free.Add(uint32(i))
	}
	return t
}

// SetMetrics attaches an optional live-peer-count recorder, tagged
// under workerIndex. Must be called before any concurrent Alloc/
// Release use begins; a nil rec (the default) disables reporting.
func (t *Table) SetMetrics(workerIndex uint32, rec PeersRecorder) {
	t.workerIndex = workerIndex
	t.metrics = rec
}

func (t *Table) reportLive() {
	if t.metrics != nil {
		t.metrics.RecordPeersLive(t.workerIndex, t.live)
	}
}

// Cap returns the table's fixed capacity.
func (t *Table) Cap() int { return len(t.slots) }

// Live returns the number of currently occupied slots.
func (t *Table) Live() int { return t.live }

// Alloc reserves a free slot for a new TCP-layer, LIVE peer and returns
// its index. Returns api.ErrSlotTableFull if none remain.
func (t *Table) Alloc(fd int, isEncrypted bool, appIndex uint32) (uint32, *Slot, error) {
	if t.free.Length() == 0 {
		return 0, nil, api.ErrSlotTableFull
	}
	idx := t.free.Remove().(uint32)
	s := &t.slots[idx]
	s.FD = fd
	s.Layer = LayerTCP
	s.Mortality = MortalityLive
	s.IsEncrypted = isEncrypted
	s.AppIndex = appIndex
	s.Reassembler = nil
	t.live++
	t.reportLive()
	return idx, s, nil
}

// Get returns the slot at idx, or (nil, false) if idx is out of range
// or currently free.
func (t *Table) Get(idx uint32) (*Slot, bool) {
	if int(idx) >= len(t.slots) {
		return nil, false
	}
	s := &t.slots[idx]
	if s.free() {
		return nil, false
	}
	return s, true
}

// Release zeroes the slot at idx and returns its index to the free
// list (spec §3 invariant: "a slot is either entirely zeroed (free) or
// fully populated (live)"; spec §4.3 "On DEAD, close the socket, zero
// the peer slot, and return its index to the free list").
func (t *Table) Release(idx uint32) {
	if int(idx) >= len(t.slots) {
		return
	}
	s := &t.slots[idx]
	if s.free() {
		return
	}
	s.reset()
	t.free.Add(idx)
	t.live--
	t.reportLive()
}

// Range calls fn for every currently live slot index. fn must not
// Alloc or Release while ranging.
func (t *Table) Range(fn func(idx uint32, s *Slot)) {
	for i := range t.slots {
		s := &t.slots[i]
		if !s.free() {
			fn(uint32(i), s)
		}
	}
}
