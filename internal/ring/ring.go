// Package ring implements the lockless single-producer/single-consumer
// byte channel at the heart of the core, plus its companion Update Queue
// and eventfd-backed Sleep State (spec §2-§4).
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package ring

import (
	"sync"
	"sync/atomic"
)

const cacheLinePad = 64

// MetricsRecorder receives ring-level resize events. control's
// MetricsRegistry.RecordRingResize satisfies this; tests and other
// callers that don't care about metrics simply never call SetMetrics.
type MetricsRecorder interface {
	RecordRingResize(ringName string)
}

// snapshot is the atomically-swapped triple {buffer, writer cursor,
// generation}. generation increments on every producer resize so the
// consumer can detect that its private cursor must be reinterpreted
// against the new buffer (see Ring.grow).
type snapshot struct {
	data       []byte
	w          uint64
	generation uint64
}

// readCursor is the atomically-swapped pair the consumer publishes via
// Release: its absolute read position plus the generation that
// position is expressed against. Tagging it with the generation lets
// the producer's grow (see below) tell a fresh, same-generation
// position from one the consumer published before the last resize,
// instead of reading a value that silently stopped meaning what it used
// to the moment generation changed underneath it.
type readCursor struct {
	value      uint64
	generation uint64
}

// Ring is the SPSC byte channel of spec §3/§4.1: a contiguous buffer
// with two cursors, writer-visible W and reader-visible R. Exactly one
// goroutine may call the producer methods (Reserve/Commit/Publish) and
// exactly one (possibly different) goroutine may call the consumer
// methods (Peek/Release); mixing callers across the two roles is a
// misuse the ring does not attempt to detect or protect against, the
// same contract the teacher's core/concurrency/ring.go documents for its
// own (differently-shaped) ring.
type Ring struct {
	cur atomic.Pointer[snapshot]
	_   [cacheLinePad - 8]byte

	r atomic.Pointer[readCursor]
	_ [cacheLinePad - 8]byte

	// producer-private
	privW   uint64
	resvLen int

	// consumer-private
	privR          uint64
	lastGeneration uint64

	multiplier float64
	mu         sync.Mutex // guards Reserve/grow against reentrant misuse, not real contention

	metricsName string
	metrics     MetricsRecorder
}

// SetMetrics attaches an optional resize recorder that grow invokes on
// every reallocation, tagged under name. Must be called before any
// concurrent producer/consumer use begins; a nil rec (the default)
// disables reporting.
func (rg *Ring) SetMetrics(name string, rec MetricsRecorder) {
	rg.metricsName = name
	rg.metrics = rec
}

// New allocates a Ring with the given initial byte capacity and resize
// multiplier (must be > 1.0; spec §6 "reallocation multiplier").
func New(initialSize int, multiplier float64) *Ring {
	if initialSize < 1 {
		initialSize = 4096
	}
	if multiplier <= 1.0 {
		multiplier = 1.5
	}
	rg := &Ring{multiplier: multiplier}
	rg.cur.Store(&snapshot{data: make([]byte, initialSize)})
	rg.r.Store(&readCursor{})
	return rg
}

// Reserve returns a writable region of at least minBytes starting at the
// producer's current cursor, growing the ring first if the tail of the
// current buffer cannot fit minBytes. The returned slice is only valid
// until the next Reserve call.
func (rg *Ring) Reserve(minBytes int) []byte {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	snap := rg.cur.Load()
	avail := len(snap.data) - int(rg.privW)
	if avail < minBytes {
		rg.grow(minBytes)
		snap = rg.cur.Load()
		avail = len(snap.data) - int(rg.privW)
	}
	rg.resvLen = avail
	return snap.data[rg.privW:]
}

// grow reallocates the buffer per spec §4.1's resize policy: cheap when
// the ring is fully drained (R == W, reset both cursors to zero),
// expensive otherwise (relocate the unread tail to the head of a new,
// larger buffer). Must be called with mu held.
//
// The read cursor (rg.r) is consumer-owned: grow only ever reads it,
// never stores to it. If the cursor's generation doesn't match the
// pre-resize snapshot, the consumer hasn't published a position against
// this generation yet, so occupancy is taken to be the whole buffer
// written so far — the conservative assumption that can only over-copy,
// never drop unread bytes.
func (rg *Ring) grow(minBytes int) {
	snap := rg.cur.Load()
	rc := rg.r.Load()
	var readPos int
	if rc != nil && rc.generation == snap.generation {
		readPos = int(rc.value)
	}
	occupancy := int(rg.privW) - readPos
	if occupancy < 0 {
		occupancy = 0
	}
	newSize := int(rg.multiplier * float64(occupancy+minBytes))
	if newSize < occupancy+minBytes {
		newSize = occupancy + minBytes
	}
	newData := make([]byte, newSize)
	if occupancy > 0 {
		copy(newData, snap.data[int(rg.privW)-occupancy:rg.privW])
	}
	rg.privW = uint64(occupancy)
	rg.cur.Store(&snapshot{data: newData, w: 0, generation: snap.generation + 1})
	if rg.metrics != nil {
		rg.metrics.RecordRingResize(rg.metricsName)
	}
}

// Commit advances the producer cursor by n bytes written into the most
// recently Reserve'd region. It does not make them visible to the
// consumer; call Publish for that.
func (rg *Ring) Commit(n int) {
	if n < 0 || n > rg.resvLen {
		panic("ring: Commit exceeds reserved region")
	}
	rg.privW += uint64(n)
	rg.resvLen -= n
}

// Publish makes all committed-but-unpublished bytes visible to the
// consumer. Swapping the whole immutable snapshot (data+cursor+
// generation together) is how this port gets the publish ordering spec
// §4.1 asks for without a raw relaxed-vs-release knob: Go's sync/atomic
// pointer operations are sequentially consistent, a conservative
// superset of the release store the spec names as the sole
// architecture-sensitive decision in the design.
func (rg *Ring) Publish() {
	snap := rg.cur.Load()
	rg.cur.Store(&snapshot{data: snap.data, w: rg.privW, generation: snap.generation})
}

// Peek returns the unread region [privateReader, W) without consuming
// it, or nil if the ring is currently empty from this consumer's point
// of view. Safe to call repeatedly.
func (rg *Ring) Peek() []byte {
	snap := rg.cur.Load()
	if snap.generation != rg.lastGeneration {
		rg.privR = 0
		rg.lastGeneration = snap.generation
	}
	if rg.privR >= snap.w {
		return nil
	}
	return snap.data[rg.privR:snap.w]
}

// Release advances the consumer cursor by n bytes (the amount actually
// processed from the slice last returned by Peek) and publishes it,
// tagged with the generation it was read against, letting the producer
// reclaim that space on its next resize decision.
func (rg *Ring) Release(n int) {
	rg.privR += uint64(n)
	rg.r.Store(&readCursor{value: rg.privR, generation: rg.lastGeneration})
}

// Len reports the number of unread bytes. A snapshot that may be stale
// the instant it is read by anyone other than the consumer itself.
func (rg *Ring) Len() int {
	snap := rg.cur.Load()
	if snap.generation != rg.lastGeneration {
		return int(snap.w)
	}
	return int(snap.w) - int(rg.privR)
}

// Empty reports whether the ring currently holds no unread data from
// this consumer's point of view.
func (rg *Ring) Empty() bool {
	return rg.Len() <= 0
}

// Cap reports the current underlying buffer capacity (changes across
// resizes; diagnostic/metrics use only).
func (rg *Ring) Cap() int {
	return len(rg.cur.Load().data)
}
