package ring

import (
	"fmt"

	"github.com/eapache/queue"
	"github.com/momentics/ringsocket/api"
)

// Entry is one pending publish event: a producer has advanced its
// writer cursor for the named consumer and the event has not yet been
// flushed (published + possibly woken). IsWrite distinguishes a plain
// writer-advance from a readership-advance (the consumer side
// announcing how far it has consumed, so the original producer may
// reclaim space on its next resize decision) — spec §3 "Update Queue".
type Entry struct {
	ConsumerIndex     uint32
	NewWriterPosition uint64
	IsWrite           bool
}

// UpdateQueue is the small, bounded, per-producer FIFO of Entry used to
// batch atomic publishes and futex wakes across many small messages
// (spec §4.2). Backed by github.com/eapache/queue, a growable
// ring-backed FIFO — exactly the shape this bounded-but-dynamic queue
// needs; we enforce the configured bound ourselves since eapache/queue
// has no capacity limit of its own.
type UpdateQueue struct {
	q        *queue.Queue
	capacity int
}

// NewUpdateQueue creates an UpdateQueue bounded at capacity entries.
// Capacity is configured at startup per spec §6; overflow is fatal.
func NewUpdateQueue(capacity int) *UpdateQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &UpdateQueue{q: queue.New(), capacity: capacity}
}

// Push appends an entry. Returns api.ErrRingOverflow (a FATAL condition
// per spec §3) if the queue is already at capacity.
func (uq *UpdateQueue) Push(e Entry) error {
	if uq.q.Length() >= uq.capacity {
		return fmt.Errorf("%w: update queue capacity %d exceeded", api.ErrRingOverflow, uq.capacity)
	}
	uq.q.Add(e)
	return nil
}

// Len reports the number of pending entries.
func (uq *UpdateQueue) Len() int {
	return uq.q.Length()
}

// Full reports whether the next Push would overflow.
func (uq *UpdateQueue) Full() bool {
	return uq.q.Length() >= uq.capacity
}

// Flush drains every pending entry, coalescing per distinct consumer
// index down to its single highest NewWriterPosition (spec §4.2: "for
// each distinct consumer index touched, publish the highest writer
// position"), and invokes publish once per distinct consumer in the
// order each consumer was first touched.
func (uq *UpdateQueue) Flush(publish func(Entry)) {
	if uq.q.Length() == 0 {
		return
	}
	order := make([]uint32, 0, uq.q.Length())
	best := make(map[uint32]Entry, uq.q.Length())
	for uq.q.Length() > 0 {
		e := uq.q.Remove().(Entry)
		prev, ok := best[e.ConsumerIndex]
		if !ok {
			order = append(order, e.ConsumerIndex)
			best[e.ConsumerIndex] = e
			continue
		}
		if e.NewWriterPosition > prev.NewWriterPosition {
			prev.NewWriterPosition = e.NewWriterPosition
		}
		prev.IsWrite = prev.IsWrite || e.IsWrite
		best[e.ConsumerIndex] = prev
	}
	for _, idx := range order {
		publish(best[idx])
	}
}
