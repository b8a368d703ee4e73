// Author: momentics <momentics@gmail.com>
//
// ClientID is the 64-bit opaque identifier exposed to application code to
// designate a message recipient. Its composition — low 32 bits the
// worker index, high 32 bits the peer slot index — is an implementation
// detail applications need not know, except that wire-exposed grouping by
// worker must exploit it (see GroupByWorker below).
package api

// ClientID identifies one peer for the lifetime of its connection. It is
// stable across the peer's life and becomes meaningless (but never
// dangerous to use) once the underlying slot is recycled: the worker
// checks slot liveness before ever delivering to a ClientID.
type ClientID uint64

// NewClientID composes a ClientID from a worker index and a local peer
// slot index.
func NewClientID(worker, slot uint32) ClientID {
	return ClientID(uint64(slot)<<32 | uint64(worker))
}

// Worker extracts the owning worker index.
func (c ClientID) Worker() uint32 {
	return uint32(c)
}

// Slot extracts the local peer slot index within the owning worker.
func (c ClientID) Slot() uint32 {
	return uint32(c >> 32)
}

// GroupByWorker partitions ids by their worker half, preserving relative
// order within each group. Applications addressing multi-worker
// recipient sets use this to compute the per-worker subset they must
// emit as a SINGLE/ARRAY/EVERY_EXCEPT_* message (spec §4.4).
func GroupByWorker(ids []ClientID) map[uint32][]ClientID {
	out := make(map[uint32][]ClientID)
	for _, id := range ids {
		w := id.Worker()
		out[w] = append(out[w], id)
	}
	return out
}
