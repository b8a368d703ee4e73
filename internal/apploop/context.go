// Package apploop implements the App Event Loop (spec §4.5, §5): a
// single-threaded cooperative loop draining every worker's inbound
// ring, invoking the registered api.App's callbacks, and publishing
// outbound messages back through each worker's Outbound ring.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package apploop

import (
	"github.com/momentics/ringsocket/api"
	"github.com/momentics/ringsocket/internal/ring"
	"github.com/momentics/ringsocket/internal/wire"
)

// context is the api.Context implementation handed to every App hook.
// One is reused across calls (scratch buffer retained between them);
// it is never shared across goroutines since the app loop is
// single-threaded per spec §5.
type context struct {
	loop        *Loop
	workerIndex uint32
	peerSlot    uint32
	scratch     []byte
}

func (c *context) WorkerIndex() uint32 { return c.workerIndex }
func (c *context) PeerSlot() uint32    { return c.peerSlot }
func (c *context) ClientID() api.ClientID {
	return api.NewClientID(c.workerIndex, c.peerSlot)
}

// Scratch returns a reusable write buffer of n bytes. The buffer is
// kept between calls and replaced by one of exactly n bytes only when
// its capacity is below n; no growth multiplier is applied.
func (c *context) Scratch(n int) []byte {
	if cap(c.scratch) < n {
		c.scratch = make([]byte, n)
	}
	return c.scratch[:n]
}

func (c *context) ToSingle(to api.ClientID, payload []byte, binary bool) api.Result {
	return c.publish(to.Worker(), wire.KindSingle, []uint32{to.Slot()}, opcodeFor(binary), payload)
}

func (c *context) ToArray(worker uint32, slots []uint32, payload []byte, binary bool) api.Result {
	return c.publish(worker, wire.KindArray, slots, opcodeFor(binary), payload)
}

func (c *context) ToEvery(worker uint32, payload []byte, binary bool) api.Result {
	return c.publish(worker, wire.KindEvery, nil, opcodeFor(binary), payload)
}

func (c *context) ToEveryExceptSingle(worker uint32, except uint32, payload []byte, binary bool) api.Result {
	return c.publish(worker, wire.KindEveryExceptSingle, []uint32{except}, opcodeFor(binary), payload)
}

func (c *context) ToEveryExceptArray(worker uint32, except []uint32, payload []byte, binary bool) api.Result {
	return c.publish(worker, wire.KindEveryExceptArray, except, opcodeFor(binary), payload)
}

// ClosePeer publishes a self-addressed WebSocket CLOSE frame carrying
// code, which the owning worker both fans out to the peer and treats
// as the trigger to begin that peer's shutdown progression (spec §4.3,
// §4.4): there is no separate side-channel command verb, so an app
// close request reuses the same outbound record path as any other
// send, distinguished only by its opcode.
func (c *context) ClosePeer(code api.CloseCode) api.Result {
	var body [2]byte
	body[0] = byte(code >> 8)
	body[1] = byte(code)
	return c.publish(c.workerIndex, wire.KindSingle, []uint32{c.peerSlot}, wire.OpcodeClose, body[:])
}

func (c *context) WorkerCount() uint32 { return c.loop.WorkerCount }

func opcodeFor(binary bool) byte {
	if binary {
		return wire.OpcodeBinary
	}
	return wire.OpcodeText
}

// publish encodes one outbound record and commits it to the named
// worker's Outbound ring, then queues the update. The ring is not
// published and the worker is not woken here: flushOutbound does that
// once per Loop.Run checkpoint, coalescing every record committed
// within the same iteration into a single publish and a single wake
// (spec §4.2).
func (c *context) publish(workerIdx uint32, kind wire.OutboundKind, recipients []uint32, opcode byte, payload []byte) api.Result {
	if int(workerIdx) >= len(c.loop.Pairs) {
		return api.Fatal
	}
	p := c.loop.Pairs[workerIdx]
	rec, err := wire.EncodeOutbound(nil, kind, recipients, opcode, payload)
	if err != nil {
		c.loop.Log.Error("outbound encode failed", "app", c.loop.Index, "error", err)
		return api.Fatal
	}
	buf := p.Outbound.Reserve(len(rec))
	n := copy(buf, rec)
	p.Outbound.Commit(n)
	if err := p.OutboundQueue.Push(ring.Entry{ConsumerIndex: workerIdx, NewWriterPosition: uint64(n), IsWrite: false}); err != nil {
		c.loop.Log.Error("outbound update queue overflow", "app", c.loop.Index, "worker", workerIdx, "error", err)
		return api.Fatal
	}
	return api.OK
}
