// Author: momentics <momentics@gmail.com>
//
// App is the five-hook application callback surface (spec §4.5). Each
// hook receives a Context describing the originating worker/peer and
// returns a Result. OK means success. Fatal stops this app's event loop,
// whose Run then returns an error; other loops keep running and the
// process does not exit. Any other returned value is ignored: to close
// just this peer with an application close code in [4000,4899], call
// ctx.ClosePeer.
package api

// App is implemented by user code and registered once per app thread.
// Hooks not needed by an application may be left as a no-op.
type App interface {
	// Init is called once, before any I/O, on the app thread that will
	// run this App's event loop.
	Init(ctx Context) Result

	// Open is called when a peer completes the WebSocket upgrade and is
	// now owned by this app.
	Open(ctx Context) Result

	// Read is called when a full message has been reassembled for a
	// peer owned by this app. payload is only valid for the duration of
	// the call; schema decoding (Decode) must happen synchronously.
	Read(ctx Context, payload []byte, isBinary bool) Result

	// Close is called when a peer departs, regardless of cause.
	Close(ctx Context, code CloseCode) Result

	// Timer is called on this app's thread every TimerPeriod of its app
	// loop, independent of any particular peer, when that period is
	// positive. server.Server builds its app loops with a zero period, so
	// under it Timer is never called. ctx.PeerSlot() is meaningless
	// inside Timer.
	Timer(ctx Context) Result
}

// Context is the opaque handle passed to every App hook. It exposes the
// originating worker/peer coordinates, a lazily-grown scratch write
// buffer, and the means to address outbound sends (spec §6 "Application
// callback ABI").
type Context interface {
	// WorkerIndex is the originating worker's index.
	WorkerIndex() uint32
	// PeerSlot is the originating peer's local slot index.
	PeerSlot() uint32
	// ClientID composes the current (worker, slot) into a ClientID.
	ClientID() ClientID

	// Scratch returns a reusable write buffer of n bytes. When the
	// retained buffer is too small it is replaced by one of exactly n
	// bytes; the configured resize multiplier is not applied.
	Scratch(n int) []byte

	// ToSingle enqueues payload for delivery to exactly one client.
	ToSingle(to ClientID, payload []byte, binary bool) Result
	// ToArray enqueues payload for delivery to exactly the listed
	// clients (which must all share one worker — see GroupByWorker).
	ToArray(worker uint32, slots []uint32, payload []byte, binary bool) Result
	// ToEvery enqueues payload for delivery to every live peer on the
	// named worker.
	ToEvery(worker uint32, payload []byte, binary bool) Result
	// ToEveryExceptSingle enqueues payload for delivery to every live
	// peer on the named worker except the one listed.
	ToEveryExceptSingle(worker uint32, except uint32, payload []byte, binary bool) Result
	// ToEveryExceptArray enqueues payload for delivery to every live
	// peer on the named worker except those listed.
	ToEveryExceptArray(worker uint32, except []uint32, payload []byte, binary bool) Result

	// ClosePeer requests that the current peer be closed with the given
	// application close code (must be in [4000,4899]).
	ClosePeer(code CloseCode) Result

	// WorkerCount returns the total number of worker threads, so an app
	// can partition a global broadcast by worker (spec §4.4).
	WorkerCount() uint32
}
