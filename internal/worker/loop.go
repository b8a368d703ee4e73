//go:build linux

package worker

import (
	"crypto/tls"
	"fmt"
	"log/slog"

	"github.com/momentics/ringsocket/api"
	"github.com/momentics/ringsocket/internal/peer"
	"github.com/momentics/ringsocket/internal/reactor"
	"github.com/momentics/ringsocket/internal/ring"
	"github.com/momentics/ringsocket/internal/wire"
	"golang.org/x/sys/unix"
)

// userData tags identify what an epoll event refers to, packed into
// reactor.Event.UserData: top 32 bits the kind, low 32 bits an index
// (into Listeners, the peer Table, or Pairs, as appropriate).
type kind uint32

const (
	kindListener kind = iota
	kindPeer
	kindOutboundSleep
)

func tagUserData(k kind, idx uint32) uint64 { return uint64(k)<<32 | uint64(idx) }
func untagUserData(v uint64) (kind, uint32) { return kind(v >> 32), uint32(v) }

// Worker is one I/O worker thread's entire state: its peer slot table,
// its epoll reactor, and its I/O Pair to every app thread (spec §2.6,
// §5 "each (worker, app) pair owns one I/O Pair").
type Worker struct {
	Index          uint32
	Table          *peer.Table
	Reactor        reactor.Reactor
	Pairs          []*ring.IOPair // indexed by app index
	Listeners      []int
	ListenerIsTLS  []bool // parallel to Listeners
	MaxMessageSize int
	TLSConfig      *tls.Config
	Log            *slog.Logger

	readBuf    []byte
	nextApp    uint32 // round-robin app assignment for new peers
	eventsBuf  []reactor.Event
	recipients []uint32

	metrics FanoutRecorder
}

// FanoutRecorder receives fanned-out byte counts. control's
// MetricsRegistry.RecordBytesFannedOut satisfies this; tests and other
// callers that don't care about metrics simply never call SetMetrics.
type FanoutRecorder interface {
	RecordBytesFannedOut(workerIndex uint32, n int)
}

// SetMetrics attaches an optional fan-out byte recorder. Must be
// called before Run starts; a nil rec (the default) disables
// reporting.
func (w *Worker) SetMetrics(rec FanoutRecorder) {
	w.metrics = rec
}

// New creates a Worker. Pairs must be indexed by app index (Pairs[a]
// links this worker to app a). listenerIsTLS must be parallel to
// listeners: a connection accepted on listeners[i] starts at LayerTLS
// iff listenerIsTLS[i], letting one worker serve a mix of plain and
// TLS listeners against the single shared tlsConfig.
func New(index uint32, table *peer.Table, rx reactor.Reactor, pairs []*ring.IOPair, listeners []int, listenerIsTLS []bool, maxMessageSize int, tlsConfig *tls.Config, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		Index:          index,
		Table:          table,
		Reactor:        rx,
		Pairs:          pairs,
		Listeners:      listeners,
		ListenerIsTLS:  listenerIsTLS,
		MaxMessageSize: maxMessageSize,
		TLSConfig:      tlsConfig,
		Log:            log,
		readBuf:        make([]byte, 64*1024),
		eventsBuf:      make([]reactor.Event, 256),
	}
}

// Setup registers every listener and every app pair's OutboundSleep
// eventfd with the reactor. Must be called once before Run.
func (w *Worker) Setup() error {
	for i, fd := range w.Listeners {
		if err := w.Reactor.Add(uintptr(fd), tagUserData(kindListener, uint32(i)), reactor.InterestRead); err != nil {
			return fmt.Errorf("register listener %d: %w", fd, err)
		}
	}
	for a, p := range w.Pairs {
		if err := w.Reactor.Add(uintptr(p.OutboundSleep.FD()), tagUserData(kindOutboundSleep, uint32(a)), reactor.InterestRead); err != nil {
			return fmt.Errorf("register outbound sleep for app %d: %w", a, err)
		}
	}
	return nil
}

// Run blocks the calling OS thread, alternating between draining every
// app's Outbound ring and servicing epoll readiness, until stop is
// closed.
func (w *Worker) Run(stop <-chan struct{}) error {
	for {
		select {
		case <-stop:
			return nil
		default:
		}

		w.drainAllOutbound()

		events, err := w.Reactor.Wait(w.eventsBuf, 1000)
		if err != nil {
			return fmt.Errorf("worker %d reactor wait: %w", w.Index, err)
		}
		for _, ev := range events {
			w.dispatch(ev)
		}
		w.flushInbound()
	}
}

// flushInbound drains every pending InboundQueue entry, publishing each
// touched app's Inbound ring and waking it at most once per checkpoint
// instead of once per individual record published during this
// iteration's dispatch (spec §4.2 batching).
func (w *Worker) flushInbound() {
	for a, p := range w.Pairs {
		p.InboundQueue.Flush(func(ring.Entry) {
			p.Inbound.Publish()
			if err := p.InboundSleep.Notify(); err != nil {
				w.Log.Error("notify app sleep state failed", "worker", w.Index, "app", a, "error", err)
			}
		})
	}
}

func (w *Worker) dispatch(ev reactor.Event) {
	k, idx := untagUserData(ev.UserData)
	switch k {
	case kindListener:
		w.handleListener(idx)
	case kindOutboundSleep:
		w.Pairs[idx].OutboundSleep.ConsumeWake()
	case kindPeer:
		w.handlePeerEvent(idx, ev)
	}
}

func (w *Worker) handleListener(listenerIdx uint32) {
	fds, err := accept(w.Listeners[listenerIdx])
	if err != nil {
		w.Log.Error("accept failed", "worker", w.Index, "error", err)
		return
	}
	isTLS := int(listenerIdx) < len(w.ListenerIsTLS) && w.ListenerIsTLS[listenerIdx]
	for _, fd := range fds {
		w.acceptPeer(fd, isTLS)
	}
}

func (w *Worker) acceptPeer(fd int, isEncrypted bool) {
	appIdx := w.nextApp
	w.nextApp = (w.nextApp + 1) % uint32(len(w.Pairs))

	idx, slot, err := w.Table.Alloc(fd, isEncrypted, appIdx)
	if err != nil {
		w.Log.Warn("peer slot table full, dropping connection", "worker", w.Index)
		unix.Close(fd)
		return
	}
	if isEncrypted {
		slot.Layer = peer.LayerTLS
		slot.TLSSession = peer.NewTLSSession(w.TLSConfig)
	} else {
		slot.Layer = peer.LayerHTTP
	}
	if err := w.Reactor.Add(uintptr(fd), tagUserData(kindPeer, idx), reactor.InterestRead|reactor.InterestWrite); err != nil {
		w.Log.Error("reactor add failed for accepted peer", "worker", w.Index, "error", err)
		w.closePeer(idx, slot, api.CloseProtocolError)
	}
}

func (w *Worker) handlePeerEvent(idx uint32, ev reactor.Event) {
	slot, ok := w.Table.Get(idx)
	if !ok {
		return
	}
	if ev.Error {
		w.closePeer(idx, slot, api.CloseProtocolError)
		return
	}
	if slot.Mortality != peer.MortalityLive {
		dead, res := peer.HandleMortality(slot, w.readBuf)
		if res == api.Fatal {
			w.Log.Error("fatal during shutdown", "worker", w.Index, "slot", idx)
		}
		if dead {
			w.finalizeClose(idx, slot)
		}
		return
	}

	switch slot.Layer {
	case peer.LayerTLS:
		w.stepTLS(idx, slot, ev)
	case peer.LayerHTTP:
		w.stepHTTP(idx, slot)
	case peer.LayerWS:
		if ev.Read {
			w.stepWSRead(idx, slot)
		}
		if ev.Write {
			w.flushPendingWrite(idx, slot)
		}
	}
}

func (w *Worker) stepTLS(idx uint32, slot *peer.Slot, ev reactor.Event) {
	sess := slot.TLSSession.(*peer.TLSSession)

	if ev.Read {
		n, resErr := peer.Read(slot, w.readBuf)
		if resErr == api.ClosePeer {
			w.closePeer(idx, slot, api.CloseProtocolError)
			return
		}
		if resErr == api.OK && n > 0 {
			if _, err := sess.FeedCiphertext(w.readBuf[:n]); err != nil {
				w.closePeer(idx, slot, api.CloseProtocolError)
				return
			}
		}
	}

	// Flush any ciphertext the library wants sent in response
	// (handshake records), regardless of which direction fired.
	out := make([]byte, 16*1024)
	for {
		n, err := sess.DrainCiphertext(out)
		if err != nil {
			w.closePeer(idx, slot, api.CloseProtocolError)
			return
		}
		if n == 0 {
			break
		}
		if r := peer.Write(slot, out[:n]); r == api.ClosePeer {
			w.closePeer(idx, slot, api.CloseProtocolError)
			return
		}
	}

	if done, err := sess.HandshakeDone(); done {
		if err != nil {
			w.closePeer(idx, slot, api.CloseProtocolError)
			return
		}
		slot.Layer = peer.LayerHTTP
	}
}

func (w *Worker) stepHTTP(idx uint32, slot *peer.Slot) {
	n, resErr := w.readLayerBytes(slot, w.readBuf)
	if resErr == api.ClosePeer {
		w.closePeer(idx, slot, api.CloseProtocolError)
		return
	}
	if resErr != api.OK || n == 0 {
		return
	}
	slot.HandshakeBuf = append(slot.HandshakeBuf, w.readBuf[:n]...)
	if len(slot.HandshakeBuf) > maxHandshakeRequestBytes {
		w.closePeer(idx, slot, api.ClosePolicyViolation)
		return
	}
	if !peer.HeaderBlockComplete(slot.HandshakeBuf) {
		return
	}

	hdr, err := peer.ParseUpgradeRequest(slot.HandshakeBuf)
	if err != nil {
		w.closePeer(idx, slot, api.CloseProtocolError)
		return
	}
	resp := peer.EncodeUpgradeResponse(hdr)
	if r := w.writeLayerBytes(slot, resp); r == api.ClosePeer {
		w.closePeer(idx, slot, api.CloseProtocolError)
		return
	}
	slot.HandshakeBuf = nil
	slot.Layer = peer.LayerWS
	slot.Reassembler = wire.NewReassembler(w.MaxMessageSize)
	w.publishInbound(idx, slot, wire.EncodeInboundOpen(nil, idx))
}

const maxHandshakeRequestBytes = 16 * 1024

func (w *Worker) stepWSRead(idx uint32, slot *peer.Slot) {
	n, resErr := w.readLayerBytes(slot, w.readBuf)
	if resErr == api.ClosePeer {
		w.closePeer(idx, slot, api.CloseNormal)
		return
	}
	if resErr != api.OK || n == 0 {
		return
	}
	raw := w.readBuf[:n]
	for len(raw) > 0 {
		h, hdrLen, err := wire.DecodeHeader(raw, uint64(w.MaxMessageSize))
		if err != nil {
			w.closePeer(idx, slot, api.CloseInvalidPayload)
			return
		}
		if hdrLen == 0 {
			break // incomplete frame; wait for more bytes next readiness event
		}
		consumed := hdrLen + int(h.PayloadLen)
		payload := raw[hdrLen:consumed]
		wire.Unmask(h, payload)

		switch h.Opcode {
		case wire.OpcodeClose:
			w.closePeer(idx, slot, api.CloseNormal)
			return
		case wire.OpcodePing:
			pong := wire.EncodeServerFrame(nil, wire.OpcodePong, payload)
			w.writeLayerBytes(slot, pong)
		case wire.OpcodePong:
			// no action required
		default:
			msg, opcode, done, err := slot.Reassembler.Feed(h, payload)
			if err != nil {
				w.closePeer(idx, slot, api.CloseMessageTooBig)
				return
			}
			if done {
				rec := wire.EncodeInboundRead(nil, idx, opcode == wire.OpcodeBinary, msg)
				w.publishInbound(idx, slot, rec)
			}
		}
		raw = raw[consumed:]
	}
}

// readLayerBytes reads from the peer via the raw TCP path or, once a
// TLS session is active, via the session's decrypted plaintext view.
func (w *Worker) readLayerBytes(slot *peer.Slot, buf []byte) (int, api.Result) {
	if slot.TLSSession != nil {
		sess := slot.TLSSession.(*peer.TLSSession)
		n, err := sess.ReadPlaintext(buf)
		if err != nil {
			return 0, api.ClosePeer
		}
		return n, api.OK
	}
	return peer.Read(slot, buf)
}

// writeLayerBytes writes msg via the raw TCP path or, once a TLS
// session is active, via the session's plaintext side. On the raw path
// a partial write (api.Again) stashes msg itself as slot.PendingWrite
// so flushPendingWrite can resume it unchanged from slot.OldWsize on
// the next write-readiness event, honoring peer.Write's "same slice
// across retries" contract.
func (w *Worker) writeLayerBytes(slot *peer.Slot, msg []byte) api.Result {
	if slot.TLSSession != nil {
		sess := slot.TLSSession.(*peer.TLSSession)
		if _, err := sess.WritePlaintext(msg); err != nil {
			return api.ClosePeer
		}
		return api.OK
	}
	r := peer.Write(slot, msg)
	if r == api.Again {
		slot.PendingWrite = msg
	}
	return r
}

func (w *Worker) flushPendingWrite(idx uint32, slot *peer.Slot) {
	if len(slot.PendingWrite) == 0 {
		return
	}
	if r := w.writeLayerBytes(slot, slot.PendingWrite); r == api.OK {
		slot.PendingWrite = nil
		if slot.CloseAfterWrite {
			slot.CloseAfterWrite = false
			w.closePeer(idx, slot, slot.CloseAfterWriteCode)
		}
	}
}

// publishInbound commits rec into the given peer's owning app's Inbound
// ring and queues the update; flushInbound is what actually makes it
// visible and wakes the app, batching every record committed within one
// Run iteration into a single publish and a single wake (spec §4.2).
func (w *Worker) publishInbound(idx uint32, slot *peer.Slot, rec []byte) {
	p := w.Pairs[slot.AppIndex]
	buf := p.Inbound.Reserve(len(rec))
	n := copy(buf, rec)
	p.Inbound.Commit(n)
	if err := p.InboundQueue.Push(ring.Entry{ConsumerIndex: slot.AppIndex, NewWriterPosition: uint64(n), IsWrite: false}); err != nil {
		w.Log.Error("inbound update queue overflow", "worker", w.Index, "app", slot.AppIndex, "error", err)
	}
}

// decodeCloseCode reads the 2-byte big-endian close code an app's
// ClosePeer call encoded into its outbound record payload, falling
// back to CloseNormal if the payload is absent or truncated.
func decodeCloseCode(payload []byte) api.CloseCode {
	if len(payload) < 2 {
		return api.CloseNormal
	}
	return api.CloseCode(uint16(payload[0])<<8 | uint16(payload[1]))
}

func (w *Worker) closePeer(idx uint32, slot *peer.Slot, code api.CloseCode) {
	if slot.Layer == peer.LayerWS {
		w.publishInbound(idx, slot, wire.EncodeInboundClose(nil, idx, code))
	}
	slot.Mortality = peer.MortalityShutdownWrite
	dead, _ := peer.HandleMortality(slot, w.readBuf)
	if dead {
		w.finalizeClose(idx, slot)
	}
}

func (w *Worker) finalizeClose(idx uint32, slot *peer.Slot) {
	w.Reactor.Remove(uintptr(slot.FD))
	if slot.TLSSession != nil {
		slot.TLSSession.(*peer.TLSSession).Close()
	}
	peer.Close(slot)
	w.Table.Release(idx)
}

func (w *Worker) drainAllOutbound() {
	for _, p := range w.Pairs {
		w.drainOutbound(p)
		for p.Outbound.Empty() && p.OutboundSleep.TrySleep() {
			if p.Outbound.Empty() {
				break
			}
			p.OutboundSleep.WakeSelf()
			w.drainOutbound(p)
		}
	}
}

func (w *Worker) drainOutbound(p *ring.IOPair) {
	for {
		raw := p.Outbound.Peek()
		if raw == nil {
			return
		}
		d, n, err := wire.DecodeOutbound(raw, uint64(w.MaxMessageSize))
		if err != nil {
			w.Log.Error("malformed outbound record, dropping remainder", "worker", w.Index, "error", err)
			p.Outbound.Release(len(raw))
			return
		}
		if n == 0 {
			return // incomplete record; remaining bytes wait for next publish
		}
		w.recipients = Recipients(w.recipients, d, w.Table)
		frame := wire.EncodeServerFrame(nil, d.Header.Opcode, d.Payload)
		appClose := d.Header.Opcode == wire.OpcodeClose
		for _, peerIdx := range w.recipients {
			slot, ok := w.Table.Get(peerIdx)
			if !ok || slot.Layer != peer.LayerWS || slot.Mortality != peer.MortalityLive {
				continue
			}
			if slot.IsWriting {
				continue
			}
			r := w.writeLayerBytes(slot, frame)
			if r == api.ClosePeer {
				w.closePeer(peerIdx, slot, api.CloseProtocolError)
				continue
			}
			if w.metrics != nil {
				w.metrics.RecordBytesFannedOut(w.Index, len(frame))
			}
			if appClose {
				// App-requested close: begin the shutdown progression
				// once the close frame itself has fully gone out. If
				// it's still draining (r == api.Again), defer via
				// CloseAfterWrite so ShutdownWrite never truncates the
				// close frame in flight.
				code := decodeCloseCode(d.Payload)
				if r == api.Again {
					slot.CloseAfterWrite = true
					slot.CloseAfterWriteCode = code
				} else {
					w.closePeer(peerIdx, slot, code)
				}
			}
		}
		p.Outbound.Release(n)
	}
}
