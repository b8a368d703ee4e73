package apploop

import (
	"errors"
	"fmt"

	"github.com/momentics/ringsocket/api"
	"github.com/momentics/ringsocket/internal/ring"
	"github.com/momentics/ringsocket/internal/wire"
)

// errFatalHook is returned up through Loop.Run when an App hook
// reports api.Fatal. Only this loop stops; the server records the error
// for Wait and does not stop the other loops.
var errFatalHook = errors.New("apploop: app hook reported fatal result")

// drainInbound decodes and dispatches every complete record currently
// available on workerIdx's Inbound ring, reusing one context value
// across the whole batch.
func (l *Loop) drainInbound(workerIdx uint32, p *ring.IOPair) error {
	ctx := &context{loop: l, workerIndex: workerIdx}
	for {
		raw := p.Inbound.Peek()
		if raw == nil {
			return nil
		}
		d, n, err := wire.DecodeInbound(raw)
		if err != nil {
			l.Log.Error("malformed inbound record, dropping remainder", "app", l.Index, "worker", workerIdx, "error", err)
			p.Inbound.Release(len(raw))
			return nil
		}
		if n == 0 {
			return nil // incomplete record; remaining bytes wait for next publish
		}
		ctx.peerSlot = d.PeerSlot
		if err := l.dispatchOne(ctx, d); err != nil {
			p.Inbound.Release(n)
			return err
		}
		p.Inbound.Release(n)
	}
}

func (l *Loop) dispatchOne(ctx *context, d wire.DecodedInbound) error {
	var res api.Result
	switch d.Kind {
	case wire.KindOpen:
		res = l.App.Open(ctx)
	case wire.KindRead:
		res = l.App.Read(ctx, d.Payload, d.IsBinary)
	case wire.KindClose:
		res = l.App.Close(ctx, d.CloseCode)
	default:
		return fmt.Errorf("apploop: unknown inbound record kind %d", d.Kind)
	}
	if res == api.Fatal {
		return fmt.Errorf("%w: worker %d peer %d", errFatalHook, ctx.workerIndex, ctx.peerSlot)
	}
	return nil
}
