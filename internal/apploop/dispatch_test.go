//go:build linux

package apploop

import (
	"testing"

	"github.com/momentics/ringsocket/api"
	"github.com/momentics/ringsocket/internal/wire"
)

type recordingApp struct {
	opens  []uint32
	reads  []string
	closes []api.CloseCode
	result api.Result
}

func (a *recordingApp) Init(ctx api.Context) api.Result { return api.OK }
func (a *recordingApp) Open(ctx api.Context) api.Result {
	a.opens = append(a.opens, ctx.PeerSlot())
	return a.result
}
func (a *recordingApp) Read(ctx api.Context, payload []byte, isBinary bool) api.Result {
	a.reads = append(a.reads, string(payload))
	return a.result
}
func (a *recordingApp) Close(ctx api.Context, code api.CloseCode) api.Result {
	a.closes = append(a.closes, code)
	return a.result
}
func (a *recordingApp) Timer(ctx api.Context) api.Result { return api.OK }

func TestDrainInboundDispatchesOpenReadClose(t *testing.T) {
	l := newTestLoop(t, 1)
	app := &recordingApp{}
	l.App = app

	p := l.Pairs[0]
	var rec []byte
	rec = wire.EncodeInboundOpen(rec, 5)
	rec = wire.EncodeInboundRead(rec, 5, false, []byte("hello"))
	rec = wire.EncodeInboundClose(rec, 5, api.CloseNormal)
	buf := p.Inbound.Reserve(len(rec))
	copy(buf, rec)
	p.Inbound.Commit(len(rec))
	p.Inbound.Publish()

	if err := l.drainInbound(0, p); err != nil {
		t.Fatalf("drainInbound: %v", err)
	}
	if len(app.opens) != 1 || app.opens[0] != 5 {
		t.Fatalf("opens = %v", app.opens)
	}
	if len(app.reads) != 1 || app.reads[0] != "hello" {
		t.Fatalf("reads = %v", app.reads)
	}
	if len(app.closes) != 1 || app.closes[0] != api.CloseNormal {
		t.Fatalf("closes = %v", app.closes)
	}
}

func TestDrainInboundEscalatesFatalResult(t *testing.T) {
	l := newTestLoop(t, 1)
	app := &recordingApp{result: api.Fatal}
	l.App = app

	p := l.Pairs[0]
	rec := wire.EncodeInboundOpen(nil, 1)
	buf := p.Inbound.Reserve(len(rec))
	copy(buf, rec)
	p.Inbound.Commit(len(rec))
	p.Inbound.Publish()

	if err := l.drainInbound(0, p); err == nil {
		t.Fatalf("expected error from fatal hook result")
	}
}

func TestDrainInboundStopsOnIncompleteRecord(t *testing.T) {
	l := newTestLoop(t, 1)
	app := &recordingApp{}
	l.App = app

	p := l.Pairs[0]
	rec := wire.EncodeInboundOpen(nil, 1)
	truncated := rec[:len(rec)-1]
	buf := p.Inbound.Reserve(len(truncated))
	copy(buf, truncated)
	p.Inbound.Commit(len(truncated))
	p.Inbound.Publish()

	if err := l.drainInbound(0, p); err != nil {
		t.Fatalf("drainInbound: %v", err)
	}
	if len(app.opens) != 0 {
		t.Fatalf("expected no dispatch on an incomplete record")
	}
}
