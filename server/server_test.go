//go:build linux

package server

import (
	"context"
	"testing"
	"time"

	"github.com/momentics/ringsocket/api"
	"github.com/momentics/ringsocket/internal/wstest"
)

// echoApp fans every inbound message straight back to its sender.
type echoApp struct{}

func (echoApp) Init(ctx api.Context) api.Result { return api.OK }
func (echoApp) Open(ctx api.Context) api.Result { return api.OK }
func (echoApp) Read(ctx api.Context, payload []byte, isBinary bool) api.Result {
	return ctx.ToSingle(ctx.ClientID(), payload, isBinary)
}
func (echoApp) Close(ctx api.Context, code api.CloseCode) api.Result { return api.OK }
func (echoApp) Timer(ctx api.Context) api.Result                     { return api.OK }

func TestServerEndToEndEcho(t *testing.T) {
	cfg := api.DefaultConfig()
	cfg.WorkerCount = 1
	cfg.AppCount = 1
	cfg.Listeners = []api.ListenConfig{{Addr: "127.0.0.1:0", Backlog: 128}}

	srv, err := New(cfg, []api.App{echoApp{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	}()

	addr := boundAddr(t, srv)
	client, err := wstest.Dial(addr, "/", 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	if err := client.SendText("ping"); err != nil {
		t.Fatalf("send: %v", err)
	}
	isBinary, payload, err := client.ReadMessage(2 * time.Second)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if isBinary || string(payload) != "ping" {
		t.Fatalf("echo = (%v, %q), want (false, \"ping\")", isBinary, payload)
	}
}

// boundAddr recovers the OS-assigned port api.ListenConfig{Addr:
// "127.0.0.1:0"} was bound to, by asking the worker's listener fd.
func boundAddr(t *testing.T, srv *Server) string {
	t.Helper()
	addr, err := listenerBoundAddr(srv.workers[0].Listeners[0])
	if err != nil {
		t.Fatalf("listenerBoundAddr: %v", err)
	}
	return addr
}
