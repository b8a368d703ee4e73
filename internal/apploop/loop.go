//go:build linux

package apploop

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/momentics/ringsocket/api"
	"github.com/momentics/ringsocket/internal/reactor"
	"github.com/momentics/ringsocket/internal/ring"
)

// Loop is one application OS thread's entire state: the registered
// App, its I/O Pair to every worker, and the reactor it multiplexes
// those pairs' InboundSleep descriptors through.
//
// spec §5's "apps block in futex-wait on their sleep-state eventfd"
// describes the single-worker case exactly; an app fanned out across W
// workers owns W independent InboundSleep descriptors (one per I/O
// Pair, per the consumer-owns-its-ring's-SleepState rule — see
// internal/ring.IOPair) and has no single descriptor to block on
// instead. Rather than invent a second suspension primitive, this loop
// reuses the same edge-triggered reactor a Worker uses for its own
// OutboundSleep descriptors: true single-descriptor blocking survives
// as the A==1, W==1 special case of this general multiplexed wait.
type Loop struct {
	Index       uint32
	App         api.App
	Pairs       []*ring.IOPair // indexed by worker index
	WorkerCount uint32
	Reactor     reactor.Reactor
	TimerPeriod time.Duration
	Log         *slog.Logger

	eventsBuf []reactor.Event
	lastTimer time.Time
}

// New creates a Loop. Pairs must be indexed by worker index (Pairs[w]
// links this app to worker w).
func New(index uint32, app api.App, pairs []*ring.IOPair, rx reactor.Reactor, timerPeriod time.Duration, log *slog.Logger) *Loop {
	if log == nil {
		log = slog.Default()
	}
	return &Loop{
		Index:       index,
		App:         app,
		Pairs:       pairs,
		WorkerCount: uint32(len(pairs)),
		Reactor:     rx,
		TimerPeriod: timerPeriod,
		Log:         log,
		eventsBuf:   make([]reactor.Event, 64),
	}
}

// Setup registers every worker pair's InboundSleep eventfd with the
// reactor. Must be called once before Run.
func (l *Loop) Setup() error {
	for w, p := range l.Pairs {
		if err := l.Reactor.Add(uintptr(p.InboundSleep.FD()), uint64(w), reactor.InterestRead); err != nil {
			return fmt.Errorf("register inbound sleep for worker %d: %w", w, err)
		}
	}
	return nil
}

// Run invokes App.Init once, then alternates draining every worker's
// Inbound ring with servicing reactor readiness and periodic Timer
// callbacks, until stop is closed or a hook reports api.Fatal.
func (l *Loop) Run(stop <-chan struct{}) error {
	initCtx := &context{loop: l}
	if res := l.App.Init(initCtx); res == api.Fatal {
		return fmt.Errorf("%w: app %d Init", errFatalHook, l.Index)
	}
	l.lastTimer = time.Now()

	timeoutMs := -1
	if l.TimerPeriod > 0 {
		timeoutMs = int(l.TimerPeriod.Milliseconds())
		if timeoutMs < 1 {
			timeoutMs = 1
		}
	}

	for {
		select {
		case <-stop:
			return nil
		default:
		}

		if err := l.drainAllInbound(); err != nil {
			return err
		}
		l.flushOutbound()

		events, err := l.Reactor.Wait(l.eventsBuf, timeoutMs)
		if err != nil {
			return fmt.Errorf("app %d reactor wait: %w", l.Index, err)
		}
		for _, ev := range events {
			l.Pairs[ev.UserData].InboundSleep.ConsumeWake()
		}

		if l.TimerPeriod > 0 && time.Since(l.lastTimer) >= l.TimerPeriod {
			l.lastTimer = time.Now()
			timerCtx := &context{loop: l}
			if res := l.App.Timer(timerCtx); res == api.Fatal {
				return fmt.Errorf("%w: app %d Timer", errFatalHook, l.Index)
			}
			l.flushOutbound()
		}
	}
}

// flushOutbound drains every pending OutboundQueue entry, publishing
// each touched worker's Outbound ring and waking it at most once per
// checkpoint instead of once per individual record committed during
// this iteration's dispatch and Timer callback (spec §4.2 batching).
func (l *Loop) flushOutbound() {
	for w, p := range l.Pairs {
		p.OutboundQueue.Flush(func(ring.Entry) {
			p.Outbound.Publish()
			if err := p.OutboundSleep.Notify(); err != nil {
				l.Log.Error("notify worker sleep state failed", "app", l.Index, "worker", w, "error", err)
			}
		})
	}
}

func (l *Loop) drainAllInbound() error {
	for w, p := range l.Pairs {
		if err := l.drainInbound(uint32(w), p); err != nil {
			return err
		}
		for p.Inbound.Empty() && p.InboundSleep.TrySleep() {
			if p.Inbound.Empty() {
				break
			}
			p.InboundSleep.WakeSelf()
			if err := l.drainInbound(uint32(w), p); err != nil {
				return err
			}
		}
	}
	return nil
}
