package ring

import "fmt"

// IOPair bundles the two Rings linking one worker and one app (spec §3
// "I/O Pair"): Outbound carries app->worker traffic (fan-out commands),
// Inbound carries worker->app traffic (OPEN/READ/CLOSE records). Each
// ring is strictly SPSC: the app is the sole producer on Outbound and
// sole consumer on Inbound; the worker is the reverse.
//
// Each ring's consumer owns a SleepState so the double-check idle
// protocol of spec §4.2 applies symmetrically in both directions.
// OutboundSleep belongs to the worker (consumer of Outbound);
// InboundSleep belongs to the app (consumer of Inbound). A worker
// multiplexes OutboundSleep.FD() through its epoll set alongside peer
// sockets, since epoll-wait is already its sole suspension point (spec
// §5); an app likewise registers every InboundSleep.FD() with its own
// reactor and calls ConsumeWake when one becomes readable.
type IOPair struct {
	// Outbound is written by the app, read by the worker.
	Outbound *Ring
	// OutboundQueue batches the app's publish+wake events for Outbound.
	OutboundQueue *UpdateQueue
	// OutboundSleep is the worker's (consumer's) idle/wake state for Outbound.
	OutboundSleep *SleepState

	// Inbound is written by the worker, read by the app.
	Inbound *Ring
	// InboundQueue batches the worker's publish+wake events for Inbound.
	InboundQueue *UpdateQueue
	// InboundSleep is the app's (consumer's) idle/wake state for Inbound.
	InboundSleep *SleepState

	// WorkerIndex and AppIndex identify the two endpoints this pair
	// links, matching the consumer_index entries pushed onto each
	// UpdateQueue.
	WorkerIndex uint32
	AppIndex    uint32
}

// NewIOPair allocates both rings, both update queues, and both sleep
// states for one (worker, app) link. metrics may be nil to disable
// per-ring resize reporting (tests that don't care about metrics pass
// nil); when non-nil each ring reports its resizes tagged by direction
// and the (worker, app) endpoints it links.
func NewIOPair(workerIndex, appIndex uint32, outboundSize, inboundSize, updateQueueCap int, multiplier float64, metrics MetricsRecorder) (*IOPair, error) {
	outboundSleep, err := NewSleepState()
	if err != nil {
		return nil, err
	}
	inboundSleep, err := NewSleepState()
	if err != nil {
		outboundSleep.Close()
		return nil, err
	}
	outbound := New(outboundSize, multiplier)
	inbound := New(inboundSize, multiplier)
	if metrics != nil {
		outbound.SetMetrics(fmt.Sprintf("w%d.a%d.outbound", workerIndex, appIndex), metrics)
		inbound.SetMetrics(fmt.Sprintf("w%d.a%d.inbound", workerIndex, appIndex), metrics)
	}
	return &IOPair{
		Outbound:      outbound,
		OutboundQueue: NewUpdateQueue(updateQueueCap),
		OutboundSleep: outboundSleep,
		Inbound:       inbound,
		InboundQueue:  NewUpdateQueue(updateQueueCap),
		InboundSleep:  inboundSleep,
		WorkerIndex:   workerIndex,
		AppIndex:      appIndex,
	}, nil
}

// Close releases both sleep states' eventfds.
func (p *IOPair) Close() error {
	err1 := p.OutboundSleep.Close()
	err2 := p.InboundSleep.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
