// Package reactor wraps the platform readiness notifier each Worker
// Event Loop polls (spec §2.6, §5 "Workers block in epoll-wait").
// Generalized from the teacher's reactor package: that package exposes
// an opaque UserData per registration, which is enough for a transport
// layer but not for this core's dispatch, which needs to know whether
// a wakeup was for read or write readiness (or both, or an error) to
// route correctly between the peer I/O state machine and the fan-out
// write path (spec §4.3, §4.4).
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package reactor

import "fmt"

// Interest is a bitmask of readiness classes a registration cares
// about.
type Interest uint8

const (
	InterestRead Interest = 1 << iota
	InterestWrite
)

// Event is one readiness notification. UserData is opaque to the
// reactor and is round-tripped verbatim; callers use it to carry a
// peer slot index or a small sentinel identifying a listener or wake
// descriptor.
type Event struct {
	Fd       uintptr
	UserData uint64
	Read     bool
	Write    bool
	Error    bool
}

func (e Event) String() string {
	return fmt.Sprintf("Event{fd=%d data=%d r=%v w=%v err=%v}", e.Fd, e.UserData, e.Read, e.Write, e.Error)
}

// Reactor is the platform-neutral readiness notifier interface. The
// core registers edge-triggered interest (spec §1 "backpressure via an
// edge-triggered readiness notifier") for sockets and eventfds alike.
type Reactor interface {
	Add(fd uintptr, userData uint64, interest Interest) error
	Modify(fd uintptr, userData uint64, interest Interest) error
	Remove(fd uintptr) error
	// Wait blocks until at least one registered descriptor is ready, or
	// timeoutMs elapses (negative blocks indefinitely), and appends
	// ready events to dst[:0]. Returns the events slice and any error.
	Wait(dst []Event, timeoutMs int) ([]Event, error)
	Close() error
}
