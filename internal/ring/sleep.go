//go:build linux

package ring

import (
	"encoding/binary"
	"errors"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Sleep states for SleepState.State.
const (
	Awake  int32 = 0
	Asleep int32 = 1
)

// ErrWaitTimeout is returned by SleepState.Wait when it was given a
// non-negative timeout and no wake arrived before it elapsed (used for
// app timer callbacks, spec §4.2 step 5 "optionally with timeout").
var ErrWaitTimeout = errors.New("ring: sleep wait timed out")

// SleepState is the per-consumer atomic flag word paired with an
// eventfd-equivalent wake descriptor (spec §3 "Sleep State", §6 "Wake
// descriptor"). Exactly one goroutine (the consumer that owns it) may
// call TrySleep/Wait/WakeSelf; any number of producer goroutines may
// call Notify.
type SleepState struct {
	flag atomic.Int32
	fd   int
}

// NewSleepState creates a SleepState backed by a fresh Linux eventfd.
func NewSleepState() (*SleepState, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, err
	}
	return &SleepState{fd: fd}, nil
}

// FD returns the underlying eventfd, for registration with an epoll
// instance (a worker watches it alongside sockets; an app thread may
// instead block on it directly via Wait).
func (s *SleepState) FD() int { return s.fd }

// State returns the current AWAKE/ASLEEP value.
func (s *SleepState) State() int32 { return s.flag.Load() }

// TrySleep attempts the AWAKE->ASLEEP transition and reports whether it
// succeeded. Callers must follow spec §4.2's double-check protocol:
// drain, TrySleep, re-scan for new data, and only actually block (Wait)
// if the re-scan still finds everything empty — otherwise WakeSelf and
// drain again.
func (s *SleepState) TrySleep() bool {
	return s.flag.CompareAndSwap(Awake, Asleep)
}

// WakeSelf resets the state to AWAKE without touching the eventfd (used
// by the consumer itself when its post-sleep re-scan finds new data
// before it ever calls Wait).
func (s *SleepState) WakeSelf() {
	s.flag.Store(Awake)
}

// Notify wakes the consumer if and only if it observes ASLEEP,
// coalescing any number of prior publishes into a single eventfd write
// (spec §4.2: "If ASLEEP, write 1 to its eventfd-equivalent; otherwise
// do nothing"). Safe to call from any producer goroutine.
func (s *SleepState) Notify() error {
	if s.flag.Load() != Asleep {
		return nil
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	for {
		_, err := unix.Write(s.fd, buf[:])
		if err == nil {
			return nil
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			// Counter already non-zero (a wake is already pending); fine.
			return nil
		}
		return err
	}
}

// Wait blocks the calling (consumer) goroutine until woken via Notify,
// or until timeoutMs elapses if timeoutMs >= 0 (used for periodic timer
// callbacks). On return, the state is reset to AWAKE. It is the
// consumer's responsibility to drain and TrySleep again afterward.
func (s *SleepState) Wait(timeoutMs int) error {
	if timeoutMs >= 0 {
		pfd := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLIN}}
		n, err := unix.Poll(pfd, timeoutMs)
		if err != nil && err != unix.EINTR {
			return err
		}
		if n == 0 {
			s.flag.Store(Awake)
			return ErrWaitTimeout
		}
	}
	var buf [8]byte
	for {
		_, err := unix.Read(s.fd, buf[:])
		if err == nil {
			break
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			// No wake pending yet (the normal case when timeoutMs < 0,
			// since no poll precedes the read): block until one arrives.
			_ = unix.SetNonblock(s.fd, false)
			_, err2 := unix.Read(s.fd, buf[:])
			_ = unix.SetNonblock(s.fd, true)
			if err2 != nil {
				return err2
			}
			break
		}
		return err
	}
	s.flag.Store(Awake)
	return nil
}

// ConsumeWake performs a single non-blocking read of the eventfd
// counter and resets the state to AWAKE, for a consumer that
// multiplexes this SleepState's FD through its own reactor rather than
// blocking on Wait directly (spec §5: "workers block in epoll-wait" —
// a worker registers OutboundSleep.FD() alongside peer sockets and
// calls ConsumeWake when the reactor reports it readable, instead of
// ever calling Wait). Safe to call even if no wake is pending.
func (s *SleepState) ConsumeWake() {
	var buf [8]byte
	unix.Read(s.fd, buf[:])
	s.flag.Store(Awake)
}

// Close releases the underlying eventfd.
func (s *SleepState) Close() error {
	return unix.Close(s.fd)
}
