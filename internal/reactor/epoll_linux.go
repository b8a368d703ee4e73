//go:build linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// epollReactor is the Linux implementation of Reactor, grounded on
// reactor/epoll_reactor.go from the teacher: golang.org/x/sys/unix
// directly (no raw syscall package), userData tracked in a side map
// keyed by fd rather than packed into the kernel event's Fd/Pad union,
// since this core's events need both the fd and the opaque userData
// back out of Wait.
type epollReactor struct {
	epfd int
	buf  []unix.EpollEvent
	data sync.Map // map[int]uint64
}

// New creates an epoll-backed Reactor.
func New() (Reactor, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &epollReactor{epfd: epfd, buf: make([]unix.EpollEvent, 256)}, nil
}

func interestMask(i Interest) uint32 {
	var ev uint32 = unix.EPOLLET
	if i&InterestRead != 0 {
		ev |= unix.EPOLLIN
	}
	if i&InterestWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (r *epollReactor) Add(fd uintptr, userData uint64, interest Interest) error {
	ev := &unix.EpollEvent{Events: interestMask(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, int(fd), ev); err != nil {
		return fmt.Errorf("epoll_ctl add fd=%d: %w", fd, err)
	}
	r.data.Store(int(fd), userData)
	return nil
}

func (r *epollReactor) Modify(fd uintptr, userData uint64, interest Interest) error {
	ev := &unix.EpollEvent{Events: interestMask(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, int(fd), ev); err != nil {
		return fmt.Errorf("epoll_ctl mod fd=%d: %w", fd, err)
	}
	r.data.Store(int(fd), userData)
	return nil
}

func (r *epollReactor) Remove(fd uintptr) error {
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, int(fd), nil); err != nil {
		return fmt.Errorf("epoll_ctl del fd=%d: %w", fd, err)
	}
	r.data.Delete(int(fd))
	return nil
}

func (r *epollReactor) Wait(dst []Event, timeoutMs int) ([]Event, error) {
	n, err := unix.EpollWait(r.epfd, r.buf, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return dst[:0], nil
		}
		return dst[:0], fmt.Errorf("epoll_wait: %w", err)
	}
	dst = dst[:0]
	for i := 0; i < n; i++ {
		raw := r.buf[i]
		var userData uint64
		if v, ok := r.data.Load(int(raw.Fd)); ok {
			userData = v.(uint64)
		}
		dst = append(dst, Event{
			Fd:       uintptr(raw.Fd),
			UserData: userData,
			Read:     raw.Events&unix.EPOLLIN != 0,
			Write:    raw.Events&unix.EPOLLOUT != 0,
			Error:    raw.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0,
		})
	}
	return dst, nil
}

func (r *epollReactor) Close() error {
	return unix.Close(r.epfd)
}
