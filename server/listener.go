// File: server/listener.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"fmt"
	"net"

	"github.com/momentics/ringsocket/api"
	"github.com/momentics/ringsocket/internal/worker"
	"golang.org/x/sys/unix"
)

// openWorkerListeners opens one SO_REUSEPORT socket per configured
// listener for a single worker. Called once per worker so every OS
// thread ends up with its own fd bound to the same address; the
// kernel load-balances accepted connections across them.
func openWorkerListeners(listeners []api.ListenConfig) ([]int, error) {
	fds := make([]int, 0, len(listeners))
	for _, lc := range listeners {
		fd, err := worker.Listen(lc)
		if err != nil {
			for _, prior := range fds {
				unix.Close(prior)
			}
			return nil, fmt.Errorf("listener %s: %w", lc.Addr, err)
		}
		fds = append(fds, fd)
	}
	return fds, nil
}

// listenerBoundAddr reports the host:port fd is actually bound to,
// resolving an OS-assigned ephemeral port (e.g. from a ":0" config) for
// tests that need to dial back into a just-started server.
func listenerBoundAddr(fd int) (string, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return "", fmt.Errorf("getsockname: %w", err)
	}
	in4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return "", fmt.Errorf("unexpected sockaddr type %T", sa)
	}
	ip := net.IP(in4.Addr[:])
	return net.JoinHostPort(ip.String(), fmt.Sprintf("%d", in4.Port)), nil
}
