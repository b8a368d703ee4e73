//go:build linux

package worker

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/momentics/ringsocket/api"
	"golang.org/x/sys/unix"
)

// parseHostPort turns "host:port" (host may be empty, meaning
// INADDR_ANY) into the [4]byte/int pair unix.SockaddrInet4 expects.
func parseHostPort(hostPort string) ([4]byte, int, error) {
	var addr [4]byte
	host, portStr, found := strings.Cut(hostPort, ":")
	if !found {
		return addr, 0, fmt.Errorf("%w: listener address %q must be host:port", api.ErrInvalidArgument, hostPort)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return addr, 0, fmt.Errorf("%w: invalid port in %q", api.ErrInvalidArgument, hostPort)
	}
	if host == "" {
		return addr, port, nil
	}
	ip := net.ParseIP(host)
	if ip == nil {
		resolved, err := net.ResolveIPAddr("ip4", host)
		if err != nil {
			return addr, 0, fmt.Errorf("%w: cannot resolve host %q: %v", api.ErrInvalidArgument, host, err)
		}
		ip = resolved.IP
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return addr, 0, fmt.Errorf("%w: host %q is not an IPv4 address", api.ErrInvalidArgument, host)
	}
	copy(addr[:], ip4)
	return addr, port, nil
}

// listen creates a non-blocking, SO_REUSEPORT TCP listening socket for
// lc. Every worker calls this independently with the same address:
// SO_REUSEPORT lets the kernel load-balance incoming connections across
// workers without a shared accept lock (spec §2 "horizontally scalable
// ... across a pool of I/O worker threads").
// Listen exposes listen to the server package, which calls it once per
// worker per configured listener so each worker ends up with its own
// SO_REUSEPORT socket rather than sharing one fd across OS threads.
func Listen(lc api.ListenConfig) (int, error) {
	return listen(lc)
}

func listen(lc api.ListenConfig) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, unix.IPPROTO_TCP)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("setsockopt SO_REUSEPORT: %w", err)
	}

	addr, port, err := parseHostPort(lc.Addr)
	if err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: port, Addr: addr}); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("bind %s: %w", lc.Addr, err)
	}
	backlog := lc.Backlog
	if backlog <= 0 {
		backlog = 1024
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("listen %s: %w", lc.Addr, err)
	}
	return fd, nil
}

// accept drains every pending connection on listenFD, returning the
// slice of newly accepted non-blocking socket fds. Empty once accept
// observes EAGAIN (spec's "non-blocking socket syscall surface" is out
// of scope per §1, but the accept-loop shape itself is core plumbing).
func accept(listenFD int) ([]int, error) {
	var out []int
	for {
		fd, _, err := unix.Accept4(listenFD, unix.SOCK_NONBLOCK)
		if err != nil {
			if err == unix.EAGAIN {
				return out, nil
			}
			if err == unix.EINTR || err == unix.ECONNABORTED {
				continue
			}
			return out, fmt.Errorf("accept4: %w", err)
		}
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
		out = append(out, fd)
	}
}
