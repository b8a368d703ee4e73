//go:build !linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import "errors"

// New returns an error on platforms without an epoll-equivalent wired
// up, matching the teacher's reactor_stub.go.
func New() (Reactor, error) {
	return nil, errors.New("reactor: epoll is only supported on linux")
}
