// File: server/options.go
// Package server defines functional options for the Server facade.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import "log/slog"

// Option customizes a Server during New, before its workers and app
// loops are constructed.
type Option func(*Server)

// WithLogger overrides the default slog.Logger shared by every worker
// and app loop.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}
