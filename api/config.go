// Author: momentics <momentics@gmail.com>
//
// Config is the frozen configuration structure the core consumes.
// Environment and file parsing are external (spec §1, §6); this package
// only defines the shape and validates it.
package api

import (
	"fmt"
	"time"
)

// ListenConfig describes one bound listening port.
type ListenConfig struct {
	Addr      string // host:port
	TLS       bool
	CertFile  string // external: loaded by the caller, not this package
	KeyFile   string
	Backlog   int
}

// Config is populated by the caller before Server.New and never mutated
// afterward; it is shared read-only by every worker and app thread.
type Config struct {
	// WorkerCount is the number of I/O worker OS threads (W in spec §5).
	WorkerCount int
	// AppCount is the number of application OS threads (A in spec §5).
	AppCount int
	// UpdateQueueSize is the bounded FIFO depth per (worker,app) producer.
	// Overflow is FATAL per spec §3.
	UpdateQueueSize int
	// OutboundRingInitialSize is the initial byte capacity of each
	// outbound (app->worker) ring.
	OutboundRingInitialSize int
	// InboundRingInitialSize is the initial byte capacity of each
	// inbound (worker->app) ring.
	InboundRingInitialSize int
	// ResizeMultiplier scales a ring's new size relative to occupancy
	// when it must grow. Must be > 1.0, typically 1.5-2.0.
	ResizeMultiplier float64
	// MaxMessageSize bounds a single reassembled WebSocket message.
	MaxMessageSize int
	// Listeners are the ports this server binds.
	Listeners []ListenConfig
	// PeerSlotsPerWorker is the fixed capacity of each worker's peer table.
	PeerSlotsPerWorker int
	// ReadTimeout/WriteTimeout are carried in the configuration but no
	// component reads them; peer I/O has no per-attempt deadline.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// ShutdownTimeout is carried in the configuration but not read;
	// Server.Shutdown is bounded only by the context passed to it.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns sane defaults matching the teacher's
// DefaultConfig shape (server/hioload.go).
func DefaultConfig() *Config {
	return &Config{
		WorkerCount:             4,
		AppCount:                1,
		UpdateQueueSize:         1024,
		OutboundRingInitialSize: 64 * 1024,
		InboundRingInitialSize:  64 * 1024,
		ResizeMultiplier:        1.5,
		MaxMessageSize:          1 << 20,
		PeerSlotsPerWorker:      65536,
		ReadTimeout:             30 * time.Second,
		WriteTimeout:            30 * time.Second,
		ShutdownTimeout:         10 * time.Second,
	}
}

// Option mutates a Config after DefaultConfig, before it is frozen by
// Server.New.
type Option func(*Config)

func WithWorkerCount(n int) Option        { return func(c *Config) { c.WorkerCount = n } }
func WithAppCount(n int) Option           { return func(c *Config) { c.AppCount = n } }
func WithMaxMessageSize(n int) Option     { return func(c *Config) { c.MaxMessageSize = n } }
func WithListener(lc ListenConfig) Option { return func(c *Config) { c.Listeners = append(c.Listeners, lc) } }

// Validate checks invariants the core relies on and returns a descriptive
// error instead of panicking deep inside a worker loop.
func (c *Config) Validate() error {
	if c.WorkerCount < 1 {
		return fmt.Errorf("%w: worker count must be >= 1", ErrInvalidArgument)
	}
	if c.AppCount < 1 {
		return fmt.Errorf("%w: app count must be >= 1", ErrInvalidArgument)
	}
	if c.UpdateQueueSize < 1 {
		return fmt.Errorf("%w: update queue size must be >= 1", ErrInvalidArgument)
	}
	if c.ResizeMultiplier <= 1.0 {
		return fmt.Errorf("%w: resize multiplier must be > 1.0", ErrInvalidArgument)
	}
	if c.MaxMessageSize < 1 {
		return fmt.Errorf("%w: max message size must be >= 1", ErrInvalidArgument)
	}
	if len(c.Listeners) == 0 {
		return fmt.Errorf("%w: at least one listener is required", ErrInvalidArgument)
	}
	for _, l := range c.Listeners {
		if l.Addr == "" {
			return fmt.Errorf("%w: listener address must not be empty", ErrInvalidArgument)
		}
		if l.TLS && (l.CertFile == "" || l.KeyFile == "") {
			return fmt.Errorf("%w: TLS listener requires cert and key files", ErrInvalidArgument)
		}
	}
	return nil
}
