// File: server/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Server is the orchestration facade: it wires W worker event loops and
// A app event loops together through W*A I/O Pairs and owns their
// combined lifecycle (spec §5 "Concurrency & Resource Model").
// Generalized from the teacher's facade/hioload.go: New/Start/Stop/
// Shutdown with the same shape, repointed at this core's own
// subsystems instead of hioload-ws's transport/pool/executor stack.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/momentics/ringsocket/api"
	"github.com/momentics/ringsocket/control"
	"github.com/momentics/ringsocket/internal/apploop"
	"github.com/momentics/ringsocket/internal/peer"
	"github.com/momentics/ringsocket/internal/reactor"
	"github.com/momentics/ringsocket/internal/ring"
	"github.com/momentics/ringsocket/internal/worker"
)

// Server owns every worker and app thread plus the I/O Pairs linking
// them. Construct with New, then Start; Shutdown tears everything down.
type Server struct {
	cfg     *api.Config
	apps    []api.App
	control *control.ConfigStore
	metrics *control.MetricsRegistry
	log     *slog.Logger

	workers []*worker.Worker
	loops   []*apploop.Loop

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	errs    chan error
}

// New validates cfg, constructs the worker/app topology described by
// it, and returns an unstarted Server. apps must have exactly
// cfg.AppCount entries, one api.App per app thread.
func New(cfg *api.Config, apps []api.App, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = api.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(apps) != cfg.AppCount {
		return nil, fmt.Errorf("%w: %d apps given, config specifies AppCount=%d", api.ErrInvalidArgument, len(apps), cfg.AppCount)
	}

	s := &Server{
		cfg:     cfg,
		apps:    apps,
		control: control.NewConfigStore(),
		metrics: control.NewMetricsRegistry(),
		log:     slog.Default(),
		stopCh:  make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}

	tlsConfig, err := buildTLSConfig(cfg.Listeners)
	if err != nil {
		return nil, err
	}

	listenerIsTLS := make([]bool, len(cfg.Listeners))
	for i, lc := range cfg.Listeners {
		listenerIsTLS[i] = lc.TLS
	}

	pairs := make([][]*ring.IOPair, cfg.WorkerCount)
	for w := 0; w < cfg.WorkerCount; w++ {
		pairs[w] = make([]*ring.IOPair, cfg.AppCount)
		for a := 0; a < cfg.AppCount; a++ {
			p, err := ring.NewIOPair(uint32(w), uint32(a), cfg.OutboundRingInitialSize, cfg.InboundRingInitialSize, cfg.UpdateQueueSize, cfg.ResizeMultiplier, s.metrics)
			if err != nil {
				return nil, fmt.Errorf("allocating I/O pair (worker %d, app %d): %w", w, a, err)
			}
			pairs[w][a] = p
		}
	}

	s.workers = make([]*worker.Worker, cfg.WorkerCount)
	for w := 0; w < cfg.WorkerCount; w++ {
		listenerFDs, err := openWorkerListeners(cfg.Listeners)
		if err != nil {
			return nil, fmt.Errorf("worker %d listeners: %w", w, err)
		}
		rx, err := reactor.New()
		if err != nil {
			return nil, fmt.Errorf("worker %d reactor: %w", w, err)
		}
		table := peer.NewTable(cfg.PeerSlotsPerWorker)
		table.SetMetrics(uint32(w), s.metrics)
		s.workers[w] = worker.New(uint32(w), table, rx, pairs[w], listenerFDs, listenerIsTLS, cfg.MaxMessageSize, tlsConfig, s.log)
		s.workers[w].SetMetrics(s.metrics)
	}

	s.loops = make([]*apploop.Loop, cfg.AppCount)
	for a := 0; a < cfg.AppCount; a++ {
		appPairs := make([]*ring.IOPair, cfg.WorkerCount)
		for w := 0; w < cfg.WorkerCount; w++ {
			appPairs[w] = pairs[w][a]
		}
		rx, err := reactor.New()
		if err != nil {
			return nil, fmt.Errorf("app %d reactor: %w", a, err)
		}
		s.loops[a] = apploop.New(uint32(a), apps[a], appPairs, rx, 0, s.log)
	}

	return s, nil
}

// Start registers every worker and app loop with its reactor and spins
// up one locked OS thread per loop (spec §5: "parallel OS threads plus
// cooperative event loops per thread").
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return api.ErrAlreadyRunning
	}

	s.errs = make(chan error, len(s.workers)+len(s.loops))

	for _, w := range s.workers {
		if err := w.Setup(); err != nil {
			return fmt.Errorf("worker %d setup: %w", w.Index, err)
		}
	}
	for _, l := range s.loops {
		if err := l.Setup(); err != nil {
			return fmt.Errorf("app %d setup: %w", l.Index, err)
		}
	}

	for _, w := range s.workers {
		w := w
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			if err := w.Run(s.stopCh); err != nil {
				s.errs <- fmt.Errorf("worker %d: %w", w.Index, err)
			}
		}()
	}
	for _, l := range s.loops {
		l := l
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			if err := l.Run(s.stopCh); err != nil {
				s.errs <- fmt.Errorf("app %d: %w", l.Index, err)
			}
		}()
	}

	s.started = true
	return nil
}

// Wait blocks until every worker and app loop has exited, returning
// the first error any of them reported (if any).
func (s *Server) Wait() error {
	s.wg.Wait()
	close(s.errs)
	var first error
	for err := range s.errs {
		if first == nil {
			first = err
		}
		s.log.Error("event loop terminated with error", "error", err)
	}
	return first
}

// Shutdown signals every loop to stop and blocks until they exit or
// ctx is done, whichever comes first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return api.ErrNotRunning
	}
	s.started = false
	s.mu.Unlock()

	close(s.stopCh)

	done := make(chan error, 1)
	go func() { done <- s.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return errors.New("server: shutdown deadline exceeded with loops still running")
	}
}

// Control exposes the dynamic, hot-reloadable configuration store.
func (s *Server) Control() *control.ConfigStore { return s.control }

// Metrics exposes the runtime metrics registry.
func (s *Server) Metrics() *control.MetricsRegistry { return s.metrics }

func buildTLSConfig(listeners []api.ListenConfig) (*tls.Config, error) {
	for _, l := range listeners {
		if !l.TLS {
			continue
		}
		cert, err := tls.LoadX509KeyPair(l.CertFile, l.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading TLS keypair for %s: %w", l.Addr, err)
		}
		return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}, nil
	}
	return nil, nil
}
