// Package app coordinates the service runtime: it starts the chain feed and
// the stats monitor together and shuts them down in the right order, draining
// observer queues before the process exits.
package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/delphian/tronrelic-sub011/internal/chainfeed"
	"github.com/delphian/tronrelic-sub011/internal/dispatch"
	"github.com/delphian/tronrelic-sub011/internal/monitor"
	"github.com/delphian/tronrelic-sub011/internal/pkg/logger"
)

// ErrServiceAlreadyStarted is returned if Start is called more than once.
var ErrServiceAlreadyStarted = errors.New("service already started")

// defaultDrainTimeout bounds how long Close waits for observer queues to
// finish their remaining work.
const defaultDrainTimeout = 10 * time.Second

// Service defines the application lifecycle and coordination entrypoint.
type Service interface {
	// Start launches the chain feed and the stats monitor. Returns
	// ErrServiceAlreadyStarted if called more than once. Call Close to shut
	// down.
	Start(ctx context.Context) error

	// Close shuts down the feed and monitor, stops the registry from
	// accepting new items, and waits for in-flight observer drains up to the
	// configured drain timeout. Safe to call even if never started.
	Close()
}

type service struct {
	mu        sync.Mutex
	isStarted bool

	feed     chainfeed.Service
	monitor  monitor.Service
	registry *dispatch.Registry

	drainTimeout time.Duration
}

var _ Service = (*service)(nil)

// Start launches the two background services. The registry must already carry
// all plugin subscriptions; subscribing after traffic starts is safe but may
// miss early blocks.
func (s *service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isStarted {
		return ErrServiceAlreadyStarted
	}

	if err := s.feed.Start(ctx); err != nil {
		return err
	}

	if err := s.monitor.Start(ctx); err != nil {
		s.feed.Close()
		return err
	}

	s.isStarted = true
	return nil
}

// Close stops producing, then gives observers a bounded window to drain.
func (s *service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isStarted {
		return
	}

	s.feed.Close()
	s.registry.Close()

	ctx, cancel := context.WithTimeout(context.Background(), s.drainTimeout)
	defer cancel()

	if err := s.registry.Wait(ctx); err != nil {
		logger.Warn(ctx, "observer queues not fully drained before shutdown",
			"drain.timeout", s.drainTimeout,
			"error", err,
		)
	}

	s.monitor.Close()
	s.isStarted = false
}

// Option configures the app service.
type Option func(*service)

// WithDrainTimeout overrides how long Close waits for observer queues.
func WithDrainTimeout(d time.Duration) Option {
	return func(s *service) {
		if d > 0 {
			s.drainTimeout = d
		}
	}
}

// New wires the chain feed, the monitor, and the registry into one lifecycle.
func New(feed chainfeed.Service, mon monitor.Service, registry *dispatch.Registry, opts ...Option) *service {
	s := &service{
		feed:         feed,
		monitor:      mon,
		registry:     registry,
		drainTimeout: defaultDrainTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
