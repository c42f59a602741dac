// Package plugin defines the seam through which external observer code is
// wired into the dispatch runtime. Plugins receive a Context bundle exactly
// once, at initialization: a registry handle for subscribing, observer
// constructors pre-bound to the plugin's scoped logger, and ancillary service
// handles. The dispatch core keeps no reference back into plugin internals
// beyond the observer instances plugins register, which is what keeps core and
// plugin code free of circular dependencies.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/delphian/tronrelic-sub011/internal/dispatch"
	"github.com/delphian/tronrelic-sub011/internal/pkg/logger"

	"go.uber.org/zap"
)

// ErrCacheMiss is returned by Cache.Get when the key does not exist.
var ErrCacheMiss = errors.New("cache miss")

// Cache is the namespaced key/value store handed to plugins for small
// amounts of shared state (deduplication marks, cursors, counters).
type Cache interface {
	// Get returns the value stored under key, or ErrCacheMiss.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key with the given time-to-live. A zero ttl
	// stores the value without expiration.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// nopCache is the default Cache when no backing store is configured: every
// read misses and writes are discarded.
type nopCache struct{}

var _ Cache = nopCache{}

func (nopCache) Get(ctx context.Context, key string) (string, error) {
	return "", ErrCacheMiss
}

func (nopCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return nil
}

// Plugin is implemented by external observer code. Init is called exactly once
// during startup with the plugin's own Context; the plugin subscribes its
// observers there and must not retain goroutines of its own — all processing
// happens in observer drain loops.
type Plugin interface {
	// Name returns the plugin's unique name, used for logger scoping.
	Name() string

	// Init wires the plugin's observers into the registry carried by pctx.
	Init(ctx context.Context, pctx *Context) error
}

// Context is the dependency bundle handed to a plugin at initialization. One
// Context is built per plugin so the logger scope and observer defaults carry
// the plugin's identity.
type Context struct {
	// Registry is the observer registry the plugin subscribes against.
	Registry *dispatch.Registry

	// Cache is a shared key/value store for small plugin state.
	Cache Cache

	// Logger is the plugin's scoped logger. Observers created through the
	// Context helpers log through a child of this scope automatically.
	Logger *zap.SugaredLogger

	// Thresholds are the category thresholds the enrichment pipeline was
	// configured with, exposed read-only so plugins can mirror core
	// categorization decisions.
	Thresholds dispatch.Thresholds
}

// NewObserver creates a simple observer pre-bound to the plugin's logger
// scope. The plugin supplies only the per-transaction processing function;
// queue, backpressure, and statistics come from the shared skeleton.
func (c *Context) NewObserver(name string, process dispatch.ProcessFunc, opts ...dispatch.ObserverOption) *dispatch.SimpleObserver {
	opts = append([]dispatch.ObserverOption{dispatch.WithObserverLogger(c.Logger.Named(name))}, opts...)
	return dispatch.NewSimpleObserver(name, process, opts...)
}

// NewBatchObserver creates a batch observer pre-bound to the plugin's logger
// scope.
func (c *Context) NewBatchObserver(name string, types []string, process dispatch.BatchProcessFunc, opts ...dispatch.ObserverOption) *dispatch.BatchObserver {
	opts = append([]dispatch.ObserverOption{dispatch.WithObserverLogger(c.Logger.Named(name))}, opts...)
	return dispatch.NewBatchObserver(name, types, process, opts...)
}

// NewBlockObserver creates a block observer pre-bound to the plugin's logger
// scope.
func (c *Context) NewBlockObserver(name string, process dispatch.BlockProcessFunc, opts ...dispatch.ObserverOption) *dispatch.BlockObserver {
	opts = append([]dispatch.ObserverOption{dispatch.WithObserverLogger(c.Logger.Named(name))}, opts...)
	return dispatch.NewBlockObserver(name, process, opts...)
}

// Services carries the shared handles plugin Contexts are derived from.
type Services struct {
	Registry   *dispatch.Registry
	Cache      Cache
	Thresholds dispatch.Thresholds
}

// InitAll initializes every plugin in order, deriving a per-plugin Context
// from the shared services. A plugin whose Init fails aborts startup; a
// half-initialized plugin set would silently drop the failing plugin's
// traffic.
func InitAll(ctx context.Context, services Services, plugins ...Plugin) error {
	cache := services.Cache
	if cache == nil {
		cache = nopCache{}
	}

	for _, p := range plugins {
		pctx := &Context{
			Registry:   services.Registry,
			Cache:      cache,
			Logger:     logger.Named("plugin." + p.Name()),
			Thresholds: services.Thresholds,
		}

		if err := p.Init(ctx, pctx); err != nil {
			return fmt.Errorf("initializing plugin %q: %w", p.Name(), err)
		}

		logger.Info(ctx, "plugin initialized", "plugin", p.Name())
	}

	return nil
}
