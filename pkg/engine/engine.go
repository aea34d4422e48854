// Package engine implements the repository storage engine: the
// coordinators that combine path policy, storage backends, and
// metadata stores into the gateway's upload, download, rename,
// reparent, and removal operations.
//
// Ordering contract shared by all coordinators: storage mutations
// happen before metadata commits. When metadata fails after storage
// succeeded, the storage side effect is kept and the failure is
// reported; the system prefers an orphaned blob over a metadata record
// that points at nothing.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stormrose-io/filegate/internal/logger"
	"github.com/stormrose-io/filegate/pkg/metadata"
	"github.com/stormrose-io/filegate/pkg/metrics"
	"github.com/stormrose-io/filegate/pkg/repository"
	"github.com/stormrose-io/filegate/pkg/storage"
)

// BackendFactory constructs the storage backend for a repository.
// Called once per repository; the engine caches the result until the
// registry is refreshed.
type BackendFactory func(ctx context.Context, repo *repository.Repository) (storage.Backend, error)

// Engine owns the coordinators' shared dependencies.
type Engine struct {
	registry *repository.Registry
	meta     metadata.Store
	factory  BackendFactory
	ops      *metrics.OperationMetrics

	// now is the clock used for policy paths and timestamps.
	// Swappable for tests.
	now func() time.Time

	mu       sync.Mutex
	backends map[string]storage.Backend
}

// Option customizes engine construction.
type Option func(*Engine)

// WithClock overrides the engine clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMetrics attaches an operation metric set.
func WithMetrics(ops *metrics.OperationMetrics) Option {
	return func(e *Engine) { e.ops = ops }
}

// New creates an engine over the given registry, metadata store, and
// backend factory.
func New(registry *repository.Registry, meta metadata.Store, factory BackendFactory, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		meta:     meta,
		factory:  factory,
		ops:      metrics.NewOperationMetrics(),
		now:      time.Now,
		backends: make(map[string]storage.Backend),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry exposes the repository registry for read-side callers.
func (e *Engine) Registry() *repository.Registry {
	return e.registry
}

// Refresh reloads the repository list and drops cached backends so the
// next operation on each repository reconnects with fresh
// configuration. In-flight operations keep the snapshot and backend
// they already resolved.
func (e *Engine) Refresh(ctx context.Context) error {
	if err := e.registry.Refresh(ctx); err != nil {
		return err
	}
	e.mu.Lock()
	e.backends = make(map[string]storage.Backend)
	e.mu.Unlock()
	return nil
}

// backendFor returns the cached backend for a repository, constructing
// it on first use.
func (e *Engine) backendFor(ctx context.Context, repo *repository.Repository) (storage.Backend, error) {
	e.mu.Lock()
	if backend, ok := e.backends[repo.RepositoryID]; ok {
		e.mu.Unlock()
		return backend, nil
	}
	e.mu.Unlock()

	backend, err := e.factory(ctx, repo)
	if err != nil {
		return nil, fmt.Errorf("storage backend for %s: %w", repo.RepositoryID, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	// Another request may have raced the construction; keep the first.
	if existing, ok := e.backends[repo.RepositoryID]; ok {
		return existing, nil
	}
	e.backends[repo.RepositoryID] = backend
	return backend, nil
}

// observe records one finished operation.
func (e *Engine) observe(operation, repositoryID string, success bool, started time.Time) {
	e.ops.ObserveOperation(operation, repositoryID, success, time.Since(started))
	if !success {
		logger.Debug("%s on %s failed", operation, repositoryID)
	}
}
