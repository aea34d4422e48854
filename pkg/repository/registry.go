package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/stormrose-io/filegate/internal/logger"
)

// Loader produces the full repository list from its source. FileLoader
// reads a JSON definition file; the remote metadata package provides a
// loader backed by the metadata service.
type Loader interface {
	Load(ctx context.Context) ([]Repository, error)
}

// Registry holds the current repository snapshot. Lookups read an
// atomically swapped immutable snapshot, so a concurrent Refresh never
// exposes a partially updated list. In-flight operations that already
// resolved a *Repository keep using the snapshot they saw.
type Registry struct {
	loader   Loader
	snapshot atomic.Pointer[registrySnapshot]
}

type registrySnapshot struct {
	byID  map[string]*Repository
	order []*Repository
}

// NewRegistry creates a registry backed by the given loader. The
// registry is empty until the first Refresh.
func NewRegistry(loader Loader) *Registry {
	r := &Registry{loader: loader}
	r.snapshot.Store(&registrySnapshot{byID: map[string]*Repository{}})
	return r
}

// Refresh reloads the repository list from the loader and swaps it in.
// On any error the previous snapshot stays active.
func (r *Registry) Refresh(ctx context.Context) error {
	repos, err := r.loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("load repositories: %w", err)
	}
	if len(repos) == 0 {
		return ErrNoRepositories
	}

	snap := &registrySnapshot{
		byID:  make(map[string]*Repository, len(repos)),
		order: make([]*Repository, 0, len(repos)),
	}
	for i := range repos {
		repo := repos[i]
		if err := (&repo).normalize(); err != nil {
			return fmt.Errorf("invalid repository definition: %w", err)
		}
		if _, dup := snap.byID[repo.RepositoryID]; dup {
			return fmt.Errorf("duplicate repository id %q", repo.RepositoryID)
		}
		snap.byID[repo.RepositoryID] = &repo
		snap.order = append(snap.order, &repo)
	}

	r.snapshot.Store(snap)
	logger.Info("repository registry refreshed: %d repositories", len(repos))
	return nil
}

// Get returns the repository with the given ID from the current
// snapshot. The returned record is shared and must not be mutated.
func (r *Registry) Get(repositoryID string) (*Repository, error) {
	snap := r.snapshot.Load()
	repo, ok := snap.byID[repositoryID]
	if !ok {
		return nil, fmt.Errorf("repository %q: %w", repositoryID, ErrRepositoryNotFound)
	}
	return repo, nil
}

// List returns all repositories in definition order.
func (r *Registry) List() []*Repository {
	return r.snapshot.Load().order
}

// FileLoader loads repository definitions from a JSON file containing
// an array of Repository records.
type FileLoader struct {
	Path string
}

func (l FileLoader) Load(ctx context.Context) ([]Repository, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, fmt.Errorf("read repository definition %s: %w", l.Path, err)
	}

	var repos []Repository
	if err := json.Unmarshal(data, &repos); err != nil {
		return nil, fmt.Errorf("parse repository definition %s: %w", l.Path, err)
	}
	return repos, nil
}

// StaticLoader serves a fixed repository list. Used by tests and by
// deployments that wire the list programmatically.
type StaticLoader []Repository

func (l StaticLoader) Load(ctx context.Context) ([]Repository, error) {
	return l, nil
}
