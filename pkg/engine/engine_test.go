package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stormrose-io/filegate/pkg/metadata"
	"github.com/stormrose-io/filegate/pkg/metadata/badgerstore"
	"github.com/stormrose-io/filegate/pkg/repository"
	"github.com/stormrose-io/filegate/pkg/storage"
)

// memBackend is an in-memory storage.Backend with injectable failures.
type memBackend struct {
	mu      sync.Mutex
	objects map[string][]byte

	saveErr   error
	deleteErr error
	renameErr error
}

func newMemBackend() *memBackend {
	return &memBackend{objects: make(map[string][]byte)}
}

func (b *memBackend) Exists(ctx context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key]
	return ok, nil
}

func (b *memBackend) Save(ctx context.Context, key string, r io.Reader, _ string) error {
	if b.saveErr != nil {
		return b.saveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	return nil
}

func (b *memBackend) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *memBackend) Delete(ctx context.Context, key string) error {
	if b.deleteErr != nil {
		return b.deleteErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

func (b *memBackend) Rename(ctx context.Context, oldKey, newKey string) error {
	if b.renameErr != nil {
		return b.renameErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[oldKey]
	if !ok {
		return storage.ErrObjectNotFound
	}
	b.objects[newKey] = data
	delete(b.objects, oldKey)
	return nil
}

func (b *memBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

func (b *memBackend) get(key string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	return data, ok
}

// flakyStore wraps a metadata.Store with injectable failures.
type flakyStore struct {
	metadata.Store

	failUpsert bool

	// failUpdateDependencyOn fails the Nth UpdateDependencyID call
	// (1-based). Zero disables the injection.
	failUpdateDependencyOn int
	updateCalls            int
}

func (s *flakyStore) UpsertItem(ctx context.Context, item *metadata.Item) error {
	if s.failUpsert {
		return errors.New("injected upsert failure")
	}
	return s.Store.UpsertItem(ctx, item)
}

func (s *flakyStore) UpdateDependencyID(ctx context.Context, key metadata.ItemKey, newDependencyID string) error {
	s.updateCalls++
	if s.failUpdateDependencyOn > 0 && s.updateCalls == s.failUpdateDependencyOn {
		return errors.New("injected update failure")
	}
	return s.Store.UpdateDependencyID(ctx, key, newDependencyID)
}

type testEnv struct {
	engine  *Engine
	backend *memBackend
	meta    *flakyStore
}

var testClock = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T, repos ...repository.Repository) *testEnv {
	t.Helper()

	store, err := badgerstore.New(badgerstore.Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	backend := newMemBackend()
	meta := &flakyStore{Store: store}
	registry := repository.NewRegistry(repository.StaticLoader(repos))
	require.NoError(t, registry.Refresh(context.Background()))

	eng := New(registry, meta,
		func(ctx context.Context, repo *repository.Repository) (storage.Backend, error) {
			return backend, nil
		},
		WithClock(func() time.Time { return testClock }),
	)
	return &testEnv{engine: eng, backend: backend, meta: meta}
}

func multiRepo(id string, count int) repository.Repository {
	return repository.Repository{
		RepositoryID:  id,
		StorageType:   repository.StorageFileSystem,
		PhysicalPath:  "/tmp/filegate-test",
		IsMultiUpload: true,
		UploadCount:   count,
	}
}

func uploadFile(t *testing.T, env *testEnv, repoID, depID, name, content string) UploadResult {
	t.Helper()
	return env.engine.Upload(context.Background(), UploadParams{
		RepositoryID: repoID,
		DependencyID: depID,
		FileName:     name,
		Size:         int64(len(content)),
		Content:      bytes.NewReader([]byte(content)),
	})
}

func readAll(t *testing.T, rc io.ReadCloser) []byte {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return data
}
