package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingLoader struct{ err error }

func (l failingLoader) Load(ctx context.Context) ([]Repository, error) {
	return nil, l.err
}

func TestRegistry_RefreshAndGet(t *testing.T) {
	reg := NewRegistry(StaticLoader{
		{RepositoryID: "a"},
		{RepositoryID: "b", StorageType: StorageObjectStore, ContainerID: "bucket"},
	})
	require.NoError(t, reg.Refresh(context.Background()))

	a, err := reg.Get("a")
	require.NoError(t, err)
	assert.Equal(t, StorageFileSystem, a.StorageType, "storage type defaults to filesystem")
	assert.Equal(t, 1, a.UploadCount, "upload count defaults to one")
	assert.False(t, a.Transactions.GetItem.IsZero(), "transactions fall back to defaults")

	_, err = reg.Get("missing")
	assert.ErrorIs(t, err, ErrRepositoryNotFound)

	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].RepositoryID)
	assert.Equal(t, "b", list[1].RepositoryID)
}

func TestRegistry_EmptyBeforeFirstRefresh(t *testing.T) {
	reg := NewRegistry(StaticLoader{{RepositoryID: "a"}})

	_, err := reg.Get("a")
	assert.ErrorIs(t, err, ErrRepositoryNotFound)
	assert.Empty(t, reg.List())
}

func TestRegistry_FailedRefreshKeepsOldSnapshot(t *testing.T) {
	reg := NewRegistry(StaticLoader{{RepositoryID: "a"}})
	require.NoError(t, reg.Refresh(context.Background()))

	reg.loader = failingLoader{err: errors.New("source unreachable")}
	err := reg.Refresh(context.Background())
	require.Error(t, err)

	a, err := reg.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "a", a.RepositoryID)
}

func TestRegistry_RejectsDuplicateIDs(t *testing.T) {
	reg := NewRegistry(StaticLoader{
		{RepositoryID: "a"},
		{RepositoryID: "a"},
	})

	err := reg.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestRegistry_RejectsEmptyList(t *testing.T) {
	reg := NewRegistry(StaticLoader{})

	err := reg.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrNoRepositories)
}

func TestRegistry_RejectsUnknownStorageType(t *testing.T) {
	reg := NewRegistry(StaticLoader{{RepositoryID: "a", StorageType: "tape"}})

	err := reg.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage type")
}
