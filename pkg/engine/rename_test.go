package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRename_RoundTripLeavesNoResidue(t *testing.T) {
	env := newTestEnv(t, multiRepo("docs", 5))

	up := uploadFile(t, env, "docs", "dep-1", "a.txt", "payload")
	require.True(t, up.Success, up.Message)

	toB := env.engine.Rename(context.Background(), "docs", "a.txt", "", "b.txt")
	require.True(t, toB.Success, toB.Message)
	assert.Equal(t, RenameCommitted, toB.State)
	require.NotNil(t, toB.Item)
	assert.Equal(t, "b.txt", toB.Item.ItemID)

	backA := env.engine.Rename(context.Background(), "docs", "b.txt", "", "a.txt")
	require.True(t, backA.Success, backA.Message)
	assert.Equal(t, RenameCommitted, backA.State)
	assert.Equal(t, "a.txt", backA.Item.ItemID)

	items, err := env.meta.GetItems(context.Background(), "docs", "dep-1", "")
	require.NoError(t, err)
	require.Len(t, items, 1, "backup records must not survive a committed rename")
	assert.Equal(t, "a.txt", items[0].ItemID)

	data, okData := env.backend.get("a.txt")
	require.True(t, okData)
	assert.Equal(t, "payload", string(data))
	assert.Equal(t, 1, env.backend.count())
}

func TestRename_NewNameCollisionGetsDisambiguated(t *testing.T) {
	env := newTestEnv(t, multiRepo("docs", 5))

	require.True(t, uploadFile(t, env, "docs", "dep-1", "a.txt", "one").Success)
	require.True(t, uploadFile(t, env, "docs", "dep-1", "b.txt", "two").Success)

	res := env.engine.Rename(context.Background(), "docs", "a.txt", "", "b.txt")
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "b (0).txt", res.Item.ItemID)

	data, okData := env.backend.get("b (0).txt")
	require.True(t, okData)
	assert.Equal(t, "one", string(data))
}

func TestRename_MetadataFailureIsPartiallyApplied(t *testing.T) {
	env := newTestEnv(t, multiRepo("docs", 5))

	up := uploadFile(t, env, "docs", "dep-1", "a.txt", "payload")
	require.True(t, up.Success)

	env.meta.failUpsert = true
	res := env.engine.Rename(context.Background(), "docs", "a.txt", "", "b.txt")

	assert.False(t, res.Success)
	assert.Equal(t, CodeConsistencyFailure, res.Code)
	assert.Equal(t, RenamePartiallyApplied, res.State)

	// The bytes moved but the record swap failed: the old record stays
	// as the backup and the object lives under the new key.
	items, err := env.meta.GetItems(context.Background(), "docs", "dep-1", "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "a.txt", items[0].ItemID)

	_, oldExists := env.backend.get("a.txt")
	assert.False(t, oldExists)
	data, newExists := env.backend.get("b.txt")
	require.True(t, newExists)
	assert.Equal(t, "payload", string(data))
}

func TestRename_OpaqueRepositoryKeepsStorageIdentity(t *testing.T) {
	repo := multiRepo("vault", 5)
	repo.IsFileNameEncrypt = true
	env := newTestEnv(t, repo)

	up := uploadFile(t, env, "vault", "dep-1", "secret.pdf", "classified")
	require.True(t, up.Success)
	opaqueID := up.Item.ItemID

	res := env.engine.Rename(context.Background(), "vault", opaqueID, "", "renamed.pdf")
	require.True(t, res.Success, res.Message)
	assert.Equal(t, RenameCommitted, res.State)

	assert.Equal(t, opaqueID, res.Item.ItemID, "opaque identity must not change")
	assert.Equal(t, "renamed.pdf", res.Item.FileName)

	_, stillThere := env.backend.get(opaqueID)
	assert.True(t, stillThere, "stored object must not move")
}

func TestRename_SameNameRejected(t *testing.T) {
	env := newTestEnv(t, multiRepo("docs", 5))

	up := uploadFile(t, env, "docs", "dep-1", "a.txt", "x")
	require.True(t, up.Success)

	res := env.engine.Rename(context.Background(), "docs", "a.txt", "", "a.txt")
	assert.False(t, res.Success)
	assert.Equal(t, CodeValidation, res.Code)
	assert.Equal(t, RenameRejected, res.State)
}

func TestRename_MissingItem(t *testing.T) {
	env := newTestEnv(t, multiRepo("docs", 5))

	res := env.engine.Rename(context.Background(), "docs", "ghost.txt", "", "b.txt")
	assert.False(t, res.Success)
	assert.Equal(t, CodeNotFound, res.Code)
	assert.Equal(t, RenameRejected, res.State)
}
