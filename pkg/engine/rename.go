package engine

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"

	"github.com/stormrose-io/filegate/internal/logger"
	"github.com/stormrose-io/filegate/pkg/metadata"
	"github.com/stormrose-io/filegate/pkg/repository"
)

// Rename changes an item's display name and, for literal-named
// repositories, moves the stored object to match.
//
// The state machine runs storage-first: move the bytes, upsert the
// record under the new identity with the old record kept as backup,
// then delete the backup only after the upsert succeeded. A metadata
// failure after the move therefore leaves the old record and the moved
// object in place (state partially-applied); the old record keeps the
// file findable and the moved object is at worst an orphan.
func (e *Engine) Rename(ctx context.Context, repositoryID, itemID, businessID, newFileName string) RenameResult {
	started := e.now()
	res := e.rename(ctx, repositoryID, itemID, businessID, newFileName)
	e.observe("rename", repositoryID, res.Success, started)
	return res
}

func (e *Engine) rename(ctx context.Context, repositoryID, itemID, businessID, newFileName string) RenameResult {
	if repositoryID == "" || itemID == "" || newFileName == "" {
		return RenameResult{
			Result: fail(CodeValidation, "repositoryId, itemId and the new file name are required"),
			State:  RenameRejected,
		}
	}

	repo, err := e.registry.Get(repositoryID)
	if err != nil {
		return RenameResult{
			Result: fail(CodeNotFound, fmt.Sprintf("repository %q not found", repositoryID)),
			State:  RenameRejected,
		}
	}

	item, err := e.meta.GetItem(ctx, metadata.ItemKey{RepositoryID: repositoryID, ItemID: itemID, BusinessID: businessID})
	if err != nil {
		if errors.Is(err, metadata.ErrItemNotFound) {
			return RenameResult{
				Result: fail(CodeNotFound, fmt.Sprintf("item %q not found", itemID)),
				State:  RenameRejected,
			}
		}
		logger.Error("rename: get item %s/%s: %v", repositoryID, itemID, err)
		return RenameResult{Result: fail(CodeBackendFailure, "failed to query item metadata"), State: RenameRejected}
	}

	if newFileName == item.FileName {
		return RenameResult{
			Result: fail(CodeValidation, "the new file name must differ from the current one"),
			State:  RenameRejected,
		}
	}

	// Opaque-named repositories keep the generated storage identity;
	// only the display name changes.
	if repo.IsFileNameEncrypt {
		updated := *item
		updated.FileName = newFileName
		if ext := path.Ext(newFileName); ext != "" {
			updated.Extension = ext
		}
		if err := e.meta.UpsertItem(ctx, &updated); err != nil {
			logger.Error("rename: update display name %s/%s: %v", repositoryID, itemID, err)
			return RenameResult{Result: fail(CodeBackendFailure, "failed to update item metadata"), State: RenameRejected}
		}
		return RenameResult{Result: ok(), State: RenameCommitted, Item: &updated}
	}

	backend, err := e.backendFor(ctx, repo)
	if err != nil {
		logger.Error("rename: %v", err)
		return RenameResult{Result: fail(CodeBackendFailure, "storage backend unavailable"), State: RenameRejected}
	}

	dir := repository.RelativeDir(item.CustomPath1, item.CustomPath2, item.CustomPath3, item.PolicyPath)

	newItemID := newFileName
	if !repo.IsFileOverwrite {
		newItemID, err = repository.UniqueFileName(ctx, backend, dir, newFileName)
		if err != nil {
			logger.Error("rename: resolve new name %q: %v", newFileName, err)
			return RenameResult{Result: fail(CodeBackendFailure, "failed to resolve the new stored name"), State: RenameRejected}
		}
	}

	oldKey := item.StorageKey()
	newKey := dir + newItemID

	exists, err := backend.Exists(ctx, oldKey)
	if err != nil {
		logger.Error("rename: probe %q: %v", oldKey, err)
		return RenameResult{Result: fail(CodeBackendFailure, "failed to locate stored file"), State: RenameRejected}
	}
	if exists {
		if err := backend.Rename(ctx, oldKey, newKey); err != nil {
			logger.Error("rename: move %q to %q: %v", oldKey, newKey, err)
			return RenameResult{Result: fail(CodeBackendFailure, "failed to move stored file"), State: RenameRejected}
		}
	} else {
		// Metadata is the source of truth for display purposes even
		// when the bytes are gone; proceed with the record swap.
		logger.Warn("rename: stored object %q absent, applying metadata-only rename", oldKey)
	}

	updated := *item
	updated.ItemID = newItemID
	updated.FileName = newFileName
	if ext := path.Ext(newFileName); ext != "" {
		updated.Extension = ext
	}
	updated.RelativePath = relativePath(repo, newKey, businessID, newItemID)
	updated.AbsolutePath = updated.RelativePath
	if repo.StorageType == repository.StorageFileSystem {
		updated.PhysicalPath = filepath.Join(
			repository.PhysicalDir(repo.PhysicalPath, item.CustomPath1, item.CustomPath2, item.CustomPath3, item.PolicyPath),
			newItemID)
	}

	backupKey := item.Key()

	if updater, okCap := e.meta.(metadata.FileNameUpdater); okCap {
		if err := updater.UpdateFileName(ctx, backupKey, &updated); err != nil {
			logger.Error("rename: identity swap for %s/%s failed after storage move: %v", repositoryID, itemID, err)
			return RenameResult{
				Result: fail(CodeConsistencyFailure, "stored file renamed but metadata swap failed"),
				State:  RenamePartiallyApplied,
			}
		}
		return RenameResult{Result: ok(), State: RenameCommitted, Item: &updated}
	}

	if err := e.meta.UpsertItem(ctx, &updated); err != nil {
		logger.Error("rename: upsert new record %s/%s failed, old record kept: %v", repositoryID, newItemID, err)
		return RenameResult{
			Result: fail(CodeConsistencyFailure, "stored file renamed but metadata swap failed"),
			State:  RenamePartiallyApplied,
		}
	}
	if _, err := e.meta.DeleteItem(ctx, backupKey); err != nil {
		logger.Error("rename: remove backup record %s/%s: %v", repositoryID, itemID, err)
		return RenameResult{
			Result: fail(CodeConsistencyFailure, "renamed record committed but the backup record was not removed"),
			State:  RenamePartiallyApplied,
		}
	}

	return RenameResult{Result: ok(), State: RenameCommitted, Item: &updated}
}
