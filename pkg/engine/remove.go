package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/stormrose-io/filegate/internal/logger"
	"github.com/stormrose-io/filegate/pkg/metadata"
)

// RemoveItem deletes one item's bytes and metadata record.
//
// Removing an item that does not exist succeeds with zero affected
// records. A storage delete failure is logged and reported, but the
// metadata delete is still attempted so the record never outlives a
// removal request by accident.
func (e *Engine) RemoveItem(ctx context.Context, repositoryID, itemID, businessID string) RemoveResult {
	started := e.now()
	res := e.removeItem(ctx, repositoryID, itemID, businessID)
	e.observe("remove", repositoryID, res.Success, started)
	return res
}

func (e *Engine) removeItem(ctx context.Context, repositoryID, itemID, businessID string) RemoveResult {
	if repositoryID == "" || itemID == "" {
		return RemoveResult{Result: fail(CodeValidation, "repositoryId and itemId are required")}
	}

	repo, err := e.registry.Get(repositoryID)
	if err != nil {
		return RemoveResult{Result: fail(CodeNotFound, fmt.Sprintf("repository %q not found", repositoryID))}
	}

	key := metadata.ItemKey{RepositoryID: repositoryID, ItemID: itemID, BusinessID: businessID}
	item, err := e.meta.GetItem(ctx, key)
	if err != nil {
		if errors.Is(err, metadata.ErrItemNotFound) {
			return RemoveResult{Result: ok(), Affected: 0}
		}
		logger.Error("remove: get item %s/%s: %v", repositoryID, itemID, err)
		return RemoveResult{Result: fail(CodeBackendFailure, "failed to query item metadata")}
	}

	backend, err := e.backendFor(ctx, repo)
	if err != nil {
		logger.Error("remove: %v", err)
		return RemoveResult{Result: fail(CodeBackendFailure, "storage backend unavailable")}
	}

	storageFailed := false
	if err := backend.Delete(ctx, item.StorageKey()); err != nil {
		storageFailed = true
		logger.Error("remove: delete stored bytes %q: %v", item.StorageKey(), err)
	}

	affected, err := e.meta.DeleteItem(ctx, key)
	if err != nil {
		logger.Error("remove: delete metadata %s/%s: %v", repositoryID, itemID, err)
		return RemoveResult{Result: fail(CodeConsistencyFailure, "failed to delete item metadata")}
	}
	if storageFailed {
		return RemoveResult{
			Result:   fail(CodeBackendFailure, "item metadata deleted but stored bytes could not be removed"),
			Affected: affected,
		}
	}

	return RemoveResult{Result: ok(), Affected: affected}
}

// RemoveItems deletes every item under a dependency group,
// best-effort per item: one failed item does not stop the rest. The
// result fails when any item failed and reports the total records
// removed.
func (e *Engine) RemoveItems(ctx context.Context, repositoryID, dependencyID, businessID string) RemoveResult {
	started := e.now()
	res := e.removeItems(ctx, repositoryID, dependencyID, businessID)
	e.observe("remove_group", repositoryID, res.Success, started)
	return res
}

func (e *Engine) removeItems(ctx context.Context, repositoryID, dependencyID, businessID string) RemoveResult {
	if repositoryID == "" || dependencyID == "" {
		return RemoveResult{Result: fail(CodeValidation, "repositoryId and dependencyId are required")}
	}
	if _, err := e.registry.Get(repositoryID); err != nil {
		return RemoveResult{Result: fail(CodeNotFound, fmt.Sprintf("repository %q not found", repositoryID))}
	}

	items, err := e.meta.GetItems(ctx, repositoryID, dependencyID, businessID)
	if err != nil {
		logger.Error("remove group: list items for %s/%s: %v", repositoryID, dependencyID, err)
		return RemoveResult{Result: fail(CodeBackendFailure, "failed to query items")}
	}

	affected := 0
	failures := 0
	for _, item := range items {
		res := e.removeItem(ctx, repositoryID, item.ItemID, businessID)
		affected += res.Affected
		if !res.Success {
			failures++
		}
	}

	if failures > 0 {
		return RemoveResult{
			Result:   fail(CodeBackendFailure, fmt.Sprintf("%d of %d items failed to delete", failures, len(items))),
			Affected: affected,
		}
	}
	return RemoveResult{Result: ok(), Affected: affected}
}
