package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/stormrose-io/filegate/internal/logger"
	"github.com/stormrose-io/filegate/pkg/metadata"
)

// GetItem looks up a single item by its composite key.
func (e *Engine) GetItem(ctx context.Context, repositoryID, itemID, businessID string) ItemResult {
	if repositoryID == "" || itemID == "" {
		return ItemResult{Result: fail(CodeValidation, "repositoryId and itemId are required")}
	}
	if _, err := e.registry.Get(repositoryID); err != nil {
		return ItemResult{Result: fail(CodeNotFound, fmt.Sprintf("repository %q not found", repositoryID))}
	}

	item, err := e.meta.GetItem(ctx, metadata.ItemKey{RepositoryID: repositoryID, ItemID: itemID, BusinessID: businessID})
	if err != nil {
		if errors.Is(err, metadata.ErrItemNotFound) {
			return ItemResult{Result: fail(CodeNotFound, fmt.Sprintf("item %q not found", itemID))}
		}
		logger.Error("query: get item %s/%s: %v", repositoryID, itemID, err)
		return ItemResult{Result: fail(CodeBackendFailure, "failed to query item metadata")}
	}
	return ItemResult{Result: ok(), Item: item}
}

// GetItems lists every item attached to a dependency group.
func (e *Engine) GetItems(ctx context.Context, repositoryID, dependencyID, businessID string) ItemsResult {
	if repositoryID == "" || dependencyID == "" {
		return ItemsResult{Result: fail(CodeValidation, "repositoryId and dependencyId are required")}
	}
	if _, err := e.registry.Get(repositoryID); err != nil {
		return ItemsResult{Result: fail(CodeNotFound, fmt.Sprintf("repository %q not found", repositoryID))}
	}

	items, err := e.meta.GetItems(ctx, repositoryID, dependencyID, businessID)
	if err != nil {
		logger.Error("query: list items for %s/%s: %v", repositoryID, dependencyID, err)
		return ItemsResult{Result: fail(CodeBackendFailure, "failed to query items")}
	}
	if items == nil {
		items = []*metadata.Item{}
	}
	return ItemsResult{Result: ok(), Items: items}
}

// GetRepository returns one repository's configuration.
func (e *Engine) GetRepository(repositoryID string) RepositoryResult {
	if repositoryID == "" {
		return RepositoryResult{Result: fail(CodeValidation, "repositoryId is required")}
	}
	repo, err := e.registry.Get(repositoryID)
	if err != nil {
		return RepositoryResult{Result: fail(CodeNotFound, fmt.Sprintf("repository %q not found", repositoryID))}
	}
	return RepositoryResult{Result: ok(), Repository: repo}
}

// GetRepositories lists the current repository snapshot.
func (e *Engine) GetRepositories() RepositoriesResult {
	return RepositoriesResult{Result: ok(), Repositories: e.registry.List()}
}
