package engine

import (
	"context"
	"fmt"

	"github.com/stormrose-io/filegate/internal/logger"
)

// Reparent moves every item under sourceDependencyID to
// targetDependencyID, one record at a time.
//
// There is no batch atomicity: the loop stops at the first per-item
// failure, leaving earlier items already reparented and later ones
// untouched. The result reports how many were applied so callers can
// re-query to find the boundary.
func (e *Engine) Reparent(ctx context.Context, repositoryID, sourceDependencyID, targetDependencyID, businessID string) ReparentResult {
	started := e.now()
	res := e.reparent(ctx, repositoryID, sourceDependencyID, targetDependencyID, businessID)
	e.observe("reparent", repositoryID, res.Success, started)
	return res
}

func (e *Engine) reparent(ctx context.Context, repositoryID, sourceDependencyID, targetDependencyID, businessID string) ReparentResult {
	if repositoryID == "" || sourceDependencyID == "" || targetDependencyID == "" {
		return ReparentResult{Result: fail(CodeValidation, "repositoryId, source and target dependencyId are required")}
	}
	if sourceDependencyID == targetDependencyID {
		return ReparentResult{Result: fail(CodeValidation, "source and target dependencyId must differ")}
	}

	if _, err := e.registry.Get(repositoryID); err != nil {
		return ReparentResult{Result: fail(CodeNotFound, fmt.Sprintf("repository %q not found", repositoryID))}
	}

	items, err := e.meta.GetItems(ctx, repositoryID, sourceDependencyID, businessID)
	if err != nil {
		logger.Error("reparent: list items for %s/%s: %v", repositoryID, sourceDependencyID, err)
		return ReparentResult{Result: fail(CodeBackendFailure, "failed to query items")}
	}

	for i, item := range items {
		if err := e.meta.UpdateDependencyID(ctx, item.Key(), targetDependencyID); err != nil {
			logger.Error("reparent: item %s/%s failed after %d of %d applied: %v",
				repositoryID, item.ItemID, i, len(items), err)
			return ReparentResult{
				Result:  fail(CodeConsistencyFailure, fmt.Sprintf("reparent stopped at item %q; %d of %d applied", item.ItemID, i, len(items))),
				Applied: i,
				Total:   len(items),
			}
		}
	}

	return ReparentResult{Result: ok(), Applied: len(items), Total: len(items)}
}
