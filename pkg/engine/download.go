package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/stormrose-io/filegate/internal/logger"
	"github.com/stormrose-io/filegate/pkg/metadata"
	"github.com/stormrose-io/filegate/pkg/repository"
	"github.com/stormrose-io/filegate/pkg/storage"
)

// Download streams an item's bytes back to the caller.
//
// Object-store content is buffered fully before the result is
// returned, so the remote connection is not held open across a
// potentially slow client write; filesystem content streams from disk.
// The referrer check happens before any lookup result is revealed: a
// denied origin is reported as such, never as not-found.
func (e *Engine) Download(ctx context.Context, repositoryID, itemID, businessID, referrer string) DownloadResult {
	started := e.now()
	res := e.download(ctx, repositoryID, itemID, businessID, referrer)
	e.observe("download", repositoryID, res.Success, started)
	return res
}

func (e *Engine) download(ctx context.Context, repositoryID, itemID, businessID, referrer string) DownloadResult {
	if repositoryID == "" || itemID == "" {
		return DownloadResult{Result: fail(CodeValidation, "repositoryId and itemId are required")}
	}

	repo, err := e.registry.Get(repositoryID)
	if err != nil {
		return DownloadResult{Result: fail(CodeNotFound, fmt.Sprintf("repository %q not found", repositoryID))}
	}
	if !repo.OriginAllowed(referrer) {
		return DownloadResult{Result: fail(CodeOriginDenied, "request origin is not allowed for this repository")}
	}

	item, err := e.meta.GetItem(ctx, metadata.ItemKey{RepositoryID: repositoryID, ItemID: itemID, BusinessID: businessID})
	if err != nil {
		if errors.Is(err, metadata.ErrItemNotFound) {
			return DownloadResult{Result: fail(CodeNotFound, fmt.Sprintf("item %q not found", itemID))}
		}
		logger.Error("download: get item %s/%s: %v", repositoryID, itemID, err)
		return DownloadResult{Result: fail(CodeBackendFailure, "failed to query item metadata")}
	}

	backend, err := e.backendFor(ctx, repo)
	if err != nil {
		logger.Error("download: %v", err)
		return DownloadResult{Result: fail(CodeBackendFailure, "storage backend unavailable")}
	}

	content, err := backend.Open(ctx, item.StorageKey())
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return DownloadResult{Result: fail(CodeNotFound, "stored file not found")}
		}
		logger.Error("download: open %q: %v", item.StorageKey(), err)
		return DownloadResult{Result: fail(CodeBackendFailure, "failed to read stored file")}
	}

	length := item.FileLength
	if repo.StorageType == repository.StorageObjectStore {
		data, err := io.ReadAll(content)
		content.Close()
		if err != nil {
			logger.Error("download: buffer %q: %v", item.StorageKey(), err)
			return DownloadResult{Result: fail(CodeBackendFailure, "failed to read stored file")}
		}
		content = io.NopCloser(bytes.NewReader(data))
		length = int64(len(data))
	}

	e.ops.AddBytes("out", repo.RepositoryID, length)
	return DownloadResult{
		Result:   ok(),
		Item:     item,
		FileName: item.DownloadName(),
		Length:   length,
		MimeType: item.MimeType,
		Content:  content,
	}
}

// VirtualDownload serves a file addressed by its storage layout
// (repository, optional sub-directory, filename) instead of by item
// id. Only repositories provisioned for virtual-path serving allow it.
func (e *Engine) VirtualDownload(ctx context.Context, repositoryID, fileName, subDirectory, referrer string) DownloadResult {
	started := e.now()
	res := e.virtualDownload(ctx, repositoryID, fileName, subDirectory, referrer)
	e.observe("vdownload", repositoryID, res.Success, started)
	return res
}

func (e *Engine) virtualDownload(ctx context.Context, repositoryID, fileName, subDirectory, referrer string) DownloadResult {
	if repositoryID == "" || fileName == "" {
		return DownloadResult{Result: fail(CodeValidation, "repositoryId and fileName are required")}
	}

	repo, err := e.registry.Get(repositoryID)
	if err != nil {
		return DownloadResult{Result: fail(CodeNotFound, fmt.Sprintf("repository %q not found", repositoryID))}
	}
	if !repo.IsVirtualPath {
		return DownloadResult{Result: fail(CodeValidation,
			fmt.Sprintf("repository %q does not serve virtual paths", repositoryID))}
	}
	if !repo.OriginAllowed(referrer) {
		return DownloadResult{Result: fail(CodeOriginDenied, "request origin is not allowed for this repository")}
	}

	backend, err := e.backendFor(ctx, repo)
	if err != nil {
		logger.Error("vdownload: %v", err)
		return DownloadResult{Result: fail(CodeBackendFailure, "storage backend unavailable")}
	}

	key := fileName
	if subDirectory != "" {
		key = subDirectory + "/" + fileName
	}
	content, err := backend.Open(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return DownloadResult{Result: fail(CodeNotFound, fmt.Sprintf("file %q not found", fileName))}
		}
		logger.Error("vdownload: open %q: %v", key, err)
		return DownloadResult{Result: fail(CodeBackendFailure, "failed to read stored file")}
	}

	if repo.StorageType == repository.StorageObjectStore {
		data, err := io.ReadAll(content)
		content.Close()
		if err != nil {
			logger.Error("vdownload: buffer %q: %v", key, err)
			return DownloadResult{Result: fail(CodeBackendFailure, "failed to read stored file")}
		}
		content = io.NopCloser(bytes.NewReader(data))
		e.ops.AddBytes("out", repo.RepositoryID, int64(len(data)))
		return DownloadResult{Result: ok(), FileName: fileName, Length: int64(len(data)), Content: content}
	}

	return DownloadResult{Result: ok(), FileName: fileName, Content: content}
}
