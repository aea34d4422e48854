package engine

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"

	"context"

	"github.com/gabriel-vasile/mimetype"

	"github.com/stormrose-io/filegate/internal/logger"
	"github.com/stormrose-io/filegate/pkg/metadata"
	"github.com/stormrose-io/filegate/pkg/repository"
)

// UploadParams carries one file into the upload coordinator.
type UploadParams struct {
	RepositoryID string
	DependencyID string
	BusinessID   string

	// FileName is the client-supplied display name.
	FileName string

	// Size is the declared length in bytes, checked against the
	// repository limit before the body is read.
	Size int64

	// Content is consumed exactly once; the coordinator buffers it so
	// the same bytes feed both the checksum and the storage write.
	Content io.Reader

	// ContentType is optional; when empty it is sniffed from the
	// buffered content.
	ContentType string

	CustomPath1 string
	CustomPath2 string
	CustomPath3 string

	ItemSummary string
	CreatedBy   string
}

// Upload lands one file: it enforces the repository's slot and size
// policy, resolves the stored identifier, writes the bytes, and
// commits the metadata record.
//
// A metadata failure after the bytes were written is reported as a
// consistency failure; the written bytes are kept (no rollback).
func (e *Engine) Upload(ctx context.Context, p UploadParams) UploadResult {
	started := e.now()
	res := e.upload(ctx, p)
	e.observe("upload", p.RepositoryID, res.Success, started)
	return res
}

func (e *Engine) upload(ctx context.Context, p UploadParams) UploadResult {
	if p.RepositoryID == "" || p.DependencyID == "" || p.FileName == "" {
		return UploadResult{Result: fail(CodeValidation, "repositoryId, dependencyId and fileName are required")}
	}
	if p.Content == nil {
		return UploadResult{Result: fail(CodeValidation, "no file content")}
	}

	repo, err := e.registry.Get(p.RepositoryID)
	if err != nil {
		return UploadResult{Result: fail(CodeNotFound, fmt.Sprintf("repository %q not found", p.RepositoryID))}
	}

	maxBytes := repo.MaxUploadBytes()
	if maxBytes > 0 && p.Size > maxBytes {
		return UploadResult{Result: fail(CodeQuotaExceeded,
			fmt.Sprintf("file size %s exceeds the limit of %s", formatFileLength(p.Size), formatFileLength(maxBytes)))}
	}

	existing, err := e.meta.GetItems(ctx, p.RepositoryID, p.DependencyID, p.BusinessID)
	if err != nil {
		logger.Error("upload: list items for %s/%s: %v", p.RepositoryID, p.DependencyID, err)
		return UploadResult{Result: fail(CodeBackendFailure, "failed to query existing items")}
	}

	backend, err := e.backendFor(ctx, repo)
	if err != nil {
		logger.Error("upload: %v", err)
		return UploadResult{Result: fail(CodeBackendFailure, "storage backend unavailable")}
	}

	remaining := 0
	if repo.SingleSlot() {
		// Replace semantics: evict every existing item in the group
		// before writing. Eviction is best-effort; failures are logged
		// and do not abort the upload.
		for _, item := range existing {
			if err := backend.Delete(ctx, item.StorageKey()); err != nil {
				logger.Warn("upload: evict stored bytes %s: %v", item.StorageKey(), err)
			}
			if _, err := e.meta.DeleteItem(ctx, item.Key()); err != nil {
				logger.Warn("upload: evict metadata %s/%s: %v", item.RepositoryID, item.ItemID, err)
			}
		}
	} else {
		if len(existing) >= repo.UploadCount {
			return UploadResult{Result: fail(CodeQuotaExceeded,
				fmt.Sprintf("upload count limit reached (%d of %d)", len(existing), repo.UploadCount))}
		}
		remaining = repo.UploadCount - (len(existing) + 1)
	}

	policyPath := ""
	if repo.IsAutoPath {
		policyPath = repository.PolicyPath(repo.PolicyPathID, e.now())
	}
	relDir := repository.RelativeDir(p.CustomPath1, p.CustomPath2, p.CustomPath3, policyPath)

	itemID, err := repository.ResolveItemID(ctx, backend, relDir, p.FileName, repo.IsFileNameEncrypt, repo.IsFileOverwrite)
	if err != nil {
		logger.Error("upload: resolve item id for %q: %v", p.FileName, err)
		return UploadResult{Result: fail(CodeBackendFailure, "failed to resolve stored name")}
	}

	// Buffer the content once: the same bytes feed the checksum, the
	// mime sniffer, and the storage write.
	data, err := io.ReadAll(p.Content)
	if err != nil {
		logger.Error("upload: read content of %q: %v", p.FileName, err)
		return UploadResult{Result: fail(CodeBackendFailure, "failed to read file content")}
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return UploadResult{Result: fail(CodeQuotaExceeded,
			fmt.Sprintf("file size %s exceeds the limit of %s", formatFileLength(int64(len(data))), formatFileLength(maxBytes)))}
	}

	contentType := p.ContentType
	if contentType == "" {
		contentType = mimetype.Detect(data).String()
	}
	checksum := fmt.Sprintf("%x", md5.Sum(data))

	key := relDir + itemID
	if err := backend.Save(ctx, key, bytes.NewReader(data), contentType); err != nil {
		logger.Error("upload: save %q: %v", key, err)
		return UploadResult{Result: fail(CodeBackendFailure, "failed to store file content")}
	}
	e.ops.AddBytes("in", repo.RepositoryID, int64(len(data)))

	item := &metadata.Item{
		ItemID:       itemID,
		RepositoryID: repo.RepositoryID,
		DependencyID: p.DependencyID,
		BusinessID:   p.BusinessID,
		FileName:     p.FileName,
		Sequence:     len(existing) + 1,
		ItemSummary:  p.ItemSummary,
		RelativePath: relativePath(repo, key, p.BusinessID, itemID),
		Extension:    path.Ext(p.FileName),
		FileLength:   int64(len(data)),
		MD5:          checksum,
		MimeType:     contentType,
		CustomPath1:  p.CustomPath1,
		CustomPath2:  p.CustomPath2,
		CustomPath3:  p.CustomPath3,
		PolicyPath:   policyPath,
		CreatedBy:    p.CreatedBy,
		CreatedAt:    e.now(),
	}
	item.AbsolutePath = item.RelativePath
	if repo.StorageType == repository.StorageFileSystem {
		item.PhysicalPath = filepath.Join(
			repository.PhysicalDir(repo.PhysicalPath, p.CustomPath1, p.CustomPath2, p.CustomPath3, policyPath),
			itemID)
	}

	if err := e.meta.UpsertItem(ctx, item); err != nil {
		// The bytes are already written and are intentionally kept.
		logger.Error("upload: metadata upsert for %s/%s failed, stored bytes kept at %q: %v",
			repo.RepositoryID, itemID, key, err)
		return UploadResult{Result: fail(CodeConsistencyFailure, "file stored but metadata commit failed")}
	}

	// Echo the record as persisted, not as built.
	stored, err := e.meta.GetItem(ctx, item.Key())
	if err != nil {
		logger.Warn("upload: read-back of %s/%s failed: %v", repo.RepositoryID, itemID, err)
		stored = item
	}

	return UploadResult{Result: ok(), Item: stored, RemainingCount: remaining}
}

// relativePath builds the item's serving path. Virtual-path
// repositories expose the storage layout directly; everything else is
// served through the download endpoint.
func relativePath(repo *repository.Repository, key, businessID, itemID string) string {
	if repo.IsVirtualPath {
		return "/" + repo.RepositoryID + "/" + key
	}
	q := url.Values{}
	q.Set("repositoryId", repo.RepositoryID)
	q.Set("itemId", itemID)
	if businessID != "" {
		q.Set("businessId", businessID)
	}
	return "/api/download?" + q.Encode()
}

// formatFileLength renders a byte count the way limit messages show
// it.
func formatFileLength(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
