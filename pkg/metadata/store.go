// Package metadata defines the item-metadata record and the store
// interface over it. Two implementations exist: a local embedded store
// (metadata/badgerstore) and a client for the remote transactional
// metadata service (metadata/remote). Both return records keyed
// identically; coordinators never branch on which variant is active.
package metadata

import (
	"context"
	"path"
	"strings"
	"time"
)

// ItemKey is the composite key of a metadata record.
type ItemKey struct {
	RepositoryID string `json:"repositoryId"`
	ItemID       string `json:"itemId"`
	BusinessID   string `json:"businessId"`
}

// Item is the metadata record for one stored file.
type Item struct {
	ItemID       string `json:"itemId" mapstructure:"item_id"`
	RepositoryID string `json:"repositoryId" mapstructure:"repository_id"`
	DependencyID string `json:"dependencyId" mapstructure:"dependency_id"`
	BusinessID   string `json:"businessId" mapstructure:"business_id"`

	FileName    string `json:"fileName" mapstructure:"file_name"`
	Sequence    int    `json:"sequence" mapstructure:"sequence"`
	ItemSummary string `json:"itemSummary" mapstructure:"item_summary"`

	// PhysicalPath is the absolute on-disk path for filesystem
	// repositories and empty for object-store repositories.
	PhysicalPath string `json:"physicalPath" mapstructure:"physical_path"`
	AbsolutePath string `json:"absolutePath" mapstructure:"absolute_path"`
	RelativePath string `json:"relativePath" mapstructure:"relative_path"`

	Extension  string `json:"extension" mapstructure:"extension"`
	FileLength int64  `json:"fileLength" mapstructure:"file_length"`
	MD5        string `json:"md5" mapstructure:"md5"`
	MimeType   string `json:"mimeType" mapstructure:"mime_type"`

	CustomPath1 string `json:"customPath1" mapstructure:"custom_path1"`
	CustomPath2 string `json:"customPath2" mapstructure:"custom_path2"`
	CustomPath3 string `json:"customPath3" mapstructure:"custom_path3"`

	// PolicyPath is the time-bucket segment frozen at creation. Later
	// operations reuse it verbatim; it is never recomputed.
	PolicyPath string `json:"policyPath" mapstructure:"policy_path"`

	CreatedBy string    `json:"createdBy" mapstructure:"created_by"`
	CreatedAt time.Time `json:"createdAt" mapstructure:"created_at"`
}

// Key returns the item's composite key.
func (i *Item) Key() ItemKey {
	return ItemKey{RepositoryID: i.RepositoryID, ItemID: i.ItemID, BusinessID: i.BusinessID}
}

// DownloadName returns the public-facing filename. When the display
// name carries no extension but the record does, the two are
// concatenated so downloads keep a usable extension.
func (i *Item) DownloadName() string {
	if i.Extension != "" && path.Ext(i.FileName) == "" {
		ext := i.Extension
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		return i.FileName + ext
	}
	return i.FileName
}

// StorageKey returns the backend key for the item's bytes: the frozen
// directory prefix plus the item id.
func (i *Item) StorageKey() string {
	var sb strings.Builder
	for _, segment := range []string{i.CustomPath1, i.CustomPath2, i.CustomPath3, i.PolicyPath} {
		if segment == "" {
			continue
		}
		sb.WriteString(segment)
		sb.WriteString("/")
	}
	sb.WriteString(i.ItemID)
	return sb.String()
}

// Store is the metadata persistence interface.
//
// DeleteItem returns the number of records removed; deleting an absent
// key is zero affected records and a nil error, never a failure.
type Store interface {
	// GetItem returns the record under key or ErrItemNotFound.
	GetItem(ctx context.Context, key ItemKey) (*Item, error)

	// GetItems returns every record in the (repositoryID, businessID)
	// scope whose DependencyID matches, ordered by Sequence.
	GetItems(ctx context.Context, repositoryID, dependencyID, businessID string) ([]*Item, error)

	// UpsertItem inserts or replaces the record under item.Key().
	UpsertItem(ctx context.Context, item *Item) error

	// DeleteItem removes the record under key, reporting how many
	// records were affected (0 or 1).
	DeleteItem(ctx context.Context, key ItemKey) (int, error)

	// UpdateDependencyID rewrites the grouping key of one record.
	// Absent records yield ErrItemNotFound.
	UpdateDependencyID(ctx context.Context, key ItemKey, newDependencyID string) error

	// Close releases store resources.
	Close() error
}

// FileNameUpdater is an optional capability: stores that can swap an
// item's identity in one round trip implement it (the remote service
// exposes a dedicated transaction for it). Callers discover it by type
// assertion and otherwise compose UpsertItem with DeleteItem.
type FileNameUpdater interface {
	// UpdateFileName writes item and removes the record under
	// backupKey in a single operation.
	UpdateFileName(ctx context.Context, backupKey ItemKey, item *Item) error
}
