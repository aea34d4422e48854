// Package repository defines the configuration model for logical file
// repositories: which storage backend holds their bytes, how stored
// names and directory paths are derived, and which limits apply to
// uploads. The configured repositories are held in an atomically
// swappable Registry so a refresh never exposes a partial list.
package repository

import (
	"fmt"
	"strings"
)

// StorageType selects where a repository persists file bytes.
type StorageType string

const (
	// StorageFileSystem stores bytes as files under PhysicalPath.
	StorageFileSystem StorageType = "filesystem"

	// StorageObjectStore stores bytes as objects in an S3-compatible
	// bucket identified by ContainerID.
	StorageObjectStore StorageType = "objectstore"
)

// Transaction identifies one remote metadata operation. When a
// repository runs against the remote metadata service, every logical
// operation (get, upsert, delete, ...) is dispatched to a transaction
// addressed by these four fields.
type Transaction struct {
	SystemID      string `json:"systemId" mapstructure:"system_id"`
	ServerID      string `json:"serverId" mapstructure:"server_id"`
	TransactionID string `json:"transactionId" mapstructure:"transaction_id"`
	FunctionID    string `json:"functionId" mapstructure:"function_id"`
}

// ParseTransaction parses the compact "system|server|transaction|function"
// form used in repository definition files.
func ParseTransaction(s string) (Transaction, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 4 {
		return Transaction{}, fmt.Errorf("invalid transaction %q: want 4 segments, got %d", s, len(parts))
	}
	return Transaction{
		SystemID:      parts[0],
		ServerID:      parts[1],
		TransactionID: parts[2],
		FunctionID:    parts[3],
	}, nil
}

func (t Transaction) String() string {
	return strings.Join([]string{t.SystemID, t.ServerID, t.TransactionID, t.FunctionID}, "|")
}

// IsZero reports whether the transaction is unset.
func (t Transaction) IsZero() bool {
	return t == Transaction{}
}

// TransactionTable maps each logical metadata operation to its remote
// transaction. Unset entries fall back to the defaults below at load
// time, so callers can always dispatch without nil checks.
type TransactionTable struct {
	GetItem            Transaction `json:"getItem" mapstructure:"get_item"`
	GetItems           Transaction `json:"getItems" mapstructure:"get_items"`
	DeleteItem         Transaction `json:"deleteItem" mapstructure:"delete_item"`
	UpsertItem         Transaction `json:"upsertItem" mapstructure:"upsert_item"`
	UpdateDependencyID Transaction `json:"updateDependencyId" mapstructure:"update_dependency_id"`
	UpdateFileName     Transaction `json:"updateFileName" mapstructure:"update_file_name"`
}

// DefaultTransactions returns the stock dispatch table.
func DefaultTransactions() TransactionTable {
	base := Transaction{SystemID: "QAF", ServerID: "SMW", TransactionID: "SMP030"}
	tx := func(fn string) Transaction {
		t := base
		t.FunctionID = fn
		return t
	}
	return TransactionTable{
		GetItem:            tx("R02"),
		GetItems:           tx("R03"),
		DeleteItem:         tx("D01"),
		UpsertItem:         tx("M01"),
		UpdateDependencyID: tx("U01"),
		UpdateFileName:     tx("U02"),
	}
}

// applyDefaults fills unset entries from DefaultTransactions.
func (t *TransactionTable) applyDefaults() {
	defaults := DefaultTransactions()
	if t.GetItem.IsZero() {
		t.GetItem = defaults.GetItem
	}
	if t.GetItems.IsZero() {
		t.GetItems = defaults.GetItems
	}
	if t.DeleteItem.IsZero() {
		t.DeleteItem = defaults.DeleteItem
	}
	if t.UpsertItem.IsZero() {
		t.UpsertItem = defaults.UpsertItem
	}
	if t.UpdateDependencyID.IsZero() {
		t.UpdateDependencyID = defaults.UpdateDependencyID
	}
	if t.UpdateFileName.IsZero() {
		t.UpdateFileName = defaults.UpdateFileName
	}
}

// Repository is the configuration of one logical storage area. A
// Repository is immutable once published through the Registry; a
// refresh replaces the whole snapshot instead of mutating records in
// place.
//
// StorageType and IsVirtualPath together determine how an item's path
// is both stored and served. Changing either for a repository with
// existing items requires re-provisioning those items.
type Repository struct {
	RepositoryID   string      `json:"repositoryId" mapstructure:"repository_id"`
	RepositoryName string      `json:"repositoryName" mapstructure:"repository_name"`
	StorageType    StorageType `json:"storageType" mapstructure:"storage_type"`

	// Filesystem backend root. Ignored for object-store repositories.
	PhysicalPath string `json:"physicalPath" mapstructure:"physical_path"`

	// Object-store connection. ContainerID is the bucket, created
	// lazily on first write. Endpoint is optional and used for
	// S3-compatible services.
	AccessID    string `json:"accessId" mapstructure:"access_id"`
	AccessKey   string `json:"accessKey" mapstructure:"access_key"`
	Endpoint    string `json:"endpoint" mapstructure:"endpoint"`
	Region      string `json:"region" mapstructure:"region"`
	ContainerID string `json:"containerId" mapstructure:"container_id"`

	// Naming and path policy.
	IsVirtualPath     bool   `json:"isVirtualPath" mapstructure:"is_virtual_path"`
	IsMultiUpload     bool   `json:"isMultiUpload" mapstructure:"is_multi_upload"`
	IsFileOverwrite   bool   `json:"isFileOverwrite" mapstructure:"is_file_overwrite"`
	IsFileNameEncrypt bool   `json:"isFileNameEncrypt" mapstructure:"is_file_name_encrypt"`
	IsAutoPath        bool   `json:"isAutoPath" mapstructure:"is_auto_path"`
	PolicyPathID      string `json:"policyPathId" mapstructure:"policy_path_id"`

	// Upload limits. UploadCount bounds the number of items per
	// dependency group for multi-upload repositories. UploadSizeLimit
	// is in kilobytes; zero means unlimited.
	UploadCount     int   `json:"uploadCount" mapstructure:"upload_count"`
	UploadSizeLimit int64 `json:"uploadSizeLimit" mapstructure:"upload_size_limit"`

	// IsLocalDB selects the local metadata store for this repository;
	// false routes metadata operations to the remote service using
	// Transactions.
	IsLocalDB    bool             `json:"isLocalDb" mapstructure:"is_local_db"`
	Transactions TransactionTable `json:"transactions" mapstructure:"transactions"`

	// AllowedOrigins restricts downloads to requests whose referrer
	// matches one of these origins. Empty means unrestricted.
	AllowedOrigins []string `json:"allowedOrigins" mapstructure:"allowed_origins"`

	Comment string `json:"comment" mapstructure:"comment"`
}

// SingleSlot reports whether a new upload replaces existing items in
// the same dependency group.
func (r *Repository) SingleSlot() bool {
	return !r.IsMultiUpload
}

// MaxUploadBytes converts the kilobyte limit to bytes. Zero means no
// limit.
func (r *Repository) MaxUploadBytes() int64 {
	if r.UploadSizeLimit <= 0 {
		return 0
	}
	return r.UploadSizeLimit * 1024
}

// OriginAllowed reports whether the given referrer passes the
// repository's origin allow-list. An empty list allows everything.
func (r *Repository) OriginAllowed(referrer string) bool {
	if len(r.AllowedOrigins) == 0 {
		return true
	}
	for _, origin := range r.AllowedOrigins {
		if origin == "*" {
			return true
		}
		if origin != "" && strings.HasPrefix(referrer, origin) {
			return true
		}
	}
	return false
}

// normalize applies defaults to a freshly loaded repository record.
func (r *Repository) normalize() error {
	if r.RepositoryID == "" {
		return fmt.Errorf("repository with empty repositoryId")
	}
	if r.StorageType == "" {
		r.StorageType = StorageFileSystem
	}
	switch r.StorageType {
	case StorageFileSystem, StorageObjectStore:
	default:
		return fmt.Errorf("repository %s: unknown storage type %q", r.RepositoryID, r.StorageType)
	}
	if r.UploadCount <= 0 {
		r.UploadCount = 1
	}
	r.Transactions.applyDefaults()
	return nil
}
