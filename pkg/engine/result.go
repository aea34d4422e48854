package engine

import (
	"io"

	"github.com/stormrose-io/filegate/pkg/metadata"
	"github.com/stormrose-io/filegate/pkg/repository"
)

// ErrorCode classifies a failed operation. Coordinators convert
// backend errors into these codes at their boundary; callers never see
// a raw storage or metadata error.
type ErrorCode string

const (
	// CodeValidation marks a missing or malformed identifier. No side
	// effect was performed.
	CodeValidation ErrorCode = "validation"

	// CodeNotFound marks an unknown repository, item, or stored file.
	CodeNotFound ErrorCode = "not_found"

	// CodeQuotaExceeded marks a size or slot-count rejection, reported
	// before any write.
	CodeQuotaExceeded ErrorCode = "quota_exceeded"

	// CodeOriginDenied marks a referrer that failed the repository's
	// origin allow-list. Distinct from not-found.
	CodeOriginDenied ErrorCode = "origin_denied"

	// CodeBackendFailure marks a storage read/write/delete failure.
	CodeBackendFailure ErrorCode = "backend_failure"

	// CodeConsistencyFailure marks a metadata failure after a storage
	// side effect already applied. The storage side effect is not
	// undone.
	CodeConsistencyFailure ErrorCode = "consistency_failure"
)

// Result is the common outcome envelope of every coordinator
// operation.
type Result struct {
	Success bool      `json:"success"`
	Code    ErrorCode `json:"code,omitempty"`
	Message string    `json:"message,omitempty"`
}

func ok() Result {
	return Result{Success: true}
}

func fail(code ErrorCode, message string) Result {
	return Result{Success: false, Code: code, Message: message}
}

// UploadResult is the outcome of one upload.
type UploadResult struct {
	Result
	Item *metadata.Item `json:"item,omitempty"`

	// RemainingCount is how many more uploads the dependency group
	// accepts after this one. Zero for single-slot repositories.
	RemainingCount int `json:"remainingCount"`
}

// DownloadResult carries the content stream and display metadata of a
// download. Content is nil unless Success; the caller must close it.
type DownloadResult struct {
	Result
	Item     *metadata.Item `json:"item,omitempty"`
	FileName string         `json:"fileName,omitempty"`
	Length   int64          `json:"length,omitempty"`
	MimeType string         `json:"mimeType,omitempty"`
	Content  io.ReadCloser  `json:"-"`
}

// RenameState is the terminal state of a rename.
type RenameState string

const (
	RenameCommitted        RenameState = "committed"
	RenameRejected         RenameState = "rejected"
	RenamePartiallyApplied RenameState = "partially-applied"
)

// RenameResult is the outcome of a rename.
type RenameResult struct {
	Result
	State RenameState    `json:"state"`
	Item  *metadata.Item `json:"item,omitempty"`
}

// ReparentResult reports how far a dependency-group move got. On
// failure, Applied items were already reparented and stay that way;
// callers re-query to find the boundary.
type ReparentResult struct {
	Result
	Applied int `json:"applied"`
	Total   int `json:"total"`
}

// RemoveResult reports how many records a removal affected. Removing
// an absent item succeeds with zero affected records.
type RemoveResult struct {
	Result
	Affected int `json:"affected"`
}

// ItemResult is the outcome of a single-item query.
type ItemResult struct {
	Result
	Item *metadata.Item `json:"item,omitempty"`
}

// ItemsResult is the outcome of a group query.
type ItemsResult struct {
	Result
	Items []*metadata.Item `json:"items"`
}

// RepositoryResult is the outcome of a repository lookup.
type RepositoryResult struct {
	Result
	Repository *repository.Repository `json:"repository,omitempty"`
}

// RepositoriesResult lists the current repository snapshot.
type RepositoriesResult struct {
	Result
	Repositories []*repository.Repository `json:"repositories"`
}
