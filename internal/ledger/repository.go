package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("upload not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

type SortField string

const (
	SortByDate SortField = "date"
	SortByName SortField = "name"
	SortBySize SortField = "size"
)

// ListFilter narrows and orders workspace listings.
type ListFilter struct {
	WorkspaceID  string
	UploaderID   string
	MediaKind    MediaKind
	NameContains string
	SortBy       SortField
	SortDesc     bool
	Limit        int
	Offset       int
}

// StorageTotal is one row of a per-workspace or per-user usage aggregate.
type StorageTotal struct {
	WorkspaceID string    `json:"workspace_id"`
	UploaderID  string    `json:"uploader_id,omitempty"`
	MediaKind   MediaKind `json:"media_kind"`
	TotalBytes  int64     `json:"total_bytes"`
	Count       int64     `json:"count"`
}

// Repository persists uploads. Only the worker holding an upload's async
// job writes its status and variant fields; the submission path creates
// the row and attaches the original exactly once.
type Repository interface {
	Create(ctx context.Context, u *Upload) error
	Get(ctx context.Context, id string) (*Upload, error)

	// AttachOriginal records where the original bytes landed.
	AttachOriginal(ctx context.Context, id, path, url string) error

	// UpdateStatus advances the lifecycle; it rejects backward moves and
	// stamps ProcessedAt when the new status is completed.
	UpdateStatus(ctx context.Context, id string, status Status) error

	// MergeVariants folds produced variant paths/URLs and extracted
	// metadata into the row without clobbering fields it does not name.
	MergeVariants(ctx context.Context, id string, paths, urls map[string]string, previews []string, metadata map[string]any) error

	// FindDuplicate returns a completed, non-deleted upload in the
	// workspace with the given content hash, or ErrNotFound.
	FindDuplicate(ctx context.Context, workspaceID, hash string) (*Upload, error)

	List(ctx context.Context, f ListFilter) ([]*Upload, error)

	// FindOrphaned lists uploads stuck in pending or processing since
	// before the cutoff.
	FindOrphaned(ctx context.Context, cutoff time.Time) ([]*Upload, error)

	// WorkspaceTotals aggregates byte usage per media kind. An empty
	// uploaderID aggregates the whole workspace.
	WorkspaceTotals(ctx context.Context, workspaceID, uploaderID string) ([]StorageTotal, error)

	// SoftDelete marks the row deleted; removing the storage tree is the
	// caller's responsibility.
	SoftDelete(ctx context.Context, id string) error

	// HardDelete removes the row outright. The submission path uses it to
	// roll back a just-created row after a failed original write.
	HardDelete(ctx context.Context, id string) error
}
