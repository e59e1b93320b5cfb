// Package ledger is the record-of-truth for an upload's lifecycle. Rows
// only ever move forward through pending -> processing -> completed, or
// drop to failed; terminal rows change again only via soft delete.
package ledger

import (
	"time"

	"gorm.io/gorm"
)

type MediaKind string

const (
	KindImage    MediaKind = "image"
	KindVideo    MediaKind = "video"
	Kind3DModel  MediaKind = "3d_model"
	KindDocument MediaKind = "document"
)

// PathSegment returns the storage path component for the kind.
func (k MediaKind) PathSegment() string {
	switch k {
	case KindImage:
		return "images"
	case KindVideo:
		return "videos"
	case Kind3DModel:
		return "models"
	default:
		return "documents"
	}
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// CanTransition reports whether moving from s to next is a forward move.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusFailed
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// Variant names for raster artifacts. 3D previews are stored under the
// PreviewImages list instead.
const (
	VariantOptimized     = "optimized"
	VariantOptimizedWebP = "optimized_webp"
	VariantThumbnail     = "thumbnail"
	VariantThumbnailWebP = "thumbnail_webp"
	VariantTiny          = "tiny"
	VariantTinyWebP      = "tiny_webp"
)

// Upload represents one user-submitted media file and its derived
// artifacts, scoped to a workspace.
type Upload struct {
	ID          string    `gorm:"column:id;primaryKey" json:"id"`
	WorkspaceID string    `gorm:"column:workspace_id;index:idx_ws_hash;index" json:"workspace_id"`
	UploaderID  string    `gorm:"column:uploader_id;index" json:"uploader_id"`
	MediaKind   MediaKind `gorm:"column:media_kind;type:varchar(20)" json:"media_kind"`

	OriginalName string `gorm:"column:original_name" json:"original_name"`
	MimeType     string `gorm:"column:mime_type;type:varchar(100)" json:"mime_type"`
	SizeBytes    int64  `gorm:"column:size_bytes" json:"size_bytes"`

	// ContentHash is the SHA-256 hex digest of the original bytes. It is
	// set once, before the row is created, and never updated. Uniqueness
	// per workspace is best-effort via FindDuplicate, not a constraint.
	ContentHash string `gorm:"column:content_hash;type:varchar(64);index:idx_ws_hash" json:"content_hash"`

	Width    int            `gorm:"column:width" json:"width,omitempty"`
	Height   int            `gorm:"column:height" json:"height,omitempty"`
	Metadata map[string]any `gorm:"column:metadata;serializer:json" json:"metadata,omitempty"`

	OriginalPath  string            `gorm:"column:original_path" json:"-"`
	OriginalURL   string            `gorm:"column:original_url" json:"url"`
	VariantPaths  map[string]string `gorm:"column:variant_paths;serializer:json" json:"-"`
	VariantURLs   map[string]string `gorm:"column:variant_urls;serializer:json" json:"variant_urls,omitempty"`
	PreviewImages []string          `gorm:"column:preview_images;serializer:json" json:"preview_images,omitempty"`

	Status      Status         `gorm:"column:status;type:varchar(20);index" json:"status"`
	CreatedAt   time.Time      `gorm:"column:created_at;index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"column:updated_at" json:"updated_at"`
	ProcessedAt *time.Time     `gorm:"column:processed_at" json:"processed_at,omitempty"`
	DeletedAt   gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (Upload) TableName() string { return "uploads" }

// RequiredVariants returns the variant set a completed upload of the given
// kind is expected to carry. Kinds with an empty set complete right after
// the original is persisted.
func RequiredVariants(kind MediaKind) []string {
	switch kind {
	case KindImage:
		return []string{
			VariantOptimized, VariantOptimizedWebP,
			VariantThumbnail, VariantThumbnailWebP,
			VariantTiny, VariantTinyWebP,
		}
	case KindVideo:
		return []string{VariantThumbnail}
	default:
		return nil
	}
}
