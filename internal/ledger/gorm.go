package ledger

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type gormRepository struct {
	db *gorm.DB
}

// NewGormRepository returns a Repository backed by the given gorm handle.
// The uploads table is migrated on construction.
func NewGormRepository(db *gorm.DB) (Repository, error) {
	if err := db.AutoMigrate(&Upload{}); err != nil {
		return nil, err
	}
	return &gormRepository{db: db}, nil
}

func (r *gormRepository) Create(ctx context.Context, u *Upload) error {
	if u.Status == "" {
		u.Status = StatusPending
	}
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *gormRepository) Get(ctx context.Context, id string) (*Upload, error) {
	var u Upload
	err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *gormRepository) AttachOriginal(ctx context.Context, id, path, url string) error {
	res := r.db.WithContext(ctx).Model(&Upload{}).Where("id = ?", id).
		Updates(map[string]any{"original_path": path, "original_url": url})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormRepository) UpdateStatus(ctx context.Context, id string, status Status) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u Upload
		if err := tx.First(&u, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if !u.Status.CanTransition(status) {
			return ErrInvalidTransition
		}
		updates := map[string]any{"status": status}
		if status == StatusCompleted {
			now := time.Now()
			updates["processed_at"] = &now
		}
		return tx.Model(&Upload{}).Where("id = ?", id).Updates(updates).Error
	})
}

func (r *gormRepository) MergeVariants(ctx context.Context, id string, paths, urls map[string]string, previews []string, metadata map[string]any) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u Upload
		if err := tx.First(&u, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		mergeInto(&u, paths, urls, previews, metadata)
		// Struct update so the json serializers run on the map columns.
		return tx.Model(&u).
			Select("variant_paths", "variant_urls", "preview_images", "metadata", "width", "height").
			Updates(&u).Error
	})
}

func (r *gormRepository) FindDuplicate(ctx context.Context, workspaceID, hash string) (*Upload, error) {
	if hash == "" {
		return nil, ErrNotFound
	}
	var u Upload
	err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND content_hash = ? AND status = ?", workspaceID, hash, StatusCompleted).
		Order("created_at ASC").
		First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *gormRepository) List(ctx context.Context, f ListFilter) ([]*Upload, error) {
	q := r.db.WithContext(ctx).Model(&Upload{})
	if f.WorkspaceID != "" {
		q = q.Where("workspace_id = ?", f.WorkspaceID)
	}
	if f.UploaderID != "" {
		q = q.Where("uploader_id = ?", f.UploaderID)
	}
	if f.MediaKind != "" {
		q = q.Where("media_kind = ?", f.MediaKind)
	}
	if f.NameContains != "" {
		q = q.Where("original_name LIKE ?", "%"+f.NameContains+"%")
	}
	q = q.Order(orderClause(f))
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	var uploads []*Upload
	if err := q.Find(&uploads).Error; err != nil {
		return nil, err
	}
	return uploads, nil
}

func orderClause(f ListFilter) string {
	col := "created_at"
	switch f.SortBy {
	case SortByName:
		col = "original_name"
	case SortBySize:
		col = "size_bytes"
	}
	if f.SortDesc {
		return col + " DESC"
	}
	return col + " ASC"
}

func (r *gormRepository) FindOrphaned(ctx context.Context, cutoff time.Time) ([]*Upload, error) {
	var uploads []*Upload
	err := r.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?", []Status{StatusPending, StatusProcessing}, cutoff).
		Order("created_at ASC").
		Find(&uploads).Error
	if err != nil {
		return nil, err
	}
	return uploads, nil
}

func (r *gormRepository) WorkspaceTotals(ctx context.Context, workspaceID, uploaderID string) ([]StorageTotal, error) {
	q := r.db.WithContext(ctx).Model(&Upload{}).
		Select("workspace_id, media_kind, SUM(size_bytes) AS total_bytes, COUNT(*) AS count").
		Where("workspace_id = ?", workspaceID).
		Group("workspace_id, media_kind")
	if uploaderID != "" {
		q = r.db.WithContext(ctx).Model(&Upload{}).
			Select("workspace_id, uploader_id, media_kind, SUM(size_bytes) AS total_bytes, COUNT(*) AS count").
			Where("workspace_id = ? AND uploader_id = ?", workspaceID, uploaderID).
			Group("workspace_id, uploader_id, media_kind")
	}
	var totals []StorageTotal
	if err := q.Scan(&totals).Error; err != nil {
		return nil, err
	}
	return totals, nil
}

func (r *gormRepository) SoftDelete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&Upload{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormRepository) HardDelete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Unscoped().Delete(&Upload{}, "id = ?", id).Error
}

// mergeInto applies a variant merge to an in-memory copy of the row. It is
// shared with the memory repository so both backends merge identically.
func mergeInto(u *Upload, paths, urls map[string]string, previews []string, metadata map[string]any) {
	if len(paths) > 0 && u.VariantPaths == nil {
		u.VariantPaths = make(map[string]string, len(paths))
	}
	for k, v := range paths {
		u.VariantPaths[k] = v
	}
	if len(urls) > 0 && u.VariantURLs == nil {
		u.VariantURLs = make(map[string]string, len(urls))
	}
	for k, v := range urls {
		u.VariantURLs[k] = v
	}
	if len(previews) > 0 {
		u.PreviewImages = previews
	}
	if len(metadata) > 0 {
		if u.Metadata == nil {
			u.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			u.Metadata[k] = v
		}
		if w, ok := intFromMeta(metadata["width"]); ok && u.Width == 0 {
			u.Width = w
		}
		if h, ok := intFromMeta(metadata["height"]); ok && u.Height == 0 {
			u.Height = h
		}
	}
}

func intFromMeta(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
