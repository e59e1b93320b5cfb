package ledger

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"
)

// memoryRepository keeps uploads in a map. It backs tests and the local
// mock mode where no database is configured.
type memoryRepository struct {
	mu      sync.RWMutex
	uploads map[string]*Upload
}

func NewMemoryRepository() Repository {
	return &memoryRepository{uploads: make(map[string]*Upload)}
}

// cloneUpload detaches the row's map and slice fields so callers never
// share storage with the repository (or with each other).
func cloneUpload(u *Upload) *Upload {
	cp := *u
	if u.Metadata != nil {
		cp.Metadata = make(map[string]any, len(u.Metadata))
		for k, v := range u.Metadata {
			cp.Metadata[k] = v
		}
	}
	if u.VariantPaths != nil {
		cp.VariantPaths = make(map[string]string, len(u.VariantPaths))
		for k, v := range u.VariantPaths {
			cp.VariantPaths[k] = v
		}
	}
	if u.VariantURLs != nil {
		cp.VariantURLs = make(map[string]string, len(u.VariantURLs))
		for k, v := range u.VariantURLs {
			cp.VariantURLs[k] = v
		}
	}
	if u.PreviewImages != nil {
		cp.PreviewImages = append([]string(nil), u.PreviewImages...)
	}
	return &cp
}

func (r *memoryRepository) Create(_ context.Context, u *Upload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.Status == "" {
		u.Status = StatusPending
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	u.UpdatedAt = u.CreatedAt
	r.uploads[u.ID] = cloneUpload(u)
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (*Upload, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.uploads[id]
	if !ok || u.DeletedAt.Valid {
		return nil, ErrNotFound
	}
	return cloneUpload(u), nil
}

func (r *memoryRepository) AttachOriginal(_ context.Context, id, path, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.uploads[id]
	if !ok || u.DeletedAt.Valid {
		return ErrNotFound
	}
	u.OriginalPath = path
	u.OriginalURL = url
	u.UpdatedAt = time.Now()
	return nil
}

func (r *memoryRepository) UpdateStatus(_ context.Context, id string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.uploads[id]
	if !ok || u.DeletedAt.Valid {
		return ErrNotFound
	}
	if !u.Status.CanTransition(status) {
		return ErrInvalidTransition
	}
	u.Status = status
	u.UpdatedAt = time.Now()
	if status == StatusCompleted {
		now := time.Now()
		u.ProcessedAt = &now
	}
	return nil
}

func (r *memoryRepository) MergeVariants(_ context.Context, id string, paths, urls map[string]string, previews []string, metadata map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.uploads[id]
	if !ok || u.DeletedAt.Valid {
		return ErrNotFound
	}
	mergeInto(u, paths, urls, previews, metadata)
	u.UpdatedAt = time.Now()
	return nil
}

func (r *memoryRepository) FindDuplicate(_ context.Context, workspaceID, hash string) (*Upload, error) {
	if hash == "" {
		return nil, ErrNotFound
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var match *Upload
	for _, u := range r.uploads {
		if u.DeletedAt.Valid || u.WorkspaceID != workspaceID || u.ContentHash != hash || u.Status != StatusCompleted {
			continue
		}
		if match == nil || u.CreatedAt.Before(match.CreatedAt) {
			match = u
		}
	}
	if match == nil {
		return nil, ErrNotFound
	}
	return cloneUpload(match), nil
}

func (r *memoryRepository) List(_ context.Context, f ListFilter) ([]*Upload, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Upload
	for _, u := range r.uploads {
		if u.DeletedAt.Valid {
			continue
		}
		if f.WorkspaceID != "" && u.WorkspaceID != f.WorkspaceID {
			continue
		}
		if f.UploaderID != "" && u.UploaderID != f.UploaderID {
			continue
		}
		if f.MediaKind != "" && u.MediaKind != f.MediaKind {
			continue
		}
		if f.NameContains != "" && !strings.Contains(u.OriginalName, f.NameContains) {
			continue
		}
		out = append(out, cloneUpload(u))
	}
	sort.Slice(out, func(i, j int) bool {
		var less bool
		switch f.SortBy {
		case SortByName:
			less = out[i].OriginalName < out[j].OriginalName
		case SortBySize:
			less = out[i].SizeBytes < out[j].SizeBytes
		default:
			less = out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		if f.SortDesc {
			return !less
		}
		return less
	})
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *memoryRepository) FindOrphaned(_ context.Context, cutoff time.Time) ([]*Upload, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Upload
	for _, u := range r.uploads {
		if u.DeletedAt.Valid {
			continue
		}
		if (u.Status == StatusPending || u.Status == StatusProcessing) && u.CreatedAt.Before(cutoff) {
			out = append(out, cloneUpload(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryRepository) WorkspaceTotals(_ context.Context, workspaceID, uploaderID string) ([]StorageTotal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byKind := make(map[MediaKind]*StorageTotal)
	for _, u := range r.uploads {
		if u.DeletedAt.Valid || u.WorkspaceID != workspaceID {
			continue
		}
		if uploaderID != "" && u.UploaderID != uploaderID {
			continue
		}
		t, ok := byKind[u.MediaKind]
		if !ok {
			t = &StorageTotal{WorkspaceID: workspaceID, UploaderID: uploaderID, MediaKind: u.MediaKind}
			byKind[u.MediaKind] = t
		}
		t.TotalBytes += u.SizeBytes
		t.Count++
	}
	out := make([]StorageTotal, 0, len(byKind))
	for _, t := range byKind {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MediaKind < out[j].MediaKind })
	return out, nil
}

func (r *memoryRepository) SoftDelete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.uploads[id]
	if !ok || u.DeletedAt.Valid {
		return ErrNotFound
	}
	u.DeletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
	return nil
}

func (r *memoryRepository) HardDelete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.uploads, id)
	return nil
}
