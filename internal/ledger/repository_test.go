package ledger

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// withEachRepository runs the test against both backends: the in-memory
// double and the gorm implementation the binaries wire.
func withEachRepository(t *testing.T, fn func(t *testing.T, repo Repository)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryRepository())
	})
	t.Run("gorm", func(t *testing.T) {
		db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "uploads.db")), &gorm.Config{})
		require.NoError(t, err)
		repo, err := NewGormRepository(db)
		require.NoError(t, err)
		fn(t, repo)
	})
}

func newUpload(id, workspace, hash string, status Status) *Upload {
	return &Upload{
		ID:           id,
		WorkspaceID:  workspace,
		UploaderID:   "user-1",
		MediaKind:    KindImage,
		OriginalName: id + ".jpg",
		ContentHash:  hash,
		SizeBytes:    1000,
		Status:       status,
	}
}

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		allowed  bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusPending, false},
		{StatusCompleted, StatusProcessing, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusProcessing, false},
		{StatusFailed, StatusPending, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.allowed, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestUpdateStatusLifecycle(t *testing.T) {
	withEachRepository(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		require.NoError(t, repo.Create(ctx, newUpload("u1", "w1", "h1", StatusPending)))

		require.NoError(t, repo.UpdateStatus(ctx, "u1", StatusProcessing))
		require.NoError(t, repo.UpdateStatus(ctx, "u1", StatusCompleted))

		u, err := repo.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, u.Status)
		require.NotNil(t, u.ProcessedAt)

		err = repo.UpdateStatus(ctx, "u1", StatusFailed)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestUpdateStatusUnknownID(t *testing.T) {
	withEachRepository(t, func(t *testing.T, repo Repository) {
		err := repo.UpdateStatus(context.Background(), "missing", StatusProcessing)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestFindDuplicateScoping(t *testing.T) {
	withEachRepository(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()

		completed := newUpload("dup-done", "w1", "hash-a", StatusCompleted)
		completed.CreatedAt = time.Now().Add(-time.Hour)
		require.NoError(t, repo.Create(ctx, completed))
		require.NoError(t, repo.Create(ctx, newUpload("dup-pending", "w1", "hash-a", StatusPending)))
		require.NoError(t, repo.Create(ctx, newUpload("other-ws", "w2", "hash-a", StatusCompleted)))

		// Matches only completed rows in the same workspace; the oldest wins.
		got, err := repo.FindDuplicate(ctx, "w1", "hash-a")
		require.NoError(t, err)
		assert.Equal(t, "dup-done", got.ID)

		_, err = repo.FindDuplicate(ctx, "w3", "hash-a")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = repo.FindDuplicate(ctx, "w1", "hash-b")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestFindDuplicateIgnoresSoftDeleted(t *testing.T) {
	withEachRepository(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		require.NoError(t, repo.Create(ctx, newUpload("gone", "w1", "hash-a", StatusCompleted)))
		require.NoError(t, repo.SoftDelete(ctx, "gone"))

		// A deleted duplicate no longer blocks re-upload of the same bytes.
		_, err := repo.FindDuplicate(ctx, "w1", "hash-a")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMergeVariantsAccumulates(t *testing.T) {
	withEachRepository(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		require.NoError(t, repo.Create(ctx, newUpload("u1", "w1", "h1", StatusProcessing)))

		require.NoError(t, repo.MergeVariants(ctx, "u1",
			map[string]string{VariantThumbnail: "path/t.jpg"},
			map[string]string{VariantThumbnail: "https://cdn/t.jpg"},
			nil,
			map[string]any{"width": 2000, "height": 1500},
		))
		require.NoError(t, repo.MergeVariants(ctx, "u1",
			map[string]string{VariantTiny: "path/tiny.jpg"},
			map[string]string{VariantTiny: "https://cdn/tiny.jpg"},
			[]string{"path/preview_0.png"},
			map[string]any{"codec": "h264"},
		))

		u, err := repo.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "path/t.jpg", u.VariantPaths[VariantThumbnail])
		assert.Equal(t, "path/tiny.jpg", u.VariantPaths[VariantTiny])
		assert.Equal(t, "https://cdn/t.jpg", u.VariantURLs[VariantThumbnail])
		assert.Equal(t, []string{"path/preview_0.png"}, u.PreviewImages)
		assert.Equal(t, 2000, u.Width)
		assert.Equal(t, 1500, u.Height)
		assert.Equal(t, "h264", u.Metadata["codec"])
		assert.EqualValues(t, 2000, u.Metadata["width"])
	})
}

func TestMergeVariantsMetadataOnly(t *testing.T) {
	withEachRepository(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		require.NoError(t, repo.Create(ctx, newUpload("doc-1", "w1", "h1", StatusProcessing)))

		// The skip-note merge carries no paths or previews at all.
		require.NoError(t, repo.MergeVariants(ctx, "doc-1", nil, nil, nil,
			map[string]any{"variants_skipped": "no variant set for media kind document"}))

		u, err := repo.Get(ctx, "doc-1")
		require.NoError(t, err)
		assert.Equal(t, "no variant set for media kind document", u.Metadata["variants_skipped"])
		assert.Empty(t, u.VariantPaths)
	})
}

func TestGetReturnsDetachedCopy(t *testing.T) {
	withEachRepository(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		u := newUpload("u1", "w1", "h1", StatusProcessing)
		u.Metadata = map[string]any{"format": "jpeg"}
		require.NoError(t, repo.Create(ctx, u))

		require.NoError(t, repo.MergeVariants(ctx, "u1",
			map[string]string{VariantThumbnail: "path/t.jpg"}, nil, nil, nil))

		snapshot, err := repo.Get(ctx, "u1")
		require.NoError(t, err)

		// A merge after the read must not show up in the held snapshot.
		require.NoError(t, repo.MergeVariants(ctx, "u1",
			map[string]string{VariantTiny: "path/tiny.jpg"}, nil, nil, nil))
		assert.NotContains(t, snapshot.VariantPaths, VariantTiny)

		// Mutating the snapshot must not leak into the stored row.
		snapshot.VariantPaths[VariantThumbnail] = "tampered"
		snapshot.Metadata["format"] = "tampered"
		fresh, err := repo.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "path/t.jpg", fresh.VariantPaths[VariantThumbnail])
		assert.Equal(t, "jpeg", fresh.Metadata["format"])
	})
}

func TestListFiltersAndSorts(t *testing.T) {
	withEachRepository(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()

		base := time.Now().Add(-time.Hour)
		rows := []*Upload{
			{ID: "a", WorkspaceID: "w1", UploaderID: "user-1", MediaKind: KindImage, OriginalName: "banner.jpg", SizeBytes: 300, CreatedAt: base},
			{ID: "b", WorkspaceID: "w1", UploaderID: "user-2", MediaKind: KindVideo, OriginalName: "promo clip.mp4", SizeBytes: 900, CreatedAt: base.Add(time.Minute)},
			{ID: "c", WorkspaceID: "w1", UploaderID: "user-1", MediaKind: KindImage, OriginalName: "promo shot.jpg", SizeBytes: 100, CreatedAt: base.Add(2 * time.Minute)},
			{ID: "d", WorkspaceID: "w2", UploaderID: "user-1", MediaKind: KindImage, OriginalName: "elsewhere.jpg", SizeBytes: 50, CreatedAt: base.Add(3 * time.Minute)},
		}
		for _, u := range rows {
			u.Status = StatusCompleted
			require.NoError(t, repo.Create(ctx, u))
		}

		got, err := repo.List(ctx, ListFilter{WorkspaceID: "w1"})
		require.NoError(t, err)
		assert.Len(t, got, 3)

		got, err = repo.List(ctx, ListFilter{WorkspaceID: "w1", MediaKind: KindVideo})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "b", got[0].ID)

		got, err = repo.List(ctx, ListFilter{WorkspaceID: "w1", NameContains: "promo"})
		require.NoError(t, err)
		assert.Len(t, got, 2)

		got, err = repo.List(ctx, ListFilter{WorkspaceID: "w1", SortBy: SortBySize})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "c", got[0].ID)
		assert.Equal(t, "b", got[2].ID)

		got, err = repo.List(ctx, ListFilter{WorkspaceID: "w1", SortBy: SortByDate, SortDesc: true, Limit: 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "c", got[0].ID)

		got, err = repo.List(ctx, ListFilter{WorkspaceID: "w1", SortBy: SortByDate, Offset: 2})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "c", got[0].ID)
	})
}

func TestFindOrphaned(t *testing.T) {
	withEachRepository(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()

		old := newUpload("stuck", "w1", "h1", StatusProcessing)
		old.CreatedAt = time.Now().Add(-48 * time.Hour)
		require.NoError(t, repo.Create(ctx, old))

		fresh := newUpload("fresh", "w1", "h2", StatusPending)
		require.NoError(t, repo.Create(ctx, fresh))

		done := newUpload("done", "w1", "h3", StatusCompleted)
		done.CreatedAt = time.Now().Add(-48 * time.Hour)
		require.NoError(t, repo.Create(ctx, done))

		got, err := repo.FindOrphaned(ctx, time.Now().Add(-24*time.Hour))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "stuck", got[0].ID)
	})
}

func TestWorkspaceTotals(t *testing.T) {
	withEachRepository(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()

		rows := []*Upload{
			{ID: "1", WorkspaceID: "w1", UploaderID: "user-1", MediaKind: KindImage, SizeBytes: 100, Status: StatusCompleted},
			{ID: "2", WorkspaceID: "w1", UploaderID: "user-1", MediaKind: KindImage, SizeBytes: 200, Status: StatusCompleted},
			{ID: "3", WorkspaceID: "w1", UploaderID: "user-2", MediaKind: KindVideo, SizeBytes: 5000, Status: StatusCompleted},
			{ID: "4", WorkspaceID: "w2", UploaderID: "user-1", MediaKind: KindImage, SizeBytes: 999, Status: StatusCompleted},
		}
		for _, u := range rows {
			require.NoError(t, repo.Create(ctx, u))
		}

		totals, err := repo.WorkspaceTotals(ctx, "w1", "")
		require.NoError(t, err)
		require.Len(t, totals, 2)
		byKind := map[MediaKind]StorageTotal{}
		for _, tot := range totals {
			byKind[tot.MediaKind] = tot
		}
		assert.Equal(t, int64(300), byKind[KindImage].TotalBytes)
		assert.Equal(t, int64(2), byKind[KindImage].Count)
		assert.Equal(t, int64(5000), byKind[KindVideo].TotalBytes)

		totals, err = repo.WorkspaceTotals(ctx, "w1", "user-1")
		require.NoError(t, err)
		require.Len(t, totals, 1)
		assert.Equal(t, int64(300), totals[0].TotalBytes)
	})
}

func TestSoftDeleteHidesRow(t *testing.T) {
	withEachRepository(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		require.NoError(t, repo.Create(ctx, newUpload("u1", "w1", "h1", StatusCompleted)))

		require.NoError(t, repo.SoftDelete(ctx, "u1"))

		_, err := repo.Get(ctx, "u1")
		assert.ErrorIs(t, err, ErrNotFound)

		got, err := repo.List(ctx, ListFilter{WorkspaceID: "w1"})
		require.NoError(t, err)
		assert.Empty(t, got)

		assert.ErrorIs(t, repo.SoftDelete(ctx, "u1"), ErrNotFound)
	})
}

func TestHardDeleteRemovesRow(t *testing.T) {
	withEachRepository(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		require.NoError(t, repo.Create(ctx, newUpload("u1", "w1", "h1", StatusPending)))

		require.NoError(t, repo.HardDelete(ctx, "u1"))
		_, err := repo.Get(ctx, "u1")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestContentHash(t *testing.T) {
	// Known SHA-256 of "abc".
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	assert.Equal(t, want, ContentHash([]byte("abc")))

	got, err := ContentHashReader(strings.NewReader("abc"))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	assert.NotEqual(t, ContentHash([]byte("abc")), ContentHash([]byte("abd")))
}
