package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopcraft/media-pipeline/internal/ledger"
	"github.com/shopcraft/media-pipeline/internal/objectkey"
	"github.com/shopcraft/media-pipeline/internal/queue"
	"github.com/shopcraft/media-pipeline/internal/storage"
	"github.com/shopcraft/media-pipeline/internal/validate"
	"github.com/shopcraft/media-pipeline/pkg/schema"
)

func testJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x % 256), G: uint8(y % 256), B: 64, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

// flakyBackend injects failures into selected operations of a real local
// backend.
type flakyBackend struct {
	storage.Backend
	failWrite func(key string) bool
	failRead  bool
}

func (f *flakyBackend) Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if f.failWrite != nil && f.failWrite(key) {
		return "", errors.New("injected write failure")
	}
	return f.Backend.Write(ctx, key, r, size, contentType)
}

func (f *flakyBackend) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	if f.failRead {
		return nil, errors.New("injected read failure")
	}
	return f.Backend.Read(ctx, key)
}

type captureEvents struct {
	mu   sync.Mutex
	done []schema.JobDone
}

func (c *captureEvents) PublishJSON(subject string, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := v.(schema.JobDone); ok {
		c.done = append(c.done, d)
	}
	return nil
}

func (c *captureEvents) events() []schema.JobDone {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]schema.JobDone(nil), c.done...)
}

type testEnv struct {
	repo   ledger.Repository
	store  storage.Backend
	queue  *queue.MemoryQueue
	events *captureEvents
	p      *Pipeline
}

func newTestEnv(t *testing.T, caps validate.Capabilities, wrap func(storage.Backend) storage.Backend) *testEnv {
	t.Helper()
	repo := ledger.NewMemoryRepository()
	local, err := storage.NewLocalBackend(storage.Config{LocalPath: t.TempDir()})
	require.NoError(t, err)
	var store storage.Backend = local
	if wrap != nil {
		store = wrap(store)
	}
	urls := &objectkey.URLResolver{Mock: true, LocalBase: "/media"}
	validator := validate.New(validate.DefaultLimits(), caps, nil)
	q := queue.NewMemoryQueue()
	events := &captureEvents{}

	p := New(repo, store, urls, validator, q, slog.Default(), Options{
		BackoffBase:   time.Millisecond,
		LookupTimeout: time.Second,
	})
	p.SetEventPublisher(events)
	require.NoError(t, p.StartWorker())

	return &testEnv{repo: repo, store: store, queue: q, events: events, p: p}
}

func TestSubmitImageEndToEnd(t *testing.T) {
	env := newTestEnv(t, validate.Capabilities{}, nil)
	ctx := context.Background()

	res := env.p.Submit(ctx, SubmitRequest{
		Data:         testJPEG(t, 2000, 1500),
		Filename:     "shoe photo.jpg",
		DeclaredMIME: "image/jpeg",
		WorkspaceID:  "w1",
		UploaderID:   "user-1",
	})
	require.True(t, res.Success, "submit failed: %s", res.Error)
	require.NotEmpty(t, res.UploadID)
	assert.NotEmpty(t, res.URL)
	assert.False(t, res.Duplicate)

	// The inline queue ran the variant job before Submit returned.
	status, err := env.p.GetUpload(ctx, res.UploadID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, status.Status)
	for _, name := range ledger.RequiredVariants(ledger.KindImage) {
		assert.Contains(t, status.VariantURLs, name)
	}
	assert.Equal(t, 2000, status.Metadata["width"])
	assert.Equal(t, 1500, status.Metadata["height"])

	u, err := env.repo.Get(ctx, res.UploadID)
	require.NoError(t, err)
	assert.Regexp(t,
		`^workspaces/w1/media/`+res.UploadID+`/images/original/shoe_photo_\d{8}_[0-9a-f]{8}\.jpg$`,
		u.OriginalPath)
	exists, err := env.store.Exists(ctx, u.OriginalPath)
	require.NoError(t, err)
	assert.True(t, exists, "original bytes missing from storage")

	done := env.events.events()
	require.Len(t, done, 1)
	assert.Equal(t, schema.StageCompleted, done[0].Stage)
	assert.Equal(t, 6, done[0].TotalProcessed)
	assert.Equal(t, 0, done[0].TotalFailed)
}

func TestSubmitValidationFailureCreatesNoRecord(t *testing.T) {
	env := newTestEnv(t, validate.Capabilities{}, nil)
	ctx := context.Background()

	res := env.p.Submit(ctx, SubmitRequest{
		Data:        []byte("definitely not an image"),
		Filename:    "fake.jpg",
		WorkspaceID: "w1",
	})
	require.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
	assert.Empty(t, res.UploadID)

	rows, err := env.repo.List(ctx, ledger.ListFilter{WorkspaceID: "w1"})
	require.NoError(t, err)
	assert.Empty(t, rows, "validation failure must not create a ledger row")
	assert.Equal(t, 0, env.queue.Enqueued())
}

func TestSubmitDedupShortCircuit(t *testing.T) {
	env := newTestEnv(t, validate.Capabilities{}, nil)
	ctx := context.Background()
	data := testJPEG(t, 400, 300)

	first := env.p.Submit(ctx, SubmitRequest{Data: data, Filename: "a.jpg", WorkspaceID: "w1"})
	require.True(t, first.Success, first.Error)

	second := env.p.Submit(ctx, SubmitRequest{Data: data, Filename: "b.jpg", WorkspaceID: "w1"})
	require.True(t, second.Success, second.Error)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.UploadID, second.UploadID)
	assert.Equal(t, ledger.StatusCompleted, second.Status)
	assert.NotEmpty(t, second.URLs)

	assert.Equal(t, 1, env.queue.Enqueued(), "duplicate must not enqueue a second job")

	rows, err := env.repo.List(ctx, ledger.ListFilter{WorkspaceID: "w1"})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestSubmitDedupScopedToWorkspace(t *testing.T) {
	env := newTestEnv(t, validate.Capabilities{}, nil)
	ctx := context.Background()
	data := testJPEG(t, 400, 300)

	first := env.p.Submit(ctx, SubmitRequest{Data: data, Filename: "a.jpg", WorkspaceID: "w1"})
	require.True(t, first.Success, first.Error)

	second := env.p.Submit(ctx, SubmitRequest{Data: data, Filename: "a.jpg", WorkspaceID: "w2"})
	require.True(t, second.Success, second.Error)
	assert.False(t, second.Duplicate, "identical bytes in another workspace are not duplicates")
	assert.NotEqual(t, first.UploadID, second.UploadID)
	assert.Equal(t, 2, env.queue.Enqueued())
}

func TestSubmitStorageFailureRollsBack(t *testing.T) {
	env := newTestEnv(t, validate.Capabilities{}, func(b storage.Backend) storage.Backend {
		return &flakyBackend{Backend: b, failWrite: func(string) bool { return true }}
	})
	ctx := context.Background()

	res := env.p.Submit(ctx, SubmitRequest{Data: testJPEG(t, 100, 100), Filename: "a.jpg", WorkspaceID: "w1"})
	require.False(t, res.Success)
	assert.Contains(t, res.Error, "storage write")

	rows, err := env.repo.List(ctx, ledger.ListFilter{WorkspaceID: "w1"})
	require.NoError(t, err)
	assert.Empty(t, rows, "failed original write must roll the row back")
}

func TestSubmitDocumentCompletesImmediately(t *testing.T) {
	env := newTestEnv(t, validate.Capabilities{}, nil)
	ctx := context.Background()

	res := env.p.Submit(ctx, SubmitRequest{
		Data:        []byte("%PDF-1.4 minimal body"),
		Filename:    "manual.pdf",
		WorkspaceID: "w1",
	})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, ledger.StatusCompleted, res.Status)
	assert.Equal(t, 0, env.queue.Enqueued(), "documents never enter the variant queue")

	status, err := env.p.GetUpload(ctx, res.UploadID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, status.Status)
	assert.Contains(t, status.Metadata, "variants_skipped")
	assert.Empty(t, status.VariantURLs)
}

func TestPartialVariantFailureStillCompletes(t *testing.T) {
	env := newTestEnv(t, validate.Capabilities{}, func(b storage.Backend) storage.Backend {
		return &flakyBackend{Backend: b, failWrite: func(key string) bool {
			return len(key) > 5 && key[len(key)-5:] == ".webp"
		}}
	})
	ctx := context.Background()

	res := env.p.Submit(ctx, SubmitRequest{Data: testJPEG(t, 400, 300), Filename: "a.jpg", WorkspaceID: "w1"})
	require.True(t, res.Success, res.Error)

	status, err := env.p.GetUpload(ctx, res.UploadID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, status.Status, "surviving variants still complete the upload")

	assert.Contains(t, status.VariantURLs, ledger.VariantOptimized)
	assert.Contains(t, status.VariantURLs, ledger.VariantThumbnail)
	assert.Contains(t, status.VariantURLs, ledger.VariantTiny)
	assert.NotContains(t, status.VariantURLs, ledger.VariantThumbnailWebP)

	failed, ok := status.Metadata["failed_variants"].([]string)
	require.True(t, ok, "failed_variants metadata missing: %v", status.Metadata)
	assert.Len(t, failed, 3)

	done := env.events.events()
	require.Len(t, done, 1)
	assert.Equal(t, 3, done[0].TotalProcessed)
	assert.Equal(t, 3, done[0].TotalFailed)
}

func TestRetryExhaustionMarksFailed(t *testing.T) {
	var flaky *flakyBackend
	env := newTestEnv(t, validate.Capabilities{}, func(b storage.Backend) storage.Backend {
		flaky = &flakyBackend{Backend: b}
		return flaky
	})
	ctx := context.Background()

	// Let the original write through, then break reads so every variant
	// attempt fails.
	flaky.failRead = true

	res := env.p.Submit(ctx, SubmitRequest{Data: testJPEG(t, 100, 100), Filename: "a.jpg", WorkspaceID: "w1"})
	require.True(t, res.Success, res.Error)

	status, err := env.p.GetUpload(ctx, res.UploadID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusFailed, status.Status)

	done := env.events.events()
	require.Len(t, done, 1)
	assert.Equal(t, schema.StageFailed, done[0].Stage)
	assert.Equal(t, schema.FailureTypeRetryable, done[0].FailureType)
	assert.NotEmpty(t, done[0].Error)
}

func TestVideoWithoutToolsCompletesDegraded(t *testing.T) {
	env := newTestEnv(t, validate.Capabilities{}, nil)
	ctx := context.Background()

	res := env.p.Submit(ctx, SubmitRequest{
		Data:        bytes.Repeat([]byte{0x42}, 4096),
		Filename:    "clip.mp4",
		WorkspaceID: "w1",
	})
	require.True(t, res.Success, res.Error)

	status, err := env.p.GetUpload(ctx, res.UploadID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, status.Status, "missing tools degrade, never fail")

	failed, ok := status.Metadata["failed_variants"].([]string)
	require.True(t, ok)
	assert.Equal(t, []string{ledger.VariantThumbnail}, failed)
}

func TestDeleteRemovesRowAndStorage(t *testing.T) {
	env := newTestEnv(t, validate.Capabilities{}, nil)
	ctx := context.Background()

	res := env.p.Submit(ctx, SubmitRequest{Data: testJPEG(t, 400, 300), Filename: "a.jpg", WorkspaceID: "w1"})
	require.True(t, res.Success, res.Error)

	u, err := env.repo.Get(ctx, res.UploadID)
	require.NoError(t, err)

	require.NoError(t, env.p.Delete(ctx, res.UploadID))

	_, err = env.p.GetUpload(ctx, res.UploadID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	exists, err := env.store.Exists(ctx, u.OriginalPath)
	require.NoError(t, err)
	assert.False(t, exists, "storage tree should be gone after delete")

	assert.ErrorIs(t, env.p.Delete(ctx, res.UploadID), ledger.ErrNotFound)
}

func TestGetUploadUnknownID(t *testing.T) {
	env := newTestEnv(t, validate.Capabilities{}, nil)
	_, err := env.p.GetUpload(context.Background(), "no-such-upload")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}
