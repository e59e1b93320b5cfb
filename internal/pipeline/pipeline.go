// Package pipeline orchestrates the upload lifecycle: synchronous
// validate/hash/persist on the caller's goroutine, asynchronous variant
// generation on queue workers.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shopcraft/media-pipeline/internal/ledger"
	"github.com/shopcraft/media-pipeline/internal/objectkey"
	"github.com/shopcraft/media-pipeline/internal/queue"
	"github.com/shopcraft/media-pipeline/internal/storage"
	"github.com/shopcraft/media-pipeline/internal/validate"
	"github.com/shopcraft/media-pipeline/internal/variants"
	"github.com/shopcraft/media-pipeline/pkg/schema"
)

// EventPublisher receives result events from the async phase. Optional.
type EventPublisher interface {
	PublishJSON(subject string, v any) error
}

// Options tunes orchestration behavior.
type Options struct {
	// ImageRetries and MediaRetries are attempt budgets for image and
	// video/3D variant jobs respectively.
	ImageRetries int
	MediaRetries int
	BackoffBase  time.Duration

	// LookupTimeout bounds the duplicate-lookup query.
	LookupTimeout time.Duration

	// ResultSubject is where JobDone events are published when an
	// EventPublisher is configured.
	ResultSubject string
}

func (o *Options) fillDefaults() {
	if o.ImageRetries <= 0 {
		o.ImageRetries = 3
	}
	if o.MediaRetries <= 0 {
		o.MediaRetries = 2
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 2 * time.Second
	}
	if o.LookupTimeout <= 0 {
		o.LookupTimeout = 5 * time.Second
	}
	if o.ResultSubject == "" {
		o.ResultSubject = "media.variants.done"
	}
}

type Pipeline struct {
	repo      ledger.Repository
	store     storage.Backend
	urls      *objectkey.URLResolver
	validator *validate.Validator
	queue     queue.Queue
	renderer  variants.PreviewRenderer
	events    EventPublisher
	logger    *slog.Logger
	opts      Options
}

func New(repo ledger.Repository, store storage.Backend, urls *objectkey.URLResolver, validator *validate.Validator, q queue.Queue, logger *slog.Logger, opts Options) *Pipeline {
	opts.fillDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		repo:      repo,
		store:     store,
		urls:      urls,
		validator: validator,
		queue:     q,
		renderer:  variants.NoRenderer{},
		logger:    logger,
		opts:      opts,
	}
}

// SetRenderer installs a 3D preview rendering backend.
func (p *Pipeline) SetRenderer(r variants.PreviewRenderer) {
	if r != nil {
		p.renderer = r
	}
}

// SetEventPublisher installs a sink for JobDone events.
func (p *Pipeline) SetEventPublisher(pub EventPublisher) { p.events = pub }

// SubmitRequest carries one upload from the caller.
type SubmitRequest struct {
	Data         []byte
	Filename     string
	DeclaredMIME string
	WorkspaceID  string
	UploaderID   string
}

// SubmitResult is the structured outcome of a submission. Callers never
// see a bare fault: Error is set instead.
type SubmitResult struct {
	Success   bool              `json:"success"`
	UploadID  string            `json:"upload_id,omitempty"`
	URL       string            `json:"url,omitempty"`
	URLs      map[string]string `json:"urls,omitempty"`
	Status    ledger.Status     `json:"status,omitempty"`
	Duplicate bool              `json:"duplicate,omitempty"`
	Error     string            `json:"error,omitempty"`
}

func failure(reason string) SubmitResult {
	return SubmitResult{Success: false, Error: reason}
}

// Submit runs the synchronous path: validate, hash, dedup check, ledger
// row creation, original persistence, then hands off to the queue. No
// Upload record is ever created for input that fails validation.
func (p *Pipeline) Submit(ctx context.Context, req SubmitRequest) SubmitResult {
	logger := p.logger.With("workspace_id", req.WorkspaceID, "filename", req.Filename)

	res, err := p.validator.Validate(ctx, req.Data, req.Filename)
	if err != nil {
		logger.Error("validator internal failure", "err", err)
		return failure("validation could not run: " + err.Error())
	}
	if !res.Valid {
		logger.Info("rejected upload", "reason", res.Reason)
		return failure(res.Reason)
	}
	kind := res.MediaKind

	hash := ledger.ContentHash(req.Data)

	lookupCtx, cancel := context.WithTimeout(ctx, p.opts.LookupTimeout)
	dup, err := p.repo.FindDuplicate(lookupCtx, req.WorkspaceID, hash)
	cancel()
	switch {
	case err == nil:
		// Identical content already completed in this workspace: reuse
		// it instead of storing and processing again.
		logger.Info("dedup short-circuit", "existing_upload_id", dup.ID)
		return SubmitResult{
			Success:   true,
			UploadID:  dup.ID,
			URL:       dup.OriginalURL,
			URLs:      dup.VariantURLs,
			Status:    dup.Status,
			Duplicate: true,
		}
	case errors.Is(err, ledger.ErrNotFound):
		// proceed
	default:
		logger.Error("duplicate lookup failed", "err", err)
		return failure("duplicate lookup failed: " + err.Error())
	}

	now := time.Now()
	upload := &ledger.Upload{
		ID:           uuid.New().String(),
		WorkspaceID:  req.WorkspaceID,
		UploaderID:   req.UploaderID,
		MediaKind:    kind,
		OriginalName: req.Filename,
		MimeType:     req.DeclaredMIME,
		SizeBytes:    int64(len(req.Data)),
		ContentHash:  hash,
		Width:        res.Width,
		Height:       res.Height,
		Metadata:     res.Facts,
		Status:       ledger.StatusPending,
		CreatedAt:    now,
	}
	if err := p.repo.Create(ctx, upload); err != nil {
		logger.Error("create ledger row failed", "err", err)
		return failure("create upload record: " + err.Error())
	}
	logger = logger.With("upload_id", upload.ID)

	key := objectkey.Resolve(req.WorkspaceID, upload.ID, kind, objectkey.VersionOriginal, req.Filename)
	_, err = p.store.Write(ctx, key, bytes.NewReader(req.Data), int64(len(req.Data)), req.DeclaredMIME)
	if err != nil {
		// No orphaned pending rows from a failed original write.
		if delErr := p.repo.HardDelete(ctx, upload.ID); delErr != nil {
			logger.Error("rollback after storage failure failed", "err", delErr)
		}
		storageErr := StorageError{Op: "write", Key: key, Err: err}
		logger.Error("persist original failed", "err", storageErr)
		return failure(storageErr.Error())
	}

	url := p.urls.URLFor(req.WorkspaceID, key)
	if err := p.repo.AttachOriginal(ctx, upload.ID, key, url); err != nil {
		logger.Error("attach original paths failed", "err", err)
		return failure("attach original paths: " + err.Error())
	}

	if err := p.repo.UpdateStatus(ctx, upload.ID, ledger.StatusProcessing); err != nil {
		logger.Error("advance to processing failed", "err", err)
		return failure("update status: " + err.Error())
	}

	if kind == ledger.KindDocument {
		// Documents carry no derived variants; record why and complete.
		err := p.repo.MergeVariants(ctx, upload.ID, nil, nil, nil, map[string]any{
			"variants_skipped": "no variant set for media kind document",
		})
		if err != nil {
			logger.Error("record variant skip failed", "err", err)
			return failure("record variant skip: " + err.Error())
		}
		if err := p.repo.UpdateStatus(ctx, upload.ID, ledger.StatusCompleted); err != nil {
			logger.Error("complete document upload failed", "err", err)
			return failure("update status: " + err.Error())
		}
		return SubmitResult{Success: true, UploadID: upload.ID, URL: url, Status: ledger.StatusCompleted}
	}

	if err := p.enqueueVariantJob(ctx, upload, key); err != nil {
		logger.Error("enqueue variant job failed", "err", err)
		if failErr := p.repo.UpdateStatus(ctx, upload.ID, ledger.StatusFailed); failErr != nil {
			logger.Error("mark failed after enqueue error failed", "err", failErr)
		}
		return failure("enqueue variant job: " + err.Error())
	}

	logger.Info("upload accepted", "media_kind", kind, "size_bytes", upload.SizeBytes)
	return SubmitResult{Success: true, UploadID: upload.ID, URL: url, Status: ledger.StatusProcessing}
}

func (p *Pipeline) enqueueVariantJob(ctx context.Context, u *ledger.Upload, originalKey string) error {
	job := schema.VariantJob{
		UploadID:     u.ID,
		WorkspaceID:  u.WorkspaceID,
		MediaKind:    string(u.MediaKind),
		OriginalPath: originalKey,
		Filename:     u.OriginalName,
		HappenedAt:   time.Now().Unix(),
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	attempts := p.opts.MediaRetries
	if u.MediaKind == ledger.KindImage {
		attempts = p.opts.ImageRetries
	}
	return p.queue.Enqueue(ctx, queue.Job{
		ID:          u.ID,
		Payload:     payload,
		MaxAttempts: attempts,
		BackoffBase: p.opts.BackoffBase,
	})
}

// UploadStatus is the polling view of one upload.
type UploadStatus struct {
	UploadID    string            `json:"upload_id"`
	Status      ledger.Status     `json:"status"`
	URL         string            `json:"url,omitempty"`
	VariantURLs map[string]string `json:"variant_urls,omitempty"`
	Previews    []string          `json:"preview_images,omitempty"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
}

// GetUpload answers the status-query interface.
func (p *Pipeline) GetUpload(ctx context.Context, uploadID string) (*UploadStatus, error) {
	u, err := p.repo.Get(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	return &UploadStatus{
		UploadID:    u.ID,
		Status:      u.Status,
		URL:         u.OriginalURL,
		VariantURLs: u.VariantURLs,
		Previews:    u.PreviewImages,
		Metadata:    u.Metadata,
	}, nil
}

// Delete soft-deletes the ledger row and removes the upload's storage
// tree. Removing the tree is a side effect of explicit deletion, never of
// a status change.
func (p *Pipeline) Delete(ctx context.Context, uploadID string) error {
	u, err := p.repo.Get(ctx, uploadID)
	if err != nil {
		return err
	}
	if err := p.repo.SoftDelete(ctx, uploadID); err != nil {
		return err
	}
	prefix := objectkey.UploadPrefix(u.WorkspaceID, u.ID)
	if err := p.store.DeletePrefix(ctx, prefix); err != nil {
		p.logger.Warn("delete storage tree failed", "upload_id", uploadID, "prefix", prefix, "err", err)
		return StorageError{Op: "delete", Key: prefix, Err: err}
	}
	return nil
}
