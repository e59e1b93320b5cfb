package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/shopcraft/media-pipeline/internal/ledger"
	"github.com/shopcraft/media-pipeline/internal/objectkey"
	"github.com/shopcraft/media-pipeline/internal/variants"
	"github.com/shopcraft/media-pipeline/pkg/schema"
)

// StartWorker subscribes the asynchronous variant phase to the queue.
// An error return from the handler consumes one attempt of the job's
// retry budget; exhaustion marks the upload failed.
func (p *Pipeline) StartWorker() error {
	return p.queue.Subscribe(p.handleVariantJob, p.handleExhausted)
}

func (p *Pipeline) handleVariantJob(ctx context.Context, payload []byte) error {
	var job schema.VariantJob
	if err := json.Unmarshal(payload, &job); err != nil {
		p.logger.Error("undecodable variant job", "err", err)
		return nil
	}
	logger := p.logger.With("upload_id", job.UploadID, "workspace_id", job.WorkspaceID)
	start := time.Now()

	u, err := p.repo.Get(ctx, job.UploadID)
	if errors.Is(err, ledger.ErrNotFound) {
		logger.Warn("upload vanished before processing; dropping job")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load upload: %w", err)
	}
	if u.Status == ledger.StatusCompleted || u.Status == ledger.StatusFailed {
		logger.Info("upload already terminal; dropping replayed job", "status", u.Status)
		return nil
	}

	rc, err := p.store.Read(ctx, u.OriginalPath)
	if err != nil {
		return StorageError{Op: "read", Key: u.OriginalPath, Err: err}
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return StorageError{Op: "read", Key: u.OriginalPath, Err: err}
	}

	var artifacts []variants.Artifact
	var failures []variants.Failure
	extraMeta := map[string]any{}

	switch u.MediaKind {
	case ledger.KindImage:
		artifacts, failures, err = variants.ImageVariants(data, u.OriginalName)
		if err != nil {
			// Undecodable source: fatal for the job, subject to retries.
			return err
		}
	case ledger.KindVideo:
		artifacts, failures, err = p.videoArtifacts(ctx, data, u, extraMeta)
		if err != nil {
			return err
		}
	case ledger.Kind3DModel:
		artifacts, failures = p.modelArtifacts(ctx, data, u, logger)
	default:
		logger.Info("no variant generation for media kind", "media_kind", u.MediaKind)
	}

	paths := map[string]string{}
	urls := map[string]string{}
	var previews []string
	var persisted []variants.Artifact
	var firstWriteErr error
	for _, a := range artifacts {
		key := objectkey.Resolve(u.WorkspaceID, u.ID, u.MediaKind, a.Version, a.Filename)
		if _, werr := p.store.Write(ctx, key, bytes.NewReader(a.Data), int64(len(a.Data)), a.ContentType); werr != nil {
			werr = StorageError{Op: "write", Key: key, Err: werr}
			if firstWriteErr == nil {
				firstWriteErr = werr
			}
			failures = append(failures, variants.Failure{Name: a.Name, Err: werr})
			continue
		}
		url := p.urls.URLFor(u.WorkspaceID, key)
		if a.Version == objectkey.VersionPreviews {
			previews = append(previews, url)
		} else {
			paths[a.Name] = key
			urls[a.Name] = url
		}
		persisted = append(persisted, a)
	}

	// Nothing produced and the backend rejected every write: let the
	// retry budget take another swing instead of completing empty.
	if len(artifacts) > 0 && len(persisted) == 0 && firstWriteErr != nil {
		return firstWriteErr
	}

	for _, f := range failures {
		logger.Warn("variant failed", "variant", f.Name, "err", f.Err)
	}
	if len(failures) > 0 {
		names := make([]string, 0, len(failures))
		for _, f := range failures {
			names = append(names, f.Name)
		}
		extraMeta["failed_variants"] = names
	}

	if err := p.repo.MergeVariants(ctx, u.ID, paths, urls, previews, extraMeta); err != nil {
		return fmt.Errorf("merge variants: %w", err)
	}
	if err := p.repo.UpdateStatus(ctx, u.ID, ledger.StatusCompleted); err != nil {
		if errors.Is(err, ledger.ErrInvalidTransition) {
			logger.Warn("upload reached terminal state concurrently", "err", err)
			return nil
		}
		return fmt.Errorf("complete upload: %w", err)
	}

	p.publishDone(schema.JobDone{
		UploadID:         u.ID,
		WorkspaceID:      u.WorkspaceID,
		Stage:            schema.StageCompleted,
		TotalProcessed:   len(persisted),
		TotalFailed:      len(failures),
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		Results:          resultsFor(persisted, paths, urls, failures),
		HappenedAt:       time.Now().Unix(),
	})
	logger.Info("variant job completed", "processed", len(persisted), "failed", len(failures), "processing_time_ms", time.Since(start).Milliseconds())
	return nil
}

// videoArtifacts probes stream metadata when possible and extracts one
// thumbnail frame. A thumbnail failure is isolated; probe metadata alone
// still completes the job.
func (p *Pipeline) videoArtifacts(ctx context.Context, data []byte, u *ledger.Upload, extraMeta map[string]any) ([]variants.Artifact, []variants.Failure, error) {
	temp, err := os.CreateTemp("", "video-src-*")
	if err != nil {
		return nil, nil, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(temp.Name())
	if _, err := temp.Write(data); err != nil {
		temp.Close()
		return nil, nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		return nil, nil, fmt.Errorf("close temp file: %w", err)
	}

	caps := p.validator.Capabilities()
	var duration float64
	if caps.HasVideoProbe {
		if info, perr := (variants.FFprobe{}).Probe(ctx, temp.Name()); perr == nil {
			duration = info.Duration
			extraMeta["duration"] = info.Duration
			extraMeta["width"] = info.Width
			extraMeta["height"] = info.Height
			extraMeta["codec"] = info.Codec
			extraMeta["bitrate"] = info.BitRate
			extraMeta["fps"] = info.FPS
		} else {
			p.logger.Warn("video probe failed", "upload_id", u.ID, "err", perr)
		}
	}

	var artifacts []variants.Artifact
	var failures []variants.Failure
	if caps.HasFFmpeg {
		thumb, terr := variants.VideoThumbnail(ctx, temp.Name(), u.OriginalName, duration)
		if terr != nil {
			failures = append(failures, variants.Failure{
				Name: ledger.VariantThumbnail,
				Err:  TranscodeError{Variant: ledger.VariantThumbnail, Err: terr},
			})
		} else {
			artifacts = append(artifacts, thumb)
		}
	} else {
		failures = append(failures, variants.Failure{
			Name: ledger.VariantThumbnail,
			Err:  TranscodeError{Variant: ledger.VariantThumbnail, Err: errors.New("ffmpeg unavailable")},
		})
	}
	return artifacts, failures, nil
}

// modelArtifacts renders best-effort previews. Structural metadata was
// already extracted at validation time; a missing renderer only omits the
// preview list, never fails the job.
func (p *Pipeline) modelArtifacts(ctx context.Context, data []byte, u *ledger.Upload, logger *slog.Logger) ([]variants.Artifact, []variants.Failure) {
	temp, err := os.CreateTemp("", "model-src-*")
	if err != nil {
		logger.Warn("create temp file for model failed", "err", err)
		return nil, nil
	}
	defer os.Remove(temp.Name())
	if _, err := temp.Write(data); err != nil {
		temp.Close()
		logger.Warn("write temp file for model failed", "err", err)
		return nil, nil
	}
	temp.Close()

	renders, err := p.renderer.RenderPreviews(ctx, temp.Name(), u.OriginalName)
	if err != nil {
		logger.Warn("preview render failed", "err", err)
		return nil, nil
	}
	return renders, nil
}

func (p *Pipeline) handleExhausted(ctx context.Context, payload []byte, cause error) {
	var job schema.VariantJob
	if err := json.Unmarshal(payload, &job); err != nil {
		p.logger.Error("undecodable exhausted job", "err", err)
		return
	}
	logger := p.logger.With("upload_id", job.UploadID)
	logger.Error("variant job exhausted retries", "err", cause)

	if err := p.repo.UpdateStatus(ctx, job.UploadID, ledger.StatusFailed); err != nil && !errors.Is(err, ledger.ErrInvalidTransition) {
		logger.Error("mark upload failed", "err", err)
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	p.publishDone(schema.JobDone{
		UploadID:    job.UploadID,
		WorkspaceID: job.WorkspaceID,
		Stage:       schema.StageFailed,
		Error:       msg,
		FailureType: classifyFailure(cause),
		HappenedAt:  time.Now().Unix(),
	})
}

func (p *Pipeline) publishDone(done schema.JobDone) {
	if p.events == nil {
		return
	}
	if err := p.events.PublishJSON(p.opts.ResultSubject, done); err != nil {
		p.logger.Error("publish result failed", "subject", p.opts.ResultSubject, "upload_id", done.UploadID, "err", err)
	}
}

func resultsFor(artifacts []variants.Artifact, paths, urls map[string]string, failures []variants.Failure) []schema.VariantResult {
	results := make([]schema.VariantResult, 0, len(artifacts)+len(failures))
	for _, a := range artifacts {
		r := schema.VariantResult{
			Name:   a.Name,
			Width:  a.Width,
			Height: a.Height,
			Status: "processed",
			Path:   paths[a.Name],
			URL:    urls[a.Name],
		}
		results = append(results, r)
	}
	for _, f := range failures {
		results = append(results, schema.VariantResult{
			Name:   f.Name,
			Status: "failed",
			Error:  f.Err.Error(),
		})
	}
	return results
}
