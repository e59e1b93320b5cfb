package pipeline

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"time"
)

// contentTypeExts is the last-resort filename inference when neither the
// content-disposition header nor the URL path names the file.
var contentTypeExts = map[string]string{
	"image/jpeg":        ".jpg",
	"image/png":         ".png",
	"image/gif":         ".gif",
	"image/webp":        ".webp",
	"video/mp4":         ".mp4",
	"video/webm":        ".webm",
	"video/quicktime":   ".mov",
	"model/gltf+json":   ".gltf",
	"model/gltf-binary": ".glb",
	"application/pdf":   ".pdf",
}

// SubmitFromURL downloads the resource and submits it like a direct
// upload. The byte cap is enforced incrementally while streaming, so an
// oversized or lying server is cut off at maxSize+1 bytes.
func (p *Pipeline) SubmitFromURL(ctx context.Context, rawURL, workspaceID, uploaderID string, timeout time.Duration, maxSize int64) SubmitResult {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxSize <= 0 {
		maxSize = 100 << 20
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return failure("invalid url: " + err.Error())
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return failure("download failed: " + err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return failure(fmt.Sprintf("download failed: unexpected status %d", resp.StatusCode))
	}
	if resp.ContentLength > maxSize {
		return failure(fmt.Sprintf("remote file exceeds maximum size of %d bytes", maxSize))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSize+1))
	if err != nil {
		return failure("download failed: " + err.Error())
	}
	if int64(len(data)) > maxSize {
		return failure(fmt.Sprintf("remote file exceeds maximum size of %d bytes", maxSize))
	}

	contentType := resp.Header.Get("Content-Type")
	filename := inferFilename(resp.Header.Get("Content-Disposition"), rawURL, contentType)

	return p.Submit(ctx, SubmitRequest{
		Data:         data,
		Filename:     filename,
		DeclaredMIME: contentType,
		WorkspaceID:  workspaceID,
		UploaderID:   uploaderID,
	})
}

// inferFilename resolves a filename from, in priority order: the
// content-disposition header, the URL path, the content type.
func inferFilename(disposition, rawURL, contentType string) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			if name := params["filename"]; name != "" {
				return path.Base(name)
			}
		}
	}
	if u, err := url.Parse(rawURL); err == nil {
		if base := path.Base(u.Path); base != "" && base != "." && base != "/" && path.Ext(base) != "" {
			return base
		}
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		if ext := contentTypeExts[mediaType]; ext != "" {
			return "download" + ext
		}
	}
	return "download"
}
