// Package objectkey derives storage keys and CDN URLs for uploads. Key
// resolution is pure computation; the byte write that uses a resolved key
// is a separate operation.
package objectkey

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shopcraft/media-pipeline/internal/ledger"
)

// Version folders under an upload's media-kind prefix.
const (
	VersionOriginal  = "original"
	VersionOptimized = "optimized"
	VersionThumbnail = "thumbnail"
	VersionTiny      = "tiny"
	VersionPreviews  = "previews"
)

const maxStemLen = 40

// Resolve derives the storage key for one stored file:
//
//	workspaces/{workspace}/media/{upload}/{kind}/{version}/{generated}
//
// The generated filename combines the sanitized stem of the original
// name, a date stamp and a short random suffix, so repeated uploads of
// identically named files never collide.
func Resolve(workspaceID, uploadID string, kind ledger.MediaKind, version, filename string) string {
	return fmt.Sprintf("workspaces/%s/media/%s/%s/%s/%s",
		workspaceID, uploadID, kind.PathSegment(), version, GeneratedFilename(filename))
}

// UploadPrefix is the key prefix holding everything stored for an upload.
// Deleting this prefix removes the upload's whole storage tree.
func UploadPrefix(workspaceID, uploadID string) string {
	return fmt.Sprintf("workspaces/%s/media/%s/", workspaceID, uploadID)
}

// GeneratedFilename builds "{stem}_{yyyymmdd}_{suffix}{ext}" from the
// original filename.
func GeneratedFilename(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	stem := SanitizeStem(strings.TrimSuffix(path.Base(filename), path.Ext(filename)))
	stamp := time.Now().UTC().Format("20060102")
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("%s_%s_%s%s", stem, stamp, suffix, ext)
}

// SanitizeStem reduces a filename stem to alphanumerics, '-' and '_',
// truncated to a bounded length. Anything else becomes '_'.
func SanitizeStem(stem string) string {
	stem = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, stem)
	if len(stem) > maxStemLen {
		stem = stem[:maxStemLen]
	}
	if stem == "" {
		return "file"
	}
	return stem
}

// CacheControlFor maps a version folder to its cache policy. Immutable
// versions get a year; previews are regenerable and get shorter windows.
func CacheControlFor(version string) string {
	switch version {
	case VersionOriginal, VersionOptimized, VersionThumbnail, VersionTiny:
		return "public, max-age=31536000, immutable"
	case VersionPreviews:
		return "public, max-age=604800, s-maxage=2592000"
	default:
		return "public, max-age=604800"
	}
}
