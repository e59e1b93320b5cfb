// Package validate confirms container/format integrity per media kind and
// extracts cheap structural facts before any bytes are persisted. An
// invalid file is a normal, reportable outcome, never a propagated fault.
package validate

import (
	"context"
	"path"
	"strings"

	"github.com/shopcraft/media-pipeline/internal/ledger"
)

// Result is the outcome of validating one submission.
type Result struct {
	Valid     bool
	Reason    string
	MediaKind ledger.MediaKind
	Width     int
	Height    int
	// Facts holds kind-specific structural metadata (duration, codec,
	// vertex counts, ...) merged into the upload's metadata blob.
	Facts map[string]any
}

func invalid(kind ledger.MediaKind, reason string) Result {
	return Result{Valid: false, Reason: reason, MediaKind: kind}
}

// VideoInfo is what a probing engine reports about a video stream.
type VideoInfo struct {
	Duration float64
	Width    int
	Height   int
	Codec    string
	BitRate  int64
	FPS      float64
}

// VideoProber extracts stream metadata from a video file on disk.
type VideoProber interface {
	Probe(ctx context.Context, path string) (VideoInfo, error)
}

// Limits bounds accepted inputs. Image byte caps differ per environment.
type Limits struct {
	MaxImageBytes    int64
	MaxImageWidth    int
	MaxImageHeight   int
	MinVideoBytes    int64
	MaxVideoBytes    int64
	MinVideoDuration float64
	MaxVideoDuration float64
	MinModelBytes    int64
	MaxModelBytes    int64
	MaxDocumentBytes int64
}

func DefaultLimits() Limits {
	return Limits{
		MaxImageBytes:    5 << 20,
		MaxImageWidth:    4096,
		MaxImageHeight:   4096,
		MinVideoBytes:    1 << 10,
		MaxVideoBytes:    500 << 20,
		MinVideoDuration: 0.1,
		MaxVideoDuration: 3600,
		MinModelBytes:    100,
		MaxModelBytes:    100 << 20,
		MaxDocumentBytes: 25 << 20,
	}
}

var extKinds = map[string]ledger.MediaKind{
	"jpg": ledger.KindImage, "jpeg": ledger.KindImage, "png": ledger.KindImage,
	"webp": ledger.KindImage, "gif": ledger.KindImage,

	"mp4": ledger.KindVideo, "webm": ledger.KindVideo, "mov": ledger.KindVideo,
	"avi": ledger.KindVideo, "mkv": ledger.KindVideo,

	"glb": ledger.Kind3DModel, "gltf": ledger.Kind3DModel, "obj": ledger.Kind3DModel,
	"fbx": ledger.Kind3DModel, "usdz": ledger.Kind3DModel,

	"pdf": ledger.KindDocument, "txt": ledger.KindDocument, "csv": ledger.KindDocument,
	"doc": ledger.KindDocument, "docx": ledger.KindDocument,
}

// KindForFilename classifies a filename by extension.
func KindForFilename(filename string) (ledger.MediaKind, bool) {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	kind, ok := extKinds[ext]
	return kind, ok
}

type Validator struct {
	limits Limits
	caps   Capabilities
	prober VideoProber
}

func New(limits Limits, caps Capabilities, prober VideoProber) *Validator {
	return &Validator{limits: limits, caps: caps, prober: prober}
}

func (v *Validator) Capabilities() Capabilities { return v.caps }

// Validate checks data against the rules for its media kind. The error
// return is reserved for internal faults (temp file creation and the
// like); every rejection comes back as Result{Valid: false}.
func (v *Validator) Validate(ctx context.Context, data []byte, filename string) (Result, error) {
	kind, ok := KindForFilename(filename)
	if !ok {
		return invalid("", "unsupported file extension: "+path.Ext(filename)), nil
	}
	if len(data) == 0 {
		return invalid(kind, "empty file"), nil
	}

	switch kind {
	case ledger.KindImage:
		return v.validateImage(data), nil
	case ledger.KindVideo:
		return v.validateVideo(ctx, data)
	case ledger.Kind3DModel:
		return v.validateModel(data, filename), nil
	default:
		return v.validateDocument(data), nil
	}
}

func (v *Validator) validateDocument(data []byte) Result {
	if int64(len(data)) > v.limits.MaxDocumentBytes {
		return invalid(ledger.KindDocument, "document exceeds maximum size")
	}
	return Result{Valid: true, MediaKind: ledger.KindDocument}
}
