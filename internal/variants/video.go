package variants

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/shopcraft/media-pipeline/internal/ledger"
	"github.com/shopcraft/media-pipeline/internal/objectkey"
)

// VideoThumbnail extracts a single representative frame at
// min(5s, 50% of duration) and returns it as a JPEG artifact.
// Transcoding to multiple resolutions is an extension point, not part of
// the baseline variant set.
func VideoThumbnail(ctx context.Context, inputPath, filename string, duration float64) (Artifact, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return Artifact{}, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	seek := 5.0
	if duration > 0 && duration/2 < seek {
		seek = duration / 2
	}

	outDir, err := os.MkdirTemp("", "video-thumb-*")
	if err != nil {
		return Artifact{}, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(outDir)
	outPath := filepath.Join(outDir, "frame.jpg")

	// thumbnail filter picks the most representative frame near the seek
	// point; scale bounds the frame to the thumbnail box.
	videoFilter := fmt.Sprintf("thumbnail,scale=%d:%d:force_original_aspect_ratio=decrease", ThumbnailSize, ThumbnailSize)
	args := []string{
		"-ss", strconv.FormatFloat(seek, 'f', 2, 64),
		"-i", inputPath,
		"-vf", videoFilter,
		"-frames:v", "1",
		"-pix_fmt", "yuvj420p",
		"-q:v", "2",
		"-y",
		outPath,
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return Artifact{}, fmt.Errorf("ffmpeg failed: %w\nOutput: %s", err, string(out))
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return Artifact{}, fmt.Errorf("read thumbnail frame: %w", err)
	}
	return Artifact{
		Name:        ledger.VariantThumbnail,
		Version:     objectkey.VersionThumbnail,
		Filename:    jpegFilename(filename),
		Data:        data,
		ContentType: "image/jpeg",
	}, nil
}
