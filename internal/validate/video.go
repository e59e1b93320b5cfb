package validate

import (
	"context"
	"fmt"
	"os"

	"github.com/shopcraft/media-pipeline/internal/ledger"
)

// validateVideo checks size bounds, then probes stream metadata when a
// probing engine is available. Without one the file is still accepted;
// duration validation is skipped, not failed.
func (v *Validator) validateVideo(ctx context.Context, data []byte) (Result, error) {
	size := int64(len(data))
	if size < v.limits.MinVideoBytes {
		return invalid(ledger.KindVideo, "video smaller than minimum size"), nil
	}
	if size > v.limits.MaxVideoBytes {
		return invalid(ledger.KindVideo, fmt.Sprintf("video exceeds maximum size of %d bytes", v.limits.MaxVideoBytes)), nil
	}

	if !v.caps.HasVideoProbe || v.prober == nil {
		return Result{
			Valid:     true,
			MediaKind: ledger.KindVideo,
			Facts:     map[string]any{"probe_skipped": true},
		}, nil
	}

	temp, err := os.CreateTemp("", "video-validate-*")
	if err != nil {
		return Result{}, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(temp.Name())
	if _, err := temp.Write(data); err != nil {
		temp.Close()
		return Result{}, fmt.Errorf("write temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		return Result{}, fmt.Errorf("close temp file: %w", err)
	}

	info, err := v.prober.Probe(ctx, temp.Name())
	if err != nil {
		return invalid(ledger.KindVideo, "unreadable video container: "+err.Error()), nil
	}
	if info.Duration < v.limits.MinVideoDuration || info.Duration > v.limits.MaxVideoDuration {
		return invalid(ledger.KindVideo, fmt.Sprintf("video duration %.1fs outside allowed range [%.1fs, %.0fs]",
			info.Duration, v.limits.MinVideoDuration, v.limits.MaxVideoDuration)), nil
	}

	return Result{
		Valid:     true,
		MediaKind: ledger.KindVideo,
		Width:     info.Width,
		Height:    info.Height,
		Facts: map[string]any{
			"duration": info.Duration,
			"width":    info.Width,
			"height":   info.Height,
			"codec":    info.Codec,
			"bitrate":  info.BitRate,
			"fps":      info.FPS,
		},
	}, nil
}
