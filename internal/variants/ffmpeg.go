package variants

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/shopcraft/media-pipeline/internal/validate"
)

// FFprobe extracts stream metadata by shelling out to ffprobe.
type FFprobe struct{}

func (FFprobe) Probe(ctx context.Context, input string) (validate.VideoInfo, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,codec_name,bit_rate,r_frame_rate,avg_frame_rate",
		"-show_entries", "format=duration,bit_rate",
		"-of", "default=noprint_wrappers=1",
		input,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return validate.VideoInfo{}, fmt.Errorf("ffprobe failed: %w\nOutput: %s", err, string(out))
	}

	var info validate.VideoInfo
	var rFrameRate, avgFrameRate string
	for _, line := range strings.Split(string(out), "\n") {
		parts := strings.SplitN(strings.TrimSpace(line), "=", 2)
		if len(parts) != 2 {
			continue
		}
		key, value := parts[0], parts[1]
		switch key {
		case "width":
			if w, err := strconv.Atoi(value); err == nil {
				info.Width = w
			}
		case "height":
			if h, err := strconv.Atoi(value); err == nil {
				info.Height = h
			}
		case "duration":
			if d, err := strconv.ParseFloat(value, 64); err == nil && info.Duration == 0 {
				info.Duration = d
			}
		case "codec_name":
			info.Codec = value
		case "bit_rate":
			if b, err := strconv.ParseInt(value, 10, 64); err == nil && info.BitRate == 0 {
				info.BitRate = b
			}
		case "r_frame_rate":
			rFrameRate = value
		case "avg_frame_rate":
			avgFrameRate = value
		}
	}

	// fps comes from the real frame-rate ratio, falling back to the
	// average ratio, then 0.
	info.FPS = parseFrameRate(rFrameRate)
	if info.FPS == 0 {
		info.FPS = parseFrameRate(avgFrameRate)
	}
	return info, nil
}

// parseFrameRate evaluates a ratio string like "30000/1001". Plain
// numbers are accepted too; anything unparseable yields 0.
func parseFrameRate(ratio string) float64 {
	ratio = strings.TrimSpace(ratio)
	if ratio == "" || ratio == "0/0" {
		return 0
	}
	num, den, found := strings.Cut(ratio, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
